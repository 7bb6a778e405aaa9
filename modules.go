package main

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"periph.io/x/periph/conn/physic"

	"github.com/xanderflood/pibattery/pkg/battery"
	"github.com/xanderflood/pibattery/pkg/gpio"
	"github.com/xanderflood/pibattery/pkg/relay"
)

////////////////////////
// The module library //
type BatteryModule struct {
	gauge *battery.Gauge
	sense battery.SensePin

	sync.Mutex
}
type BatteryModuleConfig struct {
	MinVoltage          int      `json:"min_voltage"`
	MaxVoltage          int      `json:"max_voltage"`
	SenseChannel        int      `json:"sense_channel"`
	FullScaleMillivolts int      `json:"full_scale_mv"`
	ActivationPin       string   `json:"activation_pin"`
	ActivationLevel     string   `json:"activation_level"`
	RefVoltage          float64  `json:"ref_voltage"`
	DividerRatio        float64  `json:"divider_ratio"`
	Offset              *float64 `json:"offset"`
}
type BatteryVoltageResponse struct {
	Millivolts int `json:"millivolts"`
}
type BatteryLevelResponse struct {
	Percent int `json:"percent"`
}
type BatteryStatusResponse struct {
	Millivolts int `json:"millivolts"`
	Percent    int `json:"percent"`
	MinVoltage int `json:"min_voltage"`
	MaxVoltage int `json:"max_voltage"`
}

func (m *BatteryModule) Stop() error {
	if h, ok := m.sense.(interface{ Halt() error }); ok {
		return h.Halt()
	}
	return nil
}

func (m *BatteryModule) Initialize(sp ServiceProvider, binder Binder) error {
	var config = &BatteryModuleConfig{}
	if err := binder.BindData(config); err != nil {
		return err
	}

	sense, err := sp.GetSensePin(config.SenseChannel, physic.ElectricPotential(config.FullScaleMillivolts)*physic.MilliVolt)
	if err != nil {
		return fmt.Errorf("failed getting sense pin: %w", err)
	}
	m.sense = sense

	var activation relay.Relay
	if config.ActivationPin != "" {
		pin, err := sp.GetOutputPin(config.ActivationPin)
		if err != nil {
			return fmt.Errorf("failed getting activation pin: %w", err)
		}
		level := gpio.High
		if config.ActivationLevel != "" {
			if level, err = gpio.ParseState(config.ActivationLevel); err != nil {
				return &battery.ConfigurationError{Field: "activation level", Reason: err.Error()}
			}
		}
		activation = relay.New(pin, level == gpio.Low)
	}

	gauge, err := battery.New(config.MinVoltage, config.MaxVoltage, sense, activation)
	if err != nil {
		return err
	}
	if config.Offset != nil {
		gauge.Offset = *config.Offset
	}
	if err := gauge.Initialize(config.RefVoltage, config.DividerRatio); err != nil {
		return err
	}

	m.gauge = gauge
	return nil
}

func (m *BatteryModule) Act(action string, _ Binder) (interface{}, error) {
	m.Lock()
	defer m.Unlock()

	switch action {
	case "voltage":
		v, err := m.gauge.ReadVoltage()
		if err != nil {
			return nil, err
		}
		return BatteryVoltageResponse{Millivolts: v}, nil
	case "level":
		l, err := m.gauge.ReadLevel()
		if err != nil {
			return nil, err
		}
		return BatteryLevelResponse{Percent: l}, nil
	case "status":
		v, err := m.gauge.ReadVoltage()
		if err != nil {
			return nil, err
		}
		min, max := m.gauge.Range()
		status := BatteryStatusResponse{
			Millivolts: v,
			Percent:    m.gauge.LevelOf(v),
			MinVoltage: min,
			MaxVoltage: max,
		}
		logrus.WithFields(logrus.Fields{
			"millivolts": status.Millivolts,
			"percent":    status.Percent,
		}).Debug("read battery status")
		return status, nil
	default:
		return nil, fmt.Errorf("%w `%s`", ErrNoSuchAction, action)
	}
}
