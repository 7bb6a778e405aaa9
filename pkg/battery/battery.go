//Package battery estimates the charge level of a battery from a single analog
//voltage sample, mapped linearly between an empty and a full voltage.
//
//The mapping ignores the discharge curve of the cell chemistry, so the level
//is only a rough indication of state of charge.
package battery

import (
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/xanderflood/pibattery/pkg/gpio"
	"github.com/xanderflood/pibattery/pkg/relay"
)

const (
	//CalibrationOffset millivolts added to every reading to correct the
	//systematic bias of the sampling path on the boards this was tuned for.
	//Override Gauge.Offset if a board measures differently.
	CalibrationOffset = 200.0

	//SettleDelay how long the sense circuit is powered before sampling, for
	//switching circuits that are slow to conduct
	SettleDelay = 10 * time.Microsecond
)

//SensePin the analog input the battery voltage is sampled from
//go:generate counterfeiter . SensePin
type SensePin interface {
	Input()
	Sample() (int32, error)
}

//Gauge a battery voltage and level reader for one sense circuit.
//A Gauge is not safe for concurrent use.
type Gauge struct {
	//Offset millivolts added to each calibrated reading
	Offset float64
	//Settle how long the activation relay is held on before sampling
	Settle time.Duration
	//Delay blocks for the settling time
	Delay func(time.Duration)

	sense      SensePin
	activation relay.Relay
	minVoltage int
	maxVoltage int

	refVoltage   float64
	dividerRatio float64
	initialized  bool
}

//New create a gauge reporting 0% at minVoltage and 100% at maxVoltage, in
//millivolts. activation may be nil when the sense circuit is always powered.
func New(minVoltage, maxVoltage int, sense SensePin, activation relay.Relay) (*Gauge, error) {
	if minVoltage >= maxVoltage {
		return nil, &ConfigurationError{
			Field:  "voltage range",
			Reason: fmt.Sprintf("minimum %dmV must be below maximum %dmV", minVoltage, maxVoltage),
		}
	}
	if sense == nil {
		return nil, &ConfigurationError{Field: "sense pin", Reason: "must not be nil"}
	}

	return &Gauge{
		Offset:     CalibrationOffset,
		Settle:     SettleDelay,
		Delay:      gpio.BusyWait,
		sense:      sense,
		activation: activation,
		minVoltage: minVoltage,
		maxVoltage: maxVoltage,
	}, nil
}

//Initialize configure the pins and set the calibration. refVoltage is the
//converter reference (millivolts per count when the raw count is not
//prescaled) and dividerRatio corrects for the resistor divider in front of
//the sense pin. Initialize must succeed before the first read.
func (g *Gauge) Initialize(refVoltage, dividerRatio float64) error {
	if !positive(refVoltage) {
		return &ConfigurationError{Field: "reference voltage", Reason: fmt.Sprintf("%v is not a positive number", refVoltage)}
	}
	if !positive(dividerRatio) {
		return &ConfigurationError{Field: "divider ratio", Reason: fmt.Sprintf("%v is not a positive number", dividerRatio)}
	}

	g.refVoltage = refVoltage
	g.dividerRatio = dividerRatio

	g.sense.Input()
	if g.activation != nil {
		if err := g.activation.Setup(); err != nil {
			return fmt.Errorf("failed configuring battery activation pin: %w", err)
		}
	}

	g.initialized = true
	return nil
}

//ReadVoltage take one sample and return the calibrated battery voltage in
//millivolts. No averaging is done. A reading is only returned if the
//activation relay switched both on and off.
func (g *Gauge) ReadVoltage() (voltage int, err error) {
	if !g.initialized {
		return 0, ErrNotInitialized
	}

	if g.activation != nil {
		if err := g.activation.Set(true); err != nil {
			_ = g.activation.Set(false)
			return 0, fmt.Errorf("failed powering battery sense circuit: %w", err)
		}
		defer func() {
			if offErr := g.activation.Set(false); offErr != nil && err == nil {
				voltage, err = 0, fmt.Errorf("failed switching off battery sense circuit: %w", offErr)
			}
		}()
		g.Delay(g.Settle)
	}

	raw, err := g.sense.Sample()
	if err != nil {
		return 0, fmt.Errorf("failed sampling battery sense pin: %w", err)
	}

	reading := float64(raw)
	reading *= g.dividerRatio
	reading *= g.refVoltage
	reading += g.Offset
	voltage = int(reading)

	logrus.WithFields(logrus.Fields{
		"raw":       raw,
		"millivolt": voltage,
	}).Trace("sampled battery voltage")

	return voltage, nil
}

//ReadLevel take one sample and return the charge level as a percentage
func (g *Gauge) ReadLevel() (int, error) {
	voltage, err := g.ReadVoltage()
	if err != nil {
		return 0, err
	}
	return g.LevelOf(voltage), nil
}

//LevelOf map a voltage onto this gauge's range
func (g *Gauge) LevelOf(voltage int) int {
	return Level(voltage, g.minVoltage, g.maxVoltage)
}

//Range the voltages reported as 0% and 100%
func (g *Gauge) Range() (minVoltage, maxVoltage int) {
	return g.minVoltage, g.maxVoltage
}

//Level map voltage linearly onto 0-100 between minVoltage and maxVoltage,
//clamping outside the range and truncating toward zero
func Level(voltage, minVoltage, maxVoltage int) int {
	if voltage <= minVoltage {
		return 0
	} else if voltage >= maxVoltage {
		return 100
	}

	// voltage is strictly inside the range here, so maxVoltage > minVoltage
	return int((int64(voltage) - int64(minVoltage)) * 100 / (int64(maxVoltage) - int64(minVoltage)))
}

func positive(f float64) bool {
	return f > 0 && !math.IsInf(f, 1) && !math.IsNaN(f)
}
