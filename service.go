package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/sirupsen/logrus"
	rpio "github.com/stianeikeland/go-rpio"
	"periph.io/x/periph/conn/gpio/gpioreg"
	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"

	"github.com/xanderflood/pibattery/pkg/ads1115"
	"github.com/xanderflood/pibattery/pkg/battery"
	"github.com/xanderflood/pibattery/pkg/gpio"
)

const (
	//BackendPeriph resolve output pins through the periph.io registry
	BackendPeriph = "periph"
	//BackendRPIO drive output pins through go-rpio's /dev/gpiomem mapping
	BackendRPIO = "rpio"
)

//////////////////////////
// hardware interfacing //
type ServiceProvider interface {
	GetSensePin(channel int, fullScale physic.ElectricPotential) (battery.SensePin, error)
	GetOutputPin(name string) (gpio.OutputPin, error)

	Close() error
}

func NewServiceProvider(backend string) (*ServiceAgent, error) {
	if backend != BackendPeriph && backend != BackendRPIO {
		return nil, fmt.Errorf("unknown GPIO backend %q", backend)
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed initializing periph.io host: %w", err)
	}

	bus, err := i2creg.Open("")
	if err != nil {
		logrus.WithError(err).Warn("failed to identify an i2c bus - modules relying on I2C will fail to initialize")
	}

	if backend == BackendRPIO {
		if err := gpio.Setup(); err != nil {
			if bus != nil {
				_ = bus.Close()
			}
			return nil, fmt.Errorf("failed opening rpio memory: %w", err)
		}
	}

	return &ServiceAgent{
		backend:       backend,
		defaultI2CBus: bus,
	}, nil
}

type ServiceAgent struct {
	backend       string
	defaultI2CBus i2c.BusCloser
}

func (a *ServiceAgent) GetSensePin(channel int, fullScale physic.ElectricPotential) (battery.SensePin, error) {
	if a.defaultI2CBus == nil {
		return nil, errors.New("no i2c bus available")
	}
	input, err := ads1115.Open(a.defaultI2CBus, channel, fullScale)
	if err != nil {
		return nil, err
	}
	return input, nil
}

func (a *ServiceAgent) GetOutputPin(name string) (gpio.OutputPin, error) {
	if a.backend == BackendRPIO {
		n, err := strconv.Atoi(name)
		if err != nil || n < 0 || n > 27 {
			return nil, fmt.Errorf("rpio pins are BCM numbers 0-27, got %q", name)
		}
		return rpio.Pin(n), nil
	}

	// Use gpioreg GPIO pin registry to find a GPIO pin by name.
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("failed to find pin %s", name)
	}
	return gpio.NewPeriphOutput(pin), nil
}

func (a *ServiceAgent) Close() error {
	if a.backend == BackendRPIO {
		if err := gpio.Teardown(); err != nil {
			logrus.WithError(err).Warn("failed closing rpio memory")
		}
	}
	if a.defaultI2CBus == nil {
		return nil
	}
	return a.defaultI2CBus.Close()
}
