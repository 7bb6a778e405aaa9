package relay

import (
	"fmt"

	"github.com/xanderflood/pibattery/pkg/gpio"
)

//Relay a switched supply, such as the transistor powering a sense circuit
type Relay interface {
	Setup() error
	Set(bool) error
}

//RelayAgent standard relay implementation
type RelayAgent struct {
	pin      gpio.OutputPin
	inverted bool
}

//New control a relay. Use inverted for active-low switching circuits.
func New(pin gpio.OutputPin, inverted bool) *RelayAgent {
	return &RelayAgent{
		pin:      pin,
		inverted: inverted,
	}
}

//Setup configure the pin as an output and switch the relay off
func (r *RelayAgent) Setup() error {
	gpio.Set(r.pin, r.inverted)
	if err := gpio.Check(r.pin); err != nil {
		return fmt.Errorf("failed setting up relay: %w", err)
	}
	return nil
}

//Set switch the relay on or off. Setup must have been called first.
func (r *RelayAgent) Set(on bool) error {
	if on != r.inverted { //xor
		r.pin.High()
	} else {
		r.pin.Low()
	}
	if err := gpio.Check(r.pin); err != nil {
		return fmt.Errorf("failed switching relay on=%t: %w", on, err)
	}
	return nil
}
