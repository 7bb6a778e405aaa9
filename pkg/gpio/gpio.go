package gpio

import (
	"fmt"
	"strings"
	"time"

	rpio "github.com/stianeikeland/go-rpio"
	pgpio "periph.io/x/periph/conn/gpio"
)

//State IO pin state
type State = rpio.State

const (
	//Low signal
	Low = rpio.Low

	//High signal
	High = rpio.High
)

var stateNames = map[string]State{
	"low":  Low,
	"high": High,
}

//ParseState parse "high" or "low", in any case
func ParseState(s string) (State, error) {
	if state, ok := stateNames[strings.ToLower(s)]; ok {
		return state, nil
	}
	return State(0), fmt.Errorf("unexpected pin level %q, expected HIGH or LOW", s)
}

//Setup initialize memory buffers for GPIO
func Setup() error {
	return rpio.Open()
}

//Teardown release the GPIO memory buffers
func Teardown() error {
	return rpio.Close()
}

//OutputPin minimal interface for a GPIO pin
//go:generate counterfeiter . OutputPin
type OutputPin interface {
	Output()
	High()
	Low()
}

//Faulty implemented by output pins whose writes can fail
type Faulty interface {
	Err() error
}

//Check the error from the last operation on pin, for pins that report one
func Check(pin OutputPin) error {
	if f, ok := pin.(Faulty); ok {
		return f.Err()
	}
	return nil
}

//Set sets the state of the pin
func Set(pin OutputPin, high bool) {
	pin.Output()
	if high {
		pin.High()
	} else {
		pin.Low()
	}
}

//BusyWait spin until at least `d` has elapsed. time.Sleep overshoots badly
//at microsecond scale, so short settling delays use this instead.
func BusyWait(d time.Duration) {
	start := time.Now()
	for time.Since(start) < d {
	}
}

//PeriphOutput adapts a periph.io output pin to OutputPin. periph configures
//the direction as part of every write, so Output does nothing and the pin
//is first driven by the next High or Low.
type PeriphOutput struct {
	Pin pgpio.PinOut

	err error
}

//NewPeriphOutput wrap a periph.io pin
func NewPeriphOutput(pin pgpio.PinOut) *PeriphOutput {
	return &PeriphOutput{Pin: pin}
}

//Output nothing to configure ahead of a write
func (p *PeriphOutput) Output() {}

//High drive the pin high
func (p *PeriphOutput) High() { p.write(pgpio.High) }

//Low drive the pin low
func (p *PeriphOutput) Low() { p.write(pgpio.Low) }

//Err the error from the most recent write, nil if it succeeded
func (p *PeriphOutput) Err() error {
	return p.err
}

func (p *PeriphOutput) write(l pgpio.Level) {
	p.err = nil
	if err := p.Pin.Out(l); err != nil {
		p.err = fmt.Errorf("failed driving pin %s %s: %w", p.Pin, l, err)
	}
}

//String the name of the underlying pin
func (p *PeriphOutput) String() string {
	return p.Pin.String()
}
