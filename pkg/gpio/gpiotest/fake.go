//Package gpiotest a simulated hardware backend. Fakes share a Trace and a
//Clock so tests can check the ordering and timing of pin operations.
package gpiotest

import (
	"sync"
	"time"
)

//Op a recorded pin operation
type Op string

const (
	OpOutput Op = "output"
	OpInput  Op = "input"
	OpHigh   Op = "high"
	OpLow    Op = "low"
	OpSample Op = "sample"
)

//Event one pin operation at a point in simulated time
type Event struct {
	Pin string
	Op  Op
	At  time.Duration
}

//Clock simulated time, advanced only by Sleep
type Clock struct {
	mu  sync.Mutex
	now time.Duration
}

//Now the elapsed simulated time
func (c *Clock) Now() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

//Sleep advance the clock by d without blocking
func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += d
}

//Trace records pin operations in order
type Trace struct {
	Clock *Clock

	mu     sync.Mutex
	events []Event
}

//NewTrace a trace stamped by a fresh clock
func NewTrace() *Trace {
	return &Trace{Clock: &Clock{}}
}

//Record append an event
func (t *Trace) Record(pin string, op Op) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, Event{Pin: pin, Op: op, At: t.Clock.Now()})
}

//Events a copy of the recorded events
func (t *Trace) Events() []Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Event(nil), t.events...)
}

//Ops the recorded operations, optionally filtered to a single pin
func (t *Trace) Ops(pin string) []Op {
	var ops []Op
	for _, e := range t.Events() {
		if pin == "" || e.Pin == pin {
			ops = append(ops, e.Op)
		}
	}
	return ops
}

//Reset drop all recorded events
func (t *Trace) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
}

//FakeOutputPin records Output/High/Low calls
type FakeOutputPin struct {
	Name  string
	Trace *Trace

	high bool
}

//NewFakeOutputPin a named output pin recording into trace
func NewFakeOutputPin(name string, trace *Trace) *FakeOutputPin {
	return &FakeOutputPin{Name: name, Trace: trace}
}

func (p *FakeOutputPin) Output() { p.Trace.Record(p.Name, OpOutput) }

func (p *FakeOutputPin) High() {
	p.high = true
	p.Trace.Record(p.Name, OpHigh)
}

func (p *FakeOutputPin) Low() {
	p.high = false
	p.Trace.Record(p.Name, OpLow)
}

//IsHigh the level the pin was last driven to
func (p *FakeOutputPin) IsHigh() bool {
	return p.high
}

//FakeSensePin an analog input returning a settable raw count
type FakeSensePin struct {
	Name  string
	Trace *Trace

	raw int32
	err error
}

//NewFakeSensePin a named analog input recording into trace
func NewFakeSensePin(name string, trace *Trace) *FakeSensePin {
	return &FakeSensePin{Name: name, Trace: trace}
}

//SimulateValue set the count (and error) returned by the next samples
func (p *FakeSensePin) SimulateValue(raw int32, err error) {
	p.raw = raw
	p.err = err
}

func (p *FakeSensePin) Input() { p.Trace.Record(p.Name, OpInput) }

func (p *FakeSensePin) Sample() (int32, error) {
	p.Trace.Record(p.Name, OpSample)
	return p.raw, p.err
}
