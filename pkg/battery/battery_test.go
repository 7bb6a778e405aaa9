package battery_test

import (
	"errors"
	"math"
	"time"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
	pgpio "periph.io/x/periph/conn/gpio"

	"github.com/xanderflood/pibattery/pkg/battery"
	"github.com/xanderflood/pibattery/pkg/gpio"
	"github.com/xanderflood/pibattery/pkg/gpio/gpiotest"
	"github.com/xanderflood/pibattery/pkg/relay"
)

//periphPin a periph.io output whose writes fail for the levels in failOn
type periphPin struct {
	pgpio.PinOut

	levels []pgpio.Level
	failOn map[pgpio.Level]bool
}

func (p *periphPin) Out(l pgpio.Level) error {
	p.levels = append(p.levels, l)
	if p.failOn[l] {
		return errors.New("pin not exported")
	}
	return nil
}

func (p *periphPin) String() string { return "GPIO17" }

var _ = Describe("Level", func() {
	table.DescribeTable("maps voltage onto the range",
		func(voltage, expected int) {
			Expect(battery.Level(voltage, 3200, 4200)).To(Equal(expected))
		},
		table.Entry("far below min", 0, 0),
		table.Entry("below min", 3100, 0),
		table.Entry("at min", 3200, 0),
		table.Entry("halfway", 3700, 50),
		table.Entry("truncates toward zero", 3209, 0),
		table.Entry("first whole percent", 3210, 1),
		table.Entry("just below max", 4199, 99),
		table.Entry("at max", 4200, 100),
		table.Entry("above max", 4300, 100),
	)

	It("is monotonic and bounded across the whole range", func() {
		previous := 0
		for v := 3000; v <= 4400; v++ {
			level := battery.Level(v, 3200, 4200)
			Expect(level).To(BeNumerically(">=", previous))
			Expect(level).To(BeNumerically(">=", 0))
			Expect(level).To(BeNumerically("<=", 100))
			if v > 3200 && v < 4200 {
				Expect(level).To(BeNumerically("<", 100))
			}
			if (v-3200)*100 >= 1000 && v < 4200 {
				Expect(level).To(BeNumerically(">", 0))
			}
			previous = level
		}
	})

	It("maps the midpoint of a 0-100 range to 50", func() {
		Expect(battery.Level(50, 0, 100)).To(Equal(50))
		Expect(battery.Level(50000, 0, 100000)).To(Equal(50))
	})

	It("does not overflow on wide ranges", func() {
		Expect(battery.Level(math.MaxInt32-1, math.MinInt32, math.MaxInt32)).To(Equal(99))
	})

	It("never divides by a degenerate range", func() {
		Expect(battery.Level(4000, 4200, 4200)).To(Equal(0))
		Expect(battery.Level(4300, 4200, 4200)).To(Equal(100))
		Expect(battery.Level(4300, 4200, 3200)).To(Equal(100))
	})
})

var _ = Describe("Gauge", func() {
	var (
		trace      *gpiotest.Trace
		sense      *gpiotest.FakeSensePin
		activation *gpiotest.FakeOutputPin
	)

	BeforeEach(func() {
		trace = gpiotest.NewTrace()
		sense = gpiotest.NewFakeSensePin("sense", trace)
		activation = gpiotest.NewFakeOutputPin("activation", trace)
	})

	newGauge := func(r relay.Relay) *battery.Gauge {
		g, err := battery.New(3200, 4200, sense, r)
		Expect(err).NotTo(HaveOccurred())
		g.Delay = trace.Clock.Sleep
		return g
	}

	Describe("New", func() {
		It("rejects an empty or inverted range", func() {
			for _, bounds := range [][2]int{{4200, 4200}, {4200, 3200}} {
				g, err := battery.New(bounds[0], bounds[1], sense, nil)
				Expect(g).To(BeNil())

				var cfgErr *battery.ConfigurationError
				Expect(errors.As(err, &cfgErr)).To(BeTrue())
				Expect(cfgErr.Field).To(Equal("voltage range"))
			}
		})

		It("rejects a missing sense pin", func() {
			_, err := battery.New(3200, 4200, nil, nil)
			var cfgErr *battery.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
		})

		It("performs no I/O", func() {
			newGauge(relay.New(activation, false))
			Expect(trace.Events()).To(BeEmpty())
		})

		It("uses the default calibration constants", func() {
			g := newGauge(nil)
			Expect(g.Offset).To(Equal(battery.CalibrationOffset))
			Expect(g.Settle).To(Equal(battery.SettleDelay))
			min, max := g.Range()
			Expect(min).To(Equal(3200))
			Expect(max).To(Equal(4200))
		})
	})

	Describe("Initialize", func() {
		It("configures the sense pin and the activation pin", func() {
			g := newGauge(relay.New(activation, false))
			Expect(g.Initialize(1, 2)).To(Succeed())

			Expect(trace.Ops("sense")).To(Equal([]gpiotest.Op{gpiotest.OpInput}))
			Expect(trace.Ops("activation")).To(Equal([]gpiotest.Op{gpiotest.OpOutput, gpiotest.OpLow}))
		})

		It("only configures the sense pin without an activation pin", func() {
			g := newGauge(nil)
			Expect(g.Initialize(1, 2)).To(Succeed())
			Expect(trace.Ops("")).To(Equal([]gpiotest.Op{gpiotest.OpInput}))
		})

		table.DescribeTable("rejects unusable calibration",
			func(ref, ratio float64, field string) {
				g := newGauge(nil)
				err := g.Initialize(ref, ratio)

				var cfgErr *battery.ConfigurationError
				Expect(errors.As(err, &cfgErr)).To(BeTrue())
				Expect(cfgErr.Field).To(Equal(field))
				Expect(trace.Events()).To(BeEmpty())
			},
			table.Entry("zero reference", 0.0, 2.0, "reference voltage"),
			table.Entry("negative reference", -1.0, 2.0, "reference voltage"),
			table.Entry("NaN reference", math.NaN(), 2.0, "reference voltage"),
			table.Entry("zero divider", 1.0, 0.0, "divider ratio"),
			table.Entry("infinite divider", 1.0, math.Inf(1), "divider ratio"),
		)
	})

	Describe("ReadVoltage", func() {
		It("fails before initialization", func() {
			g := newGauge(nil)
			_, err := g.ReadVoltage()
			Expect(err).To(MatchError(battery.ErrNotInitialized))
			Expect(trace.Events()).To(BeEmpty())
		})

		It("scales the sample and adds the offset", func() {
			g := newGauge(nil)
			Expect(g.Initialize(1, 2)).To(Succeed())

			sense.SimulateValue(1750, nil)
			Expect(g.ReadVoltage()).To(Equal(3700))
		})

		It("truncates the calibrated reading", func() {
			g := newGauge(nil)
			Expect(g.Initialize(3300.0/1024, 2)).To(Succeed())

			// 620 * 2 * 3.22265625 + 200 = 4196.09375
			sense.SimulateValue(620, nil)
			Expect(g.ReadVoltage()).To(Equal(4196))
		})

		It("honours an overridden offset", func() {
			g := newGauge(nil)
			g.Offset = 0
			Expect(g.Initialize(1, 1)).To(Succeed())

			sense.SimulateValue(3700, nil)
			Expect(g.ReadVoltage()).To(Equal(3700))
		})

		It("is stateless across reads", func() {
			g := newGauge(relay.New(activation, false))
			Expect(g.Initialize(1, 2)).To(Succeed())

			sense.SimulateValue(1800, nil)
			first, err := g.ReadVoltage()
			Expect(err).NotTo(HaveOccurred())
			Expect(g.ReadVoltage()).To(Equal(first))
		})

		Context("with an activation pin", func() {
			var g *battery.Gauge

			BeforeEach(func() {
				g = newGauge(relay.New(activation, false))
				Expect(g.Initialize(1, 2)).To(Succeed())
				trace.Reset()
				sense.SimulateValue(1750, nil)
			})

			It("brackets exactly one sample with high then low", func() {
				Expect(g.ReadVoltage()).To(Equal(3700))
				Expect(trace.Ops("")).To(Equal([]gpiotest.Op{
					gpiotest.OpHigh,
					gpiotest.OpSample,
					gpiotest.OpLow,
				}))
			})

			It("holds the pin high for at least the settling delay", func() {
				_, err := g.ReadVoltage()
				Expect(err).NotTo(HaveOccurred())

				events := trace.Events()
				Expect(events).To(HaveLen(3))
				Expect(events[1].At - events[0].At).To(BeNumerically(">=", battery.SettleDelay))
			})

			It("uses a configured settling delay", func() {
				g.Settle = time.Millisecond
				_, err := g.ReadVoltage()
				Expect(err).NotTo(HaveOccurred())

				events := trace.Events()
				Expect(events[1].At - events[0].At).To(Equal(time.Millisecond))
			})

			It("switches the circuit off when sampling fails", func() {
				sense.SimulateValue(0, errors.New("bus error"))
				_, err := g.ReadVoltage()
				Expect(err).To(MatchError(ContainSubstring("bus error")))
				Expect(activation.IsHigh()).To(BeFalse())
				Expect(trace.Ops("activation")).To(Equal([]gpiotest.Op{gpiotest.OpHigh, gpiotest.OpLow}))
			})

			It("drives an active-low circuit low then high", func() {
				g = newGauge(relay.New(activation, true))
				Expect(g.Initialize(1, 2)).To(Succeed())
				trace.Reset()

				_, err := g.ReadVoltage()
				Expect(err).NotTo(HaveOccurred())
				Expect(trace.Ops("")).To(Equal([]gpiotest.Op{
					gpiotest.OpLow,
					gpiotest.OpSample,
					gpiotest.OpHigh,
				}))
			})
		})

		It("does not toggle any pin without an activation pin", func() {
			g := newGauge(nil)
			Expect(g.Initialize(1, 2)).To(Succeed())
			trace.Reset()

			_, err := g.ReadVoltage()
			Expect(err).NotTo(HaveOccurred())
			Expect(trace.Ops("")).To(Equal([]gpiotest.Op{gpiotest.OpSample}))
			Expect(trace.Clock.Now()).To(BeZero())
		})
	})

	Context("with an activation pin whose writes fail", func() {
		var pin *periphPin

		BeforeEach(func() {
			pin = &periphPin{failOn: map[pgpio.Level]bool{}}
			sense.SimulateValue(1750, nil)
		})

		newPeriphGauge := func() *battery.Gauge {
			return newGauge(relay.New(gpio.NewPeriphOutput(pin), false))
		}

		It("fails to initialize when the pin cannot be switched off", func() {
			pin.failOn[pgpio.Low] = true
			err := newPeriphGauge().Initialize(1, 2)
			Expect(err).To(MatchError(ContainSubstring("pin not exported")))
		})

		It("does not report a reading when the circuit cannot be powered", func() {
			g := newPeriphGauge()
			Expect(g.Initialize(1, 2)).To(Succeed())
			pin.failOn[pgpio.High] = true

			v, err := g.ReadVoltage()
			Expect(err).To(MatchError(ContainSubstring("pin not exported")))
			Expect(v).To(BeZero())
			Expect(trace.Ops("sense")).NotTo(ContainElement(gpiotest.OpSample))
			Expect(pin.levels[len(pin.levels)-1]).To(Equal(pgpio.Low))
		})

		It("does not report a reading when the circuit cannot be switched off", func() {
			g := newPeriphGauge()
			Expect(g.Initialize(1, 2)).To(Succeed())
			pin.failOn[pgpio.Low] = true

			v, err := g.ReadVoltage()
			Expect(err).To(MatchError(ContainSubstring("switching off")))
			Expect(v).To(BeZero())
		})

		It("fails the level read as well", func() {
			g := newPeriphGauge()
			Expect(g.Initialize(1, 2)).To(Succeed())
			pin.failOn[pgpio.High] = true

			_, err := g.ReadLevel()
			Expect(err).To(HaveOccurred())
		})

		It("reads normally once the pin recovers", func() {
			g := newPeriphGauge()
			Expect(g.Initialize(1, 2)).To(Succeed())

			pin.failOn[pgpio.High] = true
			_, err := g.ReadVoltage()
			Expect(err).To(HaveOccurred())

			delete(pin.failOn, pgpio.High)
			Expect(g.ReadVoltage()).To(Equal(3700))
		})
	})

	Describe("ReadLevel", func() {
		var g *battery.Gauge

		BeforeEach(func() {
			g = newGauge(relay.New(activation, false))
			Expect(g.Initialize(1, 2)).To(Succeed())
		})

		table.DescribeTable("reports the level for the sampled voltage",
			func(raw int32, expected int) {
				sense.SimulateValue(raw, nil)
				Expect(g.ReadLevel()).To(Equal(expected))
			},
			// voltage = raw * 2 + 200
			table.Entry("3700mV is half charged", int32(1750), 50),
			table.Entry("3100mV is empty", int32(1450), 0),
			table.Entry("4300mV is full", int32(2050), 100),
			table.Entry("3450mV is a quarter", int32(1625), 25),
		)

		It("propagates sampling errors", func() {
			sense.SimulateValue(0, errors.New("bus error"))
			_, err := g.ReadLevel()
			Expect(err).To(HaveOccurred())
		})

		It("fails before initialization", func() {
			_, err := newGauge(nil).ReadLevel()
			Expect(errors.Is(err, battery.ErrNotInitialized)).To(BeTrue())
		})
	})
})
