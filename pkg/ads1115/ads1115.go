package ads1115

import (
	"fmt"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/experimental/conn/analog"
	"periph.io/x/periph/experimental/devices/ads1x15"
)

//DefaultFullScale the channel range used when none is configured
const DefaultFullScale = 4096 * physic.MilliVolt

var channels = []ads1x15.Channel{
	ads1x15.Channel0,
	ads1x15.Channel1,
	ads1x15.Channel2,
	ads1x15.Channel3,
}

//Input a battery sense input on one channel of an ADC. The current
//implementation assumes that the device uses its default I2C address, 0x48.
type Input struct {
	pin analog.PinADC
}

//New wrap an already opened periph.io ADC pin
func New(pin analog.PinADC) *Input {
	return &Input{
		pin: pin,
	}
}

//Open open a single-ended ADS1115 channel (AIN0-AIN3) on the bus, sampling up to fullScale
func Open(bus i2c.Bus, channel int, fullScale physic.ElectricPotential) (*Input, error) {
	if channel < 0 || channel >= len(channels) {
		return nil, fmt.Errorf("ADS1115 channel %d out of range 0-3", channel)
	}
	if fullScale <= 0 {
		fullScale = DefaultFullScale
	}

	ads, err := ads1x15.NewADS1115(bus, &ads1x15.DefaultOpts)
	if err != nil {
		return nil, fmt.Errorf("failed initializing ADS1115 device: %w", err)
	}

	pin, err := ads.PinForChannel(channels[channel], fullScale, 1*physic.Hertz, ads1x15.SaveEnergy)
	if err != nil {
		return nil, fmt.Errorf("failed opening ADS1115 channel %d: %w", channel, err)
	}

	return New(pin), nil
}

//Input the converter channel is always an input, nothing to configure
func (a *Input) Input() {}

//Sample take one reading and return the raw conversion count
func (a *Input) Sample() (int32, error) {
	sample, err := a.pin.Read()
	if err != nil {
		return 0, fmt.Errorf("failed reading ADS1115 channel: %w", err)
	}
	return sample.Raw, nil
}

//Halt release the channel
func (a *Input) Halt() error {
	return a.pin.Halt()
}
