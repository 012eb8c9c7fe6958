package display

import (
	"fmt"
	"image"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/sweeney/t12-station/internal/status"
)

// OLED drives a 128x64 SSD1306 panel over I2C.
type OLED struct {
	bus  i2c.BusCloser
	dev  *ssd1306.Dev
	img  *image1bit.VerticalLSB
	last []string
}

// NewOLED opens the I2C bus (empty name picks the first) and the panel.
func NewOLED(busName string) (*OLED, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c %q: %w", busName, err)
	}
	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("init ssd1306: %w", err)
	}
	return &OLED{
		bus: bus,
		dev: dev,
		img: image1bit.NewVerticalLSB(dev.Bounds()),
	}, nil
}

// Render draws the screen for snap. Unchanged screens are not resent.
func (o *OLED) Render(snap status.Snapshot) error {
	lines := Lines(snap)
	if o.last != nil && equal(lines, o.last) {
		return nil
	}
	if err := o.draw(lines); err != nil {
		return err
	}
	o.last = lines
	return nil
}

// Blank clears the panel.
func (o *OLED) Blank() error {
	o.last = nil
	return o.draw(nil)
}

// Close blanks and halts the panel, then releases the bus.
func (o *OLED) Close() error {
	o.dev.Halt()
	return o.bus.Close()
}

func (o *OLED) draw(lines []string) error {
	for i := range o.img.Pix {
		o.img.Pix[i] = 0
	}
	d := font.Drawer{
		Dst:  o.img,
		Src:  &image.Uniform{C: image1bit.On},
		Face: basicfont.Face7x13,
	}
	for i, l := range lines {
		if i >= Rows {
			break
		}
		d.Dot = fixed.P(0, (i+1)*lineHeight-2)
		d.DrawString(l)
	}
	if err := o.dev.Draw(o.dev.Bounds(), o.img, image.Point{}); err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	return nil
}

const lineHeight = 13
