package clock

import (
	"bbemu/emu/log"
	"bbemu/hw/hwio"
)

// Clock control register layout.
const (
	DisableReq    = 1 << 0 // software request to gate the clock
	DisableStatus = 1 << 1 // mirrors DisableReq, read-only

	PrescalerShift = 8
	PrescalerWidth = 8
)

// ResetValue is the documented reset pattern: disabled, prescaler 1.
const ResetValue = DisableReq | DisableStatus | 1<<PrescalerShift

// Control is the per-peripheral clock enable/prescaler register.
type Control struct {
	value    uint32
	onChange []func()
}

// Init sets the reset pattern.
func (c *Control) Init() {
	c.Set(ResetValue)
}

// Set stores v, forcing the disable status bit to follow the disable
// request bit.
func (c *Control) Set(v uint32) {
	if v&DisableReq != 0 {
		v |= DisableStatus
	} else {
		v &^= DisableStatus
	}
	old := c.value
	c.value = v

	log.ModClock.DebugZ("clock control").
		Hex32("old", old).
		Hex32("val", v).
		End()

	if old != v {
		for _, fn := range c.onChange {
			fn()
		}
	}
}

// Get returns the raw register value.
func (c *Control) Get() uint32 { return c.value }

func (c *Control) Enabled() bool {
	return c.value&DisableReq == 0
}

func (c *Control) Prescaler() uint8 {
	return uint8(hwio.Field32(c.value, PrescalerShift, PrescalerWidth))
}

// OnChange registers fn to be called after every write that changes the
// register value.
func (c *Control) OnChange(fn func()) {
	c.onChange = append(c.onChange, fn)
}
