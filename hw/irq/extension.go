package irq

import "bbemu/hw/hwerr"

// RequestBankExtension groups a private set of events behind a single event
// of a parent bank: the parent event is raised while any of the extension
// events is raised and enabled. It models error sub-registers.
type RequestBankExtension struct {
	Name string

	raw  uint32
	mask uint32

	parent    *RequestBank
	parentBit uint32
	delivered bool
}

func NewRequestBankExtension(name string, parent *RequestBank, bit uint) (*RequestBankExtension, error) {
	if parent == nil {
		return nil, hwerr.Configf(name, "extension without parent bank")
	}
	if bit >= MaxEvents {
		return nil, hwerr.Configf(name, "parent event %d out of range", bit)
	}
	return &RequestBankExtension{
		Name:      name,
		parent:    parent,
		parentBit: 1 << bit,
	}, nil
}

func (x *RequestBankExtension) SetMask(mask uint32) {
	x.mask = mask
	x.update()
}

func (x *RequestBankExtension) Mask() uint32 { return x.mask }

func (x *RequestBankExtension) SetRaw(events uint32) {
	x.raw |= events
	x.update()
}

func (x *RequestBankExtension) ClearRaw(events uint32) {
	x.raw &^= events
	x.update()
}

func (x *RequestBankExtension) Raw() uint32    { return x.raw }
func (x *RequestBankExtension) Status() uint32 { return x.raw & x.mask }

func (x *RequestBankExtension) update() {
	want := x.raw&x.mask != 0
	if want == x.delivered {
		return
	}
	x.delivered = want
	if want {
		x.parent.SetRaw(x.parentBit)
	} else {
		x.parent.ClearRaw(x.parentBit)
	}
}
