// Package irq provides the primitives a peripheral uses to latch internal
// events, mask them and fan them out to physical interrupt lines.
//
// Delivery to a line only ever happens on an actual change of the value
// driven on it: repeated identical writes never retoggle a line.
package irq

// Levels driven on a Line. A RequestLine drives 1+priority when asserted,
// so any non-zero level means asserted.
const (
	Low  uint8 = 0
	High uint8 = 1
)

// A Line is the input side of a physical interrupt line.
type Line interface {
	SetLevel(level uint8)
}

// LineFunc adapts a function to the Line interface.
type LineFunc func(level uint8)

func (f LineFunc) SetLevel(level uint8) {
	if f != nil {
		f(level)
	}
}

type detached struct{}

func (detached) SetLevel(uint8) {}

// Detached returns a Line that drops all signals.
func Detached() Line { return detached{} }
