package hwio

func GetBit32(v uint32, n uint) bool {
	return v>>n&0x01 != 0
}

func SetBit32(v *uint32, n uint) {
	*v |= 1 << n
}

func ClearBit32(v *uint32, n uint) {
	*v &^= 1 << n
}

// Field32 extracts the width-bit field starting at bit shift.
func Field32(v uint32, shift, width uint) uint32 {
	return v >> shift & (1<<width - 1)
}

// SetField32 replaces the width-bit field starting at bit shift.
func SetField32(v *uint32, shift, width uint, field uint32) {
	mask := uint32(1<<width-1) << shift
	*v = *v&^mask | field<<shift&mask
}
