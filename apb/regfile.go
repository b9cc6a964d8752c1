package apb

// Words is the number of register slots addressed by an 8-bit address.
const Words = 256

// StrobeAll enables all four byte lanes.
const StrobeAll uint8 = 0xF

// RegFile is flat 32-bit storage. It has no behaviour of its own; only the
// owning Slave mutates it, and only at a tick commit.
type RegFile struct {
	w [Words]uint32
}

// Read returns the word at addr.
func (r *RegFile) Read(addr uint8) uint32 { return r.w[addr] }

func (r *RegFile) write(addr uint8, data uint32, strobe uint8) {
	r.w[addr] = MergeLanes(r.w[addr], data, strobe)
}

func (r *RegFile) clear() { r.w = [Words]uint32{} }

// MergeLanes replaces each byte lane of old whose strobe bit is set with the
// matching lane of data.
func MergeLanes(old, data uint32, strobe uint8) uint32 {
	var mask uint32
	for lane := uint(0); lane < 4; lane++ {
		if strobe&(1<<lane) != 0 {
			mask |= 0xFF << (8 * lane)
		}
	}
	return old&^mask | data&mask
}
