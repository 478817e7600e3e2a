package exifgps

import "encoding/binary"

// reader is a bounds-checked cursor over an immutable byte buffer. Every
// accessor reports ok=false instead of panicking when the read would run
// past the end, which is how truncated input surfaces as "no location".
type reader struct {
	buf   []byte
	order binary.ByteOrder
}

func (r reader) u8(off int) (byte, bool) {
	if off < 0 || off >= len(r.buf) {
		return 0, false
	}
	return r.buf[off], true
}

func (r reader) u16(off int) (uint16, bool) {
	if off < 0 || off+2 > len(r.buf) {
		return 0, false
	}
	return r.order.Uint16(r.buf[off:]), true
}

func (r reader) u32(off int) (uint32, bool) {
	if off < 0 || off+4 > len(r.buf) {
		return 0, false
	}
	return r.order.Uint32(r.buf[off:]), true
}

// slice returns buf[off:off+n] when it is fully in range.
func (r reader) slice(off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off+n > len(r.buf) {
		return nil, false
	}
	return r.buf[off : off+n], true
}

// sub returns a reader over buf[off:end] sharing the byte order.
func (r reader) sub(off, end int) (reader, bool) {
	if off < 0 || end > len(r.buf) || off > end {
		return reader{}, false
	}
	return reader{buf: r.buf[off:end], order: r.order}, true
}
