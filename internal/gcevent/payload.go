package gcevent

import (
	"encoding/binary"
	"io"
)

// payloadReader walks a little-endian event payload. The first short read is
// sticky: later reads return zero and err keeps io.ErrUnexpectedEOF.
type payloadReader struct {
	buf     []byte
	off     int
	ptrSize int
	err     error
}

func newPayloadReader(ev RawEvent) *payloadReader {
	ptrSize := ev.PointerSize
	if ptrSize != 4 {
		ptrSize = 8
	}
	return &payloadReader{buf: ev.Payload, ptrSize: ptrSize}
}

func (r *payloadReader) remaining() int {
	return len(r.buf) - r.off
}

func (r *payloadReader) next(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.remaining() < n {
		r.err = io.ErrUnexpectedEOF
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *payloadReader) u16() uint16 {
	b := r.next(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *payloadReader) u32() uint32 {
	b := r.next(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *payloadReader) u64() uint64 {
	b := r.next(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

// pointer reads a native pointer-sized value.
func (r *payloadReader) pointer() uint64 {
	if r.ptrSize == 4 {
		return uint64(r.u32())
	}
	return r.u64()
}

func (r *payloadReader) skip(n int) {
	r.next(n)
}
