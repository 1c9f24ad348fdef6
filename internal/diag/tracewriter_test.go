package diag

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// traceWriter produces nettrace streams the way the runtime writes them.
type traceWriter struct {
	buf bytes.Buffer
}

func newTraceWriter(pointerSize int32) *traceWriter {
	w := &traceWriter{}
	w.buf.WriteString(nettraceMagic)
	w.i32(int32(len(serializationHeader)))
	w.buf.WriteString(serializationHeader)

	w.beginObject("Trace", 4)
	w.buf.Write(make([]byte, 16))
	w.i64(0)
	w.i64(1_000_000_000)
	w.i32(pointerSize)
	w.i32(4242)
	w.i32(8)
	w.i32(1_000_000)
	w.buf.WriteByte(tagEndObject)
	return w
}

func (w *traceWriter) i32(v int32) {
	w.buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(v)))
}

func (w *traceWriter) i64(v int64) {
	w.buf.Write(binary.LittleEndian.AppendUint64(nil, uint64(v)))
}

func (w *traceWriter) beginObject(name string, version int32) {
	w.buf.WriteByte(tagBeginPrivateObject)
	w.buf.WriteByte(tagBeginPrivateObject)
	w.buf.WriteByte(tagNullReference)
	w.i32(version)
	w.i32(version)
	w.i32(int32(len(name)))
	w.buf.WriteString(name)
	w.buf.WriteByte(tagEndObject)
}

func (w *traceWriter) block(name string, body []byte) {
	w.beginObject(name, 2)
	w.i32(int32(len(body)))
	for w.buf.Len()%4 != 0 {
		w.buf.WriteByte(0)
	}
	w.buf.Write(body)
	w.buf.WriteByte(tagEndObject)
}

func (w *traceWriter) end() {
	w.buf.WriteByte(tagNullReference)
}

func (w *traceWriter) Bytes() []byte {
	return w.buf.Bytes()
}

type testEvent struct {
	metadataID uint32
	payload    []byte
}

func blockHeader(compressed bool) []byte {
	h := binary.LittleEndian.AppendUint16(nil, 20)
	if compressed {
		h = binary.LittleEndian.AppendUint16(h, blockFlagCompressedHeaders)
	} else {
		h = binary.LittleEndian.AppendUint16(h, 0)
	}
	return append(h, make([]byte, 16)...)
}

// compressedBlock encodes events with minimal compressed headers.
func compressedBlock(events ...testEvent) []byte {
	b := blockHeader(true)
	for _, ev := range events {
		b = append(b, flagMetadataID|flagCaptureThreadAndSeq|flagDataLength)
		b = binary.AppendUvarint(b, uint64(ev.metadataID))
		b = binary.AppendUvarint(b, 0) // sequence delta
		b = binary.AppendUvarint(b, 7) // capture thread
		b = binary.AppendUvarint(b, 1) // processor
		b = binary.AppendUvarint(b, 100)
		b = binary.AppendUvarint(b, uint64(len(ev.payload)))
		b = append(b, ev.payload...)
	}
	return b
}

func uncompressedBlock(events ...testEvent) []byte {
	b := blockHeader(false)
	for i, ev := range events {
		b = binary.LittleEndian.AppendUint32(b, uint32(uncompressedEventHeaderLen-4+len(ev.payload)))
		b = binary.LittleEndian.AppendUint32(b, ev.metadataID)
		b = binary.LittleEndian.AppendUint32(b, uint32(i+1))
		b = binary.LittleEndian.AppendUint64(b, 7)
		b = binary.LittleEndian.AppendUint64(b, 7)
		b = binary.LittleEndian.AppendUint32(b, 0)
		b = binary.LittleEndian.AppendUint32(b, 0)
		b = binary.LittleEndian.AppendUint64(b, uint64(1000*(i+1)))
		b = append(b, make([]byte, 32)...)
		b = binary.LittleEndian.AppendUint32(b, uint32(len(ev.payload)))
		b = append(b, ev.payload...)
		for len(b)%4 != 0 {
			b = append(b, 0)
		}
	}
	return b
}

func appendUTF16Z(b []byte, s string) []byte {
	for _, u := range utf16.Encode([]rune(s)) {
		b = binary.LittleEndian.AppendUint16(b, u)
	}
	return binary.LittleEndian.AppendUint16(b, 0)
}

func metadataPayload(id uint32, provider string, eventID uint32, name string, version uint32) []byte {
	b := binary.LittleEndian.AppendUint32(nil, id)
	b = appendUTF16Z(b, provider)
	b = binary.LittleEndian.AppendUint32(b, eventID)
	b = appendUTF16Z(b, name)
	b = binary.LittleEndian.AppendUint64(b, KeywordGC)
	b = binary.LittleEndian.AppendUint32(b, version)
	b = binary.LittleEndian.AppendUint32(b, uint32(LevelInformational))
	return binary.LittleEndian.AppendUint32(b, 0) // field count
}

// gcMetadata registers GCStart as 1, the two heap history events as 2 and 3,
// and an unrelated provider's event as 4.
func gcMetadata() []byte {
	return compressedBlock(
		testEvent{0, metadataPayload(1, RuntimeProvider, 1, "GCStart", 2)},
		testEvent{0, metadataPayload(2, RuntimeProvider, 204, "GCPerHeapHistory", 3)},
		testEvent{0, metadataPayload(3, RuntimeProvider, 205, "GCGlobalHeapHistory", 2)},
		testEvent{0, metadataPayload(4, "Microsoft-DotNETCore-SampleProfiler", 1, "ThreadSample", 0)},
	)
}
