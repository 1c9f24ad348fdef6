package diag

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/pkg/errors"

	"github.com/mabhi256/dngc/internal/gcevent"
)

const (
	nettraceMagic       = "Nettrace"
	serializationHeader = "!FastSerialization.1"
)

// FastSerialization object tags
const (
	tagNullReference      byte = 1
	tagBeginPrivateObject byte = 5
	tagEndObject          byte = 6
)

const (
	blockFlagCompressedHeaders = 0x1

	maxBlockSize = 64 << 20
)

// Compressed event header flags
const (
	flagMetadataID             = 0x01
	flagCaptureThreadAndSeq    = 0x02
	flagThreadID               = 0x04
	flagStackID                = 0x08
	flagActivityID             = 0x10
	flagRelatedActivityID      = 0x20
	flagSorted                 = 0x40
	flagDataLength             = 0x80
	uncompressedEventHeaderLen = 80
)

var errMalformedTrace = errors.New("malformed nettrace stream")

// TraceHeader is the Trace object that opens every nettrace stream.
type TraceHeader struct {
	SyncTimeQPC     int64
	QPCFrequency    int64
	PointerSize     int
	ProcessID       int
	NumProcessors   int
	SamplingRateNs  int
	ExpectedVersion int32
}

type eventMetadata struct {
	provider string
	eventID  uint32
	name     string
	version  uint32
}

// streamReader reads little-endian primitives and tracks the stream position,
// which nettrace uses for block alignment. Any EOF is unexpected here: only a
// null object tag ends a trace cleanly.
type streamReader struct {
	reader    *bufio.Reader
	bytesRead int64
}

func (sr *streamReader) readNBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(sr.reader, buf)
	sr.bytesRead += int64(read)
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	return buf, err
}

func (sr *streamReader) readU1() (byte, error) {
	b, err := sr.reader.ReadByte()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	sr.bytesRead++
	return b, nil
}

func (sr *streamReader) readI4() (int32, error) {
	buf, err := sr.readNBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(buf)), nil
}

func (sr *streamReader) readI8() (int64, error) {
	buf, err := sr.readNBytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(buf)), nil
}

func (sr *streamReader) expectTag(want byte) error {
	tag, err := sr.readU1()
	if err != nil {
		return err
	}
	if tag != want {
		return errors.Wrapf(errMalformedTrace, "tag %d at offset %d, expected %d", tag, sr.bytesRead-1, want)
	}
	return nil
}

func (sr *streamReader) alignTo4() error {
	if pad := sr.bytesRead % 4; pad != 0 {
		_, err := sr.readNBytes(int(4 - pad))
		return err
	}
	return nil
}

// traceReader turns a nettrace stream into runtime events.
type traceReader struct {
	sr       *streamReader
	started  bool
	header   TraceHeader
	metadata map[uint32]eventMetadata
	pending  []gcevent.RawEvent
}

func newTraceReader(r io.Reader) *traceReader {
	return &traceReader{
		sr:       &streamReader{reader: bufio.NewReaderSize(r, 64<<10)},
		metadata: make(map[uint32]eventMetadata),
	}
}

func (tr *traceReader) Header() TraceHeader {
	return tr.header
}

// Next returns the next runtime provider event. It returns io.EOF once the
// stream's end-of-trace marker has been read.
func (tr *traceReader) Next() (gcevent.RawEvent, error) {
	if !tr.started {
		if err := tr.readPreamble(); err != nil {
			return gcevent.RawEvent{}, err
		}
		tr.started = true
	}

	for len(tr.pending) == 0 {
		if err := tr.readObject(); err != nil {
			return gcevent.RawEvent{}, err
		}
	}

	ev := tr.pending[0]
	tr.pending = tr.pending[1:]
	return ev, nil
}

func (tr *traceReader) readPreamble() error {
	magic, err := tr.sr.readNBytes(len(nettraceMagic))
	if err != nil {
		return errors.Wrap(err, "read nettrace magic")
	}
	if string(magic) != nettraceMagic {
		return errors.Wrapf(errMalformedTrace, "magic %q", magic)
	}

	n, err := tr.sr.readI4()
	if err != nil {
		return errors.Wrap(err, "read serialization header")
	}
	if int(n) != len(serializationHeader) {
		return errors.Wrapf(errMalformedTrace, "serialization header length %d", n)
	}
	sh, err := tr.sr.readNBytes(int(n))
	if err != nil {
		return errors.Wrap(err, "read serialization header")
	}
	if string(sh) != serializationHeader {
		return errors.Wrapf(errMalformedTrace, "serialization header %q", sh)
	}

	name, version, err := tr.readObjectStart()
	if err != nil {
		return errors.Wrap(err, "read trace object")
	}
	if name != "Trace" {
		return errors.Wrapf(errMalformedTrace, "first object is %q", name)
	}
	tr.header.ExpectedVersion = version
	if err := tr.readTraceHeader(); err != nil {
		return errors.Wrap(err, "read trace object")
	}
	return tr.sr.expectTag(tagEndObject)
}

// readObjectStart consumes the begin tag and type descriptor of the next object.
// A null reference in place of an object is the end of the trace.
func (tr *traceReader) readObjectStart() (string, int32, error) {
	tag, err := tr.sr.readU1()
	if err != nil {
		return "", 0, err
	}
	if tag == tagNullReference {
		return "", 0, io.EOF
	}
	if tag != tagBeginPrivateObject {
		return "", 0, errors.Wrapf(errMalformedTrace, "object tag %d", tag)
	}

	if err := tr.sr.expectTag(tagBeginPrivateObject); err != nil {
		return "", 0, err
	}
	if err := tr.sr.expectTag(tagNullReference); err != nil {
		return "", 0, err
	}
	version, err := tr.sr.readI4()
	if err != nil {
		return "", 0, err
	}
	if _, err := tr.sr.readI4(); err != nil { // minimum reader version
		return "", 0, err
	}
	nameLen, err := tr.sr.readI4()
	if err != nil {
		return "", 0, err
	}
	if nameLen < 0 || nameLen > 256 {
		return "", 0, errors.Wrapf(errMalformedTrace, "type name length %d", nameLen)
	}
	name, err := tr.sr.readNBytes(int(nameLen))
	if err != nil {
		return "", 0, err
	}
	if err := tr.sr.expectTag(tagEndObject); err != nil {
		return "", 0, err
	}
	return string(name), version, nil
}

func (tr *traceReader) readTraceHeader() error {
	// SYSTEMTIME of the session start, unused
	if _, err := tr.sr.readNBytes(16); err != nil {
		return err
	}

	var err error
	if tr.header.SyncTimeQPC, err = tr.sr.readI8(); err != nil {
		return err
	}
	if tr.header.QPCFrequency, err = tr.sr.readI8(); err != nil {
		return err
	}

	ints := []*int{&tr.header.PointerSize, &tr.header.ProcessID, &tr.header.NumProcessors, &tr.header.SamplingRateNs}
	for _, dst := range ints {
		v, err := tr.sr.readI4()
		if err != nil {
			return err
		}
		*dst = int(v)
	}

	if tr.header.PointerSize != 4 && tr.header.PointerSize != 8 {
		return errors.Wrapf(errMalformedTrace, "pointer size %d", tr.header.PointerSize)
	}
	return nil
}

func (tr *traceReader) readObject() error {
	name, _, err := tr.readObjectStart()
	if err != nil {
		return err
	}

	block, err := tr.readBlock()
	if err != nil {
		return errors.Wrapf(err, "read %s", name)
	}

	switch name {
	case "EventBlock":
		err = tr.parseEvents(block, false)
	case "MetadataBlock":
		err = tr.parseEvents(block, true)
	case "StackBlock", "SPBlock":
		// stacks and sequence points carry nothing we decode
	default:
		err = errors.Wrapf(errMalformedTrace, "unknown object %q", name)
	}
	if err != nil {
		return errors.Wrapf(err, "parse %s", name)
	}

	return tr.sr.expectTag(tagEndObject)
}

func (tr *traceReader) readBlock() ([]byte, error) {
	size, err := tr.sr.readI4()
	if err != nil {
		return nil, err
	}
	if size < 0 || size > maxBlockSize {
		return nil, errors.Wrapf(errMalformedTrace, "block size %d", size)
	}
	if err := tr.sr.alignTo4(); err != nil {
		return nil, err
	}
	return tr.sr.readNBytes(int(size))
}

// eventHeader keeps the fields that compressed headers carry over between events.
type eventHeader struct {
	metadataID    uint32
	sequence      uint32
	threadID      uint64
	captureThread uint64
	procNumber    uint32
	stackID       uint32
	timestamp     int64
	payloadSize   uint32
}

type blockCursor struct {
	b   []byte
	off int
	err error
}

func (c *blockCursor) fail() {
	if c.err == nil {
		c.err = errors.Wrapf(errMalformedTrace, "truncated event at block offset %d", c.off)
	}
}

func (c *blockCursor) take(n int) []byte {
	if c.err != nil || n < 0 || len(c.b)-c.off < n {
		c.fail()
		return nil
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v
}

func (c *blockCursor) u8() byte {
	if v := c.take(1); v != nil {
		return v[0]
	}
	return 0
}

func (c *blockCursor) u16() uint16 {
	if v := c.take(2); v != nil {
		return binary.LittleEndian.Uint16(v)
	}
	return 0
}

func (c *blockCursor) u32() uint32 {
	if v := c.take(4); v != nil {
		return binary.LittleEndian.Uint32(v)
	}
	return 0
}

func (c *blockCursor) u64() uint64 {
	if v := c.take(8); v != nil {
		return binary.LittleEndian.Uint64(v)
	}
	return 0
}

func (c *blockCursor) uvarint() uint64 {
	if c.err != nil {
		return 0
	}
	v, n := binary.Uvarint(c.b[c.off:])
	if n <= 0 {
		c.fail()
		return 0
	}
	c.off += n
	return v
}

func (tr *traceReader) parseEvents(block []byte, isMetadata bool) error {
	c := &blockCursor{b: block}
	headerSize := int(c.u16())
	flags := c.u16()
	if c.err != nil || headerSize < 4 || headerSize > len(block) {
		return errors.Wrapf(errMalformedTrace, "block header size %d", headerSize)
	}
	c.off = headerSize
	compressed := flags&blockFlagCompressedHeaders != 0

	var h eventHeader
	for c.off < len(block) {
		if compressed {
			tr.readCompressedHeader(c, &h)
		} else {
			tr.readUncompressedHeader(c, &h)
		}
		payload := c.take(int(h.payloadSize))
		if c.err != nil {
			return c.err
		}
		if !compressed {
			if pad := c.off % 4; pad != 0 {
				c.off = min(len(block), c.off+4-pad)
			}
		}

		if isMetadata {
			if err := tr.registerMetadata(payload); err != nil {
				return err
			}
			continue
		}
		tr.emit(h, payload)
	}
	return nil
}

func (tr *traceReader) readCompressedHeader(c *blockCursor, h *eventHeader) {
	flags := c.u8()
	if flags&flagMetadataID != 0 {
		h.metadataID = uint32(c.uvarint())
	}
	if flags&flagCaptureThreadAndSeq != 0 {
		h.sequence += uint32(c.uvarint()) + 1
		h.captureThread = c.uvarint()
		h.procNumber = uint32(c.uvarint())
	} else if h.metadataID != 0 {
		h.sequence++
	}
	if flags&flagThreadID != 0 {
		h.threadID = c.uvarint()
	}
	if flags&flagStackID != 0 {
		h.stackID = uint32(c.uvarint())
	}
	h.timestamp += int64(c.uvarint())
	if flags&flagActivityID != 0 {
		c.take(16)
	}
	if flags&flagRelatedActivityID != 0 {
		c.take(16)
	}
	if flags&flagDataLength != 0 {
		h.payloadSize = uint32(c.uvarint())
	}
}

func (tr *traceReader) readUncompressedHeader(c *blockCursor, h *eventHeader) {
	start := c.off
	c.u32() // event size
	h.metadataID = c.u32() &^ 0x80000000
	h.sequence = c.u32()
	h.threadID = c.u64()
	h.captureThread = c.u64()
	h.procNumber = c.u32()
	h.stackID = c.u32()
	h.timestamp = int64(c.u64())
	c.take(32) // activity and related activity ids
	h.payloadSize = c.u32()
	if c.err == nil && c.off-start != uncompressedEventHeaderLen {
		c.fail()
	}
}

func (tr *traceReader) registerMetadata(payload []byte) error {
	c := &blockCursor{b: payload}
	id := c.u32()
	provider := readUTF16(c)
	eventID := c.u32()
	name := readUTF16(c)
	c.u64() // keywords
	version := c.u32()
	if c.err != nil {
		return errors.Wrap(c.err, "metadata event")
	}

	tr.metadata[id] = eventMetadata{
		provider: provider,
		eventID:  eventID,
		name:     name,
		version:  version,
	}
	return nil
}

func (tr *traceReader) emit(h eventHeader, payload []byte) {
	md, ok := tr.metadata[h.metadataID]
	if !ok || !strings.EqualFold(md.provider, RuntimeProvider) {
		return
	}

	tr.pending = append(tr.pending, gcevent.RawEvent{
		Kind:        gcevent.Kind(md.eventID),
		Version:     uint8(md.version),
		PointerSize: tr.header.PointerSize,
		Timestamp:   h.timestamp,
		Payload:     bytes.Clone(payload),
	})
}

// readUTF16 reads a NUL-terminated UTF-16LE string.
func readUTF16(c *blockCursor) string {
	var units []uint16
	for {
		u := c.u16()
		if c.err != nil || u == 0 {
			break
		}
		units = append(units, u)
	}
	return string(utf16.Decode(units))
}
