package diag

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/pkg/errors"
)

var ipcMagic = [14]byte{'D', 'O', 'T', 'N', 'E', 'T', '_', 'I', 'P', 'C', '_', 'V', '1', 0}

const ipcHeaderSize = 20

const (
	commandSetEventPipe byte = 0x02
	commandSetServer    byte = 0xFF

	eventPipeStopTracing     byte = 0x01
	eventPipeCollectTracing2 byte = 0x03

	serverResponseOK    byte = 0x00
	serverResponseError byte = 0xFF
)

// nettrace is the only stream format we can read
const formatNetTrace uint32 = 1

// IPCError is an error response from the runtime.
type IPCError struct {
	HResult uint32
}

func (e *IPCError) Error() string {
	switch e.HResult {
	case 0x80131384:
		return "runtime rejected request: bad encoding"
	case 0x80131385:
		return "runtime rejected request: unknown command"
	case 0x80131386:
		return "runtime rejected request: unknown magic"
	case 0x80131515:
		return "runtime rejected request: not supported"
	default:
		return fmt.Sprintf("runtime rejected request: hresult 0x%08x", e.HResult)
	}
}

type ipcMessage struct {
	commandSet byte
	commandID  byte
	payload    []byte
}

func (m ipcMessage) marshal() ([]byte, error) {
	size := ipcHeaderSize + len(m.payload)
	if size > 0xFFFF {
		return nil, errors.Errorf("ipc message too large: %d bytes", size)
	}

	buf := make([]byte, 0, size)
	buf = append(buf, ipcMagic[:]...)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(size))
	buf = append(buf, m.commandSet, m.commandID)
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	buf = append(buf, m.payload...)
	return buf, nil
}

func writeMessage(w io.Writer, m ipcMessage) error {
	buf, err := m.marshal()
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return errors.Wrap(err, "write ipc message")
}

func readMessage(r io.Reader) (ipcMessage, error) {
	var header [ipcHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return ipcMessage{}, errors.Wrap(err, "read ipc header")
	}
	if !bytes.Equal(header[:14], ipcMagic[:]) {
		return ipcMessage{}, errors.New("invalid ipc magic")
	}

	size := int(binary.LittleEndian.Uint16(header[14:16]))
	if size < ipcHeaderSize {
		return ipcMessage{}, errors.Errorf("invalid ipc message size %d", size)
	}

	m := ipcMessage{
		commandSet: header[16],
		commandID:  header[17],
		payload:    make([]byte, size-ipcHeaderSize),
	}
	if _, err := io.ReadFull(r, m.payload); err != nil {
		return ipcMessage{}, errors.Wrap(err, "read ipc payload")
	}
	return m, nil
}

// readResponse reads a server response and returns its payload when it is OK.
func readResponse(r io.Reader) ([]byte, error) {
	m, err := readMessage(r)
	if err != nil {
		return nil, err
	}
	if m.commandSet != commandSetServer {
		return nil, errors.Errorf("unexpected response command set 0x%02x", m.commandSet)
	}

	switch m.commandID {
	case serverResponseOK:
		return m.payload, nil
	case serverResponseError:
		if len(m.payload) < 4 {
			return nil, &IPCError{}
		}
		return nil, &IPCError{HResult: binary.LittleEndian.Uint32(m.payload)}
	default:
		return nil, errors.Errorf("unexpected response id 0x%02x", m.commandID)
	}
}

func readSessionID(payload []byte) (uint64, error) {
	if len(payload) < 8 {
		return 0, errors.Errorf("session id response is %d bytes", len(payload))
	}
	return binary.LittleEndian.Uint64(payload), nil
}

// appendString writes a length-prefixed, NUL-terminated UTF-16LE string.
// An empty string is sent as a zero length with no characters.
func appendString(buf []byte, s string) []byte {
	if s == "" {
		return binary.LittleEndian.AppendUint32(buf, 0)
	}
	units := utf16.Encode([]rune(s))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(units)+1))
	for _, u := range units {
		buf = binary.LittleEndian.AppendUint16(buf, u)
	}
	return binary.LittleEndian.AppendUint16(buf, 0)
}

type collectTracingRequest struct {
	bufferMB  uint32
	rundown   bool
	providers []Provider
}

func (req collectTracingRequest) message() ipcMessage {
	var p []byte
	p = binary.LittleEndian.AppendUint32(p, req.bufferMB)
	p = binary.LittleEndian.AppendUint32(p, formatNetTrace)
	if req.rundown {
		p = append(p, 1)
	} else {
		p = append(p, 0)
	}
	p = binary.LittleEndian.AppendUint32(p, uint32(len(req.providers)))
	for _, provider := range req.providers {
		p = binary.LittleEndian.AppendUint64(p, provider.Keywords)
		p = binary.LittleEndian.AppendUint32(p, uint32(provider.Level))
		p = appendString(p, provider.Name)
		p = appendString(p, provider.FilterData())
	}

	return ipcMessage{
		commandSet: commandSetEventPipe,
		commandID:  eventPipeCollectTracing2,
		payload:    p,
	}
}

func stopTracingMessage(sessionID uint64) ipcMessage {
	return ipcMessage{
		commandSet: commandSetEventPipe,
		commandID:  eventPipeStopTracing,
		payload:    binary.LittleEndian.AppendUint64(nil, sessionID),
	}
}
