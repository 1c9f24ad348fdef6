package diag

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIPCMessageRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeMessage(&buf, stopTracingMessage(99)))
	assert.Equal(t, ipcHeaderSize+8, buf.Len())
	assert.Equal(t, "DOTNET_IPC_V1\x00", buf.String()[:14])

	m, err := readMessage(&buf)
	require.NoError(t, err)
	assert.Equal(t, commandSetEventPipe, m.commandSet)
	assert.Equal(t, eventPipeStopTracing, m.commandID)
	assert.Equal(t, uint64(99), binary.LittleEndian.Uint64(m.payload))
}

func TestCollectTracingPayload(t *testing.T) {
	req := collectTracingRequest{bufferMB: 256, providers: HeapCollectProviders(3)}
	m := req.message()
	assert.Equal(t, eventPipeCollectTracing2, m.commandID)

	p := m.payload
	assert.Equal(t, uint32(256), binary.LittleEndian.Uint32(p[0:]))
	assert.Equal(t, formatNetTrace, binary.LittleEndian.Uint32(p[4:]))
	assert.Equal(t, byte(0), p[8], "rundown disabled")
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(p[9:]))
	assert.Equal(t, KeywordGCHeapCollect, binary.LittleEndian.Uint64(p[13:]))
	assert.Equal(t, uint32(LevelInformational), binary.LittleEndian.Uint32(p[21:]))

	nameLen := binary.LittleEndian.Uint32(p[25:])
	assert.Equal(t, uint32(len(RuntimeProvider)+1), nameLen)

	filterOff := 29 + int(nameLen)*2
	assert.Equal(t, uint32(len("Id=3")+1), binary.LittleEndian.Uint32(p[filterOff:]))
	assert.Len(t, p, filterOff+4+(len("Id=3")+1)*2)
}

func TestAppendStringEmpty(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0}, appendString(nil, ""))
	assert.Equal(t, []byte{2, 0, 0, 0, 'a', 0, 0, 0}, appendString(nil, "a"))
}

func TestReadResponse(t *testing.T) {
	ok := ipcMessage{commandSet: commandSetServer, commandID: serverResponseOK, payload: binary.LittleEndian.AppendUint64(nil, 7)}
	fail := ipcMessage{commandSet: commandSetServer, commandID: serverResponseError, payload: binary.LittleEndian.AppendUint32(nil, 0x80131385)}

	var buf bytes.Buffer
	require.NoError(t, writeMessage(&buf, ok))
	payload, err := readResponse(&buf)
	require.NoError(t, err)
	id, err := readSessionID(payload)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)

	buf.Reset()
	require.NoError(t, writeMessage(&buf, fail))
	_, err = readResponse(&buf)
	var ipcErr *IPCError
	require.ErrorAs(t, err, &ipcErr)
	assert.Equal(t, uint32(0x80131385), ipcErr.HResult)
	assert.Contains(t, err.Error(), "unknown command")
}

func TestReadMessageBadMagic(t *testing.T) {
	_, err := readMessage(bytes.NewReader(make([]byte, ipcHeaderSize)))
	assert.ErrorContains(t, err, "invalid ipc magic")
}
