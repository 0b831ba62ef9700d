package modbusslave

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRequest(t *testing.T, function byte, args []byte) *request {
	t.Helper()
	raw := []byte{0x00, 0x07, 0x00, 0x00, 0x00, 0x00, 0x01, function}
	raw = append(raw, args...)
	req, err := decodeRequest(raw)
	require.NoError(t, err)
	return req
}

func TestEncodeReportSlaveID(t *testing.T) {
	req := sampleRequest(t, FuncReportSlaveID, nil)
	buf := encodeReportSlaveID(req, 1, 1, "SimplePLC")

	// LEN field, bytes 4..5, must read 0x000E per the worked example.
	assert.Equal(t, []byte{0x00, 0x0E}, buf[4:6])
	assert.Equal(t, []byte{
		0x01, 0x01, 0x53, 0x69, 0x6d, 0x70, 0x6c, 0x65, 0x50, 0x4c, 0x43,
	}, buf[9:20])
}

func TestEncodeReportSlaveIDTruncatesName(t *testing.T) {
	req := sampleRequest(t, FuncReportSlaveID, nil)
	longName := make([]byte, 300)
	for i := range longName {
		longName[i] = 'A'
	}
	buf := encodeReportSlaveID(req, 1, 1, string(longName))

	payloadLen := int(buf[7+1])
	assert.Equal(t, 2+240, payloadLen)
}

func TestEncodeReadDeviceID(t *testing.T) {
	req := sampleRequest(t, FuncReadDeviceID, []byte{0x0E, 0x01, 0x00})
	buf := encodeReadDeviceID(req, "SimplePLC")

	pdu := buf[7:]
	assert.Equal(t, byte(FuncReadDeviceID), pdu[0])
	assert.Equal(t, byte(0x0E), pdu[1])
	assert.Equal(t, byte(0x01), pdu[2])
	assert.Equal(t, byte(0x01), pdu[3])
	assert.Equal(t, byte(0x00), pdu[4])
	assert.Equal(t, byte(0x00), pdu[5])
	assert.Equal(t, byte(0x01), pdu[6])
	assert.Equal(t, byte(0x00), pdu[7])
	assert.Equal(t, byte(len("SimplePLC")), pdu[8])
	assert.Equal(t, "SimplePLC", string(pdu[9:]))

	wantLen := uint16((16 + len("SimplePLC")) - 6)
	gotLen := uint16(buf[4])<<8 | uint16(buf[5])
	assert.Equal(t, wantLen, gotLen)
}

func TestEncodeBitsReplyPacksLSBFirst(t *testing.T) {
	req := sampleRequest(t, FuncReadCoils, nil)
	buf := encodeBitsReply(req, []bool{true, false, true, false, false, false, false, false, true})

	pdu := buf[7:]
	assert.Equal(t, byte(FuncReadCoils), pdu[0])
	assert.Equal(t, byte(2), pdu[1]) // 9 bits -> 2 bytes
	assert.Equal(t, byte(0x05), pdu[2])
	assert.Equal(t, byte(0x01), pdu[3])
}

func TestEncodeRegistersReplyBigEndian(t *testing.T) {
	req := sampleRequest(t, FuncReadHoldingRegisters, nil)
	buf := encodeRegistersReply(req, []uint16{0x1234, 0xABCD})

	pdu := buf[7:]
	assert.Equal(t, byte(4), pdu[1])
	assert.Equal(t, []byte{0x12, 0x34, 0xAB, 0xCD}, pdu[2:6])
}

func TestEncodeException(t *testing.T) {
	req := sampleRequest(t, FuncReadCoils, nil)
	buf := encodeException(req, ExIllegalDataAddress)

	pdu := buf[7:]
	assert.Equal(t, byte(FuncReadCoils|exceptionBit), pdu[0])
	assert.Equal(t, byte(ExIllegalDataAddress), pdu[1])
}

func TestDecodeRequestRejectsShortFrame(t *testing.T) {
	_, err := decodeRequest([]byte{0x00, 0x01})
	assert.Error(t, err)
}

func TestDecodeRequestRejectsNonZeroProtocolID(t *testing.T) {
	_, err := decodeRequest([]byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x01, 0x03})
	assert.Error(t, err)
}
