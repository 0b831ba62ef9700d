// Package modbusslave implements the Modbus/TCP slave front-end (C3):
// connection multiplexing, function-code dispatch against the register
// bank, and the custom 0x11/0x2B identification handlers (spec.md §4.3).
package modbusslave

import (
	"encoding/binary"
	"fmt"
)

// Function codes serviced by the slave, per spec.md §4.3.
const (
	FuncReadCoils              = 0x01
	FuncReadDiscreteInputs     = 0x02
	FuncReadHoldingRegisters   = 0x03
	FuncReadInputRegisters     = 0x04
	FuncWriteSingleCoil        = 0x05
	FuncWriteSingleRegister    = 0x06
	FuncWriteMultipleCoils     = 0x0F
	FuncWriteMultipleRegisters = 0x10
	FuncReportSlaveID          = 0x11
	FuncReadDeviceID           = 0x2B

	exceptionBit = 0x80

	// ExIllegalDataAddress is the Modbus exception code for
	// out-of-range addresses on reads and writes.
	ExIllegalDataAddress = 0x02
	// ExIllegalDataValue is returned when a request's byte/field
	// counts are internally inconsistent.
	ExIllegalDataValue = 0x03

	maxADU = 260
)

// mbapHeader is the 7-byte Modbus Application Protocol header
// prefixing every Modbus/TCP ADU.
type mbapHeader struct {
	TransactionID uint16
	ProtocolID    uint16
	Length        uint16 // bytes following this field: UnitID + PDU
	UnitID        byte
}

// request is a decoded incoming ADU: header plus function code and
// the raw argument bytes that follow it.
type request struct {
	header   mbapHeader
	function byte
	args     []byte
	raw      []byte // the full received buffer, for the hand-assembled handlers
}

func decodeRequest(buf []byte) (*request, error) {
	if len(buf) < 8 {
		return nil, fmt.Errorf("modbus: frame too short: %d bytes", len(buf))
	}
	h := mbapHeader{
		TransactionID: binary.BigEndian.Uint16(buf[0:2]),
		ProtocolID:    binary.BigEndian.Uint16(buf[2:4]),
		Length:        binary.BigEndian.Uint16(buf[4:6]),
		UnitID:        buf[6],
	}
	if h.ProtocolID != 0x0000 {
		return nil, fmt.Errorf("modbus: invalid protocol id 0x%04x", h.ProtocolID)
	}
	req := &request{header: h, function: buf[7], raw: buf}
	if len(buf) > 8 {
		req.args = buf[8:]
	}
	return req, nil
}

// replyHeader copies TID/PID from the request and fills in length,
// matching the "bytes 0..5: copy of request header" convention used
// by every handler in this package, including the hand-assembled
// 0x11/0x2B ones.
func replyHeader(req *request, pduLen int) []byte {
	buf := make([]byte, 7+pduLen)
	copy(buf[0:4], req.raw[0:4])
	binary.BigEndian.PutUint16(buf[4:6], uint16(1+pduLen)) // UnitID + PDU
	buf[6] = req.header.UnitID
	return buf
}

// encodeBitsReply builds a standard FC 0x01/0x02 read reply: byte
// count followed by LSB-first packed bits, grounded on the bit-packing
// technique in rolfl-modbus's codec.go (dataBuilder.bits), rewritten
// here since that type is unexported and tied to a competing server
// framework.
func encodeBitsReply(req *request, bits []bool) []byte {
	byteCount := (len(bits) + 7) / 8
	pdu := make([]byte, 2+byteCount)
	pdu[0] = req.function
	pdu[1] = byte(byteCount)
	for i, v := range bits {
		if !v {
			continue
		}
		pdu[2+i/8] |= 1 << uint(i%8)
	}
	buf := replyHeader(req, len(pdu))
	copy(buf[7:], pdu)
	return buf
}

// encodeRegistersReply builds a standard FC 0x03/0x04 read reply: byte
// count followed by big-endian u16 words.
func encodeRegistersReply(req *request, words []uint16) []byte {
	pdu := make([]byte, 2+2*len(words))
	pdu[0] = req.function
	pdu[1] = byte(2 * len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(pdu[2+2*i:4+2*i], w)
	}
	buf := replyHeader(req, len(pdu))
	copy(buf[7:], pdu)
	return buf
}

// encodeEchoReply builds the FC 0x05/0x06/0x0F/0x10 success reply,
// which echoes the address/quantity fields of the request.
func encodeEchoReply(req *request, echoed []byte) []byte {
	pdu := make([]byte, 1+len(echoed))
	pdu[0] = req.function
	copy(pdu[1:], echoed)
	buf := replyHeader(req, len(pdu))
	copy(buf[7:], pdu)
	return buf
}

// encodeException builds a Modbus exception response: function code
// with its high bit set, followed by the exception code.
func encodeException(req *request, code byte) []byte {
	pdu := []byte{req.function | exceptionBit, code}
	buf := replyHeader(req, len(pdu))
	copy(buf[7:], pdu)
	return buf
}

// encodeReportSlaveID hand-assembles the custom 0x11 reply per
// spec.md §4.3's literal byte layout.
func encodeReportSlaveID(req *request, slaveID, runIndicator byte, slaveName string) []byte {
	name := truncate(slaveName, 240)
	payloadLen := 2 + len(name)

	pdu := make([]byte, 2+payloadLen)
	pdu[0] = FuncReportSlaveID
	pdu[1] = byte(payloadLen)
	pdu[2] = slaveID
	pdu[3] = runIndicator
	copy(pdu[4:], name)

	buf := replyHeader(req, len(pdu))
	copy(buf[7:], pdu)
	return buf
}

// encodeReadDeviceID hand-assembles the custom 0x2B/0x0E reply per
// spec.md §4.3's literal byte layout (basic device identification,
// single VendorName object, no more-follows).
func encodeReadDeviceID(req *request, deviceIDString string) []byte {
	name := truncate(deviceIDString, 235)

	pdu := make([]byte, 8+1+len(name))
	pdu[0] = FuncReadDeviceID
	pdu[1] = 0x0E // MEI type
	pdu[2] = 0x01 // ReadDevIdCode = basic
	pdu[3] = 0x01 // conformity level
	pdu[4] = 0x00 // more-follows = false
	pdu[5] = 0x00 // next object id
	pdu[6] = 0x01 // number of objects
	pdu[7] = 0x00 // object id = VendorName
	pdu[8] = byte(len(name))
	copy(pdu[9:], name)

	buf := replyHeader(req, len(pdu))
	copy(buf[7:], pdu)
	return buf
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
