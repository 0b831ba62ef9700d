package modbusslave

import (
	"context"
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
)

// dispatch builds a reply for req against bank. Each request's bank
// access (a whole read range, or every address of a write) happens
// under one acquisition of the bank lock, so a read reply is a
// consistent snapshot. The reply itself is built after the lock is
// released and sent by the caller outside it, so a concurrent reader
// can observe a write before its acknowledging reply has been sent.
func dispatch(ctx context.Context, bank *register.Bank, req *request, identity identityReader, logger *zap.Logger) []byte {
	switch req.function {
	case FuncReadCoils:
		return dispatchReadBits(ctx, bank, req, plctypes.Coil)
	case FuncReadDiscreteInputs:
		return dispatchReadBits(ctx, bank, req, plctypes.DiscreteInput)
	case FuncReadHoldingRegisters:
		return dispatchReadWords(ctx, bank, req, plctypes.HoldingRegister)
	case FuncReadInputRegisters:
		return dispatchReadWords(ctx, bank, req, plctypes.InputRegister)
	case FuncWriteSingleCoil:
		return dispatchWriteSingleCoil(ctx, bank, req, logger)
	case FuncWriteSingleRegister:
		return dispatchWriteSingleRegister(ctx, bank, req, logger)
	case FuncWriteMultipleCoils:
		return dispatchWriteMultipleCoils(ctx, bank, req, logger)
	case FuncWriteMultipleRegisters:
		return dispatchWriteMultipleRegisters(ctx, bank, req, logger)
	case FuncReportSlaveID:
		return encodeReportSlaveID(req, identity.SlaveID(), identity.RunIndicator(), identity.SlaveName())
	case FuncReadDeviceID:
		return dispatchReadDeviceID(req, identity)
	default:
		return encodeException(req, 0x01) // ILLEGAL_FUNCTION
	}
}

// identityReader is the minimal view of plctypes.DeviceIdentity the
// dispatcher needs; kept as an interface so frame-level code has no
// import-time dependency on the config package.
type identityReader interface {
	SlaveName() string
	DeviceIDString() string
	SlaveID() byte
	RunIndicator() byte
}

func dispatchReadDeviceID(req *request, identity identityReader) []byte {
	if len(req.args) < 3 || req.args[0] != 0x0E || req.args[1] != 0x01 {
		return encodeException(req, ExIllegalDataValue)
	}
	return encodeReadDeviceID(req, identity.DeviceIDString())
}

func dispatchReadBits(ctx context.Context, bank *register.Bank, req *request, space plctypes.Space) []byte {
	addr, qty, ok := decodeAddrQty(req)
	if !ok {
		return encodeException(req, ExIllegalDataValue)
	}

	var out []bool
	var rerr error
	err := bank.Lock(ctx, func(l *register.Locked) {
		out, rerr = l.ReadBits(space, addr, qty)
	})
	if err != nil || rerr != nil {
		return encodeException(req, ExIllegalDataAddress)
	}
	return encodeBitsReply(req, out)
}

func dispatchReadWords(ctx context.Context, bank *register.Bank, req *request, space plctypes.Space) []byte {
	addr, qty, ok := decodeAddrQty(req)
	if !ok {
		return encodeException(req, ExIllegalDataValue)
	}

	var out []uint16
	var rerr error
	err := bank.Lock(ctx, func(l *register.Locked) {
		out, rerr = l.ReadWords(space, addr, qty)
	})
	if err != nil || rerr != nil {
		return encodeException(req, ExIllegalDataAddress)
	}
	return encodeRegistersReply(req, out)
}

func dispatchWriteSingleCoil(ctx context.Context, bank *register.Bank, req *request, logger *zap.Logger) []byte {
	if len(req.args) < 4 {
		return encodeException(req, ExIllegalDataValue)
	}
	addr := int(binary.BigEndian.Uint16(req.args[0:2]))
	value := req.args[2] == 0xFF

	var werr error
	err := bank.Lock(ctx, func(l *register.Locked) {
		werr = l.WriteBit(plctypes.Coil, addr, value)
	})
	if err != nil || werr != nil {
		logger.Warn("write single coil out of range", zap.Int("addr", addr))
		return encodeException(req, ExIllegalDataAddress)
	}
	return encodeEchoReply(req, req.args[0:4])
}

func dispatchWriteSingleRegister(ctx context.Context, bank *register.Bank, req *request, logger *zap.Logger) []byte {
	if len(req.args) < 4 {
		return encodeException(req, ExIllegalDataValue)
	}
	addr := int(binary.BigEndian.Uint16(req.args[0:2]))
	value := binary.BigEndian.Uint16(req.args[2:4])

	var werr error
	err := bank.Lock(ctx, func(l *register.Locked) {
		werr = l.WriteWord(plctypes.HoldingRegister, addr, value)
	})
	if err != nil || werr != nil {
		logger.Warn("write single register out of range", zap.Int("addr", addr))
		return encodeException(req, ExIllegalDataAddress)
	}
	return encodeEchoReply(req, req.args[0:4])
}

func dispatchWriteMultipleCoils(ctx context.Context, bank *register.Bank, req *request, logger *zap.Logger) []byte {
	if len(req.args) < 5 {
		return encodeException(req, ExIllegalDataValue)
	}
	addr := int(binary.BigEndian.Uint16(req.args[0:2]))
	qty := int(binary.BigEndian.Uint16(req.args[2:4]))
	byteCount := int(req.args[4])
	if len(req.args) < 5+byteCount || byteCount != (qty+7)/8 {
		return encodeException(req, ExIllegalDataValue)
	}
	data := req.args[5 : 5+byteCount]

	bits := make([]bool, qty)
	for i := 0; i < qty; i++ {
		bits[i] = data[i/8]&(1<<uint(i%8)) != 0
	}

	var werr error
	err := bank.Lock(ctx, func(l *register.Locked) {
		for i, v := range bits {
			if werr = l.WriteBit(plctypes.Coil, addr+i, v); werr != nil {
				return
			}
		}
	})
	if err != nil || werr != nil {
		logger.Warn("write multiple coils out of range", zap.Int("addr", addr), zap.Int("qty", qty))
		return encodeException(req, ExIllegalDataAddress)
	}
	return encodeEchoReply(req, req.args[0:4])
}

func dispatchWriteMultipleRegisters(ctx context.Context, bank *register.Bank, req *request, logger *zap.Logger) []byte {
	if len(req.args) < 5 {
		return encodeException(req, ExIllegalDataValue)
	}
	addr := int(binary.BigEndian.Uint16(req.args[0:2]))
	qty := int(binary.BigEndian.Uint16(req.args[2:4]))
	byteCount := int(req.args[4])
	if len(req.args) < 5+byteCount || byteCount != qty*2 {
		return encodeException(req, ExIllegalDataValue)
	}
	data := req.args[5 : 5+byteCount]

	words := make([]uint16, qty)
	for i := 0; i < qty; i++ {
		words[i] = binary.BigEndian.Uint16(data[2*i : 2*i+2])
	}

	var werr error
	err := bank.Lock(ctx, func(l *register.Locked) {
		for i, v := range words {
			if werr = l.WriteWord(plctypes.HoldingRegister, addr+i, v); werr != nil {
				return
			}
		}
	})
	if err != nil || werr != nil {
		logger.Warn("write multiple registers out of range", zap.Int("addr", addr), zap.Int("qty", qty))
		return encodeException(req, ExIllegalDataAddress)
	}
	return encodeEchoReply(req, req.args[0:4])
}

func decodeAddrQty(req *request) (addr, qty int, ok bool) {
	if len(req.args) < 4 {
		return 0, 0, false
	}
	return int(binary.BigEndian.Uint16(req.args[0:2])), int(binary.BigEndian.Uint16(req.args[2:4])), true
}
