package modbusslave

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
)

type fakeIdentity struct{}

func (fakeIdentity) SlaveName() string      { return "SimplePLC" }
func (fakeIdentity) DeviceIDString() string { return "SimplePLC Soft-PLC Simulator" }
func (fakeIdentity) SlaveID() byte          { return 1 }
func (fakeIdentity) RunIndicator() byte     { return 1 }

func TestDispatchReadHoldingRegisters(t *testing.T) {
	bank := register.New(register.UniformSizes(16))
	ctx := context.Background()
	require.NoError(t, bank.WriteWord(ctx, plctypes.HoldingRegister, 0, 0x2A))

	req := sampleRequest(t, FuncReadHoldingRegisters, []byte{0x00, 0x00, 0x00, 0x01})
	reply := dispatch(ctx, bank, req, fakeIdentity{}, zap.NewNop())

	assert.Equal(t, byte(FuncReadHoldingRegisters), reply[7])
	assert.Equal(t, byte(2), reply[8])
	assert.Equal(t, []byte{0x00, 0x2A}, reply[9:11])
}

func TestDispatchReadHoldingRegistersOutOfRange(t *testing.T) {
	bank := register.New(register.UniformSizes(4))
	ctx := context.Background()

	req := sampleRequest(t, FuncReadHoldingRegisters, []byte{0x00, 0x03, 0x00, 0x02})
	reply := dispatch(ctx, bank, req, fakeIdentity{}, zap.NewNop())

	assert.Equal(t, byte(FuncReadHoldingRegisters|exceptionBit), reply[7])
	assert.Equal(t, byte(ExIllegalDataAddress), reply[8])
}

func TestDispatchWriteSingleCoil(t *testing.T) {
	bank := register.New(register.UniformSizes(16))
	ctx := context.Background()

	req := sampleRequest(t, FuncWriteSingleCoil, []byte{0x00, 0x05, 0xFF, 0x00})
	reply := dispatch(ctx, bank, req, fakeIdentity{}, zap.NewNop())

	assert.Equal(t, byte(FuncWriteSingleCoil), reply[7])
	v, err := bank.ReadBit(ctx, plctypes.Coil, 5)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestDispatchWriteMultipleRegisters(t *testing.T) {
	bank := register.New(register.UniformSizes(16))
	ctx := context.Background()

	args := []byte{0x00, 0x00, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x00, 0x0B}
	req := sampleRequest(t, FuncWriteMultipleRegisters, args)
	reply := dispatch(ctx, bank, req, fakeIdentity{}, zap.NewNop())

	assert.Equal(t, byte(FuncWriteMultipleRegisters), reply[7])
	v0, err := bank.ReadWord(ctx, plctypes.HoldingRegister, 0)
	require.NoError(t, err)
	v1, err := bank.ReadWord(ctx, plctypes.HoldingRegister, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(0x0A), v0)
	assert.Equal(t, uint16(0x0B), v1)
}

func TestDispatchUnknownFunctionIsIllegalFunction(t *testing.T) {
	bank := register.New(register.UniformSizes(4))
	ctx := context.Background()

	req := sampleRequest(t, 0x77, nil)
	reply := dispatch(ctx, bank, req, fakeIdentity{}, zap.NewNop())

	assert.Equal(t, byte(0x77|exceptionBit), reply[7])
	assert.Equal(t, byte(0x01), reply[8])
}

func TestDispatchReportSlaveID(t *testing.T) {
	bank := register.New(register.UniformSizes(4))
	ctx := context.Background()

	req := sampleRequest(t, FuncReportSlaveID, nil)
	reply := dispatch(ctx, bank, req, fakeIdentity{}, zap.NewNop())

	assert.Equal(t, byte(FuncReportSlaveID), reply[7])
	assert.Equal(t, byte(1), reply[9])
}

func TestDispatchReadDeviceIDRejectsBadSubCode(t *testing.T) {
	bank := register.New(register.UniformSizes(4))
	ctx := context.Background()

	req := sampleRequest(t, FuncReadDeviceID, []byte{0x0E, 0x02, 0x00})
	reply := dispatch(ctx, bank, req, fakeIdentity{}, zap.NewNop())

	assert.Equal(t, byte(FuncReadDeviceID|exceptionBit), reply[7])
	assert.Equal(t, byte(ExIllegalDataValue), reply[8])
}
