package opcuaserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
)

func TestWriteTagFromClientCoil(t *testing.T) {
	bank := register.New(register.UniformSizes(8))
	s := &Server{bank: bank}
	tag := plctypes.Tag{Name: "Conveyor1_Running", Address: 0, Kind: plctypes.Coil}

	require.NoError(t, s.writeTagFromClient(context.Background(), tag, true))
	v, err := bank.ReadBit(context.Background(), plctypes.Coil, 0)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestWriteTagFromClientHoldingRegister(t *testing.T) {
	bank := register.New(register.UniformSizes(8))
	s := &Server{bank: bank}
	tag := plctypes.Tag{Name: "Speed_Setpoint", Address: 1, Kind: plctypes.HoldingRegister}

	require.NoError(t, s.writeTagFromClient(context.Background(), tag, float64(42)))
	v, err := bank.ReadWord(context.Background(), plctypes.HoldingRegister, 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), v)
}

func TestWriteTagFromClientRejectsNonWritableKind(t *testing.T) {
	bank := register.New(register.UniformSizes(8))
	s := &Server{bank: bank}
	tag := plctypes.Tag{Name: "Sensor1_Active", Address: 0, Kind: plctypes.DiscreteInput}

	err := s.writeTagFromClient(context.Background(), tag, true)
	assert.ErrorIs(t, err, errNotWritable)
}

func TestWriteTagFromClientRejectsWrongValueType(t *testing.T) {
	bank := register.New(register.UniformSizes(8))
	s := &Server{bank: bank}
	tag := plctypes.Tag{Name: "Conveyor1_Running", Address: 0, Kind: plctypes.Coil}

	err := s.writeTagFromClient(context.Background(), tag, "not-a-bool")
	assert.ErrorIs(t, err, errBadValue)
}
