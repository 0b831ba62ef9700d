package register

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tommy-berg/SimplePLC/internal/plcerr"
	"github.com/tommy-berg/SimplePLC/internal/plctypes"
)

func TestWriteThenReadWord(t *testing.T) {
	b := New(UniformSizes(255))
	ctx := context.Background()

	require.NoError(t, b.WriteWord(ctx, plctypes.HoldingRegister, 10, 42))
	v, err := b.ReadWord(ctx, plctypes.HoldingRegister, 10)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), v)
}

func TestWriteThenReadBit(t *testing.T) {
	b := New(UniformSizes(255))
	ctx := context.Background()

	require.NoError(t, b.WriteBit(ctx, plctypes.Coil, 0, true))
	v, err := b.ReadBit(ctx, plctypes.Coil, 0)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestBoundaryWrites(t *testing.T) {
	b := New(UniformSizes(255))
	ctx := context.Background()

	require.NoError(t, b.WriteWord(ctx, plctypes.HoldingRegister, 254, 1))
	err := b.WriteWord(ctx, plctypes.HoldingRegister, 255, 1)
	assert.ErrorIs(t, err, plcerr.ErrOutOfRange)
}

func TestNegativeAddressRejected(t *testing.T) {
	b := New(UniformSizes(255))
	ctx := context.Background()

	_, err := b.ReadWord(ctx, plctypes.HoldingRegister, -1)
	assert.ErrorIs(t, err, plcerr.ErrOutOfRange)
}

func TestZeroInitialized(t *testing.T) {
	b := New(UniformSizes(8))
	ctx := context.Background()

	for addr := 0; addr < 8; addr++ {
		v, err := b.ReadWord(ctx, plctypes.InputRegister, addr)
		require.NoError(t, err)
		assert.Zero(t, v)

		bit, err := b.ReadBit(ctx, plctypes.DiscreteInput, addr)
		require.NoError(t, err)
		assert.False(t, bit)
	}
}

func TestAtomicReadAcrossLock(t *testing.T) {
	b := New(UniformSizes(255))
	ctx := context.Background()
	require.NoError(t, b.WriteWord(ctx, plctypes.HoldingRegister, 0, 7))
	require.NoError(t, b.WriteWord(ctx, plctypes.HoldingRegister, 1, 8))

	var snapshot []uint16
	err := b.Lock(ctx, func(l *Locked) {
		v, rerr := l.ReadWords(plctypes.HoldingRegister, 0, 2)
		require.NoError(t, rerr)
		snapshot = v
	})
	require.NoError(t, err)
	assert.Equal(t, []uint16{7, 8}, snapshot)
}

func TestLockTimeout(t *testing.T) {
	b := New(UniformSizes(4))

	// Hold the lock on another goroutine so the next acquire blocks.
	held := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = b.Lock(context.Background(), func(l *Locked) {
			close(held)
			<-release
		})
	}()
	<-held
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := b.ReadWord(ctx, plctypes.HoldingRegister, 0)
	assert.ErrorIs(t, err, plcerr.ErrLockTimeout)
}
