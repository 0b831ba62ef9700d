// Package register implements the shared register bank (spec.md §4.1):
// four fixed-size address spaces guarded by a single coarse lock with
// a timed-acquire ceiling.
package register

import (
	"context"

	"github.com/tommy-berg/SimplePLC/internal/plcerr"
	"github.com/tommy-berg/SimplePLC/internal/plctypes"
)

// Sizes configures the length of each of the four address spaces at
// construction time. All spaces default to the same mapping_size
// (spec.md §6).
type Sizes struct {
	Coils           int
	DiscreteInputs  int
	HoldingRegs     int
	InputRegs       int
}

// UniformSizes returns a Sizes value with all four spaces set to n,
// matching the default mapping_size=255 behavior.
func UniformSizes(n int) Sizes {
	return Sizes{Coils: n, DiscreteInputs: n, HoldingRegs: n, InputRegs: n}
}

// Bank owns the four address spaces and the lock guarding all of them.
// It is process-wide state, created once by the orchestrator and held
// by non-owning handles everywhere else.
type Bank struct {
	// sem is a size-1 semaphore implementing a timed-acquire mutex:
	// sync.Mutex has no deadline-aware Lock, so a buffered channel of
	// capacity 1 stands in for one.
	sem chan struct{}

	coils    []bool
	discrete []bool
	holding  []uint16
	input    []uint16
}

// New creates a zero-initialized bank with the given space lengths.
func New(sizes Sizes) *Bank {
	b := &Bank{
		sem:      make(chan struct{}, 1),
		coils:    make([]bool, sizes.Coils),
		discrete: make([]bool, sizes.DiscreteInputs),
		holding:  make([]uint16, sizes.HoldingRegs),
		input:    make([]uint16, sizes.InputRegs),
	}
	b.sem <- struct{}{}
	return b
}

// acquire blocks until the lock is free or ctx is done, whichever
// comes first. Release with release().
func (b *Bank) acquire(ctx context.Context) error {
	select {
	case <-b.sem:
		return nil
	case <-ctx.Done():
		return plcerr.ErrLockTimeout
	}
}

func (b *Bank) release() {
	b.sem <- struct{}{}
}

// Lock acquires the bank lock for the duration of fn, for callers that
// need atomicity across multiple operations (e.g. a Modbus handler
// reading or writing a run of addresses under one acquisition). fn receives a
// *Locked view restricted to space accessors that assume the lock is
// already held.
func (b *Bank) Lock(ctx context.Context, fn func(*Locked)) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()
	fn(&Locked{b: b})
	return nil
}

// ReadBit reads a single bit from space at addr, acquiring the lock
// for the duration of the call.
func (b *Bank) ReadBit(ctx context.Context, space plctypes.Space, addr int) (bool, error) {
	var v bool
	var err error
	lockErr := b.Lock(ctx, func(l *Locked) {
		v, err = l.ReadBit(space, addr)
	})
	if lockErr != nil {
		return false, lockErr
	}
	return v, err
}

// WriteBit writes a single bit. Writing DiscreteInput is only valid
// from the scan-engine binding; the bank does not enforce that
// restriction (it has no notion of "who is calling"): the Modbus and
// OPC UA front-ends only ever write Coil, and internal/scan is the
// only caller that writes DiscreteInput.
func (b *Bank) WriteBit(ctx context.Context, space plctypes.Space, addr int, v bool) error {
	var err error
	lockErr := b.Lock(ctx, func(l *Locked) {
		err = l.WriteBit(space, addr, v)
	})
	if lockErr != nil {
		return lockErr
	}
	return err
}

// ReadWord reads a single 16-bit word.
func (b *Bank) ReadWord(ctx context.Context, space plctypes.Space, addr int) (uint16, error) {
	var v uint16
	var err error
	lockErr := b.Lock(ctx, func(l *Locked) {
		v, err = l.ReadWord(space, addr)
	})
	if lockErr != nil {
		return 0, lockErr
	}
	return v, err
}

// WriteWord writes a single 16-bit word. Writing InputRegister is only
// valid from the scan-engine binding; as with WriteBit, the bank does
// not enforce this: the front-ends only ever write HoldingRegister.
func (b *Bank) WriteWord(ctx context.Context, space plctypes.Space, addr int, v uint16) error {
	var err error
	lockErr := b.Lock(ctx, func(l *Locked) {
		err = l.WriteWord(space, addr, v)
	})
	if lockErr != nil {
		return lockErr
	}
	return err
}

// Len returns the configured length of a space.
func (b *Bank) Len(space plctypes.Space) int {
	switch space {
	case plctypes.Coil:
		return len(b.coils)
	case plctypes.DiscreteInput:
		return len(b.discrete)
	case plctypes.HoldingRegister:
		return len(b.holding)
	case plctypes.InputRegister:
		return len(b.input)
	default:
		return 0
	}
}

// Locked is a view onto the Bank for use inside Lock's callback, where
// the lock is already held. Its methods never block on the bank lock
// themselves.
type Locked struct {
	b *Bank
}

func (l *Locked) ReadBit(space plctypes.Space, addr int) (bool, error) {
	bits, ok := l.b.bitSlice(space)
	if !ok || addr < 0 || addr >= len(bits) {
		return false, plcerr.ErrOutOfRange
	}
	return bits[addr], nil
}

func (l *Locked) WriteBit(space plctypes.Space, addr int, v bool) error {
	bits, ok := l.b.bitSlice(space)
	if !ok || addr < 0 || addr >= len(bits) {
		return plcerr.ErrOutOfRange
	}
	bits[addr] = v
	return nil
}

func (l *Locked) ReadWord(space plctypes.Space, addr int) (uint16, error) {
	words, ok := l.b.wordSlice(space)
	if !ok || addr < 0 || addr >= len(words) {
		return 0, plcerr.ErrOutOfRange
	}
	return words[addr], nil
}

func (l *Locked) WriteWord(space plctypes.Space, addr int, v uint16) error {
	words, ok := l.b.wordSlice(space)
	if !ok || addr < 0 || addr >= len(words) {
		return plcerr.ErrOutOfRange
	}
	words[addr] = v
	return nil
}

// ReadWords reads a contiguous run of words, for the Modbus FC 0x03/0x04
// read helpers, atomically with respect to writes under the same lock
// acquisition.
func (l *Locked) ReadWords(space plctypes.Space, addr, count int) ([]uint16, error) {
	words, ok := l.b.wordSlice(space)
	if !ok || addr < 0 || count < 0 || addr+count > len(words) {
		return nil, plcerr.ErrOutOfRange
	}
	out := make([]uint16, count)
	copy(out, words[addr:addr+count])
	return out, nil
}

// ReadBits reads a contiguous run of bits, LSB-first packing is the
// caller's concern (see modbusslave/frame.go).
func (l *Locked) ReadBits(space plctypes.Space, addr, count int) ([]bool, error) {
	bits, ok := l.b.bitSlice(space)
	if !ok || addr < 0 || count < 0 || addr+count > len(bits) {
		return nil, plcerr.ErrOutOfRange
	}
	out := make([]bool, count)
	copy(out, bits[addr:addr+count])
	return out, nil
}

func (b *Bank) bitSlice(space plctypes.Space) ([]bool, bool) {
	switch space {
	case plctypes.Coil:
		return b.coils, true
	case plctypes.DiscreteInput:
		return b.discrete, true
	default:
		return nil, false
	}
}

func (b *Bank) wordSlice(space plctypes.Space) ([]uint16, bool) {
	switch space {
	case plctypes.HoldingRegister:
		return b.holding, true
	case plctypes.InputRegister:
		return b.input, true
	default:
		return nil, false
	}
}
