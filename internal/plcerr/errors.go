// Package plcerr defines the sentinel error kinds used across the
// register bank and both fieldbus front-ends, per spec.md §7.
package plcerr

import "errors"

var (
	// ErrOutOfRange is returned when an address falls outside a
	// space's configured length. Never silently wrapped/clamped.
	ErrOutOfRange = errors.New("plc: address out of range")

	// ErrLockTimeout is returned by the register bank when the bank
	// lock could not be acquired before the caller's context ended
	// (the scan engine and both front-ends use a 1-second ceiling).
	ErrLockTimeout = errors.New("plc: bank lock acquire timed out")

	// ErrBringUpFailed marks a fatal startup error (Modbus bind,
	// OPC UA startup) that should cause the process to exit 1.
	ErrBringUpFailed = errors.New("plc: component bring-up failed")

	// ErrScriptMissing marks a scan script that could not be loaded at
	// scan-engine startup (missing file or load error), which is fatal.
	ErrScriptMissing = errors.New("plc: scan script not found")

	// ErrCycleNotCallable marks a loaded script with no callable
	// global cycle function.
	ErrCycleNotCallable = errors.New("plc: cycle is missing or not callable")
)
