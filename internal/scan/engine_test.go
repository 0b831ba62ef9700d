package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cycle.lua")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestEngineRunsCycleEachTick(t *testing.T) {
	bank := register.New(register.UniformSizes(8))
	path := writeScript(t, `
function cycle()
  local v = modbus.readHoldingRegister(0) or 0
  modbus.writeHoldingRegister(0, v + 1)
end
`)
	e := New(bank, 5*time.Millisecond, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	startErr := make(chan error, 1)
	go func() { startErr <- e.Start(ctx, path) }()

	time.Sleep(60 * time.Millisecond)
	cancel()
	require.NoError(t, <-startErr)

	v, err := bank.ReadWord(context.Background(), plctypes.HoldingRegister, 0)
	require.NoError(t, err)
	assert.Greater(t, int(v), 0)
}

func TestEngineMissingScriptIsFatal(t *testing.T) {
	bank := register.New(register.UniformSizes(4))
	e := New(bank, time.Second, zap.NewNop())

	err := e.Start(context.Background(), filepath.Join(t.TempDir(), "missing.lua"))
	assert.Error(t, err)
}

func TestEngineStopsOnCycleNotCallable(t *testing.T) {
	bank := register.New(register.UniformSizes(4))
	path := writeScript(t, `cycle = 42`)
	e := New(bank, 5*time.Millisecond, zap.NewNop())

	done := make(chan error, 1)
	go func() { done <- e.Start(context.Background(), path) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not stop after cycle became uncallable")
	}
}

func TestEngineReloadKeepsOldStateOnFailure(t *testing.T) {
	bank := register.New(register.UniformSizes(4))
	path := writeScript(t, `function cycle() end`)
	e := New(bank, time.Hour, zap.NewNop())

	l, err := e.newInterpreter(path)
	require.NoError(t, err)
	e.l = l
	e.scriptPath = path

	e.Reload(filepath.Join(t.TempDir(), "nonexistent.lua"))
	assert.Equal(t, l, e.l)
}
