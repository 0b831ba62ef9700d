package scan

import (
	"context"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
)

const bindingLockTimeout = time.Second

// installBindings installs the modbus global table and the print
// override into l, per spec.md §4.2. Each modbus.* accessor takes the
// bank lock itself; the scan loop releases its own lock before
// invoking cycle() so these calls never re-enter a held lock.
func installBindings(l *lua.LState, bank *register.Bank, logger *zap.Logger) {
	tbl := l.NewTable()
	l.SetFuncs(tbl, map[string]lua.LGFunction{
		"readCoil":            readBitFunc(bank, plctypes.Coil),
		"writeCoil":           writeBitFunc(bank, plctypes.Coil),
		"readDiscreteInput":   readBitFunc(bank, plctypes.DiscreteInput),
		"writeDiscreteInput":  writeBitFunc(bank, plctypes.DiscreteInput),
		"readHoldingRegister": readWordFunc(bank, plctypes.HoldingRegister),
		"writeHoldingRegister": writeWordFunc(bank, plctypes.HoldingRegister),
		"readInputRegister":   readWordFunc(bank, plctypes.InputRegister),
		"writeInputRegister":  writeWordFunc(bank, plctypes.InputRegister),
	})
	l.SetGlobal("modbus", tbl)
	l.SetGlobal("print", l.NewFunction(luaPrint(logger)))
}

func readBitFunc(bank *register.Bank, space plctypes.Space) lua.LGFunction {
	return func(l *lua.LState) int {
		addr := l.CheckInt(1)
		ctx, cancel := context.WithTimeout(context.Background(), bindingLockTimeout)
		defer cancel()
		v, err := bank.ReadBit(ctx, space, addr)
		if err != nil {
			l.Push(lua.LNil)
			return 1
		}
		l.Push(lua.LBool(v))
		return 1
	}
}

func writeBitFunc(bank *register.Bank, space plctypes.Space) lua.LGFunction {
	return func(l *lua.LState) int {
		addr := l.CheckInt(1)
		v := l.CheckBool(2)
		ctx, cancel := context.WithTimeout(context.Background(), bindingLockTimeout)
		defer cancel()
		err := bank.WriteBit(ctx, space, addr, v)
		l.Push(lua.LBool(err == nil))
		return 1
	}
}

func readWordFunc(bank *register.Bank, space plctypes.Space) lua.LGFunction {
	return func(l *lua.LState) int {
		addr := l.CheckInt(1)
		ctx, cancel := context.WithTimeout(context.Background(), bindingLockTimeout)
		defer cancel()
		v, err := bank.ReadWord(ctx, space, addr)
		if err != nil {
			l.Push(lua.LNil)
			return 1
		}
		l.Push(lua.LNumber(v))
		return 1
	}
}

func writeWordFunc(bank *register.Bank, space plctypes.Space) lua.LGFunction {
	return func(l *lua.LState) int {
		addr := l.CheckInt(1)
		v := l.CheckInt(2)
		ctx, cancel := context.WithTimeout(context.Background(), bindingLockTimeout)
		defer cancel()
		err := bank.WriteWord(ctx, space, addr, uint16(v))
		l.Push(lua.LBool(err == nil))
		return 1
	}
}

// luaPrint replaces Lua's print with a host-side logger: every call is
// prefixed with [LUA] and emitted immediately as one Info entry on the
// engine's zap logger (no extra buffering is added), so scan scripts
// are debuggable in real time.
func luaPrint(logger *zap.Logger) lua.LGFunction {
	return func(l *lua.LState) int {
		top := l.GetTop()
		parts := make([]string, top)
		for i := 1; i <= top; i++ {
			parts[i-1] = l.Get(i).String()
		}
		logger.Info("[LUA] " + strings.Join(parts, "\t"))
		return 0
	}
}
