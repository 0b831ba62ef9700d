// Package orchestrator wires the register bank to the scan engine and
// the two fieldbus front-ends (C5), starting them in order. On
// shutdown all three are cancelled together; the front-ends are joined
// first and the scan engine last.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/config"
	"github.com/tommy-berg/SimplePLC/internal/modbusslave"
	"github.com/tommy-berg/SimplePLC/internal/opcuaserver"
	"github.com/tommy-berg/SimplePLC/internal/plcerr"
	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
	"github.com/tommy-berg/SimplePLC/internal/scan"
)

// Run constructs the bank and starts the scan engine, the Modbus
// slave, and the OPC UA server in that order, returning when ctx is
// cancelled after every component has stopped.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	bank := register.New(register.UniformSizes(cfg.Modbus.MappingSize))

	identity := plctypes.DeviceIdentity{
		SlaveName:      cfg.Device.SlaveName,
		DeviceIDString: cfg.Device.DeviceIdentification,
		SlaveID:        cfg.Device.SlaveID,
		RunIndicator:   cfg.Device.RunIndicator,
		RunScript:      cfg.Device.RunScript,
	}

	engine := scan.New(bank, cfg.ScanInterval, logger.Named("scan"))
	modbusSrv := modbusslave.New(
		modbusslave.Config{Listen: cfg.Modbus.Listen, Port: cfg.Modbus.Port, MaxConnections: cfg.Modbus.MaxConnections},
		bank, identity, logger.Named("modbus"),
	)
	opcuaSrv := opcuaserver.New(
		opcuaserver.Config{
			Listen:         cfg.OPCUA.Listen,
			Port:           cfg.OPCUA.Port,
			ServerName:     cfg.OPCUA.ServerName,
			ApplicationURI: cfg.OPCUA.ApplicationURI,
		},
		bank, cfg.Tags, logger.Named("opcua"),
	)

	// runCtx is cancelled both by the caller's ctx and by this
	// orchestrator itself the moment any component reports a bring-up
	// failure, so one front-end's failed bind stops its siblings
	// immediately rather than waiting for an external shutdown signal.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	scanErr := make(chan error, 1)
	go func() { scanErr <- engine.Start(runCtx, cfg.Device.RunScript) }()

	select {
	case err := <-scanErr:
		// Start returned before signalling readiness: the initial
		// script load failed, which spec.md §4.2/§7 treats as fatal.
		return fmt.Errorf("orchestrator: %w", err)
	case <-engine.Ready():
	case <-ctx.Done():
		engine.Stop()
		<-scanErr
		return ctx.Err()
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := modbusSrv.Run(runCtx); err != nil {
			errs <- fmt.Errorf("%w: modbus slave: %v", plcerr.ErrBringUpFailed, err)
			cancelRun()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := opcuaSrv.Run(runCtx); err != nil {
			errs <- fmt.Errorf("%w: opc ua server: %v", plcerr.ErrBringUpFailed, err)
			cancelRun()
		}
	}()

	<-runCtx.Done()
	logger.Info("shutting down")

	wg.Wait()
	engine.Stop()

	select {
	case err := <-scanErr:
		if err != nil {
			return err
		}
	default:
	}

	select {
	case err := <-errs:
		return err
	default:
		return nil
	}
}
