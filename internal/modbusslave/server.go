package modbusslave

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
)

const acceptDeadline = 100 * time.Millisecond

// Config is the subset of configuration the Modbus slave needs to bind
// and accept connections (spec.md §4.3, §6).
type Config struct {
	Listen         string
	Port           uint16
	MaxConnections int
}

// Server is the Modbus/TCP slave front-end (C3): it owns the listener,
// the accepted-connection table, and the running statistics.
type Server struct {
	cfg      Config
	bank     *register.Bank
	identity identityAdapter
	logger   *zap.Logger

	listener *net.TCPListener
	stats    *statsCollector

	mu    sync.Mutex
	conns map[string]*clientConn
}

// identityAdapter exposes plctypes.DeviceIdentity through the
// identityReader interface dispatch.go needs, so the dispatcher
// depends on those four accessors rather than on the DeviceIdentity
// struct itself.
type identityAdapter struct {
	identity plctypes.DeviceIdentity
}

func (a identityAdapter) SlaveName() string      { return a.identity.SlaveName }
func (a identityAdapter) DeviceIDString() string { return a.identity.DeviceIDString }
func (a identityAdapter) SlaveID() byte          { return a.identity.SlaveID }
func (a identityAdapter) RunIndicator() byte     { return a.identity.RunIndicator }

// New constructs a Server bound to bank and identity. It does not bind
// the listener; call Run to do that.
func New(cfg Config, bank *register.Bank, identity plctypes.DeviceIdentity, logger *zap.Logger) *Server {
	return &Server{
		cfg:      cfg,
		bank:     bank,
		identity: identityAdapter{identity: identity},
		logger:   logger,
		stats:    newStatsCollector(),
		conns:    make(map[string]*clientConn),
	}
}

// Run binds the listener and accepts connections until ctx is
// cancelled. It blocks until the accept loop and all client goroutines
// have returned.
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Listen, s.cfg.Port)
	laddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return fmt.Errorf("modbusslave: resolve %s: %w", addr, err)
	}
	listener, err := net.ListenTCP("tcp", laddr)
	if err != nil {
		return fmt.Errorf("modbusslave: listen %s: %w", addr, err)
	}
	s.listener = listener
	s.logger.Info("modbus slave listening", zap.String("addr", addr), zap.Int("max_connections", s.cfg.MaxConnections))

	var wg sync.WaitGroup
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	defer func() {
		listener.Close()
		wg.Wait()
		s.stats.logSummary(s.logger, "modbus slave shutdown")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.stats.logSummary(s.logger, "modbus slave statistics")
		default:
		}

		if err := listener.SetDeadline(time.Now().Add(acceptDeadline)); err != nil {
			return fmt.Errorf("modbusslave: set accept deadline: %w", err)
		}
		tcpConn, err := listener.AcceptTCP()
		if err != nil {
			if isTimeoutOrTemporary(err) {
				continue
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("modbusslave: accept: %w", err)
		}

		if s.activeCount() >= s.cfg.MaxConnections {
			s.logger.Warn("rejecting connection, max_connections reached", zap.String("peer", tcpConn.RemoteAddr().String()))
			tcpConn.Close()
			continue
		}

		c := newClientConn(tcpConn)
		s.register(c)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.unregister(c)
			c.serve(ctx, s.bank, s.identity, s.stats, s.logger)
		}()
	}
}

func (s *Server) register(c *clientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[c.id] = c
}

func (s *Server) unregister(c *clientConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c.id)
}

func (s *Server) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
