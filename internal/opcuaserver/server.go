// Package opcuaserver implements the OPC UA front-end (C4): a folder
// of variable nodes in namespace 1, one per configured tag, mirrored
// from the register bank on a periodic publish tick. Writable tags
// (Coil, HoldingRegister) accept client writes back into the bank.
//
// Built on github.com/awcullen/opcua/server, the general-purpose
// embeddable OPC UA server; see DESIGN.md for the grounding note on
// this package — no pack example exercises an OPC UA server library.
package opcuaserver

import (
	"context"
	"fmt"
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
)

const publishInterval = 100 * time.Millisecond

// Config is the subset of configuration the OPC UA front-end needs
// (spec.md §6 [OPCUA]).
type Config struct {
	Listen         string
	Port           uint16
	ServerName     string
	ApplicationURI string
}

// Server owns the OPC UA server instance, its namespace-1 node tree,
// and the publish loop keeping node values in sync with the bank.
type Server struct {
	cfg    Config
	bank   *register.Bank
	tags   []plctypes.Tag
	logger *zap.Logger

	srv *server.Server
}

func New(cfg Config, bank *register.Bank, tags []plctypes.Tag, logger *zap.Logger) *Server {
	return &Server{cfg: cfg, bank: bank, tags: tags, logger: logger}
}

// Run starts the server, builds the namespace-1 node tree from tags,
// and runs the publish tick until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	endpoint := fmt.Sprintf("opc.tcp://%s:%d", s.cfg.Listen, s.cfg.Port)

	srv, err := server.New(
		ua.ApplicationDescription{
			ApplicationURI:  s.cfg.ApplicationURI,
			ApplicationName: ua.LocalizedText{Text: s.cfg.ServerName},
			ApplicationType: ua.ApplicationTypeServer,
		},
		"", "", endpoint,
		server.WithInsecureSkipVerify(),
	)
	if err != nil {
		return fmt.Errorf("opcuaserver: construct server: %w", err)
	}
	s.srv = srv
	defer srv.Close()

	if err := s.buildNamespace(); err != nil {
		return fmt.Errorf("opcuaserver: build namespace: %w", err)
	}

	s.logger.Info("opc ua server starting", zap.String("endpoint", endpoint), zap.Int("tags", len(s.tags)))

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-serveErr:
			if err != nil {
				s.logger.Error("opc ua server stopped unexpectedly", zap.Error(err))
			}
			return err
		case <-ticker.C:
			s.publish(ctx)
		}
	}
}
