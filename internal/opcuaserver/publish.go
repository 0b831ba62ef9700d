package opcuaserver

import (
	"context"
	"time"

	"github.com/awcullen/opcua/server"
	"github.com/awcullen/opcua/ua"
	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/plctypes"
	"github.com/tommy-berg/SimplePLC/internal/register"
)

// publish takes one snapshot of every tag's current bank value under a
// single lock acquisition, then writes each into its node outside the
// lock, mirroring the 100ms updateValues() tick of the original
// server.
func (s *Server) publish(ctx context.Context) {
	type sample struct {
		tag plctypes.Tag
		bit bool
		w   uint16
	}
	samples := make([]sample, 0, len(s.tags))

	lockCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	err := s.bank.Lock(lockCtx, func(l *register.Locked) {
		for _, tag := range s.tags {
			sm := sample{tag: tag}
			var rerr error
			if tag.Kind.Bit() {
				sm.bit, rerr = l.ReadBit(tag.Kind, int(tag.Address))
			} else {
				sm.w, rerr = l.ReadWord(tag.Kind, int(tag.Address))
			}
			if rerr != nil {
				continue
			}
			samples = append(samples, sm)
		}
	})
	if err != nil {
		s.logger.Warn("opc ua publish tick skipped, bank lock timed out", zap.Error(err))
		return
	}

	nm := s.srv.NamespaceManager()
	for _, sm := range samples {
		var v ua.Variant
		if sm.tag.Kind.Bit() {
			v = ua.NewVariant(sm.bit)
		} else {
			v = ua.NewVariant(sm.w)
		}
		node, ok := nm.FindNode(tagNodeID(sm.tag))
		if !ok {
			continue
		}
		if vn, ok := node.(*server.VariableNode); ok {
			vn.SetValue(ua.NewDataValue(v, ua.Good, time.Now(), 0, time.Now(), 0))
		}
	}
}
