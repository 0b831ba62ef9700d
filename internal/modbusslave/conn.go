package modbusslave

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tommy-berg/SimplePLC/internal/register"
)

// connState mirrors the Accepted→Configured→Idle→Receiving→Replying→Idle…
// Closed machine per connection (spec.md §4.3). serve records the current
// state on the clientConn; the control flow below embodies the transitions
// directly.
type connState int

const (
	stateAccepted connState = iota
	stateConfigured
	stateIdle
	stateReceiving
	stateReplying
	stateClosed
)

const (
	readDeadline  = 100 * time.Millisecond
	lockTimeout   = time.Second
	lingerSeconds = 0
)

// clientConn tracks one accepted TCP client: the spec's
// {socket, peer_address, created_at, last_activity_at, active?, request_count}.
type clientConn struct {
	id             string
	peerAddr       string
	tcp            *net.TCPConn
	createdAt      time.Time
	lastActivityAt time.Time
	requestCount   uint64
	state          connState
}

// configureSocket applies the per-client socket options spec.md §4.3
// requires: Nagle disabled, immediate-close linger, and TCP keepalive.
// I/O deadlines are not set here; serve sets them per operation
// (readDeadline before each read, lockTimeout before each write).
func configureSocket(tcp *net.TCPConn) error {
	if err := tcp.SetNoDelay(true); err != nil {
		return err
	}
	if err := tcp.SetLinger(lingerSeconds); err != nil {
		return err
	}
	if err := tcp.SetKeepAlive(true); err != nil {
		return err
	}
	return nil
}

func newClientConn(tcp *net.TCPConn) *clientConn {
	now := time.Now()
	return &clientConn{
		id:             uuid.New().String(),
		peerAddr:       tcp.RemoteAddr().String(),
		tcp:            tcp,
		createdAt:      now,
		lastActivityAt: now,
		state:          stateAccepted,
	}
}

// serve runs one client connection to completion: Accepted→Configured,
// then the Idle/Receiving/Replying cycle until the connection closes or
// ctx is cancelled. It never returns an error; failures close the
// connection and return.
func (c *clientConn) serve(ctx context.Context, bank *register.Bank, identity identityReader, stats *statsCollector, logger *zap.Logger) {
	defer c.tcp.Close()

	if err := configureSocket(c.tcp); err != nil {
		logger.Warn("socket configuration failed, closing", zap.String("peer", c.peerAddr), zap.Error(err))
		c.state = stateClosed
		return
	}
	c.state = stateConfigured
	stats.connectionOpened(c)
	defer stats.connectionClosed(c)

	buf := make([]byte, maxADU)
	for {
		if ctx.Err() != nil {
			c.state = stateClosed
			return
		}

		c.state = stateIdle
		if err := c.tcp.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
			c.state = stateClosed
			return
		}

		c.state = stateReceiving
		n, err := c.tcp.Read(buf)
		if err != nil {
			if isTimeoutOrTemporary(err) {
				continue
			}
			c.state = stateClosed
			return
		}
		if n == 0 {
			continue
		}

		c.lastActivityAt = time.Now()
		c.requestCount++
		stats.requestReceived(c)

		req, derr := decodeRequest(buf[:n])
		if derr != nil {
			logger.Warn("dropping malformed frame", zap.String("peer", c.peerAddr), zap.Error(derr))
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, lockTimeout)
		reply := dispatch(reqCtx, bank, req, identity, logger)
		cancel()

		c.state = stateReplying
		if err := c.tcp.SetWriteDeadline(time.Now().Add(lockTimeout)); err != nil {
			c.state = stateClosed
			return
		}
		if _, err := c.tcp.Write(reply); err != nil {
			c.state = stateClosed
			return
		}
	}
}

func isTimeoutOrTemporary(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
