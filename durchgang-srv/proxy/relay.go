package proxy

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Close reasons reported to the stats collector.
const (
	closeReasonEOF   = "eof"
	closeReasonIdle  = "idle_timeout"
	closeReasonError = "relay_error"
)

var errRelayIdle = errors.New("relay idle timeout")

// relay moves bytes in both directions between an inbound client socket
// and an established target socket. The idle window is shared across the
// pair: any read or write on either side resets it. Termination closes
// both sockets, whichever side triggered it.
type relay struct {
	client      net.Conn
	target      net.Conn
	idleTimeout time.Duration
	pool        *bufferPool

	lastActive int64 // unix nanos, accessed atomically

	closeOnce  sync.Once
	reasonOnce sync.Once
	reason     string
}

func newRelay(client, target net.Conn, idleTimeout time.Duration, pool *bufferPool) *relay {
	return &relay{
		client:      client,
		target:      target,
		idleTimeout: idleTimeout,
		pool:        pool,
	}
}

func (r *relay) touch() {
	atomic.StoreInt64(&r.lastActive, time.Now().UnixNano())
}

func (r *relay) idleDeadline() time.Time {
	return time.Unix(0, atomic.LoadInt64(&r.lastActive)).Add(r.idleTimeout)
}

func (r *relay) closeBoth() {
	r.closeOnce.Do(func() {
		_ = r.client.Close()
		_ = r.target.Close()
	})
}

// finish records the termination reason of the first copy loop to stop
// and tears down both sockets to unblock the other loop.
func (r *relay) finish(err error) {
	r.reasonOnce.Do(func() {
		switch {
		case errors.Is(err, errRelayIdle):
			r.reason = closeReasonIdle
		case err == nil || isClosedConnError(err):
			r.reason = closeReasonEOF
		default:
			r.reason = closeReasonError
		}
	})
	r.closeBoth()
}

// run relays until EOF, a failed write, or the idle timeout, then closes
// both sockets and returns the close reason.
func (r *relay) run() string {
	defer r.closeBoth()
	r.touch()

	var g errgroup.Group
	g.Go(func() error {
		r.finish(r.copyLoop(r.target, r.client))
		return nil
	})
	g.Go(func() error {
		r.finish(r.copyLoop(r.client, r.target))
		return nil
	})
	_ = g.Wait()

	return r.reason
}

// copyLoop shovels bytes from src to dst in bounded chunks. Read
// deadlines track the shared idle window; a deadline that fires while
// the other direction was active simply re-arms.
func (r *relay) copyLoop(dst, src net.Conn) error {
	bufPtr := r.pool.get()
	defer r.pool.put(bufPtr)
	buf := *bufPtr

	for {
		deadline := r.idleDeadline()
		if !time.Now().Before(deadline) {
			return errRelayIdle
		}
		if err := src.SetReadDeadline(deadline); err != nil {
			return err
		}

		n, err := src.Read(buf)
		if n > 0 {
			r.touch()
			if err := dst.SetWriteDeadline(time.Now().Add(r.idleTimeout)); err != nil {
				return err
			}
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
