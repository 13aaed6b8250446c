// Package connmgr implements the connection lifecycle for the IRRd
// client (component C8): address resolution, the SO_LINGER/send-buffer
// setup the original bgpq3 expander performs before connecting,
// handshake, and teardown.
//
// The teacher repo never opens a TCP socket itself, so this package's
// structure is grounded directly on original_source/bgpq_expander.c's
// bgpq_expand (resolve -> connect with linger+sendbuf growth -> !!
// handshake -> optional !n identify -> work -> !q teardown), ported
// into the idioms the rest of this module already uses: explicit
// *Options, a report.Sink instead of bgpq3's global logging, and
// net.Conn instead of raw fds.
package connmgr

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Emeline-1/irrexpand/irrproto"
	"github.com/Emeline-1/irrexpand/report"
)

// LingerDuration is the SO_LINGER timeout the original source sets on
// the socket before connecting (bgpq_expand, "linger.l_linger = 5").
const LingerDuration = 5 * time.Second

// HandshakeTimeout bounds the initial "!!" / "!n" exchange.
const HandshakeTimeout = 30 * time.Second

// Options configures a Conn's lifecycle.
type Options struct {
	Server string
	Port   string

	// Identify, when non-empty, is sent as "!n<Identify>\n" after the
	// multiple-commands handshake, and its single-line reply discarded.
	Identify string

	// Pipelining controls whether the connection is switched to
	// non-blocking-style writes (via per-call deadlines, see package
	// pipeline) after the handshake completes.
	Pipelining bool

	Report report.Sink
}

// Conn wraps a live IRRd connection plus the codec layered over it.
type Conn struct {
	net.Conn
	Codec *irrproto.Codec

	pipelining bool
	rep        report.Sink
	sendbuf    int
}

// Dial resolves opts.Server:opts.Port (any address family — Go's
// resolver and net.Dial already try every candidate address in turn,
// the equivalent of the source's loop over getaddrinfo results),
// connects, configures the socket, and performs the handshake. Connect
// and handshake failures are returned as errors; a failed SetLinger or
// send-buffer growth is only reported and does not fail Dial.
func Dial(ctx context.Context, opts Options) (*Conn, error) {
	rep := opts.Report
	if rep == nil {
		rep = report.Discard{}
	}

	var d net.Dialer
	raw, err := d.DialContext(ctx, "tcp", net.JoinHostPort(opts.Server, opts.Port))
	if err != nil {
		return nil, fmt.Errorf("connmgr: connecting to %s:%s: %w", opts.Server, opts.Port, err)
	}

	tc, ok := raw.(*net.TCPConn)
	if ok {
		if err := tc.SetLinger(int(LingerDuration / time.Second)); err != nil {
			rep.Report(report.Notice, "connmgr: SetLinger failed: %v", err)
		}
	}

	c := &Conn{Conn: raw, rep: rep}
	c.sendbuf = growSendBuffer(raw, rep)
	c.Codec = irrproto.NewCodec(raw, raw)

	if err := c.handshake(opts); err != nil {
		raw.Close()
		return nil, err
	}

	if opts.Pipelining {
		c.pipelining = true
	}
	return c, nil
}

func (c *Conn) handshake(opts Options) error {
	if err := c.Conn.SetDeadline(time.Now().Add(HandshakeTimeout)); err != nil {
		return fmt.Errorf("connmgr: setting handshake deadline: %w", err)
	}
	defer c.Conn.SetDeadline(time.Time{})

	if err := c.Codec.WriteCommand(irrproto.CmdMultipleCommands()); err != nil {
		return fmt.Errorf("connmgr: sending multiple-commands handshake: %w", err)
	}

	if opts.Identify != "" {
		if err := c.Codec.WriteCommand(irrproto.CmdIdentify(opts.Identify)); err != nil {
			return fmt.Errorf("connmgr: sending identify: %w", err)
		}
		if _, err := c.Codec.ReadResponse(nil); err != nil {
			return fmt.Errorf("connmgr: reading identify reply: %w", err)
		}
	}
	return nil
}

// SendBufferSize returns the send-buffer size connmgr was able to
// negotiate with the kernel during Dial, for diagnostics.
func (c *Conn) SendBufferSize() int { return c.sendbuf }

// Pipelining reports whether this connection was configured for
// non-blocking-style pipelined I/O.
func (c *Conn) Pipelining() bool { return c.pipelining }

// Close performs the C8 teardown sequence: "!q", then a plain
// connection close. SO_LINGER was already configured at Dial time, so
// close completes the RST/FIN-then-wait the original shutdown(RDWR)
// step achieved explicitly.
func (c *Conn) Close() error {
	c.Conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := c.Codec.WriteCommand(irrproto.CmdQuit()); err != nil {
		c.rep.Report(report.Debug, "connmgr: error sending quit: %v", err)
	}
	return c.Conn.Close()
}
