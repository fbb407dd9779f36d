package smtpd

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/infodancer/smtpd/internal/collab"
)

// Session is the per-connection actor described in spec §3. Exactly one
// Session exists per accepted connection; it is never accessed from more
// than one goroutine.
type Session struct {
	engine *Engine
	id     uint64

	conn net.Conn
	r    *bufio.Reader
	w    *bufio.Writer
	rw   *replyWriter
	log  *slog.Logger

	cfg ListenerConfig

	peer     net.Addr
	hostname string // resolved PTR, may be empty

	flags Flags
	state State
	phase Phase

	envelope collab.Envelope

	lastCommand string

	kickcount  int
	mailcount  int
	rcptcount  int
	destcount  int
	datalen    int64
	tempfail   bool
	permfail   bool

	spool *collab.QueueFile

	// SASL exchange state
	saslMech string
	authUser string
	authPass string

	tlsCipherInfo string
}

func newSession(e *Engine, id uint64, conn net.Conn, cfg ListenerConfig) *Session {
	s := &Session{
		engine: e,
		id:     id,
		conn:   conn,
		r:      bufio.NewReaderSize(conn, 4096),
		w:      bufio.NewWriterSize(conn, 4096),
		cfg:    cfg,
		peer:   conn.RemoteAddr(),
		state:  StateNew,
		phase:  PhaseInit,
	}
	s.log = e.Log.With(slog.Uint64("session", id), slog.String("peer", s.peer.String()))
	s.rw = newReplyWriter(s.w, s.log)
	s.envelope.SessionID = id
	s.envelope.Peer = s.peer
	return s
}

func (s *Session) upgradeConn(conn net.Conn) {
	s.conn = conn
	s.r = bufio.NewReaderSize(conn, 4096)
	s.w = bufio.NewWriterSize(conn, 4096)
	s.rw = newReplyWriter(s.w, s.log)
}

// free tears down the session per spec §5's cancellation contract: close
// I/O, discard any open spool file, best-effort remove an open message
// from the queue, and record the reason.
func (s *Session) free(ctx context.Context, reason string) {
	if s.spool != nil {
		s.spool.Close()
		s.spool = nil
	}
	if s.envelope.MsgID != "" && s.phase == PhaseTransaction {
		s.engine.Queue.RemoveMessage(ctx, s.envelope.MsgID)
	}
	s.conn.Close()
	if s.engine.Metrics != nil {
		s.engine.Metrics.SessionClosed(reason)
	}
	s.log.Info("session closed", slog.String("reason", reason))
}

// bumpKick increments the kick counter and tears the session down once the
// threshold is reached (spec §4.1 kick heuristic).
func (s *Session) bumpKick() {
	s.kickcount++
	if s.kickcount >= s.cfg.Limits.KickThreshold {
		s.flags |= FlagKick
		s.state = StateQuit
		if s.engine.Metrics != nil {
			s.engine.Metrics.Kicked()
		}
		s.log.Warn("session not moving forward", slog.String("lastcommand", escapeCommand(s.lastCommand)))
	}
}

// resetKick clears the kick counter on RCPT success, successful auth, and
// message commit.
func (s *Session) resetKick() { s.kickcount = 0 }

// run drives the session from banner to teardown.
func (s *Session) run(ctx context.Context) {
	if err := s.greet(ctx); err != nil {
		return
	}
	for s.state != StateQuit {
		if s.cfg.Limits.IdleTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(time.Duration(s.cfg.Limits.IdleTimeout) * time.Second))
		}

		if s.state == StateBody {
			s.runBody(ctx)
			continue
		}

		line, pipelined, err := s.readLine()
		if err != nil {
			return
		}
		s.lastCommand = line
		s.rw.SetCommand(line)

		s.dispatch(ctx, line)

		if pipelined && s.state != StateQuit {
			s.rw.Reply(500, "5.0.0 Pipelining not supported")
			s.state = StateQuit
		}
	}
}

// readLine reads one CRLF-terminated command line (CRLF stripped) and
// reports whether additional bytes were already buffered from the
// underlying connection — the pipelining signal of spec §4.1, since a
// single TCP read surfacing more than one line is exactly what
// "pipelining" means at the wire.
func (s *Session) readLine() (line string, pipelined bool, err error) {
	raw, err := s.r.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", false, err
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			s.log.Info("idle timeout")
		}
		return "", false, err
	}
	line = strings.TrimRight(raw, "\r\n")
	if len(raw) >= s.cfg.Limits.MaxLineLength {
		s.rw.Reply(500, "Line too long")
		return "", false, errLineLimitHit
	}
	return line, s.r.Buffered() > 0, nil
}

var errLineLimitHit = errors.New("smtpd: line length limit")

// greet performs the NEW -> CONNECTED transition: optional PTR lookup,
// MFA CONNECT, implicit TLS (already done by the caller for ModeSMTPS),
// and the banner.
func (s *Session) greet(ctx context.Context) error {
	s.state = StateConnected
	s.hostname = s.engine.resolvePTR(ctx, s)
	s.envelope.Tag = "connect"

	if s.engine.Mfa != nil {
		reply, err := s.engine.Mfa.Connect(ctx, s.id, s.envelope)
		if err != nil || reply.Verdict == collab.VerdictReject {
			code := 554
			if reply.Code != 0 {
				code = reply.Code
			}
			s.rw.Reply(code, "Connection refused")
			s.state = StateQuit
			return errConnectRefused
		}
	}

	banner := s.cfg.Banner
	if banner == "" {
		banner = s.cfg.Hostname + " ESMTP OpenSMTPD"
	}
	if err := s.rw.Reply(220, banner); err != nil {
		return err
	}
	s.state = StateHelo
	return nil
}

var errConnectRefused = errors.New("smtpd: connection refused by policy")

// startTLSHandshake performs the STARTTLS upgrade in place, per spec
// §4.1's HELO/SETUP -> TLS -> HELO cycle.
func (s *Session) startTLSHandshake(ctx context.Context) error {
	tlsConn := tls.Server(s.conn, s.cfg.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return err
	}
	s.upgradeConn(tlsConn)
	s.flags |= FlagSecure
	cs := tlsConn.ConnectionState()
	s.tlsCipherInfo = tlsCipherDescription(cs)
	if s.engine.Metrics != nil {
		s.engine.Metrics.TLSHandshake()
	}
	return nil
}

func tlsCipherDescription(cs tls.ConnectionState) string {
	return "TLS version=" + tlsVersionName(cs.Version) + " cipher=" + tls.CipherSuiteName(cs.CipherSuite)
}

func tlsVersionName(v uint16) string {
	switch v {
	case tls.VersionTLS10:
		return "TLSv1"
	case tls.VersionTLS11:
		return "TLSv1.1"
	case tls.VersionTLS12:
		return "TLSv1.2"
	case tls.VersionTLS13:
		return "TLSv1.3"
	default:
		return "unknown"
	}
}
