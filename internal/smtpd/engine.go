// Package smtpd implements the server-side SMTP session engine: protocol
// state machine, command parsing, SASL, DATA ingestion, and reply
// generation, driven by the collaborator interfaces in internal/collab.
package smtpd

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/infodancer/smtpd/internal/collab"
)

// Metrics is the subset of metrics.Collector the engine depends on,
// declared locally so this package never imports internal/metrics
// directly (accept interfaces, not concrete types).
type Metrics interface {
	SessionOpened()
	SessionClosed(reason string)
	CommandProcessed(verb string)
	Kicked()
	TLSHandshake()
	AuthAttempt(success bool)
	MessageAccepted(size int64)
}

// Engine owns the collaborator clients and hands out session ids. It holds
// no per-session mutable state; every session after Accept runs on its own
// goroutine with no shared memory besides the collaborators, metrics, and
// logger referenced here (spec §5: "no shared mutation across sessions").
type Engine struct {
	Dns   collab.Dns
	Mfa   collab.Mfa
	Queue collab.Queue
	Auth  collab.Auth

	Metrics Metrics
	Log     *slog.Logger

	nextID atomic.Uint64
}

// NewEngine constructs an Engine wired to the four collaborators.
func NewEngine(dns collab.Dns, mfa collab.Mfa, queue collab.Queue, auth collab.Auth, metrics Metrics, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{Dns: dns, Mfa: mfa, Queue: queue, Auth: auth, Metrics: metrics, Log: log}
}

// nextRequestID mints a fresh id for collaborator calls that cannot reuse
// the session id (recipient expansion, spec §4.3).
func (e *Engine) nextRequestID() uint64 {
	return e.nextID.Add(1)
}

// Serve accepts connections on ln and handles each with cfg until ln is
// closed or ctx is done.
func (e *Engine) Serve(ctx context.Context, ln net.Listener, cfg ListenerConfig) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go e.handleConn(ctx, conn, cfg)
	}
}

// ServeConn handles exactly one already-accepted connection synchronously,
// blocking until the session ends. This is the single-connection entry
// point mirrored from the POP3 sibling's Stack.RunSingleConn, useful for
// tests driving the engine over net.Pipe without a real listener.
func (e *Engine) ServeConn(ctx context.Context, conn net.Conn, cfg ListenerConfig) {
	e.handleConn(ctx, conn, cfg)
}

// handleConn wraps a single accepted connection in a Session and runs its
// protocol loop to completion. One goroutine per connection is this
// module's idiomatic-Go rendition of "one actor per session" (spec §2,
// resolved in SPEC_FULL.md §2).
func (e *Engine) handleConn(ctx context.Context, conn net.Conn, cfg ListenerConfig) {
	id := e.nextID.Add(1)
	sess := newSession(e, id, conn, cfg)
	defer sess.free(ctx, "connection closed")

	if e.Metrics != nil {
		e.Metrics.SessionOpened()
	}

	if cfg.Mode == ModeSMTPS {
		tlsConn, ok := conn.(*tls.Conn)
		if !ok {
			tlsConn = tls.Server(conn, cfg.TLSConfig)
		}
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			sess.log.Warn("implicit TLS handshake failed", slog.String("error", err.Error()))
			return
		}
		sess.upgradeConn(tlsConn)
		sess.flags |= FlagSecure
		if e.Metrics != nil {
			e.Metrics.TLSHandshake()
		}
	}

	sess.run(ctx)
}

// resolvePTR looks up the connecting peer's reverse-DNS hostname, used by
// the CONNECTED state before the first MFA CONNECT hook (spec §4.1).
func (e *Engine) resolvePTR(ctx context.Context, sess *Session) string {
	if e.Dns == nil {
		return ""
	}
	host, err := e.Dns.Ptr(ctx, sess.id, sess.peer)
	if err != nil {
		sess.log.Debug("ptr lookup failed", slog.String("error", err.Error()))
		return ""
	}
	return host
}

// formatReceivedTrailer builds the Received: header spec §4.5 requires,
// one line per field so replyMulti-style wrapping isn't needed here (this
// is spool content, not a wire reply).
func formatReceivedTrailer(sess *Session, serverHostname, msgID string, tlsInfo string) string {
	proto := "SMTP"
	if sess.flags.has(FlagEHLO) {
		proto = "ESMTP"
	}
	forLine := ""
	if sess.rcptcount == 1 {
		forLine = fmt.Sprintf("    for <%s>;\n", sess.envelope.Rcpt.String())
	}
	tlsLine := ""
	if tlsInfo != "" {
		tlsLine = fmt.Sprintf("    %s;\n", tlsInfo)
	}
	return fmt.Sprintf(
		"Received: from %s (%s [%s]);\n    by %s (smtpd) with %s id %s;\n%s%s%s\n",
		sess.envelope.Helo, sess.hostname, sess.peer.String(),
		serverHostname, proto, msgID,
		tlsLine, forLine, time.Now().Format(time.RFC1123Z),
	)
}
