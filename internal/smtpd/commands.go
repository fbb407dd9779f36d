package smtpd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/infodancer/smtpd/internal/collab"
)

// dispatch routes one already-read command line through the parser and
// into the matching handler, enforcing the phase gates of spec §4.1.
func (s *Session) dispatch(ctx context.Context, line string) {
	// Mid-AUTH-exchange states consume the line as a SASL continuation,
	// not as a command (§4.4).
	switch s.state {
	case StateAuthInit:
		s.finishPlainAuth(ctx, line)
		return
	case StateAuthUsername:
		s.handleAuthUsername(ctx, line)
		return
	case StateAuthPassword:
		s.handleAuthPassword(ctx, line)
		return
	}

	pc := ParseCommand(line)
	if pc.Err != nil {
		s.rw.Reply(500, "Command unrecognized")
		s.bumpKick()
		return
	}
	if s.engine.Metrics != nil {
		s.engine.Metrics.CommandProcessed(pc.Verb.String())
	}

	// Commands valid in any state/phase.
	switch pc.Verb {
	case VerbNOOP:
		s.rw.Reply(250, "2.0.0 Ok")
		s.bumpKick()
		return
	case VerbQUIT:
		s.rw.Reply(221, "2.0.0 Bye")
		s.state = StateQuit
		return
	case VerbHELP:
		s.rw.Reply(214, "2.0.0 OpenSMTPD")
		s.bumpKick()
		return
	}

	switch pc.Verb {
	case VerbHELO, VerbEHLO:
		if s.phase != PhaseInit {
			s.replyBadSequence()
			return
		}
		s.handleHelo(ctx, pc)
	case VerbSTARTTLS:
		if s.phase != PhaseSetup && s.phase != PhaseInit {
			s.replyBadSequence()
			return
		}
		s.handleStartTLS(ctx, pc)
	case VerbAUTH:
		if s.phase != PhaseSetup {
			s.replyBadSequence()
			return
		}
		s.handleAuthStart(ctx, pc)
	case VerbMAILFROM:
		if s.phase != PhaseSetup {
			s.replyBadSequence()
			return
		}
		s.handleMailFrom(ctx, pc)
	case VerbRCPTTO:
		if s.phase != PhaseTransaction {
			s.replyBadSequence()
			return
		}
		s.handleRcptTo(ctx, pc)
	case VerbDATA:
		if s.phase != PhaseTransaction {
			s.replyBadSequence()
			return
		}
		s.handleData(ctx, pc)
	case VerbRSET:
		if s.phase != PhaseTransaction {
			s.replyBadSequence()
			return
		}
		s.handleRset(ctx)
	default:
		s.rw.Reply(500, "Command unrecognized")
		s.bumpKick()
	}
}

// replyBadSequence implements the catch-all 503 for phase violations
// (spec §4.1, and §9's resolution: use 503 for the placeholder codes).
func (s *Session) replyBadSequence() {
	s.rw.Reply(503, "5.5.1 Command out of sequence")
	s.bumpKick()
}

// handleHelo implements the HELO/EHLO transition (§4.1). Only
// F_SECURE/F_AUTHENTICATED survive a re-HELO (§9 open-question
// resolution: no).
func (s *Session) handleHelo(ctx context.Context, pc ParsedCommand) {
	if pc.Arg == "" {
		s.rw.Reply(501, "5.5.4 HELO requires a domain argument")
		s.bumpKick()
		return
	}

	s.envelope.Helo = pc.Arg
	s.envelope.Tag = "helo"
	if s.engine.Mfa != nil {
		reply, err := s.engine.Mfa.Helo(ctx, s.id, s.envelope)
		if err != nil || reply.Verdict == collab.VerdictReject {
			s.replyMfaReject(reply, "HELO rejected")
			s.bumpKick()
			return
		}
	}

	s.flags &= FlagSecure | FlagAuthenticated
	if pc.Verb == VerbEHLO {
		s.flags |= FlagEHLO | Flag8BITMIME
	}
	s.state = StateHelo
	s.phase = PhaseSetup

	if pc.Verb == VerbHELO {
		s.rw.Reply(250, fmt.Sprintf("%s Hello %s [%s], pleased to meet you", s.cfg.Hostname, pc.Arg, s.peer.String()))
		return
	}
	s.replyEhlo()
}

func (s *Session) replyEhlo() {
	lines := []string{
		fmt.Sprintf("%s Hello %s [%s], pleased to meet you", s.cfg.Hostname, s.envelope.Helo, s.peer.String()),
		"8BITMIME",
		"ENHANCEDSTATUSCODES",
		fmt.Sprintf("SIZE %d", s.cfg.Limits.MaxMessageSize),
	}
	if s.cfg.AllowSTARTTLS && !s.flags.has(FlagSecure) {
		lines = append(lines, "STARTTLS")
	}
	if s.cfg.AllowAUTH && s.flags.has(FlagSecure) && !s.flags.has(FlagAuthenticated) {
		lines = append(lines, "AUTH "+MechPlain+" "+MechLogin)
	}
	lines = append(lines, "HELP")
	s.rw.Reply(250, lines...)
}

func (s *Session) replyMfaReject(reply collab.MfaReply, fallback string) {
	code := reply.Code
	if code == 0 {
		code = 550
	}
	text := reply.Text
	if text == "" {
		text = fallback
	}
	s.rw.Reply(code, text)
}

// handleStartTLS implements the STARTTLS transition (§4.1).
func (s *Session) handleStartTLS(ctx context.Context, pc ParsedCommand) {
	if !s.cfg.AllowSTARTTLS || s.cfg.TLSConfig == nil {
		s.rw.Reply(502, "5.5.1 STARTTLS not supported")
		s.bumpKick()
		return
	}
	if s.flags.has(FlagSecure) {
		s.rw.Reply(503, "5.5.1 Already using TLS")
		s.bumpKick()
		return
	}
	if pc.Arg != "" {
		s.rw.Reply(501, "5.5.4 STARTTLS takes no argument")
		s.bumpKick()
		return
	}
	s.state = StateTLS
	if err := s.rw.Reply(220, "2.0.0 Ready to start TLS"); err != nil {
		s.state = StateQuit
		return
	}
	if err := s.startTLSHandshake(ctx); err != nil {
		s.log.Warn("STARTTLS handshake failed", slog.String("error", err.Error()))
		s.state = StateQuit
		return
	}
	s.flags &= FlagSecure | FlagAuthenticated
	s.phase = PhaseInit
	s.state = StateHelo
}

// handleAuthStart implements the AUTH command entry point of the SASL
// sub-protocol (§4.4): PLAIN may carry its blob inline or via a 334
// continuation; LOGIN always continues in two steps.
func (s *Session) handleAuthStart(ctx context.Context, pc ParsedCommand) {
	if !s.cfg.AllowAUTH {
		s.rw.Reply(503, "5.5.1 AUTH not supported")
		s.bumpKick()
		return
	}
	if !s.flags.has(FlagSecure) {
		s.rw.Reply(538, "5.7.11 Encryption required for requested authentication mechanism")
		s.bumpKick()
		return
	}
	if s.flags.has(FlagAuthenticated) {
		s.rw.Reply(503, "5.5.1 Already authenticated")
		s.bumpKick()
		return
	}

	mech, rest, _ := strings.Cut(pc.Arg, " ")
	mech = strings.ToUpper(mech)
	rest = strings.TrimSpace(rest)

	switch mech {
	case strings.ToUpper(MechPlain):
		s.saslMech = MechPlain
		if rest == "" {
			s.state = StateAuthInit
			s.rw.Reply(334, " ")
			return
		}
		s.finishPlainAuth(ctx, rest)
	case strings.ToUpper(MechLogin):
		s.saslMech = MechLogin
		s.state = StateAuthUsername
		s.rw.Reply(334, encodeSASLChallenge([]byte("Username:")))
	default:
		s.rw.Reply(504, "5.5.4 Unsupported authentication mechanism")
		s.bumpKick()
	}
}

// handleAuthUsername consumes the LOGIN continuation line while in
// StateAuthUsername: the base64 username, after which we prompt for the
// password. A PLAIN continuation blob arrives in StateAuthInit and goes to
// finishPlainAuth instead.
func (s *Session) handleAuthUsername(ctx context.Context, line string) {
	decoded, err := decodeSASL(line)
	if err != nil {
		s.rw.Reply(501, "5.5.2 Syntax error")
		s.state = StateHelo
		s.bumpKick()
		return
	}
	s.authUser = string(decoded)
	s.state = StateAuthPassword
	s.rw.Reply(334, encodeSASLChallenge([]byte("Password:")))
}

func (s *Session) handleAuthPassword(ctx context.Context, line string) {
	decoded, err := decodeSASL(line)
	if err != nil {
		s.rw.Reply(501, "5.5.2 Syntax error")
		s.state = StateHelo
		s.bumpKick()
		return
	}
	s.authPass = string(decoded)
	s.finishAuth(ctx)
}

func (s *Session) finishPlainAuth(ctx context.Context, blobLine string) {
	decoded, err := decodeSASL(blobLine)
	if err != nil {
		s.rw.Reply(501, "5.5.2 Syntax error")
		s.state = StateHelo
		s.bumpKick()
		return
	}
	creds, err := parsePlainBlob(decoded)
	if err != nil {
		s.rw.Reply(501, "5.5.2 Syntax error")
		s.state = StateHelo
		s.bumpKick()
		return
	}
	s.authUser = creds.Authcid
	s.authPass = creds.Passwd
	s.finishAuth(ctx)
}

// finishAuth dispatches the collected credentials to Auth and zeros the
// password immediately afterward, per spec §3/§5.
func (s *Session) finishAuth(ctx context.Context) {
	s.state = StateAuthFinalize
	user, pass := s.authUser, s.authPass
	var result collab.AuthResult
	var err error
	if s.engine.Auth != nil {
		result, err = s.engine.Auth.Authenticate(ctx, s.id, user, pass)
	}
	zeroString(&s.authPass)
	s.authUser = ""

	if s.engine.Metrics != nil {
		s.engine.Metrics.AuthAttempt(err == nil && result.Success)
	}

	if err != nil || !result.Success {
		s.rw.Reply(535, "5.7.8 Authentication failed")
		s.state = StateHelo
		s.bumpKick()
		return
	}
	s.flags |= FlagAuthenticated
	s.resetKick()
	s.rw.Reply(235, "2.7.0 Authentication succeeded")
	s.state = StateHelo
}

// handleRset implements RSET (§4.1, R1): phase returns to SETUP, the open
// message id is cleared, and F_SECURE/F_AUTHENTICATED are untouched.
func (s *Session) handleRset(ctx context.Context) {
	if s.engine.Mfa != nil {
		reply, err := s.engine.Mfa.Rset(ctx, s.id, s.envelope)
		if err != nil || reply.Verdict == collab.VerdictReject {
			s.replyMfaReject(reply, "RSET rejected")
			s.bumpKick()
			return
		}
	}
	s.resetTransaction(ctx)
	s.rw.Reply(250, "2.0.0 Ok")
}

func (s *Session) resetTransaction(ctx context.Context) {
	if s.envelope.MsgID != "" {
		s.engine.Queue.RemoveMessage(ctx, s.envelope.MsgID)
	}
	s.envelope.MsgID = ""
	s.envelope.Sender = collab.Mailaddr{}
	s.envelope.Rcpt = collab.Mailaddr{}
	s.rcptcount = 0
	s.destcount = 0
	s.tempfail = false
	s.permfail = false
	s.phase = PhaseSetup
}
