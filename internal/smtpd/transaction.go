package smtpd

import (
	"context"

	"github.com/infodancer/smtpd/internal/collab"
)

// handleMailFrom implements MAIL FROM (§4.1, §4.2, §4.5-precondition
// chain): address parse, ESMTP parameter handling, Mfa check, and Queue
// message creation, after which the transaction phase becomes
// TRANSACTION.
func (s *Session) handleMailFrom(ctx context.Context, pc ParsedCommand) {
	if s.cfg.RequireSTARTTLS && !s.flags.has(FlagSecure) {
		s.rw.Reply(530, "5.7.0 Must issue a STARTTLS command first")
		s.bumpKick()
		return
	}
	if s.cfg.RequireAUTH && !s.flags.has(FlagAuthenticated) {
		s.rw.Reply(530, "5.7.0 Authentication required")
		s.bumpKick()
		return
	}

	addr, ok := ParseMailaddr(pc.Arg)
	if !ok {
		s.rw.Reply(553, "5.1.7 Sender address syntax error")
		s.bumpKick()
		return
	}

	if pc.Params != "" {
		for _, p := range ParseMailParams(pc.Params) {
			switch p.Name {
			case "BODY":
				switch p.Value {
				case "7BIT":
					s.flags &^= Flag8BITMIME
				case "8BITMIME":
					// no-op, already advertised
				default:
					s.rw.Reply(503, "5.5.4 Unsupported option")
					s.bumpKick()
					return
				}
			case "AUTH":
				s.log.Debug("MAIL FROM AUTH parameter", "value", p.Value)
			default:
				s.rw.Reply(503, "5.5.4 Unsupported option")
				s.bumpKick()
				return
			}
		}
	}

	if s.mailcount >= s.cfg.Limits.MaxMail {
		s.rw.Reply(452, "4.5.3 Too many messages for this session")
		s.bumpKick()
		return
	}

	s.envelope.Sender = addr
	s.envelope.Tag = "mail"
	if s.engine.Mfa != nil {
		reply, err := s.engine.Mfa.Mail(ctx, s.id, s.envelope)
		if err != nil || reply.Verdict == collab.VerdictReject {
			s.replyMfaReject(reply, "Sender rejected")
			s.bumpKick()
			return
		}
	}

	created, err := s.engine.Queue.CreateMessage(ctx, s.id)
	if err != nil || !created.OK {
		s.rw.Reply(421, "4.0.0 Temporary failure creating message")
		s.state = StateQuit
		return
	}

	s.envelope.MsgID = created.MsgID
	s.phase = PhaseTransaction
	s.rcptcount = 0
	s.destcount = 0
	s.rw.Reply(250, "2.1.0 Ok")
}

// handleRcptTo implements RCPT TO (§4.1). Per the §9 open-question
// resolution, a SubmitEnvelope failure only updates the delivery-status
// bits; the RCPT is still replied according to CommitEnvelopes, and any
// resulting PERMFAIL/TEMPFAIL surfaces later at the end-of-body gate
// rather than retroactively un-replying this RCPT.
func (s *Session) handleRcptTo(ctx context.Context, pc ParsedCommand) {
	addr, ok := ParseMailaddr(pc.Arg)
	if !ok || addr.IsNull() {
		s.rw.Reply(553, "5.1.3 Recipient address syntax error")
		s.bumpKick()
		return
	}

	if s.rcptcount >= s.cfg.Limits.MaxRcpt {
		s.rw.Reply(452, "4.5.3 Too many recipients")
		s.bumpKick()
		return
	}

	s.envelope.Rcpt = addr
	s.envelope.Tag = "rcpt"
	if s.engine.Mfa != nil {
		reply, err := s.engine.Mfa.Rcpt(ctx, s.id, s.envelope)
		if err != nil || reply.Verdict == collab.VerdictReject {
			s.replyMfaReject(reply, "Recipient rejected")
			s.bumpKick()
			return
		}
	}

	if ok, err := s.engine.Queue.SubmitEnvelope(ctx, s.id, s.envelope); err != nil || !ok {
		s.tempfail = true
	}

	committed, err := s.engine.Queue.CommitEnvelopes(ctx, s.id, s.envelope.MsgID)
	if err != nil || !committed {
		s.rw.Reply(451, "4.0.0 Temporary failure accepting recipient")
		s.bumpKick()
		return
	}

	s.rcptcount++
	s.destcount++
	s.resetKick()
	s.rw.Reply(250, "2.1.5 Recipient ok")
}
