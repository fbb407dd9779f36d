package smtpd

import (
	"context"
	"strings"
)

// handleData implements the DATA command entry point (§4.1, §4.5): it
// requires at least one accepted recipient, opens the spool file, writes
// the Received: trailer, and switches the session into StateBody for the
// line-by-line sink in runBody.
func (s *Session) handleData(ctx context.Context, pc ParsedCommand) {
	if s.rcptcount == 0 {
		s.rw.Reply(503, "5.5.1 No recipient specified")
		s.bumpKick()
		return
	}

	file, err := s.engine.Queue.MessageFile(ctx, s.id, s.envelope.MsgID)
	if err != nil || file == nil {
		s.rw.Reply(421, "4.0.0 Temporary failure opening message")
		s.state = StateQuit
		return
	}
	s.spool = file

	trailer := formatReceivedTrailer(s, s.cfg.Hostname, s.envelope.MsgID, s.tlsCipherInfo)
	if _, err := s.spool.W.Write([]byte(trailer)); err != nil {
		s.tempfail = true
	}

	s.datalen = 0
	s.flags &^= FlagSMTPEnd | FlagMFAEnd
	if s.engine.Mfa == nil || !s.engine.Mfa.DataLineEnabled() {
		s.flags |= FlagMFAEnd
	}

	s.rw.Reply(354, "Enter mail, end with \".\" on a line by itself")
	s.state = StateBody
}

// runBody consumes exactly one raw line of the message body per call,
// returning control to the session's main loop (session.go's run) so the
// idle deadline and connection error handling stay centralized there.
// Dot-stuffing is undone, 8BITMIME masking is applied when the session
// never advertised it, and the sole "." sentinel drives the end-of-body
// gate (§4.5): only once both F_SMTP_END and F_MFA_END are set does the
// message move on to commit or rollback.
func (s *Session) runBody(ctx context.Context) {
	raw, err := s.r.ReadString('\n')
	if err != nil {
		s.state = StateQuit
		return
	}
	if len(raw) > s.cfg.Limits.MaxLineLength {
		s.permfail = true
	}
	line := strings.TrimRight(raw, "\r\n")

	if line == "." {
		s.flags |= FlagSMTPEnd
		if s.engine.Mfa != nil && s.engine.Mfa.DataLineEnabled() {
			if _, err := s.engine.Mfa.DataLine(ctx, s.id, "."); err != nil {
				s.tempfail = true
			}
		}
		s.flags |= FlagMFAEnd
		s.finalizeBody(ctx)
		return
	}

	unstuffed := line
	if strings.HasPrefix(line, ".") {
		unstuffed = line[1:]
	}
	if !s.flags.has(Flag8BITMIME) {
		unstuffed = mask7Bit(unstuffed)
	}

	s.datalen += int64(len(unstuffed)) + 2
	if s.datalen > s.cfg.Limits.MaxMessageSize {
		s.permfail = true
		return
	}

	if s.engine.Mfa != nil && s.engine.Mfa.DataLineEnabled() {
		lines, err := s.engine.Mfa.DataLine(ctx, s.id, unstuffed)
		if err != nil {
			s.tempfail = true
			return
		}
		for _, l := range lines {
			s.writeBodyLine(l)
		}
		return
	}
	s.writeBodyLine(unstuffed)
}

func (s *Session) writeBodyLine(line string) {
	if s.spool == nil {
		s.tempfail = true
		return
	}
	n, err := s.spool.W.Write([]byte(line + "\n"))
	if err != nil || n != len(line)+1 {
		s.tempfail = true
	}
}

// mask7Bit clears the high bit of every byte, the minimal rendition of
// "the session never advertised 8BITMIME" (spec §4.5).
func mask7Bit(s string) string {
	b := []byte(s)
	for i, c := range b {
		b[i] = c & 0x7f
	}
	return string(b)
}

// finalizeBody implements the end-of-body gate (§4.5): close the spool,
// decide PERMFAIL/TEMPFAIL/accept, and either commit the message to the
// queue or roll it back.
func (s *Session) finalizeBody(ctx context.Context) {
	if !s.flags.has(FlagSMTPEnd) || !s.flags.has(FlagMFAEnd) {
		return
	}

	size := int64(0)
	if s.spool != nil {
		if s.spool.Size != nil {
			size = s.spool.Size()
		}
		s.spool.Close()
		s.spool = nil
	}

	s.phase = PhaseSetup
	msgID := s.envelope.MsgID

	switch {
	case s.permfail:
		s.engine.Queue.RemoveMessage(ctx, msgID)
		s.rw.Reply(554, "5.6.0 Message rejected")
		s.permfail = false
		s.tempfail = false
		s.envelope.MsgID = ""
		s.state = StateHelo
	case s.tempfail:
		s.engine.Queue.RemoveMessage(ctx, msgID)
		s.rw.Reply(421, "4.0.0 Temporary failure receiving message")
		s.permfail = false
		s.tempfail = false
		s.envelope.MsgID = ""
		s.state = StateQuit
	default:
		committed, err := s.engine.Queue.CommitMessage(ctx, s.id, msgID)
		if err != nil || !committed {
			s.rw.Reply(421, "4.0.0 Temporary failure committing message")
			s.envelope.MsgID = ""
			s.state = StateQuit
			return
		}
		s.mailcount++
		s.datalen = size
		if s.engine.Metrics != nil {
			s.engine.Metrics.MessageAccepted(size)
		}
		s.resetKick()
		s.rw.Reply(250, "2.0.0 "+msgID+" Message accepted for delivery")
		s.envelope.MsgID = ""
		s.state = StateHelo
	}
}
