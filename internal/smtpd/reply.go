package smtpd

import (
	"bufio"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// maxReplyLine bounds a single formatted reply line, enforcing P1's upper
// limit; the lower bound (>= 4 bytes, "250 " at minimum) is enforced by
// construction since every call site supplies a 3-digit code.
const maxReplyLine = 512

// replyWriter formats and writes SMTP replies onto the session's wire,
// matching the code/continuation-marker/CRLF framing of fjl-smtpd's
// reply/replyMulti (§4.6).
type replyWriter struct {
	w       *bufio.Writer
	log     *slog.Logger
	command string
}

func newReplyWriter(w *bufio.Writer, log *slog.Logger) *replyWriter {
	return &replyWriter{w: w, log: log}
}

// SetCommand records the client command line a subsequent Reply answers, so
// a 4xx/5xx reply can be logged alongside the offending command (§4.6/§7).
// The session calls this once per dispatched line, before Reply runs.
func (r *replyWriter) SetCommand(line string) {
	r.command = line
}

// Reply sends a single or multi-line ESMTP reply. lines must be non-empty;
// all but the last are sent with a '-' continuation marker.
func (r *replyWriter) Reply(code int, lines ...string) error {
	if len(lines) == 0 {
		lines = []string{""}
	}
	for i, line := range lines {
		sep := byte('-')
		if i == len(lines)-1 {
			sep = ' '
		}
		out := fmt.Sprintf("%3d%c%s", code, sep, line)
		if len(out) > maxReplyLine-2 {
			out = out[:maxReplyLine-2]
		}
		if _, err := r.w.WriteString(out); err != nil {
			return err
		}
		if _, err := r.w.WriteString("\r\n"); err != nil {
			return err
		}
	}
	if code >= 400 {
		r.logFailure(code, lines[len(lines)-1])
	}
	return r.w.Flush()
}

// logFailure logs every 4xx/5xx reply with the offending command escaped,
// per spec §4.6/§7.
func (r *replyWriter) logFailure(code int, text string) {
	if r.log == nil {
		return
	}
	r.log.Warn("smtp reply",
		slog.Int("code", code),
		slog.String("command", escapeCommand(r.command)),
		slog.String("text", text))
}

// escapeCommand renders a client-supplied line safe for logging: control
// characters are replaced with their Go-quoted escapes so a hostile client
// cannot forge log lines or terminal escapes through a crafted command.
func escapeCommand(line string) string {
	if isPrintableASCII(line) {
		return line
	}
	q := strconv.Quote(line)
	return strings.Trim(q, `"`)
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f || c > 0x7e {
			return false
		}
	}
	return true
}
