package smtpd

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

// TestReplyWriter_SingleLine verifies the basic code/space/text/CRLF framing
// and checks invariant P1's lower bound (no reply under 4 bytes).
func TestReplyWriter_SingleLine(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	rw := newReplyWriter(w, nil)

	if err := rw.Reply(250, "Ok"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	got := buf.String()
	if got != "250 Ok\r\n" {
		t.Errorf("Reply(250, %q) wrote %q", "Ok", got)
	}
	if len(got) < 4 {
		t.Errorf("reply line %q shorter than P1's 4-byte minimum", got)
	}
}

// TestReplyWriter_MultiLine verifies the '-' continuation marker on every
// line but the last.
func TestReplyWriter_MultiLine(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	rw := newReplyWriter(w, nil)

	if err := rw.Reply(250, "Hello", "STARTTLS", "HELP"); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\r\n"), "\r\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3: %q", len(lines), buf.String())
	}
	if lines[0] != "250-Hello" || lines[1] != "250-STARTTLS" || lines[2] != "250 HELP" {
		t.Errorf("unexpected multi-line framing: %v", lines)
	}
}

// TestReplyWriter_TruncatesOverlongLine enforces P1's upper bound.
func TestReplyWriter_TruncatesOverlongLine(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)
	rw := newReplyWriter(w, nil)

	long := strings.Repeat("x", maxReplyLine*2)
	if err := rw.Reply(250, long); err != nil {
		t.Fatalf("Reply: %v", err)
	}
	line := strings.TrimRight(buf.String(), "\r\n")
	if len(line) > maxReplyLine {
		t.Errorf("reply line length %d exceeds maxReplyLine %d", len(line), maxReplyLine)
	}
}

func TestEscapeCommand_PrintableUnchanged(t *testing.T) {
	if got := escapeCommand("HELO client.example"); got != "HELO client.example" {
		t.Errorf("escapeCommand altered a printable line: %q", got)
	}
}

func TestEscapeCommand_EscapesControlBytes(t *testing.T) {
	got := escapeCommand("HELO\x00evil\x1b[31m")
	if strings.ContainsRune(got, 0x00) || strings.Contains(got, "\x1b") {
		t.Errorf("escapeCommand left raw control bytes: %q", got)
	}
}
