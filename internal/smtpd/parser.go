package smtpd

import "strings"

// Verb identifies a recognized SMTP command (spec §4.2). Unlike the
// teacher's bitmask conState, Verb is a plain enumeration — the phase and
// state gating that conState conflated in fjl-smtpd's conState is split
// here into Session.state and Session.phase (spec §3 keeps them
// orthogonal).
type Verb int

const (
	VerbUnknown Verb = iota
	VerbHELO
	VerbEHLO
	VerbSTARTTLS
	VerbAUTH
	VerbMAILFROM
	VerbRCPTTO
	VerbDATA
	VerbRSET
	VerbQUIT
	VerbHELP
	VerbNOOP
)

func (v Verb) String() string {
	switch v {
	case VerbHELO:
		return "HELO"
	case VerbEHLO:
		return "EHLO"
	case VerbSTARTTLS:
		return "STARTTLS"
	case VerbAUTH:
		return "AUTH"
	case VerbMAILFROM:
		return "MAIL FROM"
	case VerbRCPTTO:
		return "RCPT TO"
	case VerbDATA:
		return "DATA"
	case VerbRSET:
		return "RSET"
	case VerbQUIT:
		return "QUIT"
	case VerbHELP:
		return "HELP"
	case VerbNOOP:
		return "NOOP"
	default:
		return "UNKNOWN"
	}
}

// colonVerb pairs a verb with the literal prefix it matches when the
// argument is introduced by ':' rather than a space (§4.2: "The MAIL FROM
// and RCPT TO forms are split at the first ':'").
type colonVerb struct {
	verb   Verb
	prefix string
}

var colonVerbs = []colonVerb{
	{VerbMAILFROM, "MAIL FROM"},
	{VerbRCPTTO, "RCPT TO"},
}

// spaceVerbs lists every other recognized token, matched case-insensitively
// against the word up to the first space.
var spaceVerbs = map[string]Verb{
	"HELO":     VerbHELO,
	"EHLO":     VerbEHLO,
	"STARTTLS": VerbSTARTTLS,
	"AUTH":     VerbAUTH,
	"DATA":     VerbDATA,
	"RSET":     VerbRSET,
	"QUIT":     VerbQUIT,
	"HELP":     VerbHELP,
	"NOOP":     VerbNOOP,
}

// ParsedCommand is the result of tokenizing one command line (the CRLF is
// already stripped by the caller).
type ParsedCommand struct {
	Verb   Verb
	Arg    string // left-trimmed argument, or address for colon forms
	Params string // ESMTP parameter tail of a MAIL FROM or RCPT TO line
	Err    error
}

// ParseCommand tokenizes line per spec §4.2. Unknown verbs report
// ErrUnknownCommand; the caller is responsible for the 500 reply.
func ParseCommand(line string) ParsedCommand {
	upper := strings.ToUpper(line)

	for _, cv := range colonVerbs {
		if !strings.HasPrefix(upper, cv.prefix) {
			continue
		}
		rest := line[len(cv.prefix):]
		idx := strings.IndexByte(rest, ':')
		if idx == -1 {
			return ParsedCommand{Verb: cv.verb, Err: ErrBadAddress}
		}
		after := strings.TrimLeft(rest[idx+1:], " \t")
		addr, params := splitAddressParams(after)
		return ParsedCommand{Verb: cv.verb, Arg: addr, Params: params}
	}

	word := upper
	if sp := strings.IndexByte(upper, ' '); sp != -1 {
		word = upper[:sp]
	}
	verb, ok := spaceVerbs[word]
	if !ok {
		return ParsedCommand{Verb: VerbUnknown, Err: ErrUnknownCommand}
	}

	arg := ""
	if len(word) < len(line) {
		arg = strings.TrimLeft(line[len(word):], " \t")
	}
	return ParsedCommand{Verb: verb, Arg: arg}
}

// splitAddressParams splits "<addr> PARAM1 PARAM2" into the bracketed
// address and the raw parameter tail. It does not validate the address;
// that is ParseMailaddr's job (§4.7).
func splitAddressParams(s string) (addr string, params string) {
	s = strings.TrimLeft(s, " \t")
	if s == "" {
		return "", ""
	}
	if s[0] != '<' {
		return s, ""
	}
	end := strings.IndexByte(s, '>')
	if end == -1 {
		return s, ""
	}
	addr = s[:end+1]
	params = strings.TrimSpace(s[end+1:])
	return addr, params
}

// MailParam is one ESMTP parameter recognized on MAIL FROM (§4.2).
type MailParam struct {
	Name  string
	Value string
}

// ParseMailParams tokenizes the MAIL FROM parameter tail. Parameters are
// whitespace separated and must be parsed right-to-left per spec, which
// matters only for which one's error wins when several are malformed — we
// surface the first (rightmost) unsupported one, matching the single-error
// short-circuit the spec describes.
func ParseMailParams(tail string) []MailParam {
	fields := strings.Fields(tail)
	params := make([]MailParam, 0, len(fields))
	for i := len(fields) - 1; i >= 0; i-- {
		f := fields[i]
		name, value, _ := strings.Cut(f, "=")
		params = append(params, MailParam{Name: strings.ToUpper(name), Value: value})
	}
	return params
}
