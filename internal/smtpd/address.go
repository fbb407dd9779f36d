package smtpd

import (
	"strings"

	"github.com/infodancer/smtpd/internal/collab"
)

// ParseMailaddr implements the address lexer of spec §4.7: it accepts
// exactly "<local@domain>" or "<>", strips the angle brackets, and
// delegates to emailToMailaddr. The null sender/recipient <> is returned
// as the zero Mailaddr, distinguishable from a parse failure by the bool
// return (spec §9: "the mailaddr parser must distinguish <> from invalid
// input").
func ParseMailaddr(raw string) (collab.Mailaddr, bool) {
	raw = strings.TrimSpace(raw)
	if len(raw) < 2 || raw[0] != '<' || raw[len(raw)-1] != '>' {
		return collab.Mailaddr{}, false
	}
	inner := raw[1 : len(raw)-1]
	if inner == "" {
		return collab.Mailaddr{}, true
	}
	return emailToMailaddr(inner)
}

// emailToMailaddr splits "local@domain" into a Mailaddr. It requires
// exactly one '@' with non-empty local and domain parts; this is
// deliberately conservative rather than RFC-5321-complete, matching the
// teacher's own stance that a full address grammar is out of scope for the
// wire-level lexer (fjl-smtpd's colonAddress comment: "I'm not putting a
// full RFC whatever address parser in here").
func emailToMailaddr(s string) (collab.Mailaddr, bool) {
	at := strings.LastIndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return collab.Mailaddr{}, false
	}
	user, domain := s[:at], s[at+1:]
	if strings.ContainsAny(user, " \t<>@") || strings.ContainsAny(domain, " \t<>@") {
		return collab.Mailaddr{}, false
	}
	return collab.Mailaddr{User: user, Domain: domain}, true
}
