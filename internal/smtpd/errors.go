package smtpd

import "errors"

// Protocol-level sentinel errors returned by the parser/lexer layer. Phase
// and resource-limit violations are replied to directly with their numeric
// code at the call site instead, matching fjl-smtpd's own inline style.
var (
	// ErrUnknownCommand is returned by the parser for an unrecognized verb.
	ErrUnknownCommand = errors.New("smtpd: command unrecognized")

	// ErrBadAddress is returned by the command parser when a MAIL FROM or
	// RCPT TO line has no ':' before its address.
	ErrBadAddress = errors.New("smtpd: malformed address")

	// ErrBadSASLSyntax is returned for malformed base64 or a PLAIN blob
	// missing either NUL separator or an empty authcid/password field.
	ErrBadSASLSyntax = errors.New("smtpd: SASL syntax error")
)
