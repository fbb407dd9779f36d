package smtpd

import (
	"encoding/base64"
	"strings"

	"github.com/emersion/go-sasl"
)

// SASL mechanism names advertised in EHLO's AUTH line, reusing go-sasl's
// constants rather than redeclaring the literal strings.
const (
	MechPlain = sasl.Plain
	MechLogin = sasl.Login
)

// decodeSASL base64-decodes a continuation response. A decode failure is
// always a syntax error (§4.4: "Decode failures ... reply 501 Syntax
// error").
func decodeSASL(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, ErrBadSASLSyntax
	}
	return b, nil
}

// encodeSASLChallenge base64-encodes a server challenge for a 334 line.
func encodeSASLChallenge(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// plainCredentials is the decoded shape of an AUTH PLAIN blob.
type plainCredentials struct {
	Authzid string
	Authcid string
	Passwd  string
}

// parsePlainBlob implements the PLAIN decode rule in spec §4.4: the blob is
// "[authzid] \0 authcid \0 password"; both NULs must be present and neither
// authcid nor password may be empty.
func parsePlainBlob(blob []byte) (plainCredentials, error) {
	parts := strings.SplitN(string(blob), "\x00", 3)
	if len(parts) != 3 {
		return plainCredentials{}, ErrBadSASLSyntax
	}
	authzid, authcid, passwd := parts[0], parts[1], parts[2]
	if authcid == "" || passwd == "" {
		return plainCredentials{}, ErrBadSASLSyntax
	}
	return plainCredentials{Authzid: authzid, Authcid: authcid, Passwd: passwd}, nil
}

// zeroString drops the session's reference to a decoded credential
// immediately after dispatch (spec §3/§5). Go's immutable strings mean this
// cannot scrub the original backing bytes in place without unsafe; dropping
// the reference here is the best a GC'd runtime gives us short of that.
func zeroString(s *string) {
	*s = ""
}
