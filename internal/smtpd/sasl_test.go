package smtpd

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestDecodeSASL(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte("hello"))
	got, err := decodeSASL(encoded)
	if err != nil {
		t.Fatalf("decodeSASL: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("decodeSASL = %q, want %q", got, "hello")
	}
}

func TestDecodeSASL_BadBase64(t *testing.T) {
	_, err := decodeSASL("not valid base64!!!")
	if !errors.Is(err, ErrBadSASLSyntax) {
		t.Fatalf("decodeSASL error = %v, want ErrBadSASLSyntax", err)
	}
}

func TestEncodeSASLChallenge(t *testing.T) {
	got := encodeSASLChallenge([]byte("Username:"))
	want := base64.StdEncoding.EncodeToString([]byte("Username:"))
	if got != want {
		t.Errorf("encodeSASLChallenge = %q, want %q", got, want)
	}
}

func TestParsePlainBlob(t *testing.T) {
	tests := []struct {
		name    string
		blob    string
		want    plainCredentials
		wantErr bool
	}{
		{
			name: "no authzid",
			blob: "\x00user\x00pass",
			want: plainCredentials{Authzid: "", Authcid: "user", Passwd: "pass"},
		},
		{
			name: "with authzid",
			blob: "zid\x00user\x00pass",
			want: plainCredentials{Authzid: "zid", Authcid: "user", Passwd: "pass"},
		},
		{name: "missing second NUL", blob: "\x00user", wantErr: true},
		{name: "empty authcid", blob: "\x00\x00pass", wantErr: true},
		{name: "empty password", blob: "\x00user\x00", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := parsePlainBlob([]byte(tc.blob))
			if tc.wantErr {
				if err == nil {
					t.Fatalf("parsePlainBlob(%q): expected error, got none", tc.blob)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePlainBlob(%q): unexpected error: %v", tc.blob, err)
			}
			if got != tc.want {
				t.Errorf("parsePlainBlob(%q) = %+v, want %+v", tc.blob, got, tc.want)
			}
		})
	}
}

func TestZeroString(t *testing.T) {
	s := "secret"
	zeroString(&s)
	if s != "" {
		t.Errorf("zeroString left %q, want empty", s)
	}
}
