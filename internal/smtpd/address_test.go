package smtpd

import (
	"testing"

	"github.com/infodancer/smtpd/internal/collab"
)

func TestParseMailaddr(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    collab.Mailaddr
		wantOK  bool
		isNull  bool
	}{
		{name: "simple", raw: "<a@ex>", want: collab.Mailaddr{User: "a", Domain: "ex"}, wantOK: true},
		{name: "null sender", raw: "<>", want: collab.Mailaddr{}, wantOK: true, isNull: true},
		{name: "with surrounding whitespace", raw: "  <a@ex>  ", want: collab.Mailaddr{User: "a", Domain: "ex"}, wantOK: true},
		{name: "missing angle brackets", raw: "a@ex", wantOK: false},
		{name: "missing closing bracket", raw: "<a@ex", wantOK: false},
		{name: "missing opening bracket", raw: "a@ex>", wantOK: false},
		{name: "too short", raw: "<", wantOK: false},
		{name: "no at sign", raw: "<noatsign>", wantOK: false},
		{name: "empty local part", raw: "<@ex>", wantOK: false},
		{name: "empty domain", raw: "<a@>", wantOK: false},
		{name: "space in local part", raw: "<a b@ex>", wantOK: false},
		{name: "multiple at signs", raw: "<a@b@ex>", wantOK: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseMailaddr(tc.raw)
			if ok != tc.wantOK {
				t.Fatalf("ParseMailaddr(%q) ok = %v, want %v", tc.raw, ok, tc.wantOK)
			}
			if !tc.wantOK {
				return
			}
			if got != tc.want {
				t.Errorf("ParseMailaddr(%q) = %+v, want %+v", tc.raw, got, tc.want)
			}
			if got.IsNull() != tc.isNull {
				t.Errorf("ParseMailaddr(%q).IsNull() = %v, want %v", tc.raw, got.IsNull(), tc.isNull)
			}
		})
	}
}

func TestMailaddr_String(t *testing.T) {
	if got := (collab.Mailaddr{}).String(); got != "<>" {
		t.Errorf("null Mailaddr.String() = %q, want <>", got)
	}
	addr := collab.Mailaddr{User: "a", Domain: "ex"}
	if got := addr.String(); got != "a@ex" {
		t.Errorf("Mailaddr.String() = %q, want a@ex", got)
	}
}
