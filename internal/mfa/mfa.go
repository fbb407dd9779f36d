// Package mfa provides the default collab.Mfa implementation: a permissive
// policy engine with an explicit allow/deny list, grounded on the
// accept/reject shape fjl-smtpd's Slowdown/acceptConnect checks use inline,
// generalized here into a standalone collaborator per spec §6.
package mfa

import (
	"context"
	"net"
	"strings"

	"github.com/infodancer/smtpd/internal/collab"
)

// Policy is the default collab.Mfa: every checkpoint is accepted unless the
// connecting peer or sender/recipient domain matches DenyList. A non-empty
// AllowList is consulted only at CONNECT, where a peer that matches nothing
// in it is rejected.
type Policy struct {
	AllowList      []string
	DenyList       []string
	DataLineEnable bool
}

// NewPolicy builds a Policy from the allow/deny host and domain lists.
func NewPolicy(allow, deny []string, dataLineEnabled bool) *Policy {
	return &Policy{AllowList: allow, DenyList: deny, DataLineEnable: dataLineEnabled}
}

func (p *Policy) Connect(ctx context.Context, id uint64, env collab.Envelope) (collab.MfaReply, error) {
	host, _, _ := net.SplitHostPort(env.Peer.String())
	if host == "" {
		host = env.Peer.String()
	}
	if p.matches(p.DenyList, host) {
		return collab.MfaReply{ID: id, Verdict: collab.VerdictReject, Code: 554, Text: "5.7.1 Connection rejected"}, nil
	}
	if len(p.AllowList) > 0 && !p.matches(p.AllowList, host) {
		return collab.MfaReply{ID: id, Verdict: collab.VerdictReject, Code: 554, Text: "5.7.1 Connection rejected"}, nil
	}
	return collab.MfaReply{ID: id, Verdict: collab.VerdictOK}, nil
}

func (p *Policy) Helo(ctx context.Context, id uint64, env collab.Envelope) (collab.MfaReply, error) {
	return collab.MfaReply{ID: id, Verdict: collab.VerdictOK}, nil
}

func (p *Policy) Mail(ctx context.Context, id uint64, env collab.Envelope) (collab.MfaReply, error) {
	if env.Sender.IsNull() {
		return collab.MfaReply{ID: id, Verdict: collab.VerdictOK}, nil
	}
	if p.matches(p.DenyList, env.Sender.Domain) {
		return collab.MfaReply{ID: id, Verdict: collab.VerdictReject, Code: 550, Text: "5.7.1 Sender rejected"}, nil
	}
	return collab.MfaReply{ID: id, Verdict: collab.VerdictOK}, nil
}

func (p *Policy) Rcpt(ctx context.Context, id uint64, env collab.Envelope) (collab.MfaReply, error) {
	if p.matches(p.DenyList, env.Rcpt.Domain) {
		return collab.MfaReply{ID: id, Verdict: collab.VerdictReject, Code: 550, Text: "5.7.1 Recipient rejected"}, nil
	}
	return collab.MfaReply{ID: id, Verdict: collab.VerdictOK, Rcpt: env.Rcpt}, nil
}

func (p *Policy) Rset(ctx context.Context, id uint64, env collab.Envelope) (collab.MfaReply, error) {
	return collab.MfaReply{ID: id, Verdict: collab.VerdictOK}, nil
}

func (p *Policy) DataLineEnabled() bool { return p.DataLineEnable }

// DataLine passes the line through unchanged; a real content filter would
// scrub or reject here, but the default policy has nothing to say about
// message bodies.
func (p *Policy) DataLine(ctx context.Context, id uint64, line string) ([]string, error) {
	return []string{line}, nil
}

func (p *Policy) matches(list []string, needle string) bool {
	needle = strings.ToLower(needle)
	for _, entry := range list {
		if strings.ToLower(entry) == needle {
			return true
		}
	}
	return false
}
