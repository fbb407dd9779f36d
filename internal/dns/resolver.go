// Package dns is the default collab.Dns implementation: reverse-DNS (PTR)
// resolution for the greeting-time hostname lookup of spec §4.1, built on
// github.com/miekg/dns instead of the standard resolver so SERVFAIL and
// timeout can be told apart the way Loweel-sinksmtp's mxresolve.go does for
// MX validation.
package dns

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/infodancer/smtpd/internal/collab"
	miekgdns "github.com/miekg/dns"
)

// Resolver implements collab.Dns. It mirrors the request/response shape of
// spec §4.3's correlation registries internally: a worker goroutine serves
// lookups pulled off a channel and a collab.Registry[string] lets arbitrary
// numbers of callers wait on an in-flight query without racing.
type Resolver struct {
	client  *miekgdns.Client
	servers []string

	mu      sync.Mutex
	reg     *collab.Registry[ptrResult]
	reqs    chan ptrRequest
	closeCh chan struct{}
}

type ptrResult struct {
	host string
	err  error
}

type ptrRequest struct {
	id   uint64
	addr net.Addr
}

// NewResolver builds a Resolver querying the given nameservers
// ("host:port" form); if none are given, /etc/resolv.conf is used.
func NewResolver(servers ...string) *Resolver {
	if len(servers) == 0 {
		if cfg, err := miekgdns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
			for _, s := range cfg.Servers {
				servers = append(servers, net.JoinHostPort(s, cfg.Port))
			}
		}
	}
	r := &Resolver{
		client:  &miekgdns.Client{},
		servers: servers,
		reg:     collab.NewRegistry[ptrResult](),
		reqs:    make(chan ptrRequest, 64),
		closeCh: make(chan struct{}),
	}
	go r.worker()
	return r
}

func (r *Resolver) worker() {
	for {
		select {
		case req := <-r.reqs:
			host, err := r.lookup(req.addr)
			r.reg.Pop(req.id, ptrResult{host: host, err: err})
		case <-r.closeCh:
			return
		}
	}
}

// Close stops the background worker.
func (r *Resolver) Close() { close(r.closeCh) }

// Ptr implements collab.Dns: it resolves peer's reverse-DNS name, returning
// the first result with the trailing dot stripped. Temporary (SERVFAIL,
// timeout) failures and permanent (NXDOMAIN) failures are both surfaced as
// errors; the caller (session greet) treats both the same way today, but
// the distinction is preserved in the wrapped error for future policy use.
func (r *Resolver) Ptr(ctx context.Context, id uint64, peer net.Addr) (string, error) {
	ch := r.reg.Park(id)
	select {
	case r.reqs <- ptrRequest{id: id, addr: peer}:
	case <-ctx.Done():
		r.reg.Cancel(id)
		return "", ctx.Err()
	}
	select {
	case res := <-ch:
		return res.host, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *Resolver) lookup(peer net.Addr) (string, error) {
	host, _, err := net.SplitHostPort(peer.String())
	if err != nil {
		host = peer.String()
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return "", fmt.Errorf("dns: not an IP address: %s", host)
	}

	arpa, err := miekgdns.ReverseAddr(ip.String())
	if err != nil {
		return "", err
	}

	m := new(miekgdns.Msg)
	m.SetQuestion(arpa, miekgdns.TypePTR)
	m.RecursionDesired = true

	if len(r.servers) == 0 {
		return "", fmt.Errorf("dns: no nameservers configured")
	}

	var lastErr error
	for _, server := range r.servers {
		resp, _, err := r.client.Exchange(m, server)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.Rcode == miekgdns.RcodeServerFailure {
			lastErr = fmt.Errorf("dns: %s: server misbehaving", server)
			continue
		}
		if resp.Rcode != miekgdns.RcodeSuccess {
			return "", fmt.Errorf("dns: %s: rcode %s", server, miekgdns.RcodeToString[resp.Rcode])
		}
		for _, rr := range resp.Answer {
			if ptr, ok := rr.(*miekgdns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		return "", fmt.Errorf("dns: %s: no PTR records", server)
	}
	return "", lastErr
}
