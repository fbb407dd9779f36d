// Package auth is the default collab.Auth implementation: a thin adapter
// over github.com/infodancer/auth's AuthenticationAgent, the same
// credential backend infodancer-pop3d wires through its AuthProvider.
package auth

import (
	"context"

	infodancerauth "github.com/infodancer/auth"
	_ "github.com/infodancer/auth/passwd" // registers the "passwd" backend

	"github.com/infodancer/smtpd/internal/collab"
)

// Agent implements collab.Auth by delegating SASL/AUTH credential checks to
// an infodancer/auth AuthenticationAgent.
type Agent struct {
	agent infodancerauth.AuthenticationAgent
}

// Open builds an Agent backed by the passwd file at path.
func Open(path string) (*Agent, error) {
	agent, err := infodancerauth.OpenAuthAgent(infodancerauth.AuthAgentConfig{
		Type:              "passwd",
		CredentialBackend: "passwd",
		Options:           map[string]string{"path": path},
	})
	if err != nil {
		return nil, err
	}
	return &Agent{agent: agent}, nil
}

// Close releases the underlying agent's resources.
func (a *Agent) Close() error {
	if a.agent == nil {
		return nil
	}
	return a.agent.Close()
}

// Authenticate implements collab.Auth. A failed lookup or credential
// mismatch is reported as AuthResult{Success: false}, never as an error,
// so the session always has a definite reply code to send (§4.4).
func (a *Agent) Authenticate(ctx context.Context, id uint64, user, pass string) (collab.AuthResult, error) {
	if a.agent == nil {
		return collab.AuthResult{ID: id, Success: false}, nil
	}
	sess, err := a.agent.Authenticate(ctx, user, pass)
	if err != nil || sess == nil {
		return collab.AuthResult{ID: id, Success: false}, nil
	}
	return collab.AuthResult{ID: id, Success: true}, nil
}
