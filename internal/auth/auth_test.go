package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/infodancer/auth/passwd"
)

func newPasswdFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "passwd")
	if f, err := os.Create(path); err != nil {
		t.Fatalf("create passwd file: %v", err)
	} else {
		f.Close()
	}
	return path
}

func TestAgent_AuthenticateSuccess(t *testing.T) {
	path := newPasswdFile(t)
	if err := passwd.AddUser(path, "alice", "testpass"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	agent, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer agent.Close()

	result, err := agent.Authenticate(context.Background(), 1, "alice", "testpass")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !result.Success {
		t.Error("Authenticate with correct password: Success = false, want true")
	}
}

func TestAgent_AuthenticateWrongPassword(t *testing.T) {
	path := newPasswdFile(t)
	if err := passwd.AddUser(path, "alice", "testpass"); err != nil {
		t.Fatalf("AddUser: %v", err)
	}

	agent, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer agent.Close()

	result, err := agent.Authenticate(context.Background(), 1, "alice", "wrongpass")
	if err != nil {
		t.Fatalf("Authenticate returned an error rather than Success=false: %v", err)
	}
	if result.Success {
		t.Error("Authenticate with wrong password: Success = true, want false")
	}
}

func TestAgent_AuthenticateUnknownUser(t *testing.T) {
	path := newPasswdFile(t)

	agent, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer agent.Close()

	result, err := agent.Authenticate(context.Background(), 1, "nobody", "anything")
	if err != nil {
		t.Fatalf("Authenticate returned an error rather than Success=false: %v", err)
	}
	if result.Success {
		t.Error("Authenticate with unknown user: Success = true, want false")
	}
}
