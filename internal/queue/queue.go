// Package queue is the default collab.Queue implementation: a filesystem
// spool using the tmp/new Maildir convention infodancer-pop3d's maildir
// message store follows, with google/uuid minting message ids in place of
// the teacher's sequential counters.
package queue

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/infodancer/smtpd/internal/collab"
)

// FileQueue spools messages under Dir/tmp while they are being received and
// moves them to Dir/new once every recipient has been committed.
type FileQueue struct {
	Dir string

	mu       sync.Mutex
	envelope map[string][]collab.Envelope
}

// New builds a FileQueue rooted at dir, creating the tmp/new subdirectories
// if they do not already exist.
func New(dir string) (*FileQueue, error) {
	for _, sub := range []string{"tmp", "new"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("queue: creating %s: %w", sub, err)
		}
	}
	return &FileQueue{Dir: dir, envelope: make(map[string][]collab.Envelope)}, nil
}

// CreateMessage allocates a fresh message id; the spool file itself is not
// opened until MessageFile is called, mirroring the MAIL-FROM-then-DATA
// split of spec §4.1.
func (q *FileQueue) CreateMessage(ctx context.Context, id uint64) (collab.QueueCreateResult, error) {
	msgID := uuid.NewString()
	q.mu.Lock()
	q.envelope[msgID] = nil
	q.mu.Unlock()
	return collab.QueueCreateResult{OK: true, MsgID: msgID}, nil
}

func (q *FileQueue) tmpPath(msgID string) string { return filepath.Join(q.Dir, "tmp", msgID) }
func (q *FileQueue) newPath(msgID string) string { return filepath.Join(q.Dir, "new", msgID) }

// MessageFile opens (creating if necessary) the tmp spool file for msgID.
func (q *FileQueue) MessageFile(ctx context.Context, id uint64, msgID string) (*collab.QueueFile, error) {
	f, err := os.OpenFile(q.tmpPath(msgID), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("queue: opening spool file: %w", err)
	}
	return &collab.QueueFile{
		MsgID: msgID,
		W:     f,
		Size: func() int64 {
			st, err := f.Stat()
			if err != nil {
				return 0
			}
			return st.Size()
		},
		Close: f.Close,
	}, nil
}

// SubmitEnvelope records one recipient against the open message.
func (q *FileQueue) SubmitEnvelope(ctx context.Context, id uint64, env collab.Envelope) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.envelope[env.MsgID]; !ok {
		return false, fmt.Errorf("queue: unknown message %s", env.MsgID)
	}
	q.envelope[env.MsgID] = append(q.envelope[env.MsgID], env)
	return true, nil
}

// CommitEnvelopes does no work of its own: it reports whether msgID is a
// message this queue still knows. Envelopes accumulate in memory as
// SubmitEnvelope is called; CommitMessage does not read them.
func (q *FileQueue) CommitEnvelopes(ctx context.Context, id uint64, msgID string) (bool, error) {
	q.mu.Lock()
	_, ok := q.envelope[msgID]
	q.mu.Unlock()
	return ok, nil
}

// CommitMessage renames the tmp spool file into new/, finalizing delivery
// eligibility. Actual outbound delivery is out of scope (spec Non-goals).
func (q *FileQueue) CommitMessage(ctx context.Context, id uint64, msgID string) (bool, error) {
	if err := os.Rename(q.tmpPath(msgID), q.newPath(msgID)); err != nil {
		return false, fmt.Errorf("queue: committing message: %w", err)
	}
	return true, nil
}

// RemoveMessage deletes the tmp spool file and forgets its envelopes. Errors
// are swallowed per spec §5's cancellation contract: rollback is always
// best-effort from the client's point of view.
func (q *FileQueue) RemoveMessage(ctx context.Context, msgID string) {
	os.Remove(q.tmpPath(msgID))
	q.mu.Lock()
	delete(q.envelope, msgID)
	q.mu.Unlock()
}
