package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"audiobook/internal/services"
)

// SessionBusyError means another run holds the session.
type SessionBusyError struct {
	SessionID string
	LockPath  string
}

func (e *SessionBusyError) Error() string {
	if e.LockPath != "" {
		return fmt.Sprintf("session %s is busy: another process holds %s", e.SessionID, e.LockPath)
	}
	return fmt.Sprintf("session %s is busy: a run is already in progress", e.SessionID)
}

func (e *SessionBusyError) Is(target error) bool {
	return target == services.ErrSessionBusy
}

// sessionLocks guards sessions within the process and, when dir is set,
// across processes through one lock file per session.
type sessionLocks struct {
	dir string

	mu   sync.Mutex
	held map[string]struct{}
}

func newSessionLocks(dir string) *sessionLocks {
	return &sessionLocks{dir: dir, held: make(map[string]struct{})}
}

func (l *sessionLocks) path(sessionID string) string {
	if l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, sessionID+".lock")
}

// acquire returns a release func, or SessionBusyError when the session is
// already held.
func (l *sessionLocks) acquire(sessionID string) (func(), error) {
	l.mu.Lock()
	if _, busy := l.held[sessionID]; busy {
		l.mu.Unlock()
		return nil, &SessionBusyError{SessionID: sessionID}
	}
	l.held[sessionID] = struct{}{}
	l.mu.Unlock()

	forget := func() {
		l.mu.Lock()
		delete(l.held, sessionID)
		l.mu.Unlock()
	}

	lockPath := l.path(sessionID)
	if lockPath == "" {
		return forget, nil
	}
	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		forget()
		return nil, services.Wrap(services.ErrConfiguration, "", "session lock", "create lock dir "+l.dir, err)
	}
	fileLock := flock.New(lockPath)
	ok, err := fileLock.TryLock()
	if err != nil {
		forget()
		return nil, services.Wrap(services.ErrConfiguration, "", "session lock", "acquire "+lockPath, err)
	}
	if !ok {
		forget()
		return nil, &SessionBusyError{SessionID: sessionID, LockPath: lockPath}
	}
	return func() {
		_ = fileLock.Unlock()
		forget()
	}, nil
}
