// Package lockfile guards a sync root against concurrent diff or sync runs.
// A lock is a small JSON file whose timestamp is refreshed by a heartbeat;
// a lock whose heartbeat stopped is considered stale and may be taken over.
package lockfile

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/paulschiretz/pgl-filediff/pkg/plog"
	"github.com/paulschiretz/pgl-filediff/pkg/util"
)

// LockFileName is created in every root a run touches.
const LockFileName = ".~pgl-filediff.lock"

// Holder identifies the process owning a lock.
type Holder struct {
	PID       int       `json:"pid"`
	Hostname  string    `json:"hostname"`
	Command   string    `json:"command"`
	Heartbeat time.Time `json:"heartbeat"`
	Token     string    `json:"token"`
}

// HeldError is returned when a live lock is owned by someone else.
type HeldError struct {
	Path   string
	Holder Holder
	Age    time.Duration
}

func (e *HeldError) Error() string {
	return fmt.Sprintf("%s is locked by PID %d on host '%s' (%s), last heartbeat %s ago",
		e.Path, e.Holder.PID, e.Holder.Hostname, e.Holder.Command, e.Age.Truncate(time.Second))
}

// errTakeoverLost means another process replaced the stale lock first.
var errTakeoverLost = errors.New("lost stale lock takeover")

// errUnreadable marks a lock file that is empty or not valid JSON.
var errUnreadable = errors.New("lock file is unreadable")

var (
	heartbeatInterval = 30 * time.Second
	staleAfter        = 4 * heartbeatInterval
	retryDelay        = 100 * time.Millisecond
)

// Lock is an acquired lock. Release it exactly once; extra calls are no-ops.
type Lock struct {
	path   string
	holder Holder

	mu     sync.Mutex
	stop   chan struct{}
	done   chan struct{}
	active bool
}

// Path returns the absolute lock file path.
func (l *Lock) Path() string { return l.path }

// Acquire takes the lock in dir for command. A *HeldError is returned when
// another process holds a fresh lock.
func Acquire(ctx context.Context, dir, command string) (*Lock, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("could not resolve lock directory %s: %w", dir, err)
	}
	lockPath := filepath.Join(absDir, LockFileName)

	const attempts = 3
	for range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		holder, err := newHolder(command)
		if err != nil {
			return nil, err
		}

		err = createExclusive(lockPath, holder)
		if err == nil {
			return start(lockPath, holder), nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", lockPath, err)
		}

		current, err := read(lockPath)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Released between our create and read.
			continue
		case errors.Is(err, errUnreadable):
			plog.Warn("Lock file is unreadable, treating it as stale", "path", lockPath, "error", err)
		case err != nil:
			return nil, fmt.Errorf("failed to read lock file %s: %w", lockPath, err)
		default:
			age := time.Since(current.Heartbeat)
			if age < staleAfter {
				return nil, &HeldError{Path: lockPath, Holder: current, Age: age}
			}
			plog.Warn("Taking over stale lock", "path", lockPath, "pid", current.PID, "age", age.Truncate(time.Second))
		}

		if err := takeover(lockPath, holder); err != nil {
			plog.Debug("Stale lock takeover failed, retrying", "path", lockPath, "error", err)
			if !sleep(ctx, retryDelay) {
				return nil, ctx.Err()
			}
			continue
		}
		return start(lockPath, holder), nil
	}
	return nil, fmt.Errorf("could not acquire %s after %d attempts", lockPath, attempts)
}

// Release stops the heartbeat and removes the lock file.
func (l *Lock) Release() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return
	}
	l.active = false
	close(l.stop)
	<-l.done

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		plog.Warn("Failed to remove lock file", "path", l.path, "error", err)
		return
	}
	plog.Debug("Lock released", "path", l.path)
}

func start(lockPath string, holder Holder) *Lock {
	l := &Lock{
		path:   lockPath,
		holder: holder,
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		active: true,
	}
	go l.beat()
	plog.Debug("Lock acquired", "path", lockPath)
	return l
}

func (l *Lock) beat() {
	defer close(l.done)
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.holder.Heartbeat = time.Now().UTC()
			if err := writeAtomic(l.path, l.holder); err != nil {
				plog.Warn("Failed to refresh lock heartbeat", "path", l.path, "error", err)
			}
		}
	}
}

func newHolder(command string) (Holder, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return Holder{}, fmt.Errorf("failed to generate lock token: %w", err)
	}
	host, err := os.Hostname()
	if err != nil {
		return Holder{}, fmt.Errorf("failed to read hostname: %w", err)
	}
	return Holder{
		PID:       os.Getpid(),
		Hostname:  host,
		Command:   command,
		Heartbeat: time.Now().UTC(),
		Token:     hex.EncodeToString(buf),
	}, nil
}

// createExclusive fails with an os.ErrExist error when the lock file is present.
func createExclusive(lockPath string, holder Holder) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, util.UserWritableFilePerms)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(holder, "", "  ")
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(lockPath)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// takeover overwrites a stale lock and verifies by token that we won.
func takeover(lockPath string, holder Holder) error {
	if err := writeAtomic(lockPath, holder); err != nil {
		return err
	}
	got, err := read(lockPath)
	if err != nil {
		return fmt.Errorf("failed to read back lock file: %w", err)
	}
	if got.Token != holder.Token {
		return errTakeoverLost
	}
	return nil
}

// writeAtomic replaces lockPath via a temp file in the same directory so
// readers never observe a partial file.
func writeAtomic(lockPath string, holder Holder) error {
	data, err := json.MarshalIndent(holder, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal lock content: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(lockPath), filepath.Base(lockPath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp lock file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp lock file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp lock file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp lock file: %w", err)
	}
	if err := os.Rename(tmp.Name(), lockPath); err != nil {
		return fmt.Errorf("failed to replace lock file: %w", err)
	}
	return nil
}

// read retries briefly on empty or partial content before reporting errUnreadable.
func read(lockPath string) (Holder, error) {
	var lastErr error
	for range 3 {
		data, err := os.ReadFile(lockPath)
		if err != nil {
			return Holder{}, err
		}
		var h Holder
		if len(data) == 0 {
			lastErr = errors.New("empty file")
		} else if lastErr = json.Unmarshal(data, &h); lastErr == nil {
			return h, nil
		}
		time.Sleep(20 * time.Millisecond)
	}
	return Holder{}, fmt.Errorf("%w: %v", errUnreadable, lastErr)
}

func sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
