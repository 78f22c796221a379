package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockTimeout is returned when the exclusive region of a table could not
// be entered before the wait bound elapsed.
var ErrLockTimeout = errors.New("storage: lock wait timed out")

const flockPollInterval = 5 * time.Millisecond

// Table is a single file guarded by an exclusive region. Goroutines of one
// process queue on a semaphore; separate processes are serialised by an
// advisory flock on a sidecar ".lock" file.
type Table struct {
	storage  *LocalStorage
	name     string
	lockPath string
	timeout  time.Duration
	sem      chan struct{}
}

func newTable(s *LocalStorage, name string, timeout time.Duration) *Table {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Table{
		storage:  s,
		name:     name,
		lockPath: s.resolve(name) + ".lock",
		timeout:  timeout,
		sem:      make(chan struct{}, 1),
	}
}

// Name returns the file name of the table.
func (t *Table) Name() string {
	return t.name
}

// Read returns the last committed content without taking the lock. Atomic
// replacement in Save guarantees the bytes belong to a single commit.
func (t *Table) Read() ([]byte, error) {
	return t.storage.Read(t.name)
}

// Update runs fn inside the exclusive region. fn receives the committed bytes
// read after the lock was acquired (nil when the table was never written) and
// returns the replacement bytes, or nil to leave the file untouched. The lock
// is released only after the replacement is durable. Errors returned by fn are
// passed through unchanged.
func (t *Table) Update(ctx context.Context, fn func(current []byte) ([]byte, error)) error {
	release, err := t.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	current, err := t.storage.Read(t.name)
	if err != nil {
		return err
	}
	next, err := fn(current)
	if err != nil {
		return err
	}
	if next == nil {
		return nil
	}
	if _, err := t.storage.Save(t.name, next); err != nil {
		return err
	}
	return nil
}

func (t *Table) acquire(parent context.Context) (func(), error) {
	ctx, cancel := context.WithTimeout(parent, t.timeout)
	defer cancel()

	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, waitErr(parent)
	}

	f, err := os.OpenFile(t.lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		<-t.sem
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	fd := int(f.Fd())
	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			break
		}
		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EINTR) {
			_ = f.Close()
			<-t.sem
			return nil, fmt.Errorf("flock %s: %w", t.lockPath, err)
		}
		select {
		case <-ctx.Done():
			_ = f.Close()
			<-t.sem
			return nil, waitErr(parent)
		case <-time.After(flockPollInterval):
		}
	}

	return func() {
		_ = unix.Flock(fd, unix.LOCK_UN)
		_ = f.Close()
		<-t.sem
	}, nil
}

func waitErr(parent context.Context) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrLockTimeout, err)
	}
	return ErrLockTimeout
}
