package events

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"stayfinder/internal/booking"
)

// Journal appends booking events to a local file as JSON lines, fsynced per
// event. The journal is the audit trail that survives a lost stream.
type Journal struct {
	mu sync.Mutex
	f  *os.File
}

// NewJournal opens (or creates) the journal file at path.
func NewJournal(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Journal{f: f}, nil
}

// Publish appends the event as one JSON line.
func (j *Journal) Publish(ctx context.Context, ev booking.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	n, err := j.f.Write(append(data, '\n'))
	if err != nil {
		return err
	}
	if n != len(data)+1 {
		return fmt.Errorf("partial write: wrote %d of %d bytes", n, len(data)+1)
	}

	return j.f.Sync()
}

// Close releases the underlying file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}
