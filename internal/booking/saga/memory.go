package saga

import (
	"context"
	"sort"
	"sync"
	"time"
)

type leasedCheckpoint struct {
	cp          Checkpoint
	lease       string
	leaseTTL    time.Duration
	leaseExpiry time.Time
}

// MemoryCheckpointStore keeps checkpoints in memory. Fallback for running
// without Postgres and the store used by orchestrator tests; it honors the
// same lease semantics as the SQL implementation.
type MemoryCheckpointStore struct {
	mu          sync.Mutex
	checkpoints map[string]*leasedCheckpoint
	now         func() time.Time
}

// NewMemoryCheckpointStore constructs an empty MemoryCheckpointStore.
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*leasedCheckpoint),
		now:         time.Now,
	}
}

// SetClock overrides the store's clock (for lease expiry tests).
func (s *MemoryCheckpointStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryCheckpointStore) Create(ctx context.Context, cp Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpoints[cp.BookingID]; ok {
		return ErrAlreadyExists
	}
	now := s.now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.checkpoints[cp.BookingID] = &leasedCheckpoint{cp: cp}
	return nil
}

func (s *MemoryCheckpointStore) Acquire(ctx context.Context, bookingID, lease string, ttl time.Duration) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.checkpoints[bookingID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	now := s.now()
	if entry.lease != "" && entry.lease != lease && entry.leaseExpiry.After(now) {
		return Checkpoint{}, ErrLeaseHeld
	}
	entry.lease = lease
	entry.leaseTTL = ttl
	entry.leaseExpiry = now.Add(ttl)
	return entry.cp, nil
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, cp Checkpoint, lease string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.checkpoints[cp.BookingID]
	if !ok {
		return ErrNotFound
	}
	if entry.lease != lease {
		return ErrLeaseLost
	}
	cp.CreatedAt = entry.cp.CreatedAt
	cp.UpdatedAt = s.now()
	entry.cp = cp
	entry.leaseExpiry = s.now().Add(entry.leaseTTL)
	return nil
}

func (s *MemoryCheckpointStore) Release(ctx context.Context, bookingID, lease string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.checkpoints[bookingID]
	if !ok {
		return ErrNotFound
	}
	if entry.lease != lease {
		return ErrLeaseLost
	}
	entry.lease = ""
	entry.leaseExpiry = time.Time{}
	return nil
}

func (s *MemoryCheckpointStore) Get(ctx context.Context, bookingID string) (Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return Checkpoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.checkpoints[bookingID]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return entry.cp, nil
}

func (s *MemoryCheckpointStore) ListResumable(ctx context.Context, limit int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	type candidate struct {
		id      string
		updated time.Time
	}
	var candidates []candidate
	for id, entry := range s.checkpoints {
		if entry.cp.Status.Terminal() || entry.cp.AlertRaised {
			continue
		}
		if entry.lease != "" && entry.leaseExpiry.After(now) {
			continue
		}
		candidates = append(candidates, candidate{id: id, updated: entry.cp.UpdatedAt})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].updated.Before(candidates[j].updated)
	})

	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if limit > 0 && len(ids) >= limit {
			break
		}
		ids = append(ids, c.id)
	}
	return ids, nil
}
