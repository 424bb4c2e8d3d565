package episode

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memoryRepo is the single-writer in-process store: an arena-style map keyed
// by episode id guarded by one mutex, so every operation is applied in call
// order with no interleaving. InTx pins the mutex across a multi-step unit
// and restores the pre-unit state when the unit fails, so a version conflict
// on the final update cannot leave earlier appends behind.
type memoryRepo struct {
	mu       sync.Mutex
	episodes map[uuid.UUID]*Episode
}

func NewMemoryRepo() Repository {
	return &memoryRepo{episodes: make(map[uuid.UUID]*Episode)}
}

type memTxKey struct{}

func (r *memoryRepo) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(memTxKey{}) != nil {
		return fn(ctx)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	before := make(map[uuid.UUID]*Episode, len(r.episodes))
	for id, ep := range r.episodes {
		before[id] = ep.Clone()
	}
	if err := fn(context.WithValue(ctx, memTxKey{}, struct{}{})); err != nil {
		r.episodes = before
		return err
	}
	return nil
}

// lock acquires the store mutex unless the context is already inside InTx.
func (r *memoryRepo) lock(ctx context.Context) func() {
	if ctx.Value(memTxKey{}) != nil {
		return func() {}
	}
	r.mu.Lock()
	return r.mu.Unlock
}

func (r *memoryRepo) Create(ctx context.Context, ep *Episode) error {
	defer r.lock(ctx)()

	if ep.ID == uuid.Nil {
		ep.ID = uuid.New()
	}
	ep.Version = 1
	ep.UpdatedAt = time.Now().UTC()
	r.episodes[ep.ID] = ep.Clone()
	return nil
}

func (r *memoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*Episode, error) {
	defer r.lock(ctx)()

	stored, ok := r.episodes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return stored.Clone(), nil
}

func (r *memoryRepo) List(ctx context.Context, limit, offset int) ([]*Episode, int, error) {
	defer r.lock(ctx)()

	all := make([]*Episode, 0, len(r.episodes))
	for _, ep := range r.episodes {
		all = append(all, ep)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].RegisteredAt.After(all[j].RegisteredAt)
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}

	page := make([]*Episode, 0, end-offset)
	for _, ep := range all[offset:end] {
		page = append(page, ep.Clone())
	}
	return page, total, nil
}

func (r *memoryRepo) Update(ctx context.Context, ep *Episode, expectedVersion int) error {
	defer r.lock(ctx)()

	stored, ok := r.episodes[ep.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Version != expectedVersion {
		return fmt.Errorf("%w: expected version %d, have %d", ErrConflict, expectedVersion, stored.Version)
	}

	stored.FirstName = ep.FirstName
	stored.LastName = ep.LastName
	stored.Name = ep.Name
	stored.BirthDate = ep.BirthDate
	stored.Gender = ep.Gender
	stored.Company = ep.Company
	stored.Status = ep.Status
	stored.Notes = ep.Notes
	if ep.TakenCareBy != nil {
		actor := *ep.TakenCareBy
		stored.TakenCareBy = &actor
	} else {
		stored.TakenCareBy = nil
	}
	stored.Version = expectedVersion + 1
	stored.UpdatedAt = time.Now().UTC()

	ep.Version = stored.Version
	ep.UpdatedAt = stored.UpdatedAt
	return nil
}

func (r *memoryRepo) AppendModifications(ctx context.Context, id uuid.UUID, recs []ModificationRecord) error {
	defer r.lock(ctx)()

	stored, ok := r.episodes[id]
	if !ok {
		return ErrNotFound
	}
	// Newest first: the incoming batch goes in front of the existing history.
	stored.ModificationHistory = append(append([]ModificationRecord(nil), recs...), stored.ModificationHistory...)
	return nil
}

func (r *memoryRepo) AppendLabExams(ctx context.Context, id uuid.UUID, exams []LabExam) error {
	defer r.lock(ctx)()

	stored, ok := r.episodes[id]
	if !ok {
		return ErrNotFound
	}
	for _, x := range exams {
		if x.ID == uuid.Nil {
			x.ID = uuid.New()
		}
		stored.PendingLabExams = append(stored.PendingLabExams, x)
	}
	return nil
}

func (r *memoryRepo) CompleteLabExams(ctx context.Context, id uuid.UUID, exams []LabExam) error {
	defer r.lock(ctx)()

	stored, ok := r.episodes[id]
	if !ok {
		return ErrNotFound
	}

	for _, x := range exams {
		idx := -1
		for i, pending := range stored.PendingLabExams {
			if pending.ID == x.ID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("%w: lab exam %s is not pending", ErrNotFound, x.ID)
		}
		stored.PendingLabExams = append(stored.PendingLabExams[:idx], stored.PendingLabExams[idx+1:]...)
	}
	// Completed exams read newest known first.
	stored.CompletedLabExams = append(cloneExams(exams), stored.CompletedLabExams...)
	return nil
}

func (r *memoryRepo) AppendServiceRecord(ctx context.Context, id uuid.UUID, rec ServiceRecord) error {
	defer r.lock(ctx)()

	stored, ok := r.episodes[id]
	if !ok {
		return ErrNotFound
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	stored.ServiceHistory = append(stored.ServiceHistory, rec.clone())
	return nil
}

func (r *memoryRepo) UpdateServiceRecord(ctx context.Context, id uuid.UUID, rec ServiceRecord) error {
	defer r.lock(ctx)()

	stored, ok := r.episodes[id]
	if !ok {
		return ErrNotFound
	}
	for i := range stored.ServiceHistory {
		if stored.ServiceHistory[i].Date.Equal(rec.Date) {
			stored.ServiceHistory[i].ServiceData = rec.clone().ServiceData
			return nil
		}
	}
	return fmt.Errorf("%w: no service record dated %s", ErrNotFound, rec.Date.Format(time.RFC3339))
}
