package patient

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// repoMem is an in-memory registry used for tests and the --in-memory dev
// mode. Records are stored by value and copied on every read, so a reader
// can never observe a torn write; the whole vitals group is replaced under
// the write lock.
type repoMem struct {
	mu     sync.RWMutex
	byCode map[string]*Patient
	byID   map[uuid.UUID]string
}

// NewRepoMem creates an empty in-memory patient registry.
func NewRepoMem() Repository {
	return &repoMem{
		byCode: make(map[string]*Patient),
		byID:   make(map[uuid.UUID]string),
	}
}

func (r *repoMem) Create(_ context.Context, p *Patient) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byCode[p.Code]; exists {
		return fmt.Errorf("create %s: %w", p.Code, ErrConflict)
	}

	stored := *p
	r.byCode[p.Code] = &stored
	r.byID[p.ID] = p.Code
	return nil
}

func (r *repoMem) UpsertVitals(_ context.Context, code string, v Vitals, status string, ts time.Time) (*Patient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("upsert vitals %s: %w", code, ErrNotFound)
	}

	// Replace-on-write: the stored pointer is swapped for a fresh record so
	// snapshots handed out earlier stay consistent.
	updated := *existing
	updated.Vitals = v
	updated.Status = status
	updated.Timestamp = ts
	r.byCode[code] = &updated

	snapshot := updated
	return &snapshot, nil
}

func (r *repoMem) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	code, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	snapshot := *r.byCode[code]
	return &snapshot, nil
}

func (r *repoMem) GetByCode(_ context.Context, code string) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.byCode[code]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", code, ErrNotFound)
	}
	snapshot := *p
	return &snapshot, nil
}

func (r *repoMem) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	r.mu.RLock()
	all := make([]*Patient, 0, len(r.byCode))
	for _, p := range r.byCode {
		snapshot := *p
		all = append(all, &snapshot)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].Code < all[j].Code })

	total := len(all)
	if limit <= 0 {
		return all, total, nil
	}
	if offset >= total {
		return []*Patient{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}
