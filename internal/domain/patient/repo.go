package patient

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the patient registry: the sole owner of durable Patient
// state. Implementations must guarantee that UpsertVitals replaces the
// vitals group, status, and timestamp as one atomic unit: a concurrent
// reader sees either the old or the new snapshot, never a mix. Concurrent
// upserts for the same code resolve last-write-wins.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	UpsertVitals(ctx context.Context, code string, v Vitals, status string, ts time.Time) (*Patient, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetByCode(ctx context.Context, code string) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}
