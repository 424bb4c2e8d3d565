package episode

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, ep *Episode) error
	GetByID(ctx context.Context, id uuid.UUID) (*Episode, error)
	List(ctx context.Context, limit, offset int) ([]*Episode, int, error)

	// Update persists the scalar fields and bumps the version counter.
	// It fails with ErrConflict when the stored version differs from
	// expectedVersion.
	Update(ctx context.Context, ep *Episode, expectedVersion int) error

	// Modification history is append-only, read newest first.
	AppendModifications(ctx context.Context, id uuid.UUID, recs []ModificationRecord) error

	// Lab exams
	AppendLabExams(ctx context.Context, id uuid.UUID, exams []LabExam) error
	CompleteLabExams(ctx context.Context, id uuid.UUID, exams []LabExam) error

	// Service history
	AppendServiceRecord(ctx context.Context, id uuid.UUID, rec ServiceRecord) error
	UpdateServiceRecord(ctx context.Context, id uuid.UUID, rec ServiceRecord) error

	// InTx runs fn as a single atomic unit: either every repository call
	// made inside fn is visible, or none is.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
