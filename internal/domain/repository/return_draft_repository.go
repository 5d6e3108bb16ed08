package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/pkg/pagination"
)

// ErrDraftBusy is returned when a write targets a draft that is not in the
// state the write expects, typically because a submission claimed it.
var ErrDraftBusy = errors.New("return draft is being submitted")

// ReturnDraftRepository persists return drafts and their rows. All reads
// are restricted to the owner carried by the context.
type ReturnDraftRepository interface {
	Create(ctx context.Context, draft *entity.ReturnDraft) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.ReturnDraft, error)
	List(ctx context.Context, params *DraftFilterParams) ([]entity.ReturnDraft, int64, error)
	// Save writes an open draft and replaces its rows. It returns
	// ErrDraftBusy when the stored draft is not open.
	Save(ctx context.Context, draft *entity.ReturnDraft) error
	// CompleteSubmission writes the reset draft of a finished submission and
	// reopens it. It returns ErrDraftBusy unless the draft is submitting.
	CompleteSubmission(ctx context.Context, draft *entity.ReturnDraft) error
	// MarkSubmitting moves an open draft to submitting. It reports false
	// when the draft was not open.
	MarkSubmitting(ctx context.Context, id uuid.UUID) (bool, error)
	ReleaseSubmitting(ctx context.Context, id uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// DraftFilterParams contains filtering parameters for draft queries
type DraftFilterParams struct {
	Pagination *pagination.PaginationParams
	Flow       *enum.ReturnFlow
}
