package service

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/domain/repository"
	"github.com/sangkips/pharmadesk/internal/infrastructure/upstream"
	"github.com/sangkips/pharmadesk/internal/returns"
	"github.com/sangkips/pharmadesk/pkg/apperror"
	"github.com/sangkips/pharmadesk/pkg/pagination"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ReturnBackend is the part of the upstream client the return flows need
type ReturnBackend interface {
	FetchTransaction(ctx context.Context, flow enum.ReturnFlow, id entity.RemoteID) (*entity.SourceTransaction, error)
	ReturnItems(ctx context.Context, transactionID entity.RemoteID, payload any, idempotencyKey string) (*upstream.ReturnResult, error)
	CreateReturn(ctx context.Context, payload any, idempotencyKey string) (*upstream.ReturnResult, error)
}

// SubmissionObserver records submission outcomes, typically as metrics
type SubmissionObserver interface {
	ObserveSubmission(flow, result string, amount float64)
}

// ReturnCompleteFunc runs after a return has been accepted upstream
type ReturnCompleteFunc func(ctx context.Context, flow enum.ReturnFlow, transactionID entity.RemoteID)

// ReturnServiceOptions carries the optional collaborators of ReturnService
type ReturnServiceOptions struct {
	Policy           returns.Policy
	Observer         SubmissionObserver
	OnReturnComplete ReturnCompleteFunc
	Logger           *zap.Logger
}

// ReturnService handles return drafts and their submission
type ReturnService struct {
	draftRepo repository.ReturnDraftRepository
	backend   ReturnBackend
	policy    returns.Policy
	observer  SubmissionObserver
	onDone    ReturnCompleteFunc
	logger    *zap.Logger
	now       func() time.Time
}

// NewReturnService creates a new return service
func NewReturnService(draftRepo repository.ReturnDraftRepository, backend ReturnBackend, opts ReturnServiceOptions) *ReturnService {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReturnService{
		draftRepo: draftRepo,
		backend:   backend,
		policy:    opts.Policy,
		observer:  opts.Observer,
		onDone:    opts.OnReturnComplete,
		logger:    logger.Named("returns"),
		now:       time.Now,
	}
}

// CreateDraftInput represents the create draft input
type CreateDraftInput struct {
	OwnerID       string
	Flow          enum.ReturnFlow
	TransactionID entity.RemoteID
}

// SubmitResult is returned after a successful submission
type SubmitResult struct {
	Message       string                 `json:"message"`
	Flow          enum.ReturnFlow        `json:"flow"`
	TransactionID entity.RemoteID        `json:"transaction_id"`
	TotalAmount   decimal.Decimal        `json:"total_return_amount"`
	Upstream      *upstream.ReturnResult `json:"upstream"`
	Draft         *entity.ReturnDraft    `json:"draft"`
}

// CreateDraft starts a new draft, optionally with its transaction selected
func (s *ReturnService) CreateDraft(ctx context.Context, input *CreateDraftInput) (*entity.ReturnDraft, error) {
	draft := &entity.ReturnDraft{
		OwnerID: input.OwnerID,
		Flow:    input.Flow,
		Status:  enum.DraftStatusOpen,
	}

	if input.TransactionID != "" {
		tx, err := s.backend.FetchTransaction(ctx, input.Flow, input.TransactionID)
		if err != nil {
			return nil, err
		}
		draft.SelectTransaction(*tx)
	}

	if err := s.draftRepo.Create(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// GetDraft retrieves a draft with its rows
func (s *ReturnService) GetDraft(ctx context.Context, id uuid.UUID) (*entity.ReturnDraft, error) {
	draft, err := s.draftRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft == nil {
		return nil, apperror.NewNotFoundError("Return draft")
	}
	return draft, nil
}

// ListDrafts retrieves the caller's drafts
func (s *ReturnService) ListDrafts(ctx context.Context, flow *enum.ReturnFlow, params *pagination.PaginationParams) (*pagination.PaginatedResult[entity.ReturnDraft], error) {
	if params == nil {
		params = pagination.DefaultPagination()
	}
	drafts, total, err := s.draftRepo.List(ctx, &repository.DraftFilterParams{Pagination: params, Flow: flow})
	if err != nil {
		return nil, err
	}
	return pagination.NewPaginatedResult(drafts, pagination.NewPagination(params.Page, params.PerPage, total)), nil
}

// SelectTransaction loads the transaction and replaces the draft's rows with
// its lines, every quantity starting at zero.
func (s *ReturnService) SelectTransaction(ctx context.Context, id uuid.UUID, transactionID entity.RemoteID) (*entity.ReturnDraft, error) {
	draft, err := s.editable(ctx, id)
	if err != nil {
		return nil, err
	}

	tx, err := s.backend.FetchTransaction(ctx, draft.Flow, transactionID)
	if err != nil {
		return nil, err
	}
	draft.SelectTransaction(*tx)

	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// ClearTransaction drops the transaction and its rows
func (s *ReturnService) ClearTransaction(ctx context.Context, id uuid.UUID) (*entity.ReturnDraft, error) {
	draft, err := s.editable(ctx, id)
	if err != nil {
		return nil, err
	}
	draft.ClearTransaction()

	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// SetItemQuantity stores the quantity typed for one row. Input that is not a
// non-negative integer counts as zero and the value is capped at what is
// still returnable.
func (s *ReturnService) SetItemQuantity(ctx context.Context, id, itemID uuid.UUID, raw string) (*entity.ReturnDraft, error) {
	draft, err := s.editable(ctx, id)
	if err != nil {
		return nil, err
	}

	if _, err := draft.SetItemQuantity(itemID, returns.ParseQuantity(raw)); err != nil {
		return nil, apperror.NewNotFoundError("Return draft item")
	}

	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// UpdateDetails sets the reason and notes. Nil leaves a field unchanged.
func (s *ReturnService) UpdateDetails(ctx context.Context, id uuid.UUID, reason, notes *string) (*entity.ReturnDraft, error) {
	draft, err := s.editable(ctx, id)
	if err != nil {
		return nil, err
	}
	draft.SetReason(reason, notes)

	if err := s.save(ctx, draft); err != nil {
		return nil, err
	}
	return draft, nil
}

// DeleteDraft discards a draft
func (s *ReturnService) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	draft, err := s.editable(ctx, id)
	if err != nil {
		return err
	}
	return s.draftRepo.Delete(ctx, draft.ID)
}

func (s *ReturnService) editable(ctx context.Context, id uuid.UUID) (*entity.ReturnDraft, error) {
	draft, err := s.GetDraft(ctx, id)
	if err != nil {
		return nil, err
	}
	if draft.Status == enum.DraftStatusSubmitting {
		return nil, apperror.NewConflictError("Return is being submitted")
	}
	return draft, nil
}

// Submit validates the draft and posts it to the backend for its flow. It is
// never retried; the draft's submission key goes upstream as the
// Idempotency-Key so a manual resubmission of unchanged content is safe.
func (s *ReturnService) Submit(ctx context.Context, id uuid.UUID) (*SubmitResult, error) {
	draft, err := s.editable(ctx, id)
	if err != nil {
		return nil, err
	}
	flow := draft.Flow.String()

	if err := returns.Validate(draft, s.policy); err != nil {
		s.observe(flow, "invalid", decimal.Zero)
		return nil, err
	}

	claimed, err := s.draftRepo.MarkSubmitting(ctx, draft.ID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return nil, apperror.NewConflictError("Return is being submitted")
	}

	total := draft.TotalReturnAmount()
	transactionID := draft.TransactionID
	payload := returns.Payload(draft)

	var res *upstream.ReturnResult
	if draft.Flow == enum.ReturnFlowSales {
		res, err = s.backend.CreateReturn(ctx, payload, draft.SubmissionKey)
	} else {
		res, err = s.backend.ReturnItems(ctx, transactionID, payload, draft.SubmissionKey)
	}
	if err != nil {
		s.release(draft.ID)
		s.observe(flow, "failed", decimal.Zero)
		s.logger.Warn("return submission failed",
			zap.String("draft_id", draft.ID.String()),
			zap.String("flow", flow),
			zap.String("transaction_id", transactionID.String()),
			zap.Error(err),
		)
		return nil, submissionError(err)
	}

	s.observe(flow, "success", total)
	s.logger.Info("return submitted",
		zap.String("draft_id", draft.ID.String()),
		zap.String("flow", flow),
		zap.String("transaction_id", transactionID.String()),
		zap.String("total", total.StringFixed(2)),
	)

	submittedAt := s.now()
	draft.Reset()
	draft.LastSubmittedAt = &submittedAt
	if err := s.draftRepo.CompleteSubmission(ctx, draft); err != nil {
		// the return went through upstream; only the local reset is lost
		s.logger.Error("failed to reset submitted draft", zap.String("draft_id", draft.ID.String()), zap.Error(err))
		s.release(draft.ID)
	}

	if s.onDone != nil {
		s.onDone(ctx, draft.Flow, transactionID)
	}

	return &SubmitResult{
		Message:       returns.ConfirmationMessage(total),
		Flow:          draft.Flow,
		TransactionID: transactionID,
		TotalAmount:   total,
		Upstream:      res,
		Draft:         draft,
	}, nil
}

func (s *ReturnService) save(ctx context.Context, draft *entity.ReturnDraft) error {
	err := s.draftRepo.Save(ctx, draft)
	if errors.Is(err, repository.ErrDraftBusy) {
		return apperror.NewConflictError("Return is being submitted")
	}
	return err
}

func (s *ReturnService) release(id uuid.UUID) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.draftRepo.ReleaseSubmitting(ctx, id); err != nil {
		s.logger.Error("failed to release draft", zap.String("draft_id", id.String()), zap.Error(err))
	}
}

func (s *ReturnService) observe(flow, result string, amount decimal.Decimal) {
	if s.observer != nil {
		s.observer.ObserveSubmission(flow, result, amount.InexactFloat64())
	}
}

// submissionError keeps the backend's own explanation for client errors and
// falls back to the generic message otherwise.
func submissionError(err error) error {
	appErr := apperror.GetAppError(err)
	if appErr.Code >= http.StatusInternalServerError {
		return apperror.Wrap(appErr.Code, returns.MsgSubmitFailed, err)
	}
	out := apperror.Wrap(appErr.Code, returns.FailureMessage(appErr.Message), err)
	out.Errors = appErr.Errors
	return out
}
