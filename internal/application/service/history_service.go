package service

import (
	"context"

	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/infrastructure/upstream"
	"github.com/sangkips/pharmadesk/pkg/apperror"
	"github.com/sangkips/pharmadesk/pkg/pagination"
)

// HistoryBackend lists upstream collections
type HistoryBackend interface {
	List(ctx context.Context, resource string, params upstream.ListParams) (*upstream.ListResult, error)
}

// HistoryService lists returns already recorded by the pharmacy backend
type HistoryService struct {
	backend HistoryBackend
}

// NewHistoryService creates a new history service
func NewHistoryService(backend HistoryBackend) *HistoryService {
	return &HistoryService{backend: backend}
}

// HistoryFilter narrows a history listing
type HistoryFilter struct {
	Search        string
	TransactionID string
}

// ListReturns fetches one page of the flow's returns. Whatever list shape the
// backend answers with, the result uses the standard pagination envelope.
func (s *HistoryService) ListReturns(ctx context.Context, flow enum.ReturnFlow, filter HistoryFilter, params *pagination.PaginationParams) (*pagination.PaginatedResult[map[string]any], error) {
	if params == nil {
		params = pagination.DefaultPagination()
	}
	params.Validate()

	filters := map[string]string{}
	if filter.TransactionID != "" {
		if flow == enum.ReturnFlowSales {
			filters["offline_sale"] = filter.TransactionID
		} else {
			filters["purchase_order"] = filter.TransactionID
		}
	}

	res, err := s.backend.List(ctx, upstream.ReturnHistoryResource(flow), upstream.ListParams{
		Page:     params.Page,
		PageSize: params.PerPage,
		Search:   filter.Search,
		Filters:  filters,
	})
	if err != nil {
		return nil, err
	}

	rows, err := upstream.DecodeResults[map[string]any](res)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrBadGateway.Code, "Unexpected response from upstream service", err)
	}
	return pagination.NewPaginatedResult(rows, pagination.NewPagination(params.Page, params.PerPage, res.Count)), nil
}
