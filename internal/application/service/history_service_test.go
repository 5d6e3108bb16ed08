package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/infrastructure/upstream"
	"github.com/sangkips/pharmadesk/pkg/apperror"
	"github.com/sangkips/pharmadesk/pkg/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHistoryService(t *testing.T, handler http.HandlerFunc) *HistoryService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := upstream.New(upstream.Config{BaseURL: srv.URL + "/api", Timeout: 2 * time.Second})
	require.NoError(t, err)
	return NewHistoryService(client)
}

func TestHistoryService_PaginatedBackend(t *testing.T) {
	svc := newHistoryService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/sales-returns/", r.URL.Path)
		assert.Equal(t, "88", r.URL.Query().Get("offline_sale"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		_, _ = io.WriteString(w, `{"count": 12, "results": [{"id": 900, "reason": "Wrong item"}]}`)
	})

	res, err := svc.ListReturns(context.Background(), enum.ReturnFlowSales,
		HistoryFilter{TransactionID: "88"}, &pagination.PaginationParams{Page: 2, PerPage: 5})

	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "Wrong item", res.Items[0]["reason"])
	assert.Equal(t, int64(12), res.Pagination.Total)
	assert.Equal(t, 3, res.Pagination.TotalPages)
	assert.True(t, res.Pagination.HasPrev)
}

func TestHistoryService_BareArrayBackend(t *testing.T) {
	svc := newHistoryService(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/purchase-returns/", r.URL.Path)
		_, _ = io.WriteString(w, `[{"id": 1}, {"id": 2}]`)
	})

	res, err := svc.ListReturns(context.Background(), enum.ReturnFlowPurchase, HistoryFilter{}, nil)

	require.NoError(t, err)
	assert.Len(t, res.Items, 2)
	assert.Equal(t, int64(2), res.Pagination.Total)
}

func TestHistoryService_UpstreamError(t *testing.T) {
	svc := newHistoryService(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"detail": "You do not have permission to perform this action."}`)
	})

	_, err := svc.ListReturns(context.Background(), enum.ReturnFlowPurchase, HistoryFilter{}, nil)

	require.Error(t, err)
	assert.Equal(t, http.StatusForbidden, apperror.GetAppError(err).Code)
}
