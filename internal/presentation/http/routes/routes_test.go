package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sangkips/pharmadesk/internal/application/service"
	"github.com/sangkips/pharmadesk/internal/config"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/infrastructure/database"
	"github.com/sangkips/pharmadesk/internal/infrastructure/metrics"
	infraRepo "github.com/sangkips/pharmadesk/internal/infrastructure/repository"
	"github.com/sangkips/pharmadesk/internal/infrastructure/upstream"
	"github.com/sangkips/pharmadesk/internal/presentation/http/handler"
	"github.com/sangkips/pharmadesk/internal/presentation/http/middleware"
	"github.com/sangkips/pharmadesk/internal/returns"
	"github.com/sangkips/pharmadesk/pkg/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
	middleware.SetupValidator()
}

// fakeBackend stands in for the pharmacy backend
type fakeBackend struct {
	mu          sync.Mutex
	submissions int
	keys        []string
}

func (f *fakeBackend) FetchTransaction(_ context.Context, flow enum.ReturnFlow, id entity.RemoteID) (*entity.SourceTransaction, error) {
	return &entity.SourceTransaction{
		ID:    id,
		Label: "PO-" + id.String(),
		Flow:  flow,
		Items: []entity.SourceLineItem{{
			ID: "101", Product: "7", ProductName: "Paracetamol 500mg",
			Quantity: 10, AlreadyReturnedQuantity: 3,
			UnitPrice: decimal.RequireFromString("15.50"),
		}},
	}, nil
}

func (f *fakeBackend) ReturnItems(_ context.Context, _ entity.RemoteID, _ any, key string) (*upstream.ReturnResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submissions++
	f.keys = append(f.keys, key)
	return &upstream.ReturnResult{Success: true, Message: "Items returned"}, nil
}

func (f *fakeBackend) CreateReturn(ctx context.Context, payload any, key string) (*upstream.ReturnResult, error) {
	return f.ReturnItems(ctx, "", payload, key)
}

func (f *fakeBackend) rows(rows ...map[string]any) *upstream.ListResult {
	res := &upstream.ListResult{}
	for _, row := range rows {
		raw, _ := json.Marshal(row)
		res.Results = append(res.Results, raw)
	}
	res.Count = int64(len(res.Results))
	return res
}

func (f *fakeBackend) Search(_ context.Context, _, _ string, _, _ int) (*upstream.ListResult, error) {
	return f.rows(map[string]any{"id": 7, "name": "Paracetamol 500mg"}), nil
}

func (f *fakeBackend) List(_ context.Context, resource string, _ upstream.ListParams) (*upstream.ListResult, error) {
	if resource == "suppliers" {
		return f.rows(
			map[string]any{"id": 1, "name": "Dawa Distributors"},
			map[string]any{"id": 2, "name": "Medisel Kenya"},
		), nil
	}
	return f.rows(map[string]any{"id": 900, "reason": "Damaged"}), nil
}

func (f *fakeBackend) Submissions() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submissions
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Errors  []struct {
		Field   string `json:"field"`
		Message string `json:"message"`
	} `json:"errors"`
}

type testServer struct {
	t       *testing.T
	router  *gin.Engine
	backend *fakeBackend
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Path: "file::memory:", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		App:     config.AppConfig{Name: "pharmadesk"},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
	backend := &fakeBackend{}
	m := metrics.New()

	jwtManager := utils.NewJWTManager("test-secret", "")
	token, err := jwtManager.GenerateAccessToken("42", "pharmacist@example.com", nil, time.Hour)
	require.NoError(t, err)

	lookupService := service.NewLookupService(backend, nil, m, service.LookupConfig{}, nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		lookupService.Run(ctx)
	})

	returnService := service.NewReturnService(infraRepo.NewReturnDraftRepository(db), backend, service.ReturnServiceOptions{
		Policy:   returns.Policy{RequireReason: true},
		Observer: m,
	})

	router := Setup(&Handlers{
		Lookup:  handler.NewLookupHandler(lookupService),
		Return:  handler.NewReturnHandler(returnService),
		History: handler.NewHistoryHandler(service.NewHistoryService(backend)),
	}, &Deps{
		JWTManager:      jwtManager,
		Cfg:             cfg,
		IdempotencyRepo: infraRepo.NewIdempotencyRepository(db),
		Metrics:         m,
	})

	return &testServer{t: t, router: router, backend: backend, token: token}
}

func (s *testServer) do(method, path string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	s.t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && w.Body.Bytes()[0] == '{' {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

type draftBody struct {
	ID                string `json:"id"`
	SubmissionKey     string `json:"submission_key"`
	TotalReturnAmount string `json:"total_return_amount"`
	ItemsToReturn     int    `json:"items_to_return"`
	Items             []struct {
		ID               string `json:"id"`
		MaxReturnable    int    `json:"max_returnable"`
		QuantityToReturn int    `json:"quantity_to_return"`
		Subtotal         string `json:"subtotal"`
	} `json:"items"`
}

func decodeDraft(t *testing.T, env envelope) draftBody {
	t.Helper()
	var d draftBody
	require.NoError(t, json.Unmarshal(env.Data, &d))
	return d
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/returns/drafts", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReturnDraftFlow(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/returns/drafts", map[string]any{"flow": "purchase", "transaction_id": "55"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	draft := decodeDraft(t, env)
	require.Len(t, draft.Items, 1)
	assert.Equal(t, 7, draft.Items[0].MaxReturnable)
	assert.Equal(t, "0.00", draft.TotalReturnAmount)

	base := "/api/v1/returns/drafts/" + draft.ID

	w, env = s.do(http.MethodPatch, base+"/items/"+draft.Items[0].ID, map[string]any{"quantity": 20})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	draft = decodeDraft(t, env)
	assert.Equal(t, 7, draft.Items[0].QuantityToReturn)
	assert.Equal(t, "108.50", draft.Items[0].Subtotal)
	assert.Equal(t, "108.50", draft.TotalReturnAmount)

	w, env = s.do(http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "reason", env.Errors[0].Field)
	assert.Zero(t, s.backend.Submissions())

	w, env = s.do(http.MethodPatch, base, map[string]any{"reason": "Damaged in transit"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	draft = decodeDraft(t, env)

	w, env = s.do(http.MethodPost, base+"/submit", nil, middleware.IdempotencyKeyHeader, "submit-1")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Return submitted successfully. Total return amount: 108.50", env.Message)
	assert.Equal(t, draft.SubmissionKey, s.backend.keys[0])
	assert.Equal(t, 1, s.backend.Submissions())

	w, replayed := s.do(http.MethodPost, base+"/submit", nil, middleware.IdempotencyKeyHeader, "submit-1")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get(middleware.ReplayedHeader))
	assert.Equal(t, env.Message, replayed.Message)
	assert.Equal(t, 1, s.backend.Submissions())

	w, env = s.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	draft = decodeDraft(t, env)
	assert.Empty(t, draft.Items, "submitted draft is reset")

	w, _ = s.do(http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReturnDraftValidation(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/returns/drafts", map[string]any{"flow": "refund"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.Len(t, env.Errors, 1)
	assert.Equal(t, "flow", env.Errors[0].Field)

	w, _ = s.do(http.MethodGet, "/api/v1/returns/drafts/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLookupSessionRoutes(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodPost, "/api/v1/lookups", map[string]any{"kind": "supplier"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var snap struct {
		ID      string `json:"id"`
		Term    string `json:"term"`
		Results []struct {
			ID    entity.RemoteID `json:"id"`
			Label string          `json:"label"`
		} `json:"results"`
		Selected *struct {
			ID entity.RemoteID `json:"id"`
		} `json:"selected"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	assert.Len(t, snap.Results, 2)

	base := "/api/v1/lookups/" + snap.ID

	w, env = s.do(http.MethodPut, base+"/term", map[string]any{"term": "medi"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.Len(t, snap.Results, 1)
	assert.Equal(t, "Medisel Kenya", snap.Results[0].Label)

	raw, err := json.Marshal(map[string]any{"id": snap.Results[0].ID})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id": 2}`, string(raw), "integer keys reach the client as numbers")

	w, env = s.do(http.MethodPost, base+"/select", map[string]any{"id": snap.Results[0].ID})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, &snap))
	require.NotNil(t, snap.Selected)
	assert.Equal(t, entity.RemoteID("2"), snap.Selected.ID)

	w, _ = s.do(http.MethodDelete, base, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, _ = s.do(http.MethodGet, base, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSearchAndHistoryRoutes(t *testing.T) {
	s := newTestServer(t)

	w, env := s.do(http.MethodGet, "/api/v1/search/product?q=para", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var page struct {
		Items []struct {
			Label string `json:"label"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, "Paracetamol 500mg", page.Items[0].Label)

	w, _ = s.do(http.MethodGet, "/api/v1/search/discount?q=x", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = s.do(http.MethodGet, "/api/v1/returns/sales?page=1&per_page=10", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var history struct {
		Items []map[string]any `json:"items"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &history))
	assert.Len(t, history.Items, 1)

	w, _ = s.do(http.MethodGet, "/api/v1/returns/refunds", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
