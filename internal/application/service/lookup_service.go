package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/internal/infrastructure/cache"
	"github.com/sangkips/pharmadesk/internal/infrastructure/upstream"
	"github.com/sangkips/pharmadesk/pkg/apperror"
	"github.com/sangkips/pharmadesk/pkg/pagination"
	"github.com/sangkips/pharmadesk/pkg/selector"
	"go.uber.org/zap"
)

// SearchBackend is the part of the upstream client lookups need
type SearchBackend interface {
	Search(ctx context.Context, resource, term string, page, pageSize int) (*upstream.ListResult, error)
	List(ctx context.Context, resource string, params upstream.ListParams) (*upstream.ListResult, error)
}

// LookupObserver records lookup activity, typically as metrics
type LookupObserver interface {
	ObserveLookup(kind, outcome string, elapsed time.Duration)
	SetLookupSessions(n int)
}

type lookupDef struct {
	resource   string
	labelField string
	local      bool // list loaded once and filtered in memory
}

var lookupDefs = map[enum.LookupKind]lookupDef{
	enum.LookupKindProduct:       {resource: "products", labelField: "name"},
	enum.LookupKindBatch:         {resource: "batches", labelField: "batch_number"},
	enum.LookupKindCustomer:      {resource: "customers", labelField: "phone"},
	enum.LookupKindSupplier:      {resource: "suppliers", labelField: "name", local: true},
	enum.LookupKindPurchaseOrder: {resource: upstream.ResourcePurchaseOrders, labelField: "po_number"},
	enum.LookupKindSalesBill:     {resource: upstream.ResourceOfflineSales, labelField: "bill_number"},
}

// maxLocalItems bounds the one-time fetch of a local-mode list
const maxLocalItems = 1000

// LookupConfig tunes the lookup service
type LookupConfig struct {
	DefaultDelay       time.Duration
	PurchaseOrderDelay time.Duration
	SessionTTL         time.Duration
	PageSize           int
}

// LookupService runs one-shot searches and holds server-side selector
// sessions for clients that cannot debounce on their own.
type LookupService struct {
	backend  SearchBackend
	cache    cache.SearchCache
	observer LookupObserver
	cfg      LookupConfig
	logger   *zap.Logger

	mu       sync.RWMutex
	sessions map[uuid.UUID]*LookupSession
}

// LookupSession is one server-held selector
type LookupSession struct {
	ID      uuid.UUID
	OwnerID string
	Kind    enum.LookupKind

	sel      *selector.Selector[entity.Option]
	token    atomic.Value
	lastSeen atomic.Int64
}

func (s *LookupSession) touch(ctx context.Context) {
	s.lastSeen.Store(time.Now().UnixNano())
	if tok := upstream.TokenFromContext(ctx); tok != "" {
		s.token.Store(tok)
	}
}

func (s *LookupSession) upstreamContext(ctx context.Context) context.Context {
	if tok, _ := s.token.Load().(string); tok != "" {
		return upstream.WithToken(ctx, tok)
	}
	return ctx
}

// LookupSnapshot is the client-visible state of a session
type LookupSnapshot struct {
	ID   uuid.UUID       `json:"id"`
	Kind enum.LookupKind `json:"kind"`
	selector.State[entity.Option]
}

// NewLookupService creates a new lookup service. searchCache and observer
// may be nil.
func NewLookupService(backend SearchBackend, searchCache cache.SearchCache, observer LookupObserver, cfg LookupConfig, logger *zap.Logger) *LookupService {
	if searchCache == nil {
		searchCache = cache.NopCache{}
	}
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = selector.DefaultDelay
	}
	if cfg.PurchaseOrderDelay <= 0 {
		cfg.PurchaseOrderDelay = 500 * time.Millisecond
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 15 * time.Minute
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LookupService{
		backend:  backend,
		cache:    searchCache,
		observer: observer,
		cfg:      cfg,
		logger:   logger.Named("lookup"),
		sessions: make(map[uuid.UUID]*LookupSession),
	}
}

// Search runs a single, undebounced search and returns one page of options
func (s *LookupService) Search(ctx context.Context, kind enum.LookupKind, term string, params *pagination.PaginationParams) (*pagination.PaginatedResult[entity.Option], error) {
	if params == nil {
		params = &pagination.PaginationParams{PerPage: s.cfg.PageSize}
	}
	params.Validate()

	start := time.Now()
	page, err := s.fetch(ctx, kind, term, params.Page, params.PerPage)
	outcome := selector.OutcomeApplied
	if err != nil {
		outcome = selector.OutcomeFailed
	}
	s.observeLookup(kind, outcome, time.Since(start))
	if err != nil {
		return nil, err
	}

	return pagination.NewPaginatedResult(page.Options, pagination.NewPagination(params.Page, params.PerPage, page.Count)), nil
}

func (s *LookupService) fetch(ctx context.Context, kind enum.LookupKind, term string, page, pageSize int) (*cache.Page, error) {
	def, ok := lookupDefs[kind]
	if !ok {
		return nil, apperror.NewBadRequestError(fmt.Sprintf("Unknown lookup kind %q", kind))
	}
	if cached, hit := s.cache.Get(ctx, kind.String(), term, page, pageSize); hit {
		return cached, nil
	}

	res, err := s.backend.Search(ctx, def.resource, term, page, pageSize)
	if err != nil {
		return nil, err
	}
	options, err := toOptions(kind, def, res)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrBadGateway.Code, "Unexpected response from upstream service", err)
	}

	out := &cache.Page{Options: options, Count: res.Count}
	s.cache.Set(ctx, kind.String(), term, page, pageSize, out)
	return out, nil
}

func toOptions(kind enum.LookupKind, def lookupDef, res *upstream.ListResult) ([]entity.Option, error) {
	rows, err := upstream.DecodeResults[map[string]any](res)
	if err != nil {
		return nil, err
	}
	options := make([]entity.Option, 0, len(rows))
	for _, row := range rows {
		options = append(options, optionFromRow(kind, def.labelField, row))
	}
	return options, nil
}

func optionFromRow(kind enum.LookupKind, labelField string, row map[string]any) entity.Option {
	opt := entity.Option{Kind: kind, Extra: row}
	switch id := row["id"].(type) {
	case float64:
		opt.ID = entity.RemoteID(fmt.Sprintf("%.0f", id))
	case string:
		opt.ID = entity.RemoteID(id)
	}
	opt.Label = stringField(row, labelField)
	if opt.Label == "" {
		opt.Label = stringField(row, "name")
	}
	if opt.Label == "" {
		opt.Label = opt.ID.String()
	}
	return opt
}

func stringField(row map[string]any, key string) string {
	switch v := row[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// CreateSession opens a selector session for kind. delay overrides the
// kind's debounce window when positive.
func (s *LookupService) CreateSession(ctx context.Context, ownerID string, kind enum.LookupKind, delay time.Duration) (*LookupSnapshot, error) {
	def, ok := lookupDefs[kind]
	if !ok {
		return nil, apperror.NewBadRequestError(fmt.Sprintf("Unknown lookup kind %q", kind))
	}

	sess := &LookupSession{ID: uuid.New(), OwnerID: ownerID, Kind: kind}
	sess.touch(ctx)

	opts := selector.Options[entity.Option]{
		Display: entity.OptionLabel,
		Key:     entity.OptionKey,
		Logger:  s.logger.With(zap.String("kind", kind.String()), zap.String("session_id", sess.ID.String())),
	}

	if def.local {
		items, err := s.loadAll(ctx, kind, def)
		if err != nil {
			return nil, err
		}
		opts.Items = items
	} else {
		opts.Delay = s.delayFor(kind, delay)
		opts.Search = func(searchCtx context.Context, term string) ([]entity.Option, error) {
			page, err := s.fetch(sess.upstreamContext(searchCtx), kind, term, 1, s.cfg.PageSize)
			if err != nil {
				return nil, err
			}
			return page.Options, nil
		}
		opts.OnSearch = func(_ string, outcome selector.Outcome, elapsed time.Duration) {
			s.observeLookup(kind, outcome, elapsed)
		}
	}
	sess.sel = selector.New(opts)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	n := len(s.sessions)
	s.mu.Unlock()
	s.setSessionGauge(n)

	s.logger.Debug("lookup session opened",
		zap.String("session_id", sess.ID.String()),
		zap.String("kind", kind.String()),
	)
	return s.snapshot(sess), nil
}

func (s *LookupService) delayFor(kind enum.LookupKind, override time.Duration) time.Duration {
	if override > 0 {
		return override
	}
	if kind == enum.LookupKindPurchaseOrder {
		return s.cfg.PurchaseOrderDelay
	}
	return s.cfg.DefaultDelay
}

func (s *LookupService) loadAll(ctx context.Context, kind enum.LookupKind, def lookupDef) ([]entity.Option, error) {
	res, err := s.backend.List(ctx, def.resource, upstream.ListParams{PageSize: maxLocalItems})
	if err != nil {
		return nil, err
	}
	items, err := toOptions(kind, def, res)
	if err != nil {
		return nil, apperror.Wrap(apperror.ErrBadGateway.Code, "Unexpected response from upstream service", err)
	}
	return items, nil
}

func (s *LookupService) session(ctx context.Context, ownerID string, id uuid.UUID) (*LookupSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok || sess.OwnerID != ownerID {
		return nil, apperror.NewNotFoundError("Lookup session")
	}
	sess.touch(ctx)
	return sess, nil
}

func (s *LookupService) snapshot(sess *LookupSession) *LookupSnapshot {
	return &LookupSnapshot{ID: sess.ID, Kind: sess.Kind, State: sess.sel.Snapshot()}
}

// GetSession returns the session's current state
func (s *LookupService) GetSession(ctx context.Context, ownerID string, id uuid.UUID) (*LookupSnapshot, error) {
	sess, err := s.session(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.snapshot(sess), nil
}

// OpenSession shows the candidate list
func (s *LookupService) OpenSession(ctx context.Context, ownerID string, id uuid.UUID) (*LookupSnapshot, error) {
	sess, err := s.session(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	sess.sel.Open()
	return s.snapshot(sess), nil
}

// TypeTerm records a keystroke
func (s *LookupService) TypeTerm(ctx context.Context, ownerID string, id uuid.UUID, term string) (*LookupSnapshot, error) {
	sess, err := s.session(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	sess.sel.Type(term)
	return s.snapshot(sess), nil
}

// SelectOption picks the candidate with the given ID
func (s *LookupService) SelectOption(ctx context.Context, ownerID string, id uuid.UUID, optionID string) (*LookupSnapshot, error) {
	sess, err := s.session(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if _, err := sess.sel.SelectKey(optionID); err != nil {
		return nil, apperror.NewFieldError("id", "Option is not among the current results")
	}
	return s.snapshot(sess), nil
}

// ClearSelection drops the session's selection
func (s *LookupService) ClearSelection(ctx context.Context, ownerID string, id uuid.UUID) (*LookupSnapshot, error) {
	sess, err := s.session(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	sess.sel.Clear()
	return s.snapshot(sess), nil
}

// CloseSession stops and forgets the session
func (s *LookupService) CloseSession(ctx context.Context, ownerID string, id uuid.UUID) error {
	sess, err := s.session(ctx, ownerID, id)
	if err != nil {
		return err
	}
	s.remove(sess.ID)
	return nil
}

func (s *LookupService) remove(ids ...uuid.UUID) {
	s.mu.Lock()
	var closed []*LookupSession
	for _, id := range ids {
		if sess, ok := s.sessions[id]; ok {
			closed = append(closed, sess)
			delete(s.sessions, id)
		}
	}
	n := len(s.sessions)
	s.mu.Unlock()

	for _, sess := range closed {
		sess.sel.Close()
	}
	s.setSessionGauge(n)
}

// Run expires idle sessions until ctx is done, then closes the rest
func (s *LookupService) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SessionTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.closeAll()
			return
		case <-ticker.C:
			s.expire(time.Now())
		}
	}
}

func (s *LookupService) expire(now time.Time) int {
	cutoff := now.Add(-s.cfg.SessionTTL).UnixNano()

	s.mu.RLock()
	var stale []uuid.UUID
	for id, sess := range s.sessions {
		if sess.lastSeen.Load() < cutoff {
			stale = append(stale, id)
		}
	}
	s.mu.RUnlock()

	if len(stale) > 0 {
		s.remove(stale...)
		s.logger.Debug("expired lookup sessions", zap.Int("count", len(stale)))
	}
	return len(stale)
}

func (s *LookupService) closeAll() {
	s.mu.RLock()
	ids := make([]uuid.UUID, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	s.remove(ids...)
}

// InvalidateKinds drops cached search results for kinds
func (s *LookupService) InvalidateKinds(ctx context.Context, kinds ...enum.LookupKind) {
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, k.String())
	}
	s.cache.InvalidateKind(ctx, names...)
}

func (s *LookupService) observeLookup(kind enum.LookupKind, outcome selector.Outcome, elapsed time.Duration) {
	if s.observer != nil {
		s.observer.ObserveLookup(kind.String(), string(outcome), elapsed)
	}
}

func (s *LookupService) setSessionGauge(n int) {
	if s.observer != nil {
		s.observer.SetLookupSessions(n)
	}
}
