package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/sangkips/pharmadesk/internal/config"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	domainRepo "github.com/sangkips/pharmadesk/internal/domain/repository"
	"github.com/sangkips/pharmadesk/internal/infrastructure/database"
	"github.com/sangkips/pharmadesk/pkg/pagination"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Path: "file::memory:", LogLevel: "silent"}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	}), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)

	return gormDB, mock, mockDB
}

func purchaseOrder() entity.SourceTransaction {
	return entity.SourceTransaction{
		ID:    "41",
		Label: "PO-41",
		Flow:  enum.ReturnFlowPurchase,
		Items: []entity.SourceLineItem{
			{ID: "101", Product: "7", ProductName: "Paracetamol 500mg", Quantity: 10,
				AlreadyReturnedQuantity: 3, UnitPrice: decimal.RequireFromString("15.50")},
			{ID: "102", Product: "8", ProductName: "Amoxicillin 250mg", Quantity: 4,
				UnitPrice: decimal.RequireFromString("42.00")},
		},
	}
}

func TestReturnDraftRepository_Lifecycle(t *testing.T) {
	db := setupSQLite(t)
	repo := NewReturnDraftRepository(db)
	ctx := WithOwner(context.Background(), "user-1")

	draft := &entity.ReturnDraft{Flow: enum.ReturnFlowPurchase}
	require.NoError(t, repo.Create(ctx, draft))
	assert.NotEqual(t, uuid.Nil, draft.ID)
	assert.Equal(t, "user-1", draft.OwnerID)
	assert.NotEmpty(t, draft.SubmissionKey)

	draft.SelectTransaction(purchaseOrder())
	_, err := draft.SetItemQuantity(draft.Items[0].ID, 5)
	require.NoError(t, err)
	draft.Reason = "Damaged"
	require.NoError(t, repo.Save(ctx, draft))

	got, err := repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, entity.RemoteID("41"), got.TransactionID)
	assert.Equal(t, "Damaged", got.Reason)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "Paracetamol 500mg", got.Items[0].ProductName)
	assert.Equal(t, 5, got.Items[0].QuantityToReturn)
	assert.Equal(t, "77.50", got.TotalReturnAmount().StringFixed(2))

	got.ClearTransaction()
	require.NoError(t, repo.Save(ctx, got))

	var count int64
	require.NoError(t, db.Model(&entity.ReturnDraftItem{}).Where("draft_id = ?", draft.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestReturnDraftRepository_OwnerScope(t *testing.T) {
	db := setupSQLite(t)
	repo := NewReturnDraftRepository(db)
	owner := WithOwner(context.Background(), "user-1")
	other := WithOwner(context.Background(), "user-2")

	draft := &entity.ReturnDraft{Flow: enum.ReturnFlowSales}
	require.NoError(t, repo.Create(owner, draft))

	got, err := repo.GetByID(other, draft.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.GetByID(context.Background(), draft.ID)
	require.NoError(t, err)
	assert.Nil(t, got, "no owner in context matches nothing")

	assert.ErrorIs(t, repo.Delete(other, draft.ID), gorm.ErrRecordNotFound)
	require.NoError(t, repo.Delete(owner, draft.ID))

	got, err = repo.GetByID(owner, draft.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestReturnDraftRepository_List(t *testing.T) {
	db := setupSQLite(t)
	repo := NewReturnDraftRepository(db)
	ctx := WithOwner(context.Background(), "user-1")

	for _, flow := range []enum.ReturnFlow{enum.ReturnFlowPurchase, enum.ReturnFlowSales, enum.ReturnFlowSales} {
		require.NoError(t, repo.Create(ctx, &entity.ReturnDraft{Flow: flow}))
	}
	require.NoError(t, repo.Create(WithOwner(context.Background(), "user-2"), &entity.ReturnDraft{Flow: enum.ReturnFlowSales}))

	drafts, total, err := repo.List(ctx, &domainRepo.DraftFilterParams{Pagination: &pagination.PaginationParams{Page: 1, PerPage: 10}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, drafts, 3)

	sales := enum.ReturnFlowSales
	drafts, total, err = repo.List(ctx, &domainRepo.DraftFilterParams{
		Pagination: &pagination.PaginationParams{Page: 1, PerPage: 1},
		Flow:       &sales,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, drafts, 1)
}

func TestReturnDraftRepository_MarkSubmitting(t *testing.T) {
	db := setupSQLite(t)
	repo := NewReturnDraftRepository(db)
	ctx := WithOwner(context.Background(), "user-1")

	draft := &entity.ReturnDraft{Flow: enum.ReturnFlowPurchase}
	require.NoError(t, repo.Create(ctx, draft))

	ok, err := repo.MarkSubmitting(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkSubmitting(ctx, draft.ID)
	require.NoError(t, err)
	assert.False(t, ok, "second submit is rejected while the first is in flight")

	require.NoError(t, repo.ReleaseSubmitting(ctx, draft.ID))
	ok, err = repo.MarkSubmitting(ctx, draft.ID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestReturnDraftRepository_StaleSaveCannotReopenSubmittingDraft(t *testing.T) {
	db := setupSQLite(t)
	repo := NewReturnDraftRepository(db)
	ctx := WithOwner(context.Background(), "user-1")

	draft := &entity.ReturnDraft{Flow: enum.ReturnFlowPurchase}
	require.NoError(t, repo.Create(ctx, draft))

	stale, err := repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)

	ok, err := repo.MarkSubmitting(ctx, draft.ID)
	require.NoError(t, err)
	require.True(t, ok)

	stale.Reason = "Expired"
	stale.RotateSubmissionKey()
	assert.ErrorIs(t, repo.Save(ctx, stale), domainRepo.ErrDraftBusy)

	ok, err = repo.MarkSubmitting(ctx, draft.ID)
	require.NoError(t, err)
	assert.False(t, ok, "draft stays claimed by the first submission")

	got, err := repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DraftStatusSubmitting, got.Status)
	assert.Empty(t, got.Reason)
}

func TestReturnDraftRepository_CompleteSubmission(t *testing.T) {
	db := setupSQLite(t)
	repo := NewReturnDraftRepository(db)
	ctx := WithOwner(context.Background(), "user-1")

	draft := &entity.ReturnDraft{Flow: enum.ReturnFlowPurchase}
	require.NoError(t, repo.Create(ctx, draft))
	draft.SelectTransaction(purchaseOrder())
	require.NoError(t, repo.Save(ctx, draft))

	assert.ErrorIs(t, repo.CompleteSubmission(ctx, draft), domainRepo.ErrDraftBusy, "only a submitting draft can be completed")

	ok, err := repo.MarkSubmitting(ctx, draft.ID)
	require.NoError(t, err)
	require.True(t, ok)

	draft.Reset()
	require.NoError(t, repo.CompleteSubmission(ctx, draft))

	got, err := repo.GetByID(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, enum.DraftStatusOpen, got.Status)
	assert.Empty(t, got.Items)
	assert.Empty(t, got.TransactionID)
}

func TestReturnDraftRepository_MarkSubmittingPostgres(t *testing.T) {
	db, mock, mockDB := setupMockDB(t)
	defer mockDB.Close()

	mock.ExpectExec(`UPDATE "return_drafts" SET "status"=.* WHERE id = .* AND status = `).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := NewReturnDraftRepository(db).MarkSubmitting(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepository(t *testing.T) {
	db := setupSQLite(t)
	repo := NewIdempotencyRepository(db)
	ctx := context.Background()

	got, err := repo.GetByKey(ctx, "k1", "user-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, repo.Create(ctx, &entity.IdempotencyKey{
		Key: "k1", UserID: "user-1", Endpoint: "/api/v1/returns/drafts", ResponseCode: 200,
		ResponseBody: `{"success":true}`, ExpiresAt: time.Now().Add(time.Hour),
	}))
	require.NoError(t, repo.Create(ctx, &entity.IdempotencyKey{
		Key: "k2", UserID: "user-1", Endpoint: "/api/v1/returns/drafts", ResponseCode: 200,
		ExpiresAt: time.Now().Add(-time.Hour),
	}))

	got, err = repo.GetByKey(ctx, "k1", "user-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 200, got.ResponseCode)

	got, err = repo.GetByKey(ctx, "k1", "user-2")
	require.NoError(t, err)
	assert.Nil(t, got)

	n, err := repo.DeleteExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
