package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	domainRepo "github.com/sangkips/pharmadesk/internal/domain/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type returnDraftRepository struct {
	db *gorm.DB
}

// NewReturnDraftRepository creates a new return draft repository
func NewReturnDraftRepository(db *gorm.DB) domainRepo.ReturnDraftRepository {
	return &returnDraftRepository{db: db}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *returnDraftRepository) Create(ctx context.Context, draft *entity.ReturnDraft) error {
	if ownerID, ok := GetOwnerID(ctx); ok && draft.OwnerID == "" {
		draft.OwnerID = ownerID
	}
	return r.db.WithContext(ctx).Create(draft).Error
}

func (r *returnDraftRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.ReturnDraft, error) {
	var draft entity.ReturnDraft
	err := r.db.WithContext(ctx).
		Scopes(OwnerScope(ctx)).
		Preload("Items", orderedItems).
		First(&draft, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &draft, nil
}

func (r *returnDraftRepository) List(ctx context.Context, params *domainRepo.DraftFilterParams) ([]entity.ReturnDraft, int64, error) {
	var drafts []entity.ReturnDraft
	var total int64

	query := r.db.WithContext(ctx).Model(&entity.ReturnDraft{}).Scopes(OwnerScope(ctx))
	if params.Flow != nil {
		query = query.Where("flow = ?", *params.Flow)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	params.Pagination.Validate()
	err := query.Offset(params.Pagination.Offset()).Limit(params.Pagination.PerPage).
		Preload("Items", orderedItems).
		Order("updated_at DESC").
		Find(&drafts).Error

	return drafts, total, err
}

func (r *returnDraftRepository) Save(ctx context.Context, draft *entity.ReturnDraft) error {
	return r.save(ctx, draft, enum.DraftStatusOpen)
}

func (r *returnDraftRepository) CompleteSubmission(ctx context.Context, draft *entity.ReturnDraft) error {
	return r.save(ctx, draft, enum.DraftStatusSubmitting)
}

// save writes the draft only while its stored status is from. Status never
// leaves this method as anything but open; claiming goes through
// MarkSubmitting.
func (r *returnDraftRepository) save(ctx context.Context, draft *entity.ReturnDraft, from enum.DraftStatus) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		draft.Status = enum.DraftStatusOpen
		res := tx.Model(draft).
			Where("status = ?", from).
			Select("*").
			Omit("ID", "OwnerID", "CreatedAt", clause.Associations).
			Updates(draft)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domainRepo.ErrDraftBusy
		}

		if err := tx.Where("draft_id = ?", draft.ID).Delete(&entity.ReturnDraftItem{}).Error; err != nil {
			return err
		}
		if len(draft.Items) == 0 {
			return nil
		}
		for i := range draft.Items {
			draft.Items[i].DraftID = draft.ID
			draft.Items[i].Position = i
		}
		return tx.Create(&draft.Items).Error
	})
}

func (r *returnDraftRepository) MarkSubmitting(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.ReturnDraft{}).
		Where("id = ? AND status = ?", id, enum.DraftStatusOpen).
		Update("status", enum.DraftStatusSubmitting)
	return res.RowsAffected == 1, res.Error
}

func (r *returnDraftRepository) ReleaseSubmitting(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&entity.ReturnDraft{}).
		Where("id = ?", id).
		Update("status", enum.DraftStatusOpen).Error
}

func (r *returnDraftRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Scopes(OwnerScope(ctx)).Delete(&entity.ReturnDraft{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.Where("draft_id = ?", id).Delete(&entity.ReturnDraftItem{}).Error
	})
}
