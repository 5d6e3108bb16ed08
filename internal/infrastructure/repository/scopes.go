package repository

import (
	"context"

	"gorm.io/gorm"
)

type ctxKey string

// OwnerIDKey is the context key for the authenticated owner of drafts
const OwnerIDKey ctxKey = "owner_id"

// OwnerScope returns a GORM scope that filters by owner_id. Without an
// owner in the context the query matches nothing.
func OwnerScope(ctx context.Context) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		ownerID, ok := GetOwnerID(ctx)
		if !ok {
			return db.Where("1 = 0")
		}
		return db.Where("owner_id = ?", ownerID)
	}
}

// WithOwner adds the owner ID to context
func WithOwner(ctx context.Context, ownerID string) context.Context {
	return context.WithValue(ctx, OwnerIDKey, ownerID)
}

// GetOwnerID extracts the owner ID from context
func GetOwnerID(ctx context.Context) (string, bool) {
	ownerID, ok := ctx.Value(OwnerIDKey).(string)
	return ownerID, ok && ownerID != ""
}
