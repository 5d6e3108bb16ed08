package request

import (
	"bytes"
	"encoding/json"

	"github.com/sangkips/pharmadesk/internal/domain/entity"
)

// CreateDraftRequest starts a return draft
type CreateDraftRequest struct {
	Flow          string          `json:"flow" binding:"required,oneof=purchase sales"`
	TransactionID entity.RemoteID `json:"transaction_id"`
}

// SelectTransactionRequest picks the purchase order or sales bill to return against
type SelectTransactionRequest struct {
	TransactionID entity.RemoteID `json:"transaction_id" binding:"required"`
}

// UpdateItemRequest carries the quantity typed for one row. The value is
// kept raw so that malformed input can be coerced rather than rejected.
type UpdateItemRequest struct {
	Quantity json.RawMessage `json:"quantity" binding:"required"`
}

// RawQuantity returns the quantity as typed, without JSON quoting
func (r *UpdateItemRequest) RawQuantity() string {
	raw := bytes.TrimSpace(r.Quantity)
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// UpdateDraftRequest edits the free-text fields. Absent fields are unchanged.
type UpdateDraftRequest struct {
	Reason *string `json:"reason" binding:"omitempty,max=1000"`
	Notes  *string `json:"notes" binding:"omitempty,max=2000"`
}

// ReturnFilterRequest represents draft and history list parameters
type ReturnFilterRequest struct {
	Flow          string `form:"flow" binding:"omitempty,oneof=purchase sales"`
	Search        string `form:"search"`
	TransactionID string `form:"transaction_id"`
	Page          int    `form:"page" binding:"omitempty,min=1"`
	PerPage       int    `form:"per_page" binding:"omitempty,min=1,max=100"`
}
