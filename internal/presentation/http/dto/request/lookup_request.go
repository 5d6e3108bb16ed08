package request

import "github.com/sangkips/pharmadesk/internal/domain/entity"

// CreateLookupRequest opens a lookup session
type CreateLookupRequest struct {
	Kind    string `json:"kind" binding:"required,oneof=product batch customer supplier purchase_order sales_bill"`
	DelayMS int    `json:"delay_ms" binding:"omitempty,min=0,max=5000"`
}

// LookupTermRequest carries one keystroke
type LookupTermRequest struct {
	Term string `json:"term" binding:"max=255"`
}

// LookupSelectRequest picks one of the current results
type LookupSelectRequest struct {
	ID entity.RemoteID `json:"id" binding:"required"`
}

// SearchFilterRequest represents one-shot search parameters
type SearchFilterRequest struct {
	Query   string `form:"q" binding:"max=255"`
	Page    int    `form:"page" binding:"omitempty,min=1"`
	PerPage int    `form:"per_page" binding:"omitempty,min=1,max=100"`
}
