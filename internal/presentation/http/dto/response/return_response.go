package response

import (
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/shopspring/decimal"
)

// DraftItemResponse is one editable row with its derived values
type DraftItemResponse struct {
	ID                      uuid.UUID       `json:"id"`
	SourceItemID            entity.RemoteID `json:"source_item_id"`
	ProductID               entity.RemoteID `json:"product_id"`
	ProductName             string          `json:"product_name"`
	BatchNumber             string          `json:"batch_number,omitempty"`
	Quantity                int             `json:"quantity"`
	AlreadyReturnedQuantity int             `json:"already_returned_quantity"`
	MaxReturnable           int             `json:"max_returnable"`
	UnitPrice               string          `json:"unit_price"`
	QuantityToReturn        int             `json:"quantity_to_return"`
	Subtotal                string          `json:"subtotal"`
}

// DraftResponse is a return draft as shown to the client. Money is rendered
// with two decimals.
type DraftResponse struct {
	ID                uuid.UUID           `json:"id"`
	Flow              enum.ReturnFlow     `json:"flow"`
	Status            enum.DraftStatus    `json:"status"`
	TransactionID     entity.RemoteID     `json:"transaction_id,omitempty"`
	TransactionLabel  string              `json:"transaction_label,omitempty"`
	Reason            string              `json:"reason"`
	Notes             string              `json:"notes"`
	SubmissionKey     string              `json:"submission_key"`
	Items             []DraftItemResponse `json:"items"`
	ItemsToReturn     int                 `json:"items_to_return"`
	TotalReturnAmount string              `json:"total_return_amount"`
	LastSubmittedAt   *time.Time          `json:"last_submitted_at,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// NewDraftResponse maps a draft entity to its response
func NewDraftResponse(d *entity.ReturnDraft) DraftResponse {
	items := make([]DraftItemResponse, 0, len(d.Items))
	for i := range d.Items {
		item := &d.Items[i]
		items = append(items, DraftItemResponse{
			ID:                      item.ID,
			SourceItemID:            item.SourceItemID,
			ProductID:               item.ProductID,
			ProductName:             item.ProductName,
			BatchNumber:             item.BatchNumber,
			Quantity:                item.Quantity,
			AlreadyReturnedQuantity: item.AlreadyReturned,
			MaxReturnable:           item.MaxReturnable(),
			UnitPrice:               money(item.UnitPrice),
			QuantityToReturn:        item.QuantityToReturn,
			Subtotal:                money(item.Subtotal()),
		})
	}

	return DraftResponse{
		ID:                d.ID,
		Flow:              d.Flow,
		Status:            d.Status,
		TransactionID:     d.TransactionID,
		TransactionLabel:  d.TransactionLabel,
		Reason:            d.Reason,
		Notes:             d.Notes,
		SubmissionKey:     d.SubmissionKey,
		Items:             items,
		ItemsToReturn:     len(d.ItemsToReturn()),
		TotalReturnAmount: money(d.TotalReturnAmount()),
		LastSubmittedAt:   d.LastSubmittedAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

// NewDraftListResponse maps a page of drafts
func NewDraftListResponse(drafts []entity.ReturnDraft) []DraftResponse {
	out := make([]DraftResponse, 0, len(drafts))
	for i := range drafts {
		out = append(out, NewDraftResponse(&drafts[i]))
	}
	return out
}

// SubmitResponse is returned after a successful submission
type SubmitResponse struct {
	Flow              enum.ReturnFlow `json:"flow"`
	TransactionID     entity.RemoteID `json:"transaction_id"`
	TotalReturnAmount string          `json:"total_return_amount"`
	UpstreamMessage   string          `json:"upstream_message,omitempty"`
	Draft             DraftResponse   `json:"draft"`
}
