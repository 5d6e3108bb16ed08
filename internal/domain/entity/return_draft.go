package entity

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ErrDraftItemNotFound is returned when a quantity edit targets an unknown row
var ErrDraftItemNotFound = errors.New("return draft item not found")

// ReturnDraft holds a return that is being prepared against one purchase
// order or sales bill. Items are projections of the source lines and only
// their quantity to return is editable.
type ReturnDraft struct {
	ID               uuid.UUID         `gorm:"type:uuid;primary_key" json:"id"`
	OwnerID          string            `gorm:"size:100;not null;index" json:"-"`
	Flow             enum.ReturnFlow   `gorm:"size:20;not null" json:"flow"`
	Status           enum.DraftStatus  `gorm:"default:0" json:"status"`
	TransactionID    RemoteID          `gorm:"size:100" json:"transaction_id,omitempty"`
	TransactionLabel string            `gorm:"size:255" json:"transaction_label,omitempty"`
	Reason           string            `gorm:"type:text" json:"reason"`
	Notes            string            `gorm:"type:text" json:"notes"`
	SubmissionKey    string            `gorm:"size:64;not null" json:"submission_key"`
	LastSubmittedAt  *time.Time        `json:"last_submitted_at,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Items            []ReturnDraftItem `gorm:"foreignKey:DraftID;constraint:OnDelete:CASCADE" json:"items"`
}

// BeforeCreate generates the ID and first submission key
func (d *ReturnDraft) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.SubmissionKey == "" {
		d.RotateSubmissionKey()
	}
	return nil
}

// TableName returns the table name for the ReturnDraft model
func (ReturnDraft) TableName() string {
	return "return_drafts"
}

// HasTransaction reports whether a parent transaction is selected
func (d *ReturnDraft) HasTransaction() bool {
	return d.TransactionID != ""
}

// RotateSubmissionKey issues a new idempotency token for the next submission.
// It must be called whenever the content that would be submitted changes.
func (d *ReturnDraft) RotateSubmissionKey() {
	d.SubmissionKey = uuid.NewString()
}

// SelectTransaction replaces the rows with projections of tx's lines, each
// starting at zero.
func (d *ReturnDraft) SelectTransaction(tx SourceTransaction) {
	d.TransactionID = tx.ID
	d.TransactionLabel = tx.Label
	d.Items = make([]ReturnDraftItem, 0, len(tx.Items))
	for i, line := range tx.Items {
		d.Items = append(d.Items, ReturnDraftItem{
			ID:              uuid.New(),
			DraftID:         d.ID,
			Position:        i,
			SourceItemID:    line.ID,
			ProductID:       line.Product,
			ProductName:     line.ProductName,
			BatchNumber:     line.BatchNumber,
			Quantity:        line.Quantity,
			AlreadyReturned: line.AlreadyReturnedQuantity,
			UnitPrice:       line.UnitPrice,
		})
	}
	d.RotateSubmissionKey()
}

// ClearTransaction drops the selected transaction and its rows
func (d *ReturnDraft) ClearTransaction() {
	d.TransactionID = ""
	d.TransactionLabel = ""
	d.Items = nil
	d.RotateSubmissionKey()
}

// SetItemQuantity stores qty on the row, clamped to [0, max returnable]
func (d *ReturnDraft) SetItemQuantity(itemID uuid.UUID, qty int) (*ReturnDraftItem, error) {
	for i := range d.Items {
		if d.Items[i].ID == itemID {
			if d.Items[i].SetQuantity(qty) {
				d.RotateSubmissionKey()
			}
			return &d.Items[i], nil
		}
	}
	return nil, ErrDraftItemNotFound
}

// SetReason updates the free-text fields
func (d *ReturnDraft) SetReason(reason, notes *string) {
	changed := false
	if reason != nil && *reason != d.Reason {
		d.Reason = *reason
		changed = true
	}
	if notes != nil && *notes != d.Notes {
		d.Notes = *notes
		changed = true
	}
	if changed {
		d.RotateSubmissionKey()
	}
}

// TotalReturnAmount is the sum of every row's subtotal
func (d *ReturnDraft) TotalReturnAmount() decimal.Decimal {
	total := decimal.Zero
	for i := range d.Items {
		total = total.Add(d.Items[i].Subtotal())
	}
	return total
}

// ItemsToReturn returns the rows with a positive quantity to return
func (d *ReturnDraft) ItemsToReturn() []ReturnDraftItem {
	out := make([]ReturnDraftItem, 0, len(d.Items))
	for _, item := range d.Items {
		if item.QuantityToReturn > 0 {
			out = append(out, item)
		}
	}
	return out
}

// Reset clears all form state after a successful submission
func (d *ReturnDraft) Reset() {
	d.TransactionID = ""
	d.TransactionLabel = ""
	d.Reason = ""
	d.Notes = ""
	d.Items = nil
	d.Status = enum.DraftStatusOpen
	d.RotateSubmissionKey()
}

// ReturnDraftItem is one editable row of a ReturnDraft
type ReturnDraftItem struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key" json:"id"`
	DraftID          uuid.UUID       `gorm:"type:uuid;not null;index" json:"-"`
	Position         int             `gorm:"not null;default:0" json:"position"`
	SourceItemID     RemoteID        `gorm:"size:100;not null" json:"source_item_id"`
	ProductID        RemoteID        `gorm:"size:100" json:"product_id"`
	ProductName      string          `gorm:"size:255" json:"product_name"`
	BatchNumber      string          `gorm:"size:100" json:"batch_number"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	AlreadyReturned  int             `gorm:"not null;default:0" json:"already_returned_quantity"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(15,2);not null" json:"unit_price"`
	QuantityToReturn int             `gorm:"not null;default:0" json:"quantity_to_return"`
}

// BeforeCreate generates a UUID before creating a new draft item
func (i *ReturnDraftItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// TableName returns the table name for the ReturnDraftItem model
func (ReturnDraftItem) TableName() string {
	return "return_draft_items"
}

// MaxReturnable is the quantity still available to return on this line
func (i *ReturnDraftItem) MaxReturnable() int {
	if left := i.Quantity - i.AlreadyReturned; left > 0 {
		return left
	}
	return 0
}

// SetQuantity clamps qty into [0, MaxReturnable] and reports whether the
// stored value changed.
func (i *ReturnDraftItem) SetQuantity(qty int) bool {
	if qty < 0 {
		qty = 0
	}
	if limit := i.MaxReturnable(); qty > limit {
		qty = limit
	}
	if qty == i.QuantityToReturn {
		return false
	}
	i.QuantityToReturn = qty
	return true
}

// Subtotal is quantity to return times unit price
func (i *ReturnDraftItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.QuantityToReturn)))
}
