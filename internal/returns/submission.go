// Package returns turns an edited return draft into the payload the
// pharmacy backend expects for its flow.
package returns

import (
	"strings"

	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/pkg/apperror"
	"github.com/shopspring/decimal"
)

const (
	MsgSelectTransaction = "Please select a transaction to return against"
	MsgNoItems           = "Please specify at least one item to return with a quantity greater than zero"
	MsgReasonRequired    = "Please provide a reason for the return"
	MsgSubmitFailed      = "Failed to submit return. Please try again."
)

// Policy holds the submission rules that vary by deployment
type Policy struct {
	RequireReason bool
}

// Validate checks a draft before any network call. Checks run in order and
// the first failure is returned as a field error.
func Validate(d *entity.ReturnDraft, p Policy) error {
	if !d.HasTransaction() {
		return apperror.NewFieldError("transaction_id", MsgSelectTransaction)
	}
	if len(d.ItemsToReturn()) == 0 {
		return apperror.NewFieldError("items", MsgNoItems)
	}
	if p.RequireReason && strings.TrimSpace(d.Reason) == "" {
		return apperror.NewFieldError("reason", MsgReasonRequired)
	}
	return nil
}

// PurchaseReturnItem is one line of a purchase order return
type PurchaseReturnItem struct {
	PurchaseOrderItem entity.RemoteID `json:"purchase_order_item"`
	Product           entity.RemoteID `json:"product"`
	Quantity          int             `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

// PurchaseReturnPayload is posted to the purchase order's return-items action
type PurchaseReturnPayload struct {
	Reason string               `json:"reason"`
	Notes  string               `json:"notes,omitempty"`
	Items  []PurchaseReturnItem `json:"items"`
}

// SalesReturnItem is one line of a sales bill return
type SalesReturnItem struct {
	OfflineSaleItem  entity.RemoteID `json:"offline_sale_item"`
	ReturnedQuantity int             `json:"returned_quantity"`
	PricePerUnit     decimal.Decimal `json:"price_per_unit"`
}

// SalesReturnPayload creates a sales return record
type SalesReturnPayload struct {
	OfflineSale entity.RemoteID   `json:"offline_sale"`
	Reason      string            `json:"reason"`
	Notes       string            `json:"notes,omitempty"`
	Items       []SalesReturnItem `json:"items"`
}

// BuildPurchasePayload maps the draft's non-zero rows to a purchase return
func BuildPurchasePayload(d *entity.ReturnDraft) PurchaseReturnPayload {
	rows := d.ItemsToReturn()
	payload := PurchaseReturnPayload{
		Reason: strings.TrimSpace(d.Reason),
		Notes:  strings.TrimSpace(d.Notes),
		Items:  make([]PurchaseReturnItem, 0, len(rows)),
	}
	for _, row := range rows {
		payload.Items = append(payload.Items, PurchaseReturnItem{
			PurchaseOrderItem: row.SourceItemID,
			Product:           row.ProductID,
			Quantity:          row.QuantityToReturn,
			UnitPrice:         row.UnitPrice,
		})
	}
	return payload
}

// BuildSalesPayload maps the draft's non-zero rows to a sales return
func BuildSalesPayload(d *entity.ReturnDraft) SalesReturnPayload {
	rows := d.ItemsToReturn()
	payload := SalesReturnPayload{
		OfflineSale: d.TransactionID,
		Reason:      strings.TrimSpace(d.Reason),
		Notes:       strings.TrimSpace(d.Notes),
		Items:       make([]SalesReturnItem, 0, len(rows)),
	}
	for _, row := range rows {
		payload.Items = append(payload.Items, SalesReturnItem{
			OfflineSaleItem:  row.SourceItemID,
			ReturnedQuantity: row.QuantityToReturn,
			PricePerUnit:     row.UnitPrice,
		})
	}
	return payload
}

// Payload returns the flow-specific payload for d
func Payload(d *entity.ReturnDraft) any {
	if d.Flow == enum.ReturnFlowSales {
		return BuildSalesPayload(d)
	}
	return BuildPurchasePayload(d)
}

// ConfirmationMessage is shown after a successful submission
func ConfirmationMessage(total decimal.Decimal) string {
	return "Return submitted successfully. Total return amount: " + total.StringFixed(2)
}

// FailureMessage prefers the backend's own explanation over the generic one
func FailureMessage(detail string) string {
	if strings.TrimSpace(detail) == "" {
		return MsgSubmitFailed
	}
	return detail
}
