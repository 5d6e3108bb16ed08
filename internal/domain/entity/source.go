package entity

import (
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/shopspring/decimal"
)

// SourceTransaction is a purchase order or sales bill fetched from the
// backend. It is read-only here.
type SourceTransaction struct {
	ID    RemoteID         `json:"id"`
	Label string           `json:"label"`
	Flow  enum.ReturnFlow  `json:"flow"`
	Items []SourceLineItem `json:"items"`
}

// SourceLineItem is one line of a SourceTransaction
type SourceLineItem struct {
	ID                      RemoteID        `json:"id"`
	Product                 RemoteID        `json:"product"`
	ProductName             string          `json:"product_name"`
	BatchNumber             string          `json:"batch_number"`
	Quantity                int             `json:"quantity"`
	AlreadyReturnedQuantity int             `json:"already_returned_quantity"`
	UnitPrice               decimal.Decimal `json:"unit_price"`
}
