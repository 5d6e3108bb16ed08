package upstream

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/sangkips/pharmadesk/internal/domain/entity"
	"github.com/sangkips/pharmadesk/internal/domain/enum"
	"github.com/sangkips/pharmadesk/pkg/apperror"
	"github.com/shopspring/decimal"
)

// Backend resources used by the return flows
const (
	ResourcePurchaseOrders  = "purchase-orders"
	ResourceOfflineSales    = "offline-sales"
	ResourceSalesReturns    = "sales-returns"
	ResourcePurchaseReturns = "purchase-returns"
)

// ReturnResult is the backend's answer to a return submission
type ReturnResult struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ReturnItems posts a purchase order return. The backend answers
// {"success": bool, "message": string}; success=false is reported as an error.
func (c *Client) ReturnItems(ctx context.Context, transactionID entity.RemoteID, payload any, idempotencyKey string) (*ReturnResult, error) {
	var out ReturnResult
	req := Request{
		Method:  http.MethodPost,
		Path:    itemPath(ResourcePurchaseOrders, transactionID.String()) + "return-items/",
		Body:    payload,
		Headers: idempotencyHeaders(idempotencyKey),
	}
	if err := c.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		msg := out.Message
		if msg == "" {
			msg = "Return was rejected by the pharmacy backend"
		}
		return nil, apperror.NewAppError(http.StatusUnprocessableEntity, msg)
	}
	return &out, nil
}

// CreateReturn creates a sales return record. The created record is kept in
// the result's Data.
func (c *Client) CreateReturn(ctx context.Context, payload any, idempotencyKey string) (*ReturnResult, error) {
	var created json.RawMessage
	req := Request{
		Method:  http.MethodPost,
		Path:    collectionPath(ResourceSalesReturns),
		Body:    payload,
		Headers: idempotencyHeaders(idempotencyKey),
	}
	if err := c.Do(ctx, req, &created); err != nil {
		return nil, err
	}
	return &ReturnResult{Success: true, Data: created}, nil
}

func idempotencyHeaders(key string) map[string]string {
	if key == "" {
		return nil
	}
	return map[string]string{IdempotencyKeyHeader: key}
}

type transactionLine struct {
	ID                      entity.RemoteID  `json:"id"`
	Product                 entity.RemoteID  `json:"product"`
	ProductName             string           `json:"product_name"`
	BatchNumber             string           `json:"batch_number"`
	Quantity                int              `json:"quantity"`
	ReturnedQuantity        int              `json:"returned_quantity"`
	AlreadyReturnedQuantity int              `json:"already_returned_quantity"`
	UnitPrice               *decimal.Decimal `json:"unit_price"`
	PricePerUnit            *decimal.Decimal `json:"price_per_unit"`
}

type transaction struct {
	ID         entity.RemoteID   `json:"id"`
	PONumber   string            `json:"po_number"`
	BillNumber string            `json:"bill_number"`
	Items      []transactionLine `json:"items"`
}

// FetchTransaction loads the purchase order or sales bill a return is made
// against, with the prior-return count of every line.
func (c *Client) FetchTransaction(ctx context.Context, flow enum.ReturnFlow, id entity.RemoteID) (*entity.SourceTransaction, error) {
	resource := ResourcePurchaseOrders
	if flow == enum.ReturnFlowSales {
		resource = ResourceOfflineSales
	}

	var tx transaction
	if err := c.Get(ctx, resource, id.String(), &tx); err != nil {
		return nil, err
	}

	out := &entity.SourceTransaction{
		ID:    tx.ID,
		Label: tx.PONumber,
		Flow:  flow,
		Items: make([]entity.SourceLineItem, 0, len(tx.Items)),
	}
	if out.ID == "" {
		out.ID = id
	}
	if flow == enum.ReturnFlowSales {
		out.Label = tx.BillNumber
	}
	if out.Label == "" {
		out.Label = out.ID.String()
	}

	for _, line := range tx.Items {
		returned := line.AlreadyReturnedQuantity
		if returned == 0 {
			returned = line.ReturnedQuantity
		}
		price := decimal.Zero
		switch {
		case line.UnitPrice != nil:
			price = *line.UnitPrice
		case line.PricePerUnit != nil:
			price = *line.PricePerUnit
		}
		out.Items = append(out.Items, entity.SourceLineItem{
			ID:                      line.ID,
			Product:                 line.Product,
			ProductName:             line.ProductName,
			BatchNumber:             line.BatchNumber,
			Quantity:                line.Quantity,
			AlreadyReturnedQuantity: returned,
			UnitPrice:               price,
		})
	}
	return out, nil
}

// ReturnHistoryResource maps a flow to the collection listing its returns
func ReturnHistoryResource(flow enum.ReturnFlow) string {
	if flow == enum.ReturnFlowSales {
		return ResourceSalesReturns
	}
	return ResourcePurchaseReturns
}
