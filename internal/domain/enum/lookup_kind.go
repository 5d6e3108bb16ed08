package enum

import "fmt"

// LookupKind names an entity that can be searched and picked
type LookupKind string

const (
	LookupKindProduct       LookupKind = "product"
	LookupKindBatch         LookupKind = "batch"
	LookupKindCustomer      LookupKind = "customer"
	LookupKindSupplier      LookupKind = "supplier"
	LookupKindPurchaseOrder LookupKind = "purchase_order"
	LookupKindSalesBill     LookupKind = "sales_bill"
)

// ParseLookupKind validates a kind name coming from a request
func ParseLookupKind(s string) (LookupKind, error) {
	switch k := LookupKind(s); k {
	case LookupKindProduct, LookupKindBatch, LookupKindCustomer,
		LookupKindSupplier, LookupKindPurchaseOrder, LookupKindSalesBill:
		return k, nil
	}
	return "", fmt.Errorf("unknown lookup kind %q", s)
}

func (k LookupKind) String() string {
	return string(k)
}
