package enum

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// ReturnFlow identifies which kind of transaction a return is made against
type ReturnFlow string

const (
	ReturnFlowPurchase ReturnFlow = "purchase"
	ReturnFlowSales    ReturnFlow = "sales"
)

// ParseReturnFlow validates a flow name coming from a request
func ParseReturnFlow(s string) (ReturnFlow, error) {
	switch ReturnFlow(s) {
	case ReturnFlowPurchase, ReturnFlowSales:
		return ReturnFlow(s), nil
	}
	return "", fmt.Errorf("unknown return flow %q", s)
}

func (f ReturnFlow) String() string {
	return string(f)
}

// TransactionKind is the lookup kind used to pick the parent transaction
func (f ReturnFlow) TransactionKind() LookupKind {
	if f == ReturnFlowSales {
		return LookupKindSalesBill
	}
	return LookupKindPurchaseOrder
}

func (f ReturnFlow) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(f))
}

func (f *ReturnFlow) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*f = ReturnFlow(str)
	return nil
}

func (f ReturnFlow) Value() (driver.Value, error) {
	return string(f), nil
}

func (f *ReturnFlow) Scan(value interface{}) error {
	if value == nil {
		*f = ReturnFlowPurchase
		return nil
	}
	switch v := value.(type) {
	case string:
		*f = ReturnFlow(v)
	case []byte:
		*f = ReturnFlow(string(v))
	}
	return nil
}
