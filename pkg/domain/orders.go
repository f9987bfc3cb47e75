package domain

// OrderStatus tracks fulfilment of a supply order.
type OrderStatus string

// Order statuses.
const (
	OrderPending   OrderStatus = "pending"
	OrderPacked    OrderStatus = "packed"
	OrderSorted    OrderStatus = "sorted"
	OrderComplete  OrderStatus = "complete"
	OrderCancelled OrderStatus = "cancelled"
)

// Valid reports whether s is a known status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderPacked, OrderSorted, OrderComplete, OrderCancelled:
		return true
	}
	return false
}

// ShippingMode selects how an order is delivered.
type ShippingMode string

// ShippingExpress is the only supported mode.
const ShippingExpress ShippingMode = "express"

// Order is a producer's purchase from a supply agribusiness.
type Order struct {
	ID         uint64       `json:"order_id"`
	Owner      Identity     `json:"owner"`
	ProducerID uint64       `json:"farmer_id"`
	SupplierID uint64       `json:"supply_agribusiness_id"`
	Items      []Product    `json:"items"`
	TotalPrice uint64       `json:"total_price"`
	Status     OrderStatus  `json:"status"`
	Shipping   ShippingMode `json:"shipping"`
}

// NewOrder carries the fields of an order placement.
type NewOrder struct {
	ProducerID uint64    `json:"farmer_id"`
	SupplierID uint64    `json:"supply_agribusiness_id"`
	Items      []Product `json:"items"`
	TotalPrice uint64    `json:"total_price"`
}

// StoredFile is an uploaded document or image under a bounded name.
type StoredFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Investment is one verified transfer from an investor to a farm.
type Investment struct {
	FarmID     uint64  `json:"farm_id"`
	InvestorID uint64  `json:"investor_id"`
	Amount     float64 `json:"amount"`
	TxHash     string  `json:"tx_hash"`
	Currency   string  `json:"currency"`
}

// TransactionFee is the fee retained for a transaction hash.
type TransactionFee struct {
	TxHash string  `json:"tx_hash"`
	Fee    float64 `json:"fee"`
}
