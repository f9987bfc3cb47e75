package core

import (
	"context"
	"farmvault/pkg/domain"
	"fmt"
	"math/bits"
	"strings"
)

// AddSupplyItems sets a supplier's catalogue. It only succeeds while the
// catalogue is empty.
func (s *Store) AddSupplyItems(ctx context.Context, supplierID uint64, items []domain.Product) error {
	return s.run(ctx, "add_supply_items", func() error {
		if len(items) == 0 {
			return &domain.ValidationError{Entity: domain.EntitySupplyAgriBusiness, Fields: []string{"items_to_be_supplied"}}
		}
		for _, it := range items {
			if strings.TrimSpace(it.ItemName) == "" {
				return &domain.ValidationError{Entity: domain.EntitySupplyAgriBusiness, Fields: []string{"item_name"}}
			}
		}
		_, err := updateRecord(s.suppliers, domain.EntitySupplyAgriBusiness, supplierID, func(b *domain.SupplyAgriBusiness) error {
			if len(b.Items) > 0 {
				return &domain.StateGuardViolation{Entity: domain.EntitySupplyAgriBusiness, ID: supplierID, Reason: "supply items already set"}
			}
			b.Items = items
			return nil
		})
		return err
	})
}

func findProduct(items []domain.Product, name string) int {
	for i := range items {
		if items[i].ItemName == name {
			return i
		}
	}
	return -1
}

// CreateOrder places an order with a supplier on behalf of a producer. The
// caller must own the supplier. Lines naming the same item draw on the same
// stock. The producer's farm assets are credited at catalogue price.
func (s *Store) CreateOrder(ctx context.Context, caller domain.Identity, in domain.NewOrder) (domain.Order, error) {
	var created domain.Order
	err := s.run(ctx, "create_order", func() error {
		if len(in.Items) == 0 {
			return &domain.ValidationError{Entity: domain.EntityOrder, Fields: []string{"items"}}
		}
		supplier, err := getRecord(s.suppliers, domain.EntitySupplyAgriBusiness, in.SupplierID)
		if err != nil {
			return err
		}
		if supplier.Owner != caller {
			return &domain.AuthorizationError{Identity: caller, Action: fmt.Sprintf("place orders for supplier %d", in.SupplierID)}
		}
		producer, err := getRecord(s.producers, domain.EntityProducer, in.ProducerID)
		if err != nil {
			return err
		}
		// supplier and producer are decoded copies; nothing is written until
		// every line has passed.
		for _, line := range in.Items {
			i := findProduct(supplier.Items, line.ItemName)
			if i < 0 {
				return &domain.NotFoundError{Entity: "supply_item", Key: line.ItemName}
			}
			item := &supplier.Items[i]
			if item.Amount < line.Amount {
				return &domain.StateGuardViolation{
					Entity: domain.EntitySupplyAgriBusiness,
					ID:     in.SupplierID,
					Reason: fmt.Sprintf("insufficient stock for %s: have %d, want %d", line.ItemName, item.Amount, line.Amount),
				}
			}
			item.Amount -= line.Amount
			hi, value := bits.Mul64(line.Amount, item.Price)
			if hi != 0 {
				return fmt.Errorf("order line %s: value of %d at %d overflows: %w", line.ItemName, line.Amount, item.Price, domain.ErrValidation)
			}
			j := findAsset(producer.FarmAssets, line.ItemName)
			if j < 0 {
				producer.FarmAssets = append(producer.FarmAssets, domain.FarmAsset{Name: line.ItemName})
				j = len(producer.FarmAssets) - 1
			}
			asset := &producer.FarmAssets[j]
			qty, c1 := bits.Add64(asset.Quantity, line.Amount, 0)
			total, c2 := bits.Add64(asset.Value, value, 0)
			if c1 != 0 || c2 != 0 {
				return fmt.Errorf("farm asset %s of producer %d overflows: %w", line.ItemName, producer.ID, domain.ErrValidation)
			}
			asset.Quantity, asset.Value = qty, total
		}
		id, err := s.nextID(seqOrder)
		if err != nil {
			return err
		}
		created = domain.Order{
			ID:         id,
			Owner:      caller,
			ProducerID: in.ProducerID,
			SupplierID: in.SupplierID,
			Items:      in.Items,
			TotalPrice: in.TotalPrice,
			Status:     domain.OrderPending,
			Shipping:   domain.ShippingExpress,
		}
		if _, _, err := s.orders.Insert(id, created); err != nil {
			return err
		}
		supplier.OrderIDs = append(supplier.OrderIDs, id)
		if _, _, err := s.suppliers.Insert(supplier.ID, supplier); err != nil {
			return err
		}
		_, _, err = s.producers.Insert(producer.ID, producer)
		return err
	})
	return created, err
}

func findAsset(assets []domain.FarmAsset, name string) int {
	for i := range assets {
		if assets[i].Name == name {
			return i
		}
	}
	return -1
}

// UpdateOrderStatus moves an order to status. Only the supplier's owner may do so.
func (s *Store) UpdateOrderStatus(ctx context.Context, caller domain.Identity, orderID uint64, status domain.OrderStatus) (domain.Order, error) {
	var out domain.Order
	err := s.run(ctx, "update_order_status", func() error {
		if !status.Valid() {
			return &domain.ValidationError{Entity: domain.EntityOrder, Fields: []string{"status"}}
		}
		order, err := getRecord(s.orders, domain.EntityOrder, orderID)
		if err != nil {
			return err
		}
		supplier, err := getRecord(s.suppliers, domain.EntitySupplyAgriBusiness, order.SupplierID)
		if err != nil {
			return err
		}
		if supplier.Owner != caller {
			return &domain.AuthorizationError{Identity: caller, Action: fmt.Sprintf("update order %d", orderID)}
		}
		order.Status = status
		if _, _, err := s.orders.Insert(orderID, order); err != nil {
			return err
		}
		out = order
		return nil
	})
	return out, err
}

// GetOrder returns an order by id.
func (s *Store) GetOrder(ctx context.Context, orderID uint64) (domain.Order, error) {
	var out domain.Order
	err := s.run(ctx, "get_order", func() error {
		var err error
		out, err = getRecord(s.orders, domain.EntityOrder, orderID)
		return err
	})
	return out, err
}

// ListOrdersBySupplier returns the orders placed with a supplier.
func (s *Store) ListOrdersBySupplier(ctx context.Context, supplierID uint64) ([]domain.Order, error) {
	var out []domain.Order
	err := s.run(ctx, "list_orders_by_supplier", func() error {
		var err error
		out, err = filterRecords(s.orders, func(o domain.Order) bool { return o.SupplierID == supplierID })
		return err
	})
	return out, err
}

// ListOrdersByProducer returns the orders placed for a producer.
func (s *Store) ListOrdersByProducer(ctx context.Context, producerID uint64) ([]domain.Order, error) {
	var out []domain.Order
	err := s.run(ctx, "list_orders_by_producer", func() error {
		var err error
		out, err = filterRecords(s.orders, func(o domain.Order) bool { return o.ProducerID == producerID })
		return err
	})
	return out, err
}
