// internal/orders/orders.go
package orders

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"

	"clinicsync/internal/logger"
	"clinicsync/internal/model"
	"clinicsync/internal/restapi"
)

// Service is the purchase-order write path against the remote store. The
// cached read side lives in the inventory domain's coordinator; this only
// mutates.
type Service struct {
	client *restapi.Client
	orders restapi.Collection[model.Order]
	items  restapi.Collection[model.OrderItem]
}

func NewService(client *restapi.Client) *Service {
	return &Service{
		client: client,
		orders: restapi.NewOrdersAPI(client),
		items:  restapi.NewOrderItemsAPI(client),
	}
}

// CreatePurchaseOrder inserts the order header and its items. The remote
// store has no transaction spanning both collections, so an items failure is
// compensated by deleting the just-created header rather than leaving an
// orphan behind.
func (s *Service) CreatePurchaseOrder(ctx context.Context, order model.Order, items []model.OrderItem) (model.Order, error) {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = model.OrderPending
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	order.Items = nil // items live in their own collection

	created, err := s.orders.Create(ctx, order)
	if err != nil {
		return model.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	if len(items) == 0 {
		return created, nil
	}

	rows := make([]model.OrderItem, len(items))
	for i, item := range items {
		item.ID = uuid.NewString()
		item.OrderID = created.ID
		item.Total = float64(item.Quantity) * item.UnitCost
		rows[i] = item
	}

	var inserted []model.OrderItem
	if err := s.client.Insert(ctx, "order_items", rows, &inserted); err != nil {
		if delErr := s.orders.Delete(ctx, created.ID); delErr != nil {
			logger.LogError("Failed to roll back order %s after items insert failure: %v", created.ID, delErr)
		} else {
			logger.LogWarn("Rolled back order %s: items insert failed", created.ID)
		}
		return model.Order{}, fmt.Errorf("failed to create order items: %w", err)
	}

	created.Items = inserted
	return created, nil
}

// UpdateStatus moves an order forward through its lifecycle. RECEIVED stamps
// the receipt timestamp used by purchase-cycle analytics.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) error {
	current, err := s.fetchOne(ctx, id)
	if err != nil {
		return err
	}

	if !validTransition(current.Status, status) {
		return fmt.Errorf("invalid order status transition %s -> %s", current.Status, status)
	}

	patch := map[string]interface{}{"status": status}
	switch status {
	case model.OrderOrdered:
		patch["ordered_at"] = time.Now().Format(model.TimeFormat)
	case model.OrderReceived:
		patch["received_at"] = time.Now().Format(model.TimeFormat)
	}

	return s.orders.Update(ctx, id, patch)
}

// Delete removes the order and its dependent items. A missing header is the
// soft failure restapi.ErrNoRowsAffected: nothing changed.
func (s *Service) Delete(ctx context.Context, id string) error {
	params := url.Values{"order_id": {"eq." + id}}
	if err := s.client.DeleteWhere(ctx, "order_items", params); err != nil {
		return fmt.Errorf("failed to delete order items: %w", err)
	}
	return s.orders.Delete(ctx, id)
}

func (s *Service) fetchOne(ctx context.Context, id string) (model.Order, error) {
	var rows []model.Order
	params := url.Values{"id": {"eq." + id}}
	if err := s.client.List(ctx, "orders", params, &rows); err != nil {
		return model.Order{}, fmt.Errorf("failed to fetch order %s: %w", id, err)
	}
	if len(rows) == 0 {
		return model.Order{}, fmt.Errorf("order %s not found", id)
	}
	return rows[0], nil
}

// validTransition encodes the forward-only lifecycle:
// PENDING -> ORDERED -> RECEIVED, with CANCELLED reachable until receipt.
func validTransition(from, to string) bool {
	switch from {
	case model.OrderPending:
		return to == model.OrderOrdered || to == model.OrderCancelled
	case model.OrderOrdered:
		return to == model.OrderReceived || to == model.OrderCancelled
	}
	return false
}
