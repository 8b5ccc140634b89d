package orders

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

// UpdateLineQuantity changes one line of a pending or confirmed order. Stock
// already exported for the line is reversed and allocated again at the new
// quantity. Quantity zero removes the line; removing the last line deletes a
// pending order and cancels a confirmed one, reported as OrderRemoved.
func (s *service) UpdateLineQuantity(ctx context.Context, input UpdateLineInput) (*LineUpdateResult, error) {
	if input.Quantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "quantity must not be negative")
	}

	result := &LineUpdateResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.LockOrder(ctx, input.OrderID)
		if err != nil {
			return mapLookupError(err)
		}
		if !order.Status.Editable() {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "order %d is %s and can no longer change", order.ID, order.Status)
		}
		idx := -1
		for i := range order.Details {
			if order.Details[i].ID == input.DetailID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
		}
		detail := order.Details[idx]
		if detail.Quantity == input.Quantity {
			return nil
		}
		actor := actorOr(input.ActorID, order.VendorID)

		outstanding, err := s.allocator.OutstandingSalesTx(ctx, tx, []int64{detail.ID})
		if err != nil {
			return err
		}
		allocated := outstanding[detail.ID] > 0
		if allocated {
			note := "line quantity changed"
			if input.Quantity == 0 {
				note = "line removed"
			}
			if _, err := s.allocator.ReverseMovementsTx(ctx, tx, detail.ID, actor, note); err != nil {
				return err
			}
		}

		if input.Quantity == 0 {
			return s.removeLine(ctx, tx, repo, order, idx, actor, result)
		}

		subtotal, err := lineSubtotal(input.Quantity, detail.UnitPrice, detail.Discount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "update line")
		}
		if err := repo.UpdateDetail(ctx, detail.ID, map[string]any{"quantity": input.Quantity, "subtotal": subtotal}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order line")
		}
		order.Details[idx].Quantity = input.Quantity
		order.Details[idx].Subtotal = subtotal
		if allocated {
			if err := s.allocateLine(ctx, tx, order.Details[idx], input.Quantity, actor); err != nil {
				return err
			}
		}
		return s.saveTotals(ctx, tx, repo, order)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID), map[string]any{
		"order_detail_id": input.DetailID,
		"quantity":        input.Quantity,
		"order_removed":   result.OrderRemoved,
	})
	s.logg.Info(logCtx, "order.line_updated")

	if result.OrderRemoved && result.Order == nil {
		return result, nil
	}
	order, err := s.GetOrder(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	result.Order = order
	return result, nil
}

func (s *service) removeLine(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, idx int, actor uuid.UUID, result *LineUpdateResult) error {
	detail := order.Details[idx]
	if err := repo.DeleteDetail(ctx, detail.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order line")
	}
	order.Details = append(order.Details[:idx], order.Details[idx+1:]...)
	last := len(order.Details) == 0
	result.LineRemoved = true
	result.OrderRemoved = last

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderLineRemoved,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       int(order.Version),
		Actor:         buildActor(actor, order.VendorID),
		Data: payloads.OrderLineRemovedEvent{
			OrderID:       order.ID,
			OrderDetailID: detail.ID,
			OrderRemoved:  last,
		},
	}); err != nil {
		return err
	}

	if !last {
		return s.saveTotals(ctx, tx, repo, order)
	}
	if _, err := s.ledger.CancelPendingForOrderTx(ctx, tx, order.ID); err != nil {
		return err
	}
	if order.Status == enums.OrderStatusPending {
		if err := repo.DeleteOrder(ctx, order.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete order")
		}
		return nil
	}
	// Confirmed orders may already be paid; keep the row for the ledger trail.
	order.Subtotal, order.Total = decimal.Zero, decimal.Zero
	now := s.now()
	result.Order = order
	return s.setStatus(ctx, tx, repo, order, enums.OrderStatusCancelled, map[string]any{
		"cancelled_at": now,
		"subtotal":     decimal.Zero,
		"total":        decimal.Zero,
		"discount":     decimal.Zero,
	}, actor, "all lines removed")
}

// saveTotals recomputes the order amounts and swaps the pending payment entry
// for one matching the new total.
func (s *service) saveTotals(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order) error {
	if err := recomputeTotals(order); err != nil {
		return err
	}
	rows, err := repo.UpdateOrder(ctx, order.ID, order.Version, map[string]any{
		"subtotal": order.Subtotal,
		"total":    order.Total,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order totals")
	}
	if rows == 0 {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "order %d changed concurrently", order.ID)
	}
	order.Version++

	cancelled, err := s.ledger.CancelPendingForOrderTx(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if cancelled == 0 {
		return nil
	}
	return s.appendPayment(ctx, tx, order)
}
