package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/inventory"
	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service drives orders through their lifecycle.
type Service interface {
	CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	ConfirmOrder(ctx context.Context, orderID int64, actorID uuid.UUID) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID int64, actorID uuid.UUID, reason string) (*models.Order, error)
	RefundOrder(ctx context.Context, input RefundInput) (*models.Order, error)
	UpdateLineQuantity(ctx context.Context, input UpdateLineInput) (*LineUpdateResult, error)
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error)
}

// Params wires the order engine.
type Params struct {
	Repo      Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Allocator Allocator
	Ledger    LedgerWriter
	Wallets   WalletDebiter
	Logger    *logger.Logger
	Policy    enums.AllocationPolicy
	Strategy  enums.LotStrategy
	Currency  enums.Currency
	Clock     func() time.Time
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	allocator Allocator
	ledger    LedgerWriter
	wallets   WalletDebiter
	logg      *logger.Logger
	policy    enums.AllocationPolicy
	strategy  enums.LotStrategy
	currency  enums.Currency
	now       func() time.Time
}

// NewService builds an order service with the required dependencies.
func NewService(p Params) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Allocator == nil {
		return nil, fmt.Errorf("stock allocator required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger writer required")
	}
	if p.Wallets == nil {
		return nil, fmt.Errorf("wallet debiter required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !p.Policy.IsValid() {
		p.Policy = enums.AllocateOnConfirmation
	}
	if !p.Strategy.IsValid() {
		p.Strategy = enums.LotStrategyFIFO
	}
	if !p.Currency.IsValid() {
		p.Currency = enums.CurrencyUSD
	}
	if p.Clock == nil {
		p.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:      p.Repo,
		tx:        p.Tx,
		outbox:    p.Outbox,
		allocator: p.Allocator,
		ledger:    p.Ledger,
		wallets:   p.Wallets,
		logg:      p.Logger,
		policy:    p.Policy,
		strategy:  p.Strategy,
		currency:  p.Currency,
		now:       p.Clock,
	}, nil
}

func (s *service) CreateOrder(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	order, err := s.buildOrder(input)
	if err != nil {
		return nil, err
	}
	actor := actorOr(input.ActorID, input.CustomerID)
	allocate := s.policy == enums.AllocateOnCreation

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if allocate {
			if err := s.allocateLines(ctx, tx, order, actor); err != nil {
				return err
			}
		}
		if err := s.appendPayment(ctx, tx, order); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         buildActor(actor, order.VendorID),
			Data: payloads.OrderCreatedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID.String(),
				VendorID:   order.VendorID.String(),
				Status:     order.Status,
				Total:      order.Total,
				Currency:   order.Currency,
				LineCount:  len(order.Details),
				Allocated:  allocate,
			},
		})
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStockUnavailable) {
			s.logg.Warn(s.logg.WithVendorID(ctx, input.VendorID.String()), "order.allocation_failed")
		}
		return nil, err
	}

	logCtx := s.logg.WithOrderID(s.logg.WithVendorID(ctx, order.VendorID.String()), order.ID)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"lines": len(order.Details),
		"total": order.Total.StringFixed(2),
	}), "order.created")
	return s.GetOrder(ctx, order.ID)
}

func (s *service) buildOrder(input CreateOrderInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "customer is required")
	}
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "vendor is required")
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "order needs at least one line")
	}
	if err := input.ShippingAddress.Validate(); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid shipping address")
	}
	currency := input.Currency
	if currency == "" {
		currency = s.currency
	}
	if !currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "invalid currency %q", currency)
	}

	details := make([]models.OrderDetail, 0, len(input.Lines))
	for i, line := range input.Lines {
		if line.ProductID == uuid.Nil {
			return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "line %d: product is required", i)
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "line %d: quantity must be positive", i)
		}
		if !line.UnitPrice.IsPositive() {
			return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "line %d: unit price must be positive", i)
		}
		subtotal, err := lineSubtotal(line.Quantity, line.UnitPrice, line.Discount)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, fmt.Sprintf("line %d", i))
		}
		detail := models.OrderDetail{
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice.Round(2),
			Discount:   line.Discount.Round(2),
			Subtotal:   subtotal,
			Attributes: line.Attributes,
		}
		if line.PreferredLot != nil && strings.TrimSpace(*line.PreferredLot) != "" {
			lot := strings.TrimSpace(*line.PreferredLot)
			detail.PreferredLot = &lot
		}
		details = append(details, detail)
	}

	order := &models.Order{
		CustomerID:      input.CustomerID,
		VendorID:        input.VendorID,
		Status:          enums.OrderStatusPending,
		Discount:        input.Discount.Round(2),
		Currency:        currency,
		ShippingAddress: input.ShippingAddress,
		Note:            input.Note,
		Version:         1,
		Details:         details,
	}
	if err := recomputeTotals(order); err != nil {
		return nil, err
	}
	return order, nil
}

func lineSubtotal(qty int, price, discount decimal.Decimal) (decimal.Decimal, error) {
	if discount.IsNegative() {
		return decimal.Zero, fmt.Errorf("discount must not be negative")
	}
	gross := price.Round(2).Mul(decimal.NewFromInt(int64(qty)))
	if discount.GreaterThan(gross) {
		return decimal.Zero, fmt.Errorf("discount %s exceeds line total %s", discount.StringFixed(2), gross.StringFixed(2))
	}
	return gross.Sub(discount).Round(2), nil
}

func recomputeTotals(order *models.Order) error {
	subtotal := decimal.Zero
	for _, detail := range order.Details {
		subtotal = subtotal.Add(detail.Subtotal)
	}
	if order.Discount.IsNegative() || order.Discount.GreaterThan(subtotal) {
		return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "order discount %s must be between 0 and subtotal %s", order.Discount.StringFixed(2), subtotal.StringFixed(2))
	}
	order.Subtotal = subtotal.Round(2)
	order.Total = subtotal.Sub(order.Discount).Round(2)
	return nil
}

// appendPayment opens the pending payment_in entry the gateway later settles.
func (s *service) appendPayment(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	if !order.Total.IsPositive() {
		return nil
	}
	orderID := order.ID
	_, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
		Type:     enums.TransactionTypePaymentIn,
		Amount:   order.Total,
		Currency: order.Currency,
		UserID:   order.CustomerID,
		OrderID:  &orderID,
		Note:     "order payment",
	})
	return err
}

func (s *service) allocateLines(ctx context.Context, tx *gorm.DB, order *models.Order, actor uuid.UUID) error {
	for _, detail := range order.Details {
		if err := s.allocateLine(ctx, tx, detail, detail.Quantity, actor); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) allocateLine(ctx context.Context, tx *gorm.DB, detail models.OrderDetail, qty int, actor uuid.UUID) error {
	_, err := s.allocator.AllocateSaleTx(ctx, tx, inventory.AllocationInput{
		ProductID:     detail.ProductID,
		Quantity:      qty,
		OrderDetailID: detail.ID,
		PreferredLot:  detail.PreferredLot,
		Strategy:      s.strategy,
		ActorID:       actor,
	})
	return err
}

func (s *service) ConfirmOrder(ctx context.Context, orderID int64, actorID uuid.UUID) (*models.Order, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockForTransition(ctx, repo, orderID, enums.OrderStatusConfirmed)
		if err != nil {
			return err
		}
		actor := actorOr(actorID, order.VendorID)
		if s.policy == enums.AllocateOnConfirmation {
			if err := s.allocateLines(ctx, tx, order, actor); err != nil {
				return err
			}
		}
		now := s.now()
		return s.setStatus(ctx, tx, repo, order, enums.OrderStatusConfirmed, map[string]any{"confirmed_at": now}, actor, "")
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeStockUnavailable) {
			s.cancelAfterAllocationFailure(ctx, orderID, actorID)
		}
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// cancelAfterAllocationFailure runs after the confirmation transaction rolled
// back, so the order is still pending and holds no stock.
func (s *service) cancelAfterAllocationFailure(ctx context.Context, orderID int64, actorID uuid.UUID) {
	logCtx := s.logg.WithOrderID(ctx, orderID)
	s.logg.Warn(logCtx, "order.allocation_failed")
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockForTransition(ctx, repo, orderID, enums.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if _, err := s.ledger.CancelPendingForOrderTx(ctx, tx, order.ID); err != nil {
			return err
		}
		now := s.now()
		return s.setStatus(ctx, tx, repo, order, enums.OrderStatusCancelled, map[string]any{"cancelled_at": now}, actorOr(actorID, order.VendorID), "stock unavailable")
	})
	if err != nil {
		s.logg.Error(logCtx, "order.cancel_after_allocation_failed", err)
	}
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	switch input.To {
	case enums.OrderStatusConfirmed:
		return s.ConfirmOrder(ctx, input.OrderID, input.ActorID)
	case enums.OrderStatusCancelled:
		return s.CancelOrder(ctx, input.OrderID, input.ActorID, input.Reason)
	case enums.OrderStatusRefunded:
		return s.RefundOrder(ctx, RefundInput{OrderID: input.OrderID, ActorID: input.ActorID, Restock: input.Restock, Reason: input.Reason})
	case enums.OrderStatusProcessing, enums.OrderStatusShipped, enums.OrderStatusDelivered:
		return s.advance(ctx, input)
	default:
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "unsupported target status %q", input.To)
	}
}

func (s *service) advance(ctx context.Context, input TransitionInput) (*models.Order, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockForTransition(ctx, repo, input.OrderID, input.To)
		if err != nil {
			return err
		}
		extra := map[string]any{}
		if input.To.ImpliesShipment() {
			if err := s.requireShippedStock(ctx, tx, order); err != nil {
				return err
			}
		}
		switch input.To {
		case enums.OrderStatusShipped:
			extra["shipped_at"] = s.now()
		case enums.OrderStatusDelivered:
			extra["delivered_at"] = s.now()
		}
		return s.setStatus(ctx, tx, repo, order, input.To, extra, actorOr(input.ActorID, order.VendorID), input.Reason)
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, input.OrderID)
}

// requireShippedStock checks that recorded sale movements cover every line.
func (s *service) requireShippedStock(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	ids := make([]int64, 0, len(order.Details))
	for _, detail := range order.Details {
		ids = append(ids, detail.ID)
	}
	outstanding, err := s.allocator.OutstandingSalesTx(ctx, tx, ids)
	if err != nil {
		return err
	}
	for _, detail := range order.Details {
		if outstanding[detail.ID] < detail.Quantity {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "line %d has %d of %d units exported", detail.ID, outstanding[detail.ID], detail.Quantity).
				WithDetails(map[string]any{"order_detail_id": detail.ID})
		}
	}
	return nil
}

func (s *service) CancelOrder(ctx context.Context, orderID int64, actorID uuid.UUID, reason string) (*models.Order, error) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockForTransition(ctx, repo, orderID, enums.OrderStatusCancelled)
		if err != nil {
			return err
		}
		actor := actorOr(actorID, order.VendorID)
		for _, detail := range order.Details {
			if _, err := s.allocator.ReverseMovementsTx(ctx, tx, detail.ID, actor, "order cancelled"); err != nil {
				return err
			}
		}
		if _, err := s.ledger.CancelPendingForOrderTx(ctx, tx, order.ID); err != nil {
			return err
		}
		now := s.now()
		return s.setStatus(ctx, tx, repo, order, enums.OrderStatusCancelled, map[string]any{"cancelled_at": now}, actor, reason)
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

func (s *service) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) (*OrderList, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid cursor")
	}
	orders, err := s.repo.ListOrders(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	list := &OrderList{Orders: orders}
	limit := pagination.NormalizeLimit(params.Limit)
	if len(orders) > limit {
		list.Orders = orders[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{ID: list.Orders[limit-1].ID})
	}
	return list, nil
}

func (s *service) lockForTransition(ctx context.Context, repo Repository, orderID int64, to enums.OrderStatus) (*models.Order, error) {
	order, err := repo.LockOrder(ctx, orderID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if !order.Status.CanTransitionTo(to) {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "order %d is %s and cannot become %s", order.ID, order.Status, to).
			WithDetails(map[string]any{"from": order.Status, "to": to})
	}
	return order, nil
}

func (s *service) setStatus(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, to enums.OrderStatus, extra map[string]any, actor uuid.UUID, reason string) error {
	from := order.Status
	values := map[string]any{"status": to}
	for k, v := range extra {
		values[k] = v
	}
	rows, err := repo.UpdateOrder(ctx, order.ID, order.Version, values)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
	}
	if rows == 0 {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "order %d changed concurrently", order.ID)
	}
	order.Status = to
	order.Version++

	changedAt := s.now()
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       int(order.Version),
		Actor:         buildActor(actor, order.VendorID),
		OccurredAt:    changedAt,
		Data: payloads.OrderStatusChangedEvent{
			OrderID:   order.ID,
			From:      from,
			To:        to,
			Reason:    reason,
			ChangedAt: changedAt,
		},
	}); err != nil {
		return err
	}

	s.logg.Info(s.logg.WithFields(s.logg.WithOrderID(ctx, order.ID), map[string]any{
		"from": from,
		"to":   to,
	}), "order.status_changed")
	return nil
}

func buildActor(actorID, vendorID uuid.UUID) *outbox.ActorRef {
	return &outbox.ActorRef{
		ActorID:  actorID.String(),
		VendorID: vendorID.String(),
	}
}

func actorOr(actorID, fallback uuid.UUID) uuid.UUID {
	if actorID == uuid.Nil {
		return fallback
	}
	return actorID
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
}
