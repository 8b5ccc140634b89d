package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service records append-only ledger entries. Entries leave pending exactly
// once; corrections are new adjustment entries.
type Service interface {
	Append(ctx context.Context, input AppendInput) (*models.Transaction, error)
	AppendTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.Transaction, error)
	Complete(ctx context.Context, id int64) (*models.Transaction, error)
	Fail(ctx context.Context, id int64, reason string) (*models.Transaction, error)
	Cancel(ctx context.Context, id int64) (*models.Transaction, error)
	TransitionTx(ctx context.Context, tx *gorm.DB, id int64, to enums.TransactionStatus, reason string) (*models.Transaction, error)
	CancelPendingForOrderTx(ctx context.Context, tx *gorm.DB, orderID int64) (int, error)
	Get(ctx context.Context, id int64) (*models.Transaction, error)
	ListByOrder(ctx context.Context, orderID int64) ([]models.Transaction, error)
	AppendWalletEntryTx(ctx context.Context, tx *gorm.DB, input WalletEntryInput) (*models.WalletTransaction, error)
	CompletePaymentByGateway(ctx context.Context, input GatewayPaymentInput) (*models.Transaction, error)
}

// AppendInput describes a new ledger entry.
type AppendInput struct {
	Type          enums.TransactionType
	Amount        decimal.Decimal
	Currency      enums.Currency
	UserID        uuid.UUID
	OrderID       *int64
	OrderDetailID *int64
	Note          string
	// Status defaults to pending. Internal flows that settle in the same unit
	// of work append entries directly as completed.
	Status           enums.TransactionStatus
	GatewayReference *string
}

// WalletEntryInput describes one wallet balance movement and its cause.
type WalletEntryInput struct {
	WalletID      int64
	Type          enums.WalletEntryType
	Amount        decimal.Decimal
	ReferenceType enums.WalletReferenceType
	ReferenceID   int64
	TransactionID *int64
	BalanceAfter  decimal.Decimal
	Note          string
}

// GatewayPaymentInput is a payment outcome reported by a gateway.
type GatewayPaymentInput struct {
	GatewayReference string
	OrderID          int64
	UserID           uuid.UUID
	Amount           decimal.Decimal
	Currency         enums.Currency
	Status           enums.PaymentEventStatus
	FailureReason    string
}

type service struct {
	repo     Repository
	tx       txRunner
	logg     *logger.Logger
	currency enums.Currency
	now      func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repo Repository, tx txRunner, logg *logger.Logger, currency enums.Currency, clock func() time.Time) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if !currency.IsValid() {
		currency = enums.CurrencyUSD
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{repo: repo, tx: tx, logg: logg, currency: currency, now: clock}, nil
}

func (s *service) Append(ctx context.Context, input AppendInput) (*models.Transaction, error) {
	return s.append(ctx, s.repo, input)
}

func (s *service) AppendTx(ctx context.Context, tx *gorm.DB, input AppendInput) (*models.Transaction, error) {
	return s.append(ctx, s.repo.WithTx(tx), input)
}

func (s *service) append(ctx context.Context, repo Repository, input AppendInput) (*models.Transaction, error) {
	if err := s.validateAppend(&input); err != nil {
		return nil, err
	}
	entry := &models.Transaction{
		Type:             input.Type,
		Amount:           input.Amount.Round(2),
		Currency:         input.Currency,
		Status:           input.Status,
		OrderID:          input.OrderID,
		OrderDetailID:    input.OrderDetailID,
		UserID:           input.UserID,
		Note:             input.Note,
		GatewayReference: input.GatewayReference,
	}
	if input.Status == enums.TransactionStatusCompleted {
		completedAt := s.now()
		entry.CompletedAt = &completedAt
	}
	if err := repo.Create(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "ux_transactions_gateway_reference") {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateGatewayEvent, "gateway reference already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append ledger entry")
	}
	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": entry.ID,
		"type":           entry.Type,
		"status":         entry.Status,
		"amount":         entry.Amount.String(),
	}), "ledger.appended")
	return entry, nil
}

func (s *service) validateAppend(input *AppendInput) error {
	if !input.Type.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "invalid transaction type %q", input.Type)
	}
	if input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "user is required")
	}
	if input.Type == enums.TransactionTypeAdjustment {
		if input.Amount.IsZero() {
			return pkgerrors.New(pkgerrors.CodeInvalidArgument, "adjustment amount must not be zero")
		}
	} else if !input.Amount.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "amount must be positive")
	}
	if input.Currency == "" {
		input.Currency = s.currency
	}
	if !input.Currency.IsValid() {
		return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "invalid currency %q", input.Currency)
	}
	if input.Status == "" {
		input.Status = enums.TransactionStatusPending
	}
	if input.Status != enums.TransactionStatusPending && input.Status != enums.TransactionStatusCompleted {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "entries are appended pending or completed")
	}
	if input.GatewayReference != nil && strings.TrimSpace(*input.GatewayReference) == "" {
		input.GatewayReference = nil
	}
	return nil
}

func (s *service) Complete(ctx context.Context, id int64) (*models.Transaction, error) {
	return s.transition(ctx, id, enums.TransactionStatusCompleted, "")
}

func (s *service) Fail(ctx context.Context, id int64, reason string) (*models.Transaction, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "failure reason is required")
	}
	return s.transition(ctx, id, enums.TransactionStatusFailed, reason)
}

func (s *service) Cancel(ctx context.Context, id int64) (*models.Transaction, error) {
	return s.transition(ctx, id, enums.TransactionStatusCancelled, "")
}

func (s *service) transition(ctx context.Context, id int64, to enums.TransactionStatus, reason string) (*models.Transaction, error) {
	var entry *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		entry, err = s.TransitionTx(ctx, tx, id, to, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"transaction_id": entry.ID,
		"status":         entry.Status,
	}), "ledger.status_changed")
	return entry, nil
}

// TransitionTx moves a pending entry to a final status inside tx.
func (s *service) TransitionTx(ctx context.Context, tx *gorm.DB, id int64, to enums.TransactionStatus, reason string) (*models.Transaction, error) {
	repo := s.repo.WithTx(tx)
	update := StatusUpdate{To: to}
	if to == enums.TransactionStatusCompleted {
		completedAt := s.now()
		update.CompletedAt = &completedAt
	}
	if reason != "" {
		update.FailureReason = &reason
	}
	return s.applyTransition(ctx, repo, id, update)
}

// CancelPendingForOrderTx cancels every entry of the order still pending.
func (s *service) CancelPendingForOrderTx(ctx context.Context, tx *gorm.DB, orderID int64) (int, error) {
	repo := s.repo.WithTx(tx)
	entries, err := repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order transactions")
	}
	cancelled := 0
	for _, entry := range entries {
		if entry.Status != enums.TransactionStatusPending {
			continue
		}
		if _, err := s.applyTransition(ctx, repo, entry.ID, StatusUpdate{To: enums.TransactionStatusCancelled}); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}

func (s *service) applyTransition(ctx context.Context, repo Repository, id int64, update StatusUpdate) (*models.Transaction, error) {
	current, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "transaction not found", "load transaction")
	}
	if !current.Status.CanTransitionTo(update.To) {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "transaction %d is %s and cannot become %s", id, current.Status, update.To)
	}
	rows, err := repo.Transition(ctx, id, update)
	if err != nil {
		if db.IsUniqueViolation(err, "ux_transactions_gateway_reference") {
			return nil, pkgerrors.New(pkgerrors.CodeDuplicateGatewayEvent, "gateway reference already recorded")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update transaction status")
	}
	if rows == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "transaction %d is no longer pending", id)
	}
	updated, err := repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload transaction")
	}
	return updated, nil
}

func (s *service) Get(ctx context.Context, id int64) (*models.Transaction, error) {
	entry, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "transaction not found", "load transaction")
	}
	return entry, nil
}

func (s *service) ListByOrder(ctx context.Context, orderID int64) ([]models.Transaction, error) {
	entries, err := s.repo.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return entries, nil
}

// AppendWalletEntryTx records a wallet movement. The entry must point at the
// ledger entry, order line or cashout that caused it.
func (s *service) AppendWalletEntryTx(ctx context.Context, tx *gorm.DB, input WalletEntryInput) (*models.WalletTransaction, error) {
	if input.WalletID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "wallet is required")
	}
	if !input.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "invalid wallet entry type %q", input.Type)
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "wallet entry amount must be positive")
	}
	if !input.ReferenceType.IsValid() || input.ReferenceID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeIntegrityViolation, "wallet entry has no causing reference")
	}

	repo := s.repo.WithTx(tx)
	exists, err := repo.ReferenceExists(ctx, input.ReferenceType, input.ReferenceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check wallet entry reference")
	}
	if !exists {
		return nil, pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "wallet entry references missing %s %d", input.ReferenceType, input.ReferenceID)
	}
	if input.TransactionID != nil {
		exists, err := repo.ReferenceExists(ctx, enums.WalletReferenceTransaction, *input.TransactionID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check wallet entry transaction")
		}
		if !exists {
			return nil, pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "wallet entry references missing transaction %d", *input.TransactionID)
		}
	}

	entry := &models.WalletTransaction{
		WalletID:      input.WalletID,
		Type:          input.Type,
		Amount:        input.Amount.Round(2),
		ReferenceType: input.ReferenceType,
		ReferenceID:   input.ReferenceID,
		TransactionID: input.TransactionID,
		Status:        enums.WalletEntryStatusCompleted,
		BalanceAfter:  input.BalanceAfter.Round(2),
		Note:          input.Note,
	}
	if err := repo.CreateWalletEntry(ctx, entry); err != nil {
		if db.IsUniqueViolation(err, "ux_wallet_transactions_reference") {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "wallet %s for %s %d already recorded", input.Type, input.ReferenceType, input.ReferenceID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append wallet entry")
	}
	return entry, nil
}

// CompletePaymentByGateway settles the payment_in entry for an order from a
// gateway outcome. A gateway reference already in a final state is reported
// as DuplicateGatewayEvent so callers can absorb replays.
func (s *service) CompletePaymentByGateway(ctx context.Context, input GatewayPaymentInput) (*models.Transaction, error) {
	input.GatewayReference = strings.TrimSpace(input.GatewayReference)
	if input.GatewayReference == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "gateway reference is required")
	}
	if input.OrderID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "order is required")
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "invalid payment status %q", input.Status)
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "amount must be positive")
	}

	target := enums.TransactionStatusCompleted
	reason := ""
	if input.Status == enums.PaymentEventFailed {
		target = enums.TransactionStatusFailed
		reason = input.FailureReason
		if reason == "" {
			reason = "gateway reported failure"
		}
	}

	var entry *models.Transaction
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindByGatewayReference(ctx, input.GatewayReference)
		switch {
		case err == nil:
			if existing.Status.IsFinal() {
				entry = existing
				return pkgerrors.Newf(pkgerrors.CodeDuplicateGatewayEvent, "gateway payment %s already %s", input.GatewayReference, existing.Status)
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			existing, err = repo.FindPendingPayment(ctx, input.OrderID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending payment")
			}
			if errors.Is(err, gorm.ErrRecordNotFound) {
				existing = nil
			}
		default:
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment by gateway reference")
		}

		if existing != nil {
			if !existing.Amount.Equal(input.Amount.Round(2)) {
				return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "gateway amount %s does not match ledger amount %s", input.Amount, existing.Amount)
			}
			update := StatusUpdate{To: target, GatewayReference: &input.GatewayReference}
			if target == enums.TransactionStatusCompleted {
				completedAt := s.now()
				update.CompletedAt = &completedAt
			} else {
				update.FailureReason = &reason
			}
			entry, err = s.applyTransition(ctx, repo, existing.ID, update)
			return err
		}

		if input.UserID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeInvalidArgument, "user is required to record a new payment")
		}
		orderID := input.OrderID
		ref := input.GatewayReference
		entry, err = s.append(ctx, repo, AppendInput{
			Type:             enums.TransactionTypePaymentIn,
			Amount:           input.Amount,
			Currency:         input.Currency,
			UserID:           input.UserID,
			OrderID:          &orderID,
			Note:             "gateway payment",
			Status:           enums.TransactionStatusPending,
			GatewayReference: &ref,
		})
		if err != nil {
			return err
		}
		update := StatusUpdate{To: target}
		if target == enums.TransactionStatusCompleted {
			completedAt := s.now()
			update.CompletedAt = &completedAt
		} else {
			update.FailureReason = &reason
		}
		entry, err = s.applyTransition(ctx, repo, entry.ID, update)
		return err
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeDuplicateGatewayEvent) {
			s.logg.Warn(s.logg.WithField(ctx, "gateway_reference", input.GatewayReference), "gateway.duplicate_ignored")
		}
		return entry, err
	}

	logCtx := s.logg.WithOrderID(ctx, input.OrderID)
	s.logg.Info(s.logg.WithFields(logCtx, map[string]any{
		"transaction_id":    entry.ID,
		"gateway_reference": input.GatewayReference,
		"status":            entry.Status,
	}), "ledger.payment_settled")
	return entry, nil
}

func mapLookupError(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
