package payouts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/reconciliation"
	"github.com/angelmondragon/marketledger-backend/internal/wallets"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
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

type ledgerWriter interface {
	AppendTx(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*models.Transaction, error)
}

type walletStore interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error)
	ReleaseTx(ctx context.Context, tx *gorm.DB, walletID int64, amount decimal.Decimal) (*models.Wallet, error)
	SettleTx(ctx context.Context, tx *gorm.DB, walletID int64, m wallets.Movement) (*models.Wallet, *models.WalletTransaction, error)
}

type reconciler interface {
	Enqueue(ctx context.Context, entry reconciliation.Entry) (*models.ReconciliationItem, error)
}

// RequestCashoutInput is a vendor withdrawal request.
type RequestCashoutInput struct {
	VendorID      uuid.UUID
	Amount        decimal.Decimal
	BankAccountID int64
	ActorID       uuid.UUID
}

// PayoutCallback is the gateway's report on a payout. Either the gateway
// transaction id or the payout id must identify the payout.
type PayoutCallback struct {
	GatewayTransactionID string
	PayoutID             int64
	Status               enums.PayoutStatus
	FailureReason        string
}

// CallbackResult reports what a callback changed. Duplicate callbacks change
// nothing and are reported, not failed.
type CallbackResult struct {
	Cashout   *models.Cashout
	Payout    *models.Payout
	Duplicate bool
}

// CashoutPage is one page of cashouts.
type CashoutPage struct {
	Cashouts   []models.Cashout `json:"cashouts"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Params wires the payouts service.
type Params struct {
	Repo           Repository
	Tx             txRunner
	Outbox         outboxPublisher
	Ledger         ledgerWriter
	Wallets        walletStore
	Banks          BankAccountResolver
	Gateway        PayoutGateway
	Reconciliation reconciler
	Logger         *logger.Logger
	MinAmount      decimal.Decimal
	Clock          func() time.Time
}

// Service runs the cashout lifecycle: reserve on request, execute through the
// gateway, settle or release on callback.
type Service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	ledger    ledgerWriter
	wallets   walletStore
	banks     BankAccountResolver
	gateway   PayoutGateway
	reconcile reconciler
	logg      *logger.Logger
	minAmount decimal.Decimal
	now       func() time.Time
}

// NewService validates params and builds the payouts service.
func NewService(p Params) (*Service, error) {
	switch {
	case p.Repo == nil:
		return nil, fmt.Errorf("payouts repository required")
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.Ledger == nil:
		return nil, fmt.Errorf("ledger required")
	case p.Wallets == nil:
		return nil, fmt.Errorf("wallet store required")
	case p.Banks == nil:
		return nil, fmt.Errorf("bank account resolver required")
	case p.Reconciliation == nil:
		return nil, fmt.Errorf("reconciliation queue required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	gateway := p.Gateway
	if gateway == nil {
		gateway = ManualGateway{}
	}
	clock := p.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		repo:      p.Repo,
		tx:        p.Tx,
		outbox:    p.Outbox,
		ledger:    p.Ledger,
		wallets:   p.Wallets,
		banks:     p.Banks,
		gateway:   gateway,
		reconcile: p.Reconciliation,
		logg:      p.Logger,
		minAmount: p.MinAmount,
		now:       clock,
	}, nil
}

// RequestCashout reserves amount in the vendor's wallet and records a pending
// cashout in one transaction.
func (s *Service) RequestCashout(ctx context.Context, input RequestCashoutInput) (*models.Cashout, error) {
	if input.VendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "vendor is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "amount must be positive")
	}
	if !input.Amount.Equal(input.Amount.Round(2)) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "amount must have at most two decimals")
	}
	if s.minAmount.IsPositive() && input.Amount.LessThan(s.minAmount) {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "amount must be at least %s", s.minAmount.StringFixed(2))
	}
	if _, err := s.banks.Resolve(ctx, input.VendorID, input.BankAccountID); err != nil {
		return nil, err
	}

	requestedBy := input.ActorID
	if requestedBy == uuid.Nil {
		requestedBy = input.VendorID
	}
	var cashout *models.Cashout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		wallet, err := s.wallets.ReserveTx(ctx, tx, input.VendorID, input.Amount)
		if err != nil {
			return err
		}
		cashout = &models.Cashout{
			VendorID:      input.VendorID,
			WalletID:      wallet.ID,
			Amount:        input.Amount,
			Currency:      wallet.Currency,
			BankAccountID: input.BankAccountID,
			Status:        enums.CashoutStatusPending,
			RequestedBy:   requestedBy,
		}
		if err := s.repo.WithTx(tx).CreateCashout(ctx, cashout); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cashout")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCashoutRequested,
			AggregateType: enums.AggregateCashout,
			AggregateID:   cashout.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{ActorID: requestedBy.String(), VendorID: input.VendorID.String(), Role: "vendor"},
			Data: payloads.CashoutRequestedEvent{
				CashoutID:     cashout.ID,
				WalletID:      wallet.ID,
				VendorID:      input.VendorID.String(),
				Amount:        cashout.Amount,
				Currency:      cashout.Currency,
				BankAccountID: input.BankAccountID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithVendorID(ctx, input.VendorID.String()), map[string]any{
		"cashout_id": cashout.ID,
		"amount":     cashout.Amount.StringFixed(2),
	}), "cashout.requested")
	return cashout, nil
}

// ExecutePayout snapshots the bank account into a payout, moves the cashout to
// processing and submits the payout. The gateway call runs outside any DB
// transaction. Only a *GatewayRejection fails the cashout; any other submit
// error keeps the reservation, queues reconciliation and leaves the payout
// pending so a later ExecutePayout resubmits it under the same idempotency key.
func (s *Service) ExecutePayout(ctx context.Context, cashoutID int64) (*models.Payout, error) {
	current, err := s.repo.FindCashout(ctx, cashoutID)
	if err != nil {
		return nil, mapLookupError(err, "cashout")
	}
	account, err := s.banks.Resolve(ctx, current.VendorID, current.BankAccountID)
	if err != nil {
		return nil, err
	}

	var created *models.Payout
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		cashout, err := repo.LockCashout(ctx, cashoutID)
		if err != nil {
			return mapLookupError(err, "cashout")
		}
		if cashout.Status == enums.CashoutStatusProcessing {
			created, err = s.unsubmittedPayout(ctx, repo, cashout)
			return err
		}
		if cashout.Status != enums.CashoutStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cashout %d is %s", cashout.ID, cashout.Status)
		}
		rows, err := repo.UpdateCashoutStatus(ctx, cashout.ID, []enums.CashoutStatus{enums.CashoutStatusPending}, map[string]any{
			"status": enums.CashoutStatusProcessing,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update cashout")
		}
		if rows == 0 {
			return pkgerrors.Newf(pkgerrors.CodeConflict, "cashout %d changed concurrently", cashout.ID)
		}
		created = &models.Payout{
			CashoutID:          cashout.ID,
			Amount:             cashout.Amount,
			Currency:           cashout.Currency,
			BankAccountNumber:  account.AccountNumber,
			BankAccountHolder:  account.AccountHolder,
			BankRoutingNumber:  account.RoutingNumber,
			GatewayDestination: account.GatewayAccountRef,
			Status:             enums.PayoutStatusPending,
		}
		if err := repo.CreatePayout(ctx, created); err != nil {
			if db.IsUniqueViolation(err, "ux_payouts_cashout") {
				return pkgerrors.Newf(pkgerrors.CodeConflict, "cashout %d already has a payout", cashout.ID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"cashout_id": cashoutID, "payout_id": created.ID})
	idempotencyKey := payoutIdempotencyKey(created.ID)
	submission, gwErr := s.gateway.SubmitPayout(ctx, PayoutRequest{
		PayoutID:       created.ID,
		CashoutID:      cashoutID,
		Amount:         created.Amount,
		Currency:       created.Currency,
		Destination:    created.GatewayDestination,
		IdempotencyKey: idempotencyKey,
	})
	if gwErr != nil {
		if IsGatewayRejection(gwErr) {
			s.logg.Warn(s.logg.WithField(logCtx, "reason", gwErr.Error()), "payout.rejected")
			if _, err := s.HandlePayoutCallback(ctx, PayoutCallback{
				PayoutID:      created.ID,
				Status:        enums.PayoutStatusFailed,
				FailureReason: gwErr.Error(),
			}); err != nil {
				return nil, err
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, gwErr, "submit payout")
		}
		s.logg.Error(logCtx, "payout.submit_unconfirmed", gwErr)
		cause := pkgerrors.Wrap(pkgerrors.CodeDependency, gwErr, "payout submission outcome unknown").
			WithDetails(map[string]any{"payout_id": created.ID, "idempotency_key": idempotencyKey})
		s.enqueue(ctx, PayoutCallback{PayoutID: created.ID, Status: enums.PayoutStatusPending}, cause)
		return nil, cause
	}

	if err := s.recordSubmission(ctx, created, submission); err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeIntegrityViolation) {
			s.enqueue(ctx, PayoutCallback{
				GatewayTransactionID: submission.ExternalID,
				PayoutID:             created.ID,
				Status:               submission.Status,
			}, err)
		}
		return nil, err
	}
	s.logg.Info(s.logg.WithField(logCtx, "external_transaction_id", submission.ExternalID), "payout.submitted")

	if submission.Status.IsFinal() {
		if _, err := s.HandlePayoutCallback(ctx, PayoutCallback{
			GatewayTransactionID: submission.ExternalID,
			Status:               submission.Status,
		}); err != nil {
			return nil, err
		}
	}
	payout, err := s.repo.FindPayout(ctx, created.ID)
	if err != nil {
		return nil, mapLookupError(err, "payout")
	}
	return payout, nil
}

// unsubmittedPayout returns the payout of a processing cashout whose earlier
// submission never got a gateway answer.
func (s *Service) unsubmittedPayout(ctx context.Context, repo Repository, cashout *models.Cashout) (*models.Payout, error) {
	payout, err := repo.FindPayoutByCashout(ctx, cashout.ID)
	if err != nil {
		return nil, mapLookupError(err, "payout")
	}
	if payout.Status != enums.PayoutStatusPending || payout.ExternalTransactionID != nil {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cashout %d already has a payout at the gateway", cashout.ID)
	}
	return payout, nil
}

// recordSubmission stores the gateway reference. If the payout left pending
// while the call was in flight the reference is still kept, and the drift is
// returned as an integrity violation for reconciliation.
func (s *Service) recordSubmission(ctx context.Context, payout *models.Payout, submission *PayoutSubmission) error {
	if submission == nil || strings.TrimSpace(submission.ExternalID) == "" {
		return pkgerrors.New(pkgerrors.CodeDependency, "gateway returned no payout reference")
	}
	externalID := submission.ExternalID
	var drift *pkgerrors.Error
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		now := s.now()
		rows, err := repo.UpdatePayoutStatus(ctx, payout.ID, []enums.PayoutStatus{enums.PayoutStatusPending}, map[string]any{
			"status":                  enums.PayoutStatusProcessing,
			"external_transaction_id": externalID,
			"submitted_at":            now,
		})
		if err != nil {
			if db.IsUniqueViolation(err, "ux_payouts_external_transaction") {
				return pkgerrors.Newf(pkgerrors.CodeDuplicateGatewayEvent, "gateway transaction %s already recorded", externalID)
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record payout submission")
		}
		if rows == 0 {
			drift, err = s.keepLateReference(ctx, repo, payout.ID, externalID, now)
			return err
		}
		_, err = repo.UpdateCashoutStatus(ctx, payout.CashoutID, []enums.CashoutStatus{enums.CashoutStatusProcessing}, map[string]any{
			"gateway_transaction_id": externalID,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cashout gateway reference")
		}
		return nil
	})
	if err != nil {
		return err
	}
	if drift != nil {
		return drift
	}
	return nil
}

// keepLateReference attaches externalID to a payout that already moved on. The
// first result describes the drift, the second a failure to record it.
func (s *Service) keepLateReference(ctx context.Context, repo Repository, payoutID int64, externalID string, now time.Time) (*pkgerrors.Error, error) {
	current, err := repo.FindPayout(ctx, payoutID)
	if err != nil {
		return nil, mapLookupError(err, "payout")
	}
	if current.ExternalTransactionID != nil {
		if *current.ExternalTransactionID == externalID {
			return nil, nil
		}
		return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "payout %d is recorded under %s, gateway accepted %s", current.ID, *current.ExternalTransactionID, externalID).
			WithDetails(map[string]any{"payout_id": current.ID, "external_transaction_id": externalID}), nil
	}
	if _, err := repo.UpdatePayoutStatus(ctx, current.ID, []enums.PayoutStatus{current.Status}, map[string]any{
		"external_transaction_id": externalID,
		"submitted_at":            now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record late payout reference")
	}
	return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "payout %d was %s when the gateway accepted %s", current.ID, current.Status, externalID).
		WithDetails(map[string]any{"payout_id": current.ID, "external_transaction_id": externalID}), nil
}

// HandlePayoutCallback applies a gateway callback. Success debits the wallet
// and completes the cashout; failure releases the reservation. Replays of an
// applied outcome are absorbed. A final outcome contradicting an earlier one
// is an integrity violation and is queued for reconciliation.
func (s *Service) HandlePayoutCallback(ctx context.Context, cb PayoutCallback) (*CallbackResult, error) {
	if !cb.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "invalid payout status %q", cb.Status)
	}
	if cb.GatewayTransactionID == "" && cb.PayoutID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "gateway transaction id or payout id is required")
	}

	result := &CallbackResult{}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payout, err := s.findPayout(ctx, repo, cb)
		if err != nil {
			return err
		}
		result.Payout = payout
		if payout.Status.IsFinal() {
			if payout.Status == cb.Status {
				result.Duplicate = true
				return nil
			}
			return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "payout %d already %s, gateway now reports %s", payout.ID, payout.Status, cb.Status).
				WithDetails(map[string]any{"payout_id": payout.ID})
		}

		switch cb.Status {
		case enums.PayoutStatusSucceeded:
			return s.settle(ctx, tx, repo, payout, cb, result)
		case enums.PayoutStatusFailed:
			return s.fail(ctx, tx, repo, payout, cb, result)
		default:
			if payout.Status == enums.PayoutStatusPending && cb.Status == enums.PayoutStatusProcessing {
				_, err := repo.UpdatePayoutStatus(ctx, payout.ID, []enums.PayoutStatus{enums.PayoutStatusPending}, map[string]any{"status": cb.Status})
				if err != nil {
					return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
				}
				payout.Status = cb.Status
			}
			return nil
		}
	})

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"gateway_transaction_id": cb.GatewayTransactionID,
		"payout_id":              cb.PayoutID,
		"status":                 cb.Status,
	})
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeIntegrityViolation) {
			s.enqueue(ctx, cb, err)
		}
		return nil, err
	}
	if result.Duplicate {
		s.logg.Info(logCtx, "gateway.duplicate_ignored")
		return result, nil
	}
	if result.Cashout != nil {
		s.logg.Info(s.logg.WithField(logCtx, "cashout_id", result.Cashout.ID), "cashout.settled")
	}
	return result, nil
}

func (s *Service) findPayout(ctx context.Context, repo Repository, cb PayoutCallback) (*models.Payout, error) {
	if cb.GatewayTransactionID != "" {
		payout, err := repo.FindPayoutByExternalID(ctx, cb.GatewayTransactionID)
		if err == nil {
			return payout, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) || cb.PayoutID <= 0 {
			return nil, mapLookupError(err, "payout")
		}
	}
	payout, err := repo.FindPayout(ctx, cb.PayoutID)
	if err != nil {
		return nil, mapLookupError(err, "payout")
	}
	if cb.GatewayTransactionID != "" && payout.ExternalTransactionID != nil && *payout.ExternalTransactionID != cb.GatewayTransactionID {
		return nil, pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "payout %d is recorded under another gateway transaction", payout.ID)
	}
	return payout, nil
}

func (s *Service) settle(ctx context.Context, tx *gorm.DB, repo Repository, payout *models.Payout, cb PayoutCallback, result *CallbackResult) error {
	now := s.now()
	values := map[string]any{"status": enums.PayoutStatusSucceeded, "settled_at": now}
	if payout.ExternalTransactionID == nil && cb.GatewayTransactionID != "" {
		values["external_transaction_id"] = cb.GatewayTransactionID
	}
	rows, err := repo.UpdatePayoutStatus(ctx, payout.ID, []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}, values)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
	}
	if rows == 0 {
		result.Duplicate = true
		return nil
	}
	payout.Status = enums.PayoutStatusSucceeded
	payout.SettledAt = &now

	cashout, err := repo.LockCashout(ctx, payout.CashoutID)
	if err != nil {
		return mapLookupError(err, "cashout")
	}
	if cashout.Status != enums.CashoutStatusProcessing {
		return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "payout %d succeeded for cashout %d in status %s", payout.ID, cashout.ID, cashout.Status)
	}

	cashoutID := cashout.ID
	reference := gatewayReference(payout, cb)
	entry, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
		Type:             enums.TransactionTypeCashout,
		Amount:           cashout.Amount,
		Currency:         cashout.Currency,
		UserID:           cashout.VendorID,
		Note:             "vendor cashout " + strconv.FormatInt(cashoutID, 10),
		Status:           enums.TransactionStatusCompleted,
		GatewayReference: reference,
	})
	if err != nil {
		return err
	}
	wallet, _, err := s.wallets.SettleTx(ctx, tx, cashout.WalletID, wallets.Movement{
		Amount:        cashout.Amount,
		Currency:      cashout.Currency,
		ReferenceType: enums.WalletReferenceCashout,
		ReferenceID:   cashoutID,
		TransactionID: &entry.ID,
		Note:          "cashout payout",
	})
	if err != nil {
		return err
	}
	rows, err = repo.UpdateCashoutStatus(ctx, cashoutID, []enums.CashoutStatus{enums.CashoutStatusProcessing}, map[string]any{
		"status":         enums.CashoutStatusCompleted,
		"transaction_id": entry.ID,
		"processed_at":   now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete cashout")
	}
	if rows == 0 {
		return pkgerrors.Newf(pkgerrors.CodeConflict, "cashout %d changed concurrently", cashoutID)
	}
	cashout.Status = enums.CashoutStatusCompleted
	cashout.TransactionID = &entry.ID
	cashout.ProcessedAt = &now
	result.Cashout = cashout

	if err := s.emitSettled(ctx, tx, cashout, ""); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventWalletDebited,
		AggregateType: enums.AggregateWallet,
		AggregateID:   wallet.ID,
		Version:       int(wallet.Version),
		Data: payloads.WalletDebitedEvent{
			WalletID:  wallet.ID,
			VendorID:  cashout.VendorID.String(),
			CashoutID: cashoutID,
			Amount:    cashout.Amount,
			Currency:  cashout.Currency,
		},
	})
}

func (s *Service) fail(ctx context.Context, tx *gorm.DB, repo Repository, payout *models.Payout, cb PayoutCallback, result *CallbackResult) error {
	now := s.now()
	reason := strings.TrimSpace(cb.FailureReason)
	if reason == "" {
		reason = "payout failed at gateway"
	}
	values := map[string]any{"status": enums.PayoutStatusFailed, "failure_reason": reason, "settled_at": now}
	if payout.ExternalTransactionID == nil && cb.GatewayTransactionID != "" {
		values["external_transaction_id"] = cb.GatewayTransactionID
	}
	rows, err := repo.UpdatePayoutStatus(ctx, payout.ID, []enums.PayoutStatus{enums.PayoutStatusPending, enums.PayoutStatusProcessing}, values)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update payout")
	}
	if rows == 0 {
		result.Duplicate = true
		return nil
	}
	payout.Status = enums.PayoutStatusFailed
	payout.FailureReason = &reason

	cashout, err := s.closeCashout(ctx, tx, repo, payout.CashoutID, enums.CashoutStatusFailed, reason)
	if err != nil {
		return err
	}
	result.Cashout = cashout
	return nil
}

// CancelCashout withdraws a cashout that has not been handed to the gateway
// and releases its reservation. Once ExecutePayout moves it to processing only
// a gateway outcome can close it.
func (s *Service) CancelCashout(ctx context.Context, cashoutID int64, actorID uuid.UUID, reason string) (*models.Cashout, error) {
	var cashout *models.Cashout
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := repo.LockCashout(ctx, cashoutID)
		if err != nil {
			return mapLookupError(err, "cashout")
		}
		if current.Status != enums.CashoutStatusPending {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cashout %d is %s", current.ID, current.Status)
		}
		_, err = repo.FindPayoutByCashout(ctx, current.ID)
		if err == nil {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "cashout %d already has a payout", current.ID)
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout")
		}
		if strings.TrimSpace(reason) == "" {
			reason = "cancelled by vendor"
		}
		cashout, err = s.closeCashout(ctx, tx, repo, current.ID, enums.CashoutStatusCancelled, reason)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithActorID(ctx, actorID.String()), map[string]any{
		"cashout_id": cashoutID,
		"reason":     reason,
	}), "cashout.cancelled")
	return cashout, nil
}

func (s *Service) closeCashout(ctx context.Context, tx *gorm.DB, repo Repository, cashoutID int64, to enums.CashoutStatus, reason string) (*models.Cashout, error) {
	cashout, err := repo.LockCashout(ctx, cashoutID)
	if err != nil {
		return nil, mapLookupError(err, "cashout")
	}
	if !cashout.Status.CanTransitionTo(to) {
		return nil, pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "cashout %d cannot move from %s to %s", cashout.ID, cashout.Status, to)
	}
	now := s.now()
	rows, err := repo.UpdateCashoutStatus(ctx, cashout.ID, []enums.CashoutStatus{cashout.Status}, map[string]any{
		"status":         to,
		"failure_reason": reason,
		"processed_at":   now,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close cashout")
	}
	if rows == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "cashout %d changed concurrently", cashout.ID)
	}
	if _, err := s.wallets.ReleaseTx(ctx, tx, cashout.WalletID, cashout.Amount); err != nil {
		return nil, err
	}
	cashout.Status = to
	cashout.FailureReason = &reason
	cashout.ProcessedAt = &now
	if err := s.emitSettled(ctx, tx, cashout, reason); err != nil {
		return nil, err
	}
	return cashout, nil
}

func (s *Service) emitSettled(ctx context.Context, tx *gorm.DB, cashout *models.Cashout, reason string) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventCashoutSettled,
		AggregateType: enums.AggregateCashout,
		AggregateID:   cashout.ID,
		Version:       1,
		Data: payloads.CashoutSettledEvent{
			CashoutID: cashout.ID,
			WalletID:  cashout.WalletID,
			Status:    cashout.Status,
			Amount:    cashout.Amount,
			Reason:    reason,
		},
	})
}

// GetCashout loads one cashout.
func (s *Service) GetCashout(ctx context.Context, id int64) (*models.Cashout, error) {
	cashout, err := s.repo.FindCashout(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "cashout")
	}
	return cashout, nil
}

// ListCashouts pages through cashouts newest first.
func (s *Service) ListCashouts(ctx context.Context, filter CashoutFilter, params pagination.Params) (*CashoutPage, error) {
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "invalid cursor")
	}
	params.Limit = pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.ListCashouts(ctx, filter, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cashouts")
	}
	page := &CashoutPage{Cashouts: rows}
	if len(rows) > params.Limit {
		page.Cashouts = rows[:params.Limit]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{ID: page.Cashouts[params.Limit-1].ID})
	}
	return page, nil
}

func (s *Service) enqueue(ctx context.Context, cb PayoutCallback, cause error) {
	reference := cb.GatewayTransactionID
	if reference == "" {
		reference = "payout:" + strconv.FormatInt(cb.PayoutID, 10)
	}
	if _, err := s.reconcile.Enqueue(ctx, reconciliation.Entry{
		Source:    enums.ReconciliationSourcePayoutCallback,
		Reference: reference,
		Err:       cause,
		Payload: map[string]any{
			"gateway_transaction_id": cb.GatewayTransactionID,
			"payout_id":              cb.PayoutID,
			"status":                 cb.Status,
			"failure_reason":         cb.FailureReason,
		},
	}); err != nil {
		s.logg.Error(ctx, "payout.reconciliation_enqueue_failed", err)
	}
}

func payoutIdempotencyKey(payoutID int64) string {
	return "payout-" + strconv.FormatInt(payoutID, 10)
}

func gatewayReference(payout *models.Payout, cb PayoutCallback) *string {
	ref := cb.GatewayTransactionID
	if payout.ExternalTransactionID != nil {
		ref = *payout.ExternalTransactionID
	}
	if ref == "" {
		ref = "payout_" + strconv.FormatInt(payout.ID, 10)
	}
	return &ref
}

func mapLookupError(err error, entity string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Newf(pkgerrors.CodeNotFound, "%s not found", entity)
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load "+entity)
}
