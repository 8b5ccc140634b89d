package wallets

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
)

type walletEntryWriter interface {
	AppendWalletEntryTx(ctx context.Context, tx *gorm.DB, input ledger.WalletEntryInput) (*models.WalletTransaction, error)
}

// Movement ties a balance change to its cause. Currency must be the wallet's.
type Movement struct {
	Amount        decimal.Decimal
	Currency      enums.Currency
	ReferenceType enums.WalletReferenceType
	ReferenceID   int64
	TransactionID *int64
	Note          string
}

// Service keeps wallet balances. Every mutation runs inside the caller's
// transaction, locks the row and writes with a version check, so balance and
// pending_withdraw never go negative and pending_withdraw never exceeds balance.
type Service struct {
	repo    Repository
	entries walletEntryWriter
	logg    *logger.Logger
}

// NewService builds the wallet store.
func NewService(repo Repository, entries walletEntryWriter, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallet repository required")
	}
	if entries == nil {
		return nil, fmt.Errorf("wallet entry writer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: repo, entries: entries, logg: logg}, nil
}

// Open creates the vendor's wallet. Opening an existing wallet returns it.
func (s *Service) Open(ctx context.Context, vendorID uuid.UUID, currency enums.Currency) (*models.Wallet, error) {
	if vendorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "vendor is required")
	}
	if !currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "invalid currency %q", currency)
	}
	wallet := &models.Wallet{
		VendorID:        vendorID,
		Balance:         decimal.Zero,
		PendingWithdraw: decimal.Zero,
		Currency:        currency,
		Version:         1,
	}
	if err := s.repo.Create(ctx, wallet); err != nil {
		if !db.IsUniqueViolation(err, "ux_wallets_vendor") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create wallet")
		}
		existing, ferr := s.repo.FindByVendor(ctx, vendorID)
		if ferr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ferr, "load wallet")
		}
		if existing.Currency != currency {
			return nil, pkgerrors.Newf(pkgerrors.CodeConflict, "vendor wallet already open in %s", existing.Currency)
		}
		return existing, nil
	}
	s.logg.Info(s.logg.WithVendorID(ctx, vendorID.String()), "wallet.opened")
	return wallet, nil
}

// Get loads the vendor's wallet.
func (s *Service) Get(ctx context.Context, vendorID uuid.UUID) (*models.Wallet, error) {
	wallet, err := s.repo.FindByVendor(ctx, vendorID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return wallet, nil
}

// Entries lists the most recent wallet movements.
func (s *Service) Entries(ctx context.Context, walletID int64, limit int) ([]models.WalletTransaction, error) {
	entries, err := s.repo.ListEntries(ctx, walletID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list wallet entries")
	}
	return entries, nil
}

// CreditTx adds settled earnings to the vendor's balance. A missing wallet is
// an integrity violation: every vendor selling on the platform owns one.
func (s *Service) CreditTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, m Movement) (*models.Wallet, *models.WalletTransaction, error) {
	if !m.Amount.IsPositive() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "credit amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := repo.LockByVendor(ctx, vendorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "vendor %s has no wallet", vendorID)
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock wallet")
	}
	if err := checkCurrency(wallet, m); err != nil {
		return nil, nil, err
	}
	balance := wallet.Balance.Add(m.Amount)
	return s.apply(ctx, tx, repo, wallet, balance, wallet.PendingWithdraw, enums.WalletEntryCredit, m)
}

// ReserveTx earmarks amount for a cashout. The amount must fit in balance minus
// what is already reserved.
func (s *Service) ReserveTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, amount decimal.Decimal) (*models.Wallet, error) {
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := repo.LockByVendor(ctx, vendorID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if amount.GreaterThan(wallet.Available()) {
		return nil, pkgerrors.Newf(pkgerrors.CodeInsufficientBalance, "requested %s exceeds available %s", amount.StringFixed(2), wallet.Available().StringFixed(2)).
			WithDetails(map[string]any{"available": wallet.Available().StringFixed(2)})
	}
	wallet, _, err = s.apply(ctx, tx, repo, wallet, wallet.Balance, wallet.PendingWithdraw.Add(amount), "", Movement{})
	return wallet, err
}

// ReleaseTx drops a reservation without touching the balance.
func (s *Service) ReleaseTx(ctx context.Context, tx *gorm.DB, walletID int64, amount decimal.Decimal) (*models.Wallet, error) {
	repo := s.repo.WithTx(tx)
	wallet, err := repo.LockByID(ctx, walletID)
	if err != nil {
		return nil, mapLookupError(err)
	}
	if amount.GreaterThan(wallet.PendingWithdraw) {
		return nil, pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "release of %s exceeds reserved %s", amount.StringFixed(2), wallet.PendingWithdraw.StringFixed(2))
	}
	wallet, _, err = s.apply(ctx, tx, repo, wallet, wallet.Balance, wallet.PendingWithdraw.Sub(amount), "", Movement{})
	return wallet, err
}

// SettleTx converts a reservation into a debit once the payout succeeded.
func (s *Service) SettleTx(ctx context.Context, tx *gorm.DB, walletID int64, m Movement) (*models.Wallet, *models.WalletTransaction, error) {
	if !m.Amount.IsPositive() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "settle amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := repo.LockByID(ctx, walletID)
	if err != nil {
		return nil, nil, mapLookupError(err)
	}
	if err := checkCurrency(wallet, m); err != nil {
		return nil, nil, err
	}
	if m.Amount.GreaterThan(wallet.PendingWithdraw) {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "settle of %s exceeds reserved %s", m.Amount.StringFixed(2), wallet.PendingWithdraw.StringFixed(2))
	}
	return s.apply(ctx, tx, repo, wallet, wallet.Balance.Sub(m.Amount), wallet.PendingWithdraw.Sub(m.Amount), enums.WalletEntryDebit, m)
}

// DebitTx takes unreserved funds out of the wallet, e.g. clawing back net
// credited for a refunded order line.
func (s *Service) DebitTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, m Movement) (*models.Wallet, *models.WalletTransaction, error) {
	if !m.Amount.IsPositive() {
		return nil, nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "debit amount must be positive")
	}
	repo := s.repo.WithTx(tx)
	wallet, err := repo.LockByVendor(ctx, vendorID)
	if err != nil {
		return nil, nil, mapLookupError(err)
	}
	if err := checkCurrency(wallet, m); err != nil {
		return nil, nil, err
	}
	if m.Amount.GreaterThan(wallet.Available()) {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeInsufficientBalance, "debit of %s exceeds available %s", m.Amount.StringFixed(2), wallet.Available().StringFixed(2))
	}
	return s.apply(ctx, tx, repo, wallet, wallet.Balance.Sub(m.Amount), wallet.PendingWithdraw, enums.WalletEntryDebit, m)
}

func (s *Service) apply(ctx context.Context, tx *gorm.DB, repo Repository, wallet *models.Wallet, balance, pending decimal.Decimal, entryType enums.WalletEntryType, m Movement) (*models.Wallet, *models.WalletTransaction, error) {
	if balance.IsNegative() || pending.IsNegative() || pending.GreaterThan(balance) {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "wallet %d would hold balance %s with %s reserved", wallet.ID, balance.StringFixed(2), pending.StringFixed(2))
	}
	rows, err := repo.UpdateBalances(ctx, wallet.ID, wallet.Version, balance, pending)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update wallet")
	}
	if rows == 0 {
		return nil, nil, pkgerrors.Newf(pkgerrors.CodeConflict, "wallet %d modified concurrently", wallet.ID)
	}
	wallet.Balance = balance
	wallet.PendingWithdraw = pending
	wallet.Version++

	if entryType == "" {
		return wallet, nil, nil
	}
	entry, err := s.entries.AppendWalletEntryTx(ctx, tx, ledger.WalletEntryInput{
		WalletID:      wallet.ID,
		Type:          entryType,
		Amount:        m.Amount,
		ReferenceType: m.ReferenceType,
		ReferenceID:   m.ReferenceID,
		TransactionID: m.TransactionID,
		BalanceAfter:  balance,
		Note:          m.Note,
	})
	if err != nil {
		return nil, nil, err
	}
	return wallet, entry, nil
}

func checkCurrency(wallet *models.Wallet, m Movement) error {
	if m.Currency == "" {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "movement currency is required")
	}
	if m.Currency != wallet.Currency {
		return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "wallet %d holds %s, movement is in %s", wallet.ID, wallet.Currency, m.Currency).
			WithDetails(map[string]any{"wallet_id": wallet.ID, "wallet_currency": wallet.Currency, "currency": m.Currency})
	}
	return nil
}

func mapLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
}
