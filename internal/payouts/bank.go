package payouts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

// BankAccountResolver looks up a vendor's payout destination.
type BankAccountResolver interface {
	Resolve(ctx context.Context, vendorID uuid.UUID, bankAccountID int64) (*models.BankAccount, error)
}

type dbBankAccountResolver struct {
	db *gorm.DB
}

// NewBankAccountResolver reads bank accounts from the bank_accounts table.
func NewBankAccountResolver(db *gorm.DB) BankAccountResolver {
	return &dbBankAccountResolver{db: db}
}

// Resolve returns the account only when it belongs to the vendor and has been
// verified.
func (r *dbBankAccountResolver) Resolve(ctx context.Context, vendorID uuid.UUID, bankAccountID int64) (*models.BankAccount, error) {
	if bankAccountID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "bank account is required")
	}
	var account models.BankAccount
	err := r.db.WithContext(ctx).
		Where("id = ? AND vendor_id = ?", bankAccountID, vendorID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "bank account not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load bank account")
	}
	if !account.Verified {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "bank account is not verified")
	}
	return &account, nil
}
