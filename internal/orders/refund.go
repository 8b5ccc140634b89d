package orders

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/wallets"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
)

// RefundOrder refunds a delivered order: sale movements are refunded (lots go
// back to stock when Restock is set), a completed refund entry is appended for
// the customer and vendor net already credited for any line is clawed back.
func (s *service) RefundOrder(ctx context.Context, input RefundInput) (*models.Order, error) {
	clawedBack := 0
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := s.lockForTransition(ctx, repo, input.OrderID, enums.OrderStatusRefunded)
		if err != nil {
			return err
		}
		actor := actorOr(input.ActorID, order.VendorID)

		for _, detail := range order.Details {
			if _, err := s.allocator.RefundLineTx(ctx, tx, detail.ID, input.Restock); err != nil {
				return err
			}
		}

		orderID := order.ID
		if order.Total.IsPositive() {
			if _, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
				Type:     enums.TransactionTypeRefund,
				Amount:   order.Total,
				Currency: order.Currency,
				UserID:   order.CustomerID,
				OrderID:  &orderID,
				Note:     refundNote(input.Reason),
				Status:   enums.TransactionStatusCompleted,
			}); err != nil {
				return err
			}
		}

		for _, detail := range order.Details {
			if !detail.IsWalletCredited {
				continue
			}
			if err := s.clawBack(ctx, tx, repo, order, detail); err != nil {
				return err
			}
			clawedBack++
		}

		now := s.now()
		return s.setStatus(ctx, tx, repo, order, enums.OrderStatusRefunded, map[string]any{"refunded_at": now}, actor, input.Reason)
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithField(s.logg.WithOrderID(ctx, input.OrderID), "clawed_back_lines", clawedBack), "order.refunded")
	return s.GetOrder(ctx, input.OrderID)
}

func (s *service) clawBack(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, detail models.OrderDetail) error {
	credit, err := repo.FindLineCredit(ctx, detail.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "line %d is flagged credited but has no wallet credit", detail.ID)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load line credit")
	}
	orderID, detailID := order.ID, detail.ID
	debit, err := s.ledger.AppendTx(ctx, tx, ledger.AppendInput{
		Type:          enums.TransactionTypeWalletDebit,
		Amount:        credit.Amount,
		Currency:      order.Currency,
		UserID:        order.VendorID,
		OrderID:       &orderID,
		OrderDetailID: &detailID,
		Note:          "refund clawback",
		Status:        enums.TransactionStatusCompleted,
	})
	if err != nil {
		return err
	}
	_, _, err = s.wallets.DebitTx(ctx, tx, order.VendorID, wallets.Movement{
		Amount:        credit.Amount,
		Currency:      order.Currency,
		ReferenceType: enums.WalletReferenceTransaction,
		ReferenceID:   debit.ID,
		TransactionID: &debit.ID,
		Note:          "refund clawback",
	})
	return err
}

func refundNote(reason string) string {
	if reason == "" {
		return "order refund"
	}
	return "order refund: " + reason
}
