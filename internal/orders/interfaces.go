package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/internal/inventory"
	"github.com/angelmondragon/marketledger-backend/internal/ledger"
	"github.com/angelmondragon/marketledger-backend/internal/wallets"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

// Repository defines persistence operations for orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) error
	FindOrder(ctx context.Context, id int64) (*models.Order, error)
	LockOrder(ctx context.Context, id int64) (*models.Order, error)
	UpdateOrder(ctx context.Context, id, version int64, values map[string]any) (int64, error)
	UpdateDetail(ctx context.Context, detailID int64, values map[string]any) error
	DeleteDetail(ctx context.Context, detailID int64) error
	DeleteOrder(ctx context.Context, id int64) error
	FindLineCredit(ctx context.Context, detailID int64) (*models.WalletTransaction, error)
	ListOrders(ctx context.Context, filter ListFilter, params pagination.Params) ([]models.Order, error)
}

// Allocator exports and returns stock for order lines.
type Allocator interface {
	AllocateSaleTx(ctx context.Context, tx *gorm.DB, input inventory.AllocationInput) ([]models.ExportInventory, error)
	ReverseMovementsTx(ctx context.Context, tx *gorm.DB, orderDetailID int64, actorID uuid.UUID, note string) ([]models.ExportInventory, error)
	RefundLineTx(ctx context.Context, tx *gorm.DB, orderDetailID int64, restock bool) (int, error)
	OutstandingSalesTx(ctx context.Context, tx *gorm.DB, orderDetailIDs []int64) (map[int64]int, error)
}

// LedgerWriter appends the money side of order changes.
type LedgerWriter interface {
	AppendTx(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*models.Transaction, error)
	CancelPendingForOrderTx(ctx context.Context, tx *gorm.DB, orderID int64) (int, error)
}

// WalletDebiter claws back vendor net on refunds.
type WalletDebiter interface {
	DebitTx(ctx context.Context, tx *gorm.DB, vendorID uuid.UUID, m wallets.Movement) (*models.Wallet, *models.WalletTransaction, error)
}
