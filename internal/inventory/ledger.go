package inventory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Params wires the stock ledger and the movement recorder.
type Params struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Logger *logger.Logger
	Clock  func() time.Time
}

func (p Params) validate() error {
	if p.Repo == nil {
		return fmt.Errorf("inventory repository required")
	}
	if p.Tx == nil {
		return fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return fmt.Errorf("outbox publisher required")
	}
	if p.Logger == nil {
		return fmt.Errorf("logger required")
	}
	return nil
}

func (p Params) clock() func() time.Time {
	if p.Clock != nil {
		return p.Clock
	}
	return func() time.Time { return time.Now().UTC() }
}

// LedgerService owns received batches and their quality state.
type LedgerService struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewLedgerService builds the batch/serial stock ledger.
func NewLedgerService(p Params) (*LedgerService, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &LedgerService{
		repo:   p.Repo,
		tx:     p.Tx,
		outbox: p.Outbox,
		logg:   p.Logger,
		now:    p.clock(),
	}, nil
}

// ReceiveBatch registers a lot and, when serial numbers are given, one serial per unit.
func (s *LedgerService) ReceiveBatch(ctx context.Context, input ReceiveBatchInput) (*models.BatchInventory, error) {
	if err := validateReceive(&input); err != nil {
		return nil, err
	}
	if input.LotNumber == "" {
		input.LotNumber = generateLotNumber(s.now())
	}

	batch := &models.BatchInventory{
		ProductID:         input.ProductID,
		VendorID:          input.VendorID,
		LotNumber:         input.LotNumber,
		Quantity:          input.Quantity,
		RemainingQuantity: input.Quantity,
		UnitCost:          input.UnitCost.Round(2),
		ExpiryDate:        input.ExpiryDate,
		ManufacturingDate: input.ManufacturingDate,
		QualityStatus:     input.QualityStatus,
		Serialized:        len(input.Serials) > 0,
		Version:           1,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateBatch(ctx, batch); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "lot number already received for product")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create batch")
		}
		if !batch.Serialized {
			return nil
		}
		serials := make([]models.ProductSerial, 0, len(input.Serials))
		for _, number := range input.Serials {
			serials = append(serials, models.ProductSerial{
				BatchID:      batch.ID,
				ProductID:    batch.ProductID,
				SerialNumber: number,
				Status:       enums.SerialStatusStock,
				Version:      1,
			})
		}
		if err := repo.CreateSerials(ctx, serials); err != nil {
			if db.IsUniqueViolation(err, "") {
				return pkgerrors.New(pkgerrors.CodeConflict, "serial number already registered for product")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create serials")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"batch_id":   batch.ID,
		"product_id": batch.ProductID.String(),
		"lot_number": batch.LotNumber,
		"quantity":   batch.Quantity,
	})
	logCtx = s.logg.WithVendorID(logCtx, batch.VendorID.String())
	s.logg.Info(logCtx, "inventory.batch_received")
	return batch, nil
}

func validateReceive(input *ReceiveBatchInput) error {
	if input.ProductID == uuid.Nil || input.VendorID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "product and vendor are required")
	}
	if input.Quantity <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "quantity must be positive")
	}
	if !input.UnitCost.IsPositive() {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "unit cost must be positive")
	}
	input.LotNumber = strings.TrimSpace(input.LotNumber)
	if input.QualityStatus == "" {
		input.QualityStatus = enums.QualityStatusPending
	}
	if input.QualityStatus != enums.QualityStatusPending && input.QualityStatus != enums.QualityStatusNotRequired {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "batches are received pending or not_required")
	}
	if input.ExpiryDate != nil && input.ManufacturingDate != nil && input.ExpiryDate.Before(*input.ManufacturingDate) {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "expiry date precedes manufacturing date")
	}
	if len(input.Serials) == 0 {
		return nil
	}
	if len(input.Serials) != input.Quantity {
		return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "expected %d serials, got %d", input.Quantity, len(input.Serials))
	}
	seen := make(map[string]struct{}, len(input.Serials))
	for i, raw := range input.Serials {
		number := strings.TrimSpace(raw)
		if number == "" {
			return pkgerrors.New(pkgerrors.CodeInvalidArgument, "serial numbers must not be empty")
		}
		if _, dup := seen[number]; dup {
			return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "duplicate serial %q", number)
		}
		seen[number] = struct{}{}
		input.Serials[i] = number
	}
	return nil
}

func generateLotNumber(at time.Time) string {
	return fmt.Sprintf("LOT-%s-%s", at.UTC().Format("20060102"), strings.ToUpper(uuid.NewString()[:8]))
}

// GetAvailable lists what can still be exported for a product. Failed batches are excluded.
func (s *LedgerService) GetAvailable(ctx context.Context, productID uuid.UUID) (Availability, error) {
	out := Availability{
		ProductID: productID,
		Lots:      map[string]int{},
		Serials:   map[string]string{},
	}
	batches, err := s.repo.ListBatchesByProduct(ctx, productID)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batches")
	}
	hasSerialized := false
	for _, batch := range batches {
		if !batch.QualityStatus.Allocatable() {
			continue
		}
		if batch.Serialized {
			hasSerialized = true
			continue
		}
		if batch.RemainingQuantity > 0 {
			out.Lots[batch.LotNumber] = batch.RemainingQuantity
		}
	}
	if !hasSerialized {
		return out, nil
	}
	serials, err := s.repo.ListAvailableSerials(ctx, productID)
	if err != nil {
		return out, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list serials")
	}
	for _, serial := range serials {
		out.Serials[serial.SerialNumber] = serial.LotNumber
	}
	return out, nil
}

// GetBatch loads a single batch.
func (s *LedgerService) GetBatch(ctx context.Context, id int64) (*models.BatchInventory, error) {
	batch, err := s.repo.FindBatch(ctx, id)
	if err != nil {
		return nil, mapLookupError(err, "batch not found", "load batch")
	}
	return batch, nil
}

// RecordQualityCheck moves a pending batch to passed or failed.
func (s *LedgerService) RecordQualityCheck(ctx context.Context, input QualityCheckInput) (*models.BatchInventory, error) {
	if input.Status != enums.QualityStatusPassed && input.Status != enums.QualityStatusFailed {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "quality verdict must be passed or failed")
	}
	if input.CheckedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "checker is required")
	}

	var updated *models.BatchInventory
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		batch, err := repo.FindBatch(ctx, input.BatchID)
		if err != nil {
			return mapLookupError(err, "batch not found", "load batch")
		}
		if !batch.QualityStatus.CanTransitionTo(input.Status) {
			return pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "batch quality cannot move from %s to %s", batch.QualityStatus, input.Status)
		}
		rows, err := repo.UpdateQuality(ctx, batch.ID, input.Status, input.CheckedBy, s.now(), input.Note)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update batch quality")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "batch quality changed concurrently")
		}
		updated, err = repo.FindBatch(ctx, batch.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload batch")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBatchQualityChecked,
			AggregateType: enums.AggregateBatch,
			AggregateID:   updated.ID,
			Actor:         &outbox.ActorRef{ActorID: input.CheckedBy.String()},
			Data: payloads.BatchQualityCheckedEvent{
				BatchID:   updated.ID,
				ProductID: updated.ProductID,
				LotNumber: updated.LotNumber,
				Status:    updated.QualityStatus,
			},
			OccurredAt: s.now(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_id":       updated.ID,
		"quality_status": updated.QualityStatus,
	}), "inventory.quality_checked")
	return updated, nil
}

func mapLookupError(err error, notFound, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}
