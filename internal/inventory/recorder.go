package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

// Recorder writes export movements. Every stock decrement, serial flip and
// movement insert happens inside the caller's transaction through conditional
// updates, so a lost race surfaces as a typed error instead of an overwrite.
type Recorder struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewRecorder builds the export movement recorder.
func NewRecorder(p Params) (*Recorder, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Recorder{
		repo:   p.Repo,
		tx:     p.Tx,
		outbox: p.Outbox,
		logg:   p.Logger,
		now:    p.clock(),
	}, nil
}

// RecordMovement exports stock in its own transaction.
func (r *Recorder) RecordMovement(ctx context.Context, input MovementInput) (*models.ExportInventory, error) {
	var movement *models.ExportInventory
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		movement, err = r.RecordMovementTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logMovement(ctx, movement, "inventory.movement_recorded")
	return movement, nil
}

// RecordMovementTx exports stock from a lot or a single serial inside tx.
func (r *Recorder) RecordMovementTx(ctx context.Context, tx *gorm.DB, input MovementInput) (*models.ExportInventory, error) {
	if err := validateMovement(&input); err != nil {
		return nil, err
	}
	repo := r.repo.WithTx(tx)

	serial, err := repo.FindSerial(ctx, input.ProductID, input.LotOrSerial)
	switch {
	case err == nil:
		return r.exportSerial(ctx, tx, repo, serial, input)
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load serial")
	}

	batch, err := repo.FindBatchByLot(ctx, input.ProductID, input.LotOrSerial)
	if err != nil {
		return nil, mapLookupError(err, "lot or serial not found", "load batch")
	}
	if batch.Serialized {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "serialized lots are exported by serial number")
	}
	return r.exportFromLot(ctx, tx, repo, batch, input.Quantity, input)
}

func validateMovement(input *MovementInput) error {
	input.LotOrSerial = strings.TrimSpace(input.LotOrSerial)
	switch {
	case input.ProductID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "product is required")
	case input.LotOrSerial == "":
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "lot or serial is required")
	case input.Quantity <= 0:
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "quantity must be positive")
	case !input.Type.IsValid():
		return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "unknown movement type %q", input.Type)
	case input.ActorID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "actor is required")
	}
	if input.Type.RequiresOrderLine() && (input.OrderDetailID == nil || *input.OrderDetailID <= 0) {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "sale movements must reference an order line")
	}
	if !input.Type.RequiresOrderLine() && input.OrderDetailID != nil {
		return pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "%s movements cannot reference an order line", input.Type)
	}
	return nil
}

func (r *Recorder) exportSerial(ctx context.Context, tx *gorm.DB, repo Repository, serial *models.ProductSerial, input MovementInput) (*models.ExportInventory, error) {
	if input.Quantity != 1 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "a serial exports exactly one unit")
	}
	if serial.Status == enums.SerialStatusRefund {
		return nil, pkgerrors.Newf(pkgerrors.CodeStockUnavailable, "serial %s was refunded and is not in sellable stock", serial.SerialNumber)
	}
	if !serial.Status.Exportable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeSerialAlreadyExported, "serial %s already exported", serial.SerialNumber)
	}
	batch, err := repo.FindBatch(ctx, serial.BatchID)
	if err != nil {
		return nil, mapLookupError(err, "batch not found", "load batch")
	}
	if !batch.QualityStatus.Allocatable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStockUnavailable, "lot %s failed quality check", batch.LotNumber)
	}
	rows, err := repo.TransitionSerial(ctx, serial.ID, enums.ExportableSerialStatuses, enums.SerialStatusSold)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark serial sold")
	}
	if rows == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeSerialAlreadyExported, "serial %s already exported", serial.SerialNumber)
	}
	if err := r.decrement(ctx, repo, batch, 1); err != nil {
		return nil, err
	}
	serialID := serial.ID
	return r.insertMovement(ctx, tx, repo, &models.ExportInventory{
		ProductID:     batch.ProductID,
		BatchID:       batch.ID,
		SerialID:      &serialID,
		LotNumber:     batch.LotNumber,
		Quantity:      1,
		MovementType:  input.Type,
		OrderDetailID: input.OrderDetailID,
		Note:          input.Note,
		CreatedBy:     input.ActorID,
	})
}

func (r *Recorder) exportFromLot(ctx context.Context, tx *gorm.DB, repo Repository, batch *models.BatchInventory, qty int, input MovementInput) (*models.ExportInventory, error) {
	if !batch.QualityStatus.Allocatable() {
		return nil, pkgerrors.Newf(pkgerrors.CodeStockUnavailable, "lot %s failed quality check", batch.LotNumber)
	}
	if err := r.decrement(ctx, repo, batch, qty); err != nil {
		return nil, err
	}
	return r.insertMovement(ctx, tx, repo, &models.ExportInventory{
		ProductID:     batch.ProductID,
		BatchID:       batch.ID,
		LotNumber:     batch.LotNumber,
		Quantity:      qty,
		MovementType:  input.Type,
		OrderDetailID: input.OrderDetailID,
		Note:          input.Note,
		CreatedBy:     input.ActorID,
	})
}

func (r *Recorder) decrement(ctx context.Context, repo Repository, batch *models.BatchInventory, qty int) error {
	rows, err := repo.DecrementRemaining(ctx, batch.ID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement batch")
	}
	if rows == 0 {
		return pkgerrors.Newf(pkgerrors.CodeStockUnavailable, "lot %s has fewer than %d units", batch.LotNumber, qty)
	}
	return nil
}

func (r *Recorder) insertMovement(ctx context.Context, tx *gorm.DB, repo Repository, movement *models.ExportInventory) (*models.ExportInventory, error) {
	if err := repo.CreateMovement(ctx, movement); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert movement")
	}
	if err := r.emitMovement(ctx, tx, movement, 0); err != nil {
		return nil, err
	}
	return movement, nil
}

// AllocateSaleTx exports input.Quantity units for an order line, walking lots
// in strategy order with the preferred lot first.
func (r *Recorder) AllocateSaleTx(ctx context.Context, tx *gorm.DB, input AllocationInput) ([]models.ExportInventory, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "quantity must be positive")
	}
	if input.OrderDetailID <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "sale movements must reference an order line")
	}
	strategy := input.Strategy
	if !strategy.IsValid() {
		strategy = enums.LotStrategyFIFO
	}
	repo := r.repo.WithTx(tx)

	batches, err := repo.ListAllocatableBatches(ctx, input.ProductID, strategy)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list batches")
	}
	batches = preferLot(batches, input.PreferredLot)

	detailID := input.OrderDetailID
	base := MovementInput{
		ProductID:     input.ProductID,
		Quantity:      1,
		Type:          enums.MovementTypeSale,
		OrderDetailID: &detailID,
		ActorID:       input.ActorID,
	}

	need := input.Quantity
	movements := make([]models.ExportInventory, 0, len(batches))
	for i := range batches {
		if need == 0 {
			break
		}
		batch := &batches[i]
		if batch.Serialized {
			serials, err := repo.ListExportableSerials(ctx, batch.ID, min(need, batch.RemainingQuantity))
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list serials")
			}
			for j := range serials {
				movement, err := r.exportSerial(ctx, tx, repo, &serials[j], base)
				if pkgerrors.IsCode(err, pkgerrors.CodeSerialAlreadyExported) {
					continue
				}
				if err != nil {
					return nil, err
				}
				movements = append(movements, *movement)
				need--
			}
			continue
		}

		take := min(need, batch.RemainingQuantity)
		movement, err := r.exportFromLot(ctx, tx, repo, batch, take, base)
		if pkgerrors.IsCode(err, pkgerrors.CodeStockUnavailable) {
			// Lost a race for this lot; retry once with what is left.
			fresh, ferr := repo.FindBatch(ctx, batch.ID)
			if ferr != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, ferr, "reload batch")
			}
			take = min(need, fresh.RemainingQuantity)
			if take == 0 {
				continue
			}
			movement, err = r.exportFromLot(ctx, tx, repo, fresh, take, base)
			if pkgerrors.IsCode(err, pkgerrors.CodeStockUnavailable) {
				continue
			}
		}
		if err != nil {
			return nil, err
		}
		movements = append(movements, *movement)
		need -= take
	}

	if need > 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeStockUnavailable, "product %s is short %d of %d units", input.ProductID, need, input.Quantity).
			WithDetails(map[string]any{"product_id": input.ProductID.String(), "requested": input.Quantity, "short": need})
	}
	return movements, nil
}

func preferLot(batches []models.BatchInventory, lot *string) []models.BatchInventory {
	if lot == nil || strings.TrimSpace(*lot) == "" {
		return batches
	}
	want := strings.TrimSpace(*lot)
	for i, batch := range batches {
		if batch.LotNumber != want {
			continue
		}
		ordered := make([]models.BatchInventory, 0, len(batches))
		ordered = append(ordered, batch)
		ordered = append(ordered, batches[:i]...)
		return append(ordered, batches[i+1:]...)
	}
	return batches
}

// RefundMovement returns part of a sale in its own transaction.
func (r *Recorder) RefundMovement(ctx context.Context, input RefundInput) (*models.ExportInventory, error) {
	var movement *models.ExportInventory
	err := r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		movement, err = r.RefundMovementTx(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logMovement(ctx, movement, "inventory.movement_refunded")
	return movement, nil
}

// RefundMovementTx raises RefundQuantity on a sale row. Refunding more than was
// exported fails with OverRefund.
func (r *Recorder) RefundMovementTx(ctx context.Context, tx *gorm.DB, input RefundInput) (*models.ExportInventory, error) {
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "refund quantity must be positive")
	}
	repo := r.repo.WithTx(tx)
	movement, err := repo.FindMovement(ctx, input.MovementID)
	if err != nil {
		return nil, mapLookupError(err, "movement not found", "load movement")
	}
	if movement.MovementType != enums.MovementTypeSale {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "only sale movements can be refunded")
	}
	if err := r.refund(ctx, repo, movement, input.Quantity, input.Restock, false); err != nil {
		return nil, err
	}
	updated, err := repo.FindMovement(ctx, movement.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload movement")
	}
	if err := r.emitMovement(ctx, tx, updated, input.Quantity); err != nil {
		return nil, err
	}
	return updated, nil
}

// refund raises the refunded quantity of movement. A refunded serial is parked
// in refund status and never restocks its lot; a reversed one goes back to
// stock together with its lot unit.
func (r *Recorder) refund(ctx context.Context, repo Repository, movement *models.ExportInventory, qty int, restock, reversal bool) error {
	rows, err := repo.IncrementRefund(ctx, movement.ID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment refund")
	}
	if rows == 0 {
		return pkgerrors.Newf(pkgerrors.CodeOverRefund, "movement %d has only %d refundable units", movement.ID, movement.OutstandingQuantity())
	}
	if movement.SerialID != nil {
		to := enums.SerialStatusRefund
		if reversal {
			to = enums.SerialStatusStock
		}
		rows, err := repo.TransitionSerial(ctx, *movement.SerialID, []enums.SerialStatus{enums.SerialStatusSold}, to)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark serial "+string(to))
		}
		if rows == 0 {
			return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "serial %d of movement %d is not sold", *movement.SerialID, movement.ID)
		}
		restock = reversal
	}
	if !restock {
		return nil
	}
	rows, err = repo.IncrementRemaining(ctx, movement.BatchID, qty)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "restock batch")
	}
	if rows == 0 {
		return pkgerrors.Newf(pkgerrors.CodeIntegrityViolation, "restocking batch %d would exceed its received quantity", movement.BatchID)
	}
	return nil
}

// ReverseMovementsTx undoes every outstanding sale of an order line: the sale
// is fully refunded, stock returns to its batch and an adjustment row pointing
// at the original records the reversal.
func (r *Recorder) ReverseMovementsTx(ctx context.Context, tx *gorm.DB, orderDetailID int64, actorID uuid.UUID, note string) ([]models.ExportInventory, error) {
	repo := r.repo.WithTx(tx)
	sales, err := repo.ListSalesByOrderDetail(ctx, orderDetailID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}

	var reversals []models.ExportInventory
	for i := range sales {
		sale := &sales[i]
		outstanding := sale.OutstandingQuantity()
		if outstanding <= 0 {
			continue
		}
		if err := r.refund(ctx, repo, sale, outstanding, true, true); err != nil {
			return nil, err
		}
		originalID := sale.ID
		detailID := orderDetailID
		reversal := &models.ExportInventory{
			ProductID:     sale.ProductID,
			BatchID:       sale.BatchID,
			SerialID:      sale.SerialID,
			LotNumber:     sale.LotNumber,
			Quantity:      outstanding,
			MovementType:  enums.MovementTypeAdjustment,
			OrderDetailID: &detailID,
			ReversalOfID:  &originalID,
			CreatedBy:     actorID,
		}
		if note != "" {
			reversal.Note = &note
		}
		if err := repo.CreateMovement(ctx, reversal); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert reversal")
		}
		if err := r.emitMovement(ctx, tx, reversal, 0); err != nil {
			return nil, err
		}
		reversals = append(reversals, *reversal)
	}
	return reversals, nil
}

// RefundLineTx refunds whatever is still outstanding on an order line's
// sales. Lot units go back to their batch only when restock is set; refunded
// serials never do.
func (r *Recorder) RefundLineTx(ctx context.Context, tx *gorm.DB, orderDetailID int64, restock bool) (int, error) {
	repo := r.repo.WithTx(tx)
	sales, err := repo.ListSalesByOrderDetail(ctx, orderDetailID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list sales")
	}
	refunded := 0
	for i := range sales {
		sale := &sales[i]
		outstanding := sale.OutstandingQuantity()
		if outstanding <= 0 {
			continue
		}
		if err := r.refund(ctx, repo, sale, outstanding, restock, false); err != nil {
			return refunded, err
		}
		sale.RefundQuantity += outstanding
		if err := r.emitMovement(ctx, tx, sale, outstanding); err != nil {
			return refunded, err
		}
		refunded += outstanding
	}
	return refunded, nil
}

// OutstandingSalesTx sums exported minus refunded units per order line.
func (r *Recorder) OutstandingSalesTx(ctx context.Context, tx *gorm.DB, orderDetailIDs []int64) (map[int64]int, error) {
	sums, err := r.repo.WithTx(tx).SumOutstandingSales(ctx, orderDetailIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum sales")
	}
	return sums, nil
}

func (r *Recorder) emitMovement(ctx context.Context, tx *gorm.DB, movement *models.ExportInventory, refunded int) error {
	return r.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStockMovementRecorded,
		AggregateType: enums.AggregateBatch,
		AggregateID:   movement.BatchID,
		Actor:         &outbox.ActorRef{ActorID: movement.CreatedBy.String()},
		Data: payloads.StockMovementRecordedEvent{
			MovementID:    movement.ID,
			Type:          movement.MovementType,
			ProductID:     movement.ProductID,
			BatchID:       movement.BatchID,
			LotNumber:     movement.LotNumber,
			SerialID:      movement.SerialID,
			OrderDetailID: movement.OrderDetailID,
			ReversalOfID:  movement.ReversalOfID,
			Quantity:      movement.Quantity,
			Refunded:      refunded,
		},
		OccurredAt: r.now(),
	})
}

func (r *Recorder) logMovement(ctx context.Context, movement *models.ExportInventory, msg string) {
	r.logg.Info(r.logg.WithFields(ctx, map[string]any{
		"movement_id":     movement.ID,
		"movement_type":   movement.MovementType,
		"batch_id":        movement.BatchID,
		"quantity":        movement.Quantity,
		"refund_quantity": movement.RefundQuantity,
	}), msg)
}
