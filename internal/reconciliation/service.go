package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type counter interface {
	IncReconciliation(source string)
}

// Entry describes a failure an operator has to look at.
type Entry struct {
	Source    enums.ReconciliationSource
	Reference string
	Err       error
	Payload   any
}

// Page is one page of open items.
type Page struct {
	Items      []models.ReconciliationItem `json:"items"`
	NextCursor string                      `json:"next_cursor,omitempty"`
}

// Service queues integrity violations and failed gateway processing.
type Service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics counter
	now     func() time.Time
}

// NewService builds the reconciliation queue. metrics may be nil.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, logg *logger.Logger, metrics counter, clock func() time.Time) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("reconciliation repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, tx: tx, outbox: publisher, logg: logg, metrics: metrics, now: clock}, nil
}

// Enqueue persists the entry in its own transaction.
func (s *Service) Enqueue(ctx context.Context, entry Entry) (*models.ReconciliationItem, error) {
	var item *models.ReconciliationItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		item, err = s.EnqueueTx(ctx, tx, entry)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// EnqueueTx persists the entry inside tx and announces it on the outbox.
func (s *Service) EnqueueTx(ctx context.Context, tx *gorm.DB, entry Entry) (*models.ReconciliationItem, error) {
	if !entry.Source.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidArgument, "invalid reconciliation source %q", entry.Source)
	}
	if strings.TrimSpace(entry.Reference) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "reconciliation reference is required")
	}

	item := &models.ReconciliationItem{
		Source:    entry.Source,
		Reference: entry.Reference,
		ErrorCode: string(pkgerrors.CodeInternal),
		Reason:    "unknown failure",
		Status:    enums.ReconciliationStatusOpen,
	}
	if entry.Err != nil {
		item.Reason = entry.Err.Error()
		if typed := pkgerrors.As(entry.Err); typed != nil {
			item.ErrorCode = string(typed.Code())
		}
	}
	if entry.Payload != nil {
		raw, err := json.Marshal(entry.Payload)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode reconciliation payload")
		}
		item.Payload = raw
	}

	if err := s.repo.WithTx(tx).Create(ctx, item); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create reconciliation item")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventReconciliationRequired,
		AggregateType: enums.AggregateReconciliation,
		AggregateID:   item.ID,
		Version:       1,
		Data: payloads.ReconciliationRequiredEvent{
			ItemID:    item.ID,
			Source:    item.Source,
			Reference: item.Reference,
			Reason:    item.Reason,
		},
	}); err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncReconciliation(string(item.Source))
	}
	s.logg.Error(s.logg.WithFields(ctx, map[string]any{
		"reconciliation_id": item.ID,
		"source":            item.Source,
		"reference":         item.Reference,
		"error_code":        item.ErrorCode,
	}), "reconciliation.enqueued", entry.Err)
	return item, nil
}

// ListOpen pages through unresolved items, newest first.
func (s *Service) ListOpen(ctx context.Context, source *enums.ReconciliationSource, params pagination.Params) (*Page, error) {
	items, err := s.repo.ListOpen(ctx, source, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reconciliation items")
	}
	page := &Page{Items: items}
	limit := pagination.NormalizeLimit(params.Limit)
	if len(items) > limit {
		page.Items = items[:limit]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{ID: page.Items[limit-1].ID})
	}
	return page, nil
}

// Resolve closes an open item with the operator's note.
func (s *Service) Resolve(ctx context.Context, id int64, actorID uuid.UUID, note string) (*models.ReconciliationItem, error) {
	if actorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "resolver is required")
	}
	if strings.TrimSpace(note) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "resolution note is required")
	}
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "reconciliation item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load reconciliation item")
	}
	if item.Status != enums.ReconciliationStatusOpen {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "reconciliation item %d is already %s", id, item.Status)
	}
	now := s.now()
	rows, err := s.repo.Resolve(ctx, id, map[string]any{
		"status":          enums.ReconciliationStatusResolved,
		"resolved_by":     actorID,
		"resolved_at":     now,
		"resolution_note": note,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve reconciliation item")
	}
	if rows == 0 {
		return nil, pkgerrors.Newf(pkgerrors.CodeInvalidTransition, "reconciliation item %d was resolved concurrently", id)
	}
	s.logg.Info(s.logg.WithField(ctx, "reconciliation_id", id), "reconciliation.resolved")
	return s.repo.FindByID(ctx, id)
}
