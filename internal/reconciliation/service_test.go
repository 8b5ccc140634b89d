package reconciliation

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/marketledger-backend/pkg/errors"
	"github.com/angelmondragon/marketledger-backend/pkg/logger"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox"
	"github.com/angelmondragon/marketledger-backend/pkg/pagination"
)

type countingMetrics struct{ sources []string }

func (c *countingMetrics) IncReconciliation(source string) { c.sources = append(c.sources, source) }

func newTestService(t *testing.T) (*Service, *countingMetrics, func() int64) {
	t.Helper()
	client, conn := dbtest.Client(t)
	logg := logger.New(logger.Options{ServiceName: "reconciliation-test", Output: io.Discard})
	metrics := &countingMetrics{}
	svc, err := NewService(NewRepository(conn), client, outbox.NewService(outbox.NewRepository(conn), logg), logg, metrics,
		func() time.Time { return time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) })
	require.NoError(t, err)
	events := func() int64 {
		var n int64
		require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventReconciliationRequired).Count(&n).Error)
		return n
	}
	return svc, metrics, events
}

func TestEnqueueKeepsErrorCode(t *testing.T) {
	svc, metrics, events := newTestService(t)
	ctx := context.Background()

	item, err := svc.Enqueue(ctx, Entry{
		Source:    enums.ReconciliationSourceSettlement,
		Reference: "order_detail:42",
		Err:       pkgerrors.New(pkgerrors.CodeIntegrityViolation, "vendor has no wallet"),
		Payload:   map[string]any{"order_detail_id": 42},
	})
	require.NoError(t, err)
	assert.Equal(t, string(pkgerrors.CodeIntegrityViolation), item.ErrorCode)
	assert.Equal(t, enums.ReconciliationStatusOpen, item.Status)
	assert.JSONEq(t, `{"order_detail_id":42}`, string(item.Payload))
	assert.Equal(t, []string{"settlement"}, metrics.sources)
	assert.EqualValues(t, 1, events())

	_, err = svc.Enqueue(ctx, Entry{Source: "nowhere", Reference: "x"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))
	_, err = svc.Enqueue(ctx, Entry{Source: enums.ReconciliationSourceLedger})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))
}

func TestListOpenAndResolve(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	var ids []int64
	for _, source := range []enums.ReconciliationSource{
		enums.ReconciliationSourcePaymentWebhook,
		enums.ReconciliationSourcePayoutCallback,
		enums.ReconciliationSourcePaymentWebhook,
	} {
		item, err := svc.Enqueue(ctx, Entry{Source: source, Reference: uuid.NewString()})
		require.NoError(t, err)
		ids = append(ids, item.ID)
	}

	webhook := enums.ReconciliationSourcePaymentWebhook
	page, err := svc.ListOpen(ctx, &webhook, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	assert.Equal(t, ids[2], page.Items[0].ID)

	_, err = svc.Resolve(ctx, ids[0], uuid.New(), "")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidArgument))

	resolved, err := svc.Resolve(ctx, ids[0], uuid.New(), "re-sent payout manually")
	require.NoError(t, err)
	assert.Equal(t, enums.ReconciliationStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = svc.Resolve(ctx, ids[0], uuid.New(), "again")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	_, err = svc.Resolve(ctx, 999, uuid.New(), "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	page, err = svc.ListOpen(ctx, nil, pagination.Params{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.NotEmpty(t, page.NextCursor)
}
