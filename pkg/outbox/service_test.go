package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/marketledger-backend/pkg/db/dbtest"
	"github.com/angelmondragon/marketledger-backend/pkg/db/models"
	"github.com/angelmondragon/marketledger-backend/pkg/enums"
	"github.com/angelmondragon/marketledger-backend/pkg/outbox/payloads"
)

func TestEmitStoresEnvelope(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)

	err := svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   12,
		Actor:         &ActorRef{ActorID: "ops-1"},
		Data: payloads.OrderStatusChangedEvent{
			OrderID: 12,
			From:    enums.OrderStatusPending,
			To:      enums.OrderStatusConfirmed,
		},
	})
	require.NoError(t, err)

	var rows []models.OutboxEvent
	require.NoError(t, conn.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(12), rows[0].AggregateID)
	assert.NotEmpty(t, rows[0].EventID)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	assert.Equal(t, 1, envelope.Version)
	assert.Equal(t, rows[0].EventID, envelope.EventID)
	require.NotNil(t, envelope.Actor)
	assert.Equal(t, "ops-1", envelope.Actor.ActorID)

	var data payloads.OrderStatusChangedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	assert.Equal(t, enums.OrderStatusConfirmed, data.To)
}

func TestEmitRequiresTransaction(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	err := svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventOrderCreated})
	require.Error(t, err)
}

func TestEmitRejectsUnknownEventType(t *testing.T) {
	conn := dbtest.Open(t)
	svc := NewService(NewRepository(conn), nil)
	err := svc.Emit(context.Background(), conn, DomainEvent{EventType: "mystery", AggregateType: enums.AggregateOrder, AggregateID: 1})
	require.Error(t, err)
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		require.NoError(t, svc.Emit(ctx, conn, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   i,
			Data:          payloads.OrderCreatedEvent{OrderID: i},
		}))
	}

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	require.NoError(t, repo.MarkPublishedTx(conn, rows[0].ID))
	require.NoError(t, repo.MarkFailedTx(conn, rows[1].ID, errors.New("transient")))
	require.NoError(t, repo.MarkTerminalTx(conn, rows[2].ID, errors.New("bad payload"), 3))

	rows, err = repo.FetchUnpublishedForPublish(conn, 10, 3)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].AttemptCount)
	require.NotNil(t, rows[0].LastError)
	assert.Equal(t, "transient", *rows[0].LastError)

	pending, err := repo.CountPending()
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)
}

func TestDLQRepositoryInsertIsIdempotent(t *testing.T) {
	conn := dbtest.Open(t)
	dlq := NewDLQRepository(conn)

	msg := strings.Repeat("x", maxDLQErrorLen+50)
	entry := models.OutboxDLQ{
		EventID:       9,
		EventType:     enums.EventWalletCredited,
		AggregateType: enums.AggregateWallet,
		AggregateID:   4,
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
	}
	require.NoError(t, dlq.InsertTx(conn, entry))
	require.NoError(t, dlq.InsertTx(conn, entry))

	var rows []models.OutboxDLQ
	require.NoError(t, conn.Where("event_id = ?", 9).Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Len(t, *rows[0].ErrorMessage, maxDLQErrorLen)
}

func TestTruncateDLQErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "é"
	got := truncateDLQError(msg)
	assert.Equal(t, strings.Repeat("a", maxDLQErrorLen-1), got)
	assert.True(t, utf8.ValidString(got))
}

func TestDecodeEnvelopeRejectsEmptyData(t *testing.T) {
	_, err := DecodeEnvelope([]byte(`{"version":1,"eventId":"e-1","data":null}`))
	assert.ErrorIs(t, err, ErrEmptyPayload)

	_, err = DecodeEnvelope([]byte(`not json`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmptyPayload)

	env, err := DecodeEnvelope([]byte(`{"version":2,"eventId":"e-2","data":{"orderId":5}}`))
	require.NoError(t, err)
	assert.Equal(t, 2, env.Version)
	assert.JSONEq(t, `{"orderId":5}`, string(env.Data))
}
