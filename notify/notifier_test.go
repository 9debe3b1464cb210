package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"shopfloor/common"
	"shopfloor/domain"
	"shopfloor/event"
	"shopfloor/notify"
	"shopfloor/testinfra"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	exchange, routingKey string
	msg                  amqp.Publishing
}

type fakePublisher struct {
	err  error
	sent []published
}

func (f *fakePublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange: exchange, routingKey: routingKey, msg: msg})
	return nil
}

func TestNotifier(t *testing.T) {
	testDatabase := testinfra.StartMigratedDatabase("notify")
	defer testinfra.StopTestDatabase(testDatabase)
	db := testDatabase.DS.GormDB(context.Background())

	idWorker := common.NewIDWorker()
	archived := &domain.CompletedWorkOrder{ID: common.NextId(idWorker), SourceWorkOrderID: common.NextId(idWorker),
		CompanyCode: "A", OrderNumber: "331-1", ProductCode: "P-A", CompletionMethod: domain.CompletionByBoth,
		PlannedQuantity: 100, GoodQuantity: 100, TotalWorkHours: 4, CompletedAt: time.Now(), ArchivedAt: time.Now()}
	require.NoError(t, db.Create(archived).Error)
	record := &event.EventRecord{ID: common.NextId(idWorker), Event: event.Event{SourceType: domain.KindCompletedWorkOrder,
		SourceId: archived.ID, SourceKey: "A/331-1/P-A", EventCategory: event.EventCategoryArchived}}

	t.Run("publishes persistent completion message", func(t *testing.T) {
		publisher := &fakePublisher{}
		n := notify.NewNotifier(testDatabase.DS, publisher, "")

		result := n.Handle(record)
		require.NotNil(t, result)
		assert.True(t, result.Success)
		require.Len(t, publisher.sent, 1)
		sent := publisher.sent[0]
		assert.Equal(t, notify.DefaultExchange, sent.exchange)
		assert.Equal(t, notify.RoutingKeyCompleted, sent.routingKey)
		assert.Equal(t, amqp.Persistent, sent.msg.DeliveryMode)
		assert.Equal(t, "application/json", sent.msg.ContentType)

		body := notify.WorkOrderCompleted{}
		require.NoError(t, json.Unmarshal(sent.msg.Body, &body))
		assert.Equal(t, archived.ID, body.CompletedWorkOrderID)
		assert.Equal(t, domain.WorkOrderKey{CompanyCode: "A", OrderNumber: "331-1", ProductCode: "P-A"}, body.Key)
		assert.Equal(t, int64(100), body.GoodQuantity)
	})

	t.Run("reports broker failures", func(t *testing.T) {
		n := notify.NewNotifier(testDatabase.DS, &fakePublisher{err: errors.New("channel closed")}, "mes.x")
		result := n.Handle(record)
		require.NotNil(t, result)
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "channel closed")
	})

	t.Run("ignores other events", func(t *testing.T) {
		n := notify.NewNotifier(testDatabase.DS, &fakePublisher{}, "")
		assert.Nil(t, n.Handle(&event.EventRecord{Event: event.Event{SourceType: domain.KindWorkOrder}}))
	})
}
