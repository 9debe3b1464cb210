package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shopfloor/domain"
	"shopfloor/event"
	"shopfloor/persistence"

	"github.com/fundwit/go-commons/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	NotifyEventHandlerName = "completionNotifier"
	DefaultExchange        = "mes.work_orders"
	RoutingKeyCompleted    = "work_order.completed"

	publishTimeout = 5 * time.Second
)

// Publisher sends one message to an exchange.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error
}

// WorkOrderCompleted is the body published when a work order enters the archive.
type WorkOrderCompleted struct {
	CompletedWorkOrderID types.ID                `json:"completedWorkOrderId"`
	SourceWorkOrderID    types.ID                `json:"sourceWorkOrderId"`
	Key                  domain.WorkOrderKey     `json:"key"`
	CompletionMethod     domain.CompletionMethod `json:"completionMethod"`
	PlannedQuantity      int64                   `json:"plannedQuantity"`
	GoodQuantity         int64                   `json:"goodQuantity"`
	DefectQuantity       int64                   `json:"defectQuantity"`
	TotalWorkHours       float64                 `json:"totalWorkHours"`
	CompletedAt          time.Time               `json:"completedAt"`
	ArchivedAt           time.Time               `json:"archivedAt"`
}

// Notifier publishes archived work orders to a topic exchange.
type Notifier struct {
	ds        *persistence.DataSourceManager
	publisher Publisher
	Exchange  string
}

func NewNotifier(ds *persistence.DataSourceManager, publisher Publisher, exchange string) *Notifier {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &Notifier{ds: ds, publisher: publisher, Exchange: exchange}
}

func (n *Notifier) Handle(e *event.EventRecord) *event.EventHandleResult {
	if e.SourceType != domain.KindCompletedWorkOrder || e.EventCategory != event.EventCategoryArchived {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := n.publish(ctx, e.SourceId); err != nil {
		return &event.EventHandleResult{HandlerIdentifier: NotifyEventHandlerName,
			Message: fmt.Sprintf("publish completion of %s: %v", e.SourceKey, err)}
	}
	return &event.EventHandleResult{Success: true, HandlerIdentifier: NotifyEventHandlerName,
		Message: fmt.Sprintf("completion of %s published", e.SourceKey)}
}

func (n *Notifier) publish(ctx context.Context, archiveID types.ID) error {
	archived := domain.CompletedWorkOrder{}
	if err := n.ds.GormDB(ctx).Where("id = ?", archiveID).First(&archived).Error; err != nil {
		return err
	}
	body, err := json.Marshal(&WorkOrderCompleted{
		CompletedWorkOrderID: archived.ID,
		SourceWorkOrderID:    archived.SourceWorkOrderID,
		Key:                  archived.Key(),
		CompletionMethod:     archived.CompletionMethod,
		PlannedQuantity:      archived.PlannedQuantity,
		GoodQuantity:         archived.GoodQuantity,
		DefectQuantity:       archived.DefectQuantity,
		TotalWorkHours:       archived.TotalWorkHours,
		CompletedAt:          archived.CompletedAt,
		ArchivedAt:           archived.ArchivedAt,
	})
	if err != nil {
		return err
	}
	return n.publisher.Publish(ctx, n.Exchange, RoutingKeyCompleted, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		MessageId:    archived.ID.String(),
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// ChannelPublisher publishes over one AMQP channel.
type ChannelPublisher struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// Dial connects to the broker and declares the durable topic exchange.
func Dial(url, exchange string) (*ChannelPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	logrus.Infof("amqp exchange %s ready", exchange)
	return &ChannelPublisher{conn: conn, ch: ch}, nil
}

func (p *ChannelPublisher) Publish(ctx context.Context, exchange, routingKey string, msg amqp.Publishing) error {
	return p.ch.PublishWithContext(ctx, exchange, routingKey, false, false, msg)
}

func (p *ChannelPublisher) Close() error {
	if err := p.ch.Close(); err != nil {
		logrus.Warnf("close amqp channel: %v", err)
	}
	return p.conn.Close()
}
