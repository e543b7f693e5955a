// internal/service/fulfillment/infrastructure/adapter/events_kafka_adapter.go
package adapter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"codevend/internal/pkg/mq"
	"codevend/internal/service/fulfillment/domain"
)

// EventsKafkaAdapter 实现了 port.EventPublisher 接口，
// 把发货审计事件写到事件 topic 上供下游（对账、客服工具）消费。
type EventsKafkaAdapter struct {
	writer *kafka.Writer
}

func NewEventsKafkaAdapter(writer *kafka.Writer) *EventsKafkaAdapter {
	return &EventsKafkaAdapter{writer: writer}
}

// PublishFulfillmentCompleted 以订单号为 key 发布事件，保证单订单事件有序。
func (a *EventsKafkaAdapter) PublishFulfillmentCompleted(ctx context.Context, event *domain.FulfillmentCompleted) error {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal fulfillment event: %w", err)
	}
	return mq.ProduceMessage(ctx, a.writer, []byte(event.OrderID), eventBytes)
}

// Close 关闭底层的 Kafka writer。
func (a *EventsKafkaAdapter) Close() error {
	return a.writer.Close()
}
