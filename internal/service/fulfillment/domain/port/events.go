// internal/service/fulfillment/domain/port/events.go
package port

import (
	"context"

	"codevend/internal/service/fulfillment/domain"
)

// EventPublisher 是发货审计事件的出站端口。
type EventPublisher interface {
	// PublishFulfillmentCompleted 发布成功发货事件。
	// 调用方把发布失败当作警告处理，不影响主流程。
	PublishFulfillmentCompleted(ctx context.Context, event *domain.FulfillmentCompleted) error
}
