// internal/service/fulfillment/application/saga/handler.go
package saga

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"codevend/internal/pkg/logger"
	"codevend/internal/service/fulfillment/domain"
	"codevend/internal/service/fulfillment/domain/port"
)

// FulfillmentContext 在责任链中传递一次发货流程所需的全部数据。
// 所有外部依赖都是抽象接口。
type FulfillmentContext struct {
	Ctx    context.Context
	Order  *domain.Order
	Tracer trace.Tracer

	// 依赖出站端口
	Ledger     domain.LedgerRepository
	Classifier *domain.Classifier
	Allocator  *domain.Allocator
	Notifier   port.BuyerNotifier

	// 去重闸门抢占的 TTL
	InflightTTL time.Duration

	// 补偿栈：链中途终止（失败或跳过）时按 LIFO 执行
	compensations []func(ctx context.Context)
	compLock      sync.Mutex
}

// AddCompensation 把一个补偿函数推入栈中，后注册的先执行。
func (c *FulfillmentContext) AddCompensation(comp func(ctx context.Context)) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	c.compensations = append([]func(context.Context){comp}, c.compensations...)
}

// TriggerCompensation 执行所有已注册的补偿函数。
func (c *FulfillmentContext) TriggerCompensation(ctx context.Context) {
	c.compLock.Lock()
	defer c.compLock.Unlock()
	logger.Ctx(ctx).Info().
		Str("order", c.Order.ID).
		Int("count", len(c.compensations)).
		Msg("Executing compensation functions")
	for _, comp := range c.compensations {
		comp(ctx)
	}
	c.compensations = nil
}

// Handler 定义了链中每个节点的接口。
type Handler interface {
	SetNext(handler Handler) Handler
	Handle(fctx *FulfillmentContext) error
}

// NextHandler 是嵌入到具体处理器中的辅助结构，减少重复代码。
type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(fctx *FulfillmentContext) error {
	if h.next != nil {
		return h.next.Handle(fctx)
	}
	return nil
}
