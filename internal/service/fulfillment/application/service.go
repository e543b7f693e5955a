// internal/service/fulfillment/application/service.go
package application

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"codevend/internal/pkg/logger"
	"codevend/internal/pkg/metrics"
	"codevend/internal/service/fulfillment/application/saga"
	"codevend/internal/service/fulfillment/domain"
	"codevend/internal/service/fulfillment/domain/port"
)

// FulfillmentApplicationService 只负责发货流程的编排：
// 解析后的销售通知进来，按固定顺序走完 去重 -> 分类 -> 支付闸门 ->
// 分配 -> 送达 -> 发货确认 -> 落账，它是账本的唯一写入方、分配器的唯一调用方。
type FulfillmentApplicationService struct {
	ledger     domain.LedgerRepository
	classifier *domain.Classifier
	allocator  *domain.Allocator
	notifier   port.BuyerNotifier
	events     port.EventPublisher
	tracer     trace.Tracer

	processingTimeout time.Duration
	inflightTTL       time.Duration
}

func NewFulfillmentApplicationService(
	ledger domain.LedgerRepository,
	classifier *domain.Classifier,
	allocator *domain.Allocator,
	notifier port.BuyerNotifier,
	events port.EventPublisher,
	tracer trace.Tracer,
	processingTimeout time.Duration,
) *FulfillmentApplicationService {
	return &FulfillmentApplicationService{
		ledger:            ledger,
		classifier:        classifier,
		allocator:         allocator,
		notifier:          notifier,
		events:            events,
		tracer:            tracer,
		processingTimeout: processingTimeout,
		// 抢占 TTL 给流程留足余量，持有者崩溃后订单自动恢复可重投
		inflightTTL: 2 * processingTimeout,
	}
}

// HandleSaleNotification 是被动的业务处理入口，
// 由驱动适配器（HTTP webhook 或重试消费者）调用。
// 返回 nil 表示终态是 Recorded 或 Skipped；返回 error 表示 Failed。
func (s *FulfillmentApplicationService) HandleSaleNotification(ctx context.Context, event *domain.SaleNotificationReceived) error {
	ctx, span := s.tracer.Start(ctx, "app.HandleSaleNotification", trace.WithSpanKind(trace.SpanKindConsumer))
	defer span.End()

	// 每个订单的处理流程有独立的超时；外部调用超时等同于该步骤失败
	processingCtx, cancel := context.WithTimeout(ctx, s.processingTimeout)
	defer cancel()

	order, err := domain.NewOrder(event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to create order entity")
		logger.Ctx(ctx).Error().Err(err).Str("order", event.OrderID).Msg("Malformed sale notification")
		metrics.FulfillmentsTotal.WithLabelValues("failed").Inc()
		return err
	}

	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("buyer.id", order.BuyerID),
		attribute.Int("order.quantity", order.Quantity),
	)

	fctx := &saga.FulfillmentContext{
		Ctx:         processingCtx,
		Order:       order,
		Tracer:      s.tracer,
		Ledger:      s.ledger,
		Classifier:  s.classifier,
		Allocator:   s.allocator,
		Notifier:    s.notifier,
		InflightTTL: s.inflightTTL,
	}

	logger.Ctx(ctx).Info().Str("order", order.ID).Str("buyer", order.BuyerID).Msg("Starting fulfillment workflow")

	chain := s.buildChain()
	if err := chain.Handle(fctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Fulfillment workflow failed")
		logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("Fulfillment workflow failed")

		order.MarkAsFailed()
		fctx.TriggerCompensation(processingCtx)
		metrics.FulfillmentsTotal.WithLabelValues("failed").Inc()
		return err
	}

	if order.State == domain.StateSkipped {
		// 跳过路径也要释放去重闸门（未支付的订单等着带新状态重投）
		fctx.TriggerCompensation(processingCtx)
		metrics.FulfillmentsTotal.WithLabelValues("skipped").Inc()
		span.AddEvent("Order skipped.")
		return nil
	}

	metrics.FulfillmentsTotal.WithLabelValues("recorded").Inc()
	logger.Ctx(ctx).Info().Str("order", order.ID).Msg("Fulfillment completed and recorded")
	span.AddEvent("Fulfillment recorded.")

	s.publishCompleted(ctx, order)
	return nil
}

// publishCompleted 发布审计事件。发布失败只告警，不影响已成功的流程。
func (s *FulfillmentApplicationService) publishCompleted(ctx context.Context, order *domain.Order) {
	event := &domain.FulfillmentCompleted{
		EventID:     uuid.New().String(),
		OrderID:     order.ID,
		BuyerID:     order.BuyerID,
		Pool:        order.Classification.Pool,
		SubRange:    order.Classification.SubRange,
		CodesIssued: len(order.Codes),
		CompletedAt: time.Now(),
	}
	if err := s.events.PublishFulfillmentCompleted(ctx, event); err != nil {
		logger.Ctx(ctx).Error().Err(err).Str("order", order.ID).Msg("WARN: Failed to publish fulfillment event")
	}
}

func (s *FulfillmentApplicationService) buildChain() saga.Handler {
	chain := new(saga.DedupHandler)
	chain.
		SetNext(new(saga.ClassifyHandler)).
		SetNext(new(saga.PaymentGateHandler)).
		SetNext(new(saga.AllocateHandler)).
		SetNext(new(saga.DeliverHandler)).
		SetNext(new(saga.ConfirmShipmentHandler)).
		SetNext(new(saga.RecordHandler))
	return chain
}
