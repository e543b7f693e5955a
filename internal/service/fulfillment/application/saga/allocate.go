// internal/service/fulfillment/application/saga/allocate.go
package saga

import (
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"codevend/internal/pkg/logger"
	"codevend/internal/pkg/metrics"
	"codevend/internal/service/fulfillment/domain"
)

// AllocateHandler 从码池为订单独占认领兑换码。
// 分配失败直接终止流程，不落账，扫描中已认领的槽位不回滚。
type AllocateHandler struct {
	NextHandler
}

func (h *AllocateHandler) Handle(fctx *FulfillmentContext) error {
	ctx, span := fctx.Tracer.Start(fctx.Ctx, "saga.AllocateCodes")
	defer span.End()

	order := fctx.Order
	cls := *order.Classification

	span.SetAttributes(
		attribute.String("pool", cls.Pool),
		attribute.String("sub_range", cls.SubRange),
		attribute.Int("quantity", order.Quantity),
	)

	start := time.Now()
	codeValues, err := fctx.Allocator.Allocate(ctx, order.ID, cls, order.Quantity)
	metrics.AllocationDuration.WithLabelValues(cls.Pool).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Code allocation failed")
		if errors.Is(err, domain.ErrInsufficientCodes) {
			metrics.PoolExhaustedTotal.WithLabelValues(cls.Pool, cls.SubRange).Inc()
		}
		return err
	}

	if err := order.MarkAsAllocated(codeValues); err != nil {
		span.RecordError(err)
		return err
	}

	metrics.CodesIssuedTotal.WithLabelValues(cls.Pool).Add(float64(len(codeValues)))
	logger.Ctx(ctx).Info().
		Str("order", order.ID).
		Str("pool", cls.Pool).
		Int("count", len(codeValues)).
		Msg("Codes claimed for order")
	span.AddEvent("Codes claimed exclusively.")

	return h.executeNext(fctx)
}
