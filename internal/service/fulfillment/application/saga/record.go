// internal/service/fulfillment/application/saga/record.go
package saga

import (
	"go.opentelemetry.io/otel/codes"

	"codevend/internal/pkg/logger"
)

// RecordHandler 是链的最后一步：写入永久的幂等账本记录。
//
// 刻意放在所有对外可见的副作用之后：它之前任何一步失败，订单都保持
// 可重投，代价是分配之后、落账之前失败的重投可能重复送达消息——
// 分配器按订单号复用已认领的码，所以重复送达的也是同一批码。
type RecordHandler struct {
	NextHandler
}

func (h *RecordHandler) Handle(fctx *FulfillmentContext) error {
	ctx, span := fctx.Tracer.Start(fctx.Ctx, "saga.RecordProcessed")
	defer span.End()

	order := fctx.Order

	if err := fctx.Ledger.MarkProcessed(ctx, order.ID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to record fulfillment")
		return err
	}

	if err := order.MarkAsRecorded(); err != nil {
		span.RecordError(err)
		return err
	}

	// 永久记录已经存在，抢占键没有保留的必要；释放失败也无妨，会随 TTL 过期
	if err := fctx.Ledger.ReleaseOrder(ctx, order.ID); err != nil {
		logger.Ctx(ctx).Warn().Err(err).Str("order", order.ID).Msg("Failed to release in-flight claim after record")
	}

	span.AddEvent("Fulfillment recorded in ledger.")
	return h.executeNext(fctx)
}
