// internal/service/fulfillment/application/saga/dedup.go
package saga

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"codevend/internal/pkg/logger"
	"codevend/internal/service/fulfillment/domain"
)

// DedupHandler 是流程的第一步：幂等闸门。
//
// 先查永久账本，已处理过的订单直接跳过；再用 insert-if-absent 抢占
// 处理权，抢不到说明有并发重投正在处理同一订单，同样跳过。
// 账本本身不可用时 fail-closed：宁可拒绝处理，也不冒重复发码的风险。
type DedupHandler struct {
	NextHandler
}

func (h *DedupHandler) Handle(fctx *FulfillmentContext) error {
	ctx, span := fctx.Tracer.Start(fctx.Ctx, "saga.DedupCheck")
	defer span.End()

	order := fctx.Order

	processed, err := fctx.Ledger.HasProcessed(ctx, order.ID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Dedup check failed, refusing to proceed")
		return err
	}
	if processed {
		logger.Ctx(ctx).Info().Str("order", order.ID).Msg("Order already processed. Skipping.")
		order.MarkAsSkipped("already processed")
		span.AddEvent("Duplicate order skipped.")
		return nil
	}

	status, err := fctx.Ledger.AcquireOrder(ctx, order.ID, fctx.InflightTTL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to acquire dedup gate")
		return err
	}
	switch status {
	case domain.AcquireAlreadyProcessed:
		// 永久记录在 HasProcessed 检查之后才落盘，按已处理跳过
		logger.Ctx(ctx).Info().Str("order", order.ID).Msg("Order was recorded concurrently. Skipping.")
		order.MarkAsSkipped("already processed")
		span.AddEvent("Duplicate order skipped.")
		return nil
	case domain.AcquireHeld:
		// 先写者赢：并发的重投正在处理，这一侧按跳过收尾
		logger.Ctx(ctx).Info().Str("order", order.ID).Msg("Order is being processed concurrently. Skipping.")
		order.MarkAsSkipped("lost dedup race")
		span.AddEvent("Lost dedup race, skipped.")
		return nil
	}

	// 没走到落账这一步的话，释放处理权让重投可以立即重试
	fctx.AddCompensation(func(compCtx context.Context) {
		if err := fctx.Ledger.ReleaseOrder(compCtx, order.ID); err != nil {
			logger.Ctx(compCtx).Error().Err(err).Str("order", order.ID).Msg("Failed to release in-flight claim")
		}
	})

	span.AddEvent("Dedup gate acquired.")
	return h.executeNext(fctx)
}
