// internal/service/fulfillment/application/saga/payment_gate.go
package saga

import (
	"go.opentelemetry.io/otel/attribute"

	"codevend/internal/pkg/logger"
)

// PaymentGateHandler 在分配之前拦住未支付的订单。
//
// 未支付不是错误：订单按 Skipped 收尾，之后市场方会带着新的支付状态
// 重投同一订单号，届时再正常走完流程。
type PaymentGateHandler struct {
	NextHandler
}

func (h *PaymentGateHandler) Handle(fctx *FulfillmentContext) error {
	ctx, span := fctx.Tracer.Start(fctx.Ctx, "saga.PaymentGate")
	defer span.End()

	order := fctx.Order
	span.SetAttributes(attribute.String("payment.status", string(order.PaymentStatus)))

	if !order.IsPaid() {
		logger.Ctx(ctx).Info().
			Str("order", order.ID).
			Str("status", string(order.PaymentStatus)).
			Msg("Order is not paid yet. Skipping.")
		// 编排层会触发补偿释放去重闸门，后续带支付状态的重投可以进来
		order.MarkAsSkipped("not paid")
		span.AddEvent("Unpaid order skipped.")
		return nil
	}

	return h.executeNext(fctx)
}
