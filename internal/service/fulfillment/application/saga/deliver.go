// internal/service/fulfillment/application/saga/deliver.go
package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DeliverHandler 把认领到的兑换码发给买家。
// 送达失败则流程终止，买家什么都收不到，订单保持可重投。
type DeliverHandler struct {
	NextHandler
}

func (h *DeliverHandler) Handle(fctx *FulfillmentContext) error {
	ctx, span := fctx.Tracer.Start(fctx.Ctx, "saga.DeliverCodes")
	defer span.End()

	order := fctx.Order
	span.SetAttributes(
		attribute.String("buyer.id", order.BuyerID),
		attribute.Int("codes.count", len(order.Codes)),
	)

	if err := fctx.Notifier.Deliver(ctx, order.BuyerID, order.ItemID, order.ItemTitle, order.Codes); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Buyer message delivery failed")
		return err
	}

	if err := order.MarkAsNotified(); err != nil {
		span.RecordError(err)
		return err
	}

	span.AddEvent("Buyer message delivered.")
	return h.executeNext(fctx)
}
