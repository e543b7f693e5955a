// internal/service/fulfillment/application/saga/confirm_shipment.go
package saga

import (
	"go.opentelemetry.io/otel/codes"
)

// ConfirmShipmentHandler 在市场侧把订单标记为已发货。
type ConfirmShipmentHandler struct {
	NextHandler
}

func (h *ConfirmShipmentHandler) Handle(fctx *FulfillmentContext) error {
	ctx, span := fctx.Tracer.Start(fctx.Ctx, "saga.ConfirmShipment")
	defer span.End()

	order := fctx.Order

	if err := fctx.Notifier.ConfirmShipment(ctx, order.ID, order.ItemID, order.TransactionID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Shipment confirmation failed")
		return err
	}

	if err := order.MarkAsShipmentConfirmed(); err != nil {
		span.RecordError(err)
		return err
	}

	span.AddEvent("Shipment confirmed with marketplace.")
	return h.executeNext(fctx)
}
