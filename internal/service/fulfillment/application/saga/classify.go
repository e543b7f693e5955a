// internal/service/fulfillment/application/saga/classify.go
package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// ClassifyHandler 把商品标题映射到 (码池, 子区间)。
// 识别不出来就失败，绝不落到默认分类上。
type ClassifyHandler struct {
	NextHandler
}

func (h *ClassifyHandler) Handle(fctx *FulfillmentContext) error {
	_, span := fctx.Tracer.Start(fctx.Ctx, "saga.Classify")
	defer span.End()

	order := fctx.Order

	classification, err := fctx.Classifier.Classify(order.ItemTitle)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Listing classification failed")
		return err
	}

	if err := order.MarkAsClassified(classification); err != nil {
		span.RecordError(err)
		return err
	}

	span.SetAttributes(
		attribute.String("classification.pool", classification.Pool),
		attribute.String("classification.sub_range", classification.SubRange),
	)
	return h.executeNext(fctx)
}
