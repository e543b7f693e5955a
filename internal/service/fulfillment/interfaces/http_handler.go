// internal/service/fulfillment/interfaces/http_handler.go
package interfaces

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"codevend/internal/pkg/logger"
	"codevend/internal/pkg/mq"
	"codevend/internal/service/fulfillment/application"
	"codevend/internal/service/fulfillment/domain"
)

const serviceName = "fulfillment-service"

// FulfillmentHandler 封装了发货服务的 HTTP 处理器。
type FulfillmentHandler struct {
	service        *application.FulfillmentApplicationService
	poolRepo       domain.CodePoolRepository
	failureHandler *mq.FailureHandler
}

// NewFulfillmentHandler 创建一个新的 HTTP 处理器实例。
// failureHandler 可以为 nil（例如测试），此时失败的通知不会进重试管道。
func NewFulfillmentHandler(service *application.FulfillmentApplicationService, poolRepo domain.CodePoolRepository, failureHandler *mq.FailureHandler) *FulfillmentHandler {
	return &FulfillmentHandler{service: service, poolRepo: poolRepo, failureHandler: failureHandler}
}

// RegisterRoutes 在 ServeMux 上注册所有路由。
func (h *FulfillmentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/marketplace/notifications", h.notificationHandler)
	mux.HandleFunc("/admin/pools/seed", h.seedHandler)
}

// notificationHandler 是销售通知的入口。
// 成功或跳过都回 200；任何核心失败回 500 和通用错误体，
// 由市场方的重投机制决定是否再次送达——幂等闸门保证重投安全。
func (h *FulfillmentHandler) notificationHandler(w http.ResponseWriter, r *http.Request) {
	propagator := otel.GetTextMapPropagator()
	ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

	tracer := otel.Tracer(serviceName)
	ctx, span := tracer.Start(ctx, "interfaces.SaleNotification")
	defer span.End()

	if !strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "xml") {
		logger.Ctx(ctx).Error().Str("content_type", r.Header.Get("Content-Type")).Msg("Invalid content type, expected XML")
		span.SetAttributes(attribute.String("error.kind", "invalid_content_type"))
		writeFailure(w)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to read notification body")
		writeFailure(w)
		return
	}

	event, err := ParseSaleNotification(payload)
	if err != nil {
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to parse sale notification")
		span.RecordError(err)
		writeFailure(w)
		return
	}
	span.SetAttributes(attribute.String("order.id", event.OrderID))

	if err := h.service.HandleSaleNotification(ctx, event); err != nil {
		// 瞬时失败进内部重试管道；永久失败只能等人工介入
		if h.failureHandler != nil && domain.IsTransient(err) {
			if eventBytes, marshalErr := json.Marshal(event); marshalErr == nil {
				h.failureHandler.Handle(ctx, kafka.Message{Key: []byte(event.OrderID), Value: eventBytes}, err)
			}
		}
		writeFailure(w)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Order processing started"})
}

// seedHandler 是运维接口：向一个子区间追加一批兑换码。
func (h *FulfillmentHandler) seedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		Pool     string   `json:"pool"`
		SubRange string   `json:"subRange"`
		Values   []string `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Pool == "" || req.SubRange == "" || len(req.Values) == 0 {
		http.Error(w, "pool, subRange and values are required", http.StatusBadRequest)
		return
	}

	if err := h.poolRepo.Seed(r.Context(), req.Pool, req.SubRange, req.Values); err != nil {
		logger.Ctx(r.Context()).Error().Err(err).Str("pool", req.Pool).Msg("Failed to seed code pool")
		http.Error(w, "failed to seed pool", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"seeded": len(req.Values)})
}

func writeFailure(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "Failed to process orders"})
}
