// internal/service/fulfillment/domain/event.go
package domain

import "time"

// SaleNotificationReceived 是一条销售通知解析后的载体。
// 它既是 HTTP webhook 的解析结果，也是重试 topic 中消息的结构。
type SaleNotificationReceived struct {
	EventID       string `json:"eventId"`
	OrderID       string `json:"orderId"`
	TransactionID string `json:"transactionId"`
	ItemID        string `json:"itemId"`
	ItemTitle     string `json:"itemTitle"`
	BuyerID       string `json:"buyerId"`
	PaymentStatus string `json:"paymentStatus"` // 市场方原始状态串
	Quantity      int    `json:"quantity"`

	ReceivedAt time.Time `json:"receivedAt"`
}

// FulfillmentCompleted 是订单成功发货后发布的审计事件。
// 发布失败不影响主流程。
type FulfillmentCompleted struct {
	EventID     string    `json:"eventId"`
	OrderID     string    `json:"orderId"`
	BuyerID     string    `json:"buyerId"`
	Pool        string    `json:"pool"`
	SubRange    string    `json:"subRange"`
	CodesIssued int       `json:"codesIssued"`
	CompletedAt time.Time `json:"completedAt"`
}
