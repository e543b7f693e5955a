// internal/service/fulfillment/domain/order.go
package domain

import (
	"time"

	"github.com/pkg/errors"
)

// PaymentStatus 是支付状态的归一化枚举。
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "PAID"
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusOther  PaymentStatus = "OTHER"
)

// paymentFailureStatuses 是市场方报文中明确表示"未支付成功"的状态值。
var paymentFailureStatuses = map[string]struct{}{
	"PaymentInProcess":       {},
	"BuyerECheckBounced":     {},
	"BuyerCreditCardFailed":  {},
	"BuyerFailedPayment":     {},
	"PayPalPaymentInProcess": {},
}

// ParsePaymentStatus 把市场方的原始支付状态字符串归一化。
// "NoPaymentFailure" 表示支付成功；已知的失败值归为 UNPAID；其余归为 OTHER。
func ParsePaymentStatus(raw string) PaymentStatus {
	if raw == "NoPaymentFailure" {
		return PaymentStatusPaid
	}
	if _, ok := paymentFailureStatuses[raw]; ok {
		return PaymentStatusUnpaid
	}
	return PaymentStatusOther
}

// Order 是一次发货流程的聚合根。每条销售通知构造一次，本身不持久化，
// 只有它的订单号通过幂等账本落库。
type Order struct {
	ID            string // 市场方分配的订单号，重投时保持稳定
	TransactionID string
	ItemID        string
	ItemTitle     string
	BuyerID       string
	PaymentStatus PaymentStatus
	Quantity      int

	State          State
	SkipReason     string
	Classification *Classification
	Codes          []string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewOrder 从解析后的销售通知构造订单实体。
func NewOrder(event *SaleNotificationReceived) (*Order, error) {
	if event.OrderID == "" || event.ItemID == "" || event.BuyerID == "" {
		return nil, errors.Wrap(ErrMalformedNotification, "missing required identifiers")
	}
	if event.Quantity < 1 {
		return nil, errors.Wrapf(ErrMalformedNotification, "invalid quantity %d", event.Quantity)
	}

	now := time.Now()
	return &Order{
		ID:            event.OrderID,
		TransactionID: event.TransactionID,
		ItemID:        event.ItemID,
		ItemTitle:     event.ItemTitle,
		BuyerID:       event.BuyerID,
		PaymentStatus: ParsePaymentStatus(event.PaymentStatus),
		Quantity:      event.Quantity,
		State:         StateReceived,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// IsPaid 判断订单是否已支付。非 PAID 一律跳过，不算错误。
func (o *Order) IsPaid() bool {
	return o.PaymentStatus == PaymentStatusPaid
}

// MarkAsClassified 记录分类结果并推进状态。
func (o *Order) MarkAsClassified(c Classification) error {
	if o.State != StateReceived {
		return errors.Errorf("cannot classify order in state %s", o.State)
	}
	o.Classification = &c
	o.State = StateClassified
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAsAllocated 记录认领到的兑换码并推进状态。
func (o *Order) MarkAsAllocated(codes []string) error {
	if o.State != StateClassified {
		return errors.Errorf("cannot allocate for order in state %s", o.State)
	}
	o.Codes = codes
	o.State = StateAllocated
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAsNotified 买家消息送达成功。
func (o *Order) MarkAsNotified() error {
	if o.State != StateAllocated {
		return errors.Errorf("cannot notify for order in state %s", o.State)
	}
	o.State = StateNotified
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAsShipmentConfirmed 市场侧发货确认成功。
func (o *Order) MarkAsShipmentConfirmed() error {
	if o.State != StateNotified {
		return errors.Errorf("cannot confirm shipment for order in state %s", o.State)
	}
	o.State = StateShipmentConfirmed
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAsRecorded 幂等账本落账，流程成功结束。
func (o *Order) MarkAsRecorded() error {
	if o.State != StateShipmentConfirmed {
		return errors.Errorf("cannot record order in state %s", o.State)
	}
	o.State = StateRecorded
	o.UpdatedAt = time.Now()
	return nil
}

// MarkAsSkipped 终止流程但不算失败：重复订单、竞争落败或未支付。
func (o *Order) MarkAsSkipped(reason string) {
	o.State = StateSkipped
	o.SkipReason = reason
	o.UpdatedAt = time.Now()
}

// MarkAsFailed 将订单标记为失败终态。
func (o *Order) MarkAsFailed() {
	o.State = StateFailed
	o.UpdatedAt = time.Now()
}
