// internal/service/fulfillment/domain/port/notifier.go
package port

import "context"

// BuyerNotifier 是面向买家的市场方接口的出站端口。
// 两个调用都不在内部重试，失败直接上抛给编排层。
type BuyerNotifier interface {
	// Deliver 把兑换码以站内信的形式发给买家。
	Deliver(ctx context.Context, buyerID, itemID, itemTitle string, codes []string) error

	// ConfirmShipment 在市场侧把订单标记为已发货。
	ConfirmShipment(ctx context.Context, orderID, itemID, transactionID string) error
}
