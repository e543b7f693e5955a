// internal/service/fulfillment/domain/state.go
package domain

// State 定义了一次发货流程的生命周期状态。
type State string

const (
	StateReceived          State = "RECEIVED"           // 通知已解析，流程开始
	StateClassified        State = "CLASSIFIED"         // 商品标题已映射到码池和子区间
	StateAllocated         State = "ALLOCATED"          // 兑换码已独占认领
	StateNotified          State = "NOTIFIED"           // 买家消息已送达
	StateShipmentConfirmed State = "SHIPMENT_CONFIRMED" // 市场侧已确认发货
	StateRecorded          State = "RECORDED"           // 幂等账本已落账，终态（成功）
	StateSkipped           State = "SKIPPED"            // 重复订单或未支付，终态
	StateFailed            State = "FAILED"             // 任一步骤出错，终态
)

// Terminal 判断状态是否为终态。
func (s State) Terminal() bool {
	return s == StateRecorded || s == StateSkipped || s == StateFailed
}
