// internal/service/fulfillment/domain/errors.go
package domain

import "github.com/pkg/errors"

// 发货流程的错误分类。所有错误都不在本地重试，
// 统一上抛给编排层记录并以通用失败响应返回。
var (
	ErrMalformedNotification      = errors.New("malformed sale notification")
	ErrUnknownGame                = errors.New("unknown game type")
	ErrUnknownCodeType            = errors.New("unknown code type")
	ErrInsufficientCodes          = errors.New("not enough available codes found")
	ErrDeliveryFailed             = errors.New("failed to deliver message to buyer")
	ErrShipmentConfirmationFailed = errors.New("failed to confirm shipment")
	ErrStoreUnavailable           = errors.New("backing store unavailable")
)

// IsTransient 判断错误是否值得重投。分类失败和报文格式错误是永久性的，
// 重试只会得到同样的结果；存储和外呼失败则可能随时间恢复。
func IsTransient(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrDeliveryFailed) ||
		errors.Is(err, ErrShipmentConfirmationFailed)
}
