// internal/service/fulfillment/interfaces/envelope.go
package interfaces

import (
	"encoding/xml"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"codevend/internal/service/fulfillment/domain"
)

// 市场方销售通知是 SOAP 信封包着的 GetItemTransactionsResponse。
// 这里只解析发货流程消费的字段。
type soapEnvelope struct {
	XMLName xml.Name `xml:"Envelope"`
	Body    struct {
		Response getItemTransactionsResponse `xml:"GetItemTransactionsResponse"`
	} `xml:"Body"`
}

type getItemTransactionsResponse struct {
	Item struct {
		ItemID string `xml:"ItemID"`
		Title  string `xml:"Title"`
	} `xml:"Item"`
	TransactionArray struct {
		Transaction struct {
			TransactionID     string `xml:"TransactionID"`
			QuantityPurchased string `xml:"QuantityPurchased"`
			Buyer             struct {
				UserID string `xml:"UserID"`
			} `xml:"Buyer"`
			Status struct {
				EBayPaymentStatus string `xml:"eBayPaymentStatus"`
			} `xml:"Status"`
			ContainingOrder struct {
				OrderID string `xml:"OrderID"`
			} `xml:"ContainingOrder"`
		} `xml:"Transaction"`
	} `xml:"TransactionArray"`
}

// ParseSaleNotification 把原始 XML 报文解析成领域事件。
// 关键字段缺失或数量解析失败都按 ErrMalformedNotification 处理。
func ParseSaleNotification(payload []byte) (*domain.SaleNotificationReceived, error) {
	var envelope soapEnvelope
	if err := xml.Unmarshal(payload, &envelope); err != nil {
		return nil, errors.Wrapf(domain.ErrMalformedNotification, "unparseable envelope: %v", err)
	}

	response := envelope.Body.Response
	transaction := response.TransactionArray.Transaction

	if transaction.ContainingOrder.OrderID == "" {
		return nil, errors.Wrap(domain.ErrMalformedNotification, "missing order id")
	}

	quantity, err := strconv.Atoi(transaction.QuantityPurchased)
	if err != nil {
		return nil, errors.Wrapf(domain.ErrMalformedNotification, "invalid quantity %q", transaction.QuantityPurchased)
	}

	return &domain.SaleNotificationReceived{
		EventID:       uuid.New().String(),
		OrderID:       transaction.ContainingOrder.OrderID,
		TransactionID: transaction.TransactionID,
		ItemID:        response.Item.ItemID,
		ItemTitle:     response.Item.Title,
		BuyerID:       transaction.Buyer.UserID,
		PaymentStatus: transaction.Status.EBayPaymentStatus,
		Quantity:      quantity,
		ReceivedAt:    time.Now(),
	}, nil
}
