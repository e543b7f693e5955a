// internal/service/fulfillment/infrastructure/adapter/trading_http_adapter.go
package adapter

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"codevend/internal/pkg/httpclient"
	"codevend/internal/pkg/logger"
	"codevend/internal/service/fulfillment/domain"
)

// TradingAPIConfig 是市场方 Trading 接口的调用凭据和端点配置。
type TradingAPIConfig struct {
	APIURL             string
	AuthToken          string
	AppName            string
	DevName            string
	CertName           string
	SiteID             string
	CompatibilityLevel string
}

// TradingHTTPAdapter 是 port.BuyerNotifier 接口的 HTTP 实现，
// 对接市场方的 XML Trading 接口（站内信 + 发货确认）。
type TradingHTTPAdapter struct {
	client *httpclient.Client
	cfg    TradingAPIConfig
}

func NewTradingHTTPAdapter(client *httpclient.Client, cfg TradingAPIConfig) *TradingHTTPAdapter {
	return &TradingHTTPAdapter{client: client, cfg: cfg}
}

type requesterCredentials struct {
	EBayAuthToken string `xml:"eBayAuthToken"`
}

type memberMessage struct {
	Subject      string `xml:"Subject"`
	Body         string `xml:"Body"`
	QuestionType string `xml:"QuestionType"`
	RecipientID  string `xml:"RecipientID"`
}

type addMemberMessageRequest struct {
	XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents AddMemberMessageAAQToPartnerRequest"`
	RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
	ItemID               string               `xml:"ItemID"`
	MemberMessage        memberMessage        `xml:"MemberMessage"`
}

type completeSaleRequest struct {
	XMLName              xml.Name             `xml:"urn:ebay:apis:eBLBaseComponents CompleteSaleRequest"`
	RequesterCredentials requesterCredentials `xml:"RequesterCredentials"`
	OrderID              string               `xml:"OrderID"`
	Shipped              bool                 `xml:"Shipped"`
	ItemID               string               `xml:"ItemID"`
	TransactionID        string               `xml:"TransactionID"`
}

type tradingError struct {
	ShortMessage string `xml:"ShortMessage"`
	LongMessage  string `xml:"LongMessage"`
}

// tradingResponse 不固定根元素名，两种调用的应答都能解析。
type tradingResponse struct {
	Ack    string         `xml:"Ack"`
	Errors []tradingError `xml:"Errors"`
}

// Deliver 给买家发站内信，附上认领到的兑换码。
func (a *TradingHTTPAdapter) Deliver(ctx context.Context, buyerID, itemID, itemTitle string, codes []string) error {
	body := fmt.Sprintf("Thanks for buying, here's your %s code(s): %s", itemTitle, strings.Join(codes, ", "))
	req := addMemberMessageRequest{
		RequesterCredentials: requesterCredentials{EBayAuthToken: a.cfg.AuthToken},
		ItemID:               itemID,
		MemberMessage: memberMessage{
			Subject:      "Message from Seller",
			Body:         body,
			QuestionType: "General",
			RecipientID:  buyerID,
		},
	}

	if err := a.call(ctx, "AddMemberMessageAAQToPartner", req); err != nil {
		return errors.Wrapf(domain.ErrDeliveryFailed, "buyer %s item %s: %v", buyerID, itemID, err)
	}
	logger.Ctx(ctx).Info().Str("buyer", buyerID).Str("item", itemID).Msg("Message sent to buyer")
	return nil
}

// ConfirmShipment 在市场侧把订单标记为已发货。
func (a *TradingHTTPAdapter) ConfirmShipment(ctx context.Context, orderID, itemID, transactionID string) error {
	req := completeSaleRequest{
		RequesterCredentials: requesterCredentials{EBayAuthToken: a.cfg.AuthToken},
		OrderID:              orderID,
		Shipped:              true,
		ItemID:               itemID,
		TransactionID:        transactionID,
	}

	if err := a.call(ctx, "CompleteSale", req); err != nil {
		return errors.Wrapf(domain.ErrShipmentConfirmationFailed, "order %s: %v", orderID, err)
	}
	logger.Ctx(ctx).Info().Str("order", orderID).Msg("Shipping fulfillment created")
	return nil
}

// call 序列化请求、带上 Trading 接口要求的请求头发送，并校验应答中的 Ack。
func (a *TradingHTTPAdapter) call(ctx context.Context, callName string, payload interface{}) error {
	body, err := xml.Marshal(payload)
	if err != nil {
		return err
	}
	body = append([]byte(xml.Header), body...)

	headers := map[string]string{
		"X-EBAY-API-CALL-NAME":           callName,
		"X-EBAY-API-SITEID":              a.cfg.SiteID,
		"X-EBAY-API-APP-NAME":            a.cfg.AppName,
		"X-EBAY-API-DEV-NAME":            a.cfg.DevName,
		"X-EBAY-API-CERT-NAME":           a.cfg.CertName,
		"X-EBAY-API-COMPATIBILITY-LEVEL": a.cfg.CompatibilityLevel,
	}

	respBody, err := a.client.PostXML(ctx, a.cfg.APIURL, headers, body)
	if err != nil {
		return err
	}

	var resp tradingResponse
	if err := xml.Unmarshal(respBody, &resp); err != nil {
		return fmt.Errorf("unparseable %s response: %w", callName, err)
	}
	// Warning 级别的 Ack 依然算成功
	if resp.Ack != "Success" && resp.Ack != "Warning" {
		msg := "no error detail"
		if len(resp.Errors) > 0 {
			msg = resp.Errors[0].LongMessage
			if msg == "" {
				msg = resp.Errors[0].ShortMessage
			}
		}
		return fmt.Errorf("%s returned Ack=%s: %s", callName, resp.Ack, msg)
	}
	return nil
}
