// internal/service/fulfillment/interfaces/retry_consumer.go
package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"codevend/internal/pkg/logger"
	"codevend/internal/pkg/mq"
	"codevend/internal/service/fulfillment/application"
	"codevend/internal/service/fulfillment/domain"
)

// RetryConsumerAdapter 是一个驱动适配器：消费重试 topic 上的失败通知，
// 延迟一段时间后重新驱动发货流程。幂等闸门保证重放安全。
type RetryConsumerAdapter struct {
	reader  *kafka.Reader
	appSvc  *application.FulfillmentApplicationService
	wg      sync.WaitGroup
	stopped bool

	failureHandler *mq.FailureHandler
	delay          time.Duration
}

func NewRetryConsumerAdapter(reader *kafka.Reader, appSvc *application.FulfillmentApplicationService, failureHandler *mq.FailureHandler, delay time.Duration) *RetryConsumerAdapter {
	return &RetryConsumerAdapter{
		reader:         reader,
		appSvc:         appSvc,
		failureHandler: failureHandler,
		delay:          delay,
	}
}

// Start 开始监听重试 topic。这是一个长期运行的方法。
func (a *RetryConsumerAdapter) Start(ctx context.Context) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logger.Ctx(ctx).Info().Str("topic", a.reader.Config().Topic).Msg("✅ Retry Consumer Adapter started.")
		for {
			if a.stopped {
				return
			}
			// 用 FetchMessage 而不是 ReadMessage，以便控制提交时机
			msg, err := a.reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					logger.Ctx(ctx).Info().Msg("🛑 Retry Consumer Adapter shutting down.")
					return
				}
				logger.Ctx(ctx).Error().Err(err).Msg("could not read message. Retrying...")
				time.Sleep(1 * time.Second) // 避免快速失败循环
				continue
			}

			// 延迟消费：按消息写入时间推算投递时间
			if a.delay > 0 {
				deliveryTime := msg.Time.Add(a.delay)
				if wait := time.Until(deliveryTime); wait > 0 {
					time.Sleep(wait)
				}
			}

			newCtx := mq.ExtractTraceContext(ctx, msg.Headers)

			if processingErr := a.processMessage(newCtx, msg); processingErr != nil {
				// 依然是瞬时错误才继续流转，永久错误直接记日志放弃
				if domain.IsTransient(processingErr) {
					a.failureHandler.Handle(newCtx, msg, processingErr)
				} else {
					logger.Ctx(newCtx).Error().Err(processingErr).
						Str("key", string(msg.Key)).
						Msg("Permanent failure on retry, giving up")
				}
			}

			// 无论成功或失败（已移交），都提交 Offset
			if err := a.reader.CommitMessages(ctx, msg); err != nil {
				logger.Ctx(ctx).Error().Err(err).Msg("Failed to commit messages")
			}
		}
	}()
	return nil
}

// Stop 优雅地停止消费者。
func (a *RetryConsumerAdapter) Stop(ctx context.Context) {
	a.stopped = true
	a.reader.Close()
	a.wg.Wait()
	logger.Ctx(ctx).Info().Msg("✅ Retry Consumer Adapter stopped.")
}

// processMessage 反序列化消息并重新驱动应用服务。
func (a *RetryConsumerAdapter) processMessage(ctx context.Context, msg kafka.Message) error {
	var event domain.SaleNotificationReceived
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return err
	}
	return a.appSvc.HandleSaleNotification(ctx, &event)
}
