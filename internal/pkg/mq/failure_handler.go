// internal/pkg/mq/failure_handler.go
package mq

import (
	"context"
	"strconv"

	"github.com/segmentio/kafka-go"

	"codevend/internal/pkg/logger"
)

// 死信/重试消息附带的元数据头，便于排查消息的来龙去脉。
const (
	HeaderOriginalTopic     = "x-original-topic"
	HeaderOriginalPartition = "x-original-partition"
	HeaderOriginalOffset    = "x-original-offset"
	HeaderExceptionMessage  = "x-exception-message"
	HeaderRetryAttempts     = "x-retry-attempts"
)

// FailureHandler 负责消息处理失败后的兜底流转：
// 未达最大重试次数的消息进入重试 topic，超过的进入死信 topic 等待人工介入。
type FailureHandler struct {
	retryWriter *kafka.Writer
	dltWriter   *kafka.Writer
	maxAttempts int
}

func NewFailureHandler(retryWriter, dltWriter *kafka.Writer, maxAttempts int) *FailureHandler {
	return &FailureHandler{
		retryWriter: retryWriter,
		dltWriter:   dltWriter,
		maxAttempts: maxAttempts,
	}
}

// Handle 根据消息已重试的次数，决定把它转发到重试 topic 还是死信 topic。
func (h *FailureHandler) Handle(ctx context.Context, msg kafka.Message, procErr error) {
	attempts := RetryAttempts(msg.Headers) + 1

	headers := []kafka.Header{
		{Key: HeaderOriginalTopic, Value: []byte(msg.Topic)},
		{Key: HeaderOriginalPartition, Value: []byte(strconv.Itoa(msg.Partition))},
		{Key: HeaderOriginalOffset, Value: []byte(strconv.FormatInt(msg.Offset, 10))},
		{Key: HeaderExceptionMessage, Value: []byte(procErr.Error())},
		{Key: HeaderRetryAttempts, Value: []byte(strconv.Itoa(attempts))},
	}

	writer := h.retryWriter
	if attempts > h.maxAttempts {
		writer = h.dltWriter
		logger.Ctx(ctx).Error().
			Str("key", string(msg.Key)).
			Int("attempts", attempts).
			Err(procErr).
			Msg("🚨 Max retry attempts exceeded, routing message to DLT")
	}

	if err := ProduceMessage(ctx, writer, msg.Key, msg.Value, headers...); err != nil {
		// 转发失败意味着消息可能丢失，必须显式告警
		logger.Ctx(ctx).Error().
			Str("key", string(msg.Key)).
			Err(err).
			Msg("CRITICAL: failed to forward failed message")
	}
}

// RetryAttempts 读取消息头中的重试计数，没有则为 0。
func RetryAttempts(headers []kafka.Header) int {
	for _, h := range headers {
		if h.Key == HeaderRetryAttempts {
			if n, err := strconv.Atoi(string(h.Value)); err == nil {
				return n
			}
		}
	}
	return 0
}
