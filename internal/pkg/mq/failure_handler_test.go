package mq

import (
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
)

func TestRetryAttempts(t *testing.T) {
	assert.Equal(t, 0, RetryAttempts(nil))

	headers := []kafka.Header{
		{Key: "other", Value: []byte("x")},
		{Key: HeaderRetryAttempts, Value: []byte("3")},
	}
	assert.Equal(t, 3, RetryAttempts(headers))

	// 损坏的计数按 0 处理，重新从头计
	bad := []kafka.Header{{Key: HeaderRetryAttempts, Value: []byte("many")}}
	assert.Equal(t, 0, RetryAttempts(bad))
}
