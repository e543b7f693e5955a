package rule_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codevend/internal/service/fulfillment/infrastructure/rule"
)

func TestCelRuleEngine_Evaluate(t *testing.T) {
	engine, err := rule.NewCelRuleEngine()
	require.NoError(t, err)

	t.Run("contains match", func(t *testing.T) {
		ok, err := engine.Evaluate(`title.contains("game1")`, "game1 item32 deluxe")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("contains miss", func(t *testing.T) {
		ok, err := engine.Evaluate(`title.contains("game1")`, "something else")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("compound expression", func(t *testing.T) {
		ok, err := engine.Evaluate(`title.contains("game1") && !title.contains("bundle")`, "game1 item32")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("invalid expression", func(t *testing.T) {
		_, err := engine.Evaluate(`title.contains(`, "anything")
		assert.Error(t, err)
	})

	t.Run("non-boolean expression", func(t *testing.T) {
		_, err := engine.Evaluate(`title`, "anything")
		assert.Error(t, err)
	})

	t.Run("compiled program is reused", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ok, err := engine.Evaluate(`title.contains("item32")`, "game1 item32")
			require.NoError(t, err)
			assert.True(t, ok)
		}
	})
}
