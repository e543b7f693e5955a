package domain_test

import (
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codevend/internal/service/fulfillment/domain"
)

// containsEngine 是测试用的极简规则引擎：
// 表达式形如 "contains:xxx"，标题包含 xxx 即命中。
type containsEngine struct{}

func (containsEngine) Evaluate(expression, title string) (bool, error) {
	needle, ok := strings.CutPrefix(expression, "contains:")
	if !ok {
		return false, errors.Errorf("bad expression %q", expression)
	}
	return strings.Contains(title, needle), nil
}

func newTestClassifier() *domain.Classifier {
	games := []domain.GameRule{
		{Pool: "Game1", When: "contains:game1"},
		{Pool: "Game2", When: "contains:game2"},
	}
	codeTypes := []domain.CodeTypeRule{
		{SubRange: "A:B", When: "contains:item32"},
		{SubRange: "C:D", When: "contains:item99"},
	}
	return domain.NewClassifier(containsEngine{}, games, codeTypes)
}

func TestClassifier_Classify(t *testing.T) {
	c := newTestClassifier()

	t.Run("matches game and code type case-insensitively", func(t *testing.T) {
		cls, err := c.Classify("GAME1 Item32 Deluxe Edition")
		require.NoError(t, err)
		assert.Equal(t, "Game1", cls.Pool)
		assert.Equal(t, "A:B", cls.SubRange)
	})

	t.Run("first matching rule wins", func(t *testing.T) {
		cls, err := c.Classify("game1 game2 item32")
		require.NoError(t, err)
		assert.Equal(t, "Game1", cls.Pool)
	})

	t.Run("unknown game is a hard error", func(t *testing.T) {
		_, err := c.Classify("mystery item32")
		assert.ErrorIs(t, err, domain.ErrUnknownGame)
	})

	t.Run("unknown code type is a hard error", func(t *testing.T) {
		_, err := c.Classify("game1 something else")
		assert.ErrorIs(t, err, domain.ErrUnknownCodeType)
	})

	t.Run("no partial classification on failure", func(t *testing.T) {
		cls, err := c.Classify("game2 no code type here")
		require.Error(t, err)
		assert.Empty(t, cls.Pool)
		assert.Empty(t, cls.SubRange)
	})
}

func TestClassifier_EngineErrorPropagates(t *testing.T) {
	c := domain.NewClassifier(containsEngine{},
		[]domain.GameRule{{Pool: "Game1", When: "malformed"}},
		[]domain.CodeTypeRule{{SubRange: "A:B", When: "contains:item32"}},
	)

	_, err := c.Classify("anything")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrUnknownGame)
}
