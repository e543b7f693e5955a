// internal/service/fulfillment/domain/classification.go
package domain

import (
	"strings"

	"github.com/pkg/errors"
)

// Classification 是商品标题的分类结果：落在哪个码池的哪个子区间。
// 只派生不存储。
type Classification struct {
	Pool     string
	SubRange string
}

// RuleEngine 是分类规则的求值端口，由基础设施层实现（CEL 引擎）。
// expression 作用于变量 title（已转小写）。
type RuleEngine interface {
	Evaluate(expression, title string) (bool, error)
}

// GameRule 把满足条件的标题映射到一个码池。
type GameRule struct {
	Pool string
	When string
}

// CodeTypeRule 把满足条件的标题映射到池内的一个子区间。
type CodeTypeRule struct {
	SubRange string
	When     string
}

// Classifier 把自由文本的商品标题确定性地映射到 (池, 子区间)。
// 规则表是配置数据，新增游戏或码类型只需要加规则，不需要改代码。
// 约定：每个可识别的标题恰好命中一条游戏规则和一条码类型规则；
// 命中多条游戏规则的标题不在支持范围内，取第一条命中的。
type Classifier struct {
	engine    RuleEngine
	games     []GameRule
	codeTypes []CodeTypeRule
}

func NewClassifier(engine RuleEngine, games []GameRule, codeTypes []CodeTypeRule) *Classifier {
	return &Classifier{engine: engine, games: games, codeTypes: codeTypes}
}

// Classify 对标题做大小写无关的规则匹配。
// 没有任何规则命中时返回分类失败，绝不返回部分或默认分类。
func (c *Classifier) Classify(title string) (Classification, error) {
	lower := strings.ToLower(title)

	var result Classification
	matched := false
	for _, rule := range c.games {
		ok, err := c.engine.Evaluate(rule.When, lower)
		if err != nil {
			return Classification{}, errors.Wrapf(err, "game rule %q", rule.Pool)
		}
		if ok {
			result.Pool = rule.Pool
			matched = true
			break
		}
	}
	if !matched {
		return Classification{}, errors.Wrapf(ErrUnknownGame, "title %q", title)
	}

	matched = false
	for _, rule := range c.codeTypes {
		ok, err := c.engine.Evaluate(rule.When, lower)
		if err != nil {
			return Classification{}, errors.Wrapf(err, "code type rule %q", rule.SubRange)
		}
		if ok {
			result.SubRange = rule.SubRange
			matched = true
			break
		}
	}
	if !matched {
		return Classification{}, errors.Wrapf(ErrUnknownCodeType, "title %q", title)
	}

	return result, nil
}
