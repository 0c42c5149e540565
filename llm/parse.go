package llm

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/utils"
	"github.com/samber/lo"
)

// answer 模型以 JSON 回复时的结构，数量与置信度容忍字符串
type answer struct {
	Action     string `json:"action"`
	Decision   string `json:"decision"`
	Reason     string `json:"reason"`
	Quantity   any    `json:"quantity"`
	Confidence any    `json:"confidence"`
}

var (
	labeledAction = regexp.MustCompile(`(?i)(?:action|decision|instruction|指令|操作)\s*[:：]\s*\**\s*(buy|sell|hold|买入|卖出|持有)`)
	// 整个回复只有一个动作词时才接受，夹在句子里的动作词可能带否定
	bareAction    = regexp.MustCompile(`(?i)^[\s*"'.!。！]*(buy|sell|hold|买入|卖出|持有)[\s*"'.!。！]*$`)
	reasonLine    = regexp.MustCompile(`(?i)(?:理由|原因|reason|rationale)\s*[:：]\s*(.+)`)
	quantityLine  = regexp.MustCompile(`(?i)(?:数量|quantity|shares)\s*[:：]\s*(\d+)`)
)

// maxQuantity 模型给出的数量上限，超出部分截断
const maxQuantity = 1_000_000_000

var chineseActions = map[string]entity.Action{
	"买入": entity.ActionBuy,
	"卖出": entity.ActionSell,
	"持有": entity.ActionHold,
}

func toAction(token string) (entity.Action, bool) {
	token = strings.TrimSpace(token)
	if a, ok := chineseActions[token]; ok {
		return a, true
	}
	return entity.ParseAction(token)
}

// ParseDecision 从模型回复中提取决策。依次尝试 JSON、带标签的行、只有一个动作词的回复；
// 全部失败、JSON 中动作非法时回落为 hold 并标记 Malformed
func ParseDecision(text string) entity.DecisionResult {
	if res, found := parseJSON(text); found {
		res.Raw = text
		return res
	}

	res := entity.DecisionResult{Action: entity.ActionHold, Raw: text}
	if m := reasonLine.FindStringSubmatch(text); m != nil {
		res.Reason = strings.TrimSpace(m[1])
	}
	if m := quantityLine.FindStringSubmatch(text); m != nil {
		// 超出 int64 时 ParseInt 返回最大值与错误，统一截断
		n, _ := strconv.ParseInt(m[1], 10, 64)
		res.Quantity = clampQuantity(float64(n))
	}

	if m := labeledAction.FindStringSubmatch(text); m != nil {
		res.Action, _ = toAction(m[1])
		return res
	}
	if m := bareAction.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		res.Action, _ = toAction(m[1])
		return res
	}
	return malformed(res, "unparseable decision response")
}

func malformed(res entity.DecisionResult, reason string) entity.DecisionResult {
	res.Action = entity.ActionHold
	res.Quantity = 0
	res.Malformed = true
	if res.Reason == "" {
		res.Reason = reason
	}
	return res
}

// parseJSON 第二个返回值表示回复中存在可解析的 JSON 对象。对象存在但动作非法时
// 不再扫描正文，直接回落为 hold
func parseJSON(text string) (entity.DecisionResult, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return entity.DecisionResult{}, false
	}
	parsed, err := utils.ParseResult[answer](text[start : end+1])
	if err != nil {
		return entity.DecisionResult{}, false
	}
	res := entity.DecisionResult{
		Reason:     strings.TrimSpace(parsed.Reason),
		Confidence: toFloat(parsed.Confidence),
	}
	action, ok := toAction(lo.CoalesceOrEmpty(parsed.Action, parsed.Decision))
	if !ok {
		return malformed(res, "invalid action in decision response"), true
	}
	res.Action = action
	res.Quantity = clampQuantity(toFloat(parsed.Quantity))
	return res, true
}

func clampQuantity(f float64) int64 {
	if math.IsNaN(f) || f <= 0 {
		return 0
	}
	return int64(min(f, maxQuantity))
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f
	}
	return 0
}
