package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/prompts"
	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// ErrDecisionUnavailable 决策服务超时、限流或传输失败，本次触发直接放弃
var ErrDecisionUnavailable = errors.New("decision service unavailable")

type Options struct {
	// Provider 取值 deepseek、openai、ollama，为空按 deepseek 处理
	Provider         string
	Model            string
	APIURL           string
	APIKey           string
	Temperature      float64
	Timeout          time.Duration
	RatePerMinute    int
	PerTradeFraction float64
	StopLossPct      float64
	TakeProfitPct    float64
}

// completer 抽象出一次对话补全，便于测试替换
type completer func(ctx context.Context, param openai.ChatCompletionNewParams) (*openai.ChatCompletion, error)

type Agent struct {
	complete     completer
	model        string
	temperature  float64
	timeout      time.Duration
	limiter      *rate.Limiter
	systemPrompt string
}

func NewAgent(opts Options) (*Agent, error) {
	client, err := resolveClient(opts.Provider, opts.APIURL, opts.APIKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", lo.CoalesceOrEmpty(opts.Provider, ProviderDeepSeek), err)
	}
	complete := func(ctx context.Context, param openai.ChatCompletionNewParams) (*openai.ChatCompletion, error) {
		return client.Chat.Completions.New(ctx, param)
	}
	return newAgent(complete, opts), nil
}

func newAgent(complete completer, opts Options) *Agent {
	limit := rate.Inf
	if opts.RatePerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(opts.RatePerMinute))
	}
	return &Agent{
		complete:     complete,
		model:        opts.Model,
		temperature:  opts.Temperature,
		timeout:      opts.Timeout,
		limiter:      rate.NewLimiter(limit, 1),
		systemPrompt: prompts.BuildSystemPrompt(opts.PerTradeFraction, opts.StopLossPct, opts.TakeProfitPct),
	}
}

// Evaluate 同步调用一次决策服务。超时、限流与网络错误都包装为 ErrDecisionUnavailable，
// 回复无法解析时返回 hold 而非错误
func (a *Agent) Evaluate(ctx context.Context, req entity.DecisionRequest) (entity.DecisionResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}
	// 不排队等待令牌，超出速率的触发直接放弃
	if !a.limiter.Allow() {
		return lo.Empty[entity.DecisionResult](), fmt.Errorf("%w: rate limit exceeded", ErrDecisionUnavailable)
	}

	param := openai.ChatCompletionNewParams{
		Model: a.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(a.systemPrompt),
			openai.UserMessage(prompts.BuildUserPrompt(req)),
		},
		Temperature: openai.Float(a.temperature),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: lo.ToPtr(shared.NewResponseFormatJSONObjectParam()),
		},
	}

	start := time.Now()
	completion, err := a.complete(ctx, param)
	if err != nil {
		return lo.Empty[entity.DecisionResult](), fmt.Errorf("%w: %w", ErrDecisionUnavailable, err)
	}
	if len(completion.Choices) == 0 {
		logrus.WithField("symbol", req.Symbol).Warn("Decision service returned no choices, treating as hold")
		return entity.DecisionResult{Action: entity.ActionHold, Malformed: true, Reason: "empty decision response"}, nil
	}

	result := ParseDecision(completion.Choices[0].Message.Content)
	logrus.WithFields(logrus.Fields{
		"symbol":    req.Symbol,
		"action":    result.Action,
		"quantity":  result.Quantity,
		"malformed": result.Malformed,
		"elapsed":   time.Since(start).Round(time.Millisecond),
	}).Info("Decision received")
	return result, nil
}
