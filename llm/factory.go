package llm

import (
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

const (
	ProviderDeepSeek = "deepseek"
	ProviderOpenAI   = "openai"
	ProviderOllama   = "ollama"
)

var defaultBaseURLs = map[string]string{
	ProviderDeepSeek: "https://api.deepseek.com/v1",
	ProviderOpenAI:   "https://api.openai.com/v1",
	ProviderOllama:   "http://localhost:11434/v1",
}

// ollamaPlaceholderKey 本地 Ollama 不校验密钥，但客户端要求请求头非空
const ollamaPlaceholderKey = "ollama"

// resolveClient 按服务商构造 OpenAI 兼容客户端。配置里常见的是完整的 chat/completions 地址，这里裁剪成 base URL
func resolveClient(provider, apiURL, apiKey string) (openai.Client, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	switch provider {
	case "", ProviderDeepSeek, ProviderOpenAI:
		if apiKey == "" {
			return openai.Client{}, errors.New("empty API key")
		}
	case ProviderOllama:
		if apiKey == "" {
			apiKey = ollamaPlaceholderKey
		}
	default:
		return openai.Client{}, fmt.Errorf("unknown decision provider %q", provider)
	}
	return openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(trimBaseURL(provider, apiURL)),
	), nil
}

func trimBaseURL(provider, apiURL string) string {
	apiURL = strings.TrimSpace(apiURL)
	if apiURL == "" {
		if base, ok := defaultBaseURLs[provider]; ok {
			return base
		}
		return defaultBaseURLs[ProviderDeepSeek]
	}
	base := strings.TrimSuffix(strings.TrimRight(apiURL, "/"), "/chat/completions")
	// Ollama 原生接口在 /api 下，OpenAI 兼容接口在 /v1 下
	if provider == ProviderOllama && strings.HasSuffix(base, "/api") {
		base = strings.TrimSuffix(base, "/api") + "/v1"
	}
	return base
}
