package utils

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
	"unsafe"

	json "github.com/bytedance/sonic"
	"github.com/kaptinlin/jsonrepair"
	"github.com/samber/lo"
)

// ParseResult 先修复模型输出中不合法的 JSON 再反序列化
func ParseResult[T any](content string) (T, error) {
	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return lo.Empty[T](), fmt.Errorf("repair decision JSON: %w", err)
	}

	var result T
	if err := json.Unmarshal(unsafe.Slice(unsafe.StringData(repaired), len(repaired)), &result); err != nil {
		return lo.Empty[T](), fmt.Errorf("decode decision JSON: %w", err)
	}
	return result, nil
}

const (
	retryBaseDelay = 200 * time.Millisecond
	retryMaxDelay  = 5 * time.Second
)

// RetryWithBackoff 用于建立券商长连接这类启动期操作，失败后按指数退避加抖动重试 maxRetries 次。
// 下单与决策调用不走这里，避免重复成交
func RetryWithBackoff[T any](ctx context.Context, maxRetries int, op func() (T, error)) (T, error) {
	maxRetries = max(maxRetries, 0)

	var lastErr error
	for attempt := 0; ; attempt++ {
		res, err := op()
		if err == nil {
			return res, nil
		}
		lastErr = err
		if attempt == maxRetries {
			break
		}

		delay := min(retryBaseDelay<<attempt, retryMaxDelay)
		half := delay / 2
		timer := time.NewTimer(half + time.Duration(rand.Int63n(int64(delay-half)+1)))
		select {
		case <-ctx.Done():
			timer.Stop()
			return lo.Empty[T](), fmt.Errorf("connect aborted after %d attempts: %w", attempt+1, ctx.Err())
		case <-timer.C:
		}
	}
	return lo.Empty[T](), fmt.Errorf("connect failed after %d attempts: %w", maxRetries+1, lastErr)
}

// Avg 空序列返回 0
func Avg(series []float64) float64 {
	if len(series) == 0 {
		return 0
	}
	return lo.Sum(series) / float64(len(series))
}

// StdDev 样本标准差，用于日收益率波动，少于两个点返回 0
func StdDev(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	mean := Avg(series)
	sq := lo.SumBy(series, func(v float64) float64 { return (v - mean) * (v - mean) })
	return math.Sqrt(sq / float64(len(series)-1))
}
