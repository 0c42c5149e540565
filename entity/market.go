package entity

import "time"

// WatchConfig 单个标的的监控配置，加载后不可变
type WatchConfig struct {
	Symbol        string  `json:"symbol"`
	Watch         bool    `json:"watch"`
	InitialAction Action  `json:"initial_action"`
	Threshold     float64 `json:"threshold"`
	// Baseline 为 0 时以首个观测价格作为参考价
	Baseline float64 `json:"baseline"`
}

// Quote 行情快照
type Quote struct {
	Symbol    string    `json:"symbol"`
	Last      float64   `json:"last"`
	PrevClose float64   `json:"prev_close"`
	Volume    int64     `json:"volume"`
	Turnover  float64   `json:"turnover"`
	At        time.Time `json:"at"`
}

// ChangePct 相对昨收的涨跌幅
func (q Quote) ChangePct() float64 {
	if q.PrevClose <= 0 {
		return 0
	}
	return (q.Last - q.PrevClose) * 100 / q.PrevClose
}

// PriceSample 每次轮询由 Detector 更新；触发后 Reference 重置为当前价
type PriceSample struct {
	Symbol    string    `json:"symbol"`
	LastPrice float64   `json:"last_price"`
	Reference float64   `json:"reference"`
	At        time.Time `json:"at"`
}

type TriggerEvent struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Reference float64   `json:"reference"`
	ChangePct float64   `json:"change_pct"`
	At        time.Time `json:"at"`
}
