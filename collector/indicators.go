package collector

import (
	"github.com/cinar/indicator"
	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/utils"
	"github.com/samber/lo"
)

const (
	// defaultHistory 日 K 数量，需要足够长以计算 MACD(26) 与布林带(20)
	defaultHistory = 60
	rsiPeriod      = 14
	macdMinLength  = 26
	bollingerMin   = 20
)

// candle 数据源无关的日 K
type candle struct {
	Close    float64
	Volume   float64
	Turnover float64
}

func closes(candles []candle) []float64 {
	return lo.Map(candles, func(c candle, _ int) float64 { return c.Close })
}

// computeIndicators 数据不足以计算的指标保持为 0
func computeIndicators(candles []candle) entity.Indicators {
	var ind entity.Indicators
	closing := closes(candles)

	if len(closing) > rsiPeriod {
		_, rsi := indicator.RsiPeriod(rsiPeriod, closing)
		ind.RSI = lo.LastOrEmpty(rsi)
	}
	if len(closing) >= macdMinLength {
		macd, signal := indicator.Macd(closing)
		ind.MACD = lo.LastOrEmpty(macd)
		ind.MACDSignal = lo.LastOrEmpty(signal)
	}
	if len(closing) >= bollingerMin {
		middle, upper, lower := indicator.BollingerBands(closing)
		ind.BollingerMiddle = lo.LastOrEmpty(middle)
		ind.BollingerUpper = lo.LastOrEmpty(upper)
		ind.BollingerLower = lo.LastOrEmpty(lower)
	}

	volumes := lo.Map(candles, func(c candle, _ int) float64 { return c.Volume })
	ind.VolumeChangeRate = changeVsAverage(volumes)
	ind.Volatility = utils.StdDev(returns(closing)) * 100
	return ind
}

// changeVsAverage 最后一个值相对之前均值的变化百分比
func changeVsAverage(series []float64) float64 {
	if len(series) < 2 {
		return 0
	}
	avg := utils.Avg(series[:len(series)-1])
	if avg == 0 {
		return 0
	}
	return (lo.LastOrEmpty(series) - avg) / avg * 100
}

func returns(closing []float64) []float64 {
	if len(closing) < 2 {
		return nil
	}
	out := make([]float64, 0, len(closing)-1)
	for i := 1; i < len(closing); i++ {
		if closing[i-1] == 0 {
			continue
		}
		out = append(out, (closing[i]-closing[i-1])/closing[i-1])
	}
	return out
}

// marketContext 市场温度取基准标的涨跌幅，板块强度为个股相对板块的超额涨幅，
// 资金流向为最新成交额相对均值的倍数，按当日涨跌取符号
func marketContext(symbolChange, benchmarkChange, sectorChange float64, hasSector bool, candles []candle) entity.MarketContext {
	mc := entity.MarketContext{MarketTemperature: benchmarkChange}
	if hasSector {
		mc.SectorStrength = symbolChange - sectorChange
	}

	if len(candles) >= 2 {
		turnovers := lo.Map(candles, func(c candle, _ int) float64 { return c.Turnover })
		avg := utils.Avg(turnovers[:len(turnovers)-1])
		if avg > 0 {
			last := candles[len(candles)-1]
			prev := candles[len(candles)-2]
			ratio := last.Turnover / avg
			mc.CapitalFlow = lo.Ternary(last.Close >= prev.Close, ratio, -ratio)
		}
	}
	return mc
}
