package ledger

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"testing/quick"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/gtoxlili/echoStock/risk"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func filled(symbol string, side entity.Side, qty int64, price string) entity.Order {
	return entity.Order{
		ID:       "ord-" + string(side),
		Symbol:   symbol,
		Side:     side,
		Quantity: qty,
		Price:    d(price),
		Mode:     entity.ModeReal,
		Status:   entity.StatusFilled,
	}
}

func newTestLedger(cash string, opts ...Option) *Ledger {
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return New(d(cash), opts...)
}

func TestLedger_RoundTripRealizesProfit(t *testing.T) {
	l := newTestLedger("10000")

	buy, err := l.Apply(filled("TEST.US", entity.SideBuy, 10, "50"))
	require.NoError(t, err)
	assert.True(t, buy.RealizedPnL.IsZero())
	assert.Equal(t, "9500", buy.CashAfter.String())
	assert.Equal(t, "500", l.Cash().Reserved.String())

	sell, err := l.Apply(filled("TEST.US", entity.SideSell, 10, "55"))
	require.NoError(t, err)
	assert.Equal(t, "50", sell.RealizedPnL.String())
	assert.Equal(t, int64(0), sell.PositionAfter)

	assert.Equal(t, int64(0), l.Position("TEST.US").Quantity)
	assert.Equal(t, "10050", l.Cash().Available.String())
	assert.True(t, l.Cash().Reserved.IsZero())

	snap := l.Snapshot()
	assert.Equal(t, "50", snap.Realized.String())
	assert.Len(t, snap.History, 2)
	assert.Empty(t, snap.Positions)
}

func TestLedger_WeightedAverageEntry(t *testing.T) {
	l := newTestLedger("10000")
	_, err := l.Apply(filled("TEST.US", entity.SideBuy, 10, "50"))
	require.NoError(t, err)
	_, err = l.Apply(filled("TEST.US", entity.SideBuy, 10, "55"))
	require.NoError(t, err)

	pos := l.Position("TEST.US")
	assert.Equal(t, int64(20), pos.Quantity)
	assert.Equal(t, "52.5", pos.AvgPrice.String())

	rec, err := l.Apply(filled("TEST.US", entity.SideSell, 5, "60"))
	require.NoError(t, err)
	assert.Equal(t, "37.5", rec.RealizedPnL.String())
	assert.Equal(t, "52.5", l.Position("TEST.US").AvgPrice.String(), "partial close keeps entry price")

	l.Mark("TEST.US", d("50"))
	assert.Equal(t, "-37.5", l.Unrealized().String())
}

func TestLedger_RejectsInsufficientCash(t *testing.T) {
	l := newTestLedger("1000")

	_, err := l.Apply(filled("TEST.US", entity.SideBuy, 11, "100"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientCash)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	assert.Equal(t, "1000", l.Cash().Available.String(), "failed apply must not mutate")
	assert.Zero(t, l.Position("TEST.US").Quantity)
	assert.Zero(t, l.Pending())
}

func TestLedger_RejectsShortWhenDisabled(t *testing.T) {
	l := newTestLedger("1000")
	_, err := l.Apply(filled("TEST.US", entity.SideSell, 1, "10"))
	assert.ErrorIs(t, err, ErrShortNotAllowed)
	assert.ErrorIs(t, err, ErrInvariantViolation)
}

func TestLedger_RejectsUnfilledAndMalformedOrders(t *testing.T) {
	l := newTestLedger("1000")

	failed := filled("TEST.US", entity.SideBuy, 1, "10")
	failed.Status = entity.StatusFailed
	_, err := l.Apply(failed)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	zero := filled("TEST.US", entity.SideBuy, 0, "10")
	_, err = l.Apply(zero)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	free := filled("TEST.US", entity.SideBuy, 1, "0")
	_, err = l.Apply(free)
	assert.ErrorIs(t, err, ErrInvariantViolation)

	assert.Empty(t, l.Snapshot().History)
}

func TestLedger_ShortFlipUsesAverageCost(t *testing.T) {
	l := newTestLedger("1000", WithShortSelling(true))

	_, err := l.Apply(filled("TEST.US", entity.SideBuy, 5, "10"))
	require.NoError(t, err)
	rec, err := l.Apply(filled("TEST.US", entity.SideSell, 8, "12"))
	require.NoError(t, err)

	assert.Equal(t, "10", rec.RealizedPnL.String())
	pos := l.Position("TEST.US")
	assert.Equal(t, int64(-3), pos.Quantity)
	assert.Equal(t, "12", pos.AvgPrice.String())
	assert.True(t, l.Cash().Reserved.IsZero())

	rec, err = l.Apply(filled("TEST.US", entity.SideBuy, 3, "11"))
	require.NoError(t, err)
	assert.Equal(t, "3", rec.RealizedPnL.String())
	assert.Zero(t, l.Position("TEST.US").Quantity)
}

func TestLedger_LastBuy(t *testing.T) {
	l := newTestLedger("10000")
	_, ok := l.LastBuy("TEST.US")
	assert.False(t, ok)

	_, _ = l.Apply(filled("TEST.US", entity.SideBuy, 1, "10"))
	_, _ = l.Apply(filled("TEST.US", entity.SideBuy, 1, "12"))
	_, _ = l.Apply(filled("TEST.US", entity.SideSell, 1, "13"))

	last, ok := l.LastBuy("TEST.US")
	require.True(t, ok)
	assert.Equal(t, "12", last.Price.String())
}

func TestLedger_RestoreReplaysHistory(t *testing.T) {
	src := newTestLedger("5000")
	_, _ = src.Apply(filled("A.US", entity.SideBuy, 10, "100"))
	_, _ = src.Apply(filled("B.US", entity.SideBuy, 4, "250"))
	_, _ = src.Apply(filled("A.US", entity.SideSell, 4, "110"))
	want := src.Snapshot()

	dst := newTestLedger("5000")
	require.NoError(t, dst.Restore(want.History))
	got := dst.Snapshot()

	assert.Equal(t, want.Cash.Available.String(), got.Cash.Available.String())
	assert.Equal(t, want.Cash.Reserved.String(), got.Cash.Reserved.String())
	assert.Equal(t, want.Realized.String(), got.Realized.String())
	assert.Equal(t, want.History[2].ID, got.History[2].ID)
	assert.Zero(t, dst.Pending(), "replayed rows are already persisted")
}

func TestLedger_RestoreSurfacesCorruptHistory(t *testing.T) {
	l := newTestLedger("100")
	err := l.Restore([]entity.TransactionRecord{{
		ID: "t1", Symbol: "A.US", Side: entity.SideBuy, Quantity: 10, Price: d("100"),
	}})
	assert.ErrorIs(t, err, ErrInsufficientCash)
}

// 随机订单流经风控定量后写入账本，现金任何时刻都不能为负
func TestLedger_CashNeverNegativeProperty(t *testing.T) {
	manager := risk.NewManager(risk.Limits{PerTradeFraction: 0.3, MaxPosition: d("4000")})

	property := func(seed int64) bool {
		rng := rand.New(rand.NewSource(seed))
		l := newTestLedger("5000")
		symbols := []string{"A.US", "B.US", "C.US"}

		for i := 0; i < 60; i++ {
			symbol := symbols[rng.Intn(len(symbols))]
			price := decimal.NewFromFloat(1 + rng.Float64()*200).Round(2)
			action := entity.ActionBuy
			if rng.Intn(2) == 0 {
				action = entity.ActionSell
			}
			assessment := manager.Assess(
				entity.DecisionResult{Action: action, Quantity: int64(rng.Intn(50))},
				price, l.Position(symbol), l.Cash(), d("5000"),
			)
			if !assessment.Approved {
				continue
			}
			side, _ := action.Side()
			if _, err := l.Apply(entity.Order{
				ID: "o", Symbol: symbol, Side: side, Quantity: assessment.Quantity,
				Price: price, Mode: entity.ModeSimulated, Status: entity.StatusFilled,
			}); err != nil {
				return false
			}
			if l.Cash().Available.IsNegative() || l.Position(symbol).Quantity < 0 {
				return false
			}
		}
		return true
	}
	require.NoError(t, quick.Check(property, &quick.Config{MaxCount: 200}))
}

type fakeStore struct {
	appendErr error
	appended  []entity.TransactionRecord
	daily     map[string]entity.DailyLog
}

func (f *fakeStore) AppendTransactions(_ context.Context, records []entity.TransactionRecord) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.appended = append(f.appended, records...)
	return nil
}

func (f *fakeStore) UpsertDaily(_ context.Context, log entity.DailyLog) error {
	if f.daily == nil {
		f.daily = map[string]entity.DailyLog{}
	}
	f.daily[log.Date] = log
	return nil
}

func (f *fakeStore) LatestDailyBefore(_ context.Context, date string) (entity.DailyLog, bool, error) {
	var (
		best  entity.DailyLog
		found bool
	)
	for k, v := range f.daily {
		if k < date && (!found || k > best.Date) {
			best, found = v, true
		}
	}
	return best, found, nil
}

func TestLedger_FlushRetriesAfterFailure(t *testing.T) {
	store := &fakeStore{appendErr: errors.New("disk full")}
	l := newTestLedger("1000", WithStore(store))

	_, err := l.Apply(filled("TEST.US", entity.SideBuy, 2, "100"))
	require.NoError(t, err)

	err = l.Flush(context.Background())
	require.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, 1, l.Pending())
	assert.Equal(t, "800", l.Cash().Available.String(), "in-memory state stays authoritative")

	store.appendErr = nil
	require.NoError(t, l.Flush(context.Background()))
	assert.Zero(t, l.Pending())
	require.Len(t, store.appended, 1)

	daily := store.daily[testNow.Format(time.DateOnly)]
	assert.Equal(t, "1000", daily.NetAssets.String())
	assert.Equal(t, "1000", daily.PrevNetAssets.String())
	assert.Equal(t, "800", daily.Cash.String())
	assert.Equal(t, "200", daily.Reserved.String())
}

func TestLedger_DailyLogUsesPreviousDay(t *testing.T) {
	store := &fakeStore{daily: map[string]entity.DailyLog{
		"2025-02-28": {Date: "2025-02-28", NetAssets: d("900")},
	}}
	l := newTestLedger("1000", WithStore(store))
	_, err := l.Apply(filled("TEST.US", entity.SideBuy, 2, "100"))
	require.NoError(t, err)
	l.Mark("TEST.US", d("145"))

	require.NoError(t, l.Flush(context.Background()))
	daily := store.daily["2025-03-03"]
	assert.Equal(t, "1090", daily.NetAssets.String())
	assert.Equal(t, "190", daily.DailyProfit.String())
	assert.InDelta(t, 21.111, daily.DailyReturnPct, 0.001)
}
