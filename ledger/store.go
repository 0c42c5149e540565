package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gtoxlili/echoStock/entity"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore 成交流水与账户日志的 SQLite 实现。金额以 TEXT 保存以避免浮点误差
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite 单连接，PRAGMA 对整个进程生效
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA busy_timeout=3000;",
		"PRAGMA synchronous=NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS transactions (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    order_id TEXT NOT NULL,
    symbol TEXT NOT NULL,
    side TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    price TEXT NOT NULL,
    mode TEXT NOT NULL,
    realized_pnl TEXT NOT NULL,
    cash_after TEXT NOT NULL,
    position_after INTEGER NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transactions_symbol ON transactions(symbol);

CREATE TABLE IF NOT EXISTS account_daily_log (
    date TEXT PRIMARY KEY,
    updated_at TEXT NOT NULL,
    net_assets TEXT NOT NULL,
    prev_net_assets TEXT NOT NULL,
    daily_profit TEXT NOT NULL,
    daily_return_pct REAL NOT NULL,
    cash TEXT NOT NULL,
    reserved TEXT NOT NULL,
    realized TEXT NOT NULL
);
`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// AppendTransactions 在一个事务内写入整批流水。已存在的 id 会被忽略，重试不会产生重复记录
func (s *SQLiteStore) AppendTransactions(ctx context.Context, records []entity.TransactionRecord) (err error) {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT OR IGNORE INTO transactions
    (id, order_id, symbol, side, quantity, price, mode, realized_pnl, cash_after, position_after, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err = stmt.ExecContext(ctx,
			r.ID, r.OrderID, r.Symbol, string(r.Side), r.Quantity, r.Price.String(), string(r.Mode),
			r.RealizedPnL.String(), r.CashAfter.String(), r.PositionAfter, r.At.Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("insert transaction %s: %w", r.ID, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// LoadTransactions 按写入顺序返回全部流水
func (s *SQLiteStore) LoadTransactions(ctx context.Context) ([]entity.TransactionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, order_id, symbol, side, quantity, price, mode, realized_pnl, cash_after, position_after, created_at
FROM transactions ORDER BY seq ASC`)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var records []entity.TransactionRecord
	for rows.Next() {
		var (
			r                                    entity.TransactionRecord
			side, mode                           string
			price, realized, cashAfter, createdAt string
		)
		if err := rows.Scan(&r.ID, &r.OrderID, &r.Symbol, &side, &r.Quantity, &price, &mode,
			&realized, &cashAfter, &r.PositionAfter, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		r.Side = entity.Side(side)
		r.Mode = entity.OrderMode(mode)
		if r.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("transaction %s price: %w", r.ID, err)
		}
		if r.RealizedPnL, err = decimal.NewFromString(realized); err != nil {
			return nil, fmt.Errorf("transaction %s realized: %w", r.ID, err)
		}
		if r.CashAfter, err = decimal.NewFromString(cashAfter); err != nil {
			return nil, fmt.Errorf("transaction %s cash: %w", r.ID, err)
		}
		if r.At, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
			return nil, fmt.Errorf("transaction %s time: %w", r.ID, err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *SQLiteStore) UpsertDaily(ctx context.Context, log entity.DailyLog) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO account_daily_log
    (date, updated_at, net_assets, prev_net_assets, daily_profit, daily_return_pct, cash, reserved, realized)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(date) DO UPDATE SET
    updated_at = excluded.updated_at,
    net_assets = excluded.net_assets,
    prev_net_assets = excluded.prev_net_assets,
    daily_profit = excluded.daily_profit,
    daily_return_pct = excluded.daily_return_pct,
    cash = excluded.cash,
    reserved = excluded.reserved,
    realized = excluded.realized`,
		log.Date, log.UpdatedAt.Format(time.RFC3339Nano), log.NetAssets.String(), log.PrevNetAssets.String(),
		log.DailyProfit.String(), log.DailyReturnPct, log.Cash.String(), log.Reserved.String(), log.Realized.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert daily log %s: %w", log.Date, err)
	}
	return nil
}

// LatestDailyBefore 返回 date 之前最近的一条账户日志
func (s *SQLiteStore) LatestDailyBefore(ctx context.Context, date string) (entity.DailyLog, bool, error) {
	row := s.db.QueryRowContext(ctx, dailySelect+` WHERE date < ? ORDER BY date DESC LIMIT 1`, date)
	log, err := scanDaily(row)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.DailyLog{}, false, nil
	}
	if err != nil {
		return entity.DailyLog{}, false, err
	}
	return log, true, nil
}

// DailyLogs 最近 n 天的账户日志，按日期升序
func (s *SQLiteStore) DailyLogs(ctx context.Context, n int) ([]entity.DailyLog, error) {
	rows, err := s.db.QueryContext(ctx, dailySelect+` ORDER BY date DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query daily logs: %w", err)
	}
	defer rows.Close()

	var logs []entity.DailyLog
	for rows.Next() {
		log, err := scanDaily(rows)
		if err != nil {
			return nil, err
		}
		logs = append([]entity.DailyLog{log}, logs...)
	}
	return logs, rows.Err()
}

const dailySelect = `
SELECT date, updated_at, net_assets, prev_net_assets, daily_profit, daily_return_pct, cash, reserved, realized
FROM account_daily_log`

type scanner interface {
	Scan(dest ...any) error
}

func scanDaily(row scanner) (entity.DailyLog, error) {
	var (
		log                                            entity.DailyLog
		updatedAt, net, prev, profit, cash, reserved, realized string
	)
	if err := row.Scan(&log.Date, &updatedAt, &net, &prev, &profit, &log.DailyReturnPct, &cash, &reserved, &realized); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return entity.DailyLog{}, err
		}
		return entity.DailyLog{}, fmt.Errorf("scan daily log: %w", err)
	}

	var err error
	if log.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return entity.DailyLog{}, fmt.Errorf("daily log %s time: %w", log.Date, err)
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&log.NetAssets, net},
		{&log.PrevNetAssets, prev},
		{&log.DailyProfit, profit},
		{&log.Cash, cash},
		{&log.Reserved, reserved},
		{&log.Realized, realized},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return entity.DailyLog{}, fmt.Errorf("daily log %s amount: %w", log.Date, err)
		}
	}
	return log, nil
}
