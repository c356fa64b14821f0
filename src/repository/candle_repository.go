// Package repository is the Candle Repository: the per-(symbol, timeframe)
// durable store responsible for idempotent persistence, ordered range
// reads, and the continuity/coverage predicates the Overlap Analyzer relies
// on. Grounded on the teacher's OHLCVRepository (ohlcv_repository.go) —
// same constructor/logging idiom; range reads are ordered ascending in the
// query itself — generalised from two fixed tables (1m/1h) to one
// dynamically-named table per (symbol, timeframe).
package repository

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"strategyexecutor/src/apierr"
	"strategyexecutor/src/model"
	"strategyexecutor/src/timegrid"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// candleRow is the GORM-mapped persistence shape for a single table. The
// table name itself is assigned per-instance via Table(), since it is data
// (candles_<symbol>_<timeframe>), not a compile-time constant the way the
// teacher's OHLCVCrypto1m/OHLCVCrypto1h TableName() methods are.
type candleRow struct {
	OpenTimeUTC          string  `gorm:"column:open_time_utc;primaryKey"`
	Market               string  `gorm:"column:market"`
	OpenTimeKST          string  `gorm:"column:open_time_kst"`
	OpeningPrice         float64 `gorm:"column:opening_price"`
	HighPrice            float64 `gorm:"column:high_price"`
	LowPrice             float64 `gorm:"column:low_price"`
	TradePrice           float64 `gorm:"column:trade_price"`
	SourceTimestamp      int64   `gorm:"column:source_timestamp;index:idx_source_timestamp"`
	CandleAccTradePrice  float64 `gorm:"column:candle_acc_trade_price"`
	CandleAccTradeVolume float64 `gorm:"column:candle_acc_trade_volume"`
	IsSynthetic          int     `gorm:"column:is_synthetic"`
	CreatedAt            string  `gorm:"column:created_at"`
}

var tableNameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// TableName returns the deterministic table name for a (symbol, timeframe)
// pair, per §6: punctuation in the symbol replaced with underscores,
// concatenated with the timeframe, prefixed by candles_.
func TableName(symbol string, tf timegrid.Timeframe) string {
	clean := tableNameSanitizer.ReplaceAllString(symbol, "_")
	return fmt.Sprintf("candles_%s_%s", strings.ToLower(clean), strings.ToLower(string(tf)))
}

// CandleRepository is the per-(symbol, timeframe) storage tier.
type CandleRepository struct {
	db *gorm.DB

	mu         sync.Mutex // guards tableLocks and migrated
	tableLocks map[string]*sync.Mutex
	migrated   map[string]bool
}

// NewCandleRepository creates a repository using the given GORM DB.
func NewCandleRepository(db *gorm.DB) *CandleRepository {
	logger.WithField("component", "CandleRepository").
		Info("Creating new CandleRepository with custom DB instance")

	return &CandleRepository{
		db:         db,
		tableLocks: make(map[string]*sync.Mutex),
		migrated:   make(map[string]bool),
	}
}

func (r *CandleRepository) lockFor(table string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.tableLocks[table]
	if !ok {
		l = &sync.Mutex{}
		r.tableLocks[table] = l
	}
	return l
}

func (r *CandleRepository) ensureTable(ctx context.Context, table string) error {
	r.mu.Lock()
	done := r.migrated[table]
	r.mu.Unlock()
	if done {
		return nil
	}

	if err := r.db.WithContext(ctx).Table(table).AutoMigrate(&candleRow{}); err != nil {
		return apierr.Storage(fmt.Sprintf("migrate table %s", table), err)
	}

	r.mu.Lock()
	r.migrated[table] = true
	r.mu.Unlock()
	return nil
}

func toRow(c model.Candle) candleRow {
	synthetic := 0
	if c.SyntheticFlag {
		synthetic = 1
	}
	return candleRow{
		OpenTimeUTC:          c.OpenTimeUTC.UTC().Format(time.RFC3339),
		Market:               c.Symbol,
		OpenTimeKST:          c.OpenTimeLocal.Format(time.RFC3339),
		OpeningPrice:         mustFloat(c.Open),
		HighPrice:            mustFloat(c.High),
		LowPrice:             mustFloat(c.Low),
		TradePrice:           mustFloat(c.Close),
		SourceTimestamp:      c.SourceTimestampMs,
		CandleAccTradePrice:  mustFloat(c.TradeValue),
		CandleAccTradeVolume: mustFloat(c.TradeVolume),
		IsSynthetic:          synthetic,
		CreatedAt:            time.Now().UTC().Format(time.RFC3339),
	}
}

func fromRow(row candleRow, symbol string, tf timegrid.Timeframe) (model.Candle, error) {
	openUTC, err := time.Parse(time.RFC3339, row.OpenTimeUTC)
	if err != nil {
		return model.Candle{}, err
	}
	openLocal, err := time.Parse(time.RFC3339, row.OpenTimeKST)
	if err != nil {
		openLocal = openUTC
	}
	return model.Candle{
		Symbol:            symbol,
		Timeframe:         tf,
		OpenTimeUTC:       openUTC,
		OpenTimeLocal:     openLocal,
		Open:              decimalFromFloat(row.OpeningPrice),
		High:              decimalFromFloat(row.HighPrice),
		Low:               decimalFromFloat(row.LowPrice),
		Close:             decimalFromFloat(row.TradePrice),
		TradeVolume:       decimalFromFloat(row.CandleAccTradeVolume),
		TradeValue:        decimalFromFloat(row.CandleAccTradePrice),
		SourceTimestampMs: row.SourceTimestamp,
		SyntheticFlag:     row.IsSynthetic == 1,
	}, nil
}

// Save is an idempotent bulk insert: candles already present (by
// open_time_utc) are ignored, never overwritten. Returns the number of
// newly inserted rows.
func (r *CandleRepository) Save(ctx context.Context, symbol string, tf timegrid.Timeframe, candles []model.Candle) (int, error) {
	if len(candles) == 0 {
		return 0, nil
	}
	table := TableName(symbol, tf)
	if err := r.ensureTable(ctx, table); err != nil {
		return 0, err
	}

	lock := r.lockFor(table)
	lock.Lock()
	defer lock.Unlock()

	rows := make([]candleRow, 0, len(candles))
	for _, c := range candles {
		rows = append(rows, toRow(c))
	}

	inserted := 0
	for _, row := range rows {
		res := r.db.WithContext(ctx).Table(table).
			Where("open_time_utc = ?", row.OpenTimeUTC).
			FirstOrCreate(&row)
		if res.Error != nil {
			return inserted, apierr.Storage(fmt.Sprintf("save into %s", table), res.Error)
		}
		if res.RowsAffected > 0 {
			inserted++
		}
	}

	return inserted, nil
}

// ReadRange returns every candle in [start, end] ascending, optionally
// capped at limit (limit <= 0 means unbounded).
func (r *CandleRepository) ReadRange(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time, limit int) ([]model.Candle, error) {
	table := TableName(symbol, tf)
	if err := r.ensureTable(ctx, table); err != nil {
		return nil, err
	}

	q := r.db.WithContext(ctx).Table(table).
		Where("open_time_utc >= ? AND open_time_utc <= ?", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)).
		Order("open_time_utc ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rows []candleRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, apierr.Storage(fmt.Sprintf("read range from %s", table), err)
	}

	out := make([]model.Candle, 0, len(rows))
	for _, row := range rows {
		c, err := fromRow(row, symbol, tf)
		if err != nil {
			return nil, apierr.Storage(fmt.Sprintf("decode row from %s", table), err)
		}
		out = append(out, c)
	}
	return out, nil
}

// HasDataAt reports whether a candle exists at exactly boundary t.
func (r *CandleRepository) HasDataAt(ctx context.Context, symbol string, tf timegrid.Timeframe, t time.Time) (bool, error) {
	table := TableName(symbol, tf)
	if err := r.ensureTable(ctx, table); err != nil {
		return false, err
	}
	var count int64
	err := r.db.WithContext(ctx).Table(table).
		Where("open_time_utc = ?", t.UTC().Format(time.RFC3339)).
		Count(&count).Error
	if err != nil {
		return false, apierr.Storage(fmt.Sprintf("has_data_at %s", table), err)
	}
	return count > 0, nil
}

// HasAnyInRange reports whether at least one row exists in [start, end].
func (r *CandleRepository) HasAnyInRange(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time) (bool, error) {
	n, err := r.CountInRange(ctx, symbol, tf, start, end)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// IsRangeComplete reports whether the number of rows in [start, end] equals
// expectedCount.
func (r *CandleRepository) IsRangeComplete(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time, expectedCount int) (bool, error) {
	n, err := r.CountInRange(ctx, symbol, tf, start, end)
	if err != nil {
		return false, err
	}
	return n == expectedCount, nil
}

// CountInRange returns the number of rows present in [start, end].
func (r *CandleRepository) CountInRange(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time) (int, error) {
	table := TableName(symbol, tf)
	if err := r.ensureTable(ctx, table); err != nil {
		return 0, err
	}
	var count int64
	err := r.db.WithContext(ctx).Table(table).
		Where("open_time_utc >= ? AND open_time_utc <= ?", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)).
		Count(&count).Error
	if err != nil {
		return 0, apierr.Storage(fmt.Sprintf("count_in_range %s", table), err)
	}
	return int(count), nil
}

// FindLastContinuousTimeFrom starts at `start` and walks forward along the
// grid, returning the largest boundary t* such that every boundary in
// [start, t*] is present. Returns (zero, false) if start itself is absent.
func (r *CandleRepository) FindLastContinuousTimeFrom(ctx context.Context, symbol string, tf timegrid.Timeframe, start time.Time) (time.Time, bool, error) {
	present, err := r.HasDataAt(ctx, symbol, tf, start)
	if err != nil {
		return time.Time{}, false, err
	}
	if !present {
		return time.Time{}, false, nil
	}

	cur := start
	for {
		next, err := timegrid.Advance(cur, tf, 1)
		if err != nil {
			return time.Time{}, false, err
		}
		ok, err := r.HasDataAt(ctx, symbol, tf, next)
		if err != nil {
			return time.Time{}, false, err
		}
		if !ok {
			return cur, true, nil
		}
		cur = next
	}
}

// FindDataStartInRange returns the smallest present boundary in [start, end].
func (r *CandleRepository) FindDataStartInRange(ctx context.Context, symbol string, tf timegrid.Timeframe, start, end time.Time) (time.Time, bool, error) {
	table := TableName(symbol, tf)
	if err := r.ensureTable(ctx, table); err != nil {
		return time.Time{}, false, err
	}

	var row candleRow
	err := r.db.WithContext(ctx).Table(table).
		Where("open_time_utc >= ? AND open_time_utc <= ?", start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339)).
		Order("open_time_utc ASC").
		Limit(1).
		Take(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, apierr.Storage(fmt.Sprintf("find_data_start_in_range %s", table), err)
	}

	t, err := time.Parse(time.RFC3339, row.OpenTimeUTC)
	if err != nil {
		return time.Time{}, false, apierr.Storage("decode open_time_utc", err)
	}
	return t, true, nil
}
