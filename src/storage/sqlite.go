package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"stock-pulse/src/logger"
	"stock-pulse/src/models"
)

// SQLite batch constants
const (
	sqliteMaxVars   = 32000
	paramsPerRow    = 8
	sqliteBatchSize = sqliteMaxVars / paramsPerRow // ~4000 rows
)

// -----------------------------------------------------------------------------

type AsyncSQLiteDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewAsyncSQLiteDB(cfg *models.MConfig, log *logger.Logger) (*AsyncSQLiteDB, error) {
	return &AsyncSQLiteDB{
		Config: cfg,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Initialize() error {
	dsn := d.Config.Storage.DBPath

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	// PRAGMA optimizations
	if _, err := db.Exec("PRAGMA journal_mode = WAL;"); err != nil {
		d.Logger.Warning("Failed to set WAL mode: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL;"); err != nil {
		d.Logger.Warning("Failed to set synchronous mode: %v", err)
	}

	return d.createTables()
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) createTables() error {
	// Data must survive restarts (cache warm), so no drop/recreate here.
	query := `
		CREATE TABLE IF NOT EXISTS price_updates (
			symbol TEXT,
			timestamp INTEGER,
			price REAL,
			change REAL,
			change_percent REAL,
			volume REAL,
			previous_close REAL,
			market_status TEXT,
			PRIMARY KEY (symbol, timestamp)
		);
	`
	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create price_updates: %w", err)
	}

	return nil
}

// -----------------------------------------------------------------------------

// SavePriceUpdates inserts a batch of updates in one transaction per chunk.
// Duplicate (symbol, timestamp) rows are ignored.
func (d *AsyncSQLiteDB) SavePriceUpdates(updates []models.MPriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	for start := 0; start < len(updates); start += sqliteBatchSize {
		end := start + sqliteBatchSize
		if end > len(updates) {
			end = len(updates)
		}
		if err := d.saveBatch(updates[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (d *AsyncSQLiteDB) saveBatch(updates []models.MPriceUpdate) error {
	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := make([]string, 0, len(updates))
	args := make([]interface{}, 0, len(updates)*paramsPerRow)
	for _, u := range updates {
		placeholders = append(placeholders, "(?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args, u.Symbol, u.Timestamp, u.Price, u.Change, u.ChangePercent, u.Volume, u.PreviousClose, u.MarketStatus)
	}

	query := `
		INSERT OR IGNORE INTO price_updates
			(symbol, timestamp, price, change, change_percent, volume, previous_close, market_status)
		VALUES ` + strings.Join(placeholders, ", ")

	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to insert price updates: %w", err)
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------

// LoadLatestPrices returns the most recent persisted update per symbol.
func (d *AsyncSQLiteDB) LoadLatestPrices() (map[string]models.MPriceUpdate, error) {
	query := `
		SELECT p.symbol, p.timestamp, p.price, p.change, p.change_percent, p.volume, p.previous_close, p.market_status
		FROM price_updates p
		JOIN (
			SELECT symbol, MAX(timestamp) AS ts
			FROM price_updates
			GROUP BY symbol
		) latest ON p.symbol = latest.symbol AND p.timestamp = latest.ts
	`

	rows, err := d.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest prices: %w", err)
	}
	defer rows.Close()

	out := make(map[string]models.MPriceUpdate)
	for rows.Next() {
		var u models.MPriceUpdate
		if err := rows.Scan(&u.Symbol, &u.Timestamp, &u.Price, &u.Change, &u.ChangePercent, &u.Volume, &u.PreviousClose, &u.MarketStatus); err != nil {
			return nil, err
		}
		out[u.Symbol] = u
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------

// CleanupOldData removes rows older than the configured retention window.
func (d *AsyncSQLiteDB) CleanupOldData() error {
	days := d.Config.DataSource.DataRetentionDays
	if days <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	res, err := d.DB.Exec("DELETE FROM price_updates WHERE timestamp < ?", cutoff)
	if err != nil {
		return fmt.Errorf("retention cleanup failed: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.Logger.Info("Retention cleanup removed %d rows older than %d days", n, days)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *AsyncSQLiteDB) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
