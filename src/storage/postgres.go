package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"stock-pulse/src/logger"
	"stock-pulse/src/models"
)

// -----------------------------------------------------------------------------

type PostgresDB struct {
	Config *models.MConfig
	DB     *sql.DB
	Schema string
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewPostgresDB(cfg *models.MConfig, log *logger.Logger) (*PostgresDB, error) {
	// Schema named after the executable so several services can share one DB.
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("failed to get executable name: %w", err)
	}
	name := filepath.Base(exe)
	name = strings.TrimSuffix(name, filepath.Ext(name))

	return &PostgresDB{
		Config: cfg,
		Schema: name,
		Logger: log,
	}, nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Initialize() error {
	dsn := d.Config.Storage.DBConnectionString
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}

	if err := db.Ping(); err != nil {
		return err
	}

	d.DB = db

	if _, err := d.DB.Exec(fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS "%s"`, d.Schema)); err != nil {
		return fmt.Errorf("failed to create schema %s: %w", d.Schema, err)
	}

	if err := d.createTables(); err != nil {
		return err
	}

	d.Logger.Info("PostgresDB initialized successfully (Schema: %s)", d.Schema)
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) createTables() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "%s".price_updates (
			symbol TEXT,
			timestamp BIGINT,
			price DOUBLE PRECISION,
			change DOUBLE PRECISION,
			change_percent DOUBLE PRECISION,
			volume DOUBLE PRECISION,
			previous_close DOUBLE PRECISION,
			market_status TEXT,
			PRIMARY KEY (symbol, timestamp)
		);
	`, d.Schema)

	if _, err := d.DB.Exec(query); err != nil {
		return fmt.Errorf("failed to create price_updates: %w", err)
	}
	return nil
}

// -----------------------------------------------------------------------------

// SavePriceUpdates inserts a batch in one transaction. Duplicate
// (symbol, timestamp) rows are ignored.
func (d *PostgresDB) SavePriceUpdates(updates []models.MPriceUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := d.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	placeholders := make([]string, 0, len(updates))
	args := make([]interface{}, 0, len(updates)*paramsPerRow)
	for i, u := range updates {
		base := i * paramsPerRow
		placeholders = append(placeholders, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, u.Symbol, u.Timestamp, u.Price, u.Change, u.ChangePercent, u.Volume, u.PreviousClose, u.MarketStatus)
	}

	query := fmt.Sprintf(`
		INSERT INTO "%s".price_updates
			(symbol, timestamp, price, change, change_percent, volume, previous_close, market_status)
		VALUES %s
		ON CONFLICT (symbol, timestamp) DO NOTHING
	`, d.Schema, strings.Join(placeholders, ", "))

	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("failed to insert price updates: %w", err)
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------

// LoadLatestPrices returns the most recent persisted update per symbol.
func (d *PostgresDB) LoadLatestPrices() (map[string]models.MPriceUpdate, error) {
	query := fmt.Sprintf(`
		SELECT DISTINCT ON (symbol)
			symbol, timestamp, price, change, change_percent, volume, previous_close, market_status
		FROM "%s".price_updates
		ORDER BY symbol, timestamp DESC
	`, d.Schema)

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
func (d *PostgresDB) CleanupOldData() error {
	days := d.Config.DataSource.DataRetentionDays
	if days <= 0 {
		return nil
	}

	cutoff := time.Now().AddDate(0, 0, -days).Unix()
	query := fmt.Sprintf(`DELETE FROM "%s".price_updates WHERE timestamp < $1`, d.Schema)
	res, err := d.DB.Exec(query, cutoff)
	if err != nil {
		return fmt.Errorf("retention cleanup failed: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		d.Logger.Info("Retention cleanup removed %d rows older than %d days", n, days)
	}
	return nil
}

// -----------------------------------------------------------------------------

func (d *PostgresDB) Close() error {
	if d.DB == nil {
		return nil
	}
	return d.DB.Close()
}
