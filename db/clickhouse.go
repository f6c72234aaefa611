package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/spf13/viper"

	"bundler/logger"
	"bundler/types"
)

const databaseName = "bundler"

type ClickhouseDB struct {
	conn driver.Conn
}

func NewClickhouse() Database {
	opts := &clickhouse.Options{
		Addr: []string{viper.GetString("CLICKHOUSE_ADDR")},
		Auth: clickhouse.Auth{
			Database: viper.GetString("CLICKHOUSE_DATABASE"),
			Username: viper.GetString("CLICKHOUSE_USERNAME"),
			Password: viper.GetString("CLICKHOUSE_PASSWORD"),
		},
		DialTimeout:  5 * time.Second,
		Compression:  &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		MaxOpenConns: 10,
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		slog.Error("Failed to connect to ClickHouse", "error", err)
	}

	return &ClickhouseDB{conn: conn}
}

func (d *ClickhouseDB) Close() error {
	return d.conn.Close()
}

func (d *ClickhouseDB) EnsureDatabaseExists() error {
	query := fmt.Sprintf(`CREATE DATABASE IF NOT EXISTS %s`, databaseName)
	if err := d.conn.Exec(context.Background(), query); err != nil {
		return fmt.Errorf("failed to ensure database exists: %w", err)
	}
	logger.GlobalLogger.Info("Database ensured to exist", "database", databaseName)
	return nil
}

func (d *ClickhouseDB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bundler.bundle_attempts
		(
			bundleId String,
			side String,
			target String,
			attempt UInt32,
			tipLamports UInt64,
			txCount UInt32,
			state String,
			error String,
			timestamp DateTime
		)
		ENGINE = MergeTree
		ORDER BY timestamp
		SETTINGS index_granularity = 8192`,

		`CREATE TABLE IF NOT EXISTS bundler.provider_health
		(
			endpoint String,
			status String,
			score Float64,
			successRate Float64,
			avgLatencyMs Float64,
			consecutiveFailures UInt32,
			totalRequests UInt64,
			lastError String,
			checkedAt DateTime
		)
		ENGINE = MergeTree
		ORDER BY checkedAt
		SETTINGS index_granularity = 8192`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(context.Background(), q); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (d *ClickhouseDB) DropTables() error {
	queries := []string{
		`DROP TABLE IF EXISTS bundler.bundle_attempts`,
		`DROP TABLE IF EXISTS bundler.provider_health`,
	}
	for _, q := range queries {
		if err := d.conn.Exec(context.Background(), q); err != nil {
			return fmt.Errorf("failed to drop table: %w", err)
		}
	}
	return nil
}

func (d *ClickhouseDB) Exec(query string, args ...any) error {
	return d.conn.Exec(context.Background(), query, args...)
}

func (d *ClickhouseDB) InsertBundleAttempt(rec types.BundleAttemptRecord) error {
	q := `INSERT INTO bundler.bundle_attempts
		(bundleId, side, target, attempt, tipLamports, txCount, state, error, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return d.conn.Exec(context.Background(), q,
		rec.BundleID, rec.Side, rec.Target, rec.Attempt, rec.TipLamports,
		rec.TxCount, string(rec.State), rec.Error, rec.Timestamp)
}

func (d *ClickhouseDB) InsertProviderHealth(snaps []types.ProviderSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}
	batch, err := d.conn.PrepareBatch(context.Background(), "INSERT INTO bundler.provider_health")
	if err != nil {
		return err
	}
	for _, s := range snaps {
		if err := batch.Append(
			s.Endpoint, string(s.Status), s.Score, s.SuccessRate, s.AvgLatencyMs,
			s.ConsecutiveFailures, s.TotalRequests, s.LastError, s.CheckedAt,
		); err != nil {
			return err
		}
	}
	return batch.Send()
}

func (d *ClickhouseDB) QueryRecentBundleAttempts(limit uint) ([]types.BundleAttemptRecord, error) {
	q := `SELECT bundleId, side, target, attempt, tipLamports, txCount, state, error, timestamp
		FROM bundler.bundle_attempts ORDER BY timestamp DESC LIMIT ?`

	rows, err := d.conn.Query(context.Background(), q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []types.BundleAttemptRecord
	for rows.Next() {
		var rec types.BundleAttemptRecord
		var state string
		if err := rows.Scan(&rec.BundleID, &rec.Side, &rec.Target, &rec.Attempt,
			&rec.TipLamports, &rec.TxCount, &state, &rec.Error, &rec.Timestamp); err != nil {
			return nil, err
		}
		rec.State = types.BundleState(state)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
