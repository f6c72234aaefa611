package db

import (
	"bundler/types"
)

type Database interface {
	Close() error
	EnsureDatabaseExists() error
	CreateTables() error
	DropTables() error

	Exec(query string, args ...any) error
	InsertBundleAttempt(rec types.BundleAttemptRecord) error
	InsertProviderHealth(snaps []types.ProviderSnapshot) error

	QueryRecentBundleAttempts(limit uint) ([]types.BundleAttemptRecord, error)
}
