package configstore

import (
	"context"
	"database/sql"
	"encoding/json"
)

// PostgresStore persists config documents in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed config store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Get(ctx context.Context, walletAddress string) (*Document, error) {
	doc, err := scanDocument(p.db.QueryRowContext(ctx, `
		SELECT wallet_address, config, version, created_at, updated_at
		FROM publisher_configs WHERE wallet_address = $1`, walletAddress))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return doc, err
}

func (p *PostgresStore) Put(ctx context.Context, walletAddress string, config json.RawMessage) (*Document, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}

	return scanDocument(p.db.QueryRowContext(ctx, `
		INSERT INTO publisher_configs (wallet_address, config, version, created_at, updated_at)
		VALUES ($1, $2, 1, NOW(), NOW())
		ON CONFLICT (wallet_address) DO UPDATE SET
			config = EXCLUDED.config,
			version = publisher_configs.version + 1,
			updated_at = NOW()
		RETURNING wallet_address, config, version, created_at, updated_at`,
		walletAddress, []byte(config),
	))
}

func (p *PostgresStore) Delete(ctx context.Context, walletAddress string) error {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM publisher_configs WHERE wallet_address = $1`, walletAddress)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	var config []byte
	err := row.Scan(&doc.WalletAddress, &config, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return nil, err
	}
	doc.Config = json.RawMessage(config)
	return &doc, nil
}
