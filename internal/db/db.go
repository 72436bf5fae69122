package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
)

// Connect opens the Turso/libsql database and verifies the connection.
func Connect(url, authToken string) (*sql.DB, error) {
	dsn := url
	if authToken != "" {
		dsn = fmt.Sprintf("%s?authToken=%s", url, authToken)
	}

	conn, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

// Migrate creates the raffle schema if it does not exist.
func Migrate(conn *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS app_users (
		id TEXT PRIMARY KEY,
		email TEXT NOT NULL DEFAULT '',
		is_admin INTEGER NOT NULL DEFAULT 0,
		role TEXT NOT NULL DEFAULT 'user',
		active_purchases_count INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS raffle_numbers (
		id INTEGER PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'free',
		held_by TEXT,
		hold_expires_at DATETIME,
		order_id TEXT,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS orders (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total_amount REAL NOT NULL,
		price_per_number REAL NOT NULL,
		fingerprint TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS payment_proofs (
		order_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		file_url TEXT NOT NULL,
		file_path TEXT NOT NULL,
		file_type TEXT NOT NULL DEFAULT '',
		size_bytes INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		uploaded_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		admin_id TEXT NOT NULL,
		action TEXT NOT NULL,
		order_id TEXT NOT NULL,
		numbers_count INTEGER NOT NULL DEFAULT 0,
		order_total REAL NOT NULL DEFAULT 0,
		metadata TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_numbers_status ON raffle_numbers(status);
	CREATE INDEX IF NOT EXISTS idx_numbers_order ON raffle_numbers(order_id);
	CREATE INDEX IF NOT EXISTS idx_orders_user ON orders(user_id);

	-- Linearization point for idempotent checkout: two concurrent
	-- create-order requests for the same user+numbers collide here and
	-- the loser reuses the winner's row.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_open_fingerprint
		ON orders(user_id, fingerprint)
		WHERE status IN ('pending', 'awaiting_proof', 'under_review');
	`

	_, err := conn.Exec(query)
	return err
}

// SeedTickets bulk-inserts the fixed pool 0..total-1 once, on first boot.
func SeedTickets(ctx context.Context, conn *sql.DB, total int) error {
	var count int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM raffle_numbers").Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.Prepare("INSERT INTO raffle_numbers (id, status) VALUES (?, 'free')")
	if err != nil {
		tx.Rollback()
		return err
	}
	for i := 0; i < total; i++ {
		if _, err := stmt.Exec(i); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()

	return tx.Commit()
}
