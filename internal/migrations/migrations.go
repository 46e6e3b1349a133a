package migrations

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"pharmapos/m/internal/database"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            username TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            role TEXT NOT NULL,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP
        );`,
	`CREATE TABLE IF NOT EXISTS products (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            name TEXT NOT NULL,
            generic_name TEXT NOT NULL DEFAULT '',
            manufacturer TEXT NOT NULL DEFAULT '',
            pieces_per_sheet INTEGER NOT NULL CHECK (pieces_per_sheet >= 1),
            sheets_per_box INTEGER NOT NULL CHECK (sheets_per_box >= 1),
            total_stock INTEGER NOT NULL CHECK (total_stock >= 0),
            cost_price REAL NOT NULL CHECK (cost_price >= 0),
            selling_price REAL NOT NULL CHECK (selling_price >= 0),
            critical_level INTEGER NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT 1,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS sale_transactions (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            transaction_number TEXT NOT NULL UNIQUE,
            cashier_id INTEGER,
            customer_name TEXT NOT NULL DEFAULT '',
            payment_method TEXT NOT NULL DEFAULT '',
            discount_percent REAL NOT NULL DEFAULT 0,
            is_pwd_senior BOOLEAN NOT NULL DEFAULT 0,
            subtotal REAL NOT NULL,
            discount_amount REAL NOT NULL DEFAULT 0,
            statutory_discount_amount REAL NOT NULL DEFAULT 0,
            total_amount REAL NOT NULL,
            amount_paid REAL NOT NULL DEFAULT 0,
            change_amount REAL NOT NULL DEFAULT 0,
            status TEXT NOT NULL CHECK (status IN ('completed', 'cancelled')),
            cancel_reason TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            cancelled_at DATETIME
        );`,
	`CREATE TABLE IF NOT EXISTS sale_line_items (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            transaction_id INTEGER NOT NULL,
            product_id INTEGER NOT NULL,
            product_name TEXT NOT NULL,
            boxes INTEGER NOT NULL DEFAULT 0,
            sheets INTEGER NOT NULL DEFAULT 0,
            pieces INTEGER NOT NULL DEFAULT 0,
            total_pieces INTEGER NOT NULL CHECK (total_pieces > 0),
            unit_price REAL NOT NULL,
            line_total REAL NOT NULL,
            FOREIGN KEY(transaction_id) REFERENCES sale_transactions(id),
            FOREIGN KEY(product_id) REFERENCES products(id)
        );`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            product_id INTEGER NOT NULL,
            movement_type TEXT NOT NULL CHECK (movement_type IN ('in', 'out', 'adjustment', 'archived')),
            quantity_change INTEGER NOT NULL,
            remaining_stock INTEGER NOT NULL,
            reference_type TEXT NOT NULL,
            reference_id INTEGER,
            line_item_id INTEGER,
            note TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL,
            FOREIGN KEY(product_id) REFERENCES products(id)
        );`,
	`CREATE INDEX IF NOT EXISTS idx_sale_line_items_transaction ON sale_line_items(transaction_id);`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements(product_id);`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_reference ON stock_movements(reference_type, reference_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sale_transactions_created ON sale_transactions(created_at);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			username TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			password TEXT NOT NULL,
			role TEXT NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);`,
	`CREATE TABLE IF NOT EXISTS products (
            id SERIAL PRIMARY KEY,
            name TEXT NOT NULL,
            generic_name TEXT NOT NULL DEFAULT '',
            manufacturer TEXT NOT NULL DEFAULT '',
            pieces_per_sheet BIGINT NOT NULL CHECK (pieces_per_sheet >= 1),
            sheets_per_box BIGINT NOT NULL CHECK (sheets_per_box >= 1),
            total_stock BIGINT NOT NULL CHECK (total_stock >= 0),
            cost_price DOUBLE PRECISION NOT NULL CHECK (cost_price >= 0),
            selling_price DOUBLE PRECISION NOT NULL CHECK (selling_price >= 0),
            critical_level BIGINT NOT NULL DEFAULT 0,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL,
            updated_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE TABLE IF NOT EXISTS sale_transactions (
            id SERIAL PRIMARY KEY,
            transaction_number TEXT NOT NULL UNIQUE,
            cashier_id INTEGER REFERENCES users(id),
            customer_name TEXT NOT NULL DEFAULT '',
            payment_method TEXT NOT NULL DEFAULT '',
            discount_percent DOUBLE PRECISION NOT NULL DEFAULT 0,
            is_pwd_senior BOOLEAN NOT NULL DEFAULT FALSE,
            subtotal DOUBLE PRECISION NOT NULL,
            discount_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
            statutory_discount_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
            total_amount DOUBLE PRECISION NOT NULL,
            amount_paid DOUBLE PRECISION NOT NULL DEFAULT 0,
            change_amount DOUBLE PRECISION NOT NULL DEFAULT 0,
            status TEXT NOT NULL CHECK (status IN ('completed', 'cancelled')),
            cancel_reason TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL,
            cancelled_at TIMESTAMPTZ
        );`,
	`CREATE TABLE IF NOT EXISTS sale_line_items (
			id SERIAL PRIMARY KEY,
			transaction_id INTEGER NOT NULL REFERENCES sale_transactions(id),
			product_id INTEGER NOT NULL REFERENCES products(id),
			product_name TEXT NOT NULL,
			boxes BIGINT NOT NULL DEFAULT 0,
			sheets BIGINT NOT NULL DEFAULT 0,
			pieces BIGINT NOT NULL DEFAULT 0,
			total_pieces BIGINT NOT NULL CHECK (total_pieces > 0),
			unit_price DOUBLE PRECISION NOT NULL,
			line_total DOUBLE PRECISION NOT NULL
		);`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
			id SERIAL PRIMARY KEY,
			product_id INTEGER NOT NULL REFERENCES products(id),
			movement_type TEXT NOT NULL CHECK (movement_type IN ('in', 'out', 'adjustment', 'archived')),
			quantity_change BIGINT NOT NULL,
			remaining_stock BIGINT NOT NULL,
			reference_type TEXT NOT NULL,
			reference_id BIGINT,
			line_item_id BIGINT,
			note TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		);`,
	`CREATE INDEX IF NOT EXISTS idx_sale_line_items_transaction ON sale_line_items(transaction_id);`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_product ON stock_movements(product_id);`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_reference ON stock_movements(reference_type, reference_id);`,
	`CREATE INDEX IF NOT EXISTS idx_sale_transactions_created ON sale_transactions(created_at);`,
}

// Run creates the schema for the connected dialect.
func Run(db *sqlx.DB) error {
	schema := sqliteSchema
	if db.DriverName() == database.DriverPostgres {
		schema = postgresSchema
	}
	for i, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}
	return nil
}
