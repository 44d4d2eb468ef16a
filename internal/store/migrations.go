package store

import "fmt"

func (s *Store) migrate() error {
	for _, m := range schema(s.dialect) {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// schema returns the DDL for d. SQLite and PostgreSQL compare text
// byte-wise already; MySQL needs an explicit binary collation on the
// identifier columns.
func schema(d dialect) []string {
	ts := d.timestamp
	exact := d.exact

	return []string{
		`CREATE TABLE IF NOT EXISTS licenses (
			id VARCHAR(36) PRIMARY KEY,
			license_key VARCHAR(36)` + exact + ` NOT NULL UNIQUE,
			email VARCHAR(254) NOT NULL,
			is_revoked BOOLEAN NOT NULL DEFAULT FALSE,
			max_activations INTEGER NOT NULL DEFAULT 1,
			expires_at ` + ts + ` NULL,
			notes TEXT NOT NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,

		// One row per (license, machine), ever. Deactivation flips is_active.
		`CREATE TABLE IF NOT EXISTS license_activations (
			id VARCHAR(36) PRIMARY KEY,
			license_id VARCHAR(36) NOT NULL,
			machine_id VARCHAR(64)` + exact + ` NOT NULL,
			app_version VARCHAR(20) NOT NULL,
			platform VARCHAR(20) NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			activated_at ` + ts + ` NOT NULL,
			last_validated_at ` + ts + ` NOT NULL,
			deactivated_at ` + ts + ` NULL,
			UNIQUE (license_id, machine_id),
			FOREIGN KEY (license_id) REFERENCES licenses(id)
		)`,

		`CREATE TABLE IF NOT EXISTS purchases (
			id VARCHAR(36) PRIMARY KEY,
			checkout_session_id VARCHAR(255)` + exact + ` NOT NULL UNIQUE,
			amount BIGINT NOT NULL DEFAULT 0,
			currency VARCHAR(3) NOT NULL DEFAULT 'usd',
			status VARCHAR(16) NOT NULL DEFAULT 'pending',
			customer_email VARCHAR(254) NOT NULL DEFAULT '',
			license_id VARCHAR(36) NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL,
			FOREIGN KEY (license_id) REFERENCES licenses(id)
		)`,

		`CREATE TABLE IF NOT EXISTS admins (
			id VARCHAR(36) PRIMARY KEY,
			email VARCHAR(254) NOT NULL UNIQUE,
			password_hash VARCHAR(255) NOT NULL,
			name VARCHAR(255) NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			last_login_at ` + ts + ` NULL,
			created_at ` + ts + ` NOT NULL,
			updated_at ` + ts + ` NOT NULL
		)`,
	}
}
