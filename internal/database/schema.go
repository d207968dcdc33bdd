package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied in order by Migrate.  Every statement is idempotent.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS roles (
		id   TINYINT UNSIGNED PRIMARY KEY,
		name VARCHAR(32) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		email          VARCHAR(255) NOT NULL UNIQUE,
		password_hash  VARCHAR(255) NOT NULL,
		display_name   VARCHAR(255) NOT NULL DEFAULT '',
		institution_id BIGINT UNSIGNED NULL,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS user_roles (
		id      BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id BIGINT UNSIGNED NOT NULL,
		role_id TINYINT UNSIGNED NOT NULL,
		dac_id  BIGINT UNSIGNED NULL,
		UNIQUE KEY uq_user_role (user_id, role_id, dac_id),
		KEY idx_user_roles_dac (dac_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE,
		FOREIGN KEY (role_id) REFERENCES roles(id)
	)`,
	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id         BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id    BIGINT UNSIGNED NOT NULL,
		token_hash CHAR(64) NOT NULL UNIQUE,
		expires_at DATETIME NOT NULL,
		revoked_at DATETIME NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS dac (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name        VARCHAR(255) NOT NULL UNIQUE,
		description TEXT NOT NULL,
		created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS dataset (
		id                        BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		name                      VARCHAR(255) NOT NULL,
		dac_id                    BIGINT UNSIGNED NOT NULL,
		consent_id                VARCHAR(255) NULL,
		custodian_user_id         BIGINT UNSIGNED NULL,
		needs_collaborator_letter BOOLEAN NOT NULL DEFAULT FALSE,
		needs_ethics_approval     BOOLEAN NOT NULL DEFAULT FALSE,
		active                    BOOLEAN NOT NULL DEFAULT TRUE,
		KEY idx_dataset_consent (consent_id),
		FOREIGN KEY (dac_id) REFERENCES dac(id)
	)`,
	`CREATE TABLE IF NOT EXISTS dar_collection (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		dar_code       VARCHAR(64) NOT NULL UNIQUE,
		create_user_id BIGINT UNSIGNED NOT NULL,
		create_date    DATETIME NOT NULL,
		FOREIGN KEY (create_user_id) REFERENCES users(id)
	)`,
	`CREATE TABLE IF NOT EXISTS dar (
		id                  BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		reference_id        CHAR(36) NOT NULL UNIQUE,
		user_id             BIGINT UNSIGNED NOT NULL,
		collection_id       BIGINT UNSIGNED NULL,
		status              VARCHAR(16) NOT NULL,
		project_title       VARCHAR(512) NOT NULL DEFAULT '',
		rationale           TEXT NULL,
		manual_review       BOOLEAN NOT NULL DEFAULT FALSE,
		parent_reference_id CHAR(36) NULL,
		create_date         DATETIME NOT NULL,
		sort_date           DATETIME NOT NULL,
		submission_date     DATETIME NULL,
		KEY idx_dar_collection (collection_id),
		FOREIGN KEY (user_id) REFERENCES users(id),
		FOREIGN KEY (collection_id) REFERENCES dar_collection(id)
	)`,
	`CREATE TABLE IF NOT EXISTS dar_dataset (
		reference_id CHAR(36) NOT NULL,
		dataset_id   BIGINT UNSIGNED NOT NULL,
		PRIMARY KEY (reference_id, dataset_id),
		FOREIGN KEY (reference_id) REFERENCES dar(reference_id) ON DELETE CASCADE,
		FOREIGN KEY (dataset_id) REFERENCES dataset(id)
	)`,
	`CREATE TABLE IF NOT EXISTS election (
		id              BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		reference_id    VARCHAR(255) NOT NULL,
		dataset_id      BIGINT UNSIGNED NOT NULL DEFAULT 0,
		election_type   VARCHAR(16) NOT NULL,
		status          VARCHAR(16) NOT NULL,
		create_date     DATETIME NOT NULL,
		last_update     DATETIME NULL,
		final_vote      BOOLEAN NULL,
		final_rationale TEXT NULL,
		version         INT NOT NULL DEFAULT 1,
		UNIQUE KEY uq_election_version (reference_id, election_type, dataset_id, version),
		KEY idx_election_open (reference_id, election_type, dataset_id, status)
	)`,
	`CREATE TABLE IF NOT EXISTS vote (
		id          BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		election_id BIGINT UNSIGNED NOT NULL,
		user_id     BIGINT UNSIGNED NOT NULL,
		vote_type   VARCHAR(16) NOT NULL,
		vote        BOOLEAN NULL,
		rationale   TEXT NULL,
		create_date DATETIME NOT NULL,
		update_date DATETIME NULL,
		UNIQUE KEY uq_vote (election_id, user_id, vote_type),
		FOREIGN KEY (election_id) REFERENCES election(id) ON DELETE CASCADE,
		FOREIGN KEY (user_id) REFERENCES users(id)
	)`,
	`CREATE TABLE IF NOT EXISTS library_card (
		id             BIGINT UNSIGNED AUTO_INCREMENT PRIMARY KEY,
		user_id        BIGINT UNSIGNED NOT NULL,
		institution_id BIGINT UNSIGNED NOT NULL,
		era_commons_id VARCHAR(255) NULL,
		create_user_id BIGINT UNSIGNED NOT NULL,
		created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE KEY uq_library_card (user_id, institution_id),
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
}

// RoleRow is one entry of the roles lookup table.
type RoleRow struct {
	ID   uint8
	Name string
}

// Migrate creates missing tables and upserts the role lookup rows.
func Migrate(ctx context.Context, db *sql.DB, roles []RoleRow) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	for _, r := range roles {
		if _, err := db.ExecContext(ctx,
			"INSERT INTO roles (id, name) VALUES (?, ?) ON DUPLICATE KEY UPDATE name=VALUES(name)",
			r.ID, r.Name); err != nil {
			return fmt.Errorf("seed role %s: %w", r.Name, err)
		}
	}
	return nil
}
