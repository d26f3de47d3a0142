package store

import (
	"context"
	"fmt"
	"strings"
)

// schemaSQL is portable between SQLite and PostgreSQL. Timestamps are
// written by the store, so no column relies on a dialect-specific default.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS customers (
    id              TEXT PRIMARY KEY,
    department_name TEXT NOT NULL,
    created_at      TEXT NOT NULL,
    updated_at      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS contacts (
    id             TEXT PRIMARY KEY,
    customer_id    TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
    name           TEXT NOT NULL,
    department     TEXT,
    email          TEXT NOT NULL DEFAULT '',
    contact_number TEXT NOT NULL DEFAULT '',
    created_at     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contacts_customer_id ON contacts(customer_id);

CREATE TABLE IF NOT EXISTS contracts (
    id                 TEXT PRIMARY KEY,
    customer_id        TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
    contract_number    TEXT NOT NULL,
    contract_name      TEXT NOT NULL,
    service_start_date TEXT NOT NULL DEFAULT '',
    service_end_date   TEXT NOT NULL DEFAULT '',
    value              DOUBLE PRECISION NOT NULL DEFAULT 0,
    status             TEXT NOT NULL DEFAULT 'Active',
    created_at         TEXT NOT NULL,
    updated_at         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_contracts_customer_id ON contracts(customer_id);

CREATE TABLE IF NOT EXISTS gp_accounts (
    id                         TEXT PRIMARY KEY,
    customer_id                TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
    gp_ip                      TEXT NOT NULL DEFAULT '',
    gp_username                TEXT NOT NULL,
    gp_password                TEXT,
    account_created_date       TEXT NOT NULL DEFAULT '',
    last_password_changed_date TEXT NOT NULL DEFAULT '',
    password_changer           TEXT NOT NULL DEFAULT '',
    account_creator            TEXT NOT NULL DEFAULT '',
    next_password_due_date     TEXT NOT NULL DEFAULT '',
    status                     TEXT NOT NULL DEFAULT 'Active',
    created_at                 TEXT NOT NULL,
    updated_at                 TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_gp_accounts_customer_id ON gp_accounts(customer_id);

CREATE TABLE IF NOT EXISTS clusters (
    id                   TEXT PRIMARY KEY,
    cluster_name         TEXT NOT NULL,
    cluster_code         TEXT NOT NULL UNIQUE,
    cluster_purpose      TEXT NOT NULL DEFAULT 'Production',
    cluster_location     TEXT NOT NULL DEFAULT '',
    storage_type         TEXT NOT NULL DEFAULT '',
    total_cpu_ghz        DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_ram_gb         DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_storage_gb     DOUBLE PRECISION NOT NULL DEFAULT 0,
    allocated_cpu_ghz    DOUBLE PRECISION NOT NULL DEFAULT 0,
    allocated_ram_gb     DOUBLE PRECISION NOT NULL DEFAULT 0,
    allocated_storage_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
    available_cpu_ghz    DOUBLE PRECISION NOT NULL DEFAULT 0,
    available_ram_gb     DOUBLE PRECISION NOT NULL DEFAULT 0,
    available_storage_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
    node_count           INTEGER NOT NULL DEFAULT 0,
    vm_count             INTEGER NOT NULL DEFAULT 0,
    status               TEXT NOT NULL DEFAULT 'Active',
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_clusters_code ON clusters(cluster_code);

CREATE TABLE IF NOT EXISTS nodes (
    id                   TEXT PRIMARY KEY,
    cluster_id           TEXT NOT NULL REFERENCES clusters(id),
    node_name            TEXT NOT NULL,
    hostname             TEXT NOT NULL DEFAULT '',
    cpu_model            TEXT,
    physical_cores       INTEGER NOT NULL DEFAULT 0,
    clock_speed_ghz      DOUBLE PRECISION NOT NULL DEFAULT 0,
    ram_type             TEXT,
    storage_description  TEXT,
    network_interface    TEXT,
    management_ip        TEXT,
    total_cpu_ghz        DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_ram_gb         DOUBLE PRECISION NOT NULL DEFAULT 0,
    total_storage_gb     DOUBLE PRECISION NOT NULL DEFAULT 0,
    allocated_cpu_ghz    DOUBLE PRECISION NOT NULL DEFAULT 0,
    allocated_ram_gb     DOUBLE PRECISION NOT NULL DEFAULT 0,
    allocated_storage_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
    available_cpu_ghz    DOUBLE PRECISION NOT NULL DEFAULT 0,
    available_ram_gb     DOUBLE PRECISION NOT NULL DEFAULT 0,
    available_storage_gb DOUBLE PRECISION NOT NULL DEFAULT 0,
    vm_count             INTEGER NOT NULL DEFAULT 0,
    status               TEXT NOT NULL DEFAULT 'Active',
    created_at           TEXT NOT NULL,
    updated_at           TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_nodes_cluster_id ON nodes(cluster_id);

CREATE TABLE IF NOT EXISTS vms (
    id                     TEXT PRIMARY KEY,
    customer_id            TEXT NOT NULL DEFAULT '',
    cluster_id             TEXT NOT NULL DEFAULT '',
    node_id                TEXT NOT NULL DEFAULT '',
    vm_name                TEXT NOT NULL,
    cpu                    TEXT NOT NULL DEFAULT '',
    cpu_ghz                DOUBLE PRECISION NOT NULL DEFAULT 0,
    ram                    TEXT NOT NULL DEFAULT '',
    ram_gb                 DOUBLE PRECISION NOT NULL DEFAULT 0,
    storage                TEXT NOT NULL DEFAULT '',
    storage_gb             DOUBLE PRECISION NOT NULL DEFAULT 0,
    service_start_date     TEXT NOT NULL DEFAULT '',
    service_end_date       TEXT NOT NULL DEFAULT '',
    password_created_date  TEXT NOT NULL DEFAULT '',
    next_password_due_date TEXT NOT NULL DEFAULT '',
    public_ip              TEXT,
    management_ip          TEXT,
    private_ips            TEXT NOT NULL DEFAULT '[]',
    allowed_ports          TEXT NOT NULL DEFAULT '[]',
    status                 TEXT NOT NULL DEFAULT 'Active',
    remarks                TEXT,
    custom_fields          TEXT NOT NULL DEFAULT '{}',
    created_at             TEXT NOT NULL,
    updated_at             TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vms_customer_id ON vms(customer_id);
CREATE INDEX IF NOT EXISTS idx_vms_node_id ON vms(node_id);
CREATE INDEX IF NOT EXISTS idx_vms_cluster_id ON vms(cluster_id);
CREATE INDEX IF NOT EXISTS idx_vms_status ON vms(status);

CREATE TABLE IF NOT EXISTS audit_logs (
    id          TEXT PRIMARY KEY,
    table_name  TEXT NOT NULL,
    operation   TEXT NOT NULL,
    record_id   TEXT NOT NULL,
    old_values  TEXT,
    new_values  TEXT,
    changed_by  TEXT NOT NULL DEFAULT '',
    logged_at   TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_logs_table_name ON audit_logs(table_name);
CREATE INDEX IF NOT EXISTS idx_audit_logs_record_id ON audit_logs(record_id);
CREATE INDEX IF NOT EXISTS idx_audit_logs_logged_at ON audit_logs(logged_at);

CREATE TABLE IF NOT EXISTS activity_logs (
    id          TEXT PRIMARY KEY,
    action      TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    entity_id   TEXT NOT NULL,
    entity_name TEXT NOT NULL DEFAULT '',
    user_email  TEXT NOT NULL DEFAULT '',
    logged_at   TEXT NOT NULL,
    details     TEXT NOT NULL DEFAULT '',
    severity    TEXT NOT NULL DEFAULT 'info'
);
CREATE INDEX IF NOT EXISTS idx_activity_logs_logged_at ON activity_logs(logged_at);

CREATE TABLE IF NOT EXISTS operators (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    name          TEXT NOT NULL,
    role          TEXT NOT NULL DEFAULT 'viewer',
    is_active     INTEGER NOT NULL DEFAULT 1,
    created_at    TEXT NOT NULL,
    updated_at    TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_operators_email ON operators(email);

CREATE TABLE IF NOT EXISTS refresh_tokens (
    id          TEXT PRIMARY KEY,
    operator_id TEXT NOT NULL REFERENCES operators(id) ON DELETE CASCADE,
    token_hash  TEXT NOT NULL,
    expires_at  TEXT NOT NULL,
    created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_operator_id ON refresh_tokens(operator_id);
CREATE INDEX IF NOT EXISTS idx_refresh_tokens_token_hash ON refresh_tokens(token_hash);
`

// createSchema executes each statement separately; the pgx driver does not
// accept several statements with the extended protocol.
func createSchema(ctx context.Context, s *SQLStore) error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}
