package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/usagecast/usagecast/core/model"
)

// SQLite persists the notification configuration in a SQLite database. Rows
// keep the full record as JSON next to the columns used for lookups, so
// schema growth never needs a migration of the payload.
type SQLite struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS resources (
    id INTEGER PRIMARY KEY,
    record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mqtt_servers (
    id INTEGER PRIMARY KEY,
    record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mqtt_configs (
    id INTEGER PRIMARY KEY,
    resource_id INTEGER NOT NULL,
    record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS webhook_configs (
    id INTEGER PRIMARY KEY,
    resource_id INTEGER NOT NULL,
    active INTEGER NOT NULL,
    record TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_mqtt_configs_resource ON mqtt_configs(resource_id);
CREATE INDEX IF NOT EXISTS idx_webhook_configs_resource ON webhook_configs(resource_id);
`

// NewSQLite opens or creates the database at path and ensures the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLite{db: db}, nil
}

// PutResource inserts or replaces a resource.
func (s *SQLite) PutResource(ctx context.Context, r model.Resource) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO resources (id, record) VALUES (?, ?)`, r.ID, string(b))
	return err
}

// PutMQTTServer inserts or replaces a broker definition.
func (s *SQLite) PutMQTTServer(ctx context.Context, srv model.MQTTServer) error {
	b, err := json.Marshal(srv)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO mqtt_servers (id, record) VALUES (?, ?)`, srv.ID, string(b))
	return err
}

// PutMQTTConfig inserts or replaces a resource-to-broker binding.
func (s *SQLite) PutMQTTConfig(ctx context.Context, c model.MQTTConfig) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO mqtt_configs (id, resource_id, record) VALUES (?, ?, ?)`,
		c.ID, c.ResourceID, string(b))
	return err
}

// PutWebhookConfig inserts or replaces a webhook binding.
func (s *SQLite) PutWebhookConfig(ctx context.Context, c model.WebhookConfig) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	active := 0
	if c.Active {
		active = 1
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO webhook_configs (id, resource_id, active, record) VALUES (?, ?, ?, ?)`,
		c.ID, c.ResourceID, active, string(b))
	return err
}

// GetResource returns the resource or nil when unknown.
func (s *SQLite) GetResource(ctx context.Context, id int) (*model.Resource, error) {
	var r model.Resource
	if err := s.getRecord(ctx, `SELECT record FROM resources WHERE id = ?`, id, &r); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &r, nil
}

// GetMQTTServer returns the broker definition or nil when unknown.
func (s *SQLite) GetMQTTServer(ctx context.Context, id int) (*model.MQTTServer, error) {
	var srv model.MQTTServer
	if err := s.getRecord(ctx, `SELECT record FROM mqtt_servers WHERE id = ?`, id, &srv); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &srv, nil
}

// GetMQTTConfigs returns the bindings of a resource ordered by id.
func (s *SQLite) GetMQTTConfigs(ctx context.Context, resourceID int) ([]model.MQTTConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM mqtt_configs WHERE resource_id = ? ORDER BY id`, resourceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.MQTTConfig
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c model.MQTTConfig
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("unmarshal mqtt config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetWebhookConfigs returns the active webhook bindings of a resource
// ordered by id.
func (s *SQLite) GetWebhookConfigs(ctx context.Context, resourceID int) ([]model.WebhookConfig, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM webhook_configs WHERE resource_id = ? AND active = 1 ORDER BY id`, resourceID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.WebhookConfig
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var c model.WebhookConfig
		if err := json.Unmarshal([]byte(data), &c); err != nil {
			return nil, fmt.Errorf("unmarshal webhook config: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetWebhookConfig returns the webhook binding by id, active or not.
func (s *SQLite) GetWebhookConfig(ctx context.Context, id int) (*model.WebhookConfig, error) {
	var c model.WebhookConfig
	if err := s.getRecord(ctx, `SELECT record FROM webhook_configs WHERE id = ?`, id, &c); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

func (s *SQLite) getRecord(ctx context.Context, query string, id int, dst any) error {
	var data string
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&data); err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dst)
}

// Close closes the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }
