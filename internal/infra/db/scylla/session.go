package scylla

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gocql/gocql"

	"chatrelay/internal/infra/config"
)

// NewSession creates the keyspace and tables when missing and returns a
// session bound to the keyspace.
func NewSession(ctx context.Context, cfg config.ScyllaConfig, logger *slog.Logger) (*gocql.Session, error) {
	base, err := newCluster(cfg, "").CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to scylla: %w", err)
	}
	defer base.Close()

	keyspace := fmt.Sprintf(
		"CREATE KEYSPACE IF NOT EXISTS %s WITH replication = {'class': 'SimpleStrategy', 'replication_factor': %d}",
		cfg.Keyspace, cfg.ReplicationFactor,
	)
	if err := base.Query(keyspace).WithContext(ctx).Exec(); err != nil {
		return nil, fmt.Errorf("create keyspace: %w", err)
	}

	session, err := newCluster(cfg, cfg.Keyspace).CreateSession()
	if err != nil {
		return nil, fmt.Errorf("connect to keyspace %s: %w", cfg.Keyspace, err)
	}
	for _, stmt := range schema(cfg.Keyspace) {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			session.Close()
			return nil, fmt.Errorf("create tables: %w", err)
		}
	}
	if logger != nil {
		logger.Info("scylla connected", "hosts", cfg.Hosts, "keyspace", cfg.Keyspace)
	}
	return session, nil
}

func newCluster(cfg config.ScyllaConfig, keyspace string) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = cfg.Consistency
	cluster.Timeout = cfg.Timeout
	cluster.ConnectTimeout = cfg.Timeout
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	return cluster
}

// schema keeps the conversation in one partition per pair, clustered by a
// time-based id, and indexes unread messages by receiver so neither read path
// needs ALLOW FILTERING.
func schema(keyspace string) []string {
	return []string{
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.messages_by_pair (
	pair_key text,
	message_id timeuuid,
	sender_id text,
	receiver_id text,
	text text,
	image_ref text,
	is_read boolean,
	created_at timestamp,
	PRIMARY KEY (pair_key, message_id)
) WITH CLUSTERING ORDER BY (message_id ASC);`, keyspace),
		fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.unread_by_receiver (
	receiver_id text,
	sender_id text,
	message_id timeuuid,
	PRIMARY KEY ((receiver_id), sender_id, message_id)
);`, keyspace),
	}
}
