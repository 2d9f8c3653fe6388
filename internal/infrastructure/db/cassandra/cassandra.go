// Package cassandra owns the Cassandra connection, schema, and repositories.
//
// The session handle is created once in main and injected into every
// repository; there is no package-level singleton. Connecting with an empty
// keyspace is allowed so keyspace DDL can run before the keyspace exists.
package cassandra

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/gocql/gocql"
)

const defaultTimeout = 10 * time.Second

var identPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Config captures the settings required to establish a Cassandra session.
type Config struct {
	Hosts       []string
	Keyspace    string // empty binds no keyspace (DDL bootstrap)
	Consistency string
	Timeout     time.Duration
}

// ReplicationSpec describes keyspace replication for EnsureKeyspace.
type ReplicationSpec struct {
	Class  string
	Factor int
}

// CQL renders the replication map literal for a CREATE KEYSPACE statement.
func (r ReplicationSpec) CQL() string {
	class := r.Class
	if class == "" {
		class = "SimpleStrategy"
	}
	factor := r.Factor
	if factor <= 0 {
		factor = 1
	}
	return fmt.Sprintf("{'class': '%s', 'replication_factor': %d}", class, factor)
}

// Connect establishes a Cassandra session and verifies connectivity with a
// trivial read. Connection failures are fatal to the caller; there is no
// internal retry loop.
func Connect(ctx context.Context, cfg Config) (*gocql.Session, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	cluster := gocql.NewCluster(cfg.Hosts...)
	cluster.Keyspace = cfg.Keyspace
	cluster.Timeout = timeout
	cluster.ConnectTimeout = timeout

	if cfg.Consistency != "" {
		consistency, err := gocql.ParseConsistencyWrapper(cfg.Consistency)
		if err != nil {
			return nil, fmt.Errorf("cassandra consistency: %w", err)
		}
		cluster.Consistency = consistency
	} else {
		cluster.Consistency = gocql.Quorum
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra connect: %w", err)
	}

	if _, err := HealthCheck(ctx, session); err != nil {
		session.Close()
		return nil, err
	}
	return session, nil
}

// HealthCheck executes a trivial read against system.local and returns the
// server-derived time from the resulting timeuuid.
func HealthCheck(ctx context.Context, session *gocql.Session) (time.Time, error) {
	var id gocql.UUID
	if err := session.Query(`SELECT now() FROM system.local`).WithContext(ctx).Scan(&id); err != nil {
		return time.Time{}, fmt.Errorf("cassandra ping: %w", err)
	}
	return id.Time(), nil
}

// EnsureKeyspace issues an idempotent CREATE KEYSPACE IF NOT EXISTS. The
// session must not be bound to the keyspace being created. The keyspace name
// is spliced into DDL (CQL has no placeholder there), so it is validated as a
// bare identifier first.
func EnsureKeyspace(ctx context.Context, session *gocql.Session, keyspace string, replication ReplicationSpec) error {
	if err := validateIdent(keyspace); err != nil {
		return err
	}
	stmt := fmt.Sprintf("CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = %s", keyspace, replication.CQL())
	if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("create keyspace %s: %w", keyspace, err)
	}
	return nil
}

func validateIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid keyspace name %q", name)
	}
	return nil
}
