package cassandra

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"
)

// Both tables are keyed for point lookup only; no secondary indexes. The
// sessions table cannot serve "expire_date < ?" server-side, which is why
// expiry is checked client-side and swept by full scan.
var tableDDL = []string{
	`CREATE TABLE IF NOT EXISTS credentials (
		username text PRIMARY KEY,
		password_hash text,
		email text,
		first_name text,
		last_name text,
		is_staff boolean,
		is_active boolean,
		is_superuser boolean,
		groups set<text>,
		user_permissions set<text>,
		last_login timestamp,
		date_joined timestamp
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		session_key text PRIMARY KEY,
		session_data text,
		expire_date timestamp
	)`,
}

// CreateTables issues CREATE TABLE IF NOT EXISTS for every table the module
// uses. Safe to call repeatedly; the session must be bound to the target
// keyspace.
func CreateTables(ctx context.Context, session *gocql.Session) error {
	for _, stmt := range tableDDL {
		if err := session.Query(stmt).WithContext(ctx).Exec(); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	return nil
}
