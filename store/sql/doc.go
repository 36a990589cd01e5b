// Package sqlstore persists the watch activity audit trail with bun. The
// schema ships under data/sql/migrations for postgres and sqlite.
package sqlstore
