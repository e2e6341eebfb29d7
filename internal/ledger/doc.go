// Package ledger persists finishing outcomes and the set of clip identifiers
// already counted by the metrics collector.
//
// The database is a single SQLite file under the state directory. Writes are
// retried briefly when SQLite reports the database as busy so that the
// supervisor, a finishing run and the metrics collector can share the file on
// one host.
package ledger
