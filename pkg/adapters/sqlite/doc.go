// Package sqlite stores checkpoints and thread records in a SQLite database.
//
// Every Put appends a row to the checkpoints table, so the full lineage of a
// thread is available for inspection and the latest row is the live state.
// The same database holds the threads archive used by the session layer.
package sqlite
