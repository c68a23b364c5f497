// Package database provides SQLite storage for the video optimizer's job
// history.
//
// It records one row per finished job (outcome, parameters, sizes, probed
// output dimensions and elapsed time) and serves the recent-jobs and stats
// API endpoints. Rows older than the configured retention are pruned
// periodically.
//
// The database uses WAL mode for improved concurrent read performance
// and includes automatic schema initialization.
package database
