// Package repositories implements SQLite persistence for all domain entities.
//
// Each repository handles CRUD operations with atomic sequence generation for stable ordering.
// Jobs and applications support soft deletes via deleted_at timestamps and exclude deleted records from queries by default.
//
// Key Implementations:
//   - [TransientRepository] : expiring key-value store holding the sync lock, checkpoints and cached decisions
//   - [JobRepository] : local job board with paged scans for duplicate detection
//   - [ApplicationRepository] : collected applicants waiting to be pushed to Bullhorn
//   - [SyncRunRepository] : sync run history across invocations
//
// Sequence numbers provide stable ordering independent of UUIDs and creation timestamps.
// The [NextSequence] function atomically increments per-table sequence counters in dedicated sequence tables.
package repositories
