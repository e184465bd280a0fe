// Package history persists snapshots of the latest meter readings.
//
// History is a downstream collaborator of the ingest core. It never sees the
// inbound message stream. Instead it copies what the Store holds at a point
// in time:
//
//   - on demand, through Persister.PersistSnapshot (the API's save endpoint)
//   - periodically, through Persister.Run, for every apartment with data
//
// Two Repository implementations are provided: SQLiteRepository for the
// single-file deployment and PostgresRepository (pgx) for shared databases.
// Both order Recent newest first and clamp the limit to [1, MaxLimit].
package history
