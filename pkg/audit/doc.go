// Package audit records tenant-scoped mutations in an append-only trail.
//
// # Overview
//
// Every mutation handler builds a Record with NewRecord and hands it to an
// Emitter. The AsyncEmitter queues records on a bounded channel drained by a
// small worker pool, so persisting the trail never blocks or fails the
// mutation that produced it. Records that cannot be written are logged and
// counted in warden_audit_emission_failures_total.
//
// # Sinks
//
//   - DBSink inserts into audit_records under the record's own tenant scope
//   - LogSink streams JSON lines through logrus
//   - MultiSink fans out to several sinks
//
// The audit_records table rejects UPDATE, DELETE and TRUNCATE with a trigger.
//
// # Reading
//
// Store.Search reads one tenant's records, newest first, through the
// read-only isolation path. Export renders them as JSON, NDJSON or CSV.
//
// # Usage Example
//
//	rec := audit.NewRecord(r, audit.ActionMemberAdd, audit.TargetMembership, userID.String())
//	rec.Metadata = map[string]interface{}{"role": "admin"}
//	emitter.Emit(r.Context(), rec)
package audit
