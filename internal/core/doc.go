// Package core provides the ingest operations behind the HTTP API and the
// CLI.
//
// It is independent of any transport: handlers and commands decode the
// upload with package input and hand the raw table to a [Service].
//
// # Flow
//
//  1. The entity name selects a schema from the [schema.Registry].
//  2. The raw table is validated against it. Invalid rows are reported per
//     column and excluded; the surviving rows form a typed dataset.
//  3. [Service.Validate] stops here. [Service.Ingest] rejects any input
//     whose report is not empty with a [ValidationFailedError], and
//     otherwise saves the dataset through the [persist.Engine].
//
// Ingests run under an optional [IngestLimiter] so a burst of uploads
// cannot exhaust database connections.
//
// # Error Handling
//
// Technical errors are mapped to user-friendly messages using [MapError].
// See error_messages.go for the code reference.
package core
