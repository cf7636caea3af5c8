// Package records provides the client-side persistence layer for form
// records and their upload state.
//
// # Data Model
//
// Each row holds a sealed form payload (ciphertext + nonce) and plaintext sync
// columns: draft flag, server identifiers, last error message and error kind.
// has_server_info distinguishes "the server never saw this record" from "the
// server has it but we know little about it", which matters because a record
// with server info must never be posted again.
//
// Every upload attempt is also appended to upload_attempts.
//
// The repository works over dbx.DBTX, so callers that need several writes to
// land together run it inside dbx.WithTx.
package records
