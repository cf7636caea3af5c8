// Package cli provides the interactive data-collection client.
//
// It wires configuration, local storage, the forms API client and the sync
// worker behind a REPL that works online and offline. Typical flow: prompt
// for credentials (online login with offline fallback), start the background
// sync worker, then execute user commands.
//
// Commands:
//   - login / logout
//   - add, edit, list, show, delete and history of local records
//   - sync, status and backup
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
