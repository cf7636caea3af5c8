// Package client contains the sync client's transport and local database
// bootstrap.
//
// # Overview
//
//  1. The Client interface: login, ping, the two upload stages (PostForm and
//     GetLocation/GetObject) and the lookup endpoints.
//  2. RESTClient, the HTTP/JSON implementation. It holds the token pair
//     under a mutex, refreshes the access token before it expires and once
//     more on a 401, retries idempotent GETs with exponential backoff and
//     maps HTTP statuses to sentinel errors in one place (mapStatus).
//  3. InitDatabase and RunMigrations, which open the SQLite store and apply
//     the embedded goose migrations.
//
// # Error Handling
//
// Callers match ErrUnavailable, ErrUnauthorized, ErrPending and
// common.ErrNotFound with errors.Is, and *ValidationError with errors.As.
package client
