// Package tokenstore provides persistent storage for the current QuickBooks
// OAuth token record.
//
// Exactly one record is "current" at any time: Save supersedes all prior
// records and LoadLatest returns the most recent successful Save. Three
// backends are supported with different deployment tradeoffs:
//   - Postgres: authoritative when a database DSN is configured
//   - File: single JSON file fallback with atomic writes and secure permissions
//   - Keyring: OS-native credential storage for local development
//
// The backend is selected once at process start and never switched at runtime.
package tokenstore
