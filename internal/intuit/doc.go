// Package intuit implements the QuickBooks Online OAuth token lifecycle and a
// read-only receipts client.
//
// Lifecycle owns the stored token record: it performs the authorization-code
// exchange on connect, decides when the record is stale (60 second safety
// margin before expiry) and drives the refresh-token exchange on demand.
// Concurrent refreshes are collapsed into a single flight per realm.
//
// Client uses a valid token to query SalesReceipt records and normalizes them
// for the frontend, retrying exactly once on an upstream 401.
package intuit
