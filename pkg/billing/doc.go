// Package billing tracks per-company subscription state and processes
// payment provider webhooks. Webhook delivery is at-least-once, so every
// event carries an external id and is applied at most once.
package billing
