// Package audit records security-relevant mutations to an append-only log.
// Sinks are best-effort from the caller's point of view: a failed write is
// logged and counted but never fails the mutation it describes.
package audit
