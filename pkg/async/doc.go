// Package async provides a bounded worker pool for background tasks.
//
// Tasks run with panic recovery and a per-task timeout. Shutdown drains
// queued tasks before returning, so best-effort work like audit writes is
// not lost on a clean exit.
package async
