// Package sessionservice is grounded on the teacher's internal/session
// Service: a storage-backed map of session documents, each rewritten to
// disk in full after every mutation, with one mutex-guarded map entry
// per session rather than a single package-wide lock. Where the teacher
// drove its own agentic loop directly, this package instead hands edit
// work to a session-scoped symbolhub.Hub and tracks per-exchange
// cancellation tokens the way the teacher tracked per-session abort
// channels.
package sessionservice
