// Package filter implements content-visibility filtering for timeline
// candidates: blocked and muted authors, deleted notes, and recently
// delivered notes are removed before ranking.
//
// The filter degrades rather than fails. When the social graph is
// unreachable it reuses recent block verdicts within a grace window
// (excluding authors a fresh verdict marked blocked) and otherwise lets
// candidates through while flagging the result degraded. Callers surface
// the flag as page metadata so clients can distinguish a complete
// timeline from a best-effort one.
package filter
