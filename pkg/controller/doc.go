// Package controller orchestrates the timeline read path.
//
// A request flows through fan-in (every source adapter queried in
// parallel, each under its own timeout), merge and dedup, visibility
// filtering, ranking, and cursor pagination, with the cache short-
// circuiting the whole pipeline on a hit. Failures along the way
// degrade the page and flag it in metadata; a request only fails
// outright when the viewer is rate limited or every candidate source
// is lost at once.
//
// Pagination cursors are (score, note ID) resume keys, not offsets.
// Under the ordering invariant (score descending, note ID ascending)
// a key-based resume neither skips nor repeats surviving entries when
// the underlying sequence is patched between pages.
package controller
