/*
Package ranking implements the pluggable timeline scoring engine.

A Strategy turns a set of unranked candidates into a totally ordered
sequence of timeline entries. Three strategies ship with the core:

  - Chronological: newest first, the deterministic baseline
  - EngagementWeighted: weighted engagement signals with exponential
    time decay
  - Hybrid: a configurable linear blend of the two, and the default

The Registry selects a strategy by the algorithm enum carried in the
request; unknown values resolve to hybrid. Register() is the extension
seam: anything satisfying Strategy, including an external ML scorer,
can be substituted without touching the controller or the cache.

# Determinism and Ordering

Rank is a pure function of (now, candidates): calling it twice with the
same inputs yields byte-identical ordering. All strategies share one
comparator, (score desc, note ID asc); for chronological ranking the
score is the creation timestamp as a comparable value, so the same
comparator yields newest-first. The note-ID tie-break makes pagination
cursors deterministic even when scores collide.

# Scoring

The engagement score is

	normalized = w / (w + norm)        w = likes*wl + renotes*wr + replies*wp
	score      = normalized * 2^(-age/halfLife)

with weights, norm, and half-life from configuration (defaults: likes
1.0, renotes 2.0, replies 1.5, half-life 24h). Candidates with missing
counts score as zero engagement rather than being excluded. The hybrid
score blends the decay factor itself (the recency signal, already in
[0,1]) with the engagement score using the configured coefficient.
*/
package ranking
