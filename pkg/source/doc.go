/*
Package source defines the candidate source adapters.

An Adapter is a thin interface over an external content store that
returns unranked candidate posts for a viewer. The controller queries
all adapters in parallel, each call bounded by its own timeout nested
inside the overall request deadline; a slow or failed adapter's
candidates are omitted and the degradation is flagged in the response,
never escalated to a request failure.

Two adapters ship with the core:

  - FollowingAdapter: the graph-based follow feed (social graph plus
    note store)
  - DiscoveryAdapter: recent content from outside the viewer's follow
    graph

Further sources (trending, lists) plug in behind the same contract.
*/
package source
