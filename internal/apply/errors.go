// Package apply implements the change-application algorithm of spec
// §4.2: resolving a change's context positions against a channel's
// current graph, splitting vertices where context falls mid-range,
// writing new vertices and edges in the two-phase order the spec
// requires, and recording the bookkeeping apply needs for later
// unrecord/replay.
package apply

import "errors"

var (
	// ErrDependencyMissing is returned when a change references a
	// dependency hash the target channel has not applied (spec §4.2
	// Invariant "no dangling context": every position a change's atoms
	// reference must already exist on the channel").
	ErrDependencyMissing = errors.New("apply: dependency missing")

	// ErrAlreadyApplied is returned when the change's hash is already
	// recorded on the target channel.
	ErrAlreadyApplied = errors.New("apply: change already on channel")

	// ErrInvalidChange is returned when a change is structurally
	// malformed: an empty hunk, a new-vertex atom that is missing or
	// whose [Start, End) range is reversed or runs past Contents, or an
	// edge-map atom with no body. An edge-map atom naming an edge that
	// does not exist yet is not an error; the edge is inserted.
	ErrInvalidChange = errors.New("apply: invalid change")

	// ErrPartialContextMissing is returned when channelName is a
	// partial channel (spec §3 "partials" table) and the change touches
	// an inode outside every subtree root it has materialised — the
	// original's UnknownBlock handling for a region a shallow clone
	// deliberately never fetched, as distinct from ErrDependencyMissing's
	// "this hash was never heard of at all".
	ErrPartialContextMissing = errors.New("apply: change references content outside the channel's partial scope")
)
