package arena

import "github.com/nodecore/ledgercore/params"

// Window is the tick-number range tracked by a TickTransactionsStorage
// (and, by composition, by TickStorage's parallel tickData/ticks
// arrays). Slot numbering is shared across every per-tick structure:
// current-epoch ticks occupy [0, MaxTicksPerEpoch), and the preserved
// prior-epoch tail occupies [MaxTicksPerEpoch, MaxTicksPerEpoch+
// TicksKeptFromPriorEpoch).
type Window struct {
	TickBegin    uint32
	TickEnd      uint32
	OldTickBegin uint32
	OldTickEnd   uint32
}

// InCurrent reports whether t falls in the current-epoch half-open
// range [TickBegin, TickEnd).
func (w Window) InCurrent(t uint32) bool {
	return t >= w.TickBegin && t < w.TickEnd
}

// InPrevious reports whether t falls in the preserved prior-epoch
// half-open range [OldTickBegin, OldTickEnd).
func (w Window) InPrevious(t uint32) bool {
	return t >= w.OldTickBegin && t < w.OldTickEnd
}

// Slot returns the shared per-tick slot index for t and whether t is
// addressable at all (in either region).
func (w Window) Slot(t uint32) (slot int, ok bool) {
	if w.InCurrent(t) {
		return int(t - w.TickBegin), true
	}
	if w.InPrevious(t) {
		return params.MaxTicksPerEpoch + int(t-w.OldTickBegin), true
	}
	return 0, false
}

// ComputeNextWindow applies spec §4.A's epoch transition algorithm to
// derive the new window from the current one and the new epoch's first
// tick t0. firstCall is true only on the very first BeginEpoch call for
// a freshly constructed storage (cold start, no prior window to
// preserve).
func ComputeNextWindow(prev Window, t0 uint32, firstCall bool) (next Window, seamless bool) {
	seamless = !firstCall && prev.InCurrent(t0) && prev.TickBegin < t0
	if seamless {
		oldTickBegin := prev.TickBegin
		bound := uint32(0)
		if t0 > uint32(params.TicksKeptFromPriorEpoch) {
			bound = t0 - uint32(params.TicksKeptFromPriorEpoch)
		}
		if bound > oldTickBegin {
			oldTickBegin = bound
		}
		next = Window{
			TickBegin:    t0,
			TickEnd:      t0 + params.MaxTicksPerEpoch,
			OldTickBegin: oldTickBegin,
			OldTickEnd:   t0,
		}
		return next, true
	}
	next = Window{
		TickBegin:    t0,
		TickEnd:      t0 + params.MaxTicksPerEpoch,
		OldTickBegin: 0,
		OldTickEnd:   0,
	}
	return next, false
}
