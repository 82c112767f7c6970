package session

import (
	"github.com/greenview-analytics/greenview/pkg/types"
)

// State tracks every per-coordinate result of a session. It is mutated
// exclusively by the session's orchestration loop (single writer); workers
// hand their outcomes back over channels and never touch it.
type State struct {
	results []*types.AnalysisResult
}

// Counts summarizes how far the session's items have progressed. An item is
// counted once, under its furthest stage.
type Counts struct {
	Pending    int
	Downloaded int
	Analyzed   int
	Failed     int
}

// newState builds the state with one pending result per coordinate, in input
// order.
func newState(coords []types.Coordinate) *State {
	s := &State{
		results: make([]*types.AnalysisResult, len(coords)),
	}
	for i, c := range coords {
		s.results[i] = &types.AnalysisResult{
			Index:      i,
			Coordinate: c,
			Status:     types.StatusPending,
		}
	}
	return s
}

// Len returns the number of coordinates in the session.
func (s *State) Len() int {
	return len(s.results)
}

// Result returns the result record at the given sequence index.
func (s *State) Result(index int) *types.AnalysisResult {
	return s.results[index]
}

// Results returns all result records in input order.
func (s *State) Results() []*types.AnalysisResult {
	return s.results
}

// Counts tallies the current lifecycle status of every item.
func (s *State) Counts() Counts {
	var c Counts
	for _, r := range s.results {
		switch r.Status {
		case types.StatusPending, types.StatusDownloading:
			c.Pending++
		case types.StatusDownloaded, types.StatusAnalyzing:
			c.Downloaded++
		case types.StatusAnalyzed, types.StatusExported:
			c.Analyzed++
		case types.StatusFailed:
			c.Failed++
		}
	}
	return c
}
