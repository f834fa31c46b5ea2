package planner

import "github.com/graphd/graphd/pkg/graphview"

// Stats is the catalog-statistics surface the cost model reads from: a
// per-label row count and an average out/in fan-out for a label pair
// (§4.4, §9's per-label-counter resolution — see pkg/graphview's
// labelIndex, which backs CountLabel with a bitmap cardinality rather than
// a separately maintained counter).
type Stats interface {
	CountLabel(label string) (uint64, error)
	AvgFanOut(label, edgeLabel string, dir graphview.Direction) (float64, error)
}

// ViewStats adapts a graphview.View into Stats. Fan-out is estimated by
// sampling a small prefix of the label's vertex set rather than scanning
// every vertex's adjacency, since the cost model only needs an order-of-
// magnitude estimate, not an exact average.
type ViewStats struct {
	View *graphview.View
}

const fanOutSampleSize = 32

// CountLabel returns the number of vertices carrying label.
func (s ViewStats) CountLabel(label string) (uint64, error) {
	return s.View.CountLabel(label)
}

// AvgFanOut estimates the average number of edgeLabel-labeled edges (in
// direction dir) incident to a vertex carrying label, sampling up to
// fanOutSampleSize vertices.
func (s ViewStats) AvgFanOut(label, edgeLabel string, dir graphview.Direction) (float64, error) {
	ids, err := s.View.ScanLabel(label)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	sample := ids
	if len(sample) > fanOutSampleSize {
		sample = sample[:fanOutSampleSize]
	}
	var total int
	for _, id := range sample {
		n, err := s.View.Degree(id, edgeLabel, dir)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return float64(total) / float64(len(sample)), nil
}
