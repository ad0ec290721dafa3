package detection

import (
	"slices"
)

// topScores is how many of the highest contributing confidences are
// averaged into a merged detection.
const topScores = 3

// Merge collapses temporally overlapping or touching detections of the same
// label into single detections.
//
// maxConsecutive caps how many original detections one merged detection may
// represent; nil means no cap and a cap of 0 or 1 returns an unchanged copy.
// Per label, detections are ordered by start time (stable) and scanned once:
// the next detection joins the current run while it starts at or before the
// run's end and the cap allows its count. The merged range runs from the
// first start to the last absorbed end and its confidence is the mean of
// the three highest absorbed confidences. Detections already carrying a
// count are never split, which makes Merge idempotent.
func Merge(set *Set, maxConsecutive *int) *Set {
	if maxConsecutive != nil && *maxConsecutive <= 1 {
		return set.Clone()
	}

	var (
		labels  []string
		byLabel = make(map[string][]Detection)
	)
	for _, d := range set.Detections() {
		if _, ok := byLabel[d.Label]; !ok {
			labels = append(labels, d.Label)
		}
		byLabel[d.Label] = append(byLabel[d.Label], d)
	}

	var merged []Detection
	for _, label := range labels {
		dets := byLabel[label]
		slices.SortStableFunc(dets, func(a, b Detection) int {
			return compareFloat(a.Range.Start, b.Range.Start)
		})
		merged = append(merged, mergeRuns(dets, maxConsecutive)...)
	}

	// label order is preserved for equal start times
	slices.SortStableFunc(merged, func(a, b Detection) int {
		return compareFloat(a.Range.Start, b.Range.Start)
	})

	out := NewSet()
	for _, d := range merged {
		out.AddPrediction(d.Range, d.Prediction)
	}
	return out
}

// mergeRuns merges start-sorted detections of one label.
func mergeRuns(dets []Detection, maxConsecutive *int) []Detection {
	var out []Detection
	for i := 0; i < len(dets); {
		acc := dets[i]
		scores := []float64{acc.Confidence}

		j := i + 1
		for ; j < len(dets); j++ {
			next := dets[j]
			if next.Range.Start > acc.Range.End {
				break
			}
			if maxConsecutive != nil && acc.Count+next.Count > *maxConsecutive {
				break
			}
			acc.Range.End = next.Range.End
			acc.Count += next.Count
			scores = append(scores, next.Confidence)
		}

		if j > i+1 {
			acc.Confidence = topMean(scores)
		}
		out = append(out, acc)
		i = j
	}
	return out
}

// topMean averages the highest topScores values.
func topMean(scores []float64) float64 {
	sorted := slices.Clone(scores)
	slices.SortFunc(sorted, func(a, b float64) int { return compareFloat(b, a) })
	sorted = sorted[:min(topScores, len(sorted))]

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	return sum / float64(len(sorted))
}
