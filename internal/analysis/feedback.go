package analysis

import "sort"

// FaultsAboveThreshold keeps faults with severity at or above threshold,
// ordered most severe first. An empty return means no feedback should be
// generated for the frame.
func FaultsAboveThreshold(faults []Fault, threshold float64) []Fault {
	kept := make([]Fault, 0, len(faults))
	for _, f := range faults {
		if f.Severity >= threshold {
			kept = append(kept, f)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Severity > kept[j].Severity })
	return kept
}
