package scoring

import "sort"

// Summary is the read-model derived from an answer list. Only answers with a
// defined score contribute to the statistics; unscored answers still exist in
// the answer list but are invisible here.
type Summary struct {
	Min            *float64  `json:"min,omitempty"`
	Max            *float64  `json:"max,omitempty"`
	Sum            float64   `json:"sum"`
	Mean           *float64  `json:"mean,omitempty"`
	Median         *float64  `json:"median,omitempty"`
	Medians        []float64 `json:"medians"`
	ScoreFrequency int       `json:"scoreFrequency"`
}

// Summarize computes the score statistics for an answer list.
//
// Median is the element at index n>>1 of the ascending score list: for even
// n this is the upper-middle element, not an average. Medians returns both
// middle elements when n is even and they differ. The nearest-rank behavior
// is intentional; downstream consumers render the raw observed values.
func Summarize(answers []*Answer) *Summary {
	scores := make([]float64, 0, len(answers))
	for _, a := range answers {
		if a.Score != nil {
			scores = append(scores, *a.Score)
		}
	}
	sort.Float64s(scores)

	s := &Summary{Medians: []float64{}}
	n := len(scores)
	s.ScoreFrequency = n
	if n == 0 {
		return s
	}

	minScore := scores[0]
	maxScore := scores[n-1]
	s.Min = &minScore
	s.Max = &maxScore
	for _, v := range scores {
		s.Sum += v
	}
	mean := s.Sum / float64(n)
	s.Mean = &mean

	median := scores[n>>1]
	s.Median = &median

	if n%2 == 0 {
		lower, upper := scores[n/2-1], scores[n/2]
		if lower != upper {
			s.Medians = []float64{lower, upper}
		} else {
			s.Medians = []float64{lower}
		}
	} else {
		s.Medians = []float64{scores[n/2]}
	}
	return s
}
