package entities

import "time"

// Sample is one timestamped observation in a numeric series.
type Sample struct {
	Timestamp time.Time
	Value     float64
}

// ForecastSeries is an append-only, timestamp-ordered numeric series
// (e.g. daily sales totals, monthly expenses per department).
type ForecastSeries struct {
	ID      string
	Samples []Sample // Ordered ascending by timestamp
}

// Len returns the number of samples.
func (s *ForecastSeries) Len() int { return len(s.Samples) }

// Values returns the sample values in timestamp order.
func (s *ForecastSeries) Values() []float64 {
	vs := make([]float64, len(s.Samples))
	for i, sm := range s.Samples {
		vs[i] = sm.Value
	}
	return vs
}

// Interval returns the median spacing between consecutive samples, used to
// extend timestamps into the forecast horizon. Series with fewer than two
// samples report a zero interval.
func (s *ForecastSeries) Interval() time.Duration {
	if len(s.Samples) < 2 {
		return 0
	}
	gaps := make([]time.Duration, 0, len(s.Samples)-1)
	for i := 1; i < len(s.Samples); i++ {
		gaps = append(gaps, s.Samples[i].Timestamp.Sub(s.Samples[i-1].Timestamp))
	}
	// Insertion sort: the slice is small and usually nearly uniform.
	for i := 1; i < len(gaps); i++ {
		for j := i; j > 0 && gaps[j] < gaps[j-1]; j-- {
			gaps[j], gaps[j-1] = gaps[j-1], gaps[j]
		}
	}
	return gaps[len(gaps)/2]
}

// EmbeddingRecord is the vector representation of one business record
// version, held by the embedding index.
type EmbeddingRecord struct {
	RecordID string
	Vector   []float32
	Metadata map[string]interface{}
}
