package entities

// InsightKind classifies an insight produced by the AI pipeline.
type InsightKind string

const (
	InsightSimilarity InsightKind = "similarity"
	InsightForecast   InsightKind = "forecast"
	InsightAnomaly    InsightKind = "anomaly"
)

// VisibilityScope is the permission question that gates an insight:
// the caller must be allowed to perform Action on Resource to see it.
type VisibilityScope struct {
	Action   string   `json:"action"`
	Resource Resource `json:"resource"`
}

// Insight is a scored, typed output item of the AI pipeline. Insights are
// ephemeral: computed per request and never persisted.
type Insight struct {
	SubjectResourceID string                 `json:"subject_resource_id"` // The resource the insight is about
	Kind              InsightKind            `json:"kind"`                // similarity, forecast, or anomaly
	Score             float64                `json:"score"`               // Normalized to [0,1], higher is stronger
	Payload           map[string]interface{} `json:"payload,omitempty"`   // Kind-specific details
	Degraded          bool                   `json:"degraded,omitempty"`  // True when produced via a fallback estimator
	Visibility        VisibilityScope        `json:"-"`                   // Permission gate, not part of the wire format
}
