package model

// Impact grades how disruptive a detected change is
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// DetectedChange is one metric whose delta between two consecutive
// snapshots exceeded its change threshold.
type DetectedChange struct {
	Metric         string  `json:"metric"`
	Previous       float64 `json:"previous"`
	Current        float64 `json:"current"`
	Delta          float64 `json:"delta"`
	Impact         Impact  `json:"impact"`
	Recommendation string  `json:"recommendation"`
}
