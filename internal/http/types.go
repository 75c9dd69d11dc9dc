package http

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// FeatureSummary is one feature in GET /api/v1/features.
type FeatureSummary struct {
	Slug   string `json:"slug"`
	Target string `json:"target"`
}

// FeaturesResponse is the body of GET /api/v1/features.
type FeaturesResponse struct {
	Features []FeatureSummary `json:"features"`
}
