package domain

// StageTiming is one entry of the per-stage latency breakdown.
type StageTiming struct {
	Stage   string `json:"stage"`
	Millis  int64  `json:"ms"`
	Skipped bool   `json:"skipped,omitempty"`
}

// SearchResponse is the terminal result of one pipeline run. Every run
// resolves to one of these, degraded or not; there is no failure shape.
type SearchResponse struct {
	Results            []ServiceCandidate `json:"results"`
	Location           *ResolvedLocation  `json:"location,omitempty"`
	Degraded           bool               `json:"degraded"`
	DegradationReasons []string           `json:"degradation_reasons,omitempty"`
	FiltersApplied     []string           `json:"filters_applied,omitempty"`
	Stages             []StageTiming      `json:"stages,omitempty"`
	Cached             bool               `json:"cached"`
	TotalMS            int64              `json:"total_ms"`
}
