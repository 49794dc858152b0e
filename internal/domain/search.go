package domain

import "time"

type SearchResponse struct {
	Results   []Hit            `json:"results"`
	Scores    []float64        `json:"scores"`
	Providers []ProviderStatus `json:"providers"`
	ElapsedMS int64            `json:"elapsedMs"`
	Cached    bool             `json:"cached,omitempty"`
}

// Ranked zips results with their scores.
func (r SearchResponse) Ranked() []ScoredHit {
	out := make([]ScoredHit, 0, len(r.Results))
	for i, hit := range r.Results {
		score := 0.0
		if i < len(r.Scores) {
			score = r.Scores[i]
		}
		out = append(out, ScoredHit{Hit: hit, Score: score})
	}
	return out
}

type ProviderInfo struct {
	Name    string `json:"name"`
	Label   string `json:"label"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

type ProviderStatus struct {
	Name  string `json:"name"`
	OK    bool   `json:"ok"`
	Count int    `json:"count"`
	Error string `json:"error,omitempty"`
}

type ProviderDiagnostics struct {
	Name                string     `json:"name"`
	Label               string     `json:"label"`
	Kind                string     `json:"kind"`
	Enabled             bool       `json:"enabled"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs,omitempty"`
	LastTimeout         bool       `json:"lastTimeout,omitempty"`
	TotalRequests       int64      `json:"totalRequests,omitempty"`
	TotalFailures       int64      `json:"totalFailures,omitempty"`
	TimeoutCount        int64      `json:"timeoutCount,omitempty"`
}
