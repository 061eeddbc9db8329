package model

// Wire payloads of the exposed HTTP surface and of the deliveries this
// service makes to caller endpoints.

// AnalyzePayload is the submission request body.
type AnalyzePayload struct {
	ID        string           `json:"id,omitempty"`
	URLs      []string         `json:"urls"`
	Callback  Target           `json:"callback"`
	Heartbeat *HeartbeatConfig `json:"heartbeat,omitempty"`
}

// AnalyzeResponse is returned immediately on submission, before any
// resolution work happens.
type AnalyzeResponse struct {
	ID        string `json:"id"`
	StatusURL string `json:"statusUrl"`
	CancelURL string `json:"cancelUrl"`
}

// AnalysisReport is the single terminal callback body. Exactly one of
// Results or ErrorMessage is meaningful, selected by Success.
type AnalysisReport struct {
	Success      bool           `json:"success"`
	ID           string         `json:"id"`
	URL          string         `json:"url,omitempty"`
	Results      []FinderResult `json:"results,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
}
