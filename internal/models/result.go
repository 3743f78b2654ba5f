package models

// Passage is one retrieved chunk.
type Passage struct {
	Rank     int     `json:"rank"`
	Position int     `json:"position"`
	Score    float64 `json:"score"`
	Text     string  `json:"text"`
}

// RetrieveResponse is the response for a retrieve request.
type RetrieveResponse struct {
	Query     string     `json:"query"`
	Passages  []*Passage `json:"passages"`
	QueryTime int64      `json:"query_time_ms"`
}

// AskResponse is a generated answer and the passages it was grounded on.
type AskResponse struct {
	Question  string     `json:"question"`
	Answer    string     `json:"answer"`
	Model     string     `json:"model"`
	Passages  []*Passage `json:"passages"`
	QueryTime int64      `json:"query_time_ms"`
}

// AddResponse reports the outcome of ingesting a document.
type AddResponse struct {
	Document *Document `json:"document"`
	Skipped  bool      `json:"skipped"`
	Reason   string    `json:"reason,omitempty"`
	Size     int       `json:"index_size"`
}

// StatusResponse reports engine and storage state.
type StatusResponse struct {
	State          string `json:"state"`
	Chunks         int    `json:"chunks"`
	Dimensions     int    `json:"dimensions"`
	Model          string `json:"model"`
	IndexType      string `json:"index_type"`
	SnapshotIndex  string `json:"snapshot_index"`
	SnapshotChunks string `json:"snapshot_chunks"`
	Documents      int    `json:"documents"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
}

// RebuildResponse reports a completed index rebuild.
type RebuildResponse struct {
	Status     string `json:"status"`
	Chunks     int    `json:"chunks"`
	Dimensions int    `json:"dimensions"`
	TookMS     int64  `json:"took_ms"`
}
