// Package analytics tracks topic-query events and publishes them to Kafka
// for offline analysis of how users steer the model.
package analytics

import "time"

// Event types emitted by the topic API.
const (
	EventTopicQuery     = "topic_query"
	EventDefaultAnchors = "default_anchors"
	EventSessionSaved   = "session_saved"
)

// QueryEvent describes one topic query.
type QueryEvent struct {
	Type          string    `json:"type"`
	AnchorSource  string    `json:"anchor_source"` // default | supplied
	NumAnchors    int       `json:"num_anchors"`
	NumTopics     int       `json:"num_topics"`
	CacheHit      bool      `json:"cache_hit"`
	LatencyMs     int64     `json:"latency_ms"`
	RequestID     string    `json:"request_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	FailedTerm    string    `json:"failed_term,omitempty"`
	OutcomeStatus int       `json:"outcome_status"`
}
