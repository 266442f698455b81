// Package telemetry records retrieval and generation events locally.
// Nothing is reported externally; the store is a single SQLite file.
package telemetry

import "time"

// Source identifies which path produced a listing.
type Source string

const (
	SourceGenerated Source = "generated"
	SourceFallback  Source = "fallback"
	// SourceDirect marks a raw generate call that did not go through the
	// listing service.
	SourceDirect Source = "direct"
)

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// RetrievalEvent describes one Retrieve call.
type RetrievalEvent struct {
	Query      string
	K          int
	Candidates int // over-fetched neighbors
	Matched    int // candidates passing the filters
	Returned   int
	Fallback   bool
	Filters    int // non-null filter keys
	Duration   time.Duration
	Timestamp  time.Time
}

// GenerationEvent describes one generation attempt.
type GenerationEvent struct {
	Backend   string
	Model     string
	Success   bool
	ErrorCode string // empty on success
	Source    Source
	Reason    string // why the fallback path was taken
	Duration  time.Duration
	Timestamp time.Time
}

// Summary aggregates recorded events.
type Summary struct {
	Retrievals          int                     `json:"retrievals"`
	Fallbacks           int                     `json:"fallbacks"`
	AvgRetrievalMs      float64                 `json:"avg_retrieval_ms"`
	Generations         int                     `json:"generations"`
	GenerationFailures  map[string]int          `json:"generation_failures,omitempty"`
	Listings            map[Source]int          `json:"listings,omitempty"`
	LatencyDistribution map[LatencyBucket]int64 `json:"latency_distribution,omitempty"`
	RecentFallbacks     []string                `json:"recent_fallbacks,omitempty"`
	Since               time.Time               `json:"since"`
}

// FallbackRate returns the share of retrievals that fell back to unfiltered
// results, as a percentage.
func (s *Summary) FallbackRate() float64 {
	if s.Retrievals == 0 {
		return 0
	}
	return float64(s.Fallbacks) / float64(s.Retrievals) * 100
}
