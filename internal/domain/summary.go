package domain

import "time"

// Stage tags export artefacts.
type Stage string

const (
	StageExtracted   Stage = "extracted"
	StageTransformed Stage = "transformed"
)

// RunSummary describes one completed pipeline run. It is the payload of the
// report-published notification.
type RunSummary struct {
	Country    string    `json:"country"`
	MinYear    int       `json:"min_year"`
	MaxYear    int       `json:"max_year"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	IndicatorsFetched      int `json:"indicators_fetched"`
	IndicatorsRetained     int `json:"indicators_retained"`
	FetchBatches           int `json:"fetch_batches"`
	FailedBatches          int `json:"failed_batches"`
	DisasterEventsLoaded   int `json:"disaster_events_loaded"`
	DisasterEventsRetained int `json:"disaster_events_retained"`

	PagesRendered int `json:"pages_rendered"`
	PagesSkipped  int `json:"pages_skipped"`
	PagesFailed   int `json:"pages_failed"`

	ReportPath string            `json:"report_path"`
	Exports    map[string]string `json:"exports,omitempty"`
}

// NewRunSummary starts a summary stamped with the current time.
func NewRunSummary(country string, minYear, maxYear int) RunSummary {
	return RunSummary{
		Country:   country,
		MinYear:   minYear,
		MaxYear:   maxYear,
		StartedAt: clock.Now().UTC(),
		Exports:   make(map[string]string),
	}
}

// Finish stamps the completion time.
func (s *RunSummary) Finish() {
	s.FinishedAt = clock.Now().UTC()
}

// Duration is the wall time between start and finish.
func (s RunSummary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}
