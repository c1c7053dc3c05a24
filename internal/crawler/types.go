package crawler

import "time"

// Raw record field names, in results-table column order.
const (
	FieldExceptionNumber = "exception_number"
	FieldSubmittalDate   = "submittal_date"
	FieldFilingNumber    = "filing_number"
	FieldStatus          = "status"
	FieldFilingType      = "filing_type"
	FieldOperatorNumber  = "operator_number"
	FieldOperatorName    = "operator_name"
	FieldProperty        = "property"
	FieldEffectiveDate   = "effective_date"
	FieldExpirationDate  = "expiration_date"
	FieldDistrict        = "fv_district"
)

// RawRecord maps field names to the trimmed cell text of one table row.
// It is discarded once normalized.
type RawRecord map[string]string

// Record is a validated filing row with typed dates.
type Record struct {
	ExceptionNumber string     `json:"exception_number"`
	SubmittalDate   time.Time  `json:"submittal_date"`
	FilingNumber    string     `json:"filing_number"`
	Status          string     `json:"status"`
	FilingType      string     `json:"filing_type"`
	OperatorNumber  string     `json:"operator_number"`
	OperatorName    string     `json:"operator_name"`
	Property        string     `json:"property"`
	EffectiveDate   *time.Time `json:"effective_date,omitempty"`
	ExpirationDate  *time.Time `json:"expiration_date,omitempty"`
	District        string     `json:"fv_district"`
}

// Location is a flaring/venting district, created on first sighting.
type Location struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Coordinates string `json:"coordinates"`
}

// Operator is a filing operator, created on first sighting.
type Operator struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// References holds the resolved entity identifiers for one record.
type References struct {
	LocationID int64
	OperatorID int64
}

// Flare is one ingested filing row. Rows are append-only.
type Flare struct {
	ID int64 `json:"id"`
	Record
	LocationID int64 `json:"location_id"`
	OperatorID int64 `json:"operator_id"`
}

// Progress is a point-in-time snapshot of the controller's run state.
type Progress struct {
	IsRunning   bool       `json:"is_running"`
	RowsScraped int64      `json:"rows_scraped"`
	RowsSkipped int64      `json:"rows_skipped"`
	Pages       int64      `json:"pages"`
	RunID       string     `json:"run_id,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	FinishedAt  *time.Time `json:"finished_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
}

// RunOutcome describes how a run ended.
type RunOutcome string

// Terminal run outcomes.
const (
	OutcomeCompleted RunOutcome = "completed"
	OutcomeStopped   RunOutcome = "stopped"
	OutcomeFailed    RunOutcome = "failed"
)

// RunSummary is published once per run when it exits.
type RunSummary struct {
	RunID       string        `json:"run_id"`
	Outcome     RunOutcome    `json:"outcome"`
	RowsScraped int64         `json:"rows_scraped"`
	RowsSkipped int64         `json:"rows_skipped"`
	Pages       int64         `json:"pages"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
}
