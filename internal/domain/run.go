package domain

import "time"

// OutcomeStatus is what happened to one document in a run
type OutcomeStatus string

const (
	OutcomeUpdated   OutcomeStatus = "updated"
	OutcomeUnchanged OutcomeStatus = "unchanged"
	OutcomeStaged    OutcomeStatus = "staged" // dry run
	OutcomeSkipped   OutcomeStatus = "skipped"
	OutcomeErrored   OutcomeStatus = "errored"
)

// DocumentOutcome records the result for one registration
type DocumentOutcome struct {
	RegistrationID string        `json:"registrationId"`
	Status         OutcomeStatus `json:"status"`
	Reason         string        `json:"reason,omitempty"`
	Set            []string      `json:"set,omitempty"`
	Unset          []string      `json:"unset,omitempty"`
}

// RunSummary is the final report of a reconcile run
type RunSummary struct {
	RunID            string            `json:"runId"`
	DryRun           bool              `json:"dryRun"`
	StartedAt        time.Time         `json:"startedAt"`
	FinishedAt       time.Time         `json:"finishedAt"`
	Processed        int               `json:"processed"`
	Succeeded        int               `json:"succeeded"`
	Updated          int               `json:"updated"`
	Unchanged        int               `json:"unchanged"`
	Skipped          int               `json:"skipped"`
	Errored          int               `json:"errored"`
	StagedOperations int               `json:"stagedOperations"`
	TicketErrors     int               `json:"ticketErrors"`
	PackagesExpanded int               `json:"packagesExpanded"`
	TicketsCorrected int               `json:"ticketsCorrected"`
	Corrections      int               `json:"corrections"`
	SkipReasons      map[string]int    `json:"skipReasons"`
	ErrorReasons     map[string]int    `json:"errorReasons"`
	Discrepancies    []Discrepancy     `json:"discrepancies"`
	Outcomes         []DocumentOutcome `json:"outcomes"`
}

// NewRunSummary creates an empty summary
func NewRunSummary(runID string, dryRun bool) *RunSummary {
	return &RunSummary{
		RunID:        runID,
		DryRun:       dryRun,
		StartedAt:    time.Now(),
		SkipReasons:  make(map[string]int),
		ErrorReasons: make(map[string]int),
	}
}

// Record adds one document outcome to the totals
func (s *RunSummary) Record(o DocumentOutcome) {
	s.Processed++
	switch o.Status {
	case OutcomeUpdated:
		s.Updated++
		s.Succeeded++
	case OutcomeStaged:
		s.Succeeded++
	case OutcomeUnchanged:
		s.Unchanged++
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
		s.SkipReasons[o.Reason]++
	case OutcomeErrored:
		s.Errored++
		s.ErrorReasons[o.Reason]++
	}
	s.Outcomes = append(s.Outcomes, o)
}
