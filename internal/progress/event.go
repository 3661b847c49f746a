package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
)

// Stage denotes the milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart    Stage = "RUN_START"
	StageTargetStart Stage = "TARGET_START"
	StageTargetState Stage = "TARGET_STATE"
	StagePageDone    Stage = "PAGE_DONE"
	StageFallback    Stage = "FALLBACK_DONE"
	StageTargetDone  Stage = "TARGET_DONE"
	StageRunDone     Stage = "RUN_DONE"
)

// StatusClass is a coarse grouping of a page's document status.
type StatusClass string

// Supported status classes for page completions.
const (
	Status2xx       StatusClass = "2xx"
	Status3xx       StatusClass = "3xx"
	Status4xx       StatusClass = "4xx"
	Status5xx       StatusClass = "5xx"
	StatusChallenge StatusClass = "challenge"
	StatusError     StatusClass = "error"
)

// Event captures one step of a pipeline run.
type Event struct {
	// RunID identifies the pipeline run.
	RunID string
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Target is the target URL for target-scoped stages.
	Target string
	Domain string
	// State is the crawl state entered, for TARGET_STATE.
	State intel.CrawlState
	// Status is the terminal status, for TARGET_DONE.
	Status intel.Status
	// URL is the page loaded, for PAGE_DONE.
	URL         string
	StatusClass StatusClass
	Dur         time.Duration
	// Contacts is the running contact count where meaningful.
	Contacts int
	// Total is the number of targets in the run, for RUN_START.
	Total int
	Note  string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == "" {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart:
		if e.Total < 0 {
			return errors.New("run start requires a non-negative total")
		}
	case StageRunDone:
	case StageTargetStart, StageFallback:
		if e.Target == "" {
			return fmt.Errorf("%s requires target", e.Stage)
		}
	case StageTargetState:
		if e.Target == "" || e.State == "" {
			return errors.New("target state requires target and state")
		}
	case StagePageDone:
		if e.URL == "" || e.StatusClass == "" {
			return errors.New("page done requires url and status class")
		}
	case StageTargetDone:
		if e.Target == "" || e.Status == "" {
			return errors.New("target done requires target and status")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// ClassifyStatus groups document status codes for page events. Zero means the
// page never produced a response.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusError
	}
}
