package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event represents.
type Stage string

// Supported progress stages.
const (
	StageScanStart  Stage = "SCAN_START"
	StageScanDone   Stage = "SCAN_DONE"
	StageOuterStart Stage = "OUTER_START"
	StageOuterDone  Stage = "OUTER_DONE"
	StageProbeDone  Stage = "PROBE_DONE"
	StageBackoff    Stage = "BACKOFF"
	StageDiscovery  Stage = "DISCOVERY"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures one step of scan progress.
type Event struct {
	// RunID identifies the scan run in 16-byte UUID form.
	RunID [16]byte
	TS    time.Time
	Stage Stage
	Outer int
	Inner int
	URL   string
	// Outcome is the probe classification for PROBE_DONE, or the outer key
	// result (found, exhausted, cancelled) for OUTER_DONE.
	Outcome     string
	StatusClass StatusClass
	Attempts    int
	// Dur is the probe latency, the backoff delay, or the outer key/scan wall time.
	Dur  time.Duration
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageScanStart, StageScanDone:
	case StageOuterStart:
		if e.Outer <= 0 {
			return errors.New("outer start requires outer key")
		}
	case StageOuterDone:
		if e.Outer <= 0 {
			return errors.New("outer done requires outer key")
		}
		if e.Outcome == "" {
			return errors.New("outer done requires outcome")
		}
	case StageProbeDone:
		if e.URL == "" {
			return errors.New("probe done requires url")
		}
		if e.Outcome == "" {
			return errors.New("probe done requires outcome")
		}
	case StageBackoff, StageDiscovery:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes. Zero (no response) is "other".
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
		return StatusOther
	}
}
