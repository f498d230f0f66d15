// Package jobqueue implements the Job JSON descriptor, the JOBQUEUE
// spool conventions, and the admin command grammar shared between the
// Dispatcher/Aggregator (producers) and the Job Engine (consumer).
package jobqueue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// Kind distinguishes an hourly FTP-upload job from a day-aggregation job.
type Kind string

const (
	KindFTP        Kind = "ftp"
	KindHour2Daily Kind = "hour2daily"
)

// Job is the JSON descriptor emitted by the Dispatcher or the Pending
// Aggregator and consumed by a Job Engine worker.
type Job struct {
	Site          string `json:"site" validate:"required,len=9"`
	Year          int    `json:"year" validate:"required"`
	Doy           int    `json:"doy" validate:"required,min=1,max=366"`
	Hour          string `json:"hour" validate:"required,len=1"`
	Interval      int    `json:"interval" validate:"gte=0"`
	Kind          Kind   `json:"kind" validate:"required,oneof=ftp hour2daily"`
	RSFile        string `json:"rsfile" validate:"required"`
	ForceComplete bool   `json:"force_complete,omitempty"`
}

// Validate checks the descriptor against its required-field rules,
// the step a worker performs before accepting a job.
func (j Job) Validate() error {
	return validate.Struct(j)
}

// Write serializes j as a new file in dir named after a generated job
// id, following the JOBQUEUE/<job-id> convention, and returns the path.
func Write(dir string, j Job) (string, error) {
	if err := j.Validate(); err != nil {
		return "", fmt.Errorf("jobqueue: invalid job: %w", err)
	}
	b, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		return "", fmt.Errorf("jobqueue: encode: %w", err)
	}

	id := uuid.NewString()
	path := filepath.Join(dir, id)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0644); err != nil {
		return "", fmt.Errorf("jobqueue: write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return "", fmt.Errorf("jobqueue: rename %s: %w", tmp, err)
	}
	return path, nil
}

// Read parses a job descriptor from its JSON content.
func Read(content []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(content, &j); err != nil {
		return j, fmt.Errorf("jobqueue: decode: %w", err)
	}
	return j, j.Validate()
}

// IsCommandFile reports whether name follows the JOBQUEUE convention
// for admin command files: anything ending in "command".
func IsCommandFile(name string) bool {
	return strings.HasSuffix(name, "command")
}
