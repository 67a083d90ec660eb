package server

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	maxNameLength     = 255
	maxLogNameLength  = 1024
	maxMetricPoints   = 10_000
	maxTriggerContext = 32
)

func requireName(field, value string, maxLen int) error {
	if strings.TrimSpace(value) == "" {
		return invalid(field, "is required")
	}
	if utf8.RuneCountInString(value) > maxLen {
		return invalid(field, fmt.Sprintf("must be at most %d characters", maxLen))
	}
	if !utf8.ValidString(value) {
		return invalid(field, "must be valid UTF-8")
	}
	return nil
}

// parseID parses a numeric key sent as a string.
func parseID(field, value string) (int64, error) {
	if value == "" {
		return 0, invalid(field, "is required")
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, invalid(field, "must be a positive integer")
	}
	return id, nil
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (r RunRef) validate() error {
	if err := requireName("projectName", r.ProjectName, maxNameLength); err != nil {
		return err
	}
	if r.RunID == "" {
		return invalid("runId", "is required")
	}
	return nil
}
