package types

import (
	"fmt"
	"strings"
)

// CheckStatus represents the outcome of an account check
type CheckStatus int

const (
	Live CheckStatus = iota
	Suspended
	Unknown
	Error
)

// Statuses lists every status in bucket order
var Statuses = [...]CheckStatus{Live, Suspended, Unknown, Error}

func (s CheckStatus) String() string {
	switch s {
	case Live:
		return "live"
	case Suspended:
		return "suspended"
	case Unknown:
		return "unknown"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus converts a status name back to a CheckStatus
func ParseStatus(name string) (CheckStatus, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "live":
		return Live, nil
	case "suspended":
		return Suspended, nil
	case "unknown":
		return Unknown, nil
	case "error":
		return Error, nil
	}
	return 0, fmt.Errorf("unknown status %q", name)
}

func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *CheckStatus) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// AccountEntry is one parsed input line.
// SequenceIndex is 1-based and follows input order.
type AccountEntry struct {
	RawLine       string `json:"raw_line"`
	Username      string `json:"username"`
	SequenceIndex uint   `json:"sequence_index"`
}

// ProbeOutcome is what a status probe reports for one username
type ProbeOutcome struct {
	Status     CheckStatus
	Diagnostic string
}

// CheckResult is the classified outcome for one entry
type CheckResult struct {
	Entry      AccountEntry `json:"entry"`
	Status     CheckStatus  `json:"status"`
	Platform   string       `json:"platform"`
	Diagnostic string       `json:"diagnostic,omitempty"`
}

// ProgressEvent is emitted once per completed entry
type ProgressEvent struct {
	SequenceIndex uint        `json:"sequence_index"`
	Total         int         `json:"total"`
	Username      string      `json:"username"`
	Status        CheckStatus `json:"status"`
}
