// Package parser turns raw input text into ordered account entries.
package parser

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"social-checker/pkg/types"
)

// ErrEmptyInput is returned when no usable line is found
var ErrEmptyInput = errors.New("no accounts in input")

// InputError describes an input list rejected before a run starts
type InputError struct {
	Line int
	Err  error
}

func (e *InputError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("input line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("input: %v", e.Err)
}

func (e *InputError) Unwrap() error { return e.Err }

// Options tunes parsing
type Options struct {
	// Dedupe drops entries whose username was already seen (case-insensitive)
	Dedupe bool
}

// ParseLine splits one line into username and the trimmed raw line.
// ok is false for blank lines and lines with an empty username.
func ParseLine(line string) (raw, username string, ok bool) {
	raw = strings.TrimSpace(line)
	if raw == "" {
		return "", "", false
	}
	username = raw
	if i := strings.IndexByte(raw, ':'); i >= 0 {
		username = strings.TrimSpace(raw[:i])
	}
	if username == "" {
		return raw, "", false
	}
	return raw, username, true
}

// Parse reads lines from r and returns entries in input order
func Parse(r io.Reader, opts Options) ([]types.AccountEntry, error) {
	scanner := bufio.NewScanner(r)
	buf := make([]byte, 8*1024)
	scanner.Buffer(buf, 128*1024)

	var (
		entries []types.AccountEntry
		seen    map[string]struct{}
		lineNum int
	)
	if opts.Dedupe {
		seen = make(map[string]struct{})
	}

	for scanner.Scan() {
		lineNum++
		raw, username, ok := ParseLine(scanner.Text())
		if !ok {
			continue
		}
		if seen != nil {
			key := strings.ToLower(username)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		entries = append(entries, types.AccountEntry{
			RawLine:       raw,
			Username:      username,
			SequenceIndex: uint(len(entries) + 1),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, &InputError{Line: lineNum + 1, Err: err}
	}
	if len(entries) == 0 {
		return nil, &InputError{Err: ErrEmptyInput}
	}
	return entries, nil
}

// ParseLines is Parse over an in-memory slice of lines
func ParseLines(lines []string, opts Options) ([]types.AccountEntry, error) {
	return Parse(strings.NewReader(strings.Join(lines, "\n")), opts)
}
