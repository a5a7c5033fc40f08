// Package poolform decodes submissions of the pool control form and answers
// whether the requested run window is open.
package poolform

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMalformedForm  = errors.New("poolform: body is not form encoded")
	ErrMissingField   = errors.New("poolform: missing field")
	ErrInvalidTime    = errors.New("poolform: invalid start time")
	ErrOutOfRange     = errors.New("poolform: value out of range")
	ErrUnknownCommand = errors.New("poolform: unknown command")
)

// Limits advertised by the form inputs.
const (
	EarliestStart = 8 * time.Hour
	LatestStart   = 19 * time.Hour
	MinDuration   = 1
	MaxDuration   = 8
)

// Command is the maintenance action requested alongside the schedule.
type Command string

const (
	CommandNone    Command = "none"
	CommandUpgrade Command = "upgrade"
	CommandReboot  Command = "reboot"
)

// Submission is one decoded POST of the form.
type Submission struct {
	// Start is the offset of the start time from midnight.
	Start    time.Duration
	Duration time.Duration
	Command  Command
}

// Parse decodes an application/x-www-form-urlencoded body.
func Parse(body []byte) (Submission, error) {
	vals, err := url.ParseQuery(string(body))
	if err != nil {
		return Submission{}, fmt.Errorf("%w: %w", ErrMalformedForm, err)
	}

	var errs []error
	var result Submission

	start, err := parseStart(vals.Get("stime"))
	if err != nil {
		errs = append(errs, err)
	}
	result.Start = start

	hours, err := parseDuration(vals.Get("duration"))
	if err != nil {
		errs = append(errs, err)
	}
	result.Duration = time.Duration(hours) * time.Hour

	cmd, err := parseCommand(vals.Get("command"))
	if err != nil {
		errs = append(errs, err)
	}
	result.Command = cmd

	if len(errs) != 0 {
		return Submission{}, errors.Join(errs...)
	}

	return result, nil
}

func parseStart(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: stime", ErrMissingField)
	}

	var t time.Time
	var err error
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err = time.Parse(layout, s); err == nil {
			break
		}
	}
	if err != nil {
		return 0, fmt.Errorf("%w %q: %w", ErrInvalidTime, s, err)
	}

	d := time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute
	if d < EarliestStart || d > LatestStart {
		return 0, fmt.Errorf("%w: start time %s is outside %s..%s", ErrOutOfRange, s, clock(EarliestStart), clock(LatestStart))
	}

	return d, nil
}

func parseDuration(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("%w: duration", ErrMissingField)
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: duration %q is not a number", ErrOutOfRange, s)
	}

	if n < MinDuration || n > MaxDuration {
		return 0, fmt.Errorf("%w: duration %d is outside %d..%d", ErrOutOfRange, n, MinDuration, MaxDuration)
	}

	return n, nil
}

func parseCommand(s string) (Command, error) {
	// The "none" radio button has no value attribute, so browsers send "on".
	switch strings.ToLower(s) {
	case "", "on", string(CommandNone):
		return CommandNone, nil
	case string(CommandUpgrade):
		return CommandUpgrade, nil
	case string(CommandReboot):
		return CommandReboot, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownCommand, s)
	}
}

// Active reports whether now lies inside the run window, start and end
// inclusive, on now's own day and clock.
func (s Submission) Active(now time.Time) bool {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(s.Start)
	end := start.Add(s.Duration)

	return !now.Before(start) && !now.After(end)
}

// LogValue implements slog.LogValuer.
func (s Submission) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("stime", clock(s.Start)),
		slog.Int("duration_hours", int(s.Duration/time.Hour)),
		slog.String("command", string(s.Command)),
	)
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
