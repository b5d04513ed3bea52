package canxl

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Severity classifies findings produced by register decoding and bit-timing calculation.
type Severity uint8

const (
	// SeverityInfo is plain information about decoded value.
	SeverityInfo Severity = iota
	// SeverityInfoVerbose is information that is usually hidden (reset values, duplicates etc.)
	SeverityInfoVerbose
	// SeverityInfoHighlighted is information worth pointing out (versions, release dates, pending interrupts)
	SeverityInfoHighlighted
	// SeverityWarning marks suspicious value that may still work.
	SeverityWarning
	// SeverityError marks invalid value or faulty controller state.
	SeverityError
	// SeverityRecommendation suggests better configuration.
	SeverityRecommendation
	// SeverityCalculation holds value computed from one or more registers (bitrate, sample point).
	SeverityCalculation
)

// ErrUnknownSeverity is returned when severity name can not be parsed.
var ErrUnknownSeverity = errors.New("unknown severity")

var severityNames = [...]string{
	SeverityInfo:            "info",
	SeverityInfoVerbose:     "infoVerbose",
	SeverityInfoHighlighted: "infoHighlighted",
	SeverityWarning:         "warning",
	SeverityError:           "error",
	SeverityRecommendation:  "recommendation",
	SeverityCalculation:     "calculation",
}

// Severities returns all severity levels in their order.
func Severities() []Severity {
	return []Severity{
		SeverityInfo,
		SeverityInfoVerbose,
		SeverityInfoHighlighted,
		SeverityWarning,
		SeverityError,
		SeverityRecommendation,
		SeverityCalculation,
	}
}

func (s Severity) String() string {
	if int(s) < len(severityNames) {
		return severityNames[s]
	}
	return "unknown"
}

// ParseSeverity parses severity name. Name comparison is case-insensitive.
func ParseSeverity(name string) (Severity, error) {
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), nil
		}
	}
	return 0, fmt.Errorf("%w: `%v`", ErrUnknownSeverity, name)
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	if int(s) >= len(severityNames) {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSeverity, s)
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	tmp, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = tmp
	return nil
}

// MarshalJSON marshals severity as its name.
func (s Severity) MarshalJSON() ([]byte, error) {
	b, err := s.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(b))
}

// UnmarshalJSON custom unmarshalling function for Severity.
func (s *Severity) UnmarshalJSON(b []byte) error {
	if len(b) > 1 && b[0] == '"' && b[len(b)-1] == '"' {
		b = b[1 : len(b)-1]
	}
	return s.UnmarshalText(b)
}
