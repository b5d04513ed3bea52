package canxl

import "fmt"

// Finding is single observation made while decoding registers or calculating bit-timing.
type Finding struct {
	Severity Severity `json:"severity" msgpack:"severity"`
	// Register is name of register finding is about. Empty for findings not related to single register.
	Register string `json:"register,omitempty" msgpack:"register,omitempty"`
	Field    string `json:"field,omitempty" msgpack:"field,omitempty"`
	Message  string `json:"message" msgpack:"message"`
}

func (f Finding) String() string {
	switch {
	case f.Register != "" && f.Field != "":
		return fmt.Sprintf("%v: %v.%v: %v", f.Severity, f.Register, f.Field, f.Message)
	case f.Register != "":
		return fmt.Sprintf("%v: %v: %v", f.Severity, f.Register, f.Message)
	}
	return fmt.Sprintf("%v: %v", f.Severity, f.Message)
}

// Findings is list of Finding instances.
type Findings []Finding

// Add appends new finding with formatted message.
func (fs *Findings) Add(sev Severity, register string, field string, format string, args ...interface{}) {
	*fs = append(*fs, Finding{
		Severity: sev,
		Register: register,
		Field:    field,
		Message:  fmt.Sprintf(format, args...),
	})
}

// HasErrors checks if list contains at least one error.
func (fs Findings) HasErrors() bool {
	return fs.Count(SeverityError) > 0
}

// HasWarnings checks if list contains at least one warning.
func (fs Findings) HasWarnings() bool {
	return fs.Count(SeverityWarning) > 0
}

// Count returns number of findings with given severity.
func (fs Findings) Count(sev Severity) int {
	n := 0
	for _, f := range fs {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// Filter returns findings that have one of given severities.
func (fs Findings) Filter(sevs ...Severity) Findings {
	result := make(Findings, 0, len(fs))
	for _, f := range fs {
		if containsSeverity(sevs, f.Severity) {
			result = append(result, f)
		}
	}
	return result
}

// Without returns findings that do not have any of given severities.
func (fs Findings) Without(sevs ...Severity) Findings {
	result := make(Findings, 0, len(fs))
	for _, f := range fs {
		if !containsSeverity(sevs, f.Severity) {
			result = append(result, f)
		}
	}
	return result
}

func containsSeverity(sevs []Severity, s Severity) bool {
	for _, v := range sevs {
		if v == s {
			return true
		}
	}
	return false
}
