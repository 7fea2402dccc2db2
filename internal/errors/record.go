package errors

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Record is the wire form of an Error, as used by JSON reports, watch
// events and --log-format json.
type Record struct {
	Code       string   `json:"code"`
	Category   Category `json:"category,omitempty"`
	Severity   string   `json:"severity"`
	Subject    string   `json:"subject,omitempty"`
	Message    string   `json:"message"`
	Detail     string   `json:"detail,omitempty"`
	File       string   `json:"file,omitempty"`
	Line       int      `json:"line,omitzero"`
	Column     int      `json:"column,omitzero"`
	Suggestion string   `json:"suggestion,omitempty"`
	DocURL     string   `json:"docUrl,omitempty"`
}

// Record returns the wire form of e.
func (e *Error) Record() Record {
	r := Record{
		Code:       e.Code,
		Category:   e.Category,
		Severity:   e.Severity.String(),
		Subject:    e.Subject,
		Message:    e.Message,
		Detail:     e.Detail,
		Suggestion: e.Suggestion,
		DocURL:     e.DocURL,
	}
	if e.Location != nil {
		r.File = e.Location.File
		r.Line = e.Location.Line
		r.Column = e.Location.Column
	}
	return r
}

// FormatJSON returns the error as a single JSON object.
func (e *Error) FormatJSON() string {
	// A Record of strings and integers cannot fail to marshal once invalid
	// UTF-8 is allowed.
	data, _ := json.Marshal(e.Record(), json.Deterministic(true), jsontext.AllowInvalidUTF8(true))
	return string(data)
}
