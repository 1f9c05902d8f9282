package batch

import (
	"fmt"

	"github.com/teemow/inboxsorter/internal/classify"
)

// Summary counts the outcomes of one classification run.
type Summary struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
	Moved      int `json:"moved"`
}

// Report is the tool-facing result of a classification run.
type Report struct {
	Summary  Summary            `json:"summary"`
	Outcomes []classify.Outcome `json:"outcomes"`
}

// ParseIDs parses a parameter that can be either a single id or an array
// of ids. A nil param yields no ids unless required is set.
func ParseIDs(param interface{}, paramName string, required bool) ([]string, error) {
	if param == nil {
		if required {
			return nil, fmt.Errorf("%s is required", paramName)
		}
		return nil, nil
	}

	var ids []string
	switch v := param.(type) {
	case string:
		if v == "" {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		ids = []string{v}
	case []interface{}:
		if len(v) == 0 && required {
			return nil, fmt.Errorf("%s cannot be empty", paramName)
		}
		ids = make([]string, 0, len(v))
		for i, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string", paramName, i)
			}
			if str == "" {
				return nil, fmt.Errorf("%s[%d] cannot be empty", paramName, i)
			}
			ids = append(ids, str)
		}
	default:
		return nil, fmt.Errorf("%s must be a string or array of strings", paramName)
	}
	return ids, nil
}

// Summarize counts resolved, unresolved and moved outcomes.
func Summarize(outcomes []classify.Outcome) Summary {
	s := Summary{Total: len(outcomes)}
	for _, o := range outcomes {
		if o.Resolved() {
			s.Resolved++
		} else {
			s.Unresolved++
		}
		if o.Moved {
			s.Moved++
		}
	}
	return s
}

// NewReport summarizes outcomes. A nil slice is reported as empty.
func NewReport(outcomes []classify.Outcome) Report {
	if outcomes == nil {
		outcomes = []classify.Outcome{}
	}
	return Report{Summary: Summarize(outcomes), Outcomes: outcomes}
}
