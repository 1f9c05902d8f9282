package oracle

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/teemow/inboxsorter/internal/rules"
)

// ReasonParseFailure is the reason of the verdict returned for unparseable output.
const ReasonParseFailure = "parse failure"

var firstObject = regexp.MustCompile(`\{[^}]+\}`)

// score accepts a JSON number or a numeric string.
type score float64

func (s *score) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			return err
		}
		*s = score(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*s = score(f)
	return nil
}

type rawVerdict struct {
	RuleName   string `json:"rule_name"`
	Confidence score  `json:"confidence"`
	Reason     string `json:"reason"`
}

func decode(text string) (Verdict, bool) {
	if !strings.HasPrefix(text, "{") {
		return Verdict{}, false
	}
	var raw rawVerdict
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return Verdict{}, false
	}
	name := strings.TrimSpace(raw.RuleName)
	if name == "" {
		name = rules.NoneVerdict
	}
	return Verdict{
		RuleName:   name,
		Confidence: clamp(float64(raw.Confidence)),
		Reason:     raw.Reason,
	}, true
}

// Parse extracts a Verdict from model output. The whole text is tried first,
// then the first brace-delimited object inside it. Anything else yields a
// degraded "none" verdict.
func Parse(text string) Verdict {
	text = strings.TrimSpace(text)
	if v, ok := decode(text); ok {
		return v
	}
	if obj := firstObject.FindString(text); obj != "" {
		if v, ok := decode(obj); ok {
			return v
		}
	}
	return NoMatch(ReasonParseFailure)
}
