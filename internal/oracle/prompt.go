package oracle

import (
	"fmt"
	"strings"

	"github.com/teemow/inboxsorter/internal/rules"
)

// MaxBodyRunes is the number of body characters sent to the model.
const MaxBodyRunes = 2000

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func quotedNames(active []rules.Rule) string {
	names := make([]string, len(active))
	for i, r := range active {
		names[i] = fmt.Sprintf("%q", r.Name)
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func systemPrompt(active []rules.Rule) string {
	return fmt.Sprintf(
		"You are an email classifier. You MUST return the rule_name as EXACTLY one of: %s or 'none'. No variations allowed.",
		quotedNames(active))
}

func userPrompt(subject, body string, active []rules.Rule) string {
	var sb strings.Builder

	sb.WriteString("Analyze this email and classify it into one of the rules below.\n\n")
	fmt.Fprintf(&sb, "EMAIL SUBJECT: %s\n\n", subject)
	fmt.Fprintf(&sb, "EMAIL BODY:\n%s\n\n", truncateRunes(body, MaxBodyRunes))

	sb.WriteString("AVAILABLE RULES:\n")
	for _, r := range active {
		criteria := r.Criteria
		if criteria == "" {
			criteria = "N/A"
		}
		fmt.Fprintf(&sb, "- Rule name: %q\n  Description: %s\n  Keywords: %s\n  Criteria: %s\n",
			r.Name, r.Description, strings.Join(r.Keywords, ", "), criteria)
	}

	fmt.Fprintf(&sb, "\nIMPORTANT: The rule_name in your response MUST be EXACTLY one of these values: %s or \"none\" if no rule matches.\n\n",
		quotedNames(active))
	sb.WriteString("Respond with a JSON object:\n")
	sb.WriteString(`{"rule_name": "exact rule name from list above", "confidence": 0.0-1.0, "reason": "brief explanation"}`)
	sb.WriteString("\n\nIf the email matches any keywords or criteria from a rule, classify it with that rule. ")
	sb.WriteString(`Only respond "none" if the email clearly doesn't match ANY rule.`)

	return sb.String()
}
