package classify

import (
	"time"

	"github.com/teemow/inboxsorter/internal/rules"
)

// OriginalFolder is the folder recorded as the source of every move.
const OriginalFolder = "inbox"

// Outcome is the classification result for one message.
type Outcome struct {
	MessageID           string  `json:"message_id"`
	Subject             string  `json:"subject"`
	SuggestedFolder     string  `json:"suggested_folder"`
	SuggestedFolderName string  `json:"suggested_folder_name"`
	RuleApplied         string  `json:"rule_applied"`
	Confidence          float64 `json:"confidence"`
	Moved               bool    `json:"moved"`

	fromAddress string
	fromName    string
}

// Resolved reports whether a rule was applied.
func (o Outcome) Resolved() bool {
	return o.RuleApplied != rules.NoneVerdict
}

func unresolved(messageID, subject string) Outcome {
	return Outcome{
		MessageID:   messageID,
		Subject:     subject,
		RuleApplied: rules.NoneVerdict,
	}
}

// Record is the append-only audit entry for a moved message.
type Record struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	MessageID        string    `json:"message_id" db:"message_id"`
	Subject          string    `json:"subject" db:"subject"`
	FromAddress      string    `json:"from_address" db:"from_address"`
	FromName         string    `json:"from_name" db:"from_name"`
	OriginalFolder   string    `json:"original_folder" db:"original_folder"`
	TargetFolder     string    `json:"target_folder" db:"target_folder"`
	TargetFolderName string    `json:"target_folder_name" db:"target_folder_name"`
	RuleName         string    `json:"rule_name" db:"rule_name"`
	Confidence       float64   `json:"confidence" db:"confidence"`
	ClassifiedAt     time.Time `json:"classified_at" db:"classified_at"`
}

// Request selects the messages and rules for a run.
type Request struct {
	MessageIDs []string `json:"message_ids"`
	RuleIDs    []string `json:"rule_ids,omitempty"`
	DryRun     bool     `json:"dry_run"`
}

// Count is one group of the statistics.
type Count struct {
	Name  string `json:"-" db:"name"`
	Count int    `json:"count" db:"count"`
}

// RuleCount is a Count keyed by rule name.
type RuleCount struct {
	Rule  string `json:"rule"`
	Count int    `json:"count"`
}

// FolderCount is a Count keyed by target folder name.
type FolderCount struct {
	Folder string `json:"folder"`
	Count  int    `json:"count"`
}

// Stats summarizes a user's classification history.
type Stats struct {
	TotalClassified int           `json:"total_classified"`
	ByRule          []RuleCount   `json:"by_rule"`
	ByFolder        []FolderCount `json:"by_folder"`
}
