package rules

import (
	"strings"
	"time"

	"github.com/teemow/inboxsorter/internal/apperr"
)

// NoneVerdict is the rule name a classifier returns when nothing applies.
const NoneVerdict = "none"

// Rule is a user-defined classification rule.
type Rule struct {
	ID               string    `json:"id" db:"id"`
	UserID           string    `json:"user_id" db:"user_id"`
	Name             string    `json:"name" db:"name"`
	Description      string    `json:"description" db:"description"`
	TargetFolderID   string    `json:"target_folder_id" db:"target_folder_id"`
	TargetFolderName string    `json:"target_folder_name" db:"target_folder_name"`
	Keywords         []string  `json:"keywords" db:"-"`
	Criteria         string    `json:"ai_prompt" db:"criteria"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
}

// Input is the editable part of a Rule.
type Input struct {
	Name             string   `json:"name"`
	Description      string   `json:"description"`
	TargetFolderID   string   `json:"target_folder_id"`
	TargetFolderName string   `json:"target_folder_name"`
	Keywords         []string `json:"keywords"`
	Criteria         string   `json:"ai_prompt"`
}

// Validate checks required fields and normalizes whitespace.
func (in *Input) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.TargetFolderID = strings.TrimSpace(in.TargetFolderID)
	if in.Name == "" {
		return apperr.InvalidRequest("rule name is required")
	}
	if in.TargetFolderID == "" {
		return apperr.InvalidRequest("target folder is required")
	}

	keywords := make([]string, 0, len(in.Keywords))
	for _, k := range in.Keywords {
		if k = strings.TrimSpace(k); k != "" {
			keywords = append(keywords, k)
		}
	}
	in.Keywords = keywords
	return nil
}

func (r *Rule) apply(in Input) {
	r.Name = in.Name
	r.Description = in.Description
	r.TargetFolderID = in.TargetFolderID
	r.TargetFolderName = in.TargetFolderName
	r.Keywords = in.Keywords
	r.Criteria = in.Criteria
}
