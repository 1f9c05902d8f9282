package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxsorter/internal/classify"
)

func TestParseIDs(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		required bool
		want     []string
		wantErr  string
	}{
		{name: "single string", input: "m1", required: true, want: []string{"m1"}},
		{name: "array of strings", input: []interface{}{"m1", "m2", "m3"}, required: true, want: []string{"m1", "m2", "m3"}},
		{name: "nil required", input: nil, required: true, wantErr: "messageIds is required"},
		{name: "nil optional", input: nil, want: nil},
		{name: "empty string", input: "", wantErr: "messageIds cannot be empty"},
		{name: "empty array required", input: []interface{}{}, required: true, wantErr: "messageIds cannot be empty"},
		{name: "empty array optional", input: []interface{}{}, want: []string{}},
		{name: "array with non-string", input: []interface{}{"m1", 123}, wantErr: "messageIds[1] must be a string"},
		{name: "array with empty string", input: []interface{}{"m1", ""}, wantErr: "messageIds[1] cannot be empty"},
		{name: "wrong type", input: 42, wantErr: "messageIds must be a string or array of strings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIDs(tt.input, "messageIds", tt.required)
			if tt.wantErr != "" {
				require.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSummarize(t *testing.T) {
	outcomes := []classify.Outcome{
		{MessageID: "a", RuleApplied: "Invoices", Moved: true},
		{MessageID: "b", RuleApplied: "Invoices"},
		{MessageID: "c", RuleApplied: "none"},
	}

	assert.Equal(t, Summary{Total: 3, Resolved: 2, Unresolved: 1, Moved: 1}, Summarize(outcomes))
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestNewReport(t *testing.T) {
	r := NewReport(nil)
	assert.NotNil(t, r.Outcomes)
	assert.Empty(t, r.Outcomes)
	assert.Zero(t, r.Summary.Total)
}
