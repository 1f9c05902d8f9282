package classify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/teemow/inboxsorter/internal/apperr"
	"github.com/teemow/inboxsorter/internal/graph"
	"github.com/teemow/inboxsorter/internal/oracle"
	"github.com/teemow/inboxsorter/internal/rules"
)

var (
	invoices = rules.Rule{ID: "r1", Name: "Invoices", TargetFolderID: "f-inv", TargetFolderName: "Invoices", IsActive: true}
	receipts = rules.Rule{ID: "r2", Name: "Receipts", TargetFolderID: "f-rec", TargetFolderName: "Receipts", IsActive: true}
	active   = []rules.Rule{invoices, receipts}
)

type fakeMailbox struct {
	mu      sync.Mutex
	fail    map[string]bool
	fetched atomic.Int32
	moved   []string
	moveErr map[string]error
}

func (f *fakeMailbox) GetMessage(_ context.Context, token, id string) (graph.Message, error) {
	f.fetched.Add(1)
	if token == "" {
		return graph.Message{}, errors.New("missing token")
	}
	if f.fail[id] {
		return graph.Message{}, apperr.Upstream("graph.get_message", 404, errors.New("not found"))
	}
	return graph.Message{
		ID:      id,
		Subject: "subject " + id,
		Body:    &graph.ItemBody{ContentType: "html", Content: "<p>body of " + id + "</p>"},
		From:    &graph.Recipient{EmailAddress: graph.EmailAddress{Name: "Billing", Address: "billing@vendor.example"}},
	}, nil
}

func (f *fakeMailbox) MoveMessage(_ context.Context, _, id, dest string) (graph.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.moveErr[id]; err != nil {
		return graph.Message{}, err
	}
	f.moved = append(f.moved, id+"->"+dest)
	return graph.Message{ID: id + "-moved", ParentFolderID: dest}, nil
}

type classifierFunc func(body, subject string) oracle.Verdict

func (f classifierFunc) Classify(_ context.Context, body, subject string, _ []rules.Rule) oracle.Verdict {
	return f(body, subject)
}

func always(name string, confidence float64) classifierFunc {
	return func(string, string) oracle.Verdict {
		return oracle.Verdict{RuleName: name, Confidence: confidence}
	}
}

type fakeRecords struct {
	mu        sync.Mutex
	records   []Record
	appendErr error
	counts    map[Grouping][]Count
	limit     int
}

func (f *fakeRecords) AppendRecord(_ context.Context, r Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.records = append(f.records, r)
	return nil
}

func (f *fakeRecords) ListRecords(_ context.Context, _ string, limit int) ([]Record, error) {
	f.limit = limit
	return f.records, nil
}

func (f *fakeRecords) CountRecords(context.Context, string) (int, error) {
	return len(f.records), nil
}

func (f *fakeRecords) GroupRecords(_ context.Context, _ string, by Grouping, _ int) ([]Count, error) {
	return f.counts[by], nil
}

type fakeRules []rules.Rule

func (f fakeRules) Active(_ context.Context, _ string, ids []string) ([]rules.Rule, error) {
	if len(ids) == 0 {
		return f, nil
	}
	var out []rules.Rule
	for _, r := range f {
		for _, id := range ids {
			if r.ID == id {
				out = append(out, r)
			}
		}
	}
	return out, nil
}
