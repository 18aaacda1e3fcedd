// Package report implements the report_generate rollup: a read-only count
// of tasks by status, optionally filtered by time window, name, or spec
// text, plus a DiffReports helper for comparing two report renders. Grounded on
// mcp/server.rs's handle_report_generate and the ReportManager it calls.
package report

import (
	"context"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service { return &Service{store: s} }

// Options narrows Generate.
type Options struct {
	Since       *time.Time
	FilterName  string
	FilterSpec  string
	SummaryOnly bool
}

// Generate rolls tasks up by status, optionally filtered by creation window
// (approximated via first_todo_at, the closest analog to "created at" this
// schema tracks) and by a case-insensitive substring match on name/spec.
func (s *Service) Generate(ctx context.Context, opt Options) (model.Report, error) {
	paginated, err := s.store.FindTasks(ctx, nil, store.FindTasksFilter{Limit: 1 << 30})
	if err != nil {
		return model.Report{}, err
	}

	counts := map[string]int{model.StatusTodo: 0, model.StatusDoing: 0, model.StatusDone: 0}
	var matched []model.Task
	for _, t := range paginated.Tasks {
		if opt.Since != nil && t.FirstTodoAt != nil && t.FirstTodoAt.Before(*opt.Since) {
			continue
		}
		if opt.FilterName != "" && !containsFold(t.Name, opt.FilterName) {
			continue
		}
		if opt.FilterSpec != "" && (t.Spec == nil || !containsFold(*t.Spec, opt.FilterSpec)) {
			continue
		}
		counts[t.Status]++
		matched = append(matched, t)
	}

	r := model.Report{
		Since:       opt.Since,
		CountByStat: counts,
		TotalCount:  len(matched),
	}
	if !opt.SummaryOnly {
		r.Tasks = matched
	}
	return r, nil
}

// DiffReports renders a character-level diff between two report renders
// (e.g. a --since report vs. the current one) as diffmatchpatch pretty text,
// not a unified diff. Neither report_generate nor the CLI's report command
// calls it.
func DiffReports(before, after string) string {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(before, after, false)
	return dmp.DiffPrettyText(diffs)
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
