// Package search implements SearchService: unified search over tasks and
// events, dispatching by query shape (#id lookup, status keyword, FTS
// full-text, or a LIKE fallback for short/non-tokenizable queries) and
// fanning the task/event FTS queries out concurrently.
package search

import (
	"context"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/sync/errgroup"

	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/store"
)

type Service struct {
	store *store.Store
}

func New(s *store.Store) *Service { return &Service{store: s} }

// Options narrows Search.
type Options struct {
	Query  string
	Limit  int64
	Offset int64
}

// Search dispatches a query through the precedence spec.md defines:
// "#<id>" -> exact task lookup; a bare status keyword -> status listing;
// otherwise FTS full-text, falling back to LIKE for queries FTS5's trigram
// tokenizer can't usefully match (CJK under 3 characters, or no
// alphanumeric/CJK content at all).
func (s *Service) Search(ctx context.Context, opt Options) (model.SearchResponse, error) {
	q := strings.TrimSpace(opt.Query)

	if statuses, ok := statusKeyword(q); ok {
		limit := opt.Limit
		if limit <= 0 {
			limit = 100
		}
		tasks, err := s.store.FindTasksByStatusKeyword(ctx, nil, statuses, limit)
		if err != nil {
			return model.SearchResponse{}, err
		}
		results := make([]model.SearchResultItem, len(tasks))
		for i, t := range tasks {
			results[i] = model.SearchResultItem{Kind: "task", TaskID: t.TaskID, Name: t.Name, Snippet: t.Snippet, Score: 1.0}
		}
		return model.SearchResponse{Results: results, TotalTasks: int64(len(results)), Limit: limit, Offset: opt.Offset}, nil
	}

	limit := opt.Limit
	if limit <= 0 {
		limit = 20
	}

	if id, ok := parseIDLookup(q); ok {
		t, found, err := s.store.FindTaskByIDLookup(ctx, nil, id)
		if err != nil {
			return model.SearchResponse{}, err
		}
		if !found {
			return model.SearchResponse{Limit: limit, Offset: opt.Offset}, nil
		}
		return model.SearchResponse{
			Results: []model.SearchResultItem{{
				Kind: "task", TaskID: t.TaskID, Name: t.Name, Snippet: t.Snippet, Score: 1.0,
			}},
			TotalTasks: 1,
			Limit:      limit, Offset: opt.Offset,
		}, nil
	}

	var taskHits []store.ScoredTask
	var eventHits []store.ScoredEvent
	useLike := isShortQuery(q)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if useLike {
			taskHits, err = s.store.SearchTasksLike(gctx, nil, q, limit)
		} else {
			taskHits, err = s.store.SearchTasksFTS(gctx, nil, q, limit)
		}
		return err
	})
	g.Go(func() error {
		var err error
		if useLike {
			eventHits, err = s.store.SearchEventsLike(gctx, nil, q, limit)
		} else {
			eventHits, err = s.store.SearchEventsFTS(gctx, nil, q, limit)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return model.SearchResponse{}, err
	}

	results := make([]model.SearchResultItem, 0, len(taskHits)+len(eventHits))
	for _, t := range taskHits {
		score := rankToScore(t.Rank)
		if useLike {
			score = 1.0
		}
		results = append(results, model.SearchResultItem{
			Kind: "task", TaskID: t.TaskID, Name: t.Name, Snippet: t.Snippet, Score: score,
		})
	}

	if len(eventHits) > 0 {
		ancestry, err := s.batchAncestry(ctx, eventHits)
		if err != nil {
			return model.SearchResponse{}, err
		}
		for _, e := range eventHits {
			id := e.EventID
			score := rankToScore(e.Rank)
			if useLike {
				score = 1.0
			}
			results = append(results, model.SearchResultItem{
				Kind: "event", TaskID: e.TaskID, EventID: &id, Snippet: e.Snippet,
				Score: score, Ancestry: ancestry[e.TaskID],
			})
		}
	}

	totalTasks, err := s.store.CountAllTasks(ctx, nil)
	if err != nil {
		return model.SearchResponse{}, err
	}
	totalEvents, err := s.store.CountAllEvents(ctx, nil)
	if err != nil {
		return model.SearchResponse{}, err
	}

	return model.SearchResponse{
		Results:     paginate(results, opt.Offset, limit),
		TotalTasks:  totalTasks,
		TotalEvents: totalEvents,
		HasMore:     opt.Offset+limit < int64(len(results)),
		Limit:       limit,
		Offset:      opt.Offset,
	}, nil
}

// batchAncestry resolves each distinct task id referenced by eventHits to
// its ancestry chain in one pass, rather than once per result row.
func (s *Service) batchAncestry(ctx context.Context, hits []store.ScoredEvent) (map[int64][]model.TaskBrief, error) {
	seen := map[int64]bool{}
	out := map[int64][]model.TaskBrief{}
	for _, h := range hits {
		if seen[h.TaskID] {
			continue
		}
		seen[h.TaskID] = true
		ancestors, err := s.store.TaskAncestry(ctx, nil, h.TaskID)
		if err != nil {
			return nil, err
		}
		briefs := make([]model.TaskBrief, len(ancestors))
		for i, a := range ancestors {
			briefs[i] = model.BriefOf(a)
		}
		out[h.TaskID] = briefs
	}
	return out, nil
}

func paginate(items []model.SearchResultItem, offset, limit int64) []model.SearchResultItem {
	if offset >= int64(len(items)) {
		return nil
	}
	end := offset + limit
	if end > int64(len(items)) {
		end = int64(len(items))
	}
	return items[offset:end]
}

func rankToScore(rank float64) float64 {
	if rank == 0 {
		return 1.0
	}
	// bm25 in SQLite FTS5 returns more-negative-is-better; invert onto a
	// positive, higher-is-better scale without assuming a fixed ceiling.
	return 1.0 / (1.0 + absFloat(rank))
}

func absFloat(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func parseIDLookup(q string) (int64, bool) {
	if !strings.HasPrefix(q, "#") {
		return 0, false
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(q, "#"), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// statusKeyword matches a query made entirely of space-separated status
// words (e.g. "todo", "todo doing"), returning the deduplicated set of
// statuses to match. Any token outside {todo, doing, done} disqualifies the
// whole query, falling through to full-text search instead.
func statusKeyword(q string) ([]string, bool) {
	fields := strings.Fields(strings.ToLower(q))
	if len(fields) == 0 {
		return nil, false
	}
	seen := map[string]bool{}
	var statuses []string
	for _, f := range fields {
		switch f {
		case model.StatusTodo, model.StatusDoing, model.StatusDone:
			if !seen[f] {
				seen[f] = true
				statuses = append(statuses, f)
			}
		default:
			return nil, false
		}
	}
	return statuses, true
}

// isShortQuery matches spec's fallback rule: CJK queries under three
// characters, or a query with no alphanumeric/CJK content at all, skip FTS
// (whose trigram tokenizer needs at least 3 code points to produce a trigram)
// in favor of a plain LIKE scan.
func isShortQuery(q string) bool {
	runeCount := 0
	hasAlnumOrCJK := false
	for _, r := range q {
		runeCount++
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Han, r) {
			hasAlnumOrCJK = true
		}
	}
	if !hasAlnumOrCJK {
		return true
	}
	return containsCJK(q) && runeCount < 3
}

func containsCJK(q string) bool {
	for _, r := range q {
		if unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) || unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r) {
			return true
		}
	}
	return false
}
