package toolserver

import (
	"context"
	"fmt"
	"time"

	"github.com/wayfind/intent-engine/internal/durationparse"
	"github.com/wayfind/intent-engine/internal/event"
	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/model"
	"github.com/wayfind/intent-engine/internal/plan"
	"github.com/wayfind/intent-engine/internal/report"
	"github.com/wayfind/intent-engine/internal/search"
	"github.com/wayfind/intent-engine/internal/store"
	"github.com/wayfind/intent-engine/internal/task"
)

func (srv *Server) registerTools() {
	srv.register("task_add", "Create a new task.", taskAddSchema(), srv.handleTaskAdd)
	srv.register("task_get", "Fetch a task by id.", taskGetSchema(), srv.handleTaskGet)
	srv.register("task_update", "Apply a sparse update to an existing task.", taskUpdateSchema(), srv.handleTaskUpdate)
	srv.register("task_list", "List tasks with optional status/parent filters and pagination.", taskListSchema(), srv.handleTaskList)
	srv.register("task_delete", "Delete a task.", taskDeleteSchema(), srv.handleTaskDelete)
	srv.register("task_start", "Start a task and focus the session on it.", taskStartSchema(), srv.handleTaskStart)
	srv.register("task_done", "Complete the session's current focus, or a specific task.", taskDoneSchema(), srv.handleTaskDone)
	srv.register("task_pick_next", "Recommend the next task to focus on.", taskPickNextSchema(), srv.handleTaskPickNext)
	srv.register("task_spawn_subtask", "Create a child of the current focus and switch to it.", taskSpawnSubtaskSchema(), srv.handleTaskSpawnSubtask)
	srv.register("task_switch", "Switch the session's focus without changing status.", taskSwitchSchema(), srv.handleTaskSwitch)
	srv.register("current_task_get", "Fetch the session's current focus.", currentTaskGetSchema(), srv.handleCurrentTaskGet)
	srv.register("task_context", "Fetch ancestry, siblings, descendants, and events for a task.", taskContextSchema(), srv.handleTaskContext)
	srv.register("event_add", "Append a decision-log entry to a task.", eventAddSchema(), srv.handleEventAdd)
	srv.register("event_list", "List events, optionally filtered.", eventListSchema(), srv.handleEventList)
	srv.register("task_add_dependency", "Record that one task blocks another.", taskAddDependencySchema(), srv.handleTaskAddDependency)
	srv.register("search", "Unified search over tasks and events.", searchSchema(), srv.handleSearch)
	srv.register("plan_apply", "Apply a declarative batch of task operations.", planApplySchema(), srv.handlePlanApply)
	srv.register("report_generate", "Generate a status rollup over tasks.", reportGenerateSchema(), srv.handleReportGenerate)
	srv.register("suggestion_list", "List background-analysis suggestions.", suggestionListSchema(), srv.handleSuggestionList)
	srv.register("suggestion_dismiss", "Dismiss a suggestion.", suggestionDismissSchema(), srv.handleSuggestionDismiss)
}

func (srv *Server) handleTaskAdd(ctx context.Context, args map[string]any) (string, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return "", err
	}
	status := stringArg(args, "status")
	t, err := srv.tasks.Add(ctx, task.NewTaskInput{
		ParentID:   optionalInt(args, "parent_id"),
		Name:       name,
		Spec:       optionalString(args, "spec"),
		Status:     status,
		Complexity: optionalIntVal(args, "complexity"),
		Priority:   optionalIntVal(args, "priority"),
		ActiveForm: optionalString(args, "active_form"),
		Owner:      stringArg(args, "owner"),
		Metadata:   optionalString(args, "metadata"),
	})
	if err != nil {
		return "", err
	}
	return toJSON(t)
}

func (srv *Server) handleTaskGet(ctx context.Context, args map[string]any) (string, error) {
	id, err := requireInt(args, "id")
	if err != nil {
		return "", err
	}
	if optionalBool(args, "include_events") {
		t, err := srv.tasks.GetWithEvents(ctx, id, 5)
		if err != nil {
			return "", err
		}
		return toJSON(t)
	}
	t, err := srv.tasks.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return toJSON(t)
}

func (srv *Server) handleTaskUpdate(ctx context.Context, args map[string]any) (string, error) {
	id, err := requireInt(args, "id")
	if err != nil {
		return "", err
	}
	upd := store.TaskUpdate{
		Name:       optionalString(args, "name"),
		Spec:       optionalString(args, "spec"),
		Complexity: optionalIntVal(args, "complexity"),
		Priority:   optionalIntVal(args, "priority"),
		ActiveForm: optionalString(args, "active_form"),
		Owner:      optionalString(args, "owner"),
		Metadata:   optionalString(args, "metadata"),
	}
	if s := stringArg(args, "status"); s != "" {
		upd.Status = &s
	}
	if pid := optionalInt(args, "parent_id"); pid != nil {
		upd.ParentID = &pid
	}
	t, err := srv.tasks.Update(ctx, id, upd)
	if err != nil {
		return "", err
	}
	return toJSON(t)
}

func (srv *Server) handleTaskList(ctx context.Context, args map[string]any) (string, error) {
	f := store.FindTasksFilter{
		Limit:  defaultInt(optionalInt(args, "limit"), 50),
		Offset: defaultInt(optionalInt(args, "offset"), 0),
	}
	if s := stringArg(args, "status"); s != "" {
		f.Status = &s
	}
	if pid, ok := args["parent_id"]; ok && pid != nil {
		f.ParentIDSet = true
		n, err := toInt64(pid)
		if err != nil {
			return "", err
		}
		if n != 0 {
			f.ParentID = &n
		}
	}
	if sb := stringArg(args, "sort_by"); sb != "" {
		f.SortBy = model.TaskSortBy(sb)
	}
	paginated, err := srv.tasks.Find(ctx, f)
	if err != nil {
		return "", err
	}
	return toJSON(paginated)
}

func (srv *Server) handleTaskDelete(ctx context.Context, args map[string]any) (string, error) {
	id, err := requireInt(args, "id")
	if err != nil {
		return "", err
	}
	if optionalBool(args, "cascade") {
		n, err := srv.tasks.DeleteCascade(ctx, id)
		if err != nil {
			return "", err
		}
		return toJSON(map[string]any{"deleted_count": n})
	}
	if err := srv.tasks.Delete(ctx, id); err != nil {
		return "", err
	}
	return toJSON(map[string]any{"deleted_count": 1})
}

func (srv *Server) handleTaskStart(ctx context.Context, args map[string]any) (string, error) {
	id, err := requireInt(args, "id")
	if err != nil {
		return "", err
	}
	t, err := srv.tasks.Start(ctx, id, srv.sessionID(args))
	if err != nil {
		return "", err
	}
	return toJSON(t)
}

func (srv *Server) handleTaskDone(ctx context.Context, args map[string]any) (string, error) {
	sessionID := srv.sessionID(args)
	if id := optionalInt(args, "id"); id != nil {
		resp, err := srv.tasks.DoneByID(ctx, *id, sessionID)
		if err != nil {
			return "", err
		}
		return toJSON(resp)
	}
	resp, err := srv.tasks.Done(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return toJSON(resp)
}

func (srv *Server) handleTaskPickNext(ctx context.Context, args map[string]any) (string, error) {
	resp, err := srv.tasks.PickNext(ctx, srv.sessionID(args))
	if err != nil {
		return "", err
	}
	return toJSON(resp)
}

func (srv *Server) handleTaskSpawnSubtask(ctx context.Context, args map[string]any) (string, error) {
	name, err := requireString(args, "name")
	if err != nil {
		return "", err
	}
	t, err := srv.tasks.SpawnSubtask(ctx, srv.sessionID(args), task.NewTaskInput{
		Name:       name,
		Spec:       optionalString(args, "spec"),
		Priority:   optionalIntVal(args, "priority"),
		Complexity: optionalIntVal(args, "complexity"),
	})
	if err != nil {
		return "", err
	}
	return toJSON(t)
}

func (srv *Server) handleTaskSwitch(ctx context.Context, args map[string]any) (string, error) {
	id, err := requireInt(args, "id")
	if err != nil {
		return "", err
	}
	t, err := srv.tasks.Switch(ctx, id, srv.sessionID(args))
	if err != nil {
		return "", err
	}
	return toJSON(t)
}

func (srv *Server) handleCurrentTaskGet(ctx context.Context, args map[string]any) (string, error) {
	t, err := srv.tasks.CurrentTask(ctx, srv.sessionID(args))
	if err != nil {
		return "", err
	}
	if t == nil {
		return toJSON(map[string]any{"current_task": nil})
	}
	return toJSON(map[string]any{"current_task": t})
}

func (srv *Server) handleTaskContext(ctx context.Context, args map[string]any) (string, error) {
	id, err := requireInt(args, "id")
	if err != nil {
		return "", err
	}
	resp, err := srv.tasks.Context(ctx, id, optionalBool(args, "include_events"), 5)
	if err != nil {
		return "", err
	}
	return toJSON(resp)
}

func (srv *Server) handleEventAdd(ctx context.Context, args map[string]any) (string, error) {
	taskID, err := requireInt(args, "task_id")
	if err != nil {
		return "", err
	}
	logType, err := requireString(args, "log_type")
	if err != nil {
		return "", err
	}
	body, err := requireString(args, "body")
	if err != nil {
		return "", err
	}
	e, err := srv.events.Add(ctx, taskID, logType, body)
	if err != nil {
		return "", err
	}

	if t, terr := srv.tasks.Get(ctx, taskID); terr == nil {
		srv.suggestions.MaybeAnalyze(ctx, t.Name, body)
	}

	return toJSON(e)
}

func (srv *Server) handleEventList(ctx context.Context, args map[string]any) (string, error) {
	f := eventListFilter(args)
	events, err := srv.events.List(ctx, f)
	if err != nil {
		return "", err
	}
	return toJSON(map[string]any{"events": events})
}

func eventListFilter(args map[string]any) event.ListFilter {
	f := event.ListFilter{
		TaskID:  optionalInt(args, "task_id"),
		LogType: optionalString(args, "log_type"),
		Limit:   defaultInt(optionalInt(args, "limit"), 20),
	}
	if s := stringArg(args, "since"); s != "" {
		if t, err := durationparse.Resolve(s, time.Now().UTC()); err == nil {
			f.Since = &t
		}
	}
	return f
}

func (srv *Server) handleTaskAddDependency(ctx context.Context, args map[string]any) (string, error) {
	blocking, err := requireInt(args, "blocking_task_id")
	if err != nil {
		return "", err
	}
	blocked, err := requireInt(args, "blocked_task_id")
	if err != nil {
		return "", err
	}
	d, err := srv.dependencies.Add(ctx, blocking, blocked)
	if err != nil {
		return "", err
	}
	return toJSON(d)
}

func (srv *Server) handleSearch(ctx context.Context, args map[string]any) (string, error) {
	query, err := requireString(args, "query")
	if err != nil {
		return "", err
	}
	resp, err := srv.searcher.Search(ctx, search.Options{
		Query:  query,
		Limit:  defaultInt(optionalInt(args, "limit"), 20),
		Offset: defaultInt(optionalInt(args, "offset"), 0),
	})
	if err != nil {
		return "", err
	}
	return toJSON(resp)
}

func (srv *Server) handlePlanApply(ctx context.Context, args map[string]any) (string, error) {
	rawItems, ok := args["items"].([]any)
	if !ok || len(rawItems) == 0 {
		return "", ierr.InvalidInput(`"items" is required and must be a non-empty array`)
	}
	items := make([]plan.Item, 0, len(rawItems))
	for _, raw := range rawItems {
		m, ok := raw.(map[string]any)
		if !ok {
			return "", ierr.InvalidInput("each plan item must be an object")
		}
		name, err := requireString(m, "name")
		if err != nil {
			return "", err
		}
		it := plan.Item{
			Name:       name,
			ID:         optionalInt(m, "id"),
			ParentName: optionalString(m, "parent_name"),
			ParentID:   optionalInt(m, "parent_id"),
			Spec:       optionalString(m, "spec"),
			Complexity: optionalIntVal(m, "complexity"),
			Priority:   optionalIntVal(m, "priority"),
			ActiveForm: optionalString(m, "active_form"),
			Owner:      optionalString(m, "owner"),
			Metadata:   optionalString(m, "metadata"),
			Delete:     optionalBool(m, "delete"),
			Cascade:    optionalBool(m, "cascade"),
		}
		if s := stringArg(m, "status"); s != "" {
			it.Status = &s
		}
		if deps, ok := m["depends_on"].([]any); ok {
			for _, d := range deps {
				if s, ok := d.(string); ok {
					it.DependsOn = append(it.DependsOn, s)
				}
			}
		}
		items = append(items, it)
	}

	result, err := srv.planner.Apply(ctx, plan.Plan{Items: items, SessionID: srv.sessionID(args)})
	if err != nil {
		return "", err
	}
	return toJSON(result)
}

func (srv *Server) handleReportGenerate(ctx context.Context, args map[string]any) (string, error) {
	opt := report.Options{
		FilterName:  stringArg(args, "filter_name"),
		FilterSpec:  stringArg(args, "filter_spec"),
		SummaryOnly: optionalBool(args, "summary_only"),
	}
	if s := stringArg(args, "since"); s != "" {
		t, err := durationparse.Resolve(s, time.Now().UTC())
		if err != nil {
			return "", ierr.InvalidInput(fmt.Sprintf("invalid since: %v", err))
		}
		opt.Since = &t
	}
	r, err := srv.reports.Generate(ctx, opt)
	if err != nil {
		return "", err
	}
	return toJSON(r)
}

func (srv *Server) handleSuggestionList(ctx context.Context, args map[string]any) (string, error) {
	list, err := srv.suggestions.List(ctx, optionalBool(args, "include_dismissed"))
	if err != nil {
		return "", err
	}
	return toJSON(map[string]any{"suggestions": list})
}

func (srv *Server) handleSuggestionDismiss(ctx context.Context, args map[string]any) (string, error) {
	id, err := requireInt(args, "id")
	if err != nil {
		return "", err
	}
	if err := srv.suggestions.Dismiss(ctx, id); err != nil {
		return "", err
	}
	return toJSON(map[string]any{"dismissed": true})
}

func defaultInt(v *int64, def int64) int64 {
	if v == nil {
		return def
	}
	return *v
}
