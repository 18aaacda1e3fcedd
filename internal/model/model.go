// Package model holds the entity types shared by every Intent-Engine
// service: tasks, events, sessions, dependencies, and the response shapes
// the services return.
package model

import "time"

// Task is a node in the work hierarchy.
type Task struct {
	ID           int64      `json:"id"`
	ParentID     *int64     `json:"parent_id,omitempty"`
	Name         string     `json:"name"`
	Spec         *string    `json:"spec,omitempty"`
	Status       string     `json:"status"`
	Complexity   *int       `json:"complexity,omitempty"`
	Priority     *int       `json:"priority,omitempty"`
	FirstTodoAt  *time.Time `json:"first_todo_at,omitempty"`
	FirstDoingAt *time.Time `json:"first_doing_at,omitempty"`
	FirstDoneAt  *time.Time `json:"first_done_at,omitempty"`
	ActiveForm   *string    `json:"active_form,omitempty"`
	Owner        string     `json:"owner"`
	Metadata     *string    `json:"metadata,omitempty"`
}

// Statuses a Task may hold.
const (
	StatusTodo  = "todo"
	StatusDoing = "doing"
	StatusDone  = "done"
)

// ValidStatus reports whether s is one of the three lifecycle states.
func ValidStatus(s string) bool {
	return s == StatusTodo || s == StatusDoing || s == StatusDone
}

// TaskBrief is a condensed projection of Task used in ancestry/sibling lists.
type TaskBrief struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// BriefOf projects a Task down to a TaskBrief.
func BriefOf(t Task) TaskBrief {
	return TaskBrief{ID: t.ID, Name: t.Name, Status: t.Status}
}

// Event is an append-only decision-log entry attached to a task.
type Event struct {
	ID             int64     `json:"id"`
	TaskID         int64     `json:"task_id"`
	Timestamp      time.Time `json:"timestamp"`
	LogType        string    `json:"log_type"`
	DiscussionData string    `json:"discussion_data"`
}

// EventsSummary is a count + recent window (see store.EventsSummary, which
// fetches them with two queries).
type EventsSummary struct {
	TotalCount int     `json:"total_count"`
	Recent     []Event `json:"recent"`
}

// TaskWithEvents bundles a task with an optional events summary.
type TaskWithEvents struct {
	Task          Task           `json:"task"`
	EventsSummary *EventsSummary `json:"events_summary,omitempty"`
}

// Session is per-client focus state.
type Session struct {
	SessionID     string    `json:"session_id"`
	CurrentTaskID *int64    `json:"current_task_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	LastActiveAt  time.Time `json:"last_active_at"`
}

// Dependency records "blocking must be done before blocked may start".
type Dependency struct {
	ID             int64     `json:"id"`
	BlockingTaskID int64     `json:"blocking_task_id"`
	BlockedTaskID  int64     `json:"blocked_task_id"`
	CreatedAt      time.Time `json:"created_at"`
}

// Suggestion types.
const (
	SuggestionTaskStructure = "task_structure"
	SuggestionEventSynth    = "event_synthesis"
	SuggestionError         = "error"
)

// Suggestion is a background-analysis result.
type Suggestion struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Dismissed bool      `json:"dismissed"`
}

// TaskSortBy selects the ordering for TaskService.Find.
type TaskSortBy string

const (
	SortByID         TaskSortBy = "id"
	SortByPriority   TaskSortBy = "priority"
	SortByTime       TaskSortBy = "time"
	SortByFocusAware TaskSortBy = "focus_aware"
)

// PaginatedTasks is the result of TaskService.Find.
type PaginatedTasks struct {
	Tasks      []Task `json:"tasks"`
	TotalCount int64  `json:"total_count"`
	HasMore    bool   `json:"has_more"`
	Limit      int64  `json:"limit"`
	Offset     int64  `json:"offset"`
}

// WorkspaceStatus reports the focus pointer after a mutation.
type WorkspaceStatus struct {
	CurrentTaskID *int64 `json:"current_task_id,omitempty"`
}

// NextStepSuggestion kinds, returned structurally from TaskService.Done.
const (
	NextParentIsReady        = "parent_is_ready"
	NextSiblingTasksRemain   = "sibling_tasks_remain"
	NextTopLevelTaskComplete = "top_level_task_completed"
	NextNoParentContext      = "no_parent_context"
	NextWorkspaceIsClear     = "workspace_is_clear"
)

// NextStepSuggestion is the structured hint returned from TaskService.Done.
type NextStepSuggestion struct {
	Kind                   string `json:"kind"`
	Message                string `json:"message"`
	ParentTaskID           *int64 `json:"parent_task_id,omitempty"`
	ParentTaskName         string `json:"parent_task_name,omitempty"`
	RemainingSiblingsCount int64  `json:"remaining_siblings_count,omitempty"`
	CompletedTaskID        int64  `json:"completed_task_id,omitempty"`
	CompletedTaskName      string `json:"completed_task_name,omitempty"`
}

// DoneTaskResponse is returned by TaskService.Done / DoneByID.
type DoneTaskResponse struct {
	CompletedTask       Task                `json:"completed_task"`
	WorkspaceStatus     WorkspaceStatus     `json:"workspace_status"`
	NextStepSuggestion  NextStepSuggestion  `json:"next_step_suggestion"`
}

// PickNext reasons.
const (
	PickFocusedSubtask    = "focused_subtask"
	PickTopLevelTask      = "top_level_task"
	PickNoTasksInProject  = "NO_TASKS_IN_PROJECT"
	PickAllTasksCompleted = "ALL_TASKS_COMPLETED"
	PickNoAvailableTodos  = "NO_AVAILABLE_TODOS"
)

// PickNextResponse is returned by TaskService.PickNext.
type PickNextResponse struct {
	Reason string `json:"reason"`
	Task   *Task  `json:"task,omitempty"`
}

// FocusedSubtaskPick builds a PickNextResponse for a child of the current focus.
func FocusedSubtaskPick(t Task) PickNextResponse {
	return PickNextResponse{Reason: PickFocusedSubtask, Task: &t}
}

// TopLevelPick builds a PickNextResponse for a root-level task.
func TopLevelPick(t Task) PickNextResponse {
	return PickNextResponse{Reason: PickTopLevelTask, Task: &t}
}

// StatusResponse is the task_context tool's aggregate view of one task.
type StatusResponse struct {
	FocusedTask Task          `json:"focused_task"`
	Ancestors   []Task        `json:"ancestors"`
	Siblings    []TaskBrief   `json:"siblings"`
	Descendants []TaskBrief   `json:"descendants"`
	Events      *[]Event      `json:"events,omitempty"`
}

// SearchResultItem is one row of a unified search response.
type SearchResultItem struct {
	Kind     string      `json:"kind"` // "task" | "event"
	TaskID   int64       `json:"task_id"`
	EventID  *int64      `json:"event_id,omitempty"`
	Name     string      `json:"name"`
	Snippet  string      `json:"snippet"`
	Score    float64     `json:"score"`
	Ancestry []TaskBrief `json:"ancestry,omitempty"`
}

// SearchResponse is returned by SearchService.Search.
type SearchResponse struct {
	Results     []SearchResultItem `json:"results"`
	TotalTasks  int64               `json:"total_tasks"`
	TotalEvents int64               `json:"total_events"`
	HasMore     bool                `json:"has_more"`
	Limit       int64               `json:"limit"`
	Offset      int64               `json:"offset"`
}

// PlanResult is returned by the PlanExecutor.
type PlanResult struct {
	Success             bool             `json:"success"`
	CreatedCount        int              `json:"created_count"`
	UpdatedCount        int              `json:"updated_count"`
	DeletedCount        int              `json:"deleted_count"`
	CascadeDeletedCount int              `json:"cascade_deleted_count"`
	DependencyCount     int              `json:"dependency_count"`
	TaskIDMap           map[string]int64 `json:"task_id_map"`
	Warnings            []string         `json:"warnings,omitempty"`
	FocusedTask         *TaskWithEvents  `json:"focused_task,omitempty"`
	Error               string           `json:"error,omitempty"`
}

// Report is the report_generate tool's rollup.
type Report struct {
	Since       *time.Time     `json:"since,omitempty"`
	CountByStat map[string]int `json:"count_by_status"`
	TotalCount  int            `json:"total_count"`
	Tasks       []Task         `json:"tasks,omitempty"`
}
