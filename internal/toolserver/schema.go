package toolserver

import (
	"github.com/google/jsonschema-go/jsonschema"
)

// prop builds one property's schema inline; this file assembles the 20 tool
// input schemas programmatically instead of as hand-written JSON literals,
// per SPEC_FULL.md's domain-stack binding for google/jsonschema-go.
func prop(typ, description string) *jsonschema.Schema {
	return &jsonschema.Schema{Type: typ, Description: description}
}

func enumProp(typ, description string, values ...string) *jsonschema.Schema {
	s := prop(typ, description)
	for _, v := range values {
		s.Enum = append(s.Enum, v)
	}
	return s
}

func arrayProp(description string, items *jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{Type: "array", Description: description, Items: items}
}

func object(description string, required []string, props map[string]*jsonschema.Schema) *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:        "object",
		Description: description,
		Required:    required,
		Properties:  props,
	}
}

var statusEnum = []string{"todo", "doing", "done"}

func taskAddSchema() *jsonschema.Schema {
	return object("Create a new task.", []string{"name"}, map[string]*jsonschema.Schema{
		"name":        prop("string", "short human-readable task name"),
		"parent_id":   prop("integer", "id of the parent task, if any"),
		"spec":        prop("string", "free-form description of what this task requires"),
		"status":      enumProp("string", "initial status; defaults to todo", statusEnum...),
		"complexity":  prop("integer", "rough size estimate"),
		"priority":    prop("integer", "higher sorts first"),
		"active_form": prop("string", "present-continuous phrasing, e.g. \"Refactoring the parser\""),
		"owner":       prop("string", "who owns this task; defaults to \"human\""),
		"metadata":    prop("string", "opaque JSON blob for caller-defined extensions"),
	})
}

func taskGetSchema() *jsonschema.Schema {
	return object("Fetch a task by id.", []string{"id"}, map[string]*jsonschema.Schema{
		"id":             prop("integer", "task id"),
		"include_events": prop("boolean", "include a recent-events summary"),
	})
}

func taskUpdateSchema() *jsonschema.Schema {
	return object("Apply a sparse update to an existing task.", []string{"id"}, map[string]*jsonschema.Schema{
		"id":          prop("integer", "task id"),
		"parent_id":   prop("integer", "move the task under a new parent"),
		"name":        prop("string", "new name"),
		"spec":        prop("string", "new spec text"),
		"status":      enumProp("string", "new status", statusEnum...),
		"complexity":  prop("integer", "new complexity estimate"),
		"priority":    prop("integer", "new priority"),
		"active_form": prop("string", "new present-continuous phrasing"),
		"owner":       prop("string", "new owner"),
		"metadata":    prop("string", "new metadata blob"),
	})
}

func taskListSchema() *jsonschema.Schema {
	return object("List tasks with optional status/parent filters and pagination.", nil, map[string]*jsonschema.Schema{
		"status":    enumProp("string", "filter to one status", statusEnum...),
		"parent_id": prop("integer", "filter to children of this task (pass 0 for top-level tasks)"),
		"sort_by":   enumProp("string", "sort order", "id", "priority", "time", "focus_aware"),
		"limit":     prop("integer", "page size, defaults to 50"),
		"offset":    prop("integer", "page offset, defaults to 0"),
	})
}

func taskDeleteSchema() *jsonschema.Schema {
	return object("Delete a task.", []string{"id"}, map[string]*jsonschema.Schema{
		"id":      prop("integer", "task id"),
		"cascade": prop("boolean", "delete the whole subtree instead of requiring no children"),
	})
}

func taskStartSchema() *jsonschema.Schema {
	return object("Start a task: move it to doing and focus the session on it.", []string{"id"}, map[string]*jsonschema.Schema{
		"id": prop("integer", "task id"),
	})
}

func taskDoneSchema() *jsonschema.Schema {
	return object("Complete the session's current focus, or a specific task if id is given.", nil, map[string]*jsonschema.Schema{
		"id": prop("integer", "task id; defaults to the session's current focus"),
	})
}

func taskPickNextSchema() *jsonschema.Schema {
	return object("Recommend the next task to focus on.", nil, map[string]*jsonschema.Schema{})
}

func taskSpawnSubtaskSchema() *jsonschema.Schema {
	return object("Create a child of the current focus and switch focus to it.", []string{"name"}, map[string]*jsonschema.Schema{
		"name":       prop("string", "short human-readable task name"),
		"spec":       prop("string", "free-form description"),
		"priority":   prop("integer", "higher sorts first"),
		"complexity": prop("integer", "rough size estimate"),
	})
}

func taskSwitchSchema() *jsonschema.Schema {
	return object("Switch the session's focus without changing status.", []string{"id"}, map[string]*jsonschema.Schema{
		"id": prop("integer", "task id"),
	})
}

func currentTaskGetSchema() *jsonschema.Schema {
	return object("Fetch the session's current focus.", nil, map[string]*jsonschema.Schema{})
}

func taskContextSchema() *jsonschema.Schema {
	return object("Fetch ancestry, siblings, descendants, and recent events for a task.", []string{"id"}, map[string]*jsonschema.Schema{
		"id":             prop("integer", "task id"),
		"include_events": prop("boolean", "include recent events"),
	})
}

func eventAddSchema() *jsonschema.Schema {
	return object("Append a decision-log entry to a task.", []string{"task_id", "log_type", "body"}, map[string]*jsonschema.Schema{
		"task_id":  prop("integer", "task id"),
		"log_type": prop("string", "a short category tag, e.g. \"decision\" or \"note\""),
		"body":     prop("string", "the event text"),
	})
}

func eventListSchema() *jsonschema.Schema {
	return object("List events, optionally filtered by task, type, or time window.", nil, map[string]*jsonschema.Schema{
		"task_id":  prop("integer", "filter to one task"),
		"log_type": prop("string", "filter to one log_type"),
		"since":    prop("string", "duration string (e.g. \"2d\") or YYYY-MM-DD"),
		"limit":    prop("integer", "page size, defaults to 20"),
	})
}

func taskAddDependencySchema() *jsonschema.Schema {
	return object("Record that one task must finish before another may start.", []string{"blocking_task_id", "blocked_task_id"}, map[string]*jsonschema.Schema{
		"blocking_task_id": prop("integer", "the task that must finish first"),
		"blocked_task_id":  prop("integer", "the task that cannot start until blocking_task_id is done"),
	})
}

func searchSchema() *jsonschema.Schema {
	return object("Unified search over tasks and events.", []string{"query"}, map[string]*jsonschema.Schema{
		"query":  prop("string", "search text; \"#<id>\" looks up a task directly, \"todo\"/\"doing\"/\"done\" lists by status"),
		"limit":  prop("integer", "page size, defaults to 20"),
		"offset": prop("integer", "page offset, defaults to 0"),
	})
}

func planApplySchema() *jsonschema.Schema {
	item := object("One task upsert or delete.", []string{"name"}, map[string]*jsonschema.Schema{
		"name":        prop("string", "unique key for this item within the plan"),
		"id":          prop("integer", "operate on this existing task id instead of matching by name"),
		"parent_name": prop("string", "name of another item in this plan to use as parent"),
		"parent_id":   prop("integer", "existing task id to use as parent, overriding parent_name"),
		"spec":        prop("string", "spec text"),
		"status":      enumProp("string", "status", statusEnum...),
		"complexity":  prop("integer", "complexity estimate"),
		"priority":    prop("integer", "priority"),
		"active_form": prop("string", "present-continuous phrasing"),
		"owner":       prop("string", "owner"),
		"metadata":    prop("string", "metadata blob"),
		"depends_on":  arrayProp("names of other items in this plan that must complete first", prop("string", "item name")),
		"delete":      prop("boolean", "delete this task instead of upserting it"),
		"cascade":     prop("boolean", "when deleting, remove the whole subtree"),
	})
	return object("Apply a declarative batch of task upserts/deletes as one transaction.", []string{"items"}, map[string]*jsonschema.Schema{
		"items": arrayProp("the batch of task operations", item),
	})
}

func reportGenerateSchema() *jsonschema.Schema {
	return object("Generate a status rollup over tasks.", nil, map[string]*jsonschema.Schema{
		"since":        prop("string", "duration string (e.g. \"7d\") or YYYY-MM-DD"),
		"filter_name":  prop("string", "case-insensitive substring match on task name"),
		"filter_spec":  prop("string", "case-insensitive substring match on task spec"),
		"summary_only": prop("boolean", "omit the task list, returning only counts"),
	})
}

func suggestionListSchema() *jsonschema.Schema {
	return object("List background-analysis suggestions.", nil, map[string]*jsonschema.Schema{
		"include_dismissed": prop("boolean", "include already-dismissed suggestions"),
	})
}

func suggestionDismissSchema() *jsonschema.Schema {
	return object("Dismiss a suggestion.", []string{"id"}, map[string]*jsonschema.Schema{
		"id": prop("integer", "suggestion id"),
	})
}
