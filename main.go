// ie CLI entry point
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/fatih/color"

	"github.com/wayfind/intent-engine/internal/config"
	"github.com/wayfind/intent-engine/internal/dependency"
	"github.com/wayfind/intent-engine/internal/durationparse"
	"github.com/wayfind/intent-engine/internal/event"
	"github.com/wayfind/intent-engine/internal/ierr"
	"github.com/wayfind/intent-engine/internal/llm"
	"github.com/wayfind/intent-engine/internal/plan"
	"github.com/wayfind/intent-engine/internal/report"
	"github.com/wayfind/intent-engine/internal/search"
	"github.com/wayfind/intent-engine/internal/store"
	"github.com/wayfind/intent-engine/internal/suggestion"
	"github.com/wayfind/intent-engine/internal/task"
	"github.com/wayfind/intent-engine/internal/toolserver"
	"github.com/wayfind/intent-engine/internal/workspace"
)

var version = "dev"

func init() {
	if version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	if cmd == "-version" || cmd == "--version" {
		fmt.Printf("ie %s\n", version)
		return
	}
	if cmd == "-h" || cmd == "--help" || cmd == "help" {
		printUsage()
		return
	}

	logger := config.NewLogger()
	defer logger.Close()

	var err error
	switch cmd {
	case "mcp":
		err = runMCP(args, logger)
	case "init":
		err = runInit(args)
	case "doctor":
		err = runDoctor(args)
	case "task":
		err = runTask(args)
	case "log":
		err = runLog(args, logger)
	case "search":
		err = runSearch(args)
	case "status":
		err = runStatus(args)
	case "plan":
		err = runPlan(args)
	case "report":
		err = runReport(args)
	case "suggestions":
		err = runSuggestions(args, logger)
	default:
		fmt.Fprintf(os.Stderr, "ie: unknown command %q\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `ie - persistent task-and-decision memory for AI coding assistants

Usage:
  ie init                         Create .intent-engine in the current directory
  ie doctor                       Report project/db/log health
  ie mcp                          Run the JSON-RPC tool server on stdio
  ie task add|get|update|list|delete|start|done|next|switch|spawn|context ...
  ie log <task_id> <log_type> <body>
  ie search <query>
  ie status [id]
  ie plan <file.json>
  ie report
  ie suggestions list|dismiss <id>

Flags:
  --format text|json   Output format (default text)
  --session <id>        Override session id (else $IE_SESSION_ID, else "-1")`)
}

// printError prints a plain colorized line for humans plus a {"error",
// "code"} envelope on the line after, matching the original CLI's dual
// rendering for both terminal and scripted consumers.
func printError(err error) {
	resp := ierr.ToResponse(err)
	fmt.Fprintf(os.Stderr, "%s %s\n", color.RedString("error:"), resp.Error)
	data, _ := json.Marshal(resp)
	fmt.Fprintln(os.Stderr, string(data))
}

// openProjectStore resolves the nearest .intent-engine directory and opens
// its database, failing with NOT_A_PROJECT if none is found.
func openProjectStore() (*store.Store, string, error) {
	root, ok := config.FindProjectRoot("")
	if !ok {
		return nil, "", ierr.NotAProject()
	}
	st, err := store.Open(root)
	if err != nil {
		return nil, "", err
	}
	return st, root, nil
}

func resolveSessionID(flagVal string) string {
	env := config.LoadEnv()
	return workspace.ResolveSessionID(flagVal, env.SessionID)
}

func printResult(format string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: encode result: %v\n", err)
		return
	}
	fmt.Println(string(data))
	_ = format // text and json render identically today; format is kept for CLI symmetry with toolserver
}

func runInit(args []string) error {
	dir, err := os.Getwd()
	if err != nil {
		return err
	}
	path, err := config.InitProject(dir)
	if err != nil {
		return err
	}
	st, err := store.Open(dir)
	if err != nil {
		return err
	}
	defer st.Close()
	fmt.Printf("%s initialized Intent-Engine project at %s\n", color.GreenString("✓"), path)
	return nil
}

func runDoctor(args []string) error {
	root, ok := config.FindProjectRoot("")
	fmt.Printf("log file:     %s\n", config.LogPath())
	if !ok {
		fmt.Println("project:      none found (run `ie init`)")
		return nil
	}
	fmt.Printf("project root: %s\n", root)

	st, err := store.Open(root)
	if err != nil {
		fmt.Printf("database:     %s %v\n", color.RedString("error"), err)
		return nil
	}
	defer st.Close()
	fmt.Printf("database:     %s\n", color.GreenString("ok"))

	env := config.LoadEnv()
	fmt.Printf("backend:      %s\n", env.Backend)
	fmt.Printf("session id:   %s\n", env.SessionID)
	if env.LLMEndpoint != "" {
		fmt.Printf("llm:          configured (%s)\n", env.LLMModel)
	} else {
		fmt.Println("llm:          not configured (suggestion synthesis disabled)")
	}
	return nil
}

func runMCP(args []string, logger *config.Logger) error {
	root, ok := config.FindProjectRoot("")
	if !ok {
		var err error
		root, err = os.Getwd()
		if err != nil {
			return err
		}
		if _, err := config.InitProject(root); err != nil {
			return err
		}
	}
	st, err := store.Open(root)
	if err != nil {
		return err
	}
	defer st.Close()

	env := config.LoadEnv()
	pc, _ := config.LoadProjectConfig(root)
	env = env.Merge(pc)

	llmClient := llm.New(env.LLMEndpoint, env.LLMAPIKey, env.LLMModel)

	srv := toolserver.New(version, toolserver.Services{
		Tasks:        task.New(st),
		Events:       event.New(st),
		Workspaces:   workspace.New(st),
		Dependencies: dependency.New(st),
		Search:       search.New(st),
		Plan:         plan.New(st),
		Reports:      report.New(st),
		Suggestions:  suggestion.New(st, llmClient, logger),
		EnvSessionID: env.SessionID,
	})

	return srv.Run(context.Background(), os.Stdin, os.Stdout)
}

func runTask(args []string) error {
	if len(args) == 0 {
		return ierr.InvalidInput("usage: ie task <add|get|update|list|delete|start|done|next|switch|spawn|context> ...")
	}
	sub, rest := args[0], args[1:]

	st, _, err := openProjectStore()
	if err != nil {
		return err
	}
	defer st.Close()
	svc := task.New(st)

	fs := flag.NewFlagSet("task "+sub, flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text|json")
	session := fs.String("session", "", "session id override")

	switch sub {
	case "add":
		name := fs.String("name", "", "task name")
		parentID := fs.Int64("parent-id", 0, "parent task id")
		spec := fs.String("spec", "", "spec text")
		status := fs.String("status", "", "initial status")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		in := task.NewTaskInput{Name: *name, Status: *status}
		if *parentID != 0 {
			in.ParentID = parentID
		}
		if *spec != "" {
			in.Spec = spec
		}
		t, err := svc.Add(context.Background(), in)
		if err != nil {
			return err
		}
		printResult(*format, t)
		return nil

	case "get":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := parsePositionalID(fs.Args())
		if err != nil {
			return err
		}
		t, err := svc.Get(context.Background(), id)
		if err != nil {
			return err
		}
		printResult(*format, t)
		return nil

	case "list":
		status := fs.String("status", "", "filter by status")
		limit := fs.Int64("limit", 50, "page size")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		f := store.FindTasksFilter{Limit: *limit}
		if *status != "" {
			f.Status = status
		}
		paginated, err := svc.Find(context.Background(), f)
		if err != nil {
			return err
		}
		printResult(*format, paginated)
		return nil

	case "delete":
		cascade := fs.Bool("cascade", false, "delete the whole subtree")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := parsePositionalID(fs.Args())
		if err != nil {
			return err
		}
		if *cascade {
			n, err := svc.DeleteCascade(context.Background(), id)
			if err != nil {
				return err
			}
			printResult(*format, map[string]any{"deleted_count": n})
			return nil
		}
		if err := svc.Delete(context.Background(), id); err != nil {
			return err
		}
		printResult(*format, map[string]any{"deleted_count": 1})
		return nil

	case "start":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := parsePositionalID(fs.Args())
		if err != nil {
			return err
		}
		t, err := svc.Start(context.Background(), id, resolveSessionID(*session))
		if err != nil {
			return err
		}
		printResult(*format, t)
		return nil

	case "done":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		sessionID := resolveSessionID(*session)
		if ids := fs.Args(); len(ids) > 0 {
			id, err := strconv.ParseInt(ids[0], 10, 64)
			if err != nil {
				return ierr.InvalidInput("task id must be a number")
			}
			resp, err := svc.DoneByID(context.Background(), id, sessionID)
			if err != nil {
				return err
			}
			printResult(*format, resp)
			return nil
		}
		resp, err := svc.Done(context.Background(), sessionID)
		if err != nil {
			return err
		}
		printResult(*format, resp)
		return nil

	case "next":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		resp, err := svc.PickNext(context.Background(), resolveSessionID(*session))
		if err != nil {
			return err
		}
		printResult(*format, resp)
		return nil

	case "switch":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := parsePositionalID(fs.Args())
		if err != nil {
			return err
		}
		t, err := svc.Switch(context.Background(), id, resolveSessionID(*session))
		if err != nil {
			return err
		}
		printResult(*format, t)
		return nil

	case "spawn":
		spec := fs.String("spec", "", "spec text")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		name := fs.Arg(0)
		if name == "" {
			return ierr.InvalidInput("usage: ie task spawn <name>")
		}
		in := task.NewTaskInput{Name: name}
		if *spec != "" {
			in.Spec = spec
		}
		t, err := svc.SpawnSubtask(context.Background(), resolveSessionID(*session), in)
		if err != nil {
			return err
		}
		printResult(*format, t)
		return nil

	case "context":
		includeEvents := fs.Bool("events", false, "include recent events")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := parsePositionalID(fs.Args())
		if err != nil {
			return err
		}
		resp, err := svc.Context(context.Background(), id, *includeEvents, 5)
		if err != nil {
			return err
		}
		printResult(*format, resp)
		return nil

	case "update":
		name := fs.String("name", "", "new name")
		status := fs.String("status", "", "new status")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := parsePositionalID(fs.Args())
		if err != nil {
			return err
		}
		upd := store.TaskUpdate{}
		if *name != "" {
			upd.Name = name
		}
		if *status != "" {
			upd.Status = status
		}
		t, err := svc.Update(context.Background(), id, upd)
		if err != nil {
			return err
		}
		printResult(*format, t)
		return nil

	default:
		return ierr.InvalidInput(fmt.Sprintf("unknown task subcommand %q", sub))
	}
}

func parsePositionalID(positional []string) (int64, error) {
	if len(positional) == 0 {
		return 0, ierr.InvalidInput("a task id is required")
	}
	id, err := strconv.ParseInt(positional[0], 10, 64)
	if err != nil {
		return 0, ierr.InvalidInput("task id must be a number")
	}
	return id, nil
}

func runLog(args []string, logger *config.Logger) error {
	if len(args) < 3 {
		return ierr.InvalidInput("usage: ie log <task_id> <log_type> <body>")
	}
	taskID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return ierr.InvalidInput("task_id must be a number")
	}
	st, _, err := openProjectStore()
	if err != nil {
		return err
	}
	defer st.Close()

	e, err := event.New(st).Add(context.Background(), taskID, args[1], args[2])
	if err != nil {
		return err
	}

	env := config.LoadEnv()
	llmClient := llm.New(env.LLMEndpoint, env.LLMAPIKey, env.LLMModel)
	if t, terr := task.New(st).Get(context.Background(), taskID); terr == nil {
		suggestion.New(st, llmClient, logger).MaybeAnalyze(context.Background(), t.Name, args[2])
	}

	printResult("text", e)
	return nil
}

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text|json")
	limit := fs.Int64("limit", 20, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return ierr.InvalidInput("usage: ie search <query>")
	}
	st, _, err := openProjectStore()
	if err != nil {
		return err
	}
	defer st.Close()

	resp, err := search.New(st).Search(context.Background(), search.Options{Query: fs.Arg(0), Limit: *limit})
	if err != nil {
		return err
	}
	printResult(*format, resp)
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text|json")
	session := fs.String("session", "", "session id override")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, _, err := openProjectStore()
	if err != nil {
		return err
	}
	defer st.Close()
	svc := task.New(st)

	if fs.NArg() > 0 {
		id, err := strconv.ParseInt(fs.Arg(0), 10, 64)
		if err != nil {
			return ierr.InvalidInput("task id must be a number")
		}
		resp, err := svc.Context(context.Background(), id, true, 5)
		if err != nil {
			return err
		}
		printResult(*format, resp)
		return nil
	}

	t, err := svc.CurrentTask(context.Background(), resolveSessionID(*session))
	if err != nil {
		return err
	}
	if t == nil {
		printResult(*format, map[string]any{"current_task": nil})
		return nil
	}
	resp, err := svc.Context(context.Background(), t.ID, true, 5)
	if err != nil {
		return err
	}
	printResult(*format, resp)
	return nil
}

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text|json")
	session := fs.String("session", "", "session id override")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return ierr.InvalidInput("usage: ie plan <file.json>")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var body struct {
		Items []plan.Item `json:"items"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return ierr.InvalidInput(fmt.Sprintf("invalid plan file: %v", err))
	}

	st, _, err := openProjectStore()
	if err != nil {
		return err
	}
	defer st.Close()

	result, err := plan.New(st).Apply(context.Background(), plan.Plan{
		Items:     body.Items,
		SessionID: resolveSessionID(*session),
	})
	if err != nil {
		return err
	}
	printResult(*format, result)
	return nil
}

func runReport(args []string) error {
	fs := flag.NewFlagSet("report", flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text|json")
	since := fs.String("since", "", "duration (7d) or date (2025-01-01)")
	summaryOnly := fs.Bool("summary", false, "omit the task list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, _, err := openProjectStore()
	if err != nil {
		return err
	}
	defer st.Close()

	opt := report.Options{SummaryOnly: *summaryOnly}
	if *since != "" {
		t, err := durationparse.Resolve(*since, time.Now().UTC())
		if err != nil {
			return err
		}
		opt.Since = &t
	}
	r, err := report.New(st).Generate(context.Background(), opt)
	if err != nil {
		return err
	}
	printResult(*format, r)
	return nil
}

func runSuggestions(args []string, logger *config.Logger) error {
	if len(args) == 0 {
		return ierr.InvalidInput("usage: ie suggestions <list|dismiss> ...")
	}
	sub, rest := args[0], args[1:]

	st, _, err := openProjectStore()
	if err != nil {
		return err
	}
	defer st.Close()

	env := config.LoadEnv()
	llmClient := llm.New(env.LLMEndpoint, env.LLMAPIKey, env.LLMModel)
	svc := suggestion.New(st, llmClient, logger)

	fs := flag.NewFlagSet("suggestions "+sub, flag.ContinueOnError)
	format := fs.String("format", "text", "output format: text|json")

	switch sub {
	case "list":
		includeDismissed := fs.Bool("all", false, "include dismissed suggestions")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		list, err := svc.List(context.Background(), *includeDismissed)
		if err != nil {
			return err
		}
		printResult(*format, map[string]any{"suggestions": list})
		return nil

	case "dismiss":
		if err := fs.Parse(rest); err != nil {
			return err
		}
		id, err := parsePositionalID(fs.Args())
		if err != nil {
			return err
		}
		if err := svc.Dismiss(context.Background(), id); err != nil {
			return err
		}
		printResult(*format, map[string]any{"dismissed": true})
		return nil

	default:
		return ierr.InvalidInput(fmt.Sprintf("unknown suggestions subcommand %q", sub))
	}
}
