// Package cli implements the questlog command surface: task CRUD with
// gamification, auth and guest mode, AI suggestions, and the proxy
// server.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/amirbrooks/questlog/internal/app"
	"github.com/amirbrooks/questlog/internal/config"
	"github.com/amirbrooks/questlog/internal/server"
	"github.com/amirbrooks/questlog/internal/session"
	"github.com/amirbrooks/questlog/internal/stats"
	"github.com/amirbrooks/questlog/internal/store"
	"github.com/amirbrooks/questlog/internal/suggest"
	"github.com/amirbrooks/questlog/internal/task"
)

// Exit codes
const (
	ExitOK       = 0
	ExitUsage    = 2
	ExitNotFound = 3
	ExitInternal = 10
)

type GlobalFlags struct {
	DataDir string
	JSON    bool
	Quiet   bool
}

func reorderFlags(args []string, takesValue map[string]bool) []string {
	if len(args) == 0 {
		return args
	}
	var flags []string
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if a == "--" {
			if i+1 < len(args) {
				rest = append(rest, args[i+1:]...)
			}
			break
		}
		if strings.HasPrefix(a, "-") {
			flags = append(flags, a)
			if takesValue[a] && !strings.Contains(a, "=") {
				if i+1 < len(args) {
					flags = append(flags, args[i+1])
					i++
				}
			}
			continue
		}
		rest = append(rest, a)
	}
	return append(flags, rest...)
}

// splitGlobalFlags pulls the global flags out of args wherever they
// appear, leaving the subcommand and its own flags untouched.
func splitGlobalFlags(args []string) (GlobalFlags, []string) {
	var g GlobalFlags
	var rest []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		name, value, hasValue := strings.Cut(strings.TrimLeft(a, "-"), "=")
		if !strings.HasPrefix(a, "-") {
			rest = append(rest, a)
			continue
		}
		switch name {
		case "json":
			g.JSON = true
		case "quiet":
			g.Quiet = true
		case "data-dir":
			if hasValue {
				g.DataDir = value
			} else if i+1 < len(args) {
				g.DataDir = args[i+1]
				i++
			}
		default:
			rest = append(rest, a)
		}
	}
	return g, rest
}

// Run is the CLI entry point. It returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return ExitUsage
	}

	global, rest := splitGlobalFlags(args)
	if len(rest) == 0 {
		printUsage()
		return ExitUsage
	}
	cmd, cmdArgs := rest[0], rest[1:]

	env, err := newEnv(global)
	if err != nil {
		fmt.Fprintf(os.Stderr, "questlog: %v\n", err)
		return ExitInternal
	}
	defer env.close()

	switch cmd {
	case "add":
		return env.cmdAdd(cmdArgs)
	case "list", "ls":
		return env.cmdList(cmdArgs)
	case "done":
		return env.cmdDone(cmdArgs)
	case "undone":
		return env.cmdUndone(cmdArgs)
	case "rm", "delete":
		return env.cmdDelete(cmdArgs)
	case "edit":
		return env.cmdEdit(cmdArgs)
	case "category":
		return env.cmdCategory(cmdArgs)
	case "stats":
		return env.cmdStats(cmdArgs)
	case "reminders":
		return env.cmdReminders(cmdArgs)
	case "suggest":
		return env.cmdSuggest(cmdArgs)
	case "signup":
		return env.cmdSignup(cmdArgs)
	case "login":
		return env.cmdLogin(cmdArgs)
	case "logout":
		return env.cmdLogout(cmdArgs)
	case "guest":
		return env.cmdGuest(cmdArgs)
	case "whoami":
		return env.cmdWhoami(cmdArgs)
	case "serve":
		return env.cmdServe(cmdArgs)
	case "help", "-h", "--help":
		printUsage()
		return ExitOK
	default:
		fmt.Fprintf(os.Stderr, "questlog: unknown command %q\n", cmd)
		printUsage()
		return ExitUsage
	}
}

func printUsage() {
	fmt.Fprint(os.Stderr, `questlog - gamified task tracking

Usage: questlog [--data-dir DIR] [--json] [--quiet] <command> [args]

Tasks:
  add <text> [--category C] [--priority high|medium|low] [--start DATE] [--end DATE]
             [--start-time HH:MM] [--end-time HH:MM] [--remind RFC3339]
  list [--status all|ongoing|finished] [--category C] [--priority P]
  done <id-prefix>        mark complete (earns XP, advances streak)
  undone <id-prefix>      mark incomplete (removes XP)
  rm <id-prefix>          delete (completed tasks give back XP)
  edit <id-prefix> [--text T] [--category C] [--priority P]
  reminders               uncompleted tasks whose reminder time passed

Gamification:
  stats                   XP, level, streak
  category add <name> | category list

AI:
  suggest <title>         metadata suggestion for a task title
  suggest --priority <text>  priority-only suggestion
  serve                   start the suggestion proxy server

Account:
  signup --email E --password P [--username U]
  login --email E --password P
  logout | guest on|off | whoami
`)
}

// env wires the stores, session and config for one invocation.
type env struct {
	global GlobalFlags
	cfg    config.Config
	local  *store.Local
	db     *store.DB
	ses    *session.Controller
}

func newEnv(global GlobalFlags) (*env, error) {
	cfg, err := config.Load(global.DataDir)
	if err != nil {
		return nil, err
	}
	local, err := store.OpenLocal(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	db, err := store.OpenDB(cfg.DBPath())
	if err != nil {
		return nil, err
	}
	ses := session.NewController(local, store.NewAuth(db), func(userID string) store.Store {
		return store.NewRemote(db, userID)
	})
	return &env{global: global, cfg: cfg, local: local, db: db, ses: ses}, nil
}

func (e *env) close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

func (e *env) openApp(ctx context.Context) (*app.App, error) {
	a, err := app.New(ctx, e.ses)
	if err != nil {
		return nil, err
	}
	if !e.global.Quiet {
		a.Notify = func(title, detail string) {
			fmt.Printf("%s %s\n", title, detail)
		}
	}
	a.SyncError = func(op string, err error) {
		fmt.Fprintf(os.Stderr, "questlog: background sync (%s): %v\n", op, err)
	}
	return a, nil
}

func (e *env) fail(err error) int {
	fmt.Fprintf(os.Stderr, "questlog: %v\n", err)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, store.ErrInvalid), errors.Is(err, suggest.ErrInvalidInput):
		return ExitUsage
	default:
		return ExitInternal
	}
}

func (e *env) emit(v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func parseDateFlag(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, fmt.Errorf("%w: date %q (want YYYY-MM-DD)", store.ErrInvalid, s)
	}
	return &t, nil
}

func parseTimestampFlag(s string) (*time.Time, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q (want RFC 3339)", store.ErrInvalid, s)
	}
	return &t, nil
}

func (e *env) cmdAdd(args []string) int {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	category := fs.String("category", "personal", "task category")
	priority := fs.String("priority", "medium", "high|medium|low")
	start := fs.String("start", "", "start date (YYYY-MM-DD)")
	end := fs.String("end", "", "end date (YYYY-MM-DD)")
	startTime := fs.String("start-time", "", "start time (HH:MM)")
	endTime := fs.String("end-time", "", "end time (HH:MM)")
	remind := fs.String("remind", "", "reminder timestamp (RFC 3339)")
	takes := map[string]bool{}
	for _, f := range []string{"category", "priority", "start", "end", "start-time", "end-time", "remind"} {
		takes["--"+f] = true
		takes["-"+f] = true
	}
	if err := fs.Parse(reorderFlags(args, takes)); err != nil {
		return ExitUsage
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))

	ctx := context.Background()
	a, err := e.openApp(ctx)
	if err != nil {
		return e.fail(err)
	}

	t := task.New(text, *category, *priority)
	if t.StartDate, err = parseDateFlag(*start); err != nil {
		return e.fail(err)
	}
	if t.EndDate, err = parseDateFlag(*end); err != nil {
		return e.fail(err)
	}
	if t.ReminderTime, err = parseTimestampFlag(*remind); err != nil {
		return e.fail(err)
	}
	t.StartTime = strings.TrimSpace(*startTime)
	t.EndTime = strings.TrimSpace(*endTime)

	created, err := a.AddTask(ctx, t)
	if err != nil {
		return e.fail(err)
	}
	if e.global.JSON {
		e.emit(created)
	} else if !e.global.Quiet {
		fmt.Printf("Added %s to %s: %s\n", shortID(created.ID), created.Category, created.Text)
	}
	return ExitOK
}

func (e *env) cmdList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	status := fs.String("status", task.StatusAll, "all|ongoing|finished")
	category := fs.String("category", task.FilterAll, "category filter")
	priority := fs.String("priority", task.FilterAll, "priority filter")
	takes := map[string]bool{
		"--status": true, "-status": true,
		"--category": true, "-category": true,
		"--priority": true, "-priority": true,
	}
	if err := fs.Parse(reorderFlags(args, takes)); err != nil {
		return ExitUsage
	}

	ctx := context.Background()
	a, err := e.openApp(ctx)
	if err != nil {
		return e.fail(err)
	}
	tasks := a.Filtered(*status, *category, *priority)
	if e.global.JSON {
		e.emit(tasks)
		return ExitOK
	}

	all, ongoing, finished := a.Counts()
	w := tabwriter.NewWriter(os.Stdout, 2, 2, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRI\tCATEGORY\tTASK")
	for _, t := range tasks {
		state := "open"
		if t.Completed {
			state = "done"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", shortID(t.ID), state, t.Priority, t.Category, t.Text)
	}
	w.Flush()
	fmt.Printf("%d total, %d ongoing, %d finished\n", all, ongoing, finished)
	return ExitOK
}

func (e *env) resolveAndRun(args []string, name string, fn func(ctx context.Context, a *app.App, t task.Task) error) int {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "usage: questlog %s <id-prefix>\n", name)
		return ExitUsage
	}
	ctx := context.Background()
	a, err := e.openApp(ctx)
	if err != nil {
		return e.fail(err)
	}
	t, err := a.FindByPrefix(args[0])
	if err != nil {
		return e.fail(fmt.Errorf("%s %q: %w", name, args[0], err))
	}
	if err := fn(ctx, a, t); err != nil {
		return e.fail(err)
	}
	return ExitOK
}

func (e *env) cmdDone(args []string) int {
	return e.resolveAndRun(args, "done", func(ctx context.Context, a *app.App, t task.Task) error {
		if t.Completed {
			if !e.global.Quiet {
				fmt.Printf("%s is already done\n", shortID(t.ID))
			}
			return nil
		}
		if err := a.CompleteTask(ctx, t.ID); err != nil {
			return err
		}
		if !e.global.Quiet {
			earned := a.Stats()
			fmt.Printf("Done: %s (+%d XP, streak %d)\n", t.Text, stats.XPForPriority(t.Priority), earned.Streak)
		}
		return nil
	})
}

func (e *env) cmdUndone(args []string) int {
	return e.resolveAndRun(args, "undone", func(ctx context.Context, a *app.App, t task.Task) error {
		if err := a.UncompleteTask(ctx, t.ID); err != nil {
			return err
		}
		if !e.global.Quiet {
			fmt.Printf("Unchecked: %s\n", t.Text)
		}
		return nil
	})
}

func (e *env) cmdDelete(args []string) int {
	return e.resolveAndRun(args, "rm", func(ctx context.Context, a *app.App, t task.Task) error {
		if err := a.DeleteTask(ctx, t.ID); err != nil {
			return err
		}
		if !e.global.Quiet {
			fmt.Printf("Deleted: %s\n", t.Text)
		}
		return nil
	})
}

func (e *env) cmdEdit(args []string) int {
	fs := flag.NewFlagSet("edit", flag.ContinueOnError)
	text := fs.String("text", "", "replacement text")
	category := fs.String("category", "", "replacement category")
	priority := fs.String("priority", "", "replacement priority")
	takes := map[string]bool{
		"--text": true, "-text": true,
		"--category": true, "-category": true,
		"--priority": true, "-priority": true,
	}
	if err := fs.Parse(reorderFlags(args, takes)); err != nil {
		return ExitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: questlog edit <id-prefix> [--text T] [--category C] [--priority P]")
		return ExitUsage
	}

	ctx := context.Background()
	a, err := e.openApp(ctx)
	if err != nil {
		return e.fail(err)
	}
	t, err := a.FindByPrefix(fs.Arg(0))
	if err != nil {
		return e.fail(err)
	}
	if strings.TrimSpace(*text) != "" {
		t.Text = strings.TrimSpace(*text)
	}
	if strings.TrimSpace(*category) != "" {
		t.Category = task.NormalizeCategory(*category)
	}
	if strings.TrimSpace(*priority) != "" {
		t.Priority = task.NormalizePriority(*priority)
	}
	if err := a.EditTask(ctx, t); err != nil {
		return e.fail(err)
	}
	if e.global.JSON {
		e.emit(t)
	} else if !e.global.Quiet {
		fmt.Printf("Updated %s\n", shortID(t.ID))
	}
	return ExitOK
}

func (e *env) cmdCategory(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: questlog category add <name> | category list")
		return ExitUsage
	}
	ctx := context.Background()
	a, err := e.openApp(ctx)
	if err != nil {
		return e.fail(err)
	}
	switch args[0] {
	case "add":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: questlog category add <name>")
			return ExitUsage
		}
		if err := a.AddCategory(args[1]); err != nil {
			return e.fail(err)
		}
		if !e.global.Quiet {
			fmt.Printf("Category %q created\n", strings.ToLower(strings.TrimSpace(args[1])))
		}
		return ExitOK
	case "list":
		if e.global.JSON {
			e.emit(a.Categories())
			return ExitOK
		}
		for _, c := range a.Categories() {
			fmt.Println(c)
		}
		return ExitOK
	default:
		fmt.Fprintf(os.Stderr, "questlog: unknown category subcommand %q\n", args[0])
		return ExitUsage
	}
}

func (e *env) cmdStats(args []string) int {
	ctx := context.Background()
	a, err := e.openApp(ctx)
	if err != nil {
		return e.fail(err)
	}
	s := a.Stats()
	if e.global.JSON {
		e.emit(s)
		return ExitOK
	}
	have, need := s.NextLevelProgress()
	fmt.Printf("Level %d  (%d/%d XP to next)\n", s.Level, have, need)
	fmt.Printf("Total XP: %d\n", s.XP)
	fmt.Printf("Streak: %d days\n", s.Streak)
	return ExitOK
}

func (e *env) cmdReminders(args []string) int {
	ctx := context.Background()
	a, err := e.openApp(ctx)
	if err != nil {
		return e.fail(err)
	}
	due := a.DueReminders(time.Now())
	if e.global.JSON {
		e.emit(due)
		return ExitOK
	}
	if len(due) == 0 {
		fmt.Println("No reminders due")
		return ExitOK
	}
	for _, t := range due {
		fmt.Printf("%s  %s (priority %s, category %s)\n", shortID(t.ID), t.Text, t.Priority, t.Category)
	}
	return ExitOK
}

func (e *env) suggestClient() *suggest.Client {
	c := suggest.NewClient(e.cfg.GeminiKey, e.cfg.OpenAIKey)
	if e.cfg.GeminiEndpoint != "" {
		c.GeminiEndpoint = e.cfg.GeminiEndpoint
	}
	if e.cfg.OpenAIEndpoint != "" {
		c.OpenAIEndpoint = e.cfg.OpenAIEndpoint
	}
	return c
}

func (e *env) cmdSuggest(args []string) int {
	fs := flag.NewFlagSet("suggest", flag.ContinueOnError)
	priorityOnly := fs.Bool("priority", false, "suggest only a priority for the task text")
	if err := fs.Parse(reorderFlags(args, nil)); err != nil {
		return ExitUsage
	}
	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	ctx := context.Background()
	client := e.suggestClient()

	if *priorityOnly {
		p, err := client.SuggestPriority(ctx, text)
		if err != nil {
			return e.fail(err)
		}
		if e.global.JSON {
			e.emit(map[string]string{"priority": p})
		} else {
			fmt.Println(p)
		}
		return ExitOK
	}

	out, err := client.Suggest(ctx, text)
	if err != nil {
		return e.fail(err)
	}
	if e.global.JSON {
		e.emit(out)
		return ExitOK
	}
	fmt.Printf("Description: %s\n", out.Description)
	fmt.Printf("Category:    %s\n", out.Category)
	fmt.Printf("Priority:    %s\n", out.Priority)
	for i, s := range out.Suggestions {
		fmt.Printf("Suggestion %d: %s\n", i+1, s)
	}
	return ExitOK
}

func credentialFlags(name string, args []string) (email, password, username string, ok bool) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	e := fs.String("email", "", "account email")
	p := fs.String("password", "", "account password")
	u := fs.String("username", "", "display name")
	takes := map[string]bool{
		"--email": true, "-email": true,
		"--password": true, "-password": true,
		"--username": true, "-username": true,
	}
	if err := fs.Parse(reorderFlags(args, takes)); err != nil {
		return "", "", "", false
	}
	return *e, *p, *u, true
}

func (e *env) cmdSignup(args []string) int {
	email, password, username, ok := credentialFlags("signup", args)
	if !ok {
		return ExitUsage
	}
	u, err := e.ses.SignUp(context.Background(), email, password, username)
	if err != nil {
		return e.authFail(err)
	}
	if !e.global.Quiet {
		fmt.Printf("Signed up and in as %s\n", u.Email)
	}
	return ExitOK
}

func (e *env) cmdLogin(args []string) int {
	email, password, _, ok := credentialFlags("login", args)
	if !ok {
		return ExitUsage
	}
	u, err := e.ses.SignIn(context.Background(), email, password)
	if err != nil {
		return e.authFail(err)
	}
	if !e.global.Quiet {
		fmt.Printf("Signed in as %s\n", u.Email)
	}
	return ExitOK
}

func (e *env) authFail(err error) int {
	var ae *store.AuthError
	if errors.As(err, &ae) {
		fmt.Fprintf(os.Stderr, "questlog: %s\n", ae.Message)
		return ExitUsage
	}
	return e.fail(err)
}

func (e *env) cmdLogout(args []string) int {
	if err := e.ses.SignOut(); err != nil {
		return e.fail(err)
	}
	if !e.global.Quiet {
		fmt.Println("Signed out")
	}
	return ExitOK
}

func (e *env) cmdGuest(args []string) int {
	if len(args) != 1 || (args[0] != "on" && args[0] != "off") {
		fmt.Fprintln(os.Stderr, "usage: questlog guest on|off")
		return ExitUsage
	}
	var err error
	if args[0] == "on" {
		err = e.ses.EnableGuestMode()
	} else {
		err = e.ses.DisableGuestMode()
	}
	if err != nil {
		return e.fail(err)
	}
	if !e.global.Quiet {
		fmt.Printf("Guest mode %s\n", args[0])
	}
	return ExitOK
}

func (e *env) cmdWhoami(args []string) int {
	mode := e.ses.Mode()
	if e.global.JSON {
		out := map[string]string{"mode": mode.String()}
		if u := e.ses.User(); u != nil {
			out["email"] = u.Email
			out["userId"] = u.ID
		}
		e.emit(out)
		return ExitOK
	}
	if u := e.ses.User(); u != nil {
		fmt.Printf("%s (%s)\n", u.Email, mode)
	} else {
		fmt.Println(mode)
	}
	return ExitOK
}

func (e *env) cmdServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	port := fs.Int("port", e.cfg.Port, "listen port")
	takes := map[string]bool{"--port": true, "-port": true}
	if err := fs.Parse(reorderFlags(args, takes)); err != nil {
		return ExitUsage
	}
	srv := server.New(e.suggestClient(), *port)
	if err := srv.ListenAndServe(); err != nil {
		return e.fail(err)
	}
	return ExitOK
}

func shortID(id string) string {
	id = strings.TrimPrefix(id, "tsk_")
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
