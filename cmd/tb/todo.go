package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/teamboard/teamboard/internal/client"
	"github.com/teamboard/teamboard/internal/model"
	"github.com/teamboard/teamboard/internal/ui"
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects on a sync server",
}

var projectAddCmd = &cobra.Command{
	Use:   "add <url> <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, args[0], func(ctx context.Context, c *client.Client) error {
			return c.AddProject(ctx, args[1])
		})
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list <url>",
	Short: "List projects and their progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, args[0], func(ctx context.Context, c *client.Client) error {
			for _, p := range c.Reconciler().Projects() {
				fmt.Println(ui.RenderProject(p))
			}
			return nil
		})
	},
}

var todoCmd = &cobra.Command{
	Use:   "todo",
	Short: "Manage todos on a sync server",
}

var todoAddCmd = &cobra.Command{
	Use:   "add <url> <project> <text>",
	Short: "Add a todo to a project",
	Long: `Add a todo to a project, referenced by name or id.

The --due flag accepts natural language alongside YYYY-MM-DD:
  tb todo add ws://host:8080/ws "Website" "Ship the redesign" --due "next friday"`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		assignee, _ := cmd.Flags().GetString("assignee")
		priority, _ := cmd.Flags().GetString("priority")
		dueRaw, _ := cmd.Flags().GetString("due")

		var due *model.Date
		if dueRaw != "" {
			d, err := parseDue(dueRaw)
			if err != nil {
				return err
			}
			due = d
		}

		return withSession(cmd, args[0], func(ctx context.Context, c *client.Client) error {
			project, err := resolveProject(c, args[1])
			if err != nil {
				return err
			}
			return c.AddTodo(ctx, project.ID, args[2], assignee, model.Priority(priority), due)
		})
	},
}

var todoListCmd = &cobra.Command{
	Use:   "list <url> <project>",
	Short: "List a project's todos",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, args[0], func(ctx context.Context, c *client.Client) error {
			project, err := resolveProject(c, args[1])
			if err != nil {
				return err
			}
			for _, t := range c.Reconciler().Todos(project.ID) {
				fmt.Println(ui.RenderTodo(t))
			}
			return nil
		})
	},
}

// parseDue accepts YYYY-MM-DD or natural language ("tomorrow", "next friday").
func parseDue(raw string) (*model.Date, error) {
	if d, err := model.ParseDate(raw); err == nil {
		return &d, nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	result, err := w.Parse(raw, time.Now())
	if err != nil || result == nil {
		return nil, fmt.Errorf("could not parse due date %q", raw)
	}
	d := model.DateOf(result.Time)
	return &d, nil
}

// resolveProject finds a project in the mirror by id or exact name.
func resolveProject(c *client.Client, ref string) (*model.Project, error) {
	for _, p := range c.Reconciler().Projects() {
		if p.ID == ref || p.Name == ref {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("no project %q on the server", ref)
}

// withSession connects, authenticates, waits for the initial snapshot, runs
// fn, and leaves a short grace period so the command's own broadcast echo is
// observed before disconnecting.
func withSession(cmd *cobra.Command, url string, fn func(context.Context, *client.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	password, _ := cmd.Flags().GetString("password")
	if password == "" {
		password = cfg.Server.Password
	}
	if password == "" {
		password, err = promptPassword()
		if err != nil {
			return err
		}
	}

	logger := log.New(os.Stderr, "[client] ", log.LstdFlags)
	reconciler := client.NewReconciler(logger)
	c := client.NewClient(url, password, reconciler, logger)

	authCh := make(chan bool, 1)
	c.OnAuthResult = func(ok bool) {
		select {
		case authCh <- ok:
		default:
		}
	}
	synced := make(chan struct{}, 1)
	reconciler.OnChange = func() {
		select {
		case synced <- struct{}{}:
		default:
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	select {
	case ok := <-authCh:
		if !ok {
			return fmt.Errorf("authentication rejected")
		}
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out connecting to %s", url)
	}

	select {
	case <-synced:
	case <-time.After(10 * time.Second):
		return fmt.Errorf("timed out waiting for server state")
	}

	if err := fn(ctx, c); err != nil {
		return err
	}
	time.Sleep(300 * time.Millisecond)
	return nil
}

func init() {
	for _, cmd := range []*cobra.Command{projectAddCmd, projectListCmd, todoAddCmd, todoListCmd} {
		cmd.Flags().String("password", "", "Server password (prompts if empty)")
	}
	todoAddCmd.Flags().String("assignee", "", "Assignee name")
	todoAddCmd.Flags().String("priority", "", "Priority: low, medium, high")
	todoAddCmd.Flags().String("due", "", "Due date (YYYY-MM-DD or natural language)")

	projectCmd.AddCommand(projectAddCmd, projectListCmd)
	todoCmd.AddCommand(todoAddCmd, todoListCmd)
	rootCmd.AddCommand(projectCmd, todoCmd)
}
