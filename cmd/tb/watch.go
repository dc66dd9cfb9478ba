package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/teamboard/teamboard/internal/client"
	"github.com/teamboard/teamboard/internal/model"
	"github.com/teamboard/teamboard/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:   "watch <url>",
	Short: "Follow all boards from a sync server",
	Long: `Connect to a sync server and render every board live.

The client authenticates, receives a full snapshot, and redraws whenever any
board changes. If the connection drops it retries every few seconds and
resynchronizes on reconnect.

Example:
  tb watch ws://localhost:8080/ws --password secret`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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

		urgentOnly, _ := cmd.Flags().GetBool("urgent")

		logger := log.New(os.Stderr, "[client] ", log.LstdFlags)
		reconciler := client.NewReconciler(logger)
		c := client.NewClient(args[0], password, reconciler, logger)
		c.SetReconnectDelay(cfg.Sync.ReconnectDelay)

		redraw := func() { render(c, urgentOnly) }
		reconciler.OnChange = redraw
		c.OnConnectionChange = func(bool) { redraw() }
		c.OnAuthResult = func(ok bool) {
			if !ok {
				fmt.Fprintln(os.Stderr, "Error: authentication rejected")
			}
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := c.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	},
}

// promptPassword asks interactively when no password came from flags, config,
// or environment.
func promptPassword() (string, error) {
	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Server password").
				EchoMode(huh.EchoModePassword).
				Value(&password),
		),
	)
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("password prompt failed: %w", err)
	}
	return password, nil
}

// render clears the screen and draws every board, or the urgent view.
func render(c *client.Client, urgentOnly bool) {
	fmt.Print("\033[H\033[2J")
	fmt.Println(ui.RenderConnection(c.Connected()))
	fmt.Println()

	r := c.Reconciler()
	projects := r.Projects()
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })

	if urgentOnly {
		today := model.DateOf(time.Now())
		var all []model.Todo
		for _, p := range projects {
			all = append(all, r.Todos(p.ID)...)
		}
		fmt.Print(ui.RenderUrgent(model.UrgentTodos(all, today)))
		return
	}

	for _, p := range projects {
		fmt.Print(ui.RenderBoard(p, r.Todos(p.ID), r.Assignees(p.ID)))
		fmt.Println()
	}
	if len(projects) == 0 {
		fmt.Println(ui.HintStyle.Render("no projects yet"))
	}
}

func init() {
	watchCmd.Flags().String("password", "", "Server password (prompts if empty)")
	watchCmd.Flags().Bool("urgent", false, "Show only urgent todos across all boards")
	rootCmd.AddCommand(watchCmd)
}
