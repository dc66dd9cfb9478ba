package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/teamboard/teamboard/internal/client"
)

var memoCmd = &cobra.Command{
	Use:   "memo",
	Short: "Read and write project memos",
}

var memoShowCmd = &cobra.Command{
	Use:   "show <url> <project>",
	Short: "Print a project's memo",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, args[0], func(ctx context.Context, c *client.Client) error {
			project, err := resolveProject(c, args[1])
			if err != nil {
				return err
			}

			// The reply is a targeted MEMO_UPDATE; intercept it so an empty
			// memo is distinguishable from a reply that has not arrived.
			replies := make(chan string, 1)
			r := c.Reconciler()
			r.SetMemoSink(func(projectID, content string) {
				r.ApplyMemo(projectID, content)
				if projectID == project.ID {
					select {
					case replies <- content:
					default:
					}
				}
			})

			if err := c.GetMemo(ctx, project.ID); err != nil {
				return err
			}
			select {
			case memo := <-replies:
				fmt.Println(memo)
				return nil
			case <-time.After(5 * time.Second):
				return fmt.Errorf("timed out waiting for the memo reply")
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	},
}

var memoSetCmd = &cobra.Command{
	Use:   "set <url> <project> <content>",
	Short: "Replace a project's memo",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, args[0], func(ctx context.Context, c *client.Client) error {
			project, err := resolveProject(c, args[1])
			if err != nil {
				return err
			}
			return c.UpdateMemo(ctx, project.ID, args[2])
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{memoShowCmd, memoSetCmd} {
		cmd.Flags().String("password", "", "Server password (prompts if empty)")
	}
	memoCmd.AddCommand(memoShowCmd, memoSetCmd)
	rootCmd.AddCommand(memoCmd)
}
