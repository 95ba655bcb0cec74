package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check backend liveness",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := connect(newUI())
			if err != nil {
				return err
			}
			defer cleanup()

			start := time.Now()
			if err := c.Ping(cmd.Context()); err != nil {
				return err
			}
			color.Green("pong (%s)", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Send a chat message, or start an interactive session",
		RunE: func(cmd *cobra.Command, args []string) error {
			u := newUI()
			c, cleanup, err := connect(u)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := c.Hello(cmd.Context()); err != nil {
				return err
			}

			if len(args) > 0 {
				return sendAndWait(cmd.Context(), c, u, strings.Join(args, " "))
			}

			// Interactive loop: one prompt per turn, Ctrl-D to leave.
			prompt := color.New(color.FgCyan, color.Bold)
			scanner := bufio.NewScanner(os.Stdin)
			for {
				prompt.Print("you> ")
				if !scanner.Scan() {
					fmt.Println()
					return scanner.Err()
				}
				text := strings.TrimSpace(scanner.Text())
				if text == "" {
					continue
				}
				if text == "/quit" {
					return nil
				}
				if err := sendAndWait(cmd.Context(), c, u, text); err != nil {
					color.Red("Error: %v", err)
				}
			}
		},
	}
}

// chatClient is the slice of the client the chat loop needs.
type chatClient interface {
	SendChat(ctx context.Context, text string, attachments ...string) error
}

func sendAndWait(ctx context.Context, c chatClient, u *ui, text string) error {
	if err := c.SendChat(ctx, text); err != nil {
		return err
	}
	select {
	case <-u.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func runCmd() *cobra.Command {
	var cwd string
	cmd := &cobra.Command{
		Use:   "run <command...>",
		Short: "Run a shell command in the workspace terminal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := connect(newUI())
			if err != nil {
				return err
			}
			defer cleanup()

			result, err := c.RunCommand(cmd.Context(), strings.Join(args, " "), cwd)
			if err != nil {
				return err
			}
			fmt.Print(result.Output)
			if !strings.HasSuffix(result.Output, "\n") {
				fmt.Println()
			}
			if result.ExitCode != 0 {
				color.Red("exit %d", result.ExitCode)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cwd, "cwd", "", "Working directory for the command")
	return cmd
}

func readCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <path>",
		Short: "Print a workspace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := connect(newUI())
			if err != nil {
				return err
			}
			defer cleanup()

			content, err := c.ReadFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Print(content)
			return nil
		},
	}
}

func writeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write <path>",
		Short: "Write stdin to a workspace file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := io.ReadAll(os.Stdin)
			if err != nil {
				return err
			}

			c, cleanup, err := connect(newUI())
			if err != nil {
				return err
			}
			defer cleanup()

			if err := c.WriteFile(cmd.Context(), args[0], string(content)); err != nil {
				return err
			}
			color.Green("wrote %d bytes to %s", len(content), args[0])
			return nil
		},
	}
}

func lsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a workspace directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}

			c, cleanup, err := connect(newUI())
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := c.ListDir(cmd.Context(), path)
			if err != nil {
				return err
			}
			dir := color.New(color.FgBlue, color.Bold)
			for _, entry := range entries {
				if entry.IsDir {
					dir.Printf("%s/\n", entry.Name)
				} else {
					fmt.Printf("%s\t%d\n", entry.Name, entry.Size)
				}
			}
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent conversation entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := connect(newUI())
			if err != nil {
				return err
			}
			defer cleanup()

			page, err := c.History(cmd.Context(), limit, "")
			if err != nil {
				return err
			}
			role := color.New(color.FgCyan)
			for _, entry := range page.Entries {
				ts := time.UnixMilli(entry.CreatedAt).Format("15:04:05")
				role.Printf("[%s %s] ", ts, entry.Role)
				fmt.Println(entry.Text)
			}
			if page.HasMore {
				color.Yellow("(older entries not shown)")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum entries to show")
	return cmd
}

func symbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <path>",
		Short: "Show the symbol outline of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := connect(newUI())
			if err != nil {
				return err
			}
			defer cleanup()

			symbols, err := c.DocumentSymbols(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			kind := color.New(color.FgMagenta)
			for _, s := range symbols {
				kind.Printf("%-10s", s.Kind)
				fmt.Printf(" %s:%d %s\n", args[0], s.Line+1, s.Name)
			}
			return nil
		},
	}
}
