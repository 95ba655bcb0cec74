// Package main provides the blade CLI, a terminal front end for the
// ZaguanBlade backend protocol.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/auth"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/client"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/config"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/devbackend"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/transport"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/internal/version"
	"github.com/ZaguanLabs/ZaguanBlade-sub001/pkg/logger"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// connectTimeout bounds how long the CLI waits for the socket to come up.
const connectTimeout = 10 * time.Second

var (
	flagDev       bool
	flagDebug     bool
	flagServerURL string
	flagWorkspace string

	cfg *config.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blade",
		Short: "ZaguanBlade workspace client",
		Long: `blade talks to a ZaguanBlade backend over its event bus.

Use --dev to run against an in-process backend rooted at the current
directory; no server or token is needed in that mode.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if flagServerURL != "" {
				cfg.ServerURL = flagServerURL
			}
			if flagWorkspace != "" {
				cfg.WorkspaceID = flagWorkspace
			}
			if flagDebug {
				cfg.Debug = true
			}
			if cfg.Debug {
				logger.SetLevel(logger.LevelDebug)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVar(&flagDev, "dev", false, "Use the in-process dev backend")
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagServerURL, "server", "", "Backend server URL")
	rootCmd.PersistentFlags().StringVar(&flagWorkspace, "workspace", "", "Workspace id")

	rootCmd.AddCommand(
		versionCmd(),
		pingCmd(),
		chatCmd(),
		runCmd(),
		readCmd(),
		writeCmd(),
		lsCmd(),
		historyCmd(),
		symbolsCmd(),
	)
	return rootCmd
}

// ui carries the streaming callbacks shared by the commands.
type ui struct {
	assistant *color.Color
	reasoning *color.Color
	done      chan string
}

func newUI() *ui {
	return &ui{
		assistant: color.New(color.FgWhite),
		reasoning: color.New(color.FgHiBlack, color.Italic),
		done:      make(chan string, 4),
	}
}

// connect builds the client stack. The returned cleanup releases the
// subscription and, for owned transports, the connection.
func connect(u *ui) (*client.Client, func(), error) {
	handlers := client.Handlers{
		OnAssistantText: func(_, text string) { u.assistant.Print(text) },
		OnAssistantDone: func(messageID string) {
			fmt.Println()
			u.done <- messageID
		},
		OnReasoningText: func(_, text string) { u.reasoning.Print(text) },
	}

	if flagDev {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, nil, err
		}
		backend := devbackend.New(devbackend.Config{Root: cwd})
		c := client.New(backend, client.Config{
			RequestTimeout: cfg.RequestTimeout,
			Handlers:       handlers,
		})
		cleanup := func() {
			_ = c.Close()
			_ = backend.Close()
		}
		return c, cleanup, nil
	}

	token, err := auth.LoadToken(cfg.AccessKey)
	if err != nil {
		return nil, nil, fmt.Errorf("no access token (run with --dev, or place a token at %s): %w",
			cfg.AccessKey, err)
	}
	if soon, err := auth.ExpiringSoon(token, auth.DefaultRefreshWindow); err == nil && soon {
		color.Yellow("Warning: access token expires soon; refresh it to avoid disconnects")
	}

	t := transport.NewSocketIO(cfg.ServerURL, token, cfg.WorkspaceID)
	if err := t.Connect(); err != nil {
		return nil, nil, err
	}
	if !t.WaitForConnect(connectTimeout) {
		_ = t.Close()
		return nil, nil, fmt.Errorf("backend at %s did not come up", cfg.ServerURL)
	}

	c := client.New(t, client.Config{
		RequestTimeout: cfg.RequestTimeout,
		Handlers:       handlers,
	})
	cleanup := func() {
		_ = c.Close()
		_ = t.Close()
	}
	return c, cleanup, nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the blade version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("blade %s\n", version.RichVersion())
		},
	}
}
