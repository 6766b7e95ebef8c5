// Package cli wires the command line surface: parse flow files and run
// them through the orchestrator.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/orchestra/pkg/core"
	"github.com/devicelab-dev/orchestra/pkg/driver/mock"
	"github.com/devicelab-dev/orchestra/pkg/flow"
	"github.com/devicelab-dev/orchestra/pkg/logger"
	"github.com/devicelab-dev/orchestra/pkg/orchestra"
)

// Version is set at build time.
var Version = "dev"

// NewApp builds the CLI application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "orchestra",
		Usage:   "run UI automation flows",
		Version: Version,
		Commands: []*cli.Command{
			runCommand(),
		},
	}
}

func runCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "execute one or more flow files",
		ArgsUsage: "<flow.yaml> [flow.yaml...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log",
				Usage: "write debug logs to `FILE`",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "run against the built-in mock driver",
				Value: true,
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return fmt.Errorf("no flow files given")
			}

			if logPath := c.String("log"); logPath != "" {
				if err := logger.Init(logPath); err != nil {
					return err
				}
				defer logger.Close()
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			driver := mock.New(mock.Config{})
			failed := 0
			for _, path := range c.Args().Slice() {
				ok, err := runFlowFile(ctx, driver, path)
				if err != nil {
					fmt.Fprintf(c.App.ErrWriter, "FAIL %s: %v\n", path, err)
					failed++
					continue
				}
				if !ok {
					fmt.Fprintf(c.App.ErrWriter, "FAIL %s\n", path)
					failed++
					continue
				}
				fmt.Fprintf(c.App.Writer, "PASS %s\n", path)
			}

			if failed > 0 {
				return cli.Exit(fmt.Sprintf("%d flow(s) failed", failed), 1)
			}
			return nil
		},
	}
}

func runFlowFile(ctx context.Context, driver core.Driver, path string) (bool, error) {
	f, err := flow.ParseFile(path)
	if err != nil {
		return false, err
	}

	o := orchestra.New(driver, orchestra.Config{
		Listeners: progressListeners(os.Stdout),
	})
	return o.RunFlow(ctx, *f)
}

func progressListeners(out *os.File) orchestra.Listeners {
	return orchestra.Listeners{
		OnCommandStart: func(index int, command flow.Command) {
			fmt.Fprintf(out, "  [%d] %s ...\n", index, command.Describe())
		},
		OnCommandComplete: func(index int, command flow.Command) {
			fmt.Fprintf(out, "  [%d] %s ok\n", index, command.Describe())
		},
		OnCommandWarned: func(index int, command flow.Command) {
			fmt.Fprintf(out, "  [%d] %s warned\n", index, command.Describe())
		},
		OnCommandSkipped: func(index int, command flow.Command) {
			fmt.Fprintf(out, "  [%d] %s skipped\n", index, command.Describe())
		},
	}
}
