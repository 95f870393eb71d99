package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"category-tree/internal/app"
	"category-tree/internal/config"
	"category-tree/internal/logger"
	"category-tree/internal/model"
	"category-tree/pkg/apierror"
)

// opener builds the application and returns the deadline for one command.
type opener func(ctx context.Context) (*app.App, time.Duration, error)

func openFromEnv(ctx context.Context) (*app.App, time.Duration, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, 0, fmt.Errorf("load config: %v: %w", err, model.ErrInvalidInput)
	}

	slog.SetDefault(logger.New(os.Stderr, logger.ParseLevel(cfg.LogLevel), cfg.LogFormat))

	connectCtx, cancel := context.WithTimeout(ctx, cfg.CommandTimeout)
	defer cancel()

	a, err := app.New(connectCtx, cfg)
	if err != nil {
		return nil, 0, &model.StoreError{Op: "open store", Err: err}
	}
	return a, cfg.CommandTimeout, nil
}

type cli struct {
	open   opener
	app    *app.App
	cancel context.CancelFunc
	actor  string
}

func (c *cli) close() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.app != nil {
		c.app.Close()
	}
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:   "treectl",
		Short: "Administer the category tree",
		Long: `treectl reads and restructures the category tree stored in PostgreSQL.

Every command prints JSON. Refused or failed operations print an error
explanation on stderr and exit non-zero.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" {
				return nil
			}
			a, timeout, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			c.app = a

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			c.cancel = cancel
			cmd.SetContext(ctx)
			return nil
		},
	}

	defaultActor := os.Getenv("USER")
	if defaultActor == "" {
		defaultActor = "treectl"
	}
	root.PersistentFlags().StringVar(&c.actor, "actor", defaultActor, "actor id recorded in the audit log")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%v: %w", err, model.ErrInvalidInput)
	})

	root.AddCommand(
		newCreateCmd(c),
		newGetCmd(c),
		newDeleteCmd(c),
		newStatusCmd(c),
		newMoveCmd(c),
		newValidateCmd(c),
		newBatchCmd(c),
		newSubtreeCmd(c),
		newAncestorsCmd(c),
		newChildrenCmd(c),
		newDepthCmd(c),
		newLeavesCmd(c),
		newSearchCmd(c),
		newTreeCmd(c),
		newTargetsCmd(c),
		newStatsCmd(c),
		newVerifyCmd(c),
		newAuditCmd(c),
	)
	return root
}

// Execute runs treectl with args and returns the process exit code.
func Execute(args []string, stdout io.Writer, stderr io.Writer) int {
	return execute(openFromEnv, args, stdout, stderr)
}

func execute(open opener, args []string, stdout io.Writer, stderr io.Writer) int {
	c := &cli{open: open}
	defer c.close()

	root := newRootCmd(c)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(context.Background()); err != nil {
		_ = writeJSON(stderr, apierror.FromError(err))
		return 1
	}
	return 0
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return fmt.Errorf("%s expects %d argument(s), got %d: %w", cmd.Name(), n, len(args), model.ErrInvalidInput)
		}
		return nil
	}
}

func maxArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > n {
			return fmt.Errorf("%s accepts at most %d argument(s), got %d: %w", cmd.Name(), n, len(args), model.ErrInvalidInput)
		}
		return nil
	}
}

// optionalInt returns nil unless the flag was set.
func optionalInt(cmd *cobra.Command, name string, v int) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	return &v
}
