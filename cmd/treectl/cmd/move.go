package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"category-tree/internal/batchfile"
	"category-tree/internal/model"
)

type moveFlags struct {
	to              string
	root            bool
	dryRun          bool
	reason          string
	updateItems     bool
	batchSize       int
	skipConstraints bool
	expectedVersion int64
}

func (f *moveFlags) register(cmd *cobra.Command, withTarget bool) {
	if withTarget {
		cmd.Flags().StringVar(&f.to, "to", "", "new parent id")
		cmd.Flags().BoolVar(&f.root, "root", false, "make the category a root")
		cmd.Flags().Int64Var(&f.expectedVersion, "expected-version", 0, "refuse the move unless the category is at this version")
	}
	cmd.Flags().BoolVar(&f.dryRun, "dry-run", false, "report the impact without writing")
	cmd.Flags().StringVar(&f.reason, "reason", "", "reason recorded in the audit log")
	cmd.Flags().BoolVar(&f.updateItems, "update-items", false, "rewrite the denormalized category path of filed items")
	cmd.Flags().IntVar(&f.batchSize, "batch-size", 0, "descendants written per batch (0 uses TREE_BATCH_SIZE)")
	cmd.Flags().BoolVar(&f.skipConstraints, "skip-constraints", false, "skip the business constraint hook")
}

func (f *moveFlags) options() model.MoveOptions {
	opts := model.MoveOptions{
		ValidateConstraints:  !f.skipConstraints,
		UpdateDependentItems: f.updateItems,
		BatchSize:            f.batchSize,
		DryRun:               f.dryRun,
		Reason:               f.reason,
	}
	if f.expectedVersion > 0 {
		opts.ExpectedVersion = &f.expectedVersion
	}
	return opts
}

func (f *moveFlags) target() (*string, error) {
	switch {
	case f.root && f.to != "":
		return nil, fmt.Errorf("--to and --root cannot be combined: %w", model.ErrInvalidInput)
	case f.root:
		return nil, nil
	case f.to == "":
		return nil, fmt.Errorf("one of --to or --root is required: %w", model.ErrInvalidInput)
	}
	return &f.to, nil
}

func newMoveCmd(c *cli) *cobra.Command {
	var flags moveFlags

	cmd := &cobra.Command{
		Use:   "move <id> (--to <parent-id> | --root)",
		Short: "Move a category and its subtree under a new parent",
		Long: `Move a category and every descendant under a new parent in one transaction.

Examples:
  treectl move 6f1c... --to 91ab... --reason "merge garden tools"
  treectl move 6f1c... --root --dry-run`,
		Args: exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := flags.target()
			if err != nil {
				return err
			}
			result, err := c.app.Reparent.Reparent(cmd.Context(), args[0], target, c.actor, flags.options())
			if writeErr := writeJSON(cmd.OutOrStdout(), result); writeErr != nil && err == nil {
				return writeErr
			}
			return err
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newValidateCmd(c *cli) *cobra.Command {
	var flags moveFlags

	cmd := &cobra.Command{
		Use:   "validate <id> (--to <parent-id> | --root)",
		Short: "Check whether a move would be accepted",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := flags.target()
			if err != nil {
				return err
			}
			result, err := c.app.Reparent.ValidateMove(cmd.Context(), args[0], target, flags.options())
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.IsValid {
				return &model.MoveError{NodeID: args[0], TargetID: derefOr(target), Issues: result.Errors}
			}
			return nil
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newBatchCmd(c *cli) *cobra.Command {
	var (
		flags moveFlags
		path  string
	)

	cmd := &cobra.Command{
		Use:   "batch --file <moves.yaml>",
		Short: "Apply a list of moves, deepest category first",
		Long: `Apply the moves listed in a YAML or JSON file. Use "-" to read stdin.

The file is either a list of {node_id, new_parent_id} entries or a mapping
with "moves" and optional "options". Flags given on the command line
override the file's options.

Outside --dry-run the batch stops at the first failed move; earlier moves
stay committed.`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("--file is required: %w", model.ErrInvalidInput)
			}
			var in io.Reader = cmd.InOrStdin()
			if path != "-" {
				f, err := os.Open(path)
				if err != nil {
					return fmt.Errorf("open batch file: %v: %w", err, model.ErrInvalidInput)
				}
				defer f.Close()
				in = f
			}

			file, err := batchfile.Decode(in)
			if err != nil {
				return err
			}

			opts := flags.options()
			if file.Options != nil {
				opts = mergeOptions(*file.Options, opts, cmd)
			}

			result, err := c.app.Batch.BatchReparent(cmd.Context(), file.Requests, c.actor, opts)
			if writeErr := writeJSON(cmd.OutOrStdout(), result); writeErr != nil && err == nil {
				return writeErr
			}
			return err
		},
	}
	flags.register(cmd, false)
	cmd.Flags().StringVarP(&path, "file", "f", "", "batch file, or - for stdin")
	return cmd
}

// mergeOptions starts from the file's options and applies the flags the user set.
func mergeOptions(base model.MoveOptions, flagged model.MoveOptions, cmd *cobra.Command) model.MoveOptions {
	changed := cmd.Flags().Changed
	if changed("dry-run") {
		base.DryRun = flagged.DryRun
	}
	if changed("reason") {
		base.Reason = flagged.Reason
	}
	if changed("update-items") {
		base.UpdateDependentItems = flagged.UpdateDependentItems
	}
	if changed("batch-size") {
		base.BatchSize = flagged.BatchSize
	}
	if changed("skip-constraints") {
		base.ValidateConstraints = flagged.ValidateConstraints
	}
	return base
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
