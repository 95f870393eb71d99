package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"category-tree/internal/model"
)

type listResponse struct {
	Data any         `json:"data"`
	Meta *model.Meta `json:"meta,omitempty"`
}

func newSubtreeCmd(c *cli) *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "subtree <id>",
		Short: "List every descendant of a category, shallowest first",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := c.app.Query.Subtree(cmd.Context(), args[0], optionalInt(cmd, "max-depth", maxDepth))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listResponse{Data: nodes})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "levels below the category to include")
	return cmd
}

func newAncestorsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "ancestors <id>",
		Short: "List the ancestors of a category, root first",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := c.app.Query.Ancestors(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listResponse{Data: nodes})
		},
	}
}

func newChildrenCmd(c *cli) *cobra.Command {
	var page, limit int

	cmd := &cobra.Command{
		Use:   "children [id]",
		Short: "Page through the direct children of a category, or the roots",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var parentID *string
			if len(args) == 1 {
				parentID = &args[0]
			}
			nodes, meta, err := c.app.Query.Children(cmd.Context(), parentID, page, limit)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listResponse{Data: nodes, Meta: &meta})
		},
	}
	cmd.Flags().IntVar(&page, "page", 1, "page number")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size (max 200)")
	return cmd
}

func newDepthCmd(c *cli) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "depth <n>",
		Short: "List the categories at one depth",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			depth, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("depth %q is not a number: %w", args[0], model.ErrInvalidInput)
			}
			nodes, err := c.app.Query.DepthSlice(cmd.Context(), depth, scope)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listResponse{Data: nodes})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "only search under this category")
	return cmd
}

func newLeavesCmd(c *cli) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "leaves",
		Short: "List the categories flagged as leaves",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := c.app.Query.Leaves(cmd.Context(), scope)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listResponse{Data: nodes})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "only search under this category")
	return cmd
}

func newSearchCmd(c *cli) *cobra.Command {
	var scope string

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Find categories by name, description or keyword",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodes, err := c.app.Query.Search(cmd.Context(), args[0], scope)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listResponse{Data: nodes})
		},
	}
	cmd.Flags().StringVar(&scope, "scope", "", "only search under this category")
	return cmd
}

func newTreeCmd(c *cli) *cobra.Command {
	var maxDepth int

	cmd := &cobra.Command{
		Use:   "tree [id]",
		Short: "Print the nested tree under a category, or the whole forest",
		Args:  maxArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var rootID *string
			if len(args) == 1 {
				rootID = &args[0]
			}
			tree, err := c.app.Query.Tree(cmd.Context(), rootID, optionalInt(cmd, "max-depth", maxDepth))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listResponse{Data: tree})
		},
	}
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "levels below the start to include")
	return cmd
}

func newTargetsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "targets <id>",
		Short: "Show whether a category can be deleted and where it can move",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			targets, err := c.app.Query.ValidateOperationTargets(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), targets)
		},
	}
}
