package cmd

import (
	"github.com/spf13/cobra"

	"category-tree/internal/model"
)

func newCreateCmd(c *cli) *cobra.Command {
	var (
		req      model.CreateNodeRequest
		parentID string
	)

	cmd := &cobra.Command{
		Use:   "create --name <name> [--slug <slug>] [--parent <id>]",
		Short: "Create a category",
		Long: `Create a category under a parent, or as a root when --parent is omitted.
The slug is derived from the name when --slug is omitted.

Examples:
  treectl create --slug garden --name Garden
  treectl create --parent 6f1c... --slug tools --name Tools --keyword shovel`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if parentID != "" {
				req.ParentID = &parentID
			}
			node, err := c.app.Categories.CreateNode(cmd.Context(), req, c.actor)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), node)
		},
	}

	cmd.Flags().StringVar(&parentID, "parent", "", "parent category id")
	cmd.Flags().StringVar(&req.Slug, "slug", "", "path segment, unique among siblings (default derived from --name)")
	cmd.Flags().StringVar(&req.Name, "name", "", "display name")
	cmd.Flags().StringVar(&req.Description, "description", "", "description")
	cmd.Flags().StringSliceVar(&req.Keywords, "keyword", nil, "search keyword (repeatable)")
	cmd.Flags().IntVar(&req.DisplayOrder, "order", 0, "display order among siblings")
	cmd.Flags().BoolVar(&req.IsLeaf, "leaf", false, "flag the category as a leaf")
	return cmd
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show one category",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := c.app.Query.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), node)
		},
	}
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Soft-delete a category with no children and no items",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.Categories.DeleteNode(cmd.Context(), args[0], c.actor); err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), map[string]any{"id": args[0], "deleted": true})
		},
	}
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id> <ACTIVE|INACTIVE|ARCHIVED>",
		Short: "Change a category's status; ARCHIVED is final",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			node, err := c.app.Categories.SetStatus(cmd.Context(), args[0], model.Status(args[1]), c.actor)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), node)
		},
	}
}
