package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"category-tree/internal/model"
	"category-tree/pkg/apierror"
)

func newStatsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Maintain cached category counters",
	}

	var chain bool
	refresh := &cobra.Command{
		Use:   "refresh <id>",
		Short: "Recount children, descendants and items of a category",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if chain {
				nodes, err := c.app.Stats.RefreshChain(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), listResponse{Data: nodes})
			}
			node, err := c.app.Stats.Refresh(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), node)
		},
	}
	refresh.Flags().BoolVar(&chain, "chain", false, "also refresh every ancestor")

	cmd.AddCommand(refresh)
	return cmd
}

func newVerifyCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that every stored path agrees with its parent chain",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			violations, err := c.app.Query.CheckIntegrity(cmd.Context())
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), listResponse{Data: violations}); err != nil {
				return err
			}
			if len(violations) > 0 {
				return apierror.New("INTEGRITY_VIOLATION",
					fmt.Sprintf("%d path inconsistencies found", len(violations)), "", http.StatusConflict)
			}
			return nil
		},
	}
}

func newAuditCmd(c *cli) *cobra.Command {
	var query model.AuditQuery

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Page through the audit log, newest first",
		Long: `Page through the audit log, newest first.

Examples:
  treectl audit --node 6f1c...
  treectl audit --action reparent --from 2026-01-01T00:00:00Z --limit 20`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, meta, err := c.app.Audit.Query(cmd.Context(), query)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), listResponse{Data: entries, Meta: &meta})
		},
	}
	cmd.Flags().StringVar(&query.NodeID, "node", "", "only entries for this category")
	cmd.Flags().StringVar(&query.ActorID, "actor-id", "", "only entries recorded by this actor")
	cmd.Flags().StringVar(&query.Action, "action", "", "REPARENT, CREATE, DELETE or STATUS")
	cmd.Flags().StringVar(&query.From, "from", "", "RFC3339 lower bound")
	cmd.Flags().StringVar(&query.To, "to", "", "RFC3339 upper bound")
	cmd.Flags().IntVar(&query.Page, "page", 1, "page number")
	cmd.Flags().IntVar(&query.Limit, "limit", 50, "page size (max 200)")
	return cmd
}
