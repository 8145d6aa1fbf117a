package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/anacreon-labs/factledger/internal/service"
	"github.com/spf13/cobra"
)

func newConflictsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "Detect and resolve contradictions between validated facts",
	}
	cmd.AddCommand(
		newConflictsDetectCmd(c),
		newConflictsListCmd(c),
		newConflictsShowCmd(c),
		newConflictsResolveCmd(c),
	)
	return cmd
}

func printConflicts(c *cli, conflicts []domain.FactConflict) error {
	if len(conflicts) == 0 {
		fmt.Fprintln(c.out, "no conflicts")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSUBJECT\tRELATION\tA\tB\tDIFF\tRESOLVED")
	for _, cf := range conflicts {
		a, b := "?", "?"
		if cf.FactA != nil {
			a = cf.FactA.Object
		}
		if cf.FactB != nil {
			b = cf.FactB.Object
		}
		resolved := "no"
		if cf.IsResolved && cf.Resolution != nil {
			resolved = string(*cf.Resolution)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
			cf.ID, cf.Subject, cf.Relation, a, b, cf.ConfidenceDifference, resolved)
	}
	return tw.Flush()
}

func newConflictsDetectCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Scan validated facts and record new conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			conflicts, err := c.conflicts.DetectConflicts(cmd.Context())
			if err != nil {
				return err
			}
			return printConflicts(c, conflicts)
		},
	}
}

func newConflictsListCmd(c *cli) *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded conflicts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			conflicts, err := c.conflicts.ListConflicts(cmd.Context(), !all)
			if err != nil {
				return err
			}
			return printConflicts(c, conflicts)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "include resolved conflicts")
	return cmd
}

func newConflictsShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show <conflict-id>",
		Short: "Print a conflict with its resolution options",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			cf, err := c.conflicts.GetConflict(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprint(c.out, service.FormatConflict(cf))
			return nil
		},
	}
}

func newConflictsResolveCmd(c *cli) *cobra.Command {
	var notes string
	cmd := &cobra.Command{
		Use:       "resolve <conflict-id> <resolution>",
		Short:     "Resolve a conflict",
		Long:      "Resolution is one of KEEP_FACT_A, KEEP_FACT_B, KEEP_BOTH, DEPRECATE_BOTH or CREATE_NEW.",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"KEEP_FACT_A", "KEEP_FACT_B", "KEEP_BOTH", "DEPRECATE_BOTH", "CREATE_NEW"},
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			resolution := domain.ConflictResolution(strings.ToUpper(args[1]))
			cf, err := c.conflicts.ResolveConflict(cmd.Context(), id, resolution, c.reviewer, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "conflict %s resolved with %s\n", cf.ID, resolution)
			return nil
		},
	}
	cmd.Flags().StringVar(&notes, "notes", "", "free-text resolution notes")
	return cmd
}
