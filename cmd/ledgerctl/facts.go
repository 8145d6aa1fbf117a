package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/anacreon-labs/factledger/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newFactsCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "facts",
		Short: "Inspect and review facts",
	}
	cmd.AddCommand(
		newFactsListCmd(c),
		newFactsHistoryCmd(c),
		newFactsCandidateCmd(c),
		newFactsValidateCmd(c),
		newFactsRejectCmd(c),
	)
	return cmd
}

func newFactsListCmd(c *cli) *cobra.Command {
	var (
		status  string
		subject string
		band    string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List facts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := domain.FactFilter{Subject: subject, Limit: limit}
			if status != "" {
				s := strings.ToUpper(status)
				if !domain.ValidFactStatus(s) {
					return fmt.Errorf("invalid status %q", status)
				}
				fs := domain.FactStatus(s)
				filter.Status = &fs
			}
			if band != "" && !validBand(band) {
				return fmt.Errorf("invalid band %q", band)
			}
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			facts, err := c.facts.ListFacts(cmd.Context(), filter)
			if err != nil {
				return err
			}
			if band != "" {
				facts = inBand(facts, domain.ConfidenceBand(strings.ToLower(band)))
			}
			if len(facts) == 0 {
				fmt.Fprintln(c.out, "no facts")
				return nil
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSTATUS\tCONF\tBAND\tSUBJECT\tRELATION\tOBJECT")
			for _, f := range facts {
				fmt.Fprintf(tw, "%s\t%s\t%.2f\t%s\t%s\t%s\t%s\n",
					f.ID, f.Status, f.Confidence, domain.ComputeBand(f.Confidence), f.Subject, f.Relation, f.Object)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "CANDIDATE, VALIDATED, REJECTED or DEPRECATED")
	cmd.Flags().StringVar(&subject, "subject", "", "case-insensitive subject match")
	cmd.Flags().StringVar(&band, "band", "", "only show one confidence band: "+bandNames())
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows; 0 for all")
	return cmd
}

func bandNames() string {
	names := make([]string, 0, len(domain.AllBands()))
	for _, b := range domain.AllBands() {
		names = append(names, string(b))
	}
	return strings.Join(names, ", ")
}

func validBand(name string) bool {
	for _, b := range domain.AllBands() {
		if string(b) == strings.ToLower(name) {
			return true
		}
	}
	return false
}

// inBand filters after the limit is applied, so it can return fewer rows.
func inBand(facts []domain.Fact, band domain.ConfidenceBand) []domain.Fact {
	out := facts[:0]
	for _, f := range facts {
		if domain.ComputeBand(f.Confidence) == band {
			out = append(out, f)
		}
	}
	return out
}

func newFactsHistoryCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "history <fact-id>",
		Short: "Show a fact's audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			history, err := c.facts.History(cmd.Context(), id)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tCHANGE\tBY\tAT\tSTATUS\tCONF\tREASON")
			for _, h := range history {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%.2f\t%s\n",
					h.Version, h.ChangeType, h.ChangedBy, h.ChangedAt.Format("2006-01-02 15:04:05"),
					h.New.Status, h.New.Confidence, h.Reason)
			}
			return tw.Flush()
		},
	}
}

func newFactsCandidateCmd(c *cli) *cobra.Command {
	var (
		sourceType string
		sourceID   string
		sourceURL  string
	)
	cmd := &cobra.Command{
		Use:   "candidate <subject> <relation> <object>",
		Short: "Record a new candidate fact",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			f, err := c.facts.CreateCandidate(cmd.Context(), domain.CandidateFact{
				Triple: domain.Triple{Subject: args[0], Relation: args[1], Object: args[2]},
				Source: domain.SourceRef{
					Type:       domain.SourceType(strings.ToUpper(sourceType)),
					Identifier: sourceID,
					URL:        sourceURL,
				},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "candidate %s created: %s\n", f.ID, f.Triple())
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceType, "source-type", string(domain.SourceUser), "USER, WEB, DOCUMENTATION, FORUM, CODEBASE or ACADEMIC")
	cmd.Flags().StringVar(&sourceID, "source", "", "source identifier")
	cmd.Flags().StringVar(&sourceURL, "url", "", "source URL")
	return cmd
}

func newFactsValidateCmd(c *cli) *cobra.Command {
	var confidence float64
	cmd := &cobra.Command{
		Use:   "validate <fact-id>",
		Short: "Approve a candidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			f, err := c.facts.Validate(cmd.Context(), id, c.reviewer, confidence)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "fact %s validated at %.2f (%s, %s)\n",
				f.ID, f.Confidence, domain.ComputeBand(f.Confidence), domain.BandReason(f.Confidence))
			return nil
		},
	}
	cmd.Flags().Float64Var(&confidence, "confidence", domain.DefaultValidationConfidence, "confidence in [0, 1)")
	return cmd
}

func newFactsRejectCmd(c *cli) *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "reject <fact-id>",
		Short: "Reject a fact",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := c.services(cmd.Context()); err != nil {
				return err
			}
			f, err := c.facts.Reject(cmd.Context(), id, c.reviewer, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "fact %s rejected\n", f.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the fact is wrong")
	return cmd
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
