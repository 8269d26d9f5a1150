package main

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/domain"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/export"
	"github.com/Darren-A11att/LodgeTix-DB-Migration-sub013/internal/service"
)

func (a *app) runFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.BoolVar(&a.dryRun, "dry-run", false, "compute and print staged changes without writing")
	f.BoolVar(&a.force, "force", false, "apply without the interactive confirmation")
	f.StringVar(&a.registrationID, "registration-id", "", "reconcile a single registration (id or confirmation number)")
	f.BoolVar(&a.correctTickets, "correct-tickets", false, "replace cached ticket names and prices with their event ticket definition")
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Normalize, resolve and correct registrations",
		Long: `run streams the selected registrations, rewrites each one to the canonical
shape and reports ticket name and price discrepancies. With --correct-tickets
it also replaces the cached name and price of each mismatched ticket with its
event ticket definition, logging the before and after values.
Without --force it first stages the run and asks before writing.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			opts := service.RunOptions{DryRun: true, Filter: a.filter(), CorrectTickets: a.correctTickets}
			pipeline := a.container.Pipeline

			execute := func(opts service.RunOptions) (*domain.RunSummary, error) {
				if a.registrationID != "" {
					return pipeline.ReconcileOne(ctx, a.registrationID, opts)
				}
				return pipeline.Run(ctx, opts)
			}

			if a.dryRun {
				summary, err := execute(opts)
				if summary != nil {
					if werr := a.writeRun(summary); werr != nil && err == nil {
						err = werr
					}
				}
				return err
			}

			if !a.force {
				staged, err := execute(opts)
				if err != nil {
					return err
				}
				if staged.StagedOperations == 0 {
					return a.writeRun(staged)
				}
				ok, err := a.confirm(fmt.Sprintf("Apply %d staged operations across %d registrations?",
					staged.StagedOperations, countStaged(staged)))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Aborted, nothing written.")
					return a.writeRun(staged)
				}
			}

			opts.DryRun = false
			summary, err := execute(opts)
			if summary != nil {
				if werr := a.writeRun(summary); werr != nil && err == nil {
					err = werr
				}
			}
			return err
		},
	}
	a.runFlags(cmd)
	return cmd
}

// writeRun prints the counts line before the report body
func (a *app) writeRun(s *domain.RunSummary) error {
	if a.format == "text" && a.outputDir == "" {
		mode := "applied"
		if s.DryRun {
			mode = "dry run"
		}
		fmt.Fprintf(a.out, "Run %s (%s): processed=%d updated=%d unchanged=%d skipped=%d errored=%d staged=%d discrepancies=%d corrected=%d\n",
			s.RunID, mode, s.Processed, s.Updated, s.Unchanged, s.Skipped, s.Errored, s.StagedOperations, len(s.Discrepancies), s.TicketsCorrected)
		for reason, n := range s.SkipReasons {
			fmt.Fprintf(a.out, "  skipped %s: %d\n", reason, n)
		}
		for reason, n := range s.ErrorReasons {
			fmt.Fprintf(a.out, "  errored %s: %d\n", reason, n)
		}
	}
	return a.write(export.RunReport(s))
}

func countStaged(s *domain.RunSummary) int {
	n := 0
	for _, o := range s.Outcomes {
		if o.Status == domain.OutcomeStaged {
			n++
		}
	}
	return n
}

// confirm asks a yes/no question on stdin; anything but y or yes is no
func (a *app) confirm(question string) (bool, error) {
	fmt.Fprintf(a.out, "%s [y/N]: ", question)
	line, err := bufio.NewReader(a.in).ReadString('\n')
	if err != nil && line == "" {
		// closed stdin counts as no
		return false, nil
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

func (a *app) duplicatesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "duplicates",
		Short: "Find registrations booked twice by the same person for the same attendees",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.container.Reports.Duplicates(cmd.Context(), a.filter())
			if err != nil {
				return err
			}
			return a.write(export.DuplicatesReport(r))
		},
	}
}

func (a *app) discrepanciesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "discrepancies",
		Short: "List ticket name and price mismatches without writing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := a.container.Reports.Discrepancies(cmd.Context(), a.filter())
			if err != nil {
				return err
			}
			return a.write(export.DiscrepanciesReport("discrepancies", ds))
		},
	}
}

func (a *app) reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Count registrations by type and payment status and tickets by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.container.Reports.Summary(cmd.Context(), a.filter())
			if err != nil {
				return err
			}
			return a.write(export.SummaryReport(s))
		},
	}
}

func (a *app) ticketCountsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ticket-counts",
		Short: "Compute sold, reserved and available counts per event ticket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.container.Reports.TicketCounts(cmd.Context())
			if err != nil {
				return err
			}
			if len(r.CachedFields) > 0 {
				a.log.Warn("event tickets carry cached count fields", zap.Int("tickets", len(r.CachedFields)))
			}
			return a.write(export.TicketCountsReport(r))
		},
	}
}

func (a *app) verifyPaymentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-payments",
		Short: "Compare registrations with the Stripe or Square payment they reference",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.container.Reports.VerifyPayments(cmd.Context(), a.filter())
			if err != nil {
				return err
			}
			if r.Skipped > 0 {
				a.log.Warn("payment lookups skipped", zap.Int("skipped", r.Skipped))
			}
			return a.write(export.PaymentVerificationReport(r))
		},
	}
}

var errNoSource = errors.New("audit-source needs SUPABASE_ENABLED=true and a reachable Supabase database")

func (a *app) auditSourceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-source",
		Short: "Check every Supabase registration against its MongoDB copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.container.Auditor == nil {
				return errNoSource
			}
			r, err := a.container.Auditor.Audit(cmd.Context())
			if err != nil {
				return err
			}
			return a.write(export.AuditReport(r))
		},
	}
}

func (a *app) matchPaymentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "match-payments",
		Short: "Suggest the registration each unmatched imported payment belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := a.container.Matcher.MatchUnmatched(cmd.Context(), a.container.Payments)
			if err != nil {
				return err
			}
			return a.write(export.MatchReport(r))
		},
	}
}
