package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
	"github.com/pauljones0/linkedin-posts-bot/internal/processor"
)

const (
	resetGracePeriod = 3 * time.Second
	verifySampleSize = 5
)

var errRunUnsuccessful = errors.New("run did not succeed")

type profileSource interface {
	FetchUnprocessedProfiles(ctx context.Context) ([]models.Profile, error)
	AllProcessed(ctx context.Context) (bool, error)
	ResetAllProcessed(ctx context.Context) error
}

type quota interface {
	GetStats(ctx context.Context) models.RateLimitStats
	Reset(ctx context.Context) error
}

type runHistory interface {
	RecentRuns(ctx context.Context, limit int) ([]models.RunResult, error)
}

type deps struct {
	processor processor.Processor
	source    profileSource
	quota     quota
	history   runHistory
	closers   []io.Closer
}

func (d *deps) Close() {
	for _, c := range d.closers {
		c.Close()
	}
}

type loaderFunc func(ctx context.Context, debug bool) (*deps, error)

func newRootCmd(load loaderFunc) *cobra.Command {
	var debug bool

	root := &cobra.Command{
		Use:          "scrapectl",
		Short:        "Run and inspect the LinkedIn posts pipeline",
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	withDeps := func(fn func(cmd *cobra.Command, args []string, d *deps) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			d, err := load(cmd.Context(), debug)
			if err != nil {
				return err
			}
			defer d.Close()
			return fn(cmd, args, d)
		}
	}

	root.AddCommand(
		newRunCmd(withDeps),
		newStatsCmd(withDeps),
		newVerifyCmd(withDeps),
		newResetCmd(withDeps),
	)
	return root
}

type depsWrapper func(fn func(cmd *cobra.Command, args []string, d *deps) error) func(*cobra.Command, []string) error

func newRunCmd(withDeps depsWrapper) *cobra.Command {
	var urls []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch now and exit non-zero unless it succeeds",
		RunE: withDeps(func(cmd *cobra.Command, args []string, d *deps) error {
			var (
				run *models.RunResult
				err error
			)
			if len(urls) > 0 {
				run, err = d.processor.RunForURLs(cmd.Context(), urls)
			} else {
				run, err = d.processor.RunBatch(cmd.Context())
			}
			if run != nil {
				printRun(cmd.OutOrStdout(), run)
			}
			if err != nil {
				return err
			}
			if !run.Success {
				return fmt.Errorf("%w: %s", errRunUnsuccessful, run.Error)
			}
			return nil
		}),
	}
	cmd.Flags().StringSliceVar(&urls, "url", nil, "profile URL to process instead of the HubSpot list (repeatable)")
	return cmd
}

func newStatsCmd(withDeps depsWrapper) *cobra.Command {
	var runs int
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show today's quota and recent runs",
		RunE: withDeps(func(cmd *cobra.Command, args []string, d *deps) error {
			out := cmd.OutOrStdout()
			st := d.quota.GetStats(cmd.Context())
			fmt.Fprintf(out, "Date:      %s\n", st.Date)
			fmt.Fprintf(out, "Processed: %d/%d\n", st.Count, st.Limit)
			fmt.Fprintf(out, "Remaining: %d\n", st.Remaining)

			if runs <= 0 {
				return nil
			}
			if d.history == nil {
				fmt.Fprintln(out, "\nRun history unavailable (GOOGLE_CLOUD_PROJECT not set)")
				return nil
			}
			recent, err := d.history.RecentRuns(cmd.Context(), runs)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSUCCESS\tPROFILES\tSAVED\tDUPLICATES\tFAILED\tERROR")
			for _, r := range recent {
				fmt.Fprintf(tw, "%s\t%t\t%d\t%d\t%d\t%d\t%s\n",
					r.StartedAt.Format(time.RFC3339), r.Success, r.Summary.ProfilesProcessed,
					r.Summary.Successful, r.Summary.Duplicates, r.Summary.Failed, r.Error)
			}
			return tw.Flush()
		}),
	}
	cmd.Flags().IntVar(&runs, "runs", 10, "number of recent runs to list (0 to skip)")
	return cmd
}

func newVerifyCmd(withDeps depsWrapper) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the processed flags on the HubSpot list",
		RunE: withDeps(func(cmd *cobra.Command, args []string, d *deps) error {
			out := cmd.OutOrStdout()
			all, err := d.source.AllProcessed(cmd.Context())
			if err != nil {
				return err
			}
			pending, err := d.source.FetchUnprocessedProfiles(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "All processed: %t\n", all)
			fmt.Fprintf(out, "Unprocessed:   %d\n", len(pending))
			for i, p := range pending {
				if i == verifySampleSize {
					fmt.Fprintf(out, "  ... and %d more\n", len(pending)-verifySampleSize)
					break
				}
				name := p.DisplayName
				if name == "" {
					name = "(no name)"
				}
				fmt.Fprintf(out, "  %s  %s  %s\n", p.ID, name, p.CanonicalURL)
			}
			return nil
		}),
	}
}

func newResetCmd(withDeps depsWrapper) *cobra.Command {
	var yes, resetQuota bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear the processed flag on every HubSpot contact",
		RunE: withDeps(func(cmd *cobra.Command, args []string, d *deps) error {
			out := cmd.OutOrStdout()
			if !yes {
				fmt.Fprintf(out, "Resetting all processed flags in %s, press Ctrl+C to abort...\n", resetGracePeriod)
				select {
				case <-cmd.Context().Done():
					return cmd.Context().Err()
				case <-time.After(resetGracePeriod):
				}
			}

			if err := d.source.ResetAllProcessed(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(out, "Processed flags reset")

			if resetQuota {
				if err := d.quota.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(out, "Daily quota reset")
			}
			return nil
		}),
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the grace period")
	cmd.Flags().BoolVar(&resetQuota, "quota", false, "also reset today's quota counter")
	return cmd
}

func printRun(out io.Writer, run *models.RunResult) {
	fmt.Fprintf(out, "Run %s\n", run.RunID)
	fmt.Fprintf(out, "  success:    %t\n", run.Success)
	if run.Error != "" {
		fmt.Fprintf(out, "  error:      %s\n", run.Error)
	}
	s := run.Summary
	fmt.Fprintf(out, "  profiles:   %d\n", s.ProfilesProcessed)
	fmt.Fprintf(out, "  posts:      %d (saved %d, duplicates %d, failed %d)\n", s.Total, s.Successful, s.Duplicates, s.Failed)
	if s.Unassociated > 0 {
		fmt.Fprintf(out, "  unassociated groups: %d\n", s.Unassociated)
	}
	if run.Reset {
		fmt.Fprintln(out, "  all profiles processed, flags reset")
	}
	fmt.Fprintf(out, "  quota:      %d/%d\n", run.Stats.Count, run.Stats.Limit)
}
