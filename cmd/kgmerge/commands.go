package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sydlexius/kgmerge/internal/history"
	"github.com/sydlexius/kgmerge/internal/merge"
	"github.com/sydlexius/kgmerge/internal/resultset"
	"github.com/sydlexius/kgmerge/internal/sparql"
	"github.com/sydlexius/kgmerge/internal/version"
	"github.com/sydlexius/kgmerge/internal/watcher"
)

// getCmd builds get and its endpoint-bound aliases. When fixed is empty the
// endpoint comes from --endpoint.
func getCmd(a *app, use, fixed string) *cobra.Command {
	endpoint := sparql.Wikidata
	cmd := &cobra.Command{
		Use:   use + " <category> <variant>",
		Short: "Fetch one catalog query and store its result set",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ep := endpoint
			if fixed != "" {
				ep = fixed
			}
			if err := a.startRuntime(cmd.Context()); err != nil {
				return err
			}
			res, err := a.fetcher().Fetch(cmd.Context(), ep, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s/%s/%s: %d rows -> %s\n",
				res.Endpoint, res.Category, res.Variant, res.Rows, res.Path)
			return nil
		},
	}
	if fixed == "" {
		cmd.Flags().StringVar(&endpoint, "endpoint", sparql.Wikidata, "endpoint: wikidata or dbpedia")
	} else {
		cmd.Short = fmt.Sprintf("Fetch one %s catalog query and store its result set", fixed)
	}
	return cmd
}

func getAllCmd(a *app) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "get_all",
		Short: "Fetch every catalog query for an endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.startRuntime(cmd.Context()); err != nil {
				return err
			}
			sum := a.fetcher().FetchAll(cmd.Context(), endpoint)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "fetched %d, failed %d, skipped %d, rows %d\n",
				sum.Fetched, sum.Failed, sum.Skipped, sum.Rows)
			for _, f := range sum.Failures {
				fmt.Fprintf(out, "  %s/%s: %v\n", f.Category, f.Variant, f.Err)
			}
			if sum.Canceled {
				return context.Canceled
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", sparql.Wikidata, "endpoint: wikidata or dbpedia")
	return cmd
}

func mergeCmd(a *app) *cobra.Command {
	var (
		endpoint string
		strict   bool
	)
	cmd := &cobra.Command{
		Use:   "merge <category>",
		Short: "Aggregate fetched result sets into one entity document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.startRuntime(cmd.Context()); err != nil {
				return err
			}
			rep, err := a.merger(strict).Merge(cmd.Context(), endpoint, args[0])
			if err != nil {
				return err
			}
			printReport(cmd, rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", sparql.Wikidata, "endpoint: wikidata or dbpedia")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail without writing if any result file is unusable")
	return cmd
}

func printReport(cmd *cobra.Command, rep merge.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s/%s: %d entities from %d sources -> %s\n",
		rep.Endpoint, rep.Category, rep.Entities, rep.Sources, rep.Path)
	for _, d := range rep.Skipped {
		fmt.Fprintf(out, "  skipped %s\n", d)
	}
}

func watchCmd(a *app) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "watch <category>",
		Short: "Re-merge a category whenever its result files change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			category := args[0]
			if _, err := a.catalog.Category(endpoint, category); err != nil {
				return err
			}
			if err := a.startRuntime(ctx); err != nil {
				return err
			}
			m := a.merger(false)
			mergeFn := func(ctx context.Context) error {
				rep, err := m.Merge(ctx, endpoint, category)
				if err != nil {
					return err
				}
				printReport(cmd, rep)
				return nil
			}

			// Bring the document up to date before waiting for changes.
			if err := mergeFn(ctx); err != nil {
				a.logger.Warn("initial merge failed", "category", category, "error", err)
			}

			svc := watcher.NewService(resultset.SourceDir(a.cfg.Output.Dir, endpoint, category), mergeFn,
				watcher.Options{Debounce: a.cfg.Watch.Debounce, PollInterval: a.cfg.Watch.PollInterval},
				a.logger)
			return svc.Run(ctx)
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", sparql.Wikidata, "endpoint: wikidata or dbpedia")
	return cmd
}

func historyCmd(a *app) *cobra.Command {
	var (
		limit  int
		merges bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent fetch or merge runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !a.cfg.History.Enabled {
				return errors.New("history is disabled in the configuration")
			}
			ctx := cmd.Context()
			if err := a.openHistory(ctx); err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			if merges {
				runs, err := a.history.RecentMerges(ctx, limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(tw, "STARTED\tENDPOINT\tCATEGORY\tSTATUS\tENTITIES\tSOURCES\tSKIPPED\tDURATION")
				for _, r := range runs {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
						r.StartedAt.Local().Format(time.DateTime), r.Endpoint, r.Category,
						statusText(r.Status, r.Error), r.Entities, r.Sources, r.Skipped, r.Duration.Round(time.Millisecond))
				}
				return tw.Flush()
			}
			runs, err := a.history.RecentFetches(ctx, limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(tw, "STARTED\tENDPOINT\tCATEGORY\tVARIANT\tSTATUS\tROWS\tDURATION")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
					r.StartedAt.Local().Format(time.DateTime), r.Endpoint, r.Category, r.Variant,
					statusText(r.Status, r.Error), r.Rows, r.Duration.Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultLimit, "number of runs to show")
	cmd.Flags().BoolVar(&merges, "merges", false, "show merges instead of fetches")
	return cmd
}

func statusText(status, errText string) string {
	if errText == "" {
		return status
	}
	if i := strings.IndexByte(errText, '\n'); i >= 0 {
		errText = errText[:i]
	}
	return status + ": " + errText
}

func catalogCmd(a *app) *cobra.Command {
	var endpoint string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "List the registered endpoints, categories, and variants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			for _, ep := range a.catalog.Endpoints() {
				if endpoint != "" && ep != endpoint {
					continue
				}
				fmt.Fprintln(out, ep)
				for _, c := range a.catalog.Categories(ep) {
					names, err := a.catalog.Variants(ep, c.Name)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "  %s: %s\n", c.Name, strings.Join(names, ", "))
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "", "only list this endpoint")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		// Skip config loading.
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}
