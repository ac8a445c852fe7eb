package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/DeafMist/event-radar/internal/config"
	"github.com/DeafMist/event-radar/internal/grouping"
	"github.com/DeafMist/event-radar/internal/logger"
	"github.com/DeafMist/event-radar/internal/models"
	"github.com/DeafMist/event-radar/internal/storage"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type app struct {
	store storage.Backend
	cfg   *config.CLI
}

func newRootCmd() *cobra.Command {
	return (&app{}).rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "groupctl",
		Short:        "Run and inspect event grouping",
		SilenceUsage: true,
	}

	root.AddCommand(
		a.runCmd(),
		a.statusCmd(),
		a.groupsCmd(),
		a.showCmd(),
		a.searchCmd(),
		a.resetCmd(),
	)
	return root
}

// open loads configuration and connects to storage. Commands call it lazily
// so help and completion work without a database, and close it on return
// whether or not they fail.
func (a *app) open(cmd *cobra.Command) error {
	if a.store != nil {
		return nil
	}
	cfg, err := config.LoadCLI()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	store, err := storage.Open(cmd.Context(), cfg.Common, a.logger(cmd))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	a.cfg, a.store = cfg, store
	return nil
}

func (a *app) close() error {
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

func (a *app) logger(cmd *cobra.Command) *slog.Logger {
	return logger.NewWithWriter(cmd.ErrOrStderr(), "groupctl")
}

func (a *app) runCmd() *cobra.Command {
	var (
		threshold   float64
		days        int
		minSize     int
		maxTimeDiff int
		limit       int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Group ungrouped articles from the recent window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			defer a.close()
			g := a.cfg.Grouping
			flags := cmd.Flags()
			if flags.Changed("threshold") {
				g.SimilarityThreshold = threshold
			}
			if flags.Changed("days") {
				g.DaysBack = days
			}
			if flags.Changed("min-group-size") {
				g.MinGroupSize = minSize
			}
			if flags.Changed("max-time-diff") {
				g.MaxTimeDiffDays = maxTimeDiff
			}
			if flags.Changed("limit") {
				g.CandidateLimit = limit
			}
			if err := g.Validate(); err != nil {
				return err
			}

			log := a.logger(cmd)
			runner := grouping.NewRunner(a.store, grouping.BuilderFromConfig(g, log), log)
			stats, err := runner.Run(cmd.Context(), grouping.OptionsFromConfig(g))
			printStats(cmd.OutOrStdout(), stats)
			return err
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "similarity threshold in [0, 1]")
	cmd.Flags().IntVar(&days, "days", 0, "only consider articles created in the last N days")
	cmd.Flags().IntVar(&minSize, "min-group-size", 0, "minimum number of articles per group")
	cmd.Flags().IntVar(&maxTimeDiff, "max-time-diff", 0, "maximum days between grouped articles")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of candidate articles")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show grouping statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			defer a.close()
			st, err := a.store.Status(cmd.Context())
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func (a *app) groupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "groups [N]",
		Short: "List the N largest event groups",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			defer a.close()
			limit := 10
			if len(args) == 1 {
				n, err := strconv.Atoi(args[0])
				if err != nil || n <= 0 {
					return fmt.Errorf("group count must be a positive integer, got %q", args[0])
				}
				limit = n
			}
			groups, err := a.store.ListGroups(cmd.Context(), limit)
			if err != nil {
				return err
			}
			printGroups(cmd.OutOrStdout(), groups)
			return nil
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show the articles of one event group",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			defer a.close()
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("group id must be a positive integer, got %q", args[0])
			}
			articles, err := a.store.FetchGroup(cmd.Context(), id)
			if err != nil {
				return err
			}
			if len(articles) == 0 {
				return fmt.Errorf("group %d not found", id)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Group %d (%d articles)\n", id, len(articles))
			printArticles(out, articles)
			return nil
		},
	}
}

func (a *app) searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search TERM",
		Short: "Find groups with an article matching TERM",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			defer a.close()
			term := strings.Join(args, " ")
			groups, err := a.store.SearchGroups(cmd.Context(), term, limit)
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No groups match %q\n", term)
				return nil
			}
			printGroups(cmd.OutOrStdout(), groups)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of groups")
	return cmd
}

func (a *app) resetCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Remove every group assignment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.open(cmd); err != nil {
				return err
			}
			defer a.close()
			if !yes {
				return fmt.Errorf("refusing to reset groups without --yes")
			}
			if err := a.store.ResetAllGroups(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "All event groups reset")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return cmd
}

func printStats(w io.Writer, s models.RunStats) {
	fmt.Fprintf(w, "Run %s\n", s.RunID)
	fmt.Fprintf(w, "  articles processed: %d\n", s.ArticlesProcessed)
	fmt.Fprintf(w, "  groups created:     %d\n", s.GroupsCreated)
	fmt.Fprintf(w, "  articles grouped:   %d\n", s.ArticlesGrouped)
	fmt.Fprintf(w, "  average group size: %.2f\n", s.AverageGroupSize())
	fmt.Fprintf(w, "  errors:             %d\n", s.Errors)
	fmt.Fprintf(w, "  time:               %.2fs\n", s.ProcessingTimeSeconds)
}

func printStatus(w io.Writer, st models.GroupingStatus) {
	fmt.Fprintf(w, "Total articles:     %d\n", st.TotalArticles)
	fmt.Fprintf(w, "Grouped articles:   %d\n", st.GroupedArticles)
	fmt.Fprintf(w, "Ungrouped articles: %d\n", st.UngroupedArticles)
	fmt.Fprintf(w, "Event groups:       %d\n", st.TotalGroups)
	fmt.Fprintf(w, "Average group size: %.2f\n", st.AverageGroupSize)
	fmt.Fprintf(w, "Grouping rate:      %.2f%%\n", st.GroupingPercentage)
	if len(st.TopSources) > 0 {
		fmt.Fprintln(w, "Top sources:")
		for _, s := range st.TopSources {
			fmt.Fprintf(w, "  %-30s %d\n", s.SourceName, s.Articles)
		}
	}
}

func printGroups(w io.Writer, groups []models.GroupSummary) {
	if len(groups) == 0 {
		fmt.Fprintln(w, "No event groups")
		return
	}
	for _, g := range groups {
		fmt.Fprintf(w, "Group %d: %d articles, %s .. %s\n", g.GroupID, g.ArticleCount, g.FirstArticle, g.LastArticle)
		printArticles(w, g.Articles)
	}
}

func printArticles(w io.Writer, articles []models.Article) {
	for _, a := range articles {
		fmt.Fprintf(w, "  [%d] %s | %s\n", a.ID, a.SourceName, a.Title)
	}
}

