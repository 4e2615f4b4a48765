package cmd

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tcsync/tcetl/internal/config"
	"github.com/tcsync/tcetl/internal/dates"
	"github.com/tcsync/tcetl/internal/enrich"
	"github.com/tcsync/tcetl/internal/incremental"
	"github.com/tcsync/tcetl/internal/jsonl"
	"github.com/tcsync/tcetl/internal/timecamp"
)

// entriesOptFields asks the entries endpoint for the extra columns the
// warehouse schema carries.
const entriesOptFields = "tags,breadcrumps"

var (
	fetchFrom   string
	fetchTo     string
	fetchFormat string

	fetchEntriesOutput string
	fetchIncremental   bool
	fetchDaysBack      int

	fetchActivitiesOutput string
	fetchInclude          string
	fetchUserIDs          string
	fetchNoAppEnrich      bool
	fetchAppCache         string

	fetchUsersOutput string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch data from the TimeCamp API",
}

var fetchEntriesCmd = &cobra.Command{
	Use:   "entries",
	Short: "Fetch time entries enriched with user and group data",
	Args:  cobra.NoArgs,
	RunE:  runFetchEntries,
}

var fetchActivitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "Fetch computer activities enriched with user and application data",
	Args:  cobra.NoArgs,
	RunE:  runFetchActivities,
}

var fetchUsersCmd = &cobra.Command{
	Use:   "users",
	Short: "Fetch the user roster with enabled state",
	Args:  cobra.NoArgs,
	RunE:  runFetchUsers,
}

func init() {
	fetchCmd.PersistentFlags().StringVar(&fetchFrom, "from", "yesterday", "Start date (YYYY-MM-DD or 'yesterday')")
	fetchCmd.PersistentFlags().StringVar(&fetchTo, "to", "yesterday", "End date (YYYY-MM-DD or 'yesterday')")
	fetchCmd.PersistentFlags().StringVar(&fetchFormat, "format", "jsonl", "Output format: jsonl or json")

	fetchEntriesCmd.Flags().StringVar(&fetchEntriesOutput, "output", "timecamp_data.jsonl", "Output file path")
	fetchEntriesCmd.Flags().BoolVar(&fetchIncremental, "incremental", false, "Sync a trailing window instead of --from/--to")
	fetchEntriesCmd.Flags().IntVar(&fetchDaysBack, "days-back", incremental.DefaultDaysBack, "Days to look back in incremental mode")

	fetchActivitiesCmd.Flags().StringVar(&fetchActivitiesOutput, "output", "timecamp_computer_time_data.jsonl", "Output file path")
	fetchActivitiesCmd.Flags().StringVar(&fetchInclude, "include", "application,window_title", "Additional data to include")
	fetchActivitiesCmd.Flags().StringVar(&fetchUserIDs, "user-ids", "", "Comma-separated user ids (default: all users)")
	fetchActivitiesCmd.Flags().BoolVar(&fetchNoAppEnrich, "no-enrich-applications", false, "Skip application enrichment")
	fetchActivitiesCmd.Flags().StringVar(&fetchAppCache, "app-cache", "applications_cache.json", "Application metadata cache file")

	fetchUsersCmd.Flags().StringVar(&fetchUsersOutput, "output", "timecamp_users.jsonl", "Output file path")

	fetchCmd.AddCommand(fetchEntriesCmd)
	fetchCmd.AddCommand(fetchActivitiesCmd)
	fetchCmd.AddCommand(fetchUsersCmd)
}

// fetchSetup loads configuration and builds the logger and API client
// shared by the fetch subcommands.
func fetchSetup(ctx context.Context) (*zap.Logger, *timecamp.Client, error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.TimeCamp.Validate(); err != nil {
		return nil, nil, err
	}
	return log, timecamp.NewClient(ctx, cfg.TimeCamp, log), nil
}

func runFetchEntries(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log, client, err := fetchSetup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	now := time.Now()

	base := timecamp.TimeEntriesQuery{
		IncludeProject: true,
		IncludeRates:   true,
		OptFields:      entriesOptFields,
	}

	var entries []timecamp.TimeEntry
	if fetchIncremental {
		entries = incremental.FetchAll(ctx, client, incremental.Plan(now, fetchDaysBack), base, now, log)
	} else {
		from, to, err := parseRange(fetchFrom, fetchTo, now)
		if err != nil {
			return err
		}
		base.From, base.To = dates.Format(from), dates.Format(to)
		entries, err = client.TimeEntries(ctx, base)
		if err != nil {
			return err
		}
	}

	picker, err := client.PeoplePicker(ctx)
	if err != nil {
		return err
	}
	dir := enrich.NewDirectory(picker, log)
	enrich.NewEnricher(dir, log).EnrichTimeEntries(entries)

	if err := jsonl.Write(fetchEntriesOutput, entries, fetchFormat); err != nil {
		return err
	}
	log.Info("fetch entries complete",
		zap.Int("entries", len(entries)),
		zap.String("output", fetchEntriesOutput))
	return nil
}

func runFetchActivities(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log, client, err := fetchSetup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()
	now := time.Now()

	from, to, err := parseRange(fetchFrom, fetchTo, now)
	if err != nil {
		return err
	}
	days := dates.Range(from, to)

	picker, err := client.PeoplePicker(ctx)
	if err != nil {
		return err
	}
	dir := enrich.NewDirectory(picker, log)

	userIDs, err := parseUserIDs(fetchUserIDs)
	if err != nil {
		return err
	}
	if len(userIDs) == 0 {
		userIDs = dir.NumericUserIDs()
		log.Info("fetching activities for all users", zap.Int("users", len(userIDs)))
	}

	acts, err := client.ComputerActivities(ctx, timecamp.ActivitiesQuery{
		Dates:   days,
		Include: fetchInclude,
		UserIDs: userIDs,
	})
	if err != nil {
		return err
	}

	enrich.NewEnricher(dir, log).EnrichActivities(acts)

	if fetchNoAppEnrich {
		log.Info("skipping application enrichment")
		enrich.ClearActivityApplications(acts)
	} else {
		cache, err := timecamp.LoadAppCache(fetchAppCache, log)
		if err != nil {
			return err
		}
		apps, err := client.ApplicationsWithCache(ctx, cache, enrich.CollectApplicationIDs(acts), dates.Format(to))
		if err != nil {
			return err
		}
		enrich.EnrichActivityApplications(acts, apps, log)
	}

	rows := enrich.FinalFormat(acts, log)
	if err := jsonl.Write(fetchActivitiesOutput, rows, fetchFormat); err != nil {
		return err
	}
	log.Info("fetch activities complete",
		zap.Int("rows", len(rows)),
		zap.String("output", fetchActivitiesOutput))
	return nil
}

func runFetchUsers(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	log, client, err := fetchSetup(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	users, err := client.Users(ctx)
	if err != nil {
		return err
	}
	if err := jsonl.Write(fetchUsersOutput, users, fetchFormat); err != nil {
		return err
	}
	log.Info("fetch users complete",
		zap.Int("users", len(users)),
		zap.String("output", fetchUsersOutput))
	return nil
}

// parseRange resolves the --from and --to values against now.
func parseRange(fromValue, toValue string, now time.Time) (time.Time, time.Time, error) {
	from, err := dates.Parse(fromValue, now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse --from: %w", err)
	}
	to, err := dates.Parse(toValue, now)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("parse --to: %w", err)
	}
	return from, to, nil
}

// parseUserIDs splits a comma-separated numeric id list.
func parseUserIDs(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var ids []string
	for _, part := range strings.Split(s, ",") {
		p := strings.TrimSpace(part)
		if p == "" {
			continue
		}
		if _, err := strconv.Atoi(p); err != nil {
			return nil, fmt.Errorf("invalid user id %q", p)
		}
		ids = append(ids, p)
	}
	return ids, nil
}
