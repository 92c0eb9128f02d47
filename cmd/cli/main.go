package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/COS301-SE-2025/devx360-metrics/internal/config"
	"github.com/COS301-SE-2025/devx360-metrics/internal/domain"
	"github.com/COS301-SE-2025/devx360-metrics/pkg/client"
)

var (
	outputJSON   bool
	refreshAll   bool
	waitInsight  bool
	waitTimeout  time.Duration
	pollInterval time.Duration
	fleetWindow  string
	teamMembers  []string
)

var rootCmd = &cobra.Command{
	Use:   "devx360",
	Short: "DORA metrics pipeline tool",
	Long: `A CLI tool for managing teams and inspecting DORA metrics.

Teams are linked to a GitHub repository; the pipeline fetches activity,
derives deployment frequency, lead time, change failure rate and MTTR,
and generates narrative feedback for each team.`,
}

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage teams",
}

var teamCreateCmd = &cobra.Command{
	Use:   "create [name] [repo-url]",
	Short: "Register a team with its repository",
	Args:  cobra.ExactArgs(2),
	RunE:  runTeamCreate,
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered teams",
	Args:  cobra.NoArgs,
	RunE:  runTeamList,
}

var teamShowCmd = &cobra.Command{
	Use:   "show [team-id]",
	Short: "Show a team's current DORA metrics",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamShow,
}

var teamDeleteCmd = &cobra.Command{
	Use:   "delete [team-id]",
	Short: "Delete a team and its derived data",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamDelete,
}

var refreshCmd = &cobra.Command{
	Use:   "refresh [team-id]",
	Short: "Request a metrics refresh",
	Long:  `Request a background metrics refresh for one team, or for every team with --all.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRefresh,
}

var insightCmd = &cobra.Command{
	Use:   "insight [team-id]",
	Short: "Show a team's AI-generated feedback",
	Args:  cobra.ExactArgs(1),
	RunE:  runInsight,
}

var fleetCmd = &cobra.Command{
	Use:   "fleet",
	Short: "Show fleet-wide aggregates",
	Args:  cobra.NoArgs,
	RunE:  runFleet,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	teamCreateCmd.Flags().StringSliceVar(&teamMembers, "members", nil, "team member usernames")
	refreshCmd.Flags().BoolVar(&refreshAll, "all", false, "refresh every registered team")
	insightCmd.Flags().BoolVar(&waitInsight, "wait", false, "poll until the analysis finishes")
	insightCmd.Flags().DurationVar(&waitTimeout, "timeout", 5*time.Minute, "maximum time to wait with --wait")
	insightCmd.Flags().DurationVar(&pollInterval, "interval", 30*time.Second, "poll interval with --wait")
	fleetCmd.Flags().StringVar(&fleetWindow, "window", "30d", "analysis window (7d, 30d, 90d)")

	rootCmd.AddCommand(teamCmd)
	teamCmd.AddCommand(teamCreateCmd)
	teamCmd.AddCommand(teamListCmd)
	teamCmd.AddCommand(teamShowCmd)
	teamCmd.AddCommand(teamDeleteCmd)
	rootCmd.AddCommand(refreshCmd)
	rootCmd.AddCommand(insightCmd)
	rootCmd.AddCommand(fleetCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func apiClient() (*client.Client, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return client.NewClient(cfg.APIEndpoint), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runTeamCreate(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	team, err := c.CreateTeam(context.Background(), args[0], args[1], teamMembers)
	if err != nil {
		return fmt.Errorf("failed to create team: %w", err)
	}

	if outputJSON {
		return printJSON(team)
	}
	fmt.Printf("Created team %s (%s) linked to %s\n", team.Name, team.ID, team.RepoFullName)
	return nil
}

func runTeamList(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	teams, err := c.ListTeams(context.Background())
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}

	if outputJSON {
		return printJSON(teams)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Name", "Repository", "Members"})
	for _, t := range teams {
		table.Append([]string{t.ID, t.Name, t.RepoFullName, fmt.Sprintf("%d", len(t.Members))})
	}
	table.Render()
	return nil
}

func runTeamShow(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	detail, err := c.GetTeam(context.Background(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get team: %w", err)
	}

	if outputJSON {
		return printJSON(detail)
	}

	fmt.Printf("\nTeam: %s (%s)\n", detail.Team.Name, detail.Team.ID)
	fmt.Printf("Repository: %s\n", detail.Team.RepoFullName)
	if detail.Snapshot != nil {
		fmt.Printf("Stars: %d  Forks: %d  Open PRs: %d\n", detail.Snapshot.Stars, detail.Snapshot.Forks, detail.Snapshot.OpenPRs)
		if detail.Snapshot.Complexity != nil {
			fmt.Printf("Complexity score: %d\n", detail.Snapshot.Complexity.Complexity)
		}
	}
	if len(detail.Metrics) == 0 {
		fmt.Println("\nNo metrics yet. Run 'devx360 refresh' first.")
		return nil
	}
	fmt.Println()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Window", "Deploys", "Freq/Day", "Lead Time (avg d)", "CFR", "MTTR (avg d)", "Tier"})
	for _, window := range []string{"7d", "30d", "90d"} {
		rec, ok := detail.Metrics[window]
		if !ok {
			continue
		}
		lead := "-"
		if rec.LeadTime != nil {
			lead = fmt.Sprintf("%.2f", rec.LeadTime.AverageDays)
		}
		mttr := "-"
		if rec.MTTR.AverageDays != nil {
			mttr = fmt.Sprintf("%.2f", *rec.MTTR.AverageDays)
		}
		table.Append([]string{
			rec.Window,
			fmt.Sprintf("%d", rec.DeploymentFrequency.TotalDeployments),
			fmt.Sprintf("%.2f", rec.DeploymentFrequency.FrequencyPerDay),
			lead,
			fmt.Sprintf("%.2f", rec.ChangeFailureRate.FailureRate),
			mttr,
			string(rec.PerformanceTier),
		})
	}
	table.Render()
	return nil
}

func runTeamDelete(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	if err := c.DeleteTeam(context.Background(), args[0]); err != nil {
		return fmt.Errorf("failed to delete team: %w", err)
	}
	fmt.Printf("Deleted team %s\n", args[0])
	return nil
}

func runRefresh(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}
	ctx := context.Background()

	if !refreshAll {
		if len(args) != 1 {
			return fmt.Errorf("team-id is required unless --all is set")
		}
		if err := c.RefreshTeamStats(ctx, args[0]); err != nil {
			return fmt.Errorf("failed to request refresh: %w", err)
		}
		fmt.Printf("Refresh accepted for team %s\n", args[0])
		return nil
	}

	teams, err := c.ListTeams(ctx)
	if err != nil {
		return fmt.Errorf("failed to list teams: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Team", "Result"})
	for _, t := range teams {
		result := "accepted"
		if err := c.RefreshTeamStats(ctx, t.ID); err != nil {
			result = err.Error()
		}
		table.Append([]string{t.ID, result})
	}
	table.Render()
	return nil
}

func runInsight(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}
	teamID := args[0]

	var job *domain.InsightJob
	if waitInsight {
		ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
		defer cancel()
		job, err = c.WaitForInsight(ctx, teamID, pollInterval)
	} else {
		job, err = c.GetAIReview(context.Background(), teamID)
	}
	if err != nil {
		return fmt.Errorf("failed to get insight: %w", err)
	}

	if outputJSON {
		return printJSON(job)
	}

	switch job.Status {
	case domain.InsightNotStarted:
		fmt.Println("No analysis yet. Refresh the team's metrics first.")
	case domain.InsightPending:
		fmt.Printf("Analysis in progress (%d%%). Re-run with --wait to block until done.\n", job.Progress)
	case domain.InsightError:
		fmt.Printf("Analysis failed: %s\n", job.Error)
	case domain.InsightCompleted:
		fmt.Println(job.Feedback)
	}
	return nil
}

func runFleet(cmd *cobra.Command, args []string) error {
	c, err := apiClient()
	if err != nil {
		return err
	}

	fleet, err := c.GetFleetMetrics(context.Background(), fleetWindow)
	if err != nil {
		return fmt.Errorf("failed to get fleet metrics: %w", err)
	}

	if outputJSON {
		return printJSON(fleet)
	}

	fmt.Printf("\nFleet Metrics (%s window)\n\n", fleet.Window)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Metric", "Value"})
	table.Append([]string{"Total Teams", fmt.Sprintf("%d", fleet.TotalTeams)})
	table.Append([]string{"Teams With Metrics", fmt.Sprintf("%d", fleet.TeamsWithMetrics)})
	table.Append([]string{"Total Deployments", fmt.Sprintf("%d", fleet.TotalDeployments)})
	table.Append([]string{"Avg Deployment Frequency", fmt.Sprintf("%.2f/day", fleet.AvgDeploymentFrequency)})
	table.Append([]string{"Avg Lead Time", fmt.Sprintf("%.2f days", fleet.AvgLeadTimeDays)})
	table.Append([]string{"Avg Failure Rate", fmt.Sprintf("%.2f", fleet.AvgFailureRate)})
	table.Append([]string{"Avg MTTR", fmt.Sprintf("%.2f days", fleet.AvgMTTRDays)})
	table.Render()

	if len(fleet.TierDistribution) > 0 {
		fmt.Println()
		tiers := tablewriter.NewWriter(os.Stdout)
		tiers.SetHeader([]string{"Tier", "Teams"})
		for _, tier := range []domain.PerformanceTier{domain.TierElite, domain.TierHigh, domain.TierMedium, domain.TierLow} {
			if n, ok := fleet.TierDistribution[tier]; ok {
				tiers.Append([]string{string(tier), fmt.Sprintf("%d", n)})
			}
		}
		tiers.Render()
	}
	return nil
}
