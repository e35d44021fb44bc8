package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mgpai22/autosub/internal/store"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List recent subtitle jobs",
	Args:  cobra.NoArgs,
	RunE:  runJobs,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show [job_id]",
	Short: "Print the subtitles of a finished job",
	Long: `Print the stored subtitle document of a job, or write it to a file.

Examples:
  autosub jobs show 3f2c9a1e-...
  autosub jobs show 3f2c9a1e-... -o subtitles.srt`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsShow,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsShowCmd)

	jobsCmd.Flags().IntP("limit", "n", 20, "Maximum number of jobs to list (0 for all)")
	jobsShowCmd.Flags().StringP("output", "o", "", "Write the subtitles to this file instead of stdout")
}

func runJobs(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	jobs, err := st.List(ctx, limit)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs recorded yet.")
		return nil
	}

	headers, rows, aligns := jobTable(jobs, time.Now())
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(headers, rows, aligns))
	return nil
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	output, _ := cmd.Flags().GetString("output")

	ctx := context.Background()
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	record, err := st.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if record.Status != store.StatusSucceeded {
		if record.Error != "" {
			return fmt.Errorf("job %s %s: %s", record.ID, record.Status, record.Error)
		}
		return fmt.Errorf("job %s is %s", record.ID, record.Status)
	}

	if output == "" {
		_, err := fmt.Fprint(cmd.OutOrStdout(), record.Subtitles)
		return err
	}
	if err := os.WriteFile(output, []byte(record.Subtitles), 0644); err != nil {
		return fmt.Errorf("failed to write subtitles: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Subtitles written: %s\n", output)
	return nil
}

func jobTable(jobs []*store.Job, now time.Time) ([]string, [][]string, []columnAlignment) {
	headers := []string{"ID", "File", "Engine", "Status", "Entries", "Length", "Took", "Created"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft}

	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		length, took := "-", "-"
		if d := j.Duration(); d > 0 {
			length = d.Round(time.Second).String()
		}
		if d := j.Elapsed(); d > 0 {
			took = d.Round(time.Second).String()
		}
		rows = append(rows, []string{
			j.ID,
			j.Filename,
			j.Engine + "/" + j.Model,
			string(j.Status),
			strconv.Itoa(j.Entries),
			length,
			took,
			humanize.RelTime(j.CreatedAt, now, "ago", "from now"),
		})
	}
	return headers, rows, aligns
}
