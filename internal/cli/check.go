package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mgpai22/autosub/internal/subtitle"
)

var checkCmd = &cobra.Command{
	Use:   "check [subtitle_file]",
	Short: "Validate an SRT file",
	Long: `Parse an SRT file and report structural problems: out of sequence
indices, entries that end before they start, empty text and entries that
start before the previous one.

Exits non-zero when any issue is found.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	doc, err := subtitle.ParseSRTFile(args[0])
	if err != nil {
		return err
	}

	issues := subtitle.Check(doc)
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s: %d entries, %s\n", args[0], len(doc.Entries), doc.Duration())
	for _, issue := range issues {
		fmt.Fprintf(out, "  %s\n", issue)
	}

	if len(issues) > 0 {
		return fmt.Errorf("%d issue(s) found", len(issues))
	}
	fmt.Fprintln(out, "  ok")
	return nil
}
