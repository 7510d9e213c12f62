package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/esiweave/esiweave/internal/esi"
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Parse a document offline and report its directives",
	Long: `Parse a markup document without fetching anything, reporting the
include directives it contains and any directive-level errors
(duplicate attributes, missing src, unmatched closing tags).

Examples:
  esiweave check page.html
  esiweave check --namespace app page.html`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().String("namespace", "esi", "Tag namespace recognized as directives")
}

func runCheck(cmd *cobra.Command, args []string) error {
	namespace, _ := cmd.Flags().GetString("namespace")

	summary, err := checkDocument(args[0], namespace)
	out := cmd.OutOrStdout()
	if summary != nil {
		fmt.Fprintf(out, "markup tokens: %d\n", summary.MarkupTokens)
		fmt.Fprintf(out, "comments:      %d\n", summary.Comments)
		fmt.Fprintf(out, "includes:      %d\n", len(summary.Includes))
		for _, inc := range summary.Includes {
			fmt.Fprintf(out, "  src=%s", inc.Src)
			if inc.Alt != "" {
				fmt.Fprintf(out, " alt=%s", inc.Alt)
			}
			if inc.ContinueOnError {
				fmt.Fprint(out, " onerror=continue")
			}
			fmt.Fprintln(out)
		}
	}
	return err
}

// checkSummary tallies what the parser found in one document.
type checkSummary struct {
	MarkupTokens int
	Comments     int
	Includes     []esi.IncludeTag
}

// checkDocument runs the tag parser over a file without executing
// anything. On a parse error the summary still reflects everything seen
// before the failure.
func checkDocument(path, namespace string) (*checkSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	summary := &checkSummary{}
	err = esi.Parse(namespace, f, func(ev esi.Event) error {
		switch ev := ev.(type) {
		case esi.RawEvent:
			summary.MarkupTokens++
		case esi.DirectiveEvent:
			switch tag := ev.Tag.(type) {
			case esi.IncludeTag:
				summary.Includes = append(summary.Includes, tag)
			case esi.CommentTag:
				summary.Comments++
			}
		}
		return nil
	})
	return summary, err
}
