package session

import (
	"fmt"
	"io"
	"text/tabwriter"

	"eyedrive/internal/classifier"
	"eyedrive/internal/spectral"
)

// WriteRatioReport prints one line per channel: ratio, conclusion and the
// band powers behind it.
func WriteRatioReport(w io.Writer, results []spectral.Result) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tRATIO\tCONCLUSION\tTASK POWER\tTOTAL POWER")
	for i, r := range results {
		fmt.Fprintf(tw, "%d\t%.4f\t%s\t%.4g\t%.4g\n", i+1, r.Ratio, r.Conclusion, r.TaskPower, r.TotalPower)
	}
	return tw.Flush()
}

// WriteVoteReport prints the channels that voted and the resulting decision.
func WriteVoteReport(w io.Writer, p classifier.Policy, out classifier.Outcome) error {
	if _, err := fmt.Fprintf(w, "Policy %s (threshold %.2f): ", p.Kind, p.Threshold); err != nil {
		return err
	}
	for i, ch := range out.Selected {
		fmt.Fprintf(w, "ch%d=%.3f(%s) ", ch+1, out.Ratios[i], classifier.Decision(out.Votes[i]))
	}
	_, err := fmt.Fprintf(w, "=> %s [%s]\n", out.Decision, out.Decision.Bit())
	return err
}
