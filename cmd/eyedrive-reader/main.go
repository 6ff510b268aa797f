// eyedrive-reader - display and analyse eyedrive stream recordings
// This program reads the header and samples of .eyerec files written with
// eyedrive --record, and can run the classification pipeline over them offline.
package main

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"eyedrive/internal/acquire"
	"eyedrive/internal/config"
	"eyedrive/internal/recording"
	"eyedrive/internal/session"
	"eyedrive/internal/version"
)

var (
	showSamples  bool
	showStats    bool
	showGraph    bool
	analyze      bool
	outputFormat string
	graphChannel int
	graphWidth   int
	graphHeight  int
	cfgFile      string
	showVersion  bool
)

var rootCmd = &cobra.Command{
	Use:   "eyedrive-reader [file.eyerec]",
	Short: "Display contents of eyedrive recordings",
	Long: `eyedrive-reader displays the header and sample data of eyedrive recordings.
Useful for checking a session offline and tuning the classifier against it.

Display modes:
  --samples    Show every sample, one row per sample
  --stats      Show per-channel statistics
  --graph      Generate an ASCII graph of one channel over time
  --analyze    Classify consecutive trial-length epochs with the configured
               filter, band ratio and voting policy`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Info("eyedrive-reader"))
			return
		}

		if len(args) == 0 {
			fmt.Fprintf(os.Stderr, "Error: filename required\n")
			cmd.Usage()
			os.Exit(1)
		}

		if err := displayFile(args[0], cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().BoolVarP(&showSamples, "samples", "s", false, "display all samples")
	rootCmd.Flags().BoolVar(&showStats, "stats", false, "show per-channel statistics")
	rootCmd.Flags().StringVarP(&outputFormat, "format", "f", "table", "sample output format (table, csv)")
	rootCmd.Flags().BoolVarP(&showGraph, "graph", "g", false, "generate ASCII graph of one channel")
	rootCmd.Flags().IntVar(&graphChannel, "channel", 0, "channel to graph (0-based)")
	rootCmd.Flags().IntVar(&graphWidth, "graph-width", 80, "width of the ASCII graph in characters")
	rootCmd.Flags().IntVar(&graphHeight, "graph-height", 20, "height of the ASCII graph in lines")
	rootCmd.Flags().BoolVarP(&analyze, "analyze", "a", false, "classify the recording epoch by epoch")
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "./eyedrive.yaml", "config file used by --analyze")
}

// displayFile reads and displays the contents of a recording
func displayFile(filename string, cmd *cobra.Command) error {
	fileInfo, err := os.Stat(filename)
	if err != nil {
		return fmt.Errorf("cannot read %s: %w", filename, err)
	}

	r, err := recording.Open(filename)
	if err != nil {
		return err
	}
	defer r.Close()
	h := r.Header()

	fmt.Printf("EYEDRIVE RECORDING READER %s\n\n", version.Short())

	fmt.Printf("File Information:\n")
	fmt.Printf("Name: %s\n", filepath.Base(filename))
	fmt.Printf("Size: %.2f MB (%d bytes)\n", float64(fileInfo.Size())/(1024*1024), fileInfo.Size())
	fmt.Printf("Modified: %s\n\n", fileInfo.ModTime().Format("2006-01-02 15:04:05"))

	displayHeader(h)

	data, err := r.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to read samples: %w", err)
	}
	n := 0
	if len(data) > 0 {
		n = len(data[0])
	}
	displaySampleInfo(n, h)

	if showSamples {
		displaySamples(data, h.SampleRate)
	}
	if showStats {
		displayStatistics(data)
	}
	if showGraph {
		if graphChannel < 0 || graphChannel >= len(data) {
			return fmt.Errorf("channel %d out of range (recording has %d)", graphChannel, len(data))
		}
		displayGraph(data[graphChannel], h.SampleRate)
	}
	if analyze {
		return analyzeRecording(cmd, data, h)
	}
	return nil
}

func displayHeader(h recording.Header) {
	fmt.Printf("Recording Header:\n")
	fmt.Printf("Format Version: %d\n", h.Version)
	fmt.Printf("Stream: %s\n", h.Name)
	fmt.Printf("Source ID: %s\n", h.SourceID)
	fmt.Printf("Session ID: %s\n", h.SessionID)
	fmt.Printf("Sample Rate: %g Hz\n", h.SampleRate)
	fmt.Printf("Channels: %d\n", h.Channels)
	fmt.Printf("Started: %s\n\n", h.Started.Local().Format("2006-01-02 15:04:05.000"))
}

func displaySampleInfo(n int, h recording.Header) {
	duration := time.Duration(float64(n) / h.SampleRate * float64(time.Second))
	fmt.Printf("Sample Information:\n")
	fmt.Printf("Total Samples: %d per channel\n", n)
	fmt.Printf("Sample Type: float32 x %d channels\n", h.Channels)
	fmt.Printf("Data Size: %.2f MB\n", float64(n*h.Channels*4)/(1024*1024))
	fmt.Printf("Duration: %v\n\n", duration.Round(time.Millisecond))
}

// displaySamples prints one row per sample, batching output
func displaySamples(data [][]float64, fs float64) {
	if len(data) == 0 {
		return
	}
	sep := " "
	if outputFormat == "csv" {
		sep = ","
	}

	header := []string{"index", "time_s"}
	for ch := range data {
		header = append(header, fmt.Sprintf("ch%d", ch+1))
	}
	fmt.Println(strings.Join(header, sep))

	const batchSize = 1000
	var batch strings.Builder
	row := make([]string, len(data)+2)
	for i := range data[0] {
		row[0] = fmt.Sprintf("%d", i)
		row[1] = fmt.Sprintf("%.4f", float64(i)/fs)
		for ch := range data {
			row[ch+2] = fmt.Sprintf("%.4f", data[ch][i])
		}
		batch.WriteString(strings.Join(row, sep))
		batch.WriteByte('\n')
		if (i+1)%batchSize == 0 {
			fmt.Print(batch.String())
			batch.Reset()
		}
	}
	fmt.Print(batch.String())
	fmt.Println()
}

// channelStats summarises one channel
type channelStats struct {
	mean, std, min, max, rms float64
}

func computeStats(x []float64) channelStats {
	if len(x) == 0 {
		return channelStats{}
	}
	s := channelStats{min: math.Inf(1), max: math.Inf(-1)}
	var sum, sumSq float64
	for _, v := range x {
		sum += v
		sumSq += v * v
		s.min = math.Min(s.min, v)
		s.max = math.Max(s.max, v)
	}
	n := float64(len(x))
	s.mean = sum / n
	s.rms = math.Sqrt(sumSq / n)
	var varSum float64
	for _, v := range x {
		varSum += (v - s.mean) * (v - s.mean)
	}
	s.std = math.Sqrt(varSum / n)
	return s
}

func displayStatistics(data [][]float64) {
	fmt.Printf("Statistical Analysis:\n")
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "CHANNEL\tMEAN\tSTD\tMIN\tMAX\tRMS\t")
	for ch, x := range data {
		s := computeStats(x)
		fmt.Fprintf(tw, "%d\t%.4f\t%.4f\t%.4f\t%.4f\t%.4f\t\n", ch+1, s.mean, s.std, s.min, s.max, s.rms)
	}
	tw.Flush()
	fmt.Println()
}

// displayGraph draws x over time, decimated to the graph width
func displayGraph(x []float64, fs float64) {
	if len(x) < 2 {
		fmt.Printf("Graph: not enough samples to display\n\n")
		return
	}
	s := computeStats(x)
	lo, hi := s.min, s.max
	if hi == lo {
		hi = lo + 1e-6
	}

	graph := make([][]rune, graphHeight)
	for i := range graph {
		graph[i] = []rune(strings.Repeat(" ", graphWidth))
	}
	for i, v := range x {
		col := i * (graphWidth - 1) / (len(x) - 1)
		row := int(float64(graphHeight-1) * (1 - (v-lo)/(hi-lo)))
		if row < 0 {
			row = 0
		}
		if row >= graphHeight {
			row = graphHeight - 1
		}
		if graph[row][col] == ' ' {
			graph[row][col] = '*'
		} else {
			graph[row][col] = '#'
		}
	}

	total := float64(len(x)) / fs
	fmt.Printf("Channel %d Over Time:\n", graphChannel+1)
	fmt.Printf("Samples: %d | Duration: %.3f s | Range: %.4f to %.4f\n\n", len(x), total, lo, hi)
	for i, r := range graph {
		level := hi - float64(i)/float64(graphHeight-1)*(hi-lo)
		fmt.Printf("%10.3f |%s|\n", level, string(r))
	}
	fmt.Printf("           +%s+\n", strings.Repeat("-", graphWidth))
	endLabel := fmt.Sprintf("%.2fs", total)
	fmt.Printf("           0%s%s\n\n", strings.Repeat(" ", max(graphWidth-len(endLabel), 1)), endLabel)
}

// analyzeRecording classifies consecutive trial-length epochs and prints the
// code every pair of epochs would have produced
func analyzeRecording(cmd *cobra.Command, data [][]float64, h recording.Header) error {
	v := config.NewViper()
	if err := config.ReadFile(v, cfgFile, cmd.Flags().Changed("config")); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	channels := cfg.Stream.Channels
	if channels > len(data) {
		return fmt.Errorf("recording has %d channels, %d configured", len(data), channels)
	}

	per := acquire.SampleCount(h.SampleRate, cfg.Acquisition.TrialDuration)
	if per <= 0 || len(data) == 0 {
		return fmt.Errorf("recording too short for %v trials", cfg.Acquisition.TrialDuration)
	}
	epochs := len(data[0]) / per
	fmt.Printf("Offline Analysis: %d epochs of %v, policy %s\n\n", epochs, cfg.Acquisition.TrialDuration, cfg.Classifier.Kind)

	var bits []string
	for k := 0; k < epochs; k++ {
		e := &acquire.Epoch{Data: make([][]float64, channels), SampleRate: h.SampleRate}
		for ch := range e.Data {
			e.Data[ch] = data[ch][k*per : (k+1)*per]
		}
		res, err := session.Classify(cfg, e)
		if err != nil {
			fmt.Printf("Epoch %d: %v\n", k+1, err)
			bits = append(bits, "?")
			continue
		}
		fmt.Printf("Epoch %d (%.1fs - %.1fs):\n", k+1, float64(k*per)/h.SampleRate, float64((k+1)*per)/h.SampleRate)
		session.WriteRatioReport(os.Stdout, res.Results)
		session.WriteVoteReport(os.Stdout, cfg.Classifier, res.Outcome)
		fmt.Println()
		bits = append(bits, res.Decision().Bit())
	}

	fmt.Printf("Codes:")
	for k := 0; k+1 < len(bits); k += 2 {
		fmt.Printf(" %s%s", bits[k], bits[k+1])
	}
	fmt.Println()
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
