// eyedrive-monitor - watch the power of one frequency band on one channel
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"eyedrive/internal/acquire"
	"eyedrive/internal/config"
	"eyedrive/internal/fault"
	"eyedrive/internal/filter"
	"eyedrive/internal/spectral"
	"eyedrive/internal/stream"
	"eyedrive/internal/version"
)

var (
	cfgFile     string
	streamName  string
	channel     int
	lowCut      float64
	highCut     float64
	order       int
	window      time.Duration
	hop         time.Duration
	verbose     bool
	showVersion bool
)

var rootCmd = &cobra.Command{
	Use:   "eyedrive-monitor",
	Short: "Rolling band power monitor for a single channel",
	Long: `eyedrive-monitor keeps the most recent window of one channel, band-passes it
to the monitored band and prints the mean power spectral density inside that
band once per hop.

The default watches delta (2-4 Hz) on the first channel over 2.5 s windows.
A band the filter cannot realise at the stream's sample rate is reported on
every cycle and monitoring continues.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Info("eyedrive-monitor"))
			return
		}
		if err := runMonitor(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "./eyedrive.yaml", "config file")
	rootCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().StringVarP(&streamName, "stream", "s", "", "stream name (default: configured stream)")
	rootCmd.Flags().IntVar(&channel, "channel", 0, "channel index to monitor (0-based)")
	rootCmd.Flags().Float64Var(&lowCut, "low", 2, "band lower edge (Hz)")
	rootCmd.Flags().Float64Var(&highCut, "high", 4, "band upper edge (Hz)")
	rootCmd.Flags().IntVar(&order, "order", filter.DefaultOrder, "band-pass order")
	rootCmd.Flags().DurationVarP(&window, "window", "w", 2500*time.Millisecond, "window length")
	rootCmd.Flags().DurationVar(&hop, "hop", time.Second, "new data between reports")
}

func runMonitor(cmd *cobra.Command) error {
	v := config.NewViper()
	if err := config.ReadFile(v, cfgFile, cmd.Flags().Changed("config")); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if channel < 0 {
		return fault.Configf("invalid channel %d", channel)
	}

	logger, logCloser, err := config.NewLogger(cfg.Logging, verbose)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	registry, err := stream.NewRegistry(cfg.Stream.Sources)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	descs, err := registry.Resolve(ctx, cfg.Stream.Type)
	if err != nil {
		return err
	}
	name := streamName
	if name == "" {
		name = cfg.Stream.Name
	}
	desc, ok := stream.Select(descs, name)
	if !ok {
		return fmt.Errorf("no %s stream found", cfg.Stream.Type)
	}

	in, err := registry.Connect(ctx, desc)
	if err != nil {
		return err
	}
	defer in.Close()

	fs := desc.SampleRate
	if cfg.Stream.SampleRate > 0 {
		fs = cfg.Stream.SampleRate
	}
	m, err := acquire.NewMonitor(in, acquire.MonitorConfig{
		Window:      window,
		Hop:         acquire.SampleCount(fs, hop),
		PullTimeout: cfg.Acquisition.PullTimeout,
		Channels:    channel + 1,
		SampleRate:  fs,
	}, logger)
	if err != nil {
		return err
	}

	band := spectral.Band{Low: lowCut, High: highCut}
	params := filter.Params{Order: order, LowCut: lowCut, HighCut: highCut}

	fmt.Printf("Monitoring %s channel %d, band %g-%g Hz, window %v\n", desc.Name, channel, lowCut, highCut, window)
	fmt.Printf("Press Ctrl+C to stop.\n\n")

	err = m.Run(ctx, func(ctx context.Context, e *acquire.Epoch) error {
		filtered, err := filter.Condition(e.Data[channel:channel+1], e.SampleRate, params)
		if err != nil {
			return fault.InStage(fault.StageFilter, err)
		}
		power := spectral.BandPower(filtered[0], e.SampleRate, band, cfg.Spectral.Nperseg)
		fmt.Printf("%s  cycle %4d  band power %.6g\n", time.Now().Format("15:04:05.000"), m.Cycles(), power)
		return nil
	})
	if errors.Is(err, context.Canceled) {
		fmt.Printf("\nStopped after %d cycles (%d timeouts).\n", m.Cycles(), m.Timeouts())
		return nil
	}
	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
