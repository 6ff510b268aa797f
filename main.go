// eyedrive - steer a small car with eye state read from an EEG headset.
// Two consecutive classifications (eyes open or closed) form a 2-bit code
// that is sent to the car as a single command byte.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eyedrive/internal/actuator"
	"eyedrive/internal/config"
	"eyedrive/internal/session"
	"eyedrive/internal/stream"
	"eyedrive/internal/version"
)

// Run modes
const (
	modeDuty    = "duty"
	modeRolling = "rolling"
)

// Command line flag variables
var (
	cfgFile     string // Configuration file path
	mode        string // duty or rolling
	verbose     bool   // Debug logging
	showVersion bool   // Print version and exit
	showVotes   bool   // Print per-channel reports every decision
)

var v = config.NewViper()

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "eyedrive",
	Short: "Drive an actuator from eyes open / eyes closed EEG classification",
	Long: `eyedrive reads a multi-channel EEG stream, measures alpha band power per
channel and votes "eyes open" or "eyes closed".

In duty cycle mode two trials, separated by a short countdown, form a code:
  00 stop    01 turn left    10 turn right    11 forward
The command is held and followed by a stop.

In rolling mode the newest window is classified once per hop and reported
without driving anything.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Info("eyedrive"))
			return
		}
		if err := runEyedrive(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

// init initializes the CLI flags and binds them to configuration keys
func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./eyedrive.yaml", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")

	rootCmd.Flags().StringVarP(&mode, "mode", "m", modeDuty, "run mode: duty or rolling")
	rootCmd.Flags().BoolVar(&showVotes, "votes", false, "print channel ratios and votes for every decision")

	// Stream selection
	rootCmd.Flags().StringP("stream", "s", "", "stream name (falls back to the first stream of the type)")
	rootCmd.Flags().String("type", "EEG", "stream content type")
	rootCmd.Flags().Int("channels", 14, "channels used per epoch")
	rootCmd.Flags().Float64("sample-rate", 0, "override the advertised sample rate (Hz)")

	// Timing and voting
	rootCmd.Flags().Duration("trial", 0, "trial duration (duty mode)")
	rootCmd.Flags().Duration("window", 0, "window length (rolling mode)")
	rootCmd.Flags().Int("cycles", 0, "duty cycles to run, 0 = until interrupted")
	rootCmd.Flags().String("policy", "", "voting policy: or, majority, weighted, topk")
	rootCmd.Flags().Float64("threshold", 0, "per-channel vote threshold")

	// Actuator and recording
	rootCmd.Flags().String("actuator", "", "actuator mode: serial or dry-run")
	rootCmd.Flags().StringP("port", "p", "", "actuator serial port")
	rootCmd.Flags().StringP("record", "r", "", "record the raw stream to this file")

	bindings := map[string]string{
		"stream.name":                "stream",
		"stream.type":                "type",
		"stream.channels":            "channels",
		"stream.sample_rate":         "sample-rate",
		"acquisition.trial_duration": "trial",
		"acquisition.window":         "window",
		"acquisition.cycles":         "cycles",
		"classifier.policy":          "policy",
		"classifier.threshold":       "threshold",
		"actuator.mode":              "actuator",
		"actuator.port":              "port",
		"recording.path":             "record",
	}
	for key, flag := range bindings {
		bindFlag(rootCmd, key, flag)
	}
}

// bindFlag binds a flag to a key, but only once the user sets it, so flag
// defaults never mask values from the config file
func bindFlag(cmd *cobra.Command, key, flag string) {
	cobra.OnInitialize(func() {
		if f := cmd.Flags().Lookup(flag); f != nil && f.Changed {
			v.BindPFlag(key, f)
		}
	})
}

// runEyedrive is the main application logic
func runEyedrive(cmd *cobra.Command) error {
	if err := config.ReadFile(v, cfgFile, cmd.Flags().Changed("config")); err != nil {
		return err
	}
	if verbose && v.ConfigFileUsed() != "" {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}

	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	if mode != modeDuty && mode != modeRolling {
		return fmt.Errorf("invalid mode: %s (must be '%s' or '%s')", mode, modeDuty, modeRolling)
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

	// Set up signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Printf("\nReceived interrupt signal, shutting down...\n")
		cancel()
	}()

	fmt.Printf("eyedrive %s starting...\n", version.Short())
	fmt.Printf("Looking for a %s stream...\n", cfg.Stream.Type)

	sess, err := session.Connect(ctx, registry, cfg, session.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer sess.Close()

	desc := sess.Descriptor()
	fmt.Printf("Stream: %s\n", desc)
	fmt.Printf("Session: %s\n", sess.ID)
	fmt.Printf("Policy: %s (threshold %.2f)\n", cfg.Classifier.Kind, cfg.Classifier.Threshold)
	if cfg.Recording.Path != "" {
		fmt.Printf("Recording: %s\n", cfg.Recording.Path)
	}

	if mode == modeRolling {
		err = runRolling(ctx, sess, cfg)
	} else {
		err = runDutyCycles(ctx, sess, cfg)
	}
	if errors.Is(err, context.Canceled) {
		fmt.Printf("Stopped.\n")
		return nil
	}
	return err
}

func runDutyCycles(ctx context.Context, sess *session.Session, cfg *config.Config) error {
	transport, err := actuator.Open(cfg.Actuator, nil)
	if err != nil {
		return err
	}
	defer transport.Close()

	if err := sess.AttachActuator(transport); err != nil {
		return err
	}

	fmt.Printf("Actuator: %s", cfg.Actuator.Mode)
	if cfg.Actuator.Mode == actuator.ModeSerial {
		fmt.Printf(" (%s @ %d baud)", cfg.Actuator.Port, cfg.Actuator.BaudRate)
	}
	fmt.Printf("\nTrial: %v, phase gap: %v, cooldown: %v\n\n",
		cfg.Acquisition.TrialDuration, cfg.Acquisition.PhaseGap, cfg.Acquisition.Cooldown)

	return sess.RunDutyCycles(ctx, cfg.Acquisition.Cycles, func(r *session.CycleResult) {
		if showVotes {
			fmt.Printf("Phase 1:\n")
			session.WriteRatioReport(os.Stdout, r.First.Results)
			session.WriteVoteReport(os.Stdout, cfg.Classifier, r.First.Outcome)
			fmt.Printf("Phase 2:\n")
			session.WriteRatioReport(os.Stdout, r.Second.Results)
			session.WriteVoteReport(os.Stdout, cfg.Classifier, r.Second.Outcome)
		}
		fmt.Printf("Cycle %d: %s then %s => code %s, command %s\n",
			r.Seq, r.First.Decision(), r.Second.Decision(), r.Code, r.Action)
	})
}

func runRolling(ctx context.Context, sess *session.Session, cfg *config.Config) error {
	fmt.Printf("Window: %v, hop: %v\n\n", cfg.Acquisition.Window, cfg.Acquisition.Hop)

	return sess.RunRolling(ctx, func(r *session.TrialResult) {
		if showVotes {
			session.WriteRatioReport(os.Stdout, r.Results)
		}
		session.WriteVoteReport(os.Stdout, cfg.Classifier, r.Outcome)
	})
}

// main is the entry point of the application
func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
