// eyedrive-streams - list the sample streams and serial ports eyedrive can use
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"eyedrive/internal/actuator"
	"eyedrive/internal/config"
	"eyedrive/internal/stream"
	"eyedrive/internal/version"
)

var (
	cfgFile     string        // Configuration file path
	typeFilter  string        // Only list streams of this type
	showPorts   bool          // Also list serial ports
	timeout     time.Duration // Resolve timeout
	showVersion bool          // Show version information
)

var rootCmd = &cobra.Command{
	Use:   "eyedrive-streams",
	Short: "List configured sample streams",
	Long: `eyedrive-streams resolves every configured source and prints its name,
content type, source id, channel count and nominal sample rate.

Replay sources report the format stored in their recording. With --ports the
serial ports visible to the system are listed as well, which helps finding
the headset bridge and the car's controller.`,
	Run: func(cmd *cobra.Command, args []string) {
		if showVersion {
			fmt.Println(version.Info("eyedrive-streams"))
			return
		}
		if err := listStreams(cmd); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "show version information")
	rootCmd.Flags().StringVarP(&cfgFile, "config", "c", "./eyedrive.yaml", "config file")
	rootCmd.Flags().StringVarP(&typeFilter, "type", "t", "", "only list streams of this type (e.g. EEG)")
	rootCmd.Flags().BoolVarP(&showPorts, "ports", "p", false, "also list serial ports")
	rootCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "resolve timeout")
}

func listStreams(cmd *cobra.Command) error {
	v := config.NewViper()
	if err := config.ReadFile(v, cfgFile, cmd.Flags().Changed("config")); err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	registry, err := stream.NewRegistry(cfg.Stream.Sources)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	descs, err := registry.Resolve(ctx, typeFilter)
	if err != nil {
		return err
	}

	if len(descs) == 0 {
		fmt.Printf("No streams found.\n")
	} else {
		fmt.Printf("%d stream(s):\n\n", len(descs))
		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tTYPE\tSOURCE ID\tKIND\tCHANNELS\tRATE (Hz)\tADDRESS")
		for _, d := range descs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%g\t%s\n",
				d.Name, d.Type, d.SourceID, d.Kind, d.ChannelCount, d.SampleRate, d.Address)
		}
		tw.Flush()
	}

	if showPorts {
		ports, err := actuator.Ports()
		if err != nil {
			return err
		}
		fmt.Printf("\nSerial ports:\n")
		if len(ports) == 0 {
			fmt.Printf("  (none)\n")
		}
		for _, p := range ports {
			fmt.Printf("  %s\n", p)
		}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
