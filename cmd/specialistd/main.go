// Command specialistd runs and inspects a specialist population.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tailored-agentic-units/specialists/routing"
	"github.com/tailored-agentic-units/specialists/specialist"
	"github.com/tailored-agentic-units/specialists/system"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

type rootFlags struct {
	config  string
	data    string
	verbose bool
}

func newRootCmd() *cobra.Command {
	var flags rootFlags
	root := &cobra.Command{
		Use:          "specialistd",
		Short:        "Domain specialist registry",
		Long:         "specialistd manages a population of domain specialists: seeding, listing, routing queries, and serving consultations.",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.config, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flags.data, "data", "", "specialist store directory (overrides config)")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log at debug level")

	root.AddCommand(
		newSeedCmd(&flags),
		newListCmd(&flags),
		newRouteCmd(&flags),
		newServeCmd(&flags),
	)
	return root
}

// open loads configuration and starts a System, which seeds an empty store.
func open(ctx context.Context, flags *rootFlags, quiet bool) (*system.System, error) {
	cfg, err := system.LoadConfig(flags.config)
	if err != nil {
		return nil, err
	}
	if flags.data != "" {
		cfg.Storage.Path = flags.data
	}
	if flags.verbose {
		cfg.Log.Level = "debug"
	}

	var opts []system.Option
	if quiet && !flags.verbose {
		opts = append(opts, system.WithLogger(zap.NewNop()))
	}
	sys, err := system.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if _, err := sys.Start(ctx); err != nil {
		_ = sys.Shutdown(ctx)
		return nil, err
	}
	return sys, nil
}

func newSeedCmd(flags *rootFlags) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate the store from the seed catalog",
		Long:  "seed starts the system, which seeds an empty store. With --force the catalog is spawned again on top of the existing population.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			sys, err := open(ctx, flags, true)
			if err != nil {
				return err
			}
			defer sys.Shutdown(ctx)

			if force {
				n, err := sys.Seed(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "spawned %d specialists\n", n)
			}
			stats := sys.Registry().Stats()
			fmt.Fprintf(cmd.OutOrStdout(), "population: %d active of %d\n", stats.Active, stats.Total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "spawn the catalog even when the store is not empty")
	return cmd
}

func newListCmd(flags *rootFlags) *cobra.Command {
	var pillar string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active specialists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var p specialist.Pillar
			if pillar != "" {
				parsed, err := specialist.ParsePillar(pillar)
				if err != nil {
					return err
				}
				p = parsed
			}

			ctx := cmd.Context()
			sys, err := open(ctx, flags, true)
			if err != nil {
				return err
			}
			defer sys.Shutdown(ctx)

			return writeList(cmd.OutOrStdout(), sys.Registry().ListActive(p))
		},
	}
	cmd.Flags().StringVar(&pillar, "pillar", "", "only list specialists of this pillar")
	return cmd
}

func writeList(out io.Writer, list []*specialist.Specialist) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPILLAR\tLABEL\tEXPERTISE\tQUERIES")
	for _, s := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%d\n", s.ID, s.Pillar, s.Label, s.ExpertiseLevel, s.Stats.QueriesHandled)
	}
	return w.Flush()
}

func newRouteCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "route <pillar> <query...>",
		Short: "Route a query to the best specialist of a pillar",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			pillar, err := specialist.ParsePillar(args[0])
			if err != nil {
				return err
			}
			query := strings.Join(args[1:], " ")

			ctx := cmd.Context()
			sys, err := open(ctx, flags, true)
			if err != nil {
				return err
			}
			defer sys.Shutdown(ctx)

			match, err := sys.Route(ctx, query, pillar, routing.Context{})
			var miss *routing.MissError
			if errors.As(err, &miss) {
				fmt.Fprintf(cmd.OutOrStdout(), "no suitable specialist in %s\n", pillar)
				return nil
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) confidence %.2f\n", match.Specialist.ID, match.Specialist.Label, match.Confidence)
			for _, alt := range match.Alternatives {
				fmt.Fprintf(cmd.OutOrStdout(), "  alternative %s confidence %.2f\n", alt.Specialist.ID, alt.Score)
			}
			return nil
		},
	}
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run background evolution and consultation responders until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sys, err := open(ctx, flags, false)
			if err != nil {
				return err
			}
			<-ctx.Done()
			return sys.Shutdown(context.WithoutCancel(ctx))
		},
	}
}
