package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/signalsfoundry/dtn-simulator/internal/logging"
	"github.com/signalsfoundry/dtn-simulator/internal/observability"
	"github.com/signalsfoundry/dtn-simulator/internal/scenario"
	"github.com/signalsfoundry/dtn-simulator/report"
	"github.com/signalsfoundry/dtn-simulator/routing"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "simulator",
		Short:        "Discrete-time DTN routing simulator",
		SilenceUsage: true,
	}
	root.AddCommand(newRunCmd(), newValidateCmd(), newRunsCmd())
	return root
}

type runOptions struct {
	format      string
	policy      string
	duration    float64
	archive     string
	noArchive   bool
	metricsAddr string
}

func newRunCmd() *cobra.Command {
	var opts runOptions
	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Runs a scenario and prints its delivery summary",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(cmd, args[0], opts)
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "summary format: text, json or yaml")
	cmd.Flags().StringVar(&opts.policy, "policy", "", "override the scenario's routing policy")
	cmd.Flags().Float64Var(&opts.duration, "duration", 0, "override the scenario duration in seconds")
	cmd.Flags().StringVar(&opts.archive, "archive", report.DefaultStorePath, "run archive file")
	cmd.Flags().BoolVar(&opts.noArchive, "no-archive", false, "do not archive the run")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "HTTP address for Prometheus /metrics while running")
	return cmd
}

func runScenario(cmd *cobra.Command, path string, opts runOptions) error {
	log := logging.NewFromEnv()

	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	s, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if opts.policy != "" {
		kind, err := routing.ParseKind(opts.policy)
		if err != nil {
			return err
		}
		s.Policy.Kind = kind
	}
	if opts.duration > 0 {
		s.Run.Duration = opts.duration
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	tcfg := observability.TracingConfigFromEnv()
	tcfg.Scenario = s.Name
	tcfg.Policy = s.Policy.Kind.String()
	shutdown, err := observability.InitTracing(ctx, tcfg, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdown, log)

	buildOpts := []scenario.Option{scenario.WithLogger(log)}
	if opts.metricsAddr != "" {
		collector, err := observability.NewSimCollector(prometheus.NewRegistry())
		if err != nil {
			return err
		}
		if srv := serveMetrics(opts.metricsAddr, collector, log); srv != nil {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(shutdownCtx)
			}()
		}
		buildOpts = append(buildOpts, scenario.WithMetrics(collector))
	}

	sim, err := scenario.Build(s, buildOpts...)
	if err != nil {
		return err
	}

	startedAt := time.Now().UTC()
	summary, runErr := sim.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if runErr != nil {
		log.Warn(ctx, "run interrupted; reporting partial results", logging.Err(runErr))
	}

	if err := report.WriteSummary(cmd.OutOrStdout(), s.Name, summary, format); err != nil {
		return err
	}
	if opts.noArchive {
		return nil
	}

	store, err := report.OpenRunStore(opts.archive)
	if err != nil {
		return err
	}
	defer store.Close()
	id, err := store.Put(report.RunRecord{
		Scenario:  s.Name,
		Policy:    s.Policy.Kind.String(),
		StartedAt: startedAt,
		Wall:      sim.Wall(),
		Summary:   summary,
	})
	if err != nil {
		return err
	}
	log.Info(ctx, "run archived", logging.String("id", id), logging.String("archive", opts.archive))
	return nil
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <scenario.yaml>...",
		Short: "Checks scenario files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var failed int
			for _, path := range args {
				s, err := scenario.Load(path)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%s, %d hosts, %s)\n",
					path, s.Name, len(s.HostNames()), s.Policy.Kind)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d scenarios invalid", failed, len(args))
			}
			return nil
		},
	}
}

func newRunsCmd() *cobra.Command {
	var archive string
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Inspects archived runs",
	}
	runs.PersistentFlags().StringVar(&archive, "archive", report.DefaultStorePath, "run archive file")

	list := &cobra.Command{
		Use:   "list",
		Short: "Lists archived runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := report.OpenRunStore(archive)
			if err != nil {
				return err
			}
			defer store.Close()
			recs, err := store.List()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "id\tstarted\tscenario\tpolicy\tcreated\tdelivered\tdelivery_prob\tlatency_avg")
			for _, r := range recs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%.4f\t%.4f\n",
					r.ID, r.StartedAt.Format(time.RFC3339), r.Scenario, r.Policy,
					r.Summary.Created, r.Summary.Delivered, r.Summary.DeliveryProb, r.Summary.LatencyAvg)
			}
			return w.Flush()
		},
	}

	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Prints the summary of one archived run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := report.ParseFormat(cmd.Flag("format").Value.String())
			if err != nil {
				return err
			}
			store, err := report.OpenRunStore(archive)
			if err != nil {
				return err
			}
			defer store.Close()
			rec, err := store.Get(args[0])
			if err != nil {
				return err
			}
			return report.WriteSummary(cmd.OutOrStdout(), rec.Scenario, rec.Summary, format)
		},
	}
	show.Flags().StringP("format", "f", "text", "summary format: text, json or yaml")

	runs.AddCommand(list, show)
	return runs
}
