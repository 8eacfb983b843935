package cmd

import (
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/weaveworks/promrus"

	"github.com/G-Research/vericampaign/internal/campaign"
	"github.com/G-Research/vericampaign/internal/campaign/engine"
	"github.com/G-Research/vericampaign/internal/campaign/pool"
	"github.com/G-Research/vericampaign/internal/campaign/report"
	"github.com/G-Research/vericampaign/internal/campaign/space"
	"github.com/G-Research/vericampaign/internal/common/campaigncontext"
	"github.com/G-Research/vericampaign/internal/common/logging"
)

const envPrefix = "VERICAMPAIGN"

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	return rootCmd(campaign.New())
}

func rootCmd(app *campaign.App) *cobra.Command {
	// Every flag can also be set from the environment, e.g. --scratch-dir as VERICAMPAIGN_SCRATCH_DIR.
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:   "vericampaign",
		Short: "vericampaign verifies a parameterized UPPAAL model over a space of variants.",
		Long: `vericampaign verifies a parameterized UPPAAL model over a space of variants.

The template's <system> region is rewritten for every variant selected by the
configuration, and every query, probability and simulation embedded in the
template is checked against every variant with verifyta.

Every flag may also be set through an environment variable, e.g.
VERICAMPAIGN_VERIFYTA=/opt/uppaal/bin/verifyta.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return errors.WithStack(err)
			}
			if err := logging.ConfigureCommandLineLogging(cmd.OutOrStdout(), v.GetString("log-level")); err != nil {
				return err
			}
			log.AddHook(promrus.MustNewPrometheusHook())
			return nil
		},
	}
	cmd.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn or error.")

	cmd.AddCommand(
		versionCmd(app),
		runCmd(app, v),
	)
	return cmd
}

// Print version info and exit.
func versionCmd(app *campaign.App) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Out = cmd.OutOrStdout()
			return app.Version()
		},
	}
}

// Run a campaign and print its reports.
func runCmd(app *campaign.App, v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [flags] config.json project.xml",
		Short: "Verify every property of a template against every variant of a scenario.",
		Long: `Verify every property of a template against every variant of a scenario.

config.json holds named scenarios, each a complete assignment of the model
parameters, and an "extensive" entry giving a {min, max} range for each of them:

  {
    "scenario_1": {"speed": 1, "disks": 4, "policy": 0,
                   "out_sensors": [10, 20, 30, 40, 50],
                   "stations_processing": [1, 2, 3, 4, 5, 6]},
    "extensive":  {"speed": {"min": 1, "max": 2}, ...}
  }

YAML configurations are accepted too.`,
		Args: cobra.ExactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(app, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			app.Out = cmd.OutOrStdout()
			ctx, cancel := campaigncontext.WithShutdown(campaigncontext.New(cmd.Context(), log.WithField("command", cmd.Name())))
			defer cancel()
			return app.Run(ctx, args[0], args[1])
		},
	}

	addRunFlags(cmd.Flags())
	return cmd
}

func addRunFlags(flags *pflag.FlagSet) {
	flags.StringP("verifyta", "v", engine.DefaultVerifytaPath, "Path to the verifyta executable.")
	flags.StringP("scenario", "s", space.Extensive, "Name of the scenario to run; \"extensive\" sweeps every configured range.")
	flags.Bool("no-queries", false, "Skip queries.")
	flags.Bool("no-probabilities", false, "Skip probabilities.")
	flags.Bool("no-simulations", false, "Skip simulations.")
	flags.Bool("short", false, "Only print the summary, not the reports.")
	flags.Int("workers", pool.DefaultWorkers(), "Number of concurrent verifyta processes.")
	flags.StringArray("engine-arg", nil, "Extra argument passed to every verifyta invocation. May be repeated.")
	flags.String("scratch-dir", "tmp", "Working directory for generated models and property files. Recreated on every run.")
	flags.String("results-dir", "results", "Directory simulation traces are written to. Recreated on every run.")
	flags.StringP("output", "o", string(report.JSON), "Report format: json or yaml.")
	flags.String("metrics-file", "", "Write Prometheus metrics of the run to this file.")
}

func initParams(app *campaign.App, v *viper.Viper) error {
	verifyta, err := homedir.Expand(v.GetString("verifyta"))
	if err != nil {
		return errors.WithStack(err)
	}
	app.Params.Verifyta = verifyta
	app.Params.Scenario = v.GetString("scenario")
	app.Params.NoQueries = v.GetBool("no-queries")
	app.Params.NoProbabilities = v.GetBool("no-probabilities")
	app.Params.NoSimulations = v.GetBool("no-simulations")
	app.Params.Short = v.GetBool("short")
	app.Params.Workers = v.GetInt("workers")
	app.Params.EngineArgs = v.GetStringSlice("engine-arg")
	app.Params.ScratchDir = v.GetString("scratch-dir")
	app.Params.ResultsDir = v.GetString("results-dir")
	app.Params.Output = v.GetString("output")
	app.Params.MetricsFile = v.GetString("metrics-file")
	return nil
}
