// Package campaign runs a verification campaign: it expands a template into variants, checks every property of
// the template against every variant and prints the resulting reports.
package campaign

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/G-Research/vericampaign/internal/campaign/build"
	"github.com/G-Research/vericampaign/internal/campaign/conveyor"
	"github.com/G-Research/vericampaign/internal/campaign/document"
	"github.com/G-Research/vericampaign/internal/campaign/engine"
	"github.com/G-Research/vericampaign/internal/campaign/pool"
	"github.com/G-Research/vericampaign/internal/campaign/property"
	"github.com/G-Research/vericampaign/internal/campaign/report"
	"github.com/G-Research/vericampaign/internal/campaign/space"
	"github.com/G-Research/vericampaign/internal/common/campaigncontext"
	"github.com/G-Research/vericampaign/internal/common/campaignerrors"
	"github.com/G-Research/vericampaign/internal/common/logging"
	"github.com/G-Research/vericampaign/internal/common/metrics"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the reports. Defaults to standard out,
	// but can be overridden in tests to make assertions on the application's output.
	Out io.Writer
	// Progress bars are drawn here. Nil disables them.
	Progress io.Writer
	// Engine checks each job. If nil, verifyta at Params.Verifyta is used.
	Engine engine.Engine
	// Schema and Declarer describe the parameters of the model template.
	Schema   space.Schema
	Declarer document.Declarer
	Metrics  *metrics.CampaignMetrics
}

// Params holds all user-customizable parameters.
type Params struct {
	Verifyta        string
	EngineArgs      []string
	Scenario        string
	NoQueries       bool
	NoProbabilities bool
	NoSimulations   bool
	// Short suppresses the reports; only the summary banner is printed.
	Short bool
	// Number of concurrent engine invocations. Zero means one less than the number of CPUs.
	Workers     int
	ScratchDir  string
	ResultsDir  string
	Output      string
	MetricsFile string
}

// New instantiates an App with default parameters for the conveyor-belt model, writing to standard out.
func New() *App {
	return &App{
		Params: &Params{
			Verifyta:   engine.DefaultVerifytaPath,
			Scenario:   space.Extensive,
			ScratchDir: "tmp",
			ResultsDir: "results",
			Output:     string(report.JSON),
		},
		Out:      os.Stdout,
		Progress: os.Stderr,
		Schema:   conveyor.Schema,
		Declarer: conveyor.Wiring{},
		Metrics:  metrics.NewCampaignMetrics(),
	}
}

// Version prints build information to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

func (a *App) validateParams() error {
	if a.Params.Workers < 0 {
		return errors.WithStack(&campaignerrors.ErrInvalidArgument{
			Name:    "workers",
			Value:   a.Params.Workers,
			Message: "must not be negative",
		})
	}
	if a.Params.ScratchDir == "" || a.Params.ScratchDir == a.Params.ResultsDir {
		return errors.WithStack(&campaignerrors.ErrInvalidArgument{
			Name:    "scratch-dir",
			Value:   a.Params.ScratchDir,
			Message: "must be set and differ from the results directory",
		})
	}
	if a.Params.ResultsDir == "" {
		return errors.WithStack(&campaignerrors.ErrInvalidArgument{Name: "results-dir", Value: "", Message: "not provided"})
	}
	_, err := report.ParseFormat(a.Params.Output)
	return err
}

// campaign is everything loaded from the inputs before any job runs.
type campaign struct {
	variants   *space.Generator
	template   *document.Template
	properties property.Set
}

// load reads and validates every input, so that configuration errors surface before the scratch directory is
// touched.
func (a *App) load(configPath string, templatePath string) (*campaign, error) {
	if a.Engine == nil {
		if err := engine.CheckExecutable(a.Params.Verifyta); err != nil {
			return nil, err
		}
		a.Engine = &engine.Verifyta{Path: a.Params.Verifyta, Args: a.Params.EngineArgs}
	}
	cfg, err := space.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	variants, err := space.NewGenerator(a.Schema, cfg, a.Params.Scenario)
	if err != nil {
		return nil, err
	}
	template, err := document.Load(templatePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(templatePath)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()
	properties, err := property.Extract(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "invalid template %s", templatePath)
	}
	return &campaign{variants: variants, template: template, properties: properties}, nil
}

func (a *App) enabled(kind property.Kind) bool {
	switch kind {
	case property.Query:
		return !a.Params.NoQueries
	case property.Probability:
		return !a.Params.NoProbabilities
	case property.Simulation:
		return !a.Params.NoSimulations
	}
	return false
}

// Run executes a campaign over the variants of the configured scenario and prints the reports. Unsatisfied
// properties are reported, not returned as errors; any error ends the campaign without a report.
func (a *App) Run(ctx *campaigncontext.Context, configPath string, templatePath string) (err error) {
	if err := a.validateParams(); err != nil {
		return err
	}
	c, err := a.load(configPath, templatePath)
	if err != nil {
		return err
	}

	ctx = campaigncontext.WithLogFields(ctx, logrus.Fields{"runId": uuid.New().String(), "scenario": a.Params.Scenario})
	if err := a.prepareDirectories(); err != nil {
		return err
	}
	correlator := report.NewCorrelator(c.properties, a.Params.ResultsDir)
	defer func() {
		if cleanupErr := a.cleanup(correlator); cleanupErr != nil {
			if err == nil {
				err = cleanupErr
			} else {
				logging.WithStacktrace(ctx.Log, cleanupErr).Warn("failed to clean up")
			}
		}
	}()

	ctx.Log.WithFields(logrus.Fields{
		"variants":      c.variants.Len(),
		"queries":       len(c.properties[property.Query]),
		"probabilities": len(c.properties[property.Probability]),
		"simulations":   len(c.properties[property.Simulation]),
	}).Debug("starting campaign")
	a.Metrics.SetVariants(c.variants.Len())

	for _, kind := range property.Kinds {
		items := c.properties[kind]
		if !a.enabled(kind) || len(items) == 0 {
			continue
		}
		if err := property.WriteFiles(a.Params.ScratchDir, items); err != nil {
			return err
		}
		if err := a.runPhase(campaigncontext.WithLogField(ctx, "kind", kind.String()), c, kind, correlator); err != nil {
			return err
		}
		if err := a.printPhase(kind, correlator); err != nil {
			return err
		}
	}

	if a.Params.MetricsFile != "" {
		if err := a.Metrics.WriteToFile(a.Params.MetricsFile); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) runPhase(ctx *campaigncontext.Context, c *campaign, kind property.Kind, correlator *report.Correlator) error {
	files, err := property.Discover(a.Params.ScratchDir, kind)
	if err != nil {
		return err
	}
	observers := []pool.Observer{&metricsObserver{metrics: a.Metrics}}
	if a.Progress != nil {
		progress := newProgressObserver(a.Progress, kind, pool.Total(c.variants.Len(), len(files)))
		defer progress.Finish()
		observers = append(observers, progress)
	}
	p := &pool.Pool{Workers: a.Params.Workers, Engine: a.Engine, Observers: observers}
	src := &pool.Source{
		Variants:   c.variants,
		Properties: files,
		Template:   c.template,
		Declarer:   a.Declarer,
		ScratchDir: a.Params.ScratchDir,
	}
	ctx.Log.Debugf("running %d jobs", pool.Total(c.variants.Len(), len(files)))
	return p.Run(ctx, src, correlator.Add)
}

func (a *App) printPhase(kind property.Kind, correlator *report.Correlator) error {
	var title string
	var r json.Marshaler
	switch kind {
	case property.Query:
		fmt.Fprintf(a.Out, "%s\n\n", report.Banner(correlator.Failed))
		title, r = "Verification results", correlator.Queries
	case property.Probability:
		title, r = "Probabilities", correlator.Probabilities
	case property.Simulation:
		if _, err := correlator.Finish(); err != nil {
			return err
		}
		title, r = "Simulations", correlator.Simulations
	}
	if a.Params.Short {
		return nil
	}
	data, err := report.Encode(r, report.Format(a.Params.Output))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s\n%s\n\n", report.Heading(title), bytes.TrimRight(data, "\n"))
	return nil
}

// prepareDirectories recreates empty scratch and results directories.
func (a *App) prepareDirectories() error {
	for _, dir := range []string{a.Params.ScratchDir, a.Params.ResultsDir} {
		if err := os.RemoveAll(dir); err != nil {
			return errors.WithStack(err)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

// cleanup removes the scratch directory and any simulation traces left staged, then the results directory if nothing
// was written to it.
func (a *App) cleanup(correlator *report.Correlator) error {
	var result *multierror.Error
	if err := correlator.Discard(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := os.RemoveAll(a.Params.ScratchDir); err != nil {
		result = multierror.Append(result, errors.WithStack(err))
	}
	entries, err := os.ReadDir(a.Params.ResultsDir)
	switch {
	case err != nil && !os.IsNotExist(err):
		result = multierror.Append(result, errors.WithStack(err))
	case err == nil && len(entries) == 0:
		if err := os.Remove(a.Params.ResultsDir); err != nil {
			result = multierror.Append(result, errors.WithStack(err))
		}
	}
	return result.ErrorOrNil()
}
