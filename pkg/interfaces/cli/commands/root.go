package commands

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vsinha/lineplan/pkg/application/dto"
	"github.com/vsinha/lineplan/pkg/infrastructure/config"
	"github.com/vsinha/lineplan/pkg/infrastructure/logging"
	"github.com/vsinha/lineplan/pkg/infrastructure/repositories/csv"
	"github.com/vsinha/lineplan/pkg/interfaces/cli/output"
)

// Exit codes returned by Execute
const (
	ExitOK             = 0
	ExitError          = 1
	ExitChoiceRequired = 2
)

const (
	defaultCLILogLevel = "warn"
	verboseCLILogLevel = "info"
)

// rootOptions are the flags shared by every subcommand
type rootOptions struct {
	configPath string
	scenario   string
	format     string
	logLevel   string
	verbose    bool
}

// NewRootCommand builds the lineplan command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "lineplan",
		Short:         "Production-line capacity scheduling and reflow",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.scenario, "scenario", "", "import a CSV scenario directory before running the command")
	flags.StringVarP(&opts.format, "format", "o", output.FormatText, "output format: text, json, csv")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level override: debug, info, warn, error")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "log planning decisions to stderr")

	root.AddCommand(
		newScheduleCommand(opts),
		newBatchCommand(opts),
		newUnscheduleCommand(opts),
		newSplitCommand(opts),
		newCapacityCommand(opts),
		newShowCommand(opts),
		newImportCommand(opts),
		newGenerateCommand(),
		newServeCommand(opts),
	)
	return root
}

// Execute runs the command tree and maps the outcome to an exit code
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}
	fmt.Fprintf(stderr, "%s %v\n", color.New(color.FgRed, color.Bold).Sprint("Error:"), err)
	var choice *dto.PlacementChoice
	if errors.As(err, &choice) {
		return ExitChoiceRequired
	}
	return ExitError
}

func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// open wires a runtime for one command. CLI runs log at warn unless asked
// otherwise.
func (o *rootOptions) open(cmd *cobra.Command) (*Runtime, *output.Printer, error) {
	return o.openRuntime(cmd, defaultCLILogLevel)
}

// openRuntime is open with a fallback log level; an empty fallback keeps the
// configured one
func (o *rootOptions) openRuntime(cmd *cobra.Command, fallbackLevel string) (*Runtime, *output.Printer, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	switch {
	case o.logLevel != "":
		cfg.Log.Level = o.logLevel
	case o.verbose:
		cfg.Log.Level = verboseCLILogLevel
	case fallbackLevel != "":
		cfg.Log.Level = fallbackLevel
	}

	printer, err := output.NewPrinter(cmd.OutOrStdout(), o.format)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}

	rt, err := NewRuntime(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if o.scenario != "" {
		if err := importScenario(cmd.Context(), rt, o.scenario); err != nil {
			rt.Close()
			return nil, nil, err
		}
	}
	return rt, printer, nil
}

func importScenario(ctx context.Context, rt *Runtime, dir string) error {
	scenario, err := csv.NewLoader().LoadDir(dir)
	if err != nil {
		return fmt.Errorf("failed to load scenario %s: %w", dir, err)
	}
	if err := csv.Import(ctx, rt.Store, scenario); err != nil {
		return err
	}
	rt.Logger.Info("scenario imported", "dir", dir,
		"lines", len(scenario.Lines), "orders", len(scenario.Orders),
		"holidays", len(scenario.Holidays), "ramp_up_plans", len(scenario.RampUpPlans))
	return nil
}

// reportFailure prints the conflict set of a placement choice before
// handing the error back to Execute
func reportFailure(printer *output.Printer, err error) error {
	var choice *dto.PlacementChoice
	if errors.As(err, &choice) {
		if perr := printer.PlacementChoice(choice); perr != nil {
			return errors.Join(err, perr)
		}
	}
	return err
}
