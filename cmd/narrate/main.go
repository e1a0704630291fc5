// main package for the narrate command line client
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/talktwin/internal/bootstrap"
	"github.com/book-expert/talktwin/internal/config"
	"github.com/book-expert/talktwin/internal/pipeline"
	"github.com/book-expert/talktwin/internal/tts"
	"github.com/book-expert/talktwin/internal/tts/audio"
	"github.com/book-expert/talktwin/internal/tts/ttsutils"
	"github.com/book-expert/talktwin/internal/workspace"
)

// Flag descriptions.
const (
	flagPDFDesc        = "PDF document to narrate"
	flagVoiceDesc      = "Catalog voice id for the base pass"
	flagSampleDesc     = "Voice sample (.wav) to re-voice the narration with"
	flagWorkspaceDesc  = "Workspace id to reuse; with -sample alone, clones its last base pass"
	flagConfigDesc     = "Path to project.toml (defaults to the central configurator)"
	flagVerboseDesc    = "Log to a separate verbose log file and print every chunk"
	flagHealthDesc     = "Check the configured backends and exit"
	flagListVoicesDesc = "List the available voices and exit"
)

// Flag names.
const (
	flagPDF        = "pdf"
	flagVoice      = "voice"
	flagSample     = "sample"
	flagWorkspace  = "workspace"
	flagConfig     = "config"
	flagVerbose    = "verbose"
	flagHealth     = "health"
	flagListVoices = "list-voices"
)

// Error messages.
const (
	errPDFOrWorkspace      = "either -pdf, or -sample with -workspace, must be provided"
	errSampleNotWAV        = "-sample must be a .wav file"
	errPDFNotPDF           = "-pdf must be a .pdf file"
	errFailedToLoadConfig  = "failed to load configuration: %w"
	errFailedToInitLogger  = "failed to initialize logger: %w"
	errBackendsUnhealthy   = "Backends are not healthy: %v\n"
	errFailedToReadInput   = "failed to read %s: %w"
	errFailedToOpenSession = "failed to open workspace: %w"
)

// Log and output messages.
const (
	msgBackendsHealthy = "All configured backends are healthy"
	msgGenerated       = "Generated: %s (%s, %s)\n"
	msgWorkspace       = "Workspace: %s\n"
	msgGaps            = "%d chunks were skipped and replaced per the gap policy\n"
	msgProgress        = "[%s] %3.0f%% %s\n"
	msgWarning         = "warning: %s\n"
	logStarting        = "narrate started (config: %s)"
)

// File names.
const (
	bootstrapLogFile   = "narrate-bootstrap.log"
	logFileNameDefault = "narrate.log"
	logFileNameVerbose = "narrate-verbose.log"
)

var (
	errNoInput      = errors.New(errPDFOrWorkspace)
	errSampleFormat = errors.New(errSampleNotWAV)
	errPDFFormat    = errors.New(errPDFNotPDF)
)

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	pdf        string
	voice      string
	sample     string
	workspace  string
	config     string
	verbose    bool
	health     bool
	listVoices bool
}

func main() {
	err := run(os.Args[1:], os.Stdout)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run(args []string, out io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	err = validateFlags(flags)
	if err != nil {
		return err
	}

	cfg, appLog, err := setup(flags)
	if err != nil {
		return err
	}
	defer appLog.Close()

	appLog.Info(logStarting, flags.config)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if flags.health {
		return handleHealthCheck(ctx, cfg, appLog, out)
	}

	narrator, err := bootstrap.Pipeline(ctx, cfg, appLog)
	if err != nil {
		return err
	}

	if flags.listVoices {
		return listVoices(narrator.Catalog(), out)
	}

	return narrate(ctx, narrator, cfg, flags, out)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags(args []string) (appFlags, error) {
	var flags appFlags

	flagSet := flag.NewFlagSet("narrate", flag.ContinueOnError)
	flagSet.StringVar(&flags.pdf, flagPDF, "", flagPDFDesc)
	flagSet.StringVar(&flags.voice, flagVoice, tts.DefaultVoiceID, flagVoiceDesc)
	flagSet.StringVar(&flags.sample, flagSample, "", flagSampleDesc)
	flagSet.StringVar(&flags.workspace, flagWorkspace, "", flagWorkspaceDesc)
	flagSet.StringVar(&flags.config, flagConfig, "", flagConfigDesc)
	flagSet.BoolVar(&flags.verbose, flagVerbose, false, flagVerboseDesc)
	flagSet.BoolVar(&flags.health, flagHealth, false, flagHealthDesc)
	flagSet.BoolVar(&flags.listVoices, flagListVoices, false, flagListVoicesDesc)

	err := flagSet.Parse(args)
	if err != nil {
		return appFlags{}, err
	}

	return flags, nil
}

// validateFlags checks required and conflicting arguments before any
// backend is contacted.
func validateFlags(flags appFlags) error {
	if flags.health || flags.listVoices {
		return nil
	}

	if flags.pdf == "" && (flags.sample == "" || flags.workspace == "") {
		return errNoInput
	}

	if flags.pdf != "" && !ttsutils.IsPDFFile(flags.pdf) {
		return errPDFFormat
	}

	if flags.sample != "" && !ttsutils.IsWAVFile(flags.sample) {
		return errSampleFormat
	}

	return nil
}

// setup loads config and initializes the logger.
func setup(flags appFlags) (*config.Config, *logger.Logger, error) {
	bootstrapLog, err := bootstrap.NewLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}
	defer bootstrapLog.Close()

	err = bootstrap.LoadDotEnv(bootstrapLog)
	if err != nil {
		return nil, nil, err
	}

	var cfg *config.Config
	if flags.config != "" {
		cfg, err = config.LoadFile(flags.config)
	} else {
		cfg, err = config.Load(bootstrapLog)
	}

	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return nil, nil, fmt.Errorf(errFailedToLoadConfig, err)
	}

	logFileName := logFileNameDefault
	if flags.verbose {
		logFileName = logFileNameVerbose
	}

	appLog, err := bootstrap.NewLogger(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return nil, nil, fmt.Errorf(errFailedToInitLogger, err)
	}

	return cfg, appLog, nil
}

// handleHealthCheck probes every configured backend and prints the result.
func handleHealthCheck(ctx context.Context, cfg *config.Config, appLog *logger.Logger, out io.Writer) error {
	registry, err := bootstrap.Backends(ctx, cfg, appLog)
	if err != nil {
		return err
	}

	checkCtx, cancel := context.WithTimeout(ctx, cfg.HealthTimeout())
	defer cancel()

	err = registry.HealthCheck(checkCtx)
	if err != nil {
		appLog.Error("Health check failed: %v", err)
		fmt.Fprintf(out, errBackendsUnhealthy, err)

		return err
	}

	fmt.Fprintln(out, msgBackendsHealthy)

	return nil
}

func listVoices(catalog *tts.Catalog, out io.Writer) error {
	for _, voice := range catalog.Voices() {
		marker := " "
		if voice.ID == tts.DefaultVoiceID {
			marker = "*"
		}

		_, err := fmt.Fprintf(out, "%s %-6s %s (%s)\n", marker, voice.ID, voice.Description, voice.Backend)
		if err != nil {
			return err
		}
	}

	return nil
}

// narrate runs the base pass for -pdf and, when -sample is set, the clone
// pass on top of it or on the workspace's recorded base pass.
func narrate(ctx context.Context, narrator *pipeline.Pipeline, cfg *config.Config, flags appFlags, out io.Writer) error {
	progress := printProgress(out, flags.verbose)

	var base *pipeline.BaseResult

	if flags.pdf != "" {
		ws, err := openWorkspace(cfg.Paths.WorkspaceDir, flags.workspace)
		if err != nil {
			return err
		}

		document, err := os.ReadFile(flags.pdf)
		if err != nil {
			return fmt.Errorf(errFailedToReadInput, flags.pdf, err)
		}

		fmt.Fprintf(out, msgWorkspace, ws.ID())

		base, err = narrator.Base(ctx, pipeline.BaseRequest{
			PDF:       document,
			Name:      flags.pdf,
			Voice:     flags.voice,
			Workspace: ws,
			Progress:  progress,
		})
		if err != nil {
			return err
		}

		printGenerated(out, base.Info)

		if len(base.Gaps) > 0 {
			fmt.Fprintf(out, msgGaps, len(base.Gaps))
		}
	} else {
		ws, err := workspace.Open(cfg.Paths.WorkspaceDir, flags.workspace)
		if err != nil {
			return fmt.Errorf(errFailedToOpenSession, err)
		}

		base, err = pipeline.LoadManifest(ws.ManifestPath())
		if err != nil {
			return err
		}
	}

	if flags.sample == "" {
		return nil
	}

	sample, err := os.ReadFile(flags.sample)
	if err != nil {
		return fmt.Errorf(errFailedToReadInput, flags.sample, err)
	}

	cloned, err := narrator.Clone(ctx, base, sample, progress)
	if err != nil {
		return err
	}

	printGenerated(out, cloned.Info)

	return nil
}

func printGenerated(out io.Writer, info *audio.Info) {
	size := "unknown size"
	if stat, err := os.Stat(info.Path); err == nil {
		size = ttsutils.FormatFileSize(stat.Size())
	}

	fmt.Fprintf(out, msgGenerated, info.Path, ttsutils.FormatDuration(info.Duration.Seconds()), size)
}

func openWorkspace(parent, id string) (*workspace.Workspace, error) {
	if id == "" {
		return workspace.New(parent)
	}

	ws, err := workspace.OpenOrCreate(parent, id)
	if err != nil {
		return nil, fmt.Errorf(errFailedToOpenSession, err)
	}

	return ws, nil
}

// printProgress writes warnings always and chunk updates when verbose or on
// the last chunk of a pass.
func printProgress(out io.Writer, verbose bool) pipeline.ProgressFunc {
	return func(update pipeline.Progress) {
		if update.Warning != "" {
			fmt.Fprintf(out, msgWarning, update.Warning)
		}

		if verbose || update.Index == update.Total {
			fmt.Fprintf(out, msgProgress, update.Pass, update.Fraction*100, update.Status)
		}
	}
}
