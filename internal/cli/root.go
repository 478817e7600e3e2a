// Package cli implements the reporter command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/trafficai/violation-reporter/internal/bootstrap"
	"github.com/trafficai/violation-reporter/internal/config"
	"github.com/trafficai/violation-reporter/internal/dedup"
	"github.com/trafficai/violation-reporter/internal/fingerprint"
	"github.com/trafficai/violation-reporter/internal/geo"
	"github.com/trafficai/violation-reporter/internal/media"
)

// app carries global flags and the loaded configuration across commands.
type app struct {
	user    string
	lat     float64
	lng     float64
	jsonOut bool
	noColor bool

	cfg    *config.Config
	logger *slog.Logger
}

// NewRootCommand builds the command tree.
func NewRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "reporter",
		Short: "Report traffic violations from photos and videos",
		Long: `reporter analyzes a photo or video of a suspected traffic violation,
rejects media that was already submitted, locates it from EXIF GPS data or the
device position, and keeps a history of reports.

Examples:
  # Submit a photo, using the device position when it has no GPS data
  reporter submit --user alice --lat 12.97 --lng 77.59 capture.jpg

  # Print the content fingerprint used for duplicate detection
  reporter fingerprint capture.jpg

  # Extract the frames that would be analyzed for a clip
  reporter frames --count 5 --interval 1 --out ./frames clip.mp4

  # List your reports
  reporter reports list --user alice
`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.user, "user", "", "Submitter user ID (empty for anonymous)")
	pf.Float64Var(&a.lat, "lat", 0, "Device latitude, used when the media has no GPS data")
	pf.Float64Var(&a.lng, "lng", 0, "Device longitude, used when the media has no GPS data")
	pf.BoolVar(&a.jsonOut, "json", false, "Print JSON instead of text")
	pf.BoolVar(&a.noColor, "no-color", false, "Disable coloured output")

	root.AddCommand(
		a.submitCmd(),
		a.fingerprintCmd(),
		a.locateCmd(),
		a.framesCmd(),
		a.thumbnailCmd(),
		a.durationCmd(),
		a.reportsCmd(),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		color.New(color.FgRed, color.Bold).Fprint(stderr, "Error: ")
		fmt.Fprintln(stderr, describe(err))
		return 1
	}
	return 0
}

// describe turns workflow errors into messages for the submitter.
func describe(err error) string {
	switch {
	case errors.Is(err, dedup.ErrDuplicate):
		return "This media has already been submitted. Please upload or capture a new and original file."
	case errors.Is(err, media.ErrUnsupportedMedia):
		return fmt.Sprintf("Please select an image or video file (%v).", err)
	case errors.Is(err, config.ErrGeminiAPIKeyRequired):
		return "GEMINI_API_KEY must be set to analyze media."
	case errors.Is(err, fingerprint.ErrAlgorithmMismatch):
		return fmt.Sprintf("FINGERPRINT_ALGORITHM does not match the data directory (%v).", err)
	default:
		return err.Error()
	}
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	if a.noColor {
		color.NoColor = true
	}
	if cmd.Flags().Changed("lat") != cmd.Flags().Changed("lng") {
		return errors.New("--lat and --lng must be given together")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.logger = cfg.NewLogger()
	slog.SetDefault(a.logger)
	return nil
}

// location returns the --lat/--lng override, or nil.
func (a *app) location(cmd *cobra.Command) *geo.Coordinate {
	if !cmd.Flags().Changed("lat") {
		return nil
	}
	return &geo.Coordinate{Latitude: a.lat, Longitude: a.lng}
}

func (a *app) dependencies(cmd *cobra.Command) (*bootstrap.Dependencies, error) {
	deps, err := bootstrap.NewDependencies(cmd.Context(), a.cfg, a.logger, bootstrap.Options{
		Location: a.location(cmd),
	})
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return deps, nil
}

func (a *app) printer(cmd *cobra.Command) *printer {
	return newPrinter(cmd.OutOrStdout(), a.jsonOut)
}

// readMedia loads a file for a media command.
func readMedia(path string) (string, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read media: %w", err)
	}
	return filepath.Base(path), data, nil
}
