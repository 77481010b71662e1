// enex2md: convert Evernote exports (.enex) to GitHub Flavored Markdown.
//
// Print every note to stdout:
//
//	enex2md [flags] notes.enex
//
// Write a directory tree or an EPUB:
//
//	enex2md --output disk --dir out 'exports/**/*.enex'
//	enex2md --output epub --epub-file notes.epub notes.enex
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type cliFlags struct {
	metadata string
	output   string
	timezone string
	verbose  bool
	silent   bool
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	cfg := defaultConfig()
	fl := cliFlags{
		metadata: string(cfg.MetadataStyle),
		output:   string(cfg.OutputMode),
		timezone: cfg.Timezone,
	}

	cmd := &cobra.Command{
		Use:   "enex2md [flags] <file.enex|glob>...",
		Short: "Convert Evernote exports to GitHub Flavored Markdown",
		Long: `enex2md reads Evernote export files and converts every note to Markdown.
Documents go to stdout, to a timestamped directory tree with attachments,
or into a single EPUB book.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			switch {
			case fl.silent:
				level = slog.LevelError
			case fl.verbose:
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

			cfg.MetadataStyle = MetadataStyle(fl.metadata)
			cfg.OutputMode = OutputMode(fl.output)
			cfg.Timezone = fl.timezone
			return cfg.Validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.OutputMode != ModeStream && !fl.silent {
				progressOut = stdout
			}
			return run(cmd.Context(), cfg, args, stdout)
		},
	}

	f := cmd.Flags()
	f.StringVar(&fl.metadata, "metadata", fl.metadata, "metadata block style: section or frontmatter")
	f.StringVar(&fl.output, "output", fl.output, "where documents go: stream, disk or epub")
	f.StringVar(&cfg.OutputDir, "dir", cfg.OutputDir, "output root for --output disk")
	f.StringVar(&cfg.EpubFile, "epub-file", cfg.EpubFile, "EPUB path for --output epub")
	f.StringVar(&cfg.BookTitle, "title", "", "EPUB book title (default: first input file name)")
	f.StringVar(&fl.timezone, "timezone", fl.timezone, "zone for metadata timestamps: utc or local")
	f.IntVar(&cfg.Workers, "workers", cfg.Workers, "notes converted in parallel")
	f.BoolVar(&cfg.NameUntitled, "name-untitled", false, "keep attachments without a file name as untitled.<ext>")
	f.BoolVar(&cfg.Lenient, "lenient", false, "convert malformed notes with a forgiving HTML converter instead of skipping them")
	f.IntVar(&cfg.Images.maxWidth, "max-width", cfg.Images.maxWidth, "downscale images wider than this many pixels (0 keeps them)")
	f.IntVar(&cfg.Images.quality, "quality", cfg.Images.quality, "JPEG quality 1-100 for re-encoded images")
	f.BoolVar(&cfg.Images.grayscale, "grayscale", false, "convert images to grayscale")
	cmd.PersistentFlags().BoolVarP(&fl.verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVar(&fl.silent, "silent", false, "suppress everything but errors")
	return cmd
}

// newSink opens the sink for cfg.OutputMode.
func newSink(cfg Config, inputs []string, stdout io.Writer) (Sink, error) {
	switch cfg.OutputMode {
	case ModeDisk:
		s, err := NewDiskSink(cfg.OutputDir, time.Now(), cfg.Images)
		if err != nil {
			return nil, err
		}
		slog.Info("writing notes", "dir", s.Dir())
		return s, nil
	case ModeEpub:
		return NewEpubSink(cfg.EpubFile, bookTitle(cfg, inputs), cfg.Images), nil
	default:
		return NewStreamSink(stdout), nil
	}
}

// bookTitle is --title, else the first input's base name.
func bookTitle(cfg Config, inputs []string) string {
	if t := strings.TrimSpace(cfg.BookTitle); t != "" {
		return t
	}
	if len(inputs) == 0 {
		return ""
	}
	name := filepath.Base(inputs[0])
	name = strings.TrimSuffix(name, filepath.Ext(name))
	if strings.ContainsAny(name, "*?[{") {
		return ""
	}
	return name
}

// run converts inputs into the configured sink. It fails when notes were
// found but none converted.
func run(ctx context.Context, cfg Config, inputs []string, stdout io.Writer) error {
	sink, err := newSink(cfg, inputs, stdout)
	if err != nil {
		return err
	}
	report, err := Run(ctx, cfg, inputs, sink)
	if cerr := sink.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}

	pprintf("✓ %d/%d notes converted, %d warnings\n", report.Converted, report.Notes, len(report.Warnings))
	slog.Info("done", "notes", report.Notes, "converted", report.Converted,
		"failed", len(report.Failures), "warnings", len(report.Warnings))
	if report.Notes > 0 && report.Converted == 0 {
		return errors.New("no notes converted")
	}
	return nil
}

func main() {
	// .env is optional.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
