// Package main implements the midas2table converter binary.
// It reads one event file and writes one table per run found in it.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/arkilian/fifotable/internal/config"
	"github.com/arkilian/fifotable/internal/converter"
	"github.com/arkilian/fifotable/internal/eventfile"
	"github.com/arkilian/fifotable/internal/storage"
	"github.com/arkilian/fifotable/internal/table"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const usage = "Usage: midas2table [flags] run.mid"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// options are the command line overrides.
type options struct {
	configFile string
	outputDir  string
	logLevel   string
	nchan      int
	dryRun     bool
	set        map[string]bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("midas2table", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	fs.StringVar(&opts.outputDir, "output-dir", "", "Directory run tables are written to")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error")
	fs.IntVar(&opts.nchan, "nchan", config.DefaultNChan, "Digitizer channel count, also accepted as -nchanN (recorded in the run summary)")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Convert without writing any table file")

	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fmt.Fprintf(stderr, "\nOptions:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(stderr, "  FIFOTABLE_OUTPUT_DIR     Output directory\n")
		fmt.Fprintf(stderr, "  FIFOTABLE_LOG_LEVEL      Log level\n")
		fmt.Fprintf(stderr, "  FIFOTABLE_ARCHIVE_TYPE   Archive type (none, local, s3)\n")
	}

	if err := fs.Parse(splitFusedNChan(args)); err != nil {
		if err == flag.ErrHelp {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, usage)
		return 0
	}
	opts.set = make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { opts.set[f.Name] = true })

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	log, err := cfg.Log.New(stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer log.Sync()

	if err := convert(ctx, cfg, fs.Arg(0), opts.dryRun, stdout, log); err != nil {
		log.Error("Conversion failed", zap.Error(err))
		return 1
	}
	return 0
}

// loadConfig layers defaults, the config file, the environment and flags.
func loadConfig(opts options) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, err
		}
	}
	config.LoadFromEnv(cfg)

	if opts.outputDir != "" {
		cfg.OutputDir = opts.outputDir
	}
	if opts.set["nchan"] {
		cfg.NChan = opts.nchan
	}
	if opts.logLevel != "" {
		lvl, err := zapcore.ParseLevel(opts.logLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.logLevel, err)
		}
		cfg.Log.Level = lvl
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func convert(ctx context.Context, cfg *config.Config, input string, dryRun bool, stdout io.Writer, log *zap.Logger) error {
	schema, err := table.NewSchema(cfg.TableName, cfg.Channels)
	if err != nil {
		return err
	}

	var sink table.Sink
	if dryRun {
		sink = table.NewCountingSink()
	} else {
		compression, err := table.ParseCompression(cfg.Compression)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		s := table.NewSQLiteSink(table.SQLiteOptions{
			Dir:         cfg.OutputDir,
			BaseName:    baseName(input),
			Compression: compression,
			FlushRows:   cfg.FlushRows,
		})
		s.WithLogger(log)
		sink = s
	}

	var archiver *storage.Archiver
	if !dryRun {
		archiver, err = newArchiver(ctx, cfg.Archive, log)
		if err != nil {
			return err
		}
	}

	src, err := eventfile.Open(input)
	if err != nil {
		return err
	}
	defer src.Close()
	src.WithLogger(log)

	log.Info("Starting conversion",
		zap.String("input", input),
		zap.String("output_dir", cfg.OutputDir),
		zap.Int("nchan", cfg.NChan),
		zap.Bool("dry_run", dryRun))

	conv := converter.New(converter.Options{
		Sink:     sink,
		Schema:   schema,
		Archiver: archiver,
		Summary:  cfg.Summary,
		Stdout:   stdout,
		Input:    input,
		NChan:    cfg.NChan,
	})
	conv.WithLogger(log)

	summaries, err := converter.Loop(ctx, src, conv)
	log.Info("Conversion finished",
		zap.Int("runs", len(summaries)),
		zap.Int64("frames", src.Frames()))
	return err
}

func newArchiver(ctx context.Context, cfg config.ArchiveConfig, log *zap.Logger) (*storage.Archiver, error) {
	switch cfg.Type {
	case config.ArchiveLocal:
		store, err := storage.NewLocalStorage(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		return storage.NewArchiver(store, cfg.Prefix), nil
	case config.ArchiveS3:
		store, err := storage.NewS3Storage(ctx, cfg.S3.Bucket, storage.S3Config{
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
		store.WithLogger(log)
		return storage.NewArchiver(store, cfg.Prefix), nil
	}
	return nil, nil
}

// splitFusedNChan rewrites the fused "-nchan8" spelling to "-nchan=8".
// Arguments after a "--" terminator are left alone.
func splitFusedNChan(args []string) []string {
	out := make([]string, len(args))
	copy(out, args)
	for i, arg := range out {
		if arg == "--" {
			break
		}
		for _, prefix := range []string{"-nchan", "--nchan"} {
			rest, ok := strings.CutPrefix(arg, prefix)
			if !ok || rest == "" || rest[0] == '=' {
				continue
			}
			if _, err := strconv.Atoi(rest); err == nil {
				out[i] = prefix + "=" + rest
			}
		}
	}
	return out
}

// baseName strips the directory and extensions from an input path:
// "data/run00042.mid.sz" becomes "run00042".
func baseName(input string) string {
	name := filepath.Base(input)
	name = strings.TrimSuffix(name, eventfile.SnappySuffix)
	return strings.TrimSuffix(name, filepath.Ext(name))
}
