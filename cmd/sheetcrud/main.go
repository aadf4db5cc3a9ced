package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"sheetcrud/internal/app"
	"sheetcrud/internal/config"
	"sheetcrud/internal/metrics"
	"sheetcrud/internal/metrics/datadog"
	"sheetcrud/internal/schema"
	"sheetcrud/internal/server"
	"sheetcrud/internal/storage"

	// register all backends with the storage factory.
	_ "sheetcrud/internal/storage/all"
)

const shutdownTimeout = 10 * time.Second

// metricsBackend is the part of a metrics backend main owns: shutting it down.
type metricsBackend interface {
	Close() error
}

// Seams for tests.
var (
	newDatadogBackend = func(ctx context.Context, opts datadog.Options) (metricsBackend, error) {
		return datadog.NewBackend(ctx, opts)
	}
	setMetricsBackend = func(b any) {
		if mb, ok := b.(metrics.Backend); ok {
			metrics.SetBackend(mb)
		}
	}
	logPrintf = log.Printf
)

type appDeps struct {
	loadConfig  func(path string) (*config.Config, error)
	initMetrics func(ctx context.Context, mc config.MetricsConfig) (func(), error)
	openStore   func(ctx context.Context, cfg storage.Config) (storage.Gateway, error)
	serve       func(ctx context.Context, srv *http.Server) error
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.LoadFromFile,
		initMetrics: initMetrics,
		openStore:   storage.New,
		serve:       serveHTTP,
	}
}

// main starts the spreadsheet CRUD server and blocks until SIGINT/SIGTERM.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

type flagValues struct {
	cfgPath  string
	envFile  string
	addr     string
	kind     string
	dsn      string
	path     string
	table    string
	maxBytes int64
	maxRows  int
	dates    string
	backend  string
	tags     string
	validate bool
	verbose  bool
}

func newFlagSet(stderr io.Writer, fv *flagValues) *pflag.FlagSet {
	fs := pflag.NewFlagSet("sheetcrud", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: sheetcrud [flags]")
		fs.PrintDefaults()
	}

	fs.StringVar(&fv.cfgPath, "config", "", "config file (.yaml, .yml, .json, .jsonc)")
	fs.StringVar(&fv.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	fs.StringVar(&fv.addr, "addr", "", "HTTP listen address")
	fs.StringVar(&fv.kind, "storage", "", "store kind: "+strings.Join(storage.Kinds(), ", "))
	fs.StringVar(&fv.dsn, "dsn", "", "store connection string")
	fs.StringVar(&fv.path, "db", "", "SQLite database file")
	fs.StringVar(&fv.table, "table", "", "table name")
	fs.Int64Var(&fv.maxBytes, "max-upload-bytes", 0, "largest accepted upload")
	fs.IntVar(&fv.maxRows, "max-rows", 0, "most data rows accepted per upload")
	fs.StringVar(&fv.dates, "dates", "", "ambiguous date order: us or eu")
	fs.StringVar(&fv.backend, "metrics-backend", "", "metrics backend: none or datadog")
	fs.StringVar(&fv.tags, "metrics-tags", "", "extra metrics tags, comma separated key:value")
	fs.BoolVar(&fv.validate, "validate", false, "validate the configuration and exit")
	fs.BoolVarP(&fv.verbose, "verbose", "v", false, "enable verbose logs")
	return fs
}

// applyFlags copies explicitly set flags over cfg.
func applyFlags(fs *pflag.FlagSet, fv *flagValues, cfg *config.Config) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("addr", func() { cfg.Addr = fv.addr })
	set("storage", func() { cfg.Storage.Kind = fv.kind })
	set("dsn", func() { cfg.Storage.DSN = fv.dsn })
	set("db", func() { cfg.Storage.Path = fv.path })
	set("table", func() { cfg.Storage.Table = fv.table })
	set("max-upload-bytes", func() { cfg.Upload.MaxBytes = fv.maxBytes })
	set("max-rows", func() { cfg.Upload.MaxRows = fv.maxRows })
	set("dates", func() { cfg.DatePreference = fv.dates })
	set("metrics-backend", func() { cfg.Metrics.Backend = fv.backend })
	set("metrics-tags", func() { cfg.Metrics.Tags = fv.tags })
	set("verbose", func() { cfg.Verbose = fv.verbose })
}

// runMain resolves the configuration (flag, then environment, then file,
// then defaults), opens the store and serves until ctx is done.
//
// Exit codes: 0 success, 1 runtime or configuration failure, 2 usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	var fv flagValues
	fs := newFlagSet(stderr, &fv)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(stderr, "usage: sheetcrud [flags]; unexpected argument %q\n", fs.Arg(0))
		return 2
	}

	if err := config.LoadDotEnv(fv.envFile); err != nil {
		fmt.Fprintf(stderr, "env: %v\n", err)
		return 1
	}
	cfg := config.DefaultConfig()
	if fv.cfgPath != "" {
		c, err := deps.loadConfig(fv.cfgPath)
		if err != nil {
			fmt.Fprintf(stderr, "read config: %v\n", err)
			return 1
		}
		cfg = c
	}
	config.LoadFromEnv(cfg)
	applyFlags(fs, &fv, cfg)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 1
	}
	if fv.validate {
		fmt.Fprintln(stdout, "ok")
		return 0
	}

	logger := log.New(stderr, "", log.LstdFlags)

	cleanup, err := deps.initMetrics(ctx, cfg.Metrics)
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	sc := storage.Config{Kind: cfg.Storage.Kind, DSN: cfg.ConnString(), Table: cfg.Storage.Table}
	gw, err := deps.openStore(ctx, sc)
	if err != nil {
		fmt.Fprintf(stderr, "open store: %v\n", err)
		return 1
	}
	defer gw.Close()

	session := app.NewSession(gw, app.Options{
		Limits:         app.Limits{MaxUploadBytes: cfg.Upload.MaxBytes, MaxRows: cfg.Upload.MaxRows},
		DatePreference: schema.DatePreference(cfg.DatePreference),
		Logger:         logger,
		Verbose:        cfg.Verbose,
	})
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(session, server.Options{Logger: logger, Verbose: cfg.Verbose}),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	logger.Printf("serving on %s: storage=%s table=%s limits=%q", cfg.Addr, cfg.Storage.Kind, gw.Table(), session.Limits().Hint())
	start := time.Now()
	if err := deps.serve(ctx, srv); err != nil {
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	if cfg.Verbose {
		logger.Printf("stopped after %s", time.Since(start).Truncate(time.Second))
	}
	return 0
}

// initMetrics wires the configured metrics backend. The returned cleanup is
// never nil and must be called once.
func initMetrics(ctx context.Context, mc config.MetricsConfig) (func(), error) {
	switch mc.Backend {
	case "datadog":
		flush := time.Duration(mc.FlushSeconds) * time.Second
		tags := datadog.ParseTagsCSV(mc.Tags)
		b, err := newDatadogBackend(ctx, datadog.Options{
			Service:    mc.Service,
			Tags:       tags,
			FlushEvery: flush,
		})
		if err != nil {
			return func() {}, fmt.Errorf("datadog: %w", err)
		}
		setMetricsBackend(b)
		logPrintf("metrics: backend=datadog service=%s tags=%v flush=%s", mc.Service, tags, flush)
		return func() {
			if err := b.Close(); err != nil {
				logPrintf("metrics: datadog close error: %v", err)
			}
		}, nil

	case "", "none":
		return func() {}, nil

	default:
		return func() {}, fmt.Errorf("unknown metrics backend %q", mc.Backend)
	}
}

// serveHTTP runs srv until it fails or ctx is done, then shuts it down.
func serveHTTP(ctx context.Context, srv *http.Server) error {
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
