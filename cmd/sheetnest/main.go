// SheetNest: sheet-goods nesting / cutting-stock solver.
//
// Usage:
//
//	sheetnest solve -parts parts.csv [-settings shop.yaml] [-pdf layout.pdf]
//	                [-labels labels.pdf] [-json result.json] [-cache-dir dir]
//	sheetnest serve [-addr :8080] [-cache-dir dir]
//
// Build:
//
//	go build -o sheetnest ./cmd/sheetnest
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/piwi3910/SheetNest/internal/cache"
	"github.com/piwi3910/SheetNest/internal/engine"
	"github.com/piwi3910/SheetNest/internal/model"
	"github.com/piwi3910/SheetNest/internal/project"
	"github.com/piwi3910/SheetNest/internal/solver"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "solve":
		err = runSolve(os.Args[2:])
	case "serve":
		err = runServe(os.Args[2:])
	case "-h", "-help", "--help", "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: sheetnest <command> [flags]

commands:
  solve   nest a part list and write the layout
  serve   run the HTTP API

Run "sheetnest <command> -h" for the flags of a command.`)
}

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath string
	cacheDir   string
	logLevel   string
	genetic    bool
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.configPath, "config", project.DefaultConfigPath(), "application config file (JSON or YAML)")
	fs.StringVar(&c.cacheDir, "cache-dir", "", "directory for the persistent result cache (overrides config)")
	fs.StringVar(&c.logLevel, "log-level", "", "log level: trace, debug, info, warn, error (overrides config)")
	fs.BoolVar(&c.genetic, "genetic", false, "search part orders with the genetic optimizer")
}

// env is what both subcommands build from the config and common flags.
type env struct {
	config model.AppConfig
	logger hclog.Logger
	store  cache.Cache
	orch   *solver.Orchestrator
	close  func()
}

func setup(c commonFlags) (*env, error) {
	config, err := project.LoadAppConfig(c.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if c.cacheDir != "" {
		config.CacheDir = c.cacheDir
	}
	if c.logLevel != "" {
		config.LogLevel = c.logLevel
	}

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "sheetnest",
		Level:  hclog.LevelFromString(config.LogLevel),
		Output: os.Stderr,
	})

	e := &env{config: config, logger: logger, close: func() {}}
	if config.CacheDir != "" {
		dir := config.CacheDir
		if c.genetic {
			// Keys do not record the engine, so each engine gets its own store.
			dir = filepath.Join(dir, "genetic")
		}
		bolt, err := cache.OpenBolt(dir)
		if err != nil {
			return nil, fmt.Errorf("open result cache: %w", err)
		}
		logger.Debug("using persistent result cache", "dir", dir, "entries", bolt.Len())
		e.store = bolt
		e.close = func() {
			if err := bolt.Close(); err != nil {
				logger.Warn("closing result cache", "error", err)
			}
		}
	} else {
		mem, err := cache.NewMemory(config.CacheSize)
		if err != nil {
			return nil, fmt.Errorf("create result cache: %w", err)
		}
		e.store = mem
	}

	opts := []solver.Option{
		solver.WithCache(e.store),
		solver.WithLogger(logger.Named("solver")),
	}
	if config.StopTimeoutMS > 0 {
		opts = append(opts, solver.WithStopTimeout(time.Duration(config.StopTimeoutMS)*time.Millisecond))
	}
	if c.genetic {
		opts = append(opts, solver.WithEngine(engine.OptimizeGenetic))
	}
	e.orch = solver.New(opts...)
	return e, nil
}
