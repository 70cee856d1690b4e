// Command coinledger runs the crypto trading simulator: a practice wallet that buys and
// sells coins at market prices with a simulated cash balance.
//
// Usage:
//
//	coinledger [--config config.yaml] [--v] <command> [args]
//
// Run "coinledger help" for the list of commands. Without --config the defaults apply,
// overridden by COINLEDGER_* environment variables (a .env file is read too).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vadiminshakov/coinledger/config"
	"github.com/vadiminshakov/coinledger/internal"
)

// env is handed to every command.
type env struct {
	configPath string
	verbose    bool
}

func (e *env) config() (config.Config, error) {
	return config.Get(e.configPath)
}

// logger builds a production logger. CLI commands stay quiet unless --v is set.
func (e *env) logger(cfg config.Config, quiet bool) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("incorrect 'log_level' param: %w", err)
	}
	if quiet && !e.verbose {
		level = zapcore.WarnLevel
	}
	if e.verbose {
		level = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// open loads config and wires the application.
func (e *env) open(ctx context.Context, quiet bool) (*internal.App, *zap.Logger, error) {
	cfg, err := e.config()
	if err != nil {
		return nil, nil, err
	}
	logger, err := e.logger(cfg, quiet)
	if err != nil {
		return nil, nil, err
	}
	app, err := internal.New(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return app, logger, nil
}

func main() {
	e := &env{}
	flag.StringVar(&e.configPath, "config", "", "path to yaml config")
	flag.BoolVar(&e.verbose, "v", false, "debug logging")

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(subcommands.CommandsCommand(), "")

	subcommands.Register(&serveCmd{}, "")
	subcommands.Register(&setupCmd{}, "")

	subcommands.Register(&profileCmd{}, "profiles")

	subcommands.Register(&chargeCmd{}, "portfolio")
	subcommands.Register(&tradeCmd{}, "portfolio")
	subcommands.Register(&portfolioCmd{}, "portfolio")
	subcommands.Register(&historyCmd{}, "portfolio")
	subcommands.Register(&resetCmd{}, "portfolio")

	subcommands.Register(&coinsCmd{}, "market")

	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	status := subcommands.Execute(ctx, e)
	stop()

	os.Exit(int(status))
}
