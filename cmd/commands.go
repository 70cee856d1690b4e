package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/vadiminshakov/coinledger/internal"
	"github.com/vadiminshakov/coinledger/internal/domain"
	"github.com/vadiminshakov/coinledger/internal/ledger"
	"github.com/vadiminshakov/coinledger/internal/profile"
	"github.com/vadiminshakov/coinledger/internal/services/market"
	"github.com/vadiminshakov/coinledger/internal/setup"
)

func envFrom(args []interface{}) *env {
	if len(args) > 0 {
		if e, ok := args[0].(*env); ok {
			return e
		}
	}
	return &env{}
}

// withApp opens the application, runs fn and closes it again.
func withApp(ctx context.Context, args []interface{}, fn func(a *internal.App) error) subcommands.ExitStatus {
	a, logger, err := envFrom(args).open(ctx, true)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer func() { _ = logger.Sync() }()

	runErr := fn(a)
	if err := a.Close(); err != nil {
		logger.Error("failed to close", zap.Error(err))
	}
	if runErr != nil {
		fail(runErr)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

// fail prints the user-facing reason next to the error.
func fail(err error) {
	reason := domain.Reason(err)
	if reason == "Unknown error" {
		fmt.Fprintln(os.Stderr, warnStyle.Render("error: "+err.Error()))
		return
	}
	fmt.Fprintln(os.Stderr, warnStyle.Render(reason+": "+err.Error()))
}

// applied treats "changed but not saved" as success with a warning.
func applied(err error) error {
	if err != nil && ledger.IsPersistenceOnly(err) {
		fmt.Fprintln(os.Stderr, warnStyle.Render("warning: "+err.Error()))
		return nil
	}
	return err
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(domain.ErrInvalidAmount, "%q is not a number", s)
	}
	return d, nil
}

type serveCmd struct {
	listen string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API and live dashboard" }
func (*serveCmd) Usage() string {
	return "serve [-listen addr]:\n  Serve the portfolio API until interrupted.\n"
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.listen, "listen", "", "listen address, overrides config")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	e := envFrom(args)
	cfg, err := e.config()
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	if c.listen != "" {
		cfg.ListenAddr = c.listen
	}
	logger, err := e.logger(cfg, false)
	if err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	defer func() { _ = logger.Sync() }()

	a, err := internal.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", zap.Error(err))
		return subcommands.ExitFailure
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		logger.Error("server stopped", zap.Error(err))
		return subcommands.ExitFailure
	}
	logger.Info("shut down")
	return subcommands.ExitSuccess
}

type setupCmd struct {
	out string
}

func (*setupCmd) Name() string     { return "setup" }
func (*setupCmd) Synopsis() string { return "interactive configuration wizard" }
func (*setupCmd) Usage() string {
	return "setup [-out file]:\n  Ask for settings and write a yaml config.\n"
}

func (c *setupCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.out, "out", setup.DefaultPath, "file to write")
}

func (c *setupCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if _, err := setup.RunTUI(c.out); err != nil {
		fail(err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type profileCmd struct {
	name string
	pin  string
	card profile.CardInput
}

func (*profileCmd) Name() string     { return "profile" }
func (*profileCmd) Synopsis() string { return "create, switch, list and delete profiles" }
func (*profileCmd) Usage() string {
	return `profile list
profile create -pin 1234 [-name Name] <email>
profile switch -pin 1234 <email>
profile signout
profile delete <email>
profile card -number N -month MM -year YY -cvv CVV -holder Name <email>
`
}

func (c *profileCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.name, "name", "", "display name (create)")
	f.StringVar(&c.pin, "pin", "", "4-6 digit pin (create, switch)")
	f.StringVar(&c.card.Number, "number", "", "card number (card)")
	f.IntVar(&c.card.ExpiryMonth, "month", 0, "card expiry month (card)")
	f.IntVar(&c.card.ExpiryYear, "year", 0, "card expiry year (card)")
	f.StringVar(&c.card.CVV, "cvv", "", "card security code (card)")
	f.StringVar(&c.card.HolderName, "holder", "", "card holder name (card)")
}

func (c *profileCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() < 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	action, rest := f.Arg(0), f.Args()[1:]
	needsEmail := action != "list" && action != "signout"
	if needsEmail && len(rest) != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}
	email := ""
	if needsEmail {
		email = rest[0]
	}

	return withApp(ctx, args, func(a *internal.App) error {
		switch action {
		case "list":
			fmt.Print(renderProfiles(a.Profiles.List(), a.Profiles.ActiveID()))
		case "create":
			p, err := a.Session.Create(ctx, c.name, email, c.pin)
			if err != nil {
				return err
			}
			fmt.Printf("created %s, now active\n", p.Email)
		case "switch":
			if err := a.Session.Login(ctx, email, c.pin); err != nil {
				return err
			}
			fmt.Printf("switched to %s (%s)\n", a.Profiles.ActiveID(), a.Ledger.BalanceText())
		case "signout":
			if err := a.Session.SignOut(ctx); err != nil {
				return err
			}
			fmt.Println("signed out")
		case "delete":
			if err := a.Session.Delete(ctx, email); err != nil {
				return err
			}
			fmt.Printf("deleted %s and its portfolio\n", email)
		case "card":
			card, err := a.Profiles.AddCard(ctx, email, c.card)
			if err != nil {
				return err
			}
			fmt.Printf("stored %s, expires %s\n", card.Masked(), card.Expiry())
		default:
			return fmt.Errorf("unknown profile action %q", action)
		}
		return nil
	})
}

type chargeCmd struct{}

func (*chargeCmd) Name() string             { return "charge" }
func (*chargeCmd) Synopsis() string         { return "add cash to the balance" }
func (*chargeCmd) Usage() string            { return "charge <amount>\n" }
func (*chargeCmd) SetFlags(_ *flag.FlagSet) {}

func (c *chargeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	return withApp(ctx, args, func(a *internal.App) error {
		amount, err := parseAmount(f.Arg(0))
		if err != nil {
			return err
		}
		if err := applied(a.Ledger.Charge(ctx, amount)); err != nil {
			return err
		}
		fmt.Println("balance " + balanceStyle.Render(a.Ledger.BalanceText()))
		return nil
	})
}

type tradeCmd struct{}

func (*tradeCmd) Name() string             { return "trade" }
func (*tradeCmd) Synopsis() string         { return "buy or sell a coin at the current price" }
func (*tradeCmd) Usage() string            { return "trade <buy|sell> <coin-id> <amount>\n" }
func (*tradeCmd) SetFlags(_ *flag.FlagSet) {}

func (c *tradeCmd) Execute(ctx context.Context, f *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 3 {
		fmt.Fprint(os.Stderr, c.Usage())
		return subcommands.ExitUsageError
	}

	return withApp(ctx, args, func(a *internal.App) error {
		tradeType, err := domain.ParseTradeType(f.Arg(0))
		if err != nil {
			return err
		}
		amount, err := parseAmount(f.Arg(2))
		if err != nil {
			return err
		}
		coin, err := a.Market.Coin(ctx, strings.ToLower(f.Arg(1)))
		if err != nil {
			return err
		}
		if !a.Market.Live() {
			fmt.Fprintln(os.Stderr, mutedStyle.Render("market offline, trading at built-in prices"))
		}

		record, err := a.Ledger.Trade(ctx, coin, tradeType, amount)
		if err := applied(err); err != nil {
			return err
		}
		fmt.Printf("%s for %s, balance %s\n",
			record.String(),
			domain.FormatBalance(record.Total(), a.Config.VsCurrency),
			balanceStyle.Render(a.Ledger.BalanceText()))
		return nil
	})
}

type portfolioCmd struct{}

func (*portfolioCmd) Name() string             { return "portfolio" }
func (*portfolioCmd) Synopsis() string         { return "show balance and holdings" }
func (*portfolioCmd) Usage() string            { return "portfolio\n" }
func (*portfolioCmd) SetFlags(_ *flag.FlagSet) {}

func (*portfolioCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *internal.App) error {
		prices := make(map[string]decimal.Decimal)
		for _, c := range a.Market.Coins(ctx) {
			prices[c.ID] = c.CurrentPrice
		}
		fmt.Print(renderPortfolio(a.Ledger.Key(), a.Ledger.BalanceText(), a.Ledger.Snapshot(), prices, a.Config.VsCurrency, a.Ledger.Stale()))
		return nil
	})
}

type historyCmd struct {
	limit int
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "list trades, newest first" }
func (*historyCmd) Usage() string    { return "history [-n 20]\n" }

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 20, "number of trades to show, 0 for all")
}

func (c *historyCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *internal.App) error {
		fmt.Print(renderHistory(a.Ledger.TradeHistory(), a.Config.VsCurrency, c.limit))
		return nil
	})
}

type resetCmd struct {
	yes bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "empty the active portfolio" }
func (*resetCmd) Usage() string    { return "reset -yes\n" }

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "confirm the reset")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "refusing to reset without -yes")
		return subcommands.ExitUsageError
	}
	return withApp(ctx, args, func(a *internal.App) error {
		if err := applied(a.Ledger.Reset(ctx)); err != nil {
			return err
		}
		fmt.Printf("%s reset\n", a.Ledger.Key())
		return nil
	})
}

type coinsCmd struct {
	sort    string
	reverse bool
	query   string
	list    string
}

func (*coinsCmd) Name() string     { return "coins" }
func (*coinsCmd) Synopsis() string { return "list market prices" }
func (*coinsCmd) Usage() string {
	return "coins [-sort marketCap|price|volume|change24h] [-reverse] [-q text] [-list trending|gainers|losers]\n"
}

func (c *coinsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.sort, "sort", string(market.SortByMarketCap), "sort column")
	f.BoolVar(&c.reverse, "reverse", false, "ascending order")
	f.StringVar(&c.query, "q", "", "filter by name or symbol")
	f.StringVar(&c.list, "list", "", "show a top-10 list instead")
}

func (c *coinsCmd) Execute(ctx context.Context, _ *flag.FlagSet, args ...interface{}) subcommands.ExitStatus {
	return withApp(ctx, args, func(a *internal.App) error {
		var coins []domain.Coin
		switch c.list {
		case "":
			coins = market.SortCoins(a.Market.Search(ctx, c.query), market.ParseSortKey(c.sort), c.reverse)
		case "trending":
			coins = a.Market.Trending(ctx)
		case "gainers":
			coins = a.Market.TopGainers(ctx)
		case "losers":
			coins = a.Market.TopLosers(ctx)
		default:
			return fmt.Errorf("unknown list %q", c.list)
		}
		if !a.Market.Live() {
			fmt.Fprintln(os.Stderr, mutedStyle.Render("market offline, showing built-in prices"))
		}
		fmt.Print(renderCoins(coins, a.Config.VsCurrency))
		return nil
	})
}
