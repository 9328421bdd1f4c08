package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rustyeddy/fxbroker/broker"
	"github.com/rustyeddy/fxbroker/config"
	"github.com/rustyeddy/fxbroker/feed"
	"github.com/rustyeddy/fxbroker/journal"
	"github.com/rustyeddy/fxbroker/market"
	"github.com/rustyeddy/fxbroker/pricing"
	"github.com/rustyeddy/fxbroker/risk"
	"github.com/rustyeddy/fxbroker/sim"
	"github.com/rustyeddy/fxbroker/store"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the broker engine from a config file",
	Long: `Run the broker engine using settings from a configuration file.

The config file specifies the account, execution quality parameters, risk
limits, rollover boundary, journaling and the tick feed.

Example:
  fxbroker run -f examples/configs/broker.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("Running broker engine with config: %s\n", runConfigPath)
	fmt.Printf("  Account: %s (Balance: $%.2f %s, %gx leverage)\n",
		cfg.Account.ID, cfg.Account.Balance, cfg.Account.Currency, cfg.Account.Leverage)
	fmt.Printf("  Risk: margin call %.0f%% / stop out %.0f%%\n",
		cfg.Risk.MarginCallLevelPct, cfg.Risk.StopOutLevelPct)
	fmt.Println()

	var j journal.Journal
	switch cfg.Journal.Type {
	case "csv":
		j, err = journal.NewCSV(cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	case "sqlite":
		j, err = journal.NewSQLite(cfg.Journal.DBPath)
	default:
		j = journal.Nop{}
	}
	if err != nil {
		return fmt.Errorf("create journal: %w", err)
	}
	defer j.Close()

	delayMin, delayMax, err := cfg.Execution.ParseDelays()
	if err != nil {
		return err
	}
	pricer := pricing.NewEngine(pricing.Config{
		SpreadMultiplier:     cfg.Execution.SpreadMultiplier,
		ReferenceUnits:       cfg.Execution.ReferenceUnits,
		MaxSlippagePips:      cfg.Execution.MaxSlippagePips,
		RequoteThresholdPips: cfg.Execution.RequoteThresholdPips,
		CommissionPerLot:     cfg.Execution.CommissionPerLot,
		DelayMin:             delayMin,
		DelayMax:             delayMax,
	})

	accounts := store.NewMemoryAccounts()
	accounts.Put(broker.Account{
		ID:         cfg.Account.ID,
		Currency:   cfg.Account.Currency,
		Leverage:   cfg.Account.Leverage,
		Balance:    cfg.Account.Balance,
		Equity:     cfg.Account.Balance,
		FreeMargin: cfg.Account.Balance,
	})
	positions := store.NewMemoryPositions()

	policy := risk.Policy{
		MaxOpenPositions:          cfg.Risk.MaxOpenPositions,
		MaxSymbolExposure:         cfg.Risk.MaxSymbolExposure,
		MarginCallLevelPct:        cfg.Risk.MarginCallLevelPct,
		StopOutLevelPct:           cfg.Risk.StopOutLevelPct,
		NegativeBalanceProtection: cfg.Risk.NegativeBalanceProtection,
	}

	engine := sim.NewEngine(accounts, positions, pricer, market.NewCalendar(nil), policy, j)

	src, err := buildFeed(cfg.Feed)
	if err != nil {
		return fmt.Errorf("create feed: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rollover := sim.NewRollover(engine, cfg.Rollover.Hour, cfg.Rollover.Minute)
	go rollover.Run(ctx)

	ticks := make(chan market.Tick, 64)
	feedErr := make(chan error, 1)
	go func() { feedErr <- src.Run(ctx, ticks) }()

	fmt.Println("Engine running. Press Ctrl-C to stop.")

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err := <-feedErr:
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("feed: %w", err)
			}
			break loop
		case tick := <-ticks:
			for _, upd := range engine.ApplyTicks(ctx, []market.Tick{tick}) {
				if upd.Closed {
					fmt.Printf("Closed %s (%s): P/L $%.2f\n", upd.ID, upd.CloseReason, upd.PL)
				}
			}
		}
	}

	acct, err := accounts.Get(context.Background(), cfg.Account.ID)
	if err != nil {
		return err
	}
	fmt.Printf("\nFinal Results:\n")
	fmt.Printf("  Balance: $%.2f\n", acct.Balance)
	fmt.Printf("  Equity: $%.2f\n", acct.Equity)
	fmt.Printf("  Profit/Loss: $%.2f\n", acct.Equity-cfg.Account.Balance)
	if cfg.Journal.Type == "csv" {
		fmt.Printf("\nResults saved to:\n  - %s\n  - %s\n", cfg.Journal.TradesFile, cfg.Journal.EquityFile)
	} else if cfg.Journal.Type == "sqlite" {
		fmt.Printf("\nResults saved to: %s\n", cfg.Journal.DBPath)
	}

	return nil
}

func buildFeed(cfg config.FeedConfig) (feed.Source, error) {
	switch cfg.Type {
	case "synthetic":
		interval, err := cfg.ParseInterval()
		if err != nil {
			return nil, err
		}
		return feed.NewSynthetic(cfg.Starts, interval, cfg.Seed)
	case "ws":
		return feed.NewWS(cfg.URL, cfg.Symbols), nil
	case "replay":
		return feed.NewReplay(cfg.Path), nil
	default:
		return nil, fmt.Errorf("unknown feed type %q", cfg.Type)
	}
}
