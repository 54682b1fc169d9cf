package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/yourname/dolgi-bot/internal/bot"
	"github.com/yourname/dolgi-bot/internal/config"
	"github.com/yourname/dolgi-bot/internal/db"
	"github.com/yourname/dolgi-bot/internal/jobs"
	"github.com/yourname/dolgi-bot/internal/ledger"
	"github.com/yourname/dolgi-bot/internal/logging"
	"github.com/yourname/dolgi-bot/internal/memstore"
	"github.com/yourname/dolgi-bot/internal/parser"
	"github.com/yourname/dolgi-bot/internal/repo"
)

const version = "0.2.0"

func main() {
	app := &cli.App{
		Name:    "dolgi-bot",
		Usage:   "Telegram bot that keeps track of who owes whom",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Load configuration from `FILE`",
				EnvVars: []string{"DOLGI_CONFIG"},
			},
		},
		Action: runBot,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Start the bot (default)",
				Action: runBot,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: runMigrate,
			},
			{
				Name:      "parse",
				Usage:     "Show how a message would be recorded, without touching any storage",
				ArgsUsage: "<message>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "author", Usage: "message author `HANDLE`", Required: true},
				},
				Action: runParse,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	if err := logging.Setup(cfg.Log); err != nil {
		return nil, fmt.Errorf("log config: %w", err)
	}
	return cfg, nil
}

type userStore interface {
	bot.Accounts
	jobs.RegisteredLister
}

type trustStore interface {
	ledger.TrustDirectory
	bot.TrustBook
}

// storage is one of the two backends: PostgreSQL or process memory.
type storage struct {
	users    userStore
	trust    trustStore
	debts    ledger.DebtStore
	payments ledger.PaymentStore
	tx       ledger.Transactor
	locker   ledger.Locker
	pool     *pgxpool.Pool
}

func openStorage(ctx context.Context, cfg *config.Config) (*storage, error) {
	if cfg.Database.Driver == config.DriverMemory {
		log.Warn().Msg("using in-memory storage, data is lost on restart")
		mem := memstore.New()
		return &storage{
			users:    mem.Users(),
			trust:    mem.Trust(),
			debts:    mem.Debts(),
			payments: mem.Payments(),
			tx:       ledger.NopTransactor{},
			locker:   ledger.NewMutexLocker(),
		}, nil
	}

	pool, err := db.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if cfg.Database.Migrate {
		if err := migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}
	return &storage{
		users:    repo.NewUsers(pool),
		trust:    repo.NewTrust(pool),
		debts:    repo.NewDebts(pool),
		payments: repo.NewPayments(pool),
		tx:       db.NewTransactor(pool),
		locker:   repo.NewAdvisoryLocker(pool),
		pool:     pool,
	}, nil
}

func (s *storage) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if err := db.ApplyMigrations(ctx, pool, db.Migrations()); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	return jobs.Migrate(ctx, pool)
}

func runBot(c *cli.Context) error {
	cfg := config.MustLoad(c.String("config"))
	if err := logging.Setup(cfg.Log); err != nil {
		return fmt.Errorf("log config: %w", err)
	}

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return fmt.Errorf("bot init: %w", err)
	}
	botAPI.Debug = cfg.Telegram.Debug

	opts := []ledger.Option{
		ledger.WithTransactor(st.tx),
		ledger.WithLocker(st.locker),
		ledger.WithStaleAfter(cfg.Ledger.StaleAfter),
	}
	svc := ledger.NewService(st.users, st.trust, st.debts, st.payments, opts...)
	payments := ledger.NewPayments(st.debts, st.payments, opts...)

	notifier := bot.NewNotifier(botAPI, st.users, svc, cfg.Telegram.RateLimit)
	h := bot.NewHandler(botAPI, st.users, st.trust, svc, payments, notifier)

	sweeper := jobs.NewSweeper(st.debts, svc, notifier)
	summaries := jobs.NewSummaries(st.users, notifier)
	if st.pool != nil {
		queue, err := jobs.NewQueue(st.pool, cfg.Jobs, sweeper, summaries)
		if err != nil {
			return err
		}
		if err := queue.Start(ctx); err != nil {
			return fmt.Errorf("start job queue: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := queue.Stop(stopCtx); err != nil {
				log.Error().Err(err).Msg("stop job queue")
			}
		}()
	} else {
		go jobs.RunTicker(ctx, jobs.StaleSweepArgs{}.Kind(), cfg.Jobs.SweepInterval, sweeper.Run)
		go jobs.RunTicker(ctx, jobs.WeeklySummaryArgs{}.Kind(), cfg.Jobs.SummaryInterval, summaries.Run)
	}

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.Telegram.PollTimeout
	updates := botAPI.GetUpdatesChan(u)

	log.Info().
		Str("bot", botAPI.Self.UserName).
		Str("driver", cfg.Database.Driver).
		Dur("stale_after", svc.StaleAfter()).
		Msg("bot started")

	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			log.Info().Msg("shutdown")
			return nil
		case upd := <-updates:
			h.HandleUpdate(ctx, upd)
		}
	}
}

func runMigrate(c *cli.Context) error {
	cfg, err := setup(c)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	pool := db.MustConnect(c.Context, cfg.Database.URL)
	defer pool.Close()
	return migrate(c.Context, pool)
}

func runParse(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("message is required")
	}
	debts, err := parser.Parse(c.Args().First(), c.String("author"))
	if err != nil {
		return err
	}
	for _, d := range debts {
		fmt.Fprintf(c.App.Writer, "@%s\t%s\t%s\n", d.Debtor, decimal.New(d.AmountCents, -2).StringFixed(2), d.Comment())
	}
	return nil
}
