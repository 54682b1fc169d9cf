package jobs

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"github.com/rs/zerolog/log"

	"github.com/yourname/dolgi-bot/internal/config"
)

type StaleSweepArgs struct{}

func (StaleSweepArgs) Kind() string { return "stale_debt_sweep" }

type WeeklySummaryArgs struct{}

func (WeeklySummaryArgs) Kind() string { return "weekly_summary" }

type StaleSweepWorker struct {
	river.WorkerDefaults[StaleSweepArgs]
	sweeper *Sweeper
}

func (w *StaleSweepWorker) Work(ctx context.Context, job *river.Job[StaleSweepArgs]) error {
	ctx = log.With().Str("job", StaleSweepArgs{}.Kind()).Logger().WithContext(ctx)
	_, err := w.sweeper.Run(ctx)
	return err
}

type WeeklySummaryWorker struct {
	river.WorkerDefaults[WeeklySummaryArgs]
	summaries *Summaries
}

func (w *WeeklySummaryWorker) Work(ctx context.Context, job *river.Job[WeeklySummaryArgs]) error {
	ctx = log.With().Str("job", WeeklySummaryArgs{}.Kind()).Logger().WithContext(ctx)
	_, err := w.summaries.Run(ctx)
	return err
}

// Queue schedules the periodic jobs on River so that only one bot replica
// runs each of them.
type Queue struct {
	client *river.Client[pgx.Tx]
}

// Migrate brings River's own tables up to date.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	res, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil)
	if err != nil {
		return fmt.Errorf("migrate river: %w", err)
	}
	for _, v := range res.Versions {
		log.Info().Int("version", v.Version).Msg("river migration applied")
	}
	return nil
}

func NewQueue(pool *pgxpool.Pool, cfg config.Jobs, sweeper *Sweeper, summaries *Summaries) (*Queue, error) {
	workers := river.NewWorkers()
	river.AddWorker(workers, &StaleSweepWorker{sweeper: sweeper})
	river.AddWorker(workers, &WeeklySummaryWorker{summaries: summaries})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers:      workers,
		PeriodicJobs: periodicJobs(cfg),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}
	return &Queue{client: client}, nil
}

func periodicJobs(cfg config.Jobs) []*river.PeriodicJob {
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) { return StaleSweepArgs{}, nil },
			&river.PeriodicJobOpts{RunOnStart: true},
		),
		river.NewPeriodicJob(
			river.PeriodicInterval(cfg.SummaryInterval),
			func() (river.JobArgs, *river.InsertOpts) { return WeeklySummaryArgs{}, nil },
			nil,
		),
	}
}

func (q *Queue) Start(ctx context.Context) error { return q.client.Start(ctx) }

func (q *Queue) Stop(ctx context.Context) error { return q.client.Stop(ctx) }
