package di

import (
	"context"
	"fmt"

	"github.com/aristath/indextracker/internal/clientdata"
	"github.com/aristath/indextracker/internal/config"
	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/modules/portfolio"
	"github.com/aristath/indextracker/internal/modules/rebalancing"
	"github.com/rs/zerolog"
)

// InitializeServices builds the engine, the index cache and the manager, and
// seeds the paper broker from the stored index compositions.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	engine, err := rebalancing.NewEngine(cfg.Engine(), log)
	if err != nil {
		return fmt.Errorf("failed to create rebalancing engine: %w", err)
	}
	container.Engine = engine

	snapshots := clientdata.NewIndexSnapshots(container.ClientDataRepo)
	container.IndexCache = portfolio.NewIndexCache(container.IndexRepo, snapshots, log)

	container.Manager = portfolio.NewManager(
		engine,
		container.Broker,
		container.InstrumentRepo,
		container.IndexCache,
		container.TradeRepo,
		portfolio.ManagerConfig{MaxCash: cfg.Rebalance.MaxCash},
		log,
	)

	if err := seedPaperBroker(container, cfg, log); err != nil {
		return err
	}

	log.Info().Msg("Services initialized")
	return nil
}

// seedPaperBroker registers every stored index constituent as a tradeable
// instrument and opens the paper account.
func seedPaperBroker(container *Container, cfg *config.Config, log zerolog.Logger) error {
	ctx := context.Background()

	summaries, err := container.IndexRepo.List()
	if err != nil {
		return fmt.Errorf("failed to list stored indices: %w", err)
	}
	for _, summary := range summaries {
		index, err := container.IndexRepo.GetIndex(ctx, summary.Name)
		if err != nil {
			return fmt.Errorf("failed to load index %s: %w", summary.Name, err)
		}
		container.Broker.IndexSaved(*index)
	}

	if err := container.Broker.OpenAccount(cfg.Paper.AccountID, "Paper", domain.CashFromFloat(cfg.Paper.InitialCash)); err != nil {
		return fmt.Errorf("failed to open paper account: %w", err)
	}

	count, err := container.InstrumentRepo.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh instruments: %w", err)
	}

	log.Info().
		Int("indices", len(summaries)).
		Int("instruments", count).
		Str("account_id", cfg.Paper.AccountID).
		Float64("initial_cash", cfg.Paper.InitialCash).
		Msg("Paper broker seeded")

	return nil
}
