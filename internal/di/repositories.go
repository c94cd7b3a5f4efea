package di

import (
	"github.com/aristath/indextracker/internal/clientdata"
	"github.com/aristath/indextracker/internal/clients/paper"
	"github.com/aristath/indextracker/internal/config"
	"github.com/aristath/indextracker/internal/modules/trading"
	"github.com/aristath/indextracker/internal/modules/universe"
	"github.com/rs/zerolog"
)

// InitializeRepositories creates the broker and every repository.
// The paper broker is the instrument source of the universe.
func InitializeRepositories(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Broker = paper.NewBroker(cfg.Rebalance.Commission, log)

	container.IndexRepo = universe.NewIndexRepository(container.UniverseDB.Conn(), log)
	container.InstrumentRepo = universe.NewInstrumentRepository(container.UniverseDB.Conn(), container.Broker, log)
	container.TradeRepo = trading.NewTradeRepository(container.LedgerDB.Conn(), log)
	container.ClientDataRepo = clientdata.NewRepository(container.CacheDB.Conn())

	log.Info().Msg("Repositories initialized")
	return nil
}
