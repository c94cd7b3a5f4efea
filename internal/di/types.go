/**
 * Package di provides dependency injection type definitions.
 *
 * This package defines the Container type which holds all application dependencies.
 * The Container is the single source of truth for all service instances and is
 * passed to the server for access to services.
 */
package di

import (
	"github.com/aristath/indextracker/internal/clientdata"
	"github.com/aristath/indextracker/internal/clients/paper"
	"github.com/aristath/indextracker/internal/database"
	"github.com/aristath/indextracker/internal/modules/portfolio"
	"github.com/aristath/indextracker/internal/modules/rebalancing"
	"github.com/aristath/indextracker/internal/modules/trading"
	"github.com/aristath/indextracker/internal/modules/universe"
)

/**
 * Container holds all dependencies for the application.
 *
 * Architecture:
 * - Databases: universe (index compositions, instruments), ledger (execution journal), cache (index snapshots)
 * - Clients: the paper broker
 * - Repositories: data access layer
 * - Services: rebalancing engine, index cache, portfolio manager
 */
type Container struct {
	// Databases
	UniverseDB *database.DB // Index compositions and instrument metadata
	LedgerDB   *database.DB // Execution journal
	CacheDB    *database.DB // Index snapshots with expiry

	// Clients
	Broker *paper.Broker // Simulated broker (domain.BrokerClient)

	// Repositories
	IndexRepo      *universe.IndexRepository      // Stored index compositions (domain.IndexProvider)
	InstrumentRepo *universe.InstrumentRepository // Instrument metadata (domain.InstrumentResolver)
	TradeRepo      *trading.TradeRepository       // Execution journal
	ClientDataRepo *clientdata.Repository         // Expiring blob cache

	// Services
	Engine     *rebalancing.Engine   // Pure rebalance computation
	IndexCache *portfolio.IndexCache // Per-day index composition cache
	Manager    *portfolio.Manager    // Orchestrator
}

// Databases returns every open database
func (c *Container) Databases() []*database.DB {
	dbs := make([]*database.DB, 0, 3)
	for _, db := range []*database.DB{c.UniverseDB, c.LedgerDB, c.CacheDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes every open database
func (c *Container) Close() {
	for _, db := range c.Databases() {
		_ = db.Close()
	}
}
