// Package portfolio orchestrates rebalancing of brokerage accounts: it feeds
// portfolio and index snapshots to the engine, resolves instruments and submits
// the resulting orders.
package portfolio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/aristath/indextracker/internal/modules/rebalancing"
	"github.com/aristath/indextracker/internal/modules/trading"
	"github.com/aristath/indextracker/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Execution error sources
const (
	SourceValidation = "validation"
	SourceBroker     = "broker"
)

// IndexGetter returns the current composition of a named index
type IndexGetter interface {
	Get(ctx context.Context, name string) (*domain.TargetIndex, error)
}

// TradeJournal records execution outcomes
type TradeJournal interface {
	Create(trade trading.Trade) error
}

// ManagerConfig holds orchestrator settings
type ManagerConfig struct {
	// MaxCash is the free cash threshold: accounts holding this much or less
	// are not rebalanced.
	MaxCash float64
}

// Plan is a computed, not yet executed rebalance
type Plan struct {
	Actions    []domain.Action  `json:"actions"`
	FreeCash   float64          `json:"free_cash"`
	Projected  domain.Portfolio `json:"projected"`
	Iterations int              `json:"iterations"`
}

// RebalanceReport describes one RebalanceAccount run
type RebalanceReport struct {
	AccountID         string                 `json:"account_id"`
	IndexName         string                 `json:"index_name"`
	IndexDate         string                 `json:"index_date,omitempty"`
	FreeCash          float64                `json:"free_cash"`
	Skipped           bool                   `json:"skipped"`
	SkipReason        string                 `json:"skip_reason,omitempty"`
	Actions           []domain.Action        `json:"actions"`
	ProjectedFreeCash float64                `json:"projected_free_cash"`
	Execution         domain.ExecutionReport `json:"execution"`
	StartedAt         time.Time              `json:"started_at"`
	FinishedAt        time.Time              `json:"finished_at"`
}

// Manager is the orchestrator between the engine, the broker and the
// instrument and index sources.
type Manager struct {
	engine   *rebalancing.Engine
	broker   domain.BrokerClient
	resolver domain.InstrumentResolver
	indices  IndexGetter
	journal  TradeJournal
	cfg      ManagerConfig

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	now   func() time.Time
	newID func() string

	log zerolog.Logger
}

// NewManager creates a new orchestrator. journal may be nil.
func NewManager(
	engine *rebalancing.Engine,
	broker domain.BrokerClient,
	resolver domain.InstrumentResolver,
	indices IndexGetter,
	journal TradeJournal,
	cfg ManagerConfig,
	log zerolog.Logger,
) *Manager {
	return &Manager{
		engine:   engine,
		broker:   broker,
		resolver: resolver,
		indices:  indices,
		journal:  journal,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
		now:      time.Now,
		newID:    uuid.NewString,
		log:      log.With().Str("service", "portfolio_manager").Logger(),
	}
}

// Accounts lists the broker accounts
func (m *Manager) Accounts(ctx context.Context) ([]domain.BrokerAccount, error) {
	accounts, err := m.broker.GetAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get accounts: %w", err)
	}
	return accounts, nil
}

// Portfolio returns the current snapshot of an account
func (m *Manager) Portfolio(ctx context.Context, accountID string) (*domain.Portfolio, error) {
	portfolio, err := m.broker.GetPortfolio(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio of %s: %w", accountID, err)
	}
	return portfolio, nil
}

// Index returns the current composition of an index through the cache
func (m *Manager) Index(ctx context.Context, name string) (*domain.TargetIndex, error) {
	return m.indices.Get(ctx, name)
}

// Plan runs the engine and enriches its actions with instrument metadata
func (m *Manager) Plan(ctx context.Context, portfolio domain.Portfolio, index domain.TargetIndex) (*Plan, error) {
	defer utils.OperationTimer("rebalance_plan", m.log)()

	result, err := m.engine.Calculate(portfolio, index)
	if err != nil {
		return nil, err
	}

	actions := make([]domain.Action, 0, len(result.Actions))
	for _, raw := range result.Actions {
		action, err := m.resolve(ctx, raw)
		if err != nil {
			return nil, err
		}
		actions = append(actions, action)
	}

	return &Plan{
		Actions:    actions,
		FreeCash:   result.FreeCash,
		Projected:  result.Projected,
		Iterations: result.Iterations,
	}, nil
}

// ComputeActions returns the enriched rebalance actions and the projected free cash.
// A ticker the resolver does not know fails the whole computation.
func (m *Manager) ComputeActions(ctx context.Context, portfolio domain.Portfolio, index domain.TargetIndex) ([]domain.Action, float64, error) {
	plan, err := m.Plan(ctx, portfolio, index)
	if err != nil {
		return nil, 0, err
	}
	return plan.Actions, plan.FreeCash, nil
}

func (m *Manager) resolve(ctx context.Context, raw domain.RebalanceAction) (domain.Action, error) {
	instrument, err := m.resolver.FindByTicker(ctx, raw.Ticker)
	if err != nil {
		return domain.Action{}, fmt.Errorf("failed to resolve instrument %s: %w", raw.Ticker, err)
	}
	if instrument == nil {
		return domain.Action{}, fmt.Errorf("%w: %w: %s", domain.ErrUnknownInstrument, domain.ErrDataInconsistency, raw.Ticker)
	}
	if instrument.LotSize != raw.LotSize {
		return domain.Action{}, fmt.Errorf("%w: %s: broker lot size %d differs from %d",
			domain.ErrDataInconsistency, raw.Ticker, instrument.LotSize, raw.LotSize)
	}

	return domain.Action{
		Type:       raw.Type,
		Quantity:   raw.Quantity,
		Instrument: *instrument,
	}, nil
}

// ExecuteActions submits each action as its own market order. A failed action
// never stops the ones after it.
func (m *Manager) ExecuteActions(ctx context.Context, accountID string, actions []domain.Action) domain.ExecutionReport {
	return m.execute(ctx, accountID, actions, trading.SourceAPI)
}

func (m *Manager) execute(ctx context.Context, accountID string, actions []domain.Action, source string) domain.ExecutionReport {
	report := domain.ExecutionReport{
		Succeeded: make([]domain.Action, 0, len(actions)),
		Failed:    make([]*domain.ExecutionError, 0),
	}

	for _, action := range actions {
		if err := action.Validate(); err != nil {
			report.Failed = append(report.Failed, &domain.ExecutionError{
				Action:      action,
				Source:      SourceValidation,
				Description: err.Error(),
				Cause:       err,
			})
			m.log.Warn().Err(err).Str("account_id", accountID).Msg("Rejected invalid action")
			continue
		}

		order := domain.OrderRequestFromAction(m.newID(), action)
		result, err := m.broker.PlaceOrder(ctx, accountID, order)
		if err == nil && result == nil {
			err = errors.New("broker returned no order result")
		}
		if err != nil {
			report.Failed = append(report.Failed, &domain.ExecutionError{
				Action:      action,
				Source:      SourceBroker,
				Description: err.Error(),
				Cause:       err,
			})
			m.record(trading.NewFailedTrade(accountID, source, order, err, m.now()))
			m.log.Error().
				Err(err).
				Str("account_id", accountID).
				Str("ticker", action.Instrument.Ticker).
				Str("side", string(action.Type)).
				Int64("quantity", action.Quantity).
				Msg("Order failed")
			continue
		}

		report.Succeeded = append(report.Succeeded, action)
		m.record(trading.NewFilledTrade(accountID, source, order, result, m.now()))
		m.log.Info().
			Str("account_id", accountID).
			Str("order_id", result.OrderID).
			Str("ticker", action.Instrument.Ticker).
			Str("side", string(action.Type)).
			Int64("quantity", action.Quantity).
			Float64("price", result.Price).
			Msg("Order placed")
	}

	return report
}

func (m *Manager) record(trade trading.Trade) {
	if m.journal == nil {
		return
	}
	if err := m.journal.Create(trade); err != nil {
		m.log.Warn().Err(err).Str("order_id", trade.OrderID).Msg("Failed to journal trade")
	}
}

// sellsFirst orders SELL actions ahead of BUY actions, keeping the relative
// order within each side, so the cash a buy relies on is raised before it.
func sellsFirst(actions []domain.Action) []domain.Action {
	ordered := make([]domain.Action, 0, len(actions))
	for _, action := range actions {
		if action.Type == domain.ActionSell {
			ordered = append(ordered, action)
		}
	}
	for _, action := range actions {
		if action.Type != domain.ActionSell {
			ordered = append(ordered, action)
		}
	}
	return ordered
}

func (m *Manager) accountLock(accountID string) *sync.Mutex {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()

	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

// RebalanceAccount brings one account in line with an index: fetch the
// portfolio, compute, execute. Runs on the same account are serialized.
func (m *Manager) RebalanceAccount(ctx context.Context, accountID, indexName string) (*RebalanceReport, error) {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	defer utils.NewTimer("rebalance_account", m.log.With().Str("account_id", accountID).Logger()).
		WithThreshold(30 * time.Second).
		Stop()

	report := &RebalanceReport{
		AccountID: accountID,
		IndexName: utils.NormalizeSymbol(indexName),
		Actions:   []domain.Action{},
		StartedAt: m.now(),
	}

	portfolio, err := m.Portfolio(ctx, accountID)
	if err != nil {
		return nil, err
	}
	report.FreeCash = portfolio.FreeCash.Float64()

	if report.FreeCash <= m.cfg.MaxCash {
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("free cash %.2f does not exceed %.2f", report.FreeCash, m.cfg.MaxCash)
		report.ProjectedFreeCash = report.FreeCash
		report.FinishedAt = m.now()
		m.log.Info().
			Str("account_id", accountID).
			Float64("free_cash", report.FreeCash).
			Float64("max_cash", m.cfg.MaxCash).
			Msg("Rebalance skipped")
		return report, nil
	}

	index, err := m.indices.Get(ctx, indexName)
	if err != nil {
		return nil, err
	}
	report.IndexDate = index.Date

	plan, err := m.Plan(ctx, *portfolio, *index)
	if err != nil {
		return nil, fmt.Errorf("failed to compute rebalance of %s: %w", accountID, err)
	}
	report.Actions = sellsFirst(plan.Actions)
	report.ProjectedFreeCash = plan.FreeCash

	report.Execution = m.execute(ctx, accountID, report.Actions, trading.SourceRebalance)
	report.FinishedAt = m.now()

	m.log.Info().
		Str("account_id", accountID).
		Str("index", report.IndexName).
		Int("actions", len(plan.Actions)).
		Int("succeeded", len(report.Execution.Succeeded)).
		Int("failed", len(report.Execution.Failed)).
		Float64("projected_free_cash", plan.FreeCash).
		Msg("Rebalance finished")

	return report, nil
}
