package universe

import (
	"context"
	"errors"
	"testing"

	"github.com/aristath/indextracker/internal/domain"
	testingpkg "github.com/aristath/indextracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	instruments []domain.Instrument
	err         error
	calls       int
}

func (s *stubSource) ListInstruments(ctx context.Context) ([]domain.Instrument, error) {
	s.calls++
	return s.instruments, s.err
}

func newInstrumentRepository(t *testing.T, source InstrumentSource) *InstrumentRepository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "universe")
	t.Cleanup(cleanup)
	return NewInstrumentRepository(db.Conn(), source, zerolog.New(nil).Level(zerolog.Disabled))
}

func TestInstrumentRepository_FindByTicker_RefreshOnMiss(t *testing.T) {
	source := &stubSource{instruments: []domain.Instrument{
		{UID: "uid-sber", FIGI: "BBG004730N88", Ticker: "sber", ISIN: "RU0009029540", Name: "Sberbank", LotSize: 10},
		{UID: "uid-gazp", Ticker: "GAZP", LotSize: 10},
	}}
	repo := newInstrumentRepository(t, source)
	ctx := context.Background()

	inst, err := repo.FindByTicker(ctx, "SBER")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "uid-sber", inst.UID)
	assert.Equal(t, "BBG004730N88", inst.FIGI)
	assert.Equal(t, int64(10), inst.LotSize)
	assert.Equal(t, 1, source.calls)

	// Cached now: no second refresh
	inst, err = repo.FindByTicker(ctx, "gazp")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "uid-gazp", inst.UID)
	assert.Equal(t, 1, source.calls)
}

func TestInstrumentRepository_FindByTicker_Unknown(t *testing.T) {
	source := &stubSource{instruments: []domain.Instrument{{UID: "uid-sber", Ticker: "SBER", LotSize: 10}}}
	repo := newInstrumentRepository(t, source)

	inst, err := repo.FindByTicker(context.Background(), "NOPE")
	require.NoError(t, err)
	assert.Nil(t, inst)
	assert.Equal(t, 1, source.calls)
}

func TestInstrumentRepository_FindByTicker_NoSource(t *testing.T) {
	repo := newInstrumentRepository(t, nil)

	inst, err := repo.FindByTicker(context.Background(), "SBER")
	require.NoError(t, err)
	assert.Nil(t, inst)

	require.NoError(t, repo.Upsert(domain.Instrument{UID: "uid-sber", Ticker: "SBER", LotSize: 10}))

	inst, err = repo.FindByTicker(context.Background(), "SBER")
	require.NoError(t, err)
	require.NotNil(t, inst)
}

func TestInstrumentRepository_SourceError(t *testing.T) {
	repo := newInstrumentRepository(t, &stubSource{err: errors.New("broker down")})

	inst, err := repo.FindByTicker(context.Background(), "SBER")
	assert.Nil(t, inst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestInstrumentRepository_RefreshSkipsInvalid(t *testing.T) {
	source := &stubSource{instruments: []domain.Instrument{
		{UID: "uid-sber", Ticker: "SBER", LotSize: 10},
		{UID: "uid-bad", Ticker: "BAD", LotSize: 0},
		{UID: "uid-empty", Ticker: "", LotSize: 1},
	}}
	repo := newInstrumentRepository(t, source)
	ctx := context.Background()

	stored, err := repo.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stored)

	all, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "SBER", all[0].Ticker)
}

func TestInstrumentRepository_UpsertUpdates(t *testing.T) {
	repo := newInstrumentRepository(t, nil)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(domain.Instrument{UID: "uid-1", Ticker: "VTBR", LotSize: 10000}))
	require.NoError(t, repo.Upsert(domain.Instrument{UID: "uid-2", Ticker: "VTBR", LotSize: 1}))

	inst, err := repo.FindByTicker(ctx, "VTBR")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, "uid-2", inst.UID)
	assert.Equal(t, int64(1), inst.LotSize)

	err = repo.Upsert(domain.Instrument{UID: "uid-3", Ticker: "X", LotSize: 0})
	assert.ErrorIs(t, err, domain.ErrDataInconsistency)

	_, err = repo.Refresh(ctx)
	assert.Error(t, err)
}

func TestInstrumentRepository_IndexSaved(t *testing.T) {
	source := &stubSource{instruments: []domain.Instrument{{UID: "uid-sber", Ticker: "SBER", LotSize: 10}}}
	repo := newInstrumentRepository(t, source)
	ctx := context.Background()

	_, err := repo.Refresh(ctx)
	require.NoError(t, err)

	source.instruments[0].LotSize = 1
	repo.IndexSaved(domain.TargetIndex{Name: "IMOEX"})

	inst, err := repo.FindByTicker(ctx, "SBER")
	require.NoError(t, err)
	require.NotNil(t, inst)
	assert.Equal(t, int64(1), inst.LotSize)
	assert.Equal(t, 2, source.calls)

	// no source: nothing to do
	newInstrumentRepository(t, nil).IndexSaved(domain.TargetIndex{Name: "IMOEX"})
}
