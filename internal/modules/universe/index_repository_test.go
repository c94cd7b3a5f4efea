package universe

import (
	"context"
	"testing"

	"github.com/aristath/indextracker/internal/domain"
	testingpkg "github.com/aristath/indextracker/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIndexRepository(t *testing.T) *IndexRepository {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "universe")
	t.Cleanup(cleanup)
	return NewIndexRepository(db.Conn(), zerolog.New(nil).Level(zerolog.Disabled))
}

func sampleIndex() domain.TargetIndex {
	return domain.TargetIndex{
		Name: "imoex",
		Date: "2024-03-01",
		Constituents: []domain.IndexConstituent{
			{Ticker: "SBER", ShortName: "Sberbank", ISIN: "RU0009029540", Weight: 14.5, LotSize: 10, LastPrice: 280.5},
			{Ticker: "GAZP", ShortName: "Gazprom", Weight: 12.1, LotSize: 10, LastPrice: 160.2},
			{Ticker: "AFLT", Weight: 0, LotSize: 10, LastPrice: 45.1},
		},
	}
}

func TestIndexRepository_SaveAndGet(t *testing.T) {
	repo := newIndexRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(sampleIndex()))

	index, err := repo.GetIndex(ctx, "IMOEX")
	require.NoError(t, err)
	require.NotNil(t, index)

	assert.Equal(t, "IMOEX", index.Name)
	assert.Equal(t, "2024-03-01", index.Date)
	require.Len(t, index.Constituents, 3)

	// Published order is preserved
	assert.Equal(t, "SBER", index.Constituents[0].Ticker)
	assert.Equal(t, "GAZP", index.Constituents[1].Ticker)
	assert.Equal(t, "AFLT", index.Constituents[2].Ticker)

	assert.Equal(t, sampleIndex().Constituents[0], index.Constituents[0])
	assert.Equal(t, "", index.Constituents[1].ISIN)
}

func TestIndexRepository_SaveReplacesComposition(t *testing.T) {
	repo := newIndexRepository(t)
	ctx := context.Background()

	require.NoError(t, repo.Save(sampleIndex()))

	updated := domain.TargetIndex{
		Name: "IMOEX",
		Date: "2024-04-01",
		Constituents: []domain.IndexConstituent{
			{Ticker: "LKOH", Weight: 100, LotSize: 1, LastPrice: 7000},
		},
	}
	require.NoError(t, repo.Save(updated))

	index, err := repo.GetIndex(ctx, "imoex")
	require.NoError(t, err)
	assert.Equal(t, "2024-04-01", index.Date)
	require.Len(t, index.Constituents, 1)
	assert.Equal(t, "LKOH", index.Constituents[0].Ticker)
}

func TestIndexRepository_SaveRejectsInvalid(t *testing.T) {
	repo := newIndexRepository(t)

	tests := []struct {
		name   string
		mutate func(*domain.TargetIndex)
	}{
		{"empty name", func(i *domain.TargetIndex) { i.Name = " " }},
		{"bad date", func(i *domain.TargetIndex) { i.Date = "01.03.2024" }},
		{"negative price", func(i *domain.TargetIndex) { i.Constituents[0].LastPrice = -1 }},
		{"weight above 100", func(i *domain.TargetIndex) { i.Constituents[0].Weight = 101 }},
		{"duplicate ticker", func(i *domain.TargetIndex) { i.Constituents[1].Ticker = "SBER" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			index := sampleIndex()
			tt.mutate(&index)
			err := repo.Save(index)
			assert.ErrorIs(t, err, domain.ErrDataInconsistency)
		})
	}

	summaries, err := repo.List()
	require.NoError(t, err)
	assert.Empty(t, summaries)
}

func TestIndexRepository_GetUnknown(t *testing.T) {
	repo := newIndexRepository(t)

	index, err := repo.GetIndex(context.Background(), "MISSING")
	assert.Nil(t, index)
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestIndexRepository_ListAndDelete(t *testing.T) {
	repo := newIndexRepository(t)

	require.NoError(t, repo.Save(sampleIndex()))
	require.NoError(t, repo.Save(domain.TargetIndex{
		Name:         "MOEXBC",
		Date:         "2024-03-01",
		Constituents: []domain.IndexConstituent{{Ticker: "SBER", Weight: 100, LotSize: 10, LastPrice: 280}},
	}))

	summaries, err := repo.List()
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	assert.Equal(t, "IMOEX", summaries[0].Name)
	assert.Equal(t, 3, summaries[0].Constituents)
	assert.Equal(t, "MOEXBC", summaries[1].Name)
	assert.Equal(t, 1, summaries[1].Constituents)

	require.NoError(t, repo.Delete("imoex"))
	require.NoError(t, repo.Delete("never-existed"))

	_, err = repo.GetIndex(context.Background(), "IMOEX")
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)

	summaries, err = repo.List()
	require.NoError(t, err)
	assert.Len(t, summaries, 1)
}
