package testing

import (
	"github.com/aristath/indextracker/internal/domain"
)

// FixtureIndexDate is the composition date of NewIndexFixture
const FixtureIndexDate = "2026-10-19"

// NewIndexFixture returns a two-constituent IMOEX composition:
// SBER 60% (lot 10 at 250) and GAZP 40% (lot 10 at 160).
func NewIndexFixture() domain.TargetIndex {
	return domain.TargetIndex{
		Name: "IMOEX",
		Date: FixtureIndexDate,
		Constituents: []domain.IndexConstituent{
			{Ticker: "SBER", ShortName: "Sberbank", Weight: 60, LotSize: 10, LastPrice: 250},
			{Ticker: "GAZP", ShortName: "Gazprom", Weight: 40, LotSize: 10, LastPrice: 160},
		},
	}
}
