package rebalancing

import (
	"testing"

	"github.com/aristath/indextracker/internal/domain"
	"github.com/stretchr/testify/assert"
)

func act(t domain.ActionType, ticker string, qty int64) domain.RebalanceAction {
	return domain.RebalanceAction{Type: t, Ticker: ticker, Quantity: qty, LotSize: 1}
}

func TestCompact(t *testing.T) {
	tests := []struct {
		name     string
		input    []domain.RebalanceAction
		expected []domain.RebalanceAction
	}{
		{
			name:     "empty",
			input:    nil,
			expected: []domain.RebalanceAction{},
		},
		{
			name: "reversal boundaries are preserved",
			input: []domain.RebalanceAction{
				act(domain.ActionSell, "A", 1),
				act(domain.ActionSell, "A", 2),
				act(domain.ActionBuy, "A", 1),
				act(domain.ActionSell, "A", 3),
			},
			expected: []domain.RebalanceAction{
				act(domain.ActionSell, "A", 3),
				act(domain.ActionBuy, "A", 1),
				act(domain.ActionSell, "A", 3),
			},
		},
		{
			name: "interleaved tickers merge into first emission",
			input: []domain.RebalanceAction{
				act(domain.ActionBuy, "A", 10),
				act(domain.ActionBuy, "B", 5),
				act(domain.ActionBuy, "A", 10),
				act(domain.ActionBuy, "B", 5),
			},
			expected: []domain.RebalanceAction{
				act(domain.ActionBuy, "A", 20),
				act(domain.ActionBuy, "B", 10),
			},
		},
		{
			name: "sell then buy never nets out",
			input: []domain.RebalanceAction{
				act(domain.ActionSell, "A", 5),
				act(domain.ActionBuy, "A", 5),
			},
			expected: []domain.RebalanceAction{
				act(domain.ActionSell, "A", 5),
				act(domain.ActionBuy, "A", 5),
			},
		},
		{
			name: "reversal on another ticker does not split",
			input: []domain.RebalanceAction{
				act(domain.ActionBuy, "A", 1),
				act(domain.ActionSell, "B", 1),
				act(domain.ActionBuy, "A", 1),
			},
			expected: []domain.RebalanceAction{
				act(domain.ActionBuy, "A", 2),
				act(domain.ActionSell, "B", 1),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Compact(tt.input))
		})
	}
}

func TestCompact_DoesNotModifyInput(t *testing.T) {
	input := []domain.RebalanceAction{
		act(domain.ActionBuy, "A", 1),
		act(domain.ActionBuy, "A", 1),
	}

	Compact(input)

	assert.Equal(t, int64(1), input[0].Quantity)
	assert.Equal(t, int64(1), input[1].Quantity)
}
