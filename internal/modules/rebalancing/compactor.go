package rebalancing

import "github.com/aristath/indextracker/internal/domain"

// Compact merges consecutive same-direction actions per ticker.
//
// For each ticker the most recently emitted action is tracked; a new action in
// the same direction adds its quantity to it, a reversal starts a new one. A
// sell-then-buy on one ticker therefore keeps both legs instead of netting out.
// The input slice is not modified.
func Compact(actions []domain.RebalanceAction) []domain.RebalanceAction {
	compacted := make([]domain.RebalanceAction, 0, len(actions))
	lastEmitted := make(map[string]int, len(actions))

	for _, action := range actions {
		if i, ok := lastEmitted[action.Ticker]; ok && compacted[i].Type == action.Type {
			compacted[i].Quantity += action.Quantity
			continue
		}
		compacted = append(compacted, action)
		lastEmitted[action.Ticker] = len(compacted) - 1
	}

	return compacted
}
