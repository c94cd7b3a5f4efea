package domain

import (
	"fmt"
	"strings"
)

// ActionType is the direction of a rebalancing action
type ActionType string

const (
	ActionBuy  ActionType = "BUY"
	ActionSell ActionType = "SELL"
)

// IsValid checks if the action type is valid
func (t ActionType) IsValid() bool {
	return t == ActionBuy || t == ActionSell
}

// ActionTypeFromString parses an action type (case-insensitive)
func ActionTypeFromString(value string) (ActionType, error) {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "BUY":
		return ActionBuy, nil
	case "SELL":
		return ActionSell, nil
	default:
		return "", fmt.Errorf("invalid action type: %q", value)
	}
}

// RebalanceAction is a raw engine decision. Quantity is in shares
// (lots * lot size) for both directions.
type RebalanceAction struct {
	Type     ActionType `json:"type"`
	Ticker   string     `json:"ticker"`
	Quantity int64      `json:"quantity"`
	LotSize  int64      `json:"lot_size"`
}

func (a RebalanceAction) String() string {
	return fmt.Sprintf("%s %s %d", a.Type, a.Ticker, a.Quantity)
}

// Action is a rebalance action enriched with instrument metadata.
// Quantity is in shares.
type Action struct {
	Type       ActionType `json:"type"`
	Quantity   int64      `json:"quantity"`
	Instrument Instrument `json:"instrument"`
}

// Lots returns the quantity expressed in whole lots
func (a Action) Lots() int64 {
	if a.Instrument.LotSize < 1 {
		return a.Quantity
	}
	return a.Quantity / a.Instrument.LotSize
}

// Validate checks that an action can be submitted
func (a Action) Validate() error {
	if !a.Type.IsValid() {
		return fmt.Errorf("%w: invalid action type %q", ErrDataInconsistency, a.Type)
	}
	if err := a.Instrument.Validate(); err != nil {
		return err
	}
	if a.Quantity <= 0 {
		return fmt.Errorf("%w: %s %s: quantity %d must be positive", ErrDataInconsistency, a.Type, a.Instrument.Ticker, a.Quantity)
	}
	if a.Quantity%a.Instrument.LotSize != 0 {
		return fmt.Errorf("%w: %s %s: quantity %d is not a multiple of lot size %d",
			ErrDataInconsistency, a.Type, a.Instrument.Ticker, a.Quantity, a.Instrument.LotSize)
	}
	return nil
}

// ExecutionError is a failed order submission for one action.
type ExecutionError struct {
	Action      Action `json:"action"`
	Source      string `json:"source"`
	Description string `json:"description"`
	Cause       error  `json:"-"`
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("%s: %s %d %s: %s", e.Source, e.Action.Type, e.Action.Quantity, e.Action.Instrument.Ticker, e.Description)
}

// Unwrap exposes the underlying cause
func (e *ExecutionError) Unwrap() error {
	return e.Cause
}

// Is makes every ExecutionError match ErrExecution
func (e *ExecutionError) Is(target error) bool {
	return target == ErrExecution
}

// ExecutionReport collects per-action outcomes of a batch submission.
type ExecutionReport struct {
	Succeeded []Action          `json:"succeeded"`
	Failed    []*ExecutionError `json:"failed"`
}

// HasFailures reports whether any action failed
func (r ExecutionReport) HasFailures() bool {
	return len(r.Failed) > 0
}
