package models

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

// Direction of the cross-chain flow
type Direction string

const (
	DirectionEvmToSui Direction = "evm_to_sui"
	DirectionSuiToEvm Direction = "sui_to_evm"
)

func (d Direction) Valid() bool {
	return d == DirectionEvmToSui || d == DirectionSuiToEvm
}

func (d *Direction) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return errors.Wrap(err, "direction must be a string")
	}

	// accept the CamelCase spelling used by older clients
	switch raw {
	case "EvmToSui":
		raw = string(DirectionEvmToSui)
	case "SuiToEvm":
		raw = string(DirectionSuiToEvm)
	}

	dir := Direction(raw)
	if !dir.Valid() {
		return errors.Errorf("invalid direction %q", raw)
	}

	*d = dir
	return nil
}

// IntentStatus represents the possible states of an intent
type IntentStatus string

const (
	IntentStatusPending         IntentStatus = "pending"
	IntentStatusSwapCompleted   IntentStatus = "swap_completed"
	IntentStatusBridging        IntentStatus = "bridging"
	IntentStatusBridgeCompleted IntentStatus = "bridge_completed"
	IntentStatusDeposited       IntentStatus = "deposited"
	IntentStatusCompleted       IntentStatus = "completed"
	IntentStatusFailed          IntentStatus = "failed"
	IntentStatusCancelled       IntentStatus = "cancelled"
)

// AllIntentStatuses is used for validation of list filters and metrics labels
var AllIntentStatuses = []IntentStatus{
	IntentStatusPending,
	IntentStatusSwapCompleted,
	IntentStatusBridging,
	IntentStatusBridgeCompleted,
	IntentStatusDeposited,
	IntentStatusCompleted,
	IntentStatusFailed,
	IntentStatusCancelled,
}

// happy paths per direction, in order
var statusPaths = map[Direction][]IntentStatus{
	DirectionEvmToSui: {
		IntentStatusPending,
		IntentStatusSwapCompleted,
		IntentStatusBridging,
		IntentStatusBridgeCompleted,
		IntentStatusDeposited,
		IntentStatusCompleted,
	},
	DirectionSuiToEvm: {
		IntentStatusPending,
		IntentStatusBridging,
		IntentStatusBridgeCompleted,
		IntentStatusSwapCompleted,
		IntentStatusCompleted,
	},
}

func (s IntentStatus) Valid() bool {
	for _, status := range AllIntentStatuses {
		if status == s {
			return true
		}
	}
	return false
}

func (s IntentStatus) IsTerminal() bool {
	return s == IntentStatusCompleted || s == IntentStatusFailed || s == IntentStatusCancelled
}

// CanTransition reports whether an intent of the given direction may move from s to next.
// Steps only move forward along the direction's path. The SuiToEvm solver swap is optional.
func (s IntentStatus) CanTransition(direction Direction, next IntentStatus) bool {
	if s.IsTerminal() || s == next {
		return false
	}

	switch next {
	case IntentStatusFailed:
		return true
	case IntentStatusCancelled:
		return s == IntentStatusPending
	}

	path, ok := statusPaths[direction]
	if !ok {
		return false
	}

	from, to := indexOf(path, s), indexOf(path, next)
	if from < 0 || to < 0 {
		return false
	}

	if to == from+1 {
		return true
	}

	return direction == DirectionSuiToEvm &&
		s == IntentStatusBridgeCompleted &&
		next == IntentStatusCompleted
}

func indexOf(path []IntentStatus, s IntentStatus) int {
	for i, status := range path {
		if status == s {
			return i
		}
	}
	return -1
}

// HookIntentStatus maps the numeric status stored by the EVM hook contract
func HookIntentStatus(raw uint8) IntentStatus {
	switch raw {
	case 1:
		return IntentStatusSwapCompleted
	case 2:
		return IntentStatusBridging
	case 3:
		return IntentStatusCompleted
	case 4:
		return IntentStatusFailed
	case 5:
		return IntentStatusCancelled
	default:
		return IntentStatusPending
	}
}

// Intent represents a cross-chain yield intent
type Intent struct {
	ID            string         `json:"id"`
	Direction     Direction      `json:"direction"`
	Status        IntentStatus   `json:"status"`
	SourceAddress string         `json:"source_address"`
	DestAddress   string         `json:"dest_address"`
	EvmChain      EvmChain       `json:"evm_chain"`
	InputToken    string         `json:"input_token"`
	InputAmount   string         `json:"input_amount"`
	USDCAmount    string         `json:"usdc_amount,omitempty"`
	MinAPYBps     int64          `json:"min_apy_bps"`
	Strategy      *YieldStrategy `json:"strategy,omitempty"`
	BridgeNonce   string         `json:"bridge_nonce,omitempty"`
	SwapTxHash    string         `json:"swap_tx_hash,omitempty"`
	BridgeTxHash  string         `json:"bridge_tx_hash,omitempty"`
	DestTxHash    string         `json:"dest_tx_hash,omitempty"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	// Version counts stored writes, see db.UpdateIntent
	Version int64 `json:"-"`
}

// NewEvmToSuiIntent creates a pending EVM -> Sui intent. A strategy is mandatory.
func NewEvmToSuiIntent(
	id, source, dest string,
	chain EvmChain,
	inputToken, inputAmount string,
	strategy *YieldStrategy,
) (*Intent, error) {
	if strategy == nil {
		return nil, ErrStrategyRequired
	}

	return newIntent(id, DirectionEvmToSui, source, dest, chain, inputToken, inputAmount, strategy), nil
}

// NewSuiToEvmIntent creates a pending Sui -> EVM intent. The input is USDC on Sui.
func NewSuiToEvmIntent(id, source, dest string, chain EvmChain, inputToken, inputAmount string) *Intent {
	intent := newIntent(id, DirectionSuiToEvm, source, dest, chain, inputToken, inputAmount, nil)
	intent.USDCAmount = inputAmount

	return intent
}

func newIntent(
	id string,
	direction Direction,
	source, dest string,
	chain EvmChain,
	inputToken, inputAmount string,
	strategy *YieldStrategy,
) *Intent {
	now := time.Now().UTC()

	return &Intent{
		ID:            id,
		Direction:     direction,
		Status:        IntentStatusPending,
		SourceAddress: source,
		DestAddress:   dest,
		EvmChain:      chain,
		InputToken:    inputToken,
		InputAmount:   inputAmount,
		Strategy:      strategy,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Transition moves the intent to next, enforcing the status machine.
func (e *Intent) Transition(next IntentStatus) error {
	if !e.Status.CanTransition(e.Direction, next) {
		return &InvalidStateError{
			Expected: "a status preceding " + string(next),
			Actual:   string(e.Status),
		}
	}

	e.Status = next
	e.UpdatedAt = time.Now().UTC()

	return nil
}

// Fail marks the intent failed unless it already reached a terminal state
func (e *Intent) Fail(reason error) {
	if e.Status.IsTerminal() {
		return
	}

	e.Status = IntentStatusFailed
	e.ErrorMessage = reason.Error()
	e.UpdatedAt = time.Now().UTC()
}

// SourceChainName returns the chain funds leave from
func (e *Intent) SourceChainName() string {
	if e.Direction == DirectionSuiToEvm {
		return "sui"
	}
	return string(e.EvmChain)
}

// DestChainName returns the chain funds arrive on
func (e *Intent) DestChainName() string {
	if e.Direction == DirectionSuiToEvm {
		return string(e.EvmChain)
	}
	return "sui"
}

// ToResponse converts an Intent to an IntentResponse
func (e *Intent) ToResponse() *IntentResponse {
	res := &IntentResponse{
		ID:            e.ID,
		Direction:     string(e.Direction),
		Status:        string(e.Status),
		SourceAddress: e.SourceAddress,
		DestAddress:   e.DestAddress,
		EvmChain:      string(e.EvmChain),
		InputToken:    e.InputToken,
		InputAmount:   e.InputAmount,
		MinAPYBps:     e.MinAPYBps,
		BridgeNonce:   e.BridgeNonce,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}

	if e.Strategy != nil {
		res.Strategy = e.Strategy.Name()
		res.StrategyID = e.Strategy.ID()
	}

	return res
}

// ToStatusResponse converts an Intent to an IntentStatusResponse
func (e *Intent) ToStatusResponse() *IntentStatusResponse {
	return &IntentStatusResponse{
		ID:           e.ID,
		Status:       string(e.Status),
		SwapTxHash:   e.SwapTxHash,
		BridgeTxHash: e.BridgeTxHash,
		BridgeNonce:  e.BridgeNonce,
		DestTxHash:   e.DestTxHash,
		ErrorMessage: e.ErrorMessage,
		UpdatedAt:    e.UpdatedAt,
	}
}

// IntentResponse represents the response format for an intent
type IntentResponse struct {
	ID            string    `json:"id"`
	Direction     string    `json:"direction"`
	Status        string    `json:"status"`
	SourceAddress string    `json:"source_address"`
	DestAddress   string    `json:"dest_address"`
	EvmChain      string    `json:"evm_chain"`
	InputToken    string    `json:"input_token"`
	InputAmount   string    `json:"input_amount"`
	MinAPYBps     int64     `json:"min_apy_bps"`
	Strategy      string    `json:"strategy,omitempty"`
	StrategyID    uint8     `json:"strategy_id,omitempty"`
	BridgeNonce   string    `json:"bridge_nonce,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// IntentStatusResponse exposes the per-step transaction trail of an intent
type IntentStatusResponse struct {
	ID           string    `json:"id"`
	Status       string    `json:"status"`
	SwapTxHash   string    `json:"swap_tx_hash,omitempty"`
	BridgeTxHash string    `json:"bridge_tx_hash,omitempty"`
	BridgeNonce  string    `json:"bridge_nonce,omitempty"`
	DestTxHash   string    `json:"dest_tx_hash,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// IntentUpdate is broadcast to stream subscribers on every status change
type IntentUpdate struct {
	IntentID  string       `json:"intent_id"`
	Direction Direction    `json:"direction"`
	Status    IntentStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	At        time.Time    `json:"at"`
}

func (e *Intent) ToUpdate() IntentUpdate {
	return IntentUpdate{
		IntentID:  e.ID,
		Direction: e.Direction,
		Status:    e.Status,
		Error:     e.ErrorMessage,
		At:        e.UpdatedAt,
	}
}
