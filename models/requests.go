package models

// CreateIntentRequest represents the request body for creating a new intent
type CreateIntentRequest struct {
	Direction     Direction      `json:"direction" binding:"required"`
	SourceAddress string         `json:"source_address" binding:"required"`
	DestAddress   string         `json:"dest_address" binding:"required"`
	EvmChain      EvmChain       `json:"evm_chain" binding:"required"`
	InputToken    string         `json:"input_token" binding:"required"`
	InputAmount   string         `json:"input_amount" binding:"required"`
	Strategy      *YieldStrategy `json:"strategy"`
	MinAPYBps     int64          `json:"min_apy_bps"`
}

// SuiToEvmBridgeRequest asks for the Sui deposit_for_burn parameters
type SuiToEvmBridgeRequest struct {
	IntentID       string `json:"intent_id"`
	Sender         string `json:"sender" binding:"required"`
	Amount         string `json:"amount" binding:"required"`
	EvmDestination string `json:"evm_destination" binding:"required"`
}

// AttestationRequest triggers a bounded poll of the Circle attestation service
type AttestationRequest struct {
	Nonce        string `json:"nonce" binding:"required"`
	MaxAttempts  uint32 `json:"max_attempts"`
	IntervalSecs uint64 `json:"interval_secs"`
}

// SubmitBidRequest is a solver's sealed bid
type SubmitBidRequest struct {
	Solver     string `json:"solver" binding:"required"`
	APYBps     int64  `json:"apy_bps" binding:"required"`
	StrategyID uint8  `json:"strategy_id" binding:"required"`
}

// FillRequest is a solver's claim on a Dutch auction
type FillRequest struct {
	Solver string `json:"solver" binding:"required"`
	Amount string `json:"amount" binding:"required"`
	TxHash string `json:"tx_hash"`
	VAA    string `json:"vaa"`
}

// ChatRequest is a message to the assistant
type ChatRequest struct {
	Message string `json:"message" binding:"required"`
}
