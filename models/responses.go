package models

// Envelope is the JSON wrapper of every /api/v1 response
type Envelope struct {
	Success bool   `json:"success"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// PaginatedResponse is a page of items together with paging metadata
type PaginatedResponse struct {
	Items      any `json:"items"`
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
	TotalPages int `json:"total_pages"`
}

func NewPaginatedResponse(items any, page, pageSize, totalCount int) *PaginatedResponse {
	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}

	return &PaginatedResponse{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalCount: totalCount,
		TotalPages: totalPages,
	}
}

// BridgeStatusResponse describes where an intent's funds are in the bridge
type BridgeStatusResponse struct {
	IntentID    string `json:"intent_id"`
	Status      string `json:"status"`
	SourceChain string `json:"source_chain"`
	DestChain   string `json:"dest_chain"`
	Amount      string `json:"amount"`
	Nonce       string `json:"nonce,omitempty"`
}

// AttestationResponse is the outcome of an attestation poll
type AttestationResponse struct {
	Nonce       string `json:"nonce"`
	Attestation string `json:"attestation,omitempty"`
	Message     string `json:"message,omitempty"`
	Status      string `json:"status"`
}

// QuoteResponse is an indicative swap quote
type QuoteResponse struct {
	InputToken   string  `json:"input_token"`
	OutputToken  string  `json:"output_token"`
	InputAmount  string  `json:"input_amount"`
	OutputAmount string  `json:"output_amount"`
	ExchangeRate float64 `json:"exchange_rate"`
	Fee          string  `json:"fee"`
}

// ChatResponse is the assistant's reply, optionally with a suggested intent
type ChatResponse struct {
	Reply  string        `json:"reply"`
	Intent *IntentParams `json:"intent,omitempty"`
}

type IntentParams struct {
	Action     string `json:"action"`
	DestChain  string `json:"dest_chain"`
	Protocol   string `json:"protocol"`
	SuiDest    string `json:"sui_dest"`
	StrategyID uint8  `json:"strategy_id"`
	APY        string `json:"apy,omitempty"`
}
