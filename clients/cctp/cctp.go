// Package cctp builds Circle CCTP burn/mint parameters and tracks attestations.
//
// Flow: depositForBurn on the source chain, Circle signs the message, then
// receiveMessage(message, attestation) mints on the destination chain.
// The backend never signs: it hands parameters to the frontend or a relayer.
package cctp

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/naisu-labs/naisu/clients/rest"
	"github.com/naisu-labs/naisu/logging"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gopkg.in/h2non/gentleman.v2"
)

// CCTP domain ids
const (
	DomainEthereum  uint32 = 0
	DomainAvalanche uint32 = 1
	DomainOptimism  uint32 = 2
	DomainArbitrum  uint32 = 3
	DomainBase      uint32 = 5
	DomainSui       uint32 = 10

	// sui-to-evm route domain used by the Sui deposit_for_burn entry point
	SuiRouteDestDomain uint32 = 6
)

// Testnet contracts
const (
	USDCBaseSepolia               = "0x036CbD53842c5426634e7929541eC2318f3dCF7e"
	TokenMessengerBaseSepolia     = "0x9a4427fd4196d315517ed71ddd16BD053cC9c4a4"
	MessageTransmitterBaseSepolia = "0x241661E680D1F25deb4cE5230b2D7165B3ba580e"

	SuiDepositForBurnTarget = "0x31cc14d80c175ae39777c0238f20594c6d4869cfab199f40b69f3319956b8beb" +
		"::deposit_for_burn::deposit_for_burn"
)

const usdcDecimals = 6

// DefaultPollInterval is used when PollAttestation is given no interval
const DefaultPollInterval = 5 * time.Second

var ErrAttestationTimeout = errors.New("attestation polling timed out")

// DestChain selects the receiveMessage target
type DestChain string

const (
	DestBaseSepolia DestChain = "base_sepolia"
	DestSui         DestChain = "sui"
)

// DepositForBurnParams are passed to the frontend to sign depositForBurn
type DepositForBurnParams struct {
	TokenMessenger     string `json:"token_messenger"`
	USDCAddress        string `json:"usdc_address"`
	Amount             uint64 `json:"amount"`
	DestinationDomain  uint32 `json:"destination_domain"`
	DestinationAddress string `json:"destination_address"`
}

// Attestation is Circle's signed message
type Attestation struct {
	Message              string `json:"message"`
	AttestationSignature string `json:"attestation_signature"`
}

// ReceiveMessageParams are handed to a relayer for the destination chain
type ReceiveMessageParams struct {
	MessageTransmitter   string `json:"message_transmitter"`
	Message              string `json:"message"`
	AttestationSignature string `json:"attestation_signature"`
}

// SuiBurnTx describes the Move call that burns USDC on Sui for an EVM recipient
type SuiBurnTx struct {
	Target            string `json:"target"`
	Amount            uint64 `json:"amount"`
	DestinationDomain uint32 `json:"destination_domain"`
	Recipient         string `json:"recipient"`
}

type attestationResponse struct {
	Data *struct {
		Message              string `json:"message"`
		AttestationSignature string `json:"attestation_signature"`
		Status               string `json:"status"`
	} `json:"data"`
}

// Client talks to the Circle attestation service
type Client struct {
	http   *gentleman.Client
	logger zerolog.Logger
}

func New(apiURL string, logger zerolog.Logger) *Client {
	return &Client{
		http:   rest.NewClient(strings.TrimRight(apiURL, "/"), rest.DefaultTimeout),
		logger: logger.With().Str(logging.FieldModule, "cctp").Logger(),
	}
}

// BuildDepositForBurnParams builds depositForBurn parameters. amount is in 6-decimal units.
func (c *Client) BuildDepositForBurnParams(amount uint64, destDomain uint32, destAddress string) DepositForBurnParams {
	return DepositForBurnParams{
		TokenMessenger:     TokenMessengerBaseSepolia,
		USDCAddress:        USDCBaseSepolia,
		Amount:             amount,
		DestinationDomain:  destDomain,
		DestinationAddress: destAddress,
	}
}

// GetAttestation returns nil while the attestation is not ready.
func (c *Client) GetAttestation(ctx context.Context, nonce string) (*Attestation, error) {
	var res attestationResponse

	req := c.http.Get().AddPath("/v1/attestations/" + url.PathEscape(nonce))

	err := rest.Do(ctx, "circle", req, &res)
	switch {
	case rest.IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, err
	}

	if res.Data == nil || res.Data.Status != "complete" {
		return nil, nil
	}

	return &Attestation{
		Message:              res.Data.Message,
		AttestationSignature: res.Data.AttestationSignature,
	}, nil
}

// PollAttestation polls until the attestation is ready, attempts run out or ctx is done.
func (c *Client) PollAttestation(
	ctx context.Context,
	nonce string,
	attempts uint32,
	interval time.Duration,
) (*Attestation, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	c.logger.Info().Str("nonce", nonce).Dur("interval", interval).Msg("Polling CCTP attestation")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for attempt := uint32(0); attempt < attempts; attempt++ {
		att, err := c.GetAttestation(ctx, nonce)
		if err != nil {
			return nil, err
		}

		if att != nil {
			c.logger.Info().
				Str("nonce", nonce).
				Uint32("attempts", attempt+1).
				Msg("Attestation ready")
			return att, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nil, ErrAttestationTimeout
}

// BuildReceiveMessageParams builds receiveMessage parameters. Sui mints through a Move call,
// so there is no transmitter contract for it.
func (c *Client) BuildReceiveMessageParams(att *Attestation, dest DestChain) ReceiveMessageParams {
	var transmitter string
	if dest == DestBaseSepolia {
		transmitter = MessageTransmitterBaseSepolia
	}

	return ReceiveMessageParams{
		MessageTransmitter:   transmitter,
		Message:              att.Message,
		AttestationSignature: att.AttestationSignature,
	}
}

// SuiBurnParams builds the Sui deposit_for_burn call for an EVM recipient
func SuiBurnParams(amount decimal.Decimal, evmDestination string) (SuiBurnTx, error) {
	raw, err := ParseUSDCAmount(amount)
	if err != nil {
		return SuiBurnTx{}, err
	}

	return SuiBurnTx{
		Target:            SuiDepositForBurnTarget,
		Amount:            raw,
		DestinationDomain: SuiRouteDestDomain,
		Recipient:         PadEvmAddress(evmDestination),
	}, nil
}

// PadEvmAddress left-pads a 20 byte address to the 32 byte mint recipient
func PadEvmAddress(address string) string {
	return "0x" + strings.Repeat("0", 24) + strings.TrimPrefix(strings.ToLower(address), "0x")
}

// ParseUSDCAmount converts whole USDC to 6-decimal units. Sub-unit dust is truncated.
func ParseUSDCAmount(amount decimal.Decimal) (uint64, error) {
	if amount.IsNegative() {
		return 0, errors.New("usdc amount must not be negative")
	}

	raw := amount.Shift(usdcDecimals).Truncate(0)
	if !raw.BigInt().IsUint64() {
		return 0, errors.New("usdc amount overflows uint64")
	}

	return raw.BigInt().Uint64(), nil
}
