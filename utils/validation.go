package utils

import (
	"regexp"
	"strings"

	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// Address regex pattern (basic Ethereum address format)
	addressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

	// Sui addresses and object ids are 32 bytes, leading zeros may be trimmed
	suiAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{1,64}$`)

	// Amount regex pattern (positive number, can include decimals)
	amountRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

	// Bytes32 regex pattern (for on-chain intent IDs and tx hashes)
	bytes32Regex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

	// Intents created through the API use uuids
	uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

	// 1 billion whole tokens
	maxAmount = decimal.New(1, 9)
)

// IsValidAddress checks if a string is a valid Ethereum address
func IsValidAddress(address string) bool {
	return addressRegex.MatchString(address)
}

// IsValidSuiAddress checks if a string is a valid Sui address
func IsValidSuiAddress(address string) bool {
	return suiAddressRegex.MatchString(address)
}

// IsValidBytes32 checks if a string is a valid bytes32 hex string
func IsValidBytes32(hash string) bool {
	return bytes32Regex.MatchString(hash)
}

// IsValidIntentID accepts both hook intent ids (bytes32) and API intent ids (uuid)
func IsValidIntentID(id string) bool {
	return bytes32Regex.MatchString(id) || uuidRegex.MatchString(id)
}

// ParseAmount validates a human readable token amount and returns it as a decimal
func ParseAmount(amount string) (decimal.Decimal, error) {
	amount = strings.TrimSpace(amount)
	if amount == "" {
		return decimal.Zero, errors.Wrap(models.ErrInvalidAmount, "amount cannot be empty")
	}

	if !amountRegex.MatchString(amount) {
		return decimal.Zero, errors.Wrap(models.ErrInvalidAmount, "invalid amount format")
	}

	value, err := decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, errors.Wrap(models.ErrInvalidAmount, err.Error())
	}

	if value.GreaterThan(maxAmount) {
		return decimal.Zero, errors.Wrap(models.ErrInvalidAmount, "amount exceeds maximum limit")
	}

	return value, nil
}

// ValidateIntentRequest validates a create intent request
func ValidateIntentRequest(req *models.CreateIntentRequest) error {
	if req == nil {
		return errors.New("request cannot be nil")
	}

	evmAddress, suiAddress := req.SourceAddress, req.DestAddress
	if req.Direction == models.DirectionSuiToEvm {
		evmAddress, suiAddress = req.DestAddress, req.SourceAddress
	}

	if !IsValidAddress(evmAddress) {
		return errors.New("invalid evm address format")
	}

	if !IsValidSuiAddress(suiAddress) {
		return errors.New("invalid sui address format")
	}

	amount, err := ParseAmount(req.InputAmount)
	if err != nil {
		return err
	}

	if !amount.IsPositive() {
		return errors.Wrap(models.ErrInvalidAmount, "amount must be positive")
	}

	if req.MinAPYBps < 0 || req.MinAPYBps > 10_000 {
		return errors.New("invalid min_apy_bps (must be between 0 and 10000)")
	}

	if req.Direction == models.DirectionEvmToSui && req.Strategy == nil {
		return models.ErrStrategyRequired
	}

	return nil
}
