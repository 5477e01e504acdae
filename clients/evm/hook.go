package evm

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
	"github.com/naisu-labs/naisu/config"
	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

const (
	EventIntentCreated         = "IntentCreated"
	EventIntentBridgeInitiated = "IntentBridgeInitiated"
)

// ChainClient is the subset of ethclient.Client used by the hook listener and the status checks
type ChainClient interface {
	ethereum.LogFilterer
	ethereum.ContractCaller
	BlockNumber(ctx context.Context) (uint64, error)
}

// HookABI is the parsed hook ABI shared by readers and the listener
var HookABI = mustParseABI(config.HookABI)

// HookIntent is the on-chain view of an intent as returned by getIntent
type HookIntent struct {
	User           common.Address
	SuiDestination common.Hash
	InputToken     common.Address
	InputAmount    *uint256.Int
	USDCAmount     *uint256.Int
	Strategy       models.YieldStrategy
	Status         models.IntentStatus
	CreatedAt      uint64
}

// raw tuple layout produced by the abi decoder
type hookIntentTuple struct {
	User           common.Address
	SuiDestination [32]byte
	InputToken     common.Address
	InputAmount    *big.Int
	UsdcAmount     *big.Int
	StrategyId     uint8 //nolint:revive
	Status         uint8
	CreatedAt      *big.Int
}

// HookContract reads intents straight from the Naisu hook
type HookContract struct {
	address common.Address
	caller  ethereum.ContractCaller
}

func NewHookContract(address common.Address, caller ethereum.ContractCaller) *HookContract {
	return &HookContract{address: address, caller: caller}
}

func (h *HookContract) Address() common.Address {
	return h.address
}

// GetIntent calls getIntent(bytes32)
func (h *HookContract) GetIntent(ctx context.Context, intentID common.Hash) (*HookIntent, error) {
	out, err := h.call(ctx, "getIntent", intentID)
	if err != nil {
		return nil, err
	}

	if len(out) != 1 {
		return nil, errors.Errorf("getIntent: unexpected output length %d", len(out))
	}

	tuple, ok := abi.ConvertType(out[0], new(hookIntentTuple)).(*hookIntentTuple)
	if !ok {
		return nil, errors.New("getIntent: unexpected output type")
	}

	inputAmount, err := toUint256(tuple.InputAmount)
	if err != nil {
		return nil, errors.Wrap(err, "inputAmount")
	}

	usdcAmount, err := toUint256(tuple.UsdcAmount)
	if err != nil {
		return nil, errors.Wrap(err, "usdcAmount")
	}

	var createdAt uint64
	if tuple.CreatedAt != nil && tuple.CreatedAt.IsUint64() {
		createdAt = tuple.CreatedAt.Uint64()
	}

	return &HookIntent{
		User:           tuple.User,
		SuiDestination: common.Hash(tuple.SuiDestination),
		InputToken:     tuple.InputToken,
		InputAmount:    inputAmount,
		USDCAmount:     usdcAmount,
		Strategy:       models.YieldStrategy(tuple.StrategyId),
		Status:         models.HookIntentStatus(tuple.Status),
		CreatedAt:      createdAt,
	}, nil
}

// NextIntentID calls nextIntentId(), the number of intents created so far
func (h *HookContract) NextIntentID(ctx context.Context) (*uint256.Int, error) {
	out, err := h.call(ctx, "nextIntentId")
	if err != nil {
		return nil, err
	}

	if len(out) != 1 {
		return nil, errors.Errorf("nextIntentId: unexpected output length %d", len(out))
	}

	raw, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("nextIntentId: unexpected output type %T", out[0])
	}

	return toUint256(raw)
}

func (h *HookContract) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := HookABI.Pack(method, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to pack %s", method)
	}

	msg := ethereum.CallMsg{To: &h.address, Data: data}

	res, err := h.caller.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to call %s", method)
	}

	out, err := HookABI.Unpack(method, res)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to unpack %s", method)
	}

	return out, nil
}

// HookTopics returns the event ids the listener filters on
func HookTopics() []common.Hash {
	return []common.Hash{
		HookABI.Events[EventIntentCreated].ID,
		HookABI.Events[EventIntentBridgeInitiated].ID,
	}
}

// ParseIntentCreated decodes an IntentCreated log
func ParseIntentCreated(log types.Log, chainID uint64) (*models.IntentCreatedEvent, error) {
	event := HookABI.Events[EventIntentCreated]

	if len(log.Topics) < 3 || log.Topics[0] != event.ID {
		return nil, errors.New("log is not an IntentCreated event")
	}

	var data struct {
		SuiDestination [32]byte
		InputToken     common.Address
		InputAmount    *big.Int
		UsdcAmount     *big.Int
		StrategyId     uint8 //nolint:revive
		Timestamp      *big.Int
	}

	if err := HookABI.UnpackIntoInterface(&data, EventIntentCreated, log.Data); err != nil {
		return nil, errors.Wrap(err, "failed to unpack IntentCreated")
	}

	// amounts above 2^256 can't come from the contract, reject malformed data early
	if _, err := toUint256(data.InputAmount); err != nil {
		return nil, errors.Wrap(err, "inputAmount")
	}

	return &models.IntentCreatedEvent{
		IntentID:       log.Topics[1].Hex(),
		User:           common.BytesToAddress(log.Topics[2].Bytes()),
		SuiDestination: common.Hash(data.SuiDestination),
		InputToken:     data.InputToken,
		InputAmount:    data.InputAmount,
		USDCAmount:     data.UsdcAmount,
		StrategyID:     data.StrategyId,
		Timestamp:      data.Timestamp,
		ChainID:        chainID,
		BlockNumber:    log.BlockNumber,
		TxHash:         log.TxHash.Hex(),
	}, nil
}

// ParseIntentBridgeInitiated decodes an IntentBridgeInitiated log
func ParseIntentBridgeInitiated(log types.Log) (*models.IntentBridgeInitiatedEvent, error) {
	event := HookABI.Events[EventIntentBridgeInitiated]

	if len(log.Topics) < 2 || log.Topics[0] != event.ID {
		return nil, errors.New("log is not an IntentBridgeInitiated event")
	}

	var data struct {
		LifiTransactionId [32]byte //nolint:revive
	}

	if err := HookABI.UnpackIntoInterface(&data, EventIntentBridgeInitiated, log.Data); err != nil {
		return nil, errors.Wrap(err, "failed to unpack IntentBridgeInitiated")
	}

	return &models.IntentBridgeInitiatedEvent{
		IntentID:          log.Topics[1].Hex(),
		LifiTransactionID: common.Hash(data.LifiTransactionId).Hex(),
		BlockNumber:       log.BlockNumber,
		TxHash:            log.TxHash.Hex(),
	}, nil
}

func toUint256(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}

	if v.Sign() < 0 {
		return nil, errors.New("negative amount")
	}

	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, errors.New("amount overflows uint256")
	}

	return out, nil
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(errors.Wrap(err, "invalid hook ABI"))
	}
	return parsed
}
