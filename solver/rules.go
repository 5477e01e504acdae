package solver

import (
	"context"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/naisu-labs/naisu/config"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrAmountTooLarge = errors.New("amount above solver limit")
	ErrAPYTooLow      = errors.New("apy below solver minimum")
)

var erc20ABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(config.ERC20BalanceOfABI))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Rules bound what a solver is willing to take on. Zero values disable a limit.
type Rules struct {
	MaxAmount decimal.Decimal
	MinAPYBps int64
}

// Check validates a bid the solver is about to make
func (r Rules) Check(amount decimal.Decimal, apyBps int64) error {
	if err := r.CheckAmount(amount); err != nil {
		return err
	}

	if apyBps < r.MinAPYBps {
		return errors.Wrapf(ErrAPYTooLow, "%d < %d", apyBps, r.MinAPYBps)
	}

	return nil
}

// CheckAmount validates the size of a delivery, for competitions that are not priced in APY
func (r Rules) CheckAmount(amount decimal.Decimal) error {
	if r.MaxAmount.IsPositive() && amount.GreaterThan(r.MaxAmount) {
		return errors.Wrapf(ErrAmountTooLarge, "%s > %s", amount, r.MaxAmount)
	}

	return nil
}

// BalanceOf reads an ERC20 balance in raw token units
func BalanceOf(ctx context.Context, caller bind.ContractCaller, token, owner common.Address) (*big.Int, error) {
	contract := bind.NewBoundContract(token, erc20ABI, caller, nil, nil)

	var out []any
	if err := contract.Call(&bind.CallOpts{Context: ctx}, &out, "balanceOf", owner); err != nil {
		return nil, errors.Wrap(err, "balanceOf")
	}

	if len(out) != 1 {
		return nil, errors.Errorf("balanceOf: unexpected output length %d", len(out))
	}

	balance, ok := out[0].(*big.Int)
	if !ok {
		return nil, errors.Errorf("balanceOf: unexpected output type %T", out[0])
	}

	return balance, nil
}

// EnoughBalance reports whether owner holds at least amount (decimal, in whole tokens)
func EnoughBalance(
	ctx context.Context,
	caller bind.ContractCaller,
	token, owner common.Address,
	amount decimal.Decimal,
	decimals int32,
) (bool, error) {
	balance, err := BalanceOf(ctx, caller, token, owner)
	if err != nil {
		return false, err
	}

	required := amount.Shift(decimals).Ceil()

	return decimal.NewFromBigInt(balance, 0).GreaterThanOrEqual(required), nil
}
