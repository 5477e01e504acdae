package sui

import (
	"strconv"

	"github.com/naisu-labs/naisu/models"
	"github.com/pkg/errors"
)

// Packages holds the on-chain package ids the deposit plan calls into
type Packages struct {
	Scallop string
	Navi    string
	Swap    string
	USDC    string
}

// MoveCall is one step of a programmable transaction block. Arguments reference
// either literal values or results of earlier steps ("result:0").
type MoveCall struct {
	Target        string   `json:"target"`
	TypeArguments []string `json:"type_arguments,omitempty"`
	Arguments     []string `json:"arguments"`
}

// DepositPlan is the ordered list of Move calls the user signs as one PTB
type DepositPlan struct {
	Strategy  models.YieldStrategy `json:"strategy_id"`
	Amount    uint64               `json:"amount"`
	Recipient string               `json:"recipient"`
	Calls     []MoveCall           `json:"calls"`
}

var (
	ErrCustomStrategy       = errors.New("custom strategies have no deposit plan")
	ErrPackageNotConfigured = errors.New("package id is not configured")
)

// BuildDepositPlan plans the deposit of amount raw USDC into strategy for recipient.
// SUI strategies swap the bridged USDC first.
func BuildDepositPlan(
	strategy models.YieldStrategy,
	amount uint64,
	recipient string,
	pkgs Packages,
) (*DepositPlan, error) {
	if strategy.IsCustom() {
		return nil, errors.Wrapf(ErrCustomStrategy, "strategy %d", strategy)
	}

	if amount == 0 {
		return nil, errors.Wrap(models.ErrInvalidAmount, "deposit amount is zero")
	}

	usdc := pkgs.USDC
	if usdc == "" {
		usdc = CoinUSDCTestnet
	}

	plan := &DepositPlan{Strategy: strategy, Amount: amount, Recipient: recipient}

	var (
		asset = usdc
		coin  = "input:coin"
	)

	if strategy.RequiresSuiSwap() {
		if pkgs.Swap == "" {
			return nil, errors.Wrap(ErrPackageNotConfigured, "swap")
		}

		plan.Calls = append(plan.Calls, MoveCall{
			Target:        pkgs.Swap + "::router::swap_exact_input",
			TypeArguments: []string{usdc, CoinSUI},
			Arguments:     []string{coin, strconv.FormatUint(amount, 10), "0"},
		})

		asset = CoinSUI
		coin = "result:" + strconv.Itoa(len(plan.Calls)-1)
	}

	switch strategy.Protocol() {
	case models.ProtocolScallop:
		if pkgs.Scallop == "" {
			return nil, errors.Wrap(ErrPackageNotConfigured, "scallop")
		}

		plan.Calls = append(plan.Calls, MoveCall{
			Target:        pkgs.Scallop + "::mint::mint",
			TypeArguments: []string{asset},
			Arguments:     []string{"object:version", "object:market", coin, "object:clock"},
		})
	case models.ProtocolNavi:
		if pkgs.Navi == "" {
			return nil, errors.Wrap(ErrPackageNotConfigured, "navi")
		}

		plan.Calls = append(plan.Calls, MoveCall{
			Target:        pkgs.Navi + "::incentive_v2::entry_deposit",
			TypeArguments: []string{asset},
			Arguments: []string{
				"object:clock", "object:storage", "object:pool", "pure:asset_id",
				coin, strconv.FormatUint(amount, 10), "object:incentive_v1", "object:incentive_v2",
			},
		})
	default:
		return nil, errors.Errorf("unknown protocol for strategy %d", strategy)
	}

	receipt := "result:" + strconv.Itoa(len(plan.Calls)-1)

	plan.Calls = append(plan.Calls, MoveCall{
		Target:    "0x2::transfer::public_transfer",
		Arguments: []string{receipt, recipient},
	})

	return plan, nil
}
