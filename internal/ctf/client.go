// Package ctf implements the three conceptual Conditional-Tokens-Framework
// operations — split, merge, redeem — plus the read-only balance/payout
// helpers and the idempotent collateral-allowance / ERC1155-operator
// approvals each on-chain write call depends on.
package ctf

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"mmterm/internal/chain"
	"mmterm/pkg/types"
)

// unitScale converts a 6-fraction-digit Money into on-chain base units
// (USDC/outcome-token decimals are both 6 on this venue).
var unitScale = decimal.New(1, 6)

// MinSharesPerSide is the venue minimum per split side.
const MinSharesPerSide = 2.5

const ctfABIJSON = `[
{"name":"splitPosition","type":"function","inputs":[
	{"name":"collateralToken","type":"address"},
	{"name":"parentCollectionId","type":"bytes32"},
	{"name":"conditionId","type":"bytes32"},
	{"name":"partition","type":"uint256[]"},
	{"name":"amount","type":"uint256"}],"outputs":[]},
{"name":"mergePositions","type":"function","inputs":[
	{"name":"collateralToken","type":"address"},
	{"name":"parentCollectionId","type":"bytes32"},
	{"name":"conditionId","type":"bytes32"},
	{"name":"partition","type":"uint256[]"},
	{"name":"amount","type":"uint256"}],"outputs":[]},
{"name":"redeemPositions","type":"function","inputs":[
	{"name":"collateralToken","type":"address"},
	{"name":"parentCollectionId","type":"bytes32"},
	{"name":"conditionId","type":"bytes32"},
	{"name":"indexSets","type":"uint256[]"}],"outputs":[]},
{"name":"balanceOf","type":"function","inputs":[
	{"name":"owner","type":"address"},
	{"name":"id","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"name":"payoutDenominator","type":"function","inputs":[
	{"name":"conditionId","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
{"name":"payoutNumerators","type":"function","inputs":[
	{"name":"conditionId","type":"bytes32"},
	{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"name":"isApprovedForAll","type":"function","inputs":[
	{"name":"owner","type":"address"},
	{"name":"operator","type":"address"}],"outputs":[{"name":"","type":"bool"}]},
{"name":"setApprovalForAll","type":"function","inputs":[
	{"name":"operator","type":"address"},
	{"name":"approved","type":"bool"}],"outputs":[]}
]`

const erc20ABIJSON = `[
{"name":"allowance","type":"function","inputs":[
	{"name":"owner","type":"address"},
	{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
{"name":"approve","type":"function","inputs":[
	{"name":"spender","type":"address"},
	{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
{"name":"balanceOf","type":"function","inputs":[
	{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

// maxUint256 is used as the approval amount, matching the common
// "approve once, forever" idiom for collateral spend approvals.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Client wraps an Executor (for writes) and a read-only ethclient.Client
// (for eth_call reads) with the CTF/ERC20/ERC1155 ABI-packing needed by
// split/merge/redeem and their approvals.
type Client struct {
	exec  *chain.Executor
	eth   *ethclient.Client
	addrs chain.Addresses

	ctfABI   abi.ABI
	erc20ABI abi.ABI
}

func New(exec *chain.Executor, eth *ethclient.Client, addrs chain.Addresses) (*Client, error) {
	ctfABI, err := abi.JSON(strings.NewReader(ctfABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse ctf abi: %w", err)
	}
	erc20ABI, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	return &Client{exec: exec, eth: eth, addrs: addrs, ctfABI: ctfABI, erc20ABI: erc20ABI}, nil
}

// EnsureApprovals checks-then-sets the collateral allowance and the
// ERC1155-operator approval for the exchange that will match orders on
// condition's market. Idempotent: never re-approves if the allowance is
// already >= amount and the exchange is already an approved operator.
func (c *Client) EnsureApprovals(ctx context.Context, amount types.Money, negRisk bool) error {
	exchangeAddr := c.addrs.ExchangeFor(negRisk)

	allowanceCalldata, err := c.erc20ABI.Pack("allowance", c.addrs.Wallet, exchangeAddr)
	if err != nil {
		return fmt.Errorf("pack allowance: %w", err)
	}
	allowanceResult, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.addrs.Collateral, Data: allowanceCalldata}, nil)
	if err != nil {
		return fmt.Errorf("read allowance: %w", err)
	}
	allowance := new(big.Int).SetBytes(allowanceResult)
	needed := moneyToUnits(amount)

	if allowance.Cmp(needed) < 0 {
		approveCalldata, err := c.erc20ABI.Pack("approve", exchangeAddr, maxUint256)
		if err != nil {
			return fmt.Errorf("pack approve: %w", err)
		}
		if _, err := c.exec.Exec(ctx, c.addrs.Collateral, approveCalldata, "ctf.approveCollateral"); err != nil {
			return fmt.Errorf("approve collateral: %w", err)
		}
	}

	approvedCalldata, err := c.ctfABI.Pack("isApprovedForAll", c.addrs.Wallet, exchangeAddr)
	if err != nil {
		return fmt.Errorf("pack isApprovedForAll: %w", err)
	}
	approvedResult, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.addrs.ConditionalTokens, Data: approvedCalldata}, nil)
	if err != nil {
		return fmt.Errorf("read isApprovedForAll: %w", err)
	}
	isApproved := len(approvedResult) > 0 && approvedResult[len(approvedResult)-1] == 1
	if !isApproved {
		setApprovalCalldata, err := c.ctfABI.Pack("setApprovalForAll", exchangeAddr, true)
		if err != nil {
			return fmt.Errorf("pack setApprovalForAll: %w", err)
		}
		if _, err := c.exec.Exec(ctx, c.addrs.ConditionalTokens, setApprovalCalldata, "ctf.setApprovalForAll"); err != nil {
			return fmt.Errorf("set operator approval: %w", err)
		}
	}
	return nil
}

// Split burns collateralAmount of collateral and mints collateralAmount
// units of each outcome token. Rejects amounts below 2*MinSharesPerSide.
func (c *Client) Split(ctx context.Context, conditionID string, collateralAmount types.Money, negRisk bool) error {
	if collateralAmount.Float64() < 2*MinSharesPerSide {
		return fmt.Errorf("MM_TRADE_SIZE below minimum: collateral_amount %s < %.1f", collateralAmount, 2*MinSharesPerSide)
	}
	if err := c.EnsureApprovals(ctx, collateralAmount, negRisk); err != nil {
		return fmt.Errorf("ensure approvals: %w", err)
	}

	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return fmt.Errorf("invalid condition id: %w", err)
	}
	calldata, err := c.ctfABI.Pack("splitPosition",
		c.addrs.Collateral, [32]byte{}, condBytes,
		binaryPartition(), moneyToUnits(collateralAmount))
	if err != nil {
		return fmt.Errorf("pack splitPosition: %w", err)
	}
	if _, err := c.exec.Exec(ctx, c.addrs.ConditionalTokens, calldata, "ctf.split"); err != nil {
		return fmt.Errorf("split: %w", err)
	}
	return nil
}

// Merge converts equal amounts of YES and NO outcome tokens back to
// collateral. sharesPerSide is capped by the caller to the on-chain minimum
// of the two token balances before this is invoked.
func (c *Client) Merge(ctx context.Context, conditionID string, sharesPerSide types.Money) error {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return fmt.Errorf("invalid condition id: %w", err)
	}
	calldata, err := c.ctfABI.Pack("mergePositions",
		c.addrs.Collateral, [32]byte{}, condBytes,
		binaryPartition(), moneyToUnits(sharesPerSide))
	if err != nil {
		return fmt.Errorf("pack mergePositions: %w", err)
	}
	if _, err := c.exec.Exec(ctx, c.addrs.ConditionalTokens, calldata, "ctf.merge"); err != nil {
		return fmt.Errorf("merge: %w", err)
	}
	return nil
}

// Redeem redeems all held outcome tokens of condition to collateral.
func (c *Client) Redeem(ctx context.Context, conditionID string) error {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return fmt.Errorf("invalid condition id: %w", err)
	}
	calldata, err := c.ctfABI.Pack("redeemPositions",
		c.addrs.Collateral, [32]byte{}, condBytes, binaryPartition())
	if err != nil {
		return fmt.Errorf("pack redeemPositions: %w", err)
	}
	if _, err := c.exec.Exec(ctx, c.addrs.ConditionalTokens, calldata, "ctf.redeem"); err != nil {
		return fmt.Errorf("redeem: %w", err)
	}
	return nil
}

// BalanceOf reads the on-chain ERC1155 balance of a token id for owner.
// On-chain balances are the ultimate source of truth; callers MUST
// reconcile in-memory share counts against this before any quantity-
// sensitive sell.
func (c *Client) BalanceOf(ctx context.Context, owner common.Address, tokenID *big.Int) (types.Money, error) {
	calldata, err := c.ctfABI.Pack("balanceOf", owner, tokenID)
	if err != nil {
		return types.Money{}, fmt.Errorf("pack balanceOf: %w", err)
	}
	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.addrs.ConditionalTokens, Data: calldata}, nil)
	if err != nil {
		return types.Money{}, fmt.Errorf("balanceOf call: %w", err)
	}
	units := new(big.Int).SetBytes(result)
	return unitsToMoney(units), nil
}

// CollateralBalance reads the wallet's ERC20 collateral (USDC) balance.
func (c *Client) CollateralBalance(ctx context.Context, owner common.Address) (types.Money, error) {
	calldata, err := c.erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return types.Money{}, fmt.Errorf("pack balanceOf: %w", err)
	}
	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.addrs.Collateral, Data: calldata}, nil)
	if err != nil {
		return types.Money{}, fmt.Errorf("collateral balanceOf call: %w", err)
	}
	return unitsToMoney(new(big.Int).SetBytes(result)), nil
}

// PayoutDenominator returns 0 iff the condition is unresolved.
func (c *Client) PayoutDenominator(ctx context.Context, conditionID string) (int64, error) {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return 0, fmt.Errorf("invalid condition id: %w", err)
	}
	calldata, err := c.ctfABI.Pack("payoutDenominator", condBytes)
	if err != nil {
		return 0, fmt.Errorf("pack payoutDenominator: %w", err)
	}
	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.addrs.ConditionalTokens, Data: calldata}, nil)
	if err != nil {
		return 0, fmt.Errorf("payoutDenominator call: %w", err)
	}
	return new(big.Int).SetBytes(result).Int64(), nil
}

// PayoutNumerator returns the payout numerator for outcomeIdx (0=YES, 1=NO).
func (c *Client) PayoutNumerator(ctx context.Context, conditionID string, outcomeIdx int) (int64, error) {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return 0, fmt.Errorf("invalid condition id: %w", err)
	}
	calldata, err := c.ctfABI.Pack("payoutNumerators", condBytes, big.NewInt(int64(outcomeIdx)))
	if err != nil {
		return 0, fmt.Errorf("pack payoutNumerators: %w", err)
	}
	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.addrs.ConditionalTokens, Data: calldata}, nil)
	if err != nil {
		return 0, fmt.Errorf("payoutNumerators call: %w", err)
	}
	return new(big.Int).SetBytes(result).Int64(), nil
}

// Wallet returns the smart-contract wallet address holding collateral and
// outcome tokens — the owner argument for BalanceOf.
func (c *Client) Wallet() common.Address {
	return c.addrs.Wallet
}

// PositionID computes the ERC1155 token id for conditionID/outcomeIdx under
// this venue's collateral token, per TokenID.
func (c *Client) PositionID(conditionID string, outcomeIdx int) (*big.Int, error) {
	return TokenID(c.addrs.Collateral, conditionID, outcomeIdx)
}

// TokenID computes the ERC1155 position id for a given condition + outcome
// index (0=YES, 1=NO), matching positionId = keccak256(collateralToken |
// keccak256(parentCollectionId | conditionId | indexSet)).
func TokenID(collateral common.Address, conditionID string, outcomeIdx int) (*big.Int, error) {
	condBytes, err := hexToBytes32(conditionID)
	if err != nil {
		return nil, err
	}
	indexSet := big.NewInt(int64(1 << outcomeIdx)) // YES=0b01=1, NO=0b10=2
	indexSetBytes := make([]byte, 32)
	indexSet.FillBytes(indexSetBytes)

	parentColl := [32]byte{}
	collectionInput := append(append([]byte{}, parentColl[:]...), condBytes[:]...)
	collectionInput = append(collectionInput, indexSetBytes...)
	collectionID := crypto.Keccak256(collectionInput)

	posInput := append(append([]byte{}, collateral.Bytes()...), collectionID...)
	return new(big.Int).SetBytes(crypto.Keccak256(posInput)), nil
}

func binaryPartition() []*big.Int {
	return []*big.Int{big.NewInt(1), big.NewInt(2)} // indexSets: YES=1, NO=2
}

func moneyToUnits(m types.Money) *big.Int {
	units := m.Decimal().Mul(unitScale).Truncate(0)
	result, ok := new(big.Int).SetString(units.String(), 10)
	if !ok {
		return big.NewInt(0)
	}
	return result
}

func unitsToMoney(units *big.Int) types.Money {
	d := decimal.NewFromBigInt(units, 0).Div(unitScale)
	m, _ := types.NewMoney(d.StringFixed(6))
	return m
}

func hexToBytes32(hexStr string) ([32]byte, error) {
	hexStr = strings.TrimPrefix(hexStr, "0x")
	if len(hexStr)%2 != 0 {
		hexStr = "0" + hexStr
	}
	var out [32]byte
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return out, fmt.Errorf("decode hex: %w", err)
	}
	if len(b) > 32 {
		return out, fmt.Errorf("hex too long: %d bytes", len(b))
	}
	copy(out[32-len(b):], b)
	return out, nil
}
