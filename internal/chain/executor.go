// Package chain implements the on-chain wallet-transaction serializer: a
// single-writer queued executor over a smart-contract wallet (proxy wallet
// or Gnosis-Safe-style multisig) that holds collateral but is authorized by
// an external EOA signing key.
package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"mmterm/internal/config"
)

const walletABIJSON = `[{
	"name":"exec",
	"type":"function",
	"inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"signatures","type":"bytes"}
	],
	"outputs":[{"name":"","type":"bool"}]
},{
	"name":"getTransactionHash",
	"type":"function",
	"inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"_nonce","type":"uint256"}
	],
	"outputs":[{"name":"","type":"bytes32"}]
},{
	"name":"nonce",
	"type":"function",
	"inputs":[],
	"outputs":[{"name":"","type":"uint256"}]
}]`

// operationCall is the Safe/proxy-wallet "operation" code for a plain CALL
// (as opposed to DELEGATECALL).
const operationCall = uint8(0)

// Receipt is the confirmed result of one exec call.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
}

type execRequest struct {
	ctx      context.Context
	target   common.Address
	calldata []byte
	label    string
	reply    chan execResult
}

type execResult struct {
	receipt Receipt
	err     error
}

// Executor is the sole funnel for on-chain writes. One goroutine (Run)
// drains a many-producer, one-consumer channel, so operation N+1 never
// begins its nonce read until operation N's exec call has resolved.
type Executor struct {
	key        *ecdsa.PrivateKey
	signerAddr common.Address
	addrs      Addresses
	eth        *ethclient.Client
	walletABI  abi.ABI
	chainID    *big.Int

	feeFloorWei *big.Int
	feeCapWei   *big.Int
	retryN      int
	retryWait   time.Duration

	dryRun bool
	logger *slog.Logger
	reqCh  chan execRequest
}

// New connects to the configured RPC endpoint and prepares the executor.
// It does not start the run loop; call Run in its own goroutine.
func New(cc config.ChainConfig, key *ecdsa.PrivateKey, addrs Addresses, dryRun bool, logger *slog.Logger) (*Executor, error) {
	walletABI, err := abi.JSON(strings.NewReader(walletABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse wallet abi: %w", err)
	}

	var eth *ethclient.Client
	if !dryRun {
		eth, err = ethclient.Dial(cc.RPCURL)
		if err != nil {
			return nil, fmt.Errorf("dial rpc %s: %w", cc.RPCURL, err)
		}
	}

	gweiToWei := func(g int64) *big.Int {
		return new(big.Int).Mul(big.NewInt(g), big.NewInt(1_000_000_000))
	}

	return &Executor{
		key:         key,
		signerAddr:  crypto.PubkeyToAddress(key.PublicKey),
		addrs:       addrs,
		eth:         eth,
		walletABI:   walletABI,
		chainID:     big.NewInt(cc.ChainID),
		feeFloorWei: gweiToWei(cc.FeeFloorGwei),
		feeCapWei:   gweiToWei(cc.FeeCapGwei),
		retryN:      cc.TxRetryAttempts,
		retryWait:   cc.TxRetryBackoff,
		dryRun:      dryRun,
		logger:      logger,
		reqCh:       make(chan execRequest, 32),
	}, nil
}

// Run drains the request queue until ctx is cancelled. A failure on one
// request does not poison the queue for the next — the loop always
// continues to the next receive.
func (e *Executor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-e.reqCh:
			receipt, err := e.execOnce(req.ctx, req.target, req.calldata, req.label)
			req.reply <- execResult{receipt: receipt, err: err}
		}
	}
}

// Exec is the sole public operation: serialize a contract call through the
// wallet and wait for it to resolve (success or terminal failure).
func (e *Executor) Exec(ctx context.Context, target common.Address, calldata []byte, label string) (Receipt, error) {
	reply := make(chan execResult, 1)
	select {
	case e.reqCh <- execRequest{ctx: ctx, target: target, calldata: calldata, label: label, reply: reply}:
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
	select {
	case res := <-reply:
		return res.receipt, res.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

func (e *Executor) execOnce(ctx context.Context, target common.Address, calldata []byte, label string) (Receipt, error) {
	if e.dryRun {
		e.logger.Info("chain exec (dry-run)", "label", label, "target", target.Hex())
		return Receipt{TxHash: common.Hash{}}, nil
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryN; attempt++ {
		if attempt > 0 {
			e.logger.Warn("chain exec retry", "label", label, "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(e.retryWait):
			case <-ctx.Done():
				return Receipt{}, ctx.Err()
			}
		}

		receipt, err := e.attemptExec(ctx, target, calldata, label)
		if err == nil {
			return receipt, nil
		}
		if !classifyTransient(err) {
			reason := classifyTerminalReason(err)
			e.logger.Error("chain exec terminal failure", "label", label, "reason", reason, "error", err)
			return Receipt{}, newTerminalError(reason, err)
		}
		lastErr = err
	}
	e.logger.Error("chain exec exhausted retries", "label", label, "error", lastErr)
	return Receipt{}, newTerminalError("transient RPC failure, retries exhausted", lastErr)
}

// attemptExec performs one nonce-read + sign + submit + wait-for-receipt
// cycle. Grounded on the Gnosis-Safe execTransaction pattern: nonce(),
// getTransactionHash(to,value,data,operation,...,nonce), raw-sign, exec.
func (e *Executor) attemptExec(ctx context.Context, target common.Address, calldata []byte, label string) (Receipt, error) {
	zero := big.NewInt(0)
	zeroAddr := common.Address{}

	nonceCalldata, err := e.walletABI.Pack("nonce")
	if err != nil {
		return Receipt{}, fmt.Errorf("pack nonce: %w", err)
	}
	nonceResult, err := e.eth.CallContract(ctx, ethereum.CallMsg{To: &e.addrs.Wallet, Data: nonceCalldata}, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("read wallet nonce: %w", err)
	}
	walletNonce := new(big.Int).SetBytes(nonceResult)

	hashCalldata, err := e.walletABI.Pack("getTransactionHash",
		target, zero, calldata, operationCall, zero, zero, zero, zeroAddr, zeroAddr, walletNonce)
	if err != nil {
		return Receipt{}, fmt.Errorf("pack getTransactionHash: %w", err)
	}
	hashResult, err := e.eth.CallContract(ctx, ethereum.CallMsg{To: &e.addrs.Wallet, Data: hashCalldata}, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("wallet tx hash call: %w", err)
	}
	if len(hashResult) < 32 {
		return Receipt{}, fmt.Errorf("unexpected tx hash result length: %d", len(hashResult))
	}
	var txHash [32]byte
	copy(txHash[:], hashResult[:32])

	sig, err := crypto.Sign(txHash[:], e.key)
	if err != nil {
		return Receipt{}, fmt.Errorf("sign wallet tx hash: %w", err)
	}
	if sig[64] < 27 {
		sig[64] += 27
	}

	execCalldata, err := e.walletABI.Pack("exec",
		target, zero, calldata, operationCall, zero, zero, zero, zeroAddr, zeroAddr, sig)
	if err != nil {
		return Receipt{}, fmt.Errorf("pack exec: %w", err)
	}

	signerNonce, err := e.eth.PendingNonceAt(ctx, e.signerAddr)
	if err != nil {
		return Receipt{}, fmt.Errorf("read signer nonce: %w", err)
	}

	gasLimit, err := e.eth.EstimateGas(ctx, ethereum.CallMsg{From: e.signerAddr, To: &e.addrs.Wallet, Data: execCalldata})
	if err != nil {
		return Receipt{}, fmt.Errorf("estimate gas: %w", err)
	}
	gasLimit = gasLimit * 12 / 10 // +20% buffer

	tip, err := e.eth.SuggestGasTipCap(ctx)
	if err != nil {
		return Receipt{}, fmt.Errorf("suggest gas tip cap: %w", err)
	}
	tip = e.clampFee(tip)
	head, err := e.eth.HeaderByNumber(ctx, nil)
	if err != nil {
		return Receipt{}, fmt.Errorf("read latest header: %w", err)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	feeCap = e.clampFee(feeCap)

	tx := gethtypes.NewTx(&gethtypes.DynamicFeeTx{
		ChainID:   e.chainID,
		Nonce:     signerNonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gasLimit,
		To:        &e.addrs.Wallet,
		Value:     zero,
		Data:      execCalldata,
	})
	signedTx, err := gethtypes.SignTx(tx, gethtypes.NewLondonSigner(e.chainID), e.key)
	if err != nil {
		return Receipt{}, fmt.Errorf("sign tx: %w", err)
	}

	if err := e.eth.SendTransaction(ctx, signedTx); err != nil {
		return Receipt{}, fmt.Errorf("send tx: %w", err)
	}
	e.logger.Info("chain exec submitted", "label", label, "tx_hash", signedTx.Hash().Hex())

	return e.waitForReceipt(ctx, signedTx.Hash())
}

// clampFee enforces the priority-fee floor of 30 gwei and the cap of 500
// gwei; if the node's fee oracle returns a tip below the floor, the floor is
// used instead.
func (e *Executor) clampFee(fee *big.Int) *big.Int {
	if fee.Cmp(e.feeFloorWei) < 0 {
		return new(big.Int).Set(e.feeFloorWei)
	}
	if fee.Cmp(e.feeCapWei) > 0 {
		return new(big.Int).Set(e.feeCapWei)
	}
	return fee
}

func (e *Executor) waitForReceipt(ctx context.Context, txHash common.Hash) (Receipt, error) {
	for {
		receipt, err := e.eth.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status == gethtypes.ReceiptStatusSuccessful {
				return Receipt{TxHash: txHash, BlockNumber: receipt.BlockNumber.Uint64()}, nil
			}
			return Receipt{}, fmt.Errorf("execution reverted: tx %s reverted in block %d", txHash.Hex(), receipt.BlockNumber)
		}
		select {
		case <-ctx.Done():
			return Receipt{}, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}
