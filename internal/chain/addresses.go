package chain

import "github.com/ethereum/go-ethereum/common"

// Addresses is a strongly-typed record of every contract address the engine
// calls through. Built once at bootstrap and passed by value — replaces the
// address-booked package-level singletons the source used.
type Addresses struct {
	Wallet            common.Address // the smart-contract wallet (proxy/Safe) executor writes go through
	ConditionalTokens common.Address
	Collateral        common.Address
	Exchange          common.Address
	NegRiskExchange   common.Address
	NegRiskAdapter    common.Address
}

// Exchange returns the operator address approvals must target for a market,
// selecting the neg-risk exchange when the market carries that flag.
func (a Addresses) ExchangeFor(negRisk bool) common.Address {
	if negRisk {
		return a.NegRiskExchange
	}
	return a.Exchange
}
