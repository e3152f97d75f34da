package wallet

import "github.com/btcsuite/btcd/chaincfg"

// Network names the underlying Bitcoin-style chain a node anchors to. It
// picks the address encoding for funding payments and whether a faucet is
// expected to exist.
type Network string

const (
	Regtest Network = "regtest"
	Testnet Network = "testnet"
	Mainnet Network = "mainnet"
)

// Params maps the network onto btcsuite chain parameters for address
// rendering.
func (n Network) Params() *chaincfg.Params {
	switch n {
	case Mainnet:
		return &chaincfg.MainNetParams
	case Testnet:
		return &chaincfg.TestNet3Params
	default:
		return &chaincfg.RegressionNetParams
	}
}

// HasFaucet reports whether nodes on this network conventionally run a
// faucet. Probing still decides at runtime; this only orders candidates.
func (n Network) HasFaucet() bool {
	return n != Mainnet
}
