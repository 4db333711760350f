package domain

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

const TxHashLength = 64

type Outpoint struct {
	TxHash      string
	OutputIndex int
}

// FromString parses the hash#index form used by the ledger tooling.
func (o *Outpoint) FromString(s string) error {
	parts := strings.Split(s, "#")
	if len(parts) != 2 {
		return fmt.Errorf("invalid outpoint string: %s", s)
	}
	if !IsTxHash(parts[0]) {
		return fmt.Errorf("invalid tx hash: %s", parts[0])
	}
	index, err := strconv.Atoi(parts[1])
	if err != nil || index < 0 {
		return fmt.Errorf("invalid output index: %s", parts[1])
	}
	o.TxHash = parts[0]
	o.OutputIndex = index
	return nil
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s#%d", o.TxHash, o.OutputIndex)
}

// FileKey is the identifier used to name per-output artifacts on disk.
func (o Outpoint) FileKey() string {
	return fmt.Sprintf("%s_%d", o.TxHash, o.OutputIndex)
}

type UnspentOutput struct {
	Outpoint
	Address  string
	Lovelace uint64
}

// Qualifies tells whether the output carries exactly the required payment.
func (u UnspentOutput) Qualifies(fee uint64) bool {
	return u.Lovelace == fee
}

type ChainPosition struct {
	Slot uint64
}

func (c ChainPosition) Expiry(margin uint64) uint64 {
	return c.Slot + margin
}

type Asset struct {
	PolicyID  string
	AssetName string
	Quantity  uint64
}

// Unit returns the policy.assetname identifier of the asset.
func (a Asset) Unit() string {
	return fmt.Sprintf("%s.%s", a.PolicyID, a.AssetName)
}

func IsTxHash(s string) bool {
	if len(s) != TxHashLength {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
