package domain

import (
	"fmt"
	"path/filepath"
)

const DefaultAccompanyingLovelace uint64 = 1_400_000

type MintRequest struct {
	TokenID              int
	Source               UnspentOutput
	MintAddress          string
	TreasuryAddress      string
	AccompanyingLovelace uint64
}

func NewMintRequest(
	tokenID int, source UnspentOutput, mintAddress, treasuryAddress string,
) MintRequest {
	return MintRequest{
		TokenID:              tokenID,
		Source:               source,
		MintAddress:          mintAddress,
		TreasuryAddress:      treasuryAddress,
		AccompanyingLovelace: DefaultAccompanyingLovelace,
	}
}

type BuiltTransaction struct {
	RawFile    string
	SignedFile string
}

func NewMintTransaction(dir string, tokenID int) BuiltTransaction {
	name := fmt.Sprintf("matx%d", tokenID)
	return BuiltTransaction{
		RawFile:    filepath.Join(dir, name+".raw"),
		SignedFile: filepath.Join(dir, name+".signed"),
	}
}

func NewRefundTransaction(dir string, source Outpoint) BuiltTransaction {
	return BuiltTransaction{
		RawFile:    filepath.Join(dir, source.FileKey()+".raw"),
		SignedFile: filepath.Join(dir, source.FileKey()+".signed"),
	}
}

// RefundDraftFile is the throwaway transaction used only to quote the fee.
func RefundDraftFile(dir string, source Outpoint) string {
	return filepath.Join(dir, source.FileKey()+".draft")
}
