package ports

import (
	"context"

	"github.com/tokenfund/mintd/internal/core/domain"
)

type TxOutput struct {
	Address  string
	Lovelace uint64
	Assets   []domain.Asset
}

type MintSpec struct {
	Assets     []domain.Asset
	ScriptFile string
}

// BuildRequest describes an auto-balanced transaction: the ledger tooling
// computes the fee and routes whatever is left to ChangeAddress.
type BuildRequest struct {
	Inputs           []domain.Outpoint
	Outputs          []TxOutput
	Mint             *MintSpec
	ChangeAddress    string
	InvalidHereafter uint64
	MetadataFile     string
	WitnessOverride  int
	OutFile          string
}

// RawBuildRequest describes a transaction with an explicit fee and ttl.
type RawBuildRequest struct {
	Inputs  []domain.Outpoint
	Outputs []TxOutput
	Fee     uint64
	TTL     uint64
	OutFile string
}

type BuildResult struct {
	TxFile       string
	EstimatedFee uint64
}

type FeeRequest struct {
	TxFile       string
	InputCount   int
	OutputCount  int
	WitnessCount int
}

// ChainQuerier is the read side of the ledger.
type ChainQuerier interface {
	CurrentSlot(ctx context.Context) (uint64, error)
	// ListUnspentOutputs returns an empty list when the address has no outputs.
	ListUnspentOutputs(ctx context.Context, address string) ([]domain.UnspentOutput, error)
}

// TxTooling builds, signs and submits transactions.
//
// Build failures are reported as BUILD_REJECTED, or MIN_UTXO_VIOLATION when
// the ledger names the minimum value an output must carry.
type TxTooling interface {
	BuildTransaction(ctx context.Context, req BuildRequest) (*BuildResult, error)
	BuildRawTransaction(ctx context.Context, req RawBuildRequest) (*BuildResult, error)
	EstimateMinFee(ctx context.Context, req FeeRequest) (uint64, error)
	Sign(ctx context.Context, txFile string, signingKeys []string, outFile string) (string, error)
	Submit(ctx context.Context, signedTxFile string) error
}

type LedgerClient interface {
	ChainQuerier
	TxTooling
}

// PolicyTooling derives the identifiers of a native minting policy.
type PolicyTooling interface {
	GenerateKeys(ctx context.Context, verificationKeyFile, signingKeyFile string) error
	KeyHash(ctx context.Context, verificationKeyFile string) (string, error)
	PolicyID(ctx context.Context, scriptFile string) (string, error)
}
