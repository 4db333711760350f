package application

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
	"github.com/tokenfund/mintd/internal/core/ports"
	"github.com/tokenfund/mintd/pkg/errors"
)

const (
	// Builds below the ledger minimum are retried once with the reported value.
	maxMinUTXORetries = 1
	mintWitnesses     = 2

	refundDraftInputs    = 1
	refundDraftOutputs   = 2
	refundDraftWitnesses = 1
)

type txBuilder struct {
	ledger          ports.LedgerClient
	metadata        ports.MetadataProvider
	treasuryAddress string
	slotMargin      uint64
	mintTxDir       string
	refundTxDir     string
	paymentKey      string
	policyKey       string
	metrics         *metrics
}

func newTxBuilder(
	ledger ports.LedgerClient, metadata ports.MetadataProvider, cfg Config, m *metrics,
) *txBuilder {
	return &txBuilder{
		ledger:          ledger,
		metadata:        metadata,
		treasuryAddress: cfg.TreasuryAddress,
		slotMargin:      cfg.SlotMargin,
		mintTxDir:       cfg.MintTxDir,
		refundTxDir:     cfg.RefundTxDir,
		paymentKey:      cfg.PaymentSigningKey,
		policyKey:       cfg.PolicySigningKey,
		metrics:         m,
	}
}

// mint builds the transaction that spends the payment and sends the freshly
// minted token, plus the accompanying lovelace, to the payer.
// req.AccompanyingLovelace is left at the amount of the last build.
func (b *txBuilder) mint(
	ctx context.Context, req *domain.MintRequest,
) (*domain.BuiltTransaction, error) {
	metadataFile, err := b.metadata.MetadataFile(ctx, req.TokenID)
	if err != nil {
		return nil, asMetadataUnavailable(err, req.TokenID)
	}
	policyID, err := b.metadata.PolicyID(ctx)
	if err != nil {
		return nil, asMetadataUnavailable(err, req.TokenID)
	}

	asset := domain.Asset{
		PolicyID:  policyID,
		AssetName: b.metadata.AssetName(req.TokenID),
		Quantity:  1,
	}
	tx := domain.NewMintTransaction(b.mintTxDir, req.TokenID)

	for retries := 0; ; retries++ {
		slot, err := b.ledger.CurrentSlot(ctx)
		if err != nil {
			return nil, err
		}
		expiry := domain.ChainPosition{Slot: slot}.Expiry(b.slotMargin)

		_, err = b.ledger.BuildTransaction(ctx, ports.BuildRequest{
			Inputs: []domain.Outpoint{req.Source.Outpoint},
			Outputs: []ports.TxOutput{{
				Address:  req.MintAddress,
				Lovelace: req.AccompanyingLovelace,
				Assets:   []domain.Asset{asset},
			}},
			Mint: &ports.MintSpec{
				Assets:     []domain.Asset{asset},
				ScriptFile: b.metadata.PolicyScriptFile(),
			},
			ChangeAddress:    req.TreasuryAddress,
			InvalidHereafter: expiry,
			MetadataFile:     metadataFile,
			WitnessOverride:  mintWitnesses,
			OutFile:          tx.RawFile,
		})
		if err == nil {
			return &tx, nil
		}

		md, ok := errors.MIN_UTXO_VIOLATION.Match(err)
		if !ok {
			return nil, err
		}
		if retries >= maxMinUTXORetries {
			return nil, errors.BUILD_REJECTED.New(
				"output still below the ledger minimum with %d lovelace: %s",
				req.AccompanyingLovelace, err,
			).WithMetadata(errors.BuildMetadata{TxFile: tx.RawFile})
		}

		log.WithFields(log.Fields{
			"token_id":     req.TokenID,
			"lovelace":     req.AccompanyingLovelace,
			"min_lovelace": md.MinLovelace,
		}).Debug("raising accompanying lovelace to ledger minimum")
		b.metrics.minUTXORetry(ctx)
		req.AccompanyingLovelace = md.MinLovelace
	}
}

func (b *txBuilder) signMint(ctx context.Context, tx domain.BuiltTransaction) error {
	_, err := b.ledger.Sign(
		ctx, tx.RawFile, []string{b.paymentKey, b.policyKey}, tx.SignedFile,
	)
	return err
}

// quoteRefundFee prices the refund of source with a throwaway draft that is
// never submitted.
func (b *txBuilder) quoteRefundFee(
	ctx context.Context, source domain.UnspentOutput, refundAddress string,
) (uint64, error) {
	draft, err := b.ledger.BuildRawTransaction(ctx, ports.RawBuildRequest{
		Inputs: []domain.Outpoint{source.Outpoint},
		Outputs: []ports.TxOutput{
			{Address: refundAddress, Lovelace: source.Lovelace},
			{Address: b.treasuryAddress, Lovelace: 0},
		},
		Fee:     0,
		TTL:     0,
		OutFile: domain.RefundDraftFile(b.refundTxDir, source.Outpoint),
	})
	if err != nil {
		return 0, err
	}

	return b.ledger.EstimateMinFee(ctx, ports.FeeRequest{
		TxFile:       draft.TxFile,
		InputCount:   refundDraftInputs,
		OutputCount:  refundDraftOutputs,
		WitnessCount: refundDraftWitnesses,
	})
}

func (b *txBuilder) buildRefund(
	ctx context.Context, req domain.RefundRequest,
) (*domain.BuiltTransaction, error) {
	if req.MinerFee > req.GrossAmount || req.NetAmount != req.GrossAmount-req.MinerFee {
		return nil, insufficientFunds(req.Source, req.MinerFee)
	}

	slot, err := b.ledger.CurrentSlot(ctx)
	if err != nil {
		return nil, err
	}

	tx := domain.NewRefundTransaction(b.refundTxDir, req.Source.Outpoint)
	if _, err := b.ledger.BuildRawTransaction(ctx, ports.RawBuildRequest{
		Inputs: []domain.Outpoint{req.Source.Outpoint},
		Outputs: []ports.TxOutput{
			{Address: req.RefundAddress, Lovelace: req.NetAmount},
		},
		Fee:     req.MinerFee,
		TTL:     domain.ChainPosition{Slot: slot}.Expiry(b.slotMargin),
		OutFile: tx.RawFile,
	}); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (b *txBuilder) signRefund(ctx context.Context, tx domain.BuiltTransaction) error {
	_, err := b.ledger.Sign(ctx, tx.RawFile, []string{b.paymentKey}, tx.SignedFile)
	return err
}

func (b *txBuilder) submit(ctx context.Context, tx domain.BuiltTransaction) error {
	return b.ledger.Submit(ctx, tx.SignedFile)
}

func asMetadataUnavailable(err error, tokenID int) error {
	if errors.METADATA_UNAVAILABLE.Is(err) {
		return err
	}
	return errors.METADATA_UNAVAILABLE.Wrap(
		fmt.Errorf("token %d: %w", tokenID, err),
	).WithMetadata(errors.MetadataUnavailableMetadata{TokenID: tokenID})
}

func insufficientFunds(source domain.UnspentOutput, fee uint64) error {
	return errors.INSUFFICIENT_FUNDS_FOR_REFUND.New(
		"fee %d exceeds the %d lovelace paid", fee, source.Lovelace,
	).WithMetadata(errors.InsufficientFundsMetadata{
		Outpoint: source.String(),
		Gross:    source.Lovelace,
		Fee:      fee,
	})
}
