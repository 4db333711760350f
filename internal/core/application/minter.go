package application

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tokenfund/mintd/internal/core/domain"
)

type minter struct {
	*orchestrator
}

func newMinter(o *orchestrator) *minter {
	return &minter{o}
}

// run mints tokens from checkpoint.NextTokenID up to the configured total,
// one per qualifying payment, and returns the final watermark.
// The loop is sequential: a payment is fully handled before the next poll.
func (m *minter) run(
	ctx context.Context, checkpoint *domain.Checkpoint,
) (domain.Watermark, error) {
	sleep := func(d time.Duration) error { return m.sleep(ctx, d) }

	m.setState(stateIdle)
	for {
		if checkpoint.NextTokenID > m.cfg.TotalMint {
			m.setState(stateDone)
			log.WithFields(log.Fields{
				"minted":    checkpoint.NextTokenID - m.cfg.StartingID,
				"watermark": checkpoint.Watermark.LastSeenOutputIndex,
			}).Info("mint phase completed")
			return checkpoint.Watermark, nil
		}
		if err := ctx.Err(); err != nil {
			return checkpoint.Watermark, err
		}

		m.setState(stateAwaitingPayment)
		payment, err := m.detect(ctx, domain.PhaseMint, checkpoint, sleep)
		if err != nil {
			return checkpoint.Watermark, err
		}
		if payment == nil {
			continue
		}

		if m.mint(ctx, checkpoint.NextTokenID, *payment) {
			checkpoint.NextTokenID++
			if err := m.saveCheckpoint(ctx, checkpoint); err != nil {
				return checkpoint.Watermark, err
			}
			m.metrics.tokenIDAdvanced(ctx, checkpoint.NextTokenID)
		}
		m.setState(stateAwaitingPayment)

		if checkpoint.NextTokenID > m.cfg.TotalMint {
			continue
		}
		if err := sleep(m.cfg.CycleBackoff); err != nil {
			return checkpoint.Watermark, err
		}
	}
}

// mint drives a single attempt through building, signing and submission.
// It reports whether the token was submitted.
func (m *minter) mint(ctx context.Context, tokenID int, payment domain.UnspentOutput) bool {
	attempt := domain.NewMintAttempt(tokenID, payment)
	m.addAttempt(ctx, attempt)

	mintAddress, err := m.resolvePayer(ctx, payment.TxHash)
	if err != nil {
		m.fail(ctx, attempt, err)
		return false
	}
	attempt.Destination = mintAddress

	m.setState(stateBuilding)
	attempt.MoveTo(domain.StageBuilding)
	req := domain.NewMintRequest(tokenID, payment, mintAddress, m.cfg.TreasuryAddress)
	tx, err := m.builder.mint(ctx, &req)
	if err != nil {
		m.fail(ctx, attempt, err)
		return false
	}
	attempt.RawFile = tx.RawFile
	attempt.SignedFile = tx.SignedFile

	m.setState(stateSigning)
	attempt.MoveTo(domain.StageSigning)
	if err := m.builder.signMint(ctx, *tx); err != nil {
		m.fail(ctx, attempt, err)
		return false
	}

	m.setState(stateSubmitting)
	attempt.MoveTo(domain.StageSubmitting)
	if err := m.builder.submit(ctx, *tx); err != nil {
		m.fail(ctx, attempt, err)
		return false
	}

	attempt.Succeed()
	m.updateAttempt(ctx, attempt)
	m.counters.minted.Add(1)
	m.metrics.attemptFinished(ctx, *attempt)
	m.metrics.lovelaceSent(ctx, domain.AttemptMint, req.AccompanyingLovelace)

	assetName := m.builder.metadata.AssetName(tokenID)
	m.publish(ctx, domain.TokenMinted{
		TokenID:     tokenID,
		Source:      payment.Outpoint,
		MintAddress: mintAddress,
		AssetName:   assetName,
		Lovelace:    payment.Lovelace,
		SignedFile:  tx.SignedFile,
	})

	log.WithFields(log.Fields{
		"token_id":     tokenID,
		"asset_name":   assetName,
		"mint_address": mintAddress,
		"tx_hash":      payment.TxHash,
		"tx_index":     payment.OutputIndex,
	}).Info("token minted")
	return true
}
