package application

import (
	"context"
	"time"

	"github.com/tokenfund/mintd/internal/core/domain"
)

type Service interface {
	Start() error
	Stop()
	// Done is closed once the sales run reaches its terminal state.
	Done() <-chan struct{}
	// Halted is closed when the run stops on an unrecoverable error, Err
	// then returns it.
	Halted() <-chan struct{}
	Err() error
	GetStatus(ctx context.Context) (*Status, error)
	ListAttempts(ctx context.Context, failedOnly bool) ([]domain.Attempt, error)
}

type Config struct {
	TreasuryAddress string
	// Fee is the exact payment, in lovelace, that buys one token.
	Fee        uint64
	SlotMargin uint64

	StartingID int
	TotalMint  int
	RefundTime time.Duration

	IdleBackoff       time.Duration
	CycleBackoff      time.Duration
	HeartbeatInterval time.Duration

	MintTxDir         string
	RefundTxDir       string
	PaymentSigningKey string
	PolicySigningKey  string
}

type Status struct {
	Phase          domain.Phase
	State          string
	NextTokenID    int
	TotalMint      int
	Watermark      int
	RefundDeadline time.Time
	Minted         int64
	Refunded       int64
	Failed         int64
}
