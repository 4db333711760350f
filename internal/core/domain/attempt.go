package domain

import (
	"time"

	"github.com/google/uuid"
)

type AttemptKind string

const (
	AttemptMint   AttemptKind = "mint"
	AttemptRefund AttemptKind = "refund"
)

type AttemptStage string

const (
	StageResolving  AttemptStage = "resolving"
	StageQuoting    AttemptStage = "quoting"
	StageBuilding   AttemptStage = "building"
	StageSigning    AttemptStage = "signing"
	StageSubmitting AttemptStage = "submitting"
)

type AttemptStatus string

const (
	AttemptPending   AttemptStatus = "pending"
	AttemptSubmitted AttemptStatus = "submitted"
	AttemptFailed    AttemptStatus = "failed"
)

// Attempt is the durable record of a single mint or refund.
// Failed attempts are left for manual recovery.
type Attempt struct {
	ID          string
	Kind        AttemptKind
	TokenID     int
	Source      Outpoint
	Destination string
	Lovelace    uint64
	Fee         uint64
	Stage       AttemptStage
	Status      AttemptStatus
	Reason      string
	RawFile     string
	SignedFile  string
	CreatedAt   int64
	UpdatedAt   int64
}

func NewMintAttempt(tokenID int, source UnspentOutput) *Attempt {
	now := time.Now().Unix()
	return &Attempt{
		ID:        uuid.New().String(),
		Kind:      AttemptMint,
		TokenID:   tokenID,
		Source:    source.Outpoint,
		Lovelace:  source.Lovelace,
		Stage:     StageResolving,
		Status:    AttemptPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func NewRefundAttempt(source UnspentOutput) *Attempt {
	now := time.Now().Unix()
	return &Attempt{
		ID:        uuid.New().String(),
		Kind:      AttemptRefund,
		Source:    source.Outpoint,
		Lovelace:  source.Lovelace,
		Stage:     StageResolving,
		Status:    AttemptPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (a *Attempt) MoveTo(stage AttemptStage) {
	a.Stage = stage
	a.UpdatedAt = time.Now().Unix()
}

func (a *Attempt) Fail(err error) {
	a.Status = AttemptFailed
	if err != nil {
		a.Reason = err.Error()
	}
	a.UpdatedAt = time.Now().Unix()
}

func (a *Attempt) Succeed() {
	a.Status = AttemptSubmitted
	a.Reason = ""
	a.UpdatedAt = time.Now().Unix()
}

func (a *Attempt) IsFailed() bool {
	return a.Status == AttemptFailed
}
