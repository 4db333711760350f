package domain

import "time"

type Phase string

const (
	PhaseMint   Phase = "mint"
	PhaseRefund Phase = "refund"
	PhaseDone   Phase = "done"
)

// Checkpoint is the persisted progress of a sales run.
type Checkpoint struct {
	Phase          Phase
	NextTokenID    int
	Watermark      Watermark
	RefundDeadline int64
	UpdatedAt      int64
}

func NewCheckpoint(startingID int) *Checkpoint {
	return &Checkpoint{
		Phase:       PhaseMint,
		NextTokenID: startingID,
		Watermark:   NewWatermark(),
		UpdatedAt:   time.Now().Unix(),
	}
}

func (c *Checkpoint) StartRefund(deadline time.Time) {
	c.Phase = PhaseRefund
	c.RefundDeadline = deadline.Unix()
	c.UpdatedAt = time.Now().Unix()
}

func (c *Checkpoint) Finish() {
	c.Phase = PhaseDone
	c.UpdatedAt = time.Now().Unix()
}

func (c *Checkpoint) Deadline() time.Time {
	return time.Unix(c.RefundDeadline, 0)
}
