package ports

import "context"

const (
	TokenMinted     Topic = "Token Minted"
	RefundSubmitted Topic = "Refund Submitted"
	AttemptFailed   Topic = "Attempt Failed"
	SalesCompleted  Topic = "Sales Completed"
	SalesHalted     Topic = "Sales Halted"
)

type Topic string

type Alerts interface {
	Publish(ctx context.Context, topic Topic, message interface{}) error
}

type TokenMintedAlert struct {
	TokenID     int
	AssetName   string
	MintAddress string
	Source      string
	Payment     uint64
}

type RefundSubmittedAlert struct {
	Source        string
	RefundAddress string
	NetAmount     uint64
	MinerFee      uint64
}

type AttemptFailedAlert struct {
	Kind    string
	TokenID int
	Source  string
	Stage   string
	Reason  string
}

type SalesHaltedAlert struct {
	Reason      string
	NextTokenID int
}

type SalesCompletedAlert struct {
	Minted    int
	Refunded  int
	Failed    int
	Watermark int
}
