package domain

type EventType string

const (
	EventPaymentDetected EventType = "PaymentDetected"
	EventTokenMinted     EventType = "TokenMinted"
	EventRefundSubmitted EventType = "RefundSubmitted"
	EventAttemptFailed   EventType = "AttemptFailed"
)

const SalesTopic = "sales"

type Event interface {
	GetType() EventType
}

type PaymentDetected struct {
	Phase  Phase
	Output UnspentOutput
}

func (e PaymentDetected) GetType() EventType { return EventPaymentDetected }

type TokenMinted struct {
	TokenID     int
	Source      Outpoint
	MintAddress string
	AssetName   string
	Lovelace    uint64
	SignedFile  string
}

func (e TokenMinted) GetType() EventType { return EventTokenMinted }

type RefundSubmitted struct {
	Source        Outpoint
	RefundAddress string
	NetAmount     uint64
	MinerFee      uint64
	SignedFile    string
}

func (e RefundSubmitted) GetType() EventType { return EventRefundSubmitted }

type AttemptFailedEvent struct {
	AttemptID string
	Kind      AttemptKind
	TokenID   int
	Source    Outpoint
	Stage     AttemptStage
	Reason    string
}

func (e AttemptFailedEvent) GetType() EventType { return EventAttemptFailed }
