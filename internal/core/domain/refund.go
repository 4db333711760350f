package domain

import "fmt"

type RefundRequest struct {
	Source        UnspentOutput
	RefundAddress string
	GrossAmount   uint64
	MinerFee      uint64
	NetAmount     uint64
}

// NewRefundRequest fails closed if the fee exceeds what is being refunded.
func NewRefundRequest(
	source UnspentOutput, refundAddress string, minerFee uint64,
) (*RefundRequest, error) {
	if minerFee > source.Lovelace {
		return nil, fmt.Errorf(
			"fee %d exceeds refundable amount %d", minerFee, source.Lovelace,
		)
	}
	return &RefundRequest{
		Source:        source,
		RefundAddress: refundAddress,
		GrossAmount:   source.Lovelace,
		MinerFee:      minerFee,
		NetAmount:     source.Lovelace - minerFee,
	}, nil
}
