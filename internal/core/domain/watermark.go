package domain

// Watermark is the exclusive lower bound on output indexes already acted upon.
type Watermark struct {
	LastSeenOutputIndex int
}

func NewWatermark() Watermark {
	return Watermark{LastSeenOutputIndex: -1}
}

// Admits tells whether the output is past the watermark.
func (w Watermark) Admits(out UnspentOutput) bool {
	return out.OutputIndex > w.LastSeenOutputIndex
}

// Advance moves the watermark to index. It never moves backwards.
func (w Watermark) Advance(index int) Watermark {
	if index > w.LastSeenOutputIndex {
		return Watermark{LastSeenOutputIndex: index}
	}
	return w
}
