package encoding

// Dataset is one encoded corpus split. It is built once, before the first
// trial, and shared read-only across all trials of a sweep.
type Dataset struct {
	Sentences []EncodedSentence
}

func (d *Dataset) Len() int {
	return len(d.Sentences)
}

// Batch holds a fixed-size group of sentences padded to a common sequence
// length, laid out flat for tensor construction. Padding positions carry
// input id 0, attention mask 0, and the ignore label.
type Batch struct {
	InputIDs      []int64
	AttentionMask []int64
	Labels        []int64
	Size          int
	SeqLen        int
}

// Batches groups the dataset into batches of at most batchSize sentences,
// preserving order. Each batch is padded to its own longest sentence.
func (d *Dataset) Batches(batchSize int) []Batch {
	if batchSize <= 0 {
		batchSize = 1
	}

	var batches []Batch
	for start := 0; start < len(d.Sentences); start += batchSize {
		end := min(start+batchSize, len(d.Sentences))
		batches = append(batches, padBatch(d.Sentences[start:end]))
	}
	return batches
}

func padBatch(sentences []EncodedSentence) Batch {
	seqLen := 0
	for _, s := range sentences {
		if len(s.InputIDs) > seqLen {
			seqLen = len(s.InputIDs)
		}
	}

	b := Batch{
		InputIDs:      make([]int64, len(sentences)*seqLen),
		AttentionMask: make([]int64, len(sentences)*seqLen),
		Labels:        make([]int64, len(sentences)*seqLen),
		Size:          len(sentences),
		SeqLen:        seqLen,
	}

	for i, s := range sentences {
		row := i * seqLen
		copy(b.InputIDs[row:], s.InputIDs)
		copy(b.AttentionMask[row:], s.AttentionMask)
		for j := 0; j < seqLen; j++ {
			if j < len(s.Labels) {
				b.Labels[row+j] = s.Labels[j]
			} else {
				b.Labels[row+j] = IgnoreIndex
			}
		}
	}
	return b
}

// LabelRows returns the batch's label sequences row by row.
func (b *Batch) LabelRows() [][]int64 {
	rows := make([][]int64, b.Size)
	for i := 0; i < b.Size; i++ {
		rows[i] = b.Labels[i*b.SeqLen : (i+1)*b.SeqLen]
	}
	return rows
}
