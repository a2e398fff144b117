package trainer

import (
	"fmt"
	"path/filepath"

	"mutation-ner/internal/encoding"
	"mutation-ner/internal/labels"

	ort "github.com/yalue/onnxruntime_go"
)

// Predictor runs a trained token classification model over encoded batches.
// The ONNX runtime environment must be initialized before loading a model.
type Predictor struct {
	session    *ort.DynamicAdvancedSession
	numClasses int
}

// LoadPredictor opens the exported ONNX model in modelDir. The model takes
// input_ids and attention_mask tensors and produces per-subword logits.
func LoadPredictor(modelDir string, numClasses int) (*Predictor, error) {
	session, err := ort.NewDynamicAdvancedSession(
		filepath.Join(modelDir, "model.onnx"),
		[]string{"input_ids", "attention_mask"},
		[]string{"logits"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session for %s: %w", modelDir, err)
	}

	return &Predictor{session: session, numClasses: numClasses}, nil
}

// Forward runs one batch through the model and returns the flat
// [size * seqLen * numClasses] logits.
func (p *Predictor) Forward(batch encoding.Batch) ([]float32, error) {
	shape := ort.NewShape(int64(batch.Size), int64(batch.SeqLen))

	idsT, err := ort.NewTensor(shape, batch.InputIDs)
	if err != nil {
		return nil, err
	}
	defer idsT.Destroy()

	maskT, err := ort.NewTensor(shape, batch.AttentionMask)
	if err != nil {
		return nil, err
	}
	defer maskT.Destroy()

	outT, err := ort.NewEmptyTensor[float32](ort.NewShape(int64(batch.Size), int64(batch.SeqLen), int64(p.numClasses)))
	if err != nil {
		return nil, err
	}
	defer outT.Destroy()

	if err := p.session.Run([]ort.Value{idsT, maskT}, []ort.Value{outT}); err != nil {
		return nil, fmt.Errorf("session run error: %w", err)
	}

	logits := make([]float32, len(outT.GetData()))
	copy(logits, outT.GetData())
	return logits, nil
}

// PredictTags runs the model over the whole dataset and returns word-level
// predicted and gold tag sequences, ready for span-based scoring.
func (p *Predictor) PredictTags(dataset *encoding.Dataset, batchSize int, vocab *labels.Vocabulary) (predSeqs, goldSeqs [][]string, err error) {
	for _, batch := range dataset.Batches(batchSize) {
		logits, err := p.Forward(batch)
		if err != nil {
			return nil, nil, err
		}

		preds, err := encoding.Argmax(logits, batch.Size, batch.SeqLen, p.numClasses)
		if err != nil {
			return nil, nil, err
		}

		batchPreds, batchGold, err := encoding.AlignPredictions(preds, batch.LabelRows(), vocab)
		if err != nil {
			return nil, nil, err
		}

		predSeqs = append(predSeqs, batchPreds...)
		goldSeqs = append(goldSeqs, batchGold...)
	}
	return predSeqs, goldSeqs, nil
}

func (p *Predictor) Release() {
	p.session.Destroy()
}
