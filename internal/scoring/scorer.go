package scoring

import (
	"context"
	"errors"
	"math"
)

// ErrAbsent is reported by TryScore when the document has no value for the field.
var ErrAbsent = errors.New("document has no vector value")

// DocValues returns the raw doc-value bytes stored for a document field.
// ok is false when the document has no value for the field.
type DocValues interface {
	BinaryValue(ctx context.Context, field, docID string) (value []byte, ok bool, err error)
}

// DocumentScorer scores documents against one QueryState using a private scratch buffer.
// It is not safe for concurrent use.
type DocumentScorer struct {
	query   *QueryState
	scratch []float64
}

// Query returns the compiled query this scorer reads.
func (s *DocumentScorer) Query() *QueryState {
	return s.query
}

// Score returns the score for raw doc-value bytes, or 0 when raw is empty or cannot be decoded.
func (s *DocumentScorer) Score(raw []byte) float64 {
	score, err := s.TryScore(raw)
	if err != nil {
		return 0
	}
	return score
}

// TryScore is Score with the reason for a zero score: ErrAbsent for an empty value,
// otherwise the codec error.
func (s *DocumentScorer) TryScore(raw []byte) (float64, error) {
	if len(raw) == 0 {
		return 0, ErrAbsent
	}
	q := s.query
	docNorm, err := q.codec.Decode(s.scratch, raw)
	if err != nil {
		return 0, err
	}

	var dot float64
	for i, v := range s.scratch {
		dot += v * q.vector[i]
	}
	if !q.cosine {
		return dot, nil
	}

	if !q.useStoredNorm {
		var sum float64
		for _, v := range s.scratch {
			sum += v * v
		}
		docNorm = math.Sqrt(sum)
	}
	// dot/qn/dn, not dot/(qn*dn); the rounding must match previously computed scores
	dot /= q.norm
	dot /= docNorm
	return dot, nil
}

// ScoreDocument reads the document's value through dv and scores it.
// A missing value or a read error scores 0.
func (s *DocumentScorer) ScoreDocument(ctx context.Context, dv DocValues, docID string) float64 {
	raw, ok, err := dv.BinaryValue(ctx, s.query.field, docID)
	if err != nil || !ok {
		return 0
	}
	return s.Score(raw)
}
