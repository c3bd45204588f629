package engine

import (
	"context"
	"fmt"
	"math"

	"github.com/Kagami/go-face"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/logging"
)

// Recognizer compares faces with dlib descriptors via go-face. The model is
// loaded once at construction so the first request does not pay the warm-up
// cost.
type Recognizer struct {
	rec    *face.Recognizer
	logger *zap.Logger
}

// NewRecognizer loads the dlib models from modelsDir and returns a ready
// comparator.
func NewRecognizer(modelsDir string, logger *zap.Logger) (*Recognizer, error) {
	rec, err := face.NewRecognizer(modelsDir)
	if err != nil {
		return nil, logging.NewOperationError("engine.load_model", "", err)
	}
	return &Recognizer{rec: rec, logger: logger.Named("engine")}, nil
}

// Close releases the underlying dlib resources.
func (r *Recognizer) Close() {
	r.rec.Close()
}

// Compare extracts one face descriptor from each image and returns the
// Euclidean distance between them, clamped to [0,1]. Descriptor extraction
// blocks for the full inference duration.
func (r *Recognizer) Compare(ctx context.Context, livePath, refPath string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	live, err := r.recognizeOne(livePath)
	if err != nil {
		return 0, fmt.Errorf("live capture: %w", err)
	}
	ref, err := r.recognizeOne(refPath)
	if err != nil {
		return 0, fmt.Errorf("reference: %w", err)
	}

	distance := math.Sqrt(float64(face.SquaredEuclideanDistance(live.Descriptor, ref.Descriptor)))
	if distance > 1 {
		distance = 1
	}

	r.logger.Debug("descriptor distance computed",
		zap.String("live", livePath),
		zap.String("reference", refPath),
		zap.Float64("distance", distance))
	return distance, nil
}

func (r *Recognizer) recognizeOne(path string) (*face.Face, error) {
	f, err := r.rec.RecognizeSingleFile(path)
	if err != nil {
		return nil, fmt.Errorf("recognize %s: %w", path, err)
	}
	if f == nil {
		return nil, fmt.Errorf("no face found in %s", path)
	}
	return f, nil
}
