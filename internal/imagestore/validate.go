package imagestore

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"go.uber.org/zap"
)

// IsLoadable reports whether the file at path decodes as a raster image.
// It is used both at startup to sanity-check the reference images and per
// request to reject a broken upload before the engine is invoked. The label
// only feeds the diagnostic log line.
func (s *Store) IsLoadable(path, label string) bool {
	file, err := os.Open(path)
	if err != nil {
		s.logger.Warn("image could not be opened",
			zap.String("label", label), zap.String("path", path), zap.Error(err))
		return false
	}
	defer file.Close()

	cfg, format, err := image.DecodeConfig(file)
	if err != nil {
		s.logger.Warn("image could not be decoded",
			zap.String("label", label), zap.String("path", path), zap.Error(err))
		return false
	}

	s.logger.Info("image loaded",
		zap.String("label", label),
		zap.String("format", format),
		zap.Int("width", cfg.Width),
		zap.Int("height", cfg.Height))
	return true
}

// ValidateReferences logs a warning for each configured reference image that
// is missing or undecodable. Startup continues either way; a bad reference
// simply fails its comparisons at request time.
func (s *Store) ValidateReferences(dualMode bool) {
	if !s.IsLoadable(s.bankPath, "bank") {
		s.logger.Warn("bank reference image is invalid or missing", zap.String("path", s.bankPath))
	}
	if dualMode && !s.IsLoadable(s.aadhaarPath, "aadhaar") {
		s.logger.Warn("aadhaar reference image is invalid or missing", zap.String("path", s.aadhaarPath))
	}
}
