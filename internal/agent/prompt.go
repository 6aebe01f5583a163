package agent

import (
	"fmt"

	"go.uber.org/zap"
)

// coordinateGrammar is the answer format the coordinate parser expects
const coordinateGrammar = "x:<int> y:<int>"

// BuildLocalizationPrompt builds the instruction asking the model where target is
// in a width x height screenshot.
func BuildLocalizationPrompt(target string, width, height int, logger *zap.Logger) string {
	if logger != nil {
		logger.Debug("Building localization prompt", zap.Int("width", width), zap.Int("height", height))
	}

	return fmt.Sprintf(
		"Find the %s in this %dx%d screenshot. "+
			"Answer with its pixel coordinates as %s, "+
			"then add one short explanation. Do not use quotation marks.",
		target, width, height, coordinateGrammar,
	)
}
