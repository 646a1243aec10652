package survey

import "github.com/Agafia/bot-fire-water-sources/internal/models"

// Classify maps an inbound event to an input kind used for step validation.
// Classification is purely event-shape-based and never depends on the current
// step: an image attachment classifies as photo regardless of any caption, and
// a live/sharing location is distinguished from a one-shot position.
func Classify(event *models.Event) models.InputKind {
	switch {
	case event.Kind == models.EventCommand:
		return models.InputCommand
	case event.Kind == models.EventChoice:
		return models.InputChoice
	case len(event.Photos) > 0:
		return models.InputPhoto
	case event.Location != nil:
		if event.Location.LivePeriod > 0 {
			return models.InputLiveLocation
		}
		return models.InputOneShotLocation
	case event.Kind == models.EventText:
		if isAllDigits(event.Text) {
			return models.InputDigits
		}
		if event.Text != "" {
			return models.InputText
		}
		return models.InputOther
	default:
		return models.InputOther
	}
}

// isAllDigits reports whether s is non-empty and composed entirely of digits.
func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
