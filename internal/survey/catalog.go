// Package survey implements the guided data-collection dialogue: the ordered
// step catalog, input classification, the step executor, and the finalize-time
// commit coordinator.
package survey

import "github.com/Agafia/bot-fire-water-sources/internal/models"

// StepSpec describes one dialogue step: the input kind it accepts, the prompt
// announcing it, the fixed choices of a single-choice step, and its successor.
type StepSpec struct {
	Step         models.Step
	ExpectedKind models.InputKind
	Prompt       string
	Choices      []string // nil unless the step is single-choice

	next func(record *models.PartialRecord) models.Step
}

// Successor returns the step that follows once this step's input is accepted.
// The one branch in the otherwise linear chain is PlateExistence, which skips
// the plate photo when the plate was reported absent.
func (s StepSpec) Successor(record *models.PartialRecord) models.Step {
	return s.next(record)
}

// stepTo returns a successor function for the linear (non-branching) steps.
func stepTo(next models.Step) func(*models.PartialRecord) models.Step {
	return func(*models.PartialRecord) models.Step {
		return next
	}
}

// catalog is the static, ordered description of the twelve dialogue steps.
// Immutable after initialization; safe for unsynchronized concurrent reads.
var catalog = map[models.Step]StepSpec{
	models.StepIdentifier: {
		Step:         models.StepIdentifier,
		ExpectedKind: models.InputDigits,
		Prompt:       "🆔 <b>1. Числовой идентификатор</b>",
		next:         stepTo(models.StepPosition),
	},
	models.StepPosition: {
		Step:         models.StepPosition,
		ExpectedKind: models.InputOneShotLocation,
		Prompt:       "🌏 <b>2. Геопозиция водоисточника</b>",
		next:         stepTo(models.StepControlMethod),
	},
	models.StepControlMethod: {
		Step:         models.StepControlMethod,
		ExpectedKind: models.InputChoice,
		Prompt:       "✅ <b>3. Способ контроля</b>",
		Choices:      models.ControlMethodValues,
		next:         stepTo(models.StepWaterPresence),
	},
	models.StepWaterPresence: {
		Step:         models.StepWaterPresence,
		ExpectedKind: models.InputChoice,
		Prompt:       "💦 <b>4. Наличие воды</b>",
		Choices:      models.WaterPresenceValues,
		next:         stepTo(models.StepInstallFeasibility),
	},
	models.StepInstallFeasibility: {
		Step:         models.StepInstallFeasibility,
		ExpectedKind: models.InputChoice,
		Prompt:       "🛠 <b>5. Возможность установки</b>",
		Choices:      models.InstallFeasibilityValues,
		next:         stepTo(models.StepAccessFeasibility),
	},
	models.StepAccessFeasibility: {
		Step:         models.StepAccessFeasibility,
		ExpectedKind: models.InputChoice,
		Prompt:       "🚒 <b>6. Возможность подъезда</b>",
		Choices:      models.AccessFeasibilityValues,
		next:         stepTo(models.StepPhotoNode),
	},
	models.StepPhotoNode: {
		Step:         models.StepPhotoNode,
		ExpectedKind: models.InputPhoto,
		Prompt:       "📸 💦 <b>7. Узловой снимок</b>",
		next:         stepTo(models.StepPhotoOverview),
	},
	models.StepPhotoOverview: {
		Step:         models.StepPhotoOverview,
		ExpectedKind: models.InputPhoto,
		Prompt:       "📸 🚒 <b>8. Обзорный снимок</b>",
		next:         stepTo(models.StepPhotoOrienting),
	},
	models.StepPhotoOrienting: {
		Step:         models.StepPhotoOrienting,
		ExpectedKind: models.InputPhoto,
		Prompt:       "📸 🏘 <b>9. Ориентирующий снимок</b>",
		next:         stepTo(models.StepPlateExistence),
	},
	models.StepPlateExistence: {
		Step:         models.StepPlateExistence,
		ExpectedKind: models.InputChoice,
		Prompt:       "🔀 <b>10. Наличие указателя</b>",
		Choices:      models.PlateExistenceValues,
		next: func(record *models.PartialRecord) models.Step {
			if record.PlateExistence == models.PlateAbsent {
				return models.StepFinalize
			}
			return models.StepPhotoPlate
		},
	},
	models.StepPhotoPlate: {
		Step:         models.StepPhotoPlate,
		ExpectedKind: models.InputPhoto,
		Prompt:       "📸 🔀 <b>11. Снимок указателя</b>",
		next:         stepTo(models.StepFinalize),
	},
	models.StepFinalize: {
		Step:         models.StepFinalize,
		ExpectedKind: models.InputCommand,
		Prompt:       "💾 <b>12. Для сохранения введите /save</b>",
		next:         stepTo(models.StepFinalize),
	},
}

// Describe returns the catalog entry for a step.
func Describe(step models.Step) (StepSpec, bool) {
	spec, ok := catalog[step]
	return spec, ok
}
