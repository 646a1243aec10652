// Package models fixes the value lists of the single-choice steps.
//
// The exact string membership is part of the external contract with the feature
// store: chosen values are written verbatim into checkup records, so there is a
// single authoritative spelling here and the executor never normalizes input.
package models

// PlateAbsent is the plate-existence choice that skips the plate photo step.
const PlateAbsent = "отсутствует"

// Fixed enumerations for the single-choice steps. Order matters for button
// layout only, never for validation.
var (
	ControlMethodValues = []string{
		"установка с пуском воды",
		"установка без пуска воды",
		"осмотр полный",
		"осмотр внешний",
	}
	WaterPresenceValues = []string{
		"имеется",
		"отсутствует",
		"не установлено",
	}
	InstallFeasibilityValues = []string{
		"возможна",
		"невозможна",
		"не установлено",
	}
	AccessFeasibilityValues = []string{
		"возможен",
		"невозможен",
		"не установлено",
	}
	PlateExistenceValues = []string{
		PlateAbsent,
		"есть (по ГОСТ)",
		"есть (не ГОСТ)",
	}
)

// StepTitles maps each step to the operator-facing name used in status and
// wrong-input messages.
var StepTitles = map[Step]string{
	StepIdentifier:         "1. Числовой идентификатор",
	StepPosition:           "2. Геопозиция водоисточника",
	StepControlMethod:      "3. Способ контроля",
	StepWaterPresence:      "4. Наличие воды",
	StepInstallFeasibility: "5. Возможность установки",
	StepAccessFeasibility:  "6. Возможность подъезда",
	StepPhotoNode:          "7. Узловой снимок",
	StepPhotoOverview:      "8. Обзорный снимок",
	StepPhotoOrienting:     "9. Ориентирующий снимок",
	StepPlateExistence:     "10. Наличие указателя",
	StepPhotoPlate:         "11. Снимок указателя",
	StepFinalize:           "12. Сохранение (/save)",
}

// StepTitle returns the operator-facing name of a step.
func StepTitle(s Step) string {
	if title, ok := StepTitles[s]; ok {
		return title
	}
	return "Неизвестное состояние"
}

// InList reports whether value is an exact member of list. Matching is
// case-sensitive with no normalization.
func InList(value string, list []string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
