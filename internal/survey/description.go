package survey

import (
	"fmt"
	"strings"
)

// DescriptionParams carries everything that goes into the regenerated rich-text
// description of a water-source feature.
type DescriptionParams struct {
	FeatureID     int
	Locality      string
	Street        string
	Building      string
	Landmark      string
	Specification string
	FlowRate      string
	DriveFolder   string // Drive folder id; empty omits the photo link
	StreetViewURL string
	Organization  string // serving organization name; empty omits the line
	BotURL        string // deep-link base, e.g. "https://t.me/<bot>?start"
}

// BuildDescription renders the HTML description stored on the water-source
// feature: address, landmark, specification, optional flow rate, links to the
// Drive photo folder and street view, a bot deep-link for starting a survey of
// this source, and the serving organization.
func BuildDescription(p DescriptionParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, "<p>Адрес: %s, %s, %s</p>", p.Locality, p.Street, p.Building)
	fmt.Fprintf(&b, "<p>Ориентир: %s</p>", p.Landmark)
	fmt.Fprintf(&b, "<p>Исполнение: %s</p>", p.Specification)

	if p.FlowRate != "" {
		fmt.Fprintf(&b, "<p>Водоотдача: %s л/с</p>", p.FlowRate)
	}
	if p.DriveFolder != "" {
		fmt.Fprintf(&b, "<p><a href='https://drive.google.com/drive/folders/%s'>Фото на Google диске</a></p>", p.DriveFolder)
	}
	if p.StreetViewURL != "" {
		fmt.Fprintf(&b, "<p><a href='%s'>Просмотр улиц в Google</a></p>", p.StreetViewURL)
	}
	if p.BotURL != "" {
		fmt.Fprintf(&b, "<p><a href='%s=%d'>Осмотр водоисточника с ИД-%d</a></p>", p.BotURL, p.FeatureID, p.FeatureID)
	}
	if p.Organization != "" {
		fmt.Fprintf(&b, "<p>Обслуживает: %s</p>", p.Organization)
	}

	return b.String()
}
