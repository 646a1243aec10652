// Package bulkload seeds the feature store's water-source layer from an Excel
// workbook, one feature per row. It is run once per municipality from the
// wiimport command, not by the bot itself.
package bulkload

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"time"

	excelize "github.com/xuri/excelize/v2"

	"github.com/Agafia/bot-fire-water-sources/internal/geo"
	"github.com/Agafia/bot-fire-water-sources/internal/survey"
)

// Column groups of the source workbook. Headers are matched exactly; columns
// outside these groups are ignored.
var (
	intColumns = []string{
		"ИД_хоз_субъекта", "ИД_вид_ППВ", "ИД_исп_ППВ", "ИД_зоны_части",
		"ИД_верхего_МО", "ИД_нижнего_МО", "ИД_границ_НП",
	}
	strColumns = []string{
		"Поселение", "Улица", "Дом", "Вид_ВИ", "Номер", "Характеристика", "Исполнение",
		"Способ_обогрева", "Указатель_место", "Указатель_ГОСТ", "Пирамида", "Ориентир",
		"Состояние", "Дефект_описание", "Водоотдача_сети", "Регистрация_повод", "Исключение_повод",
	}
	dateColumns = []string{
		"Дефект_выявлен", "Дефект_устранён", "Дата_испытания", "Регистрация_дата", "Исключение_дата",
	}
)

const (
	latColumn = "Широта"
	lonColumn = "Долгота"
)

// dateLayouts are the cell formats accepted for date columns.
var dateLayouts = []string{"2006-01-02", "02.01.2006", "1/2/2006", "01-02-06", "2006-01-02 15:04:05"}

// Opts holds configuration options for the loader.
type Opts struct {
	Resource             int
	OrganizationResource int
	BotURL               string
	Sheet                string
}

// Option defines a configuration option for the loader.
type Option func(*Opts)

// WithResource sets the feature-store resource id of the water-source layer.
func WithResource(id int) Option {
	return func(o *Opts) {
		o.Resource = id
	}
}

// WithOrganizationResource sets the organizations table used to resolve the
// serving organization named in generated descriptions.
func WithOrganizationResource(id int) Option {
	return func(o *Opts) {
		o.OrganizationResource = id
	}
}

// WithBotURL sets the deep-link base embedded in generated descriptions.
func WithBotURL(url string) Option {
	return func(o *Opts) {
		o.BotURL = url
	}
}

// WithSheet selects the worksheet to read. Defaults to the workbook's first sheet.
func WithSheet(name string) Option {
	return func(o *Opts) {
		o.Sheet = name
	}
}

// Loader imports water-source rows into the feature store.
type Loader struct {
	features survey.FeatureStore
	cfg      Opts
}

// NewLoader creates a loader writing through the given feature store.
func NewLoader(features survey.FeatureStore, opts ...Option) *Loader {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{features: features, cfg: cfg}
}

// Run imports every data row of the workbook and returns the number of
// features created. Rows without a parseable coordinate pair are skipped with
// a warning; a feature-store failure aborts the run.
func (l *Loader) Run(ctx context.Context, path string) (int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheet := l.cfg.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) < 2 {
		return 0, fmt.Errorf("sheet %q has no data rows", sheet)
	}

	header := rows[0]
	created := 0
	for i, row := range rows[1:] {
		rowNum := i + 2 // 1-based, after the header
		fields, lat, lon, err := l.parseRow(header, row)
		if err != nil {
			slog.Warn("Skipping workbook row", "row", rowNum, "error", err)
			continue
		}
		geom, err := geo.PointWKT(lat, lon)
		if err != nil {
			slog.Warn("Skipping workbook row", "row", rowNum, "error", err)
			continue
		}

		id, err := l.features.CreateFeature(ctx, l.cfg.Resource, fields, geom)
		if err != nil {
			return created, fmt.Errorf("row %d: feature create failed: %w", rowNum, err)
		}
		if err := l.finishFeature(ctx, id, fields); err != nil {
			return created, fmt.Errorf("row %d: %w", rowNum, err)
		}
		created++
		slog.Info("Water source imported", "row", rowNum, "feature_id", id)
	}
	return created, nil
}

// parseRow maps one workbook row onto feature fields plus its coordinate pair.
func (l *Loader) parseRow(header, row []string) (map[string]any, float64, float64, error) {
	fields := make(map[string]any)
	var lat, lon float64
	var haveLat, haveLon bool

	for col, name := range header {
		if col >= len(row) {
			break
		}
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		switch {
		case name == latColumn:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("bad latitude %q", value)
			}
			lat, haveLat = v, true
		case name == lonColumn:
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("bad longitude %q", value)
			}
			lon, haveLon = v, true
		case slices.Contains(intColumns, name):
			v, err := strconv.Atoi(value)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("bad integer in %q: %q", name, value)
			}
			fields[name] = v
		case slices.Contains(strColumns, name):
			fields[name] = value
		case slices.Contains(dateColumns, name):
			t, err := parseDate(value)
			if err != nil {
				return nil, 0, 0, fmt.Errorf("bad date in %q: %q", name, value)
			}
			fields[name] = map[string]int{
				"year":  t.Year(),
				"month": int(t.Month()),
				"day":   t.Day(),
			}
		}
	}
	if !haveLat || !haveLon {
		return nil, 0, 0, fmt.Errorf("missing coordinates")
	}
	return fields, lat, lon, nil
}

// finishFeature derives the display name and description from the created
// feature's fields and writes them back, along with the store-visible id copy.
func (l *Loader) finishFeature(ctx context.Context, id int, fields map[string]any) error {
	name, _ := fields["Вид_ВИ"].(string)
	if num, ok := fields["Номер"].(string); ok {
		name += "-" + num
	}
	if spec, ok := fields["Характеристика"].(string); ok {
		name += " (" + spec + ")"
	}

	params := survey.DescriptionParams{
		FeatureID: id,
		BotURL:    l.cfg.BotURL,
	}
	params.Locality, _ = fields["Поселение"].(string)
	params.Street, _ = fields["Улица"].(string)
	params.Building, _ = fields["Дом"].(string)
	params.Landmark, _ = fields["Ориентир"].(string)
	params.Specification, _ = fields["Исполнение"].(string)
	params.FlowRate, _ = fields["Водоотдача_сети"].(string)
	if orgID, ok := fields["ИД_хоз_субъекта"].(int); ok && l.cfg.OrganizationResource != 0 {
		org, err := l.features.GetFeature(ctx, l.cfg.OrganizationResource, orgID)
		if err != nil {
			slog.Warn("Organization lookup failed, omitting from description", "error", err, "organization_id", orgID)
		} else {
			params.Organization = org.StringField("Хоз_субъект")
		}
	}

	patch := map[string]any{
		"name":        name,
		"description": survey.BuildDescription(params),
		"ИД":          id,
	}
	if err := l.features.PutFeature(ctx, l.cfg.Resource, id, patch); err != nil {
		return fmt.Errorf("name write-back failed: %w", err)
	}
	return nil
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date format")
}
