package admin

import (
	"encoding/json"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
)

// Synthetic patient used by the test viewer.
const (
	TestPatientID   = "TEST_PATIENT"
	TestDeptDefault = "TEST_DEPT"
)

// fieldLabels are the display names of the settings, keyed by settings key.
var fieldLabels = map[string]string{
	"thirdPartyAuthUrl":    "API URL",
	"clientId":             "Client ID",
	"clientSecret":         "Client Secret",
	"utilizationServiceNo": "Utilization Service No",
	"institutionCode":      "Institution Code",
	"seedKey":              "Seed Key",
}

// Label returns the display name of a field.
func Label(f backend.SettingField) string {
	if l, ok := fieldLabels[f.Key]; ok {
		return l
	}
	return f.Key
}

// UpdateForm is the body of a single-setting update.
type UpdateForm struct {
	Value string `form:"value" label:"Value" validate:"notblank"`
}

// TestForm carries the resident number for the test request and test viewer.
type TestForm struct {
	ResidentNumber string `form:"residentNumber" label:"Resident number" validate:"resident_number"`
}

// UpdateResult is what an accepted update leaves behind. Settings is the
// re-fetched state, or nil with ReloadErr set when the re-fetch failed.
type UpdateResult struct {
	Field     backend.SettingField
	Settings  *backend.AdminSettings
	ReloadErr error
}

type fieldRow struct {
	Label   string
	Slug    string
	Current string
	Unknown bool
}

type settingsPage struct {
	Fields        []fieldRow
	SettingsError string
	TestResult    json.RawMessage
}

func rows(s *backend.AdminSettings) []fieldRow {
	out := make([]fieldRow, 0, len(backend.SettingFields))
	for _, f := range backend.SettingFields {
		row := fieldRow{Label: Label(f), Slug: f.Slug}
		if s == nil {
			row.Unknown = true
		} else {
			row.Current = s.Value(f.Key)
		}
		out = append(out, row)
	}
	return out
}
