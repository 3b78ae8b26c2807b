package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ReviewFlag is the clinical-review status of a patient record.
type ReviewFlag int

const (
	ReviewUnreviewed ReviewFlag = 0
	ReviewHeld       ReviewFlag = 1
	ReviewReviewed   ReviewFlag = 2
)

// ReviewFlags lists every flag in display order.
var ReviewFlags = []ReviewFlag{ReviewUnreviewed, ReviewHeld, ReviewReviewed}

func (f ReviewFlag) Valid() bool {
	return f >= ReviewUnreviewed && f <= ReviewReviewed
}

func (f ReviewFlag) String() string {
	switch f {
	case ReviewUnreviewed:
		return "Unreviewed"
	case ReviewHeld:
		return "Held"
	case ReviewReviewed:
		return "Reviewed"
	}
	return "Unknown"
}

// ParseReviewFlag parses the query-string form ("0", "1" or "2").
func ParseReviewFlag(s string) (ReviewFlag, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || !ReviewFlag(n).Valid() {
		return 0, fmt.Errorf("invalid review flag %q", s)
	}
	return ReviewFlag(n), nil
}

// UnmarshalJSON accepts both 1 and "1".
func (f *ReviewFlag) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = ReviewUnreviewed
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("clncCnfrmFlag: %w", err)
	}
	*f = ReviewFlag(n)
	return nil
}

// Flag decodes a loosely typed boolean: true, 1 and non-empty strings other
// than "false" and "0" are true.
type Flag bool

func (f *Flag) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*f = false
	case bytes.Equal(b, []byte("true")):
		*f = true
	case bytes.Equal(b, []byte("false")):
		*f = false
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = Flag(s != "" && s != "false" && s != "0")
	default:
		n, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("flag: %w", err)
		}
		*f = Flag(n != 0)
	}
	return nil
}

// LoginUser is the user block of a general login response.
type LoginUser struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	DeptCode string `json:"deptCode,omitempty"`
}

// LoginResponse is the body of POST /auth/login. It carries either the admin
// challenge fields or the general success fields.
type LoginResponse struct {
	RequirePassword Flag   `json:"requirePassword"`
	IsAdmin         Flag   `json:"isAdmin"`
	UserID          string `json:"userId,omitempty"`

	Token string     `json:"token,omitempty"`
	User  *LoginUser `json:"user,omitempty"`
}

// AdminLoginResponse is the body of POST /admin/login.
type AdminLoginResponse struct {
	UserID string     `json:"userId,omitempty"`
	User   *LoginUser `json:"user,omitempty"`
	Token  string     `json:"token,omitempty"`
}

// AdminSettings holds the integration settings managed by administrators.
type AdminSettings struct {
	ThirdPartyAuthURL    string `json:"thirdPartyAuthUrl"`
	ClientID             string `json:"clientId"`
	ClientSecret         string `json:"clientSecret"`
	UtilizationServiceNo string `json:"utilizationServiceNo"`
	InstitutionCode      string `json:"institutionCode"`
	SeedKey              string `json:"seedKey"`
}

// Value returns the setting stored under a SettingField key.
func (s AdminSettings) Value(key string) string {
	switch key {
	case "thirdPartyAuthUrl":
		return s.ThirdPartyAuthURL
	case "clientId":
		return s.ClientID
	case "clientSecret":
		return s.ClientSecret
	case "utilizationServiceNo":
		return s.UtilizationServiceNo
	case "institutionCode":
		return s.InstitutionCode
	case "seedKey":
		return s.SeedKey
	}
	return ""
}

// Set stores value under a SettingField key. Unknown keys are ignored.
func (s *AdminSettings) Set(key, value string) {
	switch key {
	case "thirdPartyAuthUrl":
		s.ThirdPartyAuthURL = value
	case "clientId":
		s.ClientID = value
	case "clientSecret":
		s.ClientSecret = value
	case "utilizationServiceNo":
		s.UtilizationServiceNo = value
	case "institutionCode":
		s.InstitutionCode = value
	case "seedKey":
		s.SeedKey = value
	}
}

// SettingField ties an AdminSettings key to its update endpoint and the JSON
// field name the endpoint expects.
type SettingField struct {
	Key          string
	Slug         string
	RequestField string
}

// SettingFields is the set of individually updatable settings.
var SettingFields = []SettingField{
	{Key: "thirdPartyAuthUrl", Slug: "url", RequestField: "url"},
	{Key: "clientId", Slug: "client-id", RequestField: "clientId"},
	{Key: "clientSecret", Slug: "client-secret", RequestField: "clientSecret"},
	{Key: "utilizationServiceNo", Slug: "utilization-service-no", RequestField: "utilizationServiceNo"},
	{Key: "institutionCode", Slug: "institution-code", RequestField: "institutionCode"},
	{Key: "seedKey", Slug: "seed-key", RequestField: "seedKey"},
}

// LookupSettingField finds a field by endpoint slug.
func LookupSettingField(slug string) (SettingField, bool) {
	for _, f := range SettingFields {
		if f.Slug == slug {
			return f, true
		}
	}
	return SettingField{}, false
}

// PatientInfo is one row of the patient list.
type PatientInfo struct {
	PatID                   string     `json:"patId"`
	PatName                 string     `json:"patName"`
	Age                     int        `json:"age"`
	DeptCode                string     `json:"deptCode"`
	PrsnIDPre               string     `json:"prsnIdPre"`
	ClncCnfrmFlag           ReviewFlag `json:"clncCnfrmFlag"`
	JuminNum                string     `json:"juminNum"`
	EncryptedResidentNumber string     `json:"encryptedResidentNumber"`
}

// WebViewerRequest is the body of POST /webviewer/open.
type WebViewerRequest struct {
	ThirdPartyUserID          string `json:"thirdPartyUserId"`
	PatientID                 string `json:"patientId"`
	DeptCode                  string `json:"deptCode"`
	ResidentNumber            string `json:"residentNumber"`
	ThirdPartyInstitutionType string `json:"thirdPartyInstitutionType"`
	DevMode                   string `json:"devMode"`
}

type webViewerResponse struct {
	WebViewerURL string `json:"webViewerUrl"`
}

// TestPatientRequest is the body of POST /admin/test-patient.
type TestPatientRequest struct {
	ResidentNumber string `json:"residentNumber"`
	UserID         string `json:"userId"`
}
