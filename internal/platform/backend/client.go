package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// ErrUnexpectedResponse is returned when a 2xx response lacks the fields the
// operation requires.
var ErrUnexpectedResponse = errors.New("unexpected response format")

// APIError is a non-2xx response from the backend. Message is the backend's
// JSON "error" field when present, else the raw body text, else a fixed
// per-operation fallback.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return e.Message
}

// RequestError is a request that never got a response. Error returns only the
// per-operation fallback so backend addresses stay out of rendered pages.
type RequestError struct {
	Message string
	Err     error
}

func (e *RequestError) Error() string {
	return e.Message
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// Credentials supplies the bearer token for authenticated calls. An empty
// token means no Authorization header is sent.
type Credentials interface {
	BearerToken(ctx context.Context) string
}

// StaticToken is a fixed bearer token.
type StaticToken string

func (t StaticToken) BearerToken(context.Context) string {
	return string(t)
}

// Fallback messages used when the backend gives no usable error text.
const (
	msgLogin         = "login failed"
	msgAdminLogin    = "admin login failed"
	msgValidate      = "token validation failed"
	msgDepartments   = "failed to load department list"
	msgPatients      = "failed to load patient list"
	msgSettings      = "failed to load admin settings"
	msgUpdateSetting = "failed to update setting"
	msgTestPatient   = "test request failed"
	msgWebViewer     = "failed to open web viewer"
)

// Client issues requests against the hospital API. It holds no per-user
// state; the token for each call comes from the supplied Credentials.
type Client struct {
	http   *resty.Client
	logger zerolog.Logger
}

type clientOptions struct {
	timeout    time.Duration
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*clientOptions)

// WithTimeout bounds every request. Zero leaves requests unbounded.
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithHTTPClient swaps the underlying transport client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = hc
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, logger zerolog.Logger, opts ...Option) *Client {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	rc := resty.New()
	if o.httpClient != nil {
		rc = resty.NewWithClient(o.httpClient)
	}
	rc.SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if o.timeout > 0 {
		rc.SetTimeout(o.timeout)
	}

	return &Client{http: rc, logger: logger}
}

// Login submits the user id (step 1 of the two-step login).
func (c *Client) Login(ctx context.Context, userID string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, nil, http.MethodPost, "/auth/login", map[string]string{"userId": userID}, nil, &out, msgLogin); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminLogin submits the administrator password (step 2).
func (c *Client) AdminLogin(ctx context.Context, userID, password string) (*AdminLoginResponse, error) {
	var out AdminLoginResponse
	body := map[string]string{"userId": userID, "password": password}
	if err := c.do(ctx, nil, http.MethodPost, "/admin/login", body, nil, &out, msgAdminLogin); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateToken asks the backend to validate the current token.
func (c *Client) ValidateToken(ctx context.Context, cred Credentials) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, cred, http.MethodPost, "/auth/validate", nil, nil, &out, msgValidate); err != nil {
		return nil, err
	}
	return out, nil
}

// Departments lists department codes.
func (c *Client) Departments(ctx context.Context, cred Credentials) ([]string, error) {
	var out []string
	if err := c.do(ctx, cred, http.MethodGet, "/auth/departments", nil, nil, &out, msgDepartments); err != nil {
		return nil, err
	}
	return out, nil
}

// Patients lists the current user's patients with the given review flag.
func (c *Client) Patients(ctx context.Context, cred Credentials, flag ReviewFlag) ([]PatientInfo, error) {
	var out []PatientInfo
	query := map[string]string{"clncCnfrmFlag": strconv.Itoa(int(flag))}
	if err := c.do(ctx, cred, http.MethodGet, "/patients", nil, query, &out, msgPatients); err != nil {
		return nil, err
	}
	return out, nil
}

// AdminSettings fetches the current integration settings.
func (c *Client) AdminSettings(ctx context.Context, cred Credentials) (*AdminSettings, error) {
	var out AdminSettings
	if err := c.do(ctx, cred, http.MethodGet, "/admin/settings", nil, nil, &out, msgSettings); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateSetting posts a single setting as {<RequestField>: value}.
func (c *Client) UpdateSetting(ctx context.Context, cred Credentials, field SettingField, value string) error {
	body := map[string]string{field.RequestField: value}
	return c.do(ctx, cred, http.MethodPost, "/admin/settings/"+field.Slug, body, nil, nil, msgUpdateSetting)
}

// TestPatient issues a synthetic test-patient request.
func (c *Client) TestPatient(ctx context.Context, cred Credentials, req TestPatientRequest) (json.RawMessage, error) {
	var out json.RawMessage
	if err := c.do(ctx, cred, http.MethodPost, "/admin/test-patient", req, nil, &out, msgTestPatient); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenWebViewer requests a viewer URL for a patient.
func (c *Client) OpenWebViewer(ctx context.Context, cred Credentials, req WebViewerRequest) (string, error) {
	var out webViewerResponse
	if err := c.do(ctx, cred, http.MethodPost, "/webviewer/open", req, nil, &out, msgWebViewer); err != nil {
		return "", err
	}
	if out.WebViewerURL == "" {
		return "", ErrUnexpectedResponse
	}
	return out.WebViewerURL, nil
}

// do sends one request. A nil result means the response body is ignored.
func (c *Client) do(ctx context.Context, cred Credentials, method, path string, body any, query map[string]string, result any, fallback string) error {
	r := c.http.R().SetContext(ctx)
	if cred != nil {
		if tok := cred.BearerToken(ctx); tok != "" {
			r.SetAuthToken(tok)
		}
	}
	if body != nil {
		r.SetBody(body)
	}
	if query != nil {
		r.SetQueryParams(query)
	}

	resp, err := r.Execute(method, path)
	if err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("backend request failed")
		return &RequestError{Message: fallback, Err: err}
	}

	if !resp.IsSuccess() {
		c.logger.Warn().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode()).
			Msg("backend returned error status")
		return &APIError{
			StatusCode: resp.StatusCode(),
			Message:    errorMessage(resp.Body(), fallback),
		}
	}

	if result == nil {
		return nil
	}
	if raw, ok := result.(*json.RawMessage); ok && len(bytes.TrimSpace(resp.Body())) == 0 {
		*raw = nil
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		c.logger.Warn().Err(err).Str("method", method).Str("path", path).Msg("backend response is not valid JSON")
		return fmt.Errorf("%w: %v", ErrUnexpectedResponse, err)
	}
	return nil
}

// errorMessage extracts the message of an error response.
func errorMessage(body []byte, fallback string) string {
	var payload struct {
		Error any `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if s, ok := payload.Error.(string); ok && s != "" {
			return s
		}
	}
	if text := string(body); strings.TrimSpace(text) != "" {
		return text
	}
	return fallback
}
