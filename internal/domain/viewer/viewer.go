// Package viewer opens the external web viewer in a new tab. The tab is
// obtained before the viewer URL is requested so the browser still treats it
// as part of the user's click.
package viewer

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
)

// ErrPopupBlocked means no tab could be opened. No request was made.
var ErrPopupBlocked = errors.New("popups are blocked, allow popups for this site and try again")

// Tab is a browsing context opened for the viewer.
type Tab interface {
	Navigate(url string) error
	Close(reason error) error
}

// TabOpener opens a tab, or reports false when the browser refused.
type TabOpener interface {
	OpenTab() (Tab, bool)
}

// API is the part of the backend client the opener calls.
type API interface {
	OpenWebViewer(ctx context.Context, cred backend.Credentials, req backend.WebViewerRequest) (string, error)
}

// Defaults holds the constant request fields.
type Defaults struct {
	InstitutionType string
	DevMode         string
}

// Opener runs the open-tab, request, navigate sequence.
type Opener struct {
	api      API
	defaults Defaults
	logger   zerolog.Logger
}

func NewOpener(api API, defaults Defaults, logger zerolog.Logger) *Opener {
	if defaults.InstitutionType == "" {
		defaults.InstitutionType = "20"
	}
	if defaults.DevMode == "" {
		defaults.DevMode = "0"
	}
	return &Opener{api: api, defaults: defaults, logger: logger}
}

// Request builds the viewer request for a patient.
func (o *Opener) Request(userID, patientID, deptCode, residentNumber string) backend.WebViewerRequest {
	return backend.WebViewerRequest{
		ThirdPartyUserID:          userID,
		PatientID:                 patientID,
		DeptCode:                  deptCode,
		ResidentNumber:            residentNumber,
		ThirdPartyInstitutionType: o.defaults.InstitutionType,
		DevMode:                   o.defaults.DevMode,
	}
}

// Open opens a tab first, then requests the viewer URL. On failure the tab is
// closed and the request error returned; on success the tab is sent to the
// returned URL unchanged.
func (o *Opener) Open(ctx context.Context, tabs TabOpener, cred backend.Credentials, req backend.WebViewerRequest) error {
	tab, ok := tabs.OpenTab()
	if !ok {
		return ErrPopupBlocked
	}

	url, err := o.api.OpenWebViewer(ctx, cred, req)
	if err != nil {
		o.logger.Warn().Err(err).Str("patient_id", req.PatientID).Msg("web viewer request failed")
		if cerr := tab.Close(err); cerr != nil {
			o.logger.Warn().Err(cerr).Msg("failed to close viewer tab")
		}
		return err
	}

	if err := tab.Navigate(url); err != nil {
		return fmt.Errorf("navigate viewer tab: %w", err)
	}
	return nil
}
