package admin

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/backend"
	"github.com/dddd2356/sunhan-myhealthway-frontend/internal/platform/validate"
)

type update struct {
	field backend.SettingField
	value string
}

type fakeAPI struct {
	mu          sync.Mutex
	settings    backend.AdminSettings
	settingsErr error
	updateErr   error
	testOut     json.RawMessage
	testErr     error
	viewerURL   string
	viewerErr   error

	// block holds updates of the named key until the channel is closed.
	block   map[string]chan struct{}
	started chan string

	updates       []update
	settingsCalls int
	testCalls     int
	gotTest       backend.TestPatientRequest
	viewerCalls   int
	gotViewer     backend.WebViewerRequest
}

func (f *fakeAPI) AdminSettings(context.Context, backend.Credentials) (*backend.AdminSettings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.settingsCalls++
	if f.settingsErr != nil {
		return nil, f.settingsErr
	}
	s := f.settings
	return &s, nil
}

func (f *fakeAPI) UpdateSetting(_ context.Context, _ backend.Credentials, field backend.SettingField, value string) error {
	f.mu.Lock()
	ch := f.block[field.Key]
	f.mu.Unlock()
	if f.started != nil {
		f.started <- field.Key
	}
	if ch != nil {
		<-ch
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, update{field: field, value: value})
	if field.Key == "clientSecret" {
		f.settings.ClientSecret = value
	}
	return nil
}

func (f *fakeAPI) TestPatient(_ context.Context, _ backend.Credentials, req backend.TestPatientRequest) (json.RawMessage, error) {
	f.testCalls++
	f.gotTest = req
	return f.testOut, f.testErr
}

func (f *fakeAPI) OpenWebViewer(_ context.Context, _ backend.Credentials, req backend.WebViewerRequest) (string, error) {
	f.viewerCalls++
	f.gotViewer = req
	return f.viewerURL, f.viewerErr
}

func newTestService(api API) *Service {
	return NewService(api, validate.New(), zerolog.Nop())
}

var cred = backend.StaticToken("a1")

func TestUpdateField_PostsAndRefetches(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	res, err := svc.UpdateField(context.Background(), cred, "s1", "client-secret", "s3cret")
	if err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	if len(api.updates) != 1 || api.updates[0].field.RequestField != "clientSecret" || api.updates[0].value != "s3cret" {
		t.Errorf("updates = %+v", api.updates)
	}
	if api.settingsCalls != 1 {
		t.Errorf("settings fetched %d times, want 1", api.settingsCalls)
	}
	if res.Settings == nil || res.Settings.ClientSecret != "s3cret" || res.ReloadErr != nil {
		t.Errorf("result = %+v", res)
	}
}

func TestUpdateField_RejectsBlankLocally(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	for _, v := range []string{"", "   ", "\n"} {
		_, err := svc.UpdateField(context.Background(), cred, "s1", "url", v)
		var verr *validate.Error
		if !errors.As(err, &verr) {
			t.Errorf("UpdateField(%q) = %v, want validation error", v, err)
		}
	}
	if len(api.updates) != 0 || api.settingsCalls != 0 {
		t.Error("no backend call expected")
	}
}

func TestUpdateField_SendsValueAsTyped(t *testing.T) {
	api := &fakeAPI{}
	if _, err := newTestService(api).UpdateField(context.Background(), cred, "s1", "url", " https://auth.example "); err != nil {
		t.Fatal(err)
	}
	if api.updates[0].value != " https://auth.example " {
		t.Errorf("value = %q", api.updates[0].value)
	}
}

func TestUpdateField_UnknownField(t *testing.T) {
	_, err := newTestService(&fakeAPI{}).UpdateField(context.Background(), cred, "s1", "password", "x")
	if !errors.Is(err, ErrUnknownField) {
		t.Errorf("err = %v", err)
	}
}

func TestUpdateField_FailureSkipsRefetch(t *testing.T) {
	api := &fakeAPI{updateErr: &backend.APIError{StatusCode: 400, Message: "bad url"}}
	_, err := newTestService(api).UpdateField(context.Background(), cred, "s1", "url", "x")
	if err == nil || err.Error() != "bad url" {
		t.Fatalf("err = %v", err)
	}
	if api.settingsCalls != 0 {
		t.Error("settings should not be re-fetched after a failed update")
	}
}

func TestUpdateField_ReloadFailure(t *testing.T) {
	api := &fakeAPI{settingsErr: errors.New("down")}
	res, err := newTestService(api).UpdateField(context.Background(), cred, "s1", "seed-key", "k")
	if err != nil {
		t.Fatal(err)
	}
	if res.Settings != nil || res.ReloadErr == nil {
		t.Errorf("result = %+v", res)
	}
}

func TestUpdateField_InFlightGuard(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		block:   map[string]chan struct{}{"thirdPartyAuthUrl": release},
		started: make(chan string, 4),
	}
	svc := newTestService(api)

	done := make(chan error, 1)
	go func() {
		_, err := svc.UpdateField(context.Background(), cred, "s1", "url", "first")
		done <- err
	}()
	if key := <-api.started; key != "thirdPartyAuthUrl" {
		t.Fatalf("started %q", key)
	}

	if _, err := svc.UpdateField(context.Background(), cred, "s1", "url", "second"); !errors.Is(err, ErrUpdateInProgress) {
		t.Errorf("same field same session: err = %v, want ErrUpdateInProgress", err)
	}
	if _, err := svc.UpdateField(context.Background(), cred, "s1", "client-id", "cid"); err != nil {
		t.Errorf("other field: %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first update: %v", err)
	}

	api.block = nil
	if _, err := svc.UpdateField(context.Background(), cred, "s1", "url", "third"); err != nil {
		t.Errorf("after release: %v", err)
	}
}

func TestUpdateField_GuardIsPerSession(t *testing.T) {
	release := make(chan struct{})
	api := &fakeAPI{
		block:   map[string]chan struct{}{"seedKey": release},
		started: make(chan string, 4),
	}
	svc := newTestService(api)

	done := make(chan error, 2)
	go func() {
		_, err := svc.UpdateField(context.Background(), cred, "s1", "seed-key", "a")
		done <- err
	}()
	<-api.started
	go func() {
		_, err := svc.UpdateField(context.Background(), cred, "s2", "seed-key", "b")
		done <- err
	}()
	<-api.started

	close(release)
	for i := 0; i < 2; i++ {
		if err := <-done; err != nil {
			t.Errorf("update %d: %v", i, err)
		}
	}
}

func TestTestPatient(t *testing.T) {
	api := &fakeAPI{testOut: json.RawMessage(`{"ok":true}`)}
	svc := newTestService(api)

	out, err := svc.TestPatient(context.Background(), cred, "root", "9501011111111")
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"ok":true}` {
		t.Errorf("out = %s", out)
	}
	want := backend.TestPatientRequest{ResidentNumber: "9501011111111", UserID: "root"}
	if api.gotTest != want {
		t.Errorf("request = %+v", api.gotTest)
	}
}

func TestTestPatient_ValidatesBeforeRequest(t *testing.T) {
	api := &fakeAPI{}
	svc := newTestService(api)

	for _, rn := range []string{"", "123", "95010111111112", "950101-111111", "95010111111 1"} {
		if _, err := svc.TestPatient(context.Background(), cred, "root", rn); err == nil {
			t.Errorf("TestPatient(%q) accepted", rn)
		}
	}
	if api.testCalls != 0 {
		t.Errorf("backend called %d times", api.testCalls)
	}
}

func TestLabel(t *testing.T) {
	f, _ := backend.LookupSettingField("utilization-service-no")
	if Label(f) != "Utilization Service No" {
		t.Errorf("Label = %q", Label(f))
	}
}
