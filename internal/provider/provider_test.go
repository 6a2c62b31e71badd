package provider

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"delegatedrecovery/internal/config"
	"delegatedrecovery/internal/record"
)

func sampleConfig() *config.AccountProviderConfiguration {
	return config.NewAccountProviderConfiguration(
		"https://ap.example",
		"https://ap.example/save-token-return",
		"https://ap.example/recover-account-return",
		"https://ap.example/privacy",
		"",
		[]string{"MFkwEwYHKoZIzj0CAQYIKoZIzj0DAQcDQgAEqY3VWYUVyc63fFxHI+8lpSWjyEgGsxdHjN8bR8RCHusLXaoVAG9E3PuiuTQnlhTuQIEgF13XULrOPL1SVLZRUA=="},
	)
}

// S1 (happy save): save-success confirms a provisional record.
func TestTokenStatusSaveSuccess(t *testing.T) {
	store := record.NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := store.Insert(id, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s := New("", sampleConfig(), store)

	form := url.Values{"id": {id}, "status": {"save-success"}}
	req := httptest.NewRequest(http.MethodPost, TokenStatusPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
	r, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != record.Confirmed {
		t.Errorf("Status = %v, want Confirmed", r.Status)
	}
}

func TestTokenStatusSaveFailureRemoves(t *testing.T) {
	store := record.NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := store.Insert(id, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s := New("", sampleConfig(), store)

	form := url.Values{"id": {id}, "status": {"save-failure"}}
	req := httptest.NewRequest(http.MethodPost, TokenStatusPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if _, err := store.Get(id); err == nil {
		t.Error("record still present after save-failure")
	}
}

func TestTokenStatusRepudiated(t *testing.T) {
	store := record.NewMemStore()
	const id = "00112233445566778899aabbccddeeff"
	if err := store.Insert(id, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	s := New("", sampleConfig(), store)

	form := url.Values{"id": {id}, "status": {"token-repudiated"}}
	req := httptest.NewRequest(http.MethodPost, TokenStatusPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	r, err := store.Get(id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if r.Status != record.Invalid {
		t.Errorf("Status = %v, want Invalid", r.Status)
	}
}

// S7 (renewal): composite state = newId + "," + oldId.
func TestTokenStatusRenewal(t *testing.T) {
	store := record.NewMemStore()
	const oldID = "00112233445566778899aabbccddeeff"
	const newID = "ffeeddccbbaa99887766554433221100"
	if err := store.Insert(oldID, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert old: %v", err)
	}
	if err := store.Confirm(oldID); err != nil {
		t.Fatalf("Confirm old: %v", err)
	}
	if err := store.Insert(newID, "https://ap.example", "alice", nil); err != nil {
		t.Fatalf("Insert new: %v", err)
	}
	s := New("", sampleConfig(), store)

	form := url.Values{"id": {newID + "," + oldID}, "status": {"save-success"}}
	req := httptest.NewRequest(http.MethodPost, TokenStatusPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	newR, err := store.Get(newID)
	if err != nil {
		t.Fatalf("Get new: %v", err)
	}
	if newR.Status != record.Confirmed {
		t.Errorf("new Status = %v, want Confirmed", newR.Status)
	}
	oldR, err := store.Get(oldID)
	if err != nil {
		t.Fatalf("Get old: %v", err)
	}
	if oldR.Status != record.Invalid {
		t.Errorf("old Status = %v, want Invalid", oldR.Status)
	}
}

func TestTokenStatusUnknownIDIgnoredSilently(t *testing.T) {
	store := record.NewMemStore()
	s := New("", sampleConfig(), store)

	form := url.Values{"id": {"0000000000000000000000000000dead"}, "status": {"save-success"}}
	req := httptest.NewRequest(http.MethodPost, TokenStatusPath, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Errorf("body = %q, want empty", w.Body.String())
	}
}

func TestConfigurationEndpoint(t *testing.T) {
	store := record.NewMemStore()
	s := New("", sampleConfig(), store)

	req := httptest.NewRequest(http.MethodGet, ConfigurationPath, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
	}
	if got := w.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
	if !strings.Contains(w.Body.String(), "ap.example") {
		t.Errorf("body = %q, want issuer present", w.Body.String())
	}
}

func TestConfigurationWrongMethod(t *testing.T) {
	store := record.NewMemStore()
	s := New("", sampleConfig(), store)

	req := httptest.NewRequest(http.MethodPost, ConfigurationPath, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", w.Code)
	}
}

func TestSplitRenewal(t *testing.T) {
	newID, oldID, ok := splitRenewal("aaa,bbb")
	if !ok || newID != "aaa" || oldID != "bbb" {
		t.Errorf("splitRenewal(\"aaa,bbb\") = %q, %q, %v", newID, oldID, ok)
	}
	if _, _, ok := splitRenewal("aaa"); ok {
		t.Error("splitRenewal(\"aaa\") reported ok, want false")
	}
}
