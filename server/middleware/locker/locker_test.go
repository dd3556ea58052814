package locker

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestCheckBouncesWhileLocked(t *testing.T) {
	l := New()
	srv := l.Check(http.HandlerFunc(okHandler))

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frame", nil))
	if w.Code != http.StatusOK {
		t.Errorf("unlocked request: expected 200, got %d", w.Code)
	}

	l.Lock()
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frame", nil))
	if w.Code != http.StatusLocked {
		t.Errorf("locked request: expected 423, got %d", w.Code)
	}

	l.Unlock()
	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frame", nil))
	if w.Code != http.StatusOK {
		t.Errorf("relocked then unlocked: expected 200, got %d", w.Code)
	}
}

func TestBypassRoutesPassThrough(t *testing.T) {
	l := New()
	l.Lock()
	srv := l.Check(http.HandlerFunc(okHandler))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if w.Code != http.StatusOK {
		t.Errorf("lock route must bypass the lock, got %d", w.Code)
	}
}

func TestHTTPSet(t *testing.T) {
	l := New()
	w := httptest.NewRecorder()
	l.HTTPSet(w, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`{"bool": true}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !l.Locked() {
		t.Error("expected the locker to be locked")
	}

	w = httptest.NewRecorder()
	l.HTTPSet(w, httptest.NewRequest(http.MethodPost, "/lock", strings.NewReader(`{"bool": false}`)))
	if l.Locked() {
		t.Error("expected the locker to be unlocked")
	}
}

func TestHTTPGetReportsState(t *testing.T) {
	l := New()
	l.Lock()
	w := httptest.NewRecorder()
	l.HTTPGet(w, httptest.NewRequest(http.MethodGet, "/lock", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "true") {
		t.Errorf("expected a true payload, got %s", w.Body.String())
	}
}
