package detector

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"goji.io"

	"github.com/uaitl/focalsrv/detimage"
	"github.com/uaitl/focalsrv/fitsfile"
	"github.com/uaitl/focalsrv/focalplane"
)

func loadedImage(t *testing.T) *detimage.Image {
	t.Helper()
	g := focalplane.Geometry{
		NumAmpsX:      2,
		NumAmpsY:      1,
		AmpCols:       6,
		AmpRows:       4,
		UnderscanCols: 1,
		OverscanCols:  1,
		ReadoutOrder:  []int{0, 1},
		FlipCodes:     []focalplane.FlipCode{focalplane.FlipNone, focalplane.FlipX},
	}
	img := detimage.New(g)
	raw := make([][]float64, 2)
	for amp := range raw {
		block := make([]float64, g.AmpPixels())
		for i := range block {
			block[i] = float64(amp*100 + i)
		}
		raw[amp] = block
	}
	if err := img.SetRaw(raw); err != nil {
		t.Fatal(err)
	}
	return img
}

func testMux(t *testing.T) (*HTTPImage, *goji.Mux) {
	t.Helper()
	h := NewHTTPImage(loadedImage(t), nil, nil, fitsfile.WriteOptions{FileType: fitsfile.TypeASM})
	mux := goji.NewMux()
	h.RT().Bind(mux)
	return h, mux
}

func TestAssembleRoute(t *testing.T) {
	h, mux := testMux(t)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/assemble", strings.NewReader(`{"trim": 1}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !h.Image.Assembled() || !h.Image.Trimmed() {
		t.Error("expected a trimmed assembled image")
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/assembled", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "true") {
		t.Errorf("expected a true payload, got %d %s", w.Code, w.Body.String())
	}
}

func TestAssembleRouteEmptyBodyUsesDefault(t *testing.T) {
	h, mux := testMux(t)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/assemble", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if h.Image.Trimmed() {
		t.Error("default trim mode must keep the margins")
	}
}

func TestInvalidateRoute(t *testing.T) {
	h, mux := testMux(t)
	if err := h.Image.Assemble(detimage.TrimApply); err != nil {
		t.Fatal(err)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/invalidate", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if h.Image.Assembled() {
		t.Error("expected the assembled buffer discarded")
	}
}

func TestTrimPreferenceRoundTrip(t *testing.T) {
	h, mux := testMux(t)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/trim", strings.NewReader(`{"bool": true}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !h.Image.Trim {
		t.Error("expected the trim preference stored")
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/trim", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "true") {
		t.Errorf("expected a true payload, got %d %s", w.Code, w.Body.String())
	}
}

func TestScalingRoundTrip(t *testing.T) {
	h, mux := testMux(t)
	w := httptest.NewRecorder()
	body := `{"gains": [2, 3], "offsets": [10, 20]}`
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scaling", strings.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if h.Image.Cal.Scales[1] != 3 || h.Image.Cal.Offsets[0] != 10 {
		t.Errorf("calibration not installed: %+v", h.Image.Cal)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/scaling", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	for _, frag := range []string{`"gains"`, `"offsets"`, "3", "20"} {
		if !strings.Contains(w.Body.String(), frag) {
			t.Errorf("expected %s in %s", frag, w.Body.String())
		}
	}
}

func TestSetScalingMismatchedLengths(t *testing.T) {
	_, mux := testMux(t)
	w := httptest.NewRecorder()
	body := `{"gains": [2, 3], "offsets": [10]}`
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scaling", strings.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestGetFramePNG(t *testing.T) {
	_, mux := testMux(t)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frame?fmt=png", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}
	if w.Body.Len() == 0 {
		t.Error("expected PNG bytes")
	}
}

func TestGetFrameBadFormat(t *testing.T) {
	_, mux := testMux(t)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/frame?fmt=tiff", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}
