// Package detector provides the HTTP interface to a detector exposure:
// loading raw files, scaling, assembly, frame fetch, and archival writes.
package detector

import (
	"encoding/json"
	"go/types"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"

	"goji.io/pat"
	"golang.org/x/time/rate"

	"github.com/uaitl/focalsrv/detimage"
	"github.com/uaitl/focalsrv/fitsfile"
	"github.com/uaitl/focalsrv/imgrec"
	"github.com/uaitl/focalsrv/server"
	"github.com/uaitl/focalsrv/server/middleware/locker"
	"github.com/uaitl/focalsrv/util"
)

// scalingT is the JSON shape of the calibration arrays
type scalingT struct {
	Gains   []float64 `json:"gains"`
	Offsets []float64 `json:"offsets"`
}

// assembleT is the JSON body of an assemble request; trim is the usual
// tri-state (-1 default, 0 keep margins, 1 remove margins)
type assembleT struct {
	Trim int `json:"trim"`
}

// fileT is the JSON body of load and write requests
type fileT struct {
	Filename string `json:"filename"`
	FileType int    `json:"filetype"`
}

// HTTPImage wraps one detimage.Image in a route table
type HTTPImage struct {
	// Image is the exposure being served.  Replaced wholesale when a new
	// file is loaded.
	Image *detimage.Image

	// Opt configures file writes
	Opt fitsfile.WriteOptions

	rec     *imgrec.Recorder
	lock    *locker.Locker
	limiter *rate.Limiter
	rt      server.RouteTable
}

// NewHTTPImage wraps img.  rec may be nil to disable archiving, lk may be
// nil if writes need no lockout.
func NewHTTPImage(img *detimage.Image, rec *imgrec.Recorder, lk *locker.Locker, opt fitsfile.WriteOptions) *HTTPImage {
	h := &HTTPImage{
		Image: img,
		Opt:   opt,
		rec:   rec,
		lock:  lk,
		// frame fetches assemble and re-encode the whole focal plane;
		// keep greedy pollers from starving the archive path
		limiter: rate.NewLimiter(rate.Limit(4), 2),
	}
	rt := server.RouteTable{
		pat.Get("/scaling"):           h.GetScaling,
		pat.Post("/scaling"):          h.SetScaling,
		pat.Post("/scaling/overscan"): h.ScaleFromOverscan,
		pat.Post("/assemble"):         h.Assemble,
		pat.Get("/trim"):              h.GetTrim,
		pat.Post("/trim"):             h.SetTrim,
		pat.Post("/invalidate"):       h.Invalidate,
		pat.Get("/assembled"):         h.GetAssembled,
		pat.Get("/frame"):             h.GetFrame,
		pat.Post("/load"):             h.Load,
		pat.Post("/write"):            h.Write,
	}
	h.rt = rt
	if rec != nil {
		imgrec.NewHTTPWrapper(rec).Inject(h)
	}
	if lk != nil {
		locker.Inject(h, lk)
	}
	return h
}

// RT satisfies server.HTTPer
func (h *HTTPImage) RT() server.RouteTable {
	return h.rt
}

// GetScaling returns the calibration arrays as JSON
func (h *HTTPImage) GetScaling(w http.ResponseWriter, r *http.Request) {
	s := scalingT{Gains: h.Image.Cal.Scales, Offsets: h.Image.Cal.Offsets}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// SetScaling installs calibration arrays from a JSON body; omitted arrays
// default to identity
func (h *HTTPImage) SetScaling(w http.ResponseWriter, r *http.Request) {
	s := scalingT{}
	err := json.NewDecoder(r.Body).Decode(&s)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Image.SetScaling(s.Gains, s.Offsets); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// ScaleFromOverscan sets per-amplifier offsets from the overscan means
func (h *HTTPImage) ScaleFromOverscan(w http.ResponseWriter, r *http.Request) {
	if err := h.Image.ScaleFromOverscan(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// Assemble runs assembly with the trim mode from the JSON body
func (h *HTTPImage) Assemble(w http.ResponseWriter, r *http.Request) {
	a := assembleT{Trim: int(detimage.TrimDefault)}
	err := json.NewDecoder(r.Body).Decode(&a)
	defer r.Body.Close()
	if err != nil && err != io.EOF {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.Image.Assemble(detimage.TrimMode(a.Trim)); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetTrim returns the stored trim preference as JSON
func (h *HTTPImage) GetTrim(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: h.Image.Trim}
	hp.EncodeAndRespond(w, r)
}

// SetTrim updates the stored trim preference from a {"bool": value} body
func (h *HTTPImage) SetTrim(w http.ResponseWriter, r *http.Request) {
	b := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Image.Trim = b.Bool
	w.WriteHeader(http.StatusOK)
}

// Invalidate discards the assembled buffer
func (h *HTTPImage) Invalidate(w http.ResponseWriter, r *http.Request) {
	h.Image.Invalidate()
	w.WriteHeader(http.StatusOK)
}

// GetAssembled returns whether an assembled buffer exists
func (h *HTTPImage) GetAssembled(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: h.Image.Assembled()}
	hp.EncodeAndRespond(w, r)
}

// Load decodes the FITS file named in the body into the served image
func (h *HTTPImage) Load(w http.ResponseWriter, r *http.Request) {
	ft := fileT{}
	err := json.NewDecoder(r.Body).Decode(&ft)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	img, err := fitsfile.ReadFile(ft.Filename)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Image = img
	w.WriteHeader(http.StatusOK)
}

// Write serializes the image to the file named in the body, holding the
// lock for the duration so clients see 423 instead of a partial file
func (h *HTTPImage) Write(w http.ResponseWriter, r *http.Request) {
	ft := fileT{FileType: h.Opt.FileType}
	err := json.NewDecoder(r.Body).Decode(&ft)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	opt := h.Opt
	opt.FileType = ft.FileType
	if h.lock != nil {
		h.lock.Lock()
		defer h.lock.Unlock()
	}
	if err := fitsfile.WriteFile(h.Image, ft.Filename, opt); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetFrame returns the assembled image on a GET request.
//
// the image format may be specified in a query parameter; default to jpg.
// fits responses also land in the archive recorder when it is enabled.
func (h *HTTPImage) GetFrame(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.Allow() {
		http.Error(w, "frame fetch rate exceeded", http.StatusTooManyRequests)
		return
	}
	img := h.Image
	if !img.Assembled() {
		if err := img.Assemble(detimage.TrimApply); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	format := r.URL.Query().Get("fmt")
	if format == "" {
		format = "jpg"
	}
	switch format {
	case "jpg":
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		jpeg.Encode(w, frame8(img), nil)
	case "png":
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		png.Encode(w, frame8(img))
	case "fits":
		var w2 io.Writer = w
		if h.rec != nil && h.rec.Enabled && h.rec.Root != "" {
			w2 = io.MultiWriter(w, h.rec)
			defer h.rec.Incr()
		}
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=image.fits")
		bitpix := h.Opt.SaveDataFormat
		if bitpix == 0 {
			bitpix = img.BitPix
		}
		if err := fitsfile.WriteASM(w2, img, bitpix); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "fmt must be jpg, png, or fits", http.StatusBadRequest)
	}
}

// frame8 renders the assembled buffer as an 8-bit grayscale image with a
// linear min/max stretch
func frame8(img *detimage.Image) *image.Gray {
	buf := img.Buffer()
	cols, rows := img.Size()
	min, max := util.MinMax(buf)
	span := max - min
	if span == 0 {
		span = 1
	}
	pix := make([]byte, len(buf))
	for i, v := range buf {
		pix[i] = byte(util.Clamp((v-min)/span*255, 0, 255))
	}
	return &image.Gray{Pix: pix, Stride: cols, Rect: image.Rect(0, 0, cols, rows)}
}
