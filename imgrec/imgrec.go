// Package imgrec contains an image recorder used to automatically archive
// exposures to disk alongside whatever the client requested.
package imgrec

import (
	"encoding/json"
	"fmt"
	"go/types"
	"net/http"
	"os"
	"path"
	"strconv"
	"strings"
	"time"

	"goji.io/pat"

	"github.com/uaitl/focalsrv/server"
)

// Recorder archives FITS frames with incrementing filenames in yyyy-mm-dd
// subfolders.  It is not thread safe.
type Recorder struct {
	// counter is the internally incrementing filename counter
	counter int

	// Root is the root folder to archive under
	Root string

	// Prefix is the filename prefix
	Prefix string

	// timeFldr is the yyyy-mm-dd subfolder of the current day
	timeFldr string

	// Enabled allows consumers to skip the recorder without dropping it
	Enabled bool
}

// updateFolder refreshes the dated subfolder from the wall clock
func (r *Recorder) updateFolder() {
	now := time.Now()
	r.timeFldr = fmt.Sprintf("%04d-%02d-%02d", now.Year(), now.Month(), now.Day())
}

// mkDir makes the dated folder and returns it
func (r *Recorder) mkDir() (string, error) {
	fldr := path.Join(r.Root, r.timeFldr)
	err := os.MkdirAll(fldr, 0777)
	return fldr, err
}

// Write implements io.Writer; the bytes are one FITS file's contents.
// Consecutive Writes without an Incr append to the same file, which is how
// a frame streamed in chunks stays whole.
func (r *Recorder) Write(p []byte) (n int, err error) {
	r.updateFolder()
	fldr, err := r.mkDir()
	if err != nil {
		return 0, err
	}

	fn := fmt.Sprintf("%s%06d.fits", r.Prefix, r.counter)
	fn = path.Join(fldr, fn)
	fid, err := os.OpenFile(fn, os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil && os.IsNotExist(err) {
		fid, err = os.Create(fn)
	}
	if err != nil {
		return 0, err
	}
	defer fid.Close()
	return fid.Write(p)
}

// Incr advances the filename counter past the largest index already in the
// folder.  On error the counter is left alone.
func (r *Recorder) Incr() {
	dn, _ := r.mkDir()
	entries, err := os.ReadDir(dn)
	if err != nil {
		return
	}
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fn := entry.Name()
		if !strings.HasSuffix(fn, ".fits") || !strings.HasPrefix(fn, r.Prefix) {
			continue
		}
		bit := strings.TrimPrefix(fn, r.Prefix)
		bit = strings.TrimSuffix(bit, ".fits")
		n, err := strconv.Atoi(bit)
		if err != nil {
			return
		}
		if count < n {
			count = n
		}
	}
	r.counter = count + 1
}

// HTTPWrapper exposes a recorder's folder, prefix, and enable flag over
// HTTP.  It offers an Inject method rather than implementing server.HTTPer
// itself, so it can ride along on another HTTPer's table.
type HTTPWrapper struct {
	*Recorder
}

// NewHTTPWrapper returns an HTTP wrapper around a recorder
func NewHTTPWrapper(r *Recorder) HTTPWrapper {
	return HTTPWrapper{r}
}

// SetRoot updates the recorder's root folder
func (h HTTPWrapper) SetRoot(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := h.Recorder
	rec.Root = str.Str
	rec.updateFolder()
	if _, err = rec.mkDir(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// GetRoot returns the recorder's root folder as JSON
func (h HTTPWrapper) GetRoot(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.String, String: h.Recorder.Root}
	hp.EncodeAndRespond(w, r)
}

// SetPrefix updates the filename prefix and resets the counter
func (h HTTPWrapper) SetPrefix(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.Prefix = str.Str
	h.Recorder.counter = 0
	w.WriteHeader(http.StatusOK)
}

// GetPrefix returns the recorder's prefix as JSON
func (h HTTPWrapper) GetPrefix(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.String, String: h.Recorder.Prefix}
	hp.EncodeAndRespond(w, r)
}

// SetEnabled sets the recorder's Enabled flag
func (h HTTPWrapper) SetEnabled(w http.ResponseWriter, r *http.Request) {
	b := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Recorder.Enabled = b.Bool
	w.WriteHeader(http.StatusOK)
}

// GetEnabled returns the recorder's Enabled flag as JSON
func (h HTTPWrapper) GetEnabled(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: h.Recorder.Enabled}
	hp.EncodeAndRespond(w, r)
}

// Inject adds the recorder manipulation routes under /autowrite to the HTTPer
func (h HTTPWrapper) Inject(other server.HTTPer) {
	rt := other.RT()
	rt[pat.Post("/autowrite/root")] = h.SetRoot
	rt[pat.Get("/autowrite/root")] = h.GetRoot
	rt[pat.Post("/autowrite/prefix")] = h.SetPrefix
	rt[pat.Get("/autowrite/prefix")] = h.GetPrefix
	rt[pat.Post("/autowrite/enabled")] = h.SetEnabled
	rt[pat.Get("/autowrite/enabled")] = h.GetEnabled
}
