// Package locker provides an HTTP middleware which lets a handler tree be
// locked, returning 423 (Locked).  The file write path holds the lock while
// an exposure is being flushed to disk so clients do not fetch or mutate a
// half-written image.
package locker

import (
	"encoding/json"
	"go/types"
	"net/http"
	"strings"

	"goji.io/pat"

	"github.com/uaitl/focalsrv/server"
)

// Inject adds the lock manipulation routes to an HTTPer
func Inject(other server.HTTPer, l *Locker) {
	rt := other.RT()
	rt[pat.Get("/lock")] = l.HTTPGet
	rt[pat.Post("/lock")] = l.HTTPSet
}

// Locker behaves like a sync.Mutex without the blocking and holds a list
// of route fragments the lock does not apply to
type Locker struct {
	isLocked bool

	// Bypass is a list of path fragments never protected by the lock
	Bypass []string
}

// New returns a Locker whose own routes bypass the lock
func New() *Locker {
	return &Locker{Bypass: []string{"lock"}}
}

// Lock the locker
func (l *Locker) Lock() {
	l.isLocked = true
}

// Unlock the locker
func (l *Locker) Unlock() {
	l.isLocked = false
}

// Locked returns true if the locker is locked
func (l *Locker) Locked() bool {
	return l.isLocked
}

// Check is the middleware; it bounces protected requests with 423 while
// the locker is locked and passes everything else down the line
func (l *Locker) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Locked() {
			protected := true
			for _, frag := range l.Bypass {
				if strings.Contains(r.URL.Path, frag) {
					protected = false
				}
			}
			if protected {
				w.WriteHeader(http.StatusLocked)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HTTPSet locks or unlocks based on a {"bool": value} body
func (l *Locker) HTTPSet(w http.ResponseWriter, r *http.Request) {
	b := server.BoolT{}
	err := json.NewDecoder(r.Body).Decode(&b)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if b.Bool {
		l.Lock()
	} else {
		l.Unlock()
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPGet returns Locked() as JSON
func (l *Locker) HTTPGet(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.Bool, Bool: l.Locked()}
	hp.EncodeAndRespond(w, r)
}
