// Package daemontest provides an in-process fake of the Docker Engine API
// for wire-level tests: ping, image build and image push endpoints speaking
// the daemon's JSON message stream.
package daemontest

import (
	"archive/tar"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Message is one frame of the daemon's JSON event stream.
type Message struct {
	Stream      string       `json:"stream,omitempty"`
	Status      string       `json:"status,omitempty"`
	ID          string       `json:"id,omitempty"`
	ErrorDetail *ErrorDetail `json:"errorDetail,omitempty"`
	Error       string       `json:"error,omitempty"`
}

// ErrorDetail mirrors the daemon's structured error frame.
type ErrorDetail struct {
	Message string `json:"message"`
}

// Progress builds a non-terminal stream frame.
func Progress(line string) Message {
	return Message{Stream: line + "\n"}
}

// Fail builds a terminal error frame the way the daemon emits one, with
// both the structured detail and the legacy error field set.
func Fail(message string) Message {
	return Message{ErrorDetail: &ErrorDetail{Message: message}, Error: message}
}

// Daemon is a scripted fake engine daemon. Configure the scripted fields
// before issuing requests; recorded state is read back through accessors.
type Daemon struct {
	// BuildMessages and PushMessages are streamed in order for each
	// build or push request.
	BuildMessages []Message
	PushMessages  []Message
	// TruncateBuild aborts the build stream mid-frame after the scripted
	// messages, simulating a daemon that died while streaming.
	TruncateBuild bool
	// BlockBuild, when non-nil, keeps the build stream open after the
	// scripted messages until the channel is closed.
	BlockBuild chan struct{}

	server *httptest.Server

	mu               sync.Mutex
	buildCalls       int
	pushCalls        int
	lastBuildQuery   url.Values
	lastContextFiles []string
	lastPushPath     string
	lastPushTag      string
	lastAuth         string
}

// New starts the fake daemon.
func New() *Daemon {
	d := &Daemon{}

	r := chi.NewRouter()
	r.Head("/_ping", d.handlePing)
	r.Get("/_ping", d.handlePing)
	r.Post("/v{version}/build", d.handleBuild)
	r.Post("/v{version}/images/*", d.handlePush)

	d.server = httptest.NewServer(r)
	return d
}

// Close shuts the fake daemon down.
func (d *Daemon) Close() {
	d.server.Close()
}

// Host returns the daemon address in the form the engine client expects.
func (d *Daemon) Host() string {
	return "tcp://" + strings.TrimPrefix(d.server.URL, "http://")
}

// BuildCalls reports how many build requests the daemon served.
func (d *Daemon) BuildCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buildCalls
}

// PushCalls reports how many push requests the daemon served.
func (d *Daemon) PushCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pushCalls
}

// LastBuildQuery returns the query parameters of the last build request.
func (d *Daemon) LastBuildQuery() url.Values {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastBuildQuery
}

// LastContextFiles returns the entry names of the last build context tar.
func (d *Daemon) LastContextFiles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.lastContextFiles...)
}

// LastPushPath returns the image path segment of the last push request.
func (d *Daemon) LastPushPath() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPushPath
}

// LastPushTag returns the tag query parameter of the last push request.
func (d *Daemon) LastPushTag() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPushTag
}

// LastAuth returns the raw X-Registry-Auth header of the last push request.
func (d *Daemon) LastAuth() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastAuth
}

func (d *Daemon) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("API-Version", "1.47")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodGet {
		io.WriteString(w, "OK")
	}
}

func (d *Daemon) handleBuild(w http.ResponseWriter, r *http.Request) {
	files := tarEntryNames(r.Body)

	d.mu.Lock()
	d.buildCalls++
	d.lastBuildQuery = r.URL.Query()
	d.lastContextFiles = files
	d.mu.Unlock()

	streamMessages(w, d.BuildMessages, d.TruncateBuild)
	if d.BlockBuild != nil {
		<-d.BlockBuild
	}
}

func (d *Daemon) handlePush(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.pushCalls++
	d.lastPushPath = strings.TrimSuffix(chi.URLParam(r, "*"), "/push")
	d.lastPushTag = r.URL.Query().Get("tag")
	d.lastAuth = r.Header.Get("X-Registry-Auth")
	d.mu.Unlock()

	streamMessages(w, d.PushMessages, false)
}

func streamMessages(w http.ResponseWriter, msgs []Message, truncate bool) {
	w.Header().Set("Content-Type", "application/json")
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)
	for _, m := range msgs {
		if err := enc.Encode(m); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	if truncate {
		io.WriteString(w, `{"stream":"Step`)
		if flusher != nil {
			flusher.Flush()
		}
		panic(http.ErrAbortHandler)
	}
}

func tarEntryNames(r io.Reader) []string {
	tr := tar.NewReader(r)
	var names []string
	for {
		hdr, err := tr.Next()
		if err != nil {
			return names
		}
		names = append(names, hdr.Name)
	}
}
