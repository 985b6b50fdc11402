/*Package frametime logs camera frame acquisition times.

The engine reports each frame-acquired event; the logger keeps the most
recent timestamps in a ring and, while a log session is open, appends them
to a text file next to the session's data file.  One timestamp per line,
RFC 3339 with nanoseconds, so the log diffs cleanly against scanner clocks.
*/
package frametime

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/brandondube/ringo"

	"github.com/jlarkin/scanaux/bridge"
	"github.com/jlarkin/scanaux/daq"
	"github.com/jlarkin/scanaux/server"
)

// Suffix is appended to the session base name to form the log file name
const Suffix = ".frametimes.txt"

// Logger records frame times.  It satisfies bridge.Listener so session
// lifetimes follow the bridge.  All methods are goroutine safe.
type Logger struct {
	mu   sync.Mutex
	ring ringo.CircleTime

	f    *os.File
	path string

	// frames counts events since the logger was created
	frames int
}

// New returns a Logger retaining capacity recent timestamps
func New(capacity int) *Logger {
	l := &Logger{}
	l.ring.Init(capacity)
	return l
}

// LogPath derives the frame time log path from a session data path
func LogPath(sessionPath string) string {
	ext := filepath.Ext(sessionPath)
	return strings.TrimSuffix(sessionPath, ext) + Suffix
}

// Frame records one frame-acquired event.  If a session log is open the
// timestamp is appended to it.
func (l *Logger) Frame(t time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ring.Append(t)
	l.frames++
	if l.f == nil {
		return nil
	}
	_, err := fmt.Fprintln(l.f, t.Format(time.RFC3339Nano))
	return err
}

// Recent returns the retained timestamps from least to most recent
func (l *Logger) Recent() []time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.ring.Contiguous()
}

// Frames returns the number of events recorded since creation
func (l *Logger) Frames() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// SessionOpened opens the frame time log next to the session data file
func (l *Logger) SessionOpened(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
	f, err := os.Create(LogPath(path))
	if err != nil {
		// the data session continues without frame times
		return
	}
	l.f = f
	l.path = LogPath(path)
}

// SessionClosed closes the frame time log
func (l *Logger) SessionClosed(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closeFile()
}

// closeFile closes the open log, if any; callers hold l.mu
func (l *Logger) closeFile() {
	if l.f != nil {
		l.f.Close()
		l.f = nil
		l.path = ""
	}
}

// StateChanged satisfies bridge.Listener; frame logs key off sessions only
func (l *Logger) StateChanged(s bridge.State) {}

// SampleBlock satisfies bridge.Listener; analog data is not frame timed
func (l *Logger) SampleBlock(b daq.Block) {}

// RT satisfies server.HTTPer
func (l *Logger) RT() server.RouteTable {
	return server.RouteTable{
		server.MethodPath{Method: http.MethodPost, Path: "/frame"}:     l.HTTPFrame,
		server.MethodPath{Method: http.MethodGet, Path: "/frametimes"}: l.HTTPRecent,
	}
}

// HTTPFrame records a frame event.  An empty body stamps the server clock;
// {"f64": unixNanos} stamps an engine-supplied time.
func (l *Logger) HTTPFrame(w http.ResponseWriter, r *http.Request) {
	t := time.Now()
	var f server.FloatT
	err := json.NewDecoder(r.Body).Decode(&f)
	defer r.Body.Close()
	if err == nil && f.F64 != 0 {
		t = time.Unix(0, int64(f.F64))
	}
	err = l.Frame(t)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// HTTPRecent serves the retained timestamps as JSON
func (l *Logger) HTTPRecent(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(l.Recent())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
