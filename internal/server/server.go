// Package server is the HTTP surface: the tabbed record pages, the upload
// endpoint and two small JSON endpoints.
package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"sheetcrud/internal/app"
)

// uploadOverhead is the slack allowed on top of the file size limit for the
// multipart envelope.
const uploadOverhead = 1 << 20

// Options configure a Server.
type Options struct {
	// Logger defaults to log.Default().
	Logger  *log.Logger
	Verbose bool
}

// Server serves one app.Session.
type Server struct {
	session *app.Session
	logger  *log.Logger
	verbose bool
	mu      sync.Mutex
	now     func() time.Time
	handler http.Handler
}

// New builds the router and middleware chain around session.
func New(session *app.Session, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	s := &Server{session: session, logger: logger, verbose: opts.Verbose, now: time.Now}

	r := mux.NewRouter()
	// Keys are path-escaped by the page; keep "%2F" intact for matching.
	r.UseEncodedPath()
	r.HandleFunc("/", s.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/records", s.handleCreate).Methods(http.MethodPost)
	r.HandleFunc("/records/{key}", s.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/records/{key}/delete", s.handleDelete).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/schema", s.handleSchema).Methods(http.MethodGet)

	s.handler = chain(r,
		requestIDMiddleware,
		recoveryMiddleware(logger),
		accessLogMiddleware(logger, opts.Verbose),
		serialize(&s.mu),
	)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}
