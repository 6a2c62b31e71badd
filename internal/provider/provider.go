// Package provider implements the account-provider-side HTTP surface of
// the protocol (spec.md §4.J): the well-known configuration document and
// the token-status callback, built the way the teacher's internal/server
// package builds its Stingle API surface.
package provider

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/time/rate"

	"delegatedrecovery/internal/config"
	"delegatedrecovery/internal/configfetch"
	"delegatedrecovery/internal/log"
	"delegatedrecovery/internal/record"
)

const (
	// ConfigurationPath is the well-known path the AP serves its own
	// configuration document from.
	ConfigurationPath = configfetch.WellKnownPath
	// TokenStatusPath receives save-token/token-status callbacks.
	TokenStatusPath = "/.well-known/delegated-account-recovery/token-status"
)

var (
	reqLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dar_provider_response_time",
			Help:    "The provider's response time",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.2, 0.3, 0.5, 1, 2, 5},
		},
		[]string{"method", "uri"},
	)
	reqStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dar_provider_response_status_total",
			Help: "Number of provider requests by status",
		},
		[]string{"method", "uri", "status"},
	)
)

func init() {
	prometheus.MustRegister(reqLatency)
	prometheus.MustRegister(reqStatus)
}

type ctxKey int

const connKey ctxKey = 1

// Server is an HTTP server exposing the account provider's well-known
// configuration document and token-status callback.
type Server struct {
	// MaxConcurrentCallbacks bounds the rate of the unauthenticated
	// token-status endpoint, mirroring the teacher's noauth limiter.
	MaxConcurrentCallbacks rate.Limit

	addr  string
	mux   *http.ServeMux
	srv   *http.Server
	cfg   *config.AccountProviderConfiguration
	store record.Store
	rl    *rate.Limiter
	log   *log.Logger
}

// New returns a Server that serves cfg as its own published configuration
// and applies status callbacks to store. Log lines are tagged with cfg's
// issuer, so a process hosting more than one Server can tell them apart.
func New(addr string, cfg *config.AccountProviderConfiguration, store record.Store) *Server {
	s := &Server{
		MaxConcurrentCallbacks: rate.Limit(50),
		addr:                   addr,
		mux:                    http.NewServeMux(),
		cfg:                    cfg,
		store:                  store,
		log:                    log.Named(cfg.Issuer),
	}
	s.rl = rate.NewLimiter(s.MaxConcurrentCallbacks, 10)
	s.mux.HandleFunc(ConfigurationPath, s.method(http.MethodGet, s.handleConfiguration))
	s.mux.HandleFunc(TokenStatusPath, s.method(http.MethodPost, s.handleTokenStatus))
	s.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	return s
}

func securityHeaders(w http.ResponseWriter, cacheable bool) {
	w.Header().Set("Strict-Transport-Security", "max-age=3600000; includeSubDomains")
	w.Header().Set("X-Frame-Options", "DENY")
	if !cacheable {
		w.Header().Set("Cache-Control", "no-store, must-revalidate")
	}
}

func (s *Server) handleConfiguration(w http.ResponseWriter, req *http.Request) {
	body, err := s.cfg.JSON()
	if err != nil {
		s.log.Errorf("configuration JSON: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	securityHeaders(w, true)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(int(config.DefaultMaxAge.Seconds())))
	w.Write(body)
}

// handleTokenStatus implements the save-token/token-status callback
// (spec.md §4.J, S1, S7): id (or the composite "newId,oldId" renewal
// form) plus status drive the record lifecycle. The handler always
// replies 200 with an empty body, and unknown ids are silently ignored,
// so the endpoint cannot be used to enumerate valid ids.
func (s *Server) handleTokenStatus(w http.ResponseWriter, req *http.Request) {
	securityHeaders(w, false)
	if err := s.rl.Wait(req.Context()); err != nil {
		w.WriteHeader(http.StatusOK)
		return
	}
	req.ParseForm()
	id := req.PostFormValue("id")
	status := req.PostFormValue("status")
	s.log.Infof("%s %s status=%q id=%q", req.Method, req.URL, status, id)

	switch status {
	case "save-success":
		if newID, oldID, ok := splitRenewal(id); ok {
			if err := s.store.Renew(newID, oldID); err != nil {
				s.log.Debugf("renew %q/%q: %v", newID, oldID, err)
			}
		} else if err := s.store.Confirm(id); err != nil {
			s.log.Debugf("confirm %q: %v", id, err)
		}
	case "save-failure", "deleted":
		if err := s.store.Remove(id); err != nil {
			s.log.Debugf("remove %q: %v", id, err)
		}
	case "token-repudiated":
		if err := s.store.Invalidate(id); err != nil {
			s.log.Debugf("invalidate %q: %v", id, err)
		}
	default:
		s.log.Debugf("unrecognized token-status value %q", status)
	}
	w.WriteHeader(http.StatusOK)
}

// splitRenewal recognizes the composite "newId,oldId" form used for
// token renewal (spec.md S7).
func splitRenewal(id string) (newID, oldID string, ok bool) {
	parts := strings.SplitN(id, ",", 2)
	if len(parts) != 2 {
		return "", "", false
	}
	return parts[0], parts[1], true
}

func (s *Server) method(method string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		timer := prometheus.NewTimer(reqLatency.WithLabelValues(req.Method, req.URL.Path))
		defer timer.ObserveDuration()
		if req.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Origin", req.Header.Get("Origin"))
			w.Header().Set("Access-Control-Allow-Methods", method+",OPTIONS")
			w.Header().Set("Access-Control-Max-Age", "86400")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if req.Method != method {
			reqStatus.WithLabelValues(req.Method, req.URL.Path, "method-not-allowed").Inc()
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, req)
		reqStatus.WithLabelValues(req.Method, req.URL.Path, "ok").Inc()
	}
}

func (s *Server) wrapHandler() http.Handler {
	return gziphandler.GzipHandler(s.mux)
}

func (s *Server) httpServer() *http.Server {
	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           s.wrapHandler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       30 * time.Second,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return context.WithValue(ctx, connKey, c)
		},
		ErrorLog: s.log.GoLogger(),
		TLSConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
			NextProtos: []string{"h2", "http/1.1"},
		},
	}
	return s.srv
}

// Run serves the provider surface in plaintext over h2c, suitable for
// local development or for sitting behind a TLS-terminating proxy.
func (s *Server) Run() error {
	srv := s.httpServer()
	srv.Handler = h2c.NewHandler(srv.Handler, &http2.Server{})
	return srv.ListenAndServe()
}

// RunWithTLS serves the provider surface with the given certificate.
func (s *Server) RunWithTLS(certFile, keyFile string) error {
	return s.httpServer().ListenAndServeTLS(certFile, keyFile)
}

// RunWithAutocert serves the provider surface with a Let's Encrypt
// certificate for domain, caching certificates under cacheDir.
func (s *Server) RunWithAutocert(domain, cacheDir string) error {
	certManager := autocert.Manager{
		Prompt: autocert.AcceptTOS,
		Cache:  autocert.DirCache(cacheDir),
	}
	if domain != "" {
		certManager.HostPolicy = autocert.HostWhitelist(strings.Split(domain, ",")...)
	}
	s.srv = s.httpServer()
	s.srv.TLSConfig = certManager.TLSConfig()
	s.srv.TLSConfig.MinVersion = tls.VersionTLS12
	return s.srv.ListenAndServeTLS("", "")
}

// RunWithListener serves the provider surface on a pre-existing
// listener. Used for testing.
func (s *Server) RunWithListener(l net.Listener) error {
	s.srv = &http.Server{Addr: s.addr, Handler: s.wrapHandler()}
	return s.srv.Serve(l)
}

// Shutdown cleanly shuts down the HTTP server.
func (s *Server) Shutdown() error {
	return s.srv.Shutdown(context.Background())
}

// Handler returns the server's http.Handler. Used for testing.
func (s *Server) Handler() http.Handler {
	return s.wrapHandler()
}
