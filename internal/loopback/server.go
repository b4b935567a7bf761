// Package loopback runs the short-lived HTTP listener that receives the
// provider's redirect on a 127.0.0.1 redirect URI.
package loopback

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

var pageTemplate = template.Must(template.New("callback").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 4em">
<h2>{{.Title}}</h2><p>{{.Message}}</p>
</body></html>`))

type page struct {
	Title   string
	Message string
}

// Server receives callbacks on the redirect URI's path.
type Server struct {
	srv          *http.Server
	ln           net.Listener
	callbackPath string
}

// Listen binds the host:port of an http redirect URI. Every request to its
// path is reported to onCallback with the full URL the browser requested.
func Listen(redirectURI string, onCallback func(fullURL string)) (*Server, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("[loopback.Listen] url.Parse: %w", err)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("[loopback.Listen] redirect URI must use http, got %q", redirectURI)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("[loopback.Listen] redirect URI has no host: %q", redirectURI)
	}

	ln, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("[loopback.Listen] net.Listen %s: %w", u.Host, err)
	}

	s := &Server{
		ln:           ln,
		callbackPath: CallbackPath(u),
	}
	s.srv = &http.Server{
		Handler:           s.routes(onCallback),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// CallbackPath is the route for u, "/" when u has no path.
func CallbackPath(u *url.URL) string {
	if u.Path == "" {
		return "/"
	}
	return u.Path
}

func (s *Server) routes(onCallback func(string)) http.Handler {
	r := chi.NewRouter()
	r.Use(RecoverMiddleware, LoggingMiddleware)
	r.Get(s.callbackPath, func(w http.ResponseWriter, req *http.Request) {
		onCallback("http://" + req.Host + req.URL.RequestURI())
		writePage(w, req.URL.Query())
	})
	return r
}

// Addr is the bound address, useful when the redirect URI asked for port 0.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Serve blocks until Shutdown.
func (s *Server) Serve() error {
	log.Debug().Str("addr", s.Addr()).Str("path", s.callbackPath).Msg("callback listener started")
	if err := s.srv.Serve(s.ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Serve: %w", err)
	}
	return nil
}

func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func writePage(w http.ResponseWriter, q url.Values) {
	p := page{Title: "Sign-in received", Message: "Return to the terminal to see whether sign-in completed. You can close this window."}
	switch {
	case q.Get("error") != "":
		msg := q.Get("error_description")
		if msg == "" {
			msg = q.Get("error")
		}
		p = page{Title: "Sign-in failed", Message: msg}
	case q.Get("code") == "":
		p = page{Title: "Sign-in failed", Message: "No authorization code received"}
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if err := pageTemplate.Execute(w, p); err != nil {
		log.Err(err).Msg("rendering callback page")
	}
}

func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error().Interface("panic", rec).Str("stack", string(debug.Stack())).Msg("recovered from panic in callback handler")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// LoggingMiddleware logs the route only; the query carries the authorization code.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("callback request")
		next.ServeHTTP(w, r)
	})
}
