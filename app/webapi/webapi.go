// Package webapi provides the spam check web UI and its JSON API.
// A single page with a subject/body form, quick-fill examples and an
// in-memory session history, served with HTMX partial updates. Every
// endpoint is also usable as a plain JSON API.
package webapi

import (
	"context"
	"embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	tollbooth "github.com/didip/tollbooth/v8"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"

	"github.com/mailsift/mailsift/lib/scorecheck"
)

//go:embed assets/* assets/components/*
var templateFS embed.FS

// Server is the web UI and API server.
type Server struct {
	Config
}

// Config defines server parameters.
type Config struct {
	Version    string              // version to show in /ping and the page footer
	ListenAddr string              // listen address
	Scorer     Scorer              // fitted scoring pipeline
	Source     string              // model source label, shown on the page
	Threshold  float64             // default spam threshold
	History    *scorecheck.History // session history of checks
	Reporter   Reporter            // verdict report log, optional
	AuthPasswd string              // basic auth password for user "mailsift", empty disables auth
	Dbg        bool                // debug mode
}

// Scorer returns the spam probability for a text, implemented by the pipeline.
type Scorer interface {
	Score(text string) float64
}

// Reporter records final verdicts, implemented by the app with a rotated
// json-lines writer.
type Reporter interface {
	Report(e scorecheck.Entry)
}

// ReporterFunc adapts a function to the Reporter interface.
type ReporterFunc func(e scorecheck.Entry)

// Report calls the wrapped function.
func (f ReporterFunc) Report(e scorecheck.Entry) { f(e) }

// Example is a canned email for the quick-fill buttons.
type Example struct {
	Name    string `json:"name"`
	Spam    bool   `json:"spam"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Examples returns the canned quick-fill emails.
func Examples() []Example {
	return []Example{
		{Name: "ham", Spam: false, Subject: "Mời bạn tham dự phỏng vấn",
			Body: "Chúng tôi mời bạn tham dự phỏng vấn lúc 9h sáng thứ Hai tuần tới."},
		{Name: "spam", Spam: true, Subject: "Trúng thưởng iPhone 15",
			Body: "Chúc mừng! Nhấn vào link để xác nhận và nhận quà ngay hôm nay."},
	}
}

// NewServer creates a new web API server.
func NewServer(config Config) *Server {
	return &Server{Config: config}
}

// Run starts the server and blocks until the context is canceled.
func (s *Server) Run(ctx context.Context) error {
	router := routegroup.New(http.NewServeMux())
	router.Use(rest.Recoverer(lgr.Default()))
	router.Use(rest.AppInfo("mailsift", "mailsift", s.Version), rest.Ping)
	router.Use(tollbooth.HTTPMiddleware(tollbooth.NewLimiter(50, nil)))
	router.Use(rest.SizeLimit(1024 * 1024)) // 1M max request size

	if s.AuthPasswd != "" {
		log.Printf("[INFO] basic auth enabled for webapi server")
		router.Use(rest.BasicAuthWithPrompt("mailsift", s.AuthPasswd))
	} else {
		log.Printf("[WARN] basic auth disabled, access to webapi is not protected")
	}

	s.routes(router)

	srv := &http.Server{Addr: s.ListenAddr, Handler: router, ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("[WARN] failed to shutdown webapi server: %v", err)
		} else {
			log.Printf("[INFO] webapi server stopped")
		}
	}()

	log.Printf("[INFO] start webapi server on %s", s.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}

func (s *Server) routes(router *routegroup.Bundle) {
	router.HandleFunc("GET /{$}", s.htmlIndexHandler)                   // single-page UI
	router.HandleFunc("POST /check", s.checkHandler)                    // check an email for spam
	router.HandleFunc("GET /history", s.historyHandler)                 // session history
	router.HandleFunc("GET /download/history.csv", s.historyCSVHandler) // history export
	router.HandleFunc("GET /examples", s.examplesHandler)               // canned quick-fill emails
	router.HandleFunc("GET /styles.css", s.stylesHandler)               // serve styles.css
}

// checkHandler handles POST /check requests, both JSON API calls and HTMX
// form submissions. Empty after trim input is short-circuited with an
// informational message, the pipeline is never invoked for it.
func (s *Server) checkHandler(w http.ResponseWriter, r *http.Request) {
	isHtmxRequest := r.Header.Get("HX-Request") == "true"

	req := scorecheck.Request{}
	if isHtmxRequest {
		req.Subject = r.FormValue("subject")
		req.Body = r.FormValue("body")
		if v, err := strconv.ParseFloat(r.FormValue("threshold"), 64); err == nil {
			req.Threshold = v
		}
	} else {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			rest.RenderJSON(w, rest.JSON{"error": "can't decode request", "details": err.Error()})
			log.Printf("[WARN] can't decode request: %v", err)
			return
		}
	}

	threshold := s.Threshold
	if req.Threshold != 0 {
		threshold = clampThreshold(req.Threshold)
	}

	text := req.Text()
	if text == "" {
		if isHtmxRequest {
			s.renderComponent(w, "info.html", nil)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		rest.RenderJSON(w, rest.JSON{"info": "empty input, nothing to check"})
		return
	}

	prob := s.Scorer.Score(text)
	res := scorecheck.Result{
		Spam:        scorecheck.Verdict(prob, threshold),
		Probability: prob,
		Threshold:   threshold,
		Source:      s.Source,
	}

	entry := scorecheck.NewEntry(req, res, time.Now())
	s.History.Push(entry)
	if s.Reporter != nil {
		s.Reporter.Report(entry)
	}
	log.Printf("[INFO] check %s: %s", req.String(), res.String())

	if !isHtmxRequest {
		rest.RenderJSON(w, res)
		return
	}
	s.renderComponent(w, "check_result.html", res)
}

// historyHandler handles GET /history, JSON list or HTMX partial.
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	entries := s.History.Last(s.History.Size())
	if r.Header.Get("HX-Request") == "true" {
		s.renderComponent(w, "history.html", entries)
		return
	}
	rest.RenderJSON(w, rest.JSON{"entries": entries, "count": len(entries)})
}

// historyCSVHandler handles GET /download/history.csv, exports the session
// history as delimited text.
func (s *Server) historyCSVHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="history.csv"`)

	wr := csv.NewWriter(w)
	if err := wr.Write([]string{"time", "verdict", "probability", "subject", "excerpt"}); err != nil {
		log.Printf("[WARN] can't write csv header: %v", err)
		return
	}
	for _, e := range s.History.Last(s.History.Size()) {
		verdict := "ham"
		if e.Spam {
			verdict = "spam"
		}
		rec := []string{e.Time.Format(time.RFC3339), verdict,
			strconv.FormatFloat(e.Probability, 'f', 3, 64), e.Subject, e.Excerpt}
		if err := wr.Write(rec); err != nil {
			log.Printf("[WARN] can't write csv record: %v", err)
			return
		}
	}
	wr.Flush()
}

// examplesHandler handles GET /examples, returns the canned quick-fill emails.
func (s *Server) examplesHandler(w http.ResponseWriter, _ *http.Request) {
	rest.RenderJSON(w, Examples())
}

// htmlIndexHandler serves the main page of the web UI.
func (s *Server) htmlIndexHandler(w http.ResponseWriter, _ *http.Request) {
	tmpl, err := template.New("index.html").ParseFS(templateFS, "assets/index.html")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't parse template", "details": err.Error()})
		return
	}

	data := struct {
		Version   string
		Source    string
		Threshold float64
		Examples  []Example
	}{Version: s.Version, Source: s.Source, Threshold: s.Threshold, Examples: Examples()}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		log.Printf("[WARN] can't execute template: %v", err)
	}
}

// stylesHandler serves the embedded styles.css.
func (s *Server) stylesHandler(w http.ResponseWriter, _ *http.Request) {
	body, err := templateFS.ReadFile("assets/styles.css")
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/css; charset=utf-8")
	if _, err := w.Write(body); err != nil {
		log.Printf("[WARN] can't write styles.css: %v", err)
	}
}

// renderComponent renders an HTMX partial from assets/components.
func (s *Server) renderComponent(w http.ResponseWriter, name string, data any) {
	tmpl, err := template.New(name).ParseFS(templateFS, "assets/components/"+name)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		rest.RenderJSON(w, rest.JSON{"error": "can't parse template", "details": err.Error()})
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		log.Printf("[WARN] can't execute template %s: %v", name, err)
	}
}

// clampThreshold keeps the threshold inside the allowed [0.1, 0.9] range.
func clampThreshold(v float64) float64 {
	switch {
	case v < 0.1:
		return 0.1
	case v > 0.9:
		return 0.9
	default:
		return v
	}
}
