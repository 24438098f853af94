package handlers

import (
	"embed"
	"html/template"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gator-overflow/internal/auth"
	"gator-overflow/internal/database"
	"gator-overflow/internal/engine"
	"gator-overflow/internal/middleware"
	"gator-overflow/internal/utils"
	"gator-overflow/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server holds all server dependencies, including the actor system and engine
type Server struct {
	System         *actor.ActorSystem
	Context        *actor.RootContext
	Engine         *engine.Engine
	Metrics        *utils.MetricsCollector
	Auth           *auth.Provider
	Images         database.ImageStore
	Hub            *websocket.Hub
	RequestTimeout time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string

	templates *template.Template
}

// Options carries the tunables of a Server.
type Options struct {
	RequestTimeout time.Duration
	MaxUploadBytes int64
	AllowedOrigins []string
}

// NewServer creates a new Server instance with the given components
func NewServer(
	system *actor.ActorSystem,
	engine *engine.Engine,
	metrics *utils.MetricsCollector,
	provider *auth.Provider,
	images database.ImageStore,
	hub *websocket.Hub,
	opts Options,
) (*Server, error) {
	templates, err := template.New("pages").ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}

	s := &Server{
		System:         system,
		Context:        system.Root,
		Engine:         engine,
		Metrics:        metrics,
		Auth:           provider,
		Images:         images,
		Hub:            hub,
		RequestTimeout: opts.RequestTimeout,
		MaxUploadBytes: opts.MaxUploadBytes,
		AllowedOrigins: opts.AllowedOrigins,
		templates:      templates,
	}
	if s.RequestTimeout <= 0 {
		s.RequestTimeout = 5 * time.Second // Default timeout for actor requests
	}
	if s.MaxUploadBytes <= 0 {
		s.MaxUploadBytes = 10 << 20
	}
	return s, nil
}

// Routes registers every endpoint and wraps the mux with session
// resolution, CORS and request logging.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.HandleIndex())
	mux.HandleFunc("GET /preparequestion", s.HandlePrepareQuestion())
	mux.HandleFunc("POST /createquestion", s.HandleCreateQuestion())
	mux.HandleFunc("GET /viewquestion", s.HandleViewQuestion())
	mux.HandleFunc("POST /createanswer", s.HandleCreateAnswer())
	mux.HandleFunc("POST /editquestion", s.HandleEditQuestion())
	mux.HandleFunc("POST /questionvote", s.HandleQuestionVote())
	mux.HandleFunc("POST /answervote", s.HandleAnswerVote())
	mux.HandleFunc("POST /search", s.HandleSearch())
	mux.HandleFunc("POST /upload", s.HandleUpload())
	mux.HandleFunc("GET /serve/{resource}", s.HandleServeImage())

	mux.HandleFunc("GET /login", s.HandleLoginPage())
	mux.HandleFunc("POST /login", s.HandleLogin())
	mux.HandleFunc("GET /register", s.HandleRegisterPage())
	mux.HandleFunc("POST /register", s.HandleRegister())
	mux.HandleFunc("GET /logout", s.HandleLogout())

	mux.HandleFunc("GET /ws", s.HandleWebSocket())
	mux.HandleFunc("GET /health", s.HandleHealth())

	cors := middleware.CORSMiddleware(middleware.DefaultCORSConfig(s.AllowedOrigins))
	return middleware.WithLogging(s.Metrics, cors(s.Auth.Middleware(mux)))
}

// ask sends msg to the question actor and unwraps its reply. Actor
// failures come back as *utils.AppError.
func (s *Server) ask(msg interface{}) (interface{}, error) {
	future := s.Context.RequestFuture(s.Engine.GetQuestionActor(), msg, s.RequestTimeout)
	result, err := future.Result()
	if err != nil {
		return nil, utils.NewActorTimeoutError("question actor", err)
	}
	if appErr, ok := result.(*utils.AppError); ok {
		return nil, appErr
	}
	return result, nil
}

// writeError maps err to a status code. Server-side failures are logged and
// reported without internal detail.
func writeError(w http.ResponseWriter, err error) {
	status := utils.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	if appErr, ok := err.(*utils.AppError); ok {
		http.Error(w, appErr.Message, status)
		return
	}
	http.Error(w, err.Error(), status)
}

// render executes a named template into a buffer first so a failing
// template never leaves a half-written page.
func (s *Server) render(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf strings.Builder
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		log.Printf("Failed to render %s: %v", name, err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	w.Write([]byte(buf.String()))
}

// safeRedirect returns dest when it is a local path and "/" otherwise, so
// the continue parameter cannot send users to another site.
func safeRedirect(dest string) string {
	if dest == "" || !strings.HasPrefix(dest, "/") || strings.HasPrefix(dest, "//") || strings.HasPrefix(dest, "/\\") {
		return "/"
	}
	if u, err := url.Parse(dest); err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}
	return dest
}

func questionURL(id string) string {
	return "/viewquestion?id=" + url.QueryEscape(id)
}
