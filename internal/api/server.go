// Package api exposes the web surface: the SSE/websocket stream, the
// transparent proxy, and the management endpoints for projects,
// configuration, the agent process and voice transcription.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"codebridge/internal/agent"
	"codebridge/internal/config"
	"codebridge/internal/journal"
	"codebridge/internal/project"
	"codebridge/internal/proxy"
	"codebridge/internal/stream"
	"codebridge/internal/transcribe"
)

const maxUploadBytes = 32 << 20

// Deps carries the collaborating services. Journal may be nil when
// journaling is disabled.
type Deps struct {
	Store    *config.Store
	Projects *project.Manager
	Agent    *agent.Supervisor
	Relay    *stream.Relay
	Proxy    *proxy.Proxy
	Voice    *transcribe.Service
	Journal  *journal.Store
}

type Server struct {
	httpServer *http.Server
	opts       config.Options
	store      *config.Store
	projects   *project.Manager
	agent      *agent.Supervisor
	relay      *stream.Relay
	proxy      *proxy.Proxy
	voice      *transcribe.Service
	journal    *journal.Store
}

func New(opts config.Options, deps Deps) *Server {
	s := &Server{
		opts:     opts,
		store:    deps.Store,
		projects: deps.Projects,
		agent:    deps.Agent,
		relay:    deps.Relay,
		proxy:    deps.Proxy,
		voice:    deps.Voice,
		journal:  deps.Journal,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/server/status", s.handleServerStatus)
	mux.HandleFunc("/api/server/restart", s.handleServerRestart)
	mux.HandleFunc("/api/projects", s.handleProjects)
	mux.HandleFunc("/api/projects/", s.handleProjectByName)
	mux.HandleFunc("/api/projects-root", s.handleProjectsRoot)
	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/open-folder", s.handleOpenFolder)
	mux.HandleFunc("/api/voice/transcribe", s.handleTranscribe)
	mux.HandleFunc("/api/journal", s.handleJournal)
	mux.HandleFunc("/stream", s.handleStream)
	mux.HandleFunc("/stream/ws", s.handleStreamWS)
	mux.HandleFunc("/proxy/", s.handleProxy)
	mux.HandleFunc("/static/", s.handleStatic)
	mux.HandleFunc("/", s.handleIndex)

	s.httpServer = &http.Server{
		Addr:              opts.HTTPAddr,
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	log.Printf("codebridge listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the configured handler for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// The UI is served to browsers on other devices during local
// development, so everything is wide open.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"timestamp":     time.Now().Format(time.RFC3339),
		"agent_running": s.agent.Reachable(r.Context()),
		"transcriber":   s.voice.Status(),
		"web_addr":      s.opts.HTTPAddr,
	})
}

func (s *Server) handleServerStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running":       s.agent.Reachable(r.Context()),
		"port":          s.opts.AgentPort,
		"url":           s.opts.AgentBaseURL,
		"opencode_path": s.agent.FindBinary(),
	})
}

func (s *Server) handleServerRestart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	directory := r.FormValue("directory")
	if directory == "" {
		directory = s.store.Directory()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()
	if err := s.agent.StartAndWait(ctx, directory); err != nil {
		if errors.Is(err, agent.ErrBinaryNotFound) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"message": "Server start attempted but not responding",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Server started"})
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		projects, err := s.projects.List()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"projects": projects})
	case http.MethodPost:
		name := r.FormValue("name")
		path := r.FormValue("path")
		p, err := s.projects.Create(name, path)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, project.ErrExists) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "project": p})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) handleProjectByName(w http.ResponseWriter, r *http.Request) {
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/projects/"), "/")
	switch name {
	case "":
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "project name missing"})
	case "current":
		s.handleCurrentProject(w, r)
	case "select":
		s.handleSelectProject(w, r)
	default:
		if r.Method != http.MethodDelete {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		if err := s.projects.Delete(name); err != nil {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"message": fmt.Sprintf("Project %q deleted", name),
		})
	}
}

func (s *Server) handleCurrentProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	current := s.store.LastProject()
	if current == "" {
		writeJSON(w, http.StatusOK, map[string]any{"project": nil})
		return
	}
	p, err := s.projects.Get(filepath.Base(current))
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"project": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"project": p})
}

func (s *Server) handleSelectProject(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	p, err := s.projects.Get(r.FormValue("name"))
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	if err := s.store.SetLastProject(p.Path); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "project": p})
}

func (s *Server) handleProjectsRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"path":    s.store.ProjectsRoot(),
			"default": s.opts.ProjectsRoot,
		})
	case http.MethodPost:
		path := r.FormValue("path")
		if path == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "path is required"})
			return
		}
		if err := ensureDir(path); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if err := s.store.SetProjectsRoot(path); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": path})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"config": s.store.Snapshot()})
	case http.MethodPost:
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		merged, err := s.store.Update(patch)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": merged})
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
	}
}

func (s *Server) handleOpenFolder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	path := r.FormValue("path")
	resolved, err := resolveFolder(path)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error()})
		return
	}
	if err := openFolder(resolved); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "path": resolved})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if !s.voice.Enabled() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "Voice transcription not available"})
		return
	}
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "audio file is required"})
		return
	}
	defer file.Close()

	text, err := s.voice.Transcribe(r.Context(), file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": fmt.Sprintf("Error transcribing audio: %v", err)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "text": text})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if s.journal == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "journal disabled"})
		return
	}
	directory := r.URL.Query().Get("directory")
	if directory == "" {
		directory = s.store.Directory()
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.journal.List(r.Context(), directory, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (s *Server) handleProxy(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/proxy/")
	s.proxy.Forward(w, r, path)
}

func resolveFolder(path string) (string, error) {
	if path == "" {
		return "", errors.New("path is required")
	}
	info, err := statPath(path)
	if err != nil {
		return "", fmt.Errorf("folder not found: %s", path)
	}
	if !info.IsDir() {
		return filepath.Dir(path), nil
	}
	return path, nil
}

func openFolder(path string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	return cmd.Start()
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}
