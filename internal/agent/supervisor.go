// Package agent locates, launches and health-checks the upstream
// OpenCode process. The relay and proxy never manage the process
// themselves — they only ask whether it is reachable.
package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"
)

var ErrBinaryNotFound = errors.New("opencode executable not found")

const healthTimeout = 2 * time.Second

type Supervisor struct {
	baseURL string
	port    int
	binPath string
	client  *http.Client

	mu  sync.Mutex
	cmd *exec.Cmd
}

// New builds a supervisor for the agent expected at baseURL. binPath
// optionally pins the executable; otherwise well-known locations and
// PATH are searched.
func New(baseURL string, port int, binPath string) *Supervisor {
	return &Supervisor{
		baseURL: baseURL,
		port:    port,
		binPath: binPath,
		client:  &http.Client{Timeout: healthTimeout},
	}
}

// FindBinary returns the path to the opencode executable, or "" when
// none can be located.
func (s *Supervisor) FindBinary() string {
	if s.binPath != "" {
		if _, err := os.Stat(s.binPath); err == nil {
			return s.binPath
		}
	}

	home, _ := os.UserHomeDir()
	var candidates []string
	if runtime.GOOS == "windows" {
		candidates = []string{
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Programs", "opencode", "opencode.exe"),
			filepath.Join(os.Getenv("PROGRAMFILES"), "opencode", "opencode.exe"),
		}
	} else {
		candidates = []string{
			"/usr/local/bin/opencode",
			"/usr/bin/opencode",
			filepath.Join(home, ".local", "bin", "opencode"),
			filepath.Join(home, "bin", "opencode"),
		}
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	if found, err := exec.LookPath("opencode"); err == nil {
		return found
	}
	return ""
}

// Reachable reports whether the agent answers its health endpoint.
func (s *Supervisor) Reachable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Start launches `opencode serve` in directory. It does not wait for
// the server to come up; callers poll Reachable. Starting while a
// process we launched is still alive is a no-op.
func (s *Supervisor) Start(directory string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cmd != nil && s.cmd.Process != nil && s.cmd.ProcessState == nil {
		return nil
	}

	bin := s.FindBinary()
	if bin == "" {
		return ErrBinaryNotFound
	}

	cmd := exec.Command(bin, "serve", "--port", strconv.Itoa(s.port))
	cmd.Dir = directory
	stdout, _ := cmd.StdoutPipe()
	stderr, _ := cmd.StderrPipe()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start opencode: %w", err)
	}

	s.cmd = cmd
	go scan(stdout, "agent:stdout")
	go scan(stderr, "agent:stderr")
	go waitProcess(cmd)

	log.Printf("[agent] started %s serve --port %d in %s", bin, s.port, directory)
	return nil
}

// StartAndWait starts the agent and polls until it answers or the
// context expires.
func (s *Supervisor) StartAndWait(ctx context.Context, directory string) error {
	if err := s.Start(directory); err != nil {
		return err
	}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("opencode did not become reachable: %w", ctx.Err())
		case <-ticker.C:
			if s.Reachable(ctx) {
				return nil
			}
		}
	}
}

func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return nil
	}
	return s.cmd.Process.Kill()
}

func waitProcess(cmd *exec.Cmd) {
	if err := cmd.Wait(); err != nil {
		log.Printf("[agent] opencode exited with error: %v", err)
	} else {
		log.Printf("[agent] opencode exited")
	}
}

func scan(r io.Reader, prefix string) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		log.Printf("%s %s", prefix, scanner.Text())
	}
}
