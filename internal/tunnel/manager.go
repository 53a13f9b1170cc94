// Package tunnel manages Cloudflare tunnels that expose the local proxy.
// It drives an externally installed cloudflared binary; installing the
// binary is out of scope.
package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/skyrelay/skyrelay/internal/config"
	log "github.com/skyrelay/skyrelay/internal/logging"
)

// Status states reported through the status callback.
const (
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateReconnecting = "reconnecting"
	StateDisconnected = "disconnected"
	StateError        = "error"
)

// Status is one tunnel lifecycle update.
type Status struct {
	ID      string `json:"id"`
	State   string `json:"state"`
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
}

// ErrNotFound indicates no cloudflared binary could be located.
var ErrNotFound = errors.New("tunnel: cloudflared not found, install it first")

var errStopped = errors.New("tunnel: stopped")

const (
	maxStartRetries = 3
	retryBaseDelay  = 5 * time.Second
	retryMaxDelay   = 30 * time.Second
)

// FindCloudflared locates the cloudflared binary. GUI-launched processes on
// macOS do not inherit the terminal PATH, so well-known install locations
// are checked explicitly.
func FindCloudflared() (string, error) {
	if path, err := exec.LookPath("cloudflared"); err == nil {
		return path, nil
	}
	home, _ := os.UserHomeDir()
	candidates := []string{
		"/opt/homebrew/bin/cloudflared",
		"/usr/local/bin/cloudflared",
		"/usr/bin/cloudflared",
		"/snap/bin/cloudflared",
		`C:\Program Files\cloudflared\cloudflared.exe`,
		`C:\Program Files (x86)\cloudflared\cloudflared.exe`,
	}
	if home != "" {
		candidates = append(candidates, filepath.Join(home, ".local", "bin", "cloudflared"))
	}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", ErrNotFound
}

type running struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager supervises one cloudflared process per configured tunnel.
type Manager struct {
	mu       sync.Mutex
	tunnels  map[string]*running
	onStatus func(Status)

	// findBinary is swappable for tests.
	findBinary func() (string, error)
}

// NewManager returns a manager that reports lifecycle updates through
// onStatus. A nil callback is allowed.
func NewManager(onStatus func(Status)) *Manager {
	return &Manager{
		tunnels:    make(map[string]*running),
		onStatus:   onStatus,
		findBinary: FindCloudflared,
	}
}

func (m *Manager) emit(id, state, message, url string) {
	log.Debugf("tunnel %s: %s %s", id, state, message)
	if m.onStatus != nil {
		m.onStatus(Status{ID: id, State: state, Message: message, URL: url})
	}
}

// Connect starts (or restarts) the tunnel described by cfg. The supervision
// loop runs until Disconnect or ctx cancellation. Session start failures are
// retried with backoff; an established session that drops reconnects
// immediately with a fresh retry budget.
func (m *Manager) Connect(ctx context.Context, cfg config.TunnelConfig) {
	m.Disconnect(cfg.ID)

	runCtx, cancel := context.WithCancel(ctx)
	r := &running{cancel: cancel, done: make(chan struct{})}

	m.mu.Lock()
	m.tunnels[cfg.ID] = r
	m.mu.Unlock()

	go func() {
		defer close(r.done)
		m.supervise(runCtx, cfg)
	}()
}

func (m *Manager) supervise(ctx context.Context, cfg config.TunnelConfig) {
	m.emit(cfg.ID, StateConnecting, "Starting tunnel...", "")

	bin, err := m.findBinary()
	if err != nil {
		m.emit(cfg.ID, StateError, err.Error(), "")
		return
	}

	policy := retrypolicy.NewBuilder[bool]().
		WithMaxRetries(maxStartRetries).
		WithBackoff(retryBaseDelay, retryMaxDelay).
		HandleIf(func(connected bool, err error) bool {
			return err != nil && !connected && !errors.Is(err, errStopped)
		}).
		Build()

	for {
		connected, err := failsafe.With[bool](policy).Get(func() (bool, error) {
			return m.runSession(ctx, bin, cfg)
		})

		switch {
		case errors.Is(err, errStopped) || ctx.Err() != nil:
			m.emit(cfg.ID, StateDisconnected, "Tunnel stopped", "")
			return
		case err == nil:
			m.emit(cfg.ID, StateDisconnected, "Tunnel closed", "")
			return
		case connected:
			// Was established and then lost; reconnect with a fresh budget.
			m.emit(cfg.ID, StateReconnecting, "Connection lost, reconnecting...", "")
		default:
			m.emit(cfg.ID, StateError, "Failed to connect after multiple attempts", "")
			return
		}
	}
}

// runSession runs one cloudflared process to completion. It reports whether
// the tunnel was established at any point during the session.
func (m *Manager) runSession(ctx context.Context, bin string, cfg config.TunnelConfig) (bool, error) {
	args := []string{"tunnel"}
	if cfg.Token == "" {
		// Quick tunnel: expose the local port directly.
		args = append(args, "--url", fmt.Sprintf("http://localhost:%d", cfg.LocalPort))
	} else {
		// Named tunnel: ingress rules come from the Cloudflare dashboard.
		args = append(args, "run", "--token", cfg.Token)
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return false, fmt.Errorf("tunnel: stderr pipe: %w", err)
	}
	cmd.Stdout = nil

	m.emit(cfg.ID, StateConnecting, fmt.Sprintf("Connecting to port %d...", cfg.LocalPort), "")
	if err := cmd.Start(); err != nil {
		return false, fmt.Errorf("tunnel: start cloudflared: %w", err)
	}

	connected := false
	url := ""
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if state, msg, u, ok := classifyLine(line, url); ok {
			if u != "" {
				url = u
			}
			if state == StateConnected {
				connected = true
			}
			m.emit(cfg.ID, state, msg, url)
		}
	}

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return connected, errStopped
	}
	if waitErr != nil {
		m.emit(cfg.ID, StateError, fmt.Sprintf("cloudflared exited: %v", waitErr), "")
		return connected, fmt.Errorf("tunnel: cloudflared exited: %w", waitErr)
	}
	if !connected {
		return false, errors.New("tunnel: cloudflared exited before establishing a connection")
	}
	return connected, nil
}

// classifyLine maps one line of cloudflared stderr to a status update.
// cloudflared logs "Registered tunnel connection connIndex=..." on success
// and prints the assigned trycloudflare URL for quick tunnels.
func classifyLine(line, currentURL string) (state, message, url string, ok bool) {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "registered") &&
		(strings.Contains(lower, "connection") || strings.Contains(lower, "connindex")):
		return StateConnected, "Tunnel established", currentURL, true
	case strings.Contains(line, ".trycloudflare.com") || strings.Contains(line, ".cfargotunnel.com"):
		if idx := strings.Index(line, "https://"); idx >= 0 {
			fields := strings.Fields(line[idx:])
			if len(fields) > 0 {
				return StateConnected, "Tunnel ready", fields[0], true
			}
		}
		return "", "", "", false
	case strings.Contains(lower, "initial protocol") || strings.Contains(lower, "connection established"):
		return StateConnected, "Tunnel connected", currentURL, true
	case strings.Contains(lower, "err ") ||
		(strings.Contains(lower, "failed") && !strings.Contains(lower, "failed to parse")) ||
		strings.Contains(lower, "unable to"):
		return StateError, line, "", true
	default:
		return "", "", "", false
	}
}

// Disconnect stops the tunnel with the given id, waiting for its process to
// exit.
func (m *Manager) Disconnect(id string) {
	m.mu.Lock()
	r, exists := m.tunnels[id]
	if exists {
		delete(m.tunnels, id)
	}
	m.mu.Unlock()
	if !exists {
		return
	}
	r.cancel()
	<-r.done
}

// DisconnectAll stops every running tunnel.
func (m *Manager) DisconnectAll() {
	m.mu.Lock()
	all := make([]*running, 0, len(m.tunnels))
	for id, r := range m.tunnels {
		log.Infof("tunnel: stopping %s", id)
		all = append(all, r)
		delete(m.tunnels, id)
	}
	m.mu.Unlock()
	for _, r := range all {
		r.cancel()
		<-r.done
	}
}

// Active reports whether a tunnel with the given id is currently supervised.
func (m *Manager) Active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.tunnels[id]
	return exists
}
