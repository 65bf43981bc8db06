// Package launcher starts a browser process with remote debugging enabled
// and discovers its live debugging endpoint over HTTP. Each launch attempt
// gets its own port and an isolated profile directory; a failed attempt is
// fully torn down before the next port is tried.
package launcher

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/knrv/webpilot/api/schemas"
	"github.com/knrv/webpilot/internal/config"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// LaunchError reports that no attempt produced a reachable debugging
// endpoint. It wraps the last underlying error.
type LaunchError struct {
	Kind     schemas.BrowserKind
	Attempts int
	Err      error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launcher: failed to start %s after %d attempts: %v", e.Kind, e.Attempts, e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// Target is one debuggable page reported by the /json/list discovery
// endpoint.
type Target struct {
	ID                   string `json:"id"`
	Type                 string `json:"type"`
	Title                string `json:"title"`
	URL                  string `json:"url"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// Browser is a running browser process bound to a debugging port. The
// process and its profile directory live and die together.
type Browser struct {
	Port    int
	Targets []Target

	cmd        *exec.Cmd
	profileDir string
	logger     *zap.Logger
}

// FirstPageTarget returns the socket URL of the first debuggable page.
func (b *Browser) FirstPageTarget() (string, error) {
	for _, t := range b.Targets {
		if t.WebSocketDebuggerURL != "" && (t.Type == "page" || t.Type == "") {
			return t.WebSocketDebuggerURL, nil
		}
	}
	return "", fmt.Errorf("launcher: no debuggable page target on port %d", b.Port)
}

// Kill terminates the process and removes the profile directory.
func (b *Browser) Kill() {
	if b.cmd != nil && b.cmd.Process != nil {
		if err := b.cmd.Process.Kill(); err != nil {
			b.logger.Debug("Browser process kill failed", zap.Error(err))
		}
		// Reap the process so it does not linger as a zombie.
		_ = b.cmd.Wait()
	}
	if b.profileDir != "" {
		if err := os.RemoveAll(b.profileDir); err != nil {
			b.logger.Warn("Failed to remove profile directory", zap.String("dir", b.profileDir), zap.Error(err))
		}
	}
}

// Launcher starts browser processes according to configuration.
type Launcher struct {
	cfg    config.BrowserConfig
	netCfg config.NetworkConfig
	logger *zap.Logger

	// httpClient polls the discovery endpoint; overridable in tests.
	httpClient *http.Client
	// startProcess is swapped out by tests that cannot spawn a browser.
	startProcess func(ctx context.Context, path string, args []string) (*exec.Cmd, error)
}

// New builds a Launcher.
func New(cfg config.BrowserConfig, netCfg config.NetworkConfig, logger *zap.Logger) *Launcher {
	return &Launcher{
		cfg:    cfg,
		netCfg: netCfg,
		logger: logger.Named("launcher"),
		httpClient: &http.Client{
			Timeout: 2 * time.Second,
		},
		startProcess: func(ctx context.Context, path string, args []string) (*exec.Cmd, error) {
			cmd := exec.CommandContext(ctx, path, args...)
			if err := cmd.Start(); err != nil {
				return nil, err
			}
			return cmd, nil
		},
	}
}

// Launch starts a browser of the given kind. For each attempt it picks the
// next port, creates a fresh profile directory, starts the process and
// polls discovery; on failure everything from that attempt is destroyed
// before the next one begins, so no orphaned processes or profiles leak.
func (l *Launcher) Launch(ctx context.Context, kind schemas.BrowserKind) (*Browser, error) {
	execPath, err := l.resolveExecPath(kind)
	if err != nil {
		return nil, &LaunchError{Kind: kind, Attempts: 0, Err: err}
	}

	var lastErr error
	for attempt := 0; attempt < l.cfg.MaxLaunchAttempts; attempt++ {
		if ctx.Err() != nil {
			return nil, &LaunchError{Kind: kind, Attempts: attempt, Err: ctx.Err()}
		}
		port := l.cfg.StartPort + attempt

		browser, err := l.launchOnce(ctx, execPath, port)
		if err == nil {
			l.logger.Info("Browser started",
				zap.String("kind", string(kind)),
				zap.Int("port", port),
				zap.Int("targets", len(browser.Targets)),
			)
			return browser, nil
		}
		lastErr = err
		l.logger.Warn("Launch attempt failed",
			zap.Int("attempt", attempt+1),
			zap.Int("port", port),
			zap.Error(err),
		)
	}
	return nil, &LaunchError{Kind: kind, Attempts: l.cfg.MaxLaunchAttempts, Err: lastErr}
}

func (l *Launcher) launchOnce(ctx context.Context, execPath string, port int) (*Browser, error) {
	profileDir, err := os.MkdirTemp("", fmt.Sprintf("webpilot-profile-%d-*", port))
	if err != nil {
		return nil, fmt.Errorf("create profile dir: %w", err)
	}

	args := []string{
		fmt.Sprintf("--remote-debugging-port=%d", port),
		fmt.Sprintf("--user-data-dir=%s", profileDir),
		"--no-first-run",
		"--no-default-browser-check",
		"--remote-allow-origins=*",
		"--disable-background-networking",
		"--disable-sync",
	}
	if l.cfg.Headless {
		args = append(args, "--headless=new")
	}
	args = append(args, l.cfg.ExtraArgs...)

	cmd, err := l.startProcess(ctx, execPath, args)
	if err != nil {
		_ = os.RemoveAll(profileDir)
		return nil, fmt.Errorf("start process: %w", err)
	}

	browser := &Browser{
		Port:       port,
		cmd:        cmd,
		profileDir: profileDir,
		logger:     l.logger,
	}

	targets, err := l.discover(ctx, port)
	if err != nil {
		browser.Kill()
		return nil, err
	}
	browser.Targets = targets
	return browser, nil
}

// discover polls the /json/list endpoint until it reports at least one
// target or the discovery timeout elapses.
func (l *Launcher) discover(ctx context.Context, port int) ([]Target, error) {
	deadline := time.Now().Add(l.netCfg.DiscoveryTimeout)
	url := fmt.Sprintf("http://127.0.0.1:%d/json/list", port)

	var lastErr error
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		targets, err := l.fetchTargets(ctx, url)
		if err == nil && len(targets) > 0 {
			return targets, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("discovery returned no targets")
		}
		select {
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("discovery on port %d: %w", port, lastErr)
}

func (l *Launcher) fetchTargets(ctx context.Context, url string) ([]Target, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}
	var targets []Target
	if err := jsonAPI.NewDecoder(resp.Body).Decode(&targets); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}
	return targets, nil
}

// resolveExecPath finds the browser binary for the requested kind.
func (l *Launcher) resolveExecPath(kind schemas.BrowserKind) (string, error) {
	if l.cfg.ExecPath != "" {
		return l.cfg.ExecPath, nil
	}
	if kind != schemas.BrowserChrome {
		return "", fmt.Errorf("unsupported browser kind %q", kind)
	}

	var candidates []string
	switch runtime.GOOS {
	case "darwin":
		candidates = []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	case "windows":
		candidates = []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		}
	default:
		candidates = []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser"}
	}

	for _, cand := range candidates {
		if path, err := exec.LookPath(cand); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no %s binary found; set browser.exec_path", kind)
}
