package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SessionStrategy defines how session ids are detected. A session id is a
// scoping key distinct from namespace (§9 open question (a)): namespace is
// the tenant boundary every store/search call is scoped to, while session id
// is an informational grouping. The ingest path does not call the detector
// and does not default chatId from it.
type SessionStrategy string

const (
	SessionStrategyGitDirectory SessionStrategy = "git-directory"
	SessionStrategyManual       SessionStrategy = "manual"
	SessionStrategyHash         SessionStrategy = "hash"
)

// SessionDetector derives a session id from the caller's working directory.
type SessionDetector struct {
	Strategy SessionStrategy
	ManualID string
	Prefix   string // default "session-"

	cacheDir string
	cacheID  string
}

// NewSessionDetector creates a new session detector.
func NewSessionDetector(strategy SessionStrategy) *SessionDetector {
	return &SessionDetector{Strategy: strategy, Prefix: "session-"}
}

// DetectSessionID returns the session id for the configured strategy.
func (d *SessionDetector) DetectSessionID() string {
	switch d.Strategy {
	case SessionStrategyManual:
		if d.ManualID != "" {
			return d.ManualID
		}
		return d.detectGitDirectory()
	case SessionStrategyHash:
		return d.detectGitHash()
	case SessionStrategyGitDirectory:
		fallthrough
	default:
		return d.detectGitDirectory()
	}
}

// detectGitDirectory derives a session id from the enclosing git root's
// directory name, falling back to the current working directory name.
func (d *SessionDetector) detectGitDirectory() string {
	cwd, _ := os.Getwd()
	if d.cacheDir == cwd && d.cacheID != "" {
		return d.cacheID
	}

	gitRoot := findGitRoot(cwd)
	dirName := filepath.Base(cwd)
	if gitRoot != "" {
		dirName = filepath.Base(gitRoot)
	}
	d.cacheDir = cwd
	d.cacheID = d.Prefix + sanitizeDirectoryName(dirName)
	return d.cacheID
}

// detectGitHash derives a session id from a hash of the git remote URL.
func (d *SessionDetector) detectGitHash() string {
	cwd, _ := os.Getwd()
	gitRoot := findGitRoot(cwd)
	if gitRoot == "" {
		return d.detectGitDirectory()
	}

	cmd := exec.Command("git", "-C", gitRoot, "config", "--get", "remote.origin.url")
	output, err := cmd.Output()
	if err != nil {
		return d.detectGitDirectory()
	}

	remoteURL := strings.TrimSpace(string(output))
	if remoteURL == "" {
		return d.detectGitDirectory()
	}

	hash := sha256.Sum256([]byte(remoteURL))
	shortHash := hex.EncodeToString(hash[:8])
	return d.Prefix + shortHash
}

func findGitRoot(startDir string) string {
	dir := startDir
	for {
		gitPath := filepath.Join(dir, ".git")
		if info, err := os.Stat(gitPath); err == nil {
			_ = info
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func sanitizeDirectoryName(name string) string {
	var result strings.Builder
	for _, r := range name {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_':
			result.WriteRune(r)
		case r == ' ' || r == '.':
			result.WriteRune('-')
		}
	}
	return strings.ToLower(result.String())
}
