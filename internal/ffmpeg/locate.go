package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"
)

// ErrFFmpegUnavailable is returned when ffmpeg or ffprobe cannot be located
// or installed.
var ErrFFmpegUnavailable = errors.New("ffmpeg not available")

// Source records where the binaries were found.
type Source string

const (
	SourceEnv      Source = "env"
	SourcePath     Source = "path"
	SourceCache    Source = "cache"
	SourceDownload Source = "download"
)

type BinaryPaths struct {
	FFmpeg  string
	FFprobe string
	Source  Source
}

func (p BinaryPaths) usable() bool {
	return isBinary(p.FFmpeg) && isBinary(p.FFprobe)
}

// Status describes ffmpeg availability for health reporting.
type Status struct {
	Available bool   `json:"available"`
	FFmpeg    string `json:"ffmpeg,omitempty"`
	FFprobe   string `json:"ffprobe,omitempty"`
	Source    Source `json:"source,omitempty"`
	Version   string `json:"version,omitempty"`
	Error     string `json:"error,omitempty"`
}

// envVar names the override for one tool, e.g. AUTOSUB_FFPROBE_PATH.
func envVar(tool string) string {
	return "AUTOSUB_" + strings.ToUpper(tool) + "_PATH"
}

// locator resolves binaries; the function fields are swapped in tests.
type locator struct {
	getenv   func(string) string
	lookPath func(string) (string, error)
	cacheDir func() (string, error)
	download func(bundle, dir string) error
}

func defaultLocator() *locator {
	return &locator{
		getenv:   os.Getenv,
		lookPath: exec.LookPath,
		cacheDir: os.UserCacheDir,
		download: fetchBundle,
	}
}

var (
	ensureOnce  sync.Once
	ensuredErr  error
	ensuredPath BinaryPaths
)

// Ensure locates ffmpeg and ffprobe, installing the prebuilt bundle into the
// user cache when neither the environment nor $PATH has them. The outcome is
// kept for the life of the process.
func Ensure() (BinaryPaths, error) {
	ensureOnce.Do(func() {
		ensuredPath, ensuredErr = defaultLocator().ensure()
	})
	return ensuredPath, ensuredErr
}

func FFmpegPath() (string, error) {
	paths, err := Ensure()
	return paths.FFmpeg, err
}

func FFprobePath() (string, error) {
	paths, err := Ensure()
	return paths.FFprobe, err
}

// Probe reports whether ffmpeg is usable without triggering a download.
func Probe(ctx context.Context) Status {
	return defaultLocator().probe(ctx)
}

func (l *locator) probe(ctx context.Context) Status {
	paths, ok := l.local()
	if !ok {
		return Status{Error: ErrFFmpegUnavailable.Error()}
	}

	status := Status{FFmpeg: paths.FFmpeg, FFprobe: paths.FFprobe, Source: paths.Source}
	version, err := Version(ctx, paths.FFmpeg)
	if err != nil {
		status.Error = err.Error()
		return status
	}
	status.Available = true
	status.Version = version
	return status
}

// Version runs "ffmpeg -version" and returns its first line.
func Version(ctx context.Context, binary string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, binary, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("failed to run %s -version: %w", binary, err)
	}
	first, _, _ := strings.Cut(string(out), "\n")
	if first = strings.TrimSpace(first); first == "" {
		return "", fmt.Errorf("empty version output from %s", binary)
	}
	return first, nil
}

// local resolves each tool from its env override, then $PATH, and falls back
// to a previously installed bundle. It never touches the network.
func (l *locator) local() (BinaryPaths, bool) {
	var found [2]string
	allEnv := true
	for i, tool := range []string{"ffmpeg", "ffprobe"} {
		if p := l.getenv(envVar(tool)); p != "" {
			found[i] = p
			continue
		}
		allEnv = false
		if p, err := l.lookPath(tool); err == nil {
			found[i] = p
		}
	}

	if found[0] != "" && found[1] != "" {
		source := SourcePath
		if allEnv {
			source = SourceEnv
		}
		return BinaryPaths{FFmpeg: found[0], FFprobe: found[1], Source: source}, true
	}

	if cached := l.installed(SourceCache); cached.usable() {
		return cached, true
	}
	return BinaryPaths{}, false
}

func (l *locator) ensure() (BinaryPaths, error) {
	if paths, ok := l.local(); ok {
		return paths, nil
	}

	bundle, err := bundleName(runtime.GOOS, runtime.GOARCH)
	if err != nil {
		return BinaryPaths{}, fmt.Errorf("%w: %v", ErrFFmpegUnavailable, err)
	}

	dir := l.installDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return BinaryPaths{}, fmt.Errorf("failed to create ffmpeg cache dir: %w", err)
	}
	if err := l.download(bundle, dir); err != nil {
		return BinaryPaths{}, fmt.Errorf("%w: %v", ErrFFmpegUnavailable, err)
	}

	paths := l.installed(SourceDownload)
	if !paths.usable() {
		return BinaryPaths{}, fmt.Errorf("%w: %s did not contain both binaries", ErrFFmpegUnavailable, bundle)
	}
	return paths, nil
}

func (l *locator) installDir() string {
	base, err := l.cacheDir()
	if err != nil || base == "" {
		base = os.TempDir()
	}
	return filepath.Join(base, "autosub", "ffmpeg", bundleVersion, runtime.GOOS+"-"+runtime.GOARCH)
}

func (l *locator) installed(source Source) BinaryPaths {
	dir := l.installDir()
	return BinaryPaths{
		FFmpeg:  binaryPath(dir, "ffmpeg"),
		FFprobe: binaryPath(dir, "ffprobe"),
		Source:  source,
	}
}

func binaryPath(dir, tool string) string {
	if runtime.GOOS == "windows" {
		tool += ".exe"
	}
	return filepath.Join(dir, tool)
}

func isBinary(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}
