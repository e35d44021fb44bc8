package ffmpeg

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

const (
	bundleVersion = "6.1"
	bundleBaseURL = "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download"
)

// ffbinaries platform suffixes by GOOS/GOARCH
var bundlePlatforms = map[string]string{
	"linux/amd64":   "linux-64",
	"linux/arm64":   "linux-arm-64",
	"darwin/amd64":  "macos-64",
	"windows/amd64": "win-64",
}

var bundleClient = &http.Client{Timeout: 5 * time.Minute}

func bundleName(goos, goarch string) (string, error) {
	platform, ok := bundlePlatforms[goos+"/"+goarch]
	if !ok {
		return "", fmt.Errorf("no prebuilt ffmpeg for %s/%s", goos, goarch)
	}
	return "ffmpeg-" + bundleVersion + "-" + platform + ".zip", nil
}

// fetchBundle downloads one release archive and unpacks its binaries into dir.
func fetchBundle(bundle, dir string) error {
	url := fmt.Sprintf("%s/v%s/%s", bundleBaseURL, bundleVersion, bundle)
	resp, err := bundleClient.Get(url)
	if err != nil {
		return fmt.Errorf("failed to download %s: %w", bundle, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to download %s: %s", bundle, resp.Status)
	}

	// zip needs random access, so the body is spooled to disk first
	spool, err := os.CreateTemp("", "autosub-ffmpeg-*.zip")
	if err != nil {
		return fmt.Errorf("failed to create temp archive: %w", err)
	}
	defer os.Remove(spool.Name())

	_, copyErr := io.Copy(spool, resp.Body)
	if err := spool.Close(); copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return fmt.Errorf("failed to save %s: %w", bundle, copyErr)
	}

	return unpack(spool.Name(), dir)
}

// unpack copies the ffmpeg and ffprobe entries of an archive into dir,
// ignoring directory prefixes and every other entry.
func unpack(archivePath, dir string) error {
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open ffmpeg archive: %w", err)
	}
	defer zr.Close()

	found := map[string]bool{"ffmpeg": false, "ffprobe": false}
	for _, entry := range zr.File {
		tool := toolName(entry.Name)
		if _, wanted := found[tool]; !wanted || entry.FileInfo().IsDir() {
			continue
		}
		if err := writeEntry(entry, binaryPath(dir, tool)); err != nil {
			return err
		}
		found[tool] = true
	}

	for tool, ok := range found {
		if !ok {
			return fmt.Errorf("ffmpeg archive has no %s binary", tool)
		}
	}
	return nil
}

// toolName maps "bin/FFmpeg.exe" to "ffmpeg". Zip entries always use '/'.
func toolName(entry string) string {
	return strings.TrimSuffix(strings.ToLower(path.Base(entry)), ".exe")
}

// writeEntry installs one archive entry as an executable, going through a
// temp file so a half-written binary is never picked up from the cache.
func writeEntry(entry *zip.File, dest string) error {
	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", entry.Name, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dest), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".partial-*")
	if err != nil {
		return fmt.Errorf("failed to create temp binary: %w", err)
	}
	defer os.Remove(tmp.Name())

	_, copyErr := io.Copy(tmp, src)
	if err := tmp.Close(); copyErr == nil {
		copyErr = err
	}
	if copyErr != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(dest), copyErr)
	}
	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", filepath.Base(dest), err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("failed to install %s: %w", filepath.Base(dest), err)
	}
	return nil
}
