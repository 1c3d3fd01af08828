package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// DownloadError is a transport-level failure while fetching the audio source.
type DownloadError struct {
	URL        string
	StatusCode int
	Message    string
	Err        error
}

func (e *DownloadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("download %s: status %d: %s", e.URL, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("download %s: %s", e.URL, e.Message)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// Fetcher downloads remote audio payloads to local scratch files.
type Fetcher struct {
	httpClient *http.Client
}

func New() *Fetcher {
	return &Fetcher{
		httpClient: &http.Client{
			Timeout: 30 * time.Minute, // podcast episodes can be large
		},
	}
}

// ProbeSize resolves the payload size via a HEAD request. A missing or
// unparsable Content-Length yields 0, meaning unknown.
func (f *Fetcher) ProbeSize(ctx context.Context, audioURL string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, audioURL, nil)
	if err != nil {
		return 0, &DownloadError{URL: audioURL, Message: err.Error(), Err: err}
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, &DownloadError{URL: audioURL, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, &DownloadError{URL: audioURL, StatusCode: resp.StatusCode, Message: resp.Status}
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	return resp.ContentLength, nil
}

// Download streams the payload to a uniquely named scratch file and returns
// its path. onProgress receives the download ratio as bytes arrive; it is
// never called when total is unknown (<= 0). The file is fully flushed before
// returning. The caller owns cleanup of the scratch file, including after a
// failed download.
func (f *Fetcher) Download(ctx context.Context, audioURL string, total int64, onProgress func(ratio float64)) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return "", &DownloadError{URL: audioURL, Message: err.Error(), Err: err}
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &DownloadError{URL: audioURL, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", &DownloadError{URL: audioURL, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	tmpFile, err := os.CreateTemp("", "audio_*"+scratchSuffix(audioURL))
	if err != nil {
		return "", &DownloadError{URL: audioURL, Message: err.Error(), Err: err}
	}

	var written int64
	buf := make([]byte, 64*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := tmpFile.Write(buf[:n]); writeErr != nil {
				tmpFile.Close()
				return tmpFile.Name(), &DownloadError{URL: audioURL, Message: writeErr.Error(), Err: writeErr}
			}
			written += int64(n)
			if total > 0 && onProgress != nil {
				onProgress(float64(written) / float64(total))
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			tmpFile.Close()
			return tmpFile.Name(), &DownloadError{URL: audioURL, Message: readErr.Error(), Err: readErr}
		}
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return tmpFile.Name(), &DownloadError{URL: audioURL, Message: err.Error(), Err: err}
	}
	if err := tmpFile.Close(); err != nil {
		return tmpFile.Name(), &DownloadError{URL: audioURL, Message: err.Error(), Err: err}
	}
	return tmpFile.Name(), nil
}

// scratchSuffix derives a recognizable file suffix from the source URL so
// scratch files keep the original extension (e.g. .mp3).
func scratchSuffix(audioURL string) string {
	u, err := url.Parse(audioURL)
	if err != nil {
		return ""
	}
	ext := path.Ext(u.Path)
	if len(ext) > 8 || strings.ContainsAny(ext, "*?") {
		return ""
	}
	return ext
}
