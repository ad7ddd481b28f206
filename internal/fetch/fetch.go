// Package fetch opens dataset sources for the loader;
// a source is a local file path, "-" for standard input, or an http(s) URL.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/vssut-vibes/hatefilter/internal/moderr"
)

// Size limits for a single dataset source
const (
	MaxFileSizeBytes = 200 * 1024 * 1024 // 200MB limit for files and stdin
	MaxHTTPSizeBytes = 200 * 1024 * 1024
)

// HTTPRequestTimeout bounds a whole dataset download
const HTTPRequestTimeout = 2 * time.Minute

var (
	HTTPDialTimeout           = 10 * time.Second
	HTTPTLSTimeout            = 10 * time.Second
	HTTPResponseHeaderTimeout = 30 * time.Second
)

// limitedReadCloser wraps an io.ReadCloser to enforce size limits
type limitedReadCloser struct {
	io.ReadCloser
	N      int64  // max bytes remaining
	source string // for error messages
}

func (l *limitedReadCloser) Read(p []byte) (n int, err error) {
	if l.N <= 0 {
		return 0, fmt.Errorf("dataset %q exceeds size limit: %w", l.source, moderr.ErrLoad)
	}
	if int64(len(p)) > l.N {
		p = p[0:l.N]
	}
	n, err = l.ReadCloser.Read(p)
	l.N -= int64(n)
	return
}

// stdinCloser keeps Close from closing the process's stdin
type stdinCloser struct{ io.Reader }

func (stdinCloser) Close() error { return nil }

var httpClient = &http.Client{
	Timeout: HTTPRequestTimeout,
	Transport: &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: HTTPDialTimeout,
		}).DialContext,
		TLSHandshakeTimeout:   HTTPTLSTimeout,
		ResponseHeaderTimeout: HTTPResponseHeaderTimeout,
	},
}

// IsURL reports whether source is fetched over HTTP.
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// GetContent opens a dataset source and returns its raw bytes as a stream.
//
// A local file or URL that does not exist yields an error wrapping moderr.ErrNotFound;
// every other failure wraps moderr.ErrLoad.
func GetContent(ctx context.Context, source string) (io.ReadCloser, error) {
	switch {
	case source == "-":
		return &limitedReadCloser{
			ReadCloser: stdinCloser{os.Stdin},
			N:          MaxFileSizeBytes,
			source:     "stdin",
		}, nil
	case IsURL(source):
		return fetchURL(ctx, source)
	default:
		return fetchFile(source)
	}
}

func fetchURL(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for URL %q: %w: %w", url, moderr.ErrLoad, err)
	}
	req.Header.Set("User-Agent", "hatefilter/1.0")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch URL %q: %w: %w", url, moderr.ErrLoad, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		resp.Body.Close()
		return nil, fmt.Errorf("dataset URL %q: %w", url, moderr.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		resp.Body.Close()
		return nil, fmt.Errorf("HTTP request failed for URL %q: status %d: %w", url, resp.StatusCode, moderr.ErrLoad)
	}

	if contentLength := resp.Header.Get("Content-Length"); contentLength != "" {
		if size, err := strconv.ParseInt(contentLength, 10, 64); err == nil && size > MaxHTTPSizeBytes {
			resp.Body.Close()
			return nil, fmt.Errorf("dataset URL %q too large (%d bytes > %d bytes limit): %w",
				url, size, MaxHTTPSizeBytes, moderr.ErrLoad)
		}
	}

	return &limitedReadCloser{
		ReadCloser: resp.Body,
		N:          MaxHTTPSizeBytes,
		source:     url,
	}, nil
}

func fetchFile(path string) (io.ReadCloser, error) {
	fileInfo, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file %q does not exist: %w", path, moderr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to access file %q: %w: %w", path, moderr.ErrLoad, err)
	}
	if fileInfo.IsDir() {
		return nil, fmt.Errorf("%q is a directory: %w", path, moderr.ErrLoad)
	}
	if fileInfo.Size() > MaxFileSizeBytes {
		return nil, fmt.Errorf("file %q is too large (%d bytes > %d bytes limit): %w",
			path, fileInfo.Size(), MaxFileSizeBytes, moderr.ErrLoad)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file %q: %w: %w", path, moderr.ErrLoad, err)
	}

	return file, nil
}
