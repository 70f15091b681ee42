// Copyright 2026 The Ptagate Authors
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"
)

// newOrigin builds the origin handler for a validated configuration:
// a static file server for root mode, a reverse proxy for upstream
// mode.
func newOrigin(cfg OriginConfig, logger *slog.Logger) (http.Handler, error) {
	switch {
	case cfg.Root != "":
		info, err := os.Stat(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("origin root: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("origin root %s is not a directory", cfg.Root)
		}
		return http.FileServer(noListingFS{http.Dir(cfg.Root)}), nil

	case cfg.Upstream != "":
		upstream, err := url.Parse(cfg.Upstream)
		if err != nil {
			return nil, fmt.Errorf("invalid upstream URL: %w", err)
		}
		return newUpstreamOrigin(upstream, logger), nil
	}
	return nil, fmt.Errorf("origin: one of root or upstream is required")
}

// noListingFS wraps a filesystem so that directories without an
// index.html read as absent. The file server then responds 404
// instead of rendering a directory listing.
type noListingFS struct {
	inner http.FileSystem
}

func (fs noListingFS) Open(name string) (http.File, error) {
	file, err := fs.inner.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		index, err := fs.inner.Open(path.Join(name, "index.html"))
		if err != nil {
			file.Close()
			return nil, os.ErrNotExist
		}
		index.Close()
	}
	return file, nil
}

// upstreamOrigin reverse-proxies requests to a fixed upstream. The
// token has already been stripped from the URL by the time a request
// arrives here.
type upstreamOrigin struct {
	upstream *url.URL
	client   *http.Client
	logger   *slog.Logger
}

func newUpstreamOrigin(upstream *url.URL, logger *slog.Logger) *upstreamOrigin {
	// No client timeout: large media transfers are long-lived. The
	// server's write timeout bounds the overall exchange.
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &upstreamOrigin{upstream: upstream, client: client, logger: logger}
}

func (o *upstreamOrigin) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	upstreamURL := *o.upstream
	upstreamURL.Path = singleJoiningSlash(o.upstream.Path, r.URL.Path)
	upstreamURL.RawQuery = r.URL.RawQuery

	upstreamReq, err := http.NewRequestWithContext(r.Context(), r.Method, upstreamURL.String(), r.Body)
	if err != nil {
		o.logger.Error("failed to create upstream request", "error", err)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	for key, values := range r.Header {
		if isHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			upstreamReq.Header.Add(key, value)
		}
	}

	if clientIP, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		if prior := r.Header.Get("X-Forwarded-For"); prior != "" {
			clientIP = prior + ", " + clientIP
		}
		upstreamReq.Header.Set("X-Forwarded-For", clientIP)
	}

	resp, err := o.client.Do(upstreamReq)
	if err != nil {
		o.logger.Error("upstream request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"duration", time.Since(startTime),
		)
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	for key, values := range resp.Header {
		if isHopByHopHeader(key) {
			continue
		}
		for _, value := range values {
			w.Header().Add(key, value)
		}
	}
	w.WriteHeader(resp.StatusCode)
	bytesCopied, _ := io.Copy(w, resp.Body)

	o.logger.Debug("upstream request complete",
		"method", r.Method,
		"path", r.URL.Path,
		"status", resp.StatusCode,
		"bytes", bytesCopied,
		"duration", time.Since(startTime),
	)
}

// hopByHopHeaders lists headers that are connection-scoped and must
// not be forwarded in either direction.
var hopByHopHeaders = map[string]bool{
	"connection":          true,
	"keep-alive":          true,
	"proxy-authenticate":  true,
	"proxy-authorization": true,
	"te":                  true,
	"trailer":             true,
	"transfer-encoding":   true,
	"upgrade":             true,
}

func isHopByHopHeader(name string) bool {
	return hopByHopHeaders[strings.ToLower(name)]
}

// singleJoiningSlash joins two URL paths with a single slash.
func singleJoiningSlash(a, b string) string {
	aSlash := strings.HasSuffix(a, "/")
	bSlash := strings.HasPrefix(b, "/")
	switch {
	case aSlash && bSlash:
		return a + b[1:]
	case !aSlash && !bSlash:
		return a + "/" + b
	}
	return a + b
}
