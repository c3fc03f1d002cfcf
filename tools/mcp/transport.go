package mcp

import (
	"context"
	"net/url"
	"os"
	"os/exec"
	"strings"

	"github.com/m4xw311/retainer/errors"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	stdioPrefix = "stdio://"
	ssePrefix   = "sse://"
)

// transportBuilder is swapped in tests to connect to an in-memory server.
var transportBuilder = buildTransport

// buildTransport picks a transport from a server address:
//
//	http://host/mcp, https://...   streamable HTTP
//	http+sse://..., sse://host/... server-sent events
//	stdio://cmd args, cmd args     subprocess over stdio
func buildTransport(ctx context.Context, addr string) (mcpsdk.Transport, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("server address is empty")
	}
	lowered := strings.ToLower(addr)

	switch {
	case strings.HasPrefix(lowered, stdioPrefix):
		return buildCommandTransport(ctx, addr[len(stdioPrefix):])
	case strings.HasPrefix(lowered, ssePrefix):
		target := strings.TrimSpace(addr[len(ssePrefix):])
		if !strings.Contains(target, "://") {
			target = "https://" + target
		}
		endpoint, err := normalizeHTTPURL(target)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid SSE endpoint")
		}
		return &mcpsdk.SSEClientTransport{Endpoint: endpoint}, nil
	case strings.HasPrefix(lowered, "http+sse://"), strings.HasPrefix(lowered, "https+sse://"):
		endpoint, err := normalizeHTTPURL(strings.Replace(addr, "+sse", "", 1))
		if err != nil {
			return nil, errors.Wrapf(err, "invalid SSE endpoint")
		}
		return &mcpsdk.SSEClientTransport{Endpoint: endpoint}, nil
	case strings.HasPrefix(lowered, "http://"), strings.HasPrefix(lowered, "https://"):
		endpoint, err := normalizeHTTPURL(addr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid HTTP endpoint")
		}
		return &mcpsdk.StreamableClientTransport{Endpoint: endpoint}, nil
	}
	return buildCommandTransport(ctx, addr)
}

func buildCommandTransport(ctx context.Context, cmdSpec string) (mcpsdk.Transport, error) {
	parts := strings.Fields(cmdSpec)
	if len(parts) == 0 {
		return nil, errors.New("stdio command is empty")
	}
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stderr = os.Stderr
	return &mcpsdk.CommandTransport{Command: cmd}, nil
}

func normalizeHTTPURL(raw string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", errors.New("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", errors.New("missing host")
	}
	parsed.Scheme = scheme
	return parsed.String(), nil
}
