package browser

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

// command returns the platform opener for rawURL.
func command(ctx context.Context, goos, rawURL string) (*exec.Cmd, error) {
	switch goos {
	case "darwin":
		return exec.CommandContext(ctx, "open", rawURL), nil
	case "linux", "freebsd", "openbsd":
		return exec.CommandContext(ctx, "xdg-open", rawURL), nil
	case "windows":
		return exec.CommandContext(ctx, "rundll32", "url.dll,FileProtocolHandler", rawURL), nil
	default:
		return nil, fmt.Errorf("unsupported OS: %s", goos)
	}
}

// Open opens rawURL in the user's default browser. Only http(s) URLs are
// accepted.
func Open(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("browser: refusing to open %q", rawURL)
	}
	cmd, err := command(ctx, runtime.GOOS, u.String())
	if err != nil {
		return err
	}
	return cmd.Start()
}

// LogURL links to one notification log record on the web dashboard.
func LogURL(webURL, id string) string {
	return strings.TrimRight(webURL, "/") + "/logs?id=" + url.QueryEscape(id)
}
