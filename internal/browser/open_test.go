package browser

import (
	"context"
	"testing"
)

func TestLogURL(t *testing.T) {
	tests := []struct {
		web, id, want string
	}{
		{"http://localhost:3000", "abc", "http://localhost:3000/logs?id=abc"},
		{"https://app.example.com/", "a b&c", "https://app.example.com/logs?id=a+b%26c"},
	}
	for _, tt := range tests {
		if got := LogURL(tt.web, tt.id); got != tt.want {
			t.Errorf("LogURL(%q, %q) = %q, want %q", tt.web, tt.id, got, tt.want)
		}
	}
}

func TestOpenRejectsNonHTTP(t *testing.T) {
	for _, raw := range []string{"file:///etc/passwd", "javascript:alert(1)", "http://", "::"} {
		if err := Open(context.Background(), raw); err == nil {
			t.Errorf("Open(%q) = nil, want error", raw)
		}
	}
}

func TestCommand(t *testing.T) {
	tests := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{"darwin", "open", false},
		{"linux", "xdg-open", false},
		{"windows", "rundll32", false},
		{"plan9", "", true},
	}
	for _, tt := range tests {
		cmd, err := command(context.Background(), tt.goos, "https://example.com")
		if (err != nil) != tt.wantErr {
			t.Errorf("command(%q) error = %v, wantErr %v", tt.goos, err, tt.wantErr)
			continue
		}
		if err == nil && cmd.Args[0] != tt.want {
			t.Errorf("command(%q) = %q, want %q", tt.goos, cmd.Args[0], tt.want)
		}
	}
}
