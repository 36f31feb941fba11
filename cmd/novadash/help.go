package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#60a5fa")).
			Bold(true)
	cmdStyle  = lipgloss.NewStyle().Bold(true)
	descStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

var commands = []struct{ cmd, desc string }{
	{"novadash", "Open the live dashboard (interactive TUI)"},
	{"novadash logs", "Print notification logs (-status, -channel, -q, -limit, -json)"},
	{"novadash metrics", "Print dashboard metrics (-json)"},
	{"novadash watch", "Stream metric updates until interrupted"},
	{"novadash send", "Queue a notification (-channel, -template, -to, -var k=v)"},
	{"novadash login <token>", "Save an API token"},
	{"novadash logout", "Remove the saved token"},
	{"novadash version", "Show version"},
	{"novadash help", "You are here"},
}

func printHelp(w io.Writer) {
	fmt.Fprintf(w, "\n  %s\n\n  Commands:\n", titleStyle.Render("N O V A D A S H"))
	for _, c := range commands {
		fmt.Fprintf(w, "    %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-24s", c.cmd)), descStyle.Render(c.desc))
	}
	fmt.Fprintf(w, "\n  %s\n\n", descStyle.Render("Config: ~/.novadash/config.yaml or NOVADASH_* environment variables"))
}

func printLoginHint(w io.Writer) {
	hint := descStyle.Render("Run: novadash login <token>   or set NOVADASH_TOKEN")
	fmt.Fprintf(w, "\n%s\n\n%s\n\n", titleStyle.Render("Not signed in."), hint)
}
