package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jaakkos/cowork/internal/dashboard"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	badStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func statusStyle(status string) lipgloss.Style {
	switch status {
	case "working", "assigned":
		return okStyle
	case "waiting", "pending":
		return warnStyle
	case "disconnected":
		return badStyle
	}
	return dimStyle
}

// renderState formats a state snapshot for the terminal.
func renderState(snap dashboard.StateSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", headerStyle.Render("cowork"), dimStyle.Render(fmt.Sprintf("v%d  %s", snap.Version, snap.Workspace)))
	if snap.Target != nil {
		fmt.Fprintf(&b, "Target: %s %s\n", snap.Target.Description, dimStyle.Render("("+snap.Target.Age+")"))
	}

	b.WriteString("\n" + headerStyle.Render(fmt.Sprintf("Agents (%d)", len(snap.Agents))) + "\n")
	for _, a := range snap.Agents {
		line := fmt.Sprintf("  %-20s %-9s %s", a.Name, a.Role, statusStyle(a.Status).Render(a.Status))
		if a.CurrentTask != "" {
			line += "  " + a.CurrentTask
		}
		if !a.Connected {
			line += dimStyle.Render("  (no session)")
		}
		b.WriteString(line + "\n")
	}

	b.WriteString("\n" + headerStyle.Render(fmt.Sprintf("Locks (%d)", len(snap.Locks))) + "\n")
	for _, l := range snap.Locks {
		fmt.Fprintf(&b, "  %-30s %s %s\n", l.Path, l.LockedBy, dimStyle.Render("expires "+l.Expires))
	}

	b.WriteString("\n" + headerStyle.Render(fmt.Sprintf("Work (%d)", len(snap.Work))) + "\n")
	for _, w := range snap.Work {
		line := fmt.Sprintf("  %-9s %s %s", w.ForRole, statusStyle(w.Status).Render(fmt.Sprintf("%-9s", w.Status)), w.Description)
		if w.DependsOn != "" && w.Status == "pending" {
			line += dimStyle.Render("  after " + w.DependsOn)
		}
		b.WriteString(line + "\n")
	}

	if len(snap.Docs) > 0 {
		b.WriteString("\n" + headerStyle.Render(fmt.Sprintf("Documents (%d)", len(snap.Docs))) + "\n")
		for _, d := range snap.Docs {
			fmt.Fprintf(&b, "  %-30s %d editor(s), %d update(s)\n", d.Path, len(d.Editors), d.UpdateCount)
		}
	}

	if len(snap.Intents) > 0 {
		b.WriteString("\n" + headerStyle.Render("Recent intents") + "\n")
		for _, in := range snap.Intents {
			fmt.Fprintf(&b, "  %s %-10s %s\n", dimStyle.Render(fmt.Sprintf("%-8s", in.Age)), in.Action, in.Description)
		}
	}
	return b.String()
}
