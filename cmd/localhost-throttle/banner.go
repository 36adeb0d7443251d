package main

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"hop.computer/throttle/config"
)

// gruvbox
var fg = lipgloss.AdaptiveColor{
	Light: "#3c3836",
	Dark:  "#ebdbb2",
}
var green = lipgloss.Color("#98971a")
var blue = lipgloss.Color("#458588")
var orange = lipgloss.Color("#d65d0e")

var titleStyle = lipgloss.NewStyle().
	Foreground(orange).
	Bold(true).
	MarginTop(1)

var labelStyle = lipgloss.NewStyle().
	Foreground(fg).
	PaddingLeft(2).
	Width(14)

var valueStyle = lipgloss.NewStyle().
	Foreground(blue)

var hintStyle = lipgloss.NewStyle().
	Foreground(green).
	Italic(true).
	MarginBottom(1)

func row(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), valueStyle.Render(value))
}

// printBanner describes the running throttle. styled is false when out is not
// a terminal.
func printBanner(out io.Writer, c *config.Config, styled bool) {
	rows := [][2]string{
		{"clients", c.NewServer.String()},
		{"server", c.Server.String()},
		{"protocols", c.Protocols.String()},
		{"bandwidth", c.Bandwidth.String()},
	}
	if !c.StatusAddress.IsZero() {
		rows = append(rows, [2]string{"status", "http://" + c.StatusAddress.String() + "/status"})
	}

	if !styled {
		fmt.Fprintln(out, "localhost-throttle")
		for _, r := range rows {
			fmt.Fprintf(out, "  %-12s %s\n", r[0], r[1])
		}
		return
	}
	lines := []string{titleStyle.Render("localhost-throttle")}
	for _, r := range rows {
		lines = append(lines, row(r[0], r[1]))
	}
	lines = append(lines, hintStyle.Render("press ctrl-c to stop"))
	fmt.Fprintln(out, lipgloss.JoinVertical(lipgloss.Left, lines...))
}
