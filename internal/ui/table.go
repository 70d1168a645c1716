package ui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/BioHazard786/huddle/internal/relay"
)

// PeerRow is one line of the /peers table.
type PeerRow struct {
	SocketID string
	Device   string
	State    string
}

// PeerTableView renders peers using lipgloss/table.
func PeerTableView(rows []PeerRow) string {
	if len(rows) == 0 {
		return MutedStyle.Render("No video peers")
	}

	var data [][]string
	for i, r := range rows {
		data = append(data, []string{strconv.Itoa(i + 1), truncate(r.SocketID, 12), r.Device, r.State})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Socket", "Device", "State").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// StatsView renders a relay snapshot with go-pretty.
func StatsView(server string, s relay.Stats) string {
	t := prettytable.NewWriter()
	t.SetTitle("%s Relay %s", IconStats, server)
	t.AppendHeader(prettytable.Row{"Metric", "Value"})
	t.AppendRows([]prettytable.Row{
		{"Connections", s.Connections},
		{"Identities", s.Identities},
		{"Rooms", s.Rooms},
		{"Messages", s.Messages},
		{"Events", s.Events},
		{"Failures", s.Failures},
		{"Duplicates", s.Duplicates},
	})
	t.SetStyle(prettytable.StyleRounded)
	t.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	t.SetColumnConfigs([]prettytable.ColumnConfig{
		{Number: 2, Align: text.AlignRight},
	})
	return t.Render()
}

// RoomInfo is the banner printed once the client has joined.
type RoomInfo struct {
	UserID string
	RoomID string
	Server string
}

func (r RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Joined!\n\n%s Room:    %s\n%s User:    %s\n%s Relay:   %s",
		IconSuccess,
		IconRoom, TitleStyle.Render(r.RoomID),
		IconPeer, BoldStyle.Render(r.UserID),
		IconConnect, MutedStyle.Render(r.Server),
	)

	return boxStyle.Render(content)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
