package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"armp/internal/dashboard"
	"armp/internal/models"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)

	variantStyles = map[string]lipgloss.Style{
		dashboard.VariantDefault:     lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		dashboard.VariantSecondary:   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		dashboard.VariantSuccess:     lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		dashboard.VariantWarning:     lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		dashboard.VariantDestructive: lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
	}
)

const maxReasonWidth = 48

// emit writes v as JSON or YAML, or calls table for the default format.
func (a *app) emit(v any, table func(w io.Writer)) error {
	switch a.output {
	case "json":
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(a.stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		table(a.stdout)
		return nil
	}
}

func badge(label, variant string) string {
	style, ok := variantStyles[variant]
	if !ok {
		return label
	}
	return style.Render(label)
}

// writeTable pads columns by rendered width so styled cells stay aligned.
func writeTable(w io.Writer, header []string, rows [][]string) {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	line := func(cells []string, style *lipgloss.Style) {
		var b strings.Builder
		for i, cell := range cells {
			if style != nil {
				cell = style.Render(cell)
			}
			b.WriteString(cell)
			if i < len(cells)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-lipgloss.Width(cell)+2))
			}
		}
		fmt.Fprintln(w, b.String())
	}

	line(header, &headerStyle)
	for _, row := range rows {
		line(row, nil)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// requestTable renders requests; withRequester adds the requester column
// used by approvers.
func requestTable(w io.Writer, requests []models.AccessRequest, withRequester bool, empty string) {
	if len(requests) == 0 {
		fmt.Fprintln(w, mutedStyle.Render(empty))
		return
	}

	header := []string{"ID", "ACCESS TYPE", "URGENCY", "STATUS", "SUBMITTED", "REASON"}
	if withRequester {
		header = append([]string{"ID", "REQUESTER"}, header[1:]...)
	}

	rows := make([][]string, 0, len(requests))
	for _, r := range requests {
		status := dashboard.StatusBadge(r.Status)
		reason := truncate(r.Reason, maxReasonWidth)
		if text := r.RejectionText(); text != "" {
			reason += " " + errorStyle.Render("(rejected: "+truncate(text, maxReasonWidth)+")")
		}
		row := []string{
			r.ID,
			r.AccessType,
			badge(string(r.Urgency), dashboard.UrgencyVariant(r.Urgency)),
			badge(status.Label, status.Variant),
			dashboard.FormatTimestamp(r.CreatedAt),
			reason,
		}
		if withRequester {
			row = append([]string{r.ID, r.Requester.DisplayName()}, row[1:]...)
		}
		rows = append(rows, row)
	}
	writeTable(w, header, rows)
}

func statsTable(w io.Writer, s models.DashboardStats) {
	writeTable(w,
		[]string{"TOTAL", "PENDING", "APPROVED", "REJECTED"},
		[][]string{{
			fmt.Sprint(s.Total),
			badge(fmt.Sprint(s.Pending), dashboard.VariantWarning),
			badge(fmt.Sprint(s.Approved), dashboard.VariantSuccess),
			badge(fmt.Sprint(s.Rejected), dashboard.VariantDestructive),
		}},
	)
}

func userTable(w io.Writer, u models.User) {
	writeTable(w,
		[]string{"NAME", "EMAIL", "ROLE"},
		[][]string{{u.Name, u.Email, string(u.Role)}},
	)
}
