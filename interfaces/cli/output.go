package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
	"multipost/domain/model"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

// encode writes v as json or yaml. It reports false for table output.
func encode(w io.Writer, format string, v any) (bool, error) {
	switch format {
	case outputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return true, enc.Encode(v)
	case outputYAML:
		// Round-trip through JSON so yaml keys match the json tags.
		raw, err := json.Marshal(v)
		if err != nil {
			return true, err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return true, err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return true, enc.Encode(generic)
	}
	return false, nil
}

// renderTable pads every column to its widest cell; colorize picks the style
// of each body cell.
func renderTable(headers []string, rows [][]string, colorize func(col int, cell string) lipgloss.Style) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}
	var b strings.Builder
	line := func(cells []string, style func(int, string) lipgloss.Style) {
		parts := make([]string, len(cells))
		for i, cell := range cells {
			parts[i] = style(i, cell).Width(widths[i] + 2).Render(cell)
		}
		b.WriteString(strings.TrimRight(lipgloss.JoinHorizontal(lipgloss.Top, parts...), " "))
		b.WriteByte('\n')
	}
	line(headers, func(int, string) lipgloss.Style { return headerStyle })
	for _, row := range rows {
		line(row, colorize)
	}
	return b.String()
}

func plain(int, string) lipgloss.Style { return lipgloss.NewStyle() }

func printStatus(w io.Writer, format string, statuses []model.PlatformStatus) error {
	if ok, err := encode(w, format, statuses); ok {
		return err
	}
	rows := make([][]string, 0, len(statuses))
	for _, s := range statuses {
		auth := "no"
		switch {
		case s.Authenticated:
			auth = "yes"
		case s.Invalidated:
			auth = "invalidated: " + s.InvalidReason
		}
		expires := "-"
		if s.ExpiresAt != nil {
			expires = *s.ExpiresAt
		}
		rows = append(rows, []string{
			string(s.Descriptor.ID),
			auth,
			strconv.FormatBool(s.Refreshable),
			expires,
			strings.Join(s.Descriptor.Capabilities.SupportedFormats, " "),
		})
	}
	_, err := fmt.Fprint(w, renderTable(
		[]string{"PLATFORM", "AUTHENTICATED", "REFRESHABLE", "EXPIRES", "FORMATS"},
		rows,
		func(col int, cell string) lipgloss.Style {
			if col != 1 {
				return lipgloss.NewStyle()
			}
			if cell == "yes" {
				return successStyle
			}
			return errorStyle
		}))
	return err
}

func outcomeRows(outcomes []model.PublishOutcome) [][]string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		detail := o.RemoteURL
		if detail == "" {
			detail = o.RemotePostID
		}
		if o.Status != model.OutcomeSuccess {
			detail = string(o.ErrorKind) + ": " + o.ErrorMessage
		}
		rows = append(rows, []string{o.RequestID, string(o.PlatformID), string(o.Status), strconv.Itoa(o.Attempts), detail})
	}
	return rows
}

func statusColumn(col int, cell string) lipgloss.Style {
	if col != 2 {
		return lipgloss.NewStyle()
	}
	switch model.OutcomeStatus(cell) {
	case model.OutcomeSuccess:
		return successStyle
	case model.OutcomeSkipped:
		return warnStyle
	}
	return errorStyle
}

var outcomeHeaders = []string{"REQUEST", "PLATFORM", "STATUS", "ATTEMPTS", "DETAIL"}

func printReport(w io.Writer, format string, report *model.PublishReport) error {
	body := struct {
		RequestID string                 `json:"request_id"`
		Summary   model.ReportSummary    `json:"summary"`
		Outcomes  []model.PublishOutcome `json:"outcomes"`
	}{report.RequestID, report.Summary(), report.Outcomes}
	if ok, err := encode(w, format, body); ok {
		return err
	}
	if _, err := fmt.Fprint(w, renderTable(outcomeHeaders, outcomeRows(report.Outcomes), statusColumn)); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, infoStyle.Render(fmt.Sprintf("%s: %d succeeded, %d failed, %d skipped",
		report.Summary(), report.Succeeded(), report.Failed(), report.Skipped())))
	return err
}

func printOutcomes(w io.Writer, format string, outcomes []*model.PublishOutcome) error {
	flat := make([]model.PublishOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		flat = append(flat, *o)
	}
	if ok, err := encode(w, format, flat); ok {
		return err
	}
	if len(flat) == 0 {
		_, err := fmt.Fprintln(w, warnStyle.Render("No outcomes recorded"))
		return err
	}
	_, err := fmt.Fprint(w, renderTable(outcomeHeaders, outcomeRows(flat), statusColumn))
	return err
}

func printUploadStatus(w io.Writer, format string, st *model.UploadStatus) error {
	if ok, err := encode(w, format, st); ok {
		return err
	}
	_, err := fmt.Fprint(w, renderTable(
		[]string{"PLATFORM", "REMOTE ID", "STATE", "PRIVACY", "DETAIL"},
		[][]string{{string(st.PlatformID), st.RemoteID, st.State, st.PrivacyStatus, st.Detail}},
		plain))
	return err
}
