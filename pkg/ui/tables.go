package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"pageharvest/pkg/harvester"
	"pageharvest/pkg/journal"
	"pageharvest/pkg/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// SummaryTable renders the run counters
func SummaryTable(s harvester.Summary) string {
	status := "completed"
	switch {
	case s.Cancelled:
		status = "cancelled"
	case s.Aborted:
		status = "aborted"
	}
	rows := [][]string{
		{"Run", s.RunID},
		{"Status", status},
		{"Planned", strconv.Itoa(s.Planned)},
		{"Attempted", strconv.Itoa(s.Attempted)},
		{"Succeeded", strconv.Itoa(s.Succeeded)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Remaining", strconv.Itoa(s.Remaining)},
		{"Duration", FormatDuration(s.Duration())},
	}
	return renderTable([]string{"Field", "Value"}, rows, []columnAlignment{alignLeft, alignRight})
}

// FailuresTable renders per-item failures, or "" when there are none
func FailuresTable(failures []models.Failure) string {
	if len(failures) == 0 {
		return ""
	}
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		rows = append(rows, []string{f.ItemID, f.ErrorType, f.Reason})
	}
	return renderTable([]string{"Item", "Type", "Reason"}, rows, nil)
}

// PlanTable renders pending items with their target URL
func PlanTable(plan []models.WorkItem, urlFor func(string) string) string {
	rows := make([][]string, 0, len(plan))
	for i, item := range plan {
		rows = append(rows, []string{strconv.Itoa(i + 1), item.ID, urlFor(item.ID)})
	}
	return renderTable([]string{"#", "Item", "URL"}, rows, []columnAlignment{alignRight})
}

// HistoryTable renders journal runs, newest first
func HistoryTable(runs []journal.Run) string {
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		status := "running"
		duration := "-"
		switch {
		case !r.Finished():
		case r.Cancelled:
			status = "cancelled"
		case r.Aborted:
			status = "aborted"
		default:
			status = "completed"
		}
		if r.Finished() {
			duration = FormatDuration(r.EndedAt.Sub(r.StartedAt))
		}
		rows = append(rows, []string{
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			shortID(r.RunID),
			status,
			strconv.Itoa(r.Planned),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Failed),
			strconv.Itoa(r.Remaining),
			duration,
		})
	}
	return renderTable(
		[]string{"Started", "Run", "Status", "Planned", "OK", "Failed", "Left", "Duration"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
	)
}

// ItemsTable renders the recorded outcomes of one run
func ItemsTable(items []models.ItemOutcome) string {
	rows := make([][]string, 0, len(items))
	for _, o := range items {
		detail := FormatBytes(int64(o.Bytes))
		if o.State != models.StateSucceeded {
			detail = o.ErrorType
		}
		rows = append(rows, []string{
			o.At.Local().Format("15:04:05"),
			o.ItemID,
			string(o.State),
			detail,
			o.Duration.Round(time.Millisecond).String(),
		})
	}
	return renderTable(
		[]string{"At", "Item", "State", "Detail", "Took"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight},
	)
}

// FormatDuration formats a duration in a human-readable way
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
