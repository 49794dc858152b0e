package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
	"tunehub/internal/domain"
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
	for i := range headers {
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
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func searchTable(response domain.SearchResponse) string {
	rows := make([][]string, 0, len(response.Results))
	for i, item := range response.Ranked() {
		hit := item.Hit
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			fmt.Sprintf("%.3f", item.Score),
			string(hit.Source),
			hit.Artist,
			hit.Album,
			hit.Title,
			hit.Format,
			optionalInt(hit.BitrateKbps),
			formatDuration(hit.DurationSec),
		})
	}
	return renderTable(
		[]string{"#", "Score", "Source", "Artist", "Album", "Title", "Format", "Kbps", "Length"},
		rows,
		[]columnAlignment{alignRight, alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func providerTable(statuses []domain.ProviderStatus) string {
	rows := make([][]string, 0, len(statuses))
	for _, status := range statuses {
		state := "ok"
		if !status.OK {
			state = "failed"
		}
		rows = append(rows, []string{status.Name, state, fmt.Sprintf("%d", status.Count), status.Error})
	}
	return renderTable([]string{"Adapter", "State", "Hits", "Error"}, rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft})
}

func jobTable(job domain.IngestJob) string {
	rows := [][]string{
		{"ID", job.ID},
		{"State", string(job.State)},
		{"Attempts", fmt.Sprintf("%d/%d", job.Attempts, job.MaxAttempts)},
		{"Title", job.Hit.Title},
		{"Source", string(job.Hit.Source)},
		{"Transcode", string(job.Transcode)},
	}
	if job.FinalPath != "" {
		rows = append(rows, []string{"Path", job.FinalPath})
	}
	if job.LastError != "" {
		rows = append(rows, []string{"Last error", job.LastError})
	}
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func optionalInt(value int) string {
	if value <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", value)
}

func formatDuration(seconds float64) string {
	if seconds <= 0 {
		return ""
	}
	total := int(seconds + 0.5)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}

// readHit decodes a hit from path, or from stdin when path is "-" or empty.
func readHit(path string, stdin io.Reader) (domain.Hit, error) {
	var reader io.Reader = stdin
	if path = strings.TrimSpace(path); path != "" && path != "-" {
		file, err := os.Open(path)
		if err != nil {
			return domain.Hit{}, fmt.Errorf("open hit file: %w", err)
		}
		defer file.Close()
		reader = file
	}
	var hit domain.Hit
	if err := json.NewDecoder(reader).Decode(&hit); err != nil {
		return domain.Hit{}, fmt.Errorf("decode hit: %w", err)
	}
	if err := hit.Validate(); err != nil {
		return domain.Hit{}, err
	}
	return hit, nil
}
