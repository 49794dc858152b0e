package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"tunehub/internal/domain"
)

type searchFlags struct {
	artist     string
	album      string
	track      string
	year       int
	strict     bool
	formats    []string
	minBitrate int
	limit      int
	providers  []string
}

func (f searchFlags) query() (domain.Query, error) {
	query := domain.Query{
		Artist:         f.artist,
		Album:          f.album,
		Track:          f.track,
		Year:           f.year,
		Strict:         f.strict,
		MinBitrateKbps: f.minBitrate,
		Limit:          f.limit,
	}
	for _, raw := range f.formats {
		for _, part := range strings.Split(raw, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			format, ok := domain.ParseFormat(part)
			if !ok {
				return domain.Query{}, fmt.Errorf("unknown format %q (want FLAC, MP3, AAC or WAV)", part)
			}
			query.PreferredFormats = append(query.PreferredFormats, format)
		}
	}
	if len(query.Terms()) == 0 {
		return domain.Query{}, fmt.Errorf("at least one of --artist, --album or --track is required")
	}
	return query.Normalized(), nil
}

func newSearchCommand(ctx *commandContext, jsonOutput *bool) *cobra.Command {
	var flags searchFlags

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search every adapter and print ranked results",
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := flags.query()
			if err != nil {
				return err
			}
			rt, _, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer ctx.close()

			response, err := rt.Search.Search(cmd.Context(), query, flags.providers)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return writeJSON(cmd, response)
			}
			out := cmd.OutOrStdout()
			if len(response.Results) == 0 {
				fmt.Fprintln(out, "No results")
			} else {
				fmt.Fprintln(out, searchTable(response))
			}
			fmt.Fprintln(out, providerTable(response.Providers))
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.artist, "artist", "", "Artist name")
	cmd.Flags().StringVar(&flags.album, "album", "", "Album title")
	cmd.Flags().StringVar(&flags.track, "track", "", "Track title")
	cmd.Flags().IntVar(&flags.year, "year", 0, "Release year")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "Drop results that contradict the query")
	cmd.Flags().StringSliceVar(&flags.formats, "format", nil, "Preferred formats, best first (FLAC, MP3, AAC, WAV)")
	cmd.Flags().IntVar(&flags.minBitrate, "min-bitrate", 0, "Minimum bitrate in kbps")
	cmd.Flags().IntVar(&flags.limit, "limit", domain.DefaultSearchLimit, "Maximum number of results")
	cmd.Flags().StringSliceVar(&flags.providers, "provider", nil, "Restrict to these adapters")
	return cmd
}
