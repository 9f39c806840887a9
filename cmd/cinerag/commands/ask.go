package commands

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/cinerag/internal/logging"
	"github.com/54b3r/cinerag/internal/media"
	"github.com/54b3r/cinerag/internal/pipeline"
	"github.com/54b3r/cinerag/internal/tracing"
)

// NewAskCmd constructs the `cinerag ask` command, which sends a single
// question through the pipeline and streams the reply to stdout.
func NewAskCmd() *cobra.Command {
	var (
		kind      string
		genres    []string
		providers []string
		years     string
	)

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask for movie or TV recommendations",
		Long: `Ask cinerag a question and stream the reply to stdout.

Examples:
  cinerag ask "slow-burn sci-fi like Arrival"
  cinerag ask --kind tv --genre Comedy --provider Netflix "something light"
  cinerag ask --years 1990-1999 "heist movies"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			mediaKind, err := media.ParseKind(kind)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			yearRange, err := parseYears(years)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}

			flush := tracing.Enable(log)
			defer flush()

			comps, cleanup, err := buildPipeline(ctx, log, nil)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer cleanup()

			question := ""
			if len(args) == 1 {
				question = args[0]
			}

			out := cmd.OutOrStdout()
			_, err = comps.pipeline.Chat(ctx, pipeline.Request{
				Question:  question,
				Kind:      mediaKind,
				Genres:    genres,
				Providers: providers,
				Years:     yearRange,
			}, out)
			fmt.Fprintln(out)
			return err
		},
	}

	cmd.Flags().StringVarP(&kind, "kind", "k", "movie", "Catalogue to search: movie or tv")
	cmd.Flags().StringSliceVarP(&genres, "genre", "g", nil, "Restrict to a genre (repeatable)")
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Restrict to a streaming provider (repeatable)")
	cmd.Flags().StringVarP(&years, "years", "y", "", "Release year range, e.g. 1990-1999")

	return cmd
}

// parseYears parses "MIN-MAX". An empty string means the full range.
func parseYears(s string) (media.YearRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return media.YearRange{}, nil
	}
	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return media.YearRange{}, fmt.Errorf("%w: years must look like 1990-1999, got %q", media.ErrInvalidFilter, s)
	}
	minYear, err := strconv.Atoi(strings.TrimSpace(lo))
	if err != nil {
		return media.YearRange{}, fmt.Errorf("%w: bad start year %q", media.ErrInvalidFilter, lo)
	}
	maxYear, err := strconv.Atoi(strings.TrimSpace(hi))
	if err != nil {
		return media.YearRange{}, fmt.Errorf("%w: bad end year %q", media.ErrInvalidFilter, hi)
	}
	r := media.NewYearRange(minYear, maxYear)
	return r, r.Validate()
}
