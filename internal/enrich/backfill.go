package enrich

import (
	"context"
	"sync"

	"github.com/justestif/song-roulette/internal/db"
)

// DefaultConcurrency is the number of songs refreshed in parallel by Backfill.
const DefaultConcurrency = 5

// Outcome describes what Backfill did with one song.
type Outcome string

const (
	// OutcomeMatched means a track was found and written back.
	OutcomeMatched Outcome = "matched"
	// OutcomeUnmatched means no track was found.
	OutcomeUnmatched Outcome = "unmatched"
	// OutcomeSkipped means the song already had a track ID.
	OutcomeSkipped Outcome = "skipped"
	// OutcomeFailed means the refresh returned an error.
	OutcomeFailed Outcome = "failed"
)

// BackfillOptions configures a Backfill run.
type BackfillOptions struct {
	// Concurrency is the number of workers. Zero uses DefaultConcurrency.
	Concurrency int
	// SkipMatched leaves songs that already have a track ID untouched.
	SkipMatched bool
}

// SongResult is the outcome for one song.
type SongResult struct {
	SongID  string
	TrackID string
	Outcome Outcome
	Error   error // non-nil if Outcome is OutcomeFailed
}

// BackfillResult holds per-song results in input order.
type BackfillResult struct {
	Results []SongResult
}

// Count returns how many songs ended with the given outcome.
func (r BackfillResult) Count(o Outcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Backfill refreshes many songs concurrently.
// Individual failures are captured in the results rather than failing the batch.
// After ctx is canceled, remaining songs are reported as failed with ctx.Err().
func (s *Service) Backfill(ctx context.Context, songs []db.Song, opts BackfillOptions) BackfillResult {
	results := make([]SongResult, len(songs))
	if len(songs) == 0 {
		return BackfillResult{Results: results}
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	type workItem struct {
		index int
		song  db.Song
	}
	workCh := make(chan workItem, len(songs))
	for i, song := range songs {
		workCh <- workItem{index: i, song: song}
	}
	close(workCh)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range workCh {
				results[work.index] = s.backfillOne(ctx, &work.song, opts)
			}
		}()
	}
	wg.Wait()

	s.log.Info().
		Int("total", len(songs)).
		Int("matched", countOutcome(results, OutcomeMatched)).
		Int("unmatched", countOutcome(results, OutcomeUnmatched)).
		Int("skipped", countOutcome(results, OutcomeSkipped)).
		Int("failed", countOutcome(results, OutcomeFailed)).
		Msg("backfill finished")

	return BackfillResult{Results: results}
}

func (s *Service) backfillOne(ctx context.Context, song *db.Song, opts BackfillOptions) SongResult {
	result := SongResult{SongID: song.ID}

	if err := ctx.Err(); err != nil {
		result.Outcome = OutcomeFailed
		result.Error = err
		return result
	}
	if opts.SkipMatched && deref(song.SpotifyTrackID) != "" {
		result.Outcome = OutcomeSkipped
		result.TrackID = *song.SpotifyTrackID
		return result
	}

	enriched, err := s.refresh(ctx, song)
	switch {
	case err != nil:
		result.Outcome = OutcomeFailed
		result.Error = err
		s.log.Warn().Err(err).Str("song_id", song.ID).Msg("backfill refresh failed")
	case enriched.Matched():
		result.Outcome = OutcomeMatched
		result.TrackID = *enriched.SpotifyData.TrackID
	default:
		result.Outcome = OutcomeUnmatched
	}
	return result
}

func countOutcome(results []SongResult, o Outcome) int {
	return BackfillResult{Results: results}.Count(o)
}
