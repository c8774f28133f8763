package db

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// assign copies values into scan destinations the way pgx would for already
// decoded column values.
func assign(dest []any, values []any) error {
	if len(dest) != len(values) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(values[i]))
	}
	return nil
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(dest, r.values)
}

type fakeRows struct {
	rows   [][]any
	i      int
	err    error
	closed bool
}

func (r *fakeRows) Close()                                       { r.closed = true }
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return r.rows[r.i-1], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	return assign(dest, r.rows[r.i-1])
}

// fakeQuerier records calls and returns canned results.
type fakeQuerier struct {
	rows     *fakeRows
	queryErr error
	row      fakeRow
	execTag  pgconn.CommandTag
	execErr  error

	execs    []string
	lastArgs []any
}

func (f *fakeQuerier) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	f.lastArgs = args
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeQuerier) QueryRow(_ context.Context, _ string, args ...any) pgx.Row {
	f.lastArgs = args
	return f.row
}

func (f *fakeQuerier) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.execs = append(f.execs, sql)
	f.lastArgs = args
	return f.execTag, f.execErr
}

func strPtr(s string) *string { return &s }

func songValues(s Song) []any {
	return []any{
		s.ID, s.Title, s.Artist, s.Work, s.JacketURL, s.SpotifyTrackID,
		s.NormalizedTitle, s.NormalizedArtist, s.UpdatedAt,
	}
}

var (
	butterfly = Song{
		ID:        "song-1",
		Title:     "Lost Butterfly",
		Artist:    "Kaori Sasou (CV. Kana Ueda)",
		Work:      "Idol Project",
		JacketURL: strPtr("https://example.com/jacket.png"),
		UpdatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	nightfall = Song{
		ID:             "song-2",
		Title:          "Nightfall",
		Artist:         "Aoi",
		Work:           "Sky Saga",
		SpotifyTrackID: strPtr("4uLU6hMCjMI75M1A2tKUQC"),
	}
)

func TestSongRepository_All(t *testing.T) {
	rows := &fakeRows{rows: [][]any{songValues(butterfly), songValues(nightfall)}}
	repo := &SongRepository{q: &fakeQuerier{rows: rows}}

	songs, err := repo.All(context.Background())
	if err != nil {
		t.Fatalf("All() error = %v", err)
	}
	if len(songs) != 2 {
		t.Fatalf("All() got %d songs, want 2", len(songs))
	}
	if songs[0].Title != "Lost Butterfly" || songs[1].ID != "song-2" {
		t.Errorf("All() = %+v", songs)
	}
	if songs[0].SpotifyTrackID != nil {
		t.Errorf("SpotifyTrackID = %v, want nil", *songs[0].SpotifyTrackID)
	}
	if songs[1].JacketURL != nil {
		t.Errorf("JacketURL = %v, want nil", *songs[1].JacketURL)
	}
	if !rows.closed {
		t.Error("rows were not closed")
	}
}

func TestSongRepository_AllErrors(t *testing.T) {
	tests := []struct {
		name string
		q    *fakeQuerier
	}{
		{"query fails", &fakeQuerier{queryErr: errors.New("connection refused")}},
		{"iteration fails", &fakeQuerier{rows: &fakeRows{err: errors.New("conn reset")}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &SongRepository{q: tt.q}
			_, err := repo.All(context.Background())
			if !errors.Is(err, ErrStore) {
				t.Errorf("All() error = %v, want ErrStore", err)
			}
		})
	}
}

func TestSongRepository_Random(t *testing.T) {
	tests := []struct {
		name    string
		row     fakeRow
		wantID  string
		wantErr error
	}{
		{"returns row", fakeRow{values: songValues(butterfly)}, "song-1", nil},
		{"empty catalog", fakeRow{err: pgx.ErrNoRows}, "", ErrNotFound},
		{"store failure", fakeRow{err: errors.New("timeout")}, "", ErrStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &SongRepository{q: &fakeQuerier{row: tt.row}}
			song, err := repo.Random(context.Background())

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Random() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Random() error = %v", err)
			}
			if song.ID != tt.wantID {
				t.Errorf("Random().ID = %q, want %q", song.ID, tt.wantID)
			}
		})
	}
}

func TestSongRepository_EmptyCatalogIsNotStoreError(t *testing.T) {
	repo := &SongRepository{q: &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}}
	_, err := repo.Random(context.Background())
	if errors.Is(err, ErrStore) {
		t.Errorf("empty catalog should not be marked ErrStore: %v", err)
	}
}

func TestSongRepository_Get(t *testing.T) {
	q := &fakeQuerier{row: fakeRow{values: songValues(nightfall)}}
	repo := &SongRepository{q: q}

	song, err := repo.Get(context.Background(), "song-2")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if song.SpotifyTrackID == nil || *song.SpotifyTrackID != "4uLU6hMCjMI75M1A2tKUQC" {
		t.Errorf("SpotifyTrackID = %v", song.SpotifyTrackID)
	}
	if len(q.lastArgs) != 1 || q.lastArgs[0] != "song-2" {
		t.Errorf("args = %v, want [song-2]", q.lastArgs)
	}

	repo = &SongRepository{q: &fakeQuerier{row: fakeRow{err: pgx.ErrNoRows}}}
	if _, err := repo.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) error = %v, want ErrNotFound", err)
	}
}

func TestSongRepository_UpdateMetadata(t *testing.T) {
	tests := []struct {
		name      string
		update    MetadataUpdate
		tag       pgconn.CommandTag
		execErr   error
		wantErr   error
		wantExecs int
	}{
		{
			name:      "empty update is a no-op",
			update:    MetadataUpdate{},
			wantExecs: 0,
		},
		{
			name:      "updates row",
			update:    MetadataUpdate{SpotifyTrackID: strPtr("abc"), JacketURL: strPtr("https://i.scdn.co/image/1")},
			tag:       pgconn.NewCommandTag("UPDATE 1"),
			wantExecs: 1,
		},
		{
			name:      "no matching row",
			update:    MetadataUpdate{SpotifyTrackID: strPtr("abc")},
			tag:       pgconn.NewCommandTag("UPDATE 0"),
			wantErr:   ErrNotFound,
			wantExecs: 1,
		},
		{
			name:      "store failure",
			update:    MetadataUpdate{NormalizedTitle: strPtr("Song")},
			execErr:   errors.New("read-only transaction"),
			wantErr:   ErrStore,
			wantExecs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &fakeQuerier{execTag: tt.tag, execErr: tt.execErr}
			repo := &SongRepository{q: q}

			err := repo.UpdateMetadata(context.Background(), "song-1", tt.update)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("UpdateMetadata() error = %v, want %v", err, tt.wantErr)
				}
			} else if err != nil {
				t.Errorf("UpdateMetadata() error = %v", err)
			}

			if len(q.execs) != tt.wantExecs {
				t.Errorf("got %d execs, want %d", len(q.execs), tt.wantExecs)
			}
			if tt.wantExecs > 0 && q.lastArgs[0] != "song-1" {
				t.Errorf("first arg = %v, want song-1", q.lastArgs[0])
			}
		})
	}
}

func TestReportRepository_Create(t *testing.T) {
	q := &fakeQuerier{execTag: pgconn.NewCommandTag("INSERT 0 1")}
	repo := &ReportRepository{q: q}

	report, err := repo.Create(context.Background(), "song-1")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if report.SongID != "song-1" {
		t.Errorf("SongID = %q, want song-1", report.SongID)
	}
	if report.ID.String() == "00000000-0000-0000-0000-000000000000" {
		t.Error("report ID was not generated")
	}
	if q.lastArgs[0] != report.ID {
		t.Errorf("inserted id = %v, want %v", q.lastArgs[0], report.ID)
	}

	failing := &ReportRepository{q: &fakeQuerier{execErr: errors.New("no table")}}
	if _, err := failing.Create(context.Background(), "song-1"); !errors.Is(err, ErrStore) {
		t.Errorf("Create() error = %v, want ErrStore", err)
	}
}

func TestMigrate(t *testing.T) {
	q := &fakeQuerier{}
	database := &DB{q: q}

	if err := database.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	if len(q.execs) != len(statements(schemaSQL)) {
		t.Errorf("got %d statements executed, want %d", len(q.execs), len(statements(schemaSQL)))
	}
	for _, stmt := range q.execs {
		if stmt == "" {
			t.Error("executed an empty statement")
		}
	}
}

func TestStatements(t *testing.T) {
	got := statements("CREATE TABLE a (x int);\n\n ; CREATE INDEX b ON a (x);\n")
	want := []string{"CREATE TABLE a (x int)", "CREATE INDEX b ON a (x)"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("statements() = %q, want %q", got, want)
	}
}
