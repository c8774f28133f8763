package enrich

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/justestif/song-roulette/internal/db"
	"github.com/justestif/song-roulette/internal/spotify"
)

// spotifyClient adapts *spotify.Client to MetadataClient.
type spotifyClient struct {
	client *spotify.Client
}

// FromSpotify returns a MetadataClient backed by the Spotify client.
func FromSpotify(c *spotify.Client) MetadataClient {
	return spotifyClient{client: c}
}

func (c spotifyClient) Authenticate(ctx context.Context) (Session, error) {
	session, err := c.client.Authenticate(ctx)
	if err != nil {
		return nil, err
	}
	return session, nil
}

// unavailableCatalog fails every call with the same error.
type unavailableCatalog struct {
	err error
}

// UnavailableCatalog returns a Catalog that fails every call with err.
// It stands in for the store when the server starts without a usable
// configuration, so requests report the configuration error.
func UnavailableCatalog(err error) Catalog {
	return unavailableCatalog{err: err}
}

func (c unavailableCatalog) Random(context.Context) (*db.Song, error) {
	return nil, errors.WithStack(c.err)
}

func (c unavailableCatalog) Get(context.Context, string) (*db.Song, error) {
	return nil, errors.WithStack(c.err)
}

func (c unavailableCatalog) UpdateMetadata(context.Context, string, db.MetadataUpdate) error {
	return errors.WithStack(c.err)
}
