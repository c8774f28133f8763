// Package spotify looks up track metadata on the Spotify Web API using
// application (client-credentials) authentication.
package spotify

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

var (
	// ErrAuth marks failures to obtain an application credential.
	ErrAuth = errors.New("spotify authentication failed")
	// ErrLookup marks failed search or track requests.
	ErrLookup = errors.New("spotify lookup failed")
	// ErrMissingCredentials is returned by Authenticate when no client
	// id or secret is configured. It is marked ErrAuth.
	ErrMissingCredentials = errors.New("spotify client credentials not configured")
)

const (
	// DefaultTimeout bounds every HTTP request made by the client.
	DefaultTimeout = 10 * time.Second
	// searchLimit is the number of candidates requested by lenient search.
	searchLimit = 10
)

// Config holds the client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	// Market is an ISO 3166-1 alpha-2 country code applied to lookups.
	Market string
	// TokenURL overrides the accounts service token endpoint.
	TokenURL string
	// BaseURL overrides the Web API base URL. Must end with a slash.
	BaseURL string
	// RequestsPerSecond paces API requests. Zero or less disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client issues application credentials and opens lookup sessions.
type Client struct {
	cfg        Config
	creds      *clientcredentials.Config
	httpClient *http.Client
	limiter    *rate.Limiter
	log        zerolog.Logger

	mu    sync.Mutex
	token *oauth2.Token
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for lookup failures.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.log = l
	}
}

// WithHTTPClient sets the base HTTP client used for token and API requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a new client. No network traffic happens until Authenticate.
func New(cfg Config, opts ...Option) *Client {
	if cfg.TokenURL == "" {
		cfg.TokenURL = spotifyauth.TokenURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &Client{
		cfg: cfg,
		creds: &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, 1),
		log:        log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authenticate obtains an application credential and returns a Session that
// uses it. A still-valid credential from an earlier exchange is reused.
func (c *Client) Authenticate(ctx context.Context) (*Session, error) {
	if c.cfg.ClientID == "" || c.cfg.ClientSecret == "" {
		return nil, errors.Mark(ErrMissingCredentials, ErrAuth)
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	token, err := c.credential(ctx)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "exchanging client credentials"), ErrAuth)
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(token))
	httpClient.Timeout = c.cfg.Timeout

	opts := []spotify.ClientOption{spotify.WithRetry(true)}
	if c.cfg.BaseURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.cfg.BaseURL))
	}

	return &Session{
		api:    spotify.New(httpClient, opts...),
		client: c,
	}, nil
}

// credential returns the cached token or exchanges the client credentials
// for a new one.
func (c *Client) credential(ctx context.Context) (*oauth2.Token, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token.Valid() {
		return c.token, nil
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return nil, err
	}
	c.token = token
	return token, nil
}

// Session performs lookups with one application credential.
type Session struct {
	api    *spotify.Client
	client *Client
}

// SearchTrack finds the best Spotify track for a catalog title and artist.
// A strict title and artist query is tried first, then a title-only query
// filtered with BestMatch. Returns nil if nothing matches or a request fails.
func (s *Session) SearchTrack(ctx context.Context, title, artist string) *Track {
	cleanTitle := CleanTitle(title)
	cleanArtist := CleanArtist(artist)

	strict := StrictQuery(cleanTitle, cleanArtist)
	tracks, err := s.search(ctx, strict, 1)
	if err != nil {
		s.logLookupError(err, strict)
		return nil
	}
	if len(tracks) > 0 {
		return &tracks[0]
	}

	lenient := LenientQuery(cleanTitle)
	tracks, err = s.search(ctx, lenient, searchLimit)
	if err != nil {
		s.logLookupError(err, lenient)
		return nil
	}

	match := BestMatch(cleanTitle, tracks)
	if match == nil {
		s.client.log.Debug().
			Str("title", title).
			Str("artist", artist).
			Int("candidates", len(tracks)).
			Msg("no spotify track matched")
	}
	return match
}

// TrackByID fetches a track by its Spotify ID.
// Returns nil if the request fails.
func (s *Session) TrackByID(ctx context.Context, id string) *Track {
	if err := s.client.limiter.Wait(ctx); err != nil {
		s.logLookupError(err, id)
		return nil
	}

	ft, err := s.api.GetTrack(ctx, spotify.ID(id), s.marketOpts()...)
	if err != nil {
		s.logLookupError(errors.Wrapf(err, "getting track %s", id), id)
		return nil
	}

	track := convertTrack(ft)
	return &track
}

// search runs one track search and converts the results.
func (s *Session) search(ctx context.Context, query string, limit int) ([]Track, error) {
	if err := s.client.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, "waiting for rate limiter")
	}

	opts := append([]spotify.RequestOption{spotify.Limit(limit)}, s.marketOpts()...)
	res, err := s.api.Search(ctx, query, spotify.SearchTypeTrack, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "searching tracks")
	}
	if res.Tracks == nil {
		return nil, nil
	}

	tracks := make([]Track, 0, len(res.Tracks.Tracks))
	for i := range res.Tracks.Tracks {
		tracks = append(tracks, convertTrack(&res.Tracks.Tracks[i]))
	}
	return tracks, nil
}

func (s *Session) marketOpts() []spotify.RequestOption {
	if s.client.cfg.Market == "" {
		return nil
	}
	return []spotify.RequestOption{spotify.Market(s.client.cfg.Market)}
}

func (s *Session) logLookupError(err error, target string) {
	s.client.log.Error().
		Err(errors.Mark(err, ErrLookup)).
		Str("target", target).
		Msg("spotify lookup failed")
}
