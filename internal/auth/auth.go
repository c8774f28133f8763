// Package auth implements the Spotify authorization-code flow used for
// in-browser playback and keeps the resulting user token in cookies.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
)

const (
	// StateCookie holds the OAuth state between login and callback.
	StateCookie = "oauth_state"
	// TokenCookie holds the user's access token.
	TokenCookie = "spotify_access_token"
	// ExpiryCookie holds the access token expiry in Unix milliseconds.
	ExpiryCookie = "spotify_token_expiry"

	stateTTL = 5 * time.Minute
	// defaultTokenTTL applies when the token response carries no expiry.
	defaultTokenTTL = time.Hour
)

var (
	// ErrMissingCredentials is returned when the client id or secret is not set.
	ErrMissingCredentials = errors.New("missing Spotify client id or secret")

	// ErrStateMismatch is returned when the OAuth state parameter doesn't match.
	ErrStateMismatch = errors.New("OAuth state mismatch")

	// ErrAccessDenied is returned when the user or Spotify rejected the authorization.
	ErrAccessDenied = errors.New("spotify authorization denied")

	// ErrNoToken is returned when the request carries no access token.
	ErrNoToken = errors.New("no access token found")

	// ErrTokenExpired is returned when the access token's expiry has passed.
	ErrTokenExpired = errors.New("access token has expired")
)

// Scopes are the user permissions needed by the browser player.
var Scopes = []string{
	spotifyauth.ScopeStreaming,
	spotifyauth.ScopeUserReadEmail,
	spotifyauth.ScopeUserReadPrivate,
}

// Config holds the OAuth client settings.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Authenticator handles the Spotify OAuth2 authorization-code flow.
type Authenticator struct {
	auth   *spotifyauth.Authenticator
	secure bool
}

// New creates an Authenticator.
// Returns ErrMissingCredentials if the client id or secret is empty.
func New(cfg Config) (*Authenticator, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrMissingCredentials
	}

	auth := spotifyauth.New(
		spotifyauth.WithClientID(cfg.ClientID),
		spotifyauth.WithClientSecret(cfg.ClientSecret),
		spotifyauth.WithRedirectURL(cfg.RedirectURL),
		spotifyauth.WithScopes(Scopes...),
	)

	return &Authenticator{
		auth:   auth,
		secure: strings.HasPrefix(cfg.RedirectURL, "https://"),
	}, nil
}

// AuthURL returns the Spotify consent page URL for the given state.
func (a *Authenticator) AuthURL(state string) string {
	return a.auth.AuthURL(state)
}

// Begin generates a state, stores it in a short-lived cookie and returns the
// consent page URL to redirect to.
func (a *Authenticator) Begin(w http.ResponseWriter) (string, error) {
	state, err := GenerateState()
	if err != nil {
		return "", errors.Wrap(err, "generating state")
	}

	http.SetCookie(w, &http.Cookie{
		Name:     StateCookie,
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(stateTTL.Seconds()),
	})
	return a.AuthURL(state), nil
}

// Complete validates a callback request, clears the state cookie and
// exchanges the authorization code for a token.
func (a *Authenticator) Complete(ctx context.Context, w http.ResponseWriter, r *http.Request) (*oauth2.Token, error) {
	state, err := CheckState(r)
	clearCookie(w, StateCookie)
	if err != nil {
		return nil, err
	}

	token, err := a.auth.Token(ctx, state, r)
	if err != nil {
		return nil, errors.Wrap(err, "exchanging code for token")
	}
	return token, nil
}

// CheckState verifies the callback's state against the state cookie and
// reports an authorization error sent back by Spotify.
// Returns the validated state.
func CheckState(r *http.Request) (string, error) {
	cookie, err := r.Cookie(StateCookie)
	if err != nil {
		return "", errors.Wrap(ErrStateMismatch, "missing state cookie")
	}

	state := r.URL.Query().Get("state")
	if state == "" || state != cookie.Value {
		return "", ErrStateMismatch
	}

	if reason := r.URL.Query().Get("error"); reason != "" {
		return "", errors.Wrap(ErrAccessDenied, reason)
	}
	return state, nil
}

// SetToken stores the access token and its expiry in HttpOnly cookies that
// expire with the token.
func (a *Authenticator) SetToken(w http.ResponseWriter, token *oauth2.Token, now time.Time) {
	expiry := token.Expiry
	if expiry.IsZero() {
		expiry = now.Add(defaultTokenTTL)
	}
	maxAge := int(expiry.Sub(now).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}

	for name, value := range map[string]string{
		TokenCookie:  token.AccessToken,
		ExpiryCookie: strconv.FormatInt(expiry.UnixMilli(), 10),
	} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    value,
			Path:     "/",
			HttpOnly: true,
			Secure:   a.secure,
			SameSite: http.SameSiteLaxMode,
			MaxAge:   maxAge,
		})
	}
}

// TokenFromRequest returns the access token stored in the request cookies.
// Returns ErrNoToken if there is none and ErrTokenExpired if its recorded
// expiry is before now. A missing or malformed expiry cookie is ignored.
func TokenFromRequest(r *http.Request, now time.Time) (string, error) {
	cookie, err := r.Cookie(TokenCookie)
	if err != nil || cookie.Value == "" {
		return "", ErrNoToken
	}

	if expiry, err := r.Cookie(ExpiryCookie); err == nil {
		ms, err := strconv.ParseInt(expiry.Value, 10, 64)
		if err == nil && now.UnixMilli() > ms {
			return "", ErrTokenExpired
		}
	}
	return cookie.Value, nil
}

// GenerateState creates a random state string for OAuth.
func GenerateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
