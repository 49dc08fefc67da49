// Package twitchapi contains minimal helpers to interact with the Twitch Helix
// API (live streams, user profiles, game box art) using an app access token.
package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// DefaultBaseURL is the production Helix endpoint.
const DefaultBaseURL = "https://api.twitch.tv/helix"

// MaxBatch is the number of logins or names Helix accepts in one query.
const MaxBatch = 100

const (
	helixMaxRetries  = 3
	helixBackoffBase = 250 * time.Millisecond
	maxRetryAfter    = 10 * time.Second
)

// ErrBackend marks a Helix failure worth retrying on a later tick
// (server errors, rate limiting after retries, transport failures).
var ErrBackend = errors.New("twitch backend error")

// BackendError carries the status of a failed Helix request.
type BackendError struct {
	Status int
	Path   string
	Err    error
}

func (e *BackendError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("helix %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("helix %s: status %d", e.Path, e.Status)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Is lets callers match any BackendError with errors.Is(err, ErrBackend).
func (e *BackendError) Is(target error) bool { return target == ErrBackend }

// Stream is one entry of GET /helix/streams.
type Stream struct {
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameName     string    `json:"game_name"`
	Title        string    `json:"title"`
	Type         string    `json:"type"`
	ThumbnailURL string    `json:"thumbnail_url"`
	StartedAt    time.Time `json:"started_at"`
}

// Thumbnail fills the {width}/{height} placeholders of the thumbnail template.
func (s Stream) Thumbnail(w, h int) string {
	return fillSize(s.ThumbnailURL, w, h)
}

// URL is the public channel URL of the stream.
func (s Stream) URL() string { return "https://www.twitch.tv/" + s.UserLogin }

// User is one entry of GET /helix/users.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// Game is one entry of GET /helix/games.
type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
}

// BoxArt fills the {width}/{height} placeholders of the box art template.
func (g Game) BoxArt(w, h int) string {
	return fillSize(g.BoxArtURL, w, h)
}

func fillSize(tmpl string, w, h int) string {
	return strings.NewReplacer("{width}", strconv.Itoa(w), "{height}", strconv.Itoa(h)).Replace(tmpl)
}

// HelixClient issues batched Helix queries.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string
	// Limiter paces outgoing requests. Nil means unlimited.
	Limiter *rate.Limiter
}

// NewHelixClient builds a client limited to perMinute requests.
func NewHelixClient(clientID, clientSecret string, perMinute int) *HelixClient {
	hc := &http.Client{Timeout: 15 * time.Second}
	var lim *rate.Limiter
	if perMinute > 0 {
		lim = rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 10)
	}
	return &HelixClient{
		AppTokenSource: &TokenSource{ClientID: clientID, ClientSecret: clientSecret, HTTPClient: hc},
		ClientID:       clientID,
		HTTPClient:     hc,
		Limiter:        lim,
	}
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func (hc *HelixClient) base() string {
	if hc.BaseURL != "" {
		return strings.TrimRight(hc.BaseURL, "/")
	}
	return DefaultBaseURL
}

// GetStreams returns the live streams among logins (at most MaxBatch).
func (hc *HelixClient) GetStreams(ctx context.Context, logins []string) ([]Stream, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	if len(logins) > MaxBatch {
		return nil, fmt.Errorf("too many logins: %d > %d", len(logins), MaxBatch)
	}
	q := url.Values{}
	for _, l := range logins {
		q.Add("user_login", l)
	}
	q.Set("type", "live")
	q.Set("first", strconv.Itoa(MaxBatch))
	var body struct {
		Data []Stream `json:"data"`
	}
	if err := hc.get(ctx, "/streams", q, &body); err != nil {
		return nil, err
	}
	out := body.Data[:0]
	for _, s := range body.Data {
		if s.Type == "" || s.Type == "live" {
			out = append(out, s)
		}
	}
	return out, nil
}

// GetUsers returns profiles for logins (at most MaxBatch).
func (hc *HelixClient) GetUsers(ctx context.Context, logins []string) ([]User, error) {
	if len(logins) == 0 {
		return nil, nil
	}
	if len(logins) > MaxBatch {
		return nil, fmt.Errorf("too many logins: %d > %d", len(logins), MaxBatch)
	}
	q := url.Values{}
	for _, l := range logins {
		q.Add("login", l)
	}
	var body struct {
		Data []User `json:"data"`
	}
	if err := hc.get(ctx, "/users", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// GetGames returns game metadata for names (at most MaxBatch).
func (hc *HelixClient) GetGames(ctx context.Context, names []string) ([]Game, error) {
	if len(names) == 0 {
		return nil, nil
	}
	if len(names) > MaxBatch {
		return nil, fmt.Errorf("too many names: %d > %d", len(names), MaxBatch)
	}
	q := url.Values{}
	for _, n := range names {
		q.Add("name", n)
	}
	var body struct {
		Data []Game `json:"data"`
	}
	if err := hc.get(ctx, "/games", q, &body); err != nil {
		return nil, err
	}
	return body.Data, nil
}

// get performs a Helix GET with retries on 5xx, 429 and transport errors,
// and a single token refresh on 401.
func (hc *HelixClient) get(ctx context.Context, path string, q url.Values, out any) error {
	if hc.AppTokenSource == nil {
		return errors.New("helix client has no token source")
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return &BackendError{Path: path, Err: err}
	}
	endpoint := hc.base() + path + "?" + q.Encode()

	refreshed := false
	var lastErr error
	for attempt := 0; attempt < helixMaxRetries || (refreshed && attempt == helixMaxRetries); attempt++ {
		if attempt > 0 && lastErr != nil {
			if err := sleepCtx(ctx, backoff(attempt, lastErr)); err != nil {
				return err
			}
		}
		if hc.Limiter != nil {
			if err := hc.Limiter.Wait(ctx); err != nil {
				return err
			}
		}
		status, retryAfter, err := hc.do(ctx, endpoint, tok, out)
		switch {
		case err == nil && status == http.StatusOK:
			return nil
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = &BackendError{Path: path, Err: err}
		case status == http.StatusUnauthorized && !refreshed:
			refreshed = true
			fresh, rerr := hc.AppTokenSource.Renew(ctx, tok)
			if rerr != nil {
				return &BackendError{Status: status, Path: path, Err: rerr}
			}
			tok = fresh
			lastErr = nil
		case status == http.StatusTooManyRequests:
			lastErr = &retryAfterError{BackendError{Status: status, Path: path}, retryAfter}
		case status >= 500:
			lastErr = &BackendError{Status: status, Path: path}
		default:
			return fmt.Errorf("helix %s: unexpected status %d", path, status)
		}
		slog.Debug("helix request failed", slog.String("path", path), slog.Int("attempt", attempt+1), slog.Int("status", status))
	}
	if lastErr == nil {
		lastErr = &BackendError{Status: http.StatusUnauthorized, Path: path}
	}
	var ra *retryAfterError
	if errors.As(lastErr, &ra) {
		return &ra.BackendError
	}
	return lastErr
}

func (hc *HelixClient) do(ctx context.Context, endpoint, tok string, out any) (int, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, 0, err
	}
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)
	resp, err := hc.http().Do(req)
	if err != nil {
		return 0, 0, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode, parseRetryAfter(resp.Header.Get("Retry-After")), nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, 0, fmt.Errorf("decode: %w", err)
	}
	return resp.StatusCode, 0, nil
}

type retryAfterError struct {
	BackendError
	wait time.Duration
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return -1
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs < 0 {
		return -1
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		d = maxRetryAfter
	}
	return d
}

func backoff(attempt int, lastErr error) time.Duration {
	var ra *retryAfterError
	if errors.As(lastErr, &ra) && ra.wait >= 0 {
		return ra.wait
	}
	return helixBackoffBase * time.Duration(1<<(attempt-1))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
