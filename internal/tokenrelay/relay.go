// Package tokenrelay captures Piano bearer tokens from intercepted
// request descriptions and relays them to subscribers. Capture is
// passive: the relay only ever sees requests the interceptor already
// observed, it performs none of its own.
package tokenrelay

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arizent/composer-insights/internal/models"
	"github.com/arizent/composer-insights/internal/storage"
)

// InterceptedRequest describes one observed outbound request.
type InterceptedRequest struct {
	Method        string `json:"method"`
	URL           string `json:"url"`
	Authorization string `json:"authorization"`
	Origin        string `json:"origin,omitempty"`
}

// TokenAvailable announces a freshly captured token to subscribers of
// the capturing origin.
type TokenAvailable struct {
	Type       string    `json:"type"`
	CaptureID  string    `json:"captureId"`
	Token      string    `json:"token"`
	CapturedAt time.Time `json:"capturedAt"`
	Origin     string    `json:"origin,omitempty"`
}

// Relay watches intercepted requests for bearer tokens, persists the
// most recent one, and broadcasts captures to origin-scoped
// subscribers.
type Relay struct {
	watched []string
	wait    time.Duration
	store   storage.TokenStore
	logger  *zap.Logger

	mu   sync.Mutex
	subs map[string]map[chan TokenAvailable]struct{}
}

// New builds a Relay. watched lists the URL patterns (prefixes with
// optional `*` wildcards) whose Authorization headers are captured;
// wait bounds how long WaitToken blocks when no token has been
// captured yet.
func New(watched []string, wait time.Duration, store storage.TokenStore, logger *zap.Logger) *Relay {
	return &Relay{
		watched: watched,
		wait:    wait,
		store:   store,
		logger:  logger,
		subs:    make(map[string]map[chan TokenAvailable]struct{}),
	}
}

// Capture inspects one intercepted request and captures its bearer
// token when it matches. Only GET requests to a watched URL with
// a non-empty bearer Authorization header qualify. It reports whether a
// token was captured.
func (r *Relay) Capture(ctx context.Context, req InterceptedRequest) bool {
	if !strings.EqualFold(req.Method, "GET") {
		return false
	}
	if !r.watchedURL(req.URL) {
		return false
	}
	token := stripBearer(req.Authorization)
	if token == "" {
		return false
	}

	captureID := uuid.New().String()
	tok := models.CapturedToken{Token: token, CapturedAt: time.Now().UTC()}
	if r.store != nil {
		// Persistence is best effort; a broken store must not stop
		// the broadcast.
		if err := r.store.SaveToken(ctx, tok); err != nil {
			r.logger.Warn("failed to persist captured token", zap.Error(err))
		}
	}

	r.logger.Info("captured bearer token",
		zap.String("capture_id", captureID),
		zap.String("url", req.URL),
		zap.String("origin", req.Origin),
		zap.Time("captured_at", tok.CapturedAt),
	)

	r.broadcast(TokenAvailable{
		Type:       "TOKEN_AVAILABLE",
		CaptureID:  captureID,
		Token:      tok.Token,
		CapturedAt: tok.CapturedAt,
		Origin:     req.Origin,
	})
	return true
}

// Subscribe registers a listener for captures from the given origin.
// The empty origin subscribes to all captures. The returned cancel
// function must be called to release the subscription.
func (r *Relay) Subscribe(origin string) (<-chan TokenAvailable, func()) {
	ch := make(chan TokenAvailable, 1)
	r.mu.Lock()
	if r.subs[origin] == nil {
		r.subs[origin] = make(map[chan TokenAvailable]struct{})
	}
	r.subs[origin][ch] = struct{}{}
	r.mu.Unlock()

	cancel := func() {
		r.mu.Lock()
		delete(r.subs[origin], ch)
		if len(r.subs[origin]) == 0 {
			delete(r.subs, origin)
		}
		r.mu.Unlock()
	}
	return ch, cancel
}

// WaitToken returns the stored token immediately if one exists,
// otherwise it waits up to the configured advisory timeout for a fresh
// capture. (nil, nil) means no token arrived in time; the caller
// decides whether that is an error.
func (r *Relay) WaitToken(ctx context.Context, origin string) (*models.CapturedToken, error) {
	if r.store != nil {
		tok, err := r.store.LoadToken(ctx)
		if err != nil {
			r.logger.Warn("failed to load stored token", zap.Error(err))
		} else if tok != nil {
			return tok, nil
		}
	}

	ch, cancel := r.Subscribe(origin)
	defer cancel()

	timer := time.NewTimer(r.wait)
	defer timer.Stop()

	select {
	case msg := <-ch:
		return &models.CapturedToken{Token: msg.Token, CapturedAt: msg.CapturedAt}, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Relay) broadcast(msg TokenAvailable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for origin, set := range r.subs {
		// Origin is the authorization boundary: a subscriber only
		// receives captures from its own origin. The empty origin
		// opts in to everything.
		if origin != "" && origin != msg.Origin {
			continue
		}
		for ch := range set {
			select {
			case ch <- msg:
			default:
			}
		}
	}
}

// watchedURL reports whether u matches one of the watched patterns. A
// pattern without wildcards is a plain URL prefix; `*` matches any run
// of characters, which the dashboard edit pattern needs to cover the
// experience id sitting mid-path.
func (r *Relay) watchedURL(u string) bool {
	for _, pattern := range r.watched {
		if matchPattern(pattern, u) {
			return true
		}
	}
	return false
}

func matchPattern(pattern, u string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return strings.HasPrefix(u, pattern)
	}
	if !strings.HasPrefix(u, parts[0]) {
		return false
	}
	rest := u[len(parts[0]):]
	for _, part := range parts[1 : len(parts)-1] {
		i := strings.Index(rest, part)
		if i < 0 {
			return false
		}
		rest = rest[i+len(part):]
	}
	last := parts[len(parts)-1]
	return last == "" || strings.HasSuffix(rest, last)
}

// stripBearer extracts the token from an Authorization header value,
// accepting any casing of the "Bearer " scheme. Non-bearer values
// yield "".
func stripBearer(auth string) string {
	auth = strings.TrimSpace(auth)
	const scheme = "bearer "
	if len(auth) <= len(scheme) || !strings.EqualFold(auth[:len(scheme)], scheme) {
		return ""
	}
	return strings.TrimSpace(auth[len(scheme):])
}
