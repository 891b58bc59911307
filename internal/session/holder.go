// Package session tracks the authenticated identity and owns the realtime
// channel's lifecycle. The connection is keyed by the session: built on
// login (or bootstrap of a persisted session), torn down on logout.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/kelvinkbk/xavlink-sub001/internal/api"
	apperrors "github.com/kelvinkbk/xavlink-sub001/internal/errors"
	"github.com/kelvinkbk/xavlink-sub001/internal/logger"
	"github.com/kelvinkbk/xavlink-sub001/internal/models"
	"github.com/kelvinkbk/xavlink-sub001/internal/storage"
)

// State is the holder's lifecycle phase.
type State int

const (
	Bootstrapping State = iota
	Anonymous
	Authenticated
)

func (s State) String() string {
	switch s {
	case Bootstrapping:
		return "bootstrapping"
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Authenticator is the slice of the REST client the holder needs.
type Authenticator interface {
	Login(ctx context.Context, creds api.Credentials) (*api.AuthResponse, error)
	Register(ctx context.Context, reg api.Registration) (*api.AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*api.AuthResponse, error)
	SetToken(token string)
	ClearToken()
	OnUnauthorized(hook func())
}

// ChannelFactory builds the realtime channel for a fresh session and is
// how the holder keys the connection by identity.
type ChannelFactory func(ctx context.Context, token string) (Channel, error)

// Channel is the realtime connection surface the holder manages.
type Channel interface {
	JoinUserRoom(userID string)
	UserOnline(userID string)
	Close()
}

// Holder tracks {user, token, state} and drives login/register/logout.
type Holder struct {
	auth    Authenticator
	store   storage.Store
	factory ChannelFactory
	log     *zap.Logger

	mu      sync.RWMutex
	state   State
	user    *models.User
	session models.Session
	channel Channel
}

// New wires a holder and registers its forced-logout hook with the REST
// client. The hook fires once per session generation (the client
// guarantees the fan-in), so N failing requests clear state exactly once.
func New(auth Authenticator, store storage.Store, factory ChannelFactory) *Holder {
	h := &Holder{
		auth:    auth,
		store:   store,
		factory: factory,
		log:     logger.New("session"),
		state:   Bootstrapping,
	}
	auth.OnUnauthorized(func() {
		if err := h.Logout(); err != nil {
			h.log.Warn("forced logout cleanup failed", zap.Error(err))
		}
	})
	return h
}

// Bootstrap reads the persisted session. It terminates the Bootstrapping
// state: Authenticated when a stored token and user exist, Anonymous
// otherwise. Called once at startup.
func (h *Holder) Bootstrap(ctx context.Context) error {
	token, hasToken, err := h.store.Get(storage.KeyToken)
	if err != nil {
		return apperrors.StorageError("read", storage.KeyToken, err)
	}
	userJSON, hasUser, err := h.store.Get(storage.KeyUser)
	if err != nil {
		return apperrors.StorageError("read", storage.KeyUser, err)
	}

	if !hasToken || !hasUser {
		h.setAnonymous()
		return nil
	}

	var user models.User
	if err := json.Unmarshal([]byte(userJSON), &user); err != nil {
		h.log.Warn("persisted user record unreadable, starting anonymous", zap.Error(err))
		h.setAnonymous()
		return nil
	}

	refresh, _, err := h.store.Get(storage.KeyRefreshToken)
	if err != nil {
		return apperrors.StorageError("read", storage.KeyRefreshToken, err)
	}

	// An expired token with no refresh token can never authenticate; drop
	// the stale session instead of restoring it.
	if expiry := tokenExpiry(token); !expiry.IsZero() && time.Now().After(expiry) && refresh == "" {
		h.log.Info("persisted token expired, starting anonymous")
		h.setAnonymous()
		return h.clearPersisted()
	}

	h.activate(ctx, models.Session{UserID: user.ID, Token: token, RefreshToken: refresh}, &user)
	h.log.Info("session restored", zap.String("user_id", user.ID))
	return nil
}

// Login authenticates and persists the session. A failed call mutates
// nothing: no stored key is written until the backend has accepted the
// credentials, and the three keys are written before in-memory state
// flips so a crash can't leave a half-applied session.
func (h *Holder) Login(ctx context.Context, creds api.Credentials) (*models.User, error) {
	resp, err := h.auth.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	return h.install(ctx, resp)
}

// Register creates an account and enters the session like Login.
func (h *Holder) Register(ctx context.Context, reg api.Registration) (*models.User, error) {
	resp, err := h.auth.Register(ctx, reg)
	if err != nil {
		return nil, err
	}
	return h.install(ctx, resp)
}

func (h *Holder) install(ctx context.Context, resp *api.AuthResponse) (*models.User, error) {
	userJSON, err := json.Marshal(resp.User)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "ENCODE_ERROR", "encode user record")
	}
	if err := h.store.Set(storage.KeyToken, resp.Token); err != nil {
		return nil, apperrors.StorageError("write", storage.KeyToken, err)
	}
	if err := h.store.Set(storage.KeyRefreshToken, resp.RefreshToken); err != nil {
		return nil, apperrors.StorageError("write", storage.KeyRefreshToken, err)
	}
	if err := h.store.Set(storage.KeyUser, string(userJSON)); err != nil {
		return nil, apperrors.StorageError("write", storage.KeyUser, err)
	}

	user := resp.User
	h.activate(ctx, models.Session{
		UserID:       user.ID,
		Token:        resp.Token,
		RefreshToken: resp.RefreshToken,
	}, &user)

	h.log.Info("logged in", zap.String("user_id", user.ID))
	return &user, nil
}

// activate flips in-memory state and builds the realtime channel for this
// session, replacing any previous one.
func (h *Holder) activate(ctx context.Context, session models.Session, user *models.User) {
	h.auth.SetToken(session.Token)

	var channel Channel
	if h.factory != nil {
		ch, err := h.factory(ctx, session.Token)
		if err != nil {
			// Degraded but usable: REST still works, data just goes stale
			// until the next explicit refresh.
			h.log.Warn("realtime channel unavailable", zap.Error(err))
		} else {
			channel = ch
			channel.JoinUserRoom(user.ID)
			channel.UserOnline(user.ID)
		}
	}

	h.mu.Lock()
	old := h.channel
	h.state = Authenticated
	h.session = session
	h.user = user
	h.channel = channel
	h.mu.Unlock()

	if old != nil {
		old.Close()
	}
}

// Logout clears the in-memory session, the realtime channel, and every
// persisted key. Idempotent: calling it while anonymous is a no-op.
func (h *Holder) Logout() error {
	h.mu.Lock()
	wasAuthenticated := h.state == Authenticated
	channel := h.channel
	h.state = Anonymous
	h.user = nil
	h.session = models.Session{}
	h.channel = nil
	h.mu.Unlock()

	h.auth.ClearToken()
	if channel != nil {
		channel.Close()
	}

	if err := h.clearPersisted(); err != nil {
		return err
	}
	if wasAuthenticated {
		h.log.Info("logged out")
	}
	return nil
}

func (h *Holder) clearPersisted() error {
	for _, key := range []string{storage.KeyToken, storage.KeyRefreshToken, storage.KeyUser} {
		if err := h.store.Delete(key); err != nil {
			return apperrors.StorageError("delete", key, err)
		}
	}
	return nil
}

// AdjustFollowingCount moves the authenticated user's following count by
// delta, clamping at zero, and persists the updated record. No-op when
// anonymous. Profile views call this inside their follow mutations so the
// viewer's own counter moves (and rolls back) with the target's.
func (h *Holder) AdjustFollowingCount(delta int) {
	h.mu.Lock()
	if h.user == nil {
		h.mu.Unlock()
		return
	}
	user := *h.user
	user.FollowingCount += delta
	if user.FollowingCount < 0 {
		user.FollowingCount = 0
	}
	h.user = &user
	h.mu.Unlock()

	userJSON, err := json.Marshal(&user)
	if err != nil {
		h.log.Warn("encode user record failed", zap.Error(err))
		return
	}
	if err := h.store.Set(storage.KeyUser, string(userJSON)); err != nil {
		h.log.Warn("persist user record failed", zap.Error(err))
	}
}

// UpdateUser merges a fresh user record into memory and the device store.
func (h *Holder) UpdateUser(user *models.User) error {
	userJSON, err := json.Marshal(user)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "ENCODE_ERROR", "encode user record")
	}
	if err := h.store.Set(storage.KeyUser, string(userJSON)); err != nil {
		return apperrors.StorageError("write", storage.KeyUser, err)
	}
	h.mu.Lock()
	h.user = user
	h.mu.Unlock()
	return nil
}

func (h *Holder) setAnonymous() {
	h.mu.Lock()
	h.state = Anonymous
	h.mu.Unlock()
}

// StateName returns the lifecycle phase as text.
func (h *Holder) StateName() string {
	return h.State().String()
}

// State returns the current lifecycle phase.
func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// User returns the authenticated user, or nil when anonymous.
func (h *Holder) User() *models.User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.user
}

// Channel returns the realtime channel for the current session, or nil
// when anonymous or the channel could not be built.
func (h *Holder) Channel() Channel {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.channel
}

// Session returns a copy of the current session.
func (h *Holder) Session() models.Session {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.session
}

// TokenExpiry inspects the access token's exp claim without verifying the
// signature (the backend owns verification). Zero time when the token is
// absent or not a JWT.
func (h *Holder) TokenExpiry() time.Time {
	h.mu.RLock()
	token := h.session.Token
	h.mu.RUnlock()
	return tokenExpiry(token)
}

func tokenExpiry(token string) time.Time {
	if token == "" {
		return time.Time{}
	}
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// RefreshIfExpiring renews the token pair when it expires within the
// window. No-op for anonymous sessions or non-JWT tokens.
func (h *Holder) RefreshIfExpiring(ctx context.Context, window time.Duration) error {
	h.mu.RLock()
	state := h.state
	refreshToken := h.session.RefreshToken
	h.mu.RUnlock()

	if state != Authenticated || refreshToken == "" {
		return nil
	}
	expiry := h.TokenExpiry()
	if expiry.IsZero() || time.Until(expiry) > window {
		return nil
	}

	resp, err := h.auth.Refresh(ctx, refreshToken)
	if err != nil {
		return err
	}
	_, err = h.install(ctx, resp)
	return err
}
