package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"github.com/noah-isme/bde-portal/internal/dto"
	"github.com/noah-isme/bde-portal/internal/metrics"
	"github.com/noah-isme/bde-portal/internal/models"
	"github.com/noah-isme/bde-portal/internal/validation"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/storage"
)

type authAPI interface {
	Login(ctx context.Context, req dto.LoginRequest) (*dto.LoginResponse, error)
	Logout(ctx context.Context, tokens models.Tokens) error
	Register(ctx context.Context, req dto.RegisterRequest) (*models.User, error)
	RequestPasswordReset(ctx context.Context, req dto.PasswordResetRequest) (string, error)
	ConfirmPasswordReset(ctx context.Context, req dto.PasswordResetConfirmRequest) (string, error)
}

type lifecycle int

const (
	stateInit lifecycle = iota
	stateReady
	stateDisposed
)

// SessionService owns the signed-in user and their tokens, mirrored to persistent storage.
type SessionService struct {
	api       authAPI
	store     storage.Store
	validator *validation.Validator
	metrics   *metrics.Recorder
	logger    *zap.Logger

	// opMu serialises restore, login and logout so storage and memory move together.
	opMu sync.Mutex

	mu      sync.RWMutex
	state   lifecycle
	session models.Session
	tokens  models.Tokens
	muted   bool

	ready     chan struct{}
	readyOnce sync.Once
}

// NewSessionService constructs the service in the init state. Call Restore before reading it.
func NewSessionService(api authAPI, store storage.Store, validate *validation.Validator, recorder *metrics.Recorder, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validation.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		api:       api,
		store:     store,
		validator: validate,
		metrics:   recorder,
		logger:    logger,
		ready:     make(chan struct{}),
	}
}

// Restore loads the persisted session. It never contacts the API and never checks token
// expiry: a stored access token plus a decodable user record means signed in. The service
// becomes ready even when storage fails.
func (s *SessionService) Restore(ctx context.Context) error {
	if s.disposed() {
		return appErrors.ErrDisposed
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	var firstErr error
	read := func(key string) string {
		value, err := s.store.Get(ctx, key)
		if err != nil {
			if !errors.Is(err, storage.ErrNotFound) && firstErr == nil {
				firstErr = err
			}
			return ""
		}
		return value
	}

	access := read(storage.KeyAccessToken)
	refresh := read(storage.KeyRefreshToken)
	rawUser := read(storage.KeyUser)
	muted, _ := strconv.ParseBool(read(storage.KeyMuted))

	var session models.Session
	var tokens models.Tokens
	if access != "" && rawUser != "" {
		var user models.User
		if err := json.Unmarshal([]byte(rawUser), &user); err != nil {
			s.logger.Warn("stored user record is unreadable; starting signed out", zap.Error(err))
		} else {
			session = models.Session{User: &user}
			tokens = models.Tokens{Access: access, Refresh: refresh}
		}
	}

	s.mu.Lock()
	if s.state == stateDisposed {
		s.mu.Unlock()
		return appErrors.ErrDisposed
	}
	s.session = session
	s.tokens = tokens
	s.muted = muted
	s.state = stateReady
	s.mu.Unlock()

	s.metrics.SetAuthenticated(session.IsAuthenticated())
	s.markReady()

	if firstErr != nil {
		s.logger.Error("failed to restore session from storage", zap.Error(firstErr))
		return appErrors.Wrap(firstErr, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	s.logger.Debug("session restored", zap.Bool("authenticated", session.IsAuthenticated()))
	return nil
}

// Login signs in with email and password. On success storage is written first and then the
// in-memory session is replaced as a whole. On failure the previous session is kept.
func (s *SessionService) Login(ctx context.Context, form validation.LoginForm) (models.Session, error) {
	if s.disposed() {
		return models.Session{}, appErrors.ErrDisposed
	}
	if err := s.validator.Struct(form); err != nil {
		return models.Session{}, err
	}

	res, err := s.api.Login(ctx, form.Request())
	if err != nil {
		s.logger.Info("login rejected", zap.String("email", form.Email), zap.Error(err))
		return models.Session{}, loginError(err)
	}
	if res.Tokens.Access == "" || res.User.ID == "" {
		return models.Session{}, appErrors.Clone(appErrors.ErrInternal, "unexpected login response")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	prevSession, prevTokens := s.session, s.tokens
	s.mu.RUnlock()

	user := res.User
	if err := s.persist(ctx, res.Tokens, &user); err != nil {
		if rbErr := s.persist(ctx, prevTokens, prevSession.User); rbErr != nil {
			s.logger.Error("failed to roll back session storage", zap.Error(rbErr))
		}
		return models.Session{}, appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}

	s.mu.Lock()
	if s.state == stateDisposed {
		s.mu.Unlock()
		return models.Session{}, appErrors.ErrDisposed
	}
	s.session = models.Session{User: &user}
	s.tokens = res.Tokens
	current := s.copySession()
	s.mu.Unlock()

	s.metrics.SetAuthenticated(true)
	s.logger.Info("signed in", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return current, nil
}

// Logout revokes the refresh token when possible and always clears the session locally.
// Only storage failures are returned; API failures are logged.
func (s *SessionService) Logout(ctx context.Context) error {
	if s.disposed() {
		return appErrors.ErrDisposed
	}
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.RLock()
	tokens := s.tokens
	s.mu.RUnlock()

	if !tokens.Empty() || tokens.Refresh != "" {
		if err := s.api.Logout(ctx, tokens); err != nil {
			s.logger.Warn("remote logout failed; clearing local session anyway", zap.Error(err))
		}
	}

	s.mu.Lock()
	s.session = models.Session{}
	s.tokens = models.Tokens{}
	s.mu.Unlock()
	s.metrics.SetAuthenticated(false)

	if err := s.persist(ctx, models.Tokens{}, nil); err != nil {
		s.logger.Error("failed to clear stored session", zap.Error(err))
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	return nil
}

// Signup creates an account. It does not sign the user in.
func (s *SessionService) Signup(ctx context.Context, form validation.SignupForm) (*models.User, error) {
	if s.disposed() {
		return nil, appErrors.ErrDisposed
	}
	if err := s.validator.Struct(form); err != nil {
		return nil, err
	}
	return s.api.Register(ctx, form.Request())
}

// RequestPasswordReset sends a reset link to email and returns the API's acknowledgement.
func (s *SessionService) RequestPasswordReset(ctx context.Context, form validation.PasswordResetForm) (string, error) {
	if s.disposed() {
		return "", appErrors.ErrDisposed
	}
	if err := s.validator.Struct(form); err != nil {
		return "", err
	}
	return s.api.RequestPasswordReset(ctx, dto.PasswordResetRequest{Email: form.Email})
}

// ConfirmPasswordReset sets a new password with the emailed token.
func (s *SessionService) ConfirmPasswordReset(ctx context.Context, form validation.PasswordResetConfirmForm) (string, error) {
	if s.disposed() {
		return "", appErrors.ErrDisposed
	}
	if err := s.validator.Struct(form); err != nil {
		return "", err
	}
	return s.api.ConfirmPasswordReset(ctx, form.Request())
}

// Current returns a copy of the session.
func (s *SessionService) Current() models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.copySession()
}

func (s *SessionService) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.IsAuthenticated()
}

func (s *SessionService) Role() models.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Role()
}

// IsReady reports whether Restore has completed and the service is not disposed.
func (s *SessionService) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateReady
}

// Ready is closed once Restore completes or the service is disposed.
func (s *SessionService) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until Ready is closed or ctx ends.
func (s *SessionService) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		if s.disposed() {
			return appErrors.ErrDisposed
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AccessToken makes the service the HTTP client's bearer source.
func (s *SessionService) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens.Access
}

// Muted is the persisted audio preference.
func (s *SessionService) Muted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.muted
}

// SetMuted stores the audio preference. It needs a restored session so a later Restore
// cannot overwrite it.
func (s *SessionService) SetMuted(ctx context.Context, muted bool) error {
	s.mu.RLock()
	state := s.state
	s.mu.RUnlock()
	switch state {
	case stateDisposed:
		return appErrors.ErrDisposed
	case stateInit:
		return appErrors.ErrNotReady
	}

	if err := s.store.Set(ctx, storage.KeyMuted, strconv.FormatBool(muted)); err != nil {
		return appErrors.Wrap(err, appErrors.ErrStorage.Code, appErrors.ErrStorage.Status, appErrors.ErrStorage.Message)
	}
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	return nil
}

// Dispose ends the lifecycle. Later calls fail with ErrDisposed.
func (s *SessionService) Dispose() {
	s.mu.Lock()
	s.state = stateDisposed
	s.mu.Unlock()
	s.markReady()
}

func (s *SessionService) disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateDisposed
}

func (s *SessionService) markReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// copySession must be called with mu held.
func (s *SessionService) copySession() models.Session {
	if s.session.User == nil {
		return models.Session{}
	}
	user := *s.session.User
	return models.Session{User: &user}
}

// persist writes tokens and user, or removes the keys when user is nil.
func (s *SessionService) persist(ctx context.Context, tokens models.Tokens, user *models.User) error {
	if user == nil || tokens.Empty() {
		var errs []error
		for _, key := range []string{storage.KeyAccessToken, storage.KeyRefreshToken, storage.KeyUser} {
			if err := s.store.Remove(ctx, key); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	if err := s.store.Set(ctx, storage.KeyAccessToken, tokens.Access); err != nil {
		return err
	}
	if tokens.Refresh != "" {
		if err := s.store.Set(ctx, storage.KeyRefreshToken, tokens.Refresh); err != nil {
			return err
		}
	} else if err := s.store.Remove(ctx, storage.KeyRefreshToken); err != nil {
		return err
	}
	return s.store.Set(ctx, storage.KeyUser, string(raw))
}

func loginError(err error) error {
	base := appErrors.FromError(err)
	out := appErrors.Clone(base, appErrors.UserMessage(err, appErrors.ErrInvalidCredentials.Message))
	if base.Status == appErrors.ErrUnauthorized.Status {
		out.Code = appErrors.ErrInvalidCredentials.Code
	}
	return out
}
