package service

import (
	"context"
	"log/slog"
	"sync"

	"github.com/evehealth/eve-auth-service/internal/credential"
	"github.com/evehealth/eve-auth-service/internal/domain"
	"github.com/evehealth/eve-auth-service/internal/observability"
	"github.com/evehealth/eve-auth-service/internal/provider"
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Navigator is the UI navigation surface the reconciler drives on auth
// transitions. The HTTP layer satisfies it with redirects.
type Navigator interface {
	CurrentPath() string
	NavigateTo(path string)
}

// State is the reconciler's answer to "who is the current user". Snapshots
// are replaced whole; readers never observe a partial transition.
type State struct {
	User      *domain.User
	Session   *domain.Session
	Loading   bool
	IsAdmin   bool
	AdminData *domain.AdminUser
}

// SessionReconciler reconciles three evidence sources, in precedence order:
// the credential cache, the provider's live session, and a one-shot token
// refresh. It is the single writer of auth state for the process.
type SessionReconciler struct {
	provider provider.IdentityProvider
	store    credential.Store
	verifier AccessVerifier
	nav      Navigator
	logger   *slog.Logger

	mu          sync.Mutex
	state       State
	subscribers map[int]func(State)
	nextSubID   int
	unsubscribe func()
}

func NewSessionReconciler(p provider.IdentityProvider, store credential.Store, verifier AccessVerifier, nav Navigator, logger *slog.Logger) *SessionReconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionReconciler{
		provider:    p,
		store:       store,
		verifier:    verifier,
		nav:         nav,
		logger:      logger,
		subscribers: map[int]func(State){},
	}
}

// Init subscribes to provider auth events and runs the first reconciliation.
// Calling Init twice does not double-subscribe.
func (r *SessionReconciler) Init(ctx context.Context) {
	r.mu.Lock()
	if r.unsubscribe == nil {
		r.unsubscribe = r.provider.OnAuthStateChange(func(event provider.AuthEvent, session *domain.Session) {
			r.handleAuthEvent(context.Background(), event, session)
		})
	}
	r.mu.Unlock()

	r.RefreshSession(ctx)
}

// Teardown releases the provider subscription and drops local subscribers.
func (r *SessionReconciler) Teardown() {
	r.mu.Lock()
	unsub := r.unsubscribe
	r.unsubscribe = nil
	r.subscribers = map[int]func(State){}
	r.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// State returns the current snapshot.
func (r *SessionReconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Subscribe registers fn for every committed snapshot. The returned func
// unsubscribes.
func (r *SessionReconciler) Subscribe(fn func(State)) func() {
	r.mu.Lock()
	id := r.nextSubID
	r.nextSubID++
	r.subscribers[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subscribers, id)
		r.mu.Unlock()
	}
}

// SignIn authenticates against the provider and verifies dashboard access.
// Provider and verification errors are returned for the login view to show;
// a verification failure also tears the session down everywhere.
func (r *SessionReconciler) SignIn(ctx context.Context, email, password string) (State, error) {
	r.commit(func(s *State) { s.Loading = true })

	sess, err := r.provider.SignInWithPassword(ctx, email, password)
	if err != nil {
		observability.RecordAuthEvent(ctx, "sign_in", "error")
		return r.commit(func(s *State) { *s = State{} }), err
	}

	if err := r.store.Store(ctx, sess.AccessToken, sess.User); err != nil {
		r.logger.Warn("credential store failed", "error", err)
	}

	admin, err := r.verifier.VerifyAdminAccess(ctx, sess.User.ID)
	if err != nil {
		observability.RecordAuthEvent(ctx, "sign_in", "denied")
		r.SignOut(ctx)
		return r.State(), err
	}

	observability.RecordAuthEvent(ctx, "sign_in", "success")
	user := sess.User
	return r.commit(func(s *State) {
		*s = State{User: &user, Session: sess, IsAdmin: true, AdminData: admin}
	}), nil
}

// SignOut tells the provider best-effort, then unconditionally clears the
// credential cache and local state. Local state is the authority.
func (r *SessionReconciler) SignOut(ctx context.Context) {
	if err := r.provider.SignOut(ctx); err != nil {
		r.logger.Warn("provider sign-out failed", "error", err)
	}
	if err := r.store.Clear(ctx); err != nil {
		r.logger.Warn("credential clear failed", "error", err)
	}
	r.commit(func(s *State) { *s = State{} })
	observability.RecordAuthEvent(ctx, "sign_out", "success")
}

// RefreshSession runs the reconciliation algorithm: cached credential fast
// path, then the provider's live session, then a single bounded token
// refresh. Every terminal path ends with Loading false.
func (r *SessionReconciler) RefreshSession(ctx context.Context) {
	r.refresh(ctx, true)
}

func (r *SessionReconciler) refresh(ctx context.Context, retryAllowed bool) {
	r.commit(func(s *State) { s.Loading = true })

	cached, err := r.store.Load(ctx)
	if err != nil {
		r.logger.Warn("credential load failed", "error", err)
	}
	if cached.IsValid {
		admin, verr := r.verifier.VerifyAdminAccess(ctx, cached.User.ID)
		if verr == nil {
			user := cached.User
			r.commit(func(s *State) {
				*s = State{
					User:      &user,
					Session:   &domain.Session{AccessToken: cached.Token, User: user},
					IsAdmin:   true,
					AdminData: admin,
				}
			})
			return
		}
		// Cached identity no longer passes; re-check against the provider.
		r.logger.Info("cached credential failed verification", "user_id", cached.User.ID, "reason", verr)
	}

	sess, err := r.provider.GetSession(ctx)
	if err != nil {
		r.logger.Warn("provider session lookup failed", "error", err)
		r.commit(func(s *State) { *s = State{} })
		return
	}
	if sess != nil {
		r.adoptSession(ctx, sess)
		return
	}

	if !retryAllowed {
		r.commit(func(s *State) { *s = State{} })
		return
	}

	refreshed, err := r.provider.RefreshSession(ctx)
	if err != nil {
		r.logger.Warn("token refresh failed", "error", err)
	}
	if err != nil || refreshed == nil {
		r.commit(func(s *State) { *s = State{} })
		return
	}
	if err := r.store.Store(ctx, refreshed.AccessToken, refreshed.User); err != nil {
		r.logger.Warn("credential store failed", "error", err)
	}
	r.refresh(ctx, false)
}

func (r *SessionReconciler) adoptSession(ctx context.Context, sess *domain.Session) {
	if err := r.store.Store(ctx, sess.AccessToken, sess.User); err != nil {
		r.logger.Warn("credential store failed", "error", err)
	}

	admin, err := r.verifier.VerifyAdminAccess(ctx, sess.User.ID)
	if err != nil {
		// Never leave a half-authenticated state behind.
		r.logger.Info("signing out after failed verification", "user_id", sess.User.ID, "reason", err)
		r.SignOut(ctx)
		return
	}

	user := sess.User
	r.commit(func(s *State) {
		*s = State{User: &user, Session: sess, IsAdmin: true, AdminData: admin}
	})
}

func (r *SessionReconciler) handleAuthEvent(ctx context.Context, event provider.AuthEvent, sess *domain.Session) {
	switch event {
	case provider.EventSignedIn:
		if sess == nil {
			return
		}
		admin, err := r.verifier.VerifyAdminAccess(ctx, sess.User.ID)
		if err != nil {
			r.logger.Info("sign-in event failed verification", "user_id", sess.User.ID, "reason", err)
			r.SignOut(ctx)
			r.navigateTo(LoginPath)
			return
		}
		if err := r.store.Store(ctx, sess.AccessToken, sess.User); err != nil {
			r.logger.Warn("credential store failed", "error", err)
		}
		user := sess.User
		r.commit(func(s *State) {
			*s = State{User: &user, Session: sess, IsAdmin: true, AdminData: admin}
		})
		if r.nav != nil && r.nav.CurrentPath() == LoginPath {
			r.nav.NavigateTo(DashboardPath)
		}

	case provider.EventSignedOut:
		if err := r.store.Clear(ctx); err != nil {
			r.logger.Warn("credential clear failed", "error", err)
		}
		r.commit(func(s *State) { *s = State{} })
		r.navigateTo(LoginPath)

	case provider.EventTokenRefreshed:
		if sess == nil {
			return
		}
		if err := r.store.Store(ctx, sess.AccessToken, sess.User); err != nil {
			r.logger.Warn("credential store failed", "error", err)
		}
		user := sess.User
		r.commit(func(s *State) {
			s.User = &user
			s.Session = sess
			s.Loading = false
		})
	}
}

// navigateTo redirects unless the UI is already on the target path.
func (r *SessionReconciler) navigateTo(path string) {
	if r.nav == nil || r.nav.CurrentPath() == path {
		return
	}
	r.nav.NavigateTo(path)
}

// commit applies mutate to a copy of the snapshot, installs it, and fans it
// out to subscribers outside the lock.
func (r *SessionReconciler) commit(mutate func(*State)) State {
	r.mu.Lock()
	next := r.state
	mutate(&next)
	r.state = next
	subs := make([]func(State), 0, len(r.subscribers))
	for _, fn := range r.subscribers {
		subs = append(subs, fn)
	}
	r.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next
}
