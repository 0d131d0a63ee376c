package solenoid

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry provides solenoid management with caching and thread safety.
// It wraps a Repository and adds an in-memory cache for fast lookups.
//
// The cache is populated on startup via RefreshCache() and kept in sync
// by cache-invalidating CRUD operations.
//
// All public methods are thread-safe.
type Registry struct {
	repo    Repository
	cache   map[string]*Solenoid // Cached solenoids by ID
	byRef   map[string]string    // switch_ref -> ID
	cacheMu sync.RWMutex         // Protects cache and byRef
	logger  Logger
}

// NewRegistry creates a new solenoid registry.
// The repository is used for persistence; the registry adds caching.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		cache:  make(map[string]*Solenoid),
		byRef:  make(map[string]string),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// RefreshCache reloads all solenoids from the repository into the cache.
// This should be called on application startup.
func (r *Registry) RefreshCache(ctx context.Context) error {
	solenoids, err := r.repo.List(ctx)
	if err != nil {
		return fmt.Errorf("loading solenoids: %w", err)
	}

	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.cache = make(map[string]*Solenoid, len(solenoids))
	r.byRef = make(map[string]string, len(solenoids))
	for i := range solenoids {
		s := solenoids[i]
		r.cache[s.ID] = s.DeepCopy()
		r.byRef[s.SwitchRef] = s.ID
	}

	r.logger.Info("solenoid cache refreshed", "count", len(solenoids))
	return nil
}

// Get retrieves a solenoid by ID.
// Returns ErrNotFound if the solenoid does not exist.
// The returned solenoid is a deep copy; callers can safely modify it.
func (r *Registry) Get(ctx context.Context, id string) (*Solenoid, error) {
	r.cacheMu.RLock()
	cached, ok := r.cache[id]
	r.cacheMu.RUnlock()

	if ok {
		return cached.DeepCopy(), nil
	}

	// Fall back to repository (might be a new solenoid not yet cached)
	s, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[id] = s.DeepCopy()
	r.byRef[s.SwitchRef] = s.ID
	r.cacheMu.Unlock()

	return s, nil
}

// GetBySwitchRef retrieves a solenoid by its MQTT switch reference.
// The returned solenoid is a deep copy; callers can safely modify it.
func (r *Registry) GetBySwitchRef(ctx context.Context, ref string) (*Solenoid, error) {
	r.cacheMu.RLock()
	id, ok := r.byRef[ref]
	var cached *Solenoid
	if ok {
		cached = r.cache[id]
	}
	r.cacheMu.RUnlock()

	if cached != nil {
		return cached.DeepCopy(), nil
	}

	s, err := r.repo.GetBySwitchRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	r.cacheMu.Lock()
	r.cache[s.ID] = s.DeepCopy()
	r.byRef[s.SwitchRef] = s.ID
	r.cacheMu.Unlock()

	return s, nil
}

// List retrieves all solenoids.
// The returned solenoids are deep copies; callers can safely modify them.
func (r *Registry) List(ctx context.Context) ([]Solenoid, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	if len(r.cache) > 0 {
		solenoids := make([]Solenoid, 0, len(r.cache))
		for _, s := range r.cache {
			solenoids = append(solenoids, *s.DeepCopy())
		}
		return solenoids, nil
	}

	return r.repo.List(ctx)
}

// Create creates a new solenoid.
// It validates the solenoid, generates an ID if needed, and persists it.
func (r *Registry) Create(ctx context.Context, s *Solenoid) error {
	if s.ID == "" {
		s.ID = GenerateID()
	}
	if s.ObservedState == "" {
		s.ObservedState = ValveStateUnknown
	}

	if err := Validate(s); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, s); err != nil {
		return err
	}

	r.cacheMu.Lock()
	r.cache[s.ID] = s.DeepCopy()
	r.byRef[s.SwitchRef] = s.ID
	r.cacheMu.Unlock()

	r.logger.Info("solenoid created", "id", s.ID, "name", s.Name, "switch_ref", s.SwitchRef)
	return nil
}

// Update updates an existing solenoid.
// It validates the solenoid and persists the changes.
func (r *Registry) Update(ctx context.Context, s *Solenoid) error {
	existing, err := r.Get(ctx, s.ID)
	if err != nil {
		return err
	}

	if err := Validate(s); err != nil {
		return err
	}

	if err := r.repo.Update(ctx, s); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if existing.SwitchRef != s.SwitchRef {
		delete(r.byRef, existing.SwitchRef)
	}
	r.cache[s.ID] = s.DeepCopy()
	r.byRef[s.SwitchRef] = s.ID
	r.cacheMu.Unlock()

	r.logger.Info("solenoid updated", "id", s.ID, "name", s.Name)
	return nil
}

// Delete removes a solenoid.
// Returns ErrInUse if a group or schedule still references it.
func (r *Registry) Delete(ctx context.Context, id string) error {
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		delete(r.byRef, cached.SwitchRef)
	}
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("solenoid deleted", "id", id)
	return nil
}

// DeleteCascade removes a solenoid together with its references:
// schedules targeting it are disabled and its group memberships
// removed.
func (r *Registry) DeleteCascade(ctx context.Context, id string) error {
	if err := r.repo.DeleteCascade(ctx, id); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		delete(r.byRef, cached.SwitchRef)
	}
	delete(r.cache, id)
	r.cacheMu.Unlock()

	r.logger.Info("solenoid deleted with references", "id", id)
	return nil
}

// SetObservedState records the latest valve state reported by the
// switch bridge. Optimised for frequent updates.
func (r *Registry) SetObservedState(ctx context.Context, id string, state ValveState) error {
	if err := r.repo.UpdateObservedState(ctx, id, state); err != nil {
		return err
	}

	// Replace the cache entry atomically so concurrent readers never
	// observe a half-updated solenoid.
	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.ObservedState = state
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Debug("valve state updated", "id", id, "state", state)
	return nil
}

// TouchLastCommand records the time of the last command sent to a valve.
func (r *Registry) TouchLastCommand(ctx context.Context, id string, at time.Time) error {
	if err := r.repo.TouchLastCommand(ctx, id, at); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		t := at.UTC()
		updated.LastCommandAt = &t
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	return nil
}

// Count returns the number of cached solenoids.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}
