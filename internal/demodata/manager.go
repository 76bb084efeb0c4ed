// Package demodata seeds a cross-referenced synthetic dataset into the
// document store and tears it down again by its demo tag.
package demodata

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"brandhub.dev/demodata/internal/audit"
	"brandhub.dev/demodata/internal/docstore"
	"brandhub.dev/demodata/internal/ids"
	"brandhub.dev/demodata/internal/obs"
	"brandhub.dev/demodata/internal/runlock"
)

const (
	// LockKey is shared by seed and reset so only one run is in flight.
	LockKey = "demodata:run"

	DefaultThreshold = 450
	// DefaultLockTTL bounds a single stage or teardown collection; the lease is
	// renewed for another TTL as each one starts.
	DefaultLockTTL = 10 * time.Minute
)

// SeedOptions customizes a seed run.
type SeedOptions struct {
	// BrandManagerID adopts an existing user instead of provisioning one.
	BrandManagerID string `json:"brand_manager_id,omitempty"`
	// StaffIDs adopt existing users for staff fixtures by position; empty entries are provisioned.
	StaffIDs []string `json:"staff_ids,omitempty"`
	// Features overrides the manager's optional stages when set.
	Features *Features `json:"features,omitempty"`
}

// Report summarizes a seed run. It is returned alongside errors too.
type Report struct {
	RunID        string         `json:"run_id"`
	Counts       map[string]int `json:"counts"`
	States       []State        `json:"states"`
	Placeholders []string       `json:"placeholders,omitempty"`
	Identities   []Identity     `json:"-"`
}

// ResetReport summarizes a reset run.
type ResetReport struct {
	RunID   string         `json:"run_id"`
	Deleted map[string]int `json:"deleted"`
	States  []State        `json:"states"`
}

// Manager runs seed and reset against one document store.
type Manager struct {
	store       docstore.Store
	sessions    Sessions
	locker      runlock.Locker
	dataset     *Dataset
	threshold   int
	parallelism int
	lockTTL     time.Duration
	features    Features
	roles       []string
	now         func() time.Time
	log         *zap.Logger
}

// Option configures Manager.
type Option func(*Manager)

func WithDataset(ds *Dataset) Option { return func(m *Manager) { m.dataset = ds } }

// WithThreshold sets the batch flush threshold; it must stay below the store ceiling.
func WithThreshold(n int) Option { return func(m *Manager) { m.threshold = n } }

func WithLocker(l runlock.Locker) Option { return func(m *Manager) { m.locker = l } }

func WithLockTTL(d time.Duration) Option { return func(m *Manager) { m.lockTTL = d } }

func WithFeatures(f Features) Option { return func(m *Manager) { m.features = f } }

func WithElevatedRoles(roles ...string) Option { return func(m *Manager) { m.roles = roles } }

func WithTeardownParallelism(n int) Option { return func(m *Manager) { m.parallelism = n } }

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager validates configuration and loads the default dataset unless one is given.
func NewManager(store docstore.Store, sessions Sessions, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, errors.New("demodata: document store is required")
	}
	if sessions == nil {
		return nil, errors.New("demodata: identity sessions are required")
	}
	m := &Manager{
		store:       store,
		sessions:    sessions,
		locker:      runlock.NewLocalLocker(),
		threshold:   DefaultThreshold,
		parallelism: DefaultTeardownParallelism,
		lockTTL:     DefaultLockTTL,
		roles:       DefaultElevatedRoles,
		now:         time.Now,
		log:         obs.Logger().Named("demodata"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.threshold <= 0 || m.threshold >= store.MaxBatchOps() {
		return nil, fmt.Errorf("%w: threshold %d, ceiling %d", ErrInvalidThreshold, m.threshold, store.MaxBatchOps())
	}
	if m.dataset == nil {
		ds, err := DefaultDataset()
		if err != nil {
			return nil, err
		}
		m.dataset = ds
	} else if err := m.dataset.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// Seed provisions identities and runs the stage pipeline.
func (m *Manager) Seed(ctx context.Context, operatorID string, opts SeedOptions) (*Report, error) {
	start := m.now()
	rep := &Report{RunID: ids.RunID(), Counts: map[string]int{}}
	log := m.log.With(zap.String("run_id", rep.RunID), zap.String("kind", "seed"))
	ctx = audit.WithOperator(ctx, operatorID)

	lease, err := m.locker.Acquire(ctx, LockKey, m.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer m.release(ctx, lease, log)

	sm := newMachine(m.now)
	err = m.seed(ctx, operatorID, opts, lease, sm, rep, log)
	rep.States = sm.states()
	m.finish(ctx, "seed", start, err, log, map[string]any{"run_id": rep.RunID, "counts": rep.Counts})
	return rep, err
}

func (m *Manager) seed(ctx context.Context, operatorID string, opts SeedOptions, lease *runlock.Lease, sm *machine, rep *Report, log *zap.Logger) error {
	_ = sm.to(PhasePreflight, "")
	pf := newPreflight(m.store, m.roles, m.now, log)
	if err := pf.CheckWrite(ctx, operatorID); err != nil {
		sm.fail(string(PhasePreflight), err)
		return err
	}

	_ = sm.to(PhaseProvisioning, "")
	session, err := NewBatchSession(m.store, m.threshold, log)
	if err != nil {
		sm.fail(string(PhaseProvisioning), err)
		return err
	}
	run := &seedRun{
		id:         rep.RunID,
		operatorID: operatorID,
		now:        m.now().UTC(),
		ds:         m.dataset,
		store:      m.store,
		session:    session,
		refs:       newRefTable(),
	}
	if err := m.provision(ctx, run, opts, rep, log); err != nil {
		sm.fail(string(PhaseProvisioning), err)
		return err
	}

	features := m.features
	if opts.Features != nil {
		features = *opts.Features
	}
	defer func() {
		for entity, n := range session.Counts() {
			rep.Counts[entity] = n
		}
	}()
	for _, st := range pipeline {
		if !st.enabled(features) {
			continue
		}
		_ = sm.to(PhaseStage, st.name)
		if err := lease.Extend(ctx, m.lockTTL); err != nil {
			err = fmt.Errorf("renew run lock before %s: %w", st.name, err)
			sm.fail(st.name, err)
			return err
		}
		log.Info("stage started", zap.String("stage", st.name))
		session.Begin(st.name)

		publish, err := st.run(ctx, run)
		if err == nil {
			err = session.FlushFinal(ctx)
		}
		if err != nil {
			err = asStageError(st.name, err)
			log.Error("stage failed", zap.String("stage", st.name), zap.Error(err))
			sm.fail(st.name, err)
			return err
		}
		publish()
		log.Info("stage finished", zap.String("stage", st.name), zap.Int("commits", len(session.Commits())))
	}
	for entity, n := range session.Counts() {
		obs.DocumentsWritten.WithLabelValues(entity).Add(float64(n))
	}
	return sm.to(PhaseDone, "")
}

// provision resolves the brand manager and staff identities for run.
func (m *Manager) provision(ctx context.Context, run *seedRun, opts SeedOptions, rep *Report, log *zap.Logger) error {
	ds := run.ds
	var specs []IdentitySpec
	if opts.BrandManagerID == "" {
		specs = append(specs, ds.BrandManager)
	}
	run.staff = make([]resolvedUser, len(ds.Staff))
	for i, s := range ds.Staff {
		if i < len(opts.StaffIDs) && opts.StaffIDs[i] != "" {
			run.staff[i] = resolvedUser{
				UserRef:  UserRef{ID: opts.StaffIDs[i], Email: s.Email, DisplayName: s.DisplayName},
				External: true,
			}
			continue
		}
		specs = append(specs, s.IdentitySpec)
	}

	got, err := newProvisioner(m.sessions, log).Provision(ctx, run.id, specs)
	if err != nil {
		return err
	}
	rep.Identities = got

	next := 0
	take := func() Identity {
		id := got[next]
		next++
		if id.Placeholder() {
			rep.Placeholders = append(rep.Placeholders, id.ExternalID)
		}
		return id
	}
	if opts.BrandManagerID != "" {
		run.manager = resolvedUser{
			UserRef:  UserRef{ID: opts.BrandManagerID, Email: ds.BrandManager.Email, DisplayName: ds.BrandManager.DisplayName},
			External: true,
		}
	} else {
		id := take()
		run.manager = resolvedUser{UserRef: UserRef{ID: id.ExternalID, Email: id.Email, DisplayName: id.DisplayName, Placeholder: id.Placeholder()}}
	}
	for i := range run.staff {
		if run.staff[i].External {
			continue
		}
		id := take()
		run.staff[i] = resolvedUser{UserRef: UserRef{ID: id.ExternalID, Email: id.Email, DisplayName: id.DisplayName, Placeholder: id.Placeholder()}}
	}
	return nil
}

// Reset removes demo-tagged documents from every demo collection.
func (m *Manager) Reset(ctx context.Context, operatorID string) (*ResetReport, error) {
	return m.ResetCollections(ctx, operatorID, Collections()...)
}

// ResetCollections removes demo-tagged documents from the named demo collections only.
func (m *Manager) ResetCollections(ctx context.Context, operatorID string, names ...string) (*ResetReport, error) {
	known := Collections()
	var targets []string
	for _, n := range names {
		if !slices.Contains(known, n) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, n)
		}
		if !slices.Contains(targets, n) {
			targets = append(targets, n)
		}
	}

	start := m.now()
	rep := &ResetReport{RunID: ids.RunID(), Deleted: map[string]int{}}
	log := m.log.With(zap.String("run_id", rep.RunID), zap.String("kind", "reset"))
	ctx = audit.WithOperator(ctx, operatorID)

	lease, err := m.locker.Acquire(ctx, LockKey, m.lockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer m.release(ctx, lease, log)

	sm := newMachine(m.now)
	err = m.reset(ctx, operatorID, targets, lease, sm, rep, log)
	rep.States = sm.states()
	m.finish(ctx, "reset", start, err, log, map[string]any{"run_id": rep.RunID, "deleted": rep.Deleted})
	return rep, err
}

func (m *Manager) reset(ctx context.Context, operatorID string, targets []string, lease *runlock.Lease, sm *machine, rep *ResetReport, log *zap.Logger) error {
	_ = sm.to(PhasePreflight, "")
	pf := newPreflight(m.store, m.roles, m.now, log)
	if err := pf.CheckDelete(ctx, operatorID, targets); err != nil {
		sm.fail(string(PhasePreflight), err)
		return err
	}

	td := newTeardown(m.store, m.threshold, m.parallelism, log)
	deleted, err := td.Run(ctx, targets, func(name string) {
		_ = sm.to(PhaseTeardown, name)
		if err := lease.Extend(ctx, m.lockTTL); err != nil {
			log.Warn("renew run lock", zap.String("collection", name), zap.Error(err))
		}
	})
	rep.Deleted = deleted
	if err != nil {
		name := ""
		var tce *TeardownCollectionError
		if errors.As(err, &tce) {
			name = tce.Collection
		}
		sm.fail(name, err)
		return err
	}
	return sm.to(PhaseDone, "")
}

func (m *Manager) release(ctx context.Context, lease *runlock.Lease, log *zap.Logger) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		log.Warn("release run lock", zap.Error(err))
	}
}

func (m *Manager) finish(ctx context.Context, kind string, start time.Time, err error, log *zap.Logger, fields map[string]any) {
	result := "ok"
	if err != nil {
		result = "error"
		fields["error"] = err.Error()
	}
	obs.RunDuration.WithLabelValues(kind, result).Observe(m.now().Sub(start).Seconds())
	if err != nil {
		log.Error("run failed", zap.Error(err))
	} else {
		log.Info("run completed")
	}
	if aerr := audit.LogEvent(ctx, "demodata."+kind+"."+result, fields); aerr != nil {
		log.Warn("audit log failed", zap.Error(aerr))
	}
}
