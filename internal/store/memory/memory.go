// Package memory is an in-process LedgerStore used by the memory backend and by tests.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"saldo/internal/core"
	"saldo/internal/store"
)

// ErrInjected is returned by operations armed with a fault.
var ErrInjected = errors.New("injected failure")

type fetchKey struct {
	date string
	kind core.SourceKind
}

type Store struct {
	mu        sync.Mutex
	movements map[fetchKey][]core.MovementRecord
	balances  map[string]core.DailyBalanceRecord
	snapshots []core.ObservedBalanceSnapshot
	billing   []core.BillingTotal
	jobs      map[string]core.RecalcJob
	openings  map[string]core.ApplicationOpening

	failFetch  map[fetchKey]error
	failUpsert map[string]error
	calls      int
	upserts    int
	now        func() time.Time
}

var (
	_ store.LedgerStore       = (*Store)(nil)
	_ store.MovementWriter    = (*Store)(nil)
	_ store.ObservationWriter = (*Store)(nil)
	_ store.JobStore          = (*Store)(nil)
	_ store.ApplicationSource = (*Store)(nil)
)

func New() *Store {
	return &Store{
		movements:  map[fetchKey][]core.MovementRecord{},
		balances:   map[string]core.DailyBalanceRecord{},
		jobs:       map[string]core.RecalcJob{},
		openings:   map[string]core.ApplicationOpening{},
		failFetch:  map[fetchKey]error{},
		failUpsert: map[string]error{},
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// SetClock replaces the timestamp source used for created_at/updated_at.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailFetch makes FetchMovements fail for the given date and kind.
func (s *Store) FailFetch(date core.Date, kind core.SourceKind, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	s.failFetch[fetchKey{date.String(), kind}] = err
}

// FailUpsert makes UpsertBalanceRecord fail for the given date.
func (s *Store) FailUpsert(date core.Date, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = ErrInjected
	}
	s.failUpsert[date.String()] = err
}

// ClearFaults disarms every injected failure.
func (s *Store) ClearFaults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFetch = map[fetchKey]error{}
	s.failUpsert = map[string]error{}
}

// Calls counts every port invocation.
func (s *Store) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Upserts counts successful balance writes.
func (s *Store) Upserts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func (s *Store) AppendMovements(_ context.Context, ms ...core.MovementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range ms {
		if err := m.Validate(); err != nil {
			return err
		}
		k := fetchKey{m.Date.String(), m.SourceKind}
		s.movements[k] = append(s.movements[k], m)
	}
	return nil
}

func (s *Store) RecordSnapshot(_ context.Context, snap core.ObservedBalanceSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots = append(s.snapshots, snap)
	return nil
}

func (s *Store) RecordBillingTotal(_ context.Context, b core.BillingTotal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.billing = append(s.billing, b)
	return nil
}

// PutBalance stores a record as-is, bypassing timestamps and fault injection.
func (s *Store) PutBalance(rec core.DailyBalanceRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[rec.Date.String()] = rec
}

// Balances returns every stored record in date order.
func (s *Store) Balances() []core.DailyBalanceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(core.DailyBalanceRecord) bool { return true })
}

func (s *Store) FetchMovements(_ context.Context, date core.Date, kind core.SourceKind) ([]core.MovementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	k := fetchKey{date.String(), kind}
	if err := s.failFetch[k]; err != nil {
		return nil, err
	}
	return append([]core.MovementRecord(nil), s.movements[k]...), nil
}

// FetchMovementRange honours FailFetch for any date inside rng.
func (s *Store) FetchMovementRange(_ context.Context, rng core.DateRange, kind core.SourceKind) ([]core.MovementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []core.MovementRecord
	for _, d := range rng.Days() {
		k := fetchKey{d.String(), kind}
		if err := s.failFetch[k]; err != nil {
			return nil, err
		}
		out = append(out, s.movements[k]...)
	}
	return out, nil
}

func (s *Store) FetchBalanceRecord(_ context.Context, date core.Date) (*core.DailyBalanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	rec, ok := s.balances[date.String()]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (s *Store) FetchLatestBalanceBefore(_ context.Context, date core.Date) (*core.DailyBalanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	recs := s.sortedLocked(func(r core.DailyBalanceRecord) bool { return r.Date.Before(date.Time) })
	if len(recs) == 0 {
		return nil, nil
	}
	return &recs[len(recs)-1], nil
}

func (s *Store) FetchBalanceRange(_ context.Context, rng core.DateRange) ([]core.DailyBalanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.sortedLocked(func(r core.DailyBalanceRecord) bool { return rng.Contains(r.Date) }), nil
}

func (s *Store) UpsertBalanceRecord(_ context.Context, rec core.DailyBalanceRecord, preserveCreatedAt bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	key := rec.Date.String()
	if err := s.failUpsert[key]; err != nil {
		return err
	}
	now := s.now()
	existing, ok := s.balances[key]
	switch {
	case ok && preserveCreatedAt:
		rec.CreatedAt = existing.CreatedAt
	case !ok && rec.CreatedAt.IsZero():
		rec.CreatedAt = now
	case ok && rec.CreatedAt.IsZero():
		rec.CreatedAt = existing.CreatedAt
	}
	rec.UpdatedAt = now
	s.balances[key] = rec
	s.upserts++
	return nil
}

func (s *Store) FetchObservedBalances(_ context.Context, rng core.DateRange) ([]core.ObservedBalanceSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []core.ObservedBalanceSnapshot
	for _, snap := range s.snapshots {
		if rng.Contains(snap.Date) {
			out = append(out, snap)
		}
	}
	return out, nil
}

func (s *Store) FetchBillingTotals(_ context.Context, rng core.DateRange) ([]core.BillingTotal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var out []core.BillingTotal
	for _, b := range s.billing {
		if rng.Contains(b.Date) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) CreateJob(_ context.Context, job core.RecalcJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.ID]; ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	now := s.now()
	job.CreatedAt, job.UpdatedAt = now, now
	if job.Status == "" {
		job.Status = core.JobPending
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) GetJob(_ context.Context, id string) (*core.RecalcJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &job, nil
}

func (s *Store) UpdateJobStatus(_ context.Context, id string, status core.JobStatus, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	job.Status = status
	job.Error = errMsg
	job.UpdatedAt = s.now()
	s.jobs[id] = job
	return nil
}

func (s *Store) ListPendingJobs(_ context.Context) ([]core.RecalcJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecalcJob
	for _, j := range s.jobs {
		if j.Status == core.JobPending {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListStaleRunningJobs(_ context.Context, before time.Time) ([]core.RecalcJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.RecalcJob
	for _, j := range s.jobs {
		if j.Status == core.JobRunning && j.UpdatedAt.Before(before) {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RecordApplicationOpening(_ context.Context, o core.ApplicationOpening) error {
	if err := o.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openings[o.Date.String()] = o
	return nil
}

func (s *Store) FetchEarliestApplicationOpening(_ context.Context) (*core.ApplicationOpening, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	var earliest *core.ApplicationOpening
	for _, o := range s.openings {
		if earliest == nil || o.Date.Before(earliest.Date.Time) {
			o := o
			earliest = &o
		}
	}
	return earliest, nil
}

func (s *Store) sortedLocked(keep func(core.DailyBalanceRecord) bool) []core.DailyBalanceRecord {
	out := make([]core.DailyBalanceRecord, 0, len(s.balances))
	for _, r := range s.balances {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date.Time) })
	return out
}
