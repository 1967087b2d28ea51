package cissync

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// fakeStore is an in-memory Store for hermetic engine tests. It does not
// implement TypeChangeRecorder; fakeRecorderStore adds that capability.
type fakeStore struct {
	mu sync.Mutex

	regions    map[string]*Region
	branches   map[string]*Branch
	statuses   map[string]*InstallationStatus
	types      map[string]*InstallationType
	meterSizes map[string]*MeterSize
	customers  map[string]*Customer
	requests   map[string]*InstallationRequest
	holidays   map[string]*Holiday
	runs       map[uuid.UUID]*SyncRun
	provisions []AutoProvision

	nextID int64

	// error injection
	onCreateCustomer func(*Customer) error // runs before the insert
	createHolidayErr error
	progressErr      error
	// duplicate-race injection: CreateBranch inserts the row but reports
	// ErrDuplicateKey, as if a concurrent writer won the insert.
	branchRace bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		regions:    make(map[string]*Region),
		branches:   make(map[string]*Branch),
		statuses:   make(map[string]*InstallationStatus),
		types:      make(map[string]*InstallationType),
		meterSizes: make(map[string]*MeterSize),
		customers:  make(map[string]*Customer),
		requests:   make(map[string]*InstallationRequest),
		holidays:   make(map[string]*Holiday),
		runs:       make(map[uuid.UUID]*SyncRun),
	}
}

func (f *fakeStore) nid() int64 {
	f.nextID++
	return f.nextID
}

func dayKey(t time.Time) string { return t.Format("2006-01-02") }

func (f *fakeStore) GetRegionByCode(_ context.Context, code string) (*Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.regions[code]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) GetBranchByBACode(_ context.Context, baCode string) (*Branch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.branches[baCode]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateBranch(_ context.Context, b *Branch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.branches[b.BACode]; ok {
		return ErrDuplicateKey
	}
	b.ID = f.nid()
	cp := *b
	f.branches[b.BACode] = &cp
	if f.branchRace {
		f.branchRace = false
		return ErrDuplicateKey
	}
	return nil
}

func (f *fakeStore) GetInstallationStatusByCode(_ context.Context, code string) (*InstallationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[code]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateInstallationStatus(_ context.Context, s *InstallationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.statuses[s.Code]; ok {
		return ErrDuplicateKey
	}
	s.ID = f.nid()
	cp := *s
	f.statuses[s.Code] = &cp
	return nil
}

func (f *fakeStore) GetInstallationTypeByCode(_ context.Context, code string) (*InstallationType, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if t, ok := f.types[code]; ok {
		cp := *t
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateInstallationType(_ context.Context, t *InstallationType) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.types[t.Code]; ok {
		return ErrDuplicateKey
	}
	t.ID = f.nid()
	cp := *t
	f.types[t.Code] = &cp
	return nil
}

func (f *fakeStore) GetMeterSizeByCode(_ context.Context, code string) (*MeterSize, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := f.meterSizes[code]; ok {
		cp := *m
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateMeterSize(_ context.Context, m *MeterSize) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.meterSizes[m.Code]; ok {
		return ErrDuplicateKey
	}
	m.ID = f.nid()
	cp := *m
	f.meterSizes[m.Code] = &cp
	return nil
}

func (f *fakeStore) RecordAutoProvision(_ context.Context, ap AutoProvision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.provisions = append(f.provisions, ap)
	return nil
}

func (f *fakeStore) GetCustomerByOriginalID(_ context.Context, originalID string) (*Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.customers[originalID]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateCustomer(_ context.Context, c *Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onCreateCustomer != nil {
		if err := f.onCreateCustomer(c); err != nil {
			return err
		}
	}
	if _, ok := f.customers[c.OriginalID]; ok {
		return ErrDuplicateKey
	}
	c.ID = f.nid()
	if c.TypeHistory == nil {
		c.TypeHistory = json.RawMessage(`[]`)
	}
	cp := *c
	f.customers[c.OriginalID] = &cp
	return nil
}

func (f *fakeStore) UpdateCustomer(_ context.Context, c *Customer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *c
	f.customers[c.OriginalID] = &cp
	return nil
}

func (f *fakeStore) GetRequestByNo(_ context.Context, requestNo string) (*InstallationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.requests[requestNo]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateRequest(_ context.Context, r *InstallationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requests[r.RequestNo]; ok {
		return ErrDuplicateKey
	}
	r.ID = f.nid()
	cp := *r
	f.requests[r.RequestNo] = &cp
	return nil
}

func (f *fakeStore) UpdateRequest(_ context.Context, r *InstallationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	f.requests[r.RequestNo] = &cp
	return nil
}

func (f *fakeStore) GetHolidayByDate(_ context.Context, date time.Time) (*Holiday, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.holidays[dayKey(date)]; ok {
		cp := *h
		return &cp, nil
	}
	return nil, ErrNotFound
}

func (f *fakeStore) CreateHoliday(_ context.Context, h *Holiday) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createHolidayErr != nil {
		return f.createHolidayErr
	}
	if _, ok := f.holidays[dayKey(h.HolidayDate)]; ok {
		return ErrDuplicateKey
	}
	h.ID = f.nid()
	cp := *h
	f.holidays[dayKey(h.HolidayDate)] = &cp
	return nil
}

func (f *fakeStore) UpdateHoliday(_ context.Context, h *Holiday) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *h
	f.holidays[dayKey(h.HolidayDate)] = &cp
	return nil
}

func (f *fakeStore) InsertSyncRun(_ context.Context, run *SyncRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *run
	f.runs[run.ID] = &cp
	return nil
}

func (f *fakeStore) AddSyncRunProgress(_ context.Context, id uuid.UUID, delta Counters) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.progressErr != nil {
		return f.progressErr
	}
	run, ok := f.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Processed += delta.Processed
	run.Created += delta.Created
	run.Updated += delta.Updated
	run.Skipped += delta.Skipped
	run.Failed += delta.Failed
	return nil
}

func (f *fakeStore) FinalizeSyncRun(_ context.Context, id uuid.UUID, status RunStatus, endedAt time.Time, errorMessage *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.EndedAt = &endedAt
	run.ErrorMessage = errorMessage
	return nil
}

func (f *fakeStore) GetSyncRun(_ context.Context, id uuid.UUID) (*SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (f *fakeStore) ListSyncRuns(_ context.Context, kind FlowKind, limit int) ([]SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []SyncRun
	for _, run := range f.runs {
		if kind != "" && run.FlowKind != kind {
			continue
		}
		out = append(out, *run)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeStore) ReapStaleRuns(_ context.Context, olderThan time.Time, message string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, run := range f.runs {
		if run.Status == RunRunning && run.StartedAt.Before(olderThan) {
			run.Status = RunFailed
			msg := message
			run.ErrorMessage = &msg
			now := time.Now().UTC()
			run.EndedAt = &now
			n++
		}
	}
	return n, nil
}

// fakeRecorderStore adds the TypeChangeRecorder capability.
type fakeRecorderStore struct {
	*fakeStore
	changes map[int64][]TypeChangeRecord
}

func newFakeRecorderStore() *fakeRecorderStore {
	return &fakeRecorderStore{fakeStore: newFakeStore(), changes: make(map[int64][]TypeChangeRecord)}
}

func (f *fakeRecorderStore) AppendCustomerTypeChange(_ context.Context, customerID int64, change TypeChangeRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes[customerID] = append(f.changes[customerID], change)
	for _, c := range f.customers {
		if c.ID == customerID {
			code, name := change.NewCode, change.NewName
			c.CurrentTypeCode = &code
			c.CurrentTypeName = &name
		}
	}
	return nil
}

// fakeSource serves canned rows. queryErr fails the initial query; failAfter
// (when >= 0) injects an iteration error after that many batches.
type fakeSource struct {
	rows     []SourceRow
	queryErr error

	failAfter int
	iterErr   error

	lastQuery  string
	lastParams map[string]any
}

func newFakeSource(rows ...SourceRow) *fakeSource {
	return &fakeSource{rows: rows, failAfter: -1}
}

func (f *fakeSource) Query(_ context.Context, query string, params map[string]any) ([]SourceRow, error) {
	f.lastQuery = query
	f.lastParams = params
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeSource) FetchBatches(_ context.Context, query string, params map[string]any, batchSize int) (BatchIterator, error) {
	f.lastQuery = query
	f.lastParams = params
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	it := &fakeIterator{batchSize: batchSize, rows: f.rows, failAfter: f.failAfter}
	if f.failAfter >= 0 {
		if f.iterErr == nil {
			f.iterErr = fmt.Errorf("source connection lost")
		}
		it.injected = f.iterErr
	}
	return it, nil
}

type fakeIterator struct {
	rows      []SourceRow
	batchSize int
	pos       int
	batch     []SourceRow
	served    int
	failAfter int
	injected  error
	err       error
	closed    bool
}

func (it *fakeIterator) Next(_ context.Context) bool {
	if it.err != nil {
		return false
	}
	if it.injected != nil && it.failAfter >= 0 && it.served >= it.failAfter {
		it.err = it.injected
		return false
	}
	if it.pos >= len(it.rows) {
		return false
	}
	end := it.pos + it.batchSize
	if end > len(it.rows) {
		end = len(it.rows)
	}
	it.batch = it.rows[it.pos:end]
	it.pos = end
	it.served++
	return true
}

func (it *fakeIterator) Batch() []SourceRow { return it.batch }
func (it *fakeIterator) Err() error         { return it.err }
func (it *fakeIterator) Close() error       { it.closed = true; return nil }
