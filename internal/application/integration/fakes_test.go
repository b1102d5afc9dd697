package integration

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/erp/connector/internal/domain/integration"
	"github.com/erp/connector/internal/domain/shared"
	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// In-memory repositories
// ---------------------------------------------------------------------------

type memBindings struct {
	mu   sync.Mutex
	rows map[uuid.UUID]integration.Binding
}

func newMemBindings() *memBindings {
	return &memBindings{rows: make(map[uuid.UUID]integration.Binding)}
}

func (m *memBindings) FindByID(_ context.Context, id uuid.UUID) (*integration.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.rows[id]
	if !ok {
		return nil, integration.ErrBindingNotFound
	}
	return &b, nil
}

func (m *memBindings) FindByRemoteID(_ context.Context, key integration.BindingKey) (*integration.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.rows {
		if b.IsBound() && b.Key() == key {
			return &b, nil
		}
	}
	return nil, integration.ErrBindingNotFound
}

func (m *memBindings) FindByLocalID(_ context.Context, localID uuid.UUID) ([]integration.Binding, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.Binding
	for _, b := range m.rows {
		if b.LocalID == localID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (m *memBindings) ListRemoteIDs(_ context.Context, system integration.SystemCode, entityType integration.EntityType, principal uuid.UUID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, b := range m.rows {
		if b.IsBound() && b.System == system && b.EntityType == entityType && b.OwningPrincipal == principal {
			out = append(out, b.RemoteID)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memBindings) FindByStatus(_ context.Context, status integration.SyncStatus, _ shared.Filter) ([]integration.Binding, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.Binding
	for _, b := range m.rows {
		if b.Status == status {
			out = append(out, b)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memBindings) Save(_ context.Context, binding *integration.Binding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if binding.IsBound() {
		for id, b := range m.rows {
			if id != binding.ID && b.IsBound() && b.Key() == binding.Key() {
				return integration.ErrBindingConflict
			}
		}
	}
	m.rows[binding.ID] = *binding
	return nil
}

func (m *memBindings) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return integration.ErrBindingNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memBindings) all() []integration.Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]integration.Binding, 0, len(m.rows))
	for _, b := range m.rows {
		out = append(out, b)
	}
	return out
}

type memRecords struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]integration.LocalRecord
	writes int
}

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[uuid.UUID]integration.LocalRecord)}
}

func (m *memRecords) FindByID(_ context.Context, id uuid.UUID) (*integration.LocalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[id]
	if !ok {
		return nil, integration.ErrRecordNotFound
	}
	r.Fields = r.Fields.Clone()
	return &r, nil
}

func (m *memRecords) FindSyncEnabledModifiedSince(_ context.Context, entityType integration.EntityType, owner uuid.UUID, since time.Time, limit int) ([]integration.LocalRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.LocalRecord
	for _, r := range m.rows {
		if r.EntityType == entityType && r.OwnerID == owner && r.SyncEnabled && r.Active && r.UpdatedAt.After(since) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memRecords) List(_ context.Context, entityType integration.EntityType, _ shared.Filter) ([]integration.LocalRecord, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []integration.LocalRecord
	for _, r := range m.rows {
		if r.EntityType == entityType {
			out = append(out, r)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memRecords) Save(_ context.Context, record *integration.LocalRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := *record
	r.Fields = record.Fields.Clone()
	m.rows[record.ID] = r
	m.writes++
	return nil
}

func (m *memRecords) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return integration.ErrRecordNotFound
	}
	delete(m.rows, id)
	return nil
}

func (m *memRecords) get(id uuid.UUID) integration.LocalRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[id]
}

type memOccurrences struct {
	rows  map[uuid.UUID]integration.Occurrence
	saves int
}

func newMemOccurrences() *memOccurrences {
	return &memOccurrences{rows: make(map[uuid.UUID]integration.Occurrence)}
}

func (m *memOccurrences) FindByParent(_ context.Context, parentID uuid.UUID) ([]integration.Occurrence, error) {
	var out []integration.Occurrence
	for _, o := range m.rows {
		if o.ParentID == parentID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *memOccurrences) Save(_ context.Context, o *integration.Occurrence) error {
	m.rows[o.ID] = *o
	m.saves++
	return nil
}

type memAttachments struct {
	rows map[uuid.UUID]integration.Attachment
}

func newMemAttachments() *memAttachments {
	return &memAttachments{rows: make(map[uuid.UUID]integration.Attachment)}
}

func (m *memAttachments) FindByRecord(_ context.Context, recordID uuid.UUID) ([]integration.Attachment, error) {
	var out []integration.Attachment
	for _, a := range m.rows {
		if a.RecordID == recordID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memAttachments) Save(_ context.Context, a *integration.Attachment) error {
	m.rows[a.ID] = *a
	return nil
}

func (m *memAttachments) Delete(_ context.Context, id uuid.UUID) error {
	delete(m.rows, id)
	return nil
}

type memJobs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*integration.SyncJob
	fail error
}

func newMemJobs() *memJobs {
	return &memJobs{rows: make(map[uuid.UUID]*integration.SyncJob)}
}

func (m *memJobs) Enqueue(_ context.Context, jobs ...*integration.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	for _, j := range jobs {
		cp := *j
		m.rows[j.ID] = &cp
	}
	return nil
}

func (m *memJobs) ClaimDue(_ context.Context, now time.Time, limit int) ([]*integration.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*integration.SyncJob
	for _, j := range m.rows {
		if j.Status == integration.JobStatusPending && !j.NotBefore.After(now) && len(out) < limit {
			j.Status = integration.JobStatusRunning
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memJobs) Update(_ context.Context, job *integration.SyncJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[job.ID]; !ok {
		return integration.ErrJobNotFound
	}
	cp := *job
	m.rows[job.ID] = &cp
	return nil
}

func (m *memJobs) FindByID(_ context.Context, id uuid.UUID) (*integration.SyncJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok {
		return nil, integration.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) FindByStatus(_ context.Context, status integration.JobStatus, _ shared.Filter) ([]*integration.SyncJob, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*integration.SyncJob
	for _, j := range m.rows {
		if j.Status == status {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memJobs) RequeueStale(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memJobs) DeleteCompletedBefore(context.Context, time.Time) (int64, error) { return 0, nil }

func (m *memJobs) CountByStatus(context.Context) (map[integration.JobStatus]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[integration.JobStatus]int64)
	for _, j := range m.rows {
		out[j.Status]++
	}
	return out, nil
}

func (m *memJobs) byOperation(op integration.JobOperation) []*integration.SyncJob {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*integration.SyncJob
	for _, j := range m.rows {
		if j.Operation == op {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].RemoteID < out[k].RemoteID })
	return out
}

type memCursors struct {
	rows map[string]integration.SyncCursor
}

func newMemCursors() *memCursors {
	return &memCursors{rows: make(map[string]integration.SyncCursor)}
}

func cursorKey(system integration.SystemCode, entityType integration.EntityType, principal uuid.UUID, direction integration.SyncDirection) string {
	return fmt.Sprintf("%s/%s/%s/%s", system, entityType, principal, direction)
}

func (m *memCursors) Get(_ context.Context, system integration.SystemCode, entityType integration.EntityType, principal uuid.UUID, direction integration.SyncDirection) (*integration.SyncCursor, error) {
	c, ok := m.rows[cursorKey(system, entityType, principal, direction)]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *memCursors) Advance(_ context.Context, c *integration.SyncCursor) error {
	m.rows[cursorKey(c.System, c.EntityType, c.Principal, c.Direction)] = *c
	return nil
}

type memSubscriptions struct {
	subs []integration.SyncSubscription
}

func (m *memSubscriptions) FindEnabled(_ context.Context, system integration.SystemCode, direction integration.SyncDirection) ([]integration.SyncSubscription, error) {
	var out []integration.SyncSubscription
	for _, s := range m.subs {
		if s.System == system && s.Enabled(direction) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memSubscriptions) Find(_ context.Context, system integration.SystemCode, principal uuid.UUID, entityType integration.EntityType) (*integration.SyncSubscription, error) {
	for _, s := range m.subs {
		if s.System == system && s.Principal == principal && s.EntityType == entityType {
			return &s, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memSubscriptions) Save(_ context.Context, s *integration.SyncSubscription) error {
	m.subs = append(m.subs, *s)
	return nil
}

// ---------------------------------------------------------------------------
// Locks, remote, mapper, guard, storage
// ---------------------------------------------------------------------------

type fakeLocks struct {
	rowErr      error
	advisoryErr error
	rows        []uuid.UUID
	advisory    []integration.AdvisoryKey
}

func (f *fakeLocks) TryLockRow(_ context.Context, localID uuid.UUID) error {
	if f.rowErr != nil {
		return f.rowErr
	}
	f.rows = append(f.rows, localID)
	return nil
}

func (f *fakeLocks) AcquireAdvisory(_ context.Context, key integration.AdvisoryKey, _ time.Duration) error {
	if f.advisoryErr != nil {
		return f.advisoryErr
	}
	f.advisory = append(f.advisory, key)
	return nil
}

// fakeRemote is an in-memory remote directory with a counter for every call kind.
// moveOnRead bumps the remote version right before an update is applied.
type fakeRemote struct {
	mu         sync.Mutex
	entities   map[string]*integration.RemoteEntity
	seq        int
	creates    int
	updates    int
	reads      int
	deletes    int
	err        error
	pages      [][]string
	lastRep    integration.Representation
	filters    []integration.EnumerateFilter
	expected   []integration.VersionToken
	moveOnRead bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{entities: make(map[string]*integration.RemoteEntity)}
}

func (f *fakeRemote) nextToken() integration.VersionToken {
	f.seq++
	return integration.VersionToken(fmt.Sprintf("v%d", f.seq))
}

func (f *fakeRemote) put(id string, fields integration.Representation) integration.VersionToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	token := f.nextToken()
	f.entities[id] = &integration.RemoteEntity{RemoteID: id, Token: token, Fields: fields}
	return token
}

func (f *fakeRemote) Create(_ context.Context, _ uuid.UUID, _ integration.EntityType, rep integration.Representation) (string, integration.VersionToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", "", f.err
	}
	f.creates++
	id := fmt.Sprintf("C%d", f.creates)
	token := f.nextToken()
	f.entities[id] = &integration.RemoteEntity{RemoteID: id, Token: token, Fields: rep.Clone()}
	f.lastRep = rep
	return id, token, nil
}

func (f *fakeRemote) Read(_ context.Context, _ uuid.UUID, _ integration.EntityType, remoteID string) (*integration.RemoteEntity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	e, ok := f.entities[remoteID]
	if !ok {
		return nil, integration.ErrRemoteNotFound
	}
	cp := *e
	cp.Fields = e.Fields.Clone()
	return &cp, nil
}

func (f *fakeRemote) Update(_ context.Context, _ uuid.UUID, _ integration.EntityType, remoteID string, expected integration.VersionToken, rep integration.Representation) (integration.VersionToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	e, ok := f.entities[remoteID]
	if !ok {
		return "", integration.ErrRemoteNotFound
	}
	f.expected = append(f.expected, expected)
	if f.moveOnRead {
		// another writer lands between Read and Update
		e.Token = f.nextToken()
	}
	if !expected.IsEmpty() && !expected.Equal(e.Token) {
		return "", fmt.Errorf("%w: HTTP 412", integration.ErrRemoteVersionMismatch)
	}
	f.updates++
	for k, v := range rep {
		e.Fields[k] = v
	}
	e.Token = f.nextToken()
	f.lastRep = rep
	return e.Token, nil
}

func (f *fakeRemote) Delete(_ context.Context, _ uuid.UUID, _ integration.EntityType, remoteID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.entities[remoteID]; !ok {
		return integration.ErrRemoteNotFound
	}
	f.deletes++
	delete(f.entities, remoteID)
	return nil
}

func (f *fakeRemote) Enumerate(_ context.Context, _ uuid.UUID, _ integration.EntityType, filter integration.EnumerateFilter, pageToken string) (*integration.RemotePage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.filters = append(f.filters, filter)
	idx := 0
	if pageToken != "" {
		idx, _ = strconv.Atoi(pageToken)
	}
	if idx >= len(f.pages) {
		return &integration.RemotePage{}, nil
	}
	page := &integration.RemotePage{IDs: f.pages[idx]}
	if idx+1 < len(f.pages) {
		page.NextPageToken = fmt.Sprintf("%d", idx+1)
	}
	return page, nil
}

// identityMapper maps field names one to one and rejects the "invalid" marker
type identityMapper struct {
	entityType integration.EntityType
}

func (m identityMapper) EntityType() integration.EntityType { return m.entityType }

func (m identityMapper) ToRemote(values integration.Fields, subset []string) (integration.Representation, error) {
	if values["email"] == "invalid" {
		return nil, fmt.Errorf("%w: email", integration.ErrMalformedRepresentation)
	}
	out := integration.Representation{}
	if len(subset) == 0 {
		for k, v := range values {
			out[k] = v
		}
		return out, nil
	}
	for _, k := range subset {
		if v, ok := values[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (m identityMapper) ToLocal(rep integration.Representation) (integration.Fields, error) {
	if rep["email"] == "invalid" {
		return nil, fmt.Errorf("%w: email", integration.ErrMalformedRepresentation)
	}
	out := integration.Fields{}
	for k, v := range rep {
		if k == integration.FieldSensitivity {
			continue
		}
		out[k] = v
	}
	return out, nil
}

type fakeRegistry struct{}

func (fakeRegistry) Mapper(entityType integration.EntityType) (integration.Mapper, error) {
	if !entityType.IsValid() {
		return nil, integration.ErrUnsupportedEntityType
	}
	return identityMapper{entityType: entityType}, nil
}

// memGuard expires claims after their ttl on its own clock
type memGuard struct {
	claimed map[string]time.Time
	err     error
	now     func() time.Time
}

func newMemGuard() *memGuard {
	return &memGuard{claimed: make(map[string]time.Time), now: time.Now}
}

func (g *memGuard) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if expires, ok := g.claimed[key]; ok && g.now().Before(expires) {
		return false, nil
	}
	g.claimed[key] = g.now().Add(ttl)
	return true, nil
}

func (g *memGuard) Release(_ context.Context, key string) error {
	delete(g.claimed, key)
	return nil
}

func (g *memGuard) Close() error { return nil }

type memStore struct {
	objects map[string][]byte
	puts    int
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (s *memStore) Put(_ context.Context, key string, data []byte, _ string) error {
	s.objects[key] = data
	s.puts++
	return nil
}

func (s *memStore) Delete(_ context.Context, key string) error {
	delete(s.objects, key)
	return nil
}

// ---------------------------------------------------------------------------
// Harness
// ---------------------------------------------------------------------------

const testSystem integration.SystemCode = "exchange"

type harness struct {
	bindings    *memBindings
	records     *memRecords
	occurrences *memOccurrences
	attachments *memAttachments
	jobs        *memJobs
	cursors     *memCursors
	locks       *fakeLocks
	remote      *fakeRemote
	objects     *memStore
	scope       *NoOpTransactionScope
	store       *LocalStore
	binder      *Binder
	principal   uuid.UUID
}

func newHarness() *harness {
	h := &harness{
		bindings:    newMemBindings(),
		records:     newMemRecords(),
		occurrences: newMemOccurrences(),
		attachments: newMemAttachments(),
		jobs:        newMemJobs(),
		cursors:     newMemCursors(),
		locks:       &fakeLocks{},
		remote:      newFakeRemote(),
		objects:     newMemStore(),
		binder:      NewBinder(),
		principal:   uuid.New(),
	}
	h.scope = NewNoOpTransactionScope(NoOpRepositories{
		Bindings:    h.bindings,
		Records:     h.records,
		Occurrences: h.occurrences,
		Attachments: h.attachments,
		Jobs:        h.jobs,
		Cursors:     h.cursors,
		Locks:       h.locks,
	})
	h.store = NewLocalStore(h.scope, nil, zapNop)
	return h
}

func (h *harness) rc() RequestContext {
	return NewRequestContext(h.principal, testSystem, "corr-1").WithTx(h.scope)
}

func (h *harness) seedRecord(fields integration.Fields) *integration.LocalRecord {
	rec, err := integration.NewLocalRecord(integration.EntityTypeContact, h.principal, fields, true)
	if err != nil {
		panic(err)
	}
	_ = h.records.Save(context.Background(), rec)
	return rec
}

func (h *harness) seedBinding(localID uuid.UUID, remoteID string, token integration.VersionToken) *integration.Binding {
	b, err := integration.NewBinding(testSystem, integration.EntityTypeContact, localID, h.principal)
	if err != nil {
		panic(err)
	}
	if err := b.Bind(remoteID, token, integration.SyncStatusSynced); err != nil {
		panic(err)
	}
	_ = h.bindings.Save(context.Background(), b)
	return b
}
