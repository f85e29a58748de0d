package services

import (
	"context"
	"io"
	"sync"

	"github.com/sheetsmith/sheetsmith-engine/pkg/apperrors"
	"github.com/sheetsmith/sheetsmith-engine/pkg/models"
	"github.com/sheetsmith/sheetsmith-engine/pkg/storage"
	"github.com/sheetsmith/sheetsmith-engine/pkg/warehouse"
)

// mockDescriptorRepo is an in-memory TableDescriptorRepository.
type mockDescriptorRepo struct {
	mu          sync.Mutex
	descriptors map[string]*models.TableDescriptor
	grants      map[string][]int64
	upsertErr   error
	upserts     int
	deleted     []string
}

func newMockDescriptorRepo(descs ...*models.TableDescriptor) *mockDescriptorRepo {
	m := &mockDescriptorRepo{descriptors: map[string]*models.TableDescriptor{}, grants: map[string][]int64{}}
	for _, d := range descs {
		m.descriptors[d.TableName] = d
	}
	return m
}

func (m *mockDescriptorRepo) grant(table string, orgID int64) {
	m.grants[table] = append(m.grants[table], orgID)
}

func (m *mockDescriptorRepo) GetAll(_ context.Context) ([]*models.TableDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(string) bool { return true }), nil
}

func (m *mockDescriptorRepo) ListForOrganization(_ context.Context, orgID int64) ([]*models.TableDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(name string) bool {
		for _, id := range m.grants[name] {
			if id == orgID {
				return true
			}
		}
		return false
	}), nil
}

func (m *mockDescriptorRepo) sorted(keep func(string) bool) []*models.TableDescriptor {
	var out []*models.TableDescriptor
	for name, d := range m.descriptors {
		if keep(name) {
			out = append(out, d)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].TableName < out[j-1].TableName; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func (m *mockDescriptorRepo) Get(_ context.Context, name string) (*models.TableDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.descriptors[name]; ok {
		return d, nil
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockDescriptorRepo) Upsert(_ context.Context, desc *models.TableDescriptor, grant *models.OrganizationTable) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.descriptors[desc.TableName] = desc
	if grant != nil {
		m.grant(grant.TableName, grant.OrganizationID)
	}
	return nil
}

func (m *mockDescriptorRepo) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.descriptors[name]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.descriptors, name)
	delete(m.grants, name)
	m.deleted = append(m.deleted, name)
	return nil
}

// mockWarehouse is a Warehouse whose schema is a map of table to columns.
// ExecDDL adds the table named by the statement when CreateFunc is nil.
type mockWarehouse struct {
	mu        sync.Mutex
	tables    map[string][]warehouse.Column
	ddl       []string
	ddlErr    error
	appendErr error
	appended  map[string][][]any
	columns   map[string][]string
	dropped   []string

	// CreateColumns is registered for the table created by ExecDDL.
	CreateColumns []warehouse.Column
	CreateName    string
}

func newMockWarehouse() *mockWarehouse {
	return &mockWarehouse{
		tables:   map[string][]warehouse.Column{},
		appended: map[string][][]any{},
		columns:  map[string][]string{},
	}
}

func (m *mockWarehouse) addTable(name string, cols ...warehouse.Column) {
	m.tables[name] = cols
}

func (m *mockWarehouse) ListTableNames(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for n := range m.tables {
		names = append(names, n)
	}
	return names, nil
}

func (m *mockWarehouse) TableColumns(_ context.Context, table string) ([]warehouse.Column, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tables[table], nil
}

func (m *mockWarehouse) ExecDDL(_ context.Context, statement string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ddl = append(m.ddl, statement)
	if m.ddlErr != nil {
		return m.ddlErr
	}
	if m.CreateName != "" {
		m.tables[m.CreateName] = m.CreateColumns
	}
	return nil
}

func (m *mockWarehouse) AppendRows(_ context.Context, table string, columns []string, rows [][]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return 0, m.appendErr
	}
	m.columns[table] = columns
	m.appended[table] = append(m.appended[table], rows...)
	return int64(len(rows)), nil
}

func (m *mockWarehouse) DropTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tables, table)
	m.dropped = append(m.dropped, table)
	return nil
}

// mockMessageStore records flushed messages.
type mockMessageStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []*models.ConversationMessage
	deleted  []string
}

func (m *mockMessageStore) NextChatID(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	return m.nextID, nil
}

func (m *mockMessageStore) InsertMessages(_ context.Context, msgs []*models.ConversationMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msgs...)
	return nil
}

func (m *mockMessageStore) ListByChat(_ context.Context, chatID int64, userID string, orgID int64) ([]*models.ConversationMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.ConversationMessage
	for _, msg := range m.messages {
		if msg.ChatID == chatID && msg.UserID == userID && msg.OrganizationID == orgID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (m *mockMessageStore) DeleteByUser(_ context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, userID)
	kept := m.messages[:0]
	var n int64
	for _, msg := range m.messages {
		if msg.UserID == userID {
			n++
			continue
		}
		kept = append(kept, msg)
	}
	m.messages = kept
	return n, nil
}

// mockProfileRepo has one function field per method.
type mockProfileRepo struct {
	CreateFunc    func(ctx context.Context, p *models.DataProfile) error
	GetByNameFunc func(ctx context.Context, orgID int64, name string) (*models.DataProfile, error)
	ListFunc      func(ctx context.Context, orgID int64) ([]*models.DataProfile, error)
}

func (m *mockProfileRepo) Create(ctx context.Context, p *models.DataProfile) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, p)
	}
	return nil
}

func (m *mockProfileRepo) GetByName(ctx context.Context, orgID int64, name string) (*models.DataProfile, error) {
	if m.GetByNameFunc != nil {
		return m.GetByNameFunc(ctx, orgID, name)
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockProfileRepo) List(ctx context.Context, orgID int64) ([]*models.DataProfile, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, orgID)
	}
	return nil, nil
}

// fakeArchive keeps the keys it was asked to store.
type fakeArchive struct {
	err  error
	keys []string
}

func (f *fakeArchive) Put(_ context.Context, key string, body io.Reader, size int64, _ string) (storage.ObjectInfo, error) {
	if f.err != nil {
		return storage.ObjectInfo{}, f.err
	}
	_, _ = io.Copy(io.Discard, body)
	f.keys = append(f.keys, key)
	return storage.ObjectInfo{Key: key, Size: size}, nil
}

// messageCounter costs every message at a flat rate.
type messageCounter struct {
	perMessage int
}

func (c messageCounter) Count(_ context.Context, msgs []models.ConversationMessage) int {
	return c.perMessage * len(msgs)
}
