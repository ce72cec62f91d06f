package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"Tunevault/cache"
	"Tunevault/core/auth"
	"Tunevault/model"
	"Tunevault/repository"
)

// memorySessions 内存版吊销列表、重置令牌和 OAuth state
type memorySessions struct {
	mu      sync.Mutex
	revoked map[string]bool
	resets  map[string]string
	states  map[string]cache.OAuthState
}

func newMemorySessions() *memorySessions {
	return &memorySessions{
		revoked: make(map[string]bool),
		resets:  make(map[string]string),
		states:  make(map[string]cache.OAuthState),
	}
}

func (m *memorySessions) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revoked[jti] = true
	return nil
}

func (m *memorySessions) IsRevoked(ctx context.Context, jti string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.revoked[jti], nil
}

func (m *memorySessions) SaveResetToken(ctx context.Context, token, userID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resets[token] = userID
	return nil
}

func (m *memorySessions) ConsumeResetToken(ctx context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	userID := m.resets[token]
	delete(m.resets, token)
	return userID, nil
}

func (m *memorySessions) SaveState(ctx context.Context, state string, data cache.OAuthState, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[state] = data
	return nil
}

func (m *memorySessions) ConsumeState(ctx context.Context, state string) (*cache.OAuthState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.states[state]
	if !ok {
		return nil, nil
	}
	delete(m.states, state)
	return &data, nil
}

type memoryUsers struct {
	mu    sync.Mutex
	users map[string]*model.User
	links []*model.LinkedAccount
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{users: make(map[string]*model.User)}
}

func (m *memoryUsers) CreateUser(ctx context.Context, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addUser(u)
}

func (m *memoryUsers) addUser(u *model.User) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return repository.ErrDuplicateUser
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memoryUsers) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryUsers) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) UpdatePassword(ctx context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return repository.ErrNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *memoryUsers) CreateLink(ctx context.Context, link *model.LinkedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.addLink(link)
}

func (m *memoryUsers) addLink(link *model.LinkedAccount) error {
	for _, l := range m.links {
		if l.Provider == link.Provider && (l.ProviderUserID == link.ProviderUserID || l.UserID == link.UserID) {
			return repository.ErrDuplicateLink
		}
	}
	cp := *link
	m.links = append(m.links, &cp)
	return nil
}

func (m *memoryUsers) CreateUserWithLink(ctx context.Context, u *model.User, link *model.LinkedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.addLink(link); err != nil {
		return err
	}
	if err := m.addUser(u); err != nil {
		m.links = m.links[:len(m.links)-1]
		return err
	}
	return nil
}

func (m *memoryUsers) GetLink(ctx context.Context, provider, providerUserID string) (*model.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, l := range m.links {
		if l.Provider == provider && l.ProviderUserID == providerUserID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryUsers) ListLinks(ctx context.Context, userID string) ([]*model.LinkedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.LinkedAccount
	for _, l := range m.links {
		if l.UserID == userID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryUsers) DeleteLink(ctx context.Context, userID, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, l := range m.links {
		if l.UserID == userID && l.Provider == provider {
			m.links = append(m.links[:i], m.links[i+1:]...)
			return nil
		}
	}
	return repository.ErrNotFound
}

// memoryMusic 按插入顺序保存音乐记录
type memoryMusic struct {
	mu    sync.Mutex
	items map[string]*model.MusicFile
	order []string
}

func newMemoryMusic() *memoryMusic {
	return &memoryMusic{items: make(map[string]*model.MusicFile)}
}

func (m *memoryMusic) put(f *model.MusicFile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[f.ID]; !ok {
		m.order = append(m.order, f.ID)
	}
	cp := *f
	m.items[f.ID] = &cp
}

func (m *memoryMusic) Create(ctx context.Context, f *model.MusicFile) error {
	m.put(f)
	return nil
}

func (m *memoryMusic) GetByID(ctx context.Context, id string) (*model.MusicFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if f, ok := m.items[id]; ok {
		cp := *f
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryMusic) GetByIDs(ctx context.Context, ids []string) ([]*model.MusicFile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MusicFile
	for _, id := range ids {
		if f, ok := m.items[id]; ok {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memoryMusic) matching(keep func(*model.MusicFile) bool) []*model.MusicFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.MusicFile
	for _, id := range m.order {
		f, ok := m.items[id]
		if ok && keep(f) {
			cp := *f
			out = append(out, &cp)
		}
	}
	return out
}

func (m *memoryMusic) ListByUser(ctx context.Context, userID string) ([]*model.MusicFile, error) {
	return m.matching(func(f *model.MusicFile) bool { return f.UserID == userID }), nil
}

func (m *memoryMusic) Filter(ctx context.Context, userID string, filter model.MusicFilter) ([]*model.MusicFile, error) {
	return m.matching(func(f *model.MusicFile) bool {
		return f.UserID == userID &&
			(filter.Title == "" || f.Title == filter.Title) &&
			(filter.Artist == "" || f.Artist == filter.Artist) &&
			(filter.Album == "" || f.Album == filter.Album) &&
			(filter.Genre == "" || f.Genre == filter.Genre) &&
			(filter.Year == 0 || f.Year == filter.Year)
	}), nil
}

func (m *memoryMusic) Update(ctx context.Context, f *model.MusicFile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[f.ID]; !ok {
		return repository.ErrNotFound
	}
	cp := *f
	m.items[f.ID] = &cp
	return nil
}

func (m *memoryMusic) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

func (m *memoryMusic) DistinctValues(ctx context.Context, userID, field string) ([]string, error) {
	seen := make(map[string]bool)
	for _, f := range m.matching(func(f *model.MusicFile) bool { return f.UserID == userID }) {
		v := map[string]string{"title": f.Title, "artist": f.Artist, "album": f.Album, "genre": f.Genre}[field]
		if v != "" {
			seen[v] = true
		}
	}
	return sortedKeys(seen), nil
}

// memoryIndex searchErr 非空时搜索失败
type memoryIndex struct {
	mu        sync.Mutex
	entries   []model.IndexEntry
	searchErr error
}

func (m *memoryIndex) AddEntries(ctx context.Context, entries []model.IndexEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *memoryIndex) remove(keep func(model.IndexEntry) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	for _, e := range m.entries {
		if keep(e) {
			kept = append(kept, e)
		}
	}
	m.entries = kept
}

func (m *memoryIndex) DeleteByMusic(ctx context.Context, userID, musicID string) error {
	m.remove(func(e model.IndexEntry) bool { return e.UserID != userID || e.MusicID != musicID })
	return nil
}

func (m *memoryIndex) DeleteByUser(ctx context.Context, userID string) error {
	m.remove(func(e model.IndexEntry) bool { return e.UserID != userID })
	return nil
}

func (m *memoryIndex) PrefixSearch(ctx context.Context, userID, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var ids []string
	for _, e := range m.entries {
		if e.UserID == userID && strings.HasPrefix(e.Value, prefix) {
			ids = append(ids, e.MusicID)
		}
	}
	return ids, nil
}

func (m *memoryIndex) DistinctValues(ctx context.Context, userID, field string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]bool)
	for _, e := range m.entries {
		if e.UserID == userID && e.Field == field {
			seen[e.Value] = true
		}
	}
	return sortedKeys(seen), nil
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type memoryPlaylists struct {
	mu    sync.Mutex
	items map[string]*model.Playlist
}

func newMemoryPlaylists() *memoryPlaylists {
	return &memoryPlaylists{items: make(map[string]*model.Playlist)}
}

func clonePlaylist(p *model.Playlist) *model.Playlist {
	cp := *p
	cp.SongIDs = append(model.SongIDList{}, p.SongIDs...)
	return &cp
}

func (r *memoryPlaylists) Create(ctx context.Context, p *model.Playlist) error {
	return r.Save(ctx, p)
}

func (r *memoryPlaylists) GetByID(ctx context.Context, id string) (*model.Playlist, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.items[id]; ok {
		return clonePlaylist(p), nil
	}
	return nil, nil
}

func (r *memoryPlaylists) list(keep func(*model.Playlist) bool) []*model.Playlist {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Playlist
	for _, p := range r.items {
		if keep(p) {
			out = append(out, clonePlaylist(p))
		}
	}
	return out
}

func (r *memoryPlaylists) ListByUser(ctx context.Context, userID string) ([]*model.Playlist, error) {
	return r.list(func(p *model.Playlist) bool { return p.UserID == userID }), nil
}

func (r *memoryPlaylists) ListPublic(ctx context.Context) ([]*model.Playlist, error) {
	return r.list(func(p *model.Playlist) bool { return p.IsPublic }), nil
}

func (r *memoryPlaylists) Save(ctx context.Context, p *model.Playlist) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[p.ID] = clonePlaylist(p)
	return nil
}

func (r *memoryPlaylists) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.items, id)
	return nil
}

// stubProvider 授权码直接映射为身份
type stubProvider struct {
	name     string
	profiles map[string]*auth.Profile
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://idp.example/authorize?state=" + state
}

func (p *stubProvider) Profile(ctx context.Context, code string) (*auth.Profile, error) {
	if prof, ok := p.profiles[code]; ok {
		return prof, nil
	}
	return nil, errors.New("unknown code")
}

// multipartForm 构造带一个文件字段的 multipart 请求体，返回请求体和 Content-Type
func multipartForm(t *testing.T, fileField, filename, contentType string, data []byte, fields map[string]string) (string, map[string]string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if fileField != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, fileField, filename))
		h.Set("Content-Type", contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(data); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.String(), map[string]string{"Content-Type": w.FormDataContentType()}
}
