// Package memory is an in-process stand-in for the hosted backend: an auth
// provider, the four portal tables and a blob bucket. The server uses it in
// development mode and the tests use it as a deterministic BaaS.
package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/student-portal/internal/crypto"
	"github.com/and161185/student-portal/internal/model"
	"github.com/and161185/student-portal/internal/repository"
)

// Operation names accepted by FailNext and Calls.
const (
	OpSignIn        = "auth.signin"
	OpSignUp        = "auth.signup"
	OpSignOut       = "auth.signout"
	OpSession       = "auth.session"
	OpUserCreate    = "users.create"
	OpUserGet       = "users.get"
	OpRequestCreate = "requests.create"
	OpRequestList   = "requests.list"
	OpRequestGet    = "requests.get"
	OpFileCreate    = "files.create"
	OpFileList      = "files.list"
	OpNewsList      = "news.list"
	OpBlobUpload    = "blobs.upload"
)

type identity struct {
	id       model.ID
	email    string
	pwHash   string
	metadata map[string]string
}

type blobEntry struct {
	data        []byte
	contentType string
}

// Backend holds all state. It is safe for concurrent use.
type Backend struct {
	mu sync.Mutex

	now      func() time.Time
	signKey  []byte
	tokenTTL time.Duration
	baseURL  string
	params   crypto.Params

	identities map[string]*identity // by lower-cased email
	users      []model.User
	requests   []model.ServiceRequest
	files      []model.UploadedFile
	news       []model.NewsItem
	blobs      map[string]blobEntry

	clients map[*AuthClient]struct{}
	faults  map[string][]error
	calls   map[string]int
}

// Option customizes a Backend.
type Option func(*Backend)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(b *Backend) { b.now = now } }

// WithTokenTTL sets the access token lifetime.
func WithTokenTTL(d time.Duration) Option { return func(b *Backend) { b.tokenTTL = d } }

// WithBaseURL sets the prefix of public blob URLs.
func WithBaseURL(u string) Option { return func(b *Backend) { b.baseURL = strings.TrimRight(u, "/") } }

// WithSignKey sets the HS256 key used for access tokens.
func WithSignKey(k []byte) Option { return func(b *Backend) { b.signKey = k } }

// New returns an empty backend.
func New(opts ...Option) *Backend {
	b := &Backend{
		now:        time.Now,
		tokenTTL:   time.Hour,
		baseURL:    "http://localhost",
		params:     crypto.LightParams,
		identities: make(map[string]*identity),
		blobs:      make(map[string]blobEntry),
		clients:    make(map[*AuthClient]struct{}),
		faults:     make(map[string][]error),
		calls:      make(map[string]int),
	}
	for _, o := range opts {
		o(b)
	}
	if len(b.signKey) == 0 {
		k, err := crypto.RandBytes(32)
		if err != nil {
			panic(err)
		}
		b.signKey = k
	}
	return b
}

// Store returns repositories over the backend tables.
func (b *Backend) Store() repository.Store {
	return repository.Store{
		Users:    usersTable{b},
		Requests: requestsTable{b},
		Files:    filesTable{b},
		News:     newsTable{b},
	}
}

// FailNext makes the next call of op return err. Calls queue up in order.
func (b *Backend) FailNext(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.faults[op] = append(b.faults[op], err)
}

// Calls reports how many times op was invoked.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// SeedNews appends news items; zero ids and timestamps are filled in.
func (b *Backend) SeedNews(items ...model.NewsItem) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, n := range items {
		if n.ID == "" {
			n.ID = newID()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = b.now()
		}
		b.news = append(b.news, n)
	}
}

// SetStatus moves a request to a new status, standing in for the back office.
func (b *Backend) SetStatus(number string, st model.RequestStatus) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.requests {
		if b.requests[i].RequestNumber == number {
			b.requests[i].Status = st
			return true
		}
	}
	return false
}

// Users returns a copy of the users table.
func (b *Backend) Users() []model.User {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.User(nil), b.users...)
}

// Files returns a copy of the files table.
func (b *Backend) Files() []model.UploadedFile {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]model.UploadedFile(nil), b.files...)
}

// Blob returns the stored bytes at key.
func (b *Backend) Blob(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.blobs[key]
	return e.data, ok
}

// IdentityCount returns the number of registered auth identities.
func (b *Backend) IdentityCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.identities)
}

// enter records a call to op and pops an injected fault. Caller holds b.mu.
func (b *Backend) enter(op string) error {
	b.calls[op]++
	q := b.faults[op]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	b.faults[op] = q[1:]
	return err
}

func newID() model.ID {
	return model.ID(uuid.Must(uuid.NewV4()).String())
}

func sortNewestFirst(items []model.NewsItem) {
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })
}
