package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/snapcaption/internal/apperror"
	"github.com/sakif/snapcaption/internal/model"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeUserRepo is an in-memory repository.UserRepository.
type fakeUserRepo struct {
	mu      sync.Mutex
	byID    map[string]*model.User
	lookErr   error // returned by every lookup when set
	createErr error
	// raceEmail makes Create report a duplicate even though the lookup
	// found nothing, as when a concurrent sign-up wins.
	raceEmail bool
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{byID: map[string]*model.User{}}
}

func (f *fakeUserRepo) Create(_ context.Context, user *model.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if f.raceEmail {
		return apperror.DuplicateEmail()
	}
	for _, u := range f.byID {
		if u.Email == user.Email {
			return apperror.DuplicateEmail()
		}
		if user.GitHubID != 0 && u.GitHubID == user.GitHubID {
			return apperror.Conflict("user", "github")
		}
	}
	user.ID = xid.New().String()
	user.CreatedAt = time.Now().UTC()
	stored := *user
	f.byID[user.ID] = &stored
	return nil
}

func (f *fakeUserRepo) find(match func(*model.User) bool, what string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookErr != nil {
		return nil, f.lookErr
	}
	for _, u := range f.byID {
		if match(u) {
			found := *u
			return &found, nil
		}
	}
	return nil, apperror.NotFound("user", what)
}

func (f *fakeUserRepo) GetUserByID(_ context.Context, id string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.ID == id }, id)
}

func (f *fakeUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.Email == email }, email)
}

func (f *fakeUserRepo) GetUserByGitHubID(_ context.Context, githubID int64) (*model.User, error) {
	return f.find(func(u *model.User) bool { return u.GitHubID == githubID }, "github")
}

// fakeMediaRepo is an in-memory repository.MediaRepository.
type fakeMediaRepo struct {
	mu      sync.Mutex
	records map[string]model.MediaRecord
	clock   time.Time

	createErr error
	listErr   error
	getErr    error
	updateErr error
	creates   int
}

func newFakeMediaRepo() *fakeMediaRepo {
	return &fakeMediaRepo{
		records: map[string]model.MediaRecord{},
		clock:   time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func (f *fakeMediaRepo) Create(_ context.Context, rec *model.MediaRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.records[rec.ImageID]; exists {
		return apperror.Conflict("image", rec.ImageID)
	}
	f.clock = f.clock.Add(time.Minute)
	rec.CreatedAt = f.clock
	f.records[rec.ImageID] = *rec
	return nil
}

func (f *fakeMediaRepo) GetByID(_ context.Context, imageID string) (*model.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	rec, ok := f.records[imageID]
	if !ok {
		return nil, apperror.NotFound("image", imageID)
	}
	return &rec, nil
}

func (f *fakeMediaRepo) ListByOwner(_ context.Context, ownerID string) ([]model.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := make([]model.MediaRecord, 0)
	for _, rec := range f.records {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeMediaRepo) UpdateCaption(_ context.Context, imageID, caption string) (*model.MediaRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	rec, ok := f.records[imageID]
	if !ok {
		return nil, apperror.NotFound("image", imageID)
	}
	rec.Caption = caption
	f.records[imageID] = rec
	return &rec, nil
}

func (f *fakeMediaRepo) Search(ctx context.Context, term, ownerID string) ([]model.MediaRecord, error) {
	all, err := f.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]model.MediaRecord, 0, len(all))
	for _, rec := range all {
		if rec.Matches(term) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// fakeStore is an in-memory ImageStore. Sign appends "?signed" unless
// failSign is set, in which case it falls back to the locator, as the real
// gateway does.
type fakeStore struct {
	mu       sync.Mutex
	objects  map[string][]byte
	putErr   error
	failSign bool

	signDelay time.Duration
	inFlight  atomic.Int32
	maxFlight atomic.Int32
	signed    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Put(_ context.Context, data []byte, _ string, name string) (string, error) {
	if f.putErr != nil {
		return "", f.putErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	locator := "https://bucket.example/images/" + xid.New().String() + strings.ToLower(path.Ext(name))
	f.objects[locator] = data
	return locator, nil
}

func (f *fakeStore) Sign(_ context.Context, locator string) string {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxFlight.Load()
		if n <= m || f.maxFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if f.signDelay > 0 {
		time.Sleep(f.signDelay)
	}

	f.mu.Lock()
	f.signed = append(f.signed, locator)
	f.mu.Unlock()

	if f.failSign || strings.Contains(locator, "?") {
		return locator
	}
	return locator + "?signed"
}

func (f *fakeStore) objectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.objects)
}

// fakeCaptioner returns caption for every image, or err.
type fakeCaptioner struct {
	caption string
	err     error

	mu        sync.Mutex
	fromBytes int
	fromURL   []string
}

func (f *fakeCaptioner) CaptionFromBytes(_ context.Context, data []byte, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fromBytes++
	if f.err != nil {
		return "", f.err
	}
	if len(data) == 0 {
		return "", errors.New("empty")
	}
	return f.caption, nil
}

func (f *fakeCaptioner) CaptionFromURL(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fromURL = append(f.fromURL, url)
	if f.err != nil {
		return "", f.err
	}
	return f.caption, nil
}
