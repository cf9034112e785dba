package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"qpaper-archive/models"
	"qpaper-archive/resolver"
	"qpaper-archive/search"
)

// fakeRepo ist ein In-Memory-Ersatz für die gorm-Implementierung.
type fakeRepo struct {
	mu     sync.Mutex
	papers map[uuid.UUID]models.Paper
	seq    int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{papers: make(map[uuid.UUID]models.Paper)}
}

func (r *fakeRepo) Create(ctx context.Context, p *models.Paper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	// Monoton steigende Zeitstempel für stabile Sortierung.
	p.CreatedAt = time.Unix(int64(r.seq), 0)
	p.UpdatedAt = p.CreatedAt
	r.papers[p.ID] = *p
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, id uuid.UUID) (*models.Paper, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.papers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (r *fakeRepo) Update(ctx context.Context, p *models.Paper) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.papers[p.ID]; !ok {
		return ErrNotFound
	}
	p.UpdatedAt = time.Now()
	r.papers[p.ID] = *p
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.papers[id]; !ok {
		return ErrNotFound
	}
	delete(r.papers, id)
	return nil
}

func (r *fakeRepo) list(filter func(models.Paper) bool) []models.Paper {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Paper
	for _, p := range r.papers {
		if filter(p) {
			out = append(out, p)
		}
	}
	return out
}

func (r *fakeRepo) ListUnapproved(ctx context.Context) ([]models.Paper, error) {
	out := r.list(func(p models.Paper) bool {
		return p.Origin == models.OriginUploaded && p.Approval == models.ApprovalPending && !p.Deleted
	})
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fakeRepo) ListTrash(ctx context.Context, limit int) ([]models.Paper, error) {
	out := r.list(func(p models.Paper) bool { return p.Deleted })
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.After(*out[j].DeletedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeRepo) ListTrashOlderThan(ctx context.Context, cutoff time.Time) ([]models.Paper, error) {
	return r.list(func(p models.Paper) bool {
		return p.Deleted && p.DeletedAt != nil && p.DeletedAt.Before(cutoff)
	}), nil
}

func (r *fakeRepo) ListSearchable(ctx context.Context) ([]models.Paper, error) {
	return r.list(func(p models.Paper) bool {
		return !p.Deleted && (p.Origin == models.OriginLibrary || p.Approval == models.ApprovalApproved)
	}), nil
}

// fakeObjects simuliert den Objektspeicher inklusive gezielter Fehler.
type fakeObjects struct {
	mu         sync.Mutex
	objects    map[string][]byte
	failMove   bool
	failDelete map[string]bool
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string][]byte), failDelete: make(map[string]bool)}
}

func (o *fakeObjects) Put(ctx context.Context, key string, data []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return nil
}

func (o *fakeObjects) Move(ctx context.Context, oldKey, newKey string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failMove {
		return fmt.Errorf("simulated move failure")
	}
	data, ok := o.objects[oldKey]
	if !ok {
		return fmt.Errorf("missing object %s", oldKey)
	}
	delete(o.objects, oldKey)
	o.objects[newKey] = data
	return nil
}

func (o *fakeObjects) Delete(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.failDelete[key] {
		return fmt.Errorf("simulated delete failure")
	}
	delete(o.objects, key)
	return nil
}

func (o *fakeObjects) has(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.objects[key]
	return ok
}

func newTestStore(t *testing.T) (*PaperStore, *fakeRepo, *fakeObjects) {
	t.Helper()
	repo := newFakeRepo()
	objects := newFakeObjects()
	s := New(repo, objects, resolver.New("http://test/static"), zap.NewNop(), 10)
	return s, repo, objects
}

func uploadedMeta(year int) models.Meta {
	return models.Meta{
		CourseCode: "CS10001",
		CourseName: "Programming and Data Structures",
		Year:       year,
		Semester:   models.SemesterAutumn,
		Exam:       models.ExamMidsem,
	}
}

func TestInsertUploadedThenListUnapproved(t *testing.T) {
	t.Parallel()
	s, _, objects := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, view.Approval)
	assert.False(t, view.Deleted)
	assert.Contains(t, view.Filelink, "uploaded/CS10001_2023_midsem_autumn_")

	// Die Datei liegt am abgeleiteten Pfad.
	assert.True(t, objects.has(s.pathOf(&view.Paper)))

	pending, err := s.ListUnapproved(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, view.ID, pending[0].ID)
}

func TestListUnapprovedNewestFirst(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	first, err := s.InsertUploadedPaper(ctx, uploadedMeta(2020), []byte("a"))
	require.NoError(t, err)
	second, err := s.InsertUploadedPaper(ctx, uploadedMeta(2021), []byte("b"))
	require.NoError(t, err)

	pending, err := s.ListUnapproved(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, second.ID, pending[0].ID)
	assert.Equal(t, first.ID, pending[1].ID)
}

func TestSoftDeleteIdempotent(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("pdf"))
	require.NoError(t, err)

	first, err := s.SoftDelete(ctx, view.ID)
	require.NoError(t, err)
	require.True(t, first.Deleted)
	require.NotNil(t, first.DeletedAt)

	second, err := s.SoftDelete(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, second.Deleted)
	// No-Op: der Löschzeitpunkt bleibt der des ersten Aufrufs.
	assert.Equal(t, first.DeletedAt.Unix(), second.DeletedAt.Unix())
}

func TestEditRelocatesObject(t *testing.T) {
	t.Parallel()
	s, _, objects := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("pdf"))
	require.NoError(t, err)
	oldPath := s.pathOf(&view.Paper)

	meta := uploadedMeta(2024)
	edited, err := s.EditPaper(ctx, view.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, 2024, edited.Year)

	newPath := s.pathOf(&edited.Paper)
	assert.NotEqual(t, oldPath, newPath)
	assert.False(t, objects.has(oldPath), "old object must be gone")
	assert.True(t, objects.has(newPath), "object must live at the new path")
	assert.Contains(t, edited.Filelink, "_2024_")
}

func TestEditRollsBackOnRelocationFailure(t *testing.T) {
	t.Parallel()
	s, repo, objects := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("pdf"))
	require.NoError(t, err)
	oldPath := s.pathOf(&view.Paper)

	objects.failMove = true
	_, err = s.EditPaper(ctx, view.ID, uploadedMeta(2024))
	require.ErrorIs(t, err, ErrRelocationFailed)

	// Der Datensatz ist unverändert, die Datei am alten Ort.
	p, err := repo.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, 2023, p.Year)
	assert.True(t, objects.has(oldPath))
}

func TestEditWithoutPathChangeSkipsRelocation(t *testing.T) {
	t.Parallel()
	s, _, objects := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("pdf"))
	require.NoError(t, err)

	// Nur der Kursname ändert sich, der Pfad nicht: ein kaputter
	// Objektspeicher darf den Edit nicht verhindern.
	objects.failMove = true
	meta := uploadedMeta(2023)
	meta.CourseName = "Corrected Course Title"
	edited, err := s.EditPaper(ctx, view.ID, meta)
	require.NoError(t, err)
	assert.Equal(t, "Corrected Course Title", edited.CourseName)
}

func TestEditNotFound(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)

	_, err := s.EditPaper(context.Background(), uuid.New(), uploadedMeta(2023))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSetApprovalLibraryImmutable(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertLibraryPaper(ctx, uploadedMeta(2023), []byte("pdf"))
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, view.Approval)

	_, err = s.SetApproval(ctx, view.ID, false)
	require.ErrorIs(t, err, ErrLibraryImmutable)
}

func TestApprovalAndDeletionAreOrthogonal(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("pdf"))
	require.NoError(t, err)

	_, err = s.SoftDelete(ctx, view.ID)
	require.NoError(t, err)

	// Ablehnen löscht nicht, Genehmigen restauriert nicht.
	rejected, err := s.Reject(ctx, view.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, rejected.Approval)
	assert.True(t, rejected.Deleted)

	approved, err := s.SetApproval(ctx, view.ID, true)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, approved.Approval)
	assert.True(t, approved.Deleted)
}

func TestRestore(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("pdf"))
	require.NoError(t, err)
	_, err = s.SoftDelete(ctx, view.ID)
	require.NoError(t, err)

	restored, err := s.Restore(ctx, view.ID)
	require.NoError(t, err)
	assert.False(t, restored.Deleted)
	assert.Nil(t, restored.DeletedAt)

	trash, err := s.ListTrash(ctx)
	require.NoError(t, err)
	assert.Empty(t, trash)
}

func TestHardDeletePartialFailure(t *testing.T) {
	t.Parallel()
	s, repo, objects := newTestStore(t)
	ctx := context.Background()

	a, err := s.InsertUploadedPaper(ctx, uploadedMeta(2022), []byte("a"))
	require.NoError(t, err)
	b, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("b"))
	require.NoError(t, err)
	_, err = s.SoftDelete(ctx, a.ID)
	require.NoError(t, err)
	_, err = s.SoftDelete(ctx, b.ID)
	require.NoError(t, err)

	// Die Datei von b lässt sich nicht entfernen.
	bPaper, err := repo.Get(ctx, b.ID)
	require.NoError(t, err)
	objects.failDelete[s.pathOf(bPaper)] = true

	results := s.HardDelete(ctx, []uuid.UUID{a.ID, b.ID})
	require.Len(t, results, 2)
	assert.True(t, results[0].Success)
	assert.Equal(t, a.ID, results[0].ID)
	assert.False(t, results[1].Success)
	assert.Equal(t, b.ID, results[1].ID)
	assert.NotEmpty(t, results[1].Error)

	// a ist endgültig weg, b bleibt im Papierkorb adressierbar.
	trash, err := s.ListTrash(ctx)
	require.NoError(t, err)
	require.Len(t, trash, 1)
	assert.Equal(t, b.ID, trash[0].ID)

	_, err = repo.Get(ctx, a.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestHardDeleteUnknownID(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)

	results := s.HardDelete(context.Background(), []uuid.UUID{uuid.New()})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestSearchExcludesPendingAndDeleted(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	lib, err := s.InsertLibraryPaper(ctx, uploadedMeta(2020), []byte("lib"))
	require.NoError(t, err)
	up, err := s.InsertUploadedPaper(ctx, uploadedMeta(2023), []byte("up"))
	require.NoError(t, err)

	hits, err := s.Search(ctx, "CS10001", search.Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1, "pending uploads must not be searchable")
	assert.Equal(t, lib.ID, hits[0].ID)

	_, err = s.SetApproval(ctx, up.ID, true)
	require.NoError(t, err)
	hits, err = s.Search(ctx, "CS10001", search.Filters{})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	_, err = s.SoftDelete(ctx, up.ID)
	require.NoError(t, err)
	hits, err = s.Search(ctx, "CS10001", search.Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1, "deleted papers must vanish from search")
	assert.Equal(t, lib.ID, hits[0].ID)
}

func TestSearchEmptyQuery(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.InsertLibraryPaper(ctx, uploadedMeta(2020), []byte("lib"))
	require.NoError(t, err)

	hits, err := s.Search(ctx, "", search.Filters{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchHitCarriesFilelink(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertLibraryPaper(ctx, uploadedMeta(2020), []byte("lib"))
	require.NoError(t, err)

	hits, err := s.Search(ctx, "CS10001", search.Filters{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.True(t, strings.HasPrefix(hits[0].Filelink, "http://test/static/library/"))
	assert.Contains(t, hits[0].Filelink, view.ID.String())
}

func TestConcurrentMutationsStayConsistent(t *testing.T) {
	t.Parallel()
	s, repo, objects := newTestStore(t)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2020), []byte("pdf"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		year := 2015 + i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.EditPaper(ctx, view.ID, uploadedMeta(year))
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.SetApproval(ctx, view.ID, year%2 == 0)
		}()
	}
	wg.Wait()

	// Egal wer zuletzt gewonnen hat: Datensatz und Ablageort passen
	// zusammen.
	p, err := repo.Get(ctx, view.ID)
	require.NoError(t, err)
	assert.True(t, objects.has(s.pathOf(p)), "stored object must match the record's derived path")
}

func TestLockTimeoutReturnsConflict(t *testing.T) {
	t.Parallel()
	s, _, _ := newTestStore(t)
	s.locks = newIDLocks(20 * time.Millisecond)
	ctx := context.Background()

	view, err := s.InsertUploadedPaper(ctx, uploadedMeta(2020), []byte("pdf"))
	require.NoError(t, err)

	unlock, err := s.locks.acquire(ctx, view.ID)
	require.NoError(t, err)
	defer unlock()

	_, err = s.SoftDelete(ctx, view.ID)
	require.ErrorIs(t, err, ErrConflict)
}

func TestPurgeExpiredTrash(t *testing.T) {
	t.Parallel()
	s, repo, _ := newTestStore(t)
	ctx := context.Background()

	old, err := s.InsertUploadedPaper(ctx, uploadedMeta(2020), []byte("old"))
	require.NoError(t, err)
	fresh, err := s.InsertUploadedPaper(ctx, uploadedMeta(2021), []byte("fresh"))
	require.NoError(t, err)

	_, err = s.SoftDelete(ctx, old.ID)
	require.NoError(t, err)
	_, err = s.SoftDelete(ctx, fresh.ID)
	require.NoError(t, err)

	// Den Löschzeitpunkt des alten Papers künstlich zurückdatieren.
	p, err := repo.Get(ctx, old.ID)
	require.NoError(t, err)
	past := time.Now().Add(-40 * 24 * time.Hour)
	p.DeletedAt = &past
	require.NoError(t, repo.Update(ctx, p))

	purged, err := s.PurgeExpiredTrash(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, purged)

	_, err = repo.Get(ctx, old.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = repo.Get(ctx, fresh.ID)
	require.NoError(t, err)
}
