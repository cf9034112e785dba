// Package store besitzt den Paper-Korpus: CRUD, Lebenszyklus-Übergänge und
// die Suche. Niemand sonst mutiert persistierte Paper. Mutationen auf
// derselben id werden serialisiert; verschiedene ids laufen parallel.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"qpaper-archive/models"
	"qpaper-archive/resolver"
	"qpaper-archive/search"
	"qpaper-archive/storage"
)

// PaperView ist die nach außen gereichte Sicht auf ein Paper: der Datensatz
// plus der daraus abgeleitete Filelink. Der Link wird bei jedem Lesen neu
// berechnet und nie gespeichert.
type PaperView struct {
	models.Paper
	Filelink string `json:"filelink"`
}

// SearchHit ist ein Suchtreffer mit Ranking-Score.
type SearchHit struct {
	PaperView
	Score float64 `json:"score"`
}

// HardDeleteResult meldet den Ausgang eines einzelnen Batch-Eintrags.
// Teilfehler blockieren die übrigen Einträge nicht.
type HardDeleteResult struct {
	ID      uuid.UUID `json:"id"`
	Success bool      `json:"success"`
	Error   string    `json:"error,omitempty"`
}

// PaperStore orchestriert Repository, Objektspeicher und Resolver.
type PaperStore struct {
	repo     Repository
	objects  storage.ObjectStore
	resolver *resolver.Resolver
	logger   *zap.Logger

	trashPageSize int
	locks         *idLocks
}

func New(repo Repository, objects storage.ObjectStore, res *resolver.Resolver, logger *zap.Logger, trashPageSize int) *PaperStore {
	if trashPageSize <= 0 {
		trashPageSize = 50
	}
	return &PaperStore{
		repo:          repo,
		objects:       objects,
		resolver:      res,
		logger:        logger,
		trashPageSize: trashPageSize,
		locks:         newIDLocks(10 * time.Second),
	}
}

func categoryFor(origin models.Origin) string {
	if origin == models.OriginLibrary {
		return resolver.CategoryLibrary
	}
	return resolver.CategoryUploaded
}

// pathOf leitet den Ablagepfad eines Papers aus seinen Metadaten ab.
func (s *PaperStore) pathOf(p *models.Paper) string {
	return s.resolver.PathFor(categoryFor(p.Origin), resolver.Meta{
		CourseCode: p.CourseCode,
		Year:       p.Year,
		Exam:       p.Exam,
		Semester:   p.Semester,
		ID:         p.ID.String(),
	})
}

func (s *PaperStore) view(p *models.Paper) PaperView {
	return PaperView{Paper: *p, Filelink: s.resolver.URLFor(s.pathOf(p))}
}

// InsertLibraryPaper legt einen vorab geprüften Bibliotheks-Scan an, immer
// mit Approval "approved". data darf nil sein, wenn die Datei bereits am
// Zielpfad liegt.
func (s *PaperStore) InsertLibraryPaper(ctx context.Context, meta models.Meta, data []byte) (PaperView, error) {
	return s.insert(ctx, meta, data, models.OriginLibrary, models.ApprovalApproved)
}

// InsertUploadedPaper legt einen öffentlichen Upload mit Approval "pending"
// an. Die Datei wird vor dem Datensatz geschrieben: kein Datensatz zeigt je
// auf ein fehlendes Objekt.
func (s *PaperStore) InsertUploadedPaper(ctx context.Context, meta models.Meta, data []byte) (PaperView, error) {
	return s.insert(ctx, meta, data, models.OriginUploaded, models.ApprovalPending)
}

func (s *PaperStore) insert(ctx context.Context, meta models.Meta, data []byte, origin models.Origin, approval models.Approval) (PaperView, error) {
	p := &models.Paper{
		ID:         uuid.New(),
		CourseCode: meta.CourseCode,
		CourseName: meta.CourseName,
		Year:       meta.Year,
		Semester:   meta.Semester,
		Exam:       meta.Exam,
		Origin:     origin,
		Approval:   approval,
	}
	path := s.pathOf(p)

	if data != nil {
		if err := s.objects.Put(ctx, path, data); err != nil {
			return PaperView{}, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
		}
	}
	if err := s.repo.Create(ctx, p); err != nil {
		// Datei nicht verwaisen lassen.
		if data != nil {
			if derr := s.objects.Delete(ctx, path); derr != nil {
				s.logger.Warn("Aufräumen nach fehlgeschlagenem Insert fehlgeschlagen",
					zap.String("path", path), zap.Error(derr))
			}
		}
		return PaperView{}, err
	}
	s.logger.Info("Paper angelegt",
		zap.String("id", p.ID.String()),
		zap.String("course_code", p.CourseCode),
		zap.String("origin", string(origin)))
	return s.view(p), nil
}

// EditPaper korrigiert die Metadaten eines Papers. Ändert sich ein
// pfadbestimmendes Feld, wird die Datei mit dem Update zusammen verschoben;
// scheitert das Verschieben, bleibt der Datensatz unangetastet.
func (s *PaperStore) EditPaper(ctx context.Context, id uuid.UUID, meta models.Meta) (PaperView, error) {
	unlock, err := s.locks.acquire(ctx, id)
	if err != nil {
		return PaperView{}, err
	}
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return PaperView{}, err
	}

	oldPath := s.pathOf(p)
	updated := *p
	updated.CourseCode = meta.CourseCode
	updated.CourseName = meta.CourseName
	updated.Year = meta.Year
	updated.Semester = meta.Semester
	updated.Exam = meta.Exam
	newPath := s.pathOf(&updated)

	if newPath != oldPath {
		if err := s.objects.Move(ctx, oldPath, newPath); err != nil {
			s.logger.Error("Relocation fehlgeschlagen, Edit verworfen",
				zap.String("id", id.String()),
				zap.String("old_path", oldPath),
				zap.String("new_path", newPath),
				zap.Error(err))
			return PaperView{}, fmt.Errorf("%w: %v", ErrRelocationFailed, err)
		}
	}
	if err := s.repo.Update(ctx, &updated); err != nil {
		// Metadaten-Update gescheitert: Datei zurückschieben, damit
		// Datensatz und Ablageort konsistent bleiben.
		if newPath != oldPath {
			if merr := s.objects.Move(ctx, newPath, oldPath); merr != nil {
				s.logger.Error("Rückverschieben nach fehlgeschlagenem Update fehlgeschlagen",
					zap.String("id", id.String()), zap.Error(merr))
			}
		}
		return PaperView{}, err
	}
	return s.view(&updated), nil
}

// SetApproval setzt den Review-Status eines hochgeladenen Papers. Das
// Deleted-Flag bleibt unberührt: Approval und Löschung sind orthogonal.
func (s *PaperStore) SetApproval(ctx context.Context, id uuid.UUID, approved bool) (PaperView, error) {
	unlock, err := s.locks.acquire(ctx, id)
	if err != nil {
		return PaperView{}, err
	}
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return PaperView{}, err
	}
	if p.Origin == models.OriginLibrary {
		return PaperView{}, ErrLibraryImmutable
	}
	if approved {
		p.Approval = models.ApprovalApproved
	} else {
		p.Approval = models.ApprovalRejected
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return PaperView{}, err
	}
	s.logger.Info("Approval gesetzt",
		zap.String("id", id.String()), zap.Bool("approved", approved))
	return s.view(p), nil
}

// Reject ist die Kurzform für SetApproval(id, false): abgelehnt, aber nicht
// gelöscht.
func (s *PaperStore) Reject(ctx context.Context, id uuid.UUID) (PaperView, error) {
	return s.SetApproval(ctx, id, false)
}

// SoftDelete setzt das Deleted-Flag. Idempotent: ein bereits gelöschtes
// Paper erneut zu löschen ist ein No-Op-Erfolg.
func (s *PaperStore) SoftDelete(ctx context.Context, id uuid.UUID) (PaperView, error) {
	unlock, err := s.locks.acquire(ctx, id)
	if err != nil {
		return PaperView{}, err
	}
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return PaperView{}, err
	}
	if p.Deleted {
		return s.view(p), nil
	}
	now := time.Now()
	p.Deleted = true
	p.DeletedAt = &now
	if err := s.repo.Update(ctx, p); err != nil {
		return PaperView{}, err
	}
	return s.view(p), nil
}

// Restore hebt eine Soft-Löschung wieder auf.
func (s *PaperStore) Restore(ctx context.Context, id uuid.UUID) (PaperView, error) {
	unlock, err := s.locks.acquire(ctx, id)
	if err != nil {
		return PaperView{}, err
	}
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return PaperView{}, err
	}
	if !p.Deleted {
		return s.view(p), nil
	}
	p.Deleted = false
	p.DeletedAt = nil
	if err := s.repo.Update(ctx, p); err != nil {
		return PaperView{}, err
	}
	return s.view(p), nil
}

// HardDelete entfernt Datensatz und Datei endgültig, je Eintrag unabhängig:
// ein Fehlschlag blockiert die übrigen ids nicht, und die Sperre wird nie
// über den ganzen Batch gehalten.
func (s *PaperStore) HardDelete(ctx context.Context, ids []uuid.UUID) []HardDeleteResult {
	results := make([]HardDeleteResult, 0, len(ids))
	for _, id := range ids {
		results = append(results, s.hardDeleteOne(ctx, id))
	}
	return results
}

func (s *PaperStore) hardDeleteOne(ctx context.Context, id uuid.UUID) HardDeleteResult {
	unlock, err := s.locks.acquire(ctx, id)
	if err != nil {
		return HardDeleteResult{ID: id, Error: err.Error()}
	}
	defer unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return HardDeleteResult{ID: id, Error: err.Error()}
	}
	if err := s.objects.Delete(ctx, s.pathOf(p)); err != nil {
		s.logger.Error("Datei-Löschung fehlgeschlagen, Datensatz bleibt",
			zap.String("id", id.String()), zap.Error(err))
		return HardDeleteResult{ID: id, Error: err.Error()}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return HardDeleteResult{ID: id, Error: err.Error()}
	}
	s.logger.Info("Paper endgültig gelöscht", zap.String("id", id.String()))
	return HardDeleteResult{ID: id, Success: true}
}

// ListUnapproved liefert die Review-Warteschlange, neueste zuerst.
func (s *PaperStore) ListUnapproved(ctx context.Context) ([]PaperView, error) {
	papers, err := s.repo.ListUnapproved(ctx)
	if err != nil {
		return nil, err
	}
	return s.views(papers), nil
}

// ListTrash liefert den Papierkorb, zuletzt gelöschte zuerst, begrenzt auf
// eine Seite.
func (s *PaperStore) ListTrash(ctx context.Context) ([]PaperView, error) {
	papers, err := s.repo.ListTrash(ctx, s.trashPageSize)
	if err != nil {
		return nil, err
	}
	return s.views(papers), nil
}

// Search bewertet den sichtbaren Korpus (nicht gelöscht, approved oder
// Bibliothek) gegen die Query und liefert die Treffer geordnet.
func (s *PaperStore) Search(ctx context.Context, query string, f search.Filters) ([]SearchHit, error) {
	papers, err := s.repo.ListSearchable(ctx)
	if err != nil {
		return nil, err
	}
	ranked := search.Rank(papers, query, f)
	hits := make([]SearchHit, 0, len(ranked))
	for i := range ranked {
		hits = append(hits, SearchHit{
			PaperView: s.view(&ranked[i].Paper),
			Score:     ranked[i].Score,
		})
	}
	return hits, nil
}

// PurgeExpiredTrash löscht soft-gelöschte Paper endgültig, deren
// Löschzeitpunkt länger als die Aufbewahrungsfrist zurückliegt. Liefert die
// Anzahl erfolgreich entfernter Paper.
func (s *PaperStore) PurgeExpiredTrash(ctx context.Context, retention time.Duration) (int, error) {
	expired, err := s.repo.ListTrashOlderThan(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	ids := make([]uuid.UUID, 0, len(expired))
	for _, p := range expired {
		ids = append(ids, p.ID)
	}
	purged := 0
	for _, res := range s.HardDelete(ctx, ids) {
		if res.Success {
			purged++
		}
	}
	return purged, nil
}

func (s *PaperStore) views(papers []models.Paper) []PaperView {
	out := make([]PaperView, 0, len(papers))
	for i := range papers {
		out = append(out, s.view(&papers[i]))
	}
	return out
}
