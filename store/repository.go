package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"qpaper-archive/models"
)

// Repository ist die Persistenzschnittstelle des PaperStore. Die
// gorm-Implementierung ist die einzige produktive; Tests hängen einen
// In-Memory-Fake dahinter.
type Repository interface {
	Create(ctx context.Context, p *models.Paper) error
	Get(ctx context.Context, id uuid.UUID) (*models.Paper, error)
	Update(ctx context.Context, p *models.Paper) error
	Delete(ctx context.Context, id uuid.UUID) error

	// ListUnapproved: alle hochgeladenen, nicht gelöschten Paper mit
	// Approval "pending", neueste zuerst.
	ListUnapproved(ctx context.Context) ([]models.Paper, error)
	// ListTrash: soft-gelöschte Paper, zuletzt gelöschte zuerst.
	ListTrash(ctx context.Context, limit int) ([]models.Paper, error)
	// ListTrashOlderThan: soft-gelöschte Paper mit Löschzeitpunkt vor dem
	// Cutoff, für die zyklische Endreinigung.
	ListTrashOlderThan(ctx context.Context, cutoff time.Time) ([]models.Paper, error)
	// ListSearchable: der Such-Korpus, also nicht gelöschte Paper, die
	// entweder aus der Bibliothek stammen oder approved sind.
	ListSearchable(ctx context.Context) ([]models.Paper, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewGormRepository legt die produktive Postgres-Implementierung an.
func NewGormRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) Create(ctx context.Context, p *models.Paper) error {
	if err := r.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *gormRepository) Get(ctx context.Context, id uuid.UUID) (*models.Paper, error) {
	var p models.Paper
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &p, nil
}

func (r *gormRepository) Update(ctx context.Context, p *models.Paper) error {
	if err := r.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (r *gormRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Delete(&models.Paper{}, "id = ?", id)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRepository) ListUnapproved(ctx context.Context) ([]models.Paper, error) {
	var papers []models.Paper
	err := r.db.WithContext(ctx).
		Where("origin = ? AND approval = ? AND deleted = ?",
			models.OriginUploaded, models.ApprovalPending, false).
		Order("created_at desc").
		Find(&papers).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return papers, nil
}

func (r *gormRepository) ListTrash(ctx context.Context, limit int) ([]models.Paper, error) {
	var papers []models.Paper
	err := r.db.WithContext(ctx).
		Where("deleted = ?", true).
		Order("deleted_at desc").
		Limit(limit).
		Find(&papers).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return papers, nil
}

func (r *gormRepository) ListTrashOlderThan(ctx context.Context, cutoff time.Time) ([]models.Paper, error) {
	var papers []models.Paper
	err := r.db.WithContext(ctx).
		Where("deleted = ? AND deleted_at < ?", true, cutoff).
		Find(&papers).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return papers, nil
}

func (r *gormRepository) ListSearchable(ctx context.Context) ([]models.Paper, error) {
	var papers []models.Paper
	err := r.db.WithContext(ctx).
		Where("deleted = ? AND (origin = ? OR approval = ?)",
			false, models.OriginLibrary, models.ApprovalApproved).
		Find(&papers).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return papers, nil
}
