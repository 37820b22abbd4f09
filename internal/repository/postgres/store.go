// Package postgres implements the repositories with gorm over PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

// New returns a Store whose collections share db.
func New(db *gorm.DB) repository.Store {
	return repository.Store{
		Orders:   NewOrderRepository(db),
		Profiles: &profileRepo{db: db},
		Payments: &paymentRepo{db: db},
		Products: &productRepo{db: db},
	}
}

type profileRepo struct {
	db *gorm.DB
}

func (r *profileRepo) Get(ctx context.Context, uid string) (*models.BusinessProfile, error) {
	var p models.BusinessProfile
	if err := r.db.WithContext(ctx).First(&p, "uid = ?", uid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *profileRepo) Save(ctx context.Context, profile *models.BusinessProfile) error {
	profile.UpdatedAt = time.Now()
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "uid"}}, UpdateAll: true}).
		Create(profile).Error
}

func (r *profileRepo) FindByRegistrationNumber(ctx context.Context, variants ...string) (*models.BusinessProfile, error) {
	for _, variant := range variants {
		var p models.BusinessProfile
		err := r.db.WithContext(ctx).
			Where("registration_number = ?", variant).
			Order("updated_at desc").
			First(&p).Error
		if err == nil {
			return &p, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, repository.ErrNotFound
}

func (r *profileRepo) List(ctx context.Context) ([]models.BusinessProfile, error) {
	var out []models.BusinessProfile
	err := r.db.WithContext(ctx).Order("registered_at desc").Find(&out).Error
	return out, err
}

type paymentRepo struct {
	db *gorm.DB
}

func (r *paymentRepo) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *paymentRepo) List(ctx context.Context, filter repository.PaymentFilter) ([]models.Payment, error) {
	query := r.db.WithContext(ctx).Model(&models.Payment{})
	if filter.RegistrationNumber != "" {
		query = query.Where("registration_number = ?", filter.RegistrationNumber)
	}
	if !filter.From.IsZero() {
		query = query.Where("created_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		query = query.Where("created_at <= ?", filter.To)
	}

	var out []models.Payment
	err := query.Order("created_at desc").Find(&out).Error
	return out, err
}

func (r *paymentRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Payment{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type productRepo struct {
	db *gorm.DB
}

func (r *productRepo) List(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	query := r.db.WithContext(ctx).Model(&models.Product{})
	if activeOnly {
		query = query.Where("active = ?", true)
	}
	var out []models.Product
	err := query.Order("created_at, id").Find(&out).Error
	return out, err
}

func (r *productRepo) FindByID(ctx context.Context, id string) (*models.Product, error) {
	var p models.Product
	if err := r.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *productRepo) FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	var found []models.Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	out := make(map[string]models.Product, len(found))
	for _, p := range found {
		out[p.ID] = p
	}
	return out, nil
}

func (r *productRepo) Save(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Save(product).Error
}

func (r *productRepo) Delete(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Product{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
