// Package memory implements the repositories in process memory. It backs
// STORE_DRIVER=memory and the service tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/coolpis/internal/models"
	"github.com/example/coolpis/internal/repository"
)

// New returns a Store with every collection held in memory and the catalog seeded.
func New() repository.Store {
	products := &ProductStore{items: make(map[string]models.Product)}
	for _, p := range models.DefaultProducts() {
		p.CreatedAt = time.Now()
		products.items[p.ID] = p
	}

	return repository.Store{
		Orders:   NewOrderStore().Repository(),
		Profiles: &ProfileStore{items: make(map[string]models.BusinessProfile)},
		Payments: &PaymentStore{items: make(map[string]models.Payment)},
		Products: products,
	}
}

// ProfileStore is an in-memory ProfileRepository.
type ProfileStore struct {
	mu    sync.RWMutex
	items map[string]models.BusinessProfile
}

func (s *ProfileStore) Get(ctx context.Context, uid string) (*models.BusinessProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[uid]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *ProfileStore) Save(ctx context.Context, profile *models.BusinessProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile.UpdatedAt = time.Now()
	profile.UID = strings.Clone(profile.UID)
	s.items[profile.UID] = *profile
	return nil
}

func (s *ProfileStore) FindByRegistrationNumber(ctx context.Context, variants ...string) (*models.BusinessProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, variant := range variants {
		var matches []models.BusinessProfile
		for _, p := range s.items {
			if p.RegistrationNumber == variant {
				matches = append(matches, p)
			}
		}
		if len(matches) == 0 {
			continue
		}
		sort.Slice(matches, func(i, j int) bool { return matches[i].UpdatedAt.After(matches[j].UpdatedAt) })
		return &matches[0], nil
	}
	return nil, repository.ErrNotFound
}

func (s *ProfileStore) List(ctx context.Context) ([]models.BusinessProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.BusinessProfile, 0, len(s.items))
	for _, p := range s.items {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.After(out[j].RegisteredAt) })
	return out, nil
}

// PaymentStore is an in-memory PaymentRepository.
type PaymentStore struct {
	mu    sync.RWMutex
	items map[string]models.Payment
}

func (s *PaymentStore) Create(ctx context.Context, payment *models.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.CreatedAt.IsZero() {
		payment.CreatedAt = time.Now()
	}
	payment.ID = strings.Clone(payment.ID)
	s.items[payment.ID] = *payment
	return nil
}

func (s *PaymentStore) List(ctx context.Context, filter repository.PaymentFilter) ([]models.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Payment, 0)
	for _, p := range s.items {
		if filter.RegistrationNumber != "" && p.RegistrationNumber != filter.RegistrationNumber {
			continue
		}
		if !repository.InRange(p.CreatedAt, filter.From, filter.To) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *PaymentStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// ProductStore is an in-memory ProductRepository.
type ProductStore struct {
	mu    sync.RWMutex
	items map[string]models.Product
}

func (s *ProductStore) List(ctx context.Context, activeOnly bool) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Product, 0, len(s.items))
	for _, p := range s.items {
		if activeOnly && !p.Active {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *ProductStore) FindByID(ctx context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s *ProductStore) FindByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]models.Product, len(ids))
	for _, id := range ids {
		if p, ok := s.items[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

func (s *ProductStore) Save(ctx context.Context, product *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if existing, ok := s.items[product.ID]; ok {
		product.CreatedAt = existing.CreatedAt
	} else if product.CreatedAt.IsZero() {
		product.CreatedAt = now
	}
	product.UpdatedAt = now
	product.ID = strings.Clone(product.ID)
	s.items[product.ID] = *product
	return nil
}

func (s *ProductStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(s.items, id)
	return nil
}
