package memory

import (
	"context"
	"slices"

	"github.com/alem-hub/progress-engine/internal/domain/notification"
	"github.com/alem-hub/progress-engine/internal/domain/relevance"
	"github.com/alem-hub/progress-engine/internal/domain/shared"
)

// RelevanceRepository implements relevance.ProfileReader and relevance.ProjectReader.
type RelevanceRepository struct {
	store *Store
}

// NewRelevanceRepository creates a relevance view over the store.
func NewRelevanceRepository(store *Store) *RelevanceRepository {
	return &RelevanceRepository{store: store}
}

// GetProfile returns the stored profile of a user.
func (r *RelevanceRepository) GetProfile(_ context.Context, userID string) (*relevance.Profile, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	p, ok := r.store.profiles[userID]
	if !ok {
		return nil, shared.ErrProfileNotFound
	}
	return &p, nil
}

// ListProjects returns projects matching the filter in insertion order.
func (r *RelevanceRepository) ListProjects(_ context.Context, filter relevance.ProjectFilter) ([]relevance.Project, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []relevance.Project
	for _, p := range r.store.projects {
		if filter.Category != "" && p.Category != filter.Category {
			continue
		}
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, p.ID) {
			continue
		}
		result = append(result, p)
		if filter.Limit > 0 && len(result) == filter.Limit {
			break
		}
	}
	return result, nil
}

// NotificationRepository implements notification.Repository.
type NotificationRepository struct {
	store *Store
}

// NewNotificationRepository creates a notification view over the store.
func NewNotificationRepository(store *Store) *NotificationRepository {
	return &NotificationRepository{store: store}
}

// Write appends a notification.
func (r *NotificationRepository) Write(_ context.Context, n *notification.Notification) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.notifications = append(r.store.notifications, *n)
	return nil
}

// ListByUser returns the latest notifications of a user, newest first.
func (r *NotificationRepository) ListByUser(_ context.Context, userID string, limit int) ([]*notification.Notification, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*notification.Notification
	for i := len(r.store.notifications) - 1; i >= 0; i-- {
		n := r.store.notifications[i]
		if n.UserID != userID {
			continue
		}
		result = append(result, &n)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

var (
	_ relevance.ProfileReader = (*RelevanceRepository)(nil)
	_ relevance.ProjectReader = (*RelevanceRepository)(nil)
	_ notification.Repository = (*NotificationRepository)(nil)
)
