// Package memory is an in-process implementation of the repository
// interfaces. It backs the store.driver=memory mode and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/model"
	"github.com/teamflow/notification-service/internal/repository"
)

// record serializes mutations of one notification. No lock in this package
// spans more than one record.
type record struct {
	mu sync.Mutex
	n  *model.Notification
}

type NotificationStore struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*record
	byRecipient map[uuid.UUID][]uuid.UUID

	now func() time.Time
}

func NewNotificationStore() *NotificationStore {
	return &NotificationStore{
		records:     make(map[uuid.UUID]*record),
		byRecipient: make(map[uuid.UUID][]uuid.UUID),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *NotificationStore) lookup(id uuid.UUID) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	return r, ok
}

func (s *NotificationStore) Create(_ context.Context, n *model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[n.ID]; ok {
		return nil
	}
	s.records[n.ID] = &record{n: n.Clone()}
	s.byRecipient[n.RecipientID] = append(s.byRecipient[n.RecipientID], n.ID)
	return nil
}

func (s *NotificationStore) Get(_ context.Context, id uuid.UUID) (*model.Notification, error) {
	r, ok := s.lookup(id)
	if !ok {
		return nil, repository.ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n.Clone(), nil
}

func (s *NotificationStore) recipientRecords(userID uuid.UUID) []*record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byRecipient[userID]
	records := make([]*record, 0, len(ids))
	for _, id := range ids {
		records = append(records, s.records[id])
	}
	return records
}

func (s *NotificationStore) ListByRecipient(_ context.Context, userID uuid.UUID) ([]*model.Notification, error) {
	notifications := []*model.Notification{}
	for _, r := range s.recipientRecords(userID) {
		r.mu.Lock()
		notifications = append(notifications, r.n.Clone())
		r.mu.Unlock()
	}
	sortNewestFirst(notifications)
	return notifications, nil
}

func sortNewestFirst(notifications []*model.Notification) {
	sort.SliceStable(notifications, func(i, j int) bool {
		a, b := notifications[i], notifications[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
}

func (s *NotificationStore) ListUnreadIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	notifications, err := s.ListByRecipient(ctx, userID)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, n := range notifications {
		if !n.IsRead {
			ids = append(ids, n.ID)
		}
	}
	return ids, nil
}

func (s *NotificationStore) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	ids, err := s.ListUnreadIDs(ctx, userID)
	return len(ids), err
}

func (s *NotificationStore) CompareAndSetRead(_ context.Context, id uuid.UUID, expected, value bool) (bool, error) {
	if expected && !value {
		return false, repository.ErrIllegalTransition
	}
	r, ok := s.lookup(id)
	if !ok {
		return false, repository.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n.IsRead != expected {
		return false, nil
	}
	if expected == value {
		return true, nil
	}

	now := s.now()
	r.n.IsRead = true
	r.n.ReadAt = &now
	r.n.Version++
	return true, nil
}

func (s *NotificationStore) CompareAndSetInvitationAccepted(_ context.Context, id uuid.UUID) (model.AcceptOutcome, error) {
	r, ok := s.lookup(id)
	if !ok {
		return "", repository.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n.Type != model.TypeProjectInvitation || r.n.Invitation == nil {
		return "", repository.ErrIllegalTransition
	}
	if r.n.Invitation.Accepted {
		return model.AlreadyAccepted, nil
	}

	now := s.now()
	r.n.Invitation.Accepted = true
	r.n.Invitation.ResolvedAt = &now
	if !r.n.IsRead {
		r.n.IsRead = true
		r.n.ReadAt = &now
	}
	r.n.Version++
	return model.Accepted, nil
}

func (s *NotificationStore) SetGrantPending(_ context.Context, id uuid.UUID, pending bool) (bool, error) {
	r, ok := s.lookup(id)
	if !ok {
		return false, repository.ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.n.Invitation == nil || !r.n.Invitation.Accepted || r.n.Invitation.GrantPending == pending {
		return false, nil
	}
	r.n.Invitation.GrantPending = pending
	r.n.Version++
	return true, nil
}

func (s *NotificationStore) ListUngranted(_ context.Context, limit int) ([]*model.Notification, error) {
	s.mu.RLock()
	records := make([]*record, 0, len(s.records))
	for _, r := range s.records {
		records = append(records, r)
	}
	s.mu.RUnlock()

	var ungranted []*model.Notification
	for _, r := range records {
		r.mu.Lock()
		n := r.n.Clone()
		r.mu.Unlock()

		if n.Invitation == nil || !n.Invitation.Accepted || !n.Invitation.GrantPending {
			continue
		}
		ungranted = append(ungranted, n)
	}

	sort.Slice(ungranted, func(i, j int) bool {
		return ungranted[i].Invitation.ResolvedAt.Before(*ungranted[j].Invitation.ResolvedAt)
	})
	if len(ungranted) > limit {
		ungranted = ungranted[:limit]
	}
	return ungranted, nil
}
