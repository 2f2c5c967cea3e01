// Package client keeps a local, optimistic view of a user's notifications in
// step with the notification service.
//
// Every item carries a Status. A user action moves the item to Pending and
// patches the view before the request is sent; while it is Pending further
// actions on the same item are refused with ErrInFlight and never reach the
// service. Realtime events for a Pending item are held back and replayed once
// the response lands. An event older than the view is dropped; one at the
// same version only contributes its invitation outcome.
package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teamflow/notification-service/internal/model"
)

type Status int

const (
	Idle Status = iota
	Pending
	Applied
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	case Failed:
		return "failed"
	}
	return "unknown"
}

type Item struct {
	View   model.NotificationView
	Status Status
	// Err is the failure behind a Failed status.
	Err error
	// Outcome is how the invitation was resolved, from this session's accept
	// or from an invitation_resolved event.
	Outcome model.AcceptOutcome
}

type entry struct {
	item Item
	// base is the last authoritative view, restored if a pending change fails.
	base     model.NotificationView
	buffered []model.ChangeEvent
}

type SyncController struct {
	api API

	mu      sync.Mutex
	entries map[uuid.UUID]*entry
}

func NewSyncController(api API) *SyncController {
	return &SyncController{
		api:     api,
		entries: make(map[uuid.UUID]*entry),
	}
}

// Refresh replaces the view with the service's list. Items with a change in
// flight keep their optimistic value; their rollback base is updated.
func (c *SyncController) Refresh(ctx context.Context) error {
	views, err := c.api.List(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	seen := make(map[uuid.UUID]struct{}, len(views))
	for _, v := range views {
		seen[v.ID] = struct{}{}
		e, ok := c.entries[v.ID]
		if !ok {
			c.entries[v.ID] = &entry{item: Item{View: v.Clone(), Status: Idle}, base: v.Clone()}
			continue
		}
		if e.item.Status == Pending {
			if v.Version >= e.base.Version {
				e.base = v.Clone()
			}
			continue
		}
		if v.Version >= e.item.View.Version {
			e.item.View = v.Clone()
			e.base = v.Clone()
		}
	}

	for id, e := range c.entries {
		if _, ok := seen[id]; !ok && e.item.Status != Pending {
			delete(c.entries, id)
		}
	}
	return nil
}

// Snapshot returns the current view, newest first.
func (c *SyncController) Snapshot() []Item {
	c.mu.Lock()
	items := make([]Item, 0, len(c.entries))
	for _, e := range c.entries {
		item := e.item
		item.View = item.View.Clone()
		items = append(items, item)
	}
	c.mu.Unlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].View, items[j].View
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID.String() > b.ID.String()
	})
	return items
}

func (c *SyncController) Get(id uuid.UUID) (Item, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return Item{}, false
	}
	item := e.item
	item.View = item.View.Clone()
	return item, true
}

// begin marks id Pending and applies patch to its view.
func (c *SyncController) begin(id uuid.UUID, patch func(v *model.NotificationView)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return ErrUnknown
	}
	if e.item.Status == Pending {
		return ErrInFlight
	}

	e.base = e.item.View.Clone()
	view := e.item.View.Clone()
	patch(&view)
	e.item = Item{View: view, Status: Pending, Outcome: e.item.Outcome}
	return nil
}

// settle resolves a pending change. On success the authoritative view
// replaces the optimistic one; on failure the view rolls back to its base
// unless keep is set. Buffered events are replayed afterwards.
func (c *SyncController) settle(id uuid.UUID, authoritative *model.NotificationView, outcome model.AcceptOutcome, err error, keep bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[id]
	if !ok {
		return
	}

	switch {
	case err == nil:
		if authoritative != nil && authoritative.Version >= e.base.Version {
			e.item.View = authoritative.Clone()
			e.base = authoritative.Clone()
		} else {
			e.base = e.item.View.Clone()
		}
		e.item.Status = Applied
		e.item.Err = nil
		if outcome != "" {
			e.item.Outcome = outcome
		}
	case keep:
		e.item.Status = Failed
		e.item.Err = err
	default:
		e.item.View = e.base.Clone()
		e.item.Status = Failed
		e.item.Err = err
	}

	buffered := e.buffered
	e.buffered = nil
	for _, event := range buffered {
		c.applyLocked(event)
	}
}

func optimisticRead(v *model.NotificationView) {
	if v.IsRead {
		return
	}
	now := time.Now().UTC()
	v.IsRead = true
	v.ReadAt = &now
}

func (c *SyncController) MarkRead(ctx context.Context, id uuid.UUID) (model.MarkOutcome, error) {
	if err := c.begin(id, optimisticRead); err != nil {
		return "", err
	}

	result, err := c.api.MarkRead(ctx, id)
	if err != nil {
		c.settle(id, nil, "", err, false)
		return "", err
	}

	c.settle(id, &result.Notification, "", nil, false)
	return result.Outcome, nil
}

// AcceptInvitation returns AlreadyAccepted as a success. A retryable failure
// keeps the optimistic acceptance, since the service has recorded it.
func (c *SyncController) AcceptInvitation(ctx context.Context, id uuid.UUID) (*AcceptResult, error) {
	err := c.begin(id, func(v *model.NotificationView) {
		optimisticRead(v)
		if v.Invitation != nil {
			v.Invitation.Accepted = true
		}
	})
	if err != nil {
		return nil, err
	}

	result, err := c.api.AcceptInvitation(ctx, id)
	if err != nil {
		var statusErr *StatusError
		keep := errors.As(err, &statusErr) && statusErr.Retryable
		c.settle(id, nil, "", err, keep)
		return nil, err
	}

	c.settle(id, &result.Notification, result.Outcome, nil, false)
	return result, nil
}

// MarkAllRead marks every unread item that is not already in flight.
// It returns the number of notifications the service transitioned.
func (c *SyncController) MarkAllRead(ctx context.Context) (int, error) {
	c.mu.Lock()
	var ids []uuid.UUID
	for id, e := range c.entries {
		if e.item.Status == Pending || e.item.View.IsRead {
			continue
		}
		e.base = e.item.View.Clone()
		view := e.item.View.Clone()
		optimisticRead(&view)
		e.item = Item{View: view, Status: Pending, Outcome: e.item.Outcome}
		ids = append(ids, id)
	}
	c.mu.Unlock()

	count, err := c.api.MarkAllRead(ctx)
	for _, id := range ids {
		c.settle(id, nil, "", err, false)
	}
	if err != nil {
		return 0, err
	}
	return count, nil
}

// ApplyEvent merges a realtime event into the view. Events older than the
// held version are dropped.
func (c *SyncController) ApplyEvent(event model.ChangeEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[event.NotificationID]; ok && e.item.Status == Pending {
		e.buffered = append(e.buffered, event)
		return
	}
	c.applyLocked(event)
}

func (c *SyncController) applyLocked(event model.ChangeEvent) {
	if event.Notification == nil {
		return
	}

	e, ok := c.entries[event.NotificationID]
	if !ok {
		view := event.Notification.Clone()
		e = &entry{item: Item{View: view, Status: Idle}, base: view.Clone()}
		c.entries[event.NotificationID] = e
	} else if event.Version < e.item.View.Version {
		return
	} else if event.Version > e.item.View.Version {
		e.item.View = event.Notification.Clone()
		e.base = event.Notification.Clone()
	}

	// an equal version carries the state already held, only its outcome is new
	if event.Kind == model.EventInvitationResolved && event.Outcome != "" && e.item.Outcome == "" {
		e.item.Outcome = event.Outcome
	}
}
