package rbac

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"parishdesk.org/internal/audit"
	"parishdesk.org/internal/ids"
)

// Requests is the approval queue for role grants that need a second pair of
// eyes. A request is a proposal only; nothing is granted until a reviewer
// approves it, and the grant then runs through the normal Assign path with
// all of its checks.
type Requests struct {
	mu          sync.RWMutex
	roles       *Registry
	assignments *Assignments
	audit       *audit.Log
	byID        map[string]*RoleRequest
	order       []string
	now         func() time.Time
}

// NewRequests creates an empty request queue.
func NewRequests(roles *Registry, assignments *Assignments, auditLog *audit.Log, now func() time.Time) *Requests {
	if now == nil {
		now = time.Now
	}
	return &Requests{
		roles:       roles,
		assignments: assignments,
		audit:       auditLog,
		byID:        make(map[string]*RoleRequest),
		now:         now,
	}
}

// Create files a pending request. The role must exist at filing time; it may
// still be deactivated or deleted before review, which the approval path
// handles by auto-rejecting.
func (q *Requests) Create(ctx context.Context, userID, roleID, requestedBy, reason string, expiresAt *time.Time) (RoleRequest, error) {
	userID = strings.TrimSpace(userID)
	roleID = strings.TrimSpace(roleID)
	requestedBy = strings.TrimSpace(requestedBy)
	if userID == "" || roleID == "" || requestedBy == "" {
		return RoleRequest{}, fmt.Errorf("%w: user_id, role_id and requested_by are required", ErrInvalidInput)
	}
	if _, err := q.roles.Get(roleID); err != nil {
		return RoleRequest{}, err
	}

	req := &RoleRequest{
		ID:          ids.New(),
		UserID:      userID,
		RoleID:      roleID,
		RequestedBy: requestedBy,
		Reason:      strings.TrimSpace(reason),
		Status:      RequestPending,
		ExpiresAt:   copyTime(expiresAt),
		CreatedAt:   q.now().UTC(),
	}

	q.mu.Lock()
	q.byID[req.ID] = req
	q.order = append(q.order, req.ID)
	q.mu.Unlock()

	q.audit.Record(ctx, audit.Entry{
		UserID:     requestedBy,
		Action:     "role_request.create",
		Resource:   "role-requests",
		ResourceID: req.ID,
		Granted:    true,
	})

	return snapshotRequest(req), nil
}

// Review settles a pending request. Approval runs the grant through Assign
// with the reviewer as the assigner; if the grant fails (role gone inactive,
// duplicate, capacity) the request is rejected with the failure noted. The
// whole settle happens under one critical section, so a concurrent read
// never observes an approved request without a matching assignment.
func (q *Requests) Review(ctx context.Context, requestID, reviewerID string, approve bool, notes string) (RoleRequest, error) {
	reviewerID = strings.TrimSpace(reviewerID)
	if reviewerID == "" {
		return RoleRequest{}, fmt.Errorf("%w: reviewer id is required", ErrInvalidInput)
	}

	q.mu.Lock()
	req, ok := q.byID[requestID]
	if !ok {
		q.mu.Unlock()
		return RoleRequest{}, fmt.Errorf("%w: %s", ErrRequestNotFound, requestID)
	}
	if req.Status != RequestPending {
		q.mu.Unlock()
		return RoleRequest{}, fmt.Errorf("%w: request %s is %s", ErrAlreadyReviewed, requestID, req.Status)
	}

	now := q.now().UTC()
	req.ReviewedBy = reviewerID
	req.ReviewedAt = &now
	req.Notes = strings.TrimSpace(notes)

	var grantErr error
	switch {
	case !approve:
		req.Status = RequestRejected
	default:
		_, grantErr = q.assignments.Assign(ctx, req.UserID, req.RoleID, reviewerID, req.ExpiresAt, nil)
		if grantErr != nil {
			req.Status = RequestRejected
			if req.Notes != "" {
				req.Notes += "; "
			}
			req.Notes += "Auto-rejected: " + grantErr.Error()
		} else {
			req.Status = RequestApproved
		}
	}
	snapshot := snapshotRequest(req)
	q.mu.Unlock()

	entry := audit.Entry{
		UserID:     reviewerID,
		Action:     "role_request.review",
		Resource:   "role-requests",
		ResourceID: snapshot.ID,
		Granted:    snapshot.Status == RequestApproved,
	}
	if grantErr != nil {
		entry.Reason = grantErr.Error()
	} else if snapshot.Status == RequestRejected {
		entry.Reason = snapshot.Notes
	}
	q.audit.Record(ctx, entry)

	return snapshot, nil
}

// Get returns the request with the given id.
func (q *Requests) Get(id string) (RoleRequest, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	req, ok := q.byID[id]
	if !ok {
		return RoleRequest{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	return snapshotRequest(req), nil
}

// List returns requests, newest first, optionally filtered by status.
func (q *Requests) List(status RequestStatus) []RoleRequest {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []RoleRequest
	for i := len(q.order) - 1; i >= 0; i-- {
		req := q.byID[q.order[i]]
		if status != "" && req.Status != status {
			continue
		}
		out = append(out, snapshotRequest(req))
	}
	return out
}

func snapshotRequest(r *RoleRequest) RoleRequest {
	out := *r
	out.ExpiresAt = copyTime(r.ExpiresAt)
	out.ReviewedAt = copyTime(r.ReviewedAt)
	return out
}
