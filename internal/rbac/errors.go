package rbac

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput        = errors.New("rbac: invalid input")
	ErrPermissionNotFound  = errors.New("rbac: permission not found")
	ErrDuplicatePermission = errors.New("rbac: duplicate resource/action pair")
	ErrUnknownPermission   = errors.New("rbac: unknown permission id")
	ErrRoleNotFound        = errors.New("rbac: role not found")
	ErrRoleInactive        = errors.New("rbac: role is inactive")
	ErrImmutableSystemRole = errors.New("rbac: system role permissions are immutable")
	ErrSystemRoleProtected = errors.New("rbac: system role cannot be deleted")
	ErrRoleAtCapacity      = errors.New("rbac: role assignee limit reached")
	ErrDuplicateAssignment = errors.New("rbac: user already holds an active assignment for this role")
	ErrAssignmentNotFound  = errors.New("rbac: no active assignment for this user and role")
	ErrRequestNotFound     = errors.New("rbac: role request not found")
	ErrAlreadyReviewed     = errors.New("rbac: role request already reviewed")
)

// RoleInUseError refuses role deletion while active assignments reference it.
type RoleInUseError struct {
	RoleID string
	Count  int
}

func (e *RoleInUseError) Error() string {
	return fmt.Sprintf("rbac: role %s has %d active assignment(s)", e.RoleID, e.Count)
}
