package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role governs which routes a caller may invoke. The set is fixed; the
// route sets per role live in the permission table.
type Role string

const (
	RoleAdmin    Role = "ADMIN"
	RoleDoctor   Role = "DOCTOR"
	RoleReadOnly Role = "READ_ONLY"

	// RoleUnregistered is never persisted. It is assigned by the
	// authorization layer to a verified subject with no membership
	// record, and permits only the registration route.
	RoleUnregistered Role = "UNREGISTERED"
)

// ParseRole validates a client-provided role string.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAdmin, RoleDoctor, RoleReadOnly:
		return Role(s), nil
	}
	return "", fmt.Errorf("invalid role %q", s)
}

// MembershipStatus distinguishes active members from pending invitations.
type MembershipStatus string

const (
	MembershipActive  MembershipStatus = "active"
	MembershipPending MembershipStatus = "pending"
)

// invitePrefix marks placeholder ids for pending invitations. Real subject
// ids come from the identity provider and never carry this prefix, so a
// placeholder can never shadow an authenticated subject.
const invitePrefix = "invite:"

// NewInviteID generates a synthetic placeholder id for a pending invitation.
func NewInviteID() string {
	return invitePrefix + uuid.NewString()
}

// IsInviteID reports whether id is a synthetic invitation placeholder.
func IsInviteID(id string) bool {
	return strings.HasPrefix(id, invitePrefix)
}

// Membership binds an authentication subject (or an invitation
// placeholder) to a tenant with a role. At most one record exists per
// subject id, and at most one record per email system-wide.
type Membership struct {
	ID         string `gorm:"primaryKey"`
	Email      string `gorm:"uniqueIndex;not null"`
	TenantID   string `gorm:"index;not null"`
	TenantName string
	Role       Role             `gorm:"not null"`
	Status     MembershipStatus `gorm:"not null"`
	AddedBy    string
	InvitedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type MembershipList []Membership

func (m Membership) String() string {
	val, _ := json.Marshal(m)
	return string(val)
}
