package model

import (
	"strings"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleTeamLead   Role = "TEAM_LEAD"
	RoleSpecialist Role = "SPECIALIST"
)

func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleManager:
		return RoleManager, true
	case RoleTeamLead:
		return RoleTeamLead, true
	case RoleSpecialist:
		return RoleSpecialist, true
	default:
		return "", false
	}
}

// Principal is the authenticated caller extracted from the access token.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}
