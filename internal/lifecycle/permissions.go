package lifecycle

import "github.com/ayothedoc3/labyrinthos-contracts/internal/model"

type Permission string

const (
	PermissionSubmitBids        Permission = "submit_bids"
	PermissionApproveBids       Permission = "approve_bids"
	PermissionActivateContracts Permission = "activate_contracts"
	PermissionEditContracts     Permission = "edit_contracts"
	PermissionCloseContracts    Permission = "close_contracts"

	// PermissionManageAll is the blanket grant: a role holding it passes
	// every permission check.
	PermissionManageAll Permission = "manage_all"
)

var rolePermissions = map[model.Role][]Permission{
	model.RoleAdmin: {PermissionManageAll},
	model.RoleManager: {
		PermissionSubmitBids,
		PermissionApproveBids,
		PermissionActivateContracts,
		PermissionEditContracts,
		PermissionCloseContracts,
	},
	model.RoleTeamLead: {
		PermissionSubmitBids,
		PermissionEditContracts,
	},
	model.RoleSpecialist: {
		PermissionSubmitBids,
	},
}

// Allowed reports whether the role holds the permission. Unknown roles
// hold nothing (deny by default).
func Allowed(role model.Role, permission Permission) bool {
	for _, granted := range rolePermissions[role] {
		if granted == permission || granted == PermissionManageAll {
			return true
		}
	}
	return false
}

// stagePermissions declares the permission required to move a contract
// INTO each stage, whichever edge is taken.
var stagePermissions = map[model.Stage]Permission{
	model.StageProposal:     PermissionEditContracts, // rollback from BID_SUBMITTED
	model.StageBidSubmitted: PermissionSubmitBids,
	model.StageBidApproved:  PermissionApproveBids,
	model.StageInactive:     PermissionEditContracts,
	model.StageQueued:       PermissionActivateContracts,
	model.StageActive:       PermissionActivateContracts,
	model.StagePaused:       PermissionActivateContracts,
	model.StageCompleted:    PermissionEditContracts,
	model.StageClosed:       PermissionCloseContracts,
}

// RequiredPermission returns the permission gating entry into the stage.
func RequiredPermission(to model.Stage) Permission {
	if perm, ok := stagePermissions[to]; ok {
		return perm
	}
	return PermissionManageAll
}
