// Package audit implements the audit record writer: every mutating action in
// the procurement application produces one immutable audit record through this
// package. Audit records are intentionally separate from application logs —
// application logs are ephemeral debug output, while audit records are
// immutable rows consumed by the security team and fed to the anomaly
// classifier. The writer's contract is strict: a failed audit write is loud,
// never silently dropped, while the downstream classification hand-off is
// best-effort and can never fail the write.
package audit

// ActionType identifies one of the fixed set of auditable actions. The
// enumeration is closed: Record rejects anything outside it.
type ActionType string

// The closed enumeration of auditable actions.
const (
	ActionLogin  ActionType = "LOGIN"
	ActionLogout ActionType = "LOGOUT"

	ActionCreateOrder  ActionType = "CREATE_ORDER"
	ActionApproveOrder ActionType = "APPROVE_ORDER"
	ActionRejectOrder  ActionType = "REJECT_ORDER"

	ActionCreateProduct ActionType = "CREATE_PRODUCT"
	ActionUpdateProduct ActionType = "UPDATE_PRODUCT"
	ActionDeleteProduct ActionType = "DELETE_PRODUCT"

	ActionCreateUser ActionType = "CREATE_USER"
	ActionUpdateUser ActionType = "UPDATE_USER"
	ActionDeleteUser ActionType = "DELETE_USER"
)

var validActions = map[ActionType]bool{
	ActionLogin:         true,
	ActionLogout:        true,
	ActionCreateOrder:   true,
	ActionApproveOrder:  true,
	ActionRejectOrder:   true,
	ActionCreateProduct: true,
	ActionUpdateProduct: true,
	ActionDeleteProduct: true,
	ActionCreateUser:    true,
	ActionUpdateUser:    true,
	ActionDeleteUser:    true,
}

// Valid reports whether a is a member of the closed action enumeration.
func (a ActionType) Valid() bool {
	return validActions[a]
}

// AllActions returns the closed enumeration, for validation messages and API
// documentation.
func AllActions() []ActionType {
	return []ActionType{
		ActionLogin, ActionLogout,
		ActionCreateOrder, ActionApproveOrder, ActionRejectOrder,
		ActionCreateProduct, ActionUpdateProduct, ActionDeleteProduct,
		ActionCreateUser, ActionUpdateUser, ActionDeleteUser,
	}
}
