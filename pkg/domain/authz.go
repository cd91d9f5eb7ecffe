package domain

// Role is a user role in the authorization matrix.
type Role string

// Roles.
const (
	RoleAdmin      Role = "ADMIN"
	RoleManager    Role = "MANAGER"
	RoleSales      Role = "SALES"
	RoleProduction Role = "PRODUCTION"
	RoleViewer     Role = "VIEWER"
)

// Roles returns every role in descending privilege order.
func Roles() []Role {
	return []Role{RoleAdmin, RoleManager, RoleSales, RoleProduction, RoleViewer}
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	for _, candidate := range Roles() {
		if candidate == r {
			return true
		}
	}
	return false
}

// Permission is an action checked by the authorization gate.
type Permission string

// Permissions.
const (
	PermApproveLibraryVersion Permission = "approve-library-version"
	PermManageLibrary         Permission = "manage-library"
	PermCreateProject         Permission = "create-project"
	PermEditProject           Permission = "edit-project"
	PermArchiveProject        Permission = "archive-project"
	PermQuoteProject          Permission = "quote-project"
	PermSendOffer             Permission = "send-offer"
	PermConfirmOrder          Permission = "confirm-order"
	PermAdvanceProduction     Permission = "advance-production"
	PermMarkDelivered         Permission = "mark-delivered"
	PermCloseProject          Permission = "close-project"
	PermCreateAmendment       Permission = "create-amendment"
	PermApproveAmendment      Permission = "approve-amendment"
	PermEmergencyUnlock       Permission = "emergency-unlock"
	PermAddTaskOrTime         Permission = "add-task-or-time"
	PermView                  Permission = "view"
)

// Permissions returns every known permission.
func Permissions() []Permission {
	return []Permission{
		PermApproveLibraryVersion, PermManageLibrary, PermCreateProject, PermEditProject,
		PermArchiveProject, PermQuoteProject, PermSendOffer, PermConfirmOrder,
		PermAdvanceProduction, PermMarkDelivered, PermCloseProject, PermCreateAmendment,
		PermApproveAmendment, PermEmergencyUnlock, PermAddTaskOrTime, PermView,
	}
}

// Valid reports whether p is a known permission.
func (p Permission) Valid() bool {
	for _, candidate := range Permissions() {
		if candidate == p {
			return true
		}
	}
	return false
}

// Actor is the caller of a core operation. It is passed explicitly to every
// mutating call.
type Actor struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role Role   `json:"role"`
}

// Audit returns the audit representation of the actor.
func (a Actor) Audit() AuditActor { return AuditActor{ID: a.ID, Role: a.Role} }

// TransitionPermission returns the permission required to move into target.
func TransitionPermission(target ProjectStatus) (Permission, bool) {
	switch target {
	case StatusQuoted:
		return PermQuoteProject, true
	case StatusOfferSent:
		return PermSendOffer, true
	case StatusOrderConfirmed:
		return PermConfirmOrder, true
	case StatusInProduction, StatusReadyForDelivery:
		return PermAdvanceProduction, true
	case StatusDelivered:
		return PermMarkDelivered, true
	case StatusClosed:
		return PermCloseProject, true
	}
	return "", false
}
