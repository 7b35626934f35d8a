package auth

// Permission slugs seeded into the catalog. Admins may add more at runtime,
// so these constants cover only the slugs the API itself checks or seeds.

// Role and user administration
const (
	// RolesView allows reading the permission catalog and role matrix
	RolesView = "roles.view"

	// RolesManage allows creating, editing and deleting roles
	RolesManage = "roles.manage"

	// UsersView allows listing salon accounts
	UsersView = "users.view"

	// UsersManage allows assigning roles to accounts
	UsersManage = "users.manage"
)

// Bookings
const (
	AppointmentsView      = "appointments.view"
	AppointmentsCreate    = "appointments.create"
	AppointmentsManageOwn = "appointments.manage_own"
	AppointmentsManageAll = "appointments.manage_all"
)

// Catalog content
const (
	ServicesManage = "services.manage"
	OffersManage   = "offers.manage"
	CoursesManage  = "courses.manage"
	ExpertsManage  = "experts.manage"
)

// Customer-facing actions
const (
	ReviewsCreate = "reviews.create"
	ProfileUpdate = "profile.update"
	SupportCreate = "support.create"
	SupportManage = "support.manage"
	DashboardView = "dashboard.view"
)

// PermissionSeed describes a catalog entry created by migrations.
type PermissionSeed struct {
	Slug        string
	Description string
}

// DefaultPermissions is the catalog seeded on first migration.
var DefaultPermissions = []PermissionSeed{
	{RolesView, "View roles and the permission catalog"},
	{RolesManage, "Create, edit and delete roles"},
	{UsersView, "View salon accounts"},
	{UsersManage, "Assign roles to accounts"},
	{AppointmentsView, "View appointments"},
	{AppointmentsCreate, "Book appointments"},
	{AppointmentsManageOwn, "Manage appointments assigned to oneself"},
	{AppointmentsManageAll, "Manage every appointment"},
	{ServicesManage, "Manage the service menu"},
	{OffersManage, "Manage offers and discounts"},
	{CoursesManage, "Manage courses"},
	{ExpertsManage, "Manage expert profiles"},
	{ReviewsCreate, "Submit reviews"},
	{ProfileUpdate, "Update own profile"},
	{SupportCreate, "Open support tickets"},
	{SupportManage, "Handle support tickets"},
	{DashboardView, "View the admin dashboard"},
}

// Built-in role names.
const (
	RoleAdmin    = "Admin"
	RoleExpert   = "Expert"
	RoleCustomer = "Customer"
	RoleGuest    = "Guest"
	// RoleSystem is the role name carried by the in-process system principal.
	// It has no row in the roles table.
	RoleSystem = "System"
)

// DefaultRoleRegistration is the role given to self-registered accounts.
const DefaultRoleRegistration = RoleCustomer

// RoleSeed describes a built-in role and its initial permissions.
type RoleSeed struct {
	Name        string
	Description string
	Permissions []string
}

// DefaultRoles are seeded as system roles. Admin receives the whole catalog.
var DefaultRoles = []RoleSeed{
	{
		Name:        RoleAdmin,
		Description: "Full salon administration",
		Permissions: AllDefaultPermissionSlugs(),
	},
	{
		Name:        RoleExpert,
		Description: "Stylists and therapists",
		Permissions: []string{AppointmentsView, AppointmentsManageOwn, ProfileUpdate, SupportCreate},
	},
	{
		Name:        RoleCustomer,
		Description: "Registered customers",
		Permissions: []string{AppointmentsView, AppointmentsCreate, ReviewsCreate, ProfileUpdate, SupportCreate},
	},
	{
		Name:        RoleGuest,
		Description: "Anonymous sessions; never assigned to stored accounts",
		Permissions: nil,
	},
}

// AllDefaultPermissionSlugs returns the slugs of DefaultPermissions.
func AllDefaultPermissionSlugs() []string {
	slugs := make([]string, 0, len(DefaultPermissions))
	for _, p := range DefaultPermissions {
		slugs = append(slugs, p.Slug)
	}
	return slugs
}
