package auth

const (
	PermUsersRead     = "users.read"
	PermUsersCreate   = "users.create"
	PermUsersUpdate   = "users.update"
	PermUsersDelete   = "users.delete"
	PermRolesManage   = "roles.manage"
	PermSettingsRead  = "settings.read"
	PermSettingsWrite = "settings.write"
)

const (
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
	RoleUser    = "User"
)

var BuiltinPermissions = []Permission{
	{Name: PermUsersRead, Description: "Read users"},
	{Name: PermUsersCreate, Description: "Create users"},
	{Name: PermUsersUpdate, Description: "Update users"},
	{Name: PermUsersDelete, Description: "Delete users"},
	{Name: PermRolesManage, Description: "Manage roles and permissions"},
	{Name: PermSettingsRead, Description: "Read settings"},
	{Name: PermSettingsWrite, Description: "Write settings"},
}

var BuiltinRoles = []Role{
	{Name: RoleAdmin, Description: "Administrator with full access"},
	{Name: RoleManager, Description: "Manager with limited administrative access"},
	{Name: RoleUser, Description: "Standard user"},
}
