package iam

import "context"

// Publisher notifies connected admin clients of role and permission changes.
// Publish errors are logged by the service and never fail the mutation.
type Publisher interface {
	Publish(ctx context.Context, event string, payload any) error
}

// Mailer delivers templated email. Send errors are logged by the service and
// never fail the operation that triggered the mail.
type Mailer interface {
	Send(ctx context.Context, to, template string, data map[string]any) error
}

// Events published after successful mutations.
const (
	EventRoleCreated            = "roles.created"
	EventRolePermissionsUpdated = "roles.permissions_updated"
	EventRoleDeleted            = "roles.deleted"
	EventUserRoleAssigned       = "users.role_assigned"
)

// Mail templates sent by the service.
const (
	TemplateVerifyEmail       = "verify_email"
	TemplateSetupPassword     = "setup_password"
	TemplateResetPassword     = "reset_password"
	TemplateChangePasswordOTP = "change_password_otp"
)
