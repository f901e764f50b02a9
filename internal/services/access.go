package services

import "github.com/avtotestprime/avtotest-service/internal/models"

// Capability is what a route requires of its caller. Each level includes
// the ones below it.
type Capability int

const (
	CapabilityPublic Capability = iota
	CapabilityAuthenticated
	CapabilityAdministrator
)

func (c Capability) String() string {
	switch c {
	case CapabilityPublic:
		return "public"
	case CapabilityAuthenticated:
		return "authenticated"
	case CapabilityAdministrator:
		return "administrator"
	default:
		return "unknown"
	}
}

// Authorize decides whether user may use a route requiring capability.
// A nil user is anonymous.
func Authorize(user *models.User, capability Capability) error {
	switch capability {
	case CapabilityPublic:
		return nil
	case CapabilityAuthenticated:
		if user == nil {
			return ErrUnauthorized
		}
		return nil
	case CapabilityAdministrator:
		if user == nil {
			return ErrUnauthorized
		}
		if !user.IsAdmin {
			return ErrForbidden
		}
		return nil
	default:
		return ErrForbidden
	}
}
