package auth

import (
	"fmt"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"

	"github.com/avtotestprime/avtotest-service/internal/config"
)

// ExternalIdentity is what a verified single sign-on token tells us about a user
type ExternalIdentity struct {
	Username string
	IsAdmin  bool
}

// CasdoorVerifier validates Casdoor-issued bearer tokens
type CasdoorVerifier struct {
	client *casdoorsdk.Client
}

func NewCasdoorVerifier(cfg config.CasdoorConfig) *CasdoorVerifier {
	client := casdoorsdk.NewClient(
		cfg.Endpoint,
		cfg.ClientID,
		cfg.ClientSecret,
		cfg.Cert,
		cfg.Organization,
		cfg.Application,
	)
	return &CasdoorVerifier{client: client}
}

func (v *CasdoorVerifier) Verify(token string) (*ExternalIdentity, error) {
	claims, err := v.client.ParseJwtToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.User.Name == "" {
		return nil, fmt.Errorf("%w: token carries no user name", ErrInvalidToken)
	}

	return &ExternalIdentity{
		Username: claims.User.Name,
		IsAdmin:  claims.User.IsAdmin || isAdminType(claims.User.Type),
	}, nil
}

// isAdminType maps Casdoor user types onto the administrator role
func isAdminType(casdoorType string) bool {
	switch strings.ToLower(casdoorType) {
	case "admin", "administrator":
		return true
	default:
		return false
	}
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header
func BearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
