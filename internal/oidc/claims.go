package oidc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/al-bashkir/sfa-attack-simulation/internal/config"
	"github.com/al-bashkir/sfa-attack-simulation/internal/users"
)

// ErrMissingUsername is returned when the username claim is absent or empty.
var ErrMissingUsername = errors.New("username claim missing")

// Identity is the local principal derived from ID token claims.
type Identity struct {
	Username string
	Role     users.Role

	// ProviderRoles are the raw roles found under the role claim.
	ProviderRoles []string
}

// ClaimMapper turns ID token claims into an Identity.
type ClaimMapper struct {
	usernameClaim string
	roleClaim     string
	adminRole     string
}

// NewClaimMapper creates a mapper from the OIDC settings.
func NewClaimMapper(cfg *config.OIDCConfig) *ClaimMapper {
	return &ClaimMapper{
		usernameClaim: cfg.UsernameClaim,
		roleClaim:     cfg.RoleClaim,
		adminRole:     cfg.AdminRole,
	}
}

// Map extracts the username and derives the local role. A principal holding
// the configured admin role becomes users.RoleAdmin; everyone else, including
// tokens without a role claim, becomes users.RoleUser.
func (m *ClaimMapper) Map(claims map[string]interface{}) (Identity, error) {
	username, err := getClaimString(claims, m.usernameClaim)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrMissingUsername, err)
	}
	if username == "" {
		return Identity{}, ErrMissingUsername
	}

	id := Identity{Username: username, Role: users.RoleUser}

	if m.roleClaim == "" {
		return id, nil
	}

	roles, err := getRolesFromClaim(claims, m.roleClaim)
	if err != nil {
		// No roles granted by the provider.
		return id, nil
	}
	id.ProviderRoles = roles

	if m.adminRole != "" && containsRole(roles, m.adminRole) {
		id.Role = users.RoleAdmin
	}

	return id, nil
}

// getClaimString reads a string claim; path may use dots for nesting.
func getClaimString(claims map[string]interface{}, path string) (string, error) {
	value, err := getNestedClaim(claims, path)
	if err != nil {
		return "", err
	}

	str, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("claim '%s' is not a string", path)
	}

	return str, nil
}

// getRolesFromClaim reads a string array claim such as realm_access.roles.
func getRolesFromClaim(claims map[string]interface{}, path string) ([]string, error) {
	value, err := getNestedClaim(claims, path)
	if err != nil {
		return nil, err
	}

	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		roles := make([]string, 0, len(v))
		for _, role := range v {
			if str, ok := role.(string); ok {
				roles = append(roles, str)
			}
		}
		return roles, nil
	default:
		return nil, fmt.Errorf("claim '%s' is not a string array", path)
	}
}

func getNestedClaim(claims map[string]interface{}, path string) (interface{}, error) {
	var current interface{} = claims
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("claim path '%s' does not resolve at '%s'", path, part)
		}
		if current, ok = m[part]; !ok {
			return nil, fmt.Errorf("claim '%s' not found", path)
		}
	}
	return current, nil
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
