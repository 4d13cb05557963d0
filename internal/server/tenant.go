package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
)

// PrincipalHeader carries the identity injected by the App Service
// authentication front end.
const PrincipalHeader = "X-MS-CLIENT-PRINCIPAL"

var (
	ErrNoPrincipal  = errors.New("client principal header missing")
	ErrBadPrincipal = errors.New("client principal header malformed")
	ErrNoClaim      = errors.New("tenant claim missing")
)

// Claim is one identity claim of the principal.
type Claim struct {
	Typ string `json:"typ"`
	Val string `json:"val"`
}

// ClientPrincipal is the decoded identity header.
type ClientPrincipal struct {
	AuthTyp string  `json:"auth_typ"`
	NameTyp string  `json:"name_typ"`
	RoleTyp string  `json:"role_typ"`
	Claims  []Claim `json:"claims"`
}

// Claim returns the first value recorded under typ.
func (p ClientPrincipal) Claim(typ string) (string, bool) {
	for _, c := range p.Claims {
		if c.Typ == typ {
			return c.Val, true
		}
	}
	return "", false
}

// DecodePrincipal parses the base64 JSON identity header. Padded and
// unpadded encodings are accepted.
func DecodePrincipal(header string) (ClientPrincipal, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return ClientPrincipal{}, ErrNoPrincipal
	}
	raw, err := base64.StdEncoding.DecodeString(header)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(header)
	}
	if err != nil {
		return ClientPrincipal{}, fmt.Errorf("%w: %v", ErrBadPrincipal, err)
	}
	var p ClientPrincipal
	if err := json.Unmarshal(raw, &p); err != nil {
		return ClientPrincipal{}, fmt.Errorf("%w: %v", ErrBadPrincipal, err)
	}
	return p, nil
}

// TenantPolicy admits principals whose tenant claim is in Allowed.
type TenantPolicy struct {
	Claim   string
	Allowed []string
}

// Check resolves the tenant of header. The returned status is the HTTP
// answer for the request: 200 allowed, 403 not allowed, 401 no usable
// identity.
func (tp TenantPolicy) Check(header string) (string, int, error) {
	p, err := DecodePrincipal(header)
	if err != nil {
		return "", http.StatusUnauthorized, err
	}
	tenant, ok := p.Claim(tp.Claim)
	if !ok || tenant == "" {
		return "", http.StatusUnauthorized, ErrNoClaim
	}
	if !slices.Contains(tp.Allowed, tenant) {
		return tenant, http.StatusForbidden, nil
	}
	return tenant, http.StatusOK, nil
}

// handleTenant answers whether the caller's tenant may use the application.
func (s *Server) handleTenant(c *gin.Context) {
	tenant, status, err := s.tenants.Check(c.GetHeader(PrincipalHeader))
	if err != nil {
		s.logger.Warn("tenant check rejected", "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}
	s.logger.Info("tenant check", "tenant", tenant, "allowed", status == http.StatusOK)
	c.JSON(status, gin.H{
		"tenant":  tenant,
		"allowed": status == http.StatusOK,
	})
}
