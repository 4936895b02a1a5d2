package auth

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// Role is a closed enumeration of staff roles. Tokens carrying unknown role
// strings are rejected at authentication time, so authorization checks only
// ever see these values.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleReception Role = "reception"
	RoleDoctor    Role = "doctor"
	RoleNurse     Role = "nurse"
	RoleLab       Role = "lab"
	RoleRadiology Role = "radiology"
	RolePharmacy  Role = "pharmacy"
	RoleBilling   Role = "billing"
)

var validRoles = map[Role]bool{
	RoleAdmin: true, RoleReception: true, RoleDoctor: true, RoleNurse: true,
	RoleLab: true, RoleRadiology: true, RolePharmacy: true, RoleBilling: true,
}

// ParseRoles filters a raw claim slice down to known roles.
func ParseRoles(raw []string) []Role {
	var roles []Role
	for _, r := range raw {
		role := Role(strings.ToLower(strings.TrimSpace(r)))
		if validRoles[role] {
			roles = append(roles, role)
		}
	}
	return roles
}

// Capability names a guarded operation family. The matrix below is the
// single source of truth for which roles may perform it.
type Capability string

const (
	CapPatientsRead   Capability = "patients:read"
	CapPatientsWrite  Capability = "patients:write"
	CapQueueRead      Capability = "queue:read"
	CapQueueManage    Capability = "queue:manage"
	CapConsultWrite   Capability = "consultations:write"
	CapOrdersRead     Capability = "orders:read"
	CapOrdersWrite    Capability = "orders:write"
	CapResultsWrite   Capability = "results:write"
	CapPharmacyRead   Capability = "pharmacy:read"
	CapPharmacyWrite  Capability = "pharmacy:write"
	CapBillingRead    Capability = "billing:read"
	CapBillingWrite   Capability = "billing:write"
	CapInventoryRead  Capability = "inventory:read"
	CapInventoryWrite Capability = "inventory:write"
	CapBedsRead       Capability = "beds:read"
	CapBedsManage     Capability = "beds:manage"
	CapHospitalAdmin  Capability = "hospitals:admin"
	CapReportsRead    Capability = "reports:read"
)

// capabilityRoles is the compile-time capability matrix. Admin is implied
// everywhere and is not listed.
var capabilityRoles = map[Capability][]Role{
	CapPatientsRead:   {RoleReception, RoleDoctor, RoleNurse, RoleBilling},
	CapPatientsWrite:  {RoleReception},
	CapQueueRead:      {RoleReception, RoleDoctor, RoleNurse},
	CapQueueManage:    {RoleReception, RoleDoctor},
	CapConsultWrite:   {RoleDoctor},
	CapOrdersRead:     {RoleDoctor, RoleNurse, RoleLab, RoleRadiology, RoleBilling},
	CapOrdersWrite:    {RoleDoctor},
	CapResultsWrite:   {RoleLab, RoleRadiology},
	CapPharmacyRead:   {RoleDoctor, RolePharmacy, RoleBilling},
	CapPharmacyWrite:  {RolePharmacy},
	CapBillingRead:    {RoleReception, RoleBilling},
	CapBillingWrite:   {RoleBilling},
	CapInventoryRead:  {RolePharmacy, RoleNurse},
	CapInventoryWrite: {RolePharmacy},
	CapBedsRead:       {RoleReception, RoleDoctor, RoleNurse},
	CapBedsManage:     {RoleDoctor, RoleNurse},
	CapHospitalAdmin:  {},
	CapReportsRead:    {RoleBilling},
}

// Allowed reports whether any of the given roles grants the capability.
func Allowed(cap Capability, roles []Role) bool {
	granted := capabilityRoles[cap]
	for _, have := range roles {
		if have == RoleAdmin {
			return true
		}
		for _, want := range granted {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Require returns middleware that rejects requests lacking the capability.
func Require(cap Capability) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			roles := RolesFromContext(c.Request().Context())
			if Allowed(cap, roles) {
				return next(c)
			}
			return echo.NewHTTPError(http.StatusForbidden,
				fmt.Sprintf("missing capability: %s", cap))
		}
	}
}
