// Package tenancy resolves which tenant a request acts for. The form engine
// never reads the tenant from context itself; handlers pass it explicitly.
package tenancy

// TenancyMode controls how tenant context is resolved.
type TenancyMode string

const (
	// ModeSingle uses the "default" tenant for all requests.
	ModeSingle TenancyMode = "single"
	// ModeHeader requires a tenant per request.
	ModeHeader TenancyMode = "header"
)

// DefaultTenant is the tenant used in single-tenant mode.
const DefaultTenant = "default"

// ParseMode maps a configuration string to a TenancyMode, falling back to
// ModeSingle for anything unrecognized.
func ParseMode(s string) TenancyMode {
	if TenancyMode(s) == ModeHeader {
		return ModeHeader
	}
	return ModeSingle
}
