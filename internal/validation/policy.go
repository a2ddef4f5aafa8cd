package validation

import "strings"

// Role declares what content a column is expected to hold.
type Role string

const (
	RoleNone    Role = ""
	RoleEmail   Role = "email"
	RoleDate    Role = "date"
	RoleNumeric Role = "numeric"
)

// DefaultMaxFileBytes is the hard byte ceiling applied before parsing.
const DefaultMaxFileBytes int64 = 50 << 20

// Policy controls which structural and content checks run and their
// thresholds. Build one with DefaultPolicy, adjust fields, and treat it as
// immutable once Validate has been called with it.
type Policy struct {
	RequiredColumns    []string
	MaxRows            int
	MaxColumns         int
	MaxFileBytes       int64
	AllowEmptyValues   bool
	EnableEmailCheck   bool
	EnableDateCheck    bool
	EnableNumericCheck bool

	// ColumnRoles assigns roles to headers explicitly (matched
	// case-insensitively). It always wins over inference.
	ColumnRoles map[string]Role

	// InferColumnRoles enables the column-name substring heuristics below
	// for headers without an explicit role.
	InferColumnRoles bool
}

// DefaultPolicy returns the baseline policy; callers override fields per
// validation call.
func DefaultPolicy() Policy {
	return Policy{
		MaxRows:            100000,
		MaxColumns:         256,
		MaxFileBytes:       DefaultMaxFileBytes,
		AllowEmptyValues:   true,
		EnableEmailCheck:   true,
		EnableDateCheck:    true,
		EnableNumericCheck: true,
		InferColumnRoles:   true,
	}
}

// Column-name fragments used by role inference. The match is a plain
// substring test against the lowercased header, so a header like
// "update_date_format" is classified as a date column whether or not that
// was intended. Explicit ColumnRoles exist for exactly that reason.
var (
	emailIndicators   = []string{"email", "e-mail", "mail", "correo"}
	dateIndicators    = []string{"date", "fecha", "created", "updated", "birthday"}
	numericIndicators = []string{"price", "amount", "total", "age", "cost", "quantity", "salary", "count"}
)

func (p Policy) roleFor(header string) Role {
	if len(p.ColumnRoles) > 0 {
		for name, role := range p.ColumnRoles {
			if strings.EqualFold(name, header) {
				return role
			}
		}
	}
	if !p.InferColumnRoles {
		return RoleNone
	}
	return inferRole(header)
}

func inferRole(header string) Role {
	name := strings.ToLower(strings.TrimSpace(header))
	for _, fragment := range emailIndicators {
		if strings.Contains(name, fragment) {
			return RoleEmail
		}
	}
	for _, fragment := range dateIndicators {
		if strings.Contains(name, fragment) {
			return RoleDate
		}
	}
	for _, fragment := range numericIndicators {
		if strings.Contains(name, fragment) {
			return RoleNumeric
		}
	}
	return RoleNone
}
