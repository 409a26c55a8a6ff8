// Package routing decides where a viewer belongs given their session.
package routing

import (
	"github.com/noah-isme/bde-portal/internal/models"
)

// Route paths.
const (
	Home             = "/"
	Login            = "/login"
	Signup           = "/signup"
	PasswordReset    = "/password-reset"
	DashboardAdmin   = "/dashboard-admin"
	DashboardMember  = "/dashboard-member"
	DashboardStudent = "/dashboard-student"
)

// LandingRoute is where a freshly signed-in user of role goes. Unknown roles land on Home.
func LandingRoute(role models.Role) string {
	switch role {
	case models.RoleAdmin:
		return DashboardAdmin
	case models.RoleBDE:
		return DashboardMember
	case models.RoleStudent:
		return DashboardStudent
	default:
		return Home
	}
}

// Page declares who may see a route.
type Page struct {
	Path string
	// GuestOnly pages bounce signed-in users to their landing route.
	GuestOnly bool
	// Roles, when non-empty, restricts the page to those roles.
	Roles []models.Role
}

func (p Page) allows(role models.Role) bool {
	for _, r := range p.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// View is what the guard needs to know about the session.
type View struct {
	Ready   bool
	Session models.Session
}

// Outcome of a guard check.
type Outcome int

const (
	// Pending means the session is not restored yet; render nothing and decide later.
	Pending Outcome = iota
	Allow
	Redirect
)

func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Allow:
		return "allow"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the guard's verdict. Target is set only for Redirect.
type Decision struct {
	Outcome Outcome
	Target  string
}

// Resolve applies the access policy of page to view.
func Resolve(page Page, view View) Decision {
	if !view.Ready {
		return Decision{Outcome: Pending}
	}
	authed := view.Session.IsAuthenticated()

	if page.GuestOnly && authed {
		return Decision{Outcome: Redirect, Target: LandingRoute(view.Session.Role())}
	}
	if len(page.Roles) > 0 {
		if !authed {
			return Decision{Outcome: Redirect, Target: Login}
		}
		if !page.allows(view.Session.Role()) {
			target := LandingRoute(view.Session.Role())
			if target == page.Path {
				target = Home
			}
			return Decision{Outcome: Redirect, Target: target}
		}
	}
	return Decision{Outcome: Allow}
}

var pages = map[string]Page{
	Home:             {Path: Home},
	Login:            {Path: Login, GuestOnly: true},
	Signup:           {Path: Signup, GuestOnly: true},
	PasswordReset:    {Path: PasswordReset, GuestOnly: true},
	DashboardAdmin:   {Path: DashboardAdmin, Roles: []models.Role{models.RoleAdmin}},
	DashboardMember:  {Path: DashboardMember, Roles: []models.Role{models.RoleBDE, models.RoleAdmin}},
	DashboardStudent: {Path: DashboardStudent, Roles: []models.Role{models.RoleStudent}},
}

// Lookup returns the built-in page for path.
func Lookup(path string) (Page, bool) {
	p, ok := pages[path]
	return p, ok
}

// Paths lists the built-in routes in display order.
func Paths() []string {
	return []string{Home, Login, Signup, PasswordReset, DashboardAdmin, DashboardMember, DashboardStudent}
}
