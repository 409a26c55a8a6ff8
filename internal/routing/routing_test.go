package routing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bde-portal/internal/models"
)

func signedIn(role models.Role) View {
	return View{Ready: true, Session: models.Session{User: &models.User{ID: "u1", Role: role}}}
}

func TestLandingRoute(t *testing.T) {
	assert.Equal(t, "/dashboard-admin", LandingRoute(models.RoleAdmin))
	assert.Equal(t, "/dashboard-member", LandingRoute(models.RoleBDE))
	assert.Equal(t, "/dashboard-student", LandingRoute(models.RoleStudent))
	assert.Equal(t, "/", LandingRoute("TEACHER"))
	assert.Equal(t, "/", LandingRoute(""))
}

func TestResolvePendingUntilReady(t *testing.T) {
	for _, path := range Paths() {
		page, ok := Lookup(path)
		require.True(t, ok)
		assert.Equal(t, Decision{Outcome: Pending}, Resolve(page, View{}), path)
	}
}

func TestResolveGuestOnlyPages(t *testing.T) {
	login, _ := Lookup(Login)

	assert.Equal(t, Decision{Outcome: Allow}, Resolve(login, View{Ready: true}))
	assert.Equal(t, Decision{Outcome: Redirect, Target: DashboardMember}, Resolve(login, signedIn(models.RoleBDE)))
	assert.Equal(t, Decision{Outcome: Redirect, Target: Home}, Resolve(login, signedIn("ALUMNI")))
}

func TestResolveRoleRestrictedPages(t *testing.T) {
	admin, _ := Lookup(DashboardAdmin)
	member, _ := Lookup(DashboardMember)
	student, _ := Lookup(DashboardStudent)

	assert.Equal(t, Decision{Outcome: Redirect, Target: Login}, Resolve(admin, View{Ready: true}))
	assert.Equal(t, Decision{Outcome: Allow}, Resolve(admin, signedIn(models.RoleAdmin)))
	assert.Equal(t, Decision{Outcome: Redirect, Target: DashboardStudent}, Resolve(admin, signedIn(models.RoleStudent)))
	assert.Equal(t, Decision{Outcome: Allow}, Resolve(member, signedIn(models.RoleAdmin)))
	assert.Equal(t, Decision{Outcome: Redirect, Target: DashboardMember}, Resolve(student, signedIn(models.RoleBDE)))
	assert.Equal(t, Decision{Outcome: Redirect, Target: Home}, Resolve(student, signedIn("ALUMNI")))
}

func TestResolvePublicPage(t *testing.T) {
	home, _ := Lookup(Home)
	assert.Equal(t, Decision{Outcome: Allow}, Resolve(home, View{Ready: true}))
	assert.Equal(t, Decision{Outcome: Allow}, Resolve(home, signedIn(models.RoleStudent)))
	assert.Equal(t, "redirect", Redirect.String())
}
