package main

import (
	"context"
	"fmt"

	"github.com/noah-isme/bde-portal/internal/models"
	"github.com/noah-isme/bde-portal/internal/routing"
	"github.com/noah-isme/bde-portal/internal/validation"
)

func cmdLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password")
	if err := parse(fs, args); err != nil {
		return err
	}

	session, err := a.session.Login(ctx, validation.LoginForm{Email: *email, Password: *password})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "signed in as %s (%s)\n", displayName(session.User), session.Role())
	fmt.Fprintf(a.out, "landing page: %s\n", routing.LandingRoute(session.Role()))
	return nil
}

func cmdLogout(ctx context.Context, a *app, args []string) error {
	if err := parse(newFlags(a, "logout"), args); err != nil {
		return err
	}
	if err := a.session.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "signed out")
	return nil
}

func cmdWhoami(_ context.Context, a *app, args []string) error {
	fs := newFlags(a, "whoami")
	asJSON := fs.Bool("json", false, "print the session as JSON")
	if err := parse(fs, args); err != nil {
		return err
	}

	session := a.session.Current()
	if *asJSON {
		return writeJSON(a.out, struct {
			models.Session
			Muted bool `json:"muted"`
		}{session, a.session.Muted()})
	}
	if !session.IsAuthenticated() {
		fmt.Fprintln(a.out, "not signed in")
		return nil
	}
	fmt.Fprintf(a.out, "%s <%s>\nrole: %s\nmuted: %t\n", displayName(session.User), session.User.Email, session.Role(), a.session.Muted())
	return nil
}

func cmdSignup(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "signup")
	var form validation.SignupForm
	var year int
	fs.StringVar(&form.Email, "email", "", "account email")
	fs.StringVar(&form.Password, "password", "", "password, at least 8 characters with a letter and a digit")
	fs.StringVar(&form.ConfirmPassword, "confirm-password", "", "password again")
	fs.StringVar(&form.FirstName, "first-name", "", "first name")
	fs.StringVar(&form.LastName, "last-name", "", "last name")
	fs.IntVar(&year, "year", 0, "year of study, 1 to 8")
	fs.StringVar(&form.Major, "major", "", "major")
	if err := parse(fs, args); err != nil {
		return err
	}
	if year != 0 {
		form.YearOfStudy = &year
	}

	user, err := a.session.Signup(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "account created for %s; sign in with `bde-portal login`\n", user.Email)
	return nil
}

func cmdResetPassword(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "reset-password")
	var form validation.PasswordResetForm
	fs.StringVar(&form.Email, "email", "", "account email")
	if err := parse(fs, args); err != nil {
		return err
	}

	detail, err := a.session.RequestPasswordReset(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, orDefault(detail, "If the address exists, a reset link has been sent."))
	return nil
}

func cmdConfirmReset(ctx context.Context, a *app, args []string) error {
	fs := newFlags(a, "confirm-reset")
	var form validation.PasswordResetConfirmForm
	fs.StringVar(&form.UID, "uid", "", "uid from the reset link")
	fs.StringVar(&form.Token, "token", "", "token from the reset link")
	fs.StringVar(&form.Password, "password", "", "new password")
	fs.StringVar(&form.ConfirmPassword, "confirm-password", "", "new password again")
	if err := parse(fs, args); err != nil {
		return err
	}

	detail, err := a.session.ConfirmPasswordReset(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, orDefault(detail, "Password has been reset."))
	return nil
}

// cmdRoute resolves a page for the current session, or prints the landing page of a role.
func cmdRoute(_ context.Context, a *app, args []string) error {
	fs := newFlags(a, "route")
	path := fs.String("path", "", "page to check, e.g. /dashboard/admin")
	role := fs.String("role", "", "print the landing page for this role instead")
	if err := parse(fs, args); err != nil {
		return err
	}

	if *role != "" {
		form := validation.RoleForm{Role: *role}
		if err := a.validator.Struct(form); err != nil {
			return err
		}
		fmt.Fprintln(a.out, routing.LandingRoute(models.ParseRole(form.Role)))
		return nil
	}

	view := routing.View{Ready: a.session.IsReady(), Session: a.session.Current()}
	if *path == "" {
		if view.Session.IsAuthenticated() {
			fmt.Fprintln(a.out, routing.LandingRoute(view.Session.Role()))
		} else {
			fmt.Fprintln(a.out, routing.Login)
		}
		return nil
	}
	page, ok := routing.Lookup(*path)
	if !ok {
		return fmt.Errorf("%w: unknown page %q", errUsage, *path)
	}
	decision := routing.Resolve(page, view)
	if decision.Target != "" {
		fmt.Fprintf(a.out, "%s -> %s\n", decision.Outcome, decision.Target)
		return nil
	}
	fmt.Fprintln(a.out, decision.Outcome)
	return nil
}

func cmdMute(muted bool) func(context.Context, *app, []string) error {
	return func(ctx context.Context, a *app, args []string) error {
		if err := parse(newFlags(a, "mute"), args); err != nil {
			return err
		}
		if err := a.session.SetMuted(ctx, muted); err != nil {
			return err
		}
		if muted {
			fmt.Fprintln(a.out, "notifications muted")
		} else {
			fmt.Fprintln(a.out, "notifications unmuted")
		}
		return nil
	}
}

func displayName(u *models.User) string {
	if u == nil {
		return ""
	}
	if name := u.FullName(); name != "" {
		return name
	}
	return u.Email
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
