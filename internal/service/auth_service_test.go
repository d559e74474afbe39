package service

import (
	"context"
	"testing"

	"github.com/spec-kit/helpdesk-service/internal/auth"
	"github.com/spec-kit/helpdesk-service/internal/config"
	"github.com/spec-kit/helpdesk-service/internal/domain"
)

func testConfig() config.Config {
	return config.Config{Auth: config.AuthConfig{
		JWTSecret:             "test-secret",
		AccessTokenTTLMinutes: 30,
		BcryptCost:            4,
	}}
}

func TestRegisterAndLoginUser(t *testing.T) {
	users := newFakeUserRepo()
	svc := NewAuthService(testConfig(), AuthDependencies{UserRepo: users, StaffRepo: newFakeStaffRepo()})
	ctx := context.Background()

	user, token, err := svc.RegisterUser(ctx, RegisterInput{Name: "Ada", Email: "ada@acme.test", Password: "correct-horse", CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	claims, err := svc.TokenManager().ParseToken(token.Token)
	if err != nil || claims.SubjectRef() != user.Subject() {
		t.Fatalf("token does not identify user: %+v %v", claims, err)
	}

	_, _, err = svc.RegisterUser(ctx, RegisterInput{Name: "Ada", Email: "ada@acme.test", Password: "correct-horse", CompanyName: "Acme"})
	assertCode(t, err, "CONFLICT")
	_, _, err = svc.RegisterUser(ctx, RegisterInput{Name: "Bob", Email: "not-an-email", Password: "correct-horse", CompanyName: "Acme"})
	assertCode(t, err, "VALIDATION_FAILED")
	_, _, err = svc.RegisterUser(ctx, RegisterInput{Name: "Bob", Email: "bob@acme.test", Password: "short", CompanyName: "Acme"})
	assertCode(t, err, "VALIDATION_FAILED")

	if _, _, err := svc.LoginUser(ctx, "ada@acme.test", "correct-horse"); err != nil {
		t.Fatalf("LoginUser: %v", err)
	}
	_, _, err = svc.LoginUser(ctx, "ada@acme.test", "wrong-password")
	assertCode(t, err, "UNAUTHORIZED")
	_, _, err = svc.LoginUser(ctx, "nobody@acme.test", "correct-horse")
	assertCode(t, err, "UNAUTHORIZED")

	stored, _ := users.GetByID(ctx, user.ID)
	stored.Status = domain.UserStatusSuspended
	_ = users.Update(ctx, stored)
	_, _, err = svc.LoginUser(ctx, "ada@acme.test", "correct-horse")
	assertCode(t, err, "FORBIDDEN")
}

func TestLoginStaffCarriesRole(t *testing.T) {
	hash, err := auth.HashPassword("admin-password", 4)
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	admin := &domain.StaffMember{ID: "admin-1", Name: "Root", Email: "root@desk.test", PasswordHash: hash, Role: domain.StaffRoleAdmin, Active: true}
	off := &domain.StaffMember{ID: "tech-9", Name: "Gone", Email: "gone@desk.test", PasswordHash: hash, Role: domain.StaffRoleTechnician}
	svc := NewAuthService(testConfig(), AuthDependencies{UserRepo: newFakeUserRepo(), StaffRepo: newFakeStaffRepo(admin, off)})

	_, token, err := svc.LoginStaff(context.Background(), "root@desk.test", "admin-password")
	if err != nil {
		t.Fatalf("LoginStaff: %v", err)
	}
	claims, err := svc.TokenManager().ParseToken(token.Token)
	if err != nil || claims.Role == nil || *claims.Role != domain.StaffRoleAdmin {
		t.Fatalf("expected admin role claim: %+v %v", claims, err)
	}
	_, _, err = svc.LoginStaff(context.Background(), "gone@desk.test", "admin-password")
	assertCode(t, err, "FORBIDDEN")
}

func TestChangePassword(t *testing.T) {
	users := newFakeUserRepo()
	svc := NewAuthService(testConfig(), AuthDependencies{UserRepo: users, StaffRepo: newFakeStaffRepo()})
	ctx := context.Background()
	user, _, err := svc.RegisterUser(ctx, RegisterInput{Name: "Ada", Email: "ada@acme.test", Password: "first-password", CompanyName: "Acme"})
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	err = svc.ChangePassword(ctx, user.Subject(), "not-the-password", "second-password")
	assertCode(t, err, "UNAUTHORIZED")
	if err := svc.ChangePassword(ctx, user.Subject(), "first-password", "second-password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}
	if _, _, err := svc.LoginUser(ctx, "ada@acme.test", "second-password"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}

func TestStaffManagementRequiresAdmin(t *testing.T) {
	admin := &domain.StaffMember{ID: "admin-1", Name: "Root", Role: domain.StaffRoleAdmin, Active: true}
	tech := &domain.StaffMember{ID: "tech-1", Name: "Tess", Role: domain.StaffRoleTechnician, Active: true}
	svc := NewStaffService(testConfig(), StaffDependencies{StaffRepo: newFakeStaffRepo(admin, tech), UserRepo: newFakeUserRepo()})
	ctx := context.Background()
	input := StaffInput{Name: "New", Email: "new@desk.test", Password: "long-enough", Role: domain.StaffRoleTechnician}

	_, err := svc.CreateStaffMember(ctx, tech, input)
	assertCode(t, err, "FORBIDDEN")
	created, err := svc.CreateStaffMember(ctx, admin, input)
	if err != nil || created.ID == "" || !created.Active {
		t.Fatalf("CreateStaffMember: %+v %v", created, err)
	}
	_, err = svc.CreateStaffMember(ctx, admin, input)
	assertCode(t, err, "CONFLICT")

	inactive := false
	_, err = svc.UpdateStaffMember(ctx, admin, admin.ID, StaffUpdate{Active: &inactive})
	assertCode(t, err, "CONFLICT")
	updated, err := svc.UpdateStaffMember(ctx, admin, tech.ID, StaffUpdate{Active: &inactive})
	if err != nil || updated.Active {
		t.Fatalf("deactivate technician: %+v %v", updated, err)
	}
}
