package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	apperrors "github.com/spec-kit/helpdesk-service/pkg/util/errorutil"
)

type userMap map[string]*domain.User

func (m userMap) GetByID(_ context.Context, id string) (*domain.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, pgx.ErrNoRows
}

type staffMap map[string]*domain.StaffMember

func (m staffMap) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	if s, ok := m[id]; ok {
		return s, nil
	}
	return nil, pgx.ErrNoRows
}

func newFixture() (*TokenManager, *AuthMiddleware) {
	tokens := NewTokenManager("test-secret", 60)
	users := userMap{
		"u1": {ID: "u1", Name: "Ada", Status: domain.UserStatusActive},
		"u2": {ID: "u2", Name: "Sus", Status: domain.UserStatusSuspended},
	}
	staff := staffMap{
		"s1": {ID: "s1", Name: "Tech", Role: domain.StaffRoleTechnician, Active: true},
		"s2": {ID: "s2", Name: "Boss", Role: domain.StaffRoleAdmin, Active: true},
		"s3": {ID: "s3", Name: "Gone", Role: domain.StaffRoleAdmin, Active: false},
	}
	return tokens, NewAuthMiddleware(tokens, users, staff)
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenManager("secret", 5)
	role := domain.StaffRoleAdmin
	raw, exp, err := tokens.GenerateToken(domain.Subject{Type: domain.SubjectTypeStaff, ID: "s1"}, &role)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry in the past: %v", exp)
	}
	claims, err := tokens.ParseToken(raw)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}
	if claims.SubjectRef() != (domain.Subject{Type: domain.SubjectTypeStaff, ID: "s1"}) {
		t.Fatalf("unexpected subject %+v", claims.SubjectRef())
	}
	if claims.Role == nil || *claims.Role != domain.StaffRoleAdmin {
		t.Fatalf("unexpected role %v", claims.Role)
	}
}

func TestParseTokenRejectsForeignAndExpired(t *testing.T) {
	issuer := NewTokenManager("secret-a", 1)
	raw, _, err := issuer.GenerateToken(domain.Subject{Type: domain.SubjectTypeUser, ID: "u1"}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewTokenManager("secret-b", 1).ParseToken(raw); err == nil {
		t.Fatal("token signed with another secret must be rejected")
	}

	later := NewTokenManager("secret-a", 1)
	later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := later.ParseToken(raw); err == nil {
		t.Fatal("expired token must be rejected")
	}
}

func TestAuthenticate(t *testing.T) {
	tokens, mw := newFixture()
	issue := func(typ domain.SubjectType, id string) string {
		raw, _, err := tokens.GenerateToken(domain.Subject{Type: typ, ID: id}, nil)
		if err != nil {
			t.Fatal(err)
		}
		return raw
	}

	cases := []struct {
		name    string
		token   string
		wantErr bool
		admin   bool
	}{
		{"client", issue(domain.SubjectTypeUser, "u1"), false, false},
		{"suspended client", issue(domain.SubjectTypeUser, "u2"), true, false},
		{"unknown client", issue(domain.SubjectTypeUser, "nope"), true, false},
		{"technician", issue(domain.SubjectTypeStaff, "s1"), false, false},
		{"admin", issue(domain.SubjectTypeStaff, "s2"), false, true},
		{"inactive admin", issue(domain.SubjectTypeStaff, "s3"), true, false},
		{"garbage", "not-a-jwt", true, false},
		{"empty", "", true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := mw.Authenticate(context.Background(), tc.token)
			if tc.wantErr {
				if !apperrors.IsCode(err, "UNAUTHORIZED") {
					t.Fatalf("expected unauthorized, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Authenticate: %v", err)
			}
			if p.IsAdmin() != tc.admin {
				t.Fatalf("IsAdmin=%v want %v", p.IsAdmin(), tc.admin)
			}
		})
	}
}

func TestRoleGuards(t *testing.T) {
	tokens, mw := newFixture()
	app := fiber.New(fiber.Config{ErrorHandler: func(c *fiber.Ctx, err error) error {
		return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
	}})
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }
	app.Get("/client", mw.Handle, RequireUser(), ok)
	app.Get("/staff", mw.Handle, RequireStaffRole(), ok)
	app.Get("/admin", mw.Handle, RequireStaffRole(domain.StaffRoleAdmin), ok)

	bearer := func(typ domain.SubjectType, id string) string {
		raw, _, _ := tokens.GenerateToken(domain.Subject{Type: typ, ID: id}, nil)
		return "Bearer " + raw
	}

	cases := []struct {
		path   string
		header string
		want   int
	}{
		{"/client", "", fiber.StatusUnauthorized},
		{"/client", "Token abc", fiber.StatusUnauthorized},
		{"/client", bearer(domain.SubjectTypeUser, "u1"), fiber.StatusNoContent},
		{"/client", bearer(domain.SubjectTypeStaff, "s1"), fiber.StatusForbidden},
		{"/staff", bearer(domain.SubjectTypeUser, "u1"), fiber.StatusForbidden},
		{"/staff", bearer(domain.SubjectTypeStaff, "s1"), fiber.StatusNoContent},
		{"/admin", bearer(domain.SubjectTypeStaff, "s1"), fiber.StatusForbidden},
		{"/admin", bearer(domain.SubjectTypeStaff, "s2"), fiber.StatusNoContent},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("GET", tc.path, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s: %v", tc.path, err)
		}
		if resp.StatusCode != tc.want {
			t.Fatalf("%s with %q: status %d want %d", tc.path, tc.header, resp.StatusCode, tc.want)
		}
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse", 4)
	if err != nil {
		t.Fatal(err)
	}
	if ComparePassword(hash, "correct horse") != nil {
		t.Fatal("expected password to match")
	}
	if ComparePassword(hash, "wrong") == nil {
		t.Fatal("expected mismatch")
	}
}

func TestHashPasswordLimits(t *testing.T) {
	if _, err := HashPassword(strings.Repeat("x", MaxPasswordBytes+1), 4); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
	hash, err := HashPassword("long enough", 99)
	if err != nil {
		t.Fatal(err)
	}
	if cost, _ := bcrypt.Cost([]byte(hash)); cost != bcrypt.DefaultCost {
		t.Fatalf("cost %d, want default", cost)
	}
	CompareUnknownAccount("anything", 4)
}
