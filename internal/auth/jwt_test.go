package auth

import (
	"testing"
	"time"

	"github.com/friendsincode/lopan_factory/internal/models"
)

func TestIssueAndParseRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	token, err := Issue(secret, Claims{
		UserID: "user-1",
		Name:   "张伟",
		Role:   models.RoleWorkshopManager,
	}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	claims, err := Parse(secret, token)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", claims.UserID)
	}
	if claims.Role != models.RoleWorkshopManager {
		t.Errorf("Role = %q, want workshop_manager", claims.Role)
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	token, err := Issue([]byte("secret-a"), Claims{UserID: "user-1"}, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := Parse([]byte("secret-b"), token); err == nil {
		t.Fatal("expected parse with wrong secret to fail")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	secret := []byte("test-secret")
	token, err := Issue(secret, Claims{UserID: "user-1"}, -time.Minute)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}

	if _, err := Parse(secret, token); err == nil {
		t.Fatal("expected parse of expired token to fail")
	}
}

func TestHasRole(t *testing.T) {
	claims := &Claims{Role: models.RoleAdministrator}
	if !claims.HasRole(models.RoleWorkshopManager, models.RoleAdministrator) {
		t.Error("administrator not matched in role list")
	}
	if claims.HasRole(models.RoleSalesperson) {
		t.Error("salesperson matched unexpectedly")
	}
}
