package auth

import (
	"context"
	"testing"
)

func TestGetClaims_Success(t *testing.T) {
	claims := &Claims{OrganizationID: 7}
	claims.Subject = "user-123"

	ctx := context.WithValue(context.Background(), ClaimsKey, claims)

	got, ok := GetClaims(ctx)
	if !ok {
		t.Fatal("expected claims to be found")
	}
	if got.Subject != "user-123" {
		t.Errorf("expected subject 'user-123', got %q", got.Subject)
	}
	if got.OrganizationID != 7 {
		t.Errorf("expected organization 7, got %d", got.OrganizationID)
	}
}

func TestGetClaims_NotFound(t *testing.T) {
	_, ok := GetClaims(context.Background())
	if ok {
		t.Error("expected claims to not be found")
	}
}

func TestGetClaims_WrongType(t *testing.T) {
	ctx := context.WithValue(context.Background(), ClaimsKey, "not-a-claims-struct")

	_, ok := GetClaims(ctx)
	if ok {
		t.Error("expected claims to not be found when wrong type")
	}
}

func TestGetClaims_NilPointer(t *testing.T) {
	var claims *Claims
	ctx := WithClaims(context.Background(), claims)

	_, ok := GetClaims(ctx)
	if ok {
		t.Error("expected nil claims to be treated as missing")
	}
}

func TestHasRole(t *testing.T) {
	claims := &Claims{Roles: []string{"member", RoleAdmin}}
	if !claims.HasRole(RoleAdmin) {
		t.Error("expected admin role")
	}
	if claims.HasRole("owner") {
		t.Error("unexpected owner role")
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		name    string
		claims  *Claims
		wantErr bool
	}{
		{name: "no claims", wantErr: true},
		{name: "missing subject", claims: &Claims{OrganizationID: 1}, wantErr: true},
		{name: "missing organization", claims: func() *Claims {
			c := &Claims{}
			c.Subject = "u"
			return c
		}(), wantErr: true},
		{name: "complete", claims: func() *Claims {
			c := &Claims{OrganizationID: 3}
			c.Subject = "u"
			return c
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			if tt.claims != nil {
				ctx = WithClaims(ctx, tt.claims)
			}
			userID, orgID, err := Identity(ctx)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if userID != "u" || orgID != 3 {
				t.Errorf("got (%q, %d), want (\"u\", 3)", userID, orgID)
			}
		})
	}
}
