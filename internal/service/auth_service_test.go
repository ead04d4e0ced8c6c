package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"device-hub-server/internal/domain"
	"device-hub-server/internal/repository"
	"device-hub-server/pkg/hash"
	. "device-hub-server/pkg/jwt"
)

type mockUserRepository struct {
	users map[string]*domain.User
}

func newMockUserRepository() *mockUserRepository {
	return &mockUserRepository{
		users: make(map[string]*domain.User),
	}
}

func (m *mockUserRepository) Create(_ context.Context, user *domain.User) error {
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	m.users[user.ID] = user
	return nil
}

func (m *mockUserRepository) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, user := range m.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) FindByID(_ context.Context, id string) (*domain.User, error) {
	if user, ok := m.users[id]; ok {
		copied := *user
		return &copied, nil
	}
	return nil, repository.ErrNotFound
}

func (m *mockUserRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	_, err := m.FindByEmail(ctx, email)
	return err == nil, nil
}

func TestAuthService_Register(t *testing.T) {
	repo := newMockUserRepository()
	service := NewAuthService(repo, "test-secret", 15*time.Minute, 7*24*time.Hour)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     *domain.RegisterRequest
		wantErr error
		setup   func()
	}{
		{
			name: "successful registration",
			req: &domain.RegisterRequest{
				Name:     "New Owner",
				Email:    "new@example.com",
				Password: "Password123!",
			},
			setup: func() {},
		},
		{
			name: "duplicate email",
			req: &domain.RegisterRequest{
				Name:     "Another Owner",
				Email:    "Existing@example.com",
				Password: "Password123!",
			},
			wantErr: ErrEmailTaken,
			setup: func() {
				hashedPw, _ := hash.Hash("ExistingPass123!")
				repo.Create(ctx, &domain.User{
					ID:       "existing-id",
					Name:     "Existing",
					Email:    "existing@example.com",
					Password: hashedPw,
				})
			},
		},
		{
			name: "weak password",
			req: &domain.RegisterRequest{
				Name:     "Test Owner",
				Email:    "test@example.com",
				Password: "weak",
			},
			wantErr: ErrValidation,
			setup:   func() {},
		},
		{
			name: "invalid role",
			req: &domain.RegisterRequest{
				Name:     "Test Owner",
				Email:    "test@example.com",
				Password: "Password123!",
				Role:     "root",
			},
			wantErr: ErrValidation,
			setup:   func() {},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo.users = make(map[string]*domain.User)
			tt.setup()

			user, err := service.Register(ctx, tt.req)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Register() unexpected error = %v", err)
			}

			if user.Password != "" {
				t.Error("Register() returned user with password")
			}
			if user.Role != domain.RoleUser {
				t.Errorf("Register() role = %v, want %v", user.Role, domain.RoleUser)
			}

			exists, _ := repo.EmailExists(ctx, tt.req.Email)
			if !exists {
				t.Error("Register() user not created in repository")
			}
		})
	}
}

func TestAuthService_Login(t *testing.T) {
	repo := newMockUserRepository()
	service := NewAuthService(repo, "test-secret-key", 15*time.Minute, 7*24*time.Hour)
	ctx := context.Background()

	password := "UserPassword123!"
	hashedPassword, _ := hash.Hash(password)

	repo.Create(ctx, &domain.User{
		ID:       "test-user-id",
		Name:     "Test Owner",
		Email:    "test@example.com",
		Password: hashedPassword,
	})

	tests := []struct {
		name    string
		req     *domain.LoginRequest
		wantErr error
	}{
		{
			name: "successful login",
			req: &domain.LoginRequest{
				Email:    "test@example.com",
				Password: password,
			},
		},
		{
			name: "wrong password",
			req: &domain.LoginRequest{
				Email:    "test@example.com",
				Password: "WrongPassword",
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name: "non-existent email",
			req: &domain.LoginRequest{
				Email:    "nonexistent@example.com",
				Password: password,
			},
			wantErr: ErrInvalidCredentials,
		},
		{
			name: "empty password",
			req: &domain.LoginRequest{
				Email:    "test@example.com",
				Password: "",
			},
			wantErr: ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := service.Login(ctx, tt.req)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("Login() unexpected error = %v", err)
			}

			if resp.AccessToken == "" || resp.RefreshToken == "" {
				t.Error("Login() returned empty tokens")
			}

			if resp.User == nil || resp.User.Password != "" {
				t.Error("Login() must return the user without password")
			}

			if resp.ExpiresIn != int64(15*time.Minute.Seconds()) {
				t.Errorf("Login() expiresIn = %v, want %v", resp.ExpiresIn, 15*60)
			}

			userID, err := service.Authenticate(resp.AccessToken)
			if err != nil || userID != "test-user-id" {
				t.Errorf("Authenticate() = %q, %v", userID, err)
			}
		})
	}
}

func TestAuthService_RefreshToken(t *testing.T) {
	repo := newMockUserRepository()
	secret := "refresh-test-secret-key"
	service := NewAuthService(repo, secret, 15*time.Minute, 7*24*time.Hour)

	validToken, _ := GenerateRefreshToken("refresh-user-id", 7*24*time.Hour, secret)
	expiredToken, _ := GenerateRefreshToken("refresh-user-id", -1*time.Hour, secret)
	accessToken, _ := GenerateToken("refresh-user-id", time.Hour, secret)

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid refresh token", token: validToken},
		{name: "expired refresh token", token: expiredToken, wantErr: true},
		{name: "access token used as refresh", token: accessToken, wantErr: true},
		{name: "invalid refresh token", token: "invalid.token.here", wantErr: true},
		{name: "empty refresh token", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := service.RefreshToken(&domain.RefreshTokenRequest{RefreshToken: tt.token})

			if tt.wantErr {
				if err == nil {
					t.Error("RefreshToken() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Fatalf("RefreshToken() unexpected error = %v", err)
			}

			if resp.AccessToken == "" {
				t.Error("RefreshToken() returned empty access token")
			}
		})
	}
}

func TestAuthService_Authenticate(t *testing.T) {
	secret := "validation-test-secret"
	service := NewAuthService(newMockUserRepository(), secret, 15*time.Minute, 7*24*time.Hour)

	validToken, _ := GenerateToken("user-id", 1*time.Hour, secret)
	otherSecret, _ := GenerateToken("user-id", 1*time.Hour, "other-secret")

	tests := []struct {
		name    string
		token   string
		wantErr bool
	}{
		{name: "valid token", token: validToken},
		{name: "signed with another secret", token: otherSecret, wantErr: true},
		{name: "invalid token", token: "invalid.token.format", wantErr: true},
		{name: "empty token", token: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			userID, err := service.Authenticate(tt.token)

			if tt.wantErr {
				if !errors.Is(err, ErrUnauthorized) {
					t.Errorf("Authenticate() error = %v, want ErrUnauthorized", err)
				}
				return
			}

			if err != nil || userID != "user-id" {
				t.Errorf("Authenticate() = %q, %v", userID, err)
			}
		})
	}
}
