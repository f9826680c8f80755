package utils

import (
	"testing"
	"time"
)

func createTestManager() *JWTManager {
	return NewJWTManager(
		"test-secret-key-for-testing",
		15*time.Minute,
		7*24*time.Hour,
		"test-issuer",
	)
}

func TestJWTManager_GenerateTokenPair(t *testing.T) {
	manager := createTestManager()

	tokenPair, err := manager.GenerateTokenPair("user-123", "testuser")
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	if tokenPair.AccessToken == "" {
		t.Error("Expected access token to be set")
	}

	if tokenPair.RefreshToken == "" {
		t.Error("Expected refresh token to be set")
	}

	if tokenPair.ExpiresAt.Before(time.Now()) {
		t.Error("Expected expiry to be in the future")
	}
}

func TestJWTManager_ValidateAccessToken(t *testing.T) {
	manager := createTestManager()

	tokenPair, _ := manager.GenerateTokenPair("user-123", "testuser")

	claims, err := manager.ValidateAccessToken(tokenPair.AccessToken)
	if err != nil {
		t.Fatalf("Failed to validate access token: %v", err)
	}

	if claims.UserID != "user-123" {
		t.Errorf("Expected user_id 'user-123', got '%s'", claims.UserID)
	}

	if claims.Username != "testuser" {
		t.Errorf("Expected username 'testuser', got '%s'", claims.Username)
	}

	if claims.Type != AccessToken {
		t.Errorf("Expected token type 'access', got '%s'", claims.Type)
	}

	if claims.IsGuest {
		t.Error("Expected account token to not be marked guest")
	}
}

func TestJWTManager_ValidateRefreshToken(t *testing.T) {
	manager := createTestManager()

	tokenPair, _ := manager.GenerateTokenPair("user-123", "testuser")

	claims, err := manager.ValidateRefreshToken(tokenPair.RefreshToken)
	if err != nil {
		t.Fatalf("Failed to validate refresh token: %v", err)
	}

	if claims.Type != RefreshToken {
		t.Errorf("Expected token type 'refresh', got '%s'", claims.Type)
	}
}

func TestJWTManager_GenerateGuestToken(t *testing.T) {
	manager := createTestManager()

	token, expiresAt, err := manager.GenerateGuestToken("guest:abc", "visitor")
	if err != nil {
		t.Fatalf("Failed to generate guest token: %v", err)
	}

	if expiresAt.Before(time.Now()) {
		t.Error("Expected expiry to be in the future")
	}

	claims, err := manager.ValidateAccessToken(token)
	if err != nil {
		t.Fatalf("Failed to validate guest token: %v", err)
	}

	if !claims.IsGuest {
		t.Error("Expected guest token to be marked guest")
	}

	if claims.UserID != "guest:abc" {
		t.Errorf("Expected user_id 'guest:abc', got '%s'", claims.UserID)
	}

	// A guest token is an access token; it must not refresh.
	if _, err := manager.ValidateRefreshToken(token); err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken when refreshing with guest token, got %v", err)
	}
}

func TestJWTManager_ValidateAccessToken_WithRefreshToken(t *testing.T) {
	manager := createTestManager()

	tokenPair, _ := manager.GenerateTokenPair("user-123", "testuser")

	// Try to validate refresh token as access token
	_, err := manager.ValidateAccessToken(tokenPair.RefreshToken)
	if err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken when validating refresh token as access token")
	}
}

func TestJWTManager_ValidateToken_Invalid(t *testing.T) {
	manager := createTestManager()

	_, err := manager.ValidateToken("invalid-token")
	if err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken, got %v", err)
	}
}

func TestJWTManager_ValidateToken_Expired(t *testing.T) {
	// Create manager with very short TTL
	manager := NewJWTManager(
		"test-secret-key",
		1*time.Millisecond, // Very short TTL
		1*time.Millisecond,
		"test-issuer",
	)

	tokenPair, _ := manager.GenerateTokenPair("user-123", "testuser")

	// Wait for token to expire
	time.Sleep(10 * time.Millisecond)

	_, err := manager.ValidateToken(tokenPair.AccessToken)
	if err != ErrExpiredToken {
		t.Errorf("Expected ErrExpiredToken, got %v", err)
	}
}

func TestJWTManager_ValidateToken_WrongSecret(t *testing.T) {
	manager := createTestManager()
	other := NewJWTManager("a-different-secret", 15*time.Minute, time.Hour, "test-issuer")

	tokenPair, _ := manager.GenerateTokenPair("user-123", "testuser")

	_, err := other.ValidateToken(tokenPair.AccessToken)
	if err != ErrInvalidToken {
		t.Errorf("Expected ErrInvalidToken for foreign signature, got %v", err)
	}
}
