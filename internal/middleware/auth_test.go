package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-demo/meet/internal/pkg/utils"
)

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func createTestJWTManager() *utils.JWTManager {
	return utils.NewJWTManager(
		"test-secret-key",
		15*time.Minute,
		7*24*time.Hour,
		"test-issuer",
	)
}

func TestAuth_NoToken(t *testing.T) {
	router := setupTestRouter()
	jwtManager := createTestJWTManager()

	router.GET("/protected", Auth(jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuth_InvalidFormat(t *testing.T) {
	router := setupTestRouter()
	jwtManager := createTestJWTManager()

	router.GET("/protected", Auth(jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "InvalidFormat token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuth_InvalidToken(t *testing.T) {
	router := setupTestRouter()
	jwtManager := createTestJWTManager()

	router.GET("/protected", Auth(jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-valid-token")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken(t *testing.T) {
	router := setupTestRouter()
	jwtManager := createTestJWTManager()

	router.GET("/protected", Auth(jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user_id": GetUserID(c)})
	})

	tokenPair, err := jwtManager.GenerateTokenPair("user-123", "testuser")
	if err != nil {
		t.Fatalf("Failed to generate token pair: %v", err)
	}

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenPair.AccessToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}

func TestAuth_RefreshTokenRejected(t *testing.T) {
	router := setupTestRouter()
	jwtManager := createTestJWTManager()

	router.GET("/protected", Auth(jwtManager), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tokenPair, _ := jwtManager.GenerateTokenPair("user-123", "testuser")

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+tokenPair.RefreshToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 for refresh token, got %d", w.Code)
	}
}

func TestRequireAccount_RejectsGuest(t *testing.T) {
	router := setupTestRouter()
	jwtManager := createTestJWTManager()

	router.GET("/accounts-only", Auth(jwtManager), RequireAccount(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	token, _, err := jwtManager.GenerateGuestToken("guest:abc", "visitor")
	if err != nil {
		t.Fatalf("Failed to generate guest token: %v", err)
	}

	req := httptest.NewRequest("GET", "/accounts-only", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for guest, got %d", w.Code)
	}
}

func TestRequireAccount_AllowsAccount(t *testing.T) {
	router := setupTestRouter()
	jwtManager := createTestJWTManager()

	router.GET("/accounts-only", Auth(jwtManager), RequireAccount(), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "success"})
	})

	tokenPair, _ := jwtManager.GenerateTokenPair("user-123", "testuser")

	req := httptest.NewRequest("GET", "/accounts-only", nil)
	req.Header.Set("Authorization", "Bearer "+tokenPair.AccessToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
}
