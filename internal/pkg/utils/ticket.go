package utils

import (
	"crypto/rsa"
	"errors"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidTicket = errors.New("invalid ticket token")
	ErrExpiredTicket = errors.New("ticket token has expired")
)

// TicketScopeToolOpen marks a token as granting tool hand-off only.
const TicketScopeToolOpen = "tool:open"

// TicketClaims are the claims carried by a signed tool hand-off token.
// The companion secret stored in the room record is NOT part of the token;
// the token only proves who minted the ticket and for which room/tool.
type TicketClaims struct {
	RoomID   string   `json:"room_id"`
	Tool     string   `json:"tool"`
	SocketID string   `json:"socket_id"`
	Scope    []string `json:"scope"`
	jwt.RegisteredClaims
}

// TicketManager mints and verifies RS256-signed tool tickets. Tickets are
// signed asymmetrically so tool backends can verify with the public key
// alone.
type TicketManager struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	ttl        time.Duration
	issuer     string
	audience   string
}

// NewTicketManager loads PEM-encoded RSA keys from disk.
func NewTicketManager(privateKeyPath, publicKeyPath string, ttl time.Duration, issuer, audience string) (*TicketManager, error) {
	privPEM, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, err
	}
	priv, err := jwt.ParseRSAPrivateKeyFromPEM(privPEM)
	if err != nil {
		return nil, err
	}

	pubPEM, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, err
	}
	pub, err := jwt.ParseRSAPublicKeyFromPEM(pubPEM)
	if err != nil {
		return nil, err
	}

	return NewTicketManagerFromKeys(priv, pub, ttl, issuer, audience), nil
}

// NewTicketManagerFromKeys builds a manager from in-memory keys.
func NewTicketManagerFromKeys(priv *rsa.PrivateKey, pub *rsa.PublicKey, ttl time.Duration, issuer, audience string) *TicketManager {
	return &TicketManager{
		privateKey: priv,
		publicKey:  pub,
		ttl:        ttl,
		issuer:     issuer,
		audience:   audience,
	}
}

// Mint signs a tool hand-off token for the given user/room/tool.
func (m *TicketManager) Mint(userID, roomID, tool, socketID string) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)

	claims := &TicketClaims{
		RoomID:   roomID,
		Tool:     tool,
		SocketID: socketID,
		Scope:    []string{TicketScopeToolOpen},
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    m.issuer,
			Audience:  jwt.ClaimStrings{m.audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(m.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}

	return signed, expiresAt, nil
}

// Verify checks signature, expiry, issuer and audience of a ticket token.
// Expiry is enforced here; the store-side consume only checks presence and
// equality of the companion secret.
func (m *TicketManager) Verify(tokenString string) (*TicketClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TicketClaims{},
		func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
				return nil, ErrInvalidTicket
			}
			return m.publicKey, nil
		},
		jwt.WithIssuer(m.issuer),
		jwt.WithAudience(m.audience),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredTicket
		}
		return nil, ErrInvalidTicket
	}

	claims, ok := token.Claims.(*TicketClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidTicket
	}

	return claims, nil
}
