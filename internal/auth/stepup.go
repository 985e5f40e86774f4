package auth

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

// StepUpConfig holds step-up authentication settings
type StepUpConfig struct {
	Issuer    string        // issuer name shown in authenticator apps
	JWTSecret string        // HMAC key for signing step-up proofs
	ProofTTL  time.Duration // how long a verified proof stays valid
}

// StepUpManager implements step-up (re-auth) verification. When session
// validation demands re-authentication, the client proves presence with a
// TOTP code and receives a short-lived signed proof bound to the session,
// which sensitive endpoints then require. The session itself is never
// destroyed by the step-up demand.
type StepUpManager struct {
	issuer    string
	jwtSecret []byte
	proofTTL  time.Duration
}

// ProofClaims are the claims carried by a step-up proof token
type ProofClaims struct {
	Type      string `json:"type"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

// NewStepUpManager creates a new StepUpManager
func NewStepUpManager(config StepUpConfig) (*StepUpManager, error) {
	if len(config.JWTSecret) < 32 {
		return nil, fmt.Errorf("step-up JWT secret must be at least 32 bytes, got %d", len(config.JWTSecret))
	}

	proofTTL := config.ProofTTL
	if proofTTL <= 0 {
		proofTTL = 5 * time.Minute
	}

	return &StepUpManager{
		issuer:    config.Issuer,
		jwtSecret: []byte(config.JWTSecret),
		proofTTL:  proofTTL,
	}, nil
}

// ProofTTL reports how long issued proofs stay valid
func (m *StepUpManager) ProofTTL() time.Duration {
	return m.proofTTL
}

// Enrollment holds everything the client needs to register an authenticator
type Enrollment struct {
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCodePNG  string `json:"qr_code_png"` // base64-encoded PNG
}

// GenerateEnrollment creates a new TOTP secret for an account and renders
// the provisioning QR code.
func (m *StepUpManager) GenerateEnrollment(accountEmail string) (*Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.issuer,
		AccountName: accountEmail,
		SecretSize:  32,
		Period:      30,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate TOTP secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("failed to render provisioning QR code: %w", err)
	}

	return &Enrollment{
		Secret:     key.Secret(),
		OTPAuthURL: key.URL(),
		QRCodePNG:  base64.StdEncoding.EncodeToString(png),
	}, nil
}

// VerifyCode checks a TOTP code against the stored secret
func (m *StepUpManager) VerifyCode(secret, code string) bool {
	return totp.Validate(code, secret)
}

// IssueProof signs a short-lived step-up proof bound to the session
func (m *StepUpManager) IssueProof(sessionID, userID string) (string, error) {
	now := time.Now()
	claims := ProofClaims{
		Type:      "stepup",
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.proofTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign step-up proof: %w", err)
	}
	return signed, nil
}

// VerifyProof validates a step-up proof and checks it is bound to the
// presenting session.
func (m *StepUpManager) VerifyProof(tokenString, sessionID string) (*ProofClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ProofClaims{}, func(t *jwt.Token) (interface{}, error) {
		return m.jwtSecret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("invalid step-up proof: %w", err)
	}

	claims, ok := token.Claims.(*ProofClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid step-up proof claims")
	}
	if claims.Type != "stepup" {
		return nil, fmt.Errorf("token is not a step-up proof")
	}
	if claims.SessionID != sessionID {
		return nil, fmt.Errorf("step-up proof is bound to a different session")
	}

	return claims, nil
}
