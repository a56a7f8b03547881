package handlers

import (
	"crypto/subtle"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

const (
	adminTokenIssuer = "raffle-backend-admin"
	adminTokenTTL    = 24 * time.Hour
	defaultAdminUser = "admin"
	defaultAdminRole = "admin"
	defaultJWTSecret = "raffle-admin-jwt-secret-default-change-me"
	totpIssuer       = "Raffle Admin"
	totpAccountName  = "admin@raffle"
)

// AdminAuthHandler 管理员认证处理器
type AdminAuthHandler struct {
	username     string
	password     string
	passwordHash string // bcrypt, preferred over password
	totpSecret   string
	jwtSecret    []byte
}

// AdminLoginRequest 管理员登录请求
type AdminLoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// AdminLoginResponse 管理员登录响应
type AdminLoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message"`
}

// AdminJWTClaims 管理员 JWT Claims
type AdminJWTClaims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// NewAdminAuthHandler reads ADMIN_USERNAME, ADMIN_PASSWORD (or
// ADMIN_PASSWORD_HASH), ADMIN_TOTP_SECRET and ADMIN_JWT_SECRET from the environment
func NewAdminAuthHandler() *AdminAuthHandler {
	h := &AdminAuthHandler{
		username:     os.Getenv("ADMIN_USERNAME"),
		password:     os.Getenv("ADMIN_PASSWORD"),
		passwordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
		totpSecret:   os.Getenv("ADMIN_TOTP_SECRET"),
		jwtSecret:    AdminJWTSecret(),
	}
	if h.username == "" {
		h.username = defaultAdminUser
	}
	if !h.credentialsConfigured() {
		logrus.Warn("⚠️ ADMIN_TOTP_SECRET or ADMIN_PASSWORD not set, admin login is disabled")
	}
	return h
}

func (h *AdminAuthHandler) credentialsConfigured() bool {
	return h.totpSecret != "" && (h.password != "" || h.passwordHash != "")
}

func (h *AdminAuthHandler) checkPassword(password string) bool {
	if h.passwordHash != "" {
		return CheckPasswordHash(password, h.passwordHash)
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(h.password)) == 1
}

// HashPassword bcrypt hash for ADMIN_PASSWORD_HASH
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares password with a bcrypt hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// AdminJWTSecret signing key for admin tokens
func AdminJWTSecret() []byte {
	if secret := os.Getenv("ADMIN_JWT_SECRET"); secret != "" {
		return []byte(secret)
	}
	logrus.Warn("⚠️ Using default ADMIN_JWT_SECRET, set it outside local development")
	return []byte(defaultJWTSecret)
}

// AdminLoginHandler 管理员登录处理
// POST /api/admin/login
func (h *AdminAuthHandler) AdminLoginHandler(c *gin.Context) {
	if !h.credentialsConfigured() {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Server misconfiguration: admin credentials not set",
		})
		return
	}

	var req AdminLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, AdminLoginResponse{
			Success: false,
			Message: fmt.Sprintf("Invalid request: %v", err),
		})
		return
	}

	// 故意使用通用的错误消息
	userOK := subtle.ConstantTimeCompare([]byte(req.Username), []byte(h.username)) == 1
	passOK := h.checkPassword(req.Password)
	if !userOK || !passOK {
		logrus.WithFields(logrus.Fields{
			"username":  req.Username,
			"client_ip": c.ClientIP(),
		}).Warn("Admin login rejected")
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid credentials",
		})
		return
	}

	if !totp.Validate(req.TOTPCode, h.totpSecret) {
		c.JSON(http.StatusUnauthorized, AdminLoginResponse{
			Success: false,
			Message: "Invalid TOTP code",
		})
		return
	}

	token, err := GenerateAdminJWTToken(h.jwtSecret, req.Username, adminTokenTTL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, AdminLoginResponse{
			Success: false,
			Message: "Failed to generate token",
		})
		return
	}

	logrus.WithFields(logrus.Fields{
		"username":  req.Username,
		"client_ip": c.ClientIP(),
	}).Info("Admin logged in")
	c.JSON(http.StatusOK, AdminLoginResponse{
		Success: true,
		Token:   token,
		Message: "Login successful",
	})
}

// GenerateTOTPSecretHandler 生成 TOTP secret（仅用于初始化）
// POST /api/admin/totp/setup
func (h *AdminAuthHandler) GenerateTOTPSecretHandler(c *gin.Context) {
	if h.totpSecret != "" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error":   "TOTP secret already configured in environment",
			"code":    "TOTP_ALREADY_CONFIGURED",
		})
		return
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: totpAccountName,
		Period:      30,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to generate TOTP secret",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"secret":  key.Secret(),
		"url":     key.URL(),
		"message": "Save this secret to ADMIN_TOTP_SECRET and restart the server.",
	})
}

// GenerateAdminJWTToken signs an admin token valid for ttl
func GenerateAdminJWTToken(secret []byte, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := AdminJWTClaims{
		Username: username,
		Role:     defaultAdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    adminTokenIssuer,
			Subject:   username,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// ValidateAdminJWTToken 验证管理员 JWT token
func ValidateAdminJWTToken(secret []byte, tokenString string) (*AdminJWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminJWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(adminTokenIssuer))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if claims, ok := token.Claims.(*AdminJWTClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
