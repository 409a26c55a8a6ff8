package apitest

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/bde-portal/internal/dto"
	"github.com/noah-isme/bde-portal/internal/models"
	appErrors "github.com/noah-isme/bde-portal/pkg/errors"
	"github.com/noah-isme/bde-portal/pkg/response"
)

const contextUserKey = "currentUser"

type account struct {
	user         models.User
	passwordHash []byte
}

type claims struct {
	UserID string      `json:"uid"`
	Role   models.Role `json:"role"`
	Name   string      `json:"name"`
	jwt.RegisteredClaims
}

// ResetMail is what the fake "emails" after a password reset request.
type ResetMail struct {
	Token string
	UID   string
}

// AddUser registers an account. An empty ID is replaced by a fresh UUID.
func (s *Server) AddUser(user models.User, password string) models.User {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.users[strings.ToLower(user.Email)] = &account{user: user, passwordHash: hash}
	s.mu.Unlock()
	return user
}

// ResetMailFor returns the last reset mail sent to email.
func (s *Server) ResetMailFor(email string) (ResetMail, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.outbox[strings.ToLower(email)]
	return m, ok
}

// Revoked reports whether refresh was revoked by a logout.
func (s *Server) Revoked(refresh string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revoked[refresh]
}

// AccessTokenFor signs an access token for user, for tests that skip login.
func (s *Server) AccessTokenFor(user models.User) string {
	token, err := s.sign(user)
	if err != nil {
		panic(err)
	}
	return token
}

type loginBody struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

func (s *Server) login(c *gin.Context) {
	var req loginBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Validation("Email and password are required.", nil))
		return
	}

	s.mu.Lock()
	acct, ok := s.users[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if !ok || bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(req.Password)) != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "No active account found with the given credentials"))
		return
	}

	access, err := s.sign(acct.user)
	if err != nil {
		response.Error(c, err)
		return
	}
	refresh := uuid.NewString()
	s.mu.Lock()
	s.refresh[refresh] = acct.user.ID
	s.mu.Unlock()

	response.JSON(c, http.StatusOK, dto.LoginResponse{
		User:   acct.user,
		Tokens: models.Tokens{Access: access, Refresh: refresh},
	})
}

func (s *Server) logout(c *gin.Context) {
	var req dto.LogoutRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		response.Error(c, appErrors.Validation("", map[string]string{"refresh_token": "This field is required."}))
		return
	}
	current := c.MustGet(contextUserKey).(*claims)

	s.mu.Lock()
	owner, ok := s.refresh[req.RefreshToken]
	if ok && owner == current.UserID {
		s.revoked[req.RefreshToken] = true
		delete(s.refresh, req.RefreshToken)
	}
	s.mu.Unlock()
	if !ok || owner != current.UserID {
		response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "Token is invalid or expired"))
		return
	}
	response.JSON(c, http.StatusOK, dto.DetailResponse{Detail: "Successfully logged out."})
}

type registerBody struct {
	Email       string `json:"email" binding:"required,email"`
	Password    string `json:"password" binding:"required,min=8"`
	FirstName   string `json:"first_name" binding:"required"`
	LastName    string `json:"last_name" binding:"required"`
	YearOfStudy *int   `json:"year_of_study"`
	Major       string `json:"major"`
}

func (s *Server) register(c *gin.Context) {
	var req registerBody
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid registration payload"))
		return
	}

	s.mu.Lock()
	_, exists := s.users[strings.ToLower(req.Email)]
	s.mu.Unlock()
	if exists {
		response.Error(c, appErrors.Validation("", map[string]string{"email": "user with this email already exists."}))
		return
	}

	user := models.User{
		Email:       req.Email,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Role:        models.RoleStudent,
		YearOfStudy: req.YearOfStudy,
	}
	if req.Major != "" {
		major := req.Major
		user.Major = &major
	}
	response.Created(c, s.AddUser(user, req.Password))
}

func (s *Server) requestReset(c *gin.Context) {
	var req dto.PasswordResetRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Email == "" {
		response.Error(c, appErrors.Validation("", map[string]string{"email": "This field is required."}))
		return
	}

	key := strings.ToLower(req.Email)
	s.mu.Lock()
	acct, ok := s.users[key]
	s.mu.Unlock()
	if ok {
		token, _, err := s.signer.Generate(acct.user.ID, key)
		if err != nil {
			response.Error(c, err)
			return
		}
		s.mu.Lock()
		s.outbox[key] = ResetMail{Token: token, UID: acct.user.ID}
		s.mu.Unlock()
	}
	// Unknown addresses get the same answer.
	response.JSON(c, http.StatusOK, dto.DetailResponse{Detail: "Password reset e-mail has been sent."})
}

func (s *Server) confirmReset(c *gin.Context) {
	var req dto.PasswordResetConfirmRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid reset payload"))
		return
	}
	uid, email, err := s.signer.Parse(req.Token)
	if err != nil || uid != req.UID {
		response.Error(c, appErrors.Validation("", map[string]string{"token": "Invalid value"}))
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		response.Error(c, err)
		return
	}

	s.mu.Lock()
	acct, ok := s.users[email]
	if ok {
		acct.passwordHash = hash
		delete(s.outbox, email)
	}
	s.mu.Unlock()
	if !ok {
		response.Error(c, appErrors.Validation("", map[string]string{"uid": "Invalid value"}))
		return
	}
	response.JSON(c, http.StatusOK, dto.DetailResponse{Detail: "Password has been reset with the new password."})
}

func (s *Server) sign(user models.User) (string, error) {
	now := time.Now().UTC()
	name := user.FullName()
	if name == "" {
		name = user.Email
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: user.ID,
		Role:   user.Role,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.opts.AccessTTL)),
		},
	})
	return token.SignedString([]byte(s.opts.Secret))
}

func (s *Server) parse(raw string) (*claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.opts.Secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "Given token not valid for any token type")
	}
	return parsed.Claims.(*claims), nil
}

// requireAuth mirrors a bearer-token guard: missing or bad tokens get 401.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "Authentication credentials were not provided."))
			return
		}
		cl, err := s.parse(parts[1])
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(contextUserKey, cl)
		c.Next()
	}
}

// requireRoles lets any authenticated user through when roles is empty.
func (s *Server) requireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		if len(allowed) == 0 {
			c.Next()
			return
		}
		cl := c.MustGet(contextUserKey).(*claims)
		if _, ok := allowed[cl.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "You do not have permission to perform this action."))
			return
		}
		c.Next()
	}
}
