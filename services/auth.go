package services

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"moments/mailer"
	"moments/models"
	"moments/otp"
)

const (
	MinPasswordLen = 8
	maxPasswordLen = 72
	maxNameLen     = 100
)

// UserStore persists accounts. Emails are stored lower-cased.
type UserStore interface {
	Insert(ctx context.Context, u models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id primitive.ObjectID) (models.User, error)
	UpdatePassword(ctx context.Context, id primitive.ObjectID, hash string) error
	List(ctx context.Context, limit int) ([]models.User, error)
	Count(ctx context.Context) (int64, error)
}

// TokenIssuer signs access tokens for a user.
type TokenIssuer interface {
	Issue(user models.User) (string, error)
}

type SignupInput struct {
	Name     string
	Email    string
	Password string
}

type AuthResult struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

type AuthService struct {
	users      UserStore
	tokens     TokenIssuer
	codes      otp.Store
	mail       mailer.Mailer
	adminEmail string
	validate   *validator.Validate
	log        *zap.Logger
	now        func() time.Time
	cost       int
}

func NewAuthService(users UserStore, tokens TokenIssuer, codes otp.Store, mail mailer.Mailer, adminEmail string, log *zap.Logger) *AuthService {
	return &AuthService{
		users:      users,
		tokens:     tokens,
		codes:      codes,
		mail:       mail,
		adminEmail: normalizeEmail(adminEmail),
		validate:   validator.New(),
		log:        log.Named("auth"),
		now:        time.Now,
		cost:       bcrypt.DefaultCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) checkEmail(email string) error {
	if email == "" {
		return models.InvalidArgument("Email is required")
	}
	if err := s.validate.Var(email, "email"); err != nil {
		return models.InvalidArgument("Invalid email address")
	}
	return nil
}

func checkPassword(password string) error {
	switch {
	case utf8.RuneCountInString(password) < MinPasswordLen:
		return models.InvalidArgument("Password must be at least %d characters", MinPasswordLen)
	case len(password) > maxPasswordLen:
		return models.InvalidArgument("Password is too long (max %d bytes)", maxPasswordLen)
	}
	return nil
}

func (s *AuthService) hash(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return "", models.Internal("Failed to hash password")
	}
	return string(h), nil
}

func (s *AuthService) issue(user models.User) (AuthResult, error) {
	token, err := s.tokens.Issue(user)
	if err != nil {
		s.log.Error("token signing failed", zap.Error(err), zap.String("user_id", user.ID.Hex()))
		return AuthResult{}, models.Internal("Failed to generate token")
	}
	user.PasswordHash = ""
	return AuthResult{Token: token, User: user}, nil
}

// Signup creates an account. The configured admin address gets the admin role.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (AuthResult, error) {
	name := strings.TrimSpace(in.Name)
	email := normalizeEmail(in.Email)
	if name == "" {
		return AuthResult{}, models.InvalidArgument("Name is required")
	}
	if utf8.RuneCountInString(name) > maxNameLen {
		return AuthResult{}, models.InvalidArgument("Name is too long (max %d characters)", maxNameLen)
	}
	if err := s.checkEmail(email); err != nil {
		return AuthResult{}, err
	}
	if err := checkPassword(in.Password); err != nil {
		return AuthResult{}, err
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return AuthResult{}, err
	}
	user := models.User{
		ID:           primitive.NewObjectID(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         models.RoleUser,
		CreatedAt:    s.now().UTC(),
	}
	if s.adminEmail != "" && email == s.adminEmail {
		user.Role = models.RoleAdmin
	}

	if err := s.users.Insert(ctx, user); err != nil {
		return AuthResult{}, err
	}
	s.log.Info("user registered", zap.String("user_id", user.ID.Hex()), zap.String("role", user.Role))
	return s.issue(user)
}

// Login checks the credentials. Unknown email and wrong password are
// indistinguishable.
func (s *AuthService) Login(ctx context.Context, email, password string) (AuthResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return AuthResult{}, models.InvalidArgument("Email and password are required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return AuthResult{}, models.Unauthorized("Invalid email or password")
		}
		return AuthResult{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return AuthResult{}, models.Unauthorized("Invalid email or password")
	}
	return s.issue(user)
}

func (s *AuthService) Me(ctx context.Context, userID string) (models.User, error) {
	id, err := parseID(userID, "user")
	if err != nil {
		return models.User{}, err
	}
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

// ForgotPassword mails a reset code when the account exists. It reports
// success either way.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.log.Debug("reset requested for unknown email")
			return nil
		}
		return err
	}

	code, err := otp.Issue(ctx, s.codes, email, s.now())
	if err != nil {
		s.log.Error("otp issue failed", zap.Error(err))
		return models.Unavailable("OTP_UNAVAILABLE", "Password reset is temporarily unavailable")
	}
	if err := s.mail.Send(ctx, mailer.PasswordResetMessage(user.Email, user.Name, code, otp.TTL)); err != nil {
		s.log.Error("reset email failed", zap.Error(err), zap.String("user_id", user.ID.Hex()))
	}
	return nil
}

func otpError(err error) error {
	switch {
	case errors.Is(err, otp.ErrNotFound), errors.Is(err, otp.ErrExpired):
		return models.InvalidArgument("Invalid or expired code")
	case errors.Is(err, otp.ErrMismatch):
		return models.InvalidArgument("Incorrect code")
	case errors.Is(err, otp.ErrTooManyAttempts):
		return models.TooManyRequests("OTP_ATTEMPTS_EXCEEDED", "Too many incorrect attempts, request a new code")
	default:
		return models.Unavailable("OTP_UNAVAILABLE", "Password reset is temporarily unavailable")
	}
}

// VerifyOTP checks a code without consuming it.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) error {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(code) == "" {
		return models.InvalidArgument("Email and code are required")
	}
	if err := otp.Check(ctx, s.codes, email, code, s.now()); err != nil {
		return otpError(err)
	}
	return nil
}

// ResetPassword consumes the code and stores the new password.
func (s *AuthService) ResetPassword(ctx context.Context, email, code, password string) error {
	email = normalizeEmail(email)
	if email == "" || strings.TrimSpace(code) == "" {
		return models.InvalidArgument("Email and code are required")
	}
	if err := checkPassword(password); err != nil {
		return err
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return models.InvalidArgument("Invalid or expired code")
		}
		return err
	}
	if err := otp.Consume(ctx, s.codes, email, code, s.now()); err != nil {
		return otpError(err)
	}

	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	s.log.Info("password reset", zap.String("user_id", user.ID.Hex()))
	return nil
}
