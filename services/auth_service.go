package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"learnloop/models"
	"learnloop/store"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 6
	studentIDAttempts = 5
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

type AuthService struct {
	store     store.Store
	jwtSecret []byte
	expiresIn time.Duration
}

func NewAuthService(st store.Store, jwtSecret string, expiresIn time.Duration) *AuthService {
	if expiresIn <= 0 {
		expiresIn = 7 * 24 * time.Hour
	}
	return &AuthService{
		store:     st,
		jwtSecret: []byte(jwtSecret),
		expiresIn: expiresIn,
	}
}

type Claims struct {
	UserID uint `json:"user_id"`
	jwt.RegisteredClaims
}

type RegisterRequest struct {
	Name            string `json:"name" binding:"required"`
	Email           string `json:"email" binding:"required,email"`
	Password        string `json:"password" binding:"required,min=6"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
	Level           string `json:"level" binding:"omitempty,classlevel"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type UpdateProfileRequest struct {
	Name         *string `json:"name"`
	Email        *string `json:"email" binding:"omitempty,email"`
	Level        *string `json:"level" binding:"omitempty,classlevel"`
	ProfileImage *string `json:"profileImage"`
}

type ChangePasswordRequest struct {
	CurrentPassword    string `json:"currentPassword" binding:"required"`
	NewPassword        string `json:"newPassword" binding:"required,min=6"`
	ConfirmNewPassword string `json:"confirmNewPassword" binding:"required"`
}

// UserView is the account shape returned to clients.
type UserView struct {
	ID           uint    `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	StudentID    string  `json:"studentId"`
	Level        *string `json:"level"`
	Points       int     `json:"points"`
	Streak       int     `json:"streak"`
	GameLevel    int     `json:"gameLevel"`
	ProfileImage *string `json:"profileImage"`
	Onboarded    bool    `json:"onboardingCompleted"`
}

func NewUserView(u *models.User) UserView {
	return UserView{
		ID:           u.ID,
		Name:         u.Name,
		Email:        u.Email,
		StudentID:    u.StudentID,
		Level:        u.Level,
		Points:       u.Points,
		Streak:       u.Streak,
		GameLevel:    u.GameLevel(),
		ProfileImage: u.ProfileImage,
		Onboarded:    u.OnboardingCompleted,
	}
}

type AuthResponse struct {
	Message string   `json:"message"`
	User    UserView `json:"user"`
	Token   string   `json:"token"`
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResponse, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if name == "" || email == "" || req.Password == "" || req.ConfirmPassword == "" {
		return nil, ValidationError("Please fill all required fields")
	}
	if len(req.Password) < minPasswordLength {
		return nil, ValidationError("Password must be at least 6 characters long")
	}
	if req.Password != req.ConfirmPassword {
		return nil, ValidationError("Password and confirm password do not match")
	}

	if _, err := s.store.Users().GetByEmail(ctx, email); err == nil {
		return nil, ValidationError("User already exists")
	} else if !errors.Is(err, store.ErrNotFound) {
		log.Printf("Failed to look up user by email: %v", err)
		return nil, ServerError(err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, ServerError(fmt.Errorf("failed to hash password: %w", err))
	}

	user := &models.User{
		Name:     name,
		Email:    email,
		Password: string(hashedPassword),
		Level:    models.StringPtr(strings.TrimSpace(req.Level)),
	}
	user.ApplySignalDefaults()

	// Student ids are short and random, so a collision is retried.
	for attempt := 0; ; attempt++ {
		user.StudentID = newStudentID()
		err = s.store.Users().Create(ctx, user)
		if !errors.Is(err, store.ErrDuplicate) || attempt == studentIDAttempts-1 {
			break
		}
		if _, lookupErr := s.store.Users().GetByEmail(ctx, email); lookupErr == nil {
			return nil, ValidationError("User already exists")
		}
	}
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ValidationError("User already exists")
	}
	if err != nil {
		log.Printf("Failed to create user: %v", err)
		return nil, ServerError(err)
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, ServerError(err)
	}
	return &AuthResponse{Message: "User registered successfully", User: NewUserView(user), Token: token}, nil
}

func newStudentID() string {
	return fmt.Sprintf("S%04d", rand.Intn(10000))
}

func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResponse, error) {
	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, ValidationError("Please provide email and password")
	}

	user, err := s.store.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return nil, Unauthorized("Invalid credentials")
	}
	if err != nil {
		log.Printf("Failed to look up user by email: %v", err)
		return nil, ServerError(err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, Unauthorized("Invalid credentials")
	}

	token, err := s.GenerateToken(user.ID)
	if err != nil {
		return nil, ServerError(err)
	}
	return &AuthResponse{Message: "Login successful", User: NewUserView(user), Token: token}, nil
}

func (s *AuthService) GetUser(ctx context.Context, userID uint) (*models.User, error) {
	user, err := s.store.Users().GetByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, NotFound("User not found")
	}
	if err != nil {
		log.Printf("Failed to load user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID uint, req *UpdateProfileRequest) (*models.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil && strings.TrimSpace(*req.Name) != "" {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil && strings.TrimSpace(*req.Email) != "" {
		email := normalizeEmail(*req.Email)
		if email != user.Email {
			existing, err := s.store.Users().GetByEmail(ctx, email)
			if err == nil && existing.ID != user.ID {
				return nil, ValidationError("Email already in use")
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, ServerError(err)
			}
			user.Email = email
		}
	}
	if req.Level != nil && strings.TrimSpace(*req.Level) != "" {
		level := strings.TrimSpace(*req.Level)
		if !models.IsValidLevel(level) {
			return nil, ValidationError("level must be Class 11 or Class 12")
		}
		user.Level = &level
	}
	if req.ProfileImage != nil {
		user.ProfileImage = models.StringPtr(*req.ProfileImage)
	}

	if err := s.store.Users().Save(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ValidationError("Email already in use")
		}
		log.Printf("Failed to update profile for user %d: %v", userID, err)
		return nil, ServerError(err)
	}
	return user, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID uint, req *ChangePasswordRequest) error {
	if req.CurrentPassword == "" || req.NewPassword == "" || req.ConfirmNewPassword == "" {
		return ValidationError("Please fill all password fields")
	}
	if len(req.NewPassword) < minPasswordLength {
		return ValidationError("New password must be at least 6 characters long")
	}
	if req.NewPassword != req.ConfirmNewPassword {
		return ValidationError("New password and confirm password do not match")
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.CurrentPassword)); err != nil {
		return Unauthorized("Current password is incorrect")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return ServerError(fmt.Errorf("failed to hash password: %w", err))
	}
	user.Password = string(hashedPassword)
	if err := s.store.Users().Save(ctx, user); err != nil {
		log.Printf("Failed to change password for user %d: %v", userID, err)
		return ServerError(err)
	}
	return nil
}

func (s *AuthService) GenerateToken(userID uint) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(userID), 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiresIn)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken returns the user id carried by tokenString. It fails with
// ErrTokenExpired or ErrTokenInvalid.
func (s *AuthService) ValidateToken(tokenString string) (uint, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if errors.Is(err, jwt.ErrTokenExpired) {
		return 0, ErrTokenExpired
	}
	if err != nil || claims.UserID == 0 {
		return 0, ErrTokenInvalid
	}
	return claims.UserID, nil
}
