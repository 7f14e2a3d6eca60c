package controllers

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"govnav-be/config"
	"govnav-be/messaging"
	"govnav-be/models"
	"govnav-be/repositories"
	"govnav-be/services"
	authUtils "govnav-be/utils"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

var userRepository = repositories.NewUserRepository(config.GetCollection("users"))
var otpService = services.NewOTPService(userRepository, &messaging.LogNotifier{Logger: config.Logger}, config.Logger)

// SetNotifier wires the outbound notification port; main decides between
// the RabbitMQ publisher and the log fallback.
func SetNotifier(n services.Notifier) {
	otpService.SetNotifier(n)
}

// respondError maps a service error onto the HTTP response and logs
// anything that is the server's fault.
func respondError(c *gin.Context, err error) {
	status := services.HTTPStatusFromError(err)
	message := err.Error()
	if errors.Is(err, services.ErrDuplicateIssue) {
		message = "Similar issue already reported nearby"
	}
	if status >= http.StatusInternalServerError {
		config.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		message = "Something went wrong"
	}
	c.JSON(status, gin.H{"error": message})
}

// callerFromContext rebuilds the authenticated caller set by the auth
// middleware.
func callerFromContext(c *gin.Context) (services.Caller, bool) {
	userIDVal, exists := c.Get("user_id")
	if !exists {
		return services.Caller{}, false
	}
	userID, ok := userIDVal.(string)
	if !ok {
		return services.Caller{}, false
	}
	objID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return services.Caller{}, false
	}

	caller := services.Caller{ID: objID}
	if roleVal, exists := c.Get("role"); exists {
		if role, ok := roleVal.(string); ok {
			caller.Role = models.UserRole(role)
		}
	}
	return caller, true
}

// Signup handles citizen and government-employee registration, issuing a
// verification OTP on success
func Signup(c *gin.Context) {
	var input struct {
		Name       string  `json:"name" binding:"required,max=50"`
		Email      string  `json:"email" binding:"required,email"`
		Password   string  `json:"password" binding:"required,min=6"`
		UserType   string  `json:"userType" binding:"required"`
		Department *string `json:"department,omitempty"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := models.UserRole(input.UserType)
	if !models.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user type"})
		return
	}

	// Department must be set if and only if the user is a gov employee
	if role == models.GovEmployee && (input.Department == nil || *input.Department == "") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Department is required for government employees"})
		return
	}
	if role != models.GovEmployee {
		input.Department = nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if _, err := userRepository.FindByEmail(ctx, input.Email); err == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "User with this email already exists"})
		return
	} else if !errors.Is(err, mongo.ErrNoDocuments) {
		respondError(c, err)
		return
	}

	user := models.User{
		Name:       input.Name,
		Email:      input.Email,
		Password:   input.Password,
		Role:       role,
		Department: input.Department,
		IsVerified: false,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := user.HashPassword(); err != nil {
		config.Logger.Error("hashing password failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	if _, err := userRepository.Insert(ctx, &user); err != nil {
		config.Logger.Error("inserting user failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	if err := otpService.RequestOTP(ctx, input.Email); err != nil {
		config.Logger.Error("issuing signup otp failed", zap.String("email", input.Email), zap.Error(err))
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "User created successfully. Please verify your email with OTP.",
		"email":   input.Email,
	})
}

// Login authenticates a verified user and sets the auth_token cookie
func Login(c *gin.Context) {
	var input struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := userRepository.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
			return
		}
		respondError(c, services.ErrStoreUnavailable)
		return
	}

	if !user.ComparePassword(input.Password) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid credentials"})
		return
	}

	if !user.IsVerified {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "Email not verified",
			"email": user.Email,
		})
		return
	}

	setAuthCookie(c, user)
}

// RequestOTP re-issues a verification code for an existing user
func RequestOTP(c *gin.Context) {
	var input struct {
		Email string `json:"email" binding:"required,email"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := otpService.RequestOTP(ctx, input.Email); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "OTP sent successfully"})
}

// VerifyOTP checks the submitted code, marks the user verified, and logs
// them in
func VerifyOTP(c *gin.Context) {
	var input struct {
		Email string `json:"email" binding:"required,email"`
		OTP   string `json:"otp" binding:"required"`
	}

	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := otpService.VerifyOTP(ctx, input.Email, input.OTP)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidOTP):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OTP"})
		case errors.Is(err, services.ErrOTPExpired):
			c.JSON(http.StatusBadRequest, gin.H{"error": "OTP has expired"})
		default:
			respondError(c, err)
		}
		return
	}

	setAuthCookie(c, user)
}

func setAuthCookie(c *gin.Context, user *models.User) {
	token, err := authUtils.GenerateAndSetToken(user.ID.Hex(), string(user.Role))
	if err != nil {
		config.Logger.Error("generating token failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Something went wrong"})
		return
	}

	environment := os.Getenv("GO_ENV")
	domain := os.Getenv("DOMAIN")

	// For production, don't set domain to allow cross-origin cookies
	if environment == "production" {
		domain = ""
	}

	cookie := &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		MaxAge:   3600, // 1 hour
		Path:     "/",
		Domain:   domain,
		Secure:   environment == "production",
		HttpOnly: true,
		SameSite: http.SameSiteNoneMode,
	}
	http.SetCookie(c.Writer, cookie)

	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"name":       user.Name,
		"email":      user.Email,
		"userType":   user.Role,
		"department": user.Department,
		"createdAt":  user.CreatedAt,
	})
}

// GetMe retrieves the authenticated user's information
func GetMe(c *gin.Context) {
	caller, ok := callerFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := userRepository.FindByID(ctx, caller.ID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         user.ID,
		"name":       user.Name,
		"email":      user.Email,
		"userType":   user.Role,
		"department": user.Department,
		"isVerified": user.IsVerified,
		"createdAt":  user.CreatedAt,
	})
}

// Logout handles user logout by clearing the auth_token cookie
func Logout(c *gin.Context) {
	environment := os.Getenv("GO_ENV")
	domain := os.Getenv("DOMAIN")

	c.SetCookie("auth_token", "", -1, "/", domain, environment == "production", true)
	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}
