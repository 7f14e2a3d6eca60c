package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"govnav-be/models"
	"govnav-be/repositories"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// OTPTTL is how long a verification code stays valid after issuance.
const OTPTTL = 5 * time.Minute

// Notifier is the outbound notification port. Delivery is fire-and-forget;
// the core requires no delivery guarantee.
type Notifier interface {
	Send(email, subject, body string) error
}

type OTPService struct {
	users    repositories.UserRepository
	notifier Notifier
	logger   *zap.Logger

	now func() time.Time
}

func NewOTPService(users repositories.UserRepository, notifier Notifier, logger *zap.Logger) *OTPService {
	return &OTPService{
		users:    users,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// SetNotifier swaps the outbound notification port.
func (s *OTPService) SetNotifier(n Notifier) {
	s.notifier = n
}

// GenerateOTP draws a random 6-digit numeric code.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}

// RequestOTP issues a fresh code for the user, replacing any outstanding
// one, and hands it to the notification port. A send failure is logged but
// does not fail the request.
func (s *OTPService) RequestOTP(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return fmt.Errorf("%w: user %s", ErrNotFound, email)
		}
		return storeErr(err)
	}

	code, err := GenerateOTP()
	if err != nil {
		return err
	}

	otp := &models.OTP{Code: code, ExpiresAt: s.now().Add(OTPTTL)}
	if err := s.users.SetOTP(ctx, user.ID, otp); err != nil {
		return storeErr(err)
	}

	body := fmt.Sprintf("Your verification code is %s. It expires in 5 minutes.", code)
	if err := s.notifier.Send(email, "Verify your email", body); err != nil {
		s.logger.Warn("otp notification failed", zap.String("email", email), zap.Error(err))
	}
	return nil
}

// VerifyOTP checks the submitted code against the outstanding one. On
// success the user is marked verified and the code is cleared, so it cannot
// be used twice.
func (s *OTPService) VerifyOTP(ctx context.Context, email, code string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, fmt.Errorf("%w: user %s", ErrNotFound, email)
		}
		return nil, storeErr(err)
	}

	if user.OTP == nil || user.OTP.Code != code {
		return nil, ErrInvalidOTP
	}
	if user.OTP.ExpiresAt.Before(s.now()) {
		return nil, ErrOTPExpired
	}

	if err := s.users.ClearOTPAndVerify(ctx, user.ID); err != nil {
		return nil, storeErr(err)
	}

	user.IsVerified = true
	user.OTP = nil
	return user, nil
}
