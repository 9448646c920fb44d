package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	radix "github.com/mediocregopher/radix/v3"
	"gorm.io/gorm"

	"github.com/example/paygate/internal/auth"
	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/datamodels/user"
	"github.com/example/paygate/internal/errs"
	"github.com/example/paygate/internal/notify"
)

const (
	verifyCodeKey        = "verify:code:%d" // userID
	verifyCodeTTLSeconds = 600              // 验证码 10 分钟有效
)

// UserService 注册 / 验证码激活 / 登录
type UserService struct {
	repo       user.Repository
	jwt        *config.JWTConfig
	redis      radix.Client
	dispatcher NotifyDispatcher
	defaultCC  string
}

// NewUserService 创建用户服务
func NewUserService(repo user.Repository, jwt *config.JWTConfig, redis radix.Client, dispatcher NotifyDispatcher, defaultCC string) *UserService {
	return &UserService{
		repo:       repo,
		jwt:        jwt,
		redis:      redis,
		dispatcher: dispatcher,
		defaultCC:  defaultCC,
	}
}

func hashPassword(raw, salt string) string {
	h := sha256.Sum256([]byte(raw + salt))
	return hex.EncodeToString(h[:])
}

func newSalt() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func newVerificationCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(900000))
	if err != nil {
		// crypto/rand 基本不会失败，兜底给一个固定段外生成
		n = big.NewInt(0)
	}
	return fmt.Sprintf("%06d", n.Int64()+100000)
}

// SignupRequest 注册请求
type SignupRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Name     string `json:"name"`
	UserType string `json:"user_type"`
}

// Signup 注册并通过 WhatsApp 下发验证码。
// 验证码发不出去时回滚用户，让注册方重试（沿用上游系统的行为）。
func (s *UserService) Signup(ctx context.Context, req *SignupRequest) (*user.User, error) {
	if !emailPattern.MatchString(req.Email) {
		return nil, errs.Invalid("email", "must be a valid email address")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return nil, errs.Invalid("phone", "is required")
	}
	if len(req.Password) < 6 {
		return nil, errs.Invalid("password", "must be at least 6 characters")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, errs.Invalid("name", "is required")
	}
	userType := req.UserType
	if userType == "" {
		userType = user.TypeCustomer
	}
	if userType != user.TypeCustomer && userType != user.TypeAdmin {
		return nil, errs.Invalid("user_type", "must be customer or admin")
	}

	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("%w: email already registered", errs.ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}

	u := &user.User{
		Email:    strings.ToLower(req.Email),
		Phone:    req.Phone,
		Salt:     newSalt(),
		Name:     req.Name,
		UserType: userType,
	}
	u.Password = hashPassword(req.Password, u.Salt)
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: email already registered", errs.ErrConflict)
		}
		return nil, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}

	if err := s.issueVerificationCode(ctx, u); err != nil {
		// 验证码发不出去，这个账号永远激活不了，删掉让用户重试
		if delErr := s.repo.Delete(ctx, u.ID); delErr != nil {
			log.Printf("failed to roll back unverifiable user %d: %v", u.ID, delErr)
		}
		return nil, err
	}
	return u, nil
}

func (s *UserService) issueVerificationCode(ctx context.Context, u *user.User) error {
	code := newVerificationCode()
	key := fmt.Sprintf(verifyCodeKey, u.ID)
	if err := s.redis.Do(radix.FlatCmd(nil, "SETEX", key, verifyCodeTTLSeconds, code)); err != nil {
		return fmt.Errorf("%w: store verification code: %v", errs.ErrStore, err)
	}
	msg := notify.Message{
		Kind: notify.KindVerification,
		To:   notify.NormalizePhone(u.Phone, s.defaultCC),
		Vars: map[string]string{"code": code},
	}
	if err := s.dispatcher.Dispatch(ctx, msg); err != nil {
		GetMonitor().RecordNotifyError()
		return fmt.Errorf("failed to send verification code: %w", err)
	}
	GetMonitor().RecordNotifyEnqueued()
	return nil
}

// EnsureAdminUser 幂等地创建初始管理员账号：已存在则原样返回。
// 种子工具调用，密码与注册走同一条加盐哈希路径，账号直接置为已激活。
func EnsureAdminUser(ctx context.Context, repo user.Repository, cfg *config.AdminConfig) (*user.User, bool, error) {
	email := strings.ToLower(cfg.Email)
	if existing, err := repo.GetByEmail(ctx, email); err == nil {
		return existing, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}

	u := &user.User{
		Email:      email,
		Phone:      cfg.Phone,
		Salt:       newSalt(),
		Name:       cfg.Name,
		UserType:   user.TypeAdmin,
		IsVerified: true,
	}
	u.Password = hashPassword(cfg.Password, u.Salt)
	if err := repo.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	return u, true, nil
}

// Verify 校验验证码并激活账号，验证码一次性使用
func (s *UserService) Verify(ctx context.Context, userID int64, code string) error {
	if code == "" {
		return errs.Invalid("code", "is required")
	}
	if _, err := s.repo.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrNotFound
		}
		return fmt.Errorf("%w: %v", errs.ErrStore, err)
	}

	key := fmt.Sprintf(verifyCodeKey, userID)
	var stored string
	if err := s.redis.Do(radix.Cmd(&stored, "GET", key)); err != nil {
		return fmt.Errorf("%w: load verification code: %v", errs.ErrStore, err)
	}
	if stored == "" {
		return errs.Invalid("code", "expired or not issued")
	}
	if stored != code {
		return errs.Invalid("code", "does not match")
	}

	if err := s.repo.SetVerified(ctx, userID); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	_ = s.redis.Do(radix.Cmd(nil, "DEL", key))
	return nil
}

// ResendVerification 重发验证码，仅限未激活账号
func (s *UserService) ResendVerification(ctx context.Context, userID int64) error {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return errs.ErrNotFound
		}
		return fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	if u.IsVerified {
		return errs.Invalid("user", "already verified")
	}
	return s.issueVerificationCode(ctx, u)
}

// Login 校验密码并签发 JWT，未激活账号不允许登录
func (s *UserService) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.GetByEmail(ctx, strings.ToLower(email))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errs.ErrUnauthorized
		}
		return "", fmt.Errorf("%w: %v", errs.ErrStore, err)
	}
	if hashPassword(password, u.Salt) != u.Password {
		return "", errs.ErrUnauthorized
	}
	if !u.IsVerified {
		return "", fmt.Errorf("%w: account not verified", errs.ErrUnauthorized)
	}
	return auth.GenerateToken(s.jwt, u.ID, u.Email, u.UserType)
}
