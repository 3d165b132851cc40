package middleware

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v3"
	"go.uber.org/zap"

	bizerrors "github.com/aisgo/ais-workspace/errors"
	"github.com/aisgo/ais-workspace/logger"
	"github.com/aisgo/ais-workspace/response"
)

/* ========================================================================
 * Identity Headers (v1)
 * ========================================================================
 * 网关校验前端 token 后将主体信息写入请求头，本服务校验签名后解析主体
 *
 * Headers:
 *   - X-WS-Auth-V:     版本 ("1")
 *   - X-WS-Auth-Iss:   签发方
 *   - X-WS-Auth-Ts:    unix 秒
 *   - X-WS-Auth-Nonce: 随机串
 *   - X-WS-Auth-User:  base64url(JSON UserInfo)
 *   - X-WS-Auth-Sign:  hex(HMAC-SHA256(secret, v|iss|ts|nonce|user))
 *
 * UserInfo 不携带租户与角色：活动租户由 WorkspaceContext 决定，
 * 角色按工作区所有权计算
 * ======================================================================== */

const (
	AuthHeaderVersionV1 = "1"

	HeaderAuthVersion   = "X-WS-Auth-V"
	HeaderAuthIssuer    = "X-WS-Auth-Iss"
	HeaderAuthTimestamp = "X-WS-Auth-Ts"
	HeaderAuthNonce     = "X-WS-Auth-Nonce"
	HeaderAuthUser      = "X-WS-Auth-User"
	HeaderAuthSignature = "X-WS-Auth-Sign"
)

const (
	defaultAuthMaxAge      = 5 * time.Minute
	defaultAuthClockSkew   = 30 * time.Second
	defaultAuthNonceSize   = 16
	authContextLocalKey    = "ws_auth_ctx"
	authSignatureDelimiter = "|"
)

var (
	ErrAuthHeaderMissing          = errors.New("missing auth headers")
	ErrAuthHeaderInvalidVersion   = errors.New("invalid auth version")
	ErrAuthHeaderInvalidIssuer    = errors.New("invalid auth issuer")
	ErrAuthHeaderInvalidTS        = errors.New("invalid auth timestamp")
	ErrAuthHeaderMissingNonce     = errors.New("missing auth nonce")
	ErrAuthHeaderMissingUser      = errors.New("missing auth user")
	ErrAuthHeaderInvalidUser      = errors.New("invalid auth user header")
	ErrAuthHeaderInvalidSign      = errors.New("invalid auth signature")
	ErrAuthHeaderExpired          = errors.New("auth header expired")
	ErrAuthHeaderNotYetValid      = errors.New("auth header timestamp in future")
	ErrAuthHeaderMissingSecret    = errors.New("auth header secret is required")
	ErrAuthHeaderIssuerNotAllowed = errors.New("auth issuer not allowed")
)

// UserInfo 网关注入的主体信息，Email 为主体的唯一标识（忽略大小写）
type UserInfo struct {
	Subject     string `json:"sub,omitempty"`
	Email       string `json:"email"`
	DisplayName string `json:"name,omitempty"`
}

// AuthContext 校验通过的身份头
type AuthContext struct {
	Version  string
	Issuer   string
	IssuedAt time.Time
	Nonce    string
	User     *UserInfo
}

// AuthHeaderValues 身份头的结构化表示
type AuthHeaderValues struct {
	Version   string
	Issuer    string
	Timestamp int64
	Nonce     string
	User      string
	Signature string
}

// ToMap converts AuthHeaderValues to a header map.
func (v AuthHeaderValues) ToMap() map[string]string {
	headers := map[string]string{
		HeaderAuthVersion:   v.Version,
		HeaderAuthIssuer:    v.Issuer,
		HeaderAuthTimestamp: strconv.FormatInt(v.Timestamp, 10),
		HeaderAuthNonce:     v.Nonce,
		HeaderAuthSignature: v.Signature,
	}
	if v.User != "" {
		headers[HeaderAuthUser] = v.User
	}
	return headers
}

// WriteAuthHeaders writes auth headers into http.Header.
func WriteAuthHeaders(h http.Header, v AuthHeaderValues) {
	if h == nil || v.Signature == "" {
		return
	}
	for key, value := range v.ToMap() {
		h.Set(key, value)
	}
}

// AuthContextFromContext extracts auth context from fiber.Ctx.
func AuthContextFromContext(c fiber.Ctx) (*AuthContext, bool) {
	ctx, ok := c.Locals(authContextLocalKey).(*AuthContext)
	return ctx, ok && ctx != nil
}

// UserFromContext extracts user info from fiber.Ctx.
func UserFromContext(c fiber.Ctx) (*UserInfo, bool) {
	ctx, ok := AuthContextFromContext(c)
	if !ok || ctx.User == nil {
		return nil, false
	}
	return ctx.User, true
}

/* ========================================================================
 * Signer - 网关 / 本地调试签发
 * ======================================================================== */

// AuthHeaderSignerConfig configures header signing.
type AuthHeaderSignerConfig struct {
	Secret  string `yaml:"secret" mapstructure:"secret"`
	Issuer  string `yaml:"issuer" mapstructure:"issuer"`
	Version string `yaml:"version" mapstructure:"version"`

	NowFunc func() time.Time `yaml:"-" mapstructure:"-"`
}

// AuthHeaderSigner signs identity headers.
type AuthHeaderSigner struct {
	config  AuthHeaderSignerConfig
	nowFunc func() time.Time
}

func NewAuthHeaderSigner(cfg AuthHeaderSignerConfig) *AuthHeaderSigner {
	if cfg.Version == "" {
		cfg.Version = AuthHeaderVersionV1
	}
	signer := &AuthHeaderSigner{config: cfg, nowFunc: time.Now}
	if cfg.NowFunc != nil {
		signer.nowFunc = cfg.NowFunc
	}
	return signer
}

// BuildHeaders builds signed headers for user.
func (s *AuthHeaderSigner) BuildHeaders(user *UserInfo) (AuthHeaderValues, error) {
	if s.config.Secret == "" {
		return AuthHeaderValues{}, ErrAuthHeaderMissingSecret
	}
	if s.config.Issuer == "" {
		return AuthHeaderValues{}, ErrAuthHeaderInvalidIssuer
	}
	userValue, err := EncodeUserInfo(user)
	if err != nil {
		return AuthHeaderValues{}, err
	}
	nonce, err := generateNonce()
	if err != nil {
		return AuthHeaderValues{}, err
	}
	issuedAt := s.nowFunc().Unix()
	return AuthHeaderValues{
		Version:   s.config.Version,
		Issuer:    s.config.Issuer,
		Timestamp: issuedAt,
		Nonce:     nonce,
		User:      userValue,
		Signature: signAuthHeader(s.config.Secret, s.config.Version, s.config.Issuer, issuedAt, nonce, userValue),
	}, nil
}

/* ========================================================================
 * Verifier
 * ======================================================================== */

// AuthHeaderVerifierConfig configures header verification.
type AuthHeaderVerifierConfig struct {
	Enabled          bool              `yaml:"enabled" mapstructure:"enabled"`
	Secret           string            `yaml:"secret" mapstructure:"secret"`
	Secrets          map[string]string `yaml:"secrets" mapstructure:"secrets"` // issuer -> secret
	AllowedIssuers   []string          `yaml:"allowed_issuers" mapstructure:"allowed_issuers"`
	Version          string            `yaml:"version" mapstructure:"version"`
	MaxAge           time.Duration     `yaml:"max_age" mapstructure:"max_age"`
	AllowedClockSkew time.Duration     `yaml:"allowed_clock_skew" mapstructure:"allowed_clock_skew"`

	NowFunc func() time.Time `yaml:"-" mapstructure:"-"`
}

// AuthHeaderVerifier verifies identity headers and injects AuthContext.
type AuthHeaderVerifier struct {
	config  AuthHeaderVerifierConfig
	log     *logger.Logger
	nowFunc func() time.Time
}

func NewAuthHeaderVerifier(cfg AuthHeaderVerifierConfig, log *logger.Logger) *AuthHeaderVerifier {
	if cfg.Version == "" {
		cfg.Version = AuthHeaderVersionV1
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaultAuthMaxAge
	}
	if cfg.AllowedClockSkew == 0 {
		cfg.AllowedClockSkew = defaultAuthClockSkew
	}
	if log == nil {
		log = logger.NewNop()
	}
	verifier := &AuthHeaderVerifier{config: cfg, log: log, nowFunc: time.Now}
	if cfg.NowFunc != nil {
		verifier.nowFunc = cfg.NowFunc
	}
	return verifier
}

// Authenticate 校验身份头；未启用时直接放行，由后续中间件拒绝匿名请求
func (v *AuthHeaderVerifier) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		if !v.config.Enabled {
			return c.Next()
		}
		if v.config.Secret == "" && len(v.config.Secrets) == 0 {
			v.log.Error("auth header verifier misconfigured: missing secret")
			return response.Error(c, bizerrors.New(bizerrors.ErrCodeInternal, "auth header misconfigured"))
		}

		values, err := ParseAuthHeaderValuesFromFiber(c)
		if err == nil {
			var ctx *AuthContext
			if ctx, err = v.Verify(values); err == nil {
				c.Locals(authContextLocalKey, ctx)
				return c.Next()
			}
		}
		v.log.WithContext(c.Context()).Warn("auth header rejected",
			zap.Error(err),
			zap.String("issuer", values.Issuer),
			zap.String("path", c.Path()),
			zap.String("ip", c.IP()),
		)
		return response.Error(c, bizerrors.Wrap(bizerrors.ErrCodeUnauthenticated, err.Error(), err))
	}
}

// Verify verifies header values and returns the auth context.
func (v *AuthHeaderVerifier) Verify(values AuthHeaderValues) (*AuthContext, error) {
	if values.Version == "" || values.Issuer == "" || values.Timestamp == 0 || values.Signature == "" {
		return nil, ErrAuthHeaderMissing
	}
	if values.Version != v.config.Version {
		return nil, ErrAuthHeaderInvalidVersion
	}
	if len(v.config.AllowedIssuers) > 0 && !slices.Contains(v.config.AllowedIssuers, values.Issuer) {
		return nil, ErrAuthHeaderIssuerNotAllowed
	}
	if values.Nonce == "" {
		return nil, ErrAuthHeaderMissingNonce
	}
	secret := v.secretForIssuer(values.Issuer)
	if secret == "" {
		return nil, ErrAuthHeaderMissingSecret
	}
	expected := signAuthHeader(secret, values.Version, values.Issuer, values.Timestamp, values.Nonce, values.User)
	if subtle.ConstantTimeCompare([]byte(expected), []byte(values.Signature)) != 1 {
		return nil, ErrAuthHeaderInvalidSign
	}

	issuedAt := time.Unix(values.Timestamp, 0)
	now := v.nowFunc()
	if now.Sub(issuedAt) > v.config.MaxAge {
		return nil, ErrAuthHeaderExpired
	}
	if issuedAt.After(now.Add(v.config.AllowedClockSkew)) {
		return nil, ErrAuthHeaderNotYetValid
	}

	user, err := DecodeUserInfo(values.User)
	if err != nil {
		return nil, ErrAuthHeaderInvalidUser
	}
	if user == nil || strings.TrimSpace(user.Email) == "" {
		return nil, ErrAuthHeaderMissingUser
	}
	return &AuthContext{
		Version:  values.Version,
		Issuer:   values.Issuer,
		IssuedAt: issuedAt,
		Nonce:    values.Nonce,
		User:     user,
	}, nil
}

// ParseAuthHeaderValuesFromFiber reads auth headers from fiber.Ctx.
func ParseAuthHeaderValuesFromFiber(c fiber.Ctx) (AuthHeaderValues, error) {
	return parseAuthHeaderValues(func(key string) string { return c.Get(key) })
}

// ParseAuthHeaderValuesFromHeader reads auth headers from http.Header.
func ParseAuthHeaderValuesFromHeader(h http.Header) (AuthHeaderValues, error) {
	if h == nil {
		return AuthHeaderValues{}, ErrAuthHeaderMissing
	}
	return parseAuthHeaderValues(h.Get)
}

func parseAuthHeaderValues(get func(string) string) (AuthHeaderValues, error) {
	version := strings.TrimSpace(get(HeaderAuthVersion))
	issuer := strings.TrimSpace(get(HeaderAuthIssuer))
	stamp := strings.TrimSpace(get(HeaderAuthTimestamp))
	signature := strings.TrimSpace(get(HeaderAuthSignature))
	if version == "" || issuer == "" || stamp == "" || signature == "" {
		return AuthHeaderValues{}, ErrAuthHeaderMissing
	}
	timestamp, err := strconv.ParseInt(stamp, 10, 64)
	if err != nil || timestamp <= 0 {
		return AuthHeaderValues{}, ErrAuthHeaderInvalidTS
	}
	return AuthHeaderValues{
		Version:   version,
		Issuer:    issuer,
		Timestamp: timestamp,
		Nonce:     strings.TrimSpace(get(HeaderAuthNonce)),
		User:      strings.TrimSpace(get(HeaderAuthUser)),
		Signature: signature,
	}, nil
}

func (v *AuthHeaderVerifier) secretForIssuer(issuer string) string {
	if secret, ok := v.config.Secrets[issuer]; ok {
		return secret
	}
	return v.config.Secret
}

// EncodeUserInfo encodes user info into base64url JSON.
func EncodeUserInfo(user *UserInfo) (string, error) {
	if user == nil {
		return "", nil
	}
	data, err := json.Marshal(user)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeUserInfo decodes base64url JSON into user info.
func DecodeUserInfo(value string) (*UserInfo, error) {
	if value == "" {
		return nil, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return nil, err
	}
	var user UserInfo
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func signAuthHeader(secret, version, issuer string, timestamp int64, nonce, user string) string {
	payload := strings.Join([]string{version, issuer, strconv.FormatInt(timestamp, 10), nonce, user}, authSignatureDelimiter)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

func generateNonce() (string, error) {
	buf := make([]byte, defaultAuthNonceSize)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
