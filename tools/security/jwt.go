package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"PPGate/tools/errs"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Options 控制签名与TTL等参数。
type Options struct {
	Secret []byte        // HMAC secret
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // token lifetime; <=0 means no expiry claim
}

// Identity is what a verified credential resolves to.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

func (i Identity) IsZero() bool { return i.UserID == "" }

// Claims mirrors the token body issued at register/login time.
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	jwtlib.RegisteredClaims
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 7 * 24 * time.Hour}
}

// Generate signs a token for the given identity.
func Generate(opts Options, id Identity) (token string, expireAt time.Time, err error) {
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(opts.Secret) == 0 {
		return "", time.Time{}, errs.ErrArgs.WrapMsg("jwt secret is empty")
	}
	now := time.Now()
	claims := Claims{
		UserID:   id.UserID,
		Username: id.Username,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			NotBefore: jwtlib.NewNumericDate(now),
		},
	}
	if opts.TTL > 0 {
		expireAt = now.Add(opts.TTL)
		claims.ExpiresAt = jwtlib.NewNumericDate(expireAt)
	}
	signed, err := jwtlib.NewWithClaims(method, claims).SignedString(opts.Secret)
	if err != nil {
		return "", time.Time{}, errs.Wrap(err)
	}
	return signed, expireAt, nil
}

// Verify parses and validates token. Every failure is reported as errs.ErrAuth.
func Verify(opts Options, token string) (*Claims, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errs.ErrAuth.WrapMsg("empty token")
	}
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(token, claims, func(t *jwtlib.Token) (interface{}, error) {
		// 仅允许 HMAC 家族
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return opts.Secret, nil
	}, jwtlib.WithValidMethods([]string{method.Alg()}))
	if err != nil {
		return nil, errs.ErrAuth.Cause(err)
	}
	if !parsed.Valid {
		return nil, errs.ErrAuth.WrapMsg("invalid token")
	}
	if claims.UserID == "" {
		return nil, errs.ErrAuth.WrapMsg("token without userId")
	}
	return claims, nil
}

// Verifier adapts Verify to the gateway's identity lookup.
type Verifier struct {
	opts Options
}

func NewVerifier(opts Options) *Verifier {
	return &Verifier{opts: opts}
}

func (v *Verifier) Options() Options { return v.opts }

func (v *Verifier) Verify(ctx context.Context, credential string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, errs.ErrAuth.Cause(err)
	}
	claims, err := Verify(v.opts, credential)
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, errs.ErrArgs.WrapMsg("unsupported alg", "alg", alg)
	}
}
