package jwt

import (
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-authkit-session/internal/errors"
)

// DefaultExpirySkew treats a token as expired slightly early so it is never
// presented right at its deadline.
const DefaultExpirySkew = 10 * time.Second

// Claims are the access token claims the session lifecycle needs.
type Claims struct {
	Exp int64  // Expiry, epoch seconds
	Sid string // Provider session id, empty when absent
	Sub string
}

// ExpiresAt returns Exp as a time.
func (c Claims) ExpiresAt() time.Time {
	return time.Unix(c.Exp, 0)
}

// IsExpired reports now > exp - skew.
func (c Claims) IsExpired(now time.Time, skew time.Duration) bool {
	return now.After(c.ExpiresAt().Add(-skew))
}

// Inspector reads claims from access tokens WITHOUT verifying the signature.
// Only use it on tokens this process stored itself; use Verifier to
// authorize anything.
type Inspector struct {
	parser *jwtlib.Parser
}

func NewInspector() *Inspector {
	return &Inspector{parser: jwtlib.NewParser()}
}

// DecodeClaims decodes the payload segment. Anything that is not a
// three-segment base64url JWT with a JSON payload and a numeric exp fails
// with ErrMalformedToken.
func (i *Inspector) DecodeClaims(accessToken string) (*Claims, error) {
	token, _, err := i.parser.ParseUnverified(accessToken, jwtlib.MapClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", autherrors.ErrMalformedToken, err)
	}

	claims, ok := token.Claims.(jwtlib.MapClaims)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected claims type %T", autherrors.ErrMalformedToken, token.Claims)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return nil, fmt.Errorf("%w: exp: %v", autherrors.ErrMalformedToken, err)
	}
	if exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", autherrors.ErrMalformedToken)
	}

	sid, _ := claims["sid"].(string)
	sub, _ := claims.GetSubject()

	return &Claims{
		Exp: exp.Unix(),
		Sid: sid,
		Sub: sub,
	}, nil
}
