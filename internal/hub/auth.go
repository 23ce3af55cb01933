package hub

import (
	"net/http"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/lanefield/arena/internal/protocol"
)

// Verifier resolves a connecting request to an Identity. With a JWT
// secret configured, a `token` query parameter is verified and its
// claims win over the plain query parameters; without one, identity is
// taken from the query as-is. A missing id gets a fresh uuid, so guests
// can always connect.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier. An empty secret disables token
// verification entirely.
func NewVerifier(secret string) *Verifier {
	var key []byte
	if secret != "" {
		key = []byte(secret)
	}
	return &Verifier{secret: key}
}

type identityClaims struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Color  string `json:"color,omitempty"`
	jwt.RegisteredClaims
}

// Identify extracts the connecting player's identity from the upgrade
// request.
//
// Postcondition: On success the returned identity has a non-empty ID
// and Name. A present but invalid token is an error; a token on a
// verifier without a secret is ignored.
func (v *Verifier) Identify(r *http.Request) (protocol.Identity, error) {
	q := r.URL.Query()
	identity := protocol.Identity{
		ID:     q.Get("id"),
		Name:   q.Get("name"),
		Avatar: q.Get("avatar"),
		Color:  q.Get("color"),
	}

	if token := q.Get("token"); token != "" && v.secret != nil {
		var claims identityClaims
		_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return v.secret, nil
		})
		if err != nil {
			return protocol.Identity{}, protocol.Errorf(protocol.KindMalformedPayload,
				"invalid token: %v", err)
		}
		if claims.Subject != "" {
			identity.ID = claims.Subject
		}
		if claims.Name != "" {
			identity.Name = claims.Name
		}
		if claims.Avatar != "" {
			identity.Avatar = claims.Avatar
		}
		if claims.Color != "" {
			identity.Color = claims.Color
		}
	}

	if identity.Name == "" {
		return protocol.Identity{}, protocol.Errorf(protocol.KindMalformedPayload,
			"connection requires a player name")
	}
	if identity.ID == "" {
		identity.ID = uuid.New().String()
	}
	return identity, nil
}
