package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/go-chi/render"

	"github.com/tendant/simple-marketplace/pkg/marketplace"
)

// Token claims understood by the auth middleware.
const (
	ClaimSubject     = "sub"
	ClaimRole        = "role"
	ClaimEmail       = "email"
	ClaimPermissions = "permissions"

	RoleAdmin = "admin"
	RoleUser  = "user"
)

type actorKey struct{}

// NewAuth returns an HS256 token authority for secret.
func NewAuth(secret string) *jwtauth.JWTAuth {
	return jwtauth.New("HS256", []byte(secret), nil)
}

// IssueToken signs a token for actor that expires after ttl.
func IssueToken(ja *jwtauth.JWTAuth, actor marketplace.Actor, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{}
	if actor.IsAdmin() {
		claims[ClaimSubject] = actor.AdminID
		claims[ClaimRole] = RoleAdmin
	} else {
		claims[ClaimSubject] = actor.UserID
		claims[ClaimRole] = RoleUser
	}
	if actor.Email != "" {
		claims[ClaimEmail] = actor.Email
	}
	if len(actor.Permissions) > 0 {
		claims[ClaimPermissions] = actor.Permissions
	}
	jwtauth.SetIssuedNow(claims)
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}
	_, token, err := ja.Encode(claims)
	return token, err
}

// WithActor returns ctx carrying actor.
func WithActor(ctx context.Context, actor marketplace.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the authenticated actor. Anonymous requests
// yield the zero Actor and false.
func ActorFromContext(ctx context.Context) (marketplace.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(marketplace.Actor)
	return actor, ok
}

// Authenticate resolves the verified token into an Actor. Requests without
// a token pass through anonymously; requests with a bad token get a 401.
// It must run after jwtauth.Verifier.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, claims, err := jwtauth.FromContext(r.Context())
		if errors.Is(err, jwtauth.ErrNoTokenFound) || (err == nil && token == nil) {
			next.ServeHTTP(w, r)
			return
		}
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}

		actor, ok := actorFromClaims(claims)
		if !ok {
			unauthorized(w, r, "token has no subject")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

func actorFromClaims(claims map[string]interface{}) (marketplace.Actor, bool) {
	sub, _ := claims[ClaimSubject].(string)
	if sub == "" {
		return marketplace.Actor{}, false
	}
	var actor marketplace.Actor
	if role, _ := claims[ClaimRole].(string); role == RoleAdmin {
		actor.AdminID = sub
	} else {
		actor.UserID = sub
	}
	actor.Email, _ = claims[ClaimEmail].(string)

	switch perms := claims[ClaimPermissions].(type) {
	case []interface{}:
		for _, p := range perms {
			if s, ok := p.(string); ok {
				actor.Permissions = append(actor.Permissions, s)
			}
		}
	case []string:
		actor.Permissions = append(actor.Permissions, perms...)
	}
	return actor, true
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ActorFromContext(r.Context()); !ok {
			unauthorized(w, r, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous and non-admin requests.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := ActorFromContext(r.Context())
		if !ok {
			unauthorized(w, r, "authentication required")
			return
		}
		if !actor.IsAdmin() {
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, ErrorResponse{Error: ErrorBody{Kind: KindForbidden, Message: "admin access required"}})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request, message string) {
	render.Status(r, http.StatusUnauthorized)
	render.JSON(w, r, ErrorResponse{Error: ErrorBody{Kind: KindUnauthorized, Message: message}})
}
