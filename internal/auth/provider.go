package auth

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gator-overflow/internal/database"
	"gator-overflow/internal/models"
	"gator-overflow/internal/utils"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Define a custom context key type to avoid collisions
type contextKey string

// identityKey is the key used to store the viewer in the request context
const identityKey contextKey = "viewer"

// Provider is the identity provider: it registers and logs users in, keeps
// the session cookie and resolves the viewer of each request.
type Provider struct {
	users      database.UserRepository
	tokens     *TokenIssuer
	cookieName string
	ttl        time.Duration
	secure     bool

	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

func NewProvider(users database.UserRepository, tokens *TokenIssuer, cookieName string, ttl time.Duration) *Provider {
	return &Provider{
		users:      users,
		tokens:     tokens,
		cookieName: cookieName,
		ttl:        ttl,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// SetSecureCookies marks session cookies Secure, for deployments behind TLS.
func (p *Provider) SetSecureCookies(secure bool) {
	p.secure = secure
}

// Middleware resolves the viewer once and stores it in the request context.
// Requests without a valid session continue as anonymous.
func (p *Provider) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if viewer := p.identityFromRequest(r); viewer != nil {
			r = r.WithContext(WithIdentity(r.Context(), viewer))
		}
		next.ServeHTTP(w, r)
	})
}

// CurrentIdentity returns the viewer of r, or nil for an anonymous caller.
func (p *Provider) CurrentIdentity(r *http.Request) *models.Identity {
	if viewer := IdentityFromContext(r.Context()); viewer != nil {
		return viewer
	}
	return p.identityFromRequest(r)
}

func (p *Provider) identityFromRequest(r *http.Request) *models.Identity {
	tokenString := ""
	if cookie, err := r.Cookie(p.cookieName); err == nil {
		tokenString = cookie.Value
	} else if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		tokenString = strings.TrimPrefix(header, "Bearer ")
	}
	if tokenString == "" {
		return nil
	}

	claims, err := p.tokens.ValidateToken(tokenString)
	if err != nil {
		log.Printf("JWT Error: %v", err)
		return nil
	}
	return claims.Identity()
}

// LoginURL builds the login page link that returns to dest afterwards.
func (p *Provider) LoginURL(dest string) string {
	return "/login?continue=" + url.QueryEscape(dest)
}

// LogoutURL builds the logout link that returns to dest afterwards.
func (p *Provider) LogoutURL(dest string) string {
	return "/logout?continue=" + url.QueryEscape(dest)
}

// Register creates a user with a bcrypt-hashed password.
func (p *Provider) Register(ctx context.Context, nickname, password string) (*models.User, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || len(nickname) > 50 {
		return nil, utils.NewInvalidInputError("nickname must be 1 to 50 characters")
	}
	if len(password) < 6 {
		return nil, utils.NewInvalidInputError("password must be at least 6 characters")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), p.BcryptCost)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidInput, "failed to hash password", err)
	}

	user := &models.User{
		ID:             uuid.New(),
		Nickname:       nickname,
		HashedPassword: string(hashed),
		CreatedAt:      time.Now().UTC(),
	}
	if err := p.users.SaveUser(ctx, user); err != nil {
		return nil, err
	}

	log.Printf("Registered user %s (%s)", user.Nickname, user.ID)
	return user, nil
}

// Login checks the password and returns the user. Unknown nicknames and
// wrong passwords produce the same error.
func (p *Provider) Login(ctx context.Context, nickname, password string) (*models.User, error) {
	user, err := p.users.GetUserByNickname(ctx, strings.TrimSpace(nickname))
	if err != nil {
		if utils.IsErrorCode(err, utils.ErrNotFound) {
			return nil, utils.NewAppError(utils.ErrInvalidCredentials, "Invalid credentials", nil)
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)); err != nil {
		return nil, utils.NewAppError(utils.ErrInvalidCredentials, "Invalid credentials", nil)
	}
	return user, nil
}

// StartSession issues a token for user and sets it as the session cookie.
func (p *Provider) StartSession(w http.ResponseWriter, user *models.User) (string, error) {
	token, err := p.tokens.GenerateToken(user.Identity())
	if err != nil {
		return "", err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(p.ttl.Seconds()),
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return token, nil
}

// EndSession clears the session cookie.
func (p *Provider) EndSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     p.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// WithIdentity stores the viewer in ctx.
func WithIdentity(ctx context.Context, viewer *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey, viewer)
}

// IdentityFromContext returns the viewer stored by Middleware, or nil.
func IdentityFromContext(ctx context.Context) *models.Identity {
	viewer, _ := ctx.Value(identityKey).(*models.Identity)
	return viewer
}
