// Package recrosec tracks the signed-in user: identity, roles, language and
// cached permissions.
package recrosec

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/patrickmn/go-cache"
	"github.com/recrovit/rgfclient/internal/apiservice"
	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/observable"
	"github.com/recrovit/rgfclient/internal/recrodict"
)

// DefaultExpiration is how long permissions are cached.
const DefaultExpiration = 60 * time.Second

// API is the part of the server API used by the service.
type API interface {
	SetAccessToken(token string)
	UserState(ctx context.Context, query url.Values) *apiservice.Response[*models.UserState]
	Permissions(ctx context.Context, queries []models.RecroSecQuery) *apiservice.Response[[]models.RecroSecResult]
}

// Dictionary is the part of the dictionary service used to switch language.
type Dictionary interface {
	DefaultLanguage() string
	Languages() *recrodict.Dict
	Initialize(ctx context.Context, language string) error
}

// Service holds the authentication state of the current user.
type Service struct {
	api       API
	dict      Dictionary
	roleClaim string
	logger    *slog.Logger
	perms     *cache.Cache

	// Language is set whenever the user language changes.
	Language *observable.Property[string]

	mu            sync.RWMutex
	claims        jwt.MapClaims
	authenticated bool
	isAdmin       bool
	userLanguage  string
}

// New returns the service. roleClaim is the claim holding the roles; empty
// means "role".
func New(api API, dict Dictionary, roleClaim string, logger *slog.Logger) *Service {
	if roleClaim == "" {
		roleClaim = "role"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		api:       api,
		dict:      dict,
		roleClaim: roleClaim,
		logger:    logger,
		perms:     cache.New(DefaultExpiration, 5*time.Minute),
		Language:  observable.NewProperty("", "Language"),
		claims:    jwt.MapClaims{},
	}
}

// SetAccessToken signs the user in with token, or out when token is empty.
// The token signature is not verified; the server does that on every call.
// Signed-in users get their admin flag and saved language from the server.
func (s *Service) SetAccessToken(ctx context.Context, token string) error {
	claims := jwt.MapClaims{}
	if token != "" {
		if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
			return fmt.Errorf("failed to parse access token: %w", err)
		}
	}
	s.api.SetAccessToken(token)
	s.mu.Lock()
	s.claims = claims
	s.authenticated = token != ""
	s.isAdmin = false
	s.mu.Unlock()
	s.perms.Flush()

	s.logger.InfoContext(ctx, "Authentication changed", "authenticated", s.IsAuthenticated(), "user", s.UserName(), "roles", strings.Join(s.Roles(), ", "))
	if !s.IsAuthenticated() {
		return nil
	}
	resp := s.api.UserState(ctx, nil)
	if !resp.Success || resp.Result == nil || !resp.Result.IsValid {
		return nil
	}
	s.mu.Lock()
	s.isAdmin = resp.Result.IsAdmin
	s.mu.Unlock()
	if resp.Result.Language != "" {
		if _, err := s.setLang(ctx, resp.Result.Language); err != nil {
			return err
		}
	}
	return nil
}

// IsAuthenticated reports whether a user is signed in.
func (s *Service) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// IsAdmin reports whether the server considers the user an administrator.
func (s *Service) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isAdmin
}

// UserName returns the display name of the user.
func (s *Service) UserName() string {
	for _, k := range []string{"name", "preferred_username", "sub"} {
		if v := s.claim(k); v != "" {
			return v
		}
	}
	return ""
}

func (s *Service) claim(name string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, _ := s.claims[name].(string)
	return v
}

// Roles returns the role claims of the user. A single claim holding a list
// such as `[admin, "user"]` is split into its items.
func (s *Service) Roles() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated {
		return nil
	}
	var roles []string
	switch v := s.claims[s.roleClaim].(type) {
	case string:
		roles = []string{v}
	case []any:
		for _, r := range v {
			if str, ok := r.(string); ok {
				roles = append(roles, str)
			}
		}
	}
	if len(roles) == 1 && strings.HasPrefix(roles[0], "[") && strings.HasSuffix(roles[0], "]") {
		inner := strings.NewReplacer("[", "", "]", "").Replace(roles[0])
		roles = roles[:0]
		for _, r := range strings.Split(inner, ",") {
			if r = strings.Trim(r, ` "`); r != "" {
				roles = append(roles, r)
			}
		}
	}
	return roles
}

// UserLanguage returns the language of the user: the one set last, else the
// Language claim, else the dictionary default.
func (s *Service) UserLanguage() string {
	s.mu.RLock()
	lang := s.userLanguage
	if lang == "" && s.authenticated {
		lang, _ = s.claims["Language"].(string)
	}
	s.mu.RUnlock()
	if lang == "" {
		lang = s.dict.DefaultLanguage()
	}
	return lang
}

// SetUserLanguage switches to language when the dictionary knows it and
// saves the choice on the server. It returns the previous explicit language.
func (s *Service) SetUserLanguage(ctx context.Context, language string) (string, error) {
	s.mu.RLock()
	prev := s.userLanguage
	s.mu.RUnlock()
	if language == "" || strings.EqualFold(language, s.UserLanguage()) {
		return prev, nil
	}
	language = strings.ToLower(language)
	if !s.dict.Languages().Has(language) {
		s.logger.WarnContext(ctx, "Unknown language", "language", language)
		return prev, nil
	}
	changed, err := s.setLang(ctx, language)
	if err != nil {
		return prev, err
	}
	if changed {
		s.api.UserState(ctx, url.Values{"language": {language}})
	}
	return prev, nil
}

func (s *Service) setLang(ctx context.Context, language string) (bool, error) {
	s.mu.Lock()
	if strings.EqualFold(language, s.userLanguage) {
		s.mu.Unlock()
		return false, nil
	}
	s.userLanguage = language
	s.mu.Unlock()
	s.logger.InfoContext(ctx, "SetLang", "language", language)
	if err := s.dict.Initialize(ctx, language); err != nil {
		return true, err
	}
	return true, s.Language.SetValue(ctx, language)
}

// EntityPermissions returns the permissions on an entity, optionally for
// one row.
func (s *Service) EntityPermissions(ctx context.Context, entityName, objectKey string) models.Permissions {
	return s.single(ctx, models.RecroSecQuery{EntityName: entityName, ObjectKey: objectKey})
}

// ObjectPermissions returns the permissions on a named object.
func (s *Service) ObjectPermissions(ctx context.Context, objectName, objectKey string) models.Permissions {
	return s.single(ctx, models.RecroSecQuery{ObjectName: objectName, ObjectKey: objectKey})
}

func (s *Service) single(ctx context.Context, q models.RecroSecQuery) models.Permissions {
	res := s.Permissions(ctx, []models.RecroSecQuery{q}, DefaultExpiration)
	if len(res) == 0 {
		return models.Permissions{}
	}
	return res[0].Permissions
}

// Permissions resolves queries. Cached answers are reused; only the misses
// are sent to the server and cached for expiration. Queries the server
// fails to answer are missing from the result.
func (s *Service) Permissions(ctx context.Context, queries []models.RecroSecQuery, expiration time.Duration) []models.RecroSecResult {
	var res []models.RecroSecResult
	var misses []models.RecroSecQuery
	for _, q := range queries {
		if p, ok := s.perms.Get(q.CacheKey()); ok {
			res = append(res, models.RecroSecResult{Query: q, Permissions: p.(models.Permissions)})
		} else {
			misses = append(misses, q)
		}
	}
	if len(misses) == 0 {
		return res
	}
	resp := s.api.Permissions(ctx, misses)
	if !resp.Success {
		return res
	}
	for _, r := range resp.Result {
		s.perms.Set(r.Query.CacheKey(), r.Permissions, expiration)
		res = append(res, r)
	}
	return res
}
