package recrosec

import (
	"context"
	"net/url"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/recrovit/rgfclient/internal/apiservice"
	"github.com/recrovit/rgfclient/internal/models"
	"github.com/recrovit/rgfclient/internal/observable"
	"github.com/recrovit/rgfclient/internal/recrodict"
)

type fakeAPI struct {
	token      string
	state      *models.UserState
	stateCalls []url.Values
	permCalls  [][]models.RecroSecQuery
	perms      map[string]models.Permissions
}

func (f *fakeAPI) SetAccessToken(token string) { f.token = token }

func (f *fakeAPI) UserState(ctx context.Context, query url.Values) *apiservice.Response[*models.UserState] {
	f.stateCalls = append(f.stateCalls, query)
	if f.state == nil {
		return &apiservice.Response[*models.UserState]{StatusCode: 401, ErrorMessage: "Unauthorized"}
	}
	return &apiservice.Response[*models.UserState]{Success: true, Result: f.state}
}

func (f *fakeAPI) Permissions(ctx context.Context, queries []models.RecroSecQuery) *apiservice.Response[[]models.RecroSecResult] {
	f.permCalls = append(f.permCalls, queries)
	var out []models.RecroSecResult
	for _, q := range queries {
		out = append(out, models.RecroSecResult{Query: q, Permissions: f.perms[q.CacheKey()]})
	}
	return &apiservice.Response[[]models.RecroSecResult]{Success: true, Result: out}
}

type fakeDict struct {
	initialized []string
}

func (d *fakeDict) DefaultLanguage() string { return "eng" }

func (d *fakeDict) Languages() *recrodict.Dict {
	return recrodict.NewDict(map[string]string{"eng": "English", "hun": "Magyar"})
}

func (d *fakeDict) Initialize(ctx context.Context, language string) error {
	d.initialized = append(d.initialized, language)
	return nil
}

func token(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSetAccessToken(t *testing.T) {
	api := &fakeAPI{state: &models.UserState{IsValid: true, IsAdmin: true, Language: "hun"}}
	dict := &fakeDict{}
	s := New(api, dict, "", nil)
	var changes []string
	s.Language.OnAfterChange(t, func(ctx context.Context, c observable.Change[string]) {
		changes = append(changes, c.New)
	})

	if s.IsAuthenticated() || s.UserLanguage() != "eng" {
		t.Errorf("anonymous: IsAuthenticated() = %t, UserLanguage() = %q", s.IsAuthenticated(), s.UserLanguage())
	}
	tok := token(t, jwt.MapClaims{"name": "Ada", "role": []any{"admin", "user"}})
	if err := s.SetAccessToken(t.Context(), tok); err != nil {
		t.Fatal(err)
	}
	if api.token != tok {
		t.Error("token not forwarded to the API client")
	}
	if !s.IsAuthenticated() || !s.IsAdmin() || s.UserName() != "Ada" {
		t.Errorf("IsAuthenticated() = %t, IsAdmin() = %t, UserName() = %q", s.IsAuthenticated(), s.IsAdmin(), s.UserName())
	}
	if diff := cmp.Diff([]string{"admin", "user"}, s.Roles()); diff != "" {
		t.Errorf("Roles() mismatch (-want +got):\n%s", diff)
	}
	if s.UserLanguage() != "hun" {
		t.Errorf("UserLanguage() = %q, want hun", s.UserLanguage())
	}
	if diff := cmp.Diff([]string{"hun"}, dict.initialized); diff != "" {
		t.Errorf("dictionary initialized with (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"hun"}, changes); diff != "" {
		t.Errorf("language changes (-want +got):\n%s", diff)
	}

	if err := s.SetAccessToken(t.Context(), ""); err != nil {
		t.Fatal(err)
	}
	if s.IsAuthenticated() || s.IsAdmin() || s.Roles() != nil {
		t.Error("signed out user keeps its identity")
	}
	if err := s.SetAccessToken(t.Context(), "not a jwt"); err == nil {
		t.Error("SetAccessToken(garbage) succeeded")
	}
}

func TestRoles(t *testing.T) {
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   []string
	}{
		{"single", jwt.MapClaims{"role": "user"}, []string{"user"}},
		{"bracketed", jwt.MapClaims{"role": `[admin, "user" ,]`}, []string{"admin", "user"}},
		{"array", jwt.MapClaims{"role": []any{"a", 1, "b"}}, []string{"a", "b"}},
		{"none", jwt.MapClaims{"name": "x"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeAPI{}, &fakeDict{}, "role", nil)
			if err := s.SetAccessToken(t.Context(), token(t, tt.claims)); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, s.Roles()); diff != "" {
				t.Errorf("Roles() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUserLanguageClaim(t *testing.T) {
	s := New(&fakeAPI{}, &fakeDict{}, "", nil)
	if err := s.SetAccessToken(t.Context(), token(t, jwt.MapClaims{"Language": "deu"})); err != nil {
		t.Fatal(err)
	}
	if got := s.UserLanguage(); got != "deu" {
		t.Errorf("UserLanguage() = %q, want deu", got)
	}
}

func TestSetUserLanguage(t *testing.T) {
	api := &fakeAPI{}
	dict := &fakeDict{}
	s := New(api, dict, "", nil)

	if _, err := s.SetUserLanguage(t.Context(), "ENG"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SetUserLanguage(t.Context(), "fra"); err != nil {
		t.Fatal(err)
	}
	if len(dict.initialized) != 0 || len(api.stateCalls) != 0 {
		t.Fatalf("same or unknown language switched: %v, %v", dict.initialized, api.stateCalls)
	}

	prev, err := s.SetUserLanguage(t.Context(), "HUN")
	if err != nil {
		t.Fatal(err)
	}
	if prev != "" {
		t.Errorf("SetUserLanguage() = %q, want empty previous", prev)
	}
	if s.UserLanguage() != "hun" || s.Language.Value() != "hun" {
		t.Errorf("UserLanguage() = %q, Language = %q, want hun", s.UserLanguage(), s.Language.Value())
	}
	want := []url.Values{{"language": {"hun"}}}
	if diff := cmp.Diff(want, api.stateCalls); diff != "" {
		t.Errorf("UserState calls (-want +got):\n%s", diff)
	}
	prev, _ = s.SetUserLanguage(t.Context(), "eng")
	if prev != "hun" {
		t.Errorf("SetUserLanguage(eng) = %q, want hun", prev)
	}
}

func TestPermissions(t *testing.T) {
	api := &fakeAPI{perms: map[string]models.Permissions{
		"Product//":   {Read: true},
		"/Report/7":   {Read: true, Edit: true},
		"Customer//1": {Delete: true},
	}}
	s := New(api, &fakeDict{}, "", nil)

	if got := s.EntityPermissions(t.Context(), "Product", ""); got != (models.Permissions{Read: true}) {
		t.Errorf("EntityPermissions(Product) = %v", got)
	}
	if got := s.ObjectPermissions(t.Context(), "Report", "7"); got.String() != "RU" {
		t.Errorf("ObjectPermissions(Report) = %v, want RU", got)
	}
	res := s.Permissions(t.Context(), []models.RecroSecQuery{
		{EntityName: "Product"},
		{EntityName: "Customer", ObjectKey: "1"},
	}, DefaultExpiration)
	if len(res) != 2 {
		t.Fatalf("Permissions() = %v, want 2 results", res)
	}
	if len(api.permCalls) != 3 {
		t.Fatalf("server calls = %d, want 3", len(api.permCalls))
	}
	want := []models.RecroSecQuery{{EntityName: "Customer", ObjectKey: "1"}}
	if diff := cmp.Diff(want, api.permCalls[2]); diff != "" {
		t.Errorf("cached query sent again (-want +got):\n%s", diff)
	}
}
