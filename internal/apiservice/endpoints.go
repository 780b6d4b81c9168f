package apiservice

import (
	"context"
	"fmt"
	"net/url"

	"github.com/recrovit/rgfclient/internal/models"
)

const entityPath = "/rgf/api/entity/"

func postEntity[T any](ctx context.Context, c *Client, name string, req *models.GridRequest) *Response[models.Result[T]] {
	return Post[models.Result[T]](ctx, c, &Request{URI: entityPath + name, Body: req, AuthClient: true})
}

// RecroGrid loads entity metadata and a page of rows.
func (c *Client) RecroGrid(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.GridResult]] {
	return postEntity[*models.GridResult](ctx, c, "RecroGrid", req)
}

// Aggregation runs the aggregate query described by req.ListParam.
func (c *Client) Aggregation(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.GridResult]] {
	return postEntity[*models.GridResult](ctx, c, "Aggregation", req)
}

// Filter loads the filter definition and the stored filters of an entity.
func (c *Client) Filter(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.FilterResult]] {
	return postEntity[*models.FilterResult](ctx, c, "Filter", req)
}

// Form loads the edit form of an entity row.
func (c *Client) Form(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.FormResult]] {
	return postEntity[*models.FormResult](ctx, c, "Form", req)
}

// UpdateData creates or updates a row.
func (c *Client) UpdateData(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.FormResult]] {
	return postEntity[*models.FormResult](ctx, c, "UpdateData", req)
}

// DeleteData deletes the row identified by req.EntityKey.
func (c *Client) DeleteData(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.FormResult]] {
	return postEntity[*models.FormResult](ctx, c, "DeleteData", req)
}

func (c *Client) SaveGridSettings(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.GridSetting]] {
	return postEntity[*models.GridSetting](ctx, c, "SaveGridSettings", req)
}

func (c *Client) DeleteGridSettings(ctx context.Context, req *models.GridRequest) *Response[models.Result[models.EmptyResult]] {
	return postEntity[models.EmptyResult](ctx, c, "DeleteGridSettings", req)
}

func (c *Client) ChartSettings(ctx context.Context, req *models.GridRequest) *Response[models.Result[[]*models.ChartSettings]] {
	return postEntity[[]*models.ChartSettings](ctx, c, "ChartSettings", req)
}

func (c *Client) SaveChartSettings(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.ChartSettings]] {
	return postEntity[*models.ChartSettings](ctx, c, "SaveChartSettings", req)
}

func (c *Client) DeleteChartSettings(ctx context.Context, req *models.GridRequest) *Response[models.Result[models.EmptyResult]] {
	return postEntity[models.EmptyResult](ctx, c, "DeleteChartSettings", req)
}

func (c *Client) SaveFilterSettings(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.FilterSetting]] {
	return postEntity[*models.FilterSetting](ctx, c, "SaveFilterSettings", req)
}

func (c *Client) DeleteFilterSettings(ctx context.Context, req *models.GridRequest) *Response[models.Result[models.EmptyResult]] {
	return postEntity[models.EmptyResult](ctx, c, "DeleteFilterSettings", req)
}

// CustomFunction calls a server-side function of the entity.
func (c *Client) CustomFunction(ctx context.Context, req *models.GridRequest) *Response[models.Result[*models.CustomFunctionResult]] {
	return postEntity[*models.CustomFunctionResult](ctx, c, "CustomFunction", req)
}

// Resource fetches a named server resource.
func Resource[T any](ctx context.Context, c *Client, name string, query url.Values) *Response[T] {
	return Get[T](ctx, c, &Request{URI: "/rgf/api/resource/" + name, Query: query, AuthClient: true})
}

// TextResource fetches a named server resource as raw text.
func (c *Client) TextResource(ctx context.Context, name string, query url.Values) *Response[string] {
	return Resource[string](ctx, c, name, query)
}

// About fetches the HTML of the about dialog.
func (c *Client) About(ctx context.Context) *Response[string] {
	return Get[string](ctx, c, &Request{URI: "/rgf/api/AboutDialog", AuthClient: true})
}

// Permissions resolves a batch of permission queries.
func (c *Client) Permissions(ctx context.Context, queries []models.RecroSecQuery) *Response[[]models.RecroSecResult] {
	return Post[[]models.RecroSecResult](ctx, c, &Request{URI: "/rgf/api/recrosec/Permissions", Body: queries, AuthClient: true})
}

// UserState fetches the state of the signed-in user. query may update it,
// for example with language.
func (c *Client) UserState(ctx context.Context, query url.Values) *Response[*models.UserState] {
	return Get[*models.UserState](ctx, c, &Request{URI: "/rgf/api/recrosec/UserState", Query: query, AuthClient: true})
}

// VersionCompatibility fetches the server component versions.
func (c *Client) VersionCompatibility(ctx context.Context) *Response[models.Result[map[string]string]] {
	return Get[models.Result[map[string]string]](ctx, c, &Request{URI: "/rgf/api/version-compatibility", AuthClient: true})
}

// Dictionary fetches one scope of the localization dictionary.
func (c *Client) Dictionary(ctx context.Context, scope, language string, authClient bool) *Response[map[string]string] {
	uri := "/rgf/api/RecroDict/" + url.PathEscape(scope) + "/" + url.PathEscape(language)
	return Get[map[string]string](ctx, c, &Request{URI: uri, AuthClient: authClient})
}

// Menu fetches an application menu. An empty lang means "eng".
func (c *Client) Menu(ctx context.Context, menuID int, lang, scope string) *Response[[]*models.Menu] {
	if lang == "" {
		lang = "eng"
	}
	uri := fmt.Sprintf("/rgf/api/Menu/%d/%s/%s", menuID, url.PathEscape(lang), url.PathEscape(scope))
	return Get[[]*models.Menu](ctx, c, &Request{URI: uri, AuthClient: true})
}
