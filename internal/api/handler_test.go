package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/restcore/internal/entity"
	"github.com/fluxbase-eu/restcore/internal/example"
	"github.com/fluxbase-eu/restcore/internal/memstore"
	"github.com/fluxbase-eu/restcore/internal/repository"
	"github.com/fluxbase-eu/restcore/internal/schema"
	"github.com/fluxbase-eu/restcore/internal/service"
)

func newUserApp(t *testing.T) (*fiber.App, *service.Service[example.User]) {
	t.Helper()

	repo, err := repository.New[example.User](memstore.New(), schema.NewReflectResolver(0))
	require.NoError(t, err)
	svc := service.New(repo, service.Options{})

	users := []*example.User{
		{Name: "Ann", Age: 34, Role: example.RoleAdmin, Orders: []example.Order{
			{Total: decimal.NewFromInt(150)}, {Total: decimal.NewFromInt(50)},
		}},
		{Name: "Bob", Age: 41, Role: example.RoleUser},
		{Name: "Roboto", Age: 28, Role: example.RoleUser},
	}
	for _, u := range users {
		_, err := svc.Save(context.Background(), u)
		require.NoError(t, err)
	}

	app := fiber.New(fiber.Config{ErrorHandler: customErrorHandler})
	NewHandler(svc).Register(app.Group("/users"))
	return app, svc
}

func do(t *testing.T, app *fiber.App, method, target, body string) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func TestHandler_List(t *testing.T) {
	app, _ := newUserApp(t)

	tests := []struct {
		name     string
		query    url.Values
		names    []string
		metadata entity.Metadata
	}{
		{
			name:     "filter with aliases",
			query:    url.Values{"filter": {"age>30;name|like|bo"}},
			names:    []string{"Bob"},
			metadata: entity.Metadata{TotalCount: 1, PageSize: 20},
		},
		{
			name:     "sorted page",
			query:    url.Values{"sort": {"age=desc"}, "offset": {"1"}, "limit": {"1"}},
			names:    []string{"Ann"},
			metadata: entity.Metadata{TotalCount: 3, PageOffset: 1, PageSize: 1},
		},
		{
			name:     "limit above max is clamped",
			query:    url.Values{"limit": {"1000"}},
			names:    []string{"Ann", "Bob", "Roboto"},
			metadata: entity.Metadata{TotalCount: 3, PageSize: 100},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, http.MethodGet, "/users?"+tt.query.Encode(), "")
			require.Equal(t, http.StatusOK, status, string(body))

			var resp entity.Response[example.User]
			require.NoError(t, json.Unmarshal(body, &resp))

			names := make([]string, len(resp.Records))
			for i, u := range resp.Records {
				names[i] = u.Name
			}
			assert.Equal(t, tt.names, names)
			assert.Equal(t, tt.metadata, resp.Metadata)
		})
	}
}

func TestHandler_ListAggregation(t *testing.T) {
	app, _ := newUserApp(t)

	status, body := do(t, app, http.MethodGet, "/users?sum=orders.total&filter=name%7Ceq%7CAnn", "")
	require.Equal(t, http.StatusOK, status, string(body))

	var resp struct {
		Records []struct {
			Sum map[string]map[string]string `json:"sum"`
		} `json:"records"`
		Metadata entity.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "200", resp.Records[0].Sum["orders"]["total"])
	assert.Equal(t, 1, resp.Metadata.PageSize)
}

func TestHandler_Errors(t *testing.T) {
	app, _ := newUserApp(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
		code   string
	}{
		{name: "unknown filter field", method: http.MethodGet, target: "/users?filter=nickname%7Ceq%7Cx", status: 400, code: "INVALID_FILTER"},
		{name: "unknown sort field", method: http.MethodGet, target: "/users?sort=nickname", status: 400, code: "INVALID_SORT"},
		{name: "non numeric offset", method: http.MethodGet, target: "/users?offset=abc", status: 400, code: CodeInvalidPage},
		{name: "non numeric limit on count", method: http.MethodGet, target: "/users/count?limit=abc", status: 400, code: CodeInvalidPage},
		{name: "unknown external id", method: http.MethodGet, target: "/users/missing", status: 404, code: repository.CodeEntityNotFound},
		{name: "malformed body", method: http.MethodPost, target: "/users", body: "{", status: 400, code: CodeInvalidBody},
		{name: "mismatched external id", method: http.MethodPut, target: "/users/abc", body: `{"externalId":"xyz"}`, status: 400, code: repository.CodeExternalIDMismatch},
		{name: "delete unknown", method: http.MethodDelete, target: "/users/missing", status: 404, code: repository.CodeEntityNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := do(t, app, tt.method, tt.target, tt.body)
			assert.Equal(t, tt.status, status, string(body))

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(body, &resp))
			assert.Equal(t, tt.code, resp.Code)
			assert.NotEmpty(t, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestHandler_Count(t *testing.T) {
	app, _ := newUserApp(t)

	status, body := do(t, app, http.MethodGet, "/users/count?filter=role%7Ceq%7CUSER&limit=1", "")
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"totalCount":2}`, string(body))
}

func TestHandler_Records(t *testing.T) {
	app, _ := newUserApp(t)

	status, body := do(t, app, http.MethodPost, "/users", `{"name":"Dora","age":50,"role":"USER"}`)
	require.Equal(t, http.StatusCreated, status, string(body))

	var created example.User
	require.NoError(t, json.Unmarshal(body, &created))
	require.Len(t, created.ExternalID, 32)
	assert.True(t, created.Active)

	status, body = do(t, app, http.MethodGet, "/users/"+created.ExternalID, "")
	require.Equal(t, http.StatusOK, status)
	var found example.User
	require.NoError(t, json.Unmarshal(body, &found))
	assert.Equal(t, "Dora", found.Name)

	status, body = do(t, app, http.MethodPut, "/users/"+created.ExternalID,
		`{"externalId":"`+created.ExternalID+`","active":true,"name":"Dora","age":51}`)
	require.Equal(t, http.StatusOK, status, string(body))
	var updated example.User
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, 51, updated.Age)
	assert.NotNil(t, updated.UpdateDate)

	status, body = do(t, app, http.MethodDelete, "/users/"+created.ExternalID+"?logical=true", "")
	require.Equal(t, http.StatusOK, status, string(body))
	var deactivated example.User
	require.NoError(t, json.Unmarshal(body, &deactivated))
	assert.False(t, deactivated.Active)
	assert.NotNil(t, deactivated.DeleteDate)

	status, _ = do(t, app, http.MethodDelete, "/users/"+created.ExternalID, "")
	assert.Equal(t, http.StatusOK, status)

	status, _ = do(t, app, http.MethodGet, "/users/"+created.ExternalID, "")
	assert.Equal(t, http.StatusNotFound, status)
}
