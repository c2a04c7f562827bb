package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"moldline/internal/domain"
	"moldline/internal/engine"
	"moldline/internal/logging"
	"moldline/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
	Logger   *zap.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"bad_request"`
	Message string         `json:"message" example:"scheduleDays must be between 1 and 260"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the moldline API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := logging.OrNop(cfg.Logger)
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(accessLog(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("moldline API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerMetrics(router, cfg.Engine)
	registerHealth(group)
	registerSchedule(group, cfg.Engine)
	registerOrders(group, cfg.Engine)
	registerMolds(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath, strings.TrimSpace(cfg.Auth.JWTSecret) != "")

	return router, nil
}

func accessLog(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			started := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(started)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrInvalidRequest):
		return newAPIError(http.StatusBadRequest, "bad_request", err.Error(), nil)
	case errors.Is(err, engine.ErrFinalStage):
		return newAPIError(http.StatusConflict, "final_stage", err.Error(), nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "unavailable", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerMetrics(r chi.Router, e engine.Engine) {
	if e.Metrics == nil {
		return
	}
	r.Handle("/metrics", e.Metrics.Handler())
}

// registerOpenAPI serves the document lazily; bearer security is declared
// only when tokens are enforced.
func registerOpenAPI(r chi.Router, api huma.API, basePath string, bearer bool) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			if oas.Components != nil && oas.Components.Schemas != nil {
				oas.Components.Schemas.Schema(reflect.TypeOf(ApiError{}), true, "ApiError")
			}
			ensureDefaultErrorResponses(oas)
			if bearer {
				applyAuthSecurity(oas, basePath)
			}
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{{"bearerAuth": {}}}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{item.Get, item.Put, item.Post, item.Delete, item.Patch} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>moldline API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; when the server has a JWT secret.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerSchedule(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "generate-schedule",
		Method:      http.MethodPost,
		Path:        "/schedule/generate",
		Summary:     "Generate a production schedule for the backlog",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body GenerateScheduleRequest
	}) (*struct {
		Body GenerateScheduleResponse `json:"body"`
	}, error) {
		req := engine.GenerateRequest{
			Days:            input.Body.ScheduleDays,
			MaxOrdersPerDay: input.Body.MaxOrdersPerDay,
			ActorID:         actorIDFromContext(ctx),
		}
		if input.Body.StartDate != "" {
			start, err := parseDate(input.Body.StartDate)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid startDate", map[string]any{"startDate": input.Body.StartDate})
			}
			req.StartDate = &start
		}
		res, err := e.GenerateSchedule(ctx, req)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body GenerateScheduleResponse `json:"body"`
		}{Body: generateResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-schedule",
		Method:      http.MethodGet,
		Path:        "/schedule",
		Summary:     "List persisted allocations",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		From  string `query:"from" doc:"Inclusive first day (YYYY-MM-DD)"`
		To    string `query:"to" doc:"Inclusive last day (YYYY-MM-DD)"`
		Scope string `query:"scope"`
	}) (*struct {
		Body ScheduleResponse `json:"body"`
	}, error) {
		for name, v := range map[string]string{"from": input.From, "to": input.To} {
			if v == "" {
				continue
			}
			if _, err := parseDate(v); err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid "+name, map[string]any{name: v})
			}
		}
		scope := input.Scope
		if scope == "" {
			scope = e.Config.Scheduling.Scope
		}
		items, err := e.Repo.ListAllocations(ctx, scope, input.From, input.To)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScheduleResponse `json:"body"`
		}{Body: ScheduleResponse{Scope: scope, Allocations: mapAllocations(items)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-schedule-runs",
		Method:      http.MethodGet,
		Path:        "/schedule/runs",
		Summary:     "List recent schedule runs",
	}, func(ctx context.Context, input *struct {
		Limit int    `query:"limit" default:"20"`
		Scope string `query:"scope"`
	}) (*struct {
		Body []RunResponse `json:"body"`
	}, error) {
		scope := input.Scope
		if scope == "" {
			scope = e.Config.Scheduling.Scope
		}
		runs, err := e.Repo.ListRuns(ctx, scope, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]RunResponse, 0, len(runs))
		for _, r := range runs {
			out = append(out, runResponse(r))
		}
		return &struct {
			Body []RunResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerOrders(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-backlog",
		Method:      http.MethodGet,
		Path:        "/orders/backlog",
		Summary:     "List orders waiting for a production slot",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []OrderResponse `json:"body"`
	}, error) {
		items, err := e.Repo.ListBacklog(ctx)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OrderResponse `json:"body"`
		}{Body: mapOrders(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "advance-orders",
		Method:      http.MethodPost,
		Path:        "/orders/advance",
		Summary:     "Move orders to their next pipeline stage",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body AdvanceOrdersRequest
	}) (*struct {
		Body []OrderResponse `json:"body"`
	}, error) {
		items, err := e.AdvanceOrders(ctx, input.Body.OrderIDs, actorIDFromContext(ctx))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []OrderResponse `json:"body"`
		}{Body: mapOrders(items)}, nil
	})
}

func registerMolds(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-molds",
		Method:      http.MethodGet,
		Path:        "/molds",
		Summary:     "List molds",
	}, func(ctx context.Context, input *struct {
		All bool `query:"all" doc:"Include inactive molds"`
	}) (*struct {
		Body []MoldResponse `json:"body"`
	}, error) {
		var (
			items []domain.Mold
			err   error
		)
		if input.All {
			items, err = e.Repo.ListMolds(ctx)
		} else {
			items, err = e.Repo.ListActiveMolds(ctx)
		}
		if err != nil {
			return nil, handleError(err)
		}
		out := make([]MoldResponse, 0, len(items))
		for _, m := range items {
			out = append(out, moldResponse(m))
		}
		return &struct {
			Body []MoldResponse `json:"body"`
		}{Body: out}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Type   string `query:"type"`
		Scope  string `query:"scope"`
		Limit  int    `query:"limit" default:"50"`
		Cursor string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.Scope, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			items = items[:limit]
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func parseDate(s string) (time.Time, error) {
	return time.Parse(domain.DateLayout, s)
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
