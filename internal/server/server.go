package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"welfareflow/internal/columns"
	"welfareflow/internal/domain"
	"welfareflow/internal/engine"
	"welfareflow/internal/engine/auth"
	"welfareflow/internal/export"
	"welfareflow/internal/history"
	"welfareflow/internal/listing"
	"welfareflow/internal/logger"
	"welfareflow/internal/metrics"
	"welfareflow/internal/officer"
	"welfareflow/internal/repo"
	"welfareflow/internal/validation"
)

// Config for the HTTP API handler.
type Config struct {
	Engine    engine.Engine
	BasePath  string
	Auth      AuthConfig
	Logger    *logger.Logger
	RateLimit RateLimitConfig
	Uploads   UploadLimits
}

type UploadLimits struct {
	MaxBytes     int64
	AllowedTypes []string
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_current_player"`
	Message string         `json:"message" example:"tswo.bishnah is not the current player for this application"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// actionError is the {status:false, response} envelope of the action endpoint.
type actionError struct {
	status   int
	Status   bool   `json:"status"`
	Response string `json:"response"`
}

func (e *actionError) GetStatus() int { return e.status }
func (e *actionError) Error() string  { return e.Response }

// services bundles the core components the handlers call.
type services struct {
	engine     engine.Engine
	listing    listing.Service
	history    history.Service
	export     export.Service
	validation validation.Service
	log        *logger.Logger
}

// New returns an HTTP handler exposing the welfareflow API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = log
	}
	e := cfg.Engine
	svc := &services{
		engine:  e,
		listing: listing.Service{Repo: e.Repo},
		history: history.Service{Repo: e.Repo, Areas: e.Areas},
		validation: validation.Service{
			Store:        e.Repo,
			MaxBytes:     cfg.Uploads.MaxBytes,
			AllowedTypes: cfg.Uploads.AllowedTypes,
		},
		log: log,
	}
	svc.export = export.Service{Listing: svc.listing, Now: e.Now}

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
	router.Use(metrics.InstrumentHandler)
	router.Use(requestLogger(log))
	router.Use(newRateLimiter(cfg.RateLimit).middleware)
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, e.Repo))
	hcfg := huma.DefaultConfig("Welfareflow API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	router.Handle("/metrics", metrics.Handler())
	registerHealth(group)
	registerMe(group)
	registerServices(group, svc)
	registerApplications(group, svc)
	registerActions(group, svc)
	registerListing(group, svc)
	registerHistory(group, svc)
	registerExport(group, svc)
	registerPool(group, svc)
	registerValidation(group, svc)
	registerAPIKeys(group, svc)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()))
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

// statusFor classifies core errors onto HTTP statuses.
func statusFor(err error) (int, string, map[string]any) {
	var notCurrent auth.NotCurrentPlayerError
	var forbidden auth.ForbiddenActionError
	var terminal auth.TerminalStateError
	var verr engine.ValidationError
	switch {
	case errors.As(err, &notCurrent):
		return http.StatusForbidden, "not_current_player", map[string]any{"stale": notCurrent.Stale}
	case errors.As(err, &forbidden):
		return http.StatusForbidden, "forbidden_action", map[string]any{"action": forbidden.Action, "designation": forbidden.Designation}
	case errors.As(err, &terminal):
		return http.StatusForbidden, "terminal_state", map[string]any{"status": terminal.Status}
	case errors.Is(err, officer.ErrNotParticipant):
		return http.StatusForbidden, "forbidden", nil
	case errors.Is(err, repo.ErrNotFound):
		return http.StatusNotFound, "not_found", nil
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, "validation_failed", map[string]any{"field": verr.Field}
	case errors.Is(err, listing.ErrInvalidRequest),
		errors.Is(err, export.ErrUnsupportedFormat),
		errors.Is(err, validation.ErrUnknownKind):
		return http.StatusBadRequest, "bad_request", nil
	case errors.Is(err, engine.ErrArtifactUnavailable):
		return http.StatusBadGateway, "artifact_store_unavailable", nil
	default:
		return http.StatusInternalServerError, "internal_error", nil
	}
}

// handleError maps err to the API envelope; server-side failures are logged
// with kv and reported without internals.
func (s *services) handleError(err error, kv ...any) huma.StatusError {
	if err == nil {
		return nil
	}
	status, code, details := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", append(kv, "error", err)...)
		if status == http.StatusInternalServerError {
			return newAPIError(status, code, "internal error", nil)
		}
	}
	return newAPIError(status, code, err.Error(), details)
}

// actionFailure reports a failed action as {status:false, response}.
func (s *services) actionFailure(err error, kv ...any) huma.StatusError {
	status, _, _ := statusFor(err)
	msg := err.Error()
	if status >= http.StatusInternalServerError {
		s.log.Error("action failed", append(kv, "error", err)...)
		if status == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	return &actionError{status: status, Response: msg}
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
	case http.StatusForbidden:
		return "forbidden"
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

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
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
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join("/", basePath, "health")
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
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
    <title>Welfareflow API Docs</title>
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
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
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

func registerMe(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.Officer `json:"body"`
	}, error) {
		o, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body domain.Officer `json:"body"`
		}{Body: o}, nil
	})
}

func registerServices(api huma.API, s *services) {
	huma.Register(api, huma.Operation{
		OperationID: "list-services",
		Method:      http.MethodGet,
		Path:        "/services",
		Summary:     "List services",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []ServiceResponse `json:"body"`
	}, error) {
		items, err := s.engine.Repo.ListServices(ctx)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body []ServiceResponse `json:"body"`
		}{Body: mapServices(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-service",
		Method:      http.MethodGet,
		Path:        "/services/{service_id}",
		Summary:     "Get service workflow",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ServiceID int `path:"service_id"`
	}) (*struct {
		Body ServiceResponse `json:"body"`
	}, error) {
		item, err := s.engine.Repo.GetService(ctx, input.ServiceID)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body ServiceResponse `json:"body"`
		}{Body: serviceResponse(item)}, nil
	})
}

func registerApplications(api huma.API, s *services) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-application",
		Method:        http.MethodPost,
		Path:          "/applications",
		Summary:       "Submit a citizen application",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body SubmitApplicationRequest `json:"body"`
	}) (*struct {
		Body domain.CitizenApplication `json:"body"`
	}, error) {
		o, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		app, err := s.engine.Submit(ctx, engine.SubmitRequest{
			ServiceID:       input.Body.ServiceID,
			ReferenceNumber: input.Body.ReferenceNumber,
			FormDetails:     input.Body.FormDetails,
			Remarks:         input.Body.Remarks,
			SubmittedBy:     o.Username,
		})
		if err != nil {
			return nil, s.handleError(err, "service_id", input.Body.ServiceID)
		}
		return &struct {
			Body domain.CitizenApplication `json:"body"`
		}{Body: app}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-application",
		Method:      http.MethodGet,
		Path:        "/applications/{ref}",
		Summary:     "Get application",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Ref string `path:"ref"`
	}) (*struct {
		Body domain.CitizenApplication `json:"body"`
	}, error) {
		ref := pathRef(input.Ref)
		app, err := s.viewable(ctx, ref)
		if err != nil {
			return nil, err
		}
		return &struct {
			Body domain.CitizenApplication `json:"body"`
		}{Body: app}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "resubmit-application",
		Method:      http.MethodPost,
		Path:        "/applications/{ref}/resubmit",
		Summary:     "Resubmit corrections after return to citizen",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		Ref  string          `path:"ref"`
		Body ResubmitRequest `json:"body"`
	}) (*struct {
		Body domain.CitizenApplication `json:"body"`
	}, error) {
		o, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref := pathRef(input.Ref)
		app, err := s.engine.Resubmit(ctx, engine.ResubmitRequest{
			ReferenceNumber: ref,
			Fields:          input.Body.Fields,
			Remarks:         input.Body.Remarks,
			Citizen:         o.Username,
		})
		if err != nil {
			return nil, s.handleError(err, "reference_number", ref)
		}
		return &struct {
			Body domain.CitizenApplication `json:"body"`
		}{Body: app}, nil
	})
}

// viewable loads an application the caller may read.
func (s *services) viewable(ctx context.Context, ref string) (domain.CitizenApplication, error) {
	o, authErr := userFromContext(ctx)
	if authErr != nil {
		return domain.CitizenApplication{}, authErr
	}
	app, err := s.engine.Repo.GetApplication(ctx, ref)
	if err != nil {
		return domain.CitizenApplication{}, s.handleError(err, "reference_number", ref)
	}
	if err := officer.CanView(app, o); err != nil {
		return domain.CitizenApplication{}, s.handleError(err, "reference_number", ref)
	}
	return app, nil
}

func registerActions(api huma.API, s *services) {
	huma.Register(api, huma.Operation{
		OperationID: "take-action",
		Method:      http.MethodPost,
		Path:        "/applications/{ref}/actions",
		Summary:     "Take a workflow action",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
			http.StatusInternalServerError,
			http.StatusBadGateway,
		},
	}, func(ctx context.Context, input *struct {
		Ref  string            `path:"ref"`
		Body TakeActionRequest `json:"body"`
	}) (*struct {
		Body ActionResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, &actionError{status: http.StatusBadRequest, Response: "body required"}
		}
		o, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref := pathRef(input.Ref)
		res, err := s.engine.HandleAction(ctx, engine.ActionRequest{
			ReferenceNumber: ref,
			Officer:         o,
			Action:          input.Body.Action,
			Remarks:         input.Body.Remarks,
			Details:         input.Body.AdditionalDetails,
		})
		if err != nil {
			return nil, s.actionFailure(err, "reference_number", ref, "action", input.Body.Action)
		}
		return &struct {
			Body ActionResponse `json:"body"`
		}{Body: ActionResponse{
			Status:          true,
			Response:        res.Message,
			ReferenceNumber: res.Application.ReferenceNumber,
			CurrentPlayer:   res.Application.CurrentPlayer,
			State:           res.Application.Status,
		}}, nil
	})
}

type listingInput struct {
	ServiceID int    `path:"service_id"`
	Status    string `query:"status"`
	PageIndex int    `query:"page_index" minimum:"0"`
	PageSize  int    `query:"page_size" minimum:"0"`
	DataType  string `query:"data_type" doc:"all, data or pool"`
	Scope     string `query:"scope" doc:"InView pages the result"`
	Columns   string `query:"columns" doc:"comma separated column order"`
	Hidden    string `query:"hidden" doc:"comma separated columns to hide"`
}

func (in listingInput) request() listing.Request {
	return listing.Request{
		ServiceID:        in.ServiceID,
		StatusFilter:     in.Status,
		ColumnOrder:      splitList(in.Columns),
		ColumnVisibility: hiddenColumns(in.Hidden),
		Scope:            in.Scope,
		PageIndex:        in.PageIndex,
		PageSize:         in.PageSize,
		DataType:         in.DataType,
	}
}

type exportInput struct {
	ServiceID int    `path:"service_id"`
	Format    string `query:"format" enum:"csv,excel,pdf" default:"csv"`
	Status    string `query:"status"`
	PageIndex int    `query:"page_index" minimum:"0"`
	PageSize  int    `query:"page_size" minimum:"0"`
	DataType  string `query:"data_type"`
	Scope     string `query:"scope"`
	Columns   string `query:"columns"`
	Hidden    string `query:"hidden"`
}

func (in exportInput) request() export.Request {
	l := listingInput{
		ServiceID: in.ServiceID,
		Status:    in.Status,
		PageIndex: in.PageIndex,
		PageSize:  in.PageSize,
		DataType:  in.DataType,
		Scope:     in.Scope,
		Columns:   in.Columns,
		Hidden:    in.Hidden,
	}
	return export.Request{Request: l.request(), Format: in.Format}
}

func registerListing(api huma.API, s *services) {
	huma.Register(api, huma.Operation{
		OperationID: "list-applications",
		Method:      http.MethodGet,
		Path:        "/services/{service_id}/applications",
		Summary:     "List applications for the calling officer",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *listingInput) (*struct {
		Body listing.Result `json:"body"`
	}, error) {
		o, authErr := officerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res, err := s.listing.ListApplications(ctx, o, input.request())
		if err != nil {
			return nil, s.handleError(err, "service_id", input.ServiceID)
		}
		return &struct {
			Body listing.Result `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "count-applications",
		Method:      http.MethodGet,
		Path:        "/services/{service_id}/counts",
		Summary:     "Application counts per status",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ServiceID int `path:"service_id"`
	}) (*struct {
		Body map[string]int `json:"body"`
	}, error) {
		o, authErr := officerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		counts, err := s.listing.Counts(ctx, o, input.ServiceID)
		if err != nil {
			return nil, s.handleError(err, "service_id", input.ServiceID)
		}
		return &struct {
			Body map[string]int `json:"body"`
		}{Body: counts}, nil
	})
}

func registerHistory(api huma.API, s *services) {
	huma.Register(api, huma.Operation{
		OperationID: "application-history",
		Method:      http.MethodGet,
		Path:        "/applications/{ref}/history",
		Summary:     "Application action history",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Ref     string `path:"ref"`
		Page    int    `query:"page" minimum:"0"`
		Size    int    `query:"size" minimum:"0"`
		Scope   string `query:"scope"`
		Columns string `query:"columns"`
		Hidden  string `query:"hidden"`
	}) (*struct {
		Body history.Result `json:"body"`
	}, error) {
		ref := pathRef(input.Ref)
		if _, err := s.viewable(ctx, ref); err != nil {
			return nil, err
		}
		res, err := s.history.GetHistory(ctx, history.Request{
			ReferenceNumber:  ref,
			ColumnOrder:      splitList(input.Columns),
			ColumnVisibility: hiddenColumns(input.Hidden),
			Page:             input.Page,
			Size:             input.Size,
			Scope:            input.Scope,
		})
		if err != nil {
			return nil, s.handleError(err, "reference_number", ref)
		}
		if res.Data == nil {
			res.Data = []columns.Row{}
		}
		return &struct {
			Body history.Result `json:"body"`
		}{Body: res}, nil
	})
}

func registerExport(api huma.API, s *services) {
	huma.Register(api, huma.Operation{
		OperationID: "export-applications",
		Method:      http.MethodGet,
		Path:        "/services/{service_id}/applications/export",
		Summary:     "Export the application listing",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *exportInput) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		o, authErr := officerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := s.export.Export(ctx, o, input.request())
		if err != nil {
			return nil, s.handleError(err, "service_id", input.ServiceID, "format", input.Format)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        rep.ContentType,
			ContentDisposition: fmt.Sprintf(`attachment; filename="%s"`, rep.Filename),
			Body:               rep.Body,
		}, nil
	})
}

func registerPool(api huma.API, s *services) {
	type poolInput struct {
		ServiceID int    `path:"service_id"`
		Ref       string `path:"ref"`
	}
	huma.Register(api, huma.Operation{
		OperationID: "add-to-pool",
		Method:      http.MethodPost,
		Path:        "/services/{service_id}/pool/{ref}",
		Summary:     "Move a pending application to the officer's pool",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *poolInput) (*struct {
		Body PoolResponse `json:"body"`
	}, error) {
		o, authErr := officerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref := pathRef(input.Ref)
		if err := s.engine.AddToPool(ctx, o, input.ServiceID, ref); err != nil {
			return nil, s.handleError(err, "reference_number", ref)
		}
		return &struct {
			Body PoolResponse `json:"body"`
		}{Body: PoolResponse{Status: true, ReferenceNumber: ref, Pooled: true}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "remove-from-pool",
		Method:      http.MethodDelete,
		Path:        "/services/{service_id}/pool/{ref}",
		Summary:     "Return a pooled application to the main list",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *poolInput) (*struct {
		Body PoolResponse `json:"body"`
	}, error) {
		o, authErr := officerFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref := pathRef(input.Ref)
		if err := s.engine.RemoveFromPool(ctx, o, input.ServiceID, ref); err != nil {
			return nil, s.handleError(err, "reference_number", ref)
		}
		return &struct {
			Body PoolResponse `json:"body"`
		}{Body: PoolResponse{Status: true, ReferenceNumber: ref}}, nil
	})
}

func registerValidation(api huma.API, s *services) {
	huma.Register(api, huma.Operation{
		OperationID: "validate-field",
		Method:      http.MethodPost,
		Path:        "/validate/{kind}",
		Summary:     "Validate a form field or uploaded file",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Kind string           `path:"kind"`
		Body validation.Input `json:"body"`
	}) (*struct {
		Body validation.Result `json:"body"`
	}, error) {
		if _, authErr := userFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		res, err := s.validation.Validate(ctx, input.Kind, input.Body)
		if err != nil {
			return nil, s.handleError(err, "kind", input.Kind)
		}
		return &struct {
			Body validation.Result `json:"body"`
		}{Body: res}, nil
	})
}

func registerAPIKeys(api huma.API, s *services) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-api-key",
		Method:        http.MethodPost,
		Path:          "/api-keys",
		Summary:       "Create an API key for the caller",
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, input *struct {
		Body CreateAPIKeyRequest `json:"body"`
	}) (*struct {
		Body CreateAPIKeyResponse `json:"body"`
	}, error) {
		o, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		key, secret := NewAPIKey(o.Username, input.Body.Name)
		if err := s.engine.Repo.InsertAPIKey(ctx, nil, key); err != nil {
			return nil, s.handleError(err, "username", o.Username)
		}
		return &struct {
			Body CreateAPIKeyResponse `json:"body"`
		}{Body: CreateAPIKeyResponse{APIKeyResponse: apiKeyResponse(key), Key: secret}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-api-keys",
		Method:      http.MethodGet,
		Path:        "/api-keys",
		Summary:     "List the caller's API keys",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []APIKeyResponse `json:"body"`
	}, error) {
		o, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := s.engine.Repo.ListAPIKeys(ctx, o.Username)
		if err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body []APIKeyResponse `json:"body"`
		}{Body: mapAPIKeys(keys)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-api-key",
		Method:      http.MethodDelete,
		Path:        "/api-keys/{id}",
		Summary:     "Revoke one of the caller's API keys",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ID string `path:"id"`
	}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		o, authErr := userFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		keys, err := s.engine.Repo.ListAPIKeys(ctx, o.Username)
		if err != nil {
			return nil, s.handleError(err)
		}
		owned := false
		for _, k := range keys {
			if k.ID == input.ID {
				owned = true
				break
			}
		}
		if !owned {
			return nil, newAPIError(http.StatusNotFound, "not_found", "api key not found", nil)
		}
		if err := s.engine.Repo.DeleteAPIKey(ctx, input.ID); err != nil {
			return nil, s.handleError(err)
		}
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"id": input.ID, "status": "revoked"}}, nil
	})
}

// NewAPIKey builds a key record for username and returns it with the
// plaintext secret, which is never stored.
func NewAPIKey(username, name string) (domain.APIKey, string) {
	secret := "wf_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	return domain.APIKey{
		ID:        uuid.NewString(),
		Username:  username,
		Name:      name,
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}, secret
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
}

// pathRef decodes a reference number; generated references contain slashes
// and arrive percent-encoded.
func pathRef(raw string) string {
	if ref, err := url.PathUnescape(raw); err == nil {
		return ref
	}
	return raw
}

func hiddenColumns(s string) map[string]bool {
	hidden := splitList(s)
	if len(hidden) == 0 {
		return nil
	}
	vis := make(map[string]bool, len(hidden))
	for _, k := range hidden {
		vis[k] = false
	}
	return vis
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
