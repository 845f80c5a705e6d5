package forms

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldworks/backoffice/pkg/authz"
)

type routerConfig struct {
	presigner SignatureUploadPresigner
	analytics func(http.Handler) http.Handler
}

// RouterOption configures optional collaborators of the forms API.
type RouterOption func(*routerConfig)

// WithSignaturePresigner enables POST /responses/{id}/signatures:presign.
func WithSignaturePresigner(p SignatureUploadPresigner) RouterOption {
	return func(c *routerConfig) { c.presigner = p }
}

// WithAnalyticsMiddleware wraps the stats and trend endpoints, typically
// with a response cache.
func WithAnalyticsMiddleware(mw func(http.Handler) http.Handler) RouterOption {
	return func(c *routerConfig) { c.analytics = mw }
}

// Router creates a chi.Router for the forms API, mounted at /api/forms/v1.
// When authorizer is non-nil, each endpoint requires its resource/verb
// permission (forms, responses, signatures, analytics).
func Router(svc *Service, authorizer authz.Authorizer, opts ...RouterOption) chi.Router {
	cfg := &routerConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	guard := func(resource, verb string, h http.Handler) http.HandlerFunc {
		if authorizer == nil {
			return h.ServeHTTP
		}
		return authz.RequirePermission(authorizer, resource, verb)(h).ServeHTTP
	}
	analytics := func(h http.HandlerFunc) http.Handler {
		if cfg.analytics == nil {
			return h
		}
		return cfg.analytics(h)
	}

	r := chi.NewRouter()

	r.Get("/field-types", guard(authz.ResourceForms, authz.VerbList, ListFieldTypesHandler()))
	r.Post("/schema:validate", guard(authz.ResourceForms, authz.VerbCreate, ValidateSchemaHandler()))

	r.Get("/forms", guard(authz.ResourceForms, authz.VerbList, ListFormsHandler(svc)))
	r.Post("/forms", guard(authz.ResourceForms, authz.VerbCreate, CreateFormHandler(svc)))
	r.Get("/forms/{formId}", guard(authz.ResourceForms, authz.VerbGet, GetFormHandler(svc)))
	r.Put("/forms/{formId}", guard(authz.ResourceForms, authz.VerbUpdate, UpdateFormHandler(svc)))
	r.Delete("/forms/{formId}", guard(authz.ResourceForms, authz.VerbDelete, DeleteFormHandler(svc)))

	r.Get("/forms/{formId}/responses", guard(authz.ResourceResponses, authz.VerbList, ListResponsesHandler(svc)))
	r.Post("/forms/{formId}/responses", guard(authz.ResourceResponses, authz.VerbCreate, CreateResponseHandler(svc)))

	r.Get("/forms/{formId}/stats", guard(authz.ResourceAnalytics, authz.VerbGet, analytics(ResponseStatsHandler(svc))))
	r.Get("/forms/{formId}/trend", guard(authz.ResourceAnalytics, authz.VerbGet, analytics(CompletionTrendHandler(svc))))
	r.Get("/forms/{formId}/export", guard(authz.ResourceAnalytics, authz.VerbExport, ExportHandler(svc)))

	r.Get("/responses/{responseId}", guard(authz.ResourceResponses, authz.VerbGet, GetResponseHandler(svc)))
	r.Put("/responses/{responseId}", guard(authz.ResourceResponses, authz.VerbUpdate, UpdateResponseHandler(svc)))
	r.Delete("/responses/{responseId}", guard(authz.ResourceResponses, authz.VerbDelete, DeleteResponseHandler(svc)))

	r.Get("/responses/{responseId}/signatures", guard(authz.ResourceSignatures, authz.VerbList, ListSignaturesHandler(svc)))
	r.Post("/responses/{responseId}/signatures", guard(authz.ResourceSignatures, authz.VerbCreate, AttachSignatureHandler(svc)))
	r.Post("/responses/{responseId}/signatures:presign", guard(authz.ResourceSignatures, authz.VerbCreate, PresignSignatureHandler(svc, cfg.presigner)))

	return r
}
