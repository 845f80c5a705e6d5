package jobs

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/fieldworks/backoffice/pkg/authz"
)

// Router creates a chi.Router for the export job API, mounted at /api/jobs/v1.
// When authorizer is non-nil, endpoints require exports:list, exports:get,
// exports:create and exports:update permissions.
func Router(store *JobStore, lookup FormLookup, presigner DownloadPresigner, authorizer authz.Authorizer) chi.Router {
	guard := func(verb string, h http.HandlerFunc) http.HandlerFunc {
		if authorizer == nil {
			return h
		}
		return authz.RequirePermission(authorizer, authz.ResourceExports, verb)(h).ServeHTTP
	}

	r := chi.NewRouter()
	r.Get("/exports", guard(authz.VerbList, ListJobsHandler(store)))
	r.Post("/exports", guard(authz.VerbCreate, CreateExportHandler(store, lookup)))
	r.Get("/exports/{jobId}", guard(authz.VerbGet, GetJobHandler(store)))
	r.Get("/exports/{jobId}:download", guard(authz.VerbGet, DownloadJobHandler(store, presigner)))
	r.Post("/exports/{jobId}:cancel", guard(authz.VerbUpdate, CancelJobHandler(store)))
	return r
}
