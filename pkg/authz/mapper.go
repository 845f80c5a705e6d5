package authz

import (
	"net/http"
	"strings"
)

// ResourceMapping maps an HTTP request to a forms resource and verb for authorization.
type ResourceMapping struct {
	Resource string
	Verb     string
}

// UnknownMapping is returned when no known pattern matches the request.
// Callers should deny requests with this mapping by default.
var UnknownMapping = ResourceMapping{Resource: "", Verb: ""}

const (
	formsAPIPrefix = "/api/forms/v1"
	auditAPIPrefix = "/api/audit/v1"
	jobsAPIPrefix  = "/api/jobs/v1"
)

// MapRequest maps an HTTP method and URL path to a ResourceMapping.
func MapRequest(method, path string) ResourceMapping {
	path = strings.TrimRight(path, "/")

	switch {
	case strings.HasPrefix(path, formsAPIPrefix+"/"):
		return mapFormsRoute(method, splitPath(strings.TrimPrefix(path, formsAPIPrefix)))
	case strings.HasPrefix(path, auditAPIPrefix+"/"):
		return mapAuditRoute(method, splitPath(strings.TrimPrefix(path, auditAPIPrefix)))
	case strings.HasPrefix(path, jobsAPIPrefix+"/"):
		return mapJobsRoute(method, splitPath(strings.TrimPrefix(path, jobsAPIPrefix)))
	}
	return UnknownMapping
}

func splitPath(p string) []string {
	return strings.Split(strings.Trim(p, "/"), "/")
}

func mapFormsRoute(method string, segs []string) ResourceMapping {
	switch segs[0] {
	case "field-types":
		if len(segs) == 1 && method == http.MethodGet {
			return ResourceMapping{Resource: ResourceForms, Verb: VerbList}
		}
	case "schema:validate":
		if len(segs) == 1 && method == http.MethodPost {
			return ResourceMapping{Resource: ResourceForms, Verb: VerbCreate}
		}
	case "forms":
		return mapFormRoute(method, segs[1:])
	case "responses":
		return mapResponseRoute(method, segs[1:])
	}
	return UnknownMapping
}

// mapFormRoute handles /forms, /forms/{id} and the per-form subresources.
func mapFormRoute(method string, segs []string) ResourceMapping {
	switch len(segs) {
	case 0:
		return collectionVerb(ResourceForms, method)
	case 1:
		return itemVerb(ResourceForms, method)
	case 2:
		switch segs[1] {
		case "responses":
			return collectionVerb(ResourceResponses, method)
		case "stats", "trend":
			if method == http.MethodGet {
				return ResourceMapping{Resource: ResourceAnalytics, Verb: VerbGet}
			}
		case "export":
			if method == http.MethodGet {
				return ResourceMapping{Resource: ResourceAnalytics, Verb: VerbExport}
			}
		}
	}
	return UnknownMapping
}

// mapResponseRoute handles /responses/{id} and its signatures.
func mapResponseRoute(method string, segs []string) ResourceMapping {
	switch len(segs) {
	case 1:
		if segs[0] != "" {
			return itemVerb(ResourceResponses, method)
		}
	case 2:
		switch segs[1] {
		case "signatures":
			return collectionVerb(ResourceSignatures, method)
		case "signatures:presign":
			if method == http.MethodPost {
				return ResourceMapping{Resource: ResourceSignatures, Verb: VerbCreate}
			}
		}
	}
	return UnknownMapping
}

// mapAuditRoute handles /api/audit/v1/events[/{id}]. The audit log is read-only.
func mapAuditRoute(method string, segs []string) ResourceMapping {
	if segs[0] != "events" || method != http.MethodGet {
		return UnknownMapping
	}
	switch len(segs) {
	case 1:
		return ResourceMapping{Resource: ResourceAudit, Verb: VerbList}
	case 2:
		return ResourceMapping{Resource: ResourceAudit, Verb: VerbGet}
	}
	return UnknownMapping
}

// mapJobsRoute handles /api/jobs/v1/exports and the per-job actions.
func mapJobsRoute(method string, segs []string) ResourceMapping {
	if segs[0] != "exports" {
		return UnknownMapping
	}
	switch len(segs) {
	case 1:
		return collectionVerb(ResourceExports, method)
	case 2:
		switch {
		case strings.HasSuffix(segs[1], ":cancel"):
			if method == http.MethodPost {
				return ResourceMapping{Resource: ResourceExports, Verb: VerbUpdate}
			}
		case strings.HasSuffix(segs[1], ":download"):
			if method == http.MethodGet {
				return ResourceMapping{Resource: ResourceExports, Verb: VerbGet}
			}
		case method == http.MethodGet:
			return ResourceMapping{Resource: ResourceExports, Verb: VerbGet}
		}
	}
	return UnknownMapping
}

func collectionVerb(resource, method string) ResourceMapping {
	switch method {
	case http.MethodGet:
		return ResourceMapping{Resource: resource, Verb: VerbList}
	case http.MethodPost:
		return ResourceMapping{Resource: resource, Verb: VerbCreate}
	}
	return UnknownMapping
}

func itemVerb(resource, method string) ResourceMapping {
	switch method {
	case http.MethodGet:
		return ResourceMapping{Resource: resource, Verb: VerbGet}
	case http.MethodPut:
		return ResourceMapping{Resource: resource, Verb: VerbUpdate}
	case http.MethodDelete:
		return ResourceMapping{Resource: resource, Verb: VerbDelete}
	}
	return UnknownMapping
}
