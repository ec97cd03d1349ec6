package api

import "net/http"

// wellKnownManifest is the static JSON manifest for /.well-known/tollbook.json.
const wellKnownManifest = `{
  "name": "Tollbook",
  "description": "Model-usage attribution ledger for long-running tasks",
  "version": "0.1.0",
  "api_base": "/api/v1",
  "auth": {
    "type": "bearer",
    "header": "Authorization"
  },
  "endpoints": {
    "tasks": "/api/v1/tasks",
    "switches": "/api/v1/tasks/{taskID}/switches",
    "reports_immediate": "/api/v1/tasks/{taskID}/reports/immediate",
    "reports_delayed": "/api/v1/tasks/{taskID}/reports/delayed",
    "usage": "/api/v1/tasks/{taskID}/usage",
    "periods": "/api/v1/tasks/{taskID}/periods"
  },
  "health": "/health"
}`

// WellKnownHandler returns the static Tollbook well-known manifest.
func WellKnownHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(wellKnownManifest))
}
