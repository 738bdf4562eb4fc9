// Package httpserver serves the worker's health surface.
//
// Routes:
//
//	GET /         {"ready": bool}, ready once the worker is registered
//	GET /address  {"address": "<account id>"}, the account to fund
//	GET /status   fulfillment pipeline status
//	GET /livez    liveness check
//	GET /readyz   readiness check, 503 until registered or while draining
//	GET /drain    mark not ready
//	GET /undrain  mark ready again
//
// Prometheus metrics are served separately on MetricsAddr.
package httpserver
