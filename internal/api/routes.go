package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stock-alerting/internal/middleware"
)

// NewRouter builds the HTTP router
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()

	r.Use(func(next http.Handler) http.Handler {
		return middleware.Chain(next, middleware.Logging, middleware.Recovery)
	})

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/register/", h.Register).Methods(http.MethodPost)
	api.HandleFunc("/auth/login/", h.Login).Methods(http.MethodPost)
	api.HandleFunc("/auth/token/refresh/", h.RefreshToken).Methods(http.MethodPost)

	authed := api.NewRoute().Subrouter()
	authed.Use(func(next http.Handler) http.Handler {
		return middleware.Authenticate(h.issuer)(next)
	})

	authed.HandleFunc("/auth/profile/", h.GetProfile).Methods(http.MethodGet)
	authed.HandleFunc("/auth/profile/", h.UpdateProfile).Methods(http.MethodPut)

	authed.HandleFunc("/stocks/", h.ListStocks).Methods(http.MethodGet)
	authed.HandleFunc("/stocks/current_prices/", h.CurrentPrices).Methods(http.MethodGet)
	authed.HandleFunc("/stocks/{id:[0-9]+}/prices/", h.GetStockPrices).Methods(http.MethodGet)

	authed.HandleFunc("/alerts/", h.ListAlerts).Methods(http.MethodGet)
	authed.HandleFunc("/alerts/", h.CreateAlert).Methods(http.MethodPost)
	authed.HandleFunc("/alerts/triggered/", h.ListTriggeredAlerts).Methods(http.MethodGet)
	authed.HandleFunc("/alerts/statistics/", h.AlertStatistics).Methods(http.MethodGet)
	authed.HandleFunc("/alerts/{id:[0-9]+}/", h.GetAlert).Methods(http.MethodGet)
	authed.HandleFunc("/alerts/{id:[0-9]+}/", h.UpdateAlert).Methods(http.MethodPut)
	authed.HandleFunc("/alerts/{id:[0-9]+}/", h.DeleteAlert).Methods(http.MethodDelete)

	return r
}
