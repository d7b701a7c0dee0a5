package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"stock-alerting/internal/logger"
)

// ListStocks handles GET /stocks/
func (h *Handler) ListStocks(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	stocks, err := h.db.GetActiveStocks(symbol)
	if err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Msg("failed to list stocks")
		respondError(w, http.StatusInternalServerError, "failed to list stocks")
		return
	}
	respondJSON(w, http.StatusOK, stocks)
}

// GetStockPrices handles GET /stocks/{id}/prices/
func (h *Handler) GetStockPrices(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	stockID, err := strconv.Atoi(vars["id"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid stock ID")
		return
	}

	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		hours, err = strconv.Atoi(raw)
		if err != nil || hours < 1 {
			respondError(w, http.StatusBadRequest, "invalid hours parameter")
			return
		}
	}

	if _, err := h.db.GetStockByID(stockID); err != nil {
		respondError(w, http.StatusNotFound, "stock not found")
		return
	}

	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)
	samples, err := h.db.GetSamplesSince(stockID, since)
	if err != nil {
		log := logger.WithComponent("api")
		log.Error().Err(err).Int("stock_id", stockID).Msg("failed to get price samples")
		respondError(w, http.StatusInternalServerError, "failed to get price samples")
		return
	}
	respondJSON(w, http.StatusOK, samples)
}

type currentPrice struct {
	StockID   int              `json:"stock"`
	Symbol    string           `json:"symbol"`
	Name      string           `json:"name"`
	Price     *decimal.Decimal `json:"price"`
	Timestamp *time.Time       `json:"timestamp"`
}

// CurrentPrices handles GET /stocks/current_prices/. Prices come from the
// Redis cache and fall back to the latest stored sample.
func (h *Handler) CurrentPrices(w http.ResponseWriter, r *http.Request) {
	stocks, err := h.db.GetActiveStocks("")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list stocks")
		return
	}

	prices := make([]currentPrice, 0, len(stocks))
	for _, stock := range stocks {
		entry := currentPrice{
			StockID: stock.ID,
			Symbol:  stock.Symbol,
			Name:    stock.Name,
		}

		if h.cache != nil {
			if cached, err := h.cache.GetLatestPrice(r.Context(), stock.Symbol); err == nil && cached != nil {
				entry.Price = &cached.Price
				entry.Timestamp = &cached.Timestamp
			}
		}
		if entry.Price == nil {
			if sample, err := h.db.GetLatestSample(stock.ID); err == nil && sample != nil {
				price := sample.ClosePrice()
				entry.Price = &price
				entry.Timestamp = &sample.Timestamp
			}
		}

		prices = append(prices, entry)
	}
	respondJSON(w, http.StatusOK, prices)
}
