package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pricewatch/pricewatch/internal/monitor"
	"github.com/pricewatch/pricewatch/internal/siteconfig"
)

const (
	defaultObservationLimit = 100
	maxObservationLimit     = 1000
	firstScrapeTimeout      = 2 * time.Minute
)

type createProductRequest struct {
	Name        string   `json:"name"`
	URL         string   `json:"url"`
	TargetPrice *float64 `json:"target_price"`
}

func (s *Server) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	domain, err := validateProductURL(req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.TargetPrice != nil && *req.TargetPrice <= 0 {
		writeError(w, http.StatusBadRequest, "target_price must be positive")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = req.URL
	}

	p, err := s.store.CreateProduct(r.Context(), monitor.Product{
		Name:        name,
		URL:         req.URL,
		Domain:      domain,
		TargetPrice: req.TargetPrice,
	})
	if err != nil {
		if errors.Is(err, monitor.ErrDuplicateURL) {
			writeError(w, http.StatusConflict, "url is already watched")
			return
		}
		s.logger.Error("create product failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	// First observation lands shortly after registration instead of waiting
	// for the next sweep.
	if s.scraper != nil {
		go func(id string) {
			ctx, cancel := context.WithTimeout(context.Background(), firstScrapeTimeout)
			defer cancel()
			if _, err := s.scraper.ScrapeNow(ctx, id); err != nil {
				s.logger.Warn("initial scrape failed",
					zap.String("product_id", id), zap.Error(err))
			}
		}(p.ID)
	}

	writeJSON(w, http.StatusCreated, map[string]any{"product": p})
}

func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	activeOnly := false
	if v := r.URL.Query().Get("active"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid active filter")
			return
		}
		activeOnly = parsed
	}
	products, err := s.store.ListProducts(r.Context(), activeOnly)
	if err != nil {
		s.logger.Error("list products failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []monitor.Product{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

func (s *Server) getProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	p, err := s.store.GetProduct(r.Context(), id)
	if err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.logger.Error("get product failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product": p})
}

func (s *Server) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	if err := s.store.DeactivateProduct(r.Context(), id); err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.logger.Error("deactivate product failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to deactivate product")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "active": "false"})
}

func (s *Server) listObservations(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "product_id")
	if _, err := s.store.GetProduct(r.Context(), id); err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.logger.Error("get product failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load product")
		return
	}

	limit := defaultObservationLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 || parsed > maxObservationLimit {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	var since time.Time
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}

	obs, err := s.store.RecentObservations(r.Context(), id, limit, since)
	if err != nil {
		s.logger.Error("list observations failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list observations")
		return
	}
	if obs == nil {
		obs = []monitor.Observation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"observations": obs})
}

func (s *Server) scrapeProduct(w http.ResponseWriter, r *http.Request) {
	if s.scraper == nil {
		writeError(w, http.StatusServiceUnavailable, "scraping unavailable")
		return
	}
	id := chi.URLParam(r, "product_id")
	obs, err := s.scraper.ScrapeNow(r.Context(), id)
	if err != nil {
		if errors.Is(err, monitor.ErrNotFound) {
			writeError(w, http.StatusNotFound, "product not found")
			return
		}
		s.logger.Error("scrape now failed", zap.String("product_id", id), zap.Error(err))
		writeError(w, http.StatusBadGateway, "scrape failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"observation": obs})
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	since := time.Time{}
	if v := r.URL.Query().Get("since"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since timestamp")
			return
		}
		since = parsed
	}
	alerts, err := s.store.AlertsSince(r.Context(), since)
	if err != nil {
		s.logger.Error("list alerts failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"alerts": alerts})
}

func validateProductURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", errors.New("url must be absolute http or https")
	}
	domain := siteconfig.DomainOf(raw)
	if domain == "" {
		return "", errors.New("url has no usable host")
	}
	return domain, nil
}
