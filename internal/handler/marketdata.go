package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/rest/httpx"

	"github.com/najdi123/currency-sub003/internal/history"
	"github.com/najdi123/currency-sub003/internal/marketdata"
	"github.com/najdi123/currency-sub003/internal/svc"
	"github.com/najdi123/currency-sub003/pkg/market"
)

type CurrentRequest struct {
	Category string `path:"category"`
}

type HistoryRequest struct {
	Category string `path:"category"`
	Days     int    `form:"days,default=7"`
}

type HistoricalRequest struct {
	Category string `path:"category"`
	Date     string `path:"date"`
}

type OHLCRequest struct {
	Subject string `path:"subject"`
	Date    string `form:"date,optional"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func HealthHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := svcCtx.Orchestrator.GetHealth()
		status := http.StatusOK
		if !health.Healthy {
			status = http.StatusServiceUnavailable
		}
		httpx.WriteJsonCtx(r.Context(), w, status, health)
	}
}

func CurrentHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CurrentRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		resp, err := svcCtx.Orchestrator.GetCurrent(r.Context(), market.Category(strings.ToLower(req.Category)))
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, resp)
	}
}

func HistoryHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HistoryRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		points, err := svcCtx.Orchestrator.GetHistory(r.Context(), market.Category(strings.ToLower(req.Category)), req.Days)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, points)
	}
}

func HistoricalHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req HistoricalRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		date, err := time.Parse(time.DateOnly, req.Date)
		if err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		point, err := svcCtx.Orchestrator.GetHistorical(r.Context(), market.Category(strings.ToLower(req.Category)), date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, point)
	}
}

func OHLCHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OHLCRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(w, r, badRequest(err))
			return
		}
		date := svcCtx.Clock.Now()
		if req.Date != "" {
			parsed, err := time.Parse(time.DateOnly, req.Date)
			if err != nil {
				writeError(w, r, badRequest(err))
				return
			}
			date = parsed
		}
		bars, err := svcCtx.Orchestrator.GetOHLC(r.Context(), strings.ToLower(req.Subject), date)
		if err != nil {
			writeError(w, r, err)
			return
		}
		httpx.OkJsonCtx(r.Context(), w, bars)
	}
}

func badRequest(err error) error {
	return errors.Join(marketdata.ErrInvalidArgument, err)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, marketdata.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, history.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, marketdata.ErrUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		logx.WithContext(r.Context()).Errorf("handler: %s %s: %v", r.Method, r.URL.Path, err)
	}
	httpx.WriteJsonCtx(r.Context(), w, status, errorResponse{Error: err.Error()})
}
