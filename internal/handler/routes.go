package handler

import (
	"net/http"

	"github.com/zeromicro/go-zero/rest"

	"github.com/najdi123/currency-sub003/internal/svc"
)

func RegisterHandlers(server *rest.Server, serverCtx *svc.ServiceContext) {
	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/healthz",
				Handler: HealthHandler(serverCtx),
			},
		},
	)

	server.AddRoutes(
		[]rest.Route{
			{
				Method:  http.MethodGet,
				Path:    "/current/:category",
				Handler: CurrentHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/history/:category",
				Handler: HistoryHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/historical/:category/:date",
				Handler: HistoricalHandler(serverCtx),
			},
			{
				Method:  http.MethodGet,
				Path:    "/ohlc/:subject",
				Handler: OHLCHandler(serverCtx),
			},
		},
		rest.WithPrefix("/api/v1"),
	)
}
