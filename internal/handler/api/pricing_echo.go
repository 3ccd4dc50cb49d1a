package api

import (
    "context"
    "net/http"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    models "PricePulse/internal/domain/models"
    domrepo "PricePulse/internal/domain/repository"
    "PricePulse/internal/service/metrics"
    "PricePulse/internal/usecase"
    xhttp "PricePulse/pkg/http"
    xlogger "PricePulse/pkg/logger"
)

const (
    headerUserID    = "X-User-ID"
    headerSessionID = "X-Session-ID"
)

// PricingEchoHandler exposes forecasting, deals, recommendations and ingestion over Echo.
type PricingEchoHandler struct {
    logger    *xlogger.Logger
    forecasts *usecase.ForecastService
    recs      *usecase.RecommendService
    ingest    *usecase.IngestService
    store     domrepo.PriceStore
    hub       *DealHub
}

func NewPricingEchoHandler(logger *xlogger.Logger, forecasts *usecase.ForecastService, recs *usecase.RecommendService,
    ingest *usecase.IngestService, store domrepo.PriceStore, hub *DealHub) *PricingEchoHandler {
    metrics.Register()
    if logger == nil {
        logger = xlogger.Nop()
    }
    return &PricingEchoHandler{logger: logger, forecasts: forecasts, recs: recs, ingest: ingest, store: store, hub: hub}
}

func (h *PricingEchoHandler) RegisterRoutes(e *echo.Echo) {
    e.GET("/healthz", h.Health)
    if h.hub != nil {
        e.GET("/ws/deals", h.hub.ServeWS)
    }

    g := e.Group("/api")
    g.GET("/products", h.Products)
    g.GET("/forecast/:product_id", h.Forecast)
    g.GET("/forecast/:product_id/advice", h.Advice)
    g.GET("/analysis/:product_id", h.Analysis)
    g.GET("/compare/:product_id", h.Compare)
    g.GET("/deals/best", h.BestDeals)
    g.GET("/recommendations", h.Recommendations)
    g.POST("/activity/view", h.RecordView)
    g.POST("/activity/track", h.Track)
    g.DELETE("/activity/track", h.Untrack)
    g.POST("/prices", h.IngestPrice)
}

func (h *PricingEchoHandler) Health(c echo.Context) error {
    ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
    defer cancel()
    if err := h.store.Health(ctx); err != nil {
        h.logger.Warn("health check failed", xlogger.Error(err))
        return xhttp.AppErrorResponse(c, xhttp.ServiceUnavailableError("price store unavailable").WithError(err))
    }
    return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *PricingEchoHandler) Products(c echo.Context) error {
    defer observe("products", time.Now())
    ps, err := h.forecasts.ListProducts(c.Request().Context())
    if err != nil {
        return h.fail(c, "products", err)
    }
    return xhttp.ListResponse(c, ps, int64(len(ps)))
}

func (h *PricingEchoHandler) Forecast(c echo.Context) error {
    defer observe("forecast", time.Now())
    req := &models.ForecastRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    res, err := h.forecasts.Forecast(c.Request().Context(), req.ProductID, req.Retailer, req.Horizon)
    if err != nil {
        return h.fail(c, "forecast", err)
    }
    c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=60")
    return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) Advice(c echo.Context) error {
    defer observe("advice", time.Now())
    req := &models.AdviceRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    res, err := h.forecasts.BuyAdvice(c.Request().Context(), req.ProductID, req.Horizon)
    if err != nil {
        return h.fail(c, "advice", err)
    }
    return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) Analysis(c echo.Context) error {
    defer observe("analysis", time.Now())
    req := &models.AnalysisRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    res, err := h.forecasts.AnalyzePatterns(c.Request().Context(), req.ProductID, req.Retailer)
    if err != nil {
        return h.fail(c, "analysis", err)
    }
    return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) Compare(c echo.Context) error {
    defer observe("compare", time.Now())
    req := &models.CompareRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    var date time.Time
    if req.Date != "" {
        date, _ = xhttp.ParseDate(req.Date)
    }
    res, err := h.forecasts.CompareRetailers(c.Request().Context(), req.ProductID, date)
    if err != nil {
        return h.fail(c, "compare", err)
    }
    return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) BestDeals(c echo.Context) error {
    defer observe("best_deals", time.Now())
    req := &models.BestDealsRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    res, err := h.forecasts.BestDeals(c.Request().Context(), req.N)
    if err != nil {
        return h.fail(c, "best_deals", err)
    }
    return xhttp.ListResponse(c, res, int64(len(res)))
}

func (h *PricingEchoHandler) Recommendations(c echo.Context) error {
    defer observe("recommendations", time.Now())
    req := &models.RecommendRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    id := identity(c, req.UserID, req.SessionID)
    res, err := h.recs.Recommend(c.Request().Context(), id, req.Limit)
    if err != nil {
        return h.fail(c, "recommendations", err)
    }
    return xhttp.SuccessResponse(c, res)
}

func (h *PricingEchoHandler) RecordView(c echo.Context) error {
    return h.activity(c, "activity_view", h.recs.RecordView)
}

func (h *PricingEchoHandler) Track(c echo.Context) error {
    return h.activity(c, "activity_track", h.recs.Track)
}

func (h *PricingEchoHandler) Untrack(c echo.Context) error {
    return h.activity(c, "activity_untrack", h.recs.Untrack)
}

func (h *PricingEchoHandler) activity(c echo.Context, endpoint string, fn func(context.Context, models.Identity, string) error) error {
    defer observe(endpoint, time.Now())
    req := &models.ActivityRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    id := identity(c, req.UserID, req.SessionID)
    if id.IsAnonymous() {
        return xhttp.AppErrorResponse(c, xhttp.BadRequestError("user_id or session_id is required"))
    }
    if err := fn(c.Request().Context(), id, req.ProductID); err != nil {
        return h.fail(c, endpoint, err)
    }
    return xhttp.AcceptedResponse(c, map[string]string{"product_id": req.ProductID, "identity": id.Key()})
}

func (h *PricingEchoHandler) IngestPrice(c echo.Context) error {
    defer observe("ingest", time.Now())
    req := &models.PriceObservationRequest{}
    if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
        return xhttp.BadRequestResponse(c, verr)
    }
    date, ok := xhttp.ParseDate(req.Date)
    if !ok {
        return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("invalid date %q", req.Date))
    }
    ev, err := h.ingest.Ingest(c.Request().Context(), models.PricePoint{
        ProductID: req.ProductID,
        Retailer:  req.Retailer,
        Date:      date,
        Price:     req.Price,
    })
    if err != nil {
        return h.fail(c, "ingest", err)
    }
    return xhttp.CreatedResponse(c, ev)
}

// fail records the error and renders it in the envelope.
func (h *PricingEchoHandler) fail(c echo.Context, endpoint string, err error) error {
    appErr := toAppError(err)
    metrics.EndpointErrors.WithLabelValues(endpoint, usecase.ErrorKind(err)).Inc()
    if appErr.Status >= http.StatusInternalServerError {
        h.logger.Error(endpoint+" usecase error", xlogger.Error(err))
    } else {
        h.logger.Debug(endpoint+" rejected", xlogger.Error(err))
    }
    return xhttp.AppErrorResponse(c, appErr)
}

func observe(endpoint string, start time.Time) {
    metrics.EndpointLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// identity prefers bound ids, then the X-User-ID / X-Session-ID headers, then the query.
func identity(c echo.Context, userID, sessionID string) models.Identity {
    if userID == "" {
        userID = xhttp.HeaderOrQuery(c, headerUserID, "user_id")
    }
    if sessionID == "" {
        sessionID = xhttp.HeaderOrQuery(c, headerSessionID, "session_id")
    }
    return models.Identity{UserID: strings.TrimSpace(userID), SessionID: strings.TrimSpace(sessionID)}
}
