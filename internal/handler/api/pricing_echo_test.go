package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"PricePulse/internal/domain/models"
	internalrepo "PricePulse/internal/repository"
	"PricePulse/internal/services/deals"
	"PricePulse/internal/services/ranking"
	"PricePulse/internal/usecase"
	xhttp "PricePulse/pkg/http"
)

var day0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

type flatForecaster struct{ err error }

func (f flatForecaster) Forecast(_ context.Context, series models.PriceSeries, horizon int) (models.Projection, error) {
	if f.err != nil {
		return models.Projection{}, f.err
	}
	last := series.Last()
	out := make([]models.ForecastPoint, horizon)
	for i := range out {
		out[i] = models.ForecastPoint{
			Date:           last.Date.AddDate(0, 0, i+1),
			PredictedPrice: last.Price,
			LowerBound:     last.Price * 0.95,
			UpperBound:     last.Price * 1.05,
			Confidence:     0.9,
		}
	}
	return models.Projection{Forecast: out}, nil
}

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestEcho(t *testing.T, fc flatForecaster) *echo.Echo {
	t.Helper()
	catalog, err := internalrepo.NewStaticCatalog([]models.CatalogProduct{
		{ID: "P001", Name: "iPhone 16", Category: "Smartphones", Rating: 4.5},
		{ID: "P002", Name: "MacBook Air", Category: "Laptops", Rating: 4.6},
	})
	require.NoError(t, err)

	var pts []models.PricePoint
	for i := 0; i < 30; i++ {
		d := day0.AddDate(0, 0, i)
		pts = append(pts,
			models.PricePoint{ProductID: "P001", Retailer: "Amazon.in", Date: d, Price: 1000},
			models.PricePoint{ProductID: "P001", Retailer: "Croma", Date: d, Price: 950},
		)
	}
	store := internalrepo.NewMemoryPriceStore(func() ([]models.PricePoint, error) { return pts, nil })
	require.NoError(t, store.Init(context.Background()))

	det := deals.NewDetector(deals.DefaultConfig())
	fs := usecase.NewForecastService(store, catalog, fc, det)
	rs := usecase.NewRecommendService(internalrepo.NewMemoryActivityStore(), store, catalog, ranking.NewRanker(ranking.Config{}), 30)
	is := usecase.NewIngestService(store, catalog, det)

	e := echo.New()
	e.HTTPErrorHandler = xhttp.ErrorHandler(nil)
	NewPricingEchoHandler(nil, fs, rs, is, store, nil).RegisterRoutes(e)
	return e
}

func do(t *testing.T, e *echo.Echo, method, target, body string, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	assert.Equal(t, rec.Code, env.Status)
	return rec, env
}

func TestCompareRoute(t *testing.T) {
	e := newTestEcho(t, flatForecaster{})
	rec, env := do(t, e, http.MethodGet, "/api/compare/P001", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var cmp models.RetailerComparison
	require.NoError(t, json.Unmarshal(env.Data, &cmp))
	require.Len(t, cmp.Prices, 2)
	assert.Equal(t, "Croma", cmp.Prices[0].Retailer)
	assert.True(t, cmp.Prices[0].IsBest)
}

func TestForecastRoute(t *testing.T) {
	e := newTestEcho(t, flatForecaster{})
	rec, env := do(t, e, http.MethodGet, "/api/forecast/P001?retailer=Croma&horizon=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderCacheControl))

	var res models.ForecastResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, "Croma", res.Retailer)
	assert.Len(t, res.Forecast, 5)
	assert.InDelta(t, 950, res.CurrentPrice, 1e-9)
}

func TestRouteErrors(t *testing.T) {
	e := newTestEcho(t, flatForecaster{})

	rec, _ := do(t, e, http.MethodGet, "/api/forecast/P999", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/forecast/P001?horizon=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/compare/P001?date=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodGet, "/api/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestForecastRouteInsufficientData(t *testing.T) {
	e := newTestEcho(t, flatForecaster{err: fmt.Errorf("fit: %w", models.ErrInsufficientData)})
	rec, _ := do(t, e, http.MethodGet, "/api/forecast/P001", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "ERR_INSUFFICIENT_DATA")
}

func TestIngestRoute(t *testing.T) {
	e := newTestEcho(t, flatForecaster{})
	body := `{"product_id":"P001","retailer":"Croma","date":"2025-01-31","price":940}`
	rec, env := do(t, e, http.MethodPost, "/api/prices", body)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ev models.DealEvaluation
	require.NoError(t, json.Unmarshal(env.Data, &ev))
	assert.Equal(t, "P001", ev.ProductID)
	assert.Equal(t, 940.0, ev.Price)

	rec, _ = do(t, e, http.MethodPost, "/api/prices", `{"product_id":"P404","retailer":"Croma","date":"2025-01-31","price":940}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/prices", `{"product_id":"P001","retailer":"Croma","date":"2025-01-31","price":0}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestActivityRoutes(t *testing.T) {
	e := newTestEcho(t, flatForecaster{})

	rec, _ := do(t, e, http.MethodPost, "/api/activity/view", `{"product_id":"P001"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/activity/view", `{"product_id":"P001"}`, headerUserID, "u1")
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec, _ = do(t, e, http.MethodPost, "/api/activity/track", `{"session_id":"s1","product_id":"P404"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/api/recommendations?limit=5", "", headerUserID, "u1")
	require.Equal(t, http.StatusOK, rec.Code)
	var recs models.RecommendationSet
	require.NoError(t, json.Unmarshal(env.Data, &recs))
	assert.Equal(t, "u1", recs.UserID)
}

func TestHealthAndProducts(t *testing.T) {
	e := newTestEcho(t, flatForecaster{})
	rec, _ := do(t, e, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env := do(t, e, http.MethodGet, "/api/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Total int64 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	assert.EqualValues(t, 2, list.Total)
}

func TestToAppError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{models.ErrProductNotFound, http.StatusNotFound, "ERR_NOT_FOUND"},
		{models.ErrInsufficientData, http.StatusUnprocessableEntity, "ERR_INSUFFICIENT_DATA"},
		{models.ErrInvalidInput, http.StatusBadRequest, "ERR_BAD_REQUEST"},
		{models.ErrDatasetUnavailable, http.StatusServiceUnavailable, "ERR_UNAVAILABLE"},
		{context.DeadlineExceeded, http.StatusServiceUnavailable, "ERR_UNAVAILABLE"},
		{errors.New("boom"), http.StatusInternalServerError, "ERR_INTERNAL"},
	}
	for _, tc := range cases {
		got := toAppError(fmt.Errorf("wrapped: %w", tc.err))
		assert.Equal(t, tc.status, got.Status, tc.err.Error())
		assert.Equal(t, tc.code, got.Code, tc.err.Error())
	}

	staged := models.StageErrorf(models.StageCatalogLookup, models.ErrProductNotFound, "P9")
	assert.Equal(t, models.StageCatalogLookup, toAppError(staged).Params["stage"])

	pass := xhttp.TooManyRequestsError("slow down")
	assert.Same(t, pass, toAppError(pass))
}
