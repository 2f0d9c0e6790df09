package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/algorithmical-ai/automated-day-trading-sub001/internal/domain/models"
)

type stubDecider struct {
	got models.DecisionRequest
	res *models.DecisionResponse
	err error
}

func (s *stubDecider) Decide(_ context.Context, req models.DecisionRequest) (*models.DecisionResponse, error) {
	s.got = req
	return s.res, s.err
}

type stubOutcomes struct {
	recorded []models.OutcomeRequest
	stats    *models.IntradayStats
	err      error
}

func (s *stubOutcomes) Record(_ context.Context, req models.OutcomeRequest) (*models.IntradayStats, error) {
	s.recorded = append(s.recorded, req)
	return s.stats, s.err
}

func (s *stubOutcomes) Stats(context.Context, string, string) (*models.IntradayStats, error) {
	return s.stats, s.err
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *AdmissionEchoHandler, method, target, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return rec, env
}

func TestDecideOK(t *testing.T) {
	d := &stubDecider{res: &models.DecisionResponse{Decision: true, Ticker: "MSFT", Reason: "exploring"}}
	h := NewAdmissionEchoHandler(nil, d, &stubOutcomes{}, 0)

	rec, env := serve(t, h, http.MethodPost, "/api/v1/decisions",
		`{"ticker":"MSFT","indicator":"momentum","current_price":410.5,"action":"buy_to_open","confidence_score":0.7}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	var res models.DecisionResponse
	if err := json.Unmarshal(env.Data, &res); err != nil || !res.Decision || res.Ticker != "MSFT" {
		t.Fatalf("response = %+v (%v)", res, err)
	}
	if d.got.Action != models.BuyToOpen || d.got.ConfidenceScore == nil || *d.got.ConfidenceScore != 0.7 {
		t.Fatalf("request = %+v", d.got)
	}
}

func TestDecideValidation(t *testing.T) {
	d := &stubDecider{}
	h := NewAdmissionEchoHandler(nil, d, &stubOutcomes{}, 0)

	rec, env := serve(t, h, http.MethodPost, "/api/v1/decisions",
		`{"ticker":"MSFT","indicator":"momentum","current_price":410.5,"action":"hold","confidence_score":1.5}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(string(env.Data), `"action"`) || !strings.Contains(string(env.Data), `"confidence_score"`) {
		t.Fatalf("validation errors should name wire fields: %s", env.Data)
	}
	if d.got.Ticker != "" {
		t.Fatalf("decider should not be called")
	}
}

func TestDecideMissingConfidenceIsBadRequest(t *testing.T) {
	d := &stubDecider{}
	h := NewAdmissionEchoHandler(nil, d, &stubOutcomes{}, 0)

	rec, env := serve(t, h, http.MethodPost, "/api/v1/decisions",
		`{"ticker":"AAPL","indicator":"momentum","current_price":100,"action":"buy_to_open"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(string(env.Data), `"confidence_score"`) || !strings.Contains(string(env.Data), "ERR_REQUIRED") {
		t.Fatalf("missing confidence should be reported: %s", env.Data)
	}
	if d.got.Ticker != "" {
		t.Fatalf("decider should not be called")
	}
}

func TestDecideExplicitZeroConfidenceAccepted(t *testing.T) {
	d := &stubDecider{res: &models.DecisionResponse{Ticker: "AAPL"}}
	h := NewAdmissionEchoHandler(nil, d, &stubOutcomes{}, 0)

	rec, _ := serve(t, h, http.MethodPost, "/api/v1/decisions",
		`{"ticker":"AAPL","indicator":"momentum","current_price":100,"action":"buy_to_open","confidence_score":0}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if d.got.ConfidenceScore == nil || *d.got.ConfidenceScore != 0 {
		t.Fatalf("explicit zero lost: %+v", d.got)
	}
}

func TestDecideInvalidInputFromController(t *testing.T) {
	d := &stubDecider{err: models.InvalidInput("ticker %q", "")}
	h := NewAdmissionEchoHandler(nil, d, &stubOutcomes{}, 0)
	rec, _ := serve(t, h, http.MethodPost, "/api/v1/decisions",
		`{"ticker":"X","indicator":"m","current_price":1,"action":"sell_to_close","confidence_score":0}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestDecideInternalError(t *testing.T) {
	d := &stubDecider{err: errors.New("boom")}
	h := NewAdmissionEchoHandler(nil, d, &stubOutcomes{}, 0)
	rec, _ := serve(t, h, http.MethodPost, "/api/v1/decisions",
		`{"ticker":"X","indicator":"m","current_price":1,"action":"buy_to_open","confidence_score":0.5}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRecordOutcome(t *testing.T) {
	o := &stubOutcomes{stats: &models.IntradayStats{Ticker: "AAPL", Successes: 1}}
	h := NewAdmissionEchoHandler(nil, &stubDecider{}, o, 0)

	rec, _ := serve(t, h, http.MethodPost, "/api/v1/outcomes", `{"ticker":"AAPL","indicator":"momentum","outcome":"success"}`)
	if rec.Code != http.StatusOK || len(o.recorded) != 1 || o.recorded[0].Outcome != models.OutcomeSuccess {
		t.Fatalf("status = %d recorded=%+v", rec.Code, o.recorded)
	}

	rec, _ = serve(t, h, http.MethodPost, "/api/v1/outcomes", `{"ticker":"AAPL","indicator":"momentum","outcome":"meh"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad outcome status = %d", rec.Code)
	}
}

func TestStatsQuery(t *testing.T) {
	o := &stubOutcomes{stats: &models.IntradayStats{Ticker: "AAPL", Indicator: "rsi", Failures: 2}}
	h := NewAdmissionEchoHandler(nil, &stubDecider{}, o, 0)

	rec, env := serve(t, h, http.MethodGet, "/api/v1/stats?ticker=AAPL&indicator=rsi", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var s models.IntradayStats
	if err := json.Unmarshal(env.Data, &s); err != nil || s.Failures != 2 {
		t.Fatalf("stats = %+v (%v)", s, err)
	}

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/stats?ticker=AAPL", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing indicator status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	h := NewAdmissionEchoHandler(nil, &stubDecider{}, &stubOutcomes{}, 0)
	h.AddHealthCheck("redis", func(context.Context) error { return nil })
	rec, _ := serve(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	h.AddHealthCheck("clickhouse", func(context.Context) error { return errors.New("down") })
	rec, env := serve(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(string(env.Data), "clickhouse") {
		t.Fatalf("status = %d data=%s", rec.Code, env.Data)
	}
}
