package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"polymarket-copytrader/models"
)

type fakeEngine struct {
	paused  []string
	resumed []string
	stopped bool
	known   map[string]bool
}

func (f *fakeEngine) Status() models.EngineStatus {
	return models.EngineStatus{
		Leaders: []models.LeaderStatus{{
			Name:      "alpha",
			State:     "enabled",
			Allocated: decimal.NewFromInt(2000),
			Exposed:   decimal.NewFromInt(10),
		}},
		GlobalExposure: decimal.NewFromInt(10),
		MaxExposure:    decimal.NewFromInt(5000),
	}
}

func (f *fakeEngine) Pause(name string) bool {
	f.paused = append(f.paused, name)
	return f.known[name]
}

func (f *fakeEngine) Resume(name string) bool {
	f.resumed = append(f.resumed, name)
	return f.known[name]
}

func (f *fakeEngine) Stop() { f.stopped = true }

func setupRouter(engine Engine) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(engine).Register(r)
	return r
}

func TestStatusEndpoint(t *testing.T) {
	r := setupRouter(&fakeEngine{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status code = %d", w.Code)
	}
	var status models.EngineStatus
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(status.Leaders) != 1 || status.Leaders[0].Name != "alpha" {
		t.Errorf("leaders = %+v", status.Leaders)
	}
}

func TestPauseResumeEndpoints(t *testing.T) {
	engine := &fakeEngine{known: map[string]bool{"alpha": true}}
	r := setupRouter(engine)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pause?trader=alpha", nil))
	if w.Code != http.StatusOK {
		t.Errorf("pause code = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pause?trader=ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown trader pause code = %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/resume", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing trader resume code = %d", w.Code)
	}
}

func TestStopEndpoint(t *testing.T) {
	engine := &fakeEngine{}
	r := setupRouter(engine)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/stop", nil))
	if w.Code != http.StatusOK || !engine.stopped {
		t.Errorf("stop: code=%d stopped=%v", w.Code, engine.stopped)
	}
}
