package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/config"
	dbmock "github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/facematch"
	"github.com/kozaktomas/face-attendance/internal/identity"
	"github.com/kozaktomas/face-attendance/internal/recognizer/mock"
	"github.com/sirupsen/logrus"
)

// testEnv wires a real store and engine over mocks.
type testEnv struct {
	capability *mock.MockCapability
	store      *identity.Store
	ledger     *dbmock.MockLedger
	engine     *attendance.Engine
	sessions   *attendance.Sessions
	log        logrus.FieldLogger
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestEnv(t *testing.T, opts ...attendance.Option) *testEnv {
	t.Helper()
	log := quietLogger()
	capability := mock.NewMockCapability()
	store := identity.NewStore(filepath.Join(t.TempDir(), "faces"), capability, identity.WithLogger(log))
	if err := store.Load(context.Background()); err != nil {
		t.Fatalf("failed to load store: %v", err)
	}
	ledger := dbmock.NewMockLedger()
	strategy := facematch.NewDistanceStrategy(capability, config.MetricEuclidean, 0.6, log)

	opts = append([]attendance.Option{
		attendance.WithLogger(log),
		attendance.WithRetryInterval(time.Millisecond),
		attendance.WithHashStrategy(facematch.NewHashStrategy(8)),
	}, opts...)

	return &testEnv{
		capability: capability,
		store:      store,
		ledger:     ledger,
		engine:     attendance.NewEngine(store, strategy, ledger, opts...),
		sessions:   attendance.NewSessions(),
		log:        log,
	}
}

// register adds an identity whose face encodes to embedding.
func (e *testEnv) register(t *testing.T, name string, seed int, embedding []float32) []byte {
	t.Helper()
	img := mock.Image(seed)
	e.capability.SetFaces(img, embedding)
	if _, err := e.store.Register(context.Background(), name, img, false); err != nil {
		t.Fatalf("failed to register %s: %v", name, err)
	}
	return img
}

// multipartRequest builds a multipart POST with form fields and an optional image.
func multipartRequest(t *testing.T, path string, fields map[string]string, image []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatal(err)
		}
	}
	if image != nil {
		part, err := writer.CreateFormFile("image", "probe.png")
		if err != nil {
			t.Fatal(err)
		}
		part.Write(image)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
