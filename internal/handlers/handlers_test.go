package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/face-verify/internal/config"
	"github.com/example/face-verify/internal/imagestore"
	"github.com/example/face-verify/internal/usecase"
)

type fixedComparator struct {
	distance float64
	err      error
}

func (f fixedComparator) Compare(ctx context.Context, livePath, refPath string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.distance, nil
}

type testServer struct {
	router *gin.Engine
	store  *imagestore.Store
	dir    string
}

func newTestServer(t *testing.T, comparator fixedComparator, threshold float64, dualMode bool) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	cfg := &config.AppConfig{
		ImageDir:      dir,
		BankImage:     "user_bank.jpeg",
		AadhaarImage:  "user_aadhaar.png",
		SnapshotImage: "last_verified.jpg",
	}
	store := imagestore.NewStore(cfg, zap.NewNop())
	uc := usecase.NewVerificationUseCase(store, comparator, nil, nil, zap.NewNop(), threshold, dualMode)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, uc, store)

	return &testServer{router: router, store: store, dir: dir}
}

func (ts *testServer) postVerify(t *testing.T, payload []byte) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := buildMultipartBody(t, "live_image", payload)
	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func (ts *testServer) liveCaptureCount(t *testing.T) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(ts.dir, "live_*"))
	if err != nil {
		t.Fatalf("failed to glob live captures: %v", err)
	}
	return len(matches)
}

func buildMultipartBody(t *testing.T, field string, payload []byte) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile(field, "capture.png")
	if err != nil {
		t.Fatalf("failed to create multipart part: %v", err)
	}
	if _, err := part.Write(payload); err != nil {
		t.Fatalf("failed to write payload: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close writer: %v", err)
	}

	return body, writer.FormDataContentType()
}

func pngBytes(t *testing.T) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	buf := &bytes.Buffer{}
	if err := png.Encode(buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func decodeBody(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	return body
}

func TestTestEndpoint(t *testing.T) {
	ts := newTestServer(t, fixedComparator{}, 0.65, false)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["status"] != "success" || body["message"] != "Server is running" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestVerifyMissingFileReturns400(t *testing.T) {
	ts := newTestServer(t, fixedComparator{distance: 0.1}, 0.65, false)

	body, contentType := buildMultipartBody(t, "some_other_field", []byte("not an image"))
	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	parsed := decodeBody(t, resp)
	if parsed["status"] != "error" || parsed["message"] != "No file uploaded" {
		t.Errorf("unexpected body: %v", parsed)
	}
}

func TestVerifyCorruptUploadReturns400(t *testing.T) {
	ts := newTestServer(t, fixedComparator{distance: 0.1}, 0.65, false)
	if err := os.WriteFile(ts.store.SnapshotPath(), []byte("prior"), 0o644); err != nil {
		t.Fatalf("failed to seed snapshot: %v", err)
	}

	resp := ts.postVerify(t, []byte("definitely not an image"))

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", resp.Code)
	}
	parsed := decodeBody(t, resp)
	if parsed["message"] != "Could not process captured image" {
		t.Errorf("unexpected message: %v", parsed["message"])
	}

	snapshot, err := os.ReadFile(ts.store.SnapshotPath())
	if err != nil || !bytes.Equal(snapshot, []byte("prior")) {
		t.Error("expected snapshot to be left unmodified")
	}
	if ts.liveCaptureCount(t) != 0 {
		t.Error("expected live capture temp file to be removed")
	}
}

func TestVerifySuccessPromotesSnapshot(t *testing.T) {
	ts := newTestServer(t, fixedComparator{distance: 0.30}, 0.65, false)

	capture := pngBytes(t)
	resp := ts.postVerify(t, capture)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	body := decodeBody(t, resp)

	if body["status"] != "success" || body["message"] != "Authentication Successful" {
		t.Errorf("unexpected status/message: %v", body)
	}
	if body["face_score"] != 70.0 {
		t.Errorf("expected face_score 70, got %v", body["face_score"])
	}
	if body["threshold"] != 65.0 {
		t.Errorf("expected threshold 65, got %v", body["threshold"])
	}
	if body["is_first_login"] != true {
		t.Errorf("expected is_first_login true, got %v", body["is_first_login"])
	}

	details, ok := body["verification_details"].(map[string]interface{})
	if !ok {
		t.Fatalf("missing verification_details: %v", body)
	}
	if details["face_verified"] != true || details["verification_type"] != "bank" {
		t.Errorf("unexpected details: %v", details)
	}
	if details["image_saved"] != true {
		t.Errorf("expected image_saved true, got %v", details["image_saved"])
	}

	authResult, ok := body["auth_result"].(map[string]interface{})
	if !ok || authResult["success"] != true {
		t.Errorf("unexpected auth_result: %v", body["auth_result"])
	}

	promoted, err := os.ReadFile(ts.store.SnapshotPath())
	if err != nil {
		t.Fatalf("expected snapshot on disk: %v", err)
	}
	if !bytes.Equal(promoted, capture) {
		t.Error("expected snapshot bytes to equal uploaded capture")
	}
	if ts.liveCaptureCount(t) != 0 {
		t.Error("expected live capture temp file to be removed")
	}
}

func TestVerifySecondCallReportsPreviousReference(t *testing.T) {
	ts := newTestServer(t, fixedComparator{distance: 0.30}, 0.65, false)

	first := decodeBody(t, ts.postVerify(t, pngBytes(t)))
	if first["is_first_login"] != true {
		t.Fatalf("expected first call to report first login, got %v", first)
	}

	second := decodeBody(t, ts.postVerify(t, pngBytes(t)))
	if second["is_first_login"] != false {
		t.Errorf("expected second call to report is_first_login false, got %v", second)
	}
	details := second["verification_details"].(map[string]interface{})
	if details["verification_type"] != "previous" {
		t.Errorf("expected previous verification, got %v", details["verification_type"])
	}
}

func TestVerifyFailureDoesNotPromote(t *testing.T) {
	ts := newTestServer(t, fixedComparator{distance: 0.50}, 0.65, false)

	resp := ts.postVerify(t, pngBytes(t))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := decodeBody(t, resp)

	if body["status"] != "failed" || body["message"] != "Authentication Failed" {
		t.Errorf("unexpected status/message: %v", body)
	}
	if body["face_score"] != 50.0 {
		t.Errorf("expected face_score 50, got %v", body["face_score"])
	}
	if ts.store.SnapshotExists() {
		t.Error("expected no snapshot after a failed verification")
	}
	if ts.liveCaptureCount(t) != 0 {
		t.Error("expected live capture temp file to be removed")
	}
}

func TestVerifyEngineFailureReportsFailedOutcome(t *testing.T) {
	ts := newTestServer(t, fixedComparator{err: errors.New("no face found")}, 0.65, false)

	resp := ts.postVerify(t, pngBytes(t))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["status"] != "failed" {
		t.Errorf("expected failed status, got %v", body["status"])
	}
	if body["face_score"] != 0.0 {
		t.Errorf("expected face_score 0, got %v", body["face_score"])
	}
}

func TestVerifyStagingFailureReturns500AndCleansUp(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// The image directory path is occupied by a regular file, so staging the
	// upload beneath it cannot create the live capture.
	parent := t.TempDir()
	dir := filepath.Join(parent, "stored_images")
	if err := os.WriteFile(dir, []byte("occupied"), 0o644); err != nil {
		t.Fatalf("failed to occupy image dir path: %v", err)
	}

	cfg := &config.AppConfig{
		ImageDir:      dir,
		BankImage:     "user_bank.jpeg",
		AadhaarImage:  "user_aadhaar.png",
		SnapshotImage: "last_verified.jpg",
	}
	store := imagestore.NewStore(cfg, zap.NewNop())
	uc := usecase.NewVerificationUseCase(store, fixedComparator{distance: 0.10}, nil, nil, zap.NewNop(), 0.65, false)

	router := gin.New()
	router.MaxMultipartMemory = MaxUploadSize
	RegisterRoutes(router, uc, store)

	body, contentType := buildMultipartBody(t, "live_image", pngBytes(t))
	req := httptest.NewRequest(http.MethodPost, "/verify", body)
	req.Header.Set("Content-Type", contentType)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", resp.Code)
	}
	parsed := decodeBody(t, resp)
	if parsed["status"] != "error" || parsed["message"] != "Live image not saved" {
		t.Errorf("unexpected body: %v", parsed)
	}

	matches, err := filepath.Glob(filepath.Join(parent, "*", "live_*"))
	if err != nil {
		t.Fatalf("failed to glob live captures: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected no leftover live captures, found %v", matches)
	}
}

func TestVerifyPromotionFailureReturnsErrorStatus(t *testing.T) {
	ts := newTestServer(t, fixedComparator{distance: 0.10}, 0.65, false)

	// Occupying the snapshot slot with a directory makes promotion fail
	// after the comparison already passed.
	if err := os.Mkdir(ts.store.SnapshotPath(), 0o755); err != nil {
		t.Fatalf("failed to occupy snapshot path: %v", err)
	}

	resp := ts.postVerify(t, pngBytes(t))

	// Orchestration failures keep HTTP 200 and report through the body.
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["status"] != "error" {
		t.Errorf("expected error status, got %v", body["status"])
	}
	message, ok := body["message"].(string)
	if !ok || message == "" {
		t.Errorf("expected a non-empty error message, got %v", body["message"])
	}
	if _, present := body["face_score"]; present {
		t.Error("error body must not carry verification fields")
	}
	if ts.liveCaptureCount(t) != 0 {
		t.Error("expected live capture temp file to be removed")
	}
}

func TestVerifyDualModeResponseShape(t *testing.T) {
	ts := newTestServer(t, fixedComparator{distance: 0.10}, 0.8, true)

	resp := ts.postVerify(t, pngBytes(t))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := decodeBody(t, resp)

	if body["aadhaar_score"] != 90.0 || body["bank_score"] != 90.0 || body["avg_score"] != 90.0 {
		t.Errorf("unexpected scores: %v", body)
	}
	if body["status"] != "success" {
		t.Errorf("expected success, got %v", body["status"])
	}
	if _, present := body["is_first_login"]; present {
		t.Error("dual mode response must not carry is_first_login")
	}
	details := body["verification_details"].(map[string]interface{})
	if details["aadhaar_verified"] != true || details["bank_verified"] != true {
		t.Errorf("unexpected details: %v", details)
	}
	if ts.store.SnapshotExists() {
		t.Error("dual mode must never write the snapshot")
	}
}

func TestResetEndpoint(t *testing.T) {
	ts := newTestServer(t, fixedComparator{distance: 0.30}, 0.65, false)
	if err := os.WriteFile(ts.store.SnapshotPath(), []byte("snapshot"), 0o644); err != nil {
		t.Fatalf("failed to seed snapshot: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/reset", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", resp.Code)
	}
	body := decodeBody(t, resp)
	if body["status"] != "success" || body["message"] != "Verification reset successful" {
		t.Errorf("unexpected body: %v", body)
	}
	if ts.store.SnapshotExists() {
		t.Error("expected snapshot to be deleted")
	}

	// Resetting again with no snapshot on disk still succeeds.
	resp = httptest.NewRecorder()
	ts.router.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/reset", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected idempotent reset, got %d", resp.Code)
	}

	verify := decodeBody(t, ts.postVerify(t, pngBytes(t)))
	if verify["is_first_login"] != true {
		t.Errorf("expected first login after reset, got %v", verify["is_first_login"])
	}
}

func TestResultNotFoundWhenHistoryDisabled(t *testing.T) {
	ts := newTestServer(t, fixedComparator{}, 0.65, false)

	req := httptest.NewRequest(http.MethodGet, "/result/some-id", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}

func TestMetricsSummaryNotFoundWhenHistoryDisabled(t *testing.T) {
	ts := newTestServer(t, fixedComparator{}, 0.65, false)

	req := httptest.NewRequest(http.MethodGet, "/metrics/summary", nil)
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", resp.Code)
	}
}
