package server_test

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/f-sync/socialpulse/internal/analysis"
	"github.com/f-sync/socialpulse/internal/features"
	"github.com/f-sync/socialpulse/internal/server"
	"github.com/f-sync/socialpulse/internal/service"
	"github.com/f-sync/socialpulse/internal/snapshots"
)

const (
	followersABCFixture = `[{"string_list_data":[{"value":"A"}]},{"string_list_data":[{"value":"B"}]},{"string_list_data":[{"value":"C"}]}]`
	followersACFixture  = `[{"string_list_data":[{"value":"A"}]},{"string_list_data":[{"value":"C"}]}]`
	followingFixture    = `{"relationships_following":[{"string_list_data":[{"value":"B"}]},{"string_list_data":[{"value":"C"}]},{"string_list_data":[{"value":"D"}]}]}`
	closeFriendsFixture = `{"relationships_close_friends":[{"string_list_data":[{"value":"B"}]},{"string_list_data":[{"value":"E"}]}]}`
)

type uploadPart struct {
	fileName string
	contents []byte
}

type errorResponse struct {
	Error string `json:"error"`
}

func premiumGate() features.StaticGate {
	return features.StaticGate{
		features.BlockDetection:       true,
		features.HistoricalComparison: true,
		features.AlertNotifications:   true,
	}
}

func newTestRouter(t *testing.T, gate features.Gate) *gin.Engine {
	t.Helper()
	current := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
	pipeline := service.New(service.Dependencies{
		Store: snapshots.NewMemoryStore(snapshots.WithClock(clock)),
		Gate:  gate,
	})
	router, err := server.NewRouter(server.RouterConfig{Service: pipeline})
	if err != nil {
		t.Fatalf("NewRouter returned error: %v", err)
	}
	return router
}

func serve(router *gin.Engine, request *http.Request) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func analyzeFixtures(t *testing.T, router *gin.Engine, label string, followers string) service.Outcome {
	t.Helper()
	recorder := serve(router, newUploadRequest(t, label,
		uploadPart{fileName: "followers_1.json", contents: []byte(followers)},
		uploadPart{fileName: "following.json", contents: []byte(followingFixture)},
		uploadPart{fileName: "close_friends.json", contents: []byte(closeFriendsFixture)},
	))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var outcome service.Outcome
	decodeBody(t, recorder, &outcome)
	return outcome
}

func TestHealthStatus(t *testing.T) {
	router := newTestRouter(t, nil)
	recorder := serve(router, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	var body map[string]string
	decodeBody(t, recorder, &body)
	if body["status"] != "ok" {
		t.Fatalf("unexpected health body %v", body)
	}
}

func TestAnalyzeUploadedFiles(t *testing.T) {
	router := newTestRouter(t, nil)
	outcome := analyzeFixtures(t, router, "first", followersABCFixture)

	if outcome.SnapshotID == "" {
		t.Fatalf("expected a snapshot id")
	}
	stats := outcome.Analysis.Stats
	if stats.TotalFollowers != 3 || stats.TotalFollowing != 3 || stats.MutualCount != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(outcome.Analysis.Relationships.RedFlags) != 1 || outcome.Analysis.Relationships.RedFlags[0].Username != "E" {
		t.Fatalf("unexpected red flags %+v", outcome.Analysis.Relationships.RedFlags)
	}

	recorder := serve(router, httptest.NewRequest(http.MethodGet, "/api/snapshots/latest", nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	var latest analysis.Snapshot
	decodeBody(t, recorder, &latest)
	if latest.ID != outcome.SnapshotID || latest.Label != "first" {
		t.Fatalf("latest snapshot %s %q, want %s", latest.ID, latest.Label, outcome.SnapshotID)
	}
}

func TestAnalyzeUploadedArchive(t *testing.T) {
	router := newTestRouter(t, nil)
	archivePath := createArchive(t, map[string]string{
		"connections/followers_and_following/followers_1.json": followersABCFixture,
		"connections/followers_and_following/following.json":   followingFixture,
	})
	archive, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	recorder := serve(router, newUploadRequest(t, "", uploadPart{fileName: filepath.Base(archivePath), contents: archive}))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, recorder.Code, recorder.Body.String())
	}
	var outcome service.Outcome
	decodeBody(t, recorder, &outcome)
	if outcome.Analysis.Stats.MutualCount != 2 {
		t.Fatalf("unexpected stats %+v", outcome.Analysis.Stats)
	}
}

func TestAnalyzeRejectsBadUploads(t *testing.T) {
	testCases := []struct {
		name               string
		request            func(t *testing.T) *http.Request
		expectedStatusCode int
	}{
		{
			name: "missing files",
			request: func(t *testing.T) *http.Request {
				return newUploadRequest(t, "label only")
			},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name: "not multipart",
			request: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/api/analyze", bytes.NewBufferString("{}"))
			},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name: "invalid zip",
			request: func(t *testing.T) *http.Request {
				return newUploadRequest(t, "", uploadPart{fileName: "export.zip", contents: []byte("not a zip")})
			},
			expectedStatusCode: http.StatusBadRequest,
		},
		{
			name: "no recognized category",
			request: func(t *testing.T) *http.Request {
				return newUploadRequest(t, "", uploadPart{fileName: "ads_interests.json", contents: []byte(`{"topics":[]}`)})
			},
			expectedStatusCode: http.StatusUnprocessableEntity,
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			router := newTestRouter(t, nil)
			recorder := serve(router, testCase.request(t))
			if recorder.Code != testCase.expectedStatusCode {
				t.Fatalf("expected status %d, got %d: %s", testCase.expectedStatusCode, recorder.Code, recorder.Body.String())
			}
			var body errorResponse
			decodeBody(t, recorder, &body)
			if body.Error == "" {
				t.Fatalf("expected an error message")
			}
			listing := serve(router, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
			var summaries []snapshots.Summary
			decodeBody(t, listing, &summaries)
			if len(summaries) != 0 {
				t.Fatalf("rejected uploads must not be saved")
			}
		})
	}
}

func TestAnalyzeEnforcesUploadLimits(t *testing.T) {
	const (
		uploadLimit = 2048
		entryLimit  = 1024
	)
	oversizedJSON := bytes.Repeat([]byte(" "), 4*uploadLimit)
	archivePath := createArchive(t, map[string]string{
		"followers_1.json": string(bytes.Repeat([]byte(" "), 64*entryLimit)),
	})
	compressedArchive, err := os.ReadFile(archivePath)
	if err != nil {
		t.Fatalf("read archive: %v", err)
	}
	if len(compressedArchive) >= uploadLimit {
		t.Fatalf("archive fixture is %d bytes, want it under the upload limit", len(compressedArchive))
	}

	testCases := []struct {
		name    string
		request func(t *testing.T) *http.Request
	}{
		{
			name: "declared body above the limit",
			request: func(t *testing.T) *http.Request {
				return newUploadRequest(t, "", uploadPart{fileName: "followers_1.json", contents: oversizedJSON})
			},
		},
		{
			name: "streamed body above the limit",
			request: func(t *testing.T) *http.Request {
				request := newUploadRequest(t, "", uploadPart{fileName: "followers_1.json", contents: oversizedJSON})
				request.ContentLength = -1
				return request
			},
		},
		{
			name: "archive entry above the limit",
			request: func(t *testing.T) *http.Request {
				return newUploadRequest(t, "", uploadPart{fileName: "export.zip", contents: compressedArchive})
			},
		},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			pipeline := service.New(service.Dependencies{})
			router, err := server.NewRouter(server.RouterConfig{
				Service:              pipeline,
				MaxUploadBytes:       uploadLimit,
				MaxArchiveEntryBytes: entryLimit,
			})
			if err != nil {
				t.Fatalf("NewRouter returned error: %v", err)
			}
			recorder := serve(router, testCase.request(t))
			if recorder.Code != http.StatusRequestEntityTooLarge {
				t.Fatalf("expected status %d, got %d: %s", http.StatusRequestEntityTooLarge, recorder.Code, recorder.Body.String())
			}
			history, err := pipeline.Store().List(context.Background())
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(history) != 0 {
				t.Fatalf("oversized uploads must not be saved")
			}
		})
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	router := newTestRouter(t, nil)
	first := analyzeFixtures(t, router, "first", followersABCFixture)
	second := analyzeFixtures(t, router, "second", followersACFixture)

	recorder := serve(router, httptest.NewRequest(http.MethodGet, "/api/snapshots", nil))
	var summaries []snapshots.Summary
	decodeBody(t, recorder, &summaries)
	if len(summaries) != 2 || summaries[0].ID != second.SnapshotID || summaries[1].ID != first.SnapshotID {
		t.Fatalf("unexpected summaries %+v", summaries)
	}
	if summaries[1].TotalFollowers != 3 || summaries[0].Label != "second" {
		t.Fatalf("unexpected summary content %+v", summaries)
	}

	recorder = serve(router, httptest.NewRequest(http.MethodGet, "/api/snapshots/"+first.SnapshotID, nil))
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, recorder.Code)
	}
	var snapshot analysis.Snapshot
	decodeBody(t, recorder, &snapshot)
	if snapshot.Analysis.Stats.TotalFollowers != 3 {
		t.Fatalf("unexpected snapshot %+v", snapshot.Analysis.Stats)
	}

	recorder = serve(router, httptest.NewRequest(http.MethodDelete, "/api/snapshots/"+first.SnapshotID, nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	recorder = serve(router, httptest.NewRequest(http.MethodGet, "/api/snapshots/"+first.SnapshotID, nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
	recorder = serve(router, httptest.NewRequest(http.MethodDelete, "/api/snapshots/"+first.SnapshotID, nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}

	recorder = serve(router, httptest.NewRequest(http.MethodDelete, "/api/snapshots", nil))
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}
	recorder = serve(router, httptest.NewRequest(http.MethodGet, "/api/snapshots/latest", nil))
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected status %d, got %d", http.StatusNotFound, recorder.Code)
	}
}

func TestCompareEndpoint(t *testing.T) {
	premiumRouter := newTestRouter(t, premiumGate())
	first := analyzeFixtures(t, premiumRouter, "", followersABCFixture)
	second := analyzeFixtures(t, premiumRouter, "", followersACFixture)

	if second.Comparison == nil || len(second.Comparison.LostFollowers) != 1 {
		t.Fatalf("analysis with history should carry a comparison, got %+v", second.Comparison)
	}
	if len(second.Analysis.Relationships.Suspicious) != 1 || second.Analysis.Relationships.Suspicious[0].Username != "B" {
		t.Fatalf("unexpected suspicious %+v", second.Analysis.Relationships.Suspicious)
	}

	testCases := []struct {
		name               string
		router             *gin.Engine
		target             string
		expectedStatusCode int
	}{
		{name: "explicit ids", router: premiumRouter, target: "/api/compare?previous=" + first.SnapshotID + "&current=" + second.SnapshotID, expectedStatusCode: http.StatusOK},
		{name: "latest pair", router: premiumRouter, target: "/api/compare", expectedStatusCode: http.StatusOK},
		{name: "unknown id", router: premiumRouter, target: "/api/compare?previous=missing&current=" + second.SnapshotID, expectedStatusCode: http.StatusNotFound},
		{name: "one id only", router: premiumRouter, target: "/api/compare?previous=" + first.SnapshotID, expectedStatusCode: http.StatusBadRequest},
		{name: "feature disabled", router: newTestRouter(t, nil), target: "/api/compare?previous=a&current=b", expectedStatusCode: http.StatusForbidden},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			recorder := serve(testCase.router, httptest.NewRequest(http.MethodGet, testCase.target, nil))
			if recorder.Code != testCase.expectedStatusCode {
				t.Fatalf("expected status %d, got %d: %s", testCase.expectedStatusCode, recorder.Code, recorder.Body.String())
			}
			if recorder.Code != http.StatusOK {
				return
			}
			var comparison analysis.Comparison
			decodeBody(t, recorder, &comparison)
			if comparison.PreviousID != first.SnapshotID || comparison.CurrentID != second.SnapshotID {
				t.Fatalf("compared %s→%s", comparison.PreviousID, comparison.CurrentID)
			}
			if len(comparison.PossibleBlocks) != 1 || comparison.PossibleBlocks[0].Username != "B" {
				t.Fatalf("unexpected possible blocks %+v", comparison.PossibleBlocks)
			}
			if len(comparison.Timeline) != 2 {
				t.Fatalf("unexpected timeline %+v", comparison.Timeline)
			}
		})
	}
}

func TestFeaturesEndpoint(t *testing.T) {
	router := newTestRouter(t, features.StaticGate{features.BlockDetection: true})
	recorder := serve(router, httptest.NewRequest(http.MethodGet, "/api/features", nil))
	var states map[string]bool
	decodeBody(t, recorder, &states)
	expected := map[string]bool{
		features.BlockDetection:       true,
		features.HistoricalComparison: false,
		features.AlertNotifications:   false,
	}
	if len(states) != len(expected) {
		t.Fatalf("states = %v, want %v", states, expected)
	}
	for key, enabled := range expected {
		if states[key] != enabled {
			t.Fatalf("states = %v, want %v", states, expected)
		}
	}
}

func newUploadRequest(t *testing.T, label string, parts ...uploadPart) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, part := range parts {
		formFile, err := writer.CreateFormFile("files", part.fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := formFile.Write(part.contents); err != nil {
			t.Fatalf("write form file: %v", err)
		}
	}
	if label != "" {
		if err := writer.WriteField("label", label); err != nil {
			t.Fatalf("write label: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	request := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	request.Header.Set("Content-Type", writer.FormDataContentType())
	return request
}

func createArchive(t *testing.T, files map[string]string) string {
	t.Helper()
	tempDir := t.TempDir()
	archivePath := filepath.Join(tempDir, "archive.zip")

	file, err := os.Create(archivePath)
	if err != nil {
		t.Fatalf("create archive: %v", err)
	}
	defer file.Close()

	writer := zip.NewWriter(file)
	for name, content := range files {
		entry, err := writer.Create(name)
		if err != nil {
			t.Fatalf("create entry: %v", err)
		}
		if _, err := entry.Write([]byte(content)); err != nil {
			t.Fatalf("write entry: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close archive writer: %v", err)
	}
	return archivePath
}
