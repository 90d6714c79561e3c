package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/engage/apps/api/echo"
	"github.com/trezcool/engage/core"
	"github.com/trezcool/engage/core/activity"
	"github.com/trezcool/engage/core/cache"
	"github.com/trezcool/engage/core/completion"
	"github.com/trezcool/engage/core/dashboard"
	"github.com/trezcool/engage/core/optimistic"
	"github.com/trezcool/engage/core/rtcache"
	"github.com/trezcool/engage/core/submission"
	"github.com/trezcool/engage/storage/database/dummy"
	"github.com/trezcool/engage/storage/tree/memtree"
)

const secretKey = "test-secret"

var (
	t0 = time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)

	attendee = core.Actor{ID: "u1", Name: "Awe", Email: "awe@test.cd"}
	admin    = core.Actor{ID: "a1", Name: "Admin", Email: "admin@test.cd", Admin: true}

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}
)

type fixture struct {
	app  *Server
	tree *memtree.Tree
	repo activity.Repository
}

func setup(t *testing.T) fixture {
	t.Helper()
	db, err := dummydb.Open()
	require.NoError(t, err)
	db.SeedActivities(
		activity.Activity{ID: "T", Type: activity.TypeTask, Title: "Selfie with a speaker", Points: 10, CreatedAt: t0},
		activity.Activity{ID: "Q", Type: activity.TypeQuiz, Title: "Keynote quiz", Points: 5, CreatedAt: t0.Add(time.Minute)},
		activity.Activity{ID: "F", Type: activity.TypeForm, Title: "Feedback", Points: 2, CreatedAt: t0.Add(2 * time.Minute)},
	)
	repo := dummydb.NewActivityRepository(db)
	tree := memtree.New()
	persistent := cache.New("persistent", cache.NewMemoryStore())
	volatile := cache.New("volatile", cache.NewMemoryStore())
	loader := rtcache.NewLoader(tree, persistent, nil)

	coord := completion.NewCoordinator(completion.Deps{Repo: repo, Loader: loader, Volatile: volatile})
	hub := NewHub(nil)
	svc := submission.NewService(submission.Deps{
		Repo:        repo,
		Coordinator: coord,
		Loader:      loader,
		Volatile:    volatile,
		Views:       submission.NewViews(hub),
		Activities:  optimistic.NewTracker[activity.Activity](optimistic.WithExitDelay(0)),
		Submissions: optimistic.NewTracker[activity.Submission](optimistic.WithExitDelay(0)),
	})

	conf := &core.Config{
		TestMode: true,
		Server:   core.ServerConfig{SecretKey: secretKey},
	}
	app := NewServer(ServerDeps{
		Conf:          conf,
		Logger:        core.NopLogger{},
		Translator:    core.NewTranslator(),
		Coordinator:   coord,
		SubmissionSvc: svc,
		DashboardSvc:  dashboard.NewService(loader, repo),
		Hub:           hub,
	})
	return fixture{app: app, tree: tree, repo: repo}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func (f fixture) do(t *testing.T, tt httpTest) *httptest.ResponseRecorder {
	t.Helper()
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newAuthRequest(method, tt.path, tt.token, tt.body)
	f.app.ServeHTTP(rec, req)
	return rec
}

func (f fixture) run(t *testing.T, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func newAuthRequest(method, path, token string, data []byte) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, actor core.Actor) string {
	token, err := GenerateToken(secretKey, NewClaims(actor, time.Hour))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	wantCode := tt.wantCode
	if wantCode == 0 {
		wantCode = http.StatusOK
	}
	assert.Equal(t, wantCode, rec.Code, "code")
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func activityIDs(t *testing.T, rec *httptest.ResponseRecorder) []string {
	var acts []activity.Activity
	decode(t, rec, &acts)
	ids := make([]string, len(acts))
	for i, a := range acts {
		ids[i] = a.ID
	}
	return ids
}
