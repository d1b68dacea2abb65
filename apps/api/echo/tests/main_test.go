package tests

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	. "github.com/examprep/examadmin/apps/api/echo"
	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/curriculum"
	inmemdb "github.com/examprep/examadmin/storage/database/inmem"
	"github.com/examprep/examadmin/tests"
)

func testConf() *core.Config {
	return &core.Config{
		Env:      "TEST",
		TestMode: true,
		Server:   core.ServerConfig{DisableReqLogs: true},
	}
}

// setup returns a server over a seeded in-memory database.
func setup(t *testing.T) (Server, curriculum.Repository) {
	db := inmemdb.Open()
	repo := inmemdb.NewCurriculumRepository(db)
	testutil.SeedCurriculum(t, repo)

	validate, translator := core.NewValidator()
	app := NewServer(Deps{
		Conf:          testConf(),
		Logger:        core.NopLogger{},
		CurriculumSvc: curriculum.NewService(repo, db),
		Validate:      validate,
		Translator:    translator,
	})
	return app, repo
}

type httpTest struct {
	name     string
	method   string
	path     string
	wantCode int
	wantData []byte
}

func newRequest(method, path string) (*http.Request, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, path, nil)
	return req, httptest.NewRecorder()
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
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
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

func success(t *testing.T, code int, data interface{}) []byte {
	return marchallObj(t, map[string]interface{}{"code": code, "message": "success", "data": data})
}

func failure(t *testing.T, code int, msg string, fields ...map[string]string) []byte {
	body := map[string]interface{}{"code": code, "message": msg}
	if len(fields) > 0 {
		body["data"] = fields[0]
	}
	return marchallObj(t, body)
}
