package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/examprep/examadmin/apps/api/echo"
	"github.com/examprep/examadmin/core"
	"github.com/examprep/examadmin/core/catalog"
	"github.com/examprep/examadmin/core/curriculum"
	inmemdb "github.com/examprep/examadmin/storage/database/inmem"
)

func TestCurriculumAPI_gradesSubjects(t *testing.T) {
	app, _ := setup(t)
	req, rec := newRequest(http.MethodGet, "/admin/gradesSubjects")
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Code int              `json:"code"`
		Data catalog.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusOK, body.Code)
	assert.Len(t, body.Data.Subjects, 4)
	if assert.Len(t, body.Data.SubjectsOfGrades, 4) {
		g := body.Data.SubjectsOfGrades[2]
		assert.Equal(t, "3", g.ID)
		assert.Equal(t, []catalog.Subject{{ID: "6", Name: "Toán"}, {ID: "5", Name: "Sinh học"}}, g.Subjects)
	}
}

func TestCurriculumAPI_listSubjectsOfGrades(t *testing.T) {
	app, _ := setup(t)
	req, rec := newRequest(http.MethodGet, "/admin/listSubjectsOfGrades")
	app.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Data []catalog.GradeWithSubjects `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	ids := make([]string, 0, len(body.Data))
	for _, g := range body.Data {
		ids = append(ids, g.ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids)
}

func TestCurriculumAPI_create(t *testing.T) {
	app, repo := setup(t)
	ctx := context.Background()

	req, rec := newRequest(http.MethodPost, "/admin/createGrade?name=Kh%E1%BB%91i+9")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var grade struct {
		Data catalog.Grade `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &grade))
	assert.Equal(t, "Khối 9", grade.Data.Name)
	if got, err := repo.GetGrade(ctx, grade.Data.ID); assert.NoError(t, err) {
		assert.Equal(t, grade.Data, got)
	}

	req, rec = newRequest(http.MethodPost, "/admin/createSubject?name=H%C3%B3a")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)
	var subject struct {
		Data catalog.Subject `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subject))
	assert.Equal(t, "Hóa", subject.Data.Name)
	assert.NotEqual(t, grade.Data.ID, subject.Data.ID)
}

func TestCurriculumAPI(t *testing.T) {
	required := map[string]string{"name": "this field is required"}
	blank := map[string]string{"name": "name cannot be blank"}
	missingIDs := map[string]string{"subjectId": "this field is required", "gradeId": "this field is required"}

	tests := []httpTest{
		{
			name:     "create grade without name",
			method:   http.MethodPost,
			path:     "/admin/createGrade",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "rename grade",
			method:   http.MethodPut,
			path:     "/admin/updateGrade/2?name=L%E1%BB%9Bp+10",
			wantCode: http.StatusOK,
		},
		{
			name:     "rename grade with a blank name",
			method:   http.MethodPut,
			path:     "/admin/updateGrade/2?name=+++",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "rename default grade",
			method:   http.MethodPut,
			path:     "/admin/updateGrade/1?name=x",
			wantCode: http.StatusForbidden,
		},
		{
			name:     "rename unknown subject",
			method:   http.MethodPut,
			path:     "/admin/updateSubject/99?name=x",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "delete grade",
			method:   http.MethodDelete,
			path:     "/admin/deleteGrade/3",
			wantCode: http.StatusOK,
		},
		{
			name:     "delete default subject",
			method:   http.MethodDelete,
			path:     "/admin/deleteSubject/1",
			wantCode: http.StatusForbidden,
		},
		{
			name:     "delete subject",
			method:   http.MethodDelete,
			path:     "/admin/deleteSubject/5",
			wantCode: http.StatusOK,
		},
		{
			name:     "assign",
			method:   http.MethodPost,
			path:     "/admin/assignSubjectToGrade?subjectId=7&gradeId=2",
			wantCode: http.StatusOK,
		},
		{
			name:     "assign twice",
			method:   http.MethodPost,
			path:     "/admin/assignSubjectToGrade?subjectId=6&gradeId=3",
			wantCode: http.StatusConflict,
		},
		{
			name:     "assign without ids",
			method:   http.MethodPost,
			path:     "/admin/assignSubjectToGrade",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "assign to default grade",
			method:   http.MethodPost,
			path:     "/admin/assignSubjectToGrade?subjectId=6&gradeId=1",
			wantCode: http.StatusForbidden,
		},
		{
			name:     "remove subject",
			method:   http.MethodDelete,
			path:     "/admin/removeSubjectFromGrade?subjectId=6&gradeId=3",
			wantCode: http.StatusOK,
		},
		{
			name:     "remove non-member",
			method:   http.MethodDelete,
			path:     "/admin/removeSubjectFromGrade?subjectId=7&gradeId=3",
			wantCode: http.StatusOK,
		},
		{
			name:     "remove from unknown grade",
			method:   http.MethodDelete,
			path:     "/admin/removeSubjectFromGrade?subjectId=7&gradeId=99",
			wantCode: http.StatusNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app, _ := setup(t)
			switch tt.name {
			case "create grade without name":
				tt.wantData = failure(t, tt.wantCode, "invalid input", required)
			case "rename grade with a blank name":
				tt.wantData = failure(t, tt.wantCode, "invalid input", blank)
			case "assign without ids":
				tt.wantData = failure(t, tt.wantCode, "invalid input", missingIDs)
			case "rename default grade", "delete default subject", "assign to default grade":
				tt.wantData = failure(t, tt.wantCode, curriculum.ErrDefaultEntity.Error())
			case "assign twice":
				tt.wantData = failure(t, tt.wantCode, curriculum.ErrAlreadyAssigned.Error())
			case "rename unknown subject":
				tt.wantData = failure(t, tt.wantCode, curriculum.ErrSubjectNotFound.Error())
			case "remove from unknown grade":
				tt.wantData = failure(t, tt.wantCode, curriculum.ErrGradeNotFound.Error())
			default:
				tt.wantData = success(t, tt.wantCode, true)
			}

			req, rec := newRequest(tt.method, tt.path)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func TestCurriculumAPI_renamePropagates(t *testing.T) {
	app, _ := setup(t)

	req, rec := newRequest(http.MethodPut, "/admin/updateSubject/5?name=Sinh")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req, rec = newRequest(http.MethodGet, "/admin/gradesSubjects")
	app.ServeHTTP(rec, req)
	var body struct {
		Data catalog.Snapshot `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	for _, g := range body.Data.SubjectsOfGrades {
		for _, s := range g.Subjects {
			if s.ID == "5" {
				assert.Equal(t, "Sinh", s.Name, "grade %s", g.ID)
			}
		}
	}
}

func TestMetrics(t *testing.T) {
	app, _ := setup(t)

	req, rec := newRequest(http.MethodGet, "/admin/gradesSubjects")
	app.ServeHTTP(rec, req)
	req, rec = newRequest(http.MethodPut, "/admin/updateGrade/1?name=x")
	app.ServeHTTP(rec, req)

	req, rec = newRequest(http.MethodGet, "/metrics")
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	out := rec.Body.String()
	assert.True(t, strings.Contains(out, `examadmin_http_requests_total{code="200",method="GET",path="/admin/gradesSubjects"} 1`), out)
	assert.True(t, strings.Contains(out, `examadmin_http_requests_total{code="403",method="PUT",path="/admin/updateGrade/:id"} 1`), out)
}

type downTransactor struct{}

func (downTransactor) InTx(context.Context, func(core.DBExecutor) error) error {
	return core.NewShutdownError("database unavailable")
}

func TestCurriculumAPI_shutdownOnUnavailableDatabase(t *testing.T) {
	db := inmemdb.Open()
	app := NewServer(Deps{
		Conf:          testConf(),
		CurriculumSvc: curriculum.NewService(inmemdb.NewCurriculumRepository(db), downTransactor{}),
	})

	req, rec := newRequest(http.MethodGet, "/admin/gradesSubjects")
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	select {
	case <-app.ShutdownSignal():
	default:
		t.Errorf("shutdown not signalled")
	}
}
