package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"

	. "github.com/trezcool/ecolage/apps/api/echo"
	"github.com/trezcool/ecolage/core"
	"github.com/trezcool/ecolage/core/student"
	"github.com/trezcool/ecolage/core/tuition"
	inmemdb "github.com/trezcool/ecolage/storage/database/inmem"
	testutil "github.com/trezcool/ecolage/tests"
)

const unit = "matriz"

type fixture struct {
	app      *Server
	svc      *tuition.Service
	repo     *inmemdb.InstallmentRepository
	students *inmemdb.StudentRepository
}

func setup(t *testing.T) fixture {
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open(): %v", err)
	}
	repo := inmemdb.NewInstallmentRepository(db)
	students := inmemdb.NewStudentRepository(db)

	conf := &core.Config{AppName: "Ecolage", TestMode: true}
	conf.Server.DisableReqLogs = true

	validate := core.NewValidator()
	svc, err := tuition.NewService(repo, students, validate, testutil.NopLogger{}, tuition.Options{})
	if err != nil {
		t.Fatalf("tuition.NewService(): %v", err)
	}

	app := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     testutil.NopLogger{},
		Validator:  validate,
		TuitionSvc: svc,
	})
	return fixture{app: app, svc: svc, repo: repo, students: students}
}

func (f fixture) addStudent(name string) student.Student {
	return f.students.AddStudent(student.Student{
		Unit:                unit,
		Name:                name,
		DefaultMonthlyValue: decimal.NewFromInt(450),
		IsActive:            true,
	})
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	wantCode int
	wantData []byte
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	return req, rec
}

func (f fixture) do(tt httpTest) *httptest.ResponseRecorder {
	method := tt.method
	if method == "" {
		method = http.MethodGet
	}
	req, rec := newRequest(method, tt.path, tt.body)
	f.app.ServeHTTP(rec, req)
	return rec
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
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

func checkCode(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
	}
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	checkCode(t, tt, rec)
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
