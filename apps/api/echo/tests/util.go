package tests

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	. "github.com/apecharmilles/backend/apps/api/echo"
	"github.com/apecharmilles/backend/core"
	"github.com/apecharmilles/backend/core/account"
	"github.com/apecharmilles/backend/core/newsletter"
	"github.com/apecharmilles/backend/core/tombola"
	emailsvc "github.com/apecharmilles/backend/services/email"
	logsvc "github.com/apecharmilles/backend/services/logger"
	inmemdb "github.com/apecharmilles/backend/storage/database/inmem"
)

var (
	acctRepo    account.Repository
	tombolaRepo tombola.Repository
	newsRepo    newsletter.Repository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func setup(t *testing.T) Server {
	// set up DB & repos
	db := inmemdb.NewDB()
	acctRepo = inmemdb.NewAccountRepository(db)
	tombolaRepo = inmemdb.NewTombolaRepository(db)
	newsRepo = inmemdb.NewNewsletterRepository(db)

	// set up services
	emailsvc.ClearSentMessages()
	mailSvc := emailsvc.NewConsoleServiceMock()
	acctSvc := account.NewServiceMock(acctRepo, mailSvc)
	tombolaSvc := tombola.NewService(tombolaRepo, core.Conf.Tombola)
	newsSvc := newsletter.NewService(newsRepo, mailSvc)

	logger := logsvc.NewRollbarLogger(log.New(ioutil.Discard, "", 0), core.Conf)
	logger.Enable(false)

	// set up server
	return NewServer(
		&Options{
			DisableReqLogs: true,
			AccountSvc:     acctSvc,
			TombolaSvc:     tombolaSvc,
			NewsletterSvc:  newsSvc,
			Logger:         logger,
			SignalShutdown: func() {},
		},
	)
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
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

func getToken(t *testing.T, acct account.Account) string {
	claims := GetAccountClaims(acct)
	token, err := GenerateToken(claims)
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

// marchallData wraps obj in the success envelope before marshalling.
func marchallData(t *testing.T, obj interface{}) []byte {
	return marchallObj(t, map[string]interface{}{"data": obj})
}

func marchallErr(t *testing.T, msg interface{}) []byte {
	return marchallObj(t, map[string]interface{}{"error": msg})
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ObjectsAreEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
