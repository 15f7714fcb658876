package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apecharmilles/backend/core/newsletter"
	emailsvc "github.com/apecharmilles/backend/services/email"
	testutil "github.com/apecharmilles/backend/tests"
)

func Test_newsletterApi_subscribe(t *testing.T) {
	app := setup(t)

	t.Run("consent is required", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/newsletter/subscribe",
			marchallObj(t, map[string]interface{}{"email": "alex@test.fr", "consent": false}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("ok", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/newsletter/subscribe",
			marchallObj(t, map[string]interface{}{"first_name": "Alexandra", "email": "Alex@Test.fr", "consent": true}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"email":"alex@test.fr"`)
	})

	t.Run("unsubscribe", func(t *testing.T) {
		req, rec := newRequest(http.MethodPost, "/api/newsletter/unsubscribe",
			marchallObj(t, map[string]string{"email": "alex@test.fr"}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func Test_newsletterApi_admin(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateAccount(t, acctRepo, "admin@test.fr", "Secr3tStuff", true)
	parent := testutil.CreateAccount(t, acctRepo, "parent@test.fr", "Secr3tStuff", false)
	adminToken := getToken(t, admin)
	parentToken := getToken(t, parent)

	subscribe := func(t *testing.T, firstName, email string) {
		req, rec := newRequest(http.MethodPost, "/api/newsletter/subscribe",
			marchallObj(t, map[string]interface{}{"first_name": firstName, "email": email, "consent": true}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
	subscribe(t, "Alexandra", "alex@test.fr")
	subscribe(t, "Benoît", "ben@test.fr")

	t.Run("admin endpoints refuse plain accounts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/newsletter", parentToken)
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	var nlID string
	t.Run("create draft", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/newsletter", adminToken,
			marchallObj(t, map[string]string{
				"title":   "Rentrée 2026",
				"subject": "Les nouvelles de la rentrée",
				"content": "<p>La <strong>tombola</strong> revient !</p>",
			}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		var resp struct {
			Data newsletter.Newsletter `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, newsletter.StatusDraft, resp.Data.Status)
		nlID = resp.Data.ID
	})

	t.Run("send to active subscribers", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/newsletter/"+nlID+"/send", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var resp struct {
			Data newsletter.Newsletter `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, newsletter.StatusSent, resp.Data.Status)
		assert.Equal(t, 2, resp.Data.RecipientsCount)
		assert.Len(t, emailsvc.SentMessages, 2)
	})

	t.Run("second send conflicts", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/api/newsletter/"+nlID+"/send", adminToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, httpTest{
			wantCode: http.StatusConflict,
			wantData: marchallErr(t, newsletter.ErrAlreadySent.Error()),
		}, rec)
	})

	t.Run("sent newsletter is immutable", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/api/newsletter/"+nlID, adminToken,
			marchallObj(t, map[string]string{"title": "x", "subject": "x", "content": "x"}))
		app.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("subscriber management", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/newsletter/subscribers", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp struct {
			Data []newsletter.Subscriber `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Data, 2)

		// deactivate one
		req, rec = newAuthRequest(http.MethodPatch, "/api/newsletter/subscribers/"+resp.Data[0].ID, adminToken,
			marchallObj(t, map[string]bool{"is_active": false}))
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, rec.Body.String(), `"is_active":false`)
	})

	t.Run("csv export", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/api/newsletter/subscribers/export", adminToken)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
		assert.Contains(t, rec.Body.String(), "email,prenom,consentement,actif,inscrit_le")
		assert.Contains(t, rec.Body.String(), "alex@test.fr")
	})
}
