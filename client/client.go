// Package client is a typed Go consumer of the tombola HTTP API. It mirrors
// what the web frontend does: cached collections, optimistic mutations
// reconciled by wholesale refetch, and a debounced refresh bus instead of a
// push channel.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/apecharmilles/backend/core/account"
	"github.com/apecharmilles/backend/core/tombola"
)

// DefaultTimeout bounds every request; an elapsed timeout surfaces as
// ErrTimeout, distinct from a server rejection.
const DefaultTimeout = 10 * time.Second

type (
	Client struct {
		baseURL string
		token   string
		http    *http.Client
	}

	Option func(*Client)
)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken installs the bearer token obtained from Login or Register.
func (c *Client) SetToken(token string) { c.token = token }

// Auth

type AuthResult struct {
	Token   string          `json:"token"`
	Account account.Account `json:"account"`
}

func (c *Client) Register(ctx context.Context, email, password string) (AuthResult, error) {
	var res AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/register", map[string]string{
		"email": email, "password": password, "password_confirm": password,
	}, &res)
	if err == nil {
		c.token = res.Token
	}
	return res, err
}

func (c *Client) Login(ctx context.Context, email, password string) (AuthResult, error) {
	var res AuthResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password,
	}, &res)
	if err == nil {
		c.token = res.Token
	}
	return res, err
}

func (c *Client) Me(ctx context.Context) (account.Account, error) {
	var acct account.Account
	err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &acct)
	return acct, err
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": email}, nil)
}

func (c *Client) ResetPassword(ctx context.Context, uid, token, password string) error {
	return c.do(ctx, http.MethodPost, "/api/auth/reset-password", map[string]string{
		"uid": uid, "token": token, "password": password, "password_confirm": password,
	}, nil)
}

// Lots

func (c *Client) ListLots(ctx context.Context) ([]tombola.Lot, error) {
	var lots []tombola.Lot
	err := c.do(ctx, http.MethodGet, "/api/tombola/lots", nil, &lots)
	return lots, err
}

func (c *Client) CreateLot(ctx context.Context, nl tombola.NewLot) (string, error) {
	var res struct {
		ID string `json:"id"`
	}
	err := c.do(ctx, http.MethodPost, "/api/tombola/lots", nl, &res)
	return res.ID, err
}

func (c *Client) ReserveLot(ctx context.Context, lotID, reserverID string) error {
	return c.do(ctx, http.MethodPatch, "/api/tombola/lots/"+lotID+"/reserve",
		map[string]string{"reserver_id": reserverID}, nil)
}

func (c *Client) CancelReservation(ctx context.Context, lotID string) error {
	return c.do(ctx, http.MethodPost, "/api/tombola/lots/"+lotID+"/cancel-reservation", nil, nil)
}

func (c *Client) MarkRemis(ctx context.Context, lotID string) error {
	return c.do(ctx, http.MethodPost, "/api/tombola/lots/"+lotID+"/mark-remis", nil, nil)
}

func (c *Client) DeleteLot(ctx context.Context, lotID, parentID string) error {
	return c.do(ctx, http.MethodDelete, "/api/tombola/lots/"+lotID,
		map[string]string{"parent_id": parentID}, nil)
}

func (c *Client) ContactLink(ctx context.Context, lotID, senderName string) (tombola.ContactInfo, error) {
	var info tombola.ContactInfo
	path := "/api/tombola/contact-link/" + lotID + "?sender_name=" + url.QueryEscape(senderName)
	err := c.do(ctx, http.MethodGet, path, nil, &info)
	return info, err
}

// Participants

func (c *Client) ListParticipants(ctx context.Context) ([]tombola.Participant, error) {
	var participants []tombola.Participant
	err := c.do(ctx, http.MethodGet, "/api/tombola/participants", nil, &participants)
	return participants, err
}

func (c *Client) CreateParticipant(ctx context.Context, np tombola.NewParticipant) (tombola.Participant, error) {
	var p tombola.Participant
	err := c.do(ctx, http.MethodPost, "/api/tombola/participants", np, &p)
	return p, err
}

func (c *Client) DeleteParticipant(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/tombola/participants/"+id, nil, nil)
}

// do sends the request and decodes the {"data": ...} / {"error": ...}
// envelopes. out may be nil when the caller only cares about success.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "marshalling request body")
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		if isTimeout(err) {
			return ErrTimeout
		}
		return errors.Wrap(err, "sending request")
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		return decodeAPIError(res)
	}
	if out == nil || res.StatusCode == http.StatusNoContent {
		return nil
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return errors.Wrap(json.Unmarshal(envelope.Data, out), "decoding response data")
}

func isTimeout(err error) bool {
	if uErr, ok := err.(*url.Error); ok {
		if uErr.Timeout() || uErr.Err == context.DeadlineExceeded {
			return true
		}
	}
	return err == context.DeadlineExceeded
}

func decodeAPIError(res *http.Response) error {
	apiErr := &APIError{StatusCode: res.StatusCode}

	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.NewDecoder(res.Body).Decode(&envelope); err != nil || envelope.Error == nil {
		apiErr.Message = http.StatusText(res.StatusCode)
		return apiErr
	}

	// the error payload is either a message or a field map
	if err := json.Unmarshal(envelope.Error, &apiErr.Message); err != nil {
		_ = json.Unmarshal(envelope.Error, &apiErr.Fields)
		apiErr.Message = "validation failed"
	}
	return apiErr
}

// ErrTimeout reports a request aborted by the client-side deadline; the
// server may or may not have applied the mutation.
var ErrTimeout = errors.New("request timed out")

// APIError is a server rejection, carrying the HTTP status and the decoded
// {"error": ...} payload.
type APIError struct {
	StatusCode int
	Message    string
	Fields     map[string]string
}

func (e *APIError) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%d: %s %v", e.StatusCode, e.Message, e.Fields)
	}
	return fmt.Sprintf("%d: %s", e.StatusCode, e.Message)
}

func apiStatus(err error) int {
	if apiErr, ok := errors.Cause(err).(*APIError); ok {
		return apiErr.StatusCode
	}
	return 0
}

func IsValidation(err error) bool { return apiStatus(err) == http.StatusBadRequest }
func IsForbidden(err error) bool  { return apiStatus(err) == http.StatusForbidden }
func IsNotFound(err error) bool   { return apiStatus(err) == http.StatusNotFound }
func IsConflict(err error) bool   { return apiStatus(err) == http.StatusConflict }
func IsTimeout(err error) bool    { return errors.Cause(err) == ErrTimeout }
