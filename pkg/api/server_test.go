package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/postbox-io/postbox/pkg/authz"
	"github.com/postbox-io/postbox/pkg/identity"
	"github.com/postbox-io/postbox/pkg/observability"
	"github.com/postbox-io/postbox/pkg/service"
	"github.com/postbox-io/postbox/pkg/storage/postgres"
)

const webhookSecret = "test-webhook-secret"

// stubGateway allows everything unless a tuple is denied.
type stubGateway struct {
	denied  map[string]bool
	checked []authz.Tuple
	created []authz.Tuple
	deleted []authz.Tuple
}

func newStubGateway() *stubGateway {
	return &stubGateway{denied: map[string]bool{}}
}

func (g *stubGateway) CreatePerms(ctx context.Context, tuples []authz.Tuple) error {
	g.created = append(g.created, tuples...)
	return nil
}

func (g *stubGateway) CheckSinglePerm(ctx context.Context, tuple authz.Tuple) (bool, error) {
	g.checked = append(g.checked, tuple)
	return !g.denied[tuple.String()], nil
}

func (g *stubGateway) CheckPerms(ctx context.Context, tuples []authz.Tuple) (bool, error) {
	for _, tuple := range tuples {
		if allowed, err := g.CheckSinglePerm(ctx, tuple); err != nil || !allowed {
			return false, err
		}
	}
	return true, nil
}

func (g *stubGateway) DeletePerms(ctx context.Context, tuples []authz.Tuple) error {
	g.deleted = append(g.deleted, tuples...)
	return nil
}

var _ authz.Gateway = (*stubGateway)(nil)

// principalVerifier maps raw tokens to principals or errors.
type principalVerifier struct {
	principals map[string]*identity.Principal
	errs       map[string]error
}

func (v *principalVerifier) VerifyToken(ctx context.Context, rawToken string) (*identity.Principal, error) {
	if err, ok := v.errs[rawToken]; ok {
		return nil, err
	}
	if p, ok := v.principals[rawToken]; ok {
		return p, nil
	}
	return nil, identity.ErrTokenExpired
}

type stubCerts struct {
	doc json.RawMessage
	err error
}

func (c *stubCerts) Certs(ctx context.Context) (json.RawMessage, error) {
	return c.doc, c.err
}

type testEnvelope struct {
	Data    []map[string]interface{} `json:"data"`
	Count   *int64                   `json:"count"`
	Message Message                  `json:"message"`
}

type apiFixture struct {
	server   *Server
	mock     sqlmock.Sqlmock
	gateway  *stubGateway
	verifier *principalVerifier
	certs    *stubCerts
	done     func()
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	store := postgres.NewDB(db)

	gateway := newStubGateway()
	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(prometheus.NewRegistry())

	verifier := &principalVerifier{
		principals: map[string]*identity.Principal{},
		errs:       map[string]error{},
	}
	certs := &stubCerts{doc: json.RawMessage(`{"keys":[]}`)}

	posts := service.NewPostService(store, gateway, logger, metrics)
	comments := service.NewCommentService(store, gateway, logger, metrics)
	syncService := service.NewSyncService(store, gateway, []byte(webhookSecret), nil, logger, metrics)

	server := NewServer(
		Config{ListenAddr: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second},
		posts, comments, syncService,
		verifier, certs, store, nil, logger, metrics,
	)
	return &apiFixture{
		server:   server,
		mock:     mock,
		gateway:  gateway,
		verifier: verifier,
		certs:    certs,
		done:     func() { db.Close() },
	}
}

func (f *apiFixture) authorize(token, subjectID string) {
	f.verifier.principals[token] = &identity.Principal{SubjectID: subjectID, Username: "tester"}
}

func (f *apiFixture) do(t *testing.T, method, target, token string, body string) (*httptest.ResponseRecorder, testEnvelope) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	var envelope testEnvelope
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		_ = json.Unmarshal(rec.Body.Bytes(), &envelope)
	}
	return rec, envelope
}

func expectActorLookup(mock sqlmock.Sqlmock, actorID string) {
	mock.ExpectQuery("SELECT id, username, metadata, is_active, created_at, updated_at").
		WithArgs(actorID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "username", "metadata", "is_active", "created_at", "updated_at"}).
			AddRow(actorID, "tester", nil, true, time.Now().UTC(), nil))
}

func TestServerRejectsMissingToken(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()

	rec, envelope := f.do(t, http.MethodGet, "/v1/posts", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "E003", envelope.Message.MsgCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestServerRejectsExpiredToken(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	f.verifier.errs["stale"] = identity.ErrTokenExpired

	rec, envelope := f.do(t, http.MethodGet, "/v1/posts", "stale", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "E005", envelope.Message.MsgCode)
}

func TestServerRejectsInvalidToken(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	f.verifier.errs["garbage"] = assert.AnError

	rec, envelope := f.do(t, http.MethodGet, "/v1/posts", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "E004", envelope.Message.MsgCode)
}

// The post owner always comes from the verified token; an owner_id in the
// request body is ignored.
func TestCreatePostOwnerComesFromToken(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	subjectID := uuid.New().String()
	f.authorize("good", subjectID)

	f.mock.ExpectBegin()
	expectActorLookup(f.mock, subjectID)
	f.mock.ExpectQuery("INSERT INTO posts").
		WithArgs(sqlmock.AnyArg(), "hello", subjectID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	f.mock.ExpectCommit()

	body := `{"text_content":"hello","owner_id":"` + uuid.New().String() + `"}`
	rec, envelope := f.do(t, http.MethodPost, "/v1/posts", "good", body)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "S101", envelope.Message.MsgCode)
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, subjectID, envelope.Data[0]["owner_id"])
	require.NotNil(t, envelope.Count)
	assert.Equal(t, int64(1), *envelope.Count)

	require.Len(t, f.gateway.created, 1)
	assert.Equal(t, authz.RelationIsOwner, f.gateway.created[0].Relation)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreatePostMalformedBody(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	f.authorize("good", uuid.New().String())

	rec, envelope := f.do(t, http.MethodPost, "/v1/posts", "good", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "E002", envelope.Message.MsgCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestGetPostInvalidID(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	f.authorize("good", uuid.New().String())

	rec, envelope := f.do(t, http.MethodGet, "/v1/posts/not-a-uuid", "good", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "E002", envelope.Message.MsgCode)
}

func TestGetPostNotFound(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	f.authorize("good", uuid.New().String())
	postID := uuid.New()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery("SELECT id, text_content, owner_id, created_at, updated_at").
		WithArgs(postID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "owner_id", "created_at", "updated_at"}))
	f.mock.ExpectCommit()

	rec, envelope := f.do(t, http.MethodGet, "/v1/posts/"+postID.String(), "good", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "E007", envelope.Message.MsgCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestListPostsReturnsCount(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	subjectID := uuid.New().String()
	f.authorize("good", subjectID)
	now := time.Now().UTC()

	f.mock.ExpectBegin()
	f.mock.ExpectQuery(`SELECT COUNT\(id\) FROM posts`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(int64(2)))
	f.mock.ExpectQuery(`SELECT id, text_content, owner_id, created_at, updated_at FROM posts ORDER BY created_at ASC OFFSET \$1 LIMIT \$2`).
		WithArgs(0, 5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "owner_id", "created_at", "updated_at"}).
			AddRow(uuid.New(), "first", subjectID, now, nil).
			AddRow(uuid.New(), "second", subjectID, now, nil))
	f.mock.ExpectCommit()

	rec, envelope := f.do(t, http.MethodGet, "/v1/posts?limit=5&sort_order=ASC", "good", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "S102", envelope.Message.MsgCode)
	assert.Len(t, envelope.Data, 2)
	require.NotNil(t, envelope.Count)
	assert.Equal(t, int64(2), *envelope.Count)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestUpdatePostDeniedBeforeAnySQL(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	subjectID := uuid.New().String()
	f.authorize("good", subjectID)
	postID := uuid.New().String()
	f.gateway.denied[authz.Tuple{
		Subject:  "user:" + subjectID,
		Relation: authz.RelationCanUpdate,
		Object:   authz.ObjectRef(authz.ObjectPost, postID),
	}.String()] = true

	rec, envelope := f.do(t, http.MethodPut, "/v1/posts/"+postID, "good", `{"text_content":"edited"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "E006", envelope.Message.MsgCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCreateCommentChecksParentPost(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()
	subjectID := uuid.New().String()
	f.authorize("good", subjectID)
	postID := uuid.New()
	now := time.Now().UTC()

	f.mock.ExpectBegin()
	expectActorLookup(f.mock, subjectID)
	f.mock.ExpectQuery("SELECT id, text_content, owner_id, created_at, updated_at").
		WithArgs(postID).
		WillReturnRows(sqlmock.NewRows([]string{"id", "text_content", "owner_id", "created_at", "updated_at"}).
			AddRow(postID, "parent", uuid.New().String(), now, nil))
	f.mock.ExpectQuery("INSERT INTO comments").
		WithArgs(sqlmock.AnyArg(), "nice", postID.String(), subjectID, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	f.mock.ExpectCommit()

	body := `{"text_content":"nice","post_id":"` + postID.String() + `"}`
	rec, envelope := f.do(t, http.MethodPost, "/v1/comments", "good", body)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "S201", envelope.Message.MsgCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()

	req := httptest.NewRequest(http.MethodPost, "/v1/authentication/webhook/events-synchronization",
		strings.NewReader(`{}`))
	req.Header.Set(identity.SignatureHeader, "deadbeef")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "E302", envelope.Message.MsgCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestWebhookUnsupportedOperationAccepted(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()

	body := []byte(`{
		"realmName": "postbox",
		"operationType": "ACTION",
		"time": 1700000000000,
		"authDetails": {"userId": "` + uuid.New().String() + `", "username": "alice", "realmId": "postbox", "clientId": "admin-cli"},
		"resourceType": "USER",
		"representation": "{}"
	}`)
	req := httptest.NewRequest(http.MethodPost, "/v1/authentication/webhook/events-synchronization",
		bytes.NewReader(body))
	req.Header.Set(identity.SignatureHeader, identity.Sign([]byte(webhookSecret), body))
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var envelope testEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.Equal(t, "S301", envelope.Message.MsgCode)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestCertsEndpointIsPublic(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()

	rec, _ := f.do(t, http.MethodGet, "/v1/authentication/certs", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"keys":[]}`, rec.Body.String())
}

func TestHealthEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()

	rec, _ := f.do(t, http.MethodGet, "/healthz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = f.do(t, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServerAppliesConfiguredTimeouts(t *testing.T) {
	f := newAPIFixture(t)
	defer f.done()

	server := NewServer(
		Config{
			ListenAddr:   ":0",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  90 * time.Second,
		},
		f.server.posts, f.server.comments, f.server.sync,
		f.verifier, f.certs, f.server.db, nil,
		f.server.logger, f.server.metrics,
	)

	assert.Equal(t, 5*time.Second, server.server.ReadTimeout)
	assert.Equal(t, 10*time.Second, server.server.WriteTimeout)
	assert.Equal(t, 90*time.Second, server.server.IdleTimeout)
}
