package mediator

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/safareli/http-proxy/pkg/approval"
	"github.com/safareli/http-proxy/pkg/model"
	"github.com/safareli/http-proxy/pkg/policystore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newReq(method, pathWithQuery, fakeSecret string) Request {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+fakeSecret)
	return Request{Host: "api.example.com", Method: method, PathWithQuery: pathWithQuery, Headers: h}
}

func TestMediate_NoSecretConfigured_ForwardsAsIs(t *testing.T) {
	store := policystore.New(map[string]*model.HostConfig{}, nil)
	m := &Mediator{PolicyStore: store}

	req := newReq(http.MethodGet, "/repos/acme/widgets", "whatever")
	fwd, err := m.Mediate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, req.Headers.Get("Authorization"), fwd.Headers.Get("Authorization"))
}

func TestMediate_HTTP_RejectionPattern_ShortCircuits(t *testing.T) {
	secret := &model.SecretConfig{
		FakeSecret:       "fake_abc",
		SecretEnvVarName: "MEDIATOR_TEST_REAL_1",
		Rejections:       []string{"DELETE /repos/*/*"},
	}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {Secrets: []*model.SecretConfig{secret}},
	}, nil)
	m := &Mediator{PolicyStore: store, ApprovalTransport: approval.NewStaticTransport()}

	req := newReq(http.MethodDelete, "/repos/acme/widgets", "fake_abc")
	fwd, err := m.Mediate(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, fwd)
	assert.Equal(t, 403, statusCode(t, err))
}

func TestMediate_HTTP_GrantPattern_SubstitutesRealSecret(t *testing.T) {
	t.Setenv("MEDIATOR_TEST_REAL_2", "real-secret-value")
	secret := &model.SecretConfig{
		FakeSecret:       "fake_def",
		SecretEnvVarName: "MEDIATOR_TEST_REAL_2",
		Grants:           []string{"GET /repos/*/*"},
	}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {Secrets: []*model.SecretConfig{secret}},
	}, nil)
	m := &Mediator{PolicyStore: store, ApprovalTransport: approval.NewStaticTransport()}

	req := newReq(http.MethodGet, "/repos/acme/widgets", "fake_def")
	fwd, err := m.Mediate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "Bearer real-secret-value", fwd.Headers.Get("Authorization"))
}

func TestMediate_HTTP_NoApprovalTransport_Returns403(t *testing.T) {
	secret := &model.SecretConfig{FakeSecret: "fake_ghi", SecretEnvVarName: "MEDIATOR_TEST_REAL_3"}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {Secrets: []*model.SecretConfig{secret}},
	}, nil)
	m := &Mediator{PolicyStore: store}

	req := newReq(http.MethodGet, "/repos/acme/widgets", "fake_ghi")
	fwd, err := m.Mediate(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, fwd)
	assert.Equal(t, 403, statusCode(t, err))
}

func TestMediate_HTTP_AllowOnce_DoesNotPersistGrant(t *testing.T) {
	t.Setenv("MEDIATOR_TEST_REAL_4", "real-secret-value")
	secret := &model.SecretConfig{FakeSecret: "fake_jkl", SecretEnvVarName: "MEDIATOR_TEST_REAL_4"}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {Secrets: []*model.SecretConfig{secret}},
	}, nil)
	transport := approval.NewStaticTransport().WithDecision(
		http.MethodGet, "/repos/acme/widgets", model.ApprovalDecision{Kind: model.AllowOnce},
	)
	m := &Mediator{PolicyStore: store, ApprovalTransport: transport}

	req := newReq(http.MethodGet, "/repos/acme/widgets", "fake_jkl")
	fwd, err := m.Mediate(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "Bearer real-secret-value", fwd.Headers.Get("Authorization"))
	assert.Empty(t, secret.Grants)
}

func TestMediate_HTTP_AllowForever_PersistsGrantThenSkipsPrompt(t *testing.T) {
	t.Setenv("MEDIATOR_TEST_REAL_5", "real-secret-value")
	secret := &model.SecretConfig{FakeSecret: "fake_mno", SecretEnvVarName: "MEDIATOR_TEST_REAL_5"}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {Secrets: []*model.SecretConfig{secret}},
	}, nil)
	transport := approval.NewStaticTransport().WithDecision(
		http.MethodGet, "/repos/acme/widgets",
		model.ApprovalDecision{Kind: model.AllowForever, Pattern: "GET /repos/*/*"},
	)
	m := &Mediator{PolicyStore: store, ApprovalTransport: transport}

	req := newReq(http.MethodGet, "/repos/acme/widgets", "fake_mno")
	fwd, err := m.Mediate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer real-secret-value", fwd.Headers.Get("Authorization"))
	assert.Equal(t, []string{"GET /repos/*/*"}, secret.Grants)

	// A second, different request matching the persisted grant must forward
	// without consulting the transport again.
	req2 := newReq(http.MethodGet, "/repos/other/thing", "fake_mno")
	fwd2, err := m.Mediate(context.Background(), req2)
	require.NoError(t, err)
	assert.Equal(t, "Bearer real-secret-value", fwd2.Headers.Get("Authorization"))
	assert.Len(t, transport.Requests, 1, "second request should not have prompted again")
}

func TestMediate_HTTP_RejectForever_Persists(t *testing.T) {
	secret := &model.SecretConfig{FakeSecret: "fake_pqr", SecretEnvVarName: "MEDIATOR_TEST_REAL_6"}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {Secrets: []*model.SecretConfig{secret}},
	}, nil)
	transport := approval.NewStaticTransport().WithDecision(
		http.MethodGet, "/repos/acme/widgets",
		model.ApprovalDecision{Kind: model.RejectForever, Pattern: "GET /repos/*/*"},
	)
	m := &Mediator{PolicyStore: store, ApprovalTransport: transport}

	req := newReq(http.MethodGet, "/repos/acme/widgets", "fake_pqr")
	fwd, err := m.Mediate(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, fwd)
	assert.Equal(t, []string{"GET /repos/*/*"}, secret.Rejections)
}

func graphqlBody() []byte {
	return []byte(`{"query":"query { viewer { login } repository(owner:\"acme\", name:\"widgets\") { id } }"}`)
}

// fieldKeyedTransport returns a canned decision looked up by the GraphQL
// field name embedded in req.PathOrDescription, sidestepping the exact
// rendering of that description (owned by pkg/mediator, not this test).
type fieldKeyedTransport struct {
	mu        sync.Mutex
	decisions map[string]model.ApprovalDecision
	Requests  []approval.Request
}

func newFieldKeyedTransport(decisions map[string]model.ApprovalDecision) *fieldKeyedTransport {
	return &fieldKeyedTransport{decisions: decisions}
}

func (t *fieldKeyedTransport) Request(_ context.Context, req approval.Request) (model.ApprovalDecision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Requests = append(t.Requests, req)
	for field, decision := range t.decisions {
		if containsWord(req.PathOrDescription, field) {
			return decision, nil
		}
	}
	return model.ApprovalDecision{Kind: model.RejectOnce}, nil
}

func containsWord(haystack, word string) bool {
	for i := 0; i+len(word) <= len(haystack); i++ {
		if haystack[i:i+len(word)] == word {
			return true
		}
	}
	return false
}

func TestMediate_GraphQL_ParallelApproval_AllGranted(t *testing.T) {
	t.Setenv("MEDIATOR_TEST_REAL_7", "real-secret-value")
	secret := &model.SecretConfig{FakeSecret: "fake_stu", SecretEnvVarName: "MEDIATOR_TEST_REAL_7"}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {GraphqlEndpoints: []string{"/graphql"}, Secrets: []*model.SecretConfig{secret}},
	}, nil)
	transport := newFieldKeyedTransport(map[string]model.ApprovalDecision{
		"viewer":     {Kind: model.AllowOnce},
		"repository": {Kind: model.AllowOnce},
	})
	m := &Mediator{PolicyStore: store, ApprovalTransport: transport}

	h := http.Header{}
	h.Set("Authorization", "Bearer fake_stu")
	req := Request{Host: "api.example.com", Method: http.MethodPost, PathWithQuery: "/graphql", Headers: h, Body: graphqlBody()}

	fwd, err := m.Mediate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer real-secret-value", fwd.Headers.Get("Authorization"))
	assert.Len(t, transport.Requests, 2)
}

// slowTransport blocks each Request call until ctx is cancelled or a reject
// fires immediately, so the test can observe that a rejection on one field
// cancels every sibling's in-flight approval rather than waiting it out.
type slowTransport struct {
	mu        sync.Mutex
	cancelled int
}

func (t *slowTransport) Request(ctx context.Context, req approval.Request) (model.ApprovalDecision, error) {
	if containsWord(req.PathOrDescription, "repository") {
		return model.ApprovalDecision{Kind: model.RejectOnce}, nil
	}

	<-ctx.Done()
	t.mu.Lock()
	t.cancelled++
	t.mu.Unlock()
	return model.ApprovalDecision{Kind: model.RejectOnce}, nil
}

func TestMediate_GraphQL_FirstRejectionCancelsSiblingApprovals(t *testing.T) {
	secret := &model.SecretConfig{FakeSecret: "fake_vwx", SecretEnvVarName: "MEDIATOR_TEST_REAL_8"}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {GraphqlEndpoints: []string{"/graphql"}, Secrets: []*model.SecretConfig{secret}},
	}, nil)
	transport := &slowTransport{}
	m := &Mediator{PolicyStore: store, ApprovalTransport: transport}

	h := http.Header{}
	h.Set("Authorization", "Bearer fake_vwx")
	req := Request{Host: "api.example.com", Method: http.MethodPost, PathWithQuery: "/graphql", Headers: h, Body: graphqlBody()}

	done := make(chan struct{})
	var fwd *ForwardRequest
	var err error
	go func() {
		fwd, err = m.Mediate(context.Background(), req)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Mediate did not return; sibling approval was not cancelled")
	}

	require.Error(t, err)
	assert.Nil(t, fwd)
	transport.mu.Lock()
	defer transport.mu.Unlock()
	assert.Equal(t, 1, transport.cancelled, "the viewer field's approval should have been cancelled, not left pending")
}

func TestMediate_GraphQL_BatchedRequest_PromptsOnlyForUngrantedField(t *testing.T) {
	t.Setenv("MEDIATOR_TEST_REAL_10", "real-secret-value")
	secret := &model.SecretConfig{
		FakeSecret:       "fake_batch",
		SecretEnvVarName: "MEDIATOR_TEST_REAL_10",
		Grants:           []string{"GRAPHQL query user"},
	}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {GraphqlEndpoints: []string{"/graphql"}, Secrets: []*model.SecretConfig{secret}},
	}, nil)
	transport := newFieldKeyedTransport(map[string]model.ApprovalDecision{
		"deleteUser": {Kind: model.AllowOnce},
	})
	m := &Mediator{PolicyStore: store, ApprovalTransport: transport}

	h := http.Header{}
	h.Set("Authorization", "Bearer fake_batch")
	body := []byte(`[{"query":"query{user{id}}"},{"query":"mutation{deleteUser(id:\"1\"){ok}}"}]`)
	req := Request{Host: "api.example.com", Method: http.MethodPost, PathWithQuery: "/graphql", Headers: h, Body: body}

	fwd, err := m.Mediate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer real-secret-value", fwd.Headers.Get("Authorization"))
	require.Len(t, transport.Requests, 1, "the granted user query must not prompt")
	assert.Contains(t, transport.Requests[0].PathOrDescription, "deleteUser")
}

func TestMediate_GraphQL_NoFieldsNeedApproval_SkipsTransport(t *testing.T) {
	t.Setenv("MEDIATOR_TEST_REAL_9", "real-secret-value")
	secret := &model.SecretConfig{
		FakeSecret:       "fake_yz1",
		SecretEnvVarName: "MEDIATOR_TEST_REAL_9",
		Grants:           []string{"GRAPHQL query viewer", "GRAPHQL query repository(name: $ANY, owner: $ANY)"},
	}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {GraphqlEndpoints: []string{"/graphql"}, Secrets: []*model.SecretConfig{secret}},
	}, nil)
	m := &Mediator{PolicyStore: store}

	h := http.Header{}
	h.Set("Authorization", "Bearer fake_yz1")
	req := Request{Host: "api.example.com", Method: http.MethodPost, PathWithQuery: "/graphql", Headers: h, Body: graphqlBody()}

	fwd, err := m.Mediate(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Bearer real-secret-value", fwd.Headers.Get("Authorization"))
}

func TestMediate_HTTP_TimeoutRejectionIdentifiesItself(t *testing.T) {
	secret := &model.SecretConfig{FakeSecret: "fake_to", SecretEnvVarName: "MEDIATOR_TEST_REAL_12"}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {Secrets: []*model.SecretConfig{secret}},
	}, nil)
	transport := approval.NewStaticTransport().WithDecision(
		http.MethodGet, "/repos/acme/widgets",
		model.ApprovalDecision{Kind: model.RejectOnce, TimedOut: true},
	)
	m := &Mediator{PolicyStore: store, ApprovalTransport: transport}

	req := newReq(http.MethodGet, "/repos/acme/widgets", "fake_to")
	fwd, err := m.Mediate(context.Background(), req)

	require.Error(t, err)
	assert.Nil(t, fwd)
	assert.Equal(t, 403, statusCode(t, err))
	assert.Contains(t, err.Error(), "approval timeout")
	assert.NotContains(t, err.Error(), "operator rejected")
}

func TestMediate_GraphQL_ParseFailureIs400(t *testing.T) {
	secret := &model.SecretConfig{FakeSecret: "fake_bad", SecretEnvVarName: "MEDIATOR_TEST_REAL_11"}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {GraphqlEndpoints: []string{"/graphql"}, Secrets: []*model.SecretConfig{secret}},
	}, nil)
	m := &Mediator{PolicyStore: store, ApprovalTransport: approval.NewStaticTransport()}

	h := http.Header{}
	h.Set("Authorization", "Bearer fake_bad")
	req := Request{Host: "api.example.com", Method: http.MethodPost, PathWithQuery: "/graphql", Headers: h, Body: []byte(`{"query":"query {{{"}`)}

	fwd, err := m.Mediate(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, fwd)
	assert.Equal(t, 400, statusCode(t, err))
}

func TestMediate_MissingRealSecretIs500(t *testing.T) {
	secret := &model.SecretConfig{
		FakeSecret:       "fake_noenv",
		SecretEnvVarName: "MEDIATOR_TEST_UNSET_ENV_VAR",
		Grants:           []string{"GET *"},
	}
	store := policystore.New(map[string]*model.HostConfig{
		"api.example.com": {Secrets: []*model.SecretConfig{secret}},
	}, nil)
	m := &Mediator{PolicyStore: store}

	req := newReq(http.MethodGet, "/anything", "fake_noenv")
	fwd, err := m.Mediate(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, fwd)
	assert.Equal(t, 500, statusCode(t, err))
}

func statusCode(t *testing.T, err error) int {
	t.Helper()
	sc, ok := err.(interface{ StatusCode() int })
	require.True(t, ok, "error %v does not implement StatusCode()", err)
	return sc.StatusCode()
}
