package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/substrate/pkg/auth"
	"github.com/weftlabs/substrate/pkg/executor"
	"github.com/weftlabs/substrate/pkg/governance"
	"github.com/weftlabs/substrate/pkg/proposals"
	"github.com/weftlabs/substrate/pkg/substrate"
	"github.com/weftlabs/substrate/pkg/timeline"
)

const testJWTSecret = "api-test-secret"

type apiFixture struct {
	handler  http.Handler
	manager  *proposals.Manager
	settings governance.SettingsStore
	events   *timeline.MemoryStore
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	sub := substrate.NewMemoryStore()
	engine, err := executor.NewEngine(sub)
	require.NoError(t, err)

	events := timeline.NewMemoryStore()
	emitter := timeline.NewEmitter(events, nil, nil)
	store := proposals.NewMemoryStore().WithSnapshot(sub.Snapshot)
	manager := proposals.NewManager(store, engine, sub, emitter, nil)

	settings := governance.NewMemorySettingsStore()
	resolver := governance.NewResolver(settings, func(string) (string, bool) { return "", false }, nil)
	advisor, err := governance.NewHybridAdvisor()
	require.NoError(t, err)

	srv := NewServer(Options{
		Manager:  manager,
		Resolver: resolver,
		Settings: settings,
		Timeline: events,
		Advisor:  advisor,
		Version:  "test",
	})

	return &apiFixture{
		handler:  srv.Routes(auth.NewJWTValidator(testJWTSecret), auth.LimiterConfig{RPS: 1000, Burst: 1000}),
		manager:  manager,
		settings: settings,
		events:   events,
	}
}

func (f *apiFixture) token(t *testing.T, roles ...string) string {
	t.Helper()
	return f.tokenFor(t, "ws-1", roles...)
}

func (f *apiFixture) tokenFor(t *testing.T, workspaceID string, roles ...string) string {
	t.Helper()
	claims := auth.SubstrateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-" + workspaceID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		WorkspaceID: workspaceID,
		Roles:       roles,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return signed
}

func (f *apiFixture) do(t *testing.T, method, path string, body any, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	return f.doAs(t, "ws-1", method, path, body, roles...)
}

func (f *apiFixture) doAs(t *testing.T, workspaceID, method, path string, body any, roles ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+f.tokenFor(t, workspaceID, roles...))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func (f *apiFixture) enableGovernance(t *testing.T) {
	t.Helper()
	enabled := true
	require.NoError(t, f.settings.Put(t.Context(), &governance.WorkspaceSettings{
		WorkspaceID:       "ws-1",
		GovernanceEnabled: &enabled,
	}))
}

func createBody() map[string]any {
	return map[string]any{
		"proposal_kind": "Extraction",
		"origin":        "agent",
		"confidence":    0.7,
		"ops": []map[string]any{
			{"type": "CreateBlock", "data": map[string]any{"title": "Theme", "body": "text"}},
		},
	}
}

func TestAPI_CreateProposal(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody())
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "PROPOSED", body["status"])
	assert.NotEmpty(t, body["proposal_id"])
}

func TestAPI_CreateProposalEmptyOps(t *testing.T) {
	f := newAPIFixture(t)

	body := createBody()
	body["ops"] = []map[string]any{}
	rr := f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", body)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "error")
}

func TestAPI_CreateProposalUnknownKind(t *testing.T) {
	f := newAPIFixture(t)

	body := createBody()
	body["proposal_kind"] = "Teleportation"
	rr := f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", body)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_ApproveLifecycle(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody(t, f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody()))
	id := created["proposal_id"].(string)

	rr := f.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["commit_id"])
	assert.Equal(t, float64(1), body["operations_executed"])

	// Second approve is a conflict, named in the message.
	again := f.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/approve", nil)
	assert.Equal(t, http.StatusBadRequest, again.Code)
	assert.Contains(t, again.Body.String(), "already executed")
}

func TestAPI_ApproveMissing(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.do(t, http.MethodPost, "/api/v1/proposals/nope/approve", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestAPI_CrossWorkspaceProposalIsHidden(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody(t, f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody()))
	id := created["proposal_id"].(string)

	// A principal from another workspace cannot execute or reject the
	// proposal; the id reads as absent.
	approve := f.doAs(t, "ws-2", http.MethodPost, "/api/v1/proposals/"+id+"/approve", nil)
	assert.Equal(t, http.StatusNotFound, approve.Code, approve.Body.String())

	reject := f.doAs(t, "ws-2", http.MethodPost, "/api/v1/proposals/"+id+"/reject", map[string]any{"reason": "mine now"})
	assert.Equal(t, http.StatusNotFound, reject.Code)

	// The owning workspace is unaffected.
	rr := f.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/approve", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestAPI_SettingsScopedToWorkspace(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/workspaces/ws-2/governance", nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	// Admin in ws-1 grants nothing in ws-2.
	put := map[string]any{"governance_enabled": true}
	rr = f.do(t, http.MethodPut, "/api/v1/workspaces/ws-2/governance", put, "admin")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestAPI_RejectExecuted(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody(t, f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody()))
	id := created["proposal_id"].(string)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/approve", nil).Code)

	rr := f.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/reject", map[string]any{"reason": "late"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "Cannot reject executed proposal")
}

func TestAPI_Reject(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody(t, f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody()))
	id := created["proposal_id"].(string)

	rr := f.do(t, http.MethodPost, "/api/v1/proposals/"+id+"/reject", map[string]any{"reason": "not relevant"})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "REJECTED", decodeBody(t, rr)["status"])
}

func TestAPI_ListRequiresGovernanceEnabled(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodGet, "/api/v1/baskets/basket-1/proposals", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "disabled", decodeBody(t, rr)["governance_status"])
}

func TestAPI_ListProposals(t *testing.T) {
	f := newAPIFixture(t)
	f.enableGovernance(t)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody()).Code)

	rr := f.do(t, http.MethodGet, "/api/v1/baskets/basket-1/proposals?status=PROPOSED", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	body := decodeBody(t, rr)
	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, "CreateBlock", item["ops_summary"])
}

func TestAPI_SettingsRoundTrip(t *testing.T) {
	f := newAPIFixture(t)

	// Defaults come from the environment layer when no row exists.
	rr := f.do(t, http.MethodGet, "/api/v1/workspaces/ws-1/governance", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, governance.SourceEnv, decodeBody(t, rr)["source"])

	// Non-admins cannot write settings.
	put := map[string]any{"governance_enabled": true}
	assert.Equal(t, http.StatusForbidden,
		f.do(t, http.MethodPut, "/api/v1/workspaces/ws-1/governance", put, "member").Code)

	// Admin write lands and flips the source to the workspace row.
	rr = f.do(t, http.MethodPut, "/api/v1/workspaces/ws-1/governance", put, "admin")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	body := decodeBody(t, rr)
	assert.Equal(t, governance.SourceWorkspace, body["source"])
	assert.Equal(t, true, body["settings"].(map[string]any)["governance_enabled"])
}

func TestAPI_SettingsRejectsBadEnums(t *testing.T) {
	f := newAPIFixture(t)

	for _, put := range []map[string]any{
		{"default_blast_radius": "Galactic"},
		{"entry_point_policies": map[string]string{"manual_edit": "yolo"}},
		{"entry_point_policies": map[string]string{"side_door": "proposal"}},
	} {
		rr := f.do(t, http.MethodPut, "/api/v1/workspaces/ws-1/governance", put, "admin")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	}
}

func TestAPI_Timeline(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody(t, f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody()))
	require.Equal(t, http.StatusOK,
		f.do(t, http.MethodPost, "/api/v1/proposals/"+created["proposal_id"].(string)+"/approve", nil).Code)

	rr := f.do(t, http.MethodGet, "/api/v1/baskets/basket-1/timeline", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	body := decodeBody(t, rr)
	events := body["events"].([]any)
	// submitted, approved, block.created
	assert.Len(t, events, 3)
	assert.Equal(t, false, body["has_more"])
	assert.NotEmpty(t, body["last_cursor"])

	filtered := decodeBody(t, f.do(t, http.MethodGet,
		"/api/v1/baskets/basket-1/timeline?event_type=block.created", nil))
	assert.Len(t, filtered["events"].([]any), 1)
}

func TestAPI_TimelineBadCursor(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.do(t, http.MethodGet, "/api/v1/baskets/basket-1/timeline?cursor=garbage", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_WorkDirectWhenGovernanceDisabled(t *testing.T) {
	f := newAPIFixture(t)

	body := map[string]any{
		"entry_point": "manual_edit",
		"ops": []map[string]any{
			{"type": "CreateRawDump", "data": map[string]any{"body": "notes"}},
		},
	}
	rr := f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/work", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	out := decodeBody(t, rr)
	assert.Equal(t, "direct", out["execution_mode"])
	assert.NotEmpty(t, out["commit_id"])
}

func TestAPI_WorkProposalWhenGoverned(t *testing.T) {
	f := newAPIFixture(t)
	f.enableGovernance(t)

	body := map[string]any{
		"entry_point":   "manual_edit",
		"proposal_kind": "Edit",
		"ops": []map[string]any{
			{"type": "CreateBlock", "data": map[string]any{"body": "text"}},
		},
	}
	rr := f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/work", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	out := decodeBody(t, rr)
	assert.Equal(t, "proposal", out["execution_mode"])
	assert.NotEmpty(t, out["proposal_id"])
}

func TestAPI_WorkUnknownEntryPoint(t *testing.T) {
	f := newAPIFixture(t)

	rr := f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/work", map[string]any{
		"entry_point": "side_door",
		"ops":         []map[string]any{{"type": "CreateRawDump", "data": map[string]any{"body": "x"}}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAPI_IdempotentApproveReplay(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody(t, f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody()))
	id := created["proposal_id"].(string)

	approve := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/proposals/"+id+"/approve", nil)
		req.Header.Set("Authorization", "Bearer "+f.token(t))
		req.Header.Set("Idempotency-Key", "approve-once")
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)
		return rr
	}

	first := approve()
	require.Equal(t, http.StatusOK, first.Code)

	// The replay returns the cached response instead of a conflict.
	second := approve()
	assert.Equal(t, http.StatusOK, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
}

func TestAPI_IdempotencyKeyScopedToCaller(t *testing.T) {
	f := newAPIFixture(t)

	created := decodeBody(t, f.do(t, http.MethodPost, "/api/v1/baskets/basket-1/proposals", createBody()))
	id := created["proposal_id"].(string)

	approveAs := func(workspaceID string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/proposals/"+id+"/approve", nil)
		req.Header.Set("Authorization", "Bearer "+f.tokenFor(t, workspaceID))
		req.Header.Set("Idempotency-Key", "approve-once")
		rr := httptest.NewRecorder()
		f.handler.ServeHTTP(rr, req)
		return rr
	}

	require.Equal(t, http.StatusOK, approveAs("ws-1").Code)

	// The same key from another workspace must not surface ws-1's cached
	// approval; the foreign caller gets its own (not found) answer.
	rr := approveAs("ws-2")
	assert.Equal(t, http.StatusNotFound, rr.Code, rr.Body.String())
}

func TestAPI_Unauthenticated(t *testing.T) {
	f := newAPIFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/baskets/basket-1/timeline", nil)
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Health stays public.
	health := httptest.NewRequest(http.MethodGet, "/health", nil)
	hr := httptest.NewRecorder()
	f.handler.ServeHTTP(hr, health)
	assert.Equal(t, http.StatusOK, hr.Code)
}
