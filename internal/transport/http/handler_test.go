package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"peopledesk/internal/audit"
	"peopledesk/internal/audit/store/memory"
	id "peopledesk/pkg/domain"
)

type HandlerSuite struct {
	suite.Suite
	store  *memory.Store
	server *httptest.Server

	tenantA id.TenantID
	tenantB id.TenantID
	user    id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.store = memory.NewStore()
	s.tenantA = id.NewTenantID()
	s.tenantB = id.NewTenantID()
	s.user = id.NewUserID()

	handler := NewHandler(audit.NewQueryService(s.store), slog.New(slog.DiscardHandler))
	router := chi.NewRouter()
	router.Use(Identity)
	router.Group(handler.Routes)
	s.server = httptest.NewServer(router)

	base := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	s.seed(s.tenantA, audit.ActionCreate, "employee", "e-1", base)
	s.seed(s.tenantA, audit.ActionUpdate, "employee", "e-1", base.Add(time.Hour))
	s.seed(s.tenantB, audit.ActionCreate, "employee", "e-9", base)
}

func (s *HandlerSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlerSuite) seed(tenant id.TenantID, action audit.Action, resourceType, resourceID string, at time.Time) {
	err := s.store.Append(context.Background(), &audit.Entry{
		ID:           uuid.New(),
		TenantID:     tenant,
		UserID:       s.user,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		CreatedAt:    at,
	})
	s.Require().NoError(err)
}

func (s *HandlerSuite) get(path string, tenant id.TenantID) *http.Response {
	req, err := http.NewRequest(http.MethodGet, s.server.URL+path, nil)
	s.Require().NoError(err)
	if !tenant.IsNil() {
		req.Header.Set("X-Tenant-ID", tenant.String())
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *HandlerSuite) decode(resp *http.Response) map[string]json.RawMessage {
	defer resp.Body.Close()
	var body map[string]json.RawMessage
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (s *HandlerSuite) entries(resp *http.Response) []audit.Entry {
	body := s.decode(resp)
	var entries []audit.Entry
	s.Require().NoError(json.Unmarshal(body["entries"], &entries))
	return entries
}

func (s *HandlerSuite) TestGetAuditTrail() {
	s.Run("returns the tenant's entries with a total", func() {
		resp := s.get("/audit/trail", s.tenantA)
		s.Equal(http.StatusOK, resp.StatusCode)

		body := s.decode(resp)
		var entries []audit.Entry
		s.Require().NoError(json.Unmarshal(body["entries"], &entries))
		s.Len(entries, 2)

		var total int
		s.Require().NoError(json.Unmarshal(body["total"], &total))
		s.Equal(2, total)
	})

	s.Run("filters via query parameters", func() {
		resp := s.get("/audit/trail?action=CREATE", s.tenantA)
		s.Equal(http.StatusOK, resp.StatusCode)

		entries := s.entries(resp)
		s.Require().Len(entries, 1)
		s.Equal(audit.ActionCreate, entries[0].Action)
	})

	s.Run("missing tenant header is a bad request", func() {
		resp := s.get("/audit/trail", id.TenantID{})
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})

	s.Run("malformed time bound is a bad request", func() {
		resp := s.get("/audit/trail?start=yesterday", s.tenantA)
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}

func (s *HandlerSuite) TestGetResourceHistory() {
	resp := s.get("/audit/resources/employee/e-1/history", s.tenantA)
	s.Equal(http.StatusOK, resp.StatusCode)

	entries := s.entries(resp)
	s.Require().Len(entries, 2)
	s.Equal(audit.ActionUpdate, entries[0].Action)
}

func (s *HandlerSuite) TestGetUserActivity() {
	s.Run("scopes to the header tenant", func() {
		resp := s.get(fmt.Sprintf("/audit/users/%s/activity", s.user), s.tenantB)
		s.Equal(http.StatusOK, resp.StatusCode)

		entries := s.entries(resp)
		s.Require().Len(entries, 1)
		s.Equal(s.tenantB, entries[0].TenantID)
	})

	s.Run("invalid user id is a bad request", func() {
		resp := s.get("/audit/users/not-a-uuid/activity", s.tenantA)
		resp.Body.Close()
		s.Equal(http.StatusBadRequest, resp.StatusCode)
	})
}
