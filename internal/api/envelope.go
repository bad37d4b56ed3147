package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/tenantgate/internal/auth"
	"github.com/nerrad567/tenantgate/internal/gateway"
	"github.com/nerrad567/tenantgate/internal/store"
)

// Action is an envelope action.
type Action string

// The closed set of envelope actions.
const (
	ActionLogin       Action = "login"
	ActionVerifyToken Action = "verifyToken"
	ActionLogout      Action = "logout"
	ActionQuery       Action = "query"
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionBatch       Action = "batch"
	ActionAggregate   Action = "aggregate"
)

// Request is the inbound envelope.
type Request struct {
	Action Action          `json:"action"`
	Token  string          `json:"token,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type loginData struct {
	OrganizationCode string `json:"organizationCode"`
	Username         string `json:"username"`
	Password         string `json:"password"`
}

type queryData struct {
	Collection     string         `json:"collection"`
	Filter         map[string]any `json:"filter"`
	Page           int            `json:"page"`
	Limit          int            `json:"limit"`
	OrderBy        string         `json:"orderBy"`
	IncludeDeleted bool           `json:"includeDeleted"`
}

type documentData struct {
	Collection string         `json:"collection"`
	ID         string         `json:"id"`
	Data       map[string]any `json:"data"`
}

type batchData struct {
	Collection string              `json:"collection"`
	Operation  string              `json:"operation"`
	Items      []gateway.BatchItem `json:"items"`
}

type aggregateData struct {
	Collection string           `json:"collection"`
	Pipeline   []map[string]any `json:"pipeline"`
}

// loginResponse is the data of a successful login.
type loginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      userResponse `json:"user"`
}

type userResponse struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organizationId"`
	Username       string `json:"username"`
	DisplayName    string `json:"displayName,omitempty"`
	RoleID         string `json:"roleId,omitempty"`
	IsSuperAdmin   bool   `json:"isSuperAdmin"`
	LastLoginAt    string `json:"lastLoginAt,omitempty"`
}

// verifyResponse is the data of a successful verifyToken.
type verifyResponse struct {
	UserID         string `json:"userId"`
	OrganizationID string `json:"organizationId"`
	RoleID         string `json:"roleId,omitempty"`
	Username       string `json:"username,omitempty"`
	IsSuperAdmin   bool   `json:"isSuperAdmin"`
}

// handleGateway decodes the envelope and dispatches on its action.
func (s *Server) handleGateway(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" {
		req.Token = bearerToken(r)
	}

	switch req.Action {
	case ActionLogin:
		s.handleLogin(w, r, req)
	case ActionVerifyToken:
		s.handleVerifyToken(w, r, req)
	case ActionLogout:
		s.handleLogout(w, r, req)
	case ActionQuery:
		s.handleQuery(w, r, req)
	case ActionCreate:
		s.handleCreate(w, r, req)
	case ActionUpdate:
		s.handleUpdate(w, r, req)
	case ActionDelete:
		s.handleDelete(w, r, req)
	case ActionBatch:
		s.handleBatch(w, r, req)
	case ActionAggregate:
		s.handleAggregate(w, r, req)
	case "":
		writeBadRequest(w, "action is required")
	default:
		writeBadRequest(w, fmt.Sprintf("unknown action %q", req.Action))
	}
}

// decodeData unmarshals the envelope data into v. It writes the error
// response and returns false on failure.
func decodeData(w http.ResponseWriter, req Request, v any) bool {
	if len(req.Data) == 0 {
		writeBadRequest(w, "data is required")
		return false
	}
	if err := json.Unmarshal(req.Data, v); err != nil {
		writeBadRequest(w, "invalid data for action "+string(req.Action))
		return false
	}
	return true
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, req Request) {
	var data loginData
	if !decodeData(w, req, &data) {
		return
	}
	res, err := s.gateway.Login(r.Context(), auth.LoginRequest{
		OrganizationCode: data.OrganizationCode,
		Username:         data.Username,
		Password:         data.Password,
	})
	if err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	writeSuccess(w, loginResponse{
		Token:     res.Token.Token,
		ExpiresAt: res.Token.ExpiresAt,
		User: userResponse{
			ID:             res.User.ID,
			OrganizationID: res.User.OrgID,
			Username:       res.User.Username,
			DisplayName:    res.User.DisplayName,
			RoleID:         res.User.RoleID,
			IsSuperAdmin:   res.User.IsSuperAdmin,
			LastLoginAt:    res.User.LastLoginAt,
		},
	})
}

func (s *Server) handleVerifyToken(w http.ResponseWriter, r *http.Request, req Request) {
	p, err := s.gateway.VerifyToken(r.Context(), req.Token)
	if err != nil {
		if gateway.KindOf(err) != gateway.KindAuthentication {
			s.writeGatewayError(w, r, string(req.Action), err)
			return
		}
		writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, verifyFailure(err))
		return
	}
	writeSuccess(w, verifyResponse{
		UserID:         p.UserID,
		OrganizationID: p.OrgID,
		RoleID:         p.RoleID,
		Username:       p.Username,
		IsSuperAdmin:   p.IsSuperAdmin,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, req Request) {
	if err := s.gateway.Logout(r.Context(), req.Token); err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	writeSuccess(w, nil)
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request, req Request) {
	var data queryData
	if !decodeData(w, req, &data) {
		return
	}
	orderBy, err := gateway.ParseOrderBy(data.OrderBy)
	if err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	res, err := s.gateway.Query(r.Context(), req.Token, data.Collection, store.Filter(data.Filter), gateway.QueryOptions{
		Page:           data.Page,
		Limit:          data.Limit,
		OrderBy:        orderBy,
		IncludeDeleted: data.IncludeDeleted,
	})
	if err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	writeSuccess(w, res)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, req Request) {
	var data documentData
	if !decodeData(w, req, &data) {
		return
	}
	doc, err := s.gateway.Create(r.Context(), req.Token, data.Collection, store.Document(data.Data))
	if err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	writeSuccess(w, doc)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, req Request) {
	var data documentData
	if !decodeData(w, req, &data) {
		return
	}
	doc, err := s.gateway.Update(r.Context(), req.Token, data.Collection, data.ID, store.Document(data.Data))
	if err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	writeSuccess(w, doc)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, req Request) {
	var data documentData
	if !decodeData(w, req, &data) {
		return
	}
	if err := s.gateway.Delete(r.Context(), req.Token, data.Collection, data.ID); err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	writeSuccess(w, map[string]any{"id": data.ID, "deleted": true})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request, req Request) {
	var data batchData
	if !decodeData(w, req, &data) {
		return
	}
	op, err := gateway.ParseBatchOp(data.Operation)
	if err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	res, err := s.gateway.Batch(r.Context(), req.Token, op, data.Collection, data.Items)
	if err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	writeSuccess(w, res)
}

func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request, req Request) {
	var data aggregateData
	if !decodeData(w, req, &data) {
		return
	}
	docs, err := s.gateway.Aggregate(r.Context(), req.Token, data.Collection, data.Pipeline)
	if err != nil {
		s.writeGatewayError(w, r, string(req.Action), err)
		return
	}
	writeSuccess(w, docs)
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
