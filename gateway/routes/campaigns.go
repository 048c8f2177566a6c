package routes

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"campchain/gateway/client"
)

const campaignRequestLimit = 1 << 20 // 1 MiB

// campaignRoutes bridges the REST surface onto the node's JSON-RPC methods.
// The gateway holds the verifier role: verify calls release rewards with the
// configured verifier address as the caller.
type campaignRoutes struct {
	node     *client.Client
	verifier string
}

func newCampaignRoutes(node *client.Client, verifier string) *campaignRoutes {
	return &campaignRoutes{node: node, verifier: strings.TrimSpace(verifier)}
}

type createCampaignRequest struct {
	Owner           string `json:"owner"`
	Verifier        string `json:"verifier"`
	Deposit         string `json:"deposit"`
	MaxParticipants uint64 `json:"maxParticipants"`
}

type joinCampaignRequest struct {
	Wallet string `json:"wallet"`
	Handle string `json:"handle"`
}

type campaignResponse struct {
	ID                   string `json:"id"`
	Owner                string `json:"owner"`
	Verifier             string `json:"verifier"`
	TotalBudget          string `json:"totalBudget"`
	RewardPerParticipant string `json:"rewardPerParticipant"`
	MaxParticipants      uint64 `json:"maxParticipants"`
	ParticipantCount     uint64 `json:"participantCount"`
	CreatedAt            uint64 `json:"createdAt"`
}

type campaignInfoResponse struct {
	Owner                string `json:"owner"`
	Budget               string `json:"budget"`
	ParticipantCount     uint64 `json:"participantCount"`
	MaxParticipants      uint64 `json:"maxParticipants"`
	RewardPerParticipant string `json:"rewardPerParticipant"`
}

type participantResponse struct {
	Wallet     string `json:"wallet"`
	Handle     string `json:"handle"`
	Registered bool   `json:"registered"`
	Paid       bool   `json:"paid"`
}

type campaignListResponse struct {
	Total     uint64   `json:"total"`
	Campaigns []string `json:"campaigns"`
}

func (cr *campaignRoutes) create(w http.ResponseWriter, r *http.Request) {
	var req createCampaignRequest
	if err := decodeBody(r, &req); err != nil {
		writeGatewayError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Verifier) == "" {
		req.Verifier = cr.verifier
	}
	var result struct {
		ID string `json:"id"`
	}
	params := map[string]interface{}{
		"owner":           req.Owner,
		"verifier":        req.Verifier,
		"deposit":         req.Deposit,
		"maxParticipants": req.MaxParticipants,
	}
	if err := cr.node.Call(r.Context(), "campaign_create", params, &result); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (cr *campaignRoutes) join(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req joinCampaignRequest
	if err := decodeBody(r, &req); err != nil {
		writeGatewayError(w, http.StatusBadRequest, err)
		return
	}
	params := map[string]interface{}{
		"id":     id,
		"wallet": req.Wallet,
		"handle": req.Handle,
	}
	var result participantResponse
	if err := cr.node.Call(r.Context(), "campaign_join", params, &result); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (cr *campaignRoutes) verify(w http.ResponseWriter, r *http.Request) {
	if cr.verifier == "" {
		writeGatewayError(w, http.StatusServiceUnavailable, errors.New("verifier not configured"))
		return
	}
	id := chi.URLParam(r, "id")
	wallet := chi.URLParam(r, "wallet")
	params := map[string]interface{}{
		"id":          id,
		"participant": wallet,
		"caller":      cr.verifier,
	}
	if err := cr.node.Call(r.Context(), "campaign_release", params, nil); err != nil {
		writeNodeError(w, err)
		return
	}
	var result participantResponse
	lookup := map[string]interface{}{"id": id, "wallet": wallet}
	if err := cr.node.Call(r.Context(), "campaign_participant", lookup, &result); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (cr *campaignRoutes) get(w http.ResponseWriter, r *http.Request) {
	var result campaignResponse
	params := map[string]interface{}{"id": chi.URLParam(r, "id")}
	if err := cr.node.Call(r.Context(), "campaign_get", params, &result); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (cr *campaignRoutes) info(w http.ResponseWriter, r *http.Request) {
	var result campaignInfoResponse
	params := map[string]interface{}{"id": chi.URLParam(r, "id")}
	if err := cr.node.Call(r.Context(), "campaign_info", params, &result); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (cr *campaignRoutes) participant(w http.ResponseWriter, r *http.Request) {
	params := map[string]interface{}{
		"id":     chi.URLParam(r, "id"),
		"wallet": chi.URLParam(r, "wallet"),
	}
	var result participantResponse
	if err := cr.node.Call(r.Context(), "campaign_participant", params, &result); err != nil {
		writeNodeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (cr *campaignRoutes) list(w http.ResponseWriter, r *http.Request) {
	if owner := strings.TrimSpace(r.URL.Query().Get("owner")); owner != "" {
		var ids []string
		params := map[string]interface{}{"owner": owner}
		if err := cr.node.Call(r.Context(), "campaign_listByOwner", params, &ids); err != nil {
			writeNodeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, campaignListResponse{Total: uint64(len(ids)), Campaigns: ids})
		return
	}
	var total uint64
	if err := cr.node.Call(r.Context(), "campaign_total", nil, &total); err != nil {
		writeNodeError(w, err)
		return
	}
	ids := make([]string, 0, total)
	for i := uint64(0); i < total; i++ {
		var id string
		params := map[string]interface{}{"index": i}
		if err := cr.node.Call(r.Context(), "campaign_atIndex", params, &id); err != nil {
			writeNodeError(w, err)
			return
		}
		ids = append(ids, id)
	}
	writeJSON(w, http.StatusOK, campaignListResponse{Total: total, Campaigns: ids})
}

func decodeBody(r *http.Request, out interface{}) error {
	if r.Body == nil {
		return errors.New("missing request body")
	}
	defer r.Body.Close()
	data, err := io.ReadAll(io.LimitReader(r.Body, campaignRequestLimit))
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(data) == 0 {
		return errors.New("request body is empty")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeGatewayError(w http.ResponseWriter, status int, err error) {
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}

// writeNodeError maps the node's JSON-RPC error codes onto REST statuses.
// Transport failures surface as 502 so callers can tell the node is down.
func writeNodeError(w http.ResponseWriter, err error) {
	var rpcErr *client.RPCError
	if !errors.As(err, &rpcErr) {
		writeGatewayError(w, http.StatusBadGateway, err)
		return
	}
	status := http.StatusInternalServerError
	switch rpcErr.Code {
	case -32021, -32602, -32700:
		status = http.StatusBadRequest
	case -32022:
		status = http.StatusNotFound
	case -32023:
		status = http.StatusForbidden
	case -32024:
		status = http.StatusConflict
	case -32001:
		status = http.StatusUnauthorized
	case -32601:
		status = http.StatusNotImplemented
	case -32020:
		status = http.StatusTooManyRequests
	}
	message := rpcErr.Data
	if message == "" {
		message = rpcErr.Message
	}
	writeJSON(w, status, map[string]string{"error": message})
}
