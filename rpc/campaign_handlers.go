package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"campchain/native/campaign"
)

const (
	codeCampaignInvalidParams = -32021
	codeCampaignNotFound      = -32022
	codeCampaignForbidden     = -32023
	codeCampaignConflict      = -32024
	codeCampaignInternal      = -32025
)

type campaignCreateParams struct {
	Owner           string `json:"owner"`
	Verifier        string `json:"verifier"`
	Deposit         string `json:"deposit"`
	MaxParticipants uint64 `json:"maxParticipants"`
}

type campaignIDParams struct {
	ID string `json:"id"`
}

type campaignJoinParams struct {
	ID     string `json:"id"`
	Wallet string `json:"wallet"`
	Handle string `json:"handle"`
}

type campaignReleaseParams struct {
	ID          string `json:"id"`
	Participant string `json:"participant"`
	Caller      string `json:"caller"`
}

type campaignParticipantParams struct {
	ID     string `json:"id"`
	Wallet string `json:"wallet"`
}

type campaignOwnerParams struct {
	Owner string `json:"owner"`
}

type campaignIndexParams struct {
	Index uint64 `json:"index"`
}

type balanceParams struct {
	Address string `json:"address"`
}

type eventsParams struct {
	Offset uint64 `json:"offset"`
}

type campaignCreateResult struct {
	ID string `json:"id"`
}

type campaignJSON struct {
	ID                   string `json:"id"`
	Owner                string `json:"owner"`
	Verifier             string `json:"verifier"`
	TotalBudget          string `json:"totalBudget"`
	RewardPerParticipant string `json:"rewardPerParticipant"`
	MaxParticipants      uint64 `json:"maxParticipants"`
	ParticipantCount     uint64 `json:"participantCount"`
	CreatedAt            uint64 `json:"createdAt"`
}

type campaignInfoJSON struct {
	Owner                string `json:"owner"`
	Budget               string `json:"budget"`
	ParticipantCount     uint64 `json:"participantCount"`
	MaxParticipants      uint64 `json:"maxParticipants"`
	RewardPerParticipant string `json:"rewardPerParticipant"`
}

type participantJSON struct {
	Wallet     string `json:"wallet"`
	Handle     string `json:"handle"`
	Registered bool   `json:"registered"`
	Paid       bool   `json:"paid"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func (s *Server) handleCampaignCreate(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params campaignCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	verifier, err := parseAddress(params.Verifier)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	deposit, err := parsePositiveBigInt(params.Deposit)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	c, err := s.node.CampaignCreate(owner, verifier, deposit, params.MaxParticipants)
	if err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, campaignCreateResult{ID: formatAddress(c.ID)})
}

func (s *Server) handleCampaignJoin(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params campaignJoinParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseAddress(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	wallet, err := parseAddress(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	p, err := s.node.CampaignJoin(id, wallet, params.Handle)
	if err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatParticipantJSON(p))
}

func (s *Server) handleCampaignRelease(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params campaignReleaseParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseAddress(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	wallet, err := parseAddress(params.Participant)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := parseAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.CampaignRelease(id, wallet, caller); err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, "ok")
}

func (s *Server) handleCampaignGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params campaignIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseAddress(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	c, err := s.node.CampaignGet(id)
	if err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatCampaignJSON(c))
}

func (s *Server) handleCampaignInfo(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params campaignIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseAddress(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	info, err := s.node.CampaignInfoGet(id)
	if err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, campaignInfoJSON{
		Owner:                formatAddress(info.Owner),
		Budget:               info.Budget.String(),
		ParticipantCount:     info.ParticipantCount,
		MaxParticipants:      info.MaxParticipants,
		RewardPerParticipant: info.RewardPerParticipant.String(),
	})
}

func (s *Server) handleCampaignParticipant(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params campaignParticipantParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := parseAddress(params.ID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	wallet, err := parseAddress(params.Wallet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	p, err := s.node.CampaignParticipant(id, wallet)
	if err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, formatParticipantJSON(p))
}

func (s *Server) handleCampaignListByOwner(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params campaignOwnerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	owner, err := parseAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	ids, err := s.node.CampaignsByOwner(owner)
	if err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, formatAddress(id))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleCampaignTotal(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	count, err := s.node.CampaignCount()
	if err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, count)
}

func (s *Server) handleCampaignAtIndex(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params campaignIndexParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := s.node.CampaignAt(params.Index)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeCampaignNotFound, "not_found", err.Error())
		return
	}
	writeResult(w, req.ID, formatAddress(id))
}

func (s *Server) handleCampaignFeePercent(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, s.node.FeePercent())
}

func (s *Server) handleGetBalance(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := parseAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeCampaignError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, balanceResult{
		Address: formatAddress(addr),
		Balance: account.Balance.String(),
		Nonce:   account.Nonce,
	})
}

func (s *Server) handleGetEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var offset uint64
	if len(req.Params) == 1 {
		var params eventsParams
		if err := json.Unmarshal(req.Params[0], &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeCampaignInvalidParams, "invalid_params", err.Error())
			return
		}
		offset = params.Offset
	}
	evts, start := s.node.Events(offset)
	writeResult(w, req.ID, map[string]interface{}{
		"offset": start,
		"events": evts,
	})
}

func parseAddress(addr string) ([20]byte, error) {
	trimmed := strings.TrimSpace(addr)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("address required")
	}
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, fmt.Errorf("invalid address %q", trimmed)
	}
	return common.HexToAddress(trimmed), nil
}

func parsePositiveBigInt(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount")
	}
	if amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return amount, nil
}

func formatAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

func formatCampaignJSON(c *campaign.Campaign) campaignJSON {
	return campaignJSON{
		ID:                   formatAddress(c.ID),
		Owner:                formatAddress(c.Owner),
		Verifier:             formatAddress(c.Verifier),
		TotalBudget:          c.TotalBudget.String(),
		RewardPerParticipant: c.RewardPerParticipant.String(),
		MaxParticipants:      c.MaxParticipants,
		ParticipantCount:     c.ParticipantCount,
		CreatedAt:            c.CreatedAt,
	}
}

func formatParticipantJSON(p *campaign.Participant) participantJSON {
	return participantJSON{
		Wallet:     formatAddress(p.Wallet),
		Handle:     p.Handle,
		Registered: p.Registered,
		Paid:       p.Paid,
	}
}

func writeCampaignError(w http.ResponseWriter, id interface{}, err error) {
	if err == nil {
		return
	}
	status := http.StatusInternalServerError
	code := codeCampaignInternal
	message := "internal_error"
	switch {
	case errors.Is(err, campaign.ErrNotFound):
		status = http.StatusNotFound
		code = codeCampaignNotFound
		message = "not_found"
	case errors.Is(err, campaign.ErrUnauthorized):
		status = http.StatusForbidden
		code = codeCampaignForbidden
		message = "forbidden"
	case errors.Is(err, campaign.ErrCampaignFull),
		errors.Is(err, campaign.ErrAlreadyRegistered),
		errors.Is(err, campaign.ErrAlreadyPaid),
		errors.Is(err, campaign.ErrNotRegistered),
		errors.Is(err, campaign.ErrInsufficientFunds):
		status = http.StatusConflict
		code = codeCampaignConflict
		message = "conflict"
	case errors.Is(err, campaign.ErrInvalidVerifier),
		errors.Is(err, campaign.ErrInvalidCapacity),
		errors.Is(err, campaign.ErrInsufficientDeposit),
		errors.Is(err, campaign.ErrInvalidBudget),
		errors.Is(err, campaign.ErrInvalidHandle):
		status = http.StatusBadRequest
		code = codeCampaignInvalidParams
		message = "invalid_params"
	}
	writeError(w, status, id, code, message, err.Error())
}
