package routes

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"campchain/core"
	"campchain/gateway/client"
	"campchain/gateway/middleware"
	"campchain/native/fees"
	"campchain/rpc"
	"campchain/storage"
)

const (
	nodeToken   = "node-secret"
	jwtSecret   = "gateway-secret"
	jwtIssuer   = "campchain-test"
	writeScope  = "campaign:write"
	ownerHex    = "0x1111111111111111111111111111111111111111"
	verifierHex = "0x2222222222222222222222222222222222222222"
	walletHex   = "0x3333333333333333333333333333333333333333"
	treasuryHex = "0x4444444444444444444444444444444444444444"
)

func hexAddr(s string) [20]byte {
	return common.HexToAddress(s)
}

func newTestGateway(t *testing.T) (*httptest.Server, func(scopes string) string) {
	t.Helper()
	policy := fees.Policy{FeePercent: 5, Treasury: hexAddr(treasuryHex)}
	alloc := []core.GenesisAlloc{
		{Address: hexAddr(ownerHex), Balance: big.NewInt(100000)},
	}
	node, err := core.NewNode(storage.NewMemDB(), policy, alloc, nil)
	require.NoError(t, err)

	rpcServer := rpc.NewServer(node, nodeToken)
	nodeHTTP := httptest.NewServer(rpcServer.Handler())
	t.Cleanup(nodeHTTP.Close)

	nodeClient := client.New(nodeHTTP.URL, nodeToken, 5*time.Second)
	auth := middleware.NewAuthenticator(middleware.AuthConfig{
		Enabled:    true,
		HMACSecret: jwtSecret,
		Issuer:     jwtIssuer,
	}, nil)
	handler, err := New(Config{
		Node:          nodeClient,
		Verifier:      verifierHex,
		Authenticator: auth,
		RateLimiter:   middleware.NewRateLimiter(nil),
		WriteScopes:   []string{writeScope},
	})
	require.NoError(t, err)
	gw := httptest.NewServer(handler)
	t.Cleanup(gw.Close)

	mint := func(scopes string) string {
		claims := jwt.MapClaims{
			"iss":   jwtIssuer,
			"exp":   time.Now().Add(time.Hour).Unix(),
			"scope": scopes,
		}
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
		signed, err := token.SignedString([]byte(jwtSecret))
		require.NoError(t, err)
		return signed
	}
	return gw, mint
}

func doJSON(t *testing.T, method, url, token string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	decoded := map[string]interface{}{}
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func createCampaign(t *testing.T, gw *httptest.Server, token string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns", token, createCampaignRequest{
		Owner:           ownerHex,
		Deposit:         "1000",
		MaxParticipants: 10,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, ok := body["id"].(string)
	require.True(t, ok)
	require.NotEmpty(t, id)
	return id
}

func TestHealthz(t *testing.T) {
	gw, _ := newTestGateway(t)
	resp, err := http.Get(gw.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRequiresJWT(t *testing.T) {
	gw, mint := newTestGateway(t)

	resp, _ := doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns", "", createCampaignRequest{
		Owner: ownerHex, Deposit: "1000", MaxParticipants: 5,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": jwtIssuer, "exp": time.Now().Add(time.Hour).Unix(), "scope": writeScope,
	})
	signed, err := forged.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)
	resp, _ = doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns", signed, createCampaignRequest{
		Owner: ownerHex, Deposit: "1000", MaxParticipants: 5,
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns", mint(writeScope), createCampaignRequest{
		Owner: ownerHex, Deposit: "1000", MaxParticipants: 5,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCampaignLifecycleOverREST(t *testing.T) {
	gw, mint := newTestGateway(t)
	token := mint(writeScope)
	id := createCampaign(t, gw, token)

	resp, body := doJSON(t, http.MethodGet, gw.URL+"/v1/campaigns/"+id, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, ownerHex, body["owner"])
	require.Equal(t, "950", body["totalBudget"])
	require.Equal(t, "95", body["rewardPerParticipant"])

	resp, body = doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns/"+id+"/join", token, joinCampaignRequest{
		Wallet: walletHex,
		Handle: "influencer",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "@influencer", body["handle"])
	require.Equal(t, true, body["registered"])

	resp, _ = doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns/"+id+"/join", token, joinCampaignRequest{
		Wallet: walletHex,
		Handle: "@influencer",
	})
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns/"+id+"/verify/"+walletHex, token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, true, body["paid"])

	resp, _ = doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns/"+id+"/verify/"+walletHex, token, nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, gw.URL+"/v1/campaigns/"+id+"/info", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "855", body["budget"])
}

func TestListCampaigns(t *testing.T) {
	gw, mint := newTestGateway(t)
	token := mint(writeScope)
	first := createCampaign(t, gw, token)
	second := createCampaign(t, gw, token)

	resp, body := doJSON(t, http.MethodGet, gw.URL+"/v1/campaigns", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(2), body["total"])
	ids, ok := body["campaigns"].([]interface{})
	require.True(t, ok)
	require.Equal(t, []interface{}{first, second}, ids)

	resp, body = doJSON(t, http.MethodGet, gw.URL+"/v1/campaigns?owner="+ownerHex, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, float64(2), body["total"])
}

func TestUnknownCampaignIs404(t *testing.T) {
	gw, _ := newTestGateway(t)
	missing := "0x9999999999999999999999999999999999999999"
	resp, _ := doJSON(t, http.MethodGet, gw.URL+"/v1/campaigns/"+missing, "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestInsufficientScopeIs403(t *testing.T) {
	gw, mint := newTestGateway(t)
	resp, _ := doJSON(t, http.MethodPost, gw.URL+"/v1/campaigns", mint("campaign:read"), createCampaignRequest{
		Owner: ownerHex, Deposit: "1000", MaxParticipants: 5,
	})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}
