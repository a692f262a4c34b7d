package adapters

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fastprodman/gamegateway/internal/providers"
	"github.com/shopspring/decimal"
)

// pragmatic signals success with an integer "error" field equal to 0 and
// sends amounts as JSON decimal numbers.
type pragmatic struct{}

func (pragmatic) Protocol() string { return "pragmatic" }

type ppLaunchBody struct {
	SecureLogin      string `json:"secureLogin"`
	Symbol           string `json:"symbol"`
	ExternalPlayerID string `json:"externalPlayerId"`
	Currency         string `json:"currency"`
	Language         string `json:"language"`
	LobbyURL         string `json:"lobbyUrl"`
	PlayMode         string `json:"playMode"`
	Token            string `json:"token,omitempty"`
	Hash             string `json:"hash"`
}

type ppLaunchReply struct {
	Error       *int   `json:"error"`
	Description string `json:"description"`
	GameURL     string `json:"gameURL"`
	SessionID   string `json:"sessionId"`
}

type ppCallback struct {
	AgentID           string      `json:"agentId"`
	UserID            string      `json:"userId"`
	GameID            string      `json:"gameId"`
	RoundID           string      `json:"roundId"`
	Reference         string      `json:"reference"`
	OriginalReference string      `json:"originalReference"`
	Amount            json.Number `json:"amount"`
	Currency          string      `json:"currency"`
	Action            string      `json:"action"`
}

type ppCallbackReply struct {
	Error         int             `json:"error"`
	ErrorCode     string          `json:"errorCode,omitempty"`
	Description   string          `json:"description"`
	TransactionID string          `json:"transactionId,omitempty"`
	Cash          json.RawMessage `json:"cash,omitempty"`
	Currency      string          `json:"currency,omitempty"`
}

var ppActions = map[string]TxType{
	"bet":     TxBet,
	"result":  TxWin,
	"refund":  TxRefund,
	"balance": TxBalance,
}

var ppErrorNumbers = map[ErrorCode]int{
	CodeLedgerError:            1,
	CodeInvalidAgent:           4,
	CodeInvalidTransactionType: 7,
	CodeInternalError:          100,
}

func (pragmatic) BuildLaunchRequest(req GameLaunchRequest, d providers.Descriptor) (WireRequest, error) {
	body := ppLaunchBody{
		SecureLogin:      d.Credentials.AgentID,
		Symbol:           req.GameID,
		ExternalPlayerID: req.PlayerID,
		Currency:         req.Currency,
		Language:         req.Language,
		LobbyURL:         req.ReturnURL,
		PlayMode:         strings.ToUpper(string(playMode(req.Mode))),
		Token:            req.SessionToken,
	}
	body.Hash = Sign(map[string]string{
		"secureLogin":      body.SecureLogin,
		"symbol":           body.Symbol,
		"externalPlayerId": body.ExternalPlayerID,
		"currency":         body.Currency,
		"playMode":         body.PlayMode,
	}, d.Credentials.Secret)

	raw, err := json.Marshal(body)
	if err != nil {
		return WireRequest{}, fmt.Errorf("marshal launch body: %w", err)
	}

	u, err := url.JoinPath(d.Credentials.Endpoint, "game", "launch")
	if err != nil {
		return WireRequest{}, fmt.Errorf("launch url: %w", err)
	}

	return WireRequest{
		Method: http.MethodPost,
		URL:    u,
		Header: http.Header{"Content-Type": []string{"application/json"}},
		Body:   raw,
	}, nil
}

func (pragmatic) ParseLaunchResponse(resp WireResponse) (GameLaunchResponse, error) {
	var reply ppLaunchReply

	err := json.Unmarshal(resp.Body, &reply)
	if err != nil {
		return GameLaunchResponse{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if reply.Error == nil {
		return GameLaunchResponse{}, fmt.Errorf("%w: missing error field", ErrMalformedPayload)
	}

	if *reply.Error != 0 || reply.GameURL == "" {
		return GameLaunchResponse{Success: false, ErrorMessage: reply.Description}, nil
	}

	return GameLaunchResponse{Success: true, GameURL: reply.GameURL, SessionID: reply.SessionID}, nil
}

func (pragmatic) ValidateCallback(raw []byte, d providers.Descriptor) error {
	var cb ppCallback

	err := json.Unmarshal(raw, &cb)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAgent, ErrMalformedPayload)
	}

	return agentMatches(cb.AgentID, d)
}

func (pragmatic) NormalizeCallback(raw []byte) (NormalizedTransaction, error) {
	var cb ppCallback

	err := json.Unmarshal(raw, &cb)
	if err != nil {
		return NormalizedTransaction{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	typ, ok := ppActions[strings.ToLower(cb.Action)]
	if !ok {
		return NormalizedTransaction{}, fmt.Errorf("%w: %q", ErrInvalidTransactionType, cb.Action)
	}

	var amount int64
	if cb.Amount != "" {
		d, err := decimal.NewFromString(cb.Amount.String())
		if err != nil {
			return NormalizedTransaction{}, fmt.Errorf("%w: amount: %v", ErrMalformedPayload, err)
		}

		amount, err = toMinor(d)
		if err != nil {
			return NormalizedTransaction{}, err
		}
	}

	tx := NormalizedTransaction{
		PlayerID:              cb.UserID,
		GameID:                cb.GameID,
		RoundID:               cb.RoundID,
		TransactionID:         cb.Reference,
		OriginalTransactionID: cb.OriginalReference,
		Amount:                amount,
		Currency:              cb.Currency,
		Type:                  typ,
	}

	return tx, checkRequired(tx)
}

func (pragmatic) EncodeCallbackResponse(res CallbackResult) ([]byte, error) {
	reply := ppCallbackReply{Description: "Success"}

	if res.Success {
		reply.TransactionID = res.TransactionID
		reply.Cash = json.RawMessage(fromMinor(res.Balance).StringFixed(2))
		reply.Currency = res.Currency
	} else {
		reply.Error = ppErrorNumbers[res.Code]
		if reply.Error == 0 {
			reply.Error = ppErrorNumbers[CodeInternalError]
		}
		reply.ErrorCode = string(res.Code)
		reply.Description = "Request failed"
	}

	return json.Marshal(reply)
}

type ppGameList struct {
	Error *int `json:"error"`
	Games []struct {
		GameID string `json:"gameID"`
		Name   string `json:"gameName"`
		Demo   bool   `json:"demoGameAvailable"`
	} `json:"gameList"`
}

func (pragmatic) BuildGameListRequest(d providers.Descriptor) (WireRequest, error) {
	u, err := url.Parse(d.Credentials.Endpoint)
	if err != nil {
		return WireRequest{}, fmt.Errorf("parse endpoint: %w", err)
	}

	u = u.JoinPath("game", "list")
	q := url.Values{}
	q.Set("secureLogin", d.Credentials.AgentID)
	q.Set("hash", Sign(map[string]string{"secureLogin": d.Credentials.AgentID}, d.Credentials.Secret))
	u.RawQuery = q.Encode()

	return WireRequest{Method: http.MethodGet, URL: u.String(), Header: http.Header{}}, nil
}

func (pragmatic) ParseGameList(resp WireResponse) ([]Game, error) {
	var list ppGameList

	err := json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if list.Error == nil || *list.Error != 0 {
		return nil, fmt.Errorf("%w: game list rejected", ErrMalformedPayload)
	}

	games := make([]Game, 0, len(list.Games))
	for _, g := range list.Games {
		games = append(games, Game{ID: g.GameID, Name: g.Name, Demo: g.Demo})
	}

	return games, nil
}

// checkRequired enforces the identifiers every transaction type needs.
func checkRequired(tx NormalizedTransaction) error {
	if tx.PlayerID == "" {
		return fmt.Errorf("%w: missing player id", ErrMalformedPayload)
	}

	if tx.Type == TxBalance {
		return nil
	}

	if tx.TransactionID == "" {
		return fmt.Errorf("%w: missing transaction id", ErrMalformedPayload)
	}

	if tx.Type != TxRefund && tx.Amount <= 0 {
		return fmt.Errorf("%w: amount must be > 0", ErrMalformedPayload)
	}

	return nil
}
