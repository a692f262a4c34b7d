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

// gameSolution uses snake_case fields, a string status of "OK" for success and
// decimal amounts encoded as strings.
type gameSolution struct{}

func (gameSolution) Protocol() string { return "gamesolution" }

const gsStatusOK = "OK"

type gsLaunchBody struct {
	PartnerID string `json:"partner_id"`
	GameCode  string `json:"game_code"`
	PlayerID  string `json:"player_id"`
	Currency  string `json:"currency"`
	Lang      string `json:"lang"`
	ExitURL   string `json:"exit_url"`
	Demo      bool   `json:"demo"`
	Session   string `json:"session,omitempty"`
	WalletURL string `json:"wallet_url,omitempty"`
	Signature string `json:"signature"`
}

type gsLaunchReply struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	GameURL   string `json:"game_url"`
	SessionID string `json:"session_id"`
}

type gsCallback struct {
	PartnerID             string `json:"partner_id"`
	PlayerID              string `json:"player_id"`
	GameCode              string `json:"game_code"`
	RoundID               string `json:"round_id"`
	TransactionID         string `json:"transaction_id"`
	OriginalTransactionID string `json:"original_transaction_id"`
	Amount                string `json:"amount"`
	Currency              string `json:"currency"`
	Type                  string `json:"type"`
}

type gsCallbackReply struct {
	Status        string `json:"status"`
	Balance       string `json:"balance,omitempty"`
	Currency      string `json:"currency,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	ErrorCode     string `json:"error_code,omitempty"`
}

var gsTypes = map[string]TxType{
	"DEBIT":    TxBet,
	"CREDIT":   TxWin,
	"ROLLBACK": TxRefund,
	"BALANCE":  TxBalance,
}

func (gameSolution) BuildLaunchRequest(req GameLaunchRequest, d providers.Descriptor) (WireRequest, error) {
	body := gsLaunchBody{
		PartnerID: d.Credentials.AgentID,
		GameCode:  req.GameID,
		PlayerID:  req.PlayerID,
		Currency:  req.Currency,
		Lang:      req.Language,
		ExitURL:   req.ReturnURL,
		Demo:      playMode(req.Mode) == ModeDemo,
		Session:   req.SessionToken,
		WalletURL: d.Credentials.CallbackURL,
	}
	body.Signature = Sign(map[string]string{
		"partner_id": body.PartnerID,
		"game_code":  body.GameCode,
		"player_id":  body.PlayerID,
		"currency":   body.Currency,
	}, d.Credentials.Secret)

	raw, err := json.Marshal(body)
	if err != nil {
		return WireRequest{}, fmt.Errorf("marshal launch body: %w", err)
	}

	u, err := url.JoinPath(d.Credentials.Endpoint, "api", "v2", "sessions")
	if err != nil {
		return WireRequest{}, fmt.Errorf("launch url: %w", err)
	}

	header := http.Header{"Content-Type": []string{"application/json"}}
	if d.Credentials.Token != "" {
		header.Set("Authorization", "Bearer "+d.Credentials.Token)
	}

	return WireRequest{Method: http.MethodPost, URL: u, Header: header, Body: raw}, nil
}

func (gameSolution) ParseLaunchResponse(resp WireResponse) (GameLaunchResponse, error) {
	var reply gsLaunchReply

	err := json.Unmarshal(resp.Body, &reply)
	if err != nil {
		return GameLaunchResponse{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if reply.Status == "" {
		return GameLaunchResponse{}, fmt.Errorf("%w: missing status", ErrMalformedPayload)
	}

	if !strings.EqualFold(reply.Status, gsStatusOK) || reply.GameURL == "" {
		return GameLaunchResponse{Success: false, ErrorMessage: reply.Message}, nil
	}

	return GameLaunchResponse{Success: true, GameURL: reply.GameURL, SessionID: reply.SessionID}, nil
}

func (gameSolution) ValidateCallback(raw []byte, d providers.Descriptor) error {
	var cb gsCallback

	err := json.Unmarshal(raw, &cb)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAgent, ErrMalformedPayload)
	}

	return agentMatches(cb.PartnerID, d)
}

func (gameSolution) NormalizeCallback(raw []byte) (NormalizedTransaction, error) {
	var cb gsCallback

	err := json.Unmarshal(raw, &cb)
	if err != nil {
		return NormalizedTransaction{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	typ, ok := gsTypes[strings.ToUpper(cb.Type)]
	if !ok {
		return NormalizedTransaction{}, fmt.Errorf("%w: %q", ErrInvalidTransactionType, cb.Type)
	}

	var amount int64
	if cb.Amount != "" {
		d, err := decimal.NewFromString(cb.Amount)
		if err != nil {
			return NormalizedTransaction{}, fmt.Errorf("%w: amount: %v", ErrMalformedPayload, err)
		}

		amount, err = toMinor(d)
		if err != nil {
			return NormalizedTransaction{}, err
		}
	}

	tx := NormalizedTransaction{
		PlayerID:              cb.PlayerID,
		GameID:                cb.GameCode,
		RoundID:               cb.RoundID,
		TransactionID:         cb.TransactionID,
		OriginalTransactionID: cb.OriginalTransactionID,
		Amount:                amount,
		Currency:              cb.Currency,
		Type:                  typ,
	}

	return tx, checkRequired(tx)
}

func (gameSolution) EncodeCallbackResponse(res CallbackResult) ([]byte, error) {
	if !res.Success {
		return json.Marshal(gsCallbackReply{Status: "ERROR", ErrorCode: string(res.Code)})
	}

	return json.Marshal(gsCallbackReply{
		Status:        gsStatusOK,
		Balance:       fromMinor(res.Balance).StringFixed(2),
		Currency:      res.Currency,
		TransactionID: res.TransactionID,
	})
}

type gsGameList struct {
	Status string `json:"status"`
	Games  []struct {
		Code  string `json:"game_code"`
		Title string `json:"title"`
		Demo  bool   `json:"has_demo"`
	} `json:"games"`
}

func (gameSolution) BuildGameListRequest(d providers.Descriptor) (WireRequest, error) {
	u, err := url.Parse(d.Credentials.Endpoint)
	if err != nil {
		return WireRequest{}, fmt.Errorf("parse endpoint: %w", err)
	}

	u = u.JoinPath("api", "v2", "games")
	q := url.Values{}
	q.Set("partner_id", d.Credentials.AgentID)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if d.Credentials.Token != "" {
		header.Set("Authorization", "Bearer "+d.Credentials.Token)
	}

	return WireRequest{Method: http.MethodGet, URL: u.String(), Header: header}, nil
}

func (gameSolution) ParseGameList(resp WireResponse) ([]Game, error) {
	var list gsGameList

	err := json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if !strings.EqualFold(list.Status, gsStatusOK) {
		return nil, fmt.Errorf("%w: game list status %q", ErrMalformedPayload, list.Status)
	}

	games := make([]Game, 0, len(list.Games))
	for _, g := range list.Games {
		games = append(games, Game{ID: g.Code, Name: g.Title, Demo: g.Demo})
	}

	return games, nil
}
