package adapters

import (
	"crypto/hmac"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/fastprodman/gamegateway/internal/providers"
)

// infinity signals success with a boolean and carries amounts as integer
// minor units. Callbacks also carry the static operator token when one is
// configured.
type infinity struct{}

func (infinity) Protocol() string { return "infinity" }

type infLaunchBody struct {
	Operator  string `json:"operator"`
	Game      string `json:"game"`
	Player    string `json:"player"`
	Currency  string `json:"currency"`
	Locale    string `json:"locale"`
	HomeURL   string `json:"homeUrl"`
	Real      bool   `json:"real"`
	Token     string `json:"token,omitempty"`
	Signature string `json:"sig"`
}

type infLaunchReply struct {
	Success   *bool  `json:"success"`
	URL       string `json:"url"`
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

type infCallback struct {
	Operator    string `json:"operator"`
	Token       string `json:"token"`
	Player      string `json:"player"`
	Game        string `json:"game"`
	Round       string `json:"round"`
	TxID        string `json:"txId"`
	RefTxID     string `json:"refTxId"`
	AmountCents *int64 `json:"amountCents"`
	Currency    string `json:"currency"`
	Kind        string `json:"kind"`
}

type infCallbackReply struct {
	Success   bool   `json:"success"`
	Balance   *int64 `json:"balance,omitempty"`
	Currency  string `json:"currency,omitempty"`
	TxID      string `json:"txId,omitempty"`
	ErrorCode string `json:"errorCode,omitempty"`
}

var infKinds = map[string]TxType{
	"wager":      TxBet,
	"payout":     TxWin,
	"cancel":     TxRefund,
	"getbalance": TxBalance,
}

func (infinity) BuildLaunchRequest(req GameLaunchRequest, d providers.Descriptor) (WireRequest, error) {
	body := infLaunchBody{
		Operator: d.Credentials.AgentID,
		Game:     req.GameID,
		Player:   req.PlayerID,
		Currency: req.Currency,
		Locale:   req.Language,
		HomeURL:  req.ReturnURL,
		Real:     playMode(req.Mode) == ModeReal,
		Token:    req.SessionToken,
	}
	body.Signature = Sign(map[string]string{
		"operator": body.Operator,
		"game":     body.Game,
		"player":   body.Player,
	}, d.Credentials.Secret)

	raw, err := json.Marshal(body)
	if err != nil {
		return WireRequest{}, fmt.Errorf("marshal launch body: %w", err)
	}

	u, err := url.JoinPath(d.Credentials.Endpoint, "launch")
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

func (infinity) ParseLaunchResponse(resp WireResponse) (GameLaunchResponse, error) {
	var reply infLaunchReply

	err := json.Unmarshal(resp.Body, &reply)
	if err != nil {
		return GameLaunchResponse{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if reply.Success == nil {
		return GameLaunchResponse{}, fmt.Errorf("%w: missing success flag", ErrMalformedPayload)
	}

	if !*reply.Success || reply.URL == "" {
		return GameLaunchResponse{Success: false, ErrorMessage: reply.Reason}, nil
	}

	return GameLaunchResponse{Success: true, GameURL: reply.URL, SessionID: reply.SessionID}, nil
}

func (infinity) ValidateCallback(raw []byte, d providers.Descriptor) error {
	var cb infCallback

	err := json.Unmarshal(raw, &cb)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidAgent, ErrMalformedPayload)
	}

	err = agentMatches(cb.Operator, d)
	if err != nil {
		return err
	}

	if d.Credentials.Token != "" && !hmac.Equal([]byte(cb.Token), []byte(d.Credentials.Token)) {
		return fmt.Errorf("%w: token mismatch", ErrInvalidAgent)
	}

	return nil
}

func (infinity) NormalizeCallback(raw []byte) (NormalizedTransaction, error) {
	var cb infCallback

	err := json.Unmarshal(raw, &cb)
	if err != nil {
		return NormalizedTransaction{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	typ, ok := infKinds[strings.ToLower(cb.Kind)]
	if !ok {
		return NormalizedTransaction{}, fmt.Errorf("%w: %q", ErrInvalidTransactionType, cb.Kind)
	}

	var amount int64
	if cb.AmountCents != nil {
		if *cb.AmountCents < 0 {
			return NormalizedTransaction{}, fmt.Errorf("%w: negative amount", ErrMalformedPayload)
		}

		amount = *cb.AmountCents
	}

	tx := NormalizedTransaction{
		PlayerID:              cb.Player,
		GameID:                cb.Game,
		RoundID:               cb.Round,
		TransactionID:         cb.TxID,
		OriginalTransactionID: cb.RefTxID,
		Amount:                amount,
		Currency:              cb.Currency,
		Type:                  typ,
	}

	return tx, checkRequired(tx)
}

func (infinity) EncodeCallbackResponse(res CallbackResult) ([]byte, error) {
	if !res.Success {
		return json.Marshal(infCallbackReply{Success: false, ErrorCode: string(res.Code)})
	}

	bal := res.Balance

	return json.Marshal(infCallbackReply{
		Success:  true,
		Balance:  &bal,
		Currency: res.Currency,
		TxID:     res.TransactionID,
	})
}

type infGameList struct {
	Success bool `json:"success"`
	Games   []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Demo bool   `json:"demo"`
	} `json:"games"`
}

func (infinity) BuildGameListRequest(d providers.Descriptor) (WireRequest, error) {
	u, err := url.Parse(d.Credentials.Endpoint)
	if err != nil {
		return WireRequest{}, fmt.Errorf("parse endpoint: %w", err)
	}

	u = u.JoinPath("games")
	q := url.Values{}
	q.Set("operator", d.Credentials.AgentID)
	q.Set("sig", Sign(map[string]string{"operator": d.Credentials.AgentID}, d.Credentials.Secret))
	u.RawQuery = q.Encode()

	return WireRequest{Method: http.MethodGet, URL: u.String(), Header: http.Header{}}, nil
}

func (infinity) ParseGameList(resp WireResponse) ([]Game, error) {
	var list infGameList

	err := json.Unmarshal(resp.Body, &list)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if !list.Success {
		return nil, fmt.Errorf("%w: game list rejected", ErrMalformedPayload)
	}

	games := make([]Game, 0, len(list.Games))
	for _, g := range list.Games {
		games = append(games, Game{ID: g.ID, Name: g.Name, Demo: g.Demo})
	}

	return games, nil
}
