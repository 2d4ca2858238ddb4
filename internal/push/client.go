// Package push delivers notifications through the Expo push gateway and
// iOS VoIP pushes through APNs.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	expo "github.com/oliveroneill/exponent-server-sdk-golang/sdk"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/token"
)

const (
	maxErrorBody = 4 << 10

	defaultGatewayHost    = "https://exp.host"
	defaultGatewayAPIPath = "/--/api/v2"
)

// Message is a standard data+alert push.
type Message struct {
	To        string
	Title     string
	Body      string
	Data      map[string]any
	Priority  string
	Sound     string
	ChannelID string
	Category  string
	TTL       int
}

// VoIPMessage is a high-priority PushKit push for an incoming-call UI.
type VoIPMessage struct {
	DeviceToken string
	Payload     map[string]any
	Expiration  time.Time
}

type ClientConfig struct {
	GatewayHost    string
	GatewayAPIPath string
	GatewayToken   string
	Transport      http.RoundTripper
	// VoIP is nil when no APNs key is configured.
	VoIP      *apns2.Client
	VoIPTopic string
}

type Client struct {
	host      string
	apiPath   string
	token     string
	transport http.RoundTripper
	voip      *apns2.Client
	voipTopic string
}

func NewClient(cfg ClientConfig) *Client {
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	host := cfg.GatewayHost
	if host == "" {
		host = defaultGatewayHost
	}
	apiPath := cfg.GatewayAPIPath
	if apiPath == "" {
		apiPath = defaultGatewayAPIPath
	}
	return &Client{
		host:      host,
		apiPath:   apiPath,
		token:     cfg.GatewayToken,
		transport: transport,
		voip:      cfg.VoIP,
		voipTopic: cfg.VoIPTopic,
	}
}

// NewAPNsClient builds a token-authenticated APNs client from a .p8 key file.
func NewAPNsClient(keyPath, keyID, teamID string, production bool) (*apns2.Client, error) {
	authKey, err := token.AuthKeyFromFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("load apns auth key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   keyID,
		TeamID:  teamID,
	})
	if production {
		return client.Production(), nil
	}
	return client.Development(), nil
}

// VoIPEnabled reports whether SendVoIP has an APNs client to send through.
func (c *Client) VoIPEnabled() bool {
	return c.voip != nil
}

func (c *Client) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return newError(KindMalformed, 0, "missing target token")
	}

	gateway := expo.NewPushClient(&expo.ClientConfig{
		Host:   c.host,
		APIURL: c.apiPath,
		HTTPClient: &http.Client{Transport: &gatewayTransport{
			ctx:   ctx,
			base:  c.transport,
			token: c.token,
		}},
	})

	resp, err := gateway.Publish(&expo.PushMessage{
		To:         []expo.ExponentPushToken{expo.ExponentPushToken(msg.To)},
		Title:      msg.Title,
		Body:       msg.Body,
		Data:       stringData(msg.Data, msg.Category),
		Priority:   msg.Priority,
		Sound:      msg.Sound,
		ChannelID:  msg.ChannelID,
		TTLSeconds: msg.TTL,
	})
	if err != nil {
		var pushErr *Error
		if errors.As(err, &pushErr) {
			return pushErr
		}
		if kind := Classify(err); kind != KindUnknown {
			return &Error{Kind: kind, Reason: "request failed", cause: err}
		}
		return &Error{Kind: KindMalformed, Reason: "gateway request rejected", cause: err}
	}

	if err := resp.ValidateResponse(); err != nil {
		reason := resp.Details["error"]
		if reason == "" {
			reason = resp.Message
		}
		return newError(kindForTicket(err, resp.Details["error"]), http.StatusOK, reason)
	}
	return nil
}

func kindForTicket(err error, reason string) Kind {
	switch err.(type) {
	case *expo.DeviceNotRegisteredError:
		return KindInvalidToken
	case *expo.MessageRateExceededError:
		return KindRateLimited
	case *expo.MessageTooBigError:
		return KindMalformed
	}
	return kindForReason(reason)
}

func (c *Client) SendVoIP(ctx context.Context, msg VoIPMessage) error {
	if msg.DeviceToken == "" {
		return newError(KindMalformed, 0, "missing voip token")
	}
	if c.voip == nil {
		return newError(KindMalformed, 0, "voip gateway not configured")
	}

	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		return newError(KindMalformed, 0, fmt.Sprintf("marshal payload: %v", err))
	}

	res, err := c.voip.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: msg.DeviceToken,
		Topic:       c.voipTopic,
		Payload:     payload,
		PushType:    apns2.PushTypeVOIP,
		Priority:    apns2.PriorityHigh,
		Expiration:  msg.Expiration,
	})
	if err != nil {
		return transportError(err)
	}
	if res.Sent() {
		return nil
	}

	kind := kindForStatus(res.StatusCode)
	reason := res.Reason
	if reason == "" {
		reason = http.StatusText(res.StatusCode)
	} else if rk := kindForReason(reason); rk != KindUnknown {
		kind = rk
	}
	return newError(kind, res.StatusCode, reason)
}

type gatewayErrorResponse struct {
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// gatewayTransport binds gateway requests to the caller's context, adds the
// access token and turns non-2xx responses into classified errors.
type gatewayTransport struct {
	ctx   context.Context
	base  http.RoundTripper
	token string
}

func (t *gatewayTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.Clone(t.ctx)
	out.Header.Set("Accept", "application/json")
	if t.token != "" {
		out.Header.Set("Authorization", "Bearer "+t.token)
	}

	resp, err := t.base.RoundTrip(out)
	if err != nil {
		return nil, transportError(err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, transportError(err)
	}
	var parsed gatewayErrorResponse
	_ = json.Unmarshal(body, &parsed)

	kind := kindForStatus(resp.StatusCode)
	reason := http.StatusText(resp.StatusCode)
	if len(parsed.Errors) > 0 {
		reason = parsed.Errors[0].Code
		if rk := kindForReason(reason); rk != KindUnknown {
			kind = rk
		}
	}
	return nil, newError(kind, resp.StatusCode, reason)
}

// stringData flattens data for the gateway, which only carries string values.
func stringData(data map[string]any, category string) map[string]string {
	if len(data) == 0 && category == "" {
		return nil
	}
	out := make(map[string]string, len(data)+1)
	for k, v := range data {
		switch val := v.(type) {
		case string:
			out[k] = val
		default:
			encoded, err := json.Marshal(val)
			if err != nil {
				out[k] = fmt.Sprint(val)
				continue
			}
			out[k] = string(encoded)
		}
	}
	if category != "" {
		out["categoryId"] = category
	}
	return out
}
