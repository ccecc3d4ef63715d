package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"trustkit/internal/domain"
)

// ErrDuplicateRequest is returned when the gateway rejects a request because
// an identical one is already in flight. Callers treat it as a benign no-op.
var ErrDuplicateRequest = errors.New("identical request already in flight")

// outgoingMessage is one queued to-device message.
type outgoingMessage struct {
	Kind          string               `json:"kind"`
	User          domain.UserID        `json:"user,omitempty"`
	Device        domain.DeviceID      `json:"device,omitempty"`
	TransactionID domain.TransactionID `json:"transaction_id"`
	Mac           []byte               `json:"mac,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

// HTTPClient talks to a sync gateway over HTTP.
//
// The Send* methods only append to the in-memory queue; FlushOutgoing posts
// the whole batch and empties the queue on success. A failed flush keeps the
// queue intact so the caller can retry explicitly.
type HTTPClient struct {
	Base string
	HTTP *http.Client

	mu    sync.Mutex
	queue []outgoingMessage
}

// NewHTTP returns an HTTPClient for the gateway at base.
func NewHTTP(base string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{Base: base, HTTP: client}
}

// SendVerificationStart enqueues a handshake start message.
func (c *HTTPClient) SendVerificationStart(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
	id domain.TransactionID,
) error {
	c.enqueue(outgoingMessage{Kind: "verification.start", User: user, Device: device, TransactionID: id})
	return nil
}

// SendVerificationAccept enqueues an accept message.
func (c *HTTPClient) SendVerificationAccept(ctx context.Context, id domain.TransactionID) error {
	c.enqueue(outgoingMessage{Kind: "verification.accept", TransactionID: id})
	return nil
}

// SendVerificationMac enqueues our MAC over the handshake.
func (c *HTTPClient) SendVerificationMac(ctx context.Context, id domain.TransactionID, mac []byte) error {
	c.enqueue(outgoingMessage{Kind: "verification.mac", TransactionID: id, Mac: mac})
	return nil
}

// SendVerificationCancel enqueues a cancel with its reason code.
func (c *HTTPClient) SendVerificationCancel(ctx context.Context, id domain.TransactionID, reason string) error {
	c.enqueue(outgoingMessage{Kind: "verification.cancel", TransactionID: id, Reason: reason})
	return nil
}

// FlushOutgoing posts every queued message as one batch. The queue is only
// emptied on a 2xx response.
func (c *HTTPClient) FlushOutgoing(ctx context.Context) error {
	c.mu.Lock()
	batch := append([]outgoingMessage(nil), c.queue...)
	c.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	if err := c.post(ctx, "/sync/send", batch, nil); err != nil {
		return err
	}

	c.mu.Lock()
	c.queue = c.queue[len(batch):]
	c.mu.Unlock()
	return nil
}

// wireEvent is the gateway's JSON shape for one inbound event.
type wireEvent struct {
	Kind          string               `json:"kind"`
	TransactionID domain.TransactionID `json:"transaction_id"`
	User          domain.UserID        `json:"user,omitempty"`
	Device        domain.DeviceID      `json:"device,omitempty"`
	KeyMaterial   []byte               `json:"key_material,omitempty"`
	Mac           []byte               `json:"mac,omitempty"`
	Reason        string               `json:"reason,omitempty"`
}

// FetchEvents polls the gateway for queued inbound events and maps them to
// the domain event union. An event kind we do not know is an error, not a
// silent skip.
func (c *HTTPClient) FetchEvents(ctx context.Context) ([]domain.Event, error) {
	var raw []wireEvent
	if err := c.post(ctx, "/sync/events", struct{}{}, &raw); err != nil {
		return nil, err
	}

	out := make([]domain.Event, 0, len(raw))
	for _, ev := range raw {
		switch ev.Kind {
		case "verification.request":
			out = append(out, domain.VerificationRequested{
				TransactionID: ev.TransactionID, User: ev.User, Device: ev.Device,
			})
		case "verification.key":
			out = append(out, domain.VerificationKeyReceived{
				TransactionID: ev.TransactionID, User: ev.User, Device: ev.Device,
				KeyMaterial: domain.KeyMaterial(ev.KeyMaterial),
			})
		case "verification.mac":
			out = append(out, domain.VerificationMacReceived{
				TransactionID: ev.TransactionID, Mac: ev.Mac,
			})
		case "verification.cancel":
			out = append(out, domain.VerificationCancelled{
				TransactionID: ev.TransactionID, Reason: ev.Reason,
			})
		default:
			return nil, fmt.Errorf("unknown event kind %q for transaction %s", ev.Kind, ev.TransactionID)
		}
	}
	return out, nil
}

// QueryDeviceKeys fetches the published device keys of every device of user.
func (c *HTTPClient) QueryDeviceKeys(ctx context.Context, user domain.UserID) ([]domain.DeviceKeys, error) {
	var out []domain.DeviceKeys
	body := map[string]domain.UserID{"user": user}
	if err := c.post(ctx, "/keys/query", body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimOneTimeKey claims a one-time key for the device.
func (c *HTTPClient) ClaimOneTimeKey(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
) (domain.OneTimeKey, error) {
	var out domain.OneTimeKey
	body := map[string]string{"user": string(user), "device": string(device)}
	if err := c.post(ctx, "/keys/claim", body, &out); err != nil {
		return domain.OneTimeKey{}, err
	}
	return out, nil
}

// RequestRoomKey asks the device to re-share the keys for session.
func (c *HTTPClient) RequestRoomKey(
	ctx context.Context,
	user domain.UserID,
	device domain.DeviceID,
	session domain.SessionID,
) error {
	body := map[string]string{
		"user":    string(user),
		"device":  string(device),
		"session": string(session),
	}
	return c.post(ctx, "/keys/room_request", body, nil)
}

func (c *HTTPClient) enqueue(m outgoingMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queue = append(c.queue, m)
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	b, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Base+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return ErrDuplicateRequest
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s failed: %s", path, resp.Status)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Compile-time assertion that HTTPClient implements domain.Transport.
var _ domain.Transport = (*HTTPClient)(nil)
