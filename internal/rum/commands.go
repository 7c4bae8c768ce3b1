package rum

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	v1 "github.com/aevon-lab/aevon-rum/internal/api/v1"
	"github.com/aevon-lab/aevon-rum/internal/dispatch"
	"github.com/aevon-lab/aevon-rum/internal/page"
)

var (
	// ErrUnknownCommand is returned for command names the client does not know.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidPayload is returned when a command payload has the wrong shape.
	ErrInvalidPayload = errors.New("invalid command payload")
)

// Command names accepted by Client.Command.
const (
	CmdRecordEvent          = "recordEvent"
	CmdRecordPageView       = "recordPageView"
	CmdRecordError          = "recordError"
	CmdDispatch             = "dispatch"
	CmdDispatchBeacon       = "dispatchBeacon"
	CmdEnable               = "enable"
	CmdDisable              = "disable"
	CmdAllowCookies         = "allowCookies"
	CmdAddSessionAttributes = "addSessionAttributes"
	CmdSetAwsCredentials    = "setAwsCredentials"
)

type commandFunc func(c *Client, ctx context.Context, payload json.RawMessage) error

var commands = map[string]commandFunc{
	CmdRecordEvent:          (*Client).cmdRecordEvent,
	CmdRecordPageView:       (*Client).cmdRecordPageView,
	CmdRecordError:          (*Client).cmdRecordError,
	CmdDispatch:             (*Client).cmdDispatch,
	CmdDispatchBeacon:       (*Client).cmdDispatchBeacon,
	CmdEnable:               (*Client).cmdEnable,
	CmdDisable:              (*Client).cmdDisable,
	CmdAllowCookies:         (*Client).cmdAllowCookies,
	CmdAddSessionAttributes: (*Client).cmdAddSessionAttributes,
	CmdSetAwsCredentials:    (*Client).cmdSetAwsCredentials,
}

// Command runs the named command. payload may be a json.RawMessage, raw
// JSON bytes, or any value that encodes to the expected JSON shape.
//
// Misuse (unknown name, wrong payload shape) is returned to the caller.
// Delivery failures of dispatch commands are logged and never returned.
func (c *Client) Command(ctx context.Context, name string, payload any) error {
	fn, ok := commands[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	raw, err := toRaw(payload)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, name, err)
	}
	return fn(c, ctx, raw)
}

func toRaw(payload any) (json.RawMessage, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return p, nil
	case []byte:
		return json.RawMessage(p), nil
	}
	return json.Marshal(payload)
}

func invalid(name, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidPayload, name, fmt.Sprintf(format, args...))
}

func isNull(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

type recordEventPayload struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func (c *Client) cmdRecordEvent(_ context.Context, raw json.RawMessage) error {
	var p recordEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return invalid(CmdRecordEvent, "expected {type, data}: %v", err)
	}
	if strings.TrimSpace(p.Type) == "" {
		return invalid(CmdRecordEvent, "type is required")
	}
	if isNull(p.Data) {
		c.cache.RecordEvent(p.Type, nil)
		return nil
	}
	c.cache.RecordEvent(p.Type, p.Data)
	return nil
}

func (c *Client) cmdRecordPageView(_ context.Context, raw json.RawMessage) error {
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		if id == "" {
			return invalid(CmdRecordPageView, "page id is required")
		}
		c.cache.RecordPageView(page.Input{PageID: id})
		return nil
	}

	var in page.Input
	if err := json.Unmarshal(raw, &in); err != nil {
		return invalid(CmdRecordPageView, "expected a page id or {pageId, pageTags, pageAttributes}: %v", err)
	}
	if in.PageID == "" {
		return invalid(CmdRecordPageView, "pageId is required")
	}
	c.cache.RecordPageView(in)
	return nil
}

func (c *Client) cmdRecordError(_ context.Context, raw json.RawMessage) error {
	var message string
	if err := json.Unmarshal(raw, &message); err == nil {
		if message == "" {
			return invalid(CmdRecordError, "message is required")
		}
		c.cache.RecordEvent(v1.ErrorEventType, map[string]any{
			"version": "1.0.0",
			"type":    "Error",
			"message": message,
		})
		return nil
	}

	var details map[string]any
	if err := json.Unmarshal(raw, &details); err != nil || details == nil {
		return invalid(CmdRecordError, "expected a message or an error object")
	}
	if _, ok := details["version"]; !ok {
		details["version"] = "1.0.0"
	}
	c.cache.RecordEvent(v1.ErrorEventType, details)
	return nil
}

func (c *Client) cmdDispatch(ctx context.Context, _ json.RawMessage) error {
	// Failures are logged by the dispatcher and the events stay cached.
	_ = c.dispatcher.Dispatch(ctx)
	return nil
}

func (c *Client) cmdDispatchBeacon(ctx context.Context, _ json.RawMessage) error {
	_ = c.dispatcher.DispatchBeacon(ctx)
	return nil
}

func (c *Client) cmdEnable(context.Context, json.RawMessage) error {
	c.Enable()
	return nil
}

func (c *Client) cmdDisable(context.Context, json.RawMessage) error {
	c.Disable()
	return nil
}

func (c *Client) cmdAllowCookies(_ context.Context, raw json.RawMessage) error {
	var allow bool
	if err := json.Unmarshal(raw, &allow); err != nil {
		return invalid(CmdAllowCookies, "expected a boolean")
	}
	c.cache.Sessions().SetAllowCookies(allow)
	return nil
}

func (c *Client) cmdAddSessionAttributes(_ context.Context, raw json.RawMessage) error {
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil || attrs == nil {
		return invalid(CmdAddSessionAttributes, "expected an object")
	}
	if err := c.cache.AddSessionAttributes(attrs); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidPayload, CmdAddSessionAttributes, err)
	}
	return nil
}

type credentialsPayload struct {
	AccessKeyID     string `json:"accessKeyId"`
	SecretAccessKey string `json:"secretAccessKey"`
	SessionToken    string `json:"sessionToken"`
}

func (c *Client) cmdSetAwsCredentials(_ context.Context, raw json.RawMessage) error {
	var p credentialsPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return invalid(CmdSetAwsCredentials, "expected {accessKeyId, secretAccessKey, sessionToken}: %v", err)
	}
	creds := dispatch.StaticCredentials{
		AccessKeyID:     p.AccessKeyID,
		SecretAccessKey: p.SecretAccessKey,
		SessionToken:    p.SessionToken,
	}
	if creds.Empty() {
		return invalid(CmdSetAwsCredentials, "accessKeyId and secretAccessKey are required")
	}
	c.dispatcher.SetCredentialsProvider(creds.Provider())
	return nil
}
