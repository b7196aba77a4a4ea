package natsadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/samirrijal/studyspot/internal/core/domain"
)

// LocationProvider implements ports.LocationProvider against a device
// location bridge reachable over NATS. The bridge answers permission and
// one-shot fix requests and streams fixes on the position subject.
type LocationProvider struct {
	client   *Client
	deviceID string
}

// NewLocationProvider creates a provider for deviceID.
func NewLocationProvider(client *Client, deviceID string) *LocationProvider {
	return &LocationProvider{client: client, deviceID: deviceID}
}

func (p *LocationProvider) subject(suffix string) string {
	return "studyspot.device." + p.deviceID + "." + suffix
}

type permissionReply struct {
	Granted bool   `json:"granted"`
	Error   string `json:"error,omitempty"`
}

type locateRequest struct {
	Accuracy domain.Accuracy `json:"accuracy"`
}

type locateReply struct {
	Sample *domain.PositionSample `json:"sample,omitempty"`
	Error  string                 `json:"error,omitempty"`
}

// RequestPermission asks the bridge for foreground location access.
func (p *LocationProvider) RequestPermission(ctx context.Context) (bool, error) {
	msg, err := p.client.conn.RequestWithContext(ctx, p.subject("permission"), nil)
	if err != nil {
		return false, fmt.Errorf("permission request: %w", err)
	}
	var reply permissionReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return false, fmt.Errorf("decode permission reply: %w", err)
	}
	if reply.Error != "" {
		return false, errors.New(reply.Error)
	}
	return reply.Granted, nil
}

// CurrentPosition requests a single fix.
func (p *LocationProvider) CurrentPosition(ctx context.Context, accuracy domain.Accuracy) (domain.PositionSample, error) {
	req, err := json.Marshal(locateRequest{Accuracy: accuracy})
	if err != nil {
		return domain.PositionSample{}, err
	}
	msg, err := p.client.conn.RequestWithContext(ctx, p.subject("locate"), req)
	if err != nil {
		return domain.PositionSample{}, fmt.Errorf("locate request: %w", err)
	}
	var reply locateReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return domain.PositionSample{}, fmt.Errorf("decode locate reply: %w", err)
	}
	if reply.Error != "" {
		return domain.PositionSample{}, errors.New(reply.Error)
	}
	if reply.Sample == nil {
		return domain.PositionSample{}, errors.New("locate reply has no sample")
	}
	return *reply.Sample, nil
}

// Subscribe streams fixes published by the bridge. ctx only bounds setup;
// the stream runs until cancel is called. Accuracy is advisory and published
// to the bridge alongside the watch request.
func (p *LocationProvider) Subscribe(ctx context.Context, accuracy domain.Accuracy, onFix func(domain.PositionSample)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, err := p.client.conn.Subscribe(p.subject("position"), func(msg *nats.Msg) {
		var s domain.PositionSample
		if err := json.Unmarshal(msg.Data, &s); err != nil {
			p.client.logger.Warn("dropping malformed fix", "error", err)
			return
		}
		onFix(s)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe position: %w", err)
	}

	req, _ := json.Marshal(locateRequest{Accuracy: accuracy})
	if err := p.client.conn.Publish(p.subject("watch"), req); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("start watch: %w", err)
	}
	return func() {
		_ = sub.Unsubscribe()
		_ = p.client.conn.Publish(p.subject("unwatch"), nil)
	}, nil
}
