package whoop

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goccy/go-json"

	"github.com/sakif/healthos/internal/model"
)

// Endpoint paths relative to the API base URL.
const (
	PathProfile          = "/v1/user/profile/basic"
	PathBodyMeasurements = "/v1/user/measurement/body"
	PathCycles           = "/v2/cycle"
	PathRecovery         = "/v2/recovery"
	PathSleep            = "/v2/activity/sleep"
	PathWorkouts         = "/v2/activity/workout"
)

// isoTime matches the upstream timestamp format (UTC, milliseconds).
const isoTime = "2006-01-02T15:04:05.000Z07:00"

func windowParams(w model.Window) url.Values {
	q := url.Values{}
	if w.Start != nil {
		q.Set("start", w.Start.UTC().Format(isoTime))
	}
	q.Set("end", w.End.UTC().Format(isoTime))
	return q
}

func (c *Client) FetchProfile(ctx context.Context) (*model.Profile, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, PathProfile, nil, &raw); err != nil {
		return nil, err
	}
	var p model.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("whoop: decoding profile: %w", err)
	}
	p.Raw = raw
	return &p, nil
}

func (c *Client) FetchBodyMeasurements(ctx context.Context) (*model.BodyMeasurements, error) {
	var raw json.RawMessage
	if err := c.Call(ctx, PathBodyMeasurements, nil, &raw); err != nil {
		return nil, err
	}
	var b model.BodyMeasurements
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("whoop: decoding body measurements: %w", err)
	}
	b.Raw = raw
	return &b, nil
}

func (c *Client) FetchCycles(ctx context.Context, w model.Window) ([]model.Cycle, error) {
	return fetchRecords(ctx, c, PathCycles, w, func(r *model.Cycle, raw []byte) { r.Raw = raw })
}

func (c *Client) FetchRecovery(ctx context.Context, w model.Window) ([]model.Recovery, error) {
	return fetchRecords(ctx, c, PathRecovery, w, func(r *model.Recovery, raw []byte) { r.Raw = raw })
}

func (c *Client) FetchSleep(ctx context.Context, w model.Window) ([]model.Sleep, error) {
	return fetchRecords(ctx, c, PathSleep, w, func(r *model.Sleep, raw []byte) { r.Raw = raw })
}

func (c *Client) FetchWorkouts(ctx context.Context, w model.Window) ([]model.Workout, error) {
	return fetchRecords(ctx, c, PathWorkouts, w, func(r *model.Workout, raw []byte) { r.Raw = raw })
}

// fetchRecords pages through path and decodes every record, keeping the raw
// bytes on each one.
func fetchRecords[T any](ctx context.Context, c *Client, path string, w model.Window, attach func(*T, []byte)) ([]T, error) {
	raws, err := c.FetchPaginated(ctx, path, windowParams(w))
	if err != nil {
		return nil, err
	}
	out := make([]T, len(raws))
	for i, raw := range raws {
		if err := json.Unmarshal(raw, &out[i]); err != nil {
			return nil, fmt.Errorf("whoop: decoding record %d from %s: %w", i, path, err)
		}
		attach(&out[i], raw)
	}
	return out, nil
}
