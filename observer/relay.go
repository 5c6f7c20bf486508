package observer

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rotisserie/eris"

	"pkg.world.dev/world-engine/foundry/server/handler"
	"pkg.world.dev/world-engine/foundry/types"
	"pkg.world.dev/world-engine/foundry/world"
)

var ErrRejected = eris.New("event rejected upstream")

// Reply is the authoritative world's answer to a relayed event. Result holds the event's value
// as JSON.
type Reply struct {
	Tick   uint64          `json:"tick"`
	Result json.RawMessage `json:"result,omitempty"`
}

// Decode unmarshals the event's value into v.
func (r Reply) Decode(v any) error {
	if len(r.Result) == 0 {
		return eris.New("reply carries no result")
	}
	return eris.Wrap(json.Unmarshal(r.Result, v), "failed to decode reply result")
}

// Relay sends ev to the authoritative world and waits until it was applied. Events the world
// rejects return an error wrapping ErrRejected.
func (o *Observer) Relay(ctx context.Context, ev world.Event) (Reply, error) {
	method, route, ok := handler.EventRoute(ev.Name())
	if !ok {
		return Reply{}, eris.Errorf("event %s has no route", ev.Name())
	}

	buf, err := json.Marshal(ev)
	if err != nil {
		return Reply{}, eris.Wrapf(err, "unable to marshal event %s", ev.Name())
	}
	if strings.Contains(route, ":key") {
		var keyed struct {
			Key types.Key `json:"key"`
		}
		if err := json.Unmarshal(buf, &keyed); err != nil {
			return Reply{}, eris.Wrapf(err, "event %s has no key", ev.Name())
		}
		route = strings.Replace(route, ":key", url.PathEscape(keyed.Key.String()), 1)
	}

	req, err := http.NewRequestWithContext(ctx, method, o.upstream+route, bytes.NewReader(buf))
	if err != nil {
		return Reply{}, eris.Wrapf(err, "unable to make request to %q", route)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := o.client.Do(req)
	if err != nil {
		return Reply{}, eris.Wrapf(err, "failed to relay event %s", ev.Name())
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Reply{}, eris.Wrap(err, "unable to read response")
	}
	if code := resp.StatusCode; code != http.StatusOK {
		var errResp struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &errResp)
		return Reply{}, eris.Wrapf(ErrRejected, "event %s returned %d: %s", ev.Name(), code, errResp.Error.Message)
	}

	var reply Reply
	if err := json.Unmarshal(body, &reply); err != nil {
		return Reply{}, eris.Wrap(err, "unable to decode response")
	}
	return reply, nil
}
