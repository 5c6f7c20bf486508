package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/invopop/jsonschema"

	"pkg.world.dev/world-engine/foundry/machine"
	"pkg.world.dev/world-engine/foundry/netsync"
	"pkg.world.dev/world-engine/foundry/world"
)

type GetWorldResponse struct {
	Blueprints []machine.Layout `json:"blueprints"`
	Components []string         `json:"components"`
	Events     []FieldDetail    `json:"events"`
	Snapshot   FieldDetail      `json:"snapshot"`
}

type FieldDetail struct {
	Name   string             `json:"name"`
	Fields *jsonschema.Schema `json:"fields"`
	URL    string             `json:"url,omitempty"`
	Method string             `json:"method,omitempty"`
}

type eventRoute struct {
	event  world.Event
	method string
	url    string
}

var eventRoutes = []eventRoute{
	{world.Place{}, fiber.MethodPost, "/machine"},
	{world.Remove{}, fiber.MethodDelete, "/machine/:key"},
	{world.SaveConfigs{}, fiber.MethodPost, "/machine/:key/configs"},
	{world.Claim{}, fiber.MethodPost, "/machine/:key/claim"},
	{world.Unclaim{}, fiber.MethodPost, "/machine/:key/unclaim"},
	{world.SetPower{}, fiber.MethodPost, "/machine/:key/power"},
	{world.Charge{}, fiber.MethodPost, "/machine/:key/energy"},
	{world.Insert{}, fiber.MethodPost, "/machine/:key/insert"},
	{world.Take{}, fiber.MethodPost, "/machine/:key/take"},
	{world.Appraise{}, fiber.MethodPost, "/machine/:key/appraise"},
	{world.Recalculate{}, fiber.MethodPost, "/registry/recalculate"},
	{world.RegisterMatter{}, fiber.MethodPost, "/registry/register"},
	{world.Blacklist{}, fiber.MethodPost, "/registry/blacklist"},
}

// NewGetWorldResponse describes the blueprints of w and the schemas of everything the server
// accepts and streams. Blueprints do not change while the server runs, so it is built once.
func NewGetWorldResponse(w World) (GetWorldResponse, error) {
	layouts, err := w.Layouts()
	if err != nil {
		return GetWorldResponse{}, err
	}

	seen := make(map[string]bool)
	components := make([]string, 0)
	for _, layout := range layouts {
		for _, name := range layout.Components {
			if !seen[name] {
				seen[name] = true
				components = append(components, name)
			}
		}
	}

	evs := make([]FieldDetail, 0, len(eventRoutes))
	for _, route := range eventRoutes {
		evs = append(evs, FieldDetail{
			Name:   route.event.Name(),
			Fields: jsonschema.Reflect(route.event),
			URL:    route.url,
			Method: route.method,
		})
	}

	return GetWorldResponse{
		Blueprints: layouts,
		Components: components,
		Events:     evs,
		Snapshot: FieldDetail{
			Name:   "snapshot",
			Fields: jsonschema.Reflect(netsync.Snapshot{}),
			URL:    "/events",
		},
	}, nil
}

func GetWorld(res GetWorldResponse) func(c *fiber.Ctx) error {
	return func(ctx *fiber.Ctx) error {
		return ctx.JSON(res)
	}
}

// EventRoute returns the method and route the server accepts the event called name on. Routes of
// machine events carry a :key parameter.
func EventRoute(name string) (method, url string, ok bool) {
	for _, route := range eventRoutes {
		if route.event.Name() == name {
			return route.method, route.url, true
		}
	}
	return "", "", false
}
