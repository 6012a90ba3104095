package explain

import (
	"context"
	"net/http"
	"time"

	"killwatch/internal/events"
	"killwatch/internal/interest"

	"github.com/danielgtaylor/huma/v2"
)

// ProfileLookup resolves a configured profile by name, satisfied by the
// profile registry loaded from internal/interest's YAML schema.
type ProfileLookup interface {
	Get(name string) (*interest.Profile, bool)
}

// EventLookup supplies the raw events explain/simulate replay against,
// satisfied by whatever archive the operator wires in (the example corpus
// uses mongo-driver for this kind of timeseries read).
type EventLookup interface {
	ByKillID(ctx context.Context, killID int64) (*events.Event, bool)
	InRange(ctx context.Context, start, end time.Time) ([]*events.Event, error)
}

// Routes exposes Explain and Simulate over HTTP, mirroring the teacher's
// zkillboard/routes/routes.go registration style: a small struct holding
// the services it fronts, one RegisterRoutes call wiring huma.Operations.
type Routes struct {
	profiles ProfileLookup
	events   EventLookup
	deps     Dependencies
}

// NewRoutes builds a Routes.
func NewRoutes(profiles ProfileLookup, events EventLookup, deps Dependencies) *Routes {
	return &Routes{profiles: profiles, events: events, deps: deps}
}

// RegisterRoutes registers the explain/simulate endpoints.
func (r *Routes) RegisterRoutes(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "explainKillwatchDecision",
		Method:      http.MethodGet,
		Path:        "/killwatch/explain/{profile}/{kill_id}",
		Summary:     "Explain one profile's decision for one kill",
		Description: "Re-runs the interest pipeline with full instrumentation; side-effect-free",
		Tags:        []string{"Killwatch"},
		Security:    []map[string][]string{}, // Public endpoint
	}, r.Explain)

	huma.Register(api, huma.Operation{
		OperationID: "simulateKillwatchProfile",
		Method:      http.MethodPost,
		Path:        "/killwatch/simulate/{profile}",
		Summary:     "Simulate a profile against a captured time range",
		Description: "Replays stored events through the interest pipeline and reports aggregate statistics; side-effect-free",
		Tags:        []string{"Killwatch"},
		Security:    []map[string][]string{},
	}, r.Simulate)
}

// ExplainInput is explain's path parameters.
type ExplainInput struct {
	Profile string `path:"profile"`
	KillID  int64  `path:"kill_id"`
}

// ExplainOutput wraps Explanation the way huma expects response bodies.
type ExplainOutput struct {
	Body Explanation
}

// Explain handles GET /killwatch/explain/{profile}/{kill_id}.
func (r *Routes) Explain(ctx context.Context, input *ExplainInput) (*ExplainOutput, error) {
	profile, ok := r.profiles.Get(input.Profile)
	if !ok {
		return nil, huma.Error404NotFound("unknown profile: " + input.Profile)
	}
	ev, ok := r.events.ByKillID(ctx, input.KillID)
	if !ok {
		return nil, huma.Error404NotFound("kill not found")
	}

	exp := Explain(ctx, profile, ev, r.deps)
	return &ExplainOutput{Body: exp}, nil
}

// SimulateBody is simulate's request payload.
type SimulateBody struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// SimulateInput is simulate's path+body parameters.
type SimulateInput struct {
	Profile string       `path:"profile"`
	Body    SimulateBody `json:"body" required:"true"`
}

// SimulateOutput wraps SimulateResult.
type SimulateOutput struct {
	Body SimulateResult
}

// Simulate handles POST /killwatch/simulate/{profile}.
func (r *Routes) Simulate(ctx context.Context, input *SimulateInput) (*SimulateOutput, error) {
	profile, ok := r.profiles.Get(input.Profile)
	if !ok {
		return nil, huma.Error404NotFound("unknown profile: " + input.Profile)
	}

	evs, err := r.events.InRange(ctx, input.Body.Start, input.Body.End)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load events: " + err.Error())
	}

	result := Simulate(profile, evs, r.deps)
	return &SimulateOutput{Body: result}, nil
}
