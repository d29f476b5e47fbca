package context

// Ratios configures the fractions of a context window allocated to each
// slice before rendering. They need not sum to 1.0 — whatever the ratios
// don't claim becomes part of the reserve.
type Ratios struct {
	SystemPrompt float64
	Bootstrap    float64
	History      float64
	Response     float64
}

// Plan is a per-call token allocation: systemPrompt, bootstrap, history,
// response, and reserve token counts summing to at most the context window.
type Plan struct {
	SystemPrompt int
	Bootstrap    int
	History      int
	Response     int
	Reserve      int
}

// Total returns the sum of every slice (always <= the context window this
// plan was computed for).
func (p Plan) Total() int {
	return p.SystemPrompt + p.Bootstrap + p.History + p.Response + p.Reserve
}

// Allocate computes a Plan for context window W, ratios (s, b, h, r), and a
// hard floor on response tokens. A zero window degenerates to a 1-token
// total with every other slice at zero, matching a disabled/misconfigured
// agent rather than panicking.
func Allocate(window int, ratios Ratios, minResponseTokens int) Plan {
	if window <= 0 {
		return Plan{Response: 1}
	}

	systemPrompt := int(float64(window) * ratios.SystemPrompt)
	bootstrap := int(float64(window) * ratios.Bootstrap)
	history := int(float64(window) * ratios.History)
	response := int(float64(window) * ratios.Response)

	if response < minResponseTokens {
		deficit := minResponseTokens - response
		response = minResponseTokens
		// The response floor steals from history first — never silently
		// from systemPrompt/bootstrap, which are sized to fit fixed content.
		history -= deficit
		if history < 0 {
			history = 0
		}
	}

	reserve := window - (systemPrompt + bootstrap + history + response)
	if reserve < 0 {
		reserve = 0
	}

	return Plan{
		SystemPrompt: systemPrompt,
		Bootstrap:    bootstrap,
		History:      history,
		Response:     response,
		Reserve:      reserve,
	}
}

// Reclaim folds unused systemPrompt/bootstrap capacity (actualSystemPrompt
// and actualBootstrap may be smaller than planned once rendered) plus the
// entire reserve into history. An actual usage that exceeds its planned
// slice does not steal from history — the caller should instead surface an
// OverBudget warning and proceed with the honest (un-grown) history budget.
func (p Plan) Reclaim(actualSystemPrompt, actualBootstrap int) (reclaimed Plan, overBudget bool) {
	reclaimed = p

	if actualSystemPrompt <= p.SystemPrompt {
		reclaimed.History += p.SystemPrompt - actualSystemPrompt
	} else {
		overBudget = true
	}

	if actualBootstrap <= p.Bootstrap {
		reclaimed.History += p.Bootstrap - actualBootstrap
	} else {
		overBudget = true
	}

	reclaimed.History += p.Reserve
	reclaimed.SystemPrompt = actualSystemPrompt
	reclaimed.Bootstrap = actualBootstrap
	reclaimed.Reserve = 0

	return reclaimed, overBudget
}
