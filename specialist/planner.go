package specialist

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/BaSui01/snowgate/registry"
	"github.com/BaSui01/snowgate/types"
)

// KeywordPlanner is the built-in stand-in for an external reasoner: it
// selects the capabilities whose name tokens all appear in the task
// description. Deployments with a real reasoning step plug in their own
// Planner.
type KeywordPlanner struct{}

// Plan selects matching capabilities and passes the task description as
// the single argument.
func (KeywordPlanner) Plan(ctx context.Context, task *types.Task, toolset registry.ScopedToolset) ([]Invocation, error) {
	desc := strings.ToLower(task.Description)

	args, err := json.Marshal(map[string]string{"query": task.Description})
	if err != nil {
		return nil, err
	}

	var plan []Invocation
	for _, c := range toolset.Capabilities {
		if matchesDescription(c.Name, desc) {
			plan = append(plan, Invocation{Operation: c.Name, Arguments: args})
		}
	}

	// Nothing matched by name: fall back to the first capability of the
	// toolset so a classified tag always produces one invocation.
	if len(plan) == 0 && len(toolset.Capabilities) > 0 {
		plan = append(plan, Invocation{Operation: toolset.Capabilities[0].Name, Arguments: args})
	}
	return plan, nil
}

// matchesDescription reports whether every underscore-separated token of
// the capability name occurs in the description.
func matchesDescription(name, desc string) bool {
	for _, tok := range strings.Split(strings.ToLower(name), "_") {
		if tok == "" {
			continue
		}
		if !strings.Contains(desc, tok) {
			return false
		}
	}
	return true
}
