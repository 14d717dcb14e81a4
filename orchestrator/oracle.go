package orchestrator

import (
	"context"
	"sort"
	"strings"

	"github.com/BaSui01/snowgate/types"
)

// KeywordOracle is the built-in policy oracle: it maps tags to keyword
// lists and classifies a task to every tag whose keywords appear in the
// description. Deployments with a real reasoning step plug in their own
// PolicyOracle.
type KeywordOracle struct {
	// Rules maps a tag to its trigger keywords, matched
	// case-insensitively against the task description.
	Rules map[string][]string
}

// Classify returns the matching tags in deterministic (sorted) order.
// An empty result is legal and means the task cannot be routed.
func (o KeywordOracle) Classify(ctx context.Context, task *types.Task) ([]string, error) {
	desc := strings.ToLower(task.Description)

	var tags []string
	for tag, keywords := range o.Rules {
		for _, kw := range keywords {
			if kw != "" && strings.Contains(desc, strings.ToLower(kw)) {
				tags = append(tags, tag)
				break
			}
		}
	}
	sort.Strings(tags)
	return tags, nil
}

// StaticOracle always classifies to the same tags, in the given order.
func StaticOracle(tags ...string) PolicyOracle {
	return OracleFunc(func(ctx context.Context, task *types.Task) ([]string, error) {
		return tags, nil
	})
}
