// Package idgen provides the snowflake node used for primary keys.
package idgen

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

var Module = fx.Module("idgen",
	fx.Provide(NewNode),
)

// NewNode builds the snowflake node for this process from SNOWFLAKE_NODE_ID (default 1).
func NewNode() (*snowflake.Node, error) {
	nodeID := int64(1)
	if raw := strings.TrimSpace(os.Getenv("SNOWFLAKE_NODE_ID")); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid SNOWFLAKE_NODE_ID %q: %w", raw, err)
		}
		nodeID = parsed
	}
	return snowflake.NewNode(nodeID)
}
