package executor

import (
	"context"
	"fmt"

	"github.com/default-user/mathison/pkg/registry"
)

// ToolDriver abstracts the actual execution of an effect, letting the
// HANDLER stage invoke either native Go code or a remote tool without the
// registry caring which.
type ToolDriver interface {
	Execute(ctx context.Context, toolName string, params map[string]any) (any, error)
}

// MCPDriver executes tools via the Model Context Protocol.
type MCPDriver struct {
	client interface {
		Call(tool string, params map[string]any) (any, error)
	}
}

func NewMCPDriver(client interface {
	Call(tool string, params map[string]any) (any, error)
}) *MCPDriver {
	return &MCPDriver{client: client}
}

func (m *MCPDriver) Execute(ctx context.Context, toolName string, params map[string]any) (any, error) {
	if m.client == nil {
		return nil, fmt.Errorf("mcp driver: client not configured")
	}
	return m.client.Call(toolName, params)
}

// DriverHandler adapts a ToolDriver into a registry.HandlerFunc bound to a
// single tool name, so a driver-backed tool can be registered into the
// HandlerRegistry like any native handler (spec C5/C7 HANDLER stage). The
// driver's result is coerced to map[string]any; a driver returning a
// non-map value is wrapped under the "result" key.
func DriverHandler(driver ToolDriver, toolName string) registry.HandlerFunc {
	return func(ctx context.Context, input map[string]any) (map[string]any, error) {
		out, err := driver.Execute(ctx, toolName, input)
		if err != nil {
			return nil, fmt.Errorf("driver handler %q: %w", toolName, err)
		}
		if m, ok := out.(map[string]any); ok {
			return m, nil
		}
		return map[string]any{"result": out}, nil
	}
}
