package tools

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

// ClockLayout is the format returned by CurrentTime.
const ClockLayout = "2006-01-02 15:04:05"

// Clock reports the local date and time.
type Clock struct {
	now func() time.Time
}

// NewClock creates a Clock backed by time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Tool exposes the adapter to the agent.
func (c *Clock) Tool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name:        NameCurrentTime,
		Desc:        "Get the current date and time. No input required.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{}),
	}
	return New(info, func(context.Context, json.RawMessage) string {
		return c.Now()
	})
}

// Now formats the current time.
func (c *Clock) Now() string {
	return c.now().Format(ClockLayout)
}
