package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
)

const defaultSaveFilename = "research_output.txt"

// TimestampLayout prefixes every file written under the output directory.
const TimestampLayout = "20060102_150405"

// Saver writes text files under an output directory.
type Saver struct {
	dir string
	now func() time.Time
}

// NewSaver creates a Saver rooted at dir.
func NewSaver(dir string) *Saver {
	if dir == "" {
		dir = "outputs"
	}
	return &Saver{dir: dir, now: time.Now}
}

// Dir returns the output directory.
func (s *Saver) Dir() string {
	return s.dir
}

// Tool exposes the adapter to the agent.
func (s *Saver) Tool() tool.InvokableTool {
	info := &schema.ToolInfo{
		Name: NameSaveToFile,
		Desc: "Useful for saving research results or any text content to a file. Input should be the text content to save.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"data": {
				Type:     schema.String,
				Desc:     "The text content to save.",
				Required: true,
			},
			"filename": {
				Type: schema.String,
				Desc: "Optional file name. Defaults to research_output.txt.",
			},
		}),
	}
	return New(info, func(_ context.Context, args json.RawMessage) string {
		var payload struct {
			Data     string `json:"data"`
			Filename string `json:"filename"`
		}
		if err := json.Unmarshal(args, &payload); err != nil || payload.Data == "" {
			// Fall back to treating the whole input as the content.
			payload.Data = decodeQuery(args)
		}
		return s.Save(payload.Data, payload.Filename)
	})
}

// Save writes data to <dir>/<timestamp>_<filename> and reports the outcome
// as a message. It never fails loudly.
func (s *Saver) Save(data, filename string) string {
	filename = strings.TrimSpace(filename)
	if filename == "" {
		filename = defaultSaveFilename
	}
	filename = filepath.Base(filename)
	if filename == "." || filename == string(filepath.Separator) {
		filename = defaultSaveFilename
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Sprintf("Error saving file: %v", err)
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s_%s", s.now().Format(TimestampLayout), filename))
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		return fmt.Sprintf("Error saving file: %v", err)
	}

	return fmt.Sprintf("Successfully saved to %s", path)
}
