package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/zhouzirui/research-agent/internal/model/chat"
	"github.com/zhouzirui/research-agent/internal/service/tools"
	"github.com/zhouzirui/research-agent/pkg/utils"
)

const (
	// DefaultTitle heads Markdown exports when no title is supplied.
	DefaultTitle = "Conversation Export"

	generatedLayout = "2006-01-02 15:04:05"
)

// Conversation describes a saved JSON conversation on disk.
type Conversation struct {
	Filename string `json:"filename"`
	Path     string `json:"filepath"`
	Size     string `json:"size"`
	Modified string `json:"modified"`

	modTime time.Time
}

// Exporter writes conversations into a single output directory.
type Exporter struct {
	dir string
	now func() time.Time
}

// NewExporter returns an exporter rooted at dir.
func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir, now: time.Now}
}

// Dir is the output directory.
func (e *Exporter) Dir() string {
	return e.dir
}

// SaveConversation writes msgs as indented JSON. An empty filename becomes
// conversation_<timestamp>.json.
func (e *Exporter) SaveConversation(msgs []chat.Message, filename string) (string, error) {
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		filename = fmt.Sprintf("conversation_%s.json", e.now().Format(tools.TimestampLayout))
	}

	if msgs == nil {
		msgs = []chat.Message{}
	}
	data, err := json.MarshalIndent(msgs, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode conversation: %w", err)
	}

	return e.write(filename, data)
}

// LoadConversation reads a conversation previously written by SaveConversation.
func (e *Exporter) LoadConversation(path string) ([]chat.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conversation: %w", err)
	}
	var msgs []chat.Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return nil, fmt.Errorf("decode conversation %s: %w", path, err)
	}
	return msgs, nil
}

// ExportMarkdown writes msgs as a Markdown document named
// conversation_<timestamp>.md.
func (e *Exporter) ExportMarkdown(msgs []chat.Message, title string) (string, error) {
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}
	now := e.now()

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "*Generated: %s*\n\n", now.Format(generatedLayout))
	b.WriteString("---\n\n")
	for _, msg := range msgs {
		fmt.Fprintf(&b, "## %s\n\n", roleTitle(msg.Role))
		fmt.Fprintf(&b, "%s\n\n", msg.Content)
	}

	filename := fmt.Sprintf("conversation_%s.md", now.Format(tools.TimestampLayout))
	return e.write(filename, []byte(b.String()))
}

// ListConversations returns the saved JSON conversations, newest first. A
// missing directory yields an empty list.
func (e *Exporter) ListConversations() ([]Conversation, error) {
	entries, err := os.ReadDir(e.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []Conversation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", e.dir, err)
	}

	out := make([]Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		out = append(out, Conversation{
			Filename: entry.Name(),
			Path:     filepath.Join(e.dir, entry.Name()),
			Size:     utils.HumanSize(info.Size()),
			Modified: info.ModTime().Format(generatedLayout),
			modTime:  info.ModTime(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].modTime.After(out[j].modTime)
	})
	return out, nil
}

// CleanOldFiles removes regular files last modified more than days ago and
// reports how many were removed.
func (e *Exporter) CleanOldFiles(days int) (int, error) {
	entries, err := os.ReadDir(e.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("list %s: %w", e.dir, err)
	}

	cutoff := e.now().Add(-time.Duration(days) * 24 * time.Hour)
	removed := 0
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(e.dir, entry.Name())); err != nil {
			return removed, fmt.Errorf("remove %s: %w", entry.Name(), err)
		}
		removed++
	}
	return removed, nil
}

func (e *Exporter) write(filename string, data []byte) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(e.dir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func roleTitle(role chat.Role) string {
	s := strings.ToLower(string(role))
	if s == "" {
		return "Unknown"
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
