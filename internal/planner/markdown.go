package planner

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
	"gopkg.in/yaml.v3"

	"github.com/harrison/maestro/internal/models"
)

// MarkdownPlanner loads plans from hand-written markdown files. A plan file
// has optional YAML frontmatter for run-level settings and one level-2
// heading per task:
//
//	---
//	original_request: add input validation to the API
//	---
//
//	## Task task-1: generate the validator
//	- type: code_generation
//	- target_file: internal/api/validate.go
//
//	## Task task-2: commit the change
//	- type: git_operation
//	- blocking: false
//	- depends_on: task-1
type MarkdownPlanner struct {
	markdown goldmark.Markdown
}

// NewMarkdownPlanner creates a markdown plan loader.
func NewMarkdownPlanner() *MarkdownPlanner {
	return &MarkdownPlanner{markdown: goldmark.New()}
}

var taskHeading = regexp.MustCompile(`^Task\s+([\w-]+):\s+(.+)$`)

// Load reads and parses a plan file.
func (p *MarkdownPlanner) Load(path string) (*models.Plan, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file: %w", err)
	}
	plan, err := p.Parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse plan file %s: %w", path, err)
	}
	return plan, nil
}

type planFrontmatter struct {
	OriginalRequest string `yaml:"original_request"`
}

// Parse parses plan file content.
func (p *MarkdownPlanner) Parse(content []byte) (*models.Plan, error) {
	plan := &models.Plan{
		ID:        uuid.New().String(),
		CreatedAt: time.Now(),
	}

	body, front := splitFrontmatter(content)
	if front != nil {
		var fm planFrontmatter
		if err := yaml.Unmarshal(front, &fm); err != nil {
			return nil, fmt.Errorf("invalid frontmatter: %w", err)
		}
		plan.OriginalRequest = fm.OriginalRequest
	}

	doc := p.markdown.Parser().Parse(text.NewReader(body))

	var current *models.Task
	flush := func() {
		if current != nil {
			plan.Tasks = append(plan.Tasks, *current)
			current = nil
		}
	}

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Heading:
			if node.Level != 2 {
				return ast.WalkContinue, nil
			}
			flush()
			if m := taskHeading.FindStringSubmatch(nodeText(node, body)); m != nil {
				current = &models.Task{
					ID:          m[1],
					Description: strings.TrimSpace(m[2]),
					Blocking:    true,
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.ListItem:
			if current != nil {
				applyTaskAttribute(current, nodeText(node, body))
			}
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, err
	}
	flush()

	if len(plan.Tasks) == 0 {
		return nil, fmt.Errorf("no tasks found; expected '## Task <id>: <description>' headings")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// applyTaskAttribute interprets one "key: value" list item. Known keys map
// to task fields; everything else lands in the task context.
func applyTaskAttribute(task *models.Task, line string) {
	key, value, found := strings.Cut(line, ":")
	if !found {
		return
	}
	key = strings.ToLower(strings.TrimSpace(key))
	value = strings.TrimSpace(value)

	switch key {
	case "type":
		task.Type = models.TaskType(value)
	case "blocking":
		task.Blocking = value != "false" && value != "no"
	case "depends_on", "depends on":
		for _, dep := range strings.Split(value, ",") {
			if dep = strings.TrimSpace(dep); dep != "" {
				task.DependsOn = append(task.DependsOn, dep)
			}
		}
	default:
		if task.Context == nil {
			task.Context = make(map[string]any)
		}
		task.Context[key] = value
	}
}

// nodeText collects the plain text of a node and its descendants.
func nodeText(n ast.Node, source []byte) string {
	var buf bytes.Buffer
	_ = ast.Walk(n, func(child ast.Node, entering bool) (ast.WalkStatus, error) {
		if entering {
			if t, ok := child.(*ast.Text); ok {
				buf.Write(t.Segment.Value(source))
			}
		}
		return ast.WalkContinue, nil
	})
	return buf.String()
}

// splitFrontmatter separates optional leading YAML frontmatter from the
// markdown body.
func splitFrontmatter(content []byte) (body, front []byte) {
	lines := bytes.Split(content, []byte("\n"))
	if len(lines) == 0 || !bytes.Equal(bytes.TrimSpace(lines[0]), []byte("---")) {
		return content, nil
	}
	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), []byte("---")) {
			front = bytes.Join(lines[1:i], []byte("\n"))
			body = bytes.Join(lines[i+1:], []byte("\n"))
			return body, front
		}
	}
	return content, nil
}
