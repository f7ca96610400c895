package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// LoadFile reads a single JSON prompt override into the registry. A file
// without an "id" replaces the extraction prompt.
func (r *Registry) LoadFile(path string) (*PromptTemplate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var pt PromptTemplate
	if err := json.Unmarshal(data, &pt); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if pt.ID == "" {
		pt.ID = ExtractionPromptID
	}
	if pt.SystemPrompt == "" || pt.UserPromptTmpl == "" {
		// Partial overrides keep the built-in counterpart.
		if base, err := r.GetPrompt(pt.ID); err == nil {
			if pt.SystemPrompt == "" {
				pt.SystemPrompt = base.SystemPrompt
			}
			if pt.UserPromptTmpl == "" {
				pt.UserPromptTmpl = base.UserPromptTmpl
			}
		}
	}

	if err := r.Register(&pt); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", pt.ID, err)
	}
	return &pt, nil
}

// LoadFromDirectory loads every .json file under dir.
// e.g., "dir/extraction/new_product.json" -> "extraction.new_product"
func (r *Registry) LoadFromDirectory(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return fmt.Errorf("prompts directory not found: %s", dir)
	}

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		var pt PromptTemplate
		if err := json.Unmarshal(data, &pt); err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if pt.ID == "" {
			pt.ID = generateIDFromPath(path, dir)
		}
		if err := r.Register(&pt); err != nil {
			return fmt.Errorf("failed to register %s: %w", pt.ID, err)
		}
		return nil
	})
}

// generateIDFromPath creates a prompt ID from the file path
func generateIDFromPath(path string, baseDir string) string {
	relPath, _ := filepath.Rel(baseDir, path)
	relPath = strings.TrimSuffix(relPath, ".json")
	relPath = strings.ReplaceAll(relPath, string(filepath.Separator), ".")
	return relPath
}

var funcs = template.FuncMap{
	// json renders a value as a JSON literal, quoted and escaped.
	"json": func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	},
}

func parse(pt *PromptTemplate) (*template.Template, error) {
	tmpl, err := template.New(pt.ID).Funcs(funcs).Parse(pt.UserPromptTmpl)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", pt.ID, err)
	}
	return tmpl, nil
}

// RenderUserPrompt executes the user prompt template with vars.
func RenderUserPrompt(pt *PromptTemplate, vars any) (string, error) {
	if pt.UserPromptTmpl == "" {
		return "", nil
	}

	tmpl, err := parse(pt)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}
