package rules

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

//go:embed community/*.yaml
var communityFS embed.FS

// Bundled returns the rule files shipped with the binary.
func Bundled() fs.FS {
	sub, err := fs.Sub(communityFS, "community")
	if err != nil {
		panic(fmt.Sprintf("rules: bundled rules missing: %v", err))
	}
	return sub
}

// Loader reads rule files and turns the valid definitions into rules.
// Bad files and bad rules are logged and skipped; they never abort a load.
type Loader struct {
	validator *Validator
	logger    *zap.Logger
}

// NewLoader creates a Loader.
func NewLoader(logger *zap.Logger) *Loader {
	return &Loader{validator: NewValidator(), logger: logger}
}

// LoadRules returns the bundled community rules followed by the rules found
// in each custom directory, in that order. Missing directories are logged.
func (l *Loader) LoadRules(customDirs ...string) []Rule {
	out, err := l.LoadFS(Bundled(), SourceCommunity)
	if err != nil {
		l.logger.Error("bundled rules unreadable", zap.Error(err))
	}
	for _, dir := range customDirs {
		if dir == "" {
			continue
		}
		rs, err := l.LoadDir(dir, SourceCustom)
		if err != nil {
			l.logger.Warn("custom rule directory skipped", zap.String("dir", dir), zap.Error(err))
			continue
		}
		out = append(out, rs...)
	}
	return dedupe(out, l.logger)
}

// LoadDir loads every rule file under dir.
func (l *Loader) LoadDir(dir string, source Source) ([]Rule, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("LoadDir: %w", err)
	}
	return l.LoadFS(os.DirFS(dir), source)
}

// LoadFS loads every *.yml / *.yaml file of fsys in lexical path order.
func (l *Loader) LoadFS(fsys fs.FS, source Source) ([]Rule, error) {
	defs, err := l.Definitions(fsys)
	if err != nil {
		return nil, err
	}
	out := make([]Rule, 0, len(defs))
	for _, d := range defs {
		out = append(out, d.ToRule(source))
	}
	return out, nil
}

// Definitions returns the valid definitions of fsys, keeping their testing
// samples for the self test.
func (l *Loader) Definitions(fsys fs.FS) ([]Definition, error) {
	var files []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isYAMLFile(p) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Definitions: %w", err)
	}
	sort.Strings(files)

	var out []Definition
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			l.logger.Warn("rule file unreadable", zap.String("file", name), zap.Error(err))
			continue
		}
		defs, err := l.parse(name, data)
		if err != nil {
			l.logger.Warn("rule file skipped", zap.String("file", name), zap.Error(err))
			continue
		}
		out = append(out, defs...)
	}
	return out, nil
}

// parse decodes one file and drops the definitions that fail validation.
func (l *Loader) parse(name string, data []byte) ([]Definition, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	if len(f.Rules) == 0 {
		return nil, fmt.Errorf("parse %s: no rules", name)
	}

	out := make([]Definition, 0, len(f.Rules))
	for _, e := range f.Rules {
		errs, _ := l.validator.ValidateDefinition(e.Rule)
		if len(errs) > 0 {
			msgs := make([]string, len(errs))
			for i, is := range errs {
				msgs[i] = is.String()
			}
			l.logger.Warn("rule skipped",
				zap.String("file", name),
				zap.String("rule_id", e.Rule.ID),
				zap.Strings("errors", msgs),
			)
			continue
		}
		if len(e.Rule.Patterns()) == 0 {
			l.logger.Debug("rule has no pattern detections, skipped",
				zap.String("file", name),
				zap.String("rule_id", e.Rule.ID),
			)
			continue
		}
		out = append(out, e.Rule)
	}
	return out, nil
}

func dedupe(rs []Rule, logger *zap.Logger) []Rule {
	seen := make(map[string]bool, len(rs))
	out := rs[:0]
	for _, r := range rs {
		if seen[r.ID] {
			logger.Warn("duplicate rule id, keeping first", zap.String("rule_id", r.ID))
			continue
		}
		seen[r.ID] = true
		out = append(out, r)
	}
	return out
}

func isYAMLFile(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".yml" || ext == ".yaml"
}
