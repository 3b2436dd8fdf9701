// Package project walks a project tree and assembles the four maps the
// rest of the system needs: jobs, templates, a contract repository, and a
// flat constants map (spec.md §4.2).
package project

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	appconfig "github.com/r3e-network/deployengine/internal/appconfig"
	apperrors "github.com/r3e-network/deployengine/internal/apperrors"
	"github.com/r3e-network/deployengine/internal/artifact"
	"github.com/r3e-network/deployengine/internal/contracts"
	"github.com/r3e-network/deployengine/internal/document"
	eventbus "github.com/r3e-network/deployengine/internal/eventbus"
	"github.com/r3e-network/deployengine/internal/model"
)

// deniedDirs is the fixed tree-walk deny-list (spec.md §4.1 Discovery).
var deniedDirs = map[string]struct{}{
	"node_modules": {},
	"dist":         {},
	".git":         {},
	".idea":        {},
	".vscode":      {},
}

// Project is the immutable, fully loaded set of documents a run operates
// against.
type Project struct {
	Root      string
	Jobs      map[string]model.Job
	Templates map[string]model.Template
	Contracts *contracts.Repository
	Constants map[string]model.Value
	Networks  []model.Network
}

// Loader walks Root and loads every recognized document, in the order
// mandated by spec.md §4.2.
type Loader struct {
	Root             string
	Bus              *eventbus.Bus
	BuiltinTemplates []model.Template // pre-parsed standard templates, loaded before user templates
}

// New creates a Loader rooted at root.
func New(root string, bus *eventbus.Bus) *Loader {
	return &Loader{Root: root, Bus: bus}
}

// Load executes the full order of operations: (1) contract repository
// population, (2) built-in templates, (3) user templates, (4) jobs, (5)
// inline job templates, (6) constants.
func (l *Loader) Load() (*Project, error) {
	p := &Project{
		Root:      l.Root,
		Jobs:      make(map[string]model.Job),
		Templates: make(map[string]model.Template),
		Contracts: contracts.New(l.Bus),
		Constants: make(map[string]model.Value),
	}
	constantSources := make(map[string]string)

	if err := l.loadContracts(p); err != nil {
		return nil, err
	}
	p.Contracts.Finalize()

	for _, t := range l.BuiltinTemplates {
		l.addTemplate(p, t)
	}

	if err := l.loadTemplates(p, filepath.Join(l.Root, "templates")); err != nil {
		return nil, err
	}

	if err := l.loadJobs(p); err != nil {
		return nil, err
	}

	if err := l.loadInlineJobTemplates(p); err != nil {
		return nil, err
	}

	if err := l.loadConstants(p, constantSources); err != nil {
		return nil, err
	}

	if err := l.loadNetworks(p); err != nil {
		return nil, err
	}

	return p, nil
}

func (l *Loader) loadNetworks(p *Project) error {
	path := filepath.Join(l.Root, "networks.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("load networks: %w", err)
	}
	nets, err := document.ParseNetworks(data, path)
	if err != nil {
		return fmt.Errorf("load networks: %w", err)
	}
	for i := range nets {
		nets[i].RPCURL = appconfig.ExpandRPCURLTemplate(nets[i].RPCURL)
	}
	p.Networks = nets
	return nil
}

func (l *Loader) loadContracts(p *Project) error {
	return walkFiles(l.Root, func(path string, data []byte) error {
		if filepath.Ext(path) != ".json" {
			return nil
		}
		contractsFound, warnings, recognized, err := artifact.ParseFile(path, data)
		if err != nil {
			l.emitWarning(eventbus.KindConfigWarning, "artifact parse failed", path, err)
			return nil
		}
		if !recognized {
			return nil
		}
		isBuildInfo := strings.Contains(path, "/build-info/")
		for _, c := range contractsFound {
			p.Contracts.Add(c, isBuildInfo)
		}
		for _, w := range warnings {
			l.emitWarning(eventbus.KindConfigWarning, w.Message, path, nil)
		}
		return nil
	})
}

func (l *Loader) loadTemplates(p *Project, dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return walkYAML(dir, func(path string, data []byte) error {
		kind, err := document.Sniff(data)
		if err != nil {
			l.emitWarning(eventbus.KindConfigWarning, "template sniff failed", path, err)
			return nil
		}
		if kind != document.KindTemplate {
			return nil
		}
		t, err := document.ParseTemplate(data, path)
		if err != nil {
			l.emitWarning(eventbus.KindConfigWarning, "template parse failed", path, err)
			return nil
		}
		l.addTemplate(p, t)
		return nil
	})
}

func (l *Loader) loadJobs(p *Project) error {
	dir := filepath.Join(l.Root, "jobs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return walkYAML(dir, func(path string, data []byte) error {
		if underInlineTemplatesDir(dir, path) {
			return nil
		}
		kind, err := document.Sniff(data)
		if err != nil {
			l.emitWarning(eventbus.KindConfigWarning, "job sniff failed", path, err)
			return nil
		}
		if kind != document.KindJob {
			return nil
		}
		j, err := document.ParseJob(data, path)
		if err != nil {
			l.emitWarning(eventbus.KindConfigWarning, "job parse failed", path, err)
			return nil
		}
		l.addJob(p, j)
		return nil
	})
}

func (l *Loader) loadInlineJobTemplates(p *Project) error {
	dir := filepath.Join(l.Root, "jobs")
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	return walkYAML(dir, func(path string, data []byte) error {
		if !underInlineTemplatesDir(dir, path) {
			return nil
		}
		kind, err := document.Sniff(data)
		if err != nil {
			l.emitWarning(eventbus.KindConfigWarning, "inline template sniff failed", path, err)
			return nil
		}
		if kind != document.KindTemplate {
			return nil
		}
		t, err := document.ParseTemplate(data, path)
		if err != nil {
			l.emitWarning(eventbus.KindConfigWarning, "inline template parse failed", path, err)
			return nil
		}
		l.addTemplate(p, t)
		return nil
	})
}

// underInlineTemplatesDir reports whether path sits under a directory
// literally named "templates" somewhere beneath jobsDir (spec.md §4.2
// step 5).
func underInlineTemplatesDir(jobsDir, path string) bool {
	rel, err := filepath.Rel(jobsDir, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(filepath.Dir(rel), string(filepath.Separator)) {
		if part == "templates" {
			return true
		}
	}
	return false
}

// loadConstants scans every YAML document under root for constants files.
// Unlike the other load phases, a bad constants file doesn't abort the
// walk: every file's problems are independent of the others, so they're
// collected into a single multierror and reported together rather than
// making the operator fix files one failed run at a time.
func (l *Loader) loadConstants(p *Project, sources map[string]string) error {
	var errs *multierror.Error
	walkErr := walkYAML(l.Root, func(path string, data []byte) error {
		kind, err := document.Sniff(data)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("load constants %s: %w", path, err))
			return nil
		}
		if kind != document.KindConstants {
			return nil
		}
		found, err := document.ParseConstants(data, path)
		if err != nil {
			errs = multierror.Append(errs, err)
			return nil
		}
		for key, val := range found {
			if prior, exists := sources[key]; exists {
				errs = multierror.Append(errs, apperrors.DuplicateConstant(key, prior, path))
				continue
			}
			sources[key] = path
			p.Constants[key] = val
		}
		return nil
	})
	if walkErr != nil {
		errs = multierror.Append(errs, walkErr)
	}
	return errs.ErrorOrNil()
}

func (l *Loader) addJob(p *Project, j model.Job) {
	if _, exists := p.Jobs[j.Name]; exists {
		l.emitWarning(eventbus.KindConfigWarning, fmt.Sprintf("duplicate job name %q, last writer wins", j.Name), j.SourcePath, nil)
	}
	p.Jobs[j.Name] = j
}

func (l *Loader) addTemplate(p *Project, t model.Template) {
	if _, exists := p.Templates[t.Name]; exists {
		l.emitWarning(eventbus.KindConfigWarning, fmt.Sprintf("duplicate template name %q, last writer wins", t.Name), t.SourcePath, nil)
	}
	p.Templates[t.Name] = t
}

func (l *Loader) emitWarning(kind eventbus.Kind, message, path string, err error) {
	if l.Bus == nil {
		return
	}
	data := map[string]any{"message": message, "path": path}
	if err != nil {
		data["error"] = err.Error()
	}
	l.Bus.Emit(kind, eventbus.LevelWarn, data)
}

// walkFiles walks root depth-first, skipping denied directories, invoking
// fn with every regular file's contents.
func walkFiles(root string, fn func(path string, data []byte) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if _, denied := deniedDirs[d.Name()]; denied {
				return filepath.SkipDir
			}
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		return fn(path, data)
	})
}

// walkYAML is walkFiles filtered to *.yaml/*.yml.
func walkYAML(root string, fn func(path string, data []byte) error) error {
	return walkFiles(root, func(path string, data []byte) error {
		ext := filepath.Ext(path)
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		return fn(path, data)
	})
}
