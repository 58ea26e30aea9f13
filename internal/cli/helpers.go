package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/quarry-io/quarry/internal/config"
	"github.com/quarry-io/quarry/internal/eval"
	"github.com/quarry-io/quarry/internal/plan"
	"github.com/quarry-io/quarry/internal/provider"
	"github.com/quarry-io/quarry/internal/state"
)

const quarryDirName = ".quarry"

// project bundles everything a command needs to operate on one
// configuration directory.
type project struct {
	dir        string
	entryPoint string
	evaluator  *eval.Evaluator
	store      *state.Store
	registry   *provider.Registry
}

// resolveProject locates the configuration directory and entry point. The
// optional positional argument may be a directory or a .pkl file.
func resolveProject(args []string) (*project, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get working directory: %w", err)
	}
	entryPoint := "main.pkl"

	if len(args) > 0 {
		absPath, err := filepath.Abs(args[0])
		if err != nil {
			return nil, fmt.Errorf("failed to resolve path %s: %w", args[0], err)
		}
		info, err := os.Stat(absPath)
		if err != nil {
			return nil, fmt.Errorf("failed to stat path %s: %w", args[0], err)
		}
		if info.IsDir() {
			wd = absPath
		} else {
			wd = filepath.Dir(absPath)
			entryPoint = filepath.Base(absPath)
		}
	}

	backend, err := state.NewBackend(loadBackendConfig(wd))
	if err != nil {
		return nil, fmt.Errorf("failed to configure state backend: %w", err)
	}

	return &project{
		dir:        wd,
		entryPoint: entryPoint,
		evaluator:  eval.NewEvaluator(wd),
		store:      state.NewStore(backend),
		registry:   provider.NewRegistry(),
	}, nil
}

// loadBackendConfig reads .quarry/backend.json if present; otherwise state
// lives in local files under .quarry.
func loadBackendConfig(dir string) *state.BackendConfig {
	raw, err := os.ReadFile(filepath.Join(dir, quarryDirName, "backend.json"))
	if err == nil {
		var cfg state.BackendConfig
		if jsonErr := json.Unmarshal(raw, &cfg); jsonErr == nil {
			return &cfg
		}
	}
	return &state.BackendConfig{
		Type:   "local",
		Config: map[string]string{"dir": filepath.Join(dir, quarryDirName)},
	}
}

// loadModel evaluates the configuration and its overlays and resolves them
// into a model.
func (p *project) loadModel(ctx context.Context, overlayFiles []string, properties map[string]string) (*config.Model, error) {
	doc, err := p.evaluator.LoadDocument(ctx, p.entryPoint, properties)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	overlays, err := p.evaluator.LoadOverlays(ctx, overlayFiles)
	if err != nil {
		return nil, err
	}

	model, err := config.Load(doc, overlays...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configuration: %w", err)
	}
	return model, nil
}

// loadProviders loads every provider the model and the state refer to.
// Records need their providers too, a delete still talks to one.
func (p *project) loadProviders(model *config.Model, snap *state.Snapshot) error {
	seen := make(map[string]bool)
	load := func(name string) error {
		if name == "" || seen[name] {
			return nil
		}
		seen[name] = true
		if err := p.registry.Load(name); err != nil {
			return fmt.Errorf("failed to load provider %s: %w", name, err)
		}
		return nil
	}

	if model != nil {
		for _, inst := range model.Instances {
			if err := load(inst.Provider); err != nil {
				return err
			}
		}
	}
	if snap != nil {
		for _, rec := range snap.Records {
			if err := load(rec.Provider); err != nil {
				return err
			}
		}
	}
	return nil
}

// schemas collects per-type schemas for everything planning will touch.
func (p *project) schemas(model *config.Model, snap *state.Snapshot) map[string]provider.Schema {
	types := make(map[string]string)
	if model != nil {
		for _, inst := range model.Instances {
			types[inst.Address.Type] = inst.Provider
		}
	}
	if snap != nil {
		for _, rec := range snap.Records {
			if _, ok := types[rec.Type]; !ok {
				types[rec.Type] = rec.Provider
			}
		}
	}
	return p.registry.Schemas(types)
}

func colorize(code string) string {
	if noColor {
		return ""
	}
	return code
}

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
)

func actionSymbol(action plan.Action) string {
	switch action {
	case plan.ActionCreate:
		return "+"
	case plan.ActionDelete:
		return "-"
	case plan.ActionReplace:
		return "-/+"
	case plan.ActionUpdate:
		return "~"
	default:
		return " "
	}
}

func actionColor(action plan.Action) string {
	switch action {
	case plan.ActionCreate:
		return colorize(colorGreen)
	case plan.ActionDelete:
		return colorize(colorRed)
	case plan.ActionUpdate, plan.ActionReplace:
		return colorize(colorYellow)
	default:
		return colorize(colorReset)
	}
}

// renderPlanChanges prints the detailed change list for a plan.
func renderPlanChanges(p *plan.Plan) {
	for _, entry := range p.Changes() {
		color := actionColor(entry.Action)
		reset := colorize(colorReset)

		var resourceType, resourceName string
		if entry.Desired != nil {
			resourceType = entry.Desired.Address.Type
			resourceName = entry.Desired.Address.Name
		} else if entry.Prior != nil {
			resourceType = entry.Prior.Type
			resourceName = entry.Prior.Name
		}

		fmt.Printf("\n%s  # %s will be %sd%s\n", color, entry.Address, entry.Action, reset)
		fmt.Printf("%s  %s resource \"%s\" \"%s\" {%s\n", color, actionSymbol(entry.Action), resourceType, resourceName, reset)
		renderPropertyDiff(entry.Diff)
		fmt.Printf("%s    }%s\n", color, reset)
	}
}

// renderPropertyDiff prints attribute-level changes in a stable order.
func renderPropertyDiff(diff map[string]*plan.PropertyDiff) {
	keys := make([]string, 0, len(diff))
	for k := range diff {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	reset := colorize(colorReset)
	for _, key := range keys {
		d := diff[key]
		switch d.Action {
		case plan.ActionCreate:
			fmt.Printf("%s      + %s = %s%s\n", colorize(colorGreen), key, formatValue(d.After), reset)
		case plan.ActionDelete:
			fmt.Printf("%s      - %s = %s%s\n", colorize(colorRed), key, formatValue(d.Before), reset)
		case plan.ActionUpdate:
			fmt.Printf("%s      ~ %s = %s -> %s%s\n", colorize(colorYellow), key, formatValue(d.Before), formatValue(d.After), reset)
		}
	}
}

// formatValue returns a human-readable representation of a value.
func formatValue(v any) string {
	if v == nil {
		return "null"
	}
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// renderPlanSummary prints the plan summary counts.
func renderPlanSummary(p *plan.Plan) {
	fmt.Println("\nPlan Summary:")
	fmt.Printf("  Create:  %d\n", p.Summary.Create)
	fmt.Printf("  Update:  %d\n", p.Summary.Update)
	fmt.Printf("  Replace: %d\n", p.Summary.Replace)
	fmt.Printf("  Delete:  %d\n", p.Summary.Delete)
	fmt.Printf("  NoOp:    %d\n", p.Summary.NoOp)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// confirm prompts for interactive approval.
func confirm(prompt string) bool {
	fmt.Printf("\n%s (y/n): ", prompt)
	var response string
	fmt.Scanln(&response)
	response = strings.ToLower(strings.TrimSpace(response))
	return response == "y" || response == "yes"
}
