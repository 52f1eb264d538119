package main

import (
	"context"
	"fmt"
	"path/filepath"

	"scriptetl/internal/config"
	"scriptetl/internal/datasource"
	"scriptetl/internal/logging"
	"scriptetl/internal/row"
	"scriptetl/internal/scripting"
	"scriptetl/internal/transformer"
	"scriptetl/internal/variables"
)

// stagePlan is one resolved transform. Typed shapes and script steps are
// filled in once the reader's columns are known.
type stagePlan struct {
	kind string

	coerce transformer.CoerceSpec
	shape  *row.Shape

	script  config.ScriptStep
	scripts []scripting.Definition
	step    *scripting.Step

	fields []string
}

type pipelinePlan struct {
	stages []stagePlan
}

// buildPlan turns the transform list into stages, reading script files up
// front so a missing script fails the run before any row is read.
func buildPlan(ctx context.Context, ts []config.Transform, baseDir string) (pipelinePlan, error) {
	var (
		p                    pipelinePlan
		seenCoerce, seenStep bool
	)
	for i, t := range ts {
		switch t.Kind {
		case "coerce":
			if seenCoerce {
				return p, fmt.Errorf("transform[%d]: only one coerce transform is supported", i)
			}
			seenCoerce = true
			p.stages = append(p.stages, stagePlan{
				kind: "coerce",
				coerce: transformer.NewCoerceSpec(
					t.Options.StringMap("types"),
					t.Options.String("layout", "02.01.2006"),
					t.Options.StringSlice("truthy"),
					t.Options.StringSlice("falsy"),
				),
			})

		case "script":
			if seenStep {
				return p, fmt.Errorf("transform[%d]: only one script transform is supported", i)
			}
			seenStep = true
			s, err := config.DecodeScriptStep(t.Options)
			if err != nil {
				return p, fmt.Errorf("transform[%d]: %w", i, err)
			}
			defs, err := loadScripts(ctx, s, baseDir)
			if err != nil {
				return p, fmt.Errorf("transform[%d]: %w", i, err)
			}
			p.stages = append(p.stages, stagePlan{kind: "script", script: s, scripts: defs})

		case "require":
			fields := t.Options.StringSlice("fields")
			if len(fields) == 0 {
				return p, fmt.Errorf("transform[%d]: require needs options.fields", i)
			}
			p.stages = append(p.stages, stagePlan{kind: "require", fields: fields})

		default:
			return p, fmt.Errorf("unsupported transform kind=%s", t.Kind)
		}
	}
	return p, nil
}

// loadScripts resolves every script of a step to its source text.
func loadScripts(ctx context.Context, s config.ScriptStep, baseDir string) ([]scripting.Definition, error) {
	defs := make([]scripting.Definition, 0, len(s.Scripts))
	for i, sc := range s.Scripts {
		role, err := scripting.ParseRole(sc.Role)
		if err != nil {
			return nil, fmt.Errorf("scripts[%d]: %w", i, err)
		}
		d := scripting.Definition{Role: role, Name: sc.Name, Source: sc.Source}
		if sc.Path != "" {
			b, err := datasource.ReadAll(ctx, datasource.ScriptSource(s.ScriptsBucket, sc.Path, baseDir))
			if err != nil {
				return nil, fmt.Errorf("scripts[%d]: read %s: %w", i, sc.Path, err)
			}
			d.Source = string(b)
			if d.Name == "" {
				d.Name = filepath.Base(sc.Path)
			}
		}
		defs = append(defs, d)
	}
	return defs, nil
}

func scriptFields(fs []config.ScriptField) ([]scripting.FieldSpec, error) {
	out := make([]scripting.FieldSpec, 0, len(fs))
	for _, f := range fs {
		t, err := row.ParseType(f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		out = append(out, scripting.FieldSpec{
			Name:      f.Name,
			Rename:    f.Rename,
			Type:      t,
			Length:    f.Length,
			Precision: f.Precision,
			Replace:   f.Replace,
		})
	}
	return out, nil
}

// newScriptStep builds the script step of the pipeline. The step's variable
// spaces hang below a pipeline space seeded with the configured variables.
func newScriptStep(st config.ScriptStep, defs []scripting.Definition, job string, env runEnv, store variables.PropertyStore, onHalt func()) (*scripting.Step, error) {
	fields, err := scriptFields(st.Fields)
	if err != nil {
		return nil, err
	}
	parent := variables.NewSpace(job, nil)
	parent.SetAll(st.Variables)

	return scripting.NewStep(scripting.Config{
		Name:         st.Name,
		Pipeline:     job,
		Scripts:      defs,
		Fields:       fields,
		Compatible:   st.Compatible,
		Optimization: string(st.Optimization),
		ErrorRouting: st.ErrorRouting,
		CompensateTZ: st.CompensateTZ,
	},
		scripting.WithLogger(env.logger.With(logging.RunID(env.runID))),
		scripting.WithPropertyStore(store),
		scripting.WithParentSpace(parent),
		scripting.WithHaltFunc(onHalt),
		scripting.WithMetricsJob(job),
	)
}
