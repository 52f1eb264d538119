package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// ScriptStep is the typed form of a "script" transform's options.
type ScriptStep struct {
	// Name identifies the step in logs and metrics; defaults to "script".
	Name string `json:"name"`
	// Copies is the number of parallel workers; defaults to runtime.transform_workers.
	Copies int `json:"copies"`

	Scripts []ScriptSource `json:"scripts"`
	Fields  []ScriptField  `json:"fields"`

	// ScriptsBucket is a gocloud bucket URL that ScriptSource.Path keys are
	// read from. Empty means the directory of the pipeline file.
	ScriptsBucket string `json:"scripts_bucket"`

	Compatible   bool              `json:"compatible"`
	Optimization OptimizationLevel `json:"optimization"`
	ErrorRouting bool              `json:"error_routing"`
	CompensateTZ bool              `json:"compensate_tz"`

	// Variables seed the pipeline level variable space of the step.
	Variables map[string]string `json:"variables"`
}

// ScriptSource is one script of the step. Exactly one of Source or Path is
// set.
type ScriptSource struct {
	// Role is transform (default), start, end or aux.
	Role   string `json:"role"`
	Name   string `json:"name"`
	Source string `json:"source"`
	Path   string `json:"path"`
}

// ScriptField declares one output field of the step.
type ScriptField struct {
	Name      string `json:"name"`
	Rename    string `json:"rename"`
	Type      string `json:"type"`
	Length    int    `json:"length"`
	Precision int    `json:"precision"`
	Replace   bool   `json:"replace"`
}

// OptimizationLevel accepts either a JSON string or a JSON number.
type OptimizationLevel string

func (l *OptimizationLevel) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*l = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*l = OptimizationLevel(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("optimization: %w", err)
	}
	*l = OptimizationLevel(n.String())
	return nil
}

// DecodeScriptStep decodes a script transform's options.
func DecodeScriptStep(opt Options) (ScriptStep, error) {
	var s ScriptStep
	if err := opt.Decode(&s); err != nil {
		return ScriptStep{}, fmt.Errorf("script options: %w", err)
	}
	if strings.TrimSpace(s.Name) == "" {
		s.Name = "script"
	}
	return s, nil
}
