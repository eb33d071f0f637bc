package tools

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// CompileSchema compiles a custom tool's argument schema.
func CompileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	// Round-trip through JSON so YAML-decoded maps and numbers match what the
	// compiler expects.
	raw, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("invalid argument_schema: %w", err)
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid argument_schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", doc); err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	sch, err := c.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("schema compile error: %w", err)
	}
	return sch, nil
}

// CheckArguments validates argsJSON against sch. A nil schema accepts anything.
func CheckArguments(sch *jsonschema.Schema, argsJSON string) error {
	if sch == nil {
		return nil
	}
	if argsJSON == "" {
		argsJSON = "{}"
	}
	args, err := jsonschema.UnmarshalJSON(bytes.NewReader([]byte(argsJSON)))
	if err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := sch.Validate(args); err != nil {
		return err
	}
	return nil
}

// ApplySchema blocks d when the arguments violate the entry's schema.
func ApplySchema(d Decision, sch *jsonschema.Schema, argsJSON string) Decision {
	if d.Action == ActionBlock {
		return d
	}
	if err := CheckArguments(sch, argsJSON); err != nil {
		d.Action = ActionBlock
		d.Reason = "Argument schema violation: " + err.Error()
	}
	return d
}
