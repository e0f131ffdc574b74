package index

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed note-index.schema.json
var schemaData []byte

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("note-index.json", bytes.NewReader(schemaData)); err != nil {
			schemaErr = fmt.Errorf("index: add schema resource: %w", err)
			return
		}
		compiledSchema, schemaErr = compiler.Compile("note-index.json")
		if schemaErr != nil {
			schemaErr = fmt.Errorf("index: compile schema: %w", schemaErr)
		}
	})
	return compiledSchema, schemaErr
}

func validate(data []byte) error {
	sch, err := loadSchema()
	if err != nil {
		return err
	}
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("index: invalid json: %w", err)
	}
	if err := sch.Validate(doc); err != nil {
		var verr *jsonschema.ValidationError
		if errors.As(err, &verr) {
			var msgs []string
			collectErrors(verr, &msgs)
			return fmt.Errorf("index: schema validation failed: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("index: schema validation failed: %w", err)
	}
	return nil
}

func collectErrors(err *jsonschema.ValidationError, msgs *[]string) {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*msgs = append(*msgs, loc+": "+err.Message)
	}
	for _, c := range err.Causes {
		collectErrors(c, msgs)
	}
}
