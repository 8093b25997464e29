// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

// Package validate checks request payloads against JSON Schemas generated
// from the payload structs.
package validate

import (
	"bytes"
	"encoding/json"
	"errors"
	"slices"
	"strings"

	"github.com/invopop/jsonschema"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/santhosh-tekuri/jsonschema/v6/kind"
	"github.com/samber/oops"

	"github.com/streambox/auth-service/internal/auth"
)

// SchemaBaseURL prefixes every generated schema $id.
const SchemaBaseURL = "https://streambox.dev/schemas/auth/"

// Schema names, also used as file names by gen-schema.
const (
	SchemaRegister = "register"
	SchemaLogin    = "login"
	SchemaLogout   = "logout"
)

var payloads = map[string]any{
	SchemaRegister: &RegisterPayload{},
	SchemaLogin:    &LoginPayload{},
	SchemaLogout:   &LogoutPayload{},
}

// passwordSpecials are the characters that satisfy the special-character rule.
const passwordSpecials = "!@#$%^&*"

// Validator validates and decodes auth request bodies. It is safe for
// concurrent use.
type Validator struct {
	schemas map[string]*jschema.Schema
}

// New compiles the payload schemas.
func New() (*Validator, error) {
	c := jschema.NewCompiler()
	c.AssertFormat()

	v := &Validator{schemas: make(map[string]*jschema.Schema, len(payloads))}
	for name := range payloads {
		data, err := GenerateSchema(name)
		if err != nil {
			return nil, err
		}
		doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return nil, oops.Code("SCHEMA_PARSE_FAILED").With("schema", name).Wrap(err)
		}
		url := schemaID(name)
		if err := c.AddResource(url, doc); err != nil {
			return nil, oops.Code("SCHEMA_ADD_FAILED").With("schema", name).Wrap(err)
		}
		sch, err := c.Compile(url)
		if err != nil {
			return nil, oops.Code("SCHEMA_COMPILE_FAILED").With("schema", name).Wrap(err)
		}
		v.schemas[name] = sch
	}
	return v, nil
}

// GenerateSchema returns the indented JSON Schema for a named payload.
func GenerateSchema(name string) ([]byte, error) {
	payload, ok := payloads[name]
	if !ok {
		return nil, oops.Code("SCHEMA_UNKNOWN").With("schema", name).Errorf("unknown schema %q", name)
	}
	r := jsonschema.Reflector{
		DoNotReference:             true,
		AllowAdditionalProperties:  true,
		RequiredFromJSONSchemaTags: true,
	}
	schema := r.Reflect(payload)
	schema.ID = jsonschema.ID(schemaID(name))
	schema.Title = "StreamBox " + name + " request"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("SCHEMA_MARSHAL_FAILED").With("schema", name).Wrap(err)
	}
	return data, nil
}

// SchemaNames lists the generated schemas in a stable order.
func SchemaNames() []string {
	names := make([]string, 0, len(payloads))
	for name := range payloads {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func schemaID(name string) string {
	return SchemaBaseURL + name + ".schema.json"
}

// Register validates a registration body. Unknown fields are ignored.
func (v *Validator) Register(body []byte) (RegisterPayload, error) {
	var out RegisterPayload
	doc, details, err := v.check(SchemaRegister, body)
	if err != nil {
		return out, err
	}

	email, _ := doc["email"].(string)
	if !hasField(details, "email") && email != "" && !hasDomainSegments(email) {
		details = append(details, detail("email", "format"))
	}
	password, passwordOK := doc["password"].(string)
	if passwordOK && !isComplex(password) {
		details = append(details, detail("password", "complexity"))
	}
	if confirm, ok := doc["passwordConfirmation"].(string); ok && passwordOK && confirm != password {
		details = append(details, detail("passwordConfirmation", "match"))
	}

	if err := v.finish(doc, details, &out); err != nil {
		return RegisterPayload{}, err
	}
	return out, nil
}

// Login validates a login body.
func (v *Validator) Login(body []byte) (LoginPayload, error) {
	var out LoginPayload
	doc, details, err := v.check(SchemaLogin, body)
	if err != nil {
		return out, err
	}
	email, _ := doc["email"].(string)
	if !hasField(details, "email") && email != "" && !hasDomainSegments(email) {
		details = append(details, detail("email", "format"))
	}
	if err := v.finish(doc, details, &out); err != nil {
		return LoginPayload{}, err
	}
	return out, nil
}

// Logout validates the optional logout body. An empty body is accepted.
func (v *Validator) Logout(body []byte) (LogoutPayload, error) {
	var out LogoutPayload
	if len(bytes.TrimSpace(body)) == 0 {
		return out, nil
	}
	doc, details, err := v.check(SchemaLogout, body)
	if err != nil {
		return out, err
	}
	if err := v.finish(doc, details, &out); err != nil {
		return LogoutPayload{}, err
	}
	return out, nil
}

// check parses body, trims string fields and collects schema violations.
func (v *Validator) check(name string, body []byte) (map[string]any, []auth.Detail, error) {
	raw, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return nil, nil, auth.ValidationError("INVALID_JSON", "Request body must be valid JSON")
	}
	doc, ok := raw.(map[string]any)
	if !ok {
		return nil, nil, auth.ValidationError("INVALID_JSON", "Request body must be a JSON object")
	}
	normalize(doc)

	err = v.schemas[name].Validate(doc)
	if err == nil {
		return doc, nil, nil
	}
	var verr *jschema.ValidationError
	if !errors.As(err, &verr) {
		return nil, nil, oops.Code("SCHEMA_VALIDATE_FAILED").With("schema", name).Wrap(err)
	}
	return doc, collect(verr, nil), nil
}

// finish reports details as a validation error, or decodes doc into out.
func (v *Validator) finish(doc map[string]any, details []auth.Detail, out any) error {
	if len(details) > 0 {
		slices.SortStableFunc(details, func(a, b auth.Detail) int {
			return slices.Index(fieldOrder, a.Field) - slices.Index(fieldOrder, b.Field)
		})
		return auth.ValidationError("VALIDATION_ERROR", "Validation failed", details...)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return oops.Code("PAYLOAD_DECODE_FAILED").Wrap(err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return oops.Code("PAYLOAD_DECODE_FAILED").Wrap(err)
	}
	return nil
}

// collect flattens a validation error tree into one detail per leaf.
func collect(verr *jschema.ValidationError, out []auth.Detail) []auth.Detail {
	if len(verr.Causes) > 0 {
		for _, cause := range verr.Causes {
			out = collect(cause, out)
		}
		return out
	}

	if req, ok := verr.ErrorKind.(*kind.Required); ok {
		for _, field := range req.Missing {
			out = append(out, detail(field, "required"))
		}
		return out
	}
	if len(verr.InstanceLocation) == 0 {
		return out
	}
	return append(out, detail(verr.InstanceLocation[0], rule(verr.ErrorKind)))
}

func rule(k jschema.ErrorKind) string {
	switch k.(type) {
	case *kind.Format:
		return "format"
	case *kind.MinLength:
		return "minLength"
	case *kind.MaxLength:
		return "maxLength"
	case *kind.Pattern:
		return "pattern"
	case *kind.Minimum:
		return "minimum"
	case *kind.Maximum:
		return "maximum"
	case *kind.MinItems:
		return "minItems"
	case *kind.MaxItems:
		return "maxItems"
	case *kind.Type:
		return "type"
	default:
		return "invalid"
	}
}

func detail(field, rule string) auth.Detail {
	if msg, ok := messages[field][rule]; ok {
		return auth.Detail{Field: field, Message: msg}
	}
	if rule == "type" {
		return auth.Detail{Field: field, Message: field + " has the wrong type"}
	}
	return auth.Detail{Field: field, Message: field + " is invalid"}
}

func hasField(details []auth.Detail, field string) bool {
	return slices.ContainsFunc(details, func(d auth.Detail) bool { return d.Field == field })
}

func normalize(doc map[string]any) {
	for field := range trimmed {
		if s, ok := doc[field].(string); ok {
			doc[field] = strings.TrimSpace(s)
		}
	}
	if genres, ok := doc["preferredGenres"].([]any); ok {
		for i, g := range genres {
			if s, ok := g.(string); ok {
				genres[i] = strings.TrimSpace(s)
			}
		}
	}
}

// hasDomainSegments requires at least two dot-separated labels after the @.
func hasDomainSegments(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at < 0 {
		return false
	}
	labels := strings.Split(email[at+1:], ".")
	if len(labels) < 2 {
		return false
	}
	return !slices.Contains(labels, "")
}

func isComplex(password string) bool {
	var lower, upper, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}
	return lower && upper && digit && special
}
