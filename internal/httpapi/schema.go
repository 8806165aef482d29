// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

const schemaBaseURL = "https://holomush.dev/schemas/identity/"

// SignupRequest is the body of POST /auth and POST /signup.
type SignupRequest struct {
	Email string `json:"email" jsonschema:"description=Address the verification link is sent to"`
}

// SetPasswordRequest is the body of POST /setpassword.
type SetPasswordRequest struct {
	Password string `json:"password" jsonschema:"description=Password for the new account"`
}

// SigninRequest is the body of POST /signin.
type SigninRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// requestSchemas holds one compiled schema per request body type.
type requestSchemas struct {
	signup      *jschema.Schema
	setPassword *jschema.Schema
	signin      *jschema.Schema
	createUser  *jschema.Schema
}

// NamedBody pairs a request body type with its schema name.
type NamedBody struct {
	Name string
	Body any
}

// RequestSchemas lists every request body the API accepts.
func RequestSchemas() []NamedBody {
	return []NamedBody{
		{"signup", &SignupRequest{}},
		{"set-password", &SetPasswordRequest{}},
		{"signin", &SigninRequest{}},
		{"create-user", &CreateUserRequest{}},
	}
}

func compileRequestSchemas() (*requestSchemas, error) {
	compiler := jschema.NewCompiler()
	compiled := make(map[string]*jschema.Schema)
	for _, body := range RequestSchemas() {
		sch, err := compileSchema(compiler, body.Name, body.Body)
		if err != nil {
			return nil, err
		}
		compiled[body.Name] = sch
	}
	return &requestSchemas{
		signup:      compiled["signup"],
		setPassword: compiled["set-password"],
		signin:      compiled["signin"],
		createUser:  compiled["create-user"],
	}, nil
}

// RequestSchema returns the JSON Schema document for a request body type.
func RequestSchema(name string, v any) ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(v)
	schema.ID = jsonschema.ID(schemaBaseURL + name + ".json")

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, oops.Code("SCHEMA_INVALID").With("schema", name).Wrap(err)
	}
	return data, nil
}

func compileSchema(c *jschema.Compiler, name string, v any) (*jschema.Schema, error) {
	data, err := RequestSchema(name, v)
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("SCHEMA_INVALID").With("schema", name).Wrap(err)
	}
	url := schemaBaseURL + name + ".json"
	if err := c.AddResource(url, doc); err != nil {
		return nil, oops.Code("SCHEMA_INVALID").With("schema", name).Wrap(err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, oops.Code("SCHEMA_INVALID").With("schema", name).Wrap(err)
	}
	return sch, nil
}

// decodeBody reads the request body, validates it against sch and decodes
// it into dst. Every failure is INVALID_REQUEST.
func decodeBody(w http.ResponseWriter, r *http.Request, sch *jschema.Schema, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return oops.Code(CodeInvalidRequest).With("stage", "read").Wrap(err)
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(body))
	if err != nil {
		return oops.Code(CodeInvalidRequest).With("stage", "parse").Wrap(err)
	}
	if err := sch.Validate(doc); err != nil {
		return oops.Code(CodeInvalidRequest).With("stage", "validate").Wrap(err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return oops.Code(CodeInvalidRequest).With("stage", "decode").Wrap(err)
	}
	return nil
}
