// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StreamBox Contributors

package validate

import (
	"github.com/invopop/jsonschema"
)

const (
	namePattern  = `^[a-zA-Z\s]+$`
	phonePattern = `^[\+]?[1-9][\d]{0,15}$`
)

// RegisterPayload is the body of POST /register.
type RegisterPayload struct {
	Email                string   `json:"email" jsonschema:"required,format=email,description=Account email address"`
	Password             string   `json:"password" jsonschema:"required,minLength=8"`
	PasswordConfirmation string   `json:"passwordConfirmation" jsonschema:"required"`
	FirstName            string   `json:"firstName" jsonschema:"required,minLength=2,maxLength=50"`
	LastName             string   `json:"lastName" jsonschema:"required,minLength=2,maxLength=50"`
	PhoneNumber          string   `json:"phoneNumber" jsonschema:"required"`
	Age                  int      `json:"age" jsonschema:"required,minimum=13,maximum=120"`
	PreferredGenres      []string `json:"preferredGenres" jsonschema:"required,minItems=1,maxItems=10"`
}

// JSONSchemaExtend adds the keywords struct tags cannot carry.
func (RegisterPayload) JSONSchemaExtend(s *jsonschema.Schema) {
	setPattern(s, "firstName", namePattern)
	setPattern(s, "lastName", namePattern)
	setPattern(s, "phoneNumber", phonePattern)
	if genres, ok := s.Properties.Get("preferredGenres"); ok && genres.Items != nil {
		one := uint64(1)
		genres.Items.MinLength = &one
	}
}

// LoginPayload is the body of POST /login. DeviceInfo is stored with the
// session as given.
type LoginPayload struct {
	Email      string         `json:"email" jsonschema:"required,format=email"`
	Password   string         `json:"password" jsonschema:"required,minLength=8"`
	DeviceInfo map[string]any `json:"deviceInfo,omitempty"`
}

// LogoutPayload is the optional body of POST /logout.
type LogoutPayload struct {
	RefreshToken string `json:"refreshToken,omitempty" jsonschema:"minLength=1"`
}

func setPattern(s *jsonschema.Schema, property, pattern string) {
	if prop, ok := s.Properties.Get(property); ok {
		prop.Pattern = pattern
	}
}

// messages holds the client-facing text per field and rule.
var messages = map[string]map[string]string{
	"email": {
		"required": "Email is required",
		"format":   "Please provide a valid email address",
	},
	"password": {
		"required":   "Password is required",
		"minLength":  "Password must be at least 8 characters long",
		"complexity": "Password must contain at least one uppercase letter, one lowercase letter, one number, and one special character",
	},
	"passwordConfirmation": {
		"required": "Password confirmation is required",
		"match":    "Password confirmation must match password",
	},
	"firstName": {
		"required":  "First name is required",
		"minLength": "First name must be at least 2 characters long",
		"maxLength": "First name cannot exceed 50 characters",
		"pattern":   "First name can only contain letters and spaces",
	},
	"lastName": {
		"required":  "Last name is required",
		"minLength": "Last name must be at least 2 characters long",
		"maxLength": "Last name cannot exceed 50 characters",
		"pattern":   "Last name can only contain letters and spaces",
	},
	"phoneNumber": {
		"required": "Phone number is required",
		"pattern":  "Please provide a valid phone number",
	},
	"age": {
		"required": "Age is required",
		"minimum":  "You must be at least 13 years old",
		"maximum":  "Age cannot exceed 120",
		"type":     "Age must be a whole number",
	},
	"preferredGenres": {
		"required":  "Preferred genres are required",
		"minItems":  "Please select at least one preferred genre",
		"maxItems":  "You can select up to 10 preferred genres",
		"minLength": "Preferred genres cannot be empty",
	},
	"refreshToken": {
		"minLength": "Refresh token cannot be empty",
		"type":      "Refresh token must be a string",
	},
	"deviceInfo": {
		"type": "Device info must be an object",
	},
}

// fieldOrder is the order details are reported in.
var fieldOrder = []string{
	"email", "password", "passwordConfirmation", "firstName", "lastName",
	"phoneNumber", "age", "preferredGenres", "deviceInfo", "refreshToken",
}

// trimmed lists the string fields whitespace is stripped from before
// validation.
var trimmed = map[string]bool{"firstName": true, "lastName": true, "email": true}
