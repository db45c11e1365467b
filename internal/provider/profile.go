// Package provider holds the closed set of supported exam-body profiles.
// Each profile describes how to drive one portal's form: ordered selector
// candidates per field (the portal's markup is not ours and changes without
// notice, so every field carries alternatives tried in order), the kind of
// secret material the portal wants, and the exam type assumed when a job
// does not name one.
package provider

import (
	"errors"
	"fmt"
)

var ErrUnknownProvider = errors.New("unknown provider")

// SecretKind distinguishes how a portal takes the paid access credential.
type SecretKind string

const (
	// SecretSerialPIN portals take a scratch-card serial plus PIN.
	SecretSerialPIN SecretKind = "serial_pin"
	// SecretToken portals take a single purchased token string.
	SecretToken SecretKind = "token"
)

// Selectors carries the ordered CSS selector candidates for each form field.
// First match wins.
type Selectors struct {
	Year      []string
	ExamType  []string
	RegNumber []string
	Serial    []string
	PIN       []string
	Token     []string
	Submit    []string
}

// Profile is the static configuration for one exam body.
type Profile struct {
	Key             string
	DisplayName     string
	SettingsKey     string
	Secret          SecretKind
	Selectors       Selectors
	DefaultExamType string
}

var profiles = map[string]*Profile{
	"waec": {
		Key:         "waec",
		DisplayName: "WAEC",
		SettingsKey: "waec",
		Secret:      SecretSerialPIN,
		Selectors: Selectors{
			Year:      []string{"#ContentPlaceHolder1_ddlExamYear", "select[name$='ExamYear']", "#examyear"},
			ExamType:  []string{"#ContentPlaceHolder1_ddlExamType", "select[name$='ExamType']", "#examtype"},
			RegNumber: []string{"#ContentPlaceHolder1_txtExamNumber", "input[name$='ExamNumber']", "#examnumber"},
			Serial:    []string{"#ContentPlaceHolder1_txtCardSerial", "input[name$='CardSerial']", "#cardserial"},
			PIN:       []string{"#ContentPlaceHolder1_txtCardPin", "input[name$='CardPin']", "#cardpin"},
			Submit:    []string{"#ContentPlaceHolder1_btnSubmit", "input[type='submit']", "button[type='submit']"},
		},
		DefaultExamType: "MAY/JUN",
	},
	"neco": {
		Key:         "neco",
		DisplayName: "NECO",
		SettingsKey: "neco",
		Secret:      SecretToken,
		Selectors: Selectors{
			Year:      []string{"#exam_year", "select[name='exam_year']", "select[name='year']"},
			ExamType:  []string{"#exam_type", "select[name='exam_type']", "select[name='type']"},
			RegNumber: []string{"#registration_number", "input[name='registration_number']", "input[name='reg_no']"},
			Token:     []string{"#token", "input[name='token']"},
			Submit:    []string{"button[type='submit']", "#check_result", "input[type='submit']"},
		},
		DefaultExamType: "SSCE INTERNAL",
	},
	"nabteb": {
		Key:         "nabteb",
		DisplayName: "NABTEB",
		SettingsKey: "nabteb",
		Secret:      SecretSerialPIN,
		Selectors: Selectors{
			Year:      []string{"#ddlYear", "select[name='year']", "select[name$='Year']"},
			ExamType:  []string{"#ddlExamType", "select[name='examtype']", "select[name$='ExamType']"},
			RegNumber: []string{"#txtCandidateNo", "input[name='candidateno']", "input[name$='CandidateNo']"},
			Serial:    []string{"#txtSerial", "input[name='serial']", "input[name$='Serial']"},
			PIN:       []string{"#txtPin", "input[name='pin']", "input[name$='Pin']"},
			Submit:    []string{"#btnCheck", "input[type='submit']", "button[type='submit']"},
		},
		DefaultExamType: "MAY/JUNE",
	},
}

// Get returns the profile for key.
func Get(key string) (*Profile, error) {
	p, ok := profiles[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
	}
	return p, nil
}

// Keys returns the supported provider keys.
func Keys() []string {
	keys := make([]string, 0, len(profiles))
	for k := range profiles {
		keys = append(keys, k)
	}
	return keys
}

// Override field names accepted from operator-configured provider settings.
const (
	FieldYear      = "year"
	FieldExamType  = "exam_type"
	FieldRegNumber = "reg_number"
	FieldSerial    = "serial"
	FieldPIN       = "pin"
	FieldToken     = "token"
	FieldSubmit    = "submit"
)

// WithOverrides returns a copy of the profile whose selector lists are
// replaced by operator-provided ones. Unknown field names are ignored so a
// typo in settings degrades to the built-in candidates rather than breaking
// the worker.
func (p *Profile) WithOverrides(overrides map[string][]string) *Profile {
	if len(overrides) == 0 {
		return p
	}

	out := *p
	for field, selectors := range overrides {
		if len(selectors) == 0 {
			continue
		}
		switch field {
		case FieldYear:
			out.Selectors.Year = selectors
		case FieldExamType:
			out.Selectors.ExamType = selectors
		case FieldRegNumber:
			out.Selectors.RegNumber = selectors
		case FieldSerial:
			out.Selectors.Serial = selectors
		case FieldPIN:
			out.Selectors.PIN = selectors
		case FieldToken:
			out.Selectors.Token = selectors
		case FieldSubmit:
			out.Selectors.Submit = selectors
		}
	}
	return &out
}
