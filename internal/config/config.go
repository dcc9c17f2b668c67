// Package config holds the fetch action settings, their validation and the
// construction of the immutable request and output values.
package config

import (
	"fmt"
	"net/http"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/loykin/apifetch/internal/constants"
	"github.com/loykin/apifetch/internal/env"
	"github.com/loykin/apifetch/internal/util"
)

// Property keys, also used as failure field tags.
const (
	FieldURL                  = "url"
	FieldMethod               = "method"
	FieldBody                 = "body"
	FieldRequestHeaders       = "requestHeaders"
	FieldNumRetries           = "numRetries"
	FieldConnectTimeout       = "connectTimeout"
	FieldReadTimeout          = "readTimeout"
	FieldOutputFormat         = "outputFormat"
	FieldCharset              = "charset"
	FieldPath                 = "hdfsFilePath"
	FieldFollowRedirects      = "followRedirects"
	FieldDisableSSLValidation = "disableSSLValidation"
	FieldOutputPath           = "outputPath"
	FieldResponseHeaders      = "responseHeaders"

	// aliasPath is accepted in place of hdfsFilePath.
	aliasPath = "path"
)

// Methods lists the accepted request methods.
var Methods = []string{http.MethodGet, http.MethodPost}

// Config is the raw action configuration. Timeouts are milliseconds; zero means no limit.
type Config struct {
	Path                 string  `mapstructure:"hdfsFilePath" yaml:"hdfsFilePath"`
	URL                  string  `mapstructure:"url" yaml:"url"`
	Method               string  `mapstructure:"method" yaml:"method"`
	Body                 *string `mapstructure:"body" yaml:"body,omitempty"`
	RequestHeaders       string  `mapstructure:"requestHeaders" yaml:"requestHeaders,omitempty"`
	OutputFormat         string  `mapstructure:"outputFormat" yaml:"outputFormat"`
	Charset              string  `mapstructure:"charset" yaml:"charset"`
	FollowRedirects      bool    `mapstructure:"followRedirects" yaml:"followRedirects"`
	DisableSSLValidation bool    `mapstructure:"disableSSLValidation" yaml:"disableSSLValidation"`
	NumRetries           int     `mapstructure:"numRetries" yaml:"numRetries"`
	ConnectTimeout       int     `mapstructure:"connectTimeout" yaml:"connectTimeout"`
	ReadTimeout          int     `mapstructure:"readTimeout" yaml:"readTimeout"`
	OutputPath           string  `mapstructure:"outputPath" yaml:"outputPath"`
	ResponseHeaders      string  `mapstructure:"responseHeaders" yaml:"responseHeaders"`

	// Deferred maps a field to raw text holding placeholders that are
	// resolved only at execution time.
	Deferred map[string]string `mapstructure:"-" yaml:"-"`
}

// Default returns a Config carrying every default.
func Default() Config {
	return Config{
		Method:               constants.DefaultMethod,
		OutputFormat:         constants.DefaultOutputFormat,
		Charset:              constants.DefaultCharset,
		FollowRedirects:      constants.DefaultFollowRedirects,
		DisableSSLValidation: constants.DefaultDisableSSL,
		NumRetries:           constants.DefaultNumRetries,
		ConnectTimeout:       constants.DefaultConnectTimeoutMS,
		ReadTimeout:          constants.DefaultReadTimeoutMS,
		OutputPath:           constants.DefaultOutputPathVar,
		ResponseHeaders:      constants.DefaultResponseHeadersVar,
	}
}

// IsDeferred reports whether field still holds unresolved placeholder text.
func (c Config) IsDeferred(field string) bool {
	_, ok := c.Deferred[field]
	return ok
}

// DeferredFields returns the deferred field names, sorted.
func (c Config) DeferredFields() []string {
	out := make([]string, 0, len(c.Deferred))
	for k := range c.Deferred {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// FromProperties decodes a host property map on top of Default. Empty values keep
// the default. Values containing placeholders are recorded as deferred. Every
// value that cannot be decoded is reported in the returned *ValidationError.
func FromProperties(props map[string]string) (Config, error) {
	cfg := Default()
	var fs Failures
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		field := canonicalField(k)
		if field == "" {
			continue
		}
		raw := props[k]
		if raw == "" {
			continue
		}
		if env.HasPlaceholder(raw) {
			if cfg.Deferred == nil {
				cfg.Deferred = map[string]string{}
			}
			cfg.Deferred[field] = raw
			continue
		}
		if err := cfg.decodeField(field, raw); err != nil {
			fs.add(field, fmt.Sprintf("Unable to parse value '%s'.", raw), correctionFor(field))
		}
	}
	return cfg, fs.Err()
}

// Renderer expands placeholders in raw property text.
type Renderer interface {
	Render(s string) (string, error)
}

// Resolve renders every deferred field and returns a config with an empty
// deferred set. Render or decode failures are collected into a *ValidationError.
func (c Config) Resolve(r Renderer) (Config, error) {
	out := c
	out.Deferred = nil
	if len(c.Deferred) == 0 {
		return out, nil
	}
	var fs Failures
	for _, field := range c.DeferredFields() {
		raw := c.Deferred[field]
		if r == nil {
			fs.add(field, fmt.Sprintf("Unable to resolve '%s'.", raw), "No run context is available for placeholders.")
			continue
		}
		val, err := r.Render(raw)
		if err != nil {
			fs.add(field, fmt.Sprintf("Unable to resolve '%s': %v.", raw, err), "Make sure every referenced variable is defined.")
			continue
		}
		if err := out.decodeField(field, val); err != nil {
			fs.add(field, fmt.Sprintf("Unable to parse value '%s'.", val), correctionFor(field))
		}
	}
	return out, fs.Err()
}

func (c *Config) decodeField(field, raw string) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           c,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(map[string]interface{}{field: raw})
}

var knownFields = func() map[string]string {
	out := map[string]string{strings.ToLower(aliasPath): FieldPath}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}
		out[strings.ToLower(tag)] = tag
	}
	return out
}()

// canonicalField maps a property key to its field tag, or "" when unknown.
func canonicalField(key string) string {
	return knownFields[util.TrimAndLower(key)]
}

func correctionFor(field string) string {
	switch field {
	case FieldNumRetries, FieldConnectTimeout, FieldReadTimeout:
		return "Provide a whole number."
	case FieldFollowRedirects, FieldDisableSSLValidation:
		return "Provide true or false."
	default:
		return ""
	}
}

// RequestSpec is the validated, immutable description of the HTTP request.
type RequestSpec struct {
	URL                string
	Method             string
	Body               *string
	Headers            map[string]string
	Charset            string
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	FollowRedirects    bool
	Retries            int
	InsecureSkipVerify bool
}

// OutputTarget says where the body goes and which run context keys receive the results.
type OutputTarget struct {
	DestinationPath    string
	OutputFormat       string
	ResultPathVar      string
	ResponseHeadersVar string
}

// Build validates the config and constructs the request and output values.
// The error is a *ValidationError listing every failure, including fields that
// still hold unresolved placeholders.
func (c Config) Build() (RequestSpec, OutputTarget, error) {
	fs := c.Validate()
	for _, field := range c.DeferredFields() {
		fs.add(field, fmt.Sprintf("Value '%s' has unresolved placeholders.", c.Deferred[field]),
			"Resolve the configuration against the run context before building.")
	}
	if err := fs.Err(); err != nil {
		return RequestSpec{}, OutputTarget{}, err
	}

	var body *string
	if c.Body != nil {
		b := *c.Body
		body = &b
	}
	req := RequestSpec{
		URL:                strings.TrimSpace(c.URL),
		Method:             c.method(),
		Body:               body,
		Headers:            ParseHeaders(c.RequestHeaders),
		Charset:            c.charset(),
		ConnectTimeout:     time.Duration(c.ConnectTimeout) * time.Millisecond,
		ReadTimeout:        time.Duration(c.ReadTimeout) * time.Millisecond,
		FollowRedirects:    c.FollowRedirects,
		Retries:            c.NumRetries,
		InsecureSkipVerify: c.DisableSSLValidation,
	}
	out := OutputTarget{
		DestinationPath:    strings.TrimSpace(c.Path),
		OutputFormat:       c.outputFormat(),
		ResultPathVar:      util.TrimWithDefault(c.OutputPath, constants.DefaultOutputPathVar),
		ResponseHeadersVar: util.TrimWithDefault(c.ResponseHeaders, constants.DefaultResponseHeadersVar),
	}
	return req, out, nil
}

func (c Config) method() string {
	return strings.ToUpper(util.TrimWithDefault(c.Method, constants.DefaultMethod))
}

func (c Config) charset() string {
	return util.TrimWithDefault(c.Charset, constants.DefaultCharset)
}

func (c Config) outputFormat() string {
	switch util.TrimAndLower(c.OutputFormat) {
	case "", strings.ToLower(constants.OutputFormatText):
		return constants.OutputFormatText
	case strings.ToLower(constants.OutputFormatBinary):
		return constants.OutputFormatBinary
	default:
		return c.OutputFormat
	}
}
