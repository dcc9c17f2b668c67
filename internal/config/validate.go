package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/loykin/apifetch/internal/charset"
	"github.com/loykin/apifetch/internal/constants"
	"github.com/loykin/apifetch/internal/sink"
	"github.com/loykin/apifetch/internal/util"
)

// Validate runs every rule and returns one failure per violation. Deferred
// fields are skipped.
func (c Config) Validate() Failures {
	var fs Failures

	if !c.IsDeferred(FieldURL) {
		if err := checkURL(c.URL); err != nil {
			fs.add(FieldURL, fmt.Sprintf("URL '%s' is malformed: '%v'", c.URL, err), "")
		}
	}

	if !c.IsDeferred(FieldConnectTimeout) && c.ConnectTimeout < 0 {
		fs.add(FieldConnectTimeout, fmt.Sprintf("Invalid connection timeout '%d'.", c.ConnectTimeout),
			"Connection timeout must be 0 or a positive number.")
	}

	if !c.IsDeferred(FieldRequestHeaders) {
		for _, line := range malformedHeaderLines(c.RequestHeaders) {
			fs.add(FieldRequestHeaders, fmt.Sprintf("Unable to parse key-value pair '%s'.", line),
				"Provide correct value for request headers field.")
		}
	}

	if !c.IsDeferred(FieldMethod) && !validMethod(c.method()) {
		fs.add(FieldMethod, fmt.Sprintf("Invalid request method '%s'.", c.method()),
			fmt.Sprintf("Request method must be one of '%s'.", strings.Join(Methods, ",")))
	}

	if !c.IsDeferred(FieldReadTimeout) && c.ReadTimeout < 0 {
		fs.add(FieldReadTimeout, fmt.Sprintf("Invalid read timeout '%d'.", c.ReadTimeout),
			"Read timeout must be 0 or a positive number.")
	}

	if !c.IsDeferred(FieldNumRetries) && c.NumRetries < 0 {
		fs.add(FieldNumRetries, fmt.Sprintf("Invalid number of retries '%d'.", c.NumRetries),
			"Number of retries must be 0 or a positive number.")
	}

	if !c.IsDeferred(FieldOutputFormat) {
		if f := c.outputFormat(); f != constants.OutputFormatText && f != constants.OutputFormatBinary {
			fs.add(FieldOutputFormat, fmt.Sprintf("Invalid output format '%s'.", f),
				fmt.Sprintf("Output format must be one of '%s,%s'.", constants.OutputFormatText, constants.OutputFormatBinary))
		}
	}

	if !c.IsDeferred(FieldCharset) {
		if _, err := charset.Lookup(c.charset()); err != nil {
			fs.add(FieldCharset, fmt.Sprintf("Invalid charset '%s'.", c.charset()),
				"Provide a charset name such as UTF-8 or ISO-8859-1.")
		}
	}

	if !c.IsDeferred(FieldPath) {
		if p, ok := util.TrimEmptyCheck(c.Path); !ok {
			fs.add(FieldPath, "File path is required.", "Provide the destination path to write the response to.")
		} else if !sink.Supported(p) {
			fs.add(FieldPath, fmt.Sprintf("Unsupported destination '%s'.", p),
				"Use a local path, file://, s3://, webhdfs://, swebhdfs:// or hdfs:// destination.")
		}
	}

	return fs
}

// checkURL requires an absolute URL with scheme and host.
func checkURL(raw string) error {
	s, ok := util.TrimEmptyCheck(raw)
	if !ok {
		return fmt.Errorf("no URL given")
	}
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme == "" {
		return fmt.Errorf("no protocol: %s", s)
	}
	if u.Host == "" {
		return fmt.Errorf("no host: %s", s)
	}
	return nil
}

func validMethod(m string) bool {
	for _, allowed := range Methods {
		if m == allowed {
			return true
		}
	}
	return false
}
