package config

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/creasty/defaults"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type Format string

const (
	FormatUnknown Format = "unknown"
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
	FormatTOML    Format = "toml"
)

// formatFromFilename returns the format of the file based on the filename extension.
func formatFromFilename(filename string) Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	default:
		return FormatUnknown
	}
}

// formatFromResponse returns the format of the file based on the Content-Type header.
func formatFromResponse(resp *http.Response) Format {
	switch resp.Header.Get("Content-Type") {
	case "application/json", "text/json":
		return FormatJSON
	case "application/x-toml", "application/toml", "text/x-toml", "text/toml":
		return FormatTOML
	case "application/x-yaml", "application/yaml", "text/x-yaml", "text/yaml":
		return FormatYAML
	default:
		return FormatUnknown
	}
}

// getReaderFor returns an io.ReadCloser for the given URL or filename.
func getReaderFor(u string) (io.ReadCloser, Format, error) {
	if u == "" {
		return nil, FormatUnknown, fmt.Errorf("empty url")
	}
	uu, err := url.Parse(u)
	if err != nil {
		return nil, FormatUnknown, err
	}
	switch uu.Scheme {
	case "file", "": // we treat an empty scheme as a filename
		r, err := os.Open(uu.Path)
		if err != nil {
			return nil, FormatUnknown, err
		}
		return r, formatFromFilename(uu.Path), nil
	case "http", "https":
		resp, err := http.Get(u)
		if err != nil {
			return nil, FormatUnknown, err
		}
		format := formatFromResponse(resp)
		// the Content-Type wasn't useful, so fall back to the path
		if format == FormatUnknown {
			format = formatFromFilename(uu.Path)
		}
		return resp.Body, format, nil
	default:
		return nil, FormatUnknown, fmt.Errorf("unknown scheme %q", uu.Scheme)
	}
}

func load(r io.Reader, format Format, into any) error {
	switch format {
	case FormatYAML:
		return yaml.NewDecoder(r).Decode(into)
	case FormatTOML:
		return toml.NewDecoder(r).Decode(into)
	case FormatJSON:
		return json.NewDecoder(r).Decode(into)
	default:
		return fmt.Errorf("unable to determine data format")
	}
}

// loadConfigsInto loads all the named configs into dest in the order they are
// listed. It returns the MD5 hash of the collected configs as a string.
func loadConfigsInto(dest any, locations []string) (string, error) {
	h := md5.New()
	for _, location := range locations {
		location := strings.TrimSpace(location)
		if err := loadOne(dest, location, h); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func loadOne(dest any, location string, h io.Writer) error {
	r, format, err := getReaderFor(location)
	if err != nil {
		return err
	}
	defer r.Close()

	// loading into a struct only overwrites fields that are explicitly
	// named, so successive files layer on top of each other
	if err := load(io.TeeReader(r, h), format, dest); err != nil {
		return fmt.Errorf("loadConfigsInto unable to load config %s: %w", location, err)
	}
	return nil
}

// readConfigInto reads the config from the given locations, then applies
// defaults and command line options to it.
func readConfigInto(dest any, locations []string, opts *CmdEnv) (string, error) {
	hash, err := loadConfigsInto(dest, locations)
	if err != nil {
		return hash, err
	}

	if err := defaults.Set(dest); err != nil {
		return hash, fmt.Errorf("readConfigInto unable to apply defaults: %w", err)
	}

	if opts == nil {
		return hash, nil
	}
	if err := opts.ApplyTags(reflect.ValueOf(dest)); err != nil {
		return hash, fmt.Errorf("readConfigInto unable to apply command line options: %w", err)
	}

	return hash, nil
}
