package clients

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/magiconair/properties"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Source supplies the flat key/value client configuration.
//
// Every key without a dot is a client id whose value is the client secret.
// "{id}.description" and "{id}.callbackURL" are optional metadata keys.
//
//	abc=xyz
//	abc.description=Sample consumer
//	abc.callbackURL=http://localhost:3000/callback
type Source interface {
	Name() string
	Read() (map[string]string, error)
}

// PropertiesFile reads a Java-style .properties file.
type PropertiesFile struct {
	Path string
}

func (s PropertiesFile) Name() string { return s.Path }

func (s PropertiesFile) Read() (map[string]string, error) {
	// Secrets may legitimately contain "${", so ${key} expansion stays off.
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "[PropertiesFile.Read] load")
	}
	values := make(map[string]string, p.Len())
	for _, key := range p.Keys() {
		if v, ok := p.Get(key); ok {
			values[key] = v
		}
	}
	return values, nil
}

// YAMLFile reads a flat YAML mapping using the same keys as the properties format.
type YAMLFile struct {
	Path string
}

func (s YAMLFile) Name() string { return s.Path }

func (s YAMLFile) Read() (map[string]string, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, errors.Wrap(err, "[YAMLFile.Read] read")
	}
	values := make(map[string]string)
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, errors.Wrap(err, "[YAMLFile.Read] unmarshal")
	}
	return values, nil
}

// MapSource is an in-memory Source.
type MapSource map[string]string

func (MapSource) Name() string { return "memory" }

func (s MapSource) Read() (map[string]string, error) {
	values := make(map[string]string, len(s))
	for k, v := range s {
		values[k] = v
	}
	return values, nil
}

// SourceForPath picks the Source implementation from the file extension.
func SourceForPath(path string) Source {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAMLFile{Path: path}
	}
	return PropertiesFile{Path: path}
}
