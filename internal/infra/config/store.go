package config

import (
	"bytes"
	"io/fs"
	"os"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// SaveSpotifyRefreshToken sets spotify.refresh_token in the file at path,
// creating the file when it does not exist. Other keys and comments are kept.
func SaveSpotifyRefreshToken(path, token string) error {
	if token == "" {
		return errors.New("refresh token is empty")
	}

	var doc yaml.Node
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return errors.Wrap(err, "failed to read config file")
	default:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return errors.Wrap(err, "failed to parse config file")
		}
	}

	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return errors.New("config file root is not a mapping")
	}

	spotify := mappingValue(root, "spotify", yaml.MappingNode)
	if spotify.Kind != yaml.MappingNode {
		return errors.New("config key spotify is not a mapping")
	}
	value := mappingValue(spotify, "refresh_token", yaml.ScalarNode)
	value.Kind = yaml.ScalarNode
	value.Tag = "!!str"
	value.Value = token
	value.Style = yaml.DoubleQuotedStyle

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}
	if err := enc.Close(); err != nil {
		return errors.Wrap(err, "failed to encode config")
	}

	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return errors.Wrap(err, "failed to write config file")
	}
	return nil
}

// mappingValue returns the value node of key in m, appending an empty node of
// kind when the key is missing. A null value is replaced by an empty node.
func mappingValue(m *yaml.Node, key string, kind yaml.Kind) *yaml.Node {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value != key {
			continue
		}
		v := m.Content[i+1]
		if v.Kind == yaml.ScalarNode && v.Tag == "!!null" {
			*v = yaml.Node{Kind: kind}
		}
		return v
	}

	v := &yaml.Node{Kind: kind}
	m.Content = append(m.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		v,
	)
	return v
}
