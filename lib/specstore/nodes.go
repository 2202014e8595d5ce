// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package specstore

import "gopkg.in/yaml.v3"

// mappingValue returns the value node for key in a mapping node, or
// nil if the key is absent or mapping is not a mapping.
func mappingValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return nil
	}
	for index := 0; index+1 < len(mapping.Content); index += 2 {
		if mapping.Content[index].Value == key {
			return mapping.Content[index+1]
		}
	}
	return nil
}

// setScalar sets key to a scalar in mapping, replacing the existing
// value in place (keeping its position and comments) or appending a
// new pair at the end.
func setScalar(mapping *yaml.Node, key, value, tag string) {
	if existing := mappingValue(mapping, key); existing != nil {
		if existing.Kind == yaml.ScalarNode && existing.Tag == tag && existing.Value == value {
			return
		}
		// Keep quoting only when the new value is still a string.
		style := existing.Style
		if tag != "!!str" || existing.Kind != yaml.ScalarNode {
			style = 0
		}
		*existing = yaml.Node{
			Kind:        yaml.ScalarNode,
			Tag:         tag,
			Value:       value,
			Style:       style,
			LineComment: existing.LineComment,
		}
		return
	}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		&yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: value},
	)
}

// removeKey deletes key and its value from mapping. Returns whether
// the key was present.
func removeKey(mapping *yaml.Node, key string) bool {
	if mapping == nil || mapping.Kind != yaml.MappingNode {
		return false
	}
	for index := 0; index+1 < len(mapping.Content); index += 2 {
		if mapping.Content[index].Value == key {
			mapping.Content = append(mapping.Content[:index], mapping.Content[index+2:]...)
			return true
		}
	}
	return false
}

// ensureMapping returns the mapping stored under key, creating an
// empty block mapping when absent.
func ensureMapping(mapping *yaml.Node, key string) *yaml.Node {
	if existing := mappingValue(mapping, key); existing != nil && existing.Kind == yaml.MappingNode {
		return existing
	}
	removeKey(mapping, key)
	child := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	mapping.Content = append(mapping.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key},
		child,
	)
	return child
}

// cloneNode deep-copies a node tree. Aliases are rewired to the copies
// of their anchors so the clone shares nothing with the source.
func cloneNode(node *yaml.Node) *yaml.Node {
	copies := make(map[*yaml.Node]*yaml.Node)
	var walk func(*yaml.Node) *yaml.Node
	walk = func(source *yaml.Node) *yaml.Node {
		if source == nil {
			return nil
		}
		if existing, ok := copies[source]; ok {
			return existing
		}
		duplicate := *source
		copies[source] = &duplicate
		if source.Content != nil {
			duplicate.Content = make([]*yaml.Node, len(source.Content))
			for index, child := range source.Content {
				duplicate.Content[index] = walk(child)
			}
		}
		duplicate.Alias = walk(source.Alias)
		return &duplicate
	}
	return walk(node)
}
