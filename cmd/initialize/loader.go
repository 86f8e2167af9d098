// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package initialize loads organization configuration files into holderdb.
package initialize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/credrunner/holderdb"
	"github.com/cardinalhq/credrunner/internal/logctx"
	"github.com/cardinalhq/credrunner/internal/orgdir"
)

// FileReader interface for testable file operations
type FileReader interface {
	ReadFile(filename string) ([]byte, error)
	Getenv(key string) string
}

// OSFileReader implements FileReader using OS operations
type OSFileReader struct{}

func (r OSFileReader) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (r OSFileReader) Getenv(key string) string {
	return os.Getenv(key)
}

// OrganizationWriter is the holderdb call the import makes.
type OrganizationWriter interface {
	OrganizationUpsert(ctx context.Context, arg holderdb.OrganizationUpsertParams) error
}

// OrganizationFile is one organization entry: an orgId and its config.
type OrganizationFile struct {
	OrgID  string
	Config json.RawMessage
}

// ImportOrganizations reads filename (or env:VAR) and upserts every
// organization it declares. All entries are parsed and validated before
// anything is written.
func ImportOrganizations(ctx context.Context, filename string, db OrganizationWriter, fileReader FileReader) ([]string, error) {
	ll := logctx.FromContext(ctx)

	contents, err := loadFileContentsWithReader(filename, fileReader)
	if err != nil {
		return nil, err
	}
	orgs, err := ParseOrganizations(contents)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filename, err)
	}

	var ids []string
	for _, o := range orgs {
		if err := db.OrganizationUpsert(ctx, holderdb.OrganizationUpsertParams{OrgID: o.OrgID, Config: o.Config}); err != nil {
			return ids, fmt.Errorf("failed to upsert organization %s: %w", o.OrgID, err)
		}
		ll.Info("Imported organization", slog.String("orgID", o.OrgID))
		ids = append(ids, o.OrgID)
	}
	return ids, nil
}

func loadFileContentsWithReader(filename string, fileReader FileReader) ([]byte, error) {
	// Handle env: prefix for environment variables
	if after, ok := strings.CutPrefix(filename, "env:"); ok {
		envContents := fileReader.Getenv(after)
		if envContents == "" {
			return nil, fmt.Errorf("environment variable %s is not set", after)
		}
		return []byte(envContents), nil
	}

	contents, err := fileReader.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filename, err)
	}
	return contents, nil
}

// ParseOrganizations accepts YAML or JSON holding one organization object or
// a list of them. Mapping key order is kept in the stored config, since the
// order of a mapper's fields decides which projection wins.
func ParseOrganizations(contents []byte) ([]OrganizationFile, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(contents, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, fmt.Errorf("empty organization file")
	}
	root := doc.Content[0]

	var entries []*yaml.Node
	switch root.Kind {
	case yaml.SequenceNode:
		entries = root.Content
	case yaml.MappingNode:
		entries = []*yaml.Node{root}
	default:
		return nil, fmt.Errorf("expected an organization or a list of organizations")
	}

	out := make([]OrganizationFile, 0, len(entries))
	seen := map[string]bool{}
	for i, e := range entries {
		o, err := parseEntry(e)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		if seen[o.OrgID] {
			return nil, fmt.Errorf("entry %d: duplicate orgId %s", i, o.OrgID)
		}
		seen[o.OrgID] = true
		out = append(out, o)
	}
	return out, nil
}

func parseEntry(n *yaml.Node) (OrganizationFile, error) {
	if n.Kind != yaml.MappingNode {
		return OrganizationFile{}, fmt.Errorf("expected a mapping")
	}
	var o OrganizationFile
	var cfgNode *yaml.Node
	for i := 0; i+1 < len(n.Content); i += 2 {
		switch n.Content[i].Value {
		case "orgId":
			o.OrgID = n.Content[i+1].Value
		case "config":
			cfgNode = n.Content[i+1]
		}
	}
	if o.OrgID == "" {
		return o, fmt.Errorf("orgId is required")
	}
	if cfgNode == nil {
		return o, fmt.Errorf("config is required for %s", o.OrgID)
	}

	var buf bytes.Buffer
	if err := writeJSON(&buf, cfgNode); err != nil {
		return o, fmt.Errorf("config for %s: %w", o.OrgID, err)
	}
	if _, err := orgdir.ParseConfig(buf.Bytes()); err != nil {
		return o, fmt.Errorf("config for %s: %w", o.OrgID, err)
	}
	o.Config = buf.Bytes()
	return o, nil
}

// writeJSON renders a YAML node as JSON, keeping mapping key order.
func writeJSON(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeJSON(buf, n.Content[0])
	case yaml.AliasNode:
		return writeJSON(buf, n.Alias)
	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			k, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(k)
			buf.WriteByte(':')
			if err := writeJSON(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil
	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, c := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeJSON(buf, c); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return err
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
		return nil
	}
	return fmt.Errorf("unsupported YAML node kind %d", n.Kind)
}
