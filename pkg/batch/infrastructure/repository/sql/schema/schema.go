// Package schema embeds the DDL of the job repository tables for each supported dialect.
// Scripts are written with a %PREFIX% placeholder that is replaced by the configured table prefix.
package schema

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"testing/fstest"

	"github.com/tigerroll/batchstate/pkg/batch/adapter/database"
	"github.com/tigerroll/batchstate/pkg/batch/support/util/logger"
)

//go:embed resource
var resources embed.FS

// Direction selects the migration half of a script.
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Dialects lists the database types scripts exist for.
func Dialects() []string {
	entries, err := fs.ReadDir(resources, "resource")
	if err != nil {
		return nil
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	sort.Strings(out)
	return out
}

// Render returns the scripts of dialect with the prefix substituted, laid out as golang-migrate
// expects them (NNNNNN_name.up.sql / .down.sql at the root).
func Render(dialect, prefix string) (fs.FS, error) {
	dir := path.Join("resource", dialect)
	entries, err := fs.ReadDir(resources, dir)
	if err != nil {
		return nil, fmt.Errorf("no schema scripts for database type '%s'", dialect)
	}
	replacer := database.NewPrefixReplacer(prefix)
	rendered := fstest.MapFS{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := fs.ReadFile(resources, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		rendered[e.Name()] = &fstest.MapFile{Data: []byte(replacer.Apply(string(data))), Mode: 0o444}
	}
	return rendered, nil
}

// Statements returns the statements of every script of dialect for direction, in version order.
func Statements(dialect, prefix string, direction Direction) ([]string, error) {
	rendered, err := Render(dialect, prefix)
	if err != nil {
		return nil, err
	}
	names, err := fs.Glob(rendered, "*."+string(direction)+".sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	if direction == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(names)))
	}

	var statements []string
	for _, name := range names {
		data, err := fs.ReadFile(rendered, name)
		if err != nil {
			return nil, err
		}
		statements = append(statements, split(string(data))...)
	}
	return statements, nil
}

// split cuts a script at semicolons. The scripts contain no semicolons inside literals.
func split(script string) []string {
	var out []string
	for _, stmt := range strings.Split(script, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			out = append(out, stmt)
		}
	}
	return out
}

// Initializer applies the embedded scripts statement by statement through a QueryExecutor.
// The create scripts are idempotent, so Create may run on every start.
type Initializer struct {
	exec   database.QueryExecutor
	prefix string
}

// NewInitializer creates an Initializer for the dialect of exec.
func NewInitializer(exec database.QueryExecutor, prefix string) *Initializer {
	return &Initializer{exec: exec, prefix: prefix}
}

// Create creates the tables and sequences that do not exist yet.
func (i *Initializer) Create(ctx context.Context) error {
	if err := i.run(ctx, Up); err != nil {
		return err
	}
	logger.Infof("Job repository schema ready (dialect: %s, prefix: %s)", i.exec.Dialect(), i.prefix)
	return nil
}

// Drop removes every table and sequence of the schema.
func (i *Initializer) Drop(ctx context.Context) error {
	if err := i.run(ctx, Down); err != nil {
		return err
	}
	logger.Infof("Job repository schema dropped (dialect: %s, prefix: %s)", i.exec.Dialect(), i.prefix)
	return nil
}

func (i *Initializer) run(ctx context.Context, direction Direction) error {
	statements, err := Statements(i.exec.Dialect(), i.prefix, direction)
	if err != nil {
		return err
	}
	for _, stmt := range statements {
		if _, err := i.exec.Update(ctx, stmt, nil); err != nil {
			return fmt.Errorf("schema %s failed on %q: %w", direction, firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
