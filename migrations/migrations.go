// Package migrations embeds the schema files applied by the migrate command.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
	"strings"
)

//go:embed *.sql clickhouse/*.sql
var files embed.FS

// MySQL returns the MySQL migration files in apply order.
func MySQL() ([]File, error) { return load(".") }

// ClickHouse returns the ClickHouse migration files in apply order.
func ClickHouse() ([]File, error) { return load("clickhouse") }

type File struct {
	Name string
	SQL  string
}

// Statements splits the file on semicolons, for drivers that run one
// statement per Exec.
func (f File) Statements() []string {
	var out []string
	for _, s := range strings.Split(f.SQL, ";") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func load(dir string) ([]File, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, err
	}
	var out []File
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		path := e.Name()
		if dir != "." {
			path = dir + "/" + e.Name()
		}
		b, err := fs.ReadFile(files, path)
		if err != nil {
			return nil, err
		}
		out = append(out, File{Name: path, SQL: string(b)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
