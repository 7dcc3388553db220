package catalog

import (
	"bufio"
	"io"
	"strings"

	"github.com/pkg/errors"
	"heapdb/catalog/db_types"
)

var ErrInvalidSchemaFile = errors.New("invalid schema file")

// TableDef is one table read from a schema file.
type TableDef struct {
	Name       string
	Schema     Schema
	PrimaryKey string
}

// ParseSchemaFile reads table definitions, one per line, in the form
//
//	name (field type [pk], field type, ...)
//
// where type is int or string and pk marks the primary key. Blank lines and lines starting with # are skipped.
func ParseSchemaFile(r io.Reader) ([]TableDef, error) {
	defs := make([]TableDef, 0)
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		def, err := parseTableLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", lineNo)
		}
		defs = append(defs, def)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read schema file")
	}

	return defs, nil
}

func parseTableLine(line string) (TableDef, error) {
	open, end := strings.Index(line, "("), strings.LastIndex(line, ")")
	if open <= 0 || end < open {
		return TableDef{}, errors.Wrapf(ErrInvalidSchemaFile, "%q", line)
	}

	name := strings.TrimSpace(line[:open])
	types := make([]db_types.TypeID, 0)
	names := make([]string, 0)
	pk := ""
	for _, field := range strings.Split(line[open+1:end], ",") {
		parts := strings.Fields(field)
		if len(parts) < 2 || len(parts) > 3 {
			return TableDef{}, errors.Wrapf(ErrInvalidSchemaFile, "field %q", strings.TrimSpace(field))
		}

		typ, err := db_types.ParseType(parts[1])
		if err != nil {
			return TableDef{}, err
		}

		if len(parts) == 3 {
			if parts[2] != "pk" {
				return TableDef{}, errors.Wrapf(ErrInvalidSchemaFile, "unknown annotation %q", parts[2])
			}
			pk = parts[0]
		}

		names = append(names, parts[0])
		types = append(types, typ)
	}

	return TableDef{Name: name, Schema: NewSchemaFromTypes(types, names), PrimaryKey: pk}, nil
}
