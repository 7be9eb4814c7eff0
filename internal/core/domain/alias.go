package domain

import (
	"fmt"
	"slices"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// ColumnLineage records how the columns a SELECT reads can surface in its
// result. Column and relation names are lower-cased.
type ColumnLineage struct {
	// Aliases maps a source column to every name it is selected as, directly
	// or inside an aliased expression, at any nesting level.
	Aliases map[string][]string
	// Unnamed holds columns read by an unaliased select-list expression. The
	// engine picks that output name itself.
	Unnamed map[string]bool
	// Renamed is set when the query renames columns by position, as in
	// FROM t AS x(a, b) or WITH c(a) AS (...).
	Renamed bool
	// WholeRow lists relations referenced as a single value, as in
	// SELECT u FROM users u or row_to_json(u).
	WholeRow []string
}

// ColumnAliases parses a single SELECT and returns its column lineage. MySQL
// backtick quoting is accepted. It is only used for masking, never for
// validation.
func ColumnAliases(sql string) (ColumnLineage, error) {
	lineage := ColumnLineage{
		Aliases: map[string][]string{},
		Unnamed: map[string]bool{},
	}

	tree, err := pg_query.Parse(standardQuoting(sql))
	if err != nil {
		return lineage, fmt.Errorf("parsing query: %w", err)
	}
	if len(tree.GetStmts()) != 1 || tree.GetStmts()[0].GetStmt().GetSelectStmt() == nil {
		return lineage, fmt.Errorf("expected a single SELECT statement")
	}

	relations := map[string]bool{}
	singleRefs := map[string]bool{}

	walk(tree.ProtoReflect(), func(m proto.Message) {
		switch n := m.(type) {
		case *pg_query.ResTarget:
			lineage.addTarget(n)
		case *pg_query.ColumnRef:
			if fields := n.GetFields(); len(fields) == 1 {
				if name := fields[0].GetString_().GetSval(); name != "" {
					singleRefs[strings.ToLower(name)] = true
				}
			}
		case *pg_query.RangeVar:
			relations[strings.ToLower(n.GetRelname())] = true
		case *pg_query.Alias:
			relations[strings.ToLower(n.GetAliasname())] = true
			if len(n.GetColnames()) > 0 {
				lineage.Renamed = true
			}
		case *pg_query.CommonTableExpr:
			relations[strings.ToLower(n.GetCtename())] = true
			if len(n.GetAliascolnames()) > 0 {
				lineage.Renamed = true
			}
		}
	})

	for name := range singleRefs {
		if relations[name] {
			lineage.WholeRow = append(lineage.WholeRow, name)
		}
	}
	slices.Sort(lineage.WholeRow)
	return lineage, nil
}

func (l *ColumnLineage) addTarget(res *pg_query.ResTarget) {
	val := res.GetVal()
	if val == nil {
		return
	}
	name := res.GetName()
	if name == "" {
		// A bare column keeps its own name in the output.
		if val.GetColumnRef() != nil {
			return
		}
		for _, col := range referencedColumns(val) {
			l.Unnamed[col] = true
		}
		return
	}
	for _, col := range referencedColumns(val) {
		if col == strings.ToLower(name) || slices.Contains(l.Aliases[col], name) {
			continue
		}
		l.Aliases[col] = append(l.Aliases[col], name)
	}
}

// referencedColumns returns the lower-cased final name of every column
// reference under node. Star references are skipped.
func referencedColumns(node *pg_query.Node) []string {
	var cols []string
	walk(node.ProtoReflect(), func(m proto.Message) {
		ref, ok := m.(*pg_query.ColumnRef)
		if !ok {
			return
		}
		fields := ref.GetFields()
		if len(fields) == 0 {
			return
		}
		if col := fields[len(fields)-1].GetString_().GetSval(); col != "" {
			cols = append(cols, strings.ToLower(col))
		}
	})
	return cols
}

// walk visits m and every message nested under it, depth first.
func walk(m protoreflect.Message, visit func(proto.Message)) {
	if !m.IsValid() {
		return
	}
	visit(m.Interface())
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.IsMap():
		case fd.IsList() && fd.Message() != nil:
			list := v.List()
			for i := range list.Len() {
				walk(list.Get(i).Message(), visit)
			}
		case fd.Message() != nil:
			walk(v.Message(), visit)
		}
		return true
	})
}

// standardQuoting rewrites backtick-quoted identifiers to double quotes.
// Single-quoted string literals are left alone.
func standardQuoting(sql string) string {
	if !strings.ContainsRune(sql, '`') {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql))
	inString := false
	for _, r := range sql {
		switch {
		case r == '\'':
			inString = !inString
		case r == '`' && !inString:
			r = '"'
		}
		b.WriteRune(r)
	}
	return b.String()
}
