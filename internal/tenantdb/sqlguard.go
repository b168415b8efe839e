package tenantdb

import (
	"errors"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// JOIN <table> [[AS] <alias>]
	joinPattern = regexp.MustCompile("(?i)\\bjoin\\s+[\"`]?(\\w+)[\"`]?(?:\\s+(?:as\\s+)?[\"`]?(\\w+)[\"`]?)?")
	// FROM <table> / JOIN <table>, also after an opening parenthesis.
	sourcePattern = regexp.MustCompile("(?i)\\b(?:from|join)[\\s(]+[\"`]?(\\w+)")
)

// Words that can follow a joined table name without being its alias.
var joinKeywords = map[string]bool{
	"on": true, "using": true, "where": true, "join": true, "left": true,
	"right": true, "inner": true, "outer": true, "cross": true, "full": true,
	"natural": true, "group": true, "order": true, "limit": true,
}

// tableNames returns the known tenant-owned tables in a stable order.
func (p *Plugin) tableNames() []string {
	var names []string
	p.tables.Range(func(k, _ interface{}) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

func (p *Plugin) isTenantTable(name string) bool {
	_, ok := p.tables.Load(strings.ToLower(name))
	return ok
}

// mentionedTable returns the first tenant-owned table named anywhere in sql.
func (p *Plugin) mentionedTable(sql string) (string, bool) {
	lower := strings.ToLower(sql)
	for _, table := range p.tableNames() {
		if containsWord(lower, table) {
			return table, true
		}
	}
	return "", false
}

func containsWord(s, word string) bool {
	for i := 0; i < len(s); {
		j := strings.Index(s[i:], word)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(word)
		if (start == 0 || !identByte(s[start-1])) && (end == len(s) || !identByte(s[end])) {
			return true
		}
		i = start + 1
	}
	return false
}

func identByte(b byte) bool {
	return b == '_' || b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// embeddedTable finds a tenant-owned table read from inside a SQL fragment
// of the statement, e.g. Where("id IN (SELECT obligation_id FROM comments)").
func (p *Plugin) embeddedTable(stmt *gorm.Statement) (string, bool) {
	var fragments []string
	fragments = append(fragments, stmt.Selects...)
	for _, name := range []string{"SELECT", "WHERE", "HAVING", "ORDER BY", "GROUP BY"} {
		c, ok := stmt.Clauses[name]
		if !ok {
			continue
		}
		fragments = collectSQL(c.Expression, fragments)
	}
	for _, f := range fragments {
		for _, m := range sourcePattern.FindAllStringSubmatch(f, -1) {
			if p.isTenantTable(m[1]) {
				return strings.ToLower(m[1]), true
			}
		}
	}
	return "", false
}

func collectSQL(e clause.Expression, out []string) []string {
	switch v := e.(type) {
	case clause.Expr:
		out = append(out, v.SQL)
		for _, arg := range v.Vars {
			if inner, ok := arg.(clause.Expression); ok {
				out = collectSQL(inner, out)
			}
		}
	case clause.NamedExpr:
		out = append(out, v.SQL)
	case clause.Where:
		for _, x := range v.Exprs {
			out = collectSQL(x, out)
		}
	case clause.AndConditions:
		for _, x := range v.Exprs {
			out = collectSQL(x, out)
		}
	case clause.OrConditions:
		for _, x := range v.Exprs {
			out = collectSQL(x, out)
		}
	case clause.NotConditions:
		for _, x := range v.Exprs {
			out = collectSQL(x, out)
		}
	case clause.Select:
		if v.Expression != nil {
			out = collectSQL(v.Expression, out)
		}
	case clause.GroupBy:
		for _, x := range v.Having {
			out = collectSQL(x, out)
		}
	case clause.OrderBy:
		if v.Expression != nil {
			out = collectSQL(v.Expression, out)
		}
	}
	return out
}

// joinedTenantTables returns the qualifiers of tenant-owned tables the
// statement joins. Joins the guard cannot filter return an error.
func (p *Plugin) joinedTenantTables(stmt *gorm.Statement) ([]string, error) {
	if c, ok := stmt.Clauses["FROM"]; ok {
		if from, ok := c.Expression.(clause.From); ok && len(from.Joins) > 0 {
			return nil, errors.New("join clauses cannot be tenant-scoped")
		}
	}
	var qualifiers []string
	for _, j := range stmt.Joins {
		if stmt.Schema != nil {
			if rel, ok := stmt.Schema.Relationships.Relations[j.Name]; ok {
				// Association joins alias the table with the relation name.
				if rel.FieldSchema != nil && ownedType(rel.FieldSchema.ModelType) {
					p.tables.Store(rel.FieldSchema.Table, struct{}{})
					qualifiers = append(qualifiers, rel.Name)
				}
				continue
			}
		}
		if !strings.ContainsAny(j.Name, " \t\n") {
			// Nested association paths such as "Party.Account".
			if strings.Contains(j.Name, ".") {
				return nil, errors.New("nested association join " + j.Name + " cannot be tenant-scoped")
			}
			continue
		}
		table, ok := p.mentionedTable(j.Name)
		if !ok {
			continue
		}
		if m := sourcePattern.FindAllStringSubmatch(j.Name, -1); hasSubquery(j.Name, m) {
			return nil, errors.New("subquery join on tenant-owned table " + table + " cannot be scoped")
		}
		for _, m := range joinPattern.FindAllStringSubmatch(j.Name, -1) {
			if !p.isTenantTable(m[1]) {
				continue
			}
			qualifier := m[1]
			if alias := m[2]; alias != "" && !joinKeywords[strings.ToLower(alias)] {
				qualifier = alias
			}
			qualifiers = append(qualifiers, qualifier)
		}
	}
	return qualifiers, nil
}

// hasSubquery reports a FROM inside a join fragment.
func hasSubquery(sql string, sources [][]string) bool {
	if containsWord(strings.ToLower(sql), "select") {
		return true
	}
	for _, m := range sources {
		if strings.EqualFold(m[0][:4], "from") {
			return true
		}
	}
	return false
}

func ownedType(t reflect.Type) bool {
	_, ok := reflect.New(t).Interface().(TenantOwned)
	return ok
}
