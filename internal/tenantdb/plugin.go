// Package tenantdb scopes every statement on tenant-owned tables to the tenant
// carried by the statement context. Statements without a scope fail before
// any SQL is sent.
package tenantdb

import (
	"reflect"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/schema"

	"obligation-service/internal/apperr"
	"obligation-service/internal/reqctx"
	"obligation-service/pkg/logger"
	"obligation-service/prometheus"
)

const (
	tenantField  = "TenantID"
	tenantColumn = "tenant_id"
)

// TenantOwned is implemented by models whose rows belong to one tenant.
type TenantOwned interface {
	TenantOwned()
}

// Plugin installs the tenant guard callbacks on a *gorm.DB.
//
// Statements the guard cannot scope are refused: raw SQL naming a
// tenant-owned table, subqueries on tenant-owned tables inside SQL
// fragments, and join clauses. Joins onto tenant-owned tables are
// filtered to the scope tenant like the statement's own table.
type Plugin struct {
	models []interface{}
	tables sync.Map
}

// NewPlugin returns a guard that also recognizes the tables of models when a
// statement names the table without a model.
func NewPlugin(models ...interface{}) *Plugin {
	return &Plugin{models: models}
}

// Name implements gorm.Plugin.
func (p *Plugin) Name() string {
	return "tenantdb"
}

// Initialize implements gorm.Plugin.
func (p *Plugin) Initialize(db *gorm.DB) error {
	cache := &sync.Map{}
	for _, m := range p.models {
		if _, ok := m.(TenantOwned); !ok {
			continue
		}
		s, err := schema.Parse(m, cache, db.NamingStrategy)
		if err != nil {
			return err
		}
		p.tables.Store(s.Table, struct{}{})
	}

	cb := db.Callback()
	if err := cb.Create().Before("gorm:create").Register("tenantdb:create", p.beforeCreate); err != nil {
		return err
	}
	if err := cb.Query().Before("gorm:query").Register("tenantdb:query", p.scopeWhere("query")); err != nil {
		return err
	}
	if err := cb.Update().Before("gorm:update").Register("tenantdb:update", p.beforeUpdate); err != nil {
		return err
	}
	if err := cb.Delete().Before("gorm:delete").Register("tenantdb:delete", p.scopeWhere("delete")); err != nil {
		return err
	}
	if err := cb.Row().Before("gorm:row").Register("tenantdb:row", p.scopeWhere("row")); err != nil {
		return err
	}
	return cb.Raw().Before("gorm:raw").Register("tenantdb:raw", p.beforeRaw)
}

// scoped reports whether the statement targets a tenant-owned table.
func (p *Plugin) scoped(stmt *gorm.Statement) bool {
	if stmt.Schema != nil {
		if _, ok := reflect.New(stmt.Schema.ModelType).Interface().(TenantOwned); ok {
			p.tables.Store(stmt.Schema.Table, struct{}{})
			return true
		}
	}
	if stmt.TableExpr != nil {
		// Table("parties p") leaves the alias in stmt.Table.
		if _, ok := p.mentionedTable(stmt.TableExpr.SQL); ok {
			return true
		}
	}
	if stmt.Table != "" {
		_, ok := p.tables.Load(stmt.Table)
		return ok
	}
	return false
}

// tenant returns the statement's tenant scope or marks the statement failed.
func (p *Plugin) tenant(db *gorm.DB, operation string) (string, bool) {
	tenantID, ok := reqctx.TenantFrom(db.Statement.Context)
	if ok {
		return tenantID, true
	}
	p.refuse(db, operation, "tenant scope required for "+db.Statement.Table)
	return "", false
}

// refuse fails the statement before any SQL is sent.
func (p *Plugin) refuse(db *gorm.DB, operation, reason string) {
	prometheus.RecordScopeRejection(operation)
	logger.FromContext(db.Statement.Context).Warn("statement refused by tenant guard",
		zap.String("operation", operation),
		zap.String("table", db.Statement.Table),
		zap.String("reason", reason),
	)
	_ = db.AddError(apperr.New(apperr.CodeScopeRequired, reason))
}

func (p *Plugin) scopeWhere(operation string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		if db.Error != nil {
			return
		}
		stmt := db.Statement
		if stmt.SQL.Len() > 0 {
			// db.Raw(...).Scan/Find/Rows
			p.guardRaw(db, operation)
			return
		}
		if table, ok := p.embeddedTable(stmt); ok {
			p.refuse(db, operation, "subquery on tenant-owned table "+table+" cannot be scoped")
			return
		}
		joined, err := p.joinedTenantTables(stmt)
		if err != nil {
			p.refuse(db, operation, err.Error())
			return
		}
		base := p.scoped(stmt)
		if !base && len(joined) == 0 {
			return
		}
		tenantID, ok := p.tenant(db, operation)
		if !ok {
			return
		}
		if base {
			addTenantClause(stmt, tenantID)
		}
		for _, qualifier := range joined {
			addJoinedTenantClause(stmt, qualifier, tenantID)
		}
	}
}

func (p *Plugin) beforeRaw(db *gorm.DB) {
	if db.Error != nil || db.Statement.SQL.Len() == 0 {
		return
	}
	p.guardRaw(db, "raw")
}

// guardRaw refuses hand-written SQL naming a tenant-owned table. Without a
// scope the error reads as a missing scope; with one the statement still
// cannot be scoped and is refused.
func (p *Plugin) guardRaw(db *gorm.DB, operation string) {
	table, ok := p.mentionedTable(db.Statement.SQL.String())
	if !ok {
		return
	}
	if _, ok := reqctx.TenantFrom(db.Statement.Context); !ok {
		p.refuse(db, operation, "tenant scope required for "+table)
		return
	}
	p.refuse(db, operation, "raw SQL on tenant-owned table "+table+" cannot be scoped")
}

func (p *Plugin) beforeCreate(db *gorm.DB) {
	if db.Error != nil || !p.scoped(db.Statement) {
		return
	}
	tenantID, ok := p.tenant(db, "create")
	if !ok {
		return
	}

	stmt := db.Statement
	if stmt.Schema == nil {
		_ = db.AddError(apperr.Validation("tenant-owned rows must be created from a model"))
		return
	}
	field := stmt.Schema.LookUpField(tenantField)
	if field == nil {
		_ = db.AddError(apperr.Validation("model " + stmt.Schema.Name + " has no tenant field"))
		return
	}

	rv := stmt.ReflectValue
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if err := field.Set(stmt.Context, rv.Index(i), tenantID); err != nil {
				_ = db.AddError(err)
				return
			}
		}
	case reflect.Struct:
		if err := field.Set(stmt.Context, rv, tenantID); err != nil {
			_ = db.AddError(err)
		}
	default:
		_ = db.AddError(apperr.Validation("tenant-owned rows must be created from a model"))
	}
}

func (p *Plugin) beforeUpdate(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	if table, ok := p.embeddedTable(db.Statement); ok {
		p.refuse(db, "update", "subquery on tenant-owned table "+table+" cannot be scoped")
		return
	}
	if !p.scoped(db.Statement) {
		return
	}
	tenantID, ok := p.tenant(db, "update")
	if !ok {
		return
	}

	stmt := db.Statement
	switch dest := stmt.Dest.(type) {
	case map[string]interface{}:
		if _, ok := dest[tenantColumn]; ok {
			_ = db.AddError(apperr.Validation("tenant id is immutable"))
			return
		}
		if _, ok := dest[tenantField]; ok {
			_ = db.AddError(apperr.Validation("tenant id is immutable"))
			return
		}
	default:
		if err := pinTenant(stmt, tenantID); err != nil {
			_ = db.AddError(err)
			return
		}
	}

	addTenantClause(stmt, tenantID)
}

// pinTenant rejects struct updates that carry a foreign tenant id and fills
// an empty one, so full-row saves never blank the column.
func pinTenant(stmt *gorm.Statement, tenantID string) error {
	if stmt.Schema == nil || stmt.Dest == nil {
		return nil
	}
	field := stmt.Schema.LookUpField(tenantField)
	if field == nil {
		return nil
	}
	rv := reflect.Indirect(reflect.ValueOf(stmt.Dest))
	if rv.Kind() != reflect.Struct || rv.Type() != stmt.Schema.ModelType {
		return nil
	}
	value, zero := field.ValueOf(stmt.Context, rv)
	if !zero {
		if value != tenantID {
			return apperr.Validation("tenant id is immutable")
		}
		return nil
	}
	if !rv.CanAddr() {
		return nil
	}
	return field.Set(stmt.Context, rv, tenantID)
}

func addTenantClause(stmt *gorm.Statement, tenantID string) {
	table := stmt.Table
	if stmt.Schema != nil && table == "" {
		table = stmt.Schema.Table
	}
	stmt.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Eq{Column: clause.Column{Table: table, Name: tenantColumn}, Value: tenantID},
	}})
}

// addJoinedTenantClause keeps rows of a joined tenant-owned table to the
// scope tenant. Unmatched outer-join rows carry NULL and stay.
func addJoinedTenantClause(stmt *gorm.Statement, qualifier, tenantID string) {
	col := clause.Column{Table: qualifier, Name: tenantColumn}
	stmt.AddClause(clause.Where{Exprs: []clause.Expression{
		clause.Expr{SQL: "(? = ? OR ? IS NULL)", Vars: []interface{}{col, tenantID, col}},
	}})
}
