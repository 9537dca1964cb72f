package persist

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/tabload/internal/dataset"
	"github.com/JonMunkholm/tabload/internal/schema"
)

// Quoter renders identifiers and string literals for one backend.
type Quoter interface {
	QuoteLiteral(s string) (string, error)
	QuoteIdentifier(name string) string
}

// renderLiteral renders v as a SQL literal. Strings, times and lists go
// through the backend's escaping.
func renderLiteral(q Quoter, kind dataset.Kind, v any) (string, error) {
	if dataset.IsNull(v) {
		return "NULL", nil
	}
	switch x := v.(type) {
	case bool:
		if x {
			return "TRUE", nil
		}
		return "FALSE", nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		text, _, err := encodeText(kind, x)
		return text, err
	case float32:
		return renderFloat(q, float64(x))
	case float64:
		return renderFloat(q, x)
	}
	text, _, err := encodeText(kind, v)
	if err != nil {
		return "", err
	}
	return q.QuoteLiteral(text)
}

func renderFloat(q Quoter, f float64) (string, error) {
	if math.IsInf(f, 0) {
		return q.QuoteLiteral(formatFloat(f))
	}
	return strconv.FormatFloat(f, 'g', -1, 64), nil
}

// defaultSentinel stands in for NULL in a conflict target when the
// column declares no sentinel of its own.
func defaultSentinel(kind dataset.Kind) any {
	switch kind {
	case dataset.KindInteger:
		return int64(0)
	case dataset.KindFloat:
		return 0.0
	case dataset.KindBoolean:
		return false
	case dataset.KindDate:
		return "0001-01-01"
	case dataset.KindDateTime:
		return "0001-01-01T00:00:00Z"
	case dataset.KindList:
		return "{}"
	default:
		return ""
	}
}

// UpsertPlan is the shape of an upsert statement for one dataset.
type UpsertPlan struct {
	Table string

	// Columns are the inserted columns, in dataset order.
	Columns []string

	// Conflict is the conflict target. Nullable columns are wrapped in
	// COALESCE so rows with NULL keys still collide.
	Conflict []string

	// Update lists the columns rewritten on conflict: inserted columns
	// that are neither part of the target nor managed.
	Update []string

	Returning []string
}

// PlanUpsert derives the upsert shape. The conflict target is the first
// unique group, else the primary key when it is inserted, else none.
func PlanUpsert(q Quoter, ds *dataset.Dataset, s *schema.Schema, returning []string) (UpsertPlan, error) {
	plan := UpsertPlan{
		Table:     s.Table(),
		Columns:   ds.Columns(),
		Returning: slices.Clone(returning),
	}

	var target []string
	if groups := s.UniqueGroups(); len(groups) > 0 {
		target = groups[0]
	} else if pk := s.PrimaryKey(); pk != "" && slices.Contains(plan.Columns, pk) {
		target = []string{pk}
	}

	for _, name := range target {
		expr := q.QuoteIdentifier(name)
		spec, ok := s.ColumnByTarget(name)
		if ok && spec.Nullable() {
			sentinel := spec.ConflictSentinel
			if sentinel == nil {
				sentinel = defaultSentinel(spec.Kind)
			}
			lit, err := renderLiteral(q, spec.Kind, sentinel)
			if err != nil {
				return UpsertPlan{}, fmt.Errorf("conflict sentinel for %s: %w", name, err)
			}
			expr = "COALESCE(" + expr + ", " + lit + ")"
		}
		plan.Conflict = append(plan.Conflict, expr)
	}

	if len(target) > 0 {
		for _, name := range plan.Columns {
			if slices.Contains(target, name) || s.IsManaged(name) {
				continue
			}
			plan.Update = append(plan.Update, name)
		}
	}
	return plan, nil
}

// BuildUpsert renders the upsert statement for every row of ds.
func BuildUpsert(q Quoter, ds *dataset.Dataset, s *schema.Schema, returning []string) (string, error) {
	plan, err := PlanUpsert(q, ds, s, returning)
	if err != nil {
		return "", err
	}

	cols := make([]*dataset.Column, len(plan.Columns))
	quoted := make([]string, len(plan.Columns))
	for i, name := range plan.Columns {
		cols[i], _ = ds.Typed(name)
		quoted[i] = q.QuoteIdentifier(name)
	}

	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(q.QuoteIdentifier(plan.Table))
	b.WriteString(" (")
	b.WriteString(strings.Join(quoted, ", "))
	b.WriteString(") VALUES ")

	lits := make([]string, len(cols))
	for row := 0; row < ds.Len(); row++ {
		for i, col := range cols {
			lit, err := renderLiteral(q, col.Kind, col.Values[row])
			if err != nil {
				return "", fmt.Errorf("row %d column %s: %w", row, col.Name, err)
			}
			lits[i] = lit
		}
		if row > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		b.WriteString(strings.Join(lits, ", "))
		b.WriteByte(')')
	}

	if len(plan.Conflict) > 0 {
		b.WriteString(" ON CONFLICT (")
		b.WriteString(strings.Join(plan.Conflict, ", "))
		b.WriteString(")")
		if len(plan.Update) == 0 {
			b.WriteString(" DO NOTHING")
		} else {
			sets := make([]string, len(plan.Update))
			for i, name := range plan.Update {
				id := q.QuoteIdentifier(name)
				sets[i] = id + " = EXCLUDED." + id
			}
			b.WriteString(" DO UPDATE SET ")
			b.WriteString(strings.Join(sets, ", "))
		}
	}

	if len(plan.Returning) > 0 {
		ret := make([]string, len(plan.Returning))
		for i, name := range plan.Returning {
			ret[i] = q.QuoteIdentifier(name)
		}
		b.WriteString(" RETURNING ")
		b.WriteString(strings.Join(ret, ", "))
	}
	return b.String(), nil
}
