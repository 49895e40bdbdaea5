package store

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ActivitySchema names the complaint backend's tables and columns that
// Postgres snapshots and user lookups read. Table names may be schema
// qualified ("public.Complaint"). Identifiers are quoted, so case matters.
type ActivitySchema struct {
	ComplaintTable    string
	ComplainantColumn string
	StatusColumn      string
	UpvotesColumn     string
	DepartmentColumn  string

	UserTable         string
	UserIDColumn      string
	UserSubjectColumn string
}

// DefaultActivitySchema matches the complaint backend's Prisma models.
func DefaultActivitySchema() ActivitySchema {
	return ActivitySchema{
		ComplaintTable:    "Complaint",
		ComplainantColumn: "complainantId",
		StatusColumn:      "status",
		UpvotesColumn:     "upvoteCount",
		DepartmentColumn:  "assignedDepartment",
		UserTable:         "User",
		UserIDColumn:      "id",
		UserSubjectColumn: "clerkId",
	}
}

// withDefaults fills empty names from DefaultActivitySchema.
func (a ActivitySchema) withDefaults() ActivitySchema {
	d := DefaultActivitySchema()
	fill := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	fill(&a.ComplaintTable, d.ComplaintTable)
	fill(&a.ComplainantColumn, d.ComplainantColumn)
	fill(&a.StatusColumn, d.StatusColumn)
	fill(&a.UpvotesColumn, d.UpvotesColumn)
	fill(&a.DepartmentColumn, d.DepartmentColumn)
	fill(&a.UserTable, d.UserTable)
	fill(&a.UserIDColumn, d.UserIDColumn)
	fill(&a.UserSubjectColumn, d.UserSubjectColumn)
	return a
}

func table(name string) string {
	return pgx.Identifier(strings.Split(strings.TrimSpace(name), ".")).Sanitize()
}

func column(name string) string {
	return pgx.Identifier{strings.TrimSpace(name)}.Sanitize()
}

type activityQueries struct {
	aggregate   string
	departments string
	resolveUser string
}

func (a ActivitySchema) queries() activityQueries {
	a = a.withDefaults()
	complaints := table(a.ComplaintTable)
	complainant := column(a.ComplainantColumn)
	upvotes := column(a.UpvotesColumn)
	department := column(a.DepartmentColumn)

	return activityQueries{
		aggregate: fmt.Sprintf(`SELECT COUNT(*), COUNT(*) FILTER (WHERE %s = $2), COALESCE(SUM(%s), 0), COALESCE(MAX(%s), 0) FROM %s WHERE %s = $1`,
			column(a.StatusColumn), upvotes, upvotes, complaints, complainant),
		departments: fmt.Sprintf(`SELECT %s, COUNT(*) FROM %s WHERE %s = $1 AND %s IS NOT NULL GROUP BY %s`,
			department, complaints, complainant, department, department),
		resolveUser: fmt.Sprintf(`SELECT %s FROM %s WHERE %s = $1`,
			column(a.UserIDColumn), table(a.UserTable), column(a.UserSubjectColumn)),
	}
}
