package detect

import (
	"regexp"
	"strings"
)

// errorPatterns maps a DBMS name to the error signatures it leaks when a
// query breaks.
var errorPatterns = map[string][]*regexp.Regexp{
	"mysql": {
		regexp.MustCompile(`(?i)SQL syntax.*MySQL`),
		regexp.MustCompile(`(?i)Warning.*mysql_`),
		regexp.MustCompile(`(?i)valid MySQL result`),
		regexp.MustCompile(`(?i)MySqlClient\.`),
		regexp.MustCompile(`(?i)com\.mysql\.jdbc`),
		regexp.MustCompile(`(?i)mysqli_`),
		regexp.MustCompile(`(?i)mysql_fetch_`),
		regexp.MustCompile(`(?i)You have an error in your SQL syntax`),
	},
	"postgresql": {
		regexp.MustCompile(`(?i)PostgreSQL.*ERROR`),
		regexp.MustCompile(`(?i)Warning.*\Wpg_`),
		regexp.MustCompile(`(?i)valid PostgreSQL result`),
		regexp.MustCompile(`(?i)Npgsql\.`),
		regexp.MustCompile(`(?i)PG::SyntaxError`),
		regexp.MustCompile(`(?i)org\.postgresql\.util\.PSQLException`),
		regexp.MustCompile(`(?i)ERROR:\s*syntax error at or near`),
	},
	"mssql": {
		regexp.MustCompile(`(?i)Driver.*SQL[\-\_\ ]*Server`),
		regexp.MustCompile(`(?i)OLE DB.*SQL Server`),
		regexp.MustCompile(`(?i)Warning.*mssql_`),
		regexp.MustCompile(`(?i)Microsoft SQL Native Client error`),
		regexp.MustCompile(`(?i)Msg \d+, Level \d+, State \d+`),
		regexp.MustCompile(`(?i)Unclosed quotation mark after`),
		regexp.MustCompile(`(?i)ODBC SQL Server Driver`),
	},
	"oracle": {
		regexp.MustCompile(`(?i)\bORA-[0-9]{4,}`),
		regexp.MustCompile(`(?i)Oracle error`),
		regexp.MustCompile(`(?i)Warning.*oci_`),
		regexp.MustCompile(`(?i)quoted string not properly terminated`),
	},
	"sqlite": {
		regexp.MustCompile(`(?i)SQLite.*error`),
		regexp.MustCompile(`(?i)Warning.*sqlite_`),
		regexp.MustCompile(`(?i)SQLite3::query`),
		regexp.MustCompile(`(?i)\[SQLITE_ERROR\]`),
		regexp.MustCompile(`(?i)unrecognized token`),
	},
	"generic": {
		regexp.MustCompile(`(?i)SQL error`),
		regexp.MustCompile(`(?i)SQL syntax`),
		regexp.MustCompile(`(?i)syntax error`),
		regexp.MustCompile(`(?i)ODBCException`),
		regexp.MustCompile(`(?i)javax\.persistence\.PersistenceException`),
		regexp.MustCompile(`(?i)Hibernate.*Query`),
		regexp.MustCompile(`(?i)java\.sql\.SQLException`),
		regexp.MustCompile(`(?i)Incorrect syntax near`),
	},
}

// unionPatterns are arity-mismatch errors a UNION probe with the wrong
// column count provokes.
var unionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)The used SELECT statements have a different number of columns`),
	regexp.MustCompile(`(?i)each UNION query must have the same number of columns`),
	regexp.MustCompile(`(?i)All queries combined using a UNION.*must have an equal number of expressions`),
	regexp.MustCompile(`(?i)query block has incorrect number of result columns`),
	regexp.MustCompile(`(?i)SELECTs to the left and right of UNION do not have the same number of result columns`),
	regexp.MustCompile(`(?i)ORA-01789`),
}

// sqlKeywords gates the expensive regex pass. A body without any of these
// cannot match a pattern.
var sqlKeywords = []string{
	"sql", "syntax", "error", "warning", "mysql", "postgresql",
	"oracle", "sqlite", "mssql", "odbc", "jdbc", "hibernate",
	"ora-", "pg::", "unclosed", "quotation", "query", "union", "columns",
}

// contextRadius is how many bytes of surrounding text a signature match
// keeps as evidence.
const contextRadius = 50

// hasSQLKeyword is the cheap pre-filter.
func hasSQLKeyword(body string) bool {
	lower := strings.ToLower(body)
	for _, kw := range sqlKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// matchError scans a body for DBMS error signatures, returning the DBMS
// name and the matched context.
func matchError(body string) (dbms, context string, ok bool) {
	if !hasSQLKeyword(body) {
		return "", "", false
	}

	// Specific engines first so generic patterns don't mask the DBMS.
	for _, name := range []string{"mysql", "postgresql", "mssql", "oracle", "sqlite", "generic"} {
		for _, pattern := range errorPatterns[name] {
			if loc := pattern.FindStringIndex(body); loc != nil {
				return name, excerptAround(body, loc), true
			}
		}
	}
	return "", "", false
}

// matchUnion scans a body for UNION arity-mismatch signatures.
func matchUnion(body string) (context string, ok bool) {
	if !hasSQLKeyword(body) {
		return "", false
	}
	for _, pattern := range unionPatterns {
		if loc := pattern.FindStringIndex(body); loc != nil {
			return excerptAround(body, loc), true
		}
	}
	return "", false
}

// excerptAround returns the match plus contextRadius bytes either side.
func excerptAround(body string, loc []int) string {
	start := loc[0] - contextRadius
	if start < 0 {
		start = 0
	}
	end := loc[1] + contextRadius
	if end > len(body) {
		end = len(body)
	}
	return body[start:end]
}
