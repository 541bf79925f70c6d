package sqltext

// Parse normalizes raw DDL and returns its statements in source order.
func Parse(raw string) []Statement {
	return ParseNormalized(Normalize(raw))
}

// ParseNormalized parses text already produced by Normalize.
func ParseNormalized(normalized string) []Statement {
	var statements []Statement
	for _, tokens := range splitStatements(Tokenize(normalized)) {
		statements = append(statements, parseStatement(tokens))
	}
	return statements
}

func parseStatement(tokens []Token) Statement {
	text := joinTokens(tokens)
	c := &cursor{tokens: tokens}

	var stmt Statement
	switch {
	case c.at("create"):
		stmt = parseCreate(c, text)
	case c.at("alter"):
		stmt = parseAlterTable(c, text)
	case c.at("drop"):
		stmt = parseDropTrigger(c, text)
	}
	if stmt == nil {
		return &Unrecognized{base: base{text: text}}
	}
	return stmt
}

func parseCreate(c *cursor, text string) Statement {
	c.next()
	c.acceptAny("or")
	c.acceptAny("replace")
	c.acceptAny("temporary", "temp")
	c.pos += definerLength(c.tokens, c.pos)

	switch {
	case c.accept("table"):
		return parseCreateTable(c, text)
	case c.accept("trigger"):
		return parseCreateTrigger(c, text)
	case c.acceptAny("unique", "fulltext", "spatial"), c.at("index"):
		if !c.accept("index") {
			return nil
		}
		return parseCreateIndex(c, text)
	}
	return nil
}

func parseCreateTable(c *cursor, text string) Statement {
	c.accept("if", "not", "exists")
	name, ok := c.word()
	if !ok {
		return nil
	}
	stmt := &CreateTable{base: base{text: text}, Table: ParseName(name)}

	defs, ok := c.group()
	if !ok {
		return stmt
	}
	for _, def := range splitTopLevel(defs) {
		parseTableDefinition(&cursor{tokens: def}, stmt)
	}
	return stmt
}

func parseTableDefinition(c *cursor, stmt *CreateTable) {
	if c.accept("constraint") {
		if !c.at("primary") && !c.at("foreign") && !c.at("unique") && !c.at("check") {
			c.next()
		}
	}

	switch {
	case c.at("primary"), c.at("check"):
	case c.accept("foreign", "key"):
		if fk, ok := parseForeignKey(c); ok {
			stmt.ForeignKeys = append(stmt.ForeignKeys, fk)
		}
	case c.acceptAny("unique", "fulltext", "spatial"):
		if !c.acceptAny("index", "key") && c.peek().Kind == TokenLParen {
			return
		}
		if idx, ok := parseIndexDef(c); ok {
			stmt.Indexes = append(stmt.Indexes, idx)
		}
	case c.atIndexKeyword():
		c.next()
		if idx, ok := parseIndexDef(c); ok {
			stmt.Indexes = append(stmt.Indexes, idx)
		}
	default:
		column, ok := c.word()
		if !ok {
			return
		}
		stmt.Columns = append(stmt.Columns, column)
		if c.skipTo("references") {
			if fk, ok := parseReference(c, column); ok {
				stmt.ForeignKeys = append(stmt.ForeignKeys, fk)
			}
		}
	}
}

// parseIndexDef reads "[name] [using x] (cols) [using x]". An unnamed index
// is named after its first column.
func parseIndexDef(c *cursor) (IndexDef, bool) {
	var idx IndexDef
	if c.peek().Kind == TokenWord && !c.at("using") && !c.at("on") {
		idx.Name, _ = c.word()
	}
	if c.accept("using") {
		c.next()
	}
	cols, ok := c.group()
	if !ok {
		return idx, false
	}
	idx.Columns = columnList(cols)
	if len(idx.Columns) == 0 {
		return idx, false
	}
	if idx.Name == "" {
		idx.Name = idx.Columns[0]
	}
	return idx, true
}

// parseForeignKey reads "[name] (cols) references table [(cols)]".
func parseForeignKey(c *cursor) (ForeignKey, bool) {
	var fk ForeignKey
	if c.peek().Kind == TokenWord {
		fk.Name, _ = c.word()
	}
	cols, ok := c.group()
	if !ok {
		return fk, false
	}
	fk.Columns = columnList(cols)
	if !c.accept("references") {
		return fk, false
	}
	ref, ok := parseReference(c, "")
	if !ok {
		return fk, false
	}
	ref.Name, ref.Columns = fk.Name, fk.Columns
	return ref, true
}

// parseReference reads "table [(cols)]" following a REFERENCES keyword.
func parseReference(c *cursor, column string) (ForeignKey, bool) {
	table, ok := c.word()
	if !ok {
		return ForeignKey{}, false
	}
	fk := ForeignKey{Table: ParseName(table)}
	if column != "" {
		fk.Columns = []string{column}
	}
	if cols, ok := c.group(); ok {
		fk.RefColumns = columnList(cols)
	}
	return fk, true
}

func parseCreateIndex(c *cursor, text string) Statement {
	c.accept("concurrently")
	c.accept("if", "not", "exists")
	name, ok := c.word()
	if !ok || name == "on" {
		return nil
	}
	if c.accept("using") {
		c.next()
	}
	if !c.accept("on") {
		return nil
	}
	c.accept("only")
	table, ok := c.word()
	if !ok {
		return nil
	}
	if c.accept("using") {
		c.next()
	}
	cols, ok := c.group()
	if !ok {
		return nil
	}
	columns := columnList(cols)
	if len(columns) == 0 {
		return nil
	}
	return &CreateIndex{
		base:  base{text: text},
		Index: IndexDef{Name: ParseName(name).Object, Columns: columns},
		Table: ParseName(table),
	}
}

func parseCreateTrigger(c *cursor, text string) Statement {
	c.accept("if", "not", "exists")
	name, ok := c.word()
	if !ok {
		return nil
	}
	if !c.skipTo("on") {
		return nil
	}
	table, ok := c.word()
	if !ok {
		return nil
	}
	return &CreateTrigger{base: base{text: text}, Name: ParseName(name), Table: ParseName(table)}
}

func parseDropTrigger(c *cursor, text string) Statement {
	c.next()
	if !c.accept("trigger") {
		return nil
	}
	c.accept("if", "exists")
	name, ok := c.word()
	if !ok {
		return nil
	}
	return &DropTrigger{base: base{text: text}, Name: ParseName(name)}
}

func parseAlterTable(c *cursor, text string) Statement {
	c.next()
	c.acceptAny("online")
	c.acceptAny("ignore")
	if !c.accept("table") {
		return nil
	}
	c.accept("if", "exists")
	c.accept("only")
	name, ok := c.word()
	if !ok {
		return nil
	}
	stmt := &AlterTable{base: base{text: text}, Table: ParseName(name)}
	for _, clause := range splitTopLevel(c.rest()) {
		parseAlterClause(&cursor{tokens: clause}, stmt)
	}
	return stmt
}

func parseAlterClause(c *cursor, stmt *AlterTable) {
	switch {
	case c.accept("add"):
		parseAlterAdd(c, stmt)
	case c.accept("modify"):
		c.accept("column")
		if col, ok := c.word(); ok {
			stmt.ModifyColumns = append(stmt.ModifyColumns, col)
		}
	case c.accept("alter"):
		switch {
		case c.accept("index"):
			if idx, ok := c.word(); ok {
				stmt.AlterIndexes = append(stmt.AlterIndexes, idx)
			}
		case c.at("constraint"), c.at("check"):
		default:
			c.accept("column")
			if col, ok := c.word(); ok {
				stmt.ModifyColumns = append(stmt.ModifyColumns, col)
			}
		}
	case c.accept("change"):
		c.accept("column")
		from, ok := c.word()
		if !ok {
			return
		}
		to, ok := c.word()
		if !ok || to == from {
			stmt.ModifyColumns = append(stmt.ModifyColumns, from)
			return
		}
		stmt.RenameColumns = append(stmt.RenameColumns, Rename{From: from, To: to})
	case c.accept("rename"):
		switch {
		case c.accept("column"):
			if r, ok := parseRename(c); ok {
				stmt.RenameColumns = append(stmt.RenameColumns, r)
			}
		case c.acceptAny("index", "key"):
			if r, ok := parseRename(c); ok {
				stmt.RenameIndexes = append(stmt.RenameIndexes, r)
			}
		}
	case c.accept("drop"):
		switch {
		case (c.at("index") || c.at("key")) && c.lookahead(1).Kind == TokenWord:
			c.next()
			if idx, ok := c.word(); ok {
				stmt.DropIndexes = append(stmt.DropIndexes, idx)
			}
		case c.at("foreign"), c.at("primary"), c.at("constraint"), c.at("check"), c.at("partition"):
		default:
			c.accept("column")
			c.accept("if", "exists")
			if col, ok := c.word(); ok {
				stmt.DropColumns = append(stmt.DropColumns, col)
			}
		}
	}
}

func parseAlterAdd(c *cursor, stmt *AlterTable) {
	if c.accept("constraint") {
		if !c.at("primary") && !c.at("foreign") && !c.at("unique") && !c.at("check") {
			c.next()
		}
	}

	switch {
	case c.at("primary"), c.at("check"), c.at("partition"):
	case c.accept("foreign", "key"):
		if fk, ok := parseForeignKey(c); ok {
			stmt.ForeignKeys = append(stmt.ForeignKeys, fk)
		}
	case c.acceptAny("unique", "fulltext", "spatial"), c.atIndexKeyword():
		c.acceptAny("index", "key")
		if idx, ok := parseIndexDef(c); ok {
			stmt.AddIndexes = append(stmt.AddIndexes, idx)
		}
	default:
		c.accept("column")
		c.accept("if", "not", "exists")
		if defs, ok := c.group(); ok {
			for _, def := range splitTopLevel(defs) {
				if len(def) > 0 && def[0].Kind == TokenWord {
					stmt.AddColumns = append(stmt.AddColumns, def[0].Text)
				}
			}
			return
		}
		column, ok := c.word()
		if !ok {
			return
		}
		stmt.AddColumns = append(stmt.AddColumns, column)
		if c.skipTo("references") {
			if fk, ok := parseReference(c, column); ok {
				stmt.ForeignKeys = append(stmt.ForeignKeys, fk)
			}
		}
	}
}

func parseRename(c *cursor) (Rename, bool) {
	from, ok := c.word()
	if !ok || !c.accept("to") {
		return Rename{}, false
	}
	to, ok := c.word()
	if !ok {
		return Rename{}, false
	}
	return Rename{From: from, To: to}, true
}

// columnList returns the first word of every top-level item of a
// parenthesized list, so "(name (10) desc, id)" yields [name id].
func columnList(tokens []Token) []string {
	var cols []string
	for _, item := range splitTopLevel(tokens) {
		if len(item) > 0 && item[0].Kind == TokenWord {
			cols = append(cols, item[0].Text)
		}
	}
	return cols
}

// splitTopLevel splits tokens at commas outside parentheses.
func splitTopLevel(tokens []Token) [][]Token {
	var (
		parts   [][]Token
		current []Token
		depth   int
	)
	for _, t := range tokens {
		switch t.Kind {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		case TokenComma:
			if depth == 0 {
				parts = append(parts, current)
				current = nil
				continue
			}
		}
		current = append(current, t)
	}
	if len(current) > 0 {
		parts = append(parts, current)
	}
	return parts
}

// cursor walks the tokens of one statement or clause.
type cursor struct {
	tokens []Token
	pos    int
}

func (c *cursor) peek() Token {
	if c.pos >= len(c.tokens) {
		return Token{Kind: TokenSemicolon}
	}
	return c.tokens[c.pos]
}

func (c *cursor) next() Token {
	t := c.peek()
	if c.pos < len(c.tokens) {
		c.pos++
	}
	return t
}

func (c *cursor) at(word string) bool {
	return c.peek().is(word)
}

// lookahead returns the token n positions past the current one.
func (c *cursor) lookahead(n int) Token {
	if c.pos+n >= len(c.tokens) {
		return Token{Kind: TokenSemicolon}
	}
	return c.tokens[c.pos+n]
}

// atIndexKeyword reports whether the cursor is at INDEX or KEY opening an
// index definition rather than a column named index or key. An index name
// is followed by USING or a group of column names, a column type by nothing
// or a group of numbers or emptied literals.
func (c *cursor) atIndexKeyword() bool {
	if !c.at("index") && !c.at("key") {
		return false
	}
	next := c.lookahead(1)
	switch {
	case next.Kind == TokenLParen, next.is("using"):
		return true
	case next.Kind != TokenWord:
		return false
	}
	after := c.lookahead(2)
	if after.is("using") {
		return true
	}
	if after.Kind != TokenLParen {
		return false
	}
	first := c.lookahead(3)
	return first.Kind == TokenWord && !isNumber(first.Text)
}

func isNumber(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// accept consumes the given word sequence if it comes next, all or nothing.
func (c *cursor) accept(words ...string) bool {
	for i, w := range words {
		if c.pos+i >= len(c.tokens) || !c.tokens[c.pos+i].is(w) {
			return false
		}
	}
	c.pos += len(words)
	return true
}

// acceptAny consumes one word if it is any of the candidates.
func (c *cursor) acceptAny(words ...string) bool {
	for _, w := range words {
		if c.accept(w) {
			return true
		}
	}
	return false
}

func (c *cursor) word() (string, bool) {
	t := c.peek()
	if t.Kind != TokenWord {
		return "", false
	}
	c.pos++
	return t.Text, true
}

// group consumes a balanced parenthesized group and returns its inner tokens.
func (c *cursor) group() ([]Token, bool) {
	if c.peek().Kind != TokenLParen {
		return nil, false
	}
	start := c.pos + 1
	depth := 0
	for i := c.pos; i < len(c.tokens); i++ {
		switch c.tokens[i].Kind {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
			if depth == 0 {
				c.pos = i + 1
				return c.tokens[start:i], true
			}
		}
	}
	c.pos = len(c.tokens)
	return c.tokens[start:], true
}

// skipTo advances past the next top-level occurrence of word.
func (c *cursor) skipTo(word string) bool {
	depth := 0
	for i := c.pos; i < len(c.tokens); i++ {
		switch t := c.tokens[i]; t.Kind {
		case TokenLParen:
			depth++
		case TokenRParen:
			depth--
		case TokenWord:
			if depth == 0 && t.Text == word {
				c.pos = i + 1
				return true
			}
		}
	}
	return false
}

func (c *cursor) rest() []Token {
	return c.tokens[c.pos:]
}
