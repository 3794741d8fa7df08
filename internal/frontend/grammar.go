package frontend

import (
	"github.com/alecthomas/participle"
	"github.com/alecthomas/participle/lexer"
)

// The source is lexed with a newline in front of every line, so a token
// that starts with "\n" is known to start a line. Line is a verbatim line
// whose first character is not '@', End closes a block, and EOL leads a
// line holding directive keywords. Blank lines are folded into the token
// that follows them.
const directiveLexerRegex = `(?P<Line>(?:\n[ \t\r]*)*\n[ \t]*[^@\s][^\n]*)|` +
	`(?P<End>(?:\n[ \t\r]*)*\n[ \t]*(?i:@end)\b[^\n]*)|` +
	`(?P<EOL>(?:\n[ \t\r]*)+)|` +
	`([ \t\r]+)|` +
	`(?P<Version>(?i:@gupl_version)\b)|` +
	`(?P<Entity>(?i:@entity)\b)|` +
	`(?P<Recv>(?i:@recv)\b)|` +
	`(?P<Send>(?i:@send)\b)|` +
	`(?P<Block>(?i:@port|@local|@reset_stage|@idle_stage|@async)\b)|` +
	`(?P<Stage>(?i:@stage)\b)|` +
	`(?P<To>(?i:@to)\b)|` +
	`(?P<Other>@\w*)|` +
	`(?P<Number>\d+(?:\.\w+)+)|` +
	`(?P<Int>-?\d+)|` +
	`(?P<Ident>[A-Za-z_]\w*)|` +
	`(?P<Raw>\S)`

// itemLexerRegex splits the comma separated declarations inside @RECV,
// @SEND, @PORT and @LOCAL blocks.
const itemLexerRegex = `([ \t\r]+)|` +
	`(?P<Int>\d+)|` +
	`(?P<Ident>[A-Za-z_]\w*)|` +
	`(?P<Punct>[,<])|` +
	`(?P<Raw>\S)`

type fileAST struct {
	Statements []*statementAST `parser:"{ @@ }"`
}

type statementAST struct {
	Pos lexer.Position

	Text  string   `parser:"  @Line"`
	Stray string   `parser:"| @End"`
	Lead  bool     `parser:"| ( @EOL"`
	Decl  *declAST `parser:"    [ @@ ] )"`
}

type declAST struct {
	Pos lexer.Position

	Version string      `parser:"  Version @( Number | Int | Ident )"`
	Entity  string      `parser:"| Entity @Ident"`
	Channel *channelAST `parser:"| @@"`
	Block   *blockAST   `parser:"| @@"`
	Stage   *stageAST   `parser:"| @@"`
	Stray   *strayAST   `parser:"| @@"`
}

type channelAST struct {
	Pos lexer.Position

	Send  bool           `parser:"( @Send | Recv )"`
	ID    string         `parser:"@( Int | Number | Ident )"`
	Name  string         `parser:"@Ident"`
	Width string         `parser:"@( Int | Number | Ident )"`
	Lines []*textLineAST `parser:"{ @@ }"`
	End   *endAST        `parser:"[ @@ ]"`
}

type blockAST struct {
	Pos lexer.Position

	Kind  string         `parser:"@Block"`
	Lines []*textLineAST `parser:"{ @@ }"`
	End   *endAST        `parser:"[ @@ ]"`
}

type stageAST struct {
	Pos lexer.Position

	Name  string          `parser:"Stage @Ident"`
	Lines []*stageLineAST `parser:"{ @@ }"`
	End   *endAST         `parser:"[ @@ ]"`
}

type stageLineAST struct {
	Pos lexer.Position

	Text   string          `parser:"  @Line"`
	Lead   string          `parser:"| ( @EOL"`
	Action *stageActionAST `parser:"    @@ )"`
}

type stageActionAST struct {
	Pos lexer.Position

	Continue string `parser:"  To @Ident"`
	Send     bool   `parser:"| ( ( @Send | Recv )"`
	Channel  string `parser:"    @Ident"`
	Next     string `parser:"    [ To @Ident ] )"`
}

// strayAST is a top-level directive nobody handles. It is skipped.
type strayAST struct {
	Name string   `parser:"@( Other | To )"`
	Args []string `parser:"{ @( Int | Number | Ident | Raw | Other ) }"`
}

type textLineAST struct {
	Pos lexer.Position

	Text string `parser:"@Line"`
}

type endAST struct {
	Pos lexer.Position

	Text string `parser:"@End"`
}

type fieldAST struct {
	Name    string `parser:"@Ident \",\""`
	Storage bool   `parser:"[ @\"<\" ]"`
	Bits    string `parser:"@Int"`
}

type portAST struct {
	Name      string `parser:"@Ident \",\""`
	Width     string `parser:"@Int \",\""`
	Direction string `parser:"@Ident"`
}

type localAST struct {
	Name  string `parser:"@Ident \",\""`
	Width string `parser:"@Int"`
	Type  string `parser:"[ \",\" @Ident ]"`
}

var (
	directiveLexer = lexer.Must(lexer.Regexp(directiveLexerRegex))
	itemLexer      = lexer.Must(lexer.Regexp(itemLexerRegex))

	fileParser = participle.MustBuild(
		&fileAST{},
		participle.Lexer(directiveLexer),
		participle.UseLookahead(3))
	fieldParser = participle.MustBuild(&fieldAST{}, participle.Lexer(itemLexer), participle.UseLookahead(2))
	portParser  = participle.MustBuild(&portAST{}, participle.Lexer(itemLexer), participle.UseLookahead(2))
	localParser = participle.MustBuild(&localAST{}, participle.Lexer(itemLexer), participle.UseLookahead(2))
)
