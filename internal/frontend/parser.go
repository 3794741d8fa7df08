package frontend

import (
	"io"
	"strconv"
	"strings"

	"github.com/alecthomas/participle/lexer"
	"github.com/pkg/errors"
	"golang.org/x/text/cases"

	"gupl/internal/diag"
	"gupl/internal/ir"
)

// ParseError locates a failure in the input. Err is the typed cause.
type ParseError struct {
	Pos diag.Pos
	Err error
}

func (e *ParseError) Error() string {
	return e.Pos.String() + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Cause lets github.com/pkg/errors.Cause reach the typed error.
func (e *ParseError) Cause() error { return e.Err }

type parser struct {
	file     string
	fold     cases.Caser
	lastLine int

	entity  *ir.Entity
	version string
}

// Parse reads one directive file and builds its entity. The first problem
// found is returned as a *ParseError.
func Parse(file string, r io.Reader) (*ir.Entity, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", file)
	}
	src := strings.TrimRight(string(data), " \t\r\n")
	p := &parser{
		file:     file,
		fold:     cases.Fold(),
		lastLine: strings.Count(src, "\n") + 1,
	}

	ast := &fileAST{}
	if err := fileParser.ParseString("\n"+src, ast); err != nil {
		return nil, p.syntaxError(err)
	}
	if err := p.build(ast); err != nil {
		return nil, err
	}
	return p.entity, nil
}

func (p *parser) at(line int) diag.Pos {
	return diag.Pos{File: p.file, Line: line}
}

func (p *parser) fail(line int, err error) error {
	return &ParseError{Pos: p.at(line), Err: err}
}

// syntaxError converts a grammar failure into a positioned
// MalformedDirectiveError.
func (p *parser) syntaxError(err error) error {
	line := p.lastLine
	var positioned interface{ Position() lexer.Position }
	if errors.As(err, &positioned) {
		line = tokenLine(positioned.Position())
	}
	reason := err.Error()
	var messaged interface{ Message() string }
	if errors.As(err, &messaged) {
		reason = messaged.Message()
	}
	return p.fail(line, &ir.MalformedDirectiveError{Reason: reason})
}

// tokenLine is the source line of a token that does not start with a
// newline. The lexer sees one extra line in front of the source.
func tokenLine(pos lexer.Position) int {
	if pos.Line <= 1 {
		return 1
	}
	return pos.Line - 1
}

// sourceLines returns the lines a newline-led token carries and the source
// line of the first one.
func sourceLines(pos lexer.Position, value string) (int, []string) {
	lines := strings.Split(strings.TrimPrefix(value, "\n"), "\n")
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}
	return pos.Line, lines
}

func (p *parser) build(ast *fileAST) error {
	for _, st := range ast.Statements {
		if st.Decl == nil {
			continue
		}
		if err := p.decl(st.Decl); err != nil {
			return err
		}
	}
	if p.entity == nil {
		return p.fail(p.lastLine, &ir.UndefinedEntityError{})
	}
	if p.version == "" {
		return p.fail(p.lastLine, &ir.UndefinedVersionError{})
	}
	p.entity.Version = p.version
	return nil
}

func (p *parser) decl(d *declAST) error {
	line := tokenLine(d.Pos)
	switch {
	case d.Version != "":
		p.version = d.Version
		return nil
	case d.Entity != "":
		if p.entity != nil {
			return p.fail(line, &ir.MalformedDirectiveError{
				Directive: "@ENTITY",
				Reason:    "entity " + p.entity.Name + " is already defined",
			})
		}
		p.entity = &ir.Entity{Name: d.Entity, Pos: p.at(line)}
		return nil
	case d.Stray != nil:
		// Directives nobody handles carry no meaning outside blocks.
		return nil
	}

	directive := p.directiveName(d)
	if p.entity == nil {
		return p.fail(line, &ir.UndefinedEntityError{Directive: directive})
	}
	switch {
	case d.Channel != nil:
		return p.channel(d.Channel, directive)
	case d.Stage != nil:
		return p.stage(d.Stage)
	}

	b := d.Block
	switch directive {
	case "@PORT":
		return p.ports(b)
	case "@LOCAL":
		return p.signals(b)
	}
	body, err := p.verbatim(b, directive)
	if err != nil {
		return err
	}
	switch directive {
	case "@RESET_STAGE":
		p.entity.ResetBody = body
		p.entity.HasReset = true
	case "@IDLE_STAGE":
		p.entity.IdleBody += body
	case "@ASYNC":
		p.entity.Async += body
	}
	return nil
}

func (p *parser) directiveName(d *declAST) string {
	switch {
	case d.Channel != nil && d.Channel.Send:
		return "@SEND"
	case d.Channel != nil:
		return "@RECV"
	case d.Stage != nil:
		return "@STAGE"
	default:
		return strings.ToUpper(p.fold.String(d.Block.Kind))
	}
}

// blockLines yields every verbatim line of a block with its source line,
// blank lines in front of @END included. It returns the last line seen.
func (p *parser) blockLines(header lexer.Position, lines []*textLineAST, end *endAST, fn func(line int, text string) error) (int, error) {
	last := tokenLine(header)
	for _, l := range lines {
		first, texts := sourceLines(l.Pos, l.Text)
		for i, text := range texts {
			last = first + i
			if err := fn(last, text); err != nil {
				return last, err
			}
		}
	}
	if end != nil {
		first, texts := sourceLines(end.Pos, end.Text)
		for i, text := range texts[:len(texts)-1] {
			last = first + i
			if err := fn(last, text); err != nil {
				return last, err
			}
		}
	}
	return last, nil
}

func (p *parser) closed(directive string, last int, end *endAST) error {
	if end == nil {
		return p.fail(last, &ir.MalformedDirectiveError{Directive: directive, Reason: "missing @END"})
	}
	return nil
}

func (p *parser) verbatim(b *blockAST, directive string) (string, error) {
	var sb strings.Builder
	last, _ := p.blockLines(b.Pos, b.Lines, b.End, func(_ int, text string) error {
		sb.WriteString(text)
		sb.WriteByte('\n')
		return nil
	})
	return sb.String(), p.closed(directive, last, b.End)
}

func (p *parser) channel(c *channelAST, directive string) error {
	line := tokenLine(c.Pos)
	id, err := strconv.Atoi(c.ID)
	if err != nil || id < 0 {
		return p.fail(line, &ir.MalformedDirectiveError{Directive: directive, Reason: "invalid id " + strconv.Quote(c.ID)})
	}
	width, err := strconv.Atoi(c.Width)
	if err != nil {
		return p.fail(line, &ir.MalformedDirectiveError{Directive: directive, Reason: "invalid width " + strconv.Quote(c.Width)})
	}
	kind := ir.Receive
	if c.Send {
		kind = ir.Send
	}
	ch, err := ir.NewChannel(kind, id, c.Name, width, p.at(line))
	if err != nil {
		return p.fail(line, err)
	}
	last, err := p.blockLines(c.Pos, c.Lines, c.End, func(line int, text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		var f fieldAST
		if err := fieldParser.ParseString(text, &f); err != nil {
			return p.fail(line, &ir.MalformedFieldError{Channel: ch.Name, Token: text})
		}
		token := f.Bits
		if f.Storage {
			token = "<" + token
		}
		if _, err := ch.AddField(f.Name, token, p.at(line)); err != nil {
			return p.fail(line, err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := p.closed(directive, last, c.End); err != nil {
		return err
	}
	if kind == ir.Send {
		p.entity.SendChannels = append(p.entity.SendChannels, ch)
	} else {
		p.entity.RecvChannels = append(p.entity.RecvChannels, ch)
	}
	return nil
}

func (p *parser) ports(b *blockAST) error {
	last, err := p.blockLines(b.Pos, b.Lines, b.End, func(line int, text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		var decl portAST
		if err := portParser.ParseString(text, &decl); err != nil {
			return p.fail(line, &ir.MalformedDirectiveError{Directive: "@PORT", Reason: "expected <name>, <width>, <dir>"})
		}
		width, err := declWidth("@PORT", decl.Width)
		if err != nil {
			return p.fail(line, err)
		}
		var dir ir.PortDirection
		switch p.fold.String(decl.Direction) {
		case "in":
			dir = ir.Input
		case "out":
			dir = ir.Output
		case "inout":
			dir = ir.InOut
		default:
			return p.fail(line, &ir.MalformedDirectiveError{Directive: "@PORT", Reason: "unknown direction " + strconv.Quote(decl.Direction)})
		}
		p.entity.Ports = append(p.entity.Ports, ir.Port{Name: decl.Name, Direction: dir, Width: width, Pos: p.at(line)})
		return nil
	})
	if err != nil {
		return err
	}
	return p.closed("@PORT", last, b.End)
}

func (p *parser) signals(b *blockAST) error {
	last, err := p.blockLines(b.Pos, b.Lines, b.End, func(line int, text string) error {
		text = strings.TrimSpace(text)
		if text == "" {
			return nil
		}
		var decl localAST
		if err := localParser.ParseString(text, &decl); err != nil {
			return p.fail(line, &ir.MalformedDirectiveError{Directive: "@LOCAL", Reason: "expected <name>, <width>[, <type>]"})
		}
		width, err := declWidth("@LOCAL", decl.Width)
		if err != nil {
			return p.fail(line, err)
		}
		p.entity.Signals = append(p.entity.Signals, ir.Signal{Name: decl.Name, Width: width, Type: decl.Type, Pos: p.at(line)})
		return nil
	})
	if err != nil {
		return err
	}
	return p.closed("@LOCAL", last, b.End)
}

// stage keeps every line that is not a stage directive as a raw action.
func (p *parser) stage(s *stageAST) error {
	stage := &ir.UserStage{Name: s.Name, Pos: p.at(tokenLine(s.Pos))}
	last := stage.Pos.Line
	raw := func(first int, texts []string) {
		for i, text := range texts {
			last = first + i
			stage.Actions = append(stage.Actions, ir.Raw{Text: text})
		}
	}
	for _, l := range s.Lines {
		if l.Action == nil {
			raw(sourceLines(l.Pos, l.Text))
			continue
		}
		// Blank lines ahead of a directive line travel in its lead.
		first, texts := sourceLines(l.Pos, l.Lead)
		raw(first, texts[:len(texts)-1])
		last = tokenLine(l.Action.Pos)
		stage.Actions = append(stage.Actions, p.stageAction(l.Action, p.at(last)))
	}
	if s.End != nil {
		first, texts := sourceLines(s.End.Pos, s.End.Text)
		raw(first, texts[:len(texts)-1])
	}
	if err := p.closed("@STAGE", last, s.End); err != nil {
		return err
	}
	p.entity.Stages = append(p.entity.Stages, stage)
	return nil
}

func (p *parser) stageAction(a *stageActionAST, pos diag.Pos) ir.Action {
	if a.Continue != "" {
		return ir.Continue{Target: a.Continue, Pos: pos}
	}
	next := a.Next
	if next == "" {
		next = "IDLE"
	}
	if a.Send {
		return ir.InitiateSend{Channel: a.Channel, Next: next, Pos: pos}
	}
	return ir.InitiateReceive{Channel: a.Channel, Next: next, Pos: pos}
}

func declWidth(directive, token string) (int, error) {
	width, err := strconv.Atoi(token)
	if err != nil || width < 0 {
		return 0, &ir.MalformedDirectiveError{Directive: directive, Reason: "invalid width " + strconv.Quote(token)}
	}
	return width, nil
}
