package ir

import (
	"strconv"
	"strings"

	"gupl/internal/diag"
)

// NewChannel creates an empty channel. Fields are packed into stages as they
// are added with AddField.
func NewChannel(kind ChannelKind, id int, name string, width int, pos diag.Pos) (*Channel, error) {
	if name == "" {
		return nil, &MalformedDirectiveError{Directive: "@" + strings.ToUpper(kind.String()), Reason: "missing channel name"}
	}
	if width <= 0 {
		return nil, &MalformedDirectiveError{
			Directive: "@" + strings.ToUpper(kind.String()),
			Reason:    "channel " + name + " needs a positive word width, got " + strconv.Itoa(width),
		}
	}
	return &Channel{Kind: kind, ID: id, Name: name, Width: width, Pos: pos}, nil
}

// ParseFieldWidth parses a field width token: "<bits>" for a scalar or
// "<<totalBits>" for a storage field.
func ParseFieldWidth(token string) (bits int, storage bool, ok bool) {
	tok := strings.TrimSpace(token)
	if strings.HasPrefix(tok, "<") {
		storage = true
		tok = strings.TrimSpace(tok[1:])
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n <= 0 {
		return 0, false, false
	}
	return n, storage, true
}

// AddField declares the next field of the channel and places it into a
// stage. A bit cursor advances by each field's width (a storage field's
// declared total size included); a new stage opens whenever the cursor has
// moved past the word the last stage occupies.
func (c *Channel) AddField(name, widthToken string, pos diag.Pos) (*Field, error) {
	name = strings.TrimSpace(name)
	bits, storage, ok := ParseFieldWidth(widthToken)
	if name == "" || !ok {
		return nil, &MalformedFieldError{Channel: c.Name, Field: name, Token: widthToken}
	}
	f := &Field{
		Name:   name,
		Kind:   Scalar,
		Bits:   bits,
		Offset: c.cursor,
		Owner:  c,
		Pos:    pos,
	}
	if storage {
		f.Kind = Storage
	}

	if c.cursor/c.Width > len(c.Stages)-1 {
		c.Stages = append(c.Stages, &Stage{Index: len(c.Stages), Fields: []*Field{f}})
	} else {
		last := c.Stages[len(c.Stages)-1]
		last.Fields = append(last.Fields, f)
	}
	c.cursor += f.Bits
	c.Fields = append(c.Fields, f)

	if f.IsStorage() {
		c.Storage = f
		c.StorageDecls = append(c.StorageDecls, f)
	}
	return f, nil
}

// TotalBits is the sum of all declared field widths.
func (c *Channel) TotalBits() int {
	return c.cursor
}
