package notion

import (
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

const (
	// MaxBatch is the most children the API accepts in one request.
	MaxBatch = 100
	// MaxRichText is the most characters one rich text object may carry.
	MaxRichText = 2000
)

// Annotations are the inline styles of a rich text run.
type Annotations struct {
	Bold          bool `json:"bold,omitempty"`
	Italic        bool `json:"italic,omitempty"`
	Strikethrough bool `json:"strikethrough,omitempty"`
	Code          bool `json:"code,omitempty"`
}

// Link is a rich text hyperlink.
type Link struct {
	URL string `json:"url"`
}

// TextContent is the payload of a text rich text object.
type TextContent struct {
	Content string `json:"content"`
	Link    *Link  `json:"link,omitempty"`
}

// RichText is one styled run of text.
type RichText struct {
	Type        string       `json:"type"`
	Text        TextContent  `json:"text"`
	Annotations *Annotations `json:"annotations,omitempty"`
}

// TextBlock is the body shared by paragraph, heading, list item and quote blocks.
type TextBlock struct {
	RichText []RichText `json:"rich_text"`
	Children []Block    `json:"children,omitempty"`
}

// CodeBlock is the body of a code block.
type CodeBlock struct {
	RichText []RichText `json:"rich_text"`
	Language string     `json:"language"`
}

// ExternalFile references an image by URL.
type ExternalFile struct {
	URL string `json:"url"`
}

// ImageBlock is the body of an external image block.
type ImageBlock struct {
	Type     string       `json:"type"`
	External ExternalFile `json:"external"`
	Caption  []RichText   `json:"caption,omitempty"`
}

// Block is a Notion block object. Exactly one body field is set, matching Type.
type Block struct {
	Object           string      `json:"object"`
	Type             string      `json:"type"`
	Paragraph        *TextBlock  `json:"paragraph,omitempty"`
	Heading2         *TextBlock  `json:"heading_2,omitempty"`
	Heading3         *TextBlock  `json:"heading_3,omitempty"`
	BulletedListItem *TextBlock  `json:"bulleted_list_item,omitempty"`
	NumberedListItem *TextBlock  `json:"numbered_list_item,omitempty"`
	Quote            *TextBlock  `json:"quote,omitempty"`
	Code             *CodeBlock  `json:"code,omitempty"`
	Divider          *struct{}   `json:"divider,omitempty"`
	Image            *ImageBlock `json:"image,omitempty"`
}

// Text returns the concatenated plain text of the block's rich text.
func (b Block) Text() string {
	var rt []RichText
	switch {
	case b.Paragraph != nil:
		rt = b.Paragraph.RichText
	case b.Heading2 != nil:
		rt = b.Heading2.RichText
	case b.Heading3 != nil:
		rt = b.Heading3.RichText
	case b.BulletedListItem != nil:
		rt = b.BulletedListItem.RichText
	case b.NumberedListItem != nil:
		rt = b.NumberedListItem.RichText
	case b.Quote != nil:
		rt = b.Quote.RichText
	case b.Code != nil:
		rt = b.Code.RichText
	}
	var sb strings.Builder
	for _, r := range rt {
		sb.WriteString(r.Text.Content)
	}
	return sb.String()
}

var languageAliases = map[string]string{
	"":       "plain text",
	"text":   "plain text",
	"txt":    "plain text",
	"sh":     "shell",
	"zsh":    "shell",
	"py":     "python",
	"js":     "javascript",
	"ts":     "typescript",
	"yml":    "yaml",
	"golang": "go",
	"md":     "markdown",
}

var md = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

// Blocks converts a markdown body into Notion blocks. Level 1 headings are
// dropped since the page title carries the subject.
func Blocks(body string) []Block {
	source := []byte(body)
	doc := md.Parser().Parse(text.NewReader(source))
	c := converter{source: source}
	return c.children(doc)
}

// Batches splits blocks into slices of at most MaxBatch.
func Batches(blocks []Block) [][]Block {
	var out [][]Block
	for len(blocks) > MaxBatch {
		out = append(out, blocks[:MaxBatch])
		blocks = blocks[MaxBatch:]
	}
	if len(blocks) > 0 {
		out = append(out, blocks)
	}
	return out
}

type converter struct {
	source []byte
}

func (c converter) children(parent ast.Node) []Block {
	var out []Block
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		out = append(out, c.block(n)...)
	}
	return out
}

func (c converter) block(n ast.Node) []Block {
	switch n := n.(type) {
	case *ast.Heading:
		rt := c.inline(n)
		switch {
		case n.Level == 1:
			return nil
		case n.Level == 2:
			return []Block{{Object: "block", Type: "heading_2", Heading2: &TextBlock{RichText: rt}}}
		default:
			return []Block{{Object: "block", Type: "heading_3", Heading3: &TextBlock{RichText: rt}}}
		}
	case *ast.Paragraph, *ast.TextBlock:
		if img, ok := c.soleImage(n); ok {
			return []Block{c.image(img)}
		}
		rt := c.inline(n)
		if len(rt) == 0 {
			return nil
		}
		return []Block{{Object: "block", Type: "paragraph", Paragraph: &TextBlock{RichText: rt}}}
	case *ast.List:
		var out []Block
		for item := n.FirstChild(); item != nil; item = item.NextSibling() {
			out = append(out, c.listItem(item, n.IsOrdered()))
		}
		return out
	case *ast.FencedCodeBlock:
		lang := strings.ToLower(strings.TrimSpace(string(n.Language(c.source))))
		return []Block{c.code(n, lang)}
	case *ast.CodeBlock:
		return []Block{c.code(n, "")}
	case *ast.Blockquote:
		var rt []RichText
		for p := n.FirstChild(); p != nil; p = p.NextSibling() {
			if len(rt) > 0 {
				rt = append(rt, plainText("\n")...)
			}
			switch p.(type) {
			case *ast.Paragraph, *ast.TextBlock:
				rt = append(rt, c.inline(p)...)
			default:
				rt = append(rt, plainText(c.lines(p))...)
			}
		}
		return []Block{{Object: "block", Type: "quote", Quote: &TextBlock{RichText: splitLong(rt)}}}
	case *ast.ThematicBreak:
		return []Block{{Object: "block", Type: "divider", Divider: &struct{}{}}}
	case *ast.HTMLBlock:
		raw := strings.TrimSpace(c.lines(n))
		if raw == "" {
			return nil
		}
		return []Block{{Object: "block", Type: "paragraph", Paragraph: &TextBlock{RichText: plainText(raw)}}}
	default:
		return c.children(n)
	}
}

func (c converter) listItem(item ast.Node, ordered bool) Block {
	tb := &TextBlock{}
	for n := item.FirstChild(); n != nil; n = n.NextSibling() {
		switch n.(type) {
		case *ast.TextBlock, *ast.Paragraph:
			if tb.RichText == nil {
				tb.RichText = c.inline(n)
				continue
			}
		}
		tb.Children = append(tb.Children, c.block(n)...)
	}
	if tb.RichText == nil {
		tb.RichText = []RichText{}
	}
	if ordered {
		return Block{Object: "block", Type: "numbered_list_item", NumberedListItem: tb}
	}
	return Block{Object: "block", Type: "bulleted_list_item", BulletedListItem: tb}
}

func (c converter) code(n ast.Node, lang string) Block {
	if alias, ok := languageAliases[lang]; ok {
		lang = alias
	}
	content := strings.TrimRight(c.lines(n), "\n")
	return Block{Object: "block", Type: "code", Code: &CodeBlock{
		RichText: splitLong(plainText(content)),
		Language: lang,
	}}
}

func (c converter) image(img *ast.Image) Block {
	block := &ImageBlock{Type: "external", External: ExternalFile{URL: string(img.Destination)}}
	if alt := c.plain(img); alt != "" {
		block.Caption = plainText(alt)
	}
	return Block{Object: "block", Type: "image", Image: block}
}

func (c converter) lines(n ast.Node) string {
	var sb strings.Builder
	segs := n.Lines()
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		sb.Write(seg.Value(c.source))
	}
	return sb.String()
}

// plain returns the unstyled text of n's inline descendants.
func (c converter) plain(n ast.Node) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch t := node.(type) {
		case *ast.Text:
			sb.Write(t.Segment.Value(c.source))
			if t.SoftLineBreak() {
				sb.WriteByte(' ')
			}
		case *ast.String:
			sb.Write(t.Value)
		}
		return ast.WalkContinue, nil
	})
	return sb.String()
}

func (c converter) inline(n ast.Node) []RichText {
	var out []RichText
	c.walkInline(n, Annotations{}, "", &out)
	return splitLong(mergeRuns(out))
}

func (c converter) walkInline(parent ast.Node, ann Annotations, href string, out *[]RichText) {
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		switch t := n.(type) {
		case *ast.Text:
			s := string(t.Segment.Value(c.source))
			switch {
			case t.HardLineBreak():
				s += "\n"
			case t.SoftLineBreak():
				s += " "
			}
			*out = append(*out, run(s, ann, href))
		case *ast.String:
			*out = append(*out, run(string(t.Value), ann, href))
		case *ast.CodeSpan:
			a := ann
			a.Code = true
			*out = append(*out, run(c.plain(t), a, href))
		case *ast.Emphasis:
			a := ann
			if t.Level >= 2 {
				a.Bold = true
			} else {
				a.Italic = true
			}
			c.walkInline(t, a, href, out)
		case *east.Strikethrough:
			a := ann
			a.Strikethrough = true
			c.walkInline(t, a, href, out)
		case *ast.Link:
			c.walkInline(t, ann, string(t.Destination), out)
		case *ast.AutoLink:
			*out = append(*out, run(string(t.Label(c.source)), ann, string(t.URL(c.source))))
		case *ast.Image:
			label := c.plain(t)
			if label == "" {
				label = string(t.Destination)
			}
			*out = append(*out, run(label, ann, string(t.Destination)))
		case *ast.RawHTML:
			var sb strings.Builder
			for i := 0; i < t.Segments.Len(); i++ {
				seg := t.Segments.At(i)
				sb.Write(seg.Value(c.source))
			}
			*out = append(*out, run(sb.String(), ann, href))
		default:
			c.walkInline(t, ann, href, out)
		}
	}
}

func run(s string, ann Annotations, href string) RichText {
	r := RichText{Type: "text", Text: TextContent{Content: s}}
	if ann != (Annotations{}) {
		a := ann
		r.Annotations = &a
	}
	if href != "" {
		r.Text.Link = &Link{URL: href}
	}
	return r
}

func plainText(s string) []RichText {
	if s == "" {
		return []RichText{}
	}
	return []RichText{{Type: "text", Text: TextContent{Content: s}}}
}

func sameStyle(a, b RichText) bool {
	if (a.Annotations == nil) != (b.Annotations == nil) {
		return false
	}
	if a.Annotations != nil && *a.Annotations != *b.Annotations {
		return false
	}
	if (a.Text.Link == nil) != (b.Text.Link == nil) {
		return false
	}
	return a.Text.Link == nil || a.Text.Link.URL == b.Text.Link.URL
}

// mergeRuns joins adjacent runs with identical styling and drops empty ones.
func mergeRuns(in []RichText) []RichText {
	out := make([]RichText, 0, len(in))
	for _, r := range in {
		if r.Text.Content == "" {
			continue
		}
		if n := len(out); n > 0 && sameStyle(out[n-1], r) {
			out[n-1].Text.Content += r.Text.Content
			continue
		}
		out = append(out, r)
	}
	if len(out) > 0 {
		last := &out[len(out)-1]
		last.Text.Content = strings.TrimRight(last.Text.Content, " ")
	}
	return out
}

// splitLong breaks runs longer than MaxRichText characters.
func splitLong(in []RichText) []RichText {
	out := make([]RichText, 0, len(in))
	for _, r := range in {
		content := r.Text.Content
		for utf8.RuneCountInString(content) > MaxRichText {
			cut := 0
			for i := 0; i < MaxRichText; i++ {
				_, size := utf8.DecodeRuneInString(content[cut:])
				cut += size
			}
			part := r
			part.Text.Content = content[:cut]
			out = append(out, part)
			content = content[cut:]
		}
		r.Text.Content = content
		out = append(out, r)
	}
	return out
}

// soleImage reports whether a paragraph holds nothing but one image.
func (c converter) soleImage(n ast.Node) (*ast.Image, bool) {
	var img *ast.Image
	for child := n.FirstChild(); child != nil; child = child.NextSibling() {
		switch t := child.(type) {
		case *ast.Image:
			if img != nil {
				return nil, false
			}
			img = t
		case *ast.Text:
			if strings.TrimSpace(string(t.Segment.Value(c.source))) != "" {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return img, img != nil
}
