package mcpserver

// EntryFormatContract describes the markdown entry layouts monologue accepts,
// for LLM consumers drafting or editing entries.
const EntryFormatContract = `# Monologue Entry Format Contract

An entry is one diary/newsletter post. Two layouts are accepted.

## Plain layout (authoring)

` + "```" + `markdown
# 2025-02-07: Weekly notes

Anything between the heading and the first second-level heading is ignored
(export metadata such as "Created:" lines lives here).

## First section

Body text in standard Markdown.
` + "```" + `

1. The first line starting with ` + "`# `" + ` is the heading. It MUST contain a
   ` + "`YYYY-MM-DD`" + ` date followed by a colon and the title.
2. The body starts at the first line beginning with ` + "`## `" + `. An entry
   without one has an empty body.
3. The title is required for publishing.

## Archive layout (written by monologue)

` + "```" + `markdown
Notion-Id: https://notion.so/<workspace>/<32-hex page id>
Last-Modified: 2025-02-07T12:00:00Z
Subject: 2025-02-07: Weekly notes
Buttondown-Id: <email id>
Slack-Id: <channel id>:<message ts>

## First section

Body text.
` + "```" + `

1. A block of ` + "`Key: value`" + ` lines, then one blank line, then the body.
2. ` + "`Subject`" + ` is required and carries the date and title.
3. Remote ids are optional. Do not invent them: monologue fills them in after
   publishing. ` + "`Notion-Id`" + ` is the entry's identity in the archive.
4. Archive files are named ` + "`YYYY-MM-DD.md`" + `, one per date.

## Body rules

- Headings: ` + "`##`" + ` and ` + "`###`" + `. A ` + "`#`" + ` inside the body is dropped on the content page.
- Lists may nest. Fenced code blocks keep their language tag.
- A paragraph holding only an image becomes an image block.
- Links to content pages must be public ` + "`https://notion.so/<workspace>/<id>`" + `
  URLs. Use the check_links tool to find internal links before publishing.
- UTF-8, trailing newline.
`
