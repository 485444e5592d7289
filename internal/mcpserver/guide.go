package mcpserver

// PublishingGuide describes the Markdown the page renderer understands and
// what happens to a page once it is published.
const PublishingGuide = `# pinpress Publishing Guide

Every page is rendered into one self-contained HTML file (inline CSS, no
scripts) and pinned on the configured IPFS node. The page is addressed by
its CID, so identical bytes always get the same address.

## Title

The page title is chosen in this order:

1. the ` + "`title`" + ` argument,
2. the ` + "`title`" + ` field of YAML front matter,
3. the first level-one heading (` + "`# Heading`" + `),
4. "Untitled".

Front matter is removed from the rendered page but kept in the stored source.

` + "```" + `markdown
---
title: Release notes 1.4
---

Body text in GitHub-flavoured Markdown.
` + "```" + `

## Supported Markdown

- Headings, paragraphs, emphasis, ` + "`inline code`" + ` and fenced code blocks.
- Tables, ~~strikethrough~~, autolinks and task lists (` + "`- [x] done`" + `).
- Single line breaks are kept as ` + "`<br>`" + `.
- Raw HTML is passed through unchanged.

## Editing

Published content is immutable. ` + "`republish`" + ` uploads a new page and
points the record at the new CID; the old CID keeps working for anyone who
has it. Pass the ` + "`etag`" + ` from ` + "`get_publication`" + ` to avoid overwriting
a concurrent edit.

## Deleting

` + "`delete_publication`" + ` only removes the history entry. Content already
pinned stays reachable through the gateway.
`
