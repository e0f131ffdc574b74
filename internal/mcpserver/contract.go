package mcpserver

// NoteFormatContract describes how notes are organised and formatted, for
// LLM consumers creating or updating notes.
const NoteFormatContract = `# Inkwell Note Contract

Notes live in notebooks. A notebook is addressed by its display name, a note by
its notebook and its own display name. Names are free text up to 200
characters; the directory and file on disk are derived from them.

## Layout

- Notebook "Work Log" is stored in directory ` + "`" + `work-log/` + "`" + `.
- Note "Daily Standup" in it is stored in ` + "`" + `work-log/daily-standup.md` + "`" + `.
- Two names in the same scope may not map to the same slug.
- Names starting with "." are rejected.

## Content

Content is UTF-8 Markdown. Optional YAML frontmatter gives the title and tags:

` + "```" + `markdown
---
title: Daily standup 2026-01-20
tags:
  - meeting-notes
---

Body text in standard Markdown. Inline #tags are picked up as well.
` + "```" + `

Without a frontmatter title, the first heading is used.

## Sync

Every change is archived into the git repository of the note directory on the
next ` + "`" + `sync_notes` + "`" + ` call. A merge conflict aborts the sync before anything is
pushed; resolve it in the working tree and sync again.
`
