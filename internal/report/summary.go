package report

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(
	goldmark.WithExtensions(extension.Table),
)

const summaryPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
</head>
<body>
%s</body>
</html>
`

// renderSummary turns the run metadata into a standalone html page.
func renderSummary(metadata *Metadata) ([]byte, error) {
	var md strings.Builder

	fmt.Fprintf(&md, "# Task %s\n\n", metadata.TaskID)
	fmt.Fprintf(&md, "- **Device**: `%s`\n", metadata.DeviceID)
	fmt.Fprintf(&md, "- **Suite**: `%s`\n", metadata.Suite.Name)
	fmt.Fprintf(&md, "- **Status**: %s\n", metadata.Status)

	if metadata.Reason != "" {
		fmt.Fprintf(&md, "- **Reason**: %s\n", escapeMarkdown(metadata.Reason))
	}

	fmt.Fprintf(&md, "- **Started**: %s\n", metadata.StartedAt.Format(time.RFC3339))
	fmt.Fprintf(&md, "- **Duration**: %s\n\n", metadata.Duration)

	md.WriteString("## Steps\n\n")
	md.WriteString("| Step | Status | Return code | Duration | Error |\n")
	md.WriteString("|------|--------|-------------|----------|-------|\n")

	for _, step := range metadata.Steps {
		returnCode := "-"
		if step.ReturnCode != nil {
			returnCode = fmt.Sprintf("%d", *step.ReturnCode)
		}

		duration := (time.Duration(step.DurationMS) * time.Millisecond).String()

		fmt.Fprintf(&md, "| %s | %s | %s | %s | %s |\n", step.Name, step.Status, returnCode, duration, escapeMarkdown(step.Error))
	}

	if len(metadata.Sizes) > 0 {
		md.WriteString("\n## Artifacts\n\n")
		md.WriteString("| Artifact | Files | Size |\n")
		md.WriteString("|----------|-------|------|\n")

		for _, name := range []string{RawResultsDir, CompiledDir, ArchiveFile} {
			size, exists := metadata.Sizes[name]
			if !exists {
				continue
			}

			fmt.Fprintf(&md, "| %s | %d | %s |\n", name, size.Files, size.Human)
		}
	}

	var body bytes.Buffer
	if err := markdown.Convert([]byte(md.String()), &body); err != nil {
		return nil, errors.WithStack(err)
	}

	page := fmt.Sprintf(summaryPage, html.EscapeString("Task "+metadata.TaskID), body.String())

	return []byte(page), nil
}

func writeSummary(path string, metadata *Metadata) error {
	data, err := renderSummary(metadata)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := os.WriteFile(path, data, 0640); err != nil {
		return errors.Wrapf(err, "could not write summary '%s'", path)
	}

	return nil
}

var markdownEscaper = strings.NewReplacer(
	"|", `\|`,
	"\n", " ",
	"\r", " ",
	"<", "&lt;",
	">", "&gt;",
)

func escapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}
