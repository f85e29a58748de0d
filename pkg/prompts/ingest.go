package prompts

import (
	"fmt"
	"strings"
)

// BuildCreateStatementPrompt asks for DDL that fits sample. existingTables are
// names the new table must not reuse.
func BuildCreateStatementPrompt(sample, header string, existingTables []string, extraDesc string) string {
	var prompt strings.Builder

	prompt.WriteString("# New Table\n\n")
	prompt.WriteString("Write a CREATE TABLE statement for the data below.\n\n")

	if header != "" {
		prompt.WriteString("## Header\n")
		prompt.WriteString(header)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("## Data Sample\n")
	prompt.WriteString(sample)
	prompt.WriteString("\n\n")

	if len(existingTables) > 0 {
		prompt.WriteString("## Names Already In Use\n")
		prompt.WriteString("The table name must not be any of: ")
		prompt.WriteString(strings.Join(existingTables, ", "))
		prompt.WriteString("\n\n")
	}

	if extraDesc != "" {
		prompt.WriteString("## Notes From The User\n")
		prompt.WriteString(extraDesc)
		prompt.WriteString("\n\n")
	}

	prompt.WriteString("Reply with the statement only.")
	return prompt.String()
}

// BuildTableDescriptionPrompt asks for a plain-text description of a new table.
func BuildTableDescriptionPrompt(createStatement, sample, extraDesc string) string {
	var prompt strings.Builder

	prompt.WriteString("## Table Definition\n")
	prompt.WriteString(createStatement)
	prompt.WriteString("\n\n## Data Sample\n")
	prompt.WriteString(sample)
	prompt.WriteString("\n")

	if extraDesc != "" {
		prompt.WriteString(fmt.Sprintf("\n## Notes From The User\n%s\n", extraDesc))
	}
	return prompt.String()
}

// BuildTableSelectionPrompt asks the model to pick a destination from the
// rendered catalog.
func BuildTableSelectionPrompt(sample, extraDesc, renderedCatalog string) string {
	var prompt strings.Builder

	prompt.WriteString("## Existing Tables\n")
	prompt.WriteString(renderedCatalog)
	prompt.WriteString("\n\n## Data Sample\n")
	prompt.WriteString(sample)
	prompt.WriteString("\n")

	if extraDesc != "" {
		prompt.WriteString(fmt.Sprintf("\n## Notes From The User\n%s\n", extraDesc))
	}

	prompt.WriteString("\nWhich table should this data be appended to? Reply with the table name only.")
	return prompt.String()
}
