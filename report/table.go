package report

import (
	"fmt"
	"io"
	"text/tabwriter"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// WriteTable renders the rows as an aligned text table.
func WriteTable(out io.Writer, person string, rows []Row) error {
	title := cases.Title(language.English).String(person)
	if _, err := fmt.Fprintf(out, "Timesheet for %s\n\n", title); err != nil {
		return err
	}

	writer := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "DATE\tSOURCES\tNARRATIVE")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s (%s)\t%s\t%s\n",
			row.Date.Format(dateLayout),
			row.Date.Format("Mon"),
			row.Sources,
			row.Narrative,
		)
	}
	return writer.Flush()
}
