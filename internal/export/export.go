// Package export produces the point-in-time backup dump of the core
// register tables.
package export

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// Tables lists the dumped tables in dependency order.
var Tables = []string{"entity_categories", "field_definitions", "entities", "field_values"}

// TableDump is one table's snapshot.
type TableDump struct {
	Name    string
	Headers []string
	Rows    [][]string
}

// Collect reads a snapshot of every core table.
func Collect(db *sql.DB) ([]TableDump, error) {
	var dumps []TableDump
	for _, t := range Tables {
		d, err := dumpTable(db, t)
		if err != nil {
			return nil, err
		}
		dumps = append(dumps, *d)
	}
	return dumps, nil
}

func dumpTable(db *sql.DB, table string) (*TableDump, error) {
	rows, err := db.Query("SELECT * FROM " + table)
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", table, err)
	}

	d := &TableDump{Name: table, Headers: cols}
	for rows.Next() {
		raw := make([]sql.NullString, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dump %s: %w", table, err)
		}
		row := make([]string, len(cols))
		for i, v := range raw {
			if v.Valid {
				row[i] = v.String
			}
		}
		d.Rows = append(d.Rows, row)
	}
	return d, nil
}

// WriteExcel writes all dumps into one workbook, one sheet per table.
func WriteExcel(w io.Writer, dumps []TableDump) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("excel style: %w", err)
	}

	for _, d := range dumps {
		if _, err := f.NewSheet(d.Name); err != nil {
			return fmt.Errorf("excel sheet %s: %w", d.Name, err)
		}
		for i, h := range d.Headers {
			cell, _ := excelize.CoordinatesToCellName(i+1, 1)
			f.SetCellValue(d.Name, cell, h)
			f.SetCellStyle(d.Name, cell, cell, headerStyle)
		}
		for rowIdx, row := range d.Rows {
			for colIdx, value := range row {
				cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
				f.SetCellValue(d.Name, cell, value)
			}
		}
	}
	f.DeleteSheet("Sheet1")

	if err := f.Write(w); err != nil {
		return fmt.Errorf("excel write: %w", err)
	}
	return nil
}

// WriteCSV writes one table's dump as CSV.
func WriteCSV(w io.Writer, d TableDump) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(d.Headers); err != nil {
		return fmt.Errorf("csv write: %w", err)
	}
	for _, row := range d.Rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("csv write: %w", err)
		}
	}
	return nil
}
