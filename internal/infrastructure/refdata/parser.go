// Package refdata loads the externally maintained lot reference table from a
// snapshot source (local file or S3-compatible object storage) and parses it
// into the data the canonicalizer and ledger build their snapshots from.
package refdata

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	lotapp "github.com/reconcile/backend/internal/application/lot"
	"github.com/reconcile/backend/internal/domain/lot"
	csvimport "github.com/reconcile/backend/internal/infrastructure/import"
)

// Section markers inside a snapshot file. Matching is case-insensitive and
// ignores surrounding whitespace.
const (
	markerCorrections = "[corrections]"
	markerReferences  = "[references]"
)

// Column names each section must carry
var (
	correctionHeaders = []string{"raw", "canonical"}
	referenceHeaders  = []string{"lot", "manufacturing_year", "produced_quantity"}
)

// snapshotSection is one marker-delimited region of the file: a header row
// followed by data rows. startLine is the 1-based file line of the header
// row, so row errors can name the line in the original file rather than an
// offset inside the section.
type snapshotSection struct {
	startLine int
	body      bytes.Buffer
}

// ParseSnapshot parses a two-section reference snapshot:
//
//	[corrections]
//	raw,canonical
//	slq 001,SLQ-001
//
//	[references]
//	lot,sku,manufacturing_year,produced_quantity
//	SLQ-001,VAC-10,2021,1200
//
// The corrections section is optional. A file without any section marker is
// read as a bare references table. Unlike feed ingestion, parsing is
// all-or-nothing: the snapshot replaces the whole reference table atomically,
// so a single bad row rejects the file instead of half-loading it.
func ParseSnapshot(data []byte) (*lotapp.SnapshotData, error) {
	sections, err := splitSections(data)
	if err != nil {
		return nil, err
	}

	out := &lotapp.SnapshotData{Corrections: make(map[string]string)}

	if sec, ok := sections[markerCorrections]; ok {
		if err := parseCorrections(sec, out); err != nil {
			return nil, err
		}
	}

	sec, ok := sections[markerReferences]
	if !ok {
		return nil, fmt.Errorf("snapshot has no %s section", markerReferences)
	}
	if err := parseReferences(sec, out); err != nil {
		return nil, err
	}
	return out, nil
}

// splitSections cuts the file into marker-delimited sections. Content before
// the first marker is treated as the references section, which lets a plain
// reference CSV load without markers.
func splitSections(data []byte) (map[string]*snapshotSection, error) {
	sections := make(map[string]*snapshotSection)
	current := (*snapshotSection)(nil)
	line := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line++
		text := scanner.Text()
		marker := strings.ToLower(strings.TrimSpace(text))
		if marker == markerCorrections || marker == markerReferences {
			if _, dup := sections[marker]; dup {
				return nil, fmt.Errorf("line %d: duplicate %s section", line, marker)
			}
			current = &snapshotSection{startLine: line + 1}
			sections[marker] = current
			continue
		}
		if current == nil {
			if strings.TrimSpace(text) == "" {
				continue
			}
			current = &snapshotSection{startLine: line}
			sections[markerReferences] = current
		}
		current.body.WriteString(text)
		current.body.WriteByte('\n')
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if len(sections) == 0 {
		return nil, csvimport.ErrEmptyFile
	}
	return sections, nil
}

// openSection builds a CSV parser over a section body and checks its header
func openSection(name string, sec *snapshotSection, required []string) (*csvimport.Parser, error) {
	parser, err := csvimport.ParseBytes(sec.body.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%s section: %w", name, err)
	}
	if err := parser.ParseHeader(); err != nil {
		return nil, fmt.Errorf("%s section: %w", name, err)
	}
	if missing := parser.MissingHeaders(required); len(missing) > 0 {
		return nil, fmt.Errorf("%s section is missing required columns: %s",
			name, strings.Join(missing, ", "))
	}
	return parser, nil
}

func parseCorrections(sec *snapshotSection, out *lotapp.SnapshotData) error {
	parser, err := openSection("corrections", sec, correctionHeaders)
	if err != nil {
		return err
	}
	rows, malformed, err := parser.ReadAll(0)
	if err != nil {
		return fmt.Errorf("corrections section: %w", err)
	}
	if len(malformed) > 0 {
		return sectionRowError("corrections", sec, malformed[0].Row, malformed[0].Message)
	}
	for _, row := range rows {
		raw := lot.NormalizeLabel(row.Get("raw"))
		canonical := lot.NormalizeLabel(row.Get("canonical"))
		if raw == "" || canonical == "" {
			return sectionRowError("corrections", sec, row.Line, "raw and canonical labels are required")
		}
		if raw == canonical {
			continue
		}
		out.Corrections[raw] = canonical
	}
	return nil
}

func parseReferences(sec *snapshotSection, out *lotapp.SnapshotData) error {
	parser, err := openSection("references", sec, referenceHeaders)
	if err != nil {
		return err
	}
	rows, malformed, err := parser.ReadAll(0)
	if err != nil {
		return fmt.Errorf("references section: %w", err)
	}
	if len(malformed) > 0 {
		return sectionRowError("references", sec, malformed[0].Row, malformed[0].Message)
	}

	seen := make(map[string]int, len(rows))
	for _, row := range rows {
		year, err := strconv.Atoi(row.Get("manufacturing_year"))
		if err != nil {
			return sectionRowError("references", sec, row.Line,
				fmt.Sprintf("manufacturing_year %q is not a number", row.Get("manufacturing_year")))
		}

		produced := decimal.Zero
		if raw := row.Get("produced_quantity"); raw != "" {
			produced, err = decimal.NewFromString(raw)
			if err != nil {
				return sectionRowError("references", sec, row.Line,
					fmt.Sprintf("produced_quantity %q is not a number", raw))
			}
		}

		ref, err := lot.NewLotReference(row.Get("lot"), year, produced, row.Get("sku"))
		if err != nil {
			return sectionRowError("references", sec, row.Line, err.Error())
		}
		if prev, dup := seen[ref.LotCanonical]; dup {
			return sectionRowError("references", sec, row.Line,
				fmt.Sprintf("lot %s already defined on line %d", ref.LotCanonical, sec.startLine+prev-1))
		}
		seen[ref.LotCanonical] = row.Line
		out.References = append(out.References, *ref)
	}
	return nil
}

// sectionRowError names the failing line in the original file
func sectionRowError(section string, sec *snapshotSection, rowLine int, msg string) error {
	return fmt.Errorf("%s section, line %d: %s", section, sec.startLine+rowLine-1, msg)
}
