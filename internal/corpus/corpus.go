// Package corpus defines the document and label records and their JSONL
// loaders. The rest of the system depends only on the decoded values, not
// on the file format.
package corpus

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// Document is one retrievable unit. Immutable once loaded; identity is
// DocID.
type Document struct {
	DocID string `json:"doc_id"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// QueryLabel pairs a query with its expected document and answer, used for
// comparative evaluation.
type QueryLabel struct {
	QueryID        string `json:"query_id"`
	Query          string `json:"query"`
	ExpectedDocID  string `json:"expected_doc_id"`
	ExpectedAnswer string `json:"expected_answer"`
}

// LoadDocuments reads one JSON document per line, skipping blank lines.
func LoadDocuments(path string) ([]Document, error) {
	var docs []Document
	err := readLines(path, func(line []byte) error {
		var d Document
		if err := json.Unmarshal(line, &d); err != nil {
			return fmt.Errorf("decoding document: %w", err)
		}
		docs = append(docs, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

// LoadLabels reads one JSON label per line, skipping blank lines.
func LoadLabels(path string) ([]QueryLabel, error) {
	var labels []QueryLabel
	err := readLines(path, func(line []byte) error {
		var l QueryLabel
		if err := json.Unmarshal(line, &l); err != nil {
			return fmt.Errorf("decoding label: %w", err)
		}
		labels = append(labels, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return labels, nil
}

func readLines(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if err := fn(line); err != nil {
			return fmt.Errorf("%s line %d: %w", path, lineNo, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
